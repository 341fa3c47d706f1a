package config

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWatcherSkipsOnStatError(t *testing.T) {
	orig := readFileInfo
	defer func() { readFileInfo = orig }()
	readFileInfo = func(string) (interface{ ModTime() time.Time }, error) {
		return nil, errors.New("boom")
	}
	w := Watcher{Path: "noop", Interval: 10 * time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel immediately
	if err := w.Start(ctx, nil); err == nil {
		t.Fatalf("expected context cancellation")
	}
}

func TestWatcherTriggersOnChange(t *testing.T) {
	path := writeTempConfig(t, sampleConfig)

	now := time.Now()
	orig := readFileInfo
	defer func() { readFileInfo = orig }()
	tick := 0
	readFileInfo = func(string) (interface{ ModTime() time.Time }, error) {
		tick++
		if tick == 1 {
			return fakeInfo{mod: now}, nil
		}
		return fakeInfo{mod: now.Add(time.Second)}, nil
	}

	w := Watcher{Path: path, Interval: 5 * time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := make(chan AppConfig, 1)
	go func() {
		_ = w.Start(ctx, func(cfg AppConfig) {
			select {
			case ch <- cfg:
			default:
			}
		})
	}()
	select {
	case cfg := <-ch:
		if cfg.Log.Level != "debug" {
			t.Fatalf("unexpected config: %+v", cfg.Log)
		}
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("expected update callback")
	}
}

func TestWatcherReportsInvalidConfig(t *testing.T) {
	path := writeTempConfig(t, "env: \"\"\n")

	now := time.Now()
	orig := readFileInfo
	defer func() { readFileInfo = orig }()
	tick := 0
	readFileInfo = func(string) (interface{ ModTime() time.Time }, error) {
		tick++
		return fakeInfo{mod: now.Add(time.Duration(tick) * time.Second)}, nil
	}

	errs := make(chan error, 1)
	w := Watcher{Path: path, Interval: 5 * time.Millisecond, OnError: func(err error) {
		select {
		case errs <- err:
		default:
		}
	}}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = w.Start(ctx, func(AppConfig) { t.Errorf("invalid config must not be applied") })
	}()
	select {
	case <-errs:
	case <-time.After(200 * time.Millisecond):
		t.Fatalf("expected load error")
	}
}

type fakeInfo struct{ mod time.Time }

func (f fakeInfo) ModTime() time.Time { return f.mod }
