package config

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"
)

type captured struct {
	mu   sync.Mutex
	cfgs []AppConfig
}

func (c *captured) handle(cfg AppConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfgs = append(c.cfgs, cfg)
}

func (c *captured) last() (AppConfig, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.cfgs) == 0 {
		return AppConfig{}, 0
	}
	return c.cfgs[len(c.cfgs)-1], len(c.cfgs)
}

func TestReloaderReloadAppliesHandlers(t *testing.T) {
	path := writeTempConfig(t, sampleConfig)
	r := NewReloader(path, ReloadConfig{}, nil)
	var got captured
	r.OnReload(got.handle)

	if err := r.Reload(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	cfg, n := got.last()
	if n != 1 || cfg.Log.Level != "debug" || !cfg.Router.Verbose {
		t.Fatalf("unexpected reload result: n=%d cfg=%+v", n, cfg.Router)
	}
	if r.LastReload().IsZero() {
		t.Fatalf("last reload time not recorded")
	}
}

func TestReloaderRejectsInvalidFile(t *testing.T) {
	path := writeTempConfig(t, "log:\n  level: loud\n")
	r := NewReloader(path, ReloadConfig{}, nil)
	var got captured
	r.OnReload(got.handle)

	if err := r.Reload(); err == nil {
		t.Fatalf("expected validation error")
	}
	if _, n := got.last(); n != 0 {
		t.Fatalf("invalid config reached handlers")
	}
}

func TestReloaderCooldown(t *testing.T) {
	path := writeTempConfig(t, sampleConfig)
	r := NewReloader(path, ReloadConfig{Cooldown: time.Minute}, nil)
	now := time.Date(2026, 3, 2, 14, 30, 0, 0, time.UTC)
	r.now = func() time.Time { return now }
	var got captured
	r.OnReload(got.handle)

	_ = r.Reload()
	_ = r.Reload()
	if _, n := got.last(); n != 1 {
		t.Fatalf("cooldown ignored: %d reloads", n)
	}
	now = now.Add(2 * time.Minute)
	_ = r.Reload()
	if _, n := got.last(); n != 2 {
		t.Fatalf("reload after cooldown missing: %d reloads", n)
	}
}

func TestReloaderWatchesFile(t *testing.T) {
	path := writeTempConfig(t, sampleConfig)
	r := NewReloader(path, ReloadConfig{}, nil)
	var got captured
	r.OnReload(got.handle)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	// 等监听建立后再写
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		updated := strings.Replace(sampleConfig, "level: debug", "level: warn", 1)
		if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
			t.Fatalf("rewrite config: %v", err)
		}
		if cfg, n := got.last(); n > 0 && cfg.Log.Level == "warn" {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	cfg, n := got.last()
	if n == 0 || cfg.Log.Level != "warn" {
		t.Fatalf("file change not picked up")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("reloader did not stop")
	}
}

func TestReloaderRequiresPath(t *testing.T) {
	if err := NewReloader("", ReloadConfig{}, nil).Run(context.Background()); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
