package broker

import (
	"context"
	"sync"
	"time"
)

// Memory 进程内 Broker，用于测试与单进程演示。
type Memory struct {
	mu      sync.Mutex
	lists   map[string][]string // 下标 0 为左端
	values  map[string]string
	subs    map[string]map[int]chan string
	nextSub int
	pushed  chan struct{}
	closed  bool
	fail    error
}

var _ Broker = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		lists:  make(map[string][]string),
		values: make(map[string]string),
		subs:   make(map[string]map[int]chan string),
		pushed: make(chan struct{}),
	}
}

// Fail 让后续所有操作返回 err；传 nil 恢复。
func (m *Memory) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = err
}

func (m *Memory) check() error {
	if m.closed {
		return ErrClosed
	}
	return m.fail
}

func (m *Memory) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.check()
}

func (m *Memory) Push(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return err
	}
	m.lists[key] = append([]string{value}, m.lists[key]...)
	// 唤醒所有阻塞中的 pop
	close(m.pushed)
	m.pushed = make(chan struct{})
	return nil
}

func (m *Memory) BlockingPop(ctx context.Context, key string, timeout time.Duration) (string, bool, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		m.mu.Lock()
		if err := m.check(); err != nil {
			m.mu.Unlock()
			return "", false, err
		}
		if l := m.lists[key]; len(l) > 0 {
			v := l[len(l)-1]
			m.lists[key] = l[:len(l)-1]
			m.mu.Unlock()
			return v, true, nil
		}
		wake := m.pushed
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return "", false, ctx.Err()
		case <-timer.C:
			return "", false, nil
		case <-wake:
		}
	}
}

func (m *Memory) Range(ctx context.Context, key string, start, stop int64) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return nil, err
	}
	l := m.lists[key]
	n := int64(len(l))
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if n == 0 || start > stop {
		return []string{}, nil
	}
	out := make([]string, stop-start+1)
	copy(out, l[start:stop+1])
	return out, nil
}

func (m *Memory) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return "", false, err
	}
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *Memory) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return err
	}
	m.values[key] = value
	return nil
}

// Publish 非阻塞分发，慢订阅者会丢消息。
func (m *Memory) Publish(ctx context.Context, channel, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check(); err != nil {
		return err
	}
	for _, ch := range m.subs[channel] {
		select {
		case ch <- message:
		default:
		}
	}
	return nil
}

func (m *Memory) Subscribe(ctx context.Context, channel string) (<-chan string, func(), error) {
	m.mu.Lock()
	if err := m.check(); err != nil {
		m.mu.Unlock()
		return nil, nil, err
	}
	id := m.nextSub
	m.nextSub++
	ch := make(chan string, 16)
	if m.subs[channel] == nil {
		m.subs[channel] = make(map[int]chan string)
	}
	m.subs[channel][id] = ch
	m.mu.Unlock()

	done := make(chan struct{})
	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			m.mu.Lock()
			if _, ok := m.subs[channel][id]; ok {
				delete(m.subs[channel], id)
				close(ch)
			}
			m.mu.Unlock()
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()
	return ch, cancel, nil
}

// Len 返回列表长度，测试用。
func (m *Memory) Len(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.lists[key])
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.pushed)
	m.pushed = make(chan struct{})
	for channel, subs := range m.subs {
		for id, ch := range subs {
			close(ch)
			delete(subs, id)
		}
		delete(m.subs, channel)
	}
	return nil
}
