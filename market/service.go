package market

import (
	"sync"
	"time"
)

// Service 维护最新快照，并向订阅者广播。
type Service struct {
	pub    *Publisher
	mu     sync.RWMutex
	quotes Batch
	last   time.Time
}

func NewService(pub *Publisher) *Service {
	if pub == nil {
		pub = NewPublisher()
	}
	return &Service{
		pub:    pub,
		quotes: make(Batch),
	}
}

// Publisher 广播器。
func (s *Service) Publisher() *Publisher {
	return s.pub
}

// OnBatch 合并快照并广播。
func (s *Service) OnBatch(b Batch, ts time.Time) {
	s.mu.Lock()
	for id, q := range b {
		s.quotes[id] = q
	}
	s.last = ts
	s.mu.Unlock()
	s.pub.Publish(b)
}

// Latest 最新快照的副本。
func (s *Service) Latest() Batch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(Batch, len(s.quotes))
	for id, q := range s.quotes {
		out[id] = q
	}
	return out
}

// Quote 单品种最新快照。
func (s *Service) Quote(symbol string) (Quote, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quotes[symbol]
	return q, ok
}

// Mid 返回当前中间价；若缺失则返回 0。
func (s *Service) Mid(symbol string) float64 {
	q, ok := s.Quote(symbol)
	if !ok {
		return 0
	}
	return q.Mid
}

// Staleness 返回距离上次更新的时间间隔；如无数据返回一年。
func (s *Service) Staleness() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last.IsZero() {
		return time.Hour * 24 * 365
	}
	return time.Since(s.last)
}
