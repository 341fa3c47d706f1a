package market

import "sync"

// Publisher 一个轻量事件分发器，慢订阅者会丢失中间快照。
type Publisher struct {
	mu   sync.Mutex
	subs map[int]chan Batch
	next int
}

func NewPublisher() *Publisher {
	return &Publisher{subs: make(map[int]chan Batch)}
}

// Subscribe 返回快照通道与取消函数。
func (p *Publisher) Subscribe() (<-chan Batch, func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.next
	p.next++
	ch := make(chan Batch, 1)
	p.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			p.mu.Lock()
			defer p.mu.Unlock()
			if c, ok := p.subs[id]; ok {
				delete(p.subs, id)
				close(c)
			}
		})
	}
}

func (p *Publisher) Publish(b Batch) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, ch := range p.subs {
		select {
		case ch <- b:
		default:
		}
	}
}

// Subscribers 当前订阅数。
func (p *Publisher) Subscribers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.subs)
}
