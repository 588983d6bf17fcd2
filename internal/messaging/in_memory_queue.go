package messaging

import (
	"context"
	"sync"
)

// InMemoryPublisher records published events instead of sending them
// anywhere. Used in tests and when no RABBITMQ_URL is configured.
type InMemoryPublisher struct {
	mu     sync.Mutex
	events []ChatEventPayload
}

func NewInMemoryPublisher() *InMemoryPublisher {
	return &InMemoryPublisher{}
}

func (p *InMemoryPublisher) PublishChatEvent(ctx context.Context, payload ChatEventPayload) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, payload)
	return nil
}

func (p *InMemoryPublisher) Events() []ChatEventPayload {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]ChatEventPayload, len(p.events))
	copy(out, p.events)
	return out
}

func (p *InMemoryPublisher) Close() {}
