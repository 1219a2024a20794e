package capture

import (
	"context"
	"sync"
)

// MemoryBroadcaster is an in-process broadcaster for single-instance
// deployments and tests.
type MemoryBroadcaster struct {
	mu        sync.Mutex
	listeners map[string]map[int]chan *Sample
	nextID    int
}

func NewMemoryBroadcaster() *MemoryBroadcaster {
	return &MemoryBroadcaster{listeners: make(map[string]map[int]chan *Sample)}
}

func (b *MemoryBroadcaster) Publish(_ context.Context, sample *Sample) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, ch := range b.listeners[sample.AutomationID] {
		select {
		case ch <- sample:
		default:
			// Slow listener, drop rather than block the webhook handler.
		}
	}

	return nil
}

func (b *MemoryBroadcaster) Subscribe(_ context.Context, automationID string) (<-chan *Sample, func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.listeners[automationID] == nil {
		b.listeners[automationID] = make(map[int]chan *Sample)
	}

	id := b.nextID
	b.nextID++

	ch := make(chan *Sample, 16)
	b.listeners[automationID][id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()

		if _, ok := b.listeners[automationID][id]; ok {
			delete(b.listeners[automationID], id)
			close(ch)
		}
	}

	return ch, cancel, nil
}

func (b *MemoryBroadcaster) Close(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, listeners := range b.listeners {
		for id, ch := range listeners {
			delete(listeners, id)
			close(ch)
		}
	}

	return nil
}

var _ Broadcaster = (*MemoryBroadcaster)(nil)
