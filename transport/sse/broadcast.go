package sse

import "sync"

// Broadcaster is an in-process Notifier. Publish it from whatever learns of
// new versions, such as resolver commit hooks.
type Broadcaster struct {
	mu      sync.Mutex
	waiters map[string]map[chan struct{}]struct{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{waiters: make(map[string]map[chan struct{}]struct{})}
}

func (b *Broadcaster) Notify(projectID string) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	b.mu.Lock()
	if b.waiters[projectID] == nil {
		b.waiters[projectID] = make(map[chan struct{}]struct{})
	}
	b.waiters[projectID][ch] = struct{}{}
	b.mu.Unlock()

	return ch, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.waiters[projectID], ch)
		if len(b.waiters[projectID]) == 0 {
			delete(b.waiters, projectID)
		}
	}
}

// Publish wakes every stream of projectID.
func (b *Broadcaster) Publish(projectID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.waiters[projectID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}
