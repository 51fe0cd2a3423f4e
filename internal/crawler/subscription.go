package crawler

import (
	"context"
	"sync"

	"github.com/nao1215/sitemark/internal/model"
)

// subscription is the bounded event channel of one subscriber.
//
// send holds the read lock for the whole send, close takes the write lock
// before closing ch, so ch is never closed under a pending send. done is
// closed first to release a send blocked on a full channel.
type subscription struct {
	ch   chan model.VisitEvent
	done chan struct{}

	mu     sync.RWMutex
	closed bool
	once   sync.Once
}

func newSubscription(capacity int) *subscription {
	if capacity < 0 {
		capacity = 0
	}
	return &subscription{
		ch:   make(chan model.VisitEvent, capacity),
		done: make(chan struct{}),
	}
}

// send delivers ev, blocking while the channel is full. It reports false if
// the event was not delivered because the subscription or ctx ended.
func (s *subscription) send(ctx context.Context, ev model.VisitEvent) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return false
	}

	select {
	case s.ch <- ev:
		return true
	case <-s.done:
		return false
	case <-ctx.Done():
		return false
	}
}

// close ends the subscription. Buffered events stay readable until drained.
func (s *subscription) close() {
	s.once.Do(func() {
		close(s.done)

		s.mu.Lock()
		s.closed = true
		close(s.ch)
		s.mu.Unlock()
	})
}
