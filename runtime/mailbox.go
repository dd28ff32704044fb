package runtime

import (
	"context"
	"sync"
)

type request struct {
	run  func(ctx context.Context, vm *VM)
	kill bool
}

// mailbox is an unbounded FIFO with a single consumer. After a kill
// request is accepted every further push is refused.
type mailbox struct {
	wake   chan struct{}
	items  []request
	mu     sync.Mutex
	closed bool
}

func newMailbox() *mailbox {
	return &mailbox{wake: make(chan struct{}, 1)}
}

func (m *mailbox) push(r request) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.items = append(m.items, r)
	if r.kill {
		m.closed = true
	}
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
	return true
}

// pop blocks until a request is available.
func (m *mailbox) pop() request {
	for {
		m.mu.Lock()
		if len(m.items) > 0 {
			r := m.items[0]
			m.items[0] = request{}
			m.items = m.items[1:]
			m.mu.Unlock()
			return r
		}
		m.mu.Unlock()
		<-m.wake
	}
}

func (m *mailbox) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// refuse closes the mailbox without queueing a kill.
func (m *mailbox) refuse() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
}
