package queue

import (
	"sync"

	"github.com/eapache/queue"
)

// Stream is an unbounded, single-claim delivery channel. Producers
// (the receive loop, the accept loop) push without ever blocking on the
// consumer; a pump goroutine feeds the claimed channel from the
// backlog. Closing finishes the channel; items nobody consumed are
// handed to the drop callback so their kernel resources are released.
type Stream struct {
	mu      sync.Mutex
	cond    *sync.Cond
	backlog *queue.Queue
	claimed bool
	closed  bool
	die     chan struct{}
	out     chan any
	drop    func(any)
}

// NewStream creates a stream. drop is invoked for every item discarded
// at close; it may be nil when items hold no resources.
func NewStream(drop func(any)) *Stream {
	if drop == nil {
		drop = func(any) {}
	}
	s := &Stream{
		backlog: queue.New(),
		die:     make(chan struct{}),
		out:     make(chan any),
		drop:    drop,
	}
	s.cond = sync.NewCond(&s.mu)
	go s.pump()
	return s
}

// Push appends an item. Returns false (and does not take ownership) if
// the stream is already closed.
func (s *Stream) Push(v any) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.backlog.Add(v)
	s.cond.Signal()
	s.mu.Unlock()
	return true
}

// Claim hands out the consumer channel. Exactly one claim succeeds per
// stream lifetime.
func (s *Stream) Claim() (<-chan any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claimed {
		return nil, false
	}
	s.claimed = true
	return s.out, true
}

// Close finishes the stream: no further pushes are accepted, undelivered
// items are dropped, and the consumer channel is closed. Idempotent.
func (s *Stream) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.die)
	s.cond.Broadcast()
	s.mu.Unlock()
}

func (s *Stream) pump() {
	for {
		s.mu.Lock()
		for s.backlog.Length() == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.backlog.Length() == 0 {
			// closed and drained
			s.mu.Unlock()
			close(s.out)
			return
		}
		v := s.backlog.Remove()
		s.mu.Unlock()

		select {
		case s.out <- v:
		case <-s.die:
			s.drop(v)
		}
	}
}
