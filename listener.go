package fpc

import (
	"context"
	"sync"

	"github.com/ehrlich-b/go-fpc/internal/constants"
	"github.com/ehrlich-b/go-fpc/internal/logging"
	"github.com/ehrlich-b/go-fpc/internal/queue"
	"github.com/ehrlich-b/go-fpc/internal/sock"
)

// ListenerConfig tunes a listener. The zero value is usable.
type ListenerConfig struct {
	// Backlog is the listen(2) backlog (default 128).
	Backlog int

	// Logger overrides the package default logger.
	Logger *logging.Logger

	// Endpoint configures the endpoints built for accepted
	// connections (may be nil).
	Endpoint *EndpointConfig
}

func (c *ListenerConfig) withDefaults() ListenerConfig {
	out := ListenerConfig{}
	if c != nil {
		out = *c
	}
	if out.Backlog <= 0 {
		out.Backlog = constants.DefaultBacklog
	}
	if out.Logger == nil {
		out.Logger = logging.Default()
	}
	return out
}

// Listener accepts FPC connections on a bound SEQPACKET socket and
// hands each one out as an unstarted endpoint.
type Listener struct {
	holder *sock.Holder
	log    *logging.Logger
	epcfg  *EndpointConfig
	conns  *queue.Stream

	mu      sync.Mutex
	started bool
	closed  bool
	stopped chan struct{}
}

// Listen binds path and starts listening. The socket file is created;
// stale files from a previous run are the caller's problem, as with any
// Unix-domain listener.
func Listen(path string, config *ListenerConfig) (*Listener, error) {
	cfg := config.withDefaults()
	fd, err := sock.Listen(path, cfg.Backlog)
	if err != nil {
		return nil, wrapError("LISTEN", err)
	}
	return newListener(fd, cfg), nil
}

// ListenAt binds rel resolved under the directory descriptor dirfd,
// letting sandboxed callers bind through a directory capability rather
// than an absolute path.
func ListenAt(dirfd int, rel string, config *ListenerConfig) (*Listener, error) {
	cfg := config.withDefaults()
	fd, err := sock.ListenAt(dirfd, rel, cfg.Backlog)
	if err != nil {
		return nil, wrapError("LISTEN", err)
	}
	return newListener(fd, cfg), nil
}

func newListener(fd int, cfg ListenerConfig) *Listener {
	l := &Listener{
		holder:  sock.NewHolder(fd),
		log:     cfg.Logger,
		epcfg:   cfg.Endpoint,
		stopped: make(chan struct{}),
	}
	l.conns = queue.NewStream(func(v any) { v.(*Endpoint).Stop() })
	return l
}

// Start spawns the accept loop feeding the Connections stream. No-op if
// already running; fails once the listener is closed.
func (l *Listener) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return newError("START", CodeListenerClosed, "listener closed")
	}
	if l.started {
		return nil
	}
	l.started = true
	go l.acceptLoop()
	return nil
}

// Accept takes a single connection, blocking until one arrives, ctx is
// cancelled, or the listener stops.
func (l *Listener) Accept(ctx context.Context) (*Endpoint, error) {
	type result struct {
		ep  *Endpoint
		err error
	}
	ch := make(chan result, 1)
	go func() {
		ep, err := l.acceptOne()
		ch <- result{ep, err}
	}()

	select {
	case r := <-ch:
		return r.ep, r.err
	case <-ctx.Done():
		// The blocking accept keeps running; reap whatever it returns
		// so an accepted socket is not leaked.
		go func() {
			if r := <-ch; r.err == nil {
				r.ep.Stop()
			}
		}()
		return nil, ctx.Err()
	}
}

// Connections claims the stream of accepted endpoints. Exactly one
// consumer may claim it; the channel closes when the listener stops.
func (l *Listener) Connections() (<-chan *Endpoint, error) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return nil, newError("CONNECTIONS", CodeListenerClosed, "listener closed")
	}
	if !l.started {
		l.mu.Unlock()
		return nil, newError("CONNECTIONS", CodeNotStarted, "listener not started")
	}
	l.mu.Unlock()

	raw, ok := l.conns.Claim()
	if !ok {
		return nil, newError("CONNECTIONS", CodeStreamClaimed, "connection stream already claimed")
	}

	out := make(chan *Endpoint)
	go func() {
		defer close(out)
		for v := range raw {
			ep := v.(*Endpoint)
			select {
			case out <- ep:
			case <-l.stopped:
				ep.Stop()
				for v := range raw {
					v.(*Endpoint).Stop()
				}
				return
			}
		}
	}()
	return out, nil
}

// Stop closes the listening socket and finishes the connection stream.
// Idempotent.
func (l *Listener) Stop() {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	close(l.stopped)
	l.mu.Unlock()

	_ = l.holder.Close()
	l.conns.Close()
	l.log.Debug("listener stopped")
}

func (l *Listener) acceptOne() (*Endpoint, error) {
	var nfd int
	err := l.holder.Do(func(fd int) error {
		var aerr error
		nfd, aerr = sock.Accept(fd)
		return aerr
	})
	if err == sock.ErrClosed {
		return nil, newError("ACCEPT", CodeListenerClosed, "listener closed")
	}
	if err != nil {
		if l.holder.Closed() {
			return nil, newError("ACCEPT", CodeListenerClosed, "listener closed")
		}
		return nil, wrapError("ACCEPT", err)
	}
	return NewEndpoint(nfd, l.epcfg), nil
}

func (l *Listener) acceptLoop() {
	for {
		ep, err := l.acceptOne()
		if err != nil {
			if !IsCode(err, CodeListenerClosed) {
				l.log.Error("accept failed", "err", err)
			}
			l.conns.Close()
			return
		}
		if !l.conns.Push(ep) {
			ep.Stop()
		}
	}
}
