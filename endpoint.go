package fpc

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/ehrlich-b/go-fpc/internal/constants"
	"github.com/ehrlich-b/go-fpc/internal/logging"
	"github.com/ehrlich-b/go-fpc/internal/queue"
	"github.com/ehrlich-b/go-fpc/internal/shm"
	"github.com/ehrlich-b/go-fpc/internal/sock"
	"github.com/ehrlich-b/go-fpc/internal/wire"
)

// State is the endpoint lifecycle state. It only moves forward:
// idle -> running -> stopped.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	default:
		return "stopped"
	}
}

// EndpointConfig tunes an endpoint. The zero value is usable.
type EndpointConfig struct {
	// SendWorkers is the width of the I/O worker pool (default 4).
	SendWorkers int

	// Logger overrides the package default logger.
	Logger *logging.Logger

	// Observer receives transport events (may be nil).
	Observer Observer
}

func (c *EndpointConfig) withDefaults() EndpointConfig {
	out := EndpointConfig{}
	if c != nil {
		out = *c
	}
	if out.SendWorkers <= 0 {
		out.SendWorkers = constants.DefaultSendWorkers
	}
	if out.Logger == nil {
		out.Logger = logging.Default()
	}
	return out
}

// callResult resumes a parked Request caller.
type callResult struct {
	msg Message
	err *Error
}

type pendingCall struct {
	done chan callResult
}

// Endpoint is one side of an FPC connection. Its mutable state (the
// pending tables, the correlation counter, the lifecycle state) is
// serialized by mu; blocking socket work runs on the receive loop and
// the send worker pool, which only touch the holder and the pure
// codecs.
type Endpoint struct {
	holder *sock.Holder
	log    *logging.Logger
	obs    Observer
	pool   *queue.Pool
	inbox  *queue.Stream

	mu       sync.Mutex
	state    State
	nextCorr uint64
	pending  map[uint64]*pendingCall
	timers   map[uint64]*time.Timer
	orphans  map[uint64]struct{}
	termErr  *Error

	stopped chan struct{}
}

// NewEndpoint wraps an already-connected SEQPACKET socket. The endpoint
// takes ownership of fd. It does not receive until Start.
func NewEndpoint(fd int, config *EndpointConfig) *Endpoint {
	cfg := config.withDefaults()
	e := &Endpoint{
		holder:   sock.NewHolder(fd),
		log:      cfg.Logger,
		obs:      cfg.Observer,
		pool:     queue.NewPool(cfg.SendWorkers),
		nextCorr: 1,
		pending:  make(map[uint64]*pendingCall),
		timers:   make(map[uint64]*time.Timer),
		orphans:  make(map[uint64]struct{}),
		stopped:  make(chan struct{}),
	}
	e.inbox = queue.NewStream(func(v any) { v.(Message).closeDescriptors() })
	return e
}

// Dial connects to the SEQPACKET socket bound at path and returns an
// unstarted endpoint.
func Dial(path string, config *EndpointConfig) (*Endpoint, error) {
	fd, err := sock.Dial(path)
	if err != nil {
		return nil, wrapError("DIAL", err)
	}
	return NewEndpoint(fd, config), nil
}

// DialAt connects to rel resolved under the directory descriptor dirfd,
// without touching the caller's path namespace.
func DialAt(dirfd int, rel string, config *EndpointConfig) (*Endpoint, error) {
	fd, err := sock.DialAt(dirfd, rel)
	if err != nil {
		return nil, wrapError("DIAL", err)
	}
	return NewEndpoint(fd, config), nil
}

// Start spawns the receive loop. A second call on a running endpoint is
// a no-op; starting a stopped endpoint fails.
func (e *Endpoint) Start() error {
	e.mu.Lock()
	switch e.state {
	case StateRunning:
		e.mu.Unlock()
		return nil
	case StateStopped:
		e.mu.Unlock()
		return newError("START", CodeStopped, "endpoint already stopped")
	}
	e.state = StateRunning
	e.mu.Unlock()

	go e.recvLoop()
	return nil
}

// Stop tears the endpoint down: the socket is closed, pending requests
// resume with a stopped error, and the unsolicited stream finishes.
// Idempotent.
func (e *Endpoint) Stop() {
	e.teardown(CodeStopped)
}

// State returns the lifecycle state.
func (e *Endpoint) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Err returns the terminal error once the endpoint is stopped: a
// stopped error after a local Stop, or the fatal receive error that
// killed the connection.
func (e *Endpoint) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.termErr == nil {
		return nil
	}
	return e.termErr
}

// Send transmits a fire-and-forget message. It returns once the frame
// has been handed to the kernel. The correlation ID travels as-is:
// notifications carry zero, replies carry the ID copied from their
// request.
func (e *Endpoint) Send(msg Message) error {
	if err := e.checkRunning("SEND"); err != nil {
		return err
	}
	return e.transmit("SEND", msg)
}

// Reply answers the request the token came from.
func (e *Endpoint) Reply(to ReplyToken, id MessageID, payload []byte, descriptors ...*DescriptorRef) error {
	if err := e.checkRunning("REPLY"); err != nil {
		return err
	}
	return e.transmit("REPLY", NewReply(to, id, payload, descriptors...))
}

// Request assigns a fresh correlation ID to msg, sends it, and parks
// until the matching reply arrives, the timeout fires (zero means no
// deadline), ctx is cancelled, or the endpoint tears down. Cancellation
// returns ctx's error; a reply that arrives after cancellation or
// timeout is silently dropped.
func (e *Endpoint) Request(ctx context.Context, msg Message, timeout time.Duration) (Message, error) {
	e.mu.Lock()
	if e.state != StateRunning {
		state := e.state
		e.mu.Unlock()
		return Message{}, e.stateError("REQUEST", state)
	}

	cid := e.nextCorr
	e.nextCorr++
	if e.nextCorr == 0 {
		e.nextCorr = 1
	}

	call := &pendingCall{done: make(chan callResult, 1)}
	// Register before the send leaves for the I/O pool: a reply can
	// arrive before this goroutine would otherwise park.
	e.pending[cid] = call
	if timeout > 0 {
		e.timers[cid] = time.AfterFunc(timeout, func() { e.expire(cid) })
	}
	e.mu.Unlock()

	msg.CorrelationID = cid
	start := time.Now()

	if err := e.transmit("REQUEST", msg); err != nil {
		if e.abandon(cid, false) {
			return Message{}, err
		}
		// The reply won the race against the send error; use it.
		r := <-call.done
		return e.finishRequest(start, r)
	}

	select {
	case r := <-call.done:
		return e.finishRequest(start, r)
	case <-ctx.Done():
		if e.abandon(cid, true) {
			return Message{}, ctx.Err()
		}
		r := <-call.done
		return e.finishRequest(start, r)
	}
}

func (e *Endpoint) finishRequest(start time.Time, r callResult) (Message, error) {
	if e.obs != nil {
		e.obs.ObserveRequest(uint64(time.Since(start)), r.err != nil && r.err.Code == CodeTimeout)
	}
	if r.err != nil {
		return Message{}, r.err
	}
	return r.msg, nil
}

// Incoming claims the unsolicited-message stream: inbound notifications
// and incoming requests that no local waiter matched. Exactly one
// consumer may claim it per endpoint lifetime. The channel closes when
// the endpoint stops.
func (e *Endpoint) Incoming() (<-chan Message, error) {
	e.mu.Lock()
	if e.state != StateRunning {
		state := e.state
		e.mu.Unlock()
		return nil, e.stateError("INCOMING", state)
	}
	raw, ok := e.inbox.Claim()
	e.mu.Unlock()
	if !ok {
		return nil, newError("INCOMING", CodeStreamClaimed, "unsolicited stream already claimed")
	}

	out := make(chan Message)
	go func() {
		defer close(out)
		for v := range raw {
			m := v.(Message)
			select {
			case out <- m:
			case <-e.stopped:
				m.closeDescriptors()
				for v := range raw {
					v.(Message).closeDescriptors()
				}
				return
			}
		}
	}()
	return out, nil
}

// PeerCred queries the kernel for the peer's effective credentials.
func (e *Endpoint) PeerCred() (*PeerCred, error) {
	var creds *sock.Creds
	err := e.holder.Do(func(fd int) error {
		var cerr error
		creds, cerr = sock.PeerCreds(fd)
		return cerr
	})
	if err == sock.ErrClosed {
		return nil, newError("PEERCRED", CodeDisconnected, "socket closed")
	}
	if errors.Is(err, sock.ErrBadCredFormat) {
		return nil, &Error{Op: "PEERCRED", Code: CodeInvalidFormat, Msg: err.Error(), Inner: err}
	}
	if err != nil {
		return nil, wrapError("PEERCRED", err)
	}
	return &PeerCred{
		UID:    creds.UID,
		GID:    creds.GID,
		PID:    creds.PID,
		Groups: creds.Groups,
	}, nil
}

func (e *Endpoint) checkRunning(op string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateRunning {
		return e.stateError(op, e.state)
	}
	return nil
}

func (e *Endpoint) stateError(op string, state State) *Error {
	if state == StateIdle {
		return newError(op, CodeNotStarted, "endpoint not started")
	}
	return newError(op, CodeStopped, "endpoint stopped")
}

// transmit serializes msg and pushes it through the I/O pool. On
// success, ownership of the attached descriptors has passed to the
// kernel and the local refs are released. On failure, caller-supplied
// descriptors stay with the caller; only the internally allocated
// out-of-line object is cleaned up.
func (e *Endpoint) transmit(op string, msg Message) error {
	total := len(msg.Descriptors)
	ool := len(msg.Payload) > shm.InlineLimit()
	if ool {
		total++
	}
	if total > wire.MaxDescriptors {
		return newDescriptorCountError(op, total)
	}

	payload := msg.Payload
	var flags uint8
	oolFD := -1
	kinds := make([]wire.DescriptorKind, 0, total)
	fds := make([]int, 0, total)

	if ool {
		fd, err := shm.Stash(payload)
		if err != nil {
			return wrapError(op, err)
		}
		oolFD = fd
		fds = append(fds, fd)
		// The codec stamps the reserved payload tag over this slot.
		kinds = append(kinds, wire.KindSharedMemory)
		payload = nil
		flags |= wire.FlagOOLPayload
	}
	for _, d := range msg.Descriptors {
		fds = append(fds, d.FD())
		kinds = append(kinds, d.Kind())
	}

	hdr := &wire.Header{
		MessageID:     uint32(msg.ID),
		CorrelationID: msg.CorrelationID,
		Version:       wire.CurrentVersion,
		Flags:         flags,
	}
	frame := wire.EncodeFrame(hdr, payload, kinds)

	errc := make(chan error, 1)
	submitErr := e.pool.Submit(func() {
		errc <- e.holder.Do(func(fd int) error {
			return sock.SendFrame(fd, frame, fds)
		})
	})
	if submitErr != nil {
		if oolFD >= 0 {
			unix.Close(oolFD)
		}
		return newError(op, CodeStopped, "endpoint stopped")
	}

	err := <-errc
	if oolFD >= 0 {
		// The kernel holds its own reference after a successful send;
		// on failure this is the mandated cleanup. Either way the
		// sender drops its handle here.
		unix.Close(oolFD)
	}
	if err != nil {
		if e.obs != nil {
			e.obs.ObserveSend(0, ool, false)
		}
		if err == sock.ErrClosed {
			return e.closedError(op)
		}
		return wrapError(op, err)
	}

	for _, d := range msg.Descriptors {
		_ = d.Close()
	}
	if e.obs != nil {
		e.obs.ObserveSend(uint64(len(frame)+len(msg.Payload)-len(payload)), ool, true)
	}
	return nil
}

// closedError distinguishes a local stop from a lost peer.
func (e *Endpoint) closedError(op string) *Error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.termErr != nil && e.termErr.Code == CodeStopped {
		return newError(op, CodeStopped, "endpoint stopped")
	}
	return newError(op, CodeDisconnected, "connection closed")
}

// recvLoop owns the blocking receive side: one recvmsg per frame,
// decode, out-of-line post-processing, dispatch. Any error is fatal for
// the connection.
func (e *Endpoint) recvLoop() {
	bufSize := shm.MaxPacket()

	for {
		buf := queue.GetBuffer(bufSize)
		var (
			n   int
			fds []int
		)
		err := e.holder.Do(func(fd int) error {
			var rerr error
			n, fds, rerr = sock.RecvFrame(fd, buf)
			return rerr
		})
		if err != nil {
			queue.PutBuffer(buf)
			e.recvFailed(err)
			return
		}

		hdr, payload, kinds, derr := wire.DecodeFrame(buf[:n], len(fds))
		if derr != nil {
			sock.CloseAll(fds)
			queue.PutBuffer(buf)
			e.recvFailed(derr)
			return
		}

		msg := Message{
			ID:            MessageID(hdr.MessageID),
			CorrelationID: hdr.CorrelationID,
		}
		if len(payload) > 0 {
			msg.Payload = make([]byte, len(payload))
			copy(msg.Payload, payload)
		}
		queue.PutBuffer(buf)

		if hdr.HasOOLPayload() {
			body, oerr := shm.Extract(fds[0])
			if oerr != nil {
				sock.CloseAll(fds[1:])
				e.recvFailed(wire.FormatError(oerr.Error()))
				return
			}
			msg.Payload = body
			fds = fds[1:]
			kinds = kinds[1:]
		}
		for i, fd := range fds {
			msg.Descriptors = append(msg.Descriptors, NewDescriptorRef(fd, kinds[i]))
		}

		if e.obs != nil {
			e.obs.ObserveRecv(uint64(n+len(msg.Payload)-len(payload)), hdr.HasOOLPayload())
		}
		e.dispatch(msg)
	}
}

// recvFailed classifies a fatal receive error and tears down.
func (e *Endpoint) recvFailed(err error) {
	switch {
	case err == sock.ErrClosed:
		// Local Stop closed the holder; teardown already ran.
		e.teardown(CodeStopped)
	case err == io.EOF:
		e.teardown(CodeDisconnected)
	case errors.Is(err, sock.ErrTruncated):
		e.log.Error("fatal receive error", "err", err)
		e.teardownErr(&Error{Op: "RECV", Code: CodeInvalidFormat, Msg: err.Error(), Inner: err})
	default:
		switch fe := err.(type) {
		case wire.VersionError:
			e.log.Error("fatal receive error", "err", err)
			e.teardownErr(newVersionError("RECV", uint8(fe)))
		case wire.FormatError:
			e.log.Error("fatal receive error", "err", err)
			e.teardownErr(&Error{Op: "RECV", Code: CodeInvalidFormat, Msg: err.Error(), Inner: err})
		default:
			e.log.Error("fatal receive error", "err", err)
			e.teardown(CodeDisconnected)
		}
	}
}

// dispatch routes one inbound message: a matching waiter gets its
// reply; a correlation we abandoned is dropped; everything else is an
// incoming request or a notification for the unsolicited stream.
func (e *Endpoint) dispatch(msg Message) {
	if msg.CorrelationID != 0 {
		e.mu.Lock()
		if call, ok := e.pending[msg.CorrelationID]; ok {
			delete(e.pending, msg.CorrelationID)
			if t, ok := e.timers[msg.CorrelationID]; ok {
				t.Stop()
				delete(e.timers, msg.CorrelationID)
			}
			e.mu.Unlock()
			call.done <- callResult{msg: msg}
			return
		}
		if _, ok := e.orphans[msg.CorrelationID]; ok {
			delete(e.orphans, msg.CorrelationID)
			e.mu.Unlock()
			msg.closeDescriptors()
			return
		}
		e.mu.Unlock()
	}
	if !e.inbox.Push(msg) {
		msg.closeDescriptors()
	}
}

// expire resumes one waiter with a timeout. The entry may already be
// gone if the reply won the race.
func (e *Endpoint) expire(cid uint64) {
	e.mu.Lock()
	call, ok := e.pending[cid]
	if !ok {
		e.mu.Unlock()
		return
	}
	delete(e.pending, cid)
	delete(e.timers, cid)
	e.orphans[cid] = struct{}{}
	e.mu.Unlock()
	call.done <- callResult{err: newError("REQUEST", CodeTimeout, "request timed out")}
}

// abandon withdraws a pending request after a send failure or caller
// cancellation. Reports whether the entry was still pending; if not,
// the reply already resumed the call. markOrphan keeps a tombstone so a
// late reply is dropped instead of surfacing as an incoming request.
func (e *Endpoint) abandon(cid uint64, markOrphan bool) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.pending[cid]; !ok {
		return false
	}
	delete(e.pending, cid)
	if t, ok := e.timers[cid]; ok {
		t.Stop()
		delete(e.timers, cid)
	}
	if markOrphan && e.state == StateRunning {
		e.orphans[cid] = struct{}{}
	}
	return true
}

func (e *Endpoint) teardown(code ErrorCode) {
	msg := "connection lost"
	if code == CodeStopped {
		msg = "endpoint stopped"
	}
	e.teardownErr(&Error{Op: "STOP", Code: code, Msg: msg})
}

// teardownErr is the single exit path to the stopped state: half-close
// the socket, cancel every timeout, resume every waiter, finish the
// unsolicited stream. Safe to call from any goroutine, any number of
// times.
func (e *Endpoint) teardownErr(term *Error) {
	e.mu.Lock()
	if e.state == StateStopped {
		e.mu.Unlock()
		return
	}
	e.state = StateStopped
	e.termErr = term

	waiterCode := CodeDisconnected
	if term.Code == CodeStopped {
		waiterCode = CodeStopped
	}
	calls := make([]*pendingCall, 0, len(e.pending))
	for cid, call := range e.pending {
		calls = append(calls, call)
		delete(e.pending, cid)
	}
	for cid, t := range e.timers {
		t.Stop()
		delete(e.timers, cid)
	}
	for cid := range e.orphans {
		delete(e.orphans, cid)
	}
	close(e.stopped)
	e.mu.Unlock()

	_ = e.holder.Close()
	werr := &Error{Op: "REQUEST", Code: waiterCode, Msg: term.Msg}
	for _, call := range calls {
		call.done <- callResult{err: werr}
	}
	e.inbox.Close()
	e.pool.Close()

	e.log.Debug("endpoint stopped", "reason", string(term.Code))
}
