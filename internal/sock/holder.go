// Package sock owns the SEQPACKET socket plumbing: the shared socket
// holder, frame-sized sendmsg/recvmsg with descriptor rights, and the
// connect/bind/accept helpers the endpoint and listener build on.
package sock

import (
	"errors"
	"sync"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// ErrClosed is returned by Holder.Do once the holder has been closed.
var ErrClosed = errors.New("fpc: socket closed")

// Holder wraps exactly one kernel descriptor shared between the
// endpoint's state owner and the concurrent I/O workers. The closed
// flag is checked without serializing I/O, so one sender and one
// receiver can run concurrently; the kernel provides per-packet
// atomicity. Only Close takes the lock.
type Holder struct {
	fd     int
	closed atomic.Bool
	mu     sync.Mutex
}

// NewHolder takes ownership of fd.
func NewHolder(fd int) *Holder {
	return &Holder{fd: fd}
}

// Do invokes f with the borrowed descriptor unless the holder is
// closed. No lock is held during f: blocking send and receive proceed
// concurrently, and holding a mutex across them would deadlock paired
// endpoints.
func (h *Holder) Do(f func(fd int) error) error {
	if h.closed.Load() {
		return ErrClosed
	}
	return f(h.fd)
}

// Closed reports whether Close has been called.
func (h *Holder) Closed() bool {
	return h.closed.Load()
}

// Close is idempotent. The first call sets the closed flag, half-closes
// both directions to unblock any in-progress blocking send or recv,
// then releases the descriptor.
func (h *Holder) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.closed.CompareAndSwap(false, true) {
		return nil
	}
	_ = unix.Shutdown(h.fd, unix.SHUT_RDWR)
	return unix.Close(h.fd)
}
