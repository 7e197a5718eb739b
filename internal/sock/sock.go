package sock

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/ehrlich-b/go-fpc/internal/constants"
)

// ErrBadCredFormat reports a peer-credential structure the kernel
// handed back in a shape we do not understand.
var ErrBadCredFormat = errors.New("fpc: malformed peer credential structure")

// ErrTruncated reports a packet whose body or ancillary data did not
// fit: the peer broke the framing contract.
var ErrTruncated = errors.New("fpc: truncated packet")

// oobPool recycles ancillary buffers sized for a full descriptor load.
// man unix(7) caps SCM_RIGHTS at 253 on Linux; the frame cap of 254 is
// a wire-format limit, so size for it and let the kernel reject the
// overflow case.
var oobPool = sync.Pool{
	New: func() any {
		b := make([]byte, unix.CmsgSpace(constants.MaxDescriptors*4))
		return &b
	},
}

// Seqpacket creates an unbound SOCK_SEQPACKET Unix-domain socket.
func Seqpacket() (int, error) {
	return unix.Socket(unix.AF_UNIX, unix.SOCK_SEQPACKET|unix.SOCK_CLOEXEC, 0)
}

// Pair creates a connected SEQPACKET socket pair.
func Pair() (int, int, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_SEQPACKET|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return -1, -1, err
	}
	return fds[0], fds[1], nil
}

// Dial connects to the SEQPACKET socket bound at path.
func Dial(path string) (int, error) {
	fd, err := Seqpacket()
	if err != nil {
		return -1, err
	}
	sa := &unix.SockaddrUnix{Name: path}
	for {
		err = unix.Connect(fd, sa)
		if err != unix.EINTR {
			break
		}
	}
	if err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("connect %s: %w", path, err)
	}
	return fd, nil
}

// Listen binds a SEQPACKET socket to path and starts listening.
func Listen(path string, backlog int) (int, error) {
	fd, err := Seqpacket()
	if err != nil {
		return -1, err
	}
	if err := unix.Bind(fd, &unix.SockaddrUnix{Name: path}); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("bind %s: %w", path, err)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("listen %s: %w", path, err)
	}
	return fd, nil
}

// Accept takes one connection from a listening socket.
func Accept(fd int) (int, error) {
	for {
		nfd, _, err := unix.Accept4(fd, unix.SOCK_CLOEXEC)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return -1, err
		}
		return nfd, nil
	}
}

// SendFrame writes one frame as a single SEQPACKET packet, attaching
// fds as SCM_RIGHTS ancillary data. The kernel duplicates the
// descriptors into the peer; the caller's copies stay open.
func SendFrame(fd int, frame []byte, fds []int) error {
	var oob []byte
	if len(fds) > 0 {
		oob = unix.UnixRights(fds...)
	}
	for {
		err := unix.Sendmsg(fd, frame, oob, nil, 0)
		if err == unix.EINTR {
			continue
		}
		return err
	}
}

// RecvFrame reads one packet into buf and collects any descriptors that
// rode along. Received descriptors are marked close-on-exec before they
// are returned; the caller owns them. io.EOF reports an orderly close
// by the peer. A packet that did not fit in buf or whose ancillary data
// was truncated is unusable, so its descriptors are closed and an error
// returned.
func RecvFrame(fd int, buf []byte) (int, []int, error) {
	oobp := oobPool.Get().(*[]byte)
	oob := *oobp
	defer oobPool.Put(oobp)

	var (
		n, oobn, recvflags int
		err                error
	)
	for {
		n, oobn, recvflags, _, err = unix.Recvmsg(fd, buf, oob, 0)
		if err == unix.EINTR {
			continue
		}
		break
	}
	if err != nil {
		return 0, nil, err
	}
	if n == 0 && oobn == 0 {
		return 0, nil, io.EOF
	}

	fds, perr := parseRights(oob[:oobn])
	if perr != nil {
		CloseAll(fds)
		return 0, nil, perr
	}
	if recvflags&(unix.MSG_TRUNC|unix.MSG_CTRUNC) != 0 {
		CloseAll(fds)
		return 0, nil, fmt.Errorf("%w (flags %#x)", ErrTruncated, recvflags)
	}
	return n, fds, nil
}

func parseRights(oob []byte) ([]int, error) {
	if len(oob) == 0 {
		return nil, nil
	}
	cmsgs, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return nil, fmt.Errorf("parse control message: %w", err)
	}
	var fds []int
	for _, cmsg := range cmsgs {
		got, err := unix.ParseUnixRights(&cmsg)
		if err != nil {
			CloseAll(fds)
			return nil, fmt.Errorf("parse rights: %w", err)
		}
		fds = append(fds, got...)
	}
	for _, fd := range fds {
		unix.CloseOnExec(fd)
	}
	return fds, nil
}

// CloseAll closes every descriptor in fds, ignoring errors.
func CloseAll(fds []int) {
	for _, fd := range fds {
		_ = unix.Close(fd)
	}
}
