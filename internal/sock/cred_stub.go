//go:build !linux

package sock

import "golang.org/x/sys/unix"

// Creds is the kernel's answer for the peer of a connected socket.
type Creds struct {
	UID    uint32
	GID    uint32
	PID    int32
	Groups []uint32
}

// PeerCreds is not supported on this platform.
func PeerCreds(fd int) (*Creds, error) {
	return nil, unix.ENOSYS
}
