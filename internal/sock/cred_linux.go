//go:build linux

package sock

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Creds is the kernel's answer for the peer of a connected socket.
type Creds struct {
	UID    uint32
	GID    uint32
	PID    int32
	Groups []uint32
}

// PeerCreds queries SO_PEERCRED and SO_PEERGROUPS on a connected
// socket. Groups always leads with the effective gid; on kernels
// without SO_PEERGROUPS (pre-4.13) it is just that one entry.
func PeerCreds(fd int) (*Creds, error) {
	ucred, err := unix.GetsockoptUcred(fd, unix.SOL_SOCKET, unix.SO_PEERCRED)
	if err != nil {
		return nil, err
	}

	creds := &Creds{
		UID: ucred.Uid,
		GID: ucred.Gid,
		PID: ucred.Pid,
	}

	sup, err := peerGroups(fd)
	switch err {
	case nil:
		creds.Groups = append([]uint32{creds.GID}, sup...)
	case unix.ENOPROTOOPT, unix.EINVAL, unix.ENOSYS:
		creds.Groups = []uint32{creds.GID}
	default:
		return nil, err
	}
	return creds, nil
}

// peerGroups reads the supplementary group list via SO_PEERGROUPS. The
// kernel reports the required buffer size through ERANGE, so retry once
// with what it asked for.
func peerGroups(fd int) ([]uint32, error) {
	buf := make([]byte, 32*4)
	for {
		vallen := uint32(len(buf))
		_, _, errno := unix.Syscall6(unix.SYS_GETSOCKOPT,
			uintptr(fd),
			uintptr(unix.SOL_SOCKET),
			uintptr(unix.SO_PEERGROUPS),
			uintptr(unsafe.Pointer(&buf[0])),
			uintptr(unsafe.Pointer(&vallen)),
			0,
		)
		if errno == unix.ERANGE && int(vallen) > len(buf) {
			buf = make([]byte, vallen)
			continue
		}
		if errno != 0 {
			return nil, errno
		}
		if vallen%4 != 0 {
			return nil, fmt.Errorf("%w: SO_PEERGROUPS reply of %d bytes", ErrBadCredFormat, vallen)
		}
		groups := make([]uint32, vallen/4)
		for i := range groups {
			groups[i] = hostUint32(buf[i*4 : i*4+4])
		}
		return groups, nil
	}
}

// gid_t on the wire is native order, same as the frame format.
func hostUint32(b []byte) uint32 {
	return *(*uint32)(unsafe.Pointer(&b[0]))
}
