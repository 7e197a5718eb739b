//go:build linux

// Package shm implements the out-of-line payload protocol: payloads too
// large to ride inline in a SEQPACKET frame travel as anonymous
// shared-memory descriptors attached to the frame instead.
package shm

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Stash copies payload into a freshly created anonymous shared-memory
// object and returns its descriptor, ready to attach to a frame. The
// object has no filesystem name. After the copy the object is
// write-sealed so the receiver maps a body the sender can no longer
// modify; on filesystems without sealing this is a no-op.
func Stash(payload []byte) (int, error) {
	fd, err := unix.MemfdCreate("fpc-ool", unix.MFD_CLOEXEC|unix.MFD_ALLOW_SEALING)
	if err != nil {
		return -1, fmt.Errorf("memfd_create: %w", err)
	}

	if err := unix.Ftruncate(fd, int64(len(payload))); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("ftruncate: %w", err)
	}

	data, err := unix.Mmap(fd, 0, len(payload), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("mmap: %w", err)
	}
	copy(data, payload)
	if err := unix.Munmap(data); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("munmap: %w", err)
	}

	sealPayload(fd)
	return fd, nil
}

// sealPayload forbids further writes and resizes. Best effort: the
// kernel refuses seals on memfds created without MFD_ALLOW_SEALING and
// on some filesystems, which downgrades the protection, not the send.
func sealPayload(fd int) {
	_, _ = unix.FcntlInt(uintptr(fd), unix.F_ADD_SEALS,
		unix.F_SEAL_SHRINK|unix.F_SEAL_GROW|unix.F_SEAL_WRITE)
}

// Extract maps the shared-memory object read-only, copies the body out
// into an owned buffer, and closes the descriptor. The descriptor is
// consumed on every path, success or failure.
func Extract(fd int) ([]byte, error) {
	defer unix.Close(fd)

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		return nil, fmt.Errorf("fstat: %w", err)
	}
	if st.Size <= 0 {
		return nil, fmt.Errorf("empty shared-memory payload (size %d)", st.Size)
	}

	data, err := unix.Mmap(fd, 0, int(st.Size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmap: %w", err)
	}
	out := make([]byte, len(data))
	copy(out, data)
	if err := unix.Munmap(data); err != nil {
		return nil, fmt.Errorf("munmap: %w", err)
	}
	return out, nil
}
