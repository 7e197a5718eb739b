//go:build !linux

package shm

import "golang.org/x/sys/unix"

// Stash is not supported on this platform; payloads above the inline
// limit cannot be sent.
func Stash(payload []byte) (int, error) {
	return -1, unix.ENOSYS
}

// Extract is not supported on this platform.
func Extract(fd int) ([]byte, error) {
	unix.Close(fd)
	return nil, unix.ENOSYS
}
