//go:build !linux

package sock

import "golang.org/x/sys/unix"

// DialAt is not supported on this platform.
func DialAt(dirfd int, rel string) (int, error) {
	return -1, unix.ENOSYS
}

// ListenAt is not supported on this platform.
func ListenAt(dirfd int, rel string, backlog int) (int, error) {
	return -1, unix.ENOSYS
}
