//go:build linux

package sock

import (
	"fmt"
	"strconv"
)

// Linux has no bindat/connectat for sockets. The directory-relative
// variants route through the magic /proc/self/fd symlink instead, which
// resolves against the directory capability without consulting the
// caller's path namespace. The dirfd must stay open for the duration of
// the call.

func atPath(dirfd int, rel string) string {
	return "/proc/self/fd/" + strconv.Itoa(dirfd) + "/" + rel
}

// DialAt connects to the socket at rel, resolved under dirfd.
func DialAt(dirfd int, rel string) (int, error) {
	if dirfd < 0 {
		return -1, fmt.Errorf("dial at: bad directory descriptor %d", dirfd)
	}
	return Dial(atPath(dirfd, rel))
}

// ListenAt binds a listening socket at rel, resolved under dirfd.
func ListenAt(dirfd int, rel string, backlog int) (int, error) {
	if dirfd < 0 {
		return -1, fmt.Errorf("listen at: bad directory descriptor %d", dirfd)
	}
	return Listen(atPath(dirfd, rel), backlog)
}
