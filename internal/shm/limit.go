package shm

import (
	"sync"

	"github.com/ehrlich-b/go-fpc/internal/constants"
)

var (
	limitOnce sync.Once
	maxPacket int
)

// MaxPacket returns the kernel's maximum SEQPACKET message size,
// queried once and cached for the process lifetime.
func MaxPacket() int {
	limitOnce.Do(func() {
		maxPacket = probeMaxPacket()
		if maxPacket <= constants.FrameOverhead {
			maxPacket = constants.DefaultSeqpacketMax - sndbufAllowance
		}
	})
	return maxPacket
}

// InlineLimit is the largest payload that still rides inline in a
// frame: the kernel's packet max minus the fixed header and trailer.
// One byte over goes out-of-line.
func InlineLimit() int {
	limit := MaxPacket() - constants.FrameOverhead
	if limit < 0 {
		return 0
	}
	return limit
}
