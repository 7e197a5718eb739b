//go:build linux

package shm

import (
	"bytes"
	"os"
	"strconv"
)

// sndbufAllowance mirrors the kernel's unix-socket send check, which
// rejects datagrams larger than the send buffer minus 32 bytes.
const sndbufAllowance = 32

// probeMaxPacket reads the default socket send-buffer size. AF_UNIX
// SEQPACKET packets are bounded by the socket's sndbuf, which is
// net.core.wmem_default unless a caller raises it.
func probeMaxPacket() int {
	raw, err := os.ReadFile("/proc/sys/net/core/wmem_default")
	if err != nil {
		return 0
	}
	v, err := strconv.Atoi(string(bytes.TrimSpace(raw)))
	if err != nil || v <= 0 {
		return 0
	}
	return v - sndbufAllowance
}
