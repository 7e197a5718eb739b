// Package wire implements the fixed FPC frame format: a 256-byte
// header, a variable payload, and a 256-byte trailer, exchanged as one
// SEQPACKET packet. All multi-byte integers are host byte order; the
// transport is strictly same-host, so there is nothing to normalize.
package wire

import (
	"encoding/binary"
	"unsafe"

	"github.com/ehrlich-b/go-fpc/internal/constants"
)

const (
	HeaderSize     = constants.HeaderSize
	TrailerSize    = constants.TrailerSize
	FrameOverhead  = constants.FrameOverhead
	MaxDescriptors = constants.MaxDescriptors
	CurrentVersion = constants.ProtocolVersion
)

// Header field offsets. The remainder of the header (bytes 19..255) is
// reserved: zero on send, ignored on receive.
const (
	offMessageID       = 0  // u32
	offCorrelationID   = 4  // u64
	offPayloadLength   = 12 // u32
	offDescriptorCount = 16 // u8
	offVersion         = 17 // u8
	offFlags           = 18 // u8
)

// Header flags
const (
	// FlagOOLPayload marks a frame whose body travels out-of-line in a
	// shared-memory descriptor. payload_length is 0 and trailer[0] is
	// TagOOLPayload.
	FlagOOLPayload uint8 = 1 << 0
)

// Header is the decoded form of the fixed frame header.
type Header struct {
	MessageID       uint32
	CorrelationID   uint64
	PayloadLength   uint32
	DescriptorCount uint8
	Version         uint8
	Flags           uint8
}

// HasOOLPayload reports whether the frame body is out-of-line.
func (h *Header) HasOOLPayload() bool {
	return h.Flags&FlagOOLPayload != 0
}

// hostEndian is the byte order frames are encoded in. FPC frames never
// leave the host, so they use whatever order the CPU has.
var hostEndian = func() binary.ByteOrder {
	var probe uint16 = 1
	if *(*byte)(unsafe.Pointer(&probe)) == 1 {
		return binary.LittleEndian
	}
	return binary.BigEndian
}()
