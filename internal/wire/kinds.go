package wire

// DescriptorKind identifies the semantic role of a descriptor attached
// to a message. The kind travels as a single byte in the frame trailer
// so both peers agree on what each descriptor is without inspecting it.
type DescriptorKind uint8

const (
	KindUnknown DescriptorKind = iota
	KindFile
	KindDirectory
	KindDevice
	KindProcess
	KindKqueue
	KindSocket
	KindPipe
	KindJailNonOwning
	KindJailOwning
	KindSharedMemory
	KindEvent
)

// TagOOLPayload is reserved: a descriptor carrying this tag at trailer
// index 0 is the out-of-line message body, not an application descriptor.
// It never appears at any other trailer index.
const TagOOLPayload byte = 255

// kindTags is the wire encoding table. Implementations in other
// languages must agree on it byte-for-byte within a protocol version.
var kindTags = map[DescriptorKind]byte{
	KindUnknown:       0,
	KindFile:          1,
	KindDirectory:     2,
	KindDevice:        3,
	KindProcess:       4,
	KindKqueue:        5,
	KindSocket:        6,
	KindPipe:          7,
	KindJailNonOwning: 8,
	KindJailOwning:    9,
	KindSharedMemory:  10,
	KindEvent:         11,
}

var tagKinds = func() map[byte]DescriptorKind {
	m := make(map[byte]DescriptorKind, len(kindTags))
	for k, t := range kindTags {
		m[t] = k
	}
	return m
}()

// Tag returns the wire tag for a kind. Total: kinds outside the table
// encode as the unknown tag.
func (k DescriptorKind) Tag() byte {
	if t, ok := kindTags[k]; ok {
		return t
	}
	return 0
}

// KindFromTag decodes a trailer tag. Total: unknown tags (including
// ones a future protocol version may add) decode to KindUnknown rather
// than failing.
func KindFromTag(tag byte) DescriptorKind {
	if k, ok := tagKinds[tag]; ok {
		return k
	}
	return KindUnknown
}

// String returns a human-readable kind name for logs.
func (k DescriptorKind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	case KindDevice:
		return "device"
	case KindProcess:
		return "process"
	case KindKqueue:
		return "kqueue"
	case KindSocket:
		return "socket"
	case KindPipe:
		return "pipe"
	case KindJailNonOwning:
		return "jail-non-owning"
	case KindJailOwning:
		return "jail-owning"
	case KindSharedMemory:
		return "shm"
	case KindEvent:
		return "event"
	default:
		return "unknown"
	}
}
