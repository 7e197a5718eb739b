package constants

// Wire format constants
const (
	// HeaderSize is the fixed size of the frame header in bytes
	HeaderSize = 256

	// TrailerSize is the fixed size of the frame trailer in bytes
	TrailerSize = 256

	// FrameOverhead is the fixed per-frame cost (header + trailer)
	FrameOverhead = HeaderSize + TrailerSize

	// MaxDescriptors is the maximum number of descriptors per message.
	// The trailer carries one kind tag per descriptor in bytes 0..253;
	// bytes 254 and 255 are reserved.
	MaxDescriptors = 254

	// ProtocolVersion is the current wire protocol version
	ProtocolVersion = 0
)

// Default configuration constants
const (
	// DefaultBacklog is the default listen(2) backlog for listeners
	DefaultBacklog = 128

	// DefaultSendWorkers is the default width of the per-endpoint I/O
	// worker pool. Sends run on the pool so a send never queues behind
	// the blocking receive loop; each send is a single sendmsg, so a
	// handful of workers is enough.
	DefaultSendWorkers = 4

	// DefaultSeqpacketMax is the fallback for the kernel's maximum
	// SEQPACKET message size when the runtime probe fails. Matches the
	// net.core.wmem_default shipped on the kernels we target.
	DefaultSeqpacketMax = 212992
)
