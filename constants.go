package fpc

import (
	"github.com/ehrlich-b/go-fpc/internal/constants"
	"github.com/ehrlich-b/go-fpc/internal/shm"
	"github.com/ehrlich-b/go-fpc/internal/wire"
)

// Re-export constants for public API
const (
	MaxDescriptors     = constants.MaxDescriptors
	ProtocolVersion    = constants.ProtocolVersion
	DefaultBacklog     = constants.DefaultBacklog
	DefaultSendWorkers = constants.DefaultSendWorkers
)

// Descriptor kinds
const (
	KindUnknown       = wire.KindUnknown
	KindFile          = wire.KindFile
	KindDirectory     = wire.KindDirectory
	KindDevice        = wire.KindDevice
	KindProcess       = wire.KindProcess
	KindKqueue        = wire.KindKqueue
	KindSocket        = wire.KindSocket
	KindPipe          = wire.KindPipe
	KindJailNonOwning = wire.KindJailNonOwning
	KindJailOwning    = wire.KindJailOwning
	KindSharedMemory  = wire.KindSharedMemory
	KindEvent         = wire.KindEvent
)

// MaxInlinePayload returns the largest payload that rides inline in a
// single frame on this host. Anything larger is delivered out-of-line
// through a shared-memory descriptor, transparently to both sides.
func MaxInlinePayload() int {
	return shm.InlineLimit()
}
