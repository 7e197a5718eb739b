package fpc

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/ehrlich-b/go-fpc/internal/wire"
)

// MessageID tags a message with its application meaning.
type MessageID uint32

// Well-known message IDs. Application-defined IDs start at MsgAppBase.
const (
	MsgPing         MessageID = 1
	MsgPong         MessageID = 2
	MsgLookup       MessageID = 3
	MsgLookupReply  MessageID = 4
	MsgSubscribe    MessageID = 5
	MsgSubscribeAck MessageID = 6
	MsgEvent        MessageID = 7
	MsgError        MessageID = 255
	MsgAppBase      MessageID = 256
)

func (id MessageID) String() string {
	switch id {
	case MsgPing:
		return "ping"
	case MsgPong:
		return "pong"
	case MsgLookup:
		return "lookup"
	case MsgLookupReply:
		return "lookup-reply"
	case MsgSubscribe:
		return "subscribe"
	case MsgSubscribeAck:
		return "subscribe-ack"
	case MsgEvent:
		return "event"
	case MsgError:
		return "error"
	default:
		return fmt.Sprintf("id(%d)", uint32(id))
	}
}

// DescriptorKind mirrors the wire-level kind table.
type DescriptorKind = wire.DescriptorKind

// DescriptorRef is a kernel descriptor tagged with its semantic kind.
// The ref owns the descriptor: Close releases it unless TakeFD
// transferred ownership out first. Attaching a ref to a message hands
// ownership to the transport once the message is successfully sent;
// callers that want to keep using a descriptor after sending it should
// attach a dup.
type DescriptorRef struct {
	fd    int
	kind  DescriptorKind
	taken bool
}

// NewDescriptorRef takes ownership of fd.
func NewDescriptorRef(fd int, kind DescriptorKind) *DescriptorRef {
	return &DescriptorRef{fd: fd, kind: kind}
}

// Kind returns the semantic kind the descriptor travels under.
func (r *DescriptorRef) Kind() DescriptorKind {
	return r.kind
}

// FD borrows the descriptor without transferring ownership. Invalid
// after TakeFD or Close.
func (r *DescriptorRef) FD() int {
	if r.taken {
		return -1
	}
	return r.fd
}

// TakeFD transfers ownership of the descriptor to the caller. Close
// becomes a no-op.
func (r *DescriptorRef) TakeFD() (int, bool) {
	if r.taken {
		return -1, false
	}
	r.taken = true
	return r.fd, true
}

// Close releases the descriptor unless ownership was taken. Idempotent.
func (r *DescriptorRef) Close() error {
	if r.taken {
		return nil
	}
	r.taken = true
	return unix.Close(r.fd)
}

// Message is the unit of exchange: an ID, an optional correlation to a
// request, an opaque payload, and attached descriptors. Messages are
// values; copying one does not duplicate the descriptors it references.
type Message struct {
	ID            MessageID
	CorrelationID uint64
	Payload       []byte
	Descriptors   []*DescriptorRef
}

// NewRequest builds a message intended for Endpoint.Request. The
// correlation ID stays zero until Request assigns one.
func NewRequest(id MessageID, payload []byte, descriptors ...*DescriptorRef) Message {
	return Message{ID: id, Payload: payload, Descriptors: descriptors}
}

// NewNotification builds an unsolicited message (correlation zero).
func NewNotification(id MessageID, payload []byte, descriptors ...*DescriptorRef) Message {
	return Message{ID: id, Payload: payload, Descriptors: descriptors}
}

// NewReply builds a reply to the request the token came from.
func NewReply(to ReplyToken, id MessageID, payload []byte, descriptors ...*DescriptorRef) Message {
	return Message{ID: id, CorrelationID: to.CorrelationID, Payload: payload, Descriptors: descriptors}
}

// Token extracts the reply token, letting the application drop the
// message body and still answer later.
func (m Message) Token() ReplyToken {
	return ReplyToken{CorrelationID: m.CorrelationID}
}

// closeDescriptors releases every descriptor still owned by the message.
func (m Message) closeDescriptors() {
	for _, d := range m.Descriptors {
		_ = d.Close()
	}
}

// ReplyToken carries just the correlation ID of a received request.
type ReplyToken struct {
	CorrelationID uint64
}
