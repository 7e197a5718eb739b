package wire

import "fmt"

// FormatError reports a frame that fails structural validation. The
// receive loop treats it as fatal: a peer that framed one message wrong
// is not trusted to resynchronize.
type FormatError string

func (e FormatError) Error() string {
	return "fpc: invalid message format: " + string(e)
}

// VersionError reports a header naming a protocol version this
// implementation does not understand.
type VersionError uint8

func (e VersionError) Error() string {
	return fmt.Sprintf("fpc: unsupported protocol version %d", uint8(e))
}

// EncodeFrame builds a complete frame for a message. kinds carries one
// entry per attached descriptor, in attachment order. If hdr has the
// OOL flag set, trailer index 0 is overwritten with TagOOLPayload
// regardless of the first descriptor's kind.
//
// EncodeFrame assumes the caller already enforced the descriptor cap
// and the OOL payload rules; it only lays down bytes.
func EncodeFrame(hdr *Header, payload []byte, kinds []DescriptorKind) []byte {
	buf := make([]byte, FrameOverhead+len(payload))

	hostEndian.PutUint32(buf[offMessageID:], hdr.MessageID)
	hostEndian.PutUint64(buf[offCorrelationID:], hdr.CorrelationID)
	hostEndian.PutUint32(buf[offPayloadLength:], uint32(len(payload)))
	buf[offDescriptorCount] = uint8(len(kinds))
	buf[offVersion] = hdr.Version
	buf[offFlags] = hdr.Flags

	copy(buf[HeaderSize:], payload)

	trailer := buf[HeaderSize+len(payload):]
	for i, k := range kinds {
		trailer[i] = k.Tag()
	}
	if hdr.HasOOLPayload() {
		trailer[0] = TagOOLPayload
	}

	return buf
}

// DecodeFrame parses and validates one frame. nfds is the number of
// descriptors that arrived in the packet's ancillary data; it must
// match the header's descriptor count. On success it returns the
// header, the payload (aliasing data), and the decoded kind per
// descriptor.
func DecodeFrame(data []byte, nfds int) (*Header, []byte, []DescriptorKind, error) {
	if len(data) < FrameOverhead {
		return nil, nil, nil, FormatError(fmt.Sprintf("frame too short: %d bytes", len(data)))
	}

	hdr := &Header{
		MessageID:       hostEndian.Uint32(data[offMessageID:]),
		CorrelationID:   hostEndian.Uint64(data[offCorrelationID:]),
		PayloadLength:   hostEndian.Uint32(data[offPayloadLength:]),
		DescriptorCount: data[offDescriptorCount],
		Version:         data[offVersion],
		Flags:           data[offFlags],
	}

	if hdr.Version != CurrentVersion {
		return nil, nil, nil, VersionError(hdr.Version)
	}
	if hdr.DescriptorCount > MaxDescriptors {
		return nil, nil, nil, FormatError(fmt.Sprintf("descriptor count %d exceeds %d", hdr.DescriptorCount, MaxDescriptors))
	}
	if uint64(len(data)) != uint64(FrameOverhead)+uint64(hdr.PayloadLength) {
		return nil, nil, nil, FormatError(fmt.Sprintf("frame length %d does not match payload length %d", len(data), hdr.PayloadLength))
	}
	if nfds != int(hdr.DescriptorCount) {
		return nil, nil, nil, FormatError(fmt.Sprintf("descriptor count %d but %d descriptors attached", hdr.DescriptorCount, nfds))
	}

	payload := data[HeaderSize : HeaderSize+int(hdr.PayloadLength)]
	trailer := data[HeaderSize+int(hdr.PayloadLength):]

	if hdr.HasOOLPayload() {
		if hdr.PayloadLength != 0 {
			return nil, nil, nil, FormatError("out-of-line frame carries inline payload")
		}
		if hdr.DescriptorCount < 1 {
			return nil, nil, nil, FormatError("out-of-line frame has no descriptors")
		}
		if trailer[0] != TagOOLPayload {
			return nil, nil, nil, FormatError("out-of-line frame missing payload tag")
		}
	} else if hdr.DescriptorCount > 0 && trailer[0] == TagOOLPayload {
		return nil, nil, nil, FormatError("payload tag on non-out-of-line frame")
	}

	kinds := make([]DescriptorKind, hdr.DescriptorCount)
	for i := range kinds {
		if i > 0 && trailer[i] == TagOOLPayload {
			return nil, nil, nil, FormatError(fmt.Sprintf("payload tag at trailer index %d", i))
		}
		kinds[i] = KindFromTag(trailer[i])
	}

	return hdr, payload, kinds, nil
}
