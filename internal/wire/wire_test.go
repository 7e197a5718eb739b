package wire

import (
	"bytes"
	"testing"
)

func TestFrameLayout(t *testing.T) {
	hdr := &Header{
		MessageID:     0x01020304,
		CorrelationID: 0x1122334455667788,
		Version:       CurrentVersion,
	}
	payload := []byte{0xAA, 0xBB, 0xCC}
	frame := EncodeFrame(hdr, payload, []DescriptorKind{KindFile, KindSocket})

	if len(frame) != FrameOverhead+len(payload) {
		t.Fatalf("frame length = %d, want %d", len(frame), FrameOverhead+len(payload))
	}

	if got := hostEndian.Uint32(frame[0:4]); got != hdr.MessageID {
		t.Errorf("message id on wire = %#x, want %#x", got, hdr.MessageID)
	}
	if got := hostEndian.Uint64(frame[4:12]); got != hdr.CorrelationID {
		t.Errorf("correlation id on wire = %#x, want %#x", got, hdr.CorrelationID)
	}
	if got := hostEndian.Uint32(frame[12:16]); got != uint32(len(payload)) {
		t.Errorf("payload length on wire = %d, want %d", got, len(payload))
	}
	if frame[16] != 2 {
		t.Errorf("descriptor count on wire = %d, want 2", frame[16])
	}
	if frame[17] != CurrentVersion {
		t.Errorf("version on wire = %d, want %d", frame[17], CurrentVersion)
	}
	if frame[18] != 0 {
		t.Errorf("flags on wire = %d, want 0", frame[18])
	}
	if !bytes.Equal(frame[HeaderSize:HeaderSize+3], payload) {
		t.Error("payload bytes not at expected offset")
	}

	trailer := frame[HeaderSize+len(payload):]
	if trailer[0] != KindFile.Tag() || trailer[1] != KindSocket.Tag() {
		t.Errorf("trailer tags = %v, want [%d %d]", trailer[:2], KindFile.Tag(), KindSocket.Tag())
	}
	for _, b := range trailer[2:] {
		if b != 0 {
			t.Fatal("reserved trailer bytes not zero")
		}
	}
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		hdr     Header
		payload []byte
		kinds   []DescriptorKind
	}{
		{"empty", Header{MessageID: 1, Version: CurrentVersion}, nil, nil},
		{"payload only", Header{MessageID: 7, CorrelationID: 42, Version: CurrentVersion}, []byte("hello"), nil},
		{"one descriptor", Header{MessageID: 3, Version: CurrentVersion}, []byte{1}, []DescriptorKind{KindPipe}},
		{"max descriptors", Header{MessageID: 300, Version: CurrentVersion}, nil, manyKinds(MaxDescriptors)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame := EncodeFrame(&tt.hdr, tt.payload, tt.kinds)
			hdr, payload, kinds, err := DecodeFrame(frame, len(tt.kinds))
			if err != nil {
				t.Fatalf("DecodeFrame failed: %v", err)
			}
			if hdr.MessageID != tt.hdr.MessageID || hdr.CorrelationID != tt.hdr.CorrelationID {
				t.Errorf("ids = (%d, %d), want (%d, %d)", hdr.MessageID, hdr.CorrelationID, tt.hdr.MessageID, tt.hdr.CorrelationID)
			}
			if !bytes.Equal(payload, tt.payload) {
				t.Errorf("payload = %v, want %v", payload, tt.payload)
			}
			if len(kinds) != len(tt.kinds) {
				t.Fatalf("kinds length = %d, want %d", len(kinds), len(tt.kinds))
			}
			for i := range kinds {
				if kinds[i] != tt.kinds[i] {
					t.Errorf("kinds[%d] = %v, want %v", i, kinds[i], tt.kinds[i])
				}
			}
		})
	}
}

func TestOOLFrame(t *testing.T) {
	hdr := &Header{MessageID: 9, Version: CurrentVersion, Flags: FlagOOLPayload}
	frame := EncodeFrame(hdr, nil, []DescriptorKind{KindSharedMemory, KindFile})

	trailer := frame[HeaderSize:]
	if trailer[0] != TagOOLPayload {
		t.Fatalf("trailer[0] = %d, want %d", trailer[0], TagOOLPayload)
	}
	if trailer[1] != KindFile.Tag() {
		t.Fatalf("trailer[1] = %d, want file tag", trailer[1])
	}

	decoded, payload, kinds, err := DecodeFrame(frame, 2)
	if err != nil {
		t.Fatalf("DecodeFrame failed: %v", err)
	}
	if !decoded.HasOOLPayload() {
		t.Error("OOL flag lost in round trip")
	}
	if len(payload) != 0 {
		t.Errorf("OOL payload length = %d, want 0", len(payload))
	}
	if len(kinds) != 2 || kinds[1] != KindFile {
		t.Errorf("kinds = %v", kinds)
	}
}

func TestDecodeValidation(t *testing.T) {
	valid := func() []byte {
		return EncodeFrame(&Header{MessageID: 1, Version: CurrentVersion}, []byte{1, 2}, []DescriptorKind{KindFile})
	}

	tests := []struct {
		name   string
		mutate func([]byte) ([]byte, int)
	}{
		{"truncated frame", func(f []byte) ([]byte, int) { return f[:100], 1 }},
		{"length mismatch", func(f []byte) ([]byte, int) {
			hostEndian.PutUint32(f[12:], 99)
			return f, 1
		}},
		{"descriptor count over cap", func(f []byte) ([]byte, int) {
			f[16] = 255
			return f, 255
		}},
		{"fd count mismatch", func(f []byte) ([]byte, int) { return f, 3 }},
		{"ool flag with inline payload", func(f []byte) ([]byte, int) {
			f[18] = FlagOOLPayload
			return f, 1
		}},
		{"ool tag at nonzero index", func(f []byte) ([]byte, int) {
			f[16] = 2
			f[len(f)-TrailerSize+1] = TagOOLPayload
			return f, 2
		}},
		{"ool tag without flag", func(f []byte) ([]byte, int) {
			f[len(f)-TrailerSize] = TagOOLPayload
			return f, 1
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, nfds := tt.mutate(valid())
			_, _, _, err := DecodeFrame(frame, nfds)
			if _, ok := err.(FormatError); !ok {
				t.Fatalf("err = %v, want FormatError", err)
			}
		})
	}
}

func TestDecodeUnsupportedVersion(t *testing.T) {
	frame := EncodeFrame(&Header{MessageID: 1, Version: CurrentVersion}, nil, nil)
	frame[17] = 1
	_, _, _, err := DecodeFrame(frame, 0)
	ve, ok := err.(VersionError)
	if !ok {
		t.Fatalf("err = %v, want VersionError", err)
	}
	if uint8(ve) != 1 {
		t.Errorf("version in error = %d, want 1", uint8(ve))
	}
}

func TestOOLMissingDescriptor(t *testing.T) {
	// Hand-build an OOL header with no descriptors; EncodeFrame cannot
	// produce one because it always stamps the tag.
	frame := make([]byte, FrameOverhead)
	hostEndian.PutUint32(frame[0:], 1)
	frame[17] = CurrentVersion
	frame[18] = FlagOOLPayload
	_, _, _, err := DecodeFrame(frame, 0)
	if _, ok := err.(FormatError); !ok {
		t.Fatalf("err = %v, want FormatError", err)
	}
}

func manyKinds(n int) []DescriptorKind {
	kinds := make([]DescriptorKind, n)
	for i := range kinds {
		kinds[i] = KindFile
	}
	return kinds
}

func BenchmarkEncodeFrame(b *testing.B) {
	hdr := &Header{MessageID: 1, CorrelationID: 2, Version: CurrentVersion}
	payload := make([]byte, 4096)
	kinds := []DescriptorKind{KindFile, KindSocket}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		EncodeFrame(hdr, payload, kinds)
	}
}

func BenchmarkDecodeFrame(b *testing.B) {
	frame := EncodeFrame(&Header{MessageID: 1, Version: CurrentVersion}, make([]byte, 4096), []DescriptorKind{KindFile})
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		if _, _, _, err := DecodeFrame(frame, 1); err != nil {
			b.Fatal(err)
		}
	}
}
