package protocol

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

func TestWriteReadFrame(t *testing.T) {
	body := []byte("hello world")
	header := Header{
		CodecType: 2,
		Kind:      RequestID,
		BodyLen:   uint32(len(body)),
	}

	var buf bytes.Buffer
	if err := WriteFrame(&buf, &header, body); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}
	if buf.Len() != HeaderSize+len(body) {
		t.Fatalf("frame size: got %d, want %d", buf.Len(), HeaderSize+len(body))
	}

	got, gotBody, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	if *got != header {
		t.Errorf("header mismatch: got %+v, want %+v", *got, header)
	}
	if !bytes.Equal(gotBody, body) {
		t.Errorf("body mismatch: got %q, want %q", gotBody, body)
	}
}

func TestReadFrameInvalidMagic(t *testing.T) {
	frame := []byte{0x00, 0x00, 0x00, Version, 2, byte(RequestID), 0, 0, 0, 0}
	_, _, err := ReadFrame(bytes.NewReader(frame))
	if err == nil || !strings.Contains(err.Error(), "invalid magic number") {
		t.Fatalf("expected invalid magic error, got %v", err)
	}
}

func TestReadFrameInvalidVersion(t *testing.T) {
	frame := []byte{MagicNumber, MagicByte2, MagicByte3, 0xFF, 2, byte(RequestID), 0, 0, 0, 0}
	_, _, err := ReadFrame(bytes.NewReader(frame))
	if err == nil || !strings.Contains(err.Error(), "unsupported version") {
		t.Fatalf("expected unsupported version error, got %v", err)
	}
}

func TestReadFrameUnknownKind(t *testing.T) {
	for _, kind := range []byte{0, byte(ResponseID) + 1} {
		frame := []byte{MagicNumber, MagicByte2, MagicByte3, Version, 2, kind, 0, 0, 0, 0}
		if _, _, err := ReadFrame(bytes.NewReader(frame)); err == nil {
			t.Errorf("kind %d: expected error", kind)
		}
	}
}

func TestReadFrameBodyLimit(t *testing.T) {
	frame := []byte{MagicNumber, MagicByte2, MagicByte3, Version, 2, byte(RequestID), 0xFF, 0xFF, 0xFF, 0xFF}
	_, _, err := ReadFrame(bytes.NewReader(frame))
	if err == nil || !strings.Contains(err.Error(), "exceeds limit") {
		t.Fatalf("expected body limit error, got %v", err)
	}
}

func TestReadFrameTruncatedBody(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, &Header{Kind: PingPongID, BodyLen: 8}, []byte("12345678")); err != nil {
		t.Fatal(err)
	}
	truncated := buf.Bytes()[:buf.Len()-3]
	if _, _, err := ReadFrame(bytes.NewReader(truncated)); err != io.ErrUnexpectedEOF {
		t.Fatalf("expected io.ErrUnexpectedEOF, got %v", err)
	}
}

func TestReadFrameLargeBody(t *testing.T) {
	largeBody := make([]byte, 1024*1024)
	for i := range largeBody {
		largeBody[i] = byte(i % 256)
	}

	var buf bytes.Buffer
	if err := WriteFrame(&buf, &Header{Kind: ResponseID, BodyLen: uint32(len(largeBody))}, largeBody); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}
	_, body, err := ReadFrame(&buf)
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	if !bytes.Equal(body, largeBody) {
		t.Errorf("large body mismatch")
	}
}

func TestReadFrameSequence(t *testing.T) {
	var buf bytes.Buffer
	for kind := HandshakeID; kind <= ResponseID; kind++ {
		body := []byte{byte(kind)}
		if err := WriteFrame(&buf, &Header{Kind: kind, BodyLen: 1}, body); err != nil {
			t.Fatal(err)
		}
	}
	for kind := HandshakeID; kind <= ResponseID; kind++ {
		h, body, err := ReadFrame(&buf)
		if err != nil {
			t.Fatal(err)
		}
		if h.Kind != kind || body[0] != byte(kind) {
			t.Errorf("frame %d: got kind %d body %v", kind, h.Kind, body)
		}
	}
}
