package protocol

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// MaxFrameBytes caps a single frame; anything larger is treated as a
// malformed peer.
const MaxFrameBytes = 16 << 20

// WriteFrame writes a 4-byte big-endian length followed by the payload.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > MaxFrameBytes {
		return fmt.Errorf("frame too large: %d bytes", len(payload))
	}
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("write frame header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("write frame payload: %w", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed frame. io.EOF at a frame boundary
// means the peer closed cleanly.
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("read frame header: %w", err)
	}
	size := binary.BigEndian.Uint32(header[:])
	if size > MaxFrameBytes {
		return nil, fmt.Errorf("frame too large: %d bytes", size)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("read frame payload: %w", err)
	}
	return payload, nil
}

// WriteEnvelope frames a JSON-encoded value.
func WriteEnvelope(w io.Writer, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	return WriteFrame(w, payload)
}

// ReadHookEnvelope reads and decodes one request frame.
func ReadHookEnvelope(r io.Reader) (*HookEnvelope, error) {
	payload, err := ReadFrame(r)
	if err != nil {
		return nil, err
	}
	var envelope HookEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, fmt.Errorf("decode hook envelope: %w", err)
	}
	return &envelope, nil
}

// ReadResponseEnvelope reads and decodes one response frame.
func ReadResponseEnvelope(r io.Reader) (*HookResponseEnvelope, error) {
	payload, err := ReadFrame(r)
	if err != nil {
		return nil, err
	}
	var response HookResponseEnvelope
	if err := json.Unmarshal(payload, &response); err != nil {
		return nil, fmt.Errorf("decode response envelope: %w", err)
	}
	return &response, nil
}
