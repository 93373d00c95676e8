// Package protocol defines the Awalnet wire format: a call-type tag
// followed by a length-prefixed binary payload, plus the payload codecs
// for every call.
package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	// HeaderSize is the byte size of the frame header:
	// [callType(1) | payloadLen(4)].
	HeaderSize = 5

	// MaxPayload is the maximum accepted payload size (64KB). Bio-bearing
	// profiles and text listings fit comfortably below this.
	MaxPayload = 65536
)

// Message is one framed call: the tag and its raw payload bytes.
type Message struct {
	Call    CallType
	Payload []byte
}

// WriteMessage writes a framed message to a writer.
// Format: [1-byte call type][4-byte big-endian length][payload]
func WriteMessage(w io.Writer, msg Message) error {
	if len(msg.Payload) > MaxPayload {
		return fmt.Errorf("protocol: payload too large: %d bytes", len(msg.Payload))
	}

	buf := make([]byte, HeaderSize+len(msg.Payload))
	buf[0] = byte(msg.Call)
	binary.BigEndian.PutUint32(buf[1:HeaderSize], uint32(len(msg.Payload))) //nolint:gosec // length bounds-checked above
	copy(buf[HeaderSize:], msg.Payload)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("protocol: write frame: %w", err)
	}
	return nil
}

// ReadMessage reads one framed message from a reader. A short read at any
// point is returned as an error; callers treat it as a disconnection.
func ReadMessage(r io.Reader) (Message, error) {
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return Message{}, fmt.Errorf("protocol: read header: %w", err)
	}

	call := CallType(header[0])
	length := binary.BigEndian.Uint32(header[1:HeaderSize])
	if length > MaxPayload {
		return Message{}, fmt.Errorf("protocol: payload too large: %d bytes", length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Message{}, fmt.Errorf("protocol: read payload: %w", err)
	}
	return Message{Call: call, Payload: payload}, nil
}
