package crdt

import (
	"encoding/binary"

	scenebridge "github.com/wippyai/scene-bridge"
	"github.com/wippyai/scene-bridge/errors"
)

// HeaderSize is the fixed size of a frame header in bytes.
const HeaderSize = 4 + 4 + 4 + 1 + 4

// Decode parses every frame in data and appends the messages to dst.
// Payloads alias data; callers that keep them past the lifetime of data must
// copy. On a malformed frame Decode returns dst truncated to its original
// length together with a decode-phase error.
func Decode(data []byte, dst []Message) ([]Message, error) {
	start := len(dst)
	off := 0
	for off < len(data) {
		if len(data)-off < HeaderSize {
			return dst[:start], errors.Parse(off, "truncated header: %d of %d bytes", len(data)-off, HeaderSize)
		}
		h := data[off : off+HeaderSize]
		kind := Kind(h[12])
		if !kind.Valid() {
			return dst[:start], errors.InvalidKind(off+12, h[12])
		}
		n := binary.LittleEndian.Uint32(h[13:17])
		rest := len(data) - off - HeaderSize
		if uint64(n) > uint64(rest) {
			return dst[:start], errors.New(errors.PhaseDecode, errors.KindOutOfBounds).
				Offset(off+13).
				Value(n).
				Detail("payload length %d exceeds %d remaining bytes", n, rest).
				Build()
		}

		m := Message{
			Entity:    scenebridge.EntityID(binary.LittleEndian.Uint32(h[0:4])),
			Component: scenebridge.ComponentID(binary.LittleEndian.Uint32(h[4:8])),
			Timestamp: binary.LittleEndian.Uint32(h[8:12]),
			Kind:      kind,
		}
		off += HeaderSize
		if n > 0 {
			m.Payload = data[off : off+int(n) : off+int(n)]
			off += int(n)
		}
		dst = append(dst, m)
	}
	return dst, nil
}

// EncodedSize returns the exact number of bytes Encode produces for msgs.
func EncodedSize(msgs []ProcessedMessage) int {
	size := len(msgs) * HeaderSize
	for i := range msgs {
		size += len(msgs[i].Message.Payload)
	}
	return size
}

// EncodeTo writes msgs into dst, which must hold at least EncodedSize(msgs)
// bytes, and returns the number of bytes written.
func EncodeTo(dst []byte, msgs []ProcessedMessage) (int, error) {
	need := EncodedSize(msgs)
	if len(dst) < need {
		return 0, errors.BufferTooSmall(need, len(dst))
	}
	off := 0
	for i := range msgs {
		m := &msgs[i].Message
		h := dst[off : off+HeaderSize]
		binary.LittleEndian.PutUint32(h[0:4], uint32(m.Entity))
		binary.LittleEndian.PutUint32(h[4:8], uint32(m.Component))
		binary.LittleEndian.PutUint32(h[8:12], m.Timestamp)
		h[12] = byte(m.Kind)
		binary.LittleEndian.PutUint32(h[13:17], uint32(len(m.Payload)))
		off += HeaderSize
		off += copy(dst[off:], m.Payload)
	}
	return off, nil
}

// Encode allocates a buffer of the exact size and encodes msgs into it.
func Encode(msgs []ProcessedMessage) []byte {
	buf := make([]byte, EncodedSize(msgs))
	// Cannot fail: the buffer is sized by EncodedSize.
	_, _ = EncodeTo(buf, msgs)
	return buf
}

// EncodeMessages is Encode for plain messages.
func EncodeMessages(msgs []Message) []byte {
	processed := make([]ProcessedMessage, len(msgs))
	for i := range msgs {
		processed[i] = ProcessedMessage{Message: msgs[i], Effect: EffectApplied}
	}
	return Encode(processed)
}
