package sysex

import (
	"fmt"
	"io"

	"gitlab.com/gomidi/midi/v2"
)

// CorruptMessageError reports a frame that could not be parsed. Offset is the
// position of the offending byte in the stream.
type CorruptMessageError struct {
	Offset int
	Reason string
}

func (e *CorruptMessageError) Error() string {
	return fmt.Sprintf("corrupt message at offset 0x%X: %s", e.Offset, e.Reason)
}

func corrupt(offset int, format string, args ...any) error {
	return &CorruptMessageError{Offset: offset, Reason: fmt.Sprintf(format, args...)}
}

// Framer splits a captured byte stream into messages.
type Framer struct {
	data []byte
	pos  int
}

// NewFramer returns a Framer reading from data. The buffer is not modified
// and messages never alias it.
func NewFramer(data []byte) *Framer {
	return &Framer{data: data}
}

// Offset returns the position of the next unread byte.
func (f *Framer) Offset() int { return f.pos }

// Next returns the next message, or io.EOF at the end of the stream. A
// *CorruptMessageError leaves the framer at the next start marker, so
// calling Next again skips the bad frame.
func (f *Framer) Next() (*Message, error) {
	if f.pos >= len(f.data) {
		return nil, io.EOF
	}

	// Idle: anything before a start marker is garbage.
	if f.data[f.pos] != Start {
		start := f.pos
		f.resync(start)
		return nil, corrupt(start, "stray byte 0x%02X outside a message", f.data[start])
	}

	start := f.pos
	end := -1
	for i := start + 1; i < len(f.data); i++ {
		b := f.data[i]
		if b == End {
			end = i
			break
		}
		if b == Start {
			f.pos = i
			return nil, corrupt(start, "message truncated by start marker at 0x%X", i)
		}
		if b&0x80 != 0 {
			f.resync(i)
			return nil, corrupt(i, "unexpected status byte 0x%02X inside message", b)
		}
	}
	if end < 0 {
		f.pos = len(f.data)
		return nil, corrupt(start, "message not terminated")
	}
	f.pos = end + 1

	var body []byte
	if !midi.Message(f.data[start : end+1]).GetSysEx(&body) {
		return nil, corrupt(start, "empty message")
	}
	return parseBody(start, body)
}

// resync moves to the next start marker after from.
func (f *Framer) resync(from int) {
	for i := from + 1; i < len(f.data); i++ {
		if f.data[i] == Start {
			f.pos = i
			return
		}
	}
	f.pos = len(f.data)
}

func parseBody(offset int, body []byte) (*Message, error) {
	if len(body) < 3 {
		return nil, corrupt(offset, "message too short (%d bytes)", len(body))
	}
	if body[0] != YamahaID {
		return nil, corrupt(offset+1, "unexpected vendor 0x%02X", body[0])
	}

	msg := &Message{
		Kind:   Kind(body[1] >> 4),
		Device: body[1] & 0x0F,
		Model:  body[2],
		Offset: offset,
	}

	switch msg.Kind {
	case BulkData:
		// BH BL AH AM AL <payload> CS
		if len(body) < 9 {
			return nil, corrupt(offset, "bulk message too short (%d bytes)", len(body))
		}
		count := int(body[3])<<7 | int(body[4])
		span := body[3 : len(body)-1]
		enc := body[8 : len(body)-1]
		if len(enc) != count {
			return nil, corrupt(offset+4, "byte count %d does not match payload length %d", count, len(enc))
		}
		sum := body[len(body)-1]
		if !VerifyChecksum(span, sum) {
			return nil, corrupt(offset+len(body), "checksum 0x%02X, want 0x%02X", sum, Checksum(span))
		}
		raw, err := Decode7Bit(enc)
		if err != nil {
			return nil, corrupt(offset+9, "%v", err)
		}
		copy(msg.Address[:], body[5:8])
		msg.Encoded = append([]byte(nil), enc...)
		msg.Payload = raw

	case ParameterChange:
		if len(body) < 7 {
			return nil, corrupt(offset, "parameter change too short (%d bytes)", len(body))
		}
		copy(msg.Address[:], body[3:6])
		msg.Payload = append([]byte(nil), body[6:]...)

	case DumpRequest:
		if len(body) != 6 {
			return nil, corrupt(offset, "dump request has %d bytes, want 6", len(body))
		}
		copy(msg.Address[:], body[3:6])

	default:
		return nil, corrupt(offset+2, "unknown message type nibble 0x%X", uint8(msg.Kind))
	}
	return msg, nil
}

// Split parses every message in data, stopping at the first corrupt one.
func Split(data []byte) ([]*Message, error) {
	var msgs []*Message
	f := NewFramer(data)
	for {
		msg, err := f.Next()
		if err == io.EOF {
			return msgs, nil
		}
		if err != nil {
			return msgs, err
		}
		msgs = append(msgs, msg)
	}
}
