package sysex

import (
	"fmt"

	"gitlab.com/gomidi/midi/v2"
)

// Frame markers and identifiers
const (
	Start     = 0xF0
	End       = 0xF7
	YamahaID  = 0x43
	ModelQY70 = 0x5F
)

// MaxBlock is the largest raw payload the device puts in one bulk message.
const MaxBlock = 128

// maxEncoded is the largest byte count a 14-bit length field can carry.
const maxEncoded = 1<<14 - 1

// Kind is the message type carried in the high nibble of the type/device byte.
type Kind uint8

const (
	BulkData        Kind = 0x0
	ParameterChange Kind = 0x1
	DumpRequest     Kind = 0x2
)

func (k Kind) String() string {
	switch k {
	case BulkData:
		return "bulk"
	case ParameterChange:
		return "parameter"
	case DumpRequest:
		return "request"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Address is the AH AM AL triple.
type Address [3]byte

// Style data lives under AH=0x02 AM=0x7E.
var StyleBase = Address{0x02, 0x7E, 0x00}

// StyleAddress returns the style address whose low byte is al.
func StyleAddress(al byte) Address {
	return Address{StyleBase[0], StyleBase[1], al}
}

// IsStyle reports whether a addresses style data.
func (a Address) IsStyle() bool {
	return a[0] == StyleBase[0] && a[1] == StyleBase[1]
}

// Low returns the linear address byte.
func (a Address) Low() byte { return a[2] }

func (a Address) String() string {
	return fmt.Sprintf("%02X %02X %02X", a[0], a[1], a[2])
}

// Message is one parsed frame. Payload is decoded for bulk data and raw for
// the other kinds. Encoded holds the bulk payload as it appeared on the wire.
type Message struct {
	Kind    Kind
	Device  uint8
	Model   byte
	Address Address
	Payload []byte
	Encoded []byte
	Offset  int
}

// header returns the vendor, type/device and model bytes that open every
// message body.
func header(kind Kind, device uint8) []byte {
	return []byte{YamahaID, byte(kind)<<4 | device&0x0F, ModelQY70}
}

// BulkDump frames raw as a checksummed bulk data message.
func BulkDump(device uint8, addr Address, raw []byte) (midi.Message, error) {
	enc := Encode7Bit(raw)
	if len(enc) > maxEncoded {
		return nil, fmt.Errorf("sysex: %d bytes do not fit one bulk message", len(raw))
	}
	span := make([]byte, 0, 5+len(enc))
	span = append(span, byte(len(enc)>>7), byte(len(enc)&0x7F), addr[0], addr[1], addr[2])
	span = append(span, enc...)

	body := append(header(BulkData, device), span...)
	return midi.SysEx(append(body, Checksum(span))), nil
}

// ParameterChangeMessage frames a parameter change. These carry no checksum.
func ParameterChangeMessage(device uint8, addr Address, data ...byte) midi.Message {
	body := append(header(ParameterChange, device), addr[:]...)
	return midi.SysEx(append(body, data...))
}

// DumpRequestMessage frames a request for the bulk data at addr.
func DumpRequestMessage(device uint8, addr Address) midi.Message {
	return midi.SysEx(append(header(DumpRequest, device), addr[:]...))
}

// InitMessage opens a bulk transfer on the device.
func InitMessage(device uint8) midi.Message {
	return ParameterChangeMessage(device, Address{}, 0x01)
}

// CloseMessage ends a bulk transfer.
func CloseMessage(device uint8) midi.Message {
	return ParameterChangeMessage(device, Address{}, 0x00)
}
