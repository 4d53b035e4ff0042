package devices

import (
	"fmt"

	"github.com/james-see/qybridge/pkg/pattern"
	"github.com/james-see/qybridge/pkg/sysex"
)

// Header block
const (
	HeaderSize   = 640
	headerBlocks = HeaderSize / sysex.MaxBlock
)

// Tempo is stored as a range byte and an offset byte:
// bpm = range*95 - 133 + offset.
const (
	tempoStep = 95
	tempoBase = 133
)

// TransportTempo decodes the tempo byte pair.
func TransportTempo(rangeByte, offset byte) int {
	return int(rangeByte)*tempoStep - tempoBase + int(offset)
}

// EncodeTransportTempo picks the smallest range byte that places bpm within
// reach of a 7-bit offset.
func EncodeTransportTempo(t pattern.Tempo) (rangeByte, offset byte, err error) {
	bpm, whole := t.Whole()
	if !whole {
		return 0, 0, &pattern.TempoOutOfRangeError{Tempo: t, Reason: "bulk dumps store whole BPM only"}
	}
	for r := 1; r <= 0x7F; r++ {
		off := bpm - (r*tempoStep - tempoBase)
		if off >= 0 && off <= 0x7F {
			return byte(r), byte(off), nil
		}
	}
	return 0, 0, &pattern.TempoOutOfRangeError{Tempo: t, Reason: "no range byte reaches it"}
}

// HeaderTempo reads the tempo from the start of a decoded header block. The
// range byte is the packing header of the first encoded group and the offset
// byte is the first encoded data byte.
func HeaderTempo(header []byte) (pattern.Tempo, error) {
	if len(header) < 1 {
		return 0, fmt.Errorf("header block is empty")
	}
	group := sysex.Encode7Bit(header[:min(7, len(header))])
	bpm := TransportTempo(group[0], group[1])
	if bpm < 0 || bpm*10 > 0xFFFF {
		return 0, &pattern.FieldRangeError{Field: "tempo", Offset: 0, Value: bpm, Max: 0xFFFF / 10}
	}
	return pattern.Tempo(bpm * 10), nil
}

// setHeaderTempo writes t into the first group of header.
func setHeaderTempo(header []byte, t pattern.Tempo) error {
	rangeByte, offset, err := EncodeTransportTempo(t)
	if err != nil {
		return err
	}
	group := sysex.Encode7Bit(header[:7])
	group[0], group[1] = rangeByte, offset
	raw, err := sysex.Decode7Bit(group)
	if err != nil {
		return err
	}
	copy(header, raw)
	return nil
}

var headerFill = []byte{0xBF, 0xDF, 0xEF, 0xF7, 0xFB, 0xFD, 0xFE}

// defaultHeader returns the header block the device sends for an empty
// style, with a 120 BPM tempo.
func defaultHeader() []byte {
	h := make([]byte, HeaderSize)
	for _, r := range [][2]int{{0x00F, 0x080}, {0x137, 0x1B9}, {0x1B9, 0x21C}} {
		for i := r[0]; i < r[1]; i++ {
			h[i] = headerFill[(i-r[0])%len(headerFill)]
		}
	}
	copy(h[0x080:], []byte{0x03, 0x01, 0x40, 0x60, 0x30})
	if err := setHeaderTempo(h, pattern.DefaultTempo); err != nil {
		panic(fmt.Sprintf("qy70: default tempo: %v", err))
	}
	return h
}
