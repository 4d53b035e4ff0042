package pattern

import (
	"fmt"
	"math"
)

// Tempo is a tempo in tenths of a beat per minute.
type Tempo uint16

// TempoFromBPM rounds bpm to the nearest tenth.
func TempoFromBPM(bpm float64) (Tempo, error) {
	t := math.Round(bpm * 10)
	if t < 0 || t > math.MaxUint16 {
		return 0, &TempoOutOfRangeError{Reason: fmt.Sprintf("%.1f BPM outside the model range", bpm)}
	}
	return Tempo(t), nil
}

// BPM returns the tempo in beats per minute.
func (t Tempo) BPM() float64 {
	return float64(t) / 10
}

// Whole returns the tempo in whole BPM. ok is false when t has a fractional
// part.
func (t Tempo) Whole() (bpm int, ok bool) {
	return int(t / 10), t%10 == 0
}

func (t Tempo) String() string {
	return fmt.Sprintf("%d.%d", t/10, t%10)
}

// Plausible device tempo range, in tenths.
const (
	MinTempo = Tempo(200)
	MaxTempo = Tempo(3000)
)

// Plausible reports whether t lies inside the device range.
func (t Tempo) Plausible() bool {
	return t >= MinTempo && t <= MaxTempo
}

var timeSignatures = []struct {
	raw byte
	ts  TimeSignature
}{
	{0x0C, TimeSignature{2, 4}},
	{0x14, TimeSignature{3, 4}},
	{0x1C, TimeSignature{4, 4}},
	{0x24, TimeSignature{5, 4}},
	{0x2C, TimeSignature{6, 4}},
	{0x1A, TimeSignature{3, 8}},
	{0x22, TimeSignature{6, 8}},
	{0x32, TimeSignature{12, 8}},
}

// LookupTimeSignature resolves a raw meter byte.
func LookupTimeSignature(raw byte) (TimeSignature, bool) {
	for _, e := range timeSignatures {
		if e.raw == raw {
			return e.ts, true
		}
	}
	return TimeSignature{}, false
}

// Raw returns the meter byte for ts.
func (ts TimeSignature) Raw() (byte, bool) {
	for _, e := range timeSignatures {
		if e.ts == ts {
			return e.raw, true
		}
	}
	return 0, false
}
