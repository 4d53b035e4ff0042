package devices

import (
	"bytes"

	"github.com/james-see/qybridge/pkg/address"
	"github.com/james-see/qybridge/pkg/pattern"
)

// QY700 pattern file constants
const (
	Magic         = "YQ7PAT     V1.00"
	SmallFileSize = 3072
	LargeFileSize = 5120

	offPatternNumber = 0x010
	offPatternFlags  = 0x020
	offSizeMarker    = 0x030
	offTrackNumbers  = 0x1DC

	// Section config records live between the pointer table and the tempo
	// padding. Each is F0 00 FB pp 00 tt C0 bars F2; the list ends with F1.
	configAreaStart  = 0x120
	configAreaEnd    = 0x180
	configRecordLen  = 9
	configBarsOffset = 7
	configStart      = 0xF0
	configEnd        = 0xF1
	configFill       = 0x40

	offTempoPad = 0x180
	tempoPadLen = 8
	namePad     = 0x40

	fillByte = 0xFE
	padByte  = 0xF8
)

// layout holds the offsets that differ between the two file sizes.
type layout struct {
	size     int
	sections int
	name     int
	nameLen  int
	tempo    int
	timeSig  int
	channels int
	fill     [2]int
	pad      [2]int
}

var (
	smallLayout = layout{
		size:     SmallFileSize,
		sections: pattern.RecordSections,
		name:     0x876,
		nameLen:  pattern.MaxNameLen,
		tempo:    0x188,
		timeSig:  0x18A,
		channels: 0x190,
		fill:     [2]int{0x9C0, 0xB10},
		pad:      [2]int{0xB10, 0xC00},
	}
	largeLayout = layout{
		size:     LargeFileSize,
		sections: pattern.RecordSectionsExt,
		name:     0xA00,
		nameLen:  8, // the tempo follows at 0xA08
		tempo:    0xA08,
		timeSig:  0xA0A,
		channels: 0xA18,
	}
)

func layoutFor(size int) (layout, bool) {
	switch size {
	case SmallFileSize:
		return smallLayout, true
	case LargeFileSize:
		return largeLayout, true
	}
	return layout{}, false
}

// channelTable returns the channel table. Only the first eight roles have
// a confirmed channel byte.
func (l layout) channelTable() address.Table {
	return address.Table{Name: "channel", Base: l.channels, Stride: 1, Count: 8, Max: pattern.MaxChannel}
}

// Mixer tables hold one entry per track and are shared by all sections.
var (
	VolumeTable = address.Table{Name: "volume", Base: 0x226, Stride: 1, Count: pattern.RecordTracks, Max: pattern.MaxMixer, Default: pattern.DefaultVolume}
	ChorusTable = address.Table{Name: "chorus", Base: 0x246, Stride: 1, Count: pattern.RecordTracks, Max: pattern.MaxMixer, Default: pattern.DefaultChorus}
	ReverbTable = address.Table{Name: "reverb", Base: 0x256, Stride: 1, Count: pattern.RecordTracks, Max: pattern.MaxMixer, Default: pattern.DefaultReverb}
	PanTable    = address.Table{Name: "pan", Base: 0x276, Stride: 1, Count: pattern.RecordTracks, Max: pattern.MaxMixer, Default: pattern.DefaultPan}
)

// MixerTables lists every mixer table in file order.
var MixerTables = []address.Table{VolumeTable, ChorusTable, ReverbTable, PanTable}

// mixerField returns a pointer to the track field a table stores.
func mixerField(tr *pattern.Track, t address.Table) *uint8 {
	switch t.Base {
	case VolumeTable.Base:
		return &tr.Volume
	case ChorusTable.Base:
		return &tr.Chorus
	case ReverbTable.Base:
		return &tr.Reverb
	default:
		return (*uint8)(&tr.Pan)
	}
}

// canonicalConfig is the record the device writes for a fresh section.
func canonicalConfig(section, bars int) []byte {
	return []byte{configStart, 0x00, 0xFB, byte(section), 0x00, byte(section), 0xC0, byte(bars), 0xF2}
}

// isConfig reports whether a config record starts at off.
func isConfig(data []byte, off int) bool {
	return off >= 0 && off+configRecordLen <= len(data) && data[off] == configStart && data[off+1] == 0x00
}

// Offsets lists where the confirmed fields of a pattern file live.
type Offsets struct {
	Sections int
	Name     int
	NameLen  int
	Tempo    int
	TimeSig  int
	Channels address.Table
	// Fill and Pad are empty for the extended layout.
	Fill [2]int
	Pad  [2]int
}

// LayoutOffsets returns the field offsets for a file of the given size.
func LayoutOffsets(size int) (Offsets, bool) {
	l, ok := layoutFor(size)
	if !ok {
		return Offsets{}, false
	}
	return Offsets{
		Sections: l.sections,
		Name:     l.name,
		NameLen:  l.nameLen,
		Tempo:    l.tempo,
		TimeSig:  l.timeSig,
		Channels: l.channelTable(),
		Fill:     l.fill,
		Pad:      l.pad,
	}, true
}

// nameSpan returns the name bytes of a file with layout l.
func (l layout) nameSpan(data []byte) []byte {
	return data[l.name : l.name+l.nameLen]
}

// decodeName reads a space or NUL padded name starting at off.
func decodeName(raw []byte, off int) (string, error) {
	name := bytes.TrimRight(raw, "\x00 ")
	for i, c := range name {
		if c < 0x20 || c > 0x7E {
			return "", &pattern.FieldRangeError{Field: "name", Offset: off + i, Value: int(c), Min: 0x20, Max: 0x7E}
		}
	}
	return string(name), nil
}
