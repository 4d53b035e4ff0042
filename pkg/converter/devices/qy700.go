package devices

import (
	"bytes"
	_ "embed"
	"encoding/binary"
	"errors"
	"fmt"
	"log"

	"github.com/james-see/qybridge/pkg/address"
	"github.com/james-see/qybridge/pkg/pattern"
)

//go:embed templates/default.q7p
var defaultTemplate []byte

// DefaultTemplate returns a copy of a known-good empty pattern file.
func DefaultTemplate() []byte {
	return append([]byte(nil), defaultTemplate...)
}

// Fidelity tells how much of a written pattern file is trustworthy.
type Fidelity int

const (
	// FidelityTemplate output only differs from a known-good file in
	// confirmed fields.
	FidelityTemplate Fidelity = iota
	// FidelityDefaults output was built without a template; unconfirmed
	// regions hold fill bytes.
	FidelityDefaults
)

func (f Fidelity) String() string {
	if f == FidelityDefaults {
		return "defaults"
	}
	return "template"
}

// Record is a written pattern file.
type Record struct {
	Data     []byte
	Fidelity Fidelity
}

// QY700 reads and writes Yamaha QY700 .Q7P pattern files.
type QY700 struct {
	// RequireTemplate refuses to write without a template.
	RequireTemplate bool
	Logger          *log.Logger
}

// NewQY700 creates a new QY700 handler
func NewQY700() *QY700 {
	return &QY700{}
}

// Name returns the device name
func (q *QY700) Name() string {
	return "Yamaha QY700"
}

// Format returns the encoding handled by the device
func (q *QY700) Format() pattern.Format {
	return pattern.FormatRecord
}

func (q *QY700) logf(format string, args ...any) {
	if q.Logger != nil {
		q.Logger.Printf(format, args...)
	}
}

func invalidHeader(format string, args ...any) error {
	return &pattern.InvalidHeaderError{Format: pattern.FormatRecord, Reason: fmt.Sprintf(format, args...)}
}

// Read parses a .Q7P file into a Pattern
func (q *QY700) Read(data []byte) (*pattern.Pattern, error) {
	l, ok := layoutFor(len(data))
	if !ok {
		return nil, invalidHeader("size %d, want %d or %d", len(data), SmallFileSize, LargeFileSize)
	}
	if !bytes.Equal(data[:len(Magic)], []byte(Magic)) {
		return nil, invalidHeader("magic %q, want %q", data[:len(Magic)], Magic)
	}

	p := pattern.New(pattern.FormatRecord, l.sections)
	p.Number = data[offPatternNumber]

	name, err := decodeName(l.nameSpan(data), l.name)
	if err != nil {
		return nil, err
	}
	p.Name = name
	p.HasName = true

	p.Tempo = pattern.Tempo(binary.BigEndian.Uint16(data[l.tempo:]))

	ts, ok := pattern.LookupTimeSignature(data[l.timeSig])
	if !ok {
		return nil, &pattern.FieldRangeError{Field: "time signature", Offset: l.timeSig, Value: int(data[l.timeSig])}
	}
	p.TimeSig = ts

	tracks, err := readMixer(data, l)
	if err != nil {
		return nil, err
	}

	for i := range p.Sections {
		sec := &p.Sections[i]
		for t := range sec.Tracks {
			sec.Tracks[t] = tracks[t].Clone()
		}

		ptr, _ := address.Pointer(data, i)
		off, active := address.Resolve(ptr)
		if !active {
			continue
		}
		if off+configRecordLen > len(data) {
			return nil, &pattern.FieldRangeError{Field: "section pointer", Offset: address.PointerOffset(i), Value: int(ptr), Max: len(data) - configRecordLen - address.PointerTableBase}
		}
		sec.Active = true
		if isConfig(data, off) {
			bars := int(data[off+configBarsOffset])
			if bars < 1 || bars > pattern.MaxMixer {
				return nil, &pattern.FieldRangeError{Field: "bars", Offset: off + configBarsOffset, Value: bars, Min: 1, Max: pattern.MaxMixer}
			}
			sec.Bars = bars
		}
	}
	return p, nil
}

// readMixer decodes the pattern-wide channel and mixer tables.
func readMixer(data []byte, l layout) ([]pattern.Track, error) {
	tracks := make([]pattern.Track, pattern.RecordTracks)
	ch := l.channelTable()
	for t := range tracks {
		tracks[t] = pattern.NewTrack(t)
		if t < ch.Count {
			v, err := ch.Read(data, t)
			if err != nil {
				return nil, err
			}
			if !ch.InRange(v) {
				return nil, &pattern.FieldRangeError{Field: ch.Name, Offset: ch.Offset(t), Value: int(v), Max: int(ch.Max)}
			}
			tracks[t].Channel = pattern.Channel(v)
		}
		for _, tbl := range MixerTables {
			v, err := tbl.Read(data, t)
			if err != nil {
				return nil, err
			}
			if !tbl.InRange(v) {
				return nil, &pattern.FieldRangeError{Field: tbl.Name, Offset: tbl.Offset(t), Value: int(v), Max: int(tbl.Max)}
			}
			*mixerField(&tracks[t], tbl) = v
		}
	}
	return tracks, nil
}

// Write generates a .Q7P file from a Pattern, using its Template when set
func (q *QY700) Write(p *pattern.Pattern) ([]byte, error) {
	rec, err := q.Encode(p, p.Template)
	if err != nil {
		return nil, err
	}
	return rec.Data, nil
}

// Encode writes p over a copy of template, touching only fields whose value
// differs from the template's. Without a template a small file is built from
// device defaults and flagged FidelityDefaults.
func (q *QY700) Encode(p *pattern.Pattern, template []byte) (*Record, error) {
	if p == nil {
		return nil, errors.New("nil pattern")
	}

	rec := &Record{Fidelity: FidelityTemplate}
	if template == nil {
		if q.RequireTemplate {
			return nil, pattern.ErrTemplateRequired
		}
		if len(p.Sections) > pattern.RecordSections {
			return nil, fmt.Errorf("qy700: %d sections need the extended layout: %w", len(p.Sections), pattern.ErrTemplateRequired)
		}
		rec.Data = skeleton()
		rec.Fidelity = FidelityDefaults
		q.logf("qy700: no template, unconfirmed regions filled with 0x%02X", fillByte)
	} else {
		rec.Data = append([]byte(nil), template...)
	}
	buf := rec.Data

	base, err := q.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("qy700: template: %w", err)
	}
	l, _ := layoutFor(len(buf))
	if len(p.Sections) > l.sections {
		return nil, fmt.Errorf("qy700: %d sections in a %d-section file: %w", len(p.Sections), l.sections, pattern.ErrLayout)
	}
	if n := p.TrackCount(); n != pattern.RecordTracks {
		return nil, fmt.Errorf("qy700: %d tracks per section: %w", n, pattern.ErrLayout)
	}

	if p.HasName && p.Name != base.Name {
		name := p.Name
		if len(name) > l.nameLen {
			q.logf("qy700: name %q cut to %d characters", name, l.nameLen)
			name = name[:l.nameLen]
		}
		if err := base.SetName(name); err != nil {
			return nil, err
		}
		copy(l.nameSpan(buf), fmt.Sprintf("%-*s", l.nameLen, name))
	}
	if p.Number != base.Number {
		buf[offPatternNumber] = p.Number
	}
	if p.Tempo != base.Tempo {
		binary.BigEndian.PutUint16(buf[l.tempo:], uint16(p.Tempo))
	}
	if p.TimeSig != base.TimeSig {
		raw, ok := p.TimeSig.Raw()
		if !ok {
			return nil, fmt.Errorf("qy700: time signature %s has no encoding", p.TimeSig)
		}
		buf[l.timeSig] = raw
	}

	if err := writeMixer(buf, l, p.MixerSection(), base.MixerSection()); err != nil {
		return nil, err
	}

	for i, s := range p.Sections {
		b := base.Sections[i]
		switch {
		case !s.Active && b.Active:
			address.PutPointer(buf, i, address.EmptyPointer)
		case s.Active && !b.Active:
			if err := activate(buf, i, p.Sections); err != nil {
				return nil, err
			}
		case s.Active && s.Bars != b.Bars:
			ptr, _ := address.Pointer(buf, i)
			off, _ := address.Resolve(ptr)
			if !isConfig(buf, off) {
				q.logf("qy700: section %d has no config record, bar count %d not stored", i, s.Bars)
				continue
			}
			if s.Bars < 1 || s.Bars > pattern.MaxMixer {
				return nil, &pattern.FieldRangeError{Field: "bars", Offset: off + configBarsOffset, Value: s.Bars, Min: 1, Max: pattern.MaxMixer}
			}
			buf[off+configBarsOffset] = byte(s.Bars)
		}
	}
	return rec, nil
}

func writeMixer(buf []byte, l layout, mix, base *pattern.Section) error {
	ch := l.channelTable()
	for t := range mix.Tracks {
		tr, bt := &mix.Tracks[t], &base.Tracks[t]
		if t < ch.Count && tr.Channel != bt.Channel {
			if !ch.InRange(byte(tr.Channel)) {
				return &pattern.FieldRangeError{Field: ch.Name, Offset: ch.Offset(t), Value: int(tr.Channel), Max: int(ch.Max)}
			}
			buf[ch.Offset(t)] = byte(tr.Channel)
		}
		for _, tbl := range MixerTables {
			v := *mixerField(tr, tbl)
			if v == *mixerField(bt, tbl) {
				continue
			}
			if !tbl.InRange(v) {
				return &pattern.FieldRangeError{Field: tbl.Name, Offset: tbl.Offset(t), Value: int(v), Max: int(tbl.Max)}
			}
			buf[tbl.Offset(t)] = v
		}
	}
	return nil
}

// configSlot returns the canonical config record offset of a section.
func configSlot(section int) (int, bool) {
	off := configAreaStart + section*configRecordLen
	return off, off+configRecordLen <= configAreaEnd
}

func slotFree(buf []byte, off int) bool {
	return buf[off] == configFill || buf[off] == configEnd
}

// Activatable reports which sections could be switched on in template.
// A section can be activated when it is already active or when every
// config slot up to its own holds a record or is free.
func Activatable(template []byte, sections int) []bool {
	out := make([]bool, sections)
	if _, ok := layoutFor(len(template)); !ok {
		return out
	}
	contiguous := true
	for i := range out {
		ptr, _ := address.Pointer(template, i)
		_, active := address.Resolve(ptr)

		off, fits := configSlot(i)
		own := fits && isConfig(template, off)
		if !fits || !(own || slotFree(template, off)) {
			contiguous = false
		}
		out[i] = active || (contiguous && (!own || template[off+3] == byte(i)))
	}
	return out
}

// activate points section i at its canonical config record, writing any
// missing records up to and including its slot.
func activate(buf []byte, i int, sections []pattern.Section) error {
	last := -1
	for j := 0; j <= i; j++ {
		off, fits := configSlot(j)
		if !fits {
			return fmt.Errorf("qy700: no config slot for section %d: %w", j, pattern.ErrLayout)
		}
		switch {
		case isConfig(buf, off):
		case slotFree(buf, off):
			bars := pattern.DefaultBars
			if j < len(sections) && sections[j].Bars > 0 {
				bars = sections[j].Bars
			}
			copy(buf[off:], canonicalConfig(j, bars))
			last = off + configRecordLen
		default:
			return fmt.Errorf("qy700: config slot of section %d is occupied: %w", j, pattern.ErrLayout)
		}
	}
	if last >= 0 && last < configAreaEnd && buf[last] == configFill {
		buf[last] = configEnd
	}

	off, _ := configSlot(i)
	if buf[off+3] != byte(i) {
		return fmt.Errorf("qy700: config slot of section %d belongs to phrase %d: %w", i, buf[off+3], pattern.ErrLayout)
	}
	if bars := sections[i].Bars; bars >= 1 && bars <= pattern.MaxMixer {
		buf[off+configBarsOffset] = byte(bars)
	}
	ptr, err := address.Relative(off)
	if err != nil {
		return err
	}
	address.PutPointer(buf, i, ptr)
	return nil
}

// skeleton builds a small pattern file from documented defaults. Regions
// with unknown meaning hold the fill byte.
func skeleton() []byte {
	buf := bytes.Repeat([]byte{fillByte}, SmallFileSize)
	l := smallLayout

	clear(buf[:address.PointerTableBase])
	copy(buf, Magic)
	copy(buf[offPatternFlags:], []byte{0x00, 0x01})
	copy(buf[offSizeMarker:], []byte{0x09, 0x90})

	for i := 0; i < 16; i++ {
		address.PutPointer(buf, i, address.EmptyPointer)
	}
	for i := configAreaStart; i < configAreaEnd; i++ {
		buf[i] = configFill
	}
	for i := 0; i < l.sections; i++ {
		off, _ := configSlot(i)
		copy(buf[off:], canonicalConfig(i, pattern.DefaultBars))
	}
	end, _ := configSlot(l.sections)
	buf[end] = configEnd

	copy(buf[offTempoPad:], bytes.Repeat([]byte{' '}, tempoPadLen))
	binary.BigEndian.PutUint16(buf[l.tempo:], uint16(pattern.DefaultTempo))
	raw, _ := pattern.TimeSignature{Num: 4, Den: 4}.Raw()
	buf[l.timeSig] = raw
	clear(buf[l.timeSig+1 : l.channels])

	ch := l.channelTable()
	for t := 0; t < ch.Count; t++ {
		buf[ch.Offset(t)] = byte(pattern.DefaultChannel(t))
	}
	for i := ch.End(); i < offTrackNumbers; i++ {
		buf[i] = ' '
	}
	for t := 0; t < 8; t++ {
		buf[offTrackNumbers+t] = byte(t)
	}
	for _, tbl := range MixerTables {
		for t := 0; t < tbl.Count; t++ {
			buf[tbl.Offset(t)] = tbl.Default
		}
	}

	for i := l.name - 6; i < l.name; i++ {
		buf[i] = namePad
	}
	copy(l.nameSpan(buf), bytes.Repeat([]byte{' '}, l.nameLen))
	for i := l.pad[0]; i < l.pad[1]; i++ {
		buf[i] = padByte
	}
	return buf
}
