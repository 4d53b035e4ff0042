// Package validate checks pattern files, style dumps and patterns and
// reports what it finds without stopping at the first problem.
package validate

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/james-see/qybridge/pkg/address"
	"github.com/james-see/qybridge/pkg/converter/devices"
	"github.com/james-see/qybridge/pkg/pattern"
	"github.com/james-see/qybridge/pkg/sysex"
)

type Severity string

const (
	ERROR Severity = "ERROR"
	WARN  Severity = "WARN"
	INFO  Severity = "INFO"
)

// Finding is one validation result. Offset is -1 when the finding is not
// tied to a byte position.
type Finding struct {
	Severity Severity `json:"severity"`
	Area     string   `json:"area"`
	Offset   int      `json:"offset"`
	Message  string   `json:"message"`
}

func (f Finding) String() string {
	if f.Offset < 0 {
		return fmt.Sprintf("%-5s %s: %s", f.Severity, f.Area, f.Message)
	}
	return fmt.Sprintf("%-5s %s @0x%03X: %s", f.Severity, f.Area, f.Offset, f.Message)
}

type report []Finding

func (r *report) add(sev Severity, area string, offset int, format string, args ...any) {
	*r = append(*r, Finding{Severity: sev, Area: area, Offset: offset, Message: fmt.Sprintf(format, args...)})
}

// Strict returns a copy of findings with warnings raised to errors.
func Strict(findings []Finding) []Finding {
	out := make([]Finding, len(findings))
	for i, f := range findings {
		if f.Severity == WARN {
			f.Severity = ERROR
		}
		out[i] = f
	}
	return out
}

// HasErrors reports whether any finding is an error.
func HasErrors(findings []Finding) bool {
	return Count(findings, ERROR) > 0
}

// Count returns how many findings have the given severity.
func Count(findings []Finding, sev Severity) int {
	n := 0
	for _, f := range findings {
		if f.Severity == sev {
			n++
		}
	}
	return n
}

// Bytes validates data as a pattern file or a style dump, chosen by its
// leading bytes.
func Bytes(data []byte) []Finding {
	switch {
	case bytes.HasPrefix(data, []byte(devices.Magic[:6])):
		return Record(data)
	case len(data) > 0 && data[0] == sysex.Start:
		return Transport(data)
	case len(data) == devices.SmallFileSize || len(data) == devices.LargeFileSize:
		return Record(data)
	}
	var r report
	r.add(ERROR, "Format", 0, "neither a pattern file nor a SysEx stream")
	return r
}

// Record validates a .Q7P pattern file.
func Record(data []byte) []Finding {
	var r report

	l, ok := devices.LayoutOffsets(len(data))
	if !ok {
		r.add(ERROR, "File Size", 0, "%d bytes, want %d or %d", len(data), devices.SmallFileSize, devices.LargeFileSize)
		return r
	}
	if !bytes.Equal(data[:len(devices.Magic)], []byte(devices.Magic)) {
		r.add(ERROR, "Header", 0, "magic %q, want %q", data[:len(devices.Magic)], devices.Magic)
	}
	if flag := binary.BigEndian.Uint16(data[0x020:]); flag == 0 {
		r.add(WARN, "Pattern Flag", 0x020, "pattern flag is zero, file may be incomplete")
	}

	r.sections(data, l)
	r.configArea(data)

	if len(data) == devices.SmallFileSize {
		pad := data[0x180:0x188]
		switch {
		case bytes.Equal(pad, bytes.Repeat([]byte{' '}, len(pad))):
		case bytes.Equal(pad, make([]byte, len(pad))):
			r.add(ERROR, "Tempo Padding", 0x180, "all zeros instead of spaces")
		default:
			r.add(WARN, "Tempo Padding", 0x180, "%d non-space bytes", len(pad)-bytes.Count(pad, []byte{' '}))
		}
	}

	tempo := pattern.Tempo(binary.BigEndian.Uint16(data[l.Tempo:]))
	switch {
	case tempo == 0:
		r.add(WARN, "Tempo", l.Tempo, "tempo is zero")
	case !tempo.Plausible():
		r.add(WARN, "Tempo", l.Tempo, "%s BPM outside %s-%s", tempo, pattern.MinTempo, pattern.MaxTempo)
	}

	if raw := data[l.TimeSig]; !timeSigKnown(raw) {
		r.add(ERROR, "Time Signature", l.TimeSig, "unknown meter byte 0x%02X", raw)
	}

	name := bytes.TrimRight(data[l.Name:l.Name+l.NameLen], "\x00 ")
	for i, c := range name {
		if c < 0x20 || c > 0x7E {
			r.add(ERROR, "Name", l.Name+i, "byte 0x%02X is not printable", c)
		}
	}

	r.channels(data, l.Channels)
	for _, tbl := range devices.MixerTables {
		for t := 0; t < tbl.Count; t++ {
			if v := data[tbl.Offset(t)]; !tbl.InRange(v) {
				r.add(ERROR, tbl.Name, tbl.Offset(t), "track %d value %d outside 0-%d", t+1, v, tbl.Max)
			}
		}
	}

	r.fill(data, "Fill Area", l.Fill, 0xFE)
	r.fill(data, "Pad Area", l.Pad, 0xF8)
	return r
}

func timeSigKnown(raw byte) bool {
	_, ok := pattern.LookupTimeSignature(raw)
	return ok
}

func (r *report) sections(data []byte, l devices.Offsets) {
	active := 0
	for i := 0; i < l.Sections; i++ {
		ptr, _ := address.Pointer(data, i)
		off, ok := address.Resolve(ptr)
		if !ok {
			continue
		}
		if off+9 > len(data) {
			r.add(ERROR, "Section Pointers", address.PointerOffset(i), "%s pointer 0x%04X is past the end of the file", pattern.SectionName(i), ptr)
			continue
		}
		active++
	}
	if active == 0 {
		r.add(ERROR, "Section Pointers", address.PointerTableBase, "all %d sections are empty", l.Sections)
	}
}

func (r *report) configArea(data []byte) {
	area := data[0x120:0x180]
	switch {
	case bytes.Equal(area, make([]byte, len(area))):
		r.add(ERROR, "Section Config", 0x120, "config area is all zeros")
	case area[0] == 0x08 && area[1] == 0x04:
		r.add(ERROR, "Section Config", 0x120, "holds a QY70 track header instead of section records")
	case area[0] != 0xF0:
		r.add(WARN, "Section Config", 0x120, "unusual first byte 0x%02X", area[0])
	}
}

func (r *report) channels(data []byte, ch address.Table) {
	var marked []int
	for t := 0; t < ch.Count; t++ {
		v := data[ch.Offset(t)]
		switch {
		case !ch.InRange(v):
			r.add(ERROR, "Channels", ch.Offset(t), "track %d channel byte %d outside 0-%d", t+1, v, ch.Max)
		case v == 0x03:
			marked = append(marked, t+1)
		}
	}
	if len(marked) > 0 {
		// Raw 0x03 is either channel 4 or a marker shared by several tracks.
		r.add(WARN, "Channels", ch.Offset(marked[0]-1), "tracks %v use raw 0x03, which may be a group marker rather than channel 4", marked)
	}
}

func (r *report) fill(data []byte, area string, span [2]int, want byte) {
	if span[1] <= span[0] {
		return
	}
	if n := len(data[span[0]:span[1]]) - bytes.Count(data[span[0]:span[1]], []byte{want}); n > 0 {
		r.add(INFO, area, span[0], "%d bytes differ from 0x%02X", n, want)
	}
}

// Transport validates a style bulk dump message by message. Unlike the
// reader it keeps going after a corrupt message.
func Transport(data []byte) []Finding {
	var r report

	seen := make(map[byte]int)
	var (
		current byte
		open    bool
		header  []byte
		styled  int
	)

	f := sysex.NewFramer(data)
	for {
		msg, err := f.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			var cm *sysex.CorruptMessageError
			if errors.As(err, &cm) {
				r.add(ERROR, "Message", cm.Offset, "%s", cm.Reason)
				continue
			}
			r.add(ERROR, "Message", f.Offset(), "%v", err)
			break
		}
		if msg.Model != sysex.ModelQY70 {
			r.add(ERROR, "Model", msg.Offset+3, "model 0x%02X is not a QY70", msg.Model)
			continue
		}
		if msg.Kind != sysex.BulkData || !msg.Address.IsStyle() {
			continue
		}
		styled++

		al := msg.Address.Low()
		if first, ok := seen[al]; ok {
			if !open || al != current {
				r.add(ERROR, "Address", msg.Offset, "address 0x%02X repeated, first seen at 0x%X", al, first)
				continue
			}
		} else {
			seen[al] = msg.Offset
			current, open = al, true
		}
		if al == address.HeaderAddress {
			header = append(header, msg.Payload...)
		}
	}

	switch {
	case styled == 0:
		r.add(ERROR, "Style", -1, "no style bulk data")
	case header == nil:
		r.add(WARN, "Header", -1, "no header block, tempo is unknown")
	default:
		tempo, err := devices.HeaderTempo(header)
		switch {
		case err != nil:
			r.add(ERROR, "Tempo", -1, "%v", err)
		case !tempo.Plausible():
			r.add(WARN, "Tempo", -1, "%s BPM outside %s-%s", tempo, pattern.MinTempo, pattern.MaxTempo)
		}
	}
	return r
}

// Pattern validates a decoded pattern against the limits of its format.
func Pattern(p *pattern.Pattern) []Finding {
	var r report
	if p == nil {
		r.add(ERROR, "Pattern", -1, "nil pattern")
		return r
	}

	switch p.Format {
	case pattern.FormatTransport:
		if len(p.Sections) != pattern.TransportSections {
			r.add(ERROR, "Sections", -1, "%d sections, want %d", len(p.Sections), pattern.TransportSections)
		}
		if n := p.TrackCount(); n != pattern.TransportTracks {
			r.add(ERROR, "Tracks", -1, "%d tracks per section, want %d", n, pattern.TransportTracks)
		}
		if _, _, err := devices.EncodeTransportTempo(p.Tempo); err != nil {
			r.add(ERROR, "Tempo", -1, "%v", err)
		}
	case pattern.FormatRecord:
		if len(p.Sections) != pattern.RecordSections && len(p.Sections) != pattern.RecordSectionsExt {
			r.add(ERROR, "Sections", -1, "%d sections, want %d or %d", len(p.Sections), pattern.RecordSections, pattern.RecordSectionsExt)
		}
		if n := p.TrackCount(); n != pattern.RecordTracks {
			r.add(ERROR, "Tracks", -1, "%d tracks per section, want %d", n, pattern.RecordTracks)
		}
		if len(p.Name) > pattern.MaxNameLen {
			r.add(ERROR, "Name", -1, "%q is longer than %d characters", p.Name, pattern.MaxNameLen)
		}
	default:
		r.add(ERROR, "Format", -1, "unknown format")
	}

	if !p.Tempo.Plausible() {
		r.add(WARN, "Tempo", -1, "%s BPM outside %s-%s", p.Tempo, pattern.MinTempo, pattern.MaxTempo)
	}
	if _, ok := p.TimeSig.Raw(); !ok {
		r.add(ERROR, "Time Signature", -1, "%s has no device encoding", p.TimeSig)
	}
	if len(p.ActiveSections()) == 0 {
		r.add(ERROR, "Sections", -1, "no active section")
	}

	for i, s := range p.Sections {
		if s.Active && (s.Bars < 1 || s.Bars > pattern.MaxMixer) {
			r.add(ERROR, "Bars", -1, "%s has %d bars", pattern.SectionName(i), s.Bars)
		}
		for t, tr := range s.Tracks {
			name := fmt.Sprintf("%s %s", pattern.SectionName(i), pattern.TrackName(p.Format, t))
			if tr.Channel > pattern.MaxChannel {
				r.add(ERROR, "Channels", -1, "%s channel byte %d", name, tr.Channel)
			}
			for _, f := range []struct {
				field string
				v     uint8
			}{{"volume", tr.Volume}, {"pan", uint8(tr.Pan)}, {"reverb", tr.Reverb}, {"chorus", tr.Chorus}} {
				if f.v > pattern.MaxMixer {
					r.add(ERROR, "Mixer", -1, "%s %s %d outside 0-%d", name, f.field, f.v, pattern.MaxMixer)
				}
			}
		}
	}
	return r
}
