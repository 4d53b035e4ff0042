// Package devices provides the readers and writers for each sequencer's
// pattern encoding.
package devices

import (
	"errors"
	"fmt"
	"io"
	"log"

	"github.com/james-see/qybridge/pkg/address"
	"github.com/james-see/qybridge/pkg/pattern"
	"github.com/james-see/qybridge/pkg/sysex"
)

// Track block layout
const (
	TrackHeaderSize = 24
	voiceOffset     = 14
	panFlagOffset   = 21
	panOffset       = 22
	panValid        = 0x41
)

var (
	trackPreamble = []byte{0x08, 0x04, 0x82, 0x01, 0x00, 0x40, 0x20, 0x08, 0x04, 0x82, 0x01, 0x00, 0x06, 0x1C}

	drumVoice  = [2]byte{0x40, 0x80}
	bassMarker = [2]byte{0x00, 0x04}

	drumRole   = []byte{0x87, 0xF8, 0x80, 0x8E, 0x83}
	bassRole   = []byte{0x07, 0x78, 0x00, 0x07, 0x12}
	melodyRole = []byte{0x07, 0x78, 0x00, 0x0F, 0x10}

	// emptyEvents is what the device stores for a track with no phrase.
	emptyEvents = []byte{0x1F, 0xA3, 0x60, 0x00, 0xDF, 0x77, 0xC0, 0x8F}
)

const bassTrack = 2

// QY70 reads and writes Yamaha QY70 style bulk dumps.
type QY70 struct {
	// DeviceNumber is the device nibble used when writing.
	DeviceNumber uint8
	// SkipCorrupt drops corrupt messages instead of failing the read.
	SkipCorrupt bool
	Logger      *log.Logger
}

// NewQY70 creates a new QY70 handler
func NewQY70() *QY70 {
	return &QY70{}
}

// Name returns the device name
func (q *QY70) Name() string {
	return "Yamaha QY70"
}

// Format returns the encoding handled by the device
func (q *QY70) Format() pattern.Format {
	return pattern.FormatTransport
}

func (q *QY70) logf(format string, args ...any) {
	if q.Logger != nil {
		q.Logger.Printf(format, args...)
	}
}

// block is the payload collected for one linear address.
type block struct {
	offset int
	data   []byte
}

// collect groups the bulk data messages of a style dump by linear address.
// Messages for one address must be contiguous; an address that reappears
// after another address was seen is a structural error. Messages other than
// style bulk data never reach the accumulator.
func (q *QY70) collect(data []byte) (map[byte]*block, error) {
	blocks := make(map[byte]*block)
	var (
		current byte
		open    bool
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
			if q.SkipCorrupt && errors.As(err, &cm) {
				q.logf("qy70: skipping %v", err)
				continue
			}
			return nil, err
		}
		if msg.Model != sysex.ModelQY70 {
			return nil, &pattern.InvalidHeaderError{Format: pattern.FormatTransport, Reason: fmt.Sprintf("model 0x%02X at offset 0x%X is not a QY70", msg.Model, msg.Offset)}
		}
		if msg.Kind != sysex.BulkData {
			q.logf("qy70: ignoring %s message at offset 0x%X", msg.Kind, msg.Offset)
			continue
		}
		if !msg.Address.IsStyle() {
			q.logf("qy70: ignoring bulk data for %s", msg.Address)
			continue
		}
		styled++

		al := msg.Address.Low()
		if b, seen := blocks[al]; seen {
			if !open || al != current {
				return nil, &sysex.CorruptMessageError{
					Offset: msg.Offset,
					Reason: fmt.Sprintf("address 0x%02X repeated after first block at 0x%X", al, b.offset),
				}
			}
			b.data = append(b.data, msg.Payload...)
			continue
		}
		blocks[al] = &block{offset: msg.Offset, data: append([]byte(nil), msg.Payload...)}
		current, open = al, true
	}

	if styled == 0 {
		return nil, &pattern.InvalidHeaderError{Format: pattern.FormatTransport, Reason: "no style bulk data"}
	}
	return blocks, nil
}

// Read parses a style bulk dump into a Pattern
func (q *QY70) Read(data []byte) (*pattern.Pattern, error) {
	blocks, err := q.collect(data)
	if err != nil {
		return nil, err
	}

	p := pattern.New(pattern.FormatTransport, pattern.TransportSections)

	if hb, ok := blocks[address.HeaderAddress]; ok {
		tempo, err := HeaderTempo(hb.data)
		if err != nil {
			return nil, err
		}
		p.Tempo = tempo
		p.Header = hb.data
	} else {
		q.logf("qy70: no header block, tempo defaults to %s", p.Tempo)
	}

	for al, b := range blocks {
		section, track, header := address.Split(al)
		if header {
			continue
		}
		if section >= len(p.Sections) {
			q.logf("qy70: ignoring block at unknown address 0x%02X", al)
			continue
		}
		tr, err := decodeTrack(track, b)
		if err != nil {
			return nil, err
		}
		p.Sections[section].Active = true
		p.Sections[section].Tracks[track] = tr
	}
	return p, nil
}

func decodeTrack(index int, b *block) (pattern.Track, error) {
	tr := pattern.NewTrack(index)
	if len(b.data) < TrackHeaderSize {
		return tr, &sysex.CorruptMessageError{
			Offset: b.offset,
			Reason: fmt.Sprintf("track block of %d bytes is shorter than its header", len(b.data)),
		}
	}
	tr.Header = b.data[:TrackHeaderSize:TrackHeaderSize]
	tr.Events = b.data[TrackHeaderSize:]

	voice, err := decodeVoice(index, tr.Header)
	if err != nil {
		return tr, err
	}
	tr.Voice = voice

	if tr.Header[panFlagOffset] == panValid {
		pan := tr.Header[panOffset]
		if pan > pattern.MaxMixer {
			return tr, &pattern.FieldRangeError{Field: "pan", Offset: panOffset, Value: int(pan), Max: pattern.MaxMixer}
		}
		tr.Pan = pattern.Pan(pan)
	}
	return tr, nil
}

func decodeVoice(index int, h []byte) (*pattern.Voice, error) {
	v := [2]byte{h[voiceOffset], h[voiceOffset+1]}
	switch {
	case v == drumVoice:
		return &pattern.Voice{Default: true}, nil
	case v == bassMarker && index == bassTrack:
		// The bass voice lives elsewhere in the block.
		return nil, nil
	}
	for i, b := range v {
		if b > pattern.MaxMixer {
			return nil, &pattern.FieldRangeError{Field: "voice", Offset: voiceOffset + i, Value: int(b), Max: pattern.MaxMixer}
		}
	}
	return &pattern.Voice{BankMSB: v[0], Program: v[1]}, nil
}

// encodeVoice returns the voice bytes for a track. Rhythm tracks always
// use the drum kit marker.
func encodeVoice(index int, v *pattern.Voice) [2]byte {
	switch {
	case pattern.IsRhythm(index):
		return drumVoice
	case v == nil || v.Default:
		if index == bassTrack {
			return bassMarker
		}
		return drumVoice
	default:
		return [2]byte{v.BankMSB & 0x7F, v.Program & 0x7F}
	}
}

// trackHeader builds the 24-byte block header of a track from scratch.
func trackHeader(index int, tr *pattern.Track) []byte {
	h := make([]byte, 0, TrackHeaderSize)
	h = append(h, trackPreamble...)
	v := encodeVoice(index, tr.Voice)
	h = append(h, v[0], v[1])
	switch {
	case pattern.IsRhythm(index):
		h = append(h, drumRole...)
	case index == bassTrack:
		h = append(h, bassRole...)
	default:
		h = append(h, melodyRole...)
	}
	h = append(h, 0x00, 0x00, 0x00)
	if tr.Pan != pattern.DefaultPan {
		h[panFlagOffset], h[panOffset] = panValid, byte(tr.Pan)
	}
	return h
}

// trackData returns the bytes stored at a track's address. A header taken
// from a dump is kept and only patched where the model disagrees with it.
func (q *QY70) trackData(index int, tr *pattern.Track) []byte {
	var h []byte
	if len(tr.Header) == TrackHeaderSize {
		h = append([]byte(nil), tr.Header...)
		decoded, err := decodeTrack(index, &block{data: h})
		if err != nil || !sameVoice(decoded.Voice, tr.Voice) {
			v := encodeVoice(index, tr.Voice)
			h[voiceOffset], h[voiceOffset+1] = v[0], v[1]
		}
		if err != nil || decoded.Pan != tr.Pan {
			h[panFlagOffset], h[panOffset] = panValid, byte(tr.Pan)
		}
	} else {
		h = trackHeader(index, tr)
	}
	if pattern.IsRhythm(index) && tr.Voice != nil && !tr.Voice.Default {
		q.logf("qy70: rhythm track %d voice %s replaced by the drum kit marker", index, tr.Voice)
	}

	out := append(h, tr.Events...)
	if len(tr.Events) == 0 {
		out = append(out, emptyEvents...)
	}
	if len(out) < sysex.MaxBlock {
		out = append(out, make([]byte, sysex.MaxBlock-len(out))...)
	}
	return out
}

func sameVoice(a, b *pattern.Voice) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Default || b.Default {
		return a.Default == b.Default
	}
	return a.BankMSB == b.BankMSB && a.Program == b.Program
}

// Write generates a style bulk dump from a Pattern
func (q *QY70) Write(p *pattern.Pattern) ([]byte, error) {
	if p == nil {
		return nil, errors.New("nil pattern")
	}
	if len(p.Sections) > pattern.TransportSections {
		return nil, fmt.Errorf("qy70: %d sections: %w", len(p.Sections), pattern.ErrLayout)
	}
	if n := p.TrackCount(); n != pattern.TransportTracks {
		return nil, fmt.Errorf("qy70: %d tracks per section: %w", n, pattern.ErrLayout)
	}

	var out []byte
	out = append(out, sysex.InitMessage(q.DeviceNumber)...)

	for s, sec := range p.Sections {
		if !sec.Active {
			continue
		}
		for t := range sec.Tracks {
			al, err := address.Linear(s, t)
			if err != nil {
				return nil, err
			}
			msgs, err := q.bulk(al, q.trackData(t, &sec.Tracks[t]))
			if err != nil {
				return nil, err
			}
			out = append(out, msgs...)
		}
	}

	header := append([]byte(nil), p.Header...)
	if len(header) < 7 {
		header = defaultHeader()
	}
	if tempo, err := HeaderTempo(header); err != nil || tempo != p.Tempo {
		if err := setHeaderTempo(header, p.Tempo); err != nil {
			return nil, err
		}
	}
	msgs, err := q.bulk(address.HeaderAddress, header)
	if err != nil {
		return nil, err
	}
	out = append(out, msgs...)

	out = append(out, sysex.CloseMessage(q.DeviceNumber)...)
	return out, nil
}

// bulk splits data into bulk messages of at most one block each.
func (q *QY70) bulk(al byte, data []byte) ([]byte, error) {
	var out []byte
	for i := 0; i < len(data); i += sysex.MaxBlock {
		msg, err := sysex.BulkDump(q.DeviceNumber, sysex.StyleAddress(al), data[i:min(i+sysex.MaxBlock, len(data))])
		if err != nil {
			return nil, err
		}
		out = append(out, msg...)
	}
	return out, nil
}
