package converter

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"math/bits"
	"os"

	"github.com/james-see/qybridge/pkg/pattern"
	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

// Controller numbers used for the track setup.
const (
	ccBankMSB = 0
	ccVolume  = 7
	ccPan     = 10
	ccBankLSB = 32
	ccReverb  = 91
	ccChorus  = 93
)

// MIDIConverter exports the setup of a pattern section (tempo, meter,
// voices and mixer) as a Standard MIDI File, and reads such a setup back.
// Phrase events are not part of the export.
type MIDIConverter struct {
	ticksPerQuarter uint16
}

// NewMIDIConverter creates a new MIDI converter
func NewMIDIConverter() *MIDIConverter {
	return &MIDIConverter{
		ticksPerQuarter: 480,
	}
}

func ticksPerBar(ticksPerQuarter uint16, ts pattern.TimeSignature) uint32 {
	if ts.Den == 0 {
		ts = pattern.TimeSignature{Num: 4, Den: 4}
	}
	return uint32(ticksPerQuarter) * 4 * uint32(ts.Num) / uint32(ts.Den)
}

// GenerateMIDI creates a single-track MIDI file holding the setup of one
// section. The track lasts as many bars as the section.
func (m *MIDIConverter) GenerateMIDI(p *pattern.Pattern, section int) ([]byte, error) {
	if p == nil {
		return nil, errors.New("nil pattern")
	}
	if section < 0 || section >= len(p.Sections) {
		return nil, fmt.Errorf("section %d out of range [0,%d)", section, len(p.Sections))
	}
	sec := p.Sections[section]

	s := smf.New()
	s.TimeFormat = smf.MetricTicks(m.ticksPerQuarter)

	var track smf.Track

	if p.HasName && p.Name != "" {
		name := []byte(p.Name)
		track.Add(0, smf.Message(append([]byte{0xFF, 0x03, byte(len(name))}, name...)))
	}

	tempo := p.Tempo
	if tempo == 0 {
		tempo = pattern.DefaultTempo
	}
	microsecondsPerBeat := uint32(math.Round(60000000 / tempo.BPM()))
	track.Add(0, smf.Message([]byte{
		0xFF, 0x51, 0x03,
		byte(microsecondsPerBeat >> 16),
		byte(microsecondsPerBeat >> 8),
		byte(microsecondsPerBeat),
	}))

	ts := p.TimeSig
	if ts.Den == 0 {
		ts = pattern.TimeSignature{Num: 4, Den: 4}
	}
	denPower := byte(bits.TrailingZeros8(ts.Den))
	track.Add(0, smf.Message([]byte{0xFF, 0x58, 0x04, ts.Num, denPower, 0x18, 0x08}))

	for t, tr := range sec.Tracks {
		ch := uint8(tr.Channel.MIDI(pattern.IsRhythm(t)) - 1)
		if v := tr.Voice; v != nil && !v.Default {
			track.Add(0, midi.ControlChange(ch, ccBankMSB, v.BankMSB))
			track.Add(0, midi.ControlChange(ch, ccBankLSB, v.BankLSB))
			track.Add(0, midi.ProgramChange(ch, v.Program))
		}
		track.Add(0, midi.ControlChange(ch, ccVolume, tr.Volume))
		// Random pan has no controller value.
		if !tr.Pan.Random() {
			track.Add(0, midi.ControlChange(ch, ccPan, uint8(tr.Pan)))
		}
		track.Add(0, midi.ControlChange(ch, ccReverb, tr.Reverb))
		track.Add(0, midi.ControlChange(ch, ccChorus, tr.Chorus))
	}

	bars := sec.Bars
	if bars < 1 {
		bars = pattern.DefaultBars
	}
	track.Close(uint32(bars) * ticksPerBar(m.ticksPerQuarter, ts))

	if err := s.Add(track); err != nil {
		return nil, fmt.Errorf("failed to add track: %w", err)
	}

	var buf bytes.Buffer
	if _, err := s.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write MIDI: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteMIDIFile writes the setup of one section to a file
func (m *MIDIConverter) WriteMIDIFile(p *pattern.Pattern, section int, filename string) error {
	data, err := m.GenerateMIDI(p, section)
	if err != nil {
		return err
	}
	return os.WriteFile(filename, data, 0644)
}

// ParseMIDI reads a setup written by GenerateMIDI into a transport pattern
// with section 0 active. Controllers apply to every track on their channel.
func (m *MIDIConverter) ParseMIDI(data []byte) (*pattern.Pattern, error) {
	s, err := smf.ReadFrom(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse MIDI: %w", err)
	}

	ticksPerQuarter := m.ticksPerQuarter
	if mt, ok := s.TimeFormat.(smf.MetricTicks); ok {
		ticksPerQuarter = mt.Resolution()
	}

	p := pattern.New(pattern.FormatTransport, pattern.TransportSections)
	sec := &p.Sections[0]
	sec.Active = true

	onChannel := func(ch uint8, fn func(tr *pattern.Track)) {
		for t := range sec.Tracks {
			tr := &sec.Tracks[t]
			if tr.Channel.MIDI(pattern.IsRhythm(t))-1 == int(ch) {
				fn(tr)
			}
		}
	}
	voice := func(tr *pattern.Track) *pattern.Voice {
		if tr.Voice == nil || tr.Voice.Default {
			tr.Voice = &pattern.Voice{}
		}
		return tr.Voice
	}

	var length uint64
	for _, track := range s.Tracks {
		var tick uint64
		for _, ev := range track {
			tick += uint64(ev.Delta)
			msg := ev.Message

			switch {
			case len(msg) >= 6 && msg[0] == 0xFF && msg[1] == 0x51 && msg[2] == 0x03:
				microsecondsPerBeat := uint32(msg[3])<<16 | uint32(msg[4])<<8 | uint32(msg[5])
				if microsecondsPerBeat > 0 {
					tempo, err := pattern.TempoFromBPM(60000000 / float64(microsecondsPerBeat))
					if err != nil {
						return nil, err
					}
					p.Tempo = tempo
				}
			case len(msg) >= 7 && msg[0] == 0xFF && msg[1] == 0x58 && msg[2] == 0x04:
				ts := pattern.TimeSignature{Num: msg[3], Den: 1 << msg[4]}
				if err := p.SetTimeSig(ts); err != nil {
					return nil, err
				}
			case len(msg) >= 3 && msg[0] == 0xFF && msg[1] == 0x03:
				if err := p.SetName(string(msg[3:min(len(msg), 3+int(msg[2]))])); err != nil {
					return nil, err
				}
			case len(msg) >= 3 && msg[0]&0xF0 == 0xB0:
				ch, cc, v := msg[0]&0x0F, msg[1], msg[2]
				onChannel(ch, func(tr *pattern.Track) {
					switch cc {
					case ccBankMSB:
						voice(tr).BankMSB = v
					case ccBankLSB:
						voice(tr).BankLSB = v
					case ccVolume:
						tr.Volume = v
					case ccPan:
						tr.Pan = pattern.Pan(v)
					case ccReverb:
						tr.Reverb = v
					case ccChorus:
						tr.Chorus = v
					}
				})
			case len(msg) >= 2 && msg[0]&0xF0 == 0xC0:
				onChannel(msg[0]&0x0F, func(tr *pattern.Track) {
					voice(tr).Program = msg[1]
				})
			}
		}
		length = max(length, tick)
	}

	if perBar := uint64(ticksPerBar(ticksPerQuarter, p.TimeSig)); perBar > 0 && length > 0 {
		sec.Bars = int((length + perBar - 1) / perBar)
	}
	return p, nil
}
