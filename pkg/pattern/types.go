// Package pattern holds the format-neutral model shared by the QY70 bulk
// dump and the QY700 pattern file.
package pattern

import (
	"fmt"
	"strings"
)

// Format identifies the encoding a Pattern came from.
type Format int

const (
	FormatUnknown Format = iota
	FormatTransport
	FormatRecord
)

func (f Format) String() string {
	switch f {
	case FormatTransport:
		return "transport"
	case FormatRecord:
		return "record"
	default:
		return "unknown"
	}
}

// Extension returns the usual file extension for f.
func (f Format) Extension() string {
	switch f {
	case FormatTransport:
		return ".syx"
	case FormatRecord:
		return ".Q7P"
	default:
		return ""
	}
}

// ParseFormat accepts format names, device names and file extensions.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimPrefix(s, ".")) {
	case "transport", "syx", "qy70", "sysex":
		return FormatTransport, nil
	case "record", "q7p", "qy700":
		return FormatRecord, nil
	default:
		return FormatUnknown, fmt.Errorf("unknown format %q", s)
	}
}

// Section and track counts per format.
const (
	TransportSections = 6
	TransportTracks   = 8
	RecordSections    = 6
	RecordSectionsExt = 12
	RecordTracks      = 16
)

// Device defaults for fields a format does not carry.
const (
	DefaultVolume = 100
	DefaultPan    = 64
	DefaultReverb = 40
	DefaultChorus = 0
	DefaultBars   = 4
	DefaultTempo  = Tempo(1200)
)

var sectionNames = []string{
	"Intro", "Main A", "Main B", "Fill AB", "Fill BA", "Ending",
	"Main C", "Main D", "Intro 2", "Ending 2", "Break", "Fill CD",
}

// SectionName returns the musical role of section i.
func SectionName(i int) string {
	if i >= 0 && i < len(sectionNames) {
		return sectionNames[i]
	}
	return fmt.Sprintf("Section %d", i+1)
}

var (
	transportTrackNames = []string{"RHY1", "RHY2", "BASS", "CHD1", "CHD2", "PAD", "PHR1", "PHR2"}
	recordTrackNames    = []string{"RHY1", "RHY2", "BASS", "CHD1", "CHD2", "CHD3", "CHD4", "CHD5"}
)

// TrackName returns the role name of track i in format f.
func TrackName(f Format, i int) string {
	names := recordTrackNames
	if f == FormatTransport {
		names = transportTrackNames
	}
	if i >= 0 && i < len(names) {
		return names[i]
	}
	return fmt.Sprintf("TR%d", i+1)
}

// IsRhythm reports whether track i plays on the percussion channel by
// default. The first two tracks are rhythm tracks in both formats.
func IsRhythm(i int) bool {
	return i == 0 || i == 1
}

// Channel is a raw channel byte. Raw 0 on a rhythm track means channel 10;
// every other value means raw+1.
type Channel uint8

// MaxChannel is the largest raw channel value.
const MaxChannel = 15

// MIDI returns the 1-based MIDI channel.
func (c Channel) MIDI(rhythm bool) int {
	if c == 0 && rhythm {
		return 10
	}
	return int(c) + 1
}

// DefaultChannel returns the raw channel a track gets when none is stored.
func DefaultChannel(track int) Channel {
	if IsRhythm(track) {
		return 0
	}
	return Channel(track - 1)
}

// Pan is a pan position: 0 random, 1-63 left, 64 center, 65-127 right.
type Pan uint8

// Random reports whether p is the random position.
func (p Pan) Random() bool { return p == 0 }

// Position returns the side ("L", "C", "R" or "Rnd") and the distance from
// center.
func (p Pan) Position() (string, int) {
	switch {
	case p == 0:
		return "Rnd", 0
	case p < 64:
		return "L", 64 - int(p)
	case p == 64:
		return "C", 0
	default:
		return "R", int(p) - 64
	}
}

func (p Pan) String() string {
	side, n := p.Position()
	if n == 0 {
		return side
	}
	return fmt.Sprintf("%s%d", side, n)
}

// Voice is a bank/program selection. Default selects the track type's
// default voice and leaves the numbers meaningless.
type Voice struct {
	Default bool
	BankMSB uint8
	BankLSB uint8
	Program uint8
}

func (v Voice) String() string {
	if v.Default {
		return "default"
	}
	return fmt.Sprintf("%d/%d/%d", v.BankMSB, v.BankLSB, v.Program)
}

// TimeSignature is a meter.
type TimeSignature struct {
	Num uint8
	Den uint8
}

func (ts TimeSignature) String() string {
	return fmt.Sprintf("%d/%d", ts.Num, ts.Den)
}

// Track is one musical part inside a section.
type Track struct {
	Channel Channel
	// Voice is nil when the source format does not record it.
	Voice  *Voice
	Volume uint8
	Pan    Pan
	Reverb uint8
	Chorus uint8
	// Events is the opaque event payload.
	Events []byte
	// Header is the raw 24-byte block header of a bulk dump track.
	Header []byte
}

// Section is one musical section.
type Section struct {
	Active bool
	Bars   int
	Tracks []Track
}

// Pattern is a complete style pattern.
type Pattern struct {
	Format  Format
	Name    string
	HasName bool
	Number  uint8
	Tempo   Tempo
	TimeSig TimeSignature
	// Sections has 6 or 12 entries; section 0 is the intro.
	Sections []Section
	// Template is the pattern file to write against.
	Template []byte
	// Header is the raw header block of a bulk dump.
	Header []byte
}

// NewTrack returns a track with device defaults for track index i.
func NewTrack(i int) Track {
	return Track{
		Channel: DefaultChannel(i),
		Volume:  DefaultVolume,
		Pan:     DefaultPan,
		Reverb:  DefaultReverb,
		Chorus:  DefaultChorus,
	}
}

// New returns a pattern built from defaults, with every section inactive.
func New(f Format, sections int) *Pattern {
	tracks := RecordTracks
	if f == FormatTransport {
		tracks = TransportTracks
	}
	p := &Pattern{
		Format:   f,
		Tempo:    DefaultTempo,
		TimeSig:  TimeSignature{4, 4},
		Sections: make([]Section, sections),
	}
	for i := range p.Sections {
		p.Sections[i] = Section{Bars: DefaultBars, Tracks: make([]Track, tracks)}
		for t := range p.Sections[i].Tracks {
			p.Sections[i].Tracks[t] = NewTrack(t)
		}
	}
	return p
}

// TrackCount returns the uniform track count, or -1 when sections disagree.
func (p *Pattern) TrackCount() int {
	if len(p.Sections) == 0 {
		return 0
	}
	n := len(p.Sections[0].Tracks)
	for _, s := range p.Sections[1:] {
		if len(s.Tracks) != n {
			return -1
		}
	}
	return n
}

// ActiveSections returns the indexes of active sections.
func (p *Pattern) ActiveSections() []int {
	var out []int
	for i, s := range p.Sections {
		if s.Active {
			out = append(out, i)
		}
	}
	return out
}

// MixerSection returns the section whose track settings represent the
// pattern when a format keeps one mixer for all sections: the first active
// section, or section 0.
func (p *Pattern) MixerSection() *Section {
	for i := range p.Sections {
		if p.Sections[i].Active {
			return &p.Sections[i]
		}
	}
	if len(p.Sections) == 0 {
		return nil
	}
	return &p.Sections[0]
}

// Clone returns a deep copy.
func (p *Pattern) Clone() *Pattern {
	c := *p
	c.Template = cloneBytes(p.Template)
	c.Header = cloneBytes(p.Header)
	c.Sections = make([]Section, len(p.Sections))
	for i, s := range p.Sections {
		c.Sections[i] = s
		c.Sections[i].Tracks = make([]Track, len(s.Tracks))
		for j, t := range s.Tracks {
			c.Sections[i].Tracks[j] = t.Clone()
		}
	}
	return &c
}

// Clone returns a deep copy.
func (t Track) Clone() Track {
	c := t
	if t.Voice != nil {
		v := *t.Voice
		c.Voice = &v
	}
	c.Events = cloneBytes(t.Events)
	c.Header = cloneBytes(t.Header)
	return c
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}
