package converter

import (
	"fmt"

	"github.com/james-see/qybridge/pkg/converter/devices"
	"github.com/james-see/qybridge/pkg/pattern"
)

// roleMap pairs the track roles that mean the same thing in both formats.
// Record tracks 8 to 15 have no transport counterpart.
var roleMap = []struct {
	transport int
	record    int
}{
	{0, 0}, // RHY1
	{1, 1}, // RHY2
	{2, 2}, // BASS
	{3, 3}, // CHD1
	{4, 4}, // CHD2
	{5, 5}, // PAD / CHD3
	{6, 6}, // PHR1 / CHD4
	{7, 7}, // PHR2 / CHD5
}

// RecordRole returns the record track that receives a transport track.
func RecordRole(transportTrack int) (int, bool) {
	for _, r := range roleMap {
		if r.transport == transportTrack {
			return r.record, true
		}
	}
	return 0, false
}

// TransportRole returns the transport track that receives a record track.
func TransportRole(recordTrack int) (int, bool) {
	for _, r := range roleMap {
		if r.record == recordTrack {
			return r.transport, true
		}
	}
	return 0, false
}

// Convert maps p onto target. template is only used for record targets: it
// seeds every field the source cannot supply and is attached to the result
// for writing. Note events never cross formats.
func (c *Converter) Convert(p *pattern.Pattern, target pattern.Format, template []byte) (*pattern.Pattern, error) {
	if p == nil {
		return nil, &ConversionError{To: target, Reason: "nil pattern"}
	}
	if err := checkShape(p, target); err != nil {
		return nil, err
	}

	switch {
	case target != pattern.FormatRecord && target != pattern.FormatTransport:
		return nil, &ConversionError{From: p.Format, To: target, Reason: "unknown target format"}
	case p.Format == target:
		out := p.Clone()
		if target == pattern.FormatRecord && template != nil {
			out.Template = append([]byte(nil), template...)
		}
		return out, nil
	case target == pattern.FormatRecord:
		return c.toRecord(p, template)
	default:
		return c.toTransport(p)
	}
}

func checkShape(p *pattern.Pattern, target pattern.Format) error {
	fail := func(reason string) error {
		return &ConversionError{From: p.Format, To: target, Reason: reason}
	}
	if len(p.Sections) == 0 {
		return fail("pattern has no sections")
	}
	n := p.TrackCount()
	switch {
	case n < 0:
		return fail("sections disagree on track count")
	case p.Format == pattern.FormatTransport && n != pattern.TransportTracks,
		p.Format == pattern.FormatRecord && n != pattern.RecordTracks:
		return fail(fmt.Sprintf("%d tracks per section in a %s pattern", n, p.Format))
	case p.Format != pattern.FormatTransport && p.Format != pattern.FormatRecord:
		return fail("unknown source format")
	}
	return nil
}

// copyMixer copies the mixer fields of one track into another.
func copyMixer(dst *pattern.Track, src pattern.Track) {
	dst.Channel = src.Channel
	dst.Volume = src.Volume
	dst.Pan = src.Pan
	dst.Reverb = src.Reverb
	dst.Chorus = src.Chorus
}

// toRecord converts a transport pattern. Name, number, meter and bar counts
// come from the template since the bulk dump does not carry them.
func (c *Converter) toRecord(p *pattern.Pattern, template []byte) (*pattern.Pattern, error) {
	out := pattern.New(pattern.FormatRecord, pattern.RecordSections)
	activatable := make([]bool, len(out.Sections))
	for i := range activatable {
		activatable[i] = true
	}
	if template != nil {
		base, err := devices.NewQY700().Read(template)
		if err != nil {
			return nil, &ConversionError{From: p.Format, To: pattern.FormatRecord, Reason: "unusable template", Err: err}
		}
		out = base
		out.Template = append([]byte(nil), template...)
		activatable = devices.Activatable(template, len(out.Sections))
	}
	out.Tempo = p.Tempo

	for i := range out.Sections {
		dst := &out.Sections[i]
		switch {
		case i >= len(p.Sections):
			dst.Active = false
		case p.Sections[i].Active && !dst.Active && !activatable[i]:
			c.logger.Printf("convert: %s cannot be activated in the template, dropped", pattern.SectionName(i))
		default:
			dst.Active = p.Sections[i].Active
		}
	}
	c.logDropped(p.Sections, len(out.Sections))

	mix := p.MixerSection()
	for i := range out.Sections {
		for t := range out.Sections[i].Tracks {
			dst := &out.Sections[i].Tracks[t]
			dst.Events, dst.Header, dst.Voice = nil, nil, nil
			if s, ok := TransportRole(t); ok && s < len(mix.Tracks) {
				copyMixer(dst, mix.Tracks[s])
			}
		}
	}
	if eventsDropped(p) {
		c.logger.Printf("convert: phrase events are not carried into %s", pattern.FormatRecord)
	}
	return out, nil
}

// toTransport converts a record pattern. The name is lost and the tempo
// must be a whole BPM.
func (c *Converter) toTransport(p *pattern.Pattern) (*pattern.Pattern, error) {
	if _, _, err := devices.EncodeTransportTempo(p.Tempo); err != nil {
		return nil, &ConversionError{From: p.Format, To: pattern.FormatTransport, Reason: "tempo", Err: err}
	}
	if p.HasName && p.Name != "" {
		c.logger.Printf("convert: name %q has no place in %s", p.Name, pattern.FormatTransport)
	}

	out := pattern.New(pattern.FormatTransport, pattern.TransportSections)
	out.Tempo = p.Tempo
	out.TimeSig = p.TimeSig

	for i := range out.Sections {
		if i < len(p.Sections) {
			out.Sections[i].Active = p.Sections[i].Active
			out.Sections[i].Bars = p.Sections[i].Bars
		}
	}
	c.logDropped(p.Sections, len(out.Sections))

	mix := p.MixerSection()
	for i := range out.Sections {
		for t := range out.Sections[i].Tracks {
			s, ok := RecordRole(t)
			if !ok || s >= len(mix.Tracks) {
				continue
			}
			dst := &out.Sections[i].Tracks[t]
			copyMixer(dst, mix.Tracks[s])
			dst.Voice = translateVoice(mix.Tracks[s].Voice)
		}
	}
	for t := 0; t < pattern.TransportTracks && t < len(mix.Tracks); t++ {
		if unstored(mix.Tracks[t]) != unstored(pattern.NewTrack(t)) {
			c.logger.Printf("convert: channel, volume, reverb and chorus are not stored in %s dumps, only voice and pan", pattern.FormatTransport)
			break
		}
	}
	for t := pattern.TransportTracks; t < len(mix.Tracks); t++ {
		if _, ok := TransportRole(t); !ok && mixerOf(mix.Tracks[t]) != mixerOf(pattern.NewTrack(t)) {
			c.logger.Printf("convert: %s settings have no transport track, dropped", pattern.TrackName(p.Format, t))
		}
	}
	return out, nil
}

func mixerOf(t pattern.Track) [5]uint8 {
	return [5]uint8{uint8(t.Channel), t.Volume, uint8(t.Pan), t.Reverb, t.Chorus}
}

// unstored returns the mixer fields a bulk dump track block has no room for.
func unstored(t pattern.Track) [4]uint8 {
	return [4]uint8{uint8(t.Channel), t.Volume, t.Reverb, t.Chorus}
}

func (c *Converter) logDropped(sections []pattern.Section, slots int) {
	for i := slots; i < len(sections); i++ {
		if sections[i].Active {
			c.logger.Printf("convert: %s has no slot in the target, dropped", pattern.SectionName(i))
		}
	}
}

// translateVoice carries a voice through the shared model. Device sentinels
// were resolved by the readers, so only explicit selections and the default
// flag remain.
func translateVoice(v *pattern.Voice) *pattern.Voice {
	if v == nil {
		return nil
	}
	if v.Default {
		return &pattern.Voice{Default: true}
	}
	return &pattern.Voice{BankMSB: v.BankMSB, BankLSB: v.BankLSB, Program: v.Program}
}

func eventsDropped(p *pattern.Pattern) bool {
	for _, s := range p.Sections {
		if !s.Active {
			continue
		}
		for _, t := range s.Tracks {
			if len(t.Events) > 0 {
				return true
			}
		}
	}
	return false
}
