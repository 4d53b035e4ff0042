package pattern

// Summary is a flat, display-ready view of a pattern.
type Summary struct {
	Format        string           `json:"format"`
	Name          string           `json:"name,omitempty"`
	Tempo         float64          `json:"tempo"`
	TimeSignature string           `json:"timeSignature"`
	Sections      []SectionSummary `json:"sections"`
}

// SectionSummary describes one section.
type SectionSummary struct {
	Index  int            `json:"index"`
	Name   string         `json:"name"`
	Active bool           `json:"active"`
	Bars   int            `json:"bars"`
	Tracks []TrackSummary `json:"tracks,omitempty"`
}

// TrackSummary describes one track with decoded channel and pan.
type TrackSummary struct {
	Name    string `json:"name"`
	Channel int    `json:"channel"`
	Voice   string `json:"voice"`
	Volume  int    `json:"volume"`
	Pan     string `json:"pan"`
	Reverb  int    `json:"reverb"`
	Chorus  int    `json:"chorus"`
	Events  int    `json:"events"`
}

// Summarize builds the summary of p. Tracks are listed for active sections
// only.
func Summarize(p *Pattern) Summary {
	s := Summary{
		Format:        p.Format.String(),
		Tempo:         p.Tempo.BPM(),
		TimeSignature: p.TimeSig.String(),
	}
	if p.HasName {
		s.Name = p.Name
	}
	for i, sec := range p.Sections {
		ss := SectionSummary{Index: i, Name: SectionName(i), Active: sec.Active, Bars: sec.Bars}
		if sec.Active {
			for t, tr := range sec.Tracks {
				voice := "unknown"
				if tr.Voice != nil {
					voice = tr.Voice.String()
				}
				ss.Tracks = append(ss.Tracks, TrackSummary{
					Name:    TrackName(p.Format, t),
					Channel: tr.Channel.MIDI(IsRhythm(t)),
					Voice:   voice,
					Volume:  int(tr.Volume),
					Pan:     tr.Pan.String(),
					Reverb:  int(tr.Reverb),
					Chorus:  int(tr.Chorus),
					Events:  len(tr.Events),
				})
			}
		}
		s.Sections = append(s.Sections, ss)
	}
	return s
}
