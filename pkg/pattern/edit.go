package pattern

import "fmt"

// MaxNameLen is the longest pattern name.
const MaxNameLen = 10

// MaxMixer is the upper bound of every mixer field.
const MaxMixer = 127

// SetName sets the name. Names are 0-10 printable ASCII characters.
func (p *Pattern) SetName(name string) error {
	if len(name) > MaxNameLen {
		return &FieldRangeError{Field: "name length", Offset: -1, Value: len(name), Max: MaxNameLen}
	}
	for i := 0; i < len(name); i++ {
		if name[i] < 0x20 || name[i] > 0x7E {
			return fmt.Errorf("name: byte 0x%02X at %d is not printable", name[i], i)
		}
	}
	p.Name = name
	p.HasName = true
	return nil
}

// SetTempo sets the tempo, rejecting values outside the device range.
func (p *Pattern) SetTempo(t Tempo) error {
	if !t.Plausible() {
		return &FieldRangeError{Field: "tempo", Offset: -1, Value: int(t), Min: int(MinTempo), Max: int(MaxTempo)}
	}
	p.Tempo = t
	return nil
}

// SetTimeSig sets the meter. Only meters in the device table are accepted.
func (p *Pattern) SetTimeSig(ts TimeSignature) error {
	if _, ok := ts.Raw(); !ok {
		return fmt.Errorf("time signature %s has no device encoding", ts)
	}
	p.TimeSig = ts
	return nil
}

// SetBars sets a section's length.
func (s *Section) SetBars(bars int) error {
	if bars < 1 || bars > MaxMixer {
		return &FieldRangeError{Field: "bars", Offset: -1, Value: bars, Min: 1, Max: MaxMixer}
	}
	s.Bars = bars
	return nil
}

func checkMixer(field string, v int) error {
	if v < 0 || v > MaxMixer {
		return &FieldRangeError{Field: field, Offset: -1, Value: v, Max: MaxMixer}
	}
	return nil
}

// SetVolume sets the volume.
func (t *Track) SetVolume(v int) error {
	if err := checkMixer("volume", v); err != nil {
		return err
	}
	t.Volume = uint8(v)
	return nil
}

// SetPan sets the pan position.
func (t *Track) SetPan(v int) error {
	if err := checkMixer("pan", v); err != nil {
		return err
	}
	t.Pan = Pan(v)
	return nil
}

// SetReverb sets the reverb send.
func (t *Track) SetReverb(v int) error {
	if err := checkMixer("reverb", v); err != nil {
		return err
	}
	t.Reverb = uint8(v)
	return nil
}

// SetChorus sets the chorus send.
func (t *Track) SetChorus(v int) error {
	if err := checkMixer("chorus", v); err != nil {
		return err
	}
	t.Chorus = uint8(v)
	return nil
}

// SetChannel sets the raw channel.
func (t *Track) SetChannel(v int) error {
	if v < 0 || v > MaxChannel {
		return &FieldRangeError{Field: "channel", Offset: -1, Value: v, Max: MaxChannel}
	}
	t.Channel = Channel(v)
	return nil
}

// SetVoice sets the voice; nil marks it unknown.
func (t *Track) SetVoice(v *Voice) error {
	if v != nil && !v.Default {
		for _, f := range []struct {
			name string
			v    uint8
		}{{"bank MSB", v.BankMSB}, {"bank LSB", v.BankLSB}, {"program", v.Program}} {
			if err := checkMixer(f.name, int(f.v)); err != nil {
				return err
			}
		}
	}
	t.Voice = v
	return nil
}
