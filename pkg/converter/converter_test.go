package converter

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/james-see/qybridge/pkg/converter/devices"
	"github.com/james-see/qybridge/pkg/pattern"
)

func TestDetectFormat(t *testing.T) {
	tests := []struct {
		filename string
		expected pattern.Format
	}{
		{"style.syx", pattern.FormatTransport},
		{"STYLE.SYX", pattern.FormatTransport},
		{"P01.Q7P", pattern.FormatRecord},
		{"p01.q7p", pattern.FormatRecord},
		{"test.mid", pattern.FormatUnknown},
		{"test", pattern.FormatUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			result := DetectFormat(tt.filename)
			if result != tt.expected {
				t.Errorf("DetectFormat(%q) = %v, want %v", tt.filename, result, tt.expected)
			}
		})
	}
}

func TestDetectFormatFromContent(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected pattern.Format
	}{
		{"pattern file", devices.DefaultTemplate(), pattern.FormatRecord},
		{"Yamaha SysEx", []byte{0xF0, 0x43, 0x10, 0x5F, 0x00, 0x00, 0x00, 0x01, 0xF7}, pattern.FormatTransport},
		{"other SysEx", []byte{0xF0, 0x00, 0x20, 0x32, 0x00, 0xF7}, pattern.FormatUnknown},
		{"MIDI file", []byte("MThd\x00\x00\x00\x06"), pattern.FormatUnknown},
		{"Short data", []byte{0xF0}, pattern.FormatUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := DetectFormatFromContent(tt.data)
			if result != tt.expected {
				t.Errorf("DetectFormatFromContent() = %v, want %v", result, tt.expected)
			}
		})
	}
}

// mockDevice implements Device interface for testing
type mockDevice struct{}

func (m *mockDevice) Name() string           { return "Mock Device" }
func (m *mockDevice) Format() pattern.Format { return pattern.FormatTransport }
func (m *mockDevice) Read(data []byte) (*pattern.Pattern, error) {
	return pattern.New(pattern.FormatTransport, 6), nil
}
func (m *mockDevice) Write(p *pattern.Pattern) ([]byte, error) {
	return []byte{0xF0, 0xF7}, nil
}

func TestConverterNew(t *testing.T) {
	device := &mockDevice{}
	conv := New(device)

	if conv == nil {
		t.Fatal("New() returned nil")
	}

	got, ok := conv.GetDevice(pattern.FormatTransport)
	if !ok || got != device {
		t.Error("GetDevice() did not return the expected device")
	}
	if _, ok := conv.GetDevice(pattern.FormatRecord); ok {
		t.Error("GetDevice() found a device that was never registered")
	}

	conv.SetDevice(devices.NewQY700())
	if d, ok := conv.GetDevice(pattern.FormatRecord); !ok || d.Name() != "Yamaha QY700" {
		t.Errorf("GetDevice(record) = %v, %v after SetDevice", d, ok)
	}
}

func transportDump(t *testing.T, p *pattern.Pattern) []byte {
	t.Helper()
	data, err := devices.NewQY70().Write(p)
	if err != nil {
		t.Fatalf("QY70.Write() error = %v", err)
	}
	return data
}

func TestTransportTempoIntoRecord(t *testing.T) {
	p := pattern.New(pattern.FormatTransport, pattern.TransportSections)
	p.Sections[0].Active = true
	p.Tempo = 1510

	res, err := Default(nil).ConvertBytes(transportDump(t, p), pattern.FormatRecord, devices.DefaultTemplate())
	if err != nil {
		t.Fatalf("ConvertBytes() error = %v", err)
	}
	if res.Fidelity != "template" {
		t.Errorf("Fidelity = %q, want template", res.Fidelity)
	}
	if got := binary.BigEndian.Uint16(res.Data[0x188:]); got != 1510 {
		t.Errorf("tempo field = %d, want 1510", got)
	}

	back, err := devices.NewQY700().Read(res.Data)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if back.Tempo.BPM() != 151.0 {
		t.Errorf("Tempo = %v BPM, want 151.0", back.Tempo.BPM())
	}
	if back.Name != "USER TMPL" {
		t.Errorf("Name = %q, want the template name", back.Name)
	}
}

func TestConvertToRecord(t *testing.T) {
	p := pattern.New(pattern.FormatTransport, pattern.TransportSections)
	p.Sections[0].Active = true
	p.Sections[5].Active = true
	p.Sections[0].Tracks[5].Pan = 32
	p.Sections[0].Tracks[2].Volume = 90
	p.Sections[0].Tracks[3].Events = []byte{0x01, 0x02}

	tpl := devices.DefaultTemplate()
	tpl[0x14D] = 0x00

	out, err := Default(nil).Convert(p, pattern.FormatRecord, tpl)
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	if out.Format != pattern.FormatRecord || !bytes.Equal(out.Template, tpl) {
		t.Error("result is not a record pattern carrying the template")
	}

	for i, w := range []bool{true, false, false, false, false, false} {
		if out.Sections[i].Active != w {
			t.Errorf("Sections[%d].Active = %v, want %v", i, out.Sections[i].Active, w)
		}
	}

	for i := range out.Sections {
		tr := out.Sections[i].Tracks
		if tr[5].Pan != 32 || tr[2].Volume != 90 {
			t.Errorf("section %d mixer = pan %v vol %d, want L32, 90", i, tr[5].Pan, tr[2].Volume)
		}
		if tr[3].Events != nil || tr[3].Voice != nil {
			t.Errorf("section %d track 3 kept events or voice", i)
		}
		if tr[8].Volume != 0x64 {
			t.Errorf("section %d TR9 volume = %d, want template value", i, tr[8].Volume)
		}
	}

	if _, err := devices.NewQY700().Write(out); err != nil {
		t.Errorf("Write() error = %v", err)
	}
}

func TestConvertToTransport(t *testing.T) {
	src, err := devices.NewQY700().Read(devices.DefaultTemplate())
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	src.Sections[0].Tracks[3].Voice = &pattern.Voice{BankMSB: 0, Program: 48}

	out, err := Default(nil).Convert(src, pattern.FormatTransport, nil)
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	if out.HasName {
		t.Error("transport pattern carries a name")
	}
	if got := out.TrackCount(); got != pattern.TransportTracks {
		t.Errorf("TrackCount() = %d, want %d", got, pattern.TransportTracks)
	}
	for i, w := range []bool{true, true, true, true, true, false} {
		if out.Sections[i].Active != w {
			t.Errorf("Sections[%d].Active = %v, want %v", i, out.Sections[i].Active, w)
		}
	}
	tr := out.Sections[2].Tracks
	if tr[0].Volume != 0x5B || tr[0].Pan != 0x0F || tr[4].Channel != 3 {
		t.Errorf("track mixer not carried: %+v / %+v", tr[0], tr[4])
	}
	if diff := cmp.Diff(&pattern.Voice{Program: 48}, tr[3].Voice); diff != "" {
		t.Errorf("voice mismatch (-want +got):\n%s", diff)
	}

	data, err := devices.NewQY70().Write(out)
	if err != nil {
		t.Fatalf("QY70.Write() error = %v", err)
	}
	back, err := devices.NewQY70().Read(data)
	if err != nil {
		t.Fatalf("QY70.Read() error = %v", err)
	}
	if back.Tempo != src.Tempo {
		t.Errorf("Tempo = %v, want %v", back.Tempo, src.Tempo)
	}
}

func TestConvertToTransportLogsMixerLoss(t *testing.T) {
	src, err := devices.NewQY700().Read(devices.DefaultTemplate())
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	var buf bytes.Buffer
	if _, err := Default(log.New(&buf, "", 0)).Convert(src, pattern.FormatTransport, nil); err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	if !strings.Contains(buf.String(), "only voice and pan") {
		t.Errorf("log does not mention the unstored mixer fields:\n%s", buf.String())
	}
}

func TestConvertErrors(t *testing.T) {
	c := Default(nil)

	fractional, _ := devices.NewQY700().Read(devices.DefaultTemplate())
	fractional.Tempo = 1515

	uneven := pattern.New(pattern.FormatTransport, 6)
	uneven.Sections[3].Tracks = uneven.Sections[3].Tracks[:4]

	wrongShape := pattern.New(pattern.FormatTransport, 6)
	wrongShape.Format = pattern.FormatRecord

	tests := []struct {
		name   string
		p      *pattern.Pattern
		target pattern.Format
		tempo  bool
	}{
		{"fractional tempo", fractional, pattern.FormatTransport, true},
		{"uneven tracks", uneven, pattern.FormatRecord, false},
		{"track count", wrongShape, pattern.FormatTransport, false},
		{"no sections", &pattern.Pattern{Format: pattern.FormatRecord}, pattern.FormatTransport, false},
		{"unknown target", pattern.New(pattern.FormatTransport, 6), pattern.FormatUnknown, false},
		{"nil pattern", nil, pattern.FormatRecord, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Convert(tt.p, tt.target, nil)
			var ce *ConversionError
			if !errors.As(err, &ce) {
				t.Fatalf("Convert() error = %v, want *ConversionError", err)
			}
			var te *pattern.TempoOutOfRangeError
			if got := errors.As(err, &te); got != tt.tempo {
				t.Errorf("errors.As(TempoOutOfRangeError) = %v, want %v", got, tt.tempo)
			}
		})
	}
}

func TestConvertSameFormat(t *testing.T) {
	src, _ := devices.NewQY700().Read(devices.DefaultTemplate())
	tpl := devices.DefaultTemplate()

	out, err := Default(nil).Convert(src, pattern.FormatRecord, tpl)
	if err != nil {
		t.Fatalf("Convert() error = %v", err)
	}
	data, err := devices.NewQY700().Write(out)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if !bytes.Equal(data, tpl) {
		t.Error("record to record with its own template is not byte-identical")
	}
}

func TestConvertFile(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "style.syx")
	out := filepath.Join(dir, "P01.Q7P")

	p := pattern.New(pattern.FormatTransport, pattern.TransportSections)
	p.Sections[1].Active = true
	if err := os.WriteFile(in, transportDump(t, p), 0644); err != nil {
		t.Fatal(err)
	}

	res, err := Default(nil).ConvertFile(in, out, nil)
	if err != nil {
		t.Fatalf("ConvertFile() error = %v", err)
	}
	if res.Fidelity != "defaults" {
		t.Errorf("Fidelity = %q, want defaults", res.Fidelity)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	back, err := devices.NewQY700().Read(data)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if !back.Sections[1].Active || back.Sections[0].Active {
		t.Errorf("active sections = %v, want [1]", back.ActiveSections())
	}

	if _, err := Default(nil).ConvertFile(in, filepath.Join(dir, "out.txt"), nil); err == nil {
		t.Error("ConvertFile() to an unknown extension should fail")
	}
}

func TestConvertBatch(t *testing.T) {
	dir := t.TempDir()
	p := pattern.New(pattern.FormatTransport, pattern.TransportSections)
	p.Sections[0].Active = true
	good := transportDump(t, p)

	var jobs []Job
	for i, data := range [][]byte{good, good, []byte("garbage"), good} {
		in := filepath.Join(dir, string(rune('a'+i))+".syx")
		if err := os.WriteFile(in, data, 0644); err != nil {
			t.Fatal(err)
		}
		jobs = append(jobs, Job{Input: in, Output: filepath.Join(dir, string(rune('a'+i))+".Q7P")})
	}

	results, err := Default(nil).ConvertBatch(context.Background(), jobs, devices.DefaultTemplate(), 2)
	if err != nil {
		t.Fatalf("ConvertBatch() error = %v", err)
	}
	for i, r := range results {
		if (r.Error != nil) != (i == 2) {
			t.Errorf("results[%d].Error = %v", i, r.Error)
		}
		if r.Filename != jobs[i].Output {
			t.Errorf("results[%d].Filename = %q, want %q", i, r.Filename, jobs[i].Output)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Default(nil).ConvertBatch(ctx, jobs, nil, 1); !errors.Is(err, context.Canceled) {
		t.Errorf("ConvertBatch() on a cancelled context error = %v, want context.Canceled", err)
	}
}

func TestGetSupportedConversions(t *testing.T) {
	if got := GetSupportedConversions(); len(got) != 4 {
		t.Errorf("GetSupportedConversions() = %v", got)
	}
}
