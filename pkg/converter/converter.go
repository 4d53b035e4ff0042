package converter

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/james-see/qybridge/pkg/converter/devices"
	"github.com/james-see/qybridge/pkg/pattern"
	"github.com/james-see/qybridge/pkg/sysex"
)

// Converter handles format conversions
type Converter struct {
	devices map[pattern.Format]Device
	logger  *log.Logger
}

// New creates a new Converter with the specified devices
func New(devs ...Device) *Converter {
	c := &Converter{
		devices: make(map[pattern.Format]Device),
		logger:  log.New(io.Discard, "", 0),
	}
	for _, d := range devs {
		c.SetDevice(d)
	}
	return c
}

// Default creates a Converter for the QY70 and the QY700. A nil logger
// discards conversion notes.
func Default(logger *log.Logger) *Converter {
	qy70 := devices.NewQY70()
	qy700 := devices.NewQY700()
	qy70.Logger, qy700.Logger = logger, logger

	c := New(qy70, qy700)
	if logger != nil {
		c.logger = logger
	}
	return c
}

// GetDevice returns the device for a format
func (c *Converter) GetDevice(f pattern.Format) (Device, bool) {
	d, ok := c.devices[f]
	return d, ok
}

// SetDevice registers a device for the format it handles
func (c *Converter) SetDevice(device Device) {
	c.devices[device.Format()] = device
}

// DetectFormat detects the format of a file based on extension
func DetectFormat(filename string) pattern.Format {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".syx":
		return pattern.FormatTransport
	case ".q7p":
		return pattern.FormatRecord
	default:
		return pattern.FormatUnknown
	}
}

// DetectFormatFromContent detects format from file content
func DetectFormatFromContent(data []byte) pattern.Format {
	switch {
	case bytes.HasPrefix(data, []byte(devices.Magic[:6])):
		return pattern.FormatRecord
	case len(data) >= 2 && data[0] == sysex.Start && data[1] == sysex.YamahaID:
		return pattern.FormatTransport
	default:
		return pattern.FormatUnknown
	}
}

// Read decodes data with the device matching its content.
func (c *Converter) Read(data []byte) (*pattern.Pattern, error) {
	f := DetectFormatFromContent(data)
	if f == pattern.FormatUnknown {
		return nil, errors.New("unrecognized pattern data")
	}
	d, ok := c.GetDevice(f)
	if !ok {
		return nil, fmt.Errorf("no device configured for %s data", f)
	}
	return d.Read(data)
}

// ConvertBytes decodes data, converts it to target and encodes the result.
func (c *Converter) ConvertBytes(data []byte, target pattern.Format, template []byte) (*ConversionResult, error) {
	src, err := c.Read(data)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	out, err := c.Convert(src, target, template)
	if err != nil {
		return nil, err
	}

	res := &ConversionResult{Format: target}
	if qy700, ok := c.devices[target].(*devices.QY700); ok {
		rec, err := qy700.Encode(out, out.Template)
		if err != nil {
			return nil, fmt.Errorf("failed to write %s: %w", target, err)
		}
		res.Data, res.Fidelity = rec.Data, rec.Fidelity.String()
		return res, nil
	}

	d, ok := c.GetDevice(target)
	if !ok {
		return nil, &ConversionError{From: src.Format, To: target, Reason: "no device configured"}
	}
	res.Data, err = d.Write(out)
	if err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", target, err)
	}
	return res, nil
}

// ConvertFile converts a file from one format to another. The target format
// comes from the output file extension.
func (c *Converter) ConvertFile(inputPath, outputPath string, template []byte) (*ConversionResult, error) {
	return c.convertFile(inputPath, outputPath, template, nil)
}

func (c *Converter) convertFile(inputPath, outputPath string, template []byte, check func([]byte) error) (*ConversionResult, error) {
	target := DetectFormat(outputPath)
	if target == pattern.FormatUnknown {
		return nil, errors.New("cannot determine output format from filename")
	}

	data, err := os.ReadFile(inputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read input file: %w", err)
	}
	if check != nil {
		if err := check(data); err != nil {
			return nil, err
		}
	}

	res, err := c.ConvertBytes(data, target, template)
	if err != nil {
		return nil, fmt.Errorf("conversion failed: %w", err)
	}
	res.Filename = outputPath

	if err := os.WriteFile(outputPath, res.Data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write output file: %w", err)
	}
	return res, nil
}

// GetSupportedConversions returns a list of supported conversion paths
func GetSupportedConversions() []string {
	return []string{
		"syx -> q7p",
		"q7p -> syx",
		"syx -> mid",
		"q7p -> mid",
	}
}
