// Package converter provides conversion between QY70 style dumps and QY700 pattern files
package converter

import (
	"fmt"

	"github.com/james-see/qybridge/pkg/pattern"
)

// ConversionResult holds the result of a conversion
type ConversionResult struct {
	Data     []byte
	Filename string
	Format   pattern.Format
	// Fidelity is "template" or "defaults" for pattern files and empty
	// for style dumps.
	Fidelity string
	Error    error
}

// Device interface for device-specific format handling
type Device interface {
	Name() string
	Format() pattern.Format
	Read(data []byte) (*pattern.Pattern, error)
	Write(p *pattern.Pattern) ([]byte, error)
}

// ConversionError reports a pattern that cannot be mapped onto the target
// format. Err, when set, is the underlying cause.
type ConversionError struct {
	From   pattern.Format
	To     pattern.Format
	Reason string
	Err    error
}

func (e *ConversionError) Error() string {
	msg := fmt.Sprintf("cannot convert %s to %s", e.From, e.To)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}
