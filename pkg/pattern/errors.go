package pattern

import (
	"errors"
	"fmt"
)

// ErrTemplateRequired is returned when a pattern file cannot be written with
// full fidelity because no template was supplied.
var ErrTemplateRequired = errors.New("a template pattern file is required")

// ErrLayout is returned when a pattern's shape does not fit the target
// encoding (wrong section or track count).
var ErrLayout = errors.New("pattern layout does not fit the format")

// InvalidHeaderError reports a magic, size or framing mismatch. No partial
// result accompanies it.
type InvalidHeaderError struct {
	Format Format
	Reason string
}

func (e *InvalidHeaderError) Error() string {
	return fmt.Sprintf("invalid %s header: %s", e.Format, e.Reason)
}

// FieldRangeError reports a field value outside its documented range.
// Offset is -1 when the value did not come from a byte buffer.
type FieldRangeError struct {
	Field  string
	Offset int
	Value  int
	Min    int
	Max    int
}

func (e *FieldRangeError) Error() string {
	if e.Offset < 0 {
		return fmt.Sprintf("%s = %d out of range [%d,%d]", e.Field, e.Value, e.Min, e.Max)
	}
	return fmt.Sprintf("%s = %d at offset 0x%X out of range [%d,%d]", e.Field, e.Value, e.Offset, e.Min, e.Max)
}

// TempoOutOfRangeError reports a tempo the target encoding cannot store.
type TempoOutOfRangeError struct {
	Tempo  Tempo
	Reason string
}

func (e *TempoOutOfRangeError) Error() string {
	return fmt.Sprintf("tempo %s not representable: %s", e.Tempo, e.Reason)
}
