// Package address maps (section, track) coordinates onto the linear
// addresses of the bulk dump and onto byte offsets of the pattern file.
package address

import (
	"encoding/binary"
	"fmt"
)

const (
	// TracksPerSection is the stride of the linear address space.
	TracksPerSection = 8

	// HeaderAddress is reserved for the global header block.
	HeaderAddress = 0x7F

	// MaxSections is the largest section count whose addresses stay clear
	// of HeaderAddress.
	MaxSections = HeaderAddress / TracksPerSection

	// PointerTableBase is where the section pointer table starts. Pointers
	// are relative to it.
	PointerTableBase = 0x100

	// EmptyPointer marks a section slot with no data.
	EmptyPointer = 0xFEFE
)

// Linear returns the bulk dump address of a track.
func Linear(section, track int) (byte, error) {
	if section < 0 || section >= MaxSections {
		return 0, fmt.Errorf("address: section %d out of range [0,%d)", section, MaxSections)
	}
	if track < 0 || track >= TracksPerSection {
		return 0, fmt.Errorf("address: track %d out of range [0,%d)", track, TracksPerSection)
	}
	return byte(section*TracksPerSection + track), nil
}

// Split is the inverse of Linear. header is true for HeaderAddress, in which
// case section and track are meaningless.
func Split(al byte) (section, track int, header bool) {
	if al == HeaderAddress {
		return 0, 0, true
	}
	return int(al) / TracksPerSection, int(al) % TracksPerSection, false
}

// PointerOffset returns where the pointer for a section slot is stored.
func PointerOffset(slot int) int {
	return PointerTableBase + slot*2
}

// Pointer reads the big-endian pointer for slot. ok is false when buf is too
// short to hold it.
func Pointer(buf []byte, slot int) (ptr uint16, ok bool) {
	off := PointerOffset(slot)
	if off < 0 || off+2 > len(buf) {
		return 0, false
	}
	return binary.BigEndian.Uint16(buf[off:]), true
}

// PutPointer stores ptr for slot.
func PutPointer(buf []byte, slot int, ptr uint16) {
	binary.BigEndian.PutUint16(buf[PointerOffset(slot):], ptr)
}

// Resolve turns a pointer into a file offset. ok is false for EmptyPointer,
// which must not be dereferenced.
func Resolve(ptr uint16) (offset int, ok bool) {
	if ptr == EmptyPointer {
		return 0, false
	}
	return int(ptr) + PointerTableBase, true
}

// Relative is the inverse of Resolve.
func Relative(offset int) (uint16, error) {
	ptr := offset - PointerTableBase
	if ptr < 0 || ptr > 0xFFFF || ptr == EmptyPointer {
		return 0, fmt.Errorf("address: offset 0x%X cannot be expressed as a pointer", offset)
	}
	return uint16(ptr), nil
}

// Table describes a per-track parameter table at a fixed offset.
type Table struct {
	Name    string
	Base    int
	Stride  int
	Count   int
	Max     byte
	Default byte
}

// Offset returns the byte offset of track's entry.
func (t Table) Offset(track int) int {
	return t.Base + track*t.Stride
}

// End returns the first offset past the table.
func (t Table) End() int {
	return t.Offset(t.Count)
}

// Read returns track's raw value.
func (t Table) Read(buf []byte, track int) (byte, error) {
	if track < 0 || track >= t.Count {
		return 0, fmt.Errorf("address: %s track %d out of range [0,%d)", t.Name, track, t.Count)
	}
	off := t.Offset(track)
	if off >= len(buf) {
		return 0, fmt.Errorf("address: %s offset 0x%X past end of buffer", t.Name, off)
	}
	return buf[off], nil
}

// InRange reports whether v is a legal value for the table.
func (t Table) InRange(v byte) bool {
	return v <= t.Max
}
