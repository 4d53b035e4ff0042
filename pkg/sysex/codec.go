// Package sysex implements the Yamaha bulk dump wire format: 7-bit packing,
// checksums and message framing.
package sysex

import "fmt"

// groupSize is the number of raw bytes covered by one packing header.
const groupSize = 7

// EncodedLen returns the packed length of n raw bytes.
func EncodedLen(n int) int {
	return n + (n+groupSize-1)/groupSize
}

// DecodedLen returns the raw length of n packed bytes.
func DecodedLen(n int) int {
	return n - (n+groupSize)/(groupSize+1)
}

// Encode7Bit packs raw 8-bit data into groups of one header byte followed by
// up to seven data bytes with their high bit cleared. Bit 6 of the header
// carries the high bit of the first byte in the group, bit 0 the seventh.
func Encode7Bit(raw []byte) []byte {
	out := make([]byte, 0, EncodedLen(len(raw)))
	for i := 0; i < len(raw); i += groupSize {
		group := raw[i:min(i+groupSize, len(raw))]
		var header byte
		for j, b := range group {
			header |= (b >> 7) << (6 - j)
		}
		out = append(out, header)
		for _, b := range group {
			out = append(out, b&0x7F)
		}
	}
	return out
}

// Decode7Bit unpacks data produced by Encode7Bit. It rejects anything that
// Encode7Bit could not have produced, so a successful decode always
// re-encodes to the same bytes.
func Decode7Bit(encoded []byte) ([]byte, error) {
	out := make([]byte, 0, DecodedLen(len(encoded)))
	for i := 0; i < len(encoded); i += groupSize + 1 {
		end := min(i+groupSize+1, len(encoded))
		header := encoded[i]
		data := encoded[i+1 : end]
		if header&0x80 != 0 {
			return nil, fmt.Errorf("sysex: header byte 0x%02X at %d has bit 7 set", header, i)
		}
		if len(data) == 0 {
			return nil, fmt.Errorf("sysex: header byte at %d has no data", i)
		}
		if unused := header & (0x7F >> len(data)); unused != 0 {
			return nil, fmt.Errorf("sysex: header byte 0x%02X at %d flags missing bytes", header, i)
		}
		for j, b := range data {
			if b&0x80 != 0 {
				return nil, fmt.Errorf("sysex: data byte 0x%02X at %d has bit 7 set", b, i+1+j)
			}
			out = append(out, b|((header>>(6-j))&1)<<7)
		}
	}
	return out, nil
}

// Checksum returns the Yamaha two's complement checksum: the value that
// brings the 7-bit sum of data plus checksum to zero.
func Checksum(data []byte) byte {
	var sum int
	for _, b := range data {
		sum += int(b)
	}
	return byte((128 - (sum & 0x7F)) & 0x7F)
}

// VerifyChecksum reports whether sum is the checksum of data.
func VerifyChecksum(data []byte, sum byte) bool {
	return Checksum(data) == sum
}
