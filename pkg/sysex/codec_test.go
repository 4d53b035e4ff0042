package sysex

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestEncode7Bit(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
		want []byte
	}{
		{"empty", nil, []byte{}},
		{"low bytes", []byte{0x01, 0x02}, []byte{0x00, 0x01, 0x02}},
		{"high first", []byte{0x80}, []byte{0x40, 0x00}},
		{"full group", []byte{0xFF, 0, 0, 0, 0, 0, 0x81}, []byte{0x41, 0x7F, 0, 0, 0, 0, 0, 0x01}},
		{"partial tail", []byte{0, 0, 0, 0, 0, 0, 0, 0x90}, []byte{0, 0, 0, 0, 0, 0, 0, 0, 0x40, 0x10}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Encode7Bit(tt.raw)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("Encode7Bit() mismatch (-want +got):\n%s", diff)
			}
			if len(got) != EncodedLen(len(tt.raw)) {
				t.Errorf("EncodedLen(%d) = %d, want %d", len(tt.raw), EncodedLen(len(tt.raw)), len(got))
			}
		})
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for n := 0; n <= 300; n++ {
		raw := make([]byte, n)
		rng.Read(raw)

		enc := Encode7Bit(raw)
		for i, b := range enc {
			if b&0x80 != 0 {
				t.Fatalf("n=%d: encoded byte %d = 0x%02X has bit 7 set", n, i, b)
			}
		}
		dec, err := Decode7Bit(enc)
		if err != nil {
			t.Fatalf("n=%d: Decode7Bit() error = %v", n, err)
		}
		if !bytes.Equal(dec, raw) {
			t.Fatalf("n=%d: decode(encode(r)) != r", n)
		}
		if DecodedLen(len(enc)) != n {
			t.Errorf("DecodedLen(%d) = %d, want %d", len(enc), DecodedLen(len(enc)), n)
		}
	}
}

func TestDecodeEncodeRoundTrip(t *testing.T) {
	// Every well-formed group: a header whose flag bits only cover present
	// bytes, followed by 1 to 7 seven-bit bytes.
	rng := rand.New(rand.NewSource(2))
	for i := 0; i < 500; i++ {
		var enc []byte
		groups := rng.Intn(6)
		for g := 0; g < groups; g++ {
			k := 1 + rng.Intn(7)
			if g < groups-1 {
				k = 7
			}
			header := byte(rng.Intn(128)) &^ (0x7F >> k)
			enc = append(enc, header)
			for j := 0; j < k; j++ {
				enc = append(enc, byte(rng.Intn(128)))
			}
		}
		dec, err := Decode7Bit(enc)
		if err != nil {
			t.Fatalf("Decode7Bit(% X) error = %v", enc, err)
		}
		if got := Encode7Bit(dec); !bytes.Equal(got, enc) {
			t.Fatalf("encode(decode(% X)) = % X", enc, got)
		}
	}
}

func TestDecode7BitMalformed(t *testing.T) {
	tests := []struct {
		name string
		enc  []byte
	}{
		{"header bit 7", []byte{0x80, 0x00}},
		{"data bit 7", []byte{0x00, 0x80}},
		{"header only", []byte{0x00}},
		{"trailing header", []byte{0x00, 1, 2, 3, 4, 5, 6, 7, 0x00}},
		{"flag for absent byte", []byte{0x20, 0x01}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode7Bit(tt.enc); err == nil {
				t.Errorf("Decode7Bit(% X) error = nil, want error", tt.enc)
			}
		})
	}
}

func TestChecksum(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want byte
	}{
		{"empty", nil, 0x00},
		{"single", []byte{0x01}, 0x7F},
		{"wraps", []byte{0x7F, 0x01}, 0x00},
		{"init header", []byte{0x01, 0x00, 0x02, 0x7E, 0x7F}, 0x00},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Checksum(tt.data); got != tt.want {
				t.Errorf("Checksum(% X) = 0x%02X, want 0x%02X", tt.data, got, tt.want)
			}
			var sum int
			for _, b := range tt.data {
				sum += int(b)
			}
			if (sum+int(Checksum(tt.data)))&0x7F != 0 {
				t.Errorf("sum + checksum is not a multiple of 128")
			}
		})
	}
}

func TestChecksumDetectsBitFlips(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	span := make([]byte, 64)
	for i := range span {
		span[i] = byte(rng.Intn(128))
	}
	sum := Checksum(span)
	if !VerifyChecksum(span, sum) {
		t.Fatal("VerifyChecksum() = false for its own checksum")
	}

	for i := range span {
		for bit := 0; bit < 7; bit++ {
			flipped := append([]byte(nil), span...)
			flipped[i] ^= 1 << bit
			if VerifyChecksum(flipped, sum) {
				t.Errorf("VerifyChecksum() = true after flipping bit %d of byte %d", bit, i)
			}
		}
	}
}
