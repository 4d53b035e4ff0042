package sysex

import (
	"errors"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func mustBulk(t *testing.T, addr Address, raw []byte) []byte {
	t.Helper()
	msg, err := BulkDump(0, addr, raw)
	if err != nil {
		t.Fatalf("BulkDump() error = %v", err)
	}
	return msg.Bytes()
}

func TestBulkDumpLayout(t *testing.T) {
	raw := []byte{0x08, 0x04, 0x82}
	got := mustBulk(t, StyleAddress(0x00), raw)

	want := []byte{0xF0, 0x43, 0x00, 0x5F, 0x00, 0x04, 0x02, 0x7E, 0x00, 0x10, 0x08, 0x04, 0x02}
	want = append(want, Checksum(want[4:]), 0xF7)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("BulkDump() mismatch (-want +got):\n%s", diff)
	}
}

func TestFramerRoundTrip(t *testing.T) {
	raw := make([]byte, MaxBlock)
	for i := range raw {
		raw[i] = byte(i * 3)
	}

	var stream []byte
	stream = append(stream, InitMessage(3)...)
	stream = append(stream, mustBulk(t, StyleAddress(0x09), raw)...)
	stream = append(stream, DumpRequestMessage(3, StyleAddress(0x7F))...)
	stream = append(stream, CloseMessage(3)...)

	msgs, err := Split(stream)
	if err != nil {
		t.Fatalf("Split() error = %v", err)
	}
	if len(msgs) != 4 {
		t.Fatalf("Split() returned %d messages, want 4", len(msgs))
	}

	kinds := []Kind{ParameterChange, BulkData, DumpRequest, ParameterChange}
	for i, k := range kinds {
		if msgs[i].Kind != k {
			t.Errorf("msgs[%d].Kind = %v, want %v", i, msgs[i].Kind, k)
		}
	}
	if msgs[0].Device != 3 {
		t.Errorf("msgs[0].Device = %d, want 3", msgs[0].Device)
	}
	if diff := cmp.Diff(raw, msgs[1].Payload); diff != "" {
		t.Errorf("bulk payload mismatch (-want +got):\n%s", diff)
	}
	if msgs[1].Address.Low() != 0x09 || !msgs[1].Address.IsStyle() {
		t.Errorf("bulk address = %v, want 02 7E 09", msgs[1].Address)
	}
	if msgs[1].Offset != len(InitMessage(3)) {
		t.Errorf("bulk offset = %d, want %d", msgs[1].Offset, len(InitMessage(3)))
	}
	if diff := cmp.Diff([]byte{0x01}, msgs[0].Payload); diff != "" {
		t.Errorf("init payload mismatch (-want +got):\n%s", diff)
	}
}

func TestFramerCorrupt(t *testing.T) {
	good := func() []byte { return mustBulk(t, StyleAddress(0x00), []byte{1, 2, 3, 4}) }

	badSum := good()
	badSum[len(badSum)-2] ^= 0x01

	badLen := good()
	badLen[5]++

	tests := []struct {
		name   string
		stream []byte
		offset int
	}{
		{"checksum", badSum, len(badSum) - 2},
		{"length", badLen, 4},
		{"vendor", []byte{0xF0, 0x41, 0x10, 0x5F, 0xF7}, 1},
		{"stray", []byte{0x12}, 0},
		{"empty", []byte{0xF0, 0xF7}, 0},
		{"unterminated", []byte{0xF0, 0x43, 0x10}, 0},
		{"type nibble", []byte{0xF0, 0x43, 0x70, 0x5F, 0x00, 0x00, 0x00, 0xF7}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewFramer(tt.stream).Next()
			var cm *CorruptMessageError
			if !errors.As(err, &cm) {
				t.Fatalf("Next() error = %v, want *CorruptMessageError", err)
			}
			if cm.Offset != tt.offset {
				t.Errorf("Offset = %d, want %d", cm.Offset, tt.offset)
			}
		})
	}
}

func TestFramerResync(t *testing.T) {
	bad := mustBulk(t, StyleAddress(0x00), []byte{9, 9, 9})
	bad[len(bad)-2] ^= 0x02
	good := mustBulk(t, StyleAddress(0x01), []byte{7, 7, 7})

	stream := append([]byte{0x00, 0x00}, bad...)
	stream = append(stream, good...)

	f := NewFramer(stream)
	var corruptions int
	var msgs []*Message
	for {
		msg, err := f.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			corruptions++
			continue
		}
		msgs = append(msgs, msg)
	}

	if corruptions != 2 {
		t.Errorf("corruptions = %d, want 2", corruptions)
	}
	if len(msgs) != 1 || msgs[0].Address.Low() != 0x01 {
		t.Fatalf("recovered messages = %v, want one message at AL 0x01", msgs)
	}
}

func TestFramerTruncatedByStart(t *testing.T) {
	good := mustBulk(t, StyleAddress(0x02), []byte{1})
	stream := append([]byte{0xF0, 0x43, 0x00}, good...)

	f := NewFramer(stream)
	if _, err := f.Next(); err == nil {
		t.Fatal("Next() error = nil for truncated message")
	}
	msg, err := f.Next()
	if err != nil {
		t.Fatalf("Next() after truncation error = %v", err)
	}
	if msg.Address.Low() != 0x02 {
		t.Errorf("Address.Low() = 0x%02X, want 0x02", msg.Address.Low())
	}
}
