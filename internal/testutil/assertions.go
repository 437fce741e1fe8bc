package testutil

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"testing"
)

// AssertPacketType checks that the first byte of a query-protocol packet
// matches the expected type tag (0x00 stat, 0x09 challenge).
func AssertPacketType(t testing.TB, expected byte, packet []byte) {
	t.Helper()

	if len(packet) == 0 {
		t.Fatalf("packet is empty, expected type 0x%02X", expected)
	}

	actual := packet[0]
	if actual != expected {
		t.Fatalf("packet type mismatch: expected 0x%02X, got 0x%02X", expected, actual)
	}
}

// AssertUint32BE checks a big-endian uint32 field at the given offset.
func AssertUint32BE(t testing.TB, expected uint32, packet []byte, offset int) {
	t.Helper()

	if len(packet) < offset+4 {
		t.Fatalf("packet too short: need %d bytes for uint32 at offset %d, got %d",
			offset+4, offset, len(packet))
	}

	actual := binary.BigEndian.Uint32(packet[offset:])
	if actual != expected {
		t.Fatalf("uint32 mismatch at offset %d: expected %d, got %d", offset, expected, actual)
	}
}

// AssertByteAtOffset checks a single byte at the given offset.
func AssertByteAtOffset(t testing.TB, expected byte, packet []byte, offset int) {
	t.Helper()

	if len(packet) <= offset {
		t.Fatalf("packet too short: need %d bytes, got %d", offset+1, len(packet))
	}

	actual := packet[offset]
	if actual != expected {
		t.Fatalf("byte mismatch at offset %d: expected 0x%02X, got 0x%02X", offset, expected, actual)
	}
}

// AssertBytesEqual checks that two byte slices are equal.
func AssertBytesEqual(t testing.TB, expected, actual []byte, msg string) {
	t.Helper()

	if !bytes.Equal(expected, actual) {
		t.Fatalf("%s: bytes mismatch\nexpected: %v\nactual:   %v", msg, expected, actual)
	}
}

// AssertPacketMinLength checks that a packet is at least minLength bytes.
func AssertPacketMinLength(t testing.TB, minLength int, packet []byte) {
	t.Helper()

	actual := len(packet)
	if actual < minLength {
		t.Fatalf("packet too short: expected at least %d bytes, got %d bytes", minLength, actual)
	}
}

// DumpPacket returns a hex dump of a packet for debugging test failures.
func DumpPacket(packet []byte) string {
	var buf bytes.Buffer
	for i := 0; i < len(packet); i += 16 {
		end := i + 16
		if end > len(packet) {
			end = len(packet)
		}
		chunk := packet[i:end]

		fmt.Fprintf(&buf, "%04x  ", i)

		for j, b := range chunk {
			if j == 8 {
				buf.WriteString(" ")
			}
			fmt.Fprintf(&buf, "%02x ", b)
		}

		for j := len(chunk); j < 16; j++ {
			if j == 8 {
				buf.WriteString(" ")
			}
			buf.WriteString("   ")
		}

		buf.WriteString(" |")
		for _, b := range chunk {
			if b >= 32 && b <= 126 {
				buf.WriteByte(b)
			} else {
				buf.WriteByte('.')
			}
		}
		buf.WriteString("|\n")
	}
	return buf.String()
}
