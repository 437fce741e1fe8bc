package mcrcon

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Packet types of the RCON wire protocol (Source-style, as implemented by
// the child's command service).
const (
	typeResponseValue int32 = 0
	typeExecCommand   int32 = 2
	typeAuth          int32 = 3
)

const maxPacketSize = 4096

// writePacket frames id/typ/body as "length:i32le | id:i32le | type:i32le |
// body | 0x00 0x00" and writes it to w, mirroring the length-prefixed framing
// style of the login protocol's WritePacket/ReadPacket pair, minus the
// encryption this protocol's plaintext password auth doesn't need.
func writePacket(w io.Writer, id, typ int32, body string) error {
	payload := make([]byte, 8+len(body)+2)
	binary.LittleEndian.PutUint32(payload[0:4], uint32(id))
	binary.LittleEndian.PutUint32(payload[4:8], uint32(typ))
	copy(payload[8:], body)
	// trailing two NUL bytes already zero-valued

	if len(payload) > maxPacketSize {
		return fmt.Errorf("mcrcon: packet body too large (%d bytes)", len(body))
	}

	header := make([]byte, 4)
	binary.LittleEndian.PutUint32(header, uint32(len(payload)))

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("mcrcon: writing packet header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("mcrcon: writing packet body: %w", err)
	}
	return nil
}

// readPacket reads one framed packet from r and returns its id, type and
// body (without the two trailing NUL bytes).
func readPacket(r io.Reader) (id, typ int32, body string, err error) {
	var lenBuf [4]byte
	if _, err = io.ReadFull(r, lenBuf[:]); err != nil {
		return 0, 0, "", fmt.Errorf("mcrcon: reading length header: %w", err)
	}

	length := binary.LittleEndian.Uint32(lenBuf[:])
	if length < 10 || length > maxPacketSize {
		return 0, 0, "", fmt.Errorf("mcrcon: invalid packet length %d", length)
	}

	payload := make([]byte, length)
	if _, err = io.ReadFull(r, payload); err != nil {
		return 0, 0, "", fmt.Errorf("mcrcon: reading packet payload: %w", err)
	}

	id = int32(binary.LittleEndian.Uint32(payload[0:4]))
	typ = int32(binary.LittleEndian.Uint32(payload[4:8]))
	body = string(payload[8 : len(payload)-2])
	return id, typ, body, nil
}
