// Package mcquery implements the UDP "query protocol" client used to probe
// the child MC server for its currently connected player count (§4.2).
package mcquery

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"
)

const (
	typeChallenge byte = 0x09
	typeStat      byte = 0x00

	sessionID = uint32(1)

	readTimeout = 1 * time.Second

	maxDatagramSize = 4096
)

// Error cases for the challenge/query handshake (§4.2, §8 invariants 7-8).
var (
	ErrReadTimeout   = errors.New("mcquery: read timeout")
	ErrTooShort      = errors.New("mcquery: packet too short")
	ErrIncorrectType = errors.New("mcquery: incorrect packet type")
	ErrUnknownType   = errors.New("mcquery: unknown packet type")
	ErrNoChallenge   = errors.New("mcquery: challenge response has no token")
	ErrParsing       = errors.New("mcquery: failed to parse packet")
)

// ErrNoField is returned when a required NUL-terminated field is absent
// from a stat (query) response.
type ErrNoField struct {
	Field string
}

func (e ErrNoField) Error() string {
	return fmt.Sprintf("mcquery: missing field %q in stat response", e.Field)
}

// Poller owns one connected UDP socket to the child's query port and
// answers CurrentOnline. It is not concurrency-safe: only the proxy task
// that owns it may call its methods (§4.2, §5).
type Poller struct {
	conn *net.UDPConn
}

// New dials a UDP socket connected to addr (typically "127.0.0.1:25566").
// The socket is bound to an ephemeral local port.
func New(addr string) (*Poller, error) {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolving query address %s: %w", addr, err)
	}

	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("dialing query socket %s: %w", addr, err)
	}

	return &Poller{conn: conn}, nil
}

// Close releases the underlying UDP socket.
func (p *Poller) Close() error {
	return p.conn.Close()
}

// CurrentOnline returns the number of players the child currently reports
// connected. It performs the two-packet challenge/query handshake described
// in §4.2, re-synchronising against a stale datagram from the previous
// cycle before sending a new challenge.
func (p *Poller) CurrentOnline() (uint32, error) {
	// Re-sync phase: drain any pending datagram without sending first.
	buf := make([]byte, maxDatagramSize)
	n, err := p.recv(buf)
	switch {
	case err == nil:
		switch buf[0] {
		case typeStat:
			return parseStatResponse(buf[:n])
		case typeChallenge:
			token, perr := parseChallengeResponse(buf[:n])
			if perr != nil {
				return 0, perr
			}
			return p.query(token)
		default:
			return 0, ErrUnknownType
		}
	case errors.Is(err, ErrReadTimeout):
		// Nothing pending; proceed to a fresh challenge below.
	default:
		return 0, err
	}

	token, err := p.challenge()
	if err != nil {
		return 0, err
	}
	return p.query(token)
}

// challenge performs one challenge round-trip and returns the token to use
// for the subsequent query request.
func (p *Poller) challenge() (uint32, error) {
	req := make([]byte, 9)
	req[0], req[1], req[2] = 0xFE, 0xFD, 0x09
	binary.BigEndian.PutUint32(req[3:], sessionID)

	if _, err := p.conn.Write(req); err != nil {
		return 0, fmt.Errorf("mcquery: sending challenge: %w", err)
	}

	buf := make([]byte, maxDatagramSize)
	n, err := p.recv(buf)
	if err != nil {
		return 0, err
	}
	return parseChallengeResponse(buf[:n])
}

// query sends the query request using the given challenge token and
// returns the parsed online count.
func (p *Poller) query(token uint32) (uint32, error) {
	req := make([]byte, 13)
	req[0], req[1], req[2] = 0xFE, 0xFD, 0x00
	binary.BigEndian.PutUint32(req[3:7], sessionID)
	binary.BigEndian.PutUint32(req[7:11], token)

	if _, err := p.conn.Write(req); err != nil {
		return 0, fmt.Errorf("mcquery: sending query: %w", err)
	}

	buf := make([]byte, maxDatagramSize)
	n, err := p.recv(buf)
	if err != nil {
		return 0, err
	}
	return parseStatResponse(buf[:n])
}

// recv reads one datagram with the 1s read timeout (§4.2).
func (p *Poller) recv(buf []byte) (int, error) {
	if err := p.conn.SetReadDeadline(time.Now().Add(readTimeout)); err != nil {
		return 0, fmt.Errorf("mcquery: setting read deadline: %w", err)
	}

	n, err := p.conn.Read(buf)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return 0, ErrReadTimeout
		}
		return 0, fmt.Errorf("mcquery: reading datagram: %w", err)
	}
	return n, nil
}

// parseChallengeResponse parses "type:u8 | sessionId:u32 | asciiDecimalToken \0".
func parseChallengeResponse(data []byte) (uint32, error) {
	if len(data) < 5 {
		return 0, ErrTooShort
	}
	if data[0] != typeChallenge {
		return 0, ErrIncorrectType
	}

	rest := data[5:]
	nul := indexNUL(rest)
	if nul <= 0 {
		return 0, ErrNoChallenge
	}

	token, err := strconv.ParseUint(string(rest[:nul]), 10, 32)
	if err != nil {
		return 0, ErrParsing
	}
	return uint32(token), nil
}

// parseStatResponse parses the "basic stat" response:
// type:u8 | sessionId:u32 | motd\0 gametype\0 map\0 currentOnline\0 maxPlayers\0 ...
func parseStatResponse(data []byte) (uint32, error) {
	if len(data) < 5 {
		return 0, ErrTooShort
	}
	if data[0] != typeStat {
		return 0, ErrIncorrectType
	}

	rest := data[5:]
	fieldNames := []string{"MOTD", "Gametype", "Map", "Current online"}
	var fields []string
	for range fieldNames {
		nul := indexNUL(rest)
		if nul < 0 {
			break
		}
		fields = append(fields, string(rest[:nul]))
		rest = rest[nul+1:]
	}

	for i, name := range fieldNames {
		if i >= len(fields) {
			return 0, ErrNoField{Field: name}
		}
	}

	online, err := strconv.ParseUint(fields[3], 10, 32)
	if err != nil {
		return 0, ErrParsing
	}
	return uint32(online), nil
}

func indexNUL(b []byte) int {
	for i, c := range b {
		if c == 0 {
			return i
		}
	}
	return -1
}
