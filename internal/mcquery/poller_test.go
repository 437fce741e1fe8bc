package mcquery

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/mc-ondemand/internal/testutil"
)

// fakeChild answers challenge/query datagrams like a real MC query server.
func fakeChild(t *testing.T, conn *net.UDPConn, handle func(from *net.UDPAddr, pkt []byte)) {
	t.Helper()
	go func() {
		buf := make([]byte, 4096)
		for {
			n, from, err := conn.ReadFromUDP(buf)
			if err != nil {
				return
			}
			handle(from, append([]byte(nil), buf[:n]...))
		}
	}()
}

func challengeResponse(token uint32) []byte {
	resp := make([]byte, 0, 16)
	resp = append(resp, typeChallenge)
	resp = append(resp, 0, 0, 0, 1)
	resp = append(resp, []byte(itoa(token))...)
	resp = append(resp, 0)
	return resp
}

func itoa(v uint32) string {
	return string([]byte{
		'0' + byte(v/1000%10),
		'0' + byte(v/100%10),
		'0' + byte(v/10%10),
		'0' + byte(v%10),
	})
}

func statResponse(online uint32) []byte {
	resp := make([]byte, 0, 64)
	resp = append(resp, typeStat)
	resp = append(resp, 0, 0, 0, 1)
	resp = append(resp, []byte("a MOTD\x00SMP\x00world\x00")...)
	resp = append(resp, []byte(itoa(online))...)
	resp = append(resp, 0)
	resp = append(resp, []byte("20\x00")...)
	return resp
}

func TestPoller_CurrentOnline_HappyPath(t *testing.T) {
	serverConn, addr := testutil.ListenUDP(t)

	fakeChild(t, serverConn, func(from *net.UDPAddr, pkt []byte) {
		switch pkt[2] {
		case 0x09:
			_, _ = serverConn.WriteToUDP(challengeResponse(4242), from)
		case 0x00:
			_, _ = serverConn.WriteToUDP(statResponse(3), from)
		}
	})

	p, err := New(addr)
	require.NoError(t, err)
	defer p.Close()

	online, err := p.CurrentOnline()
	require.NoError(t, err)
	assert.Equal(t, uint32(3), online)
}

func TestPoller_CurrentOnline_StaleReply_ReSyncs(t *testing.T) {
	serverConn, addr := testutil.ListenUDP(t)

	p, err := New(addr)
	require.NoError(t, err)
	defer p.Close()

	clientAddr := p.conn.LocalAddr().(*net.UDPAddr)

	// Simulate cycle N's stat reply arriving late, before cycle N+1 sends
	// anything. The poller must consume it on the re-sync read rather than
	// sending a fresh challenge.
	_, err = serverConn.WriteToUDP(statResponse(7), clientAddr)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	online, err := p.CurrentOnline()
	require.NoError(t, err)
	assert.Equal(t, uint32(7), online)
}

func TestPoller_CurrentOnline_ReadTimeout(t *testing.T) {
	_, addr := testutil.ListenUDP(t) // nobody answers

	p, err := New(addr)
	require.NoError(t, err)
	defer p.Close()

	_, err = p.CurrentOnline()
	require.ErrorIs(t, err, ErrReadTimeout)
}

func TestParseChallengeResponse_TooShort(t *testing.T) {
	_, err := parseChallengeResponse([]byte{0x09, 0, 0})
	assert.ErrorIs(t, err, ErrTooShort)
}

func TestParseChallengeResponse_IncorrectType(t *testing.T) {
	pkt := []byte{0x00, 0, 0, 0, 1, '1', '2', 0}
	_, err := parseChallengeResponse(pkt)
	assert.ErrorIs(t, err, ErrIncorrectType)
}

func TestParseChallengeResponse_NoChallenge(t *testing.T) {
	// Empty body between the 5th byte and the first NUL (§8 property 7).
	pkt := []byte{0x09, 0, 0, 0, 1, 0}
	_, err := parseChallengeResponse(pkt)
	assert.ErrorIs(t, err, ErrNoChallenge)
}

func TestParseStatResponse_MissingCurrentOnline(t *testing.T) {
	// Only MOTD/gametype/map present, 4th field (current online) missing
	// (§8 property 8).
	pkt := []byte{0x00, 0, 0, 0, 1}
	pkt = append(pkt, []byte("motd\x00gt\x00map\x00")...)
	_, err := parseStatResponse(pkt)
	var noField ErrNoField
	require.ErrorAs(t, err, &noField)
	assert.Equal(t, "Current online", noField.Field)
}

func TestParseStatResponse_OK(t *testing.T) {
	pkt := statResponse(5)
	online, err := parseStatResponse(pkt)
	require.NoError(t, err)
	assert.Equal(t, uint32(5), online)
}

func TestIndexNUL(t *testing.T) {
	assert.Equal(t, 3, indexNUL([]byte("abc\x00def")))
	assert.Equal(t, -1, indexNUL([]byte("abcdef")))
}

func TestChallengeWireFormat(t *testing.T) {
	serverConn, addr := testutil.ListenUDP(t)

	received := make(chan []byte, 1)
	fakeChild(t, serverConn, func(from *net.UDPAddr, pkt []byte) {
		if pkt[2] == 0x09 {
			received <- pkt
			_, _ = serverConn.WriteToUDP(challengeResponse(1), from)
		} else {
			_, _ = serverConn.WriteToUDP(statResponse(0), from)
		}
	})

	p, err := New(addr)
	require.NoError(t, err)
	defer p.Close()

	_, err = p.CurrentOnline()
	require.NoError(t, err)

	select {
	case pkt := <-received:
		require.Len(t, pkt, 9)
		testutil.AssertPacketType(t, 0xFE, pkt)
		testutil.AssertByteAtOffset(t, 0xFD, pkt, 1)
		testutil.AssertByteAtOffset(t, 0x09, pkt, 2)
		testutil.AssertUint32BE(t, 1, pkt, 3)
	case <-time.After(time.Second):
		t.Fatal("challenge packet never received")
	}
}

func TestQueryWireFormat(t *testing.T) {
	serverConn, addr := testutil.ListenUDP(t)

	received := make(chan []byte, 1)
	fakeChild(t, serverConn, func(from *net.UDPAddr, pkt []byte) {
		switch pkt[2] {
		case 0x09:
			_, _ = serverConn.WriteToUDP(challengeResponse(99), from)
		case 0x00:
			received <- pkt
			_, _ = serverConn.WriteToUDP(statResponse(2), from)
		}
	})

	p, err := New(addr)
	require.NoError(t, err)
	defer p.Close()

	_, err = p.CurrentOnline()
	require.NoError(t, err)

	select {
	case pkt := <-received:
		testutil.AssertPacketMinLength(t, 11, pkt)
		testutil.AssertBytesEqual(t, []byte{0xFE, 0xFD, 0x00}, pkt[:3], "query packet magic+type prefix")
		testutil.AssertUint32BE(t, 99, pkt, 7)
		t.Logf("query packet:\n%s", testutil.DumpPacket(pkt))
	case <-time.After(time.Second):
		t.Fatal("query packet never received")
	}
}
