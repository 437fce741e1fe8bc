package testutil

import (
	"net"
	"testing"
)

// ListenTCP creates a TCP listener on a random port, closed automatically at test end.
// Returns the listener and its address as "host:port".
func ListenTCP(t testing.TB) (net.Listener, string) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to create TCP listener: %v", err)
	}

	t.Cleanup(func() {
		_ = listener.Close()
	})

	return listener, listener.Addr().String()
}

// ListenUDP creates a UDP socket on a random port, closed automatically at test end.
func ListenUDP(t testing.TB) (*net.UDPConn, string) {
	t.Helper()

	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	if err != nil {
		t.Fatalf("failed to create UDP socket: %v", err)
	}

	t.Cleanup(func() {
		_ = conn.Close()
	})

	return conn, conn.LocalAddr().String()
}
