package wisp

import (
	"net"
	"testing"
	"time"
)

// TestRelayBufferReadsTCPBytes reads from a real TCP connection into a
// relayBufSize buffer, the read reverseRelay performs; it does not call
// reverseRelay or involve a WebSocket.
func TestRelayBufferReadsTCPBytes(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		_, _ = c.Write([]byte("hello"))
	}()

	clientConn, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer clientConn.Close()

	buf := make([]byte, relayBufSize)
	n, err := clientConn.Read(buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(buf[:n]) != "hello" {
		t.Fatalf("got %q", buf[:n])
	}

	select {
	case <-serverDone:
	case <-time.After(time.Second):
		t.Fatal("server goroutine did not finish")
	}
}

func TestSessionRemoveFlowIsIdempotent(t *testing.T) {
	s := &Session{flows: make(map[uint32]*flow)}
	s.flows[1] = &flow{}
	first := s.removeFlow(1)
	if first == nil {
		t.Fatal("expected flow on first removal")
	}
	second := s.removeFlow(1)
	if second != nil {
		t.Fatal("expected nil on second removal")
	}
}

func TestSessionCloseAllFlowsClearsMap(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	c, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}

	s := &Session{flows: map[uint32]*flow{1: {conn: c}}}
	s.closeAllFlows()
	if len(s.flows) != 0 {
		t.Fatalf("expected flows cleared, got %d", len(s.flows))
	}
}
