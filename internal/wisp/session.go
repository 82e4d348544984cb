package wisp

import (
	"context"
	"io"
	"net"
	"strconv"
	"sync"

	cws "github.com/coder/websocket"

	"github.com/pkgforge/pkgforge/pkg/logger"
)

// bufferAdvertised is the fixed CONTINUE buffer value this server emits.
// Client-driven flow control is not implemented in this version — see
// spec.md §9 open questions — so the value never changes.
const bufferAdvertised = 128

// relayBufSize is the chunk size used when reading from a TCP flow before
// wrapping the bytes in a DATA frame.
const relayBufSize = 16 * 1024

// flow is one active TCP connection multiplexed over the WebSocket.
type flow struct {
	conn net.Conn
}

// Session is a per-WebSocket Wisp dispatcher. It owns the map from
// stream id to flow; this map is never shared across connections so a
// single mutex is sufficient (spec.md §5).
type Session struct {
	ws  *cws.Conn
	log logger.Logger

	mu    sync.Mutex
	flows map[uint32]*flow
}

// NewSession wraps an accepted WebSocket connection. Run drives it to
// completion; the caller should discard the Session afterwards.
func NewSession(ws *cws.Conn, log logger.Logger) *Session {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &Session{ws: ws, log: log, flows: make(map[uint32]*flow)}
}

// Run reads frames until the WebSocket closes, dispatching each one. It
// sends the initial handshake CONTINUE(0, 128) before entering the loop.
func (s *Session) Run(ctx context.Context) {
	if err := s.send(ctx, MakeContinuePacket(0, bufferAdvertised)); err != nil {
		return
	}

	for {
		_, data, err := s.ws.Read(ctx)
		if err != nil {
			break
		}
		pkt, ok := ParsePacket(data)
		if !ok {
			continue
		}
		s.dispatch(ctx, pkt)
	}

	s.closeAllFlows()
}

func (s *Session) dispatch(ctx context.Context, pkt Packet) {
	switch pkt.Type {
	case PacketConnect:
		s.handleConnect(ctx, pkt.StreamID, pkt.Payload)
	case PacketData:
		s.handleData(pkt.StreamID, pkt.Payload)
	case PacketClose:
		s.handleClose(pkt.StreamID)
	case PacketContinue:
		// No server-initiated flow control in this version; no-op.
	}
}

func (s *Session) handleConnect(ctx context.Context, streamID uint32, payload []byte) {
	conn, ok := ParseConnect(payload)
	if !ok {
		_ = s.send(ctx, MakeClosePacket(streamID, CloseInvalidData))
		return
	}

	if err := ValidateTarget(conn.Hostname, conn.Port); err != nil {
		_ = s.send(ctx, MakeClosePacket(streamID, CloseForbidden))
		return
	}

	addr := net.JoinHostPort(conn.Hostname, strconv.Itoa(int(conn.Port)))
	tcpConn, err := net.Dial("tcp", addr)
	if err != nil {
		_ = s.send(ctx, MakeClosePacket(streamID, CloseServerRefused))
		return
	}

	s.mu.Lock()
	s.flows[streamID] = &flow{conn: tcpConn}
	s.mu.Unlock()

	if err := s.send(ctx, MakeContinuePacket(streamID, bufferAdvertised)); err != nil {
		s.removeFlow(streamID)
		_ = tcpConn.Close()
		return
	}

	go s.reverseRelay(ctx, streamID, tcpConn)
}

func (s *Session) handleData(streamID uint32, payload []byte) {
	s.mu.Lock()
	f, ok := s.flows[streamID]
	s.mu.Unlock()
	if !ok {
		return
	}
	_, _ = f.conn.Write(payload)
}

func (s *Session) handleClose(streamID uint32) {
	f := s.removeFlow(streamID)
	if f != nil {
		_ = f.conn.Close()
	}
}

// reverseRelay reads TCP bytes in up to 16 KiB chunks and wraps each
// non-empty chunk as a DATA frame; on EOF it emits CLOSE(Voluntary), on a
// read error CLOSE(NetworkError), and always removes the flow afterward.
func (s *Session) reverseRelay(ctx context.Context, streamID uint32, conn net.Conn) {
	buf := make([]byte, relayBufSize)
	for {
		n, err := conn.Read(buf)
		if n > 0 {
			if sendErr := s.send(ctx, MakeDataPacket(streamID, buf[:n])); sendErr != nil {
				break
			}
		}
		if err != nil {
			reason := CloseNetworkError
			if isCleanEOF(err) {
				reason = CloseVoluntary
			}
			_ = s.send(ctx, MakeClosePacket(streamID, reason))
			break
		}
	}
	s.removeFlow(streamID)
}

func (s *Session) removeFlow(streamID uint32) *flow {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.flows[streamID]
	delete(s.flows, streamID)
	return f
}

// closeAllFlows drops every registered write half on WebSocket close; the
// outstanding reverse relays then observe a write/read failure on their
// next iteration and exit on their own.
func (s *Session) closeAllFlows() {
	s.mu.Lock()
	flows := s.flows
	s.flows = make(map[uint32]*flow)
	s.mu.Unlock()
	for _, f := range flows {
		_ = f.conn.Close()
	}
}

func (s *Session) send(ctx context.Context, data []byte) error {
	return s.ws.Write(ctx, cws.MessageBinary, data)
}

func isCleanEOF(err error) bool {
	return err == io.EOF
}
