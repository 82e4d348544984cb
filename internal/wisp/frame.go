// Package wisp implements the binary multiplexed tunnel protocol: one byte
// packet type, a 32-bit little-endian stream id, and a type-specific
// payload, carrying many concurrent TCP flows over a single WebSocket.
package wisp

import "encoding/binary"

// PacketType identifies the frame kind in the first byte of every packet.
type PacketType byte

const (
	PacketConnect  PacketType = 0x01
	PacketData     PacketType = 0x02
	PacketContinue PacketType = 0x03
	PacketClose    PacketType = 0x04
)

// CloseReason is carried in the single payload byte of a CLOSE packet.
type CloseReason byte

const (
	CloseVoluntary    CloseReason = 0x02
	CloseNetworkError CloseReason = 0x03
	CloseInvalidData  CloseReason = 0x41
	CloseForbidden    CloseReason = 0x43
	CloseServerRefused CloseReason = 0x44
)

// tcpType is the only tunnel type this server accepts in a CONNECT payload.
const tcpType byte = 0x01

const headerLen = 1 + 4 // packet type + stream id

// ConnectPayload is the parsed body of a CONNECT packet.
type ConnectPayload struct {
	Port     uint16
	Hostname string
}

// Packet is a parsed frame: type, stream id, and the payload bytes that
// follow the header (a view into the original buffer, not a copy).
type Packet struct {
	Type     PacketType
	StreamID uint32
	Payload  []byte
}

// ParsePacket decodes a frame. Parsing fails soft: truncated headers or
// unknown packet types return ok=false rather than an error, so a caller
// can silently discard the frame instead of tearing down the session.
func ParsePacket(data []byte) (Packet, bool) {
	if len(data) < headerLen {
		return Packet{}, false
	}
	ptype := PacketType(data[0])
	switch ptype {
	case PacketConnect, PacketData, PacketContinue, PacketClose:
	default:
		return Packet{}, false
	}
	streamID := binary.LittleEndian.Uint32(data[1:5])
	return Packet{Type: ptype, StreamID: streamID, Payload: data[headerLen:]}, true
}

// ParseConnect decodes a CONNECT packet's payload. It fails if the tunnel
// type byte isn't 0x01 (TCP) or the payload is shorter than the fixed
// header (type + port).
func ParseConnect(payload []byte) (ConnectPayload, bool) {
	if len(payload) < 3 {
		return ConnectPayload{}, false
	}
	if payload[0] != tcpType {
		return ConnectPayload{}, false
	}
	port := binary.LittleEndian.Uint16(payload[1:3])
	hostname := string(payload[3:])
	return ConnectPayload{Port: port, Hostname: hostname}, true
}

func header(ptype PacketType, streamID uint32) []byte {
	buf := make([]byte, headerLen)
	buf[0] = byte(ptype)
	binary.LittleEndian.PutUint32(buf[1:5], streamID)
	return buf
}

// MakeDataPacket builds a DATA frame carrying the given application bytes.
func MakeDataPacket(streamID uint32, data []byte) []byte {
	return append(header(PacketData, streamID), data...)
}

// MakeContinuePacket builds a CONTINUE frame advertising bufferRemaining.
func MakeContinuePacket(streamID uint32, bufferRemaining uint32) []byte {
	buf := header(PacketContinue, streamID)
	rest := make([]byte, 4)
	binary.LittleEndian.PutUint32(rest, bufferRemaining)
	return append(buf, rest...)
}

// MakeClosePacket builds a CLOSE frame carrying the given reason byte.
func MakeClosePacket(streamID uint32, reason CloseReason) []byte {
	return append(header(PacketClose, streamID), byte(reason))
}

// MakeConnectPacket builds a CONNECT frame for the TCP tunnel type. Used by
// tests to exercise the server's parse path; the server itself only parses
// CONNECT, it never sends one.
func MakeConnectPacket(streamID uint32, port uint16, hostname string) []byte {
	buf := header(PacketConnect, streamID)
	buf = append(buf, tcpType)
	portBytes := make([]byte, 2)
	binary.LittleEndian.PutUint16(portBytes, port)
	buf = append(buf, portBytes...)
	buf = append(buf, []byte(hostname)...)
	return buf
}
