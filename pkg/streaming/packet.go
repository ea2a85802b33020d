package streaming

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrEmptyPacket       = errors.New("empty packet")
	ErrInvalidPacket     = errors.New("invalid packet type")
	ErrBinaryUnsupported = errors.New("binary packets are not supported")
	ErrInvalidEvent      = errors.New("invalid event payload")
)

// DefaultNamespace is the only namespace the bridge serves.
const DefaultNamespace = "/"

// PacketType is an Engine.IO packet type.
type PacketType byte

const (
	PacketOpen    PacketType = '0'
	PacketClose   PacketType = '1'
	PacketPing    PacketType = '2'
	PacketPong    PacketType = '3'
	PacketMessage PacketType = '4'
	PacketUpgrade PacketType = '5'
	PacketNoop    PacketType = '6'
)

// SocketType is a Socket.IO packet type, carried inside PacketMessage.
type SocketType byte

const (
	SocketConnect      SocketType = '0'
	SocketDisconnect   SocketType = '1'
	SocketEvent        SocketType = '2'
	SocketAck          SocketType = '3'
	SocketConnectError SocketType = '4'
	SocketBinaryEvent  SocketType = '5'
	SocketBinaryAck    SocketType = '6'
)

// Packet is a decoded Engine.IO packet.
type Packet struct {
	Type PacketType
	Data string
}

// Encode renders the packet as a websocket text frame.
func (p Packet) Encode() []byte {
	return append([]byte{byte(p.Type)}, p.Data...)
}

// DecodePacket parses one websocket text frame.
func DecodePacket(frame []byte) (Packet, error) {
	if len(frame) == 0 {
		return Packet{}, ErrEmptyPacket
	}
	t := PacketType(frame[0])
	if t < PacketOpen || t > PacketNoop {
		return Packet{}, fmt.Errorf("%w: %q", ErrInvalidPacket, frame[0])
	}
	return Packet{Type: t, Data: string(frame[1:])}, nil
}

// SocketPacket is a decoded Socket.IO packet.
type SocketPacket struct {
	Type      SocketType
	Namespace string
	// AckID is -1 when the sender does not expect an acknowledgement.
	AckID int
	Data  json.RawMessage
}

// DecodeSocketPacket parses the payload of an Engine.IO message packet.
func DecodeSocketPacket(payload string) (SocketPacket, error) {
	if payload == "" {
		return SocketPacket{}, ErrEmptyPacket
	}
	t := SocketType(payload[0])
	switch {
	case t == SocketBinaryEvent || t == SocketBinaryAck:
		return SocketPacket{}, ErrBinaryUnsupported
	case t < SocketConnect || t > SocketBinaryAck:
		return SocketPacket{}, fmt.Errorf("%w: %q", ErrInvalidPacket, payload[0])
	}

	p := SocketPacket{Type: t, Namespace: DefaultNamespace, AckID: -1}
	rest := payload[1:]

	if strings.HasPrefix(rest, "/") {
		ns, after, found := strings.Cut(rest, ",")
		p.Namespace = ns
		if found {
			rest = after
		} else {
			rest = ""
		}
	}

	i := 0
	for i < len(rest) && rest[i] >= '0' && rest[i] <= '9' {
		i++
	}
	if i > 0 {
		id, err := strconv.Atoi(rest[:i])
		if err != nil {
			return SocketPacket{}, fmt.Errorf("%w: ack id: %w", ErrInvalidPacket, err)
		}
		p.AckID = id
		rest = rest[i:]
	}

	if rest != "" {
		if !json.Valid([]byte(rest)) {
			return SocketPacket{}, fmt.Errorf("%w: payload is not JSON", ErrInvalidPacket)
		}
		p.Data = json.RawMessage(rest)
	}
	return p, nil
}

// Encode renders the packet wrapped in an Engine.IO message packet.
func (p SocketPacket) Encode() []byte {
	var b strings.Builder
	b.WriteByte(byte(PacketMessage))
	b.WriteByte(byte(p.Type))
	if p.Namespace != "" && p.Namespace != DefaultNamespace {
		b.WriteString(p.Namespace)
		b.WriteByte(',')
	}
	if p.AckID >= 0 {
		b.WriteString(strconv.Itoa(p.AckID))
	}
	b.Write(p.Data)
	return []byte(b.String())
}
