package streaming

import (
	"encoding/json"
	"fmt"
)

// Event names used by the bridge.
const (
	EventConnect    = "connect"
	EventDisconnect = "disconnect"
	EventBridge     = "Bridge"
)

// Event is a named Socket.IO event with its JSON arguments.
type Event struct {
	Name string
	Args []json.RawMessage
}

// Arg returns the i-th argument, or nil if absent.
func (e Event) Arg(i int) json.RawMessage {
	if i < 0 || i >= len(e.Args) {
		return nil
	}
	return e.Args[i]
}

// DecodeEvent parses the data of an EVENT packet: ["name", arg...].
func DecodeEvent(data json.RawMessage) (Event, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return Event{}, fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}
	if len(parts) == 0 {
		return Event{}, fmt.Errorf("%w: missing event name", ErrInvalidEvent)
	}
	var name string
	if err := json.Unmarshal(parts[0], &name); err != nil {
		return Event{}, fmt.Errorf("%w: event name is not a string", ErrInvalidEvent)
	}
	return Event{Name: name, Args: parts[1:]}, nil
}

// EncodeEvent renders a full EVENT frame for the default namespace.
func EncodeEvent(name string, args ...any) ([]byte, error) {
	parts := make([]any, 0, len(args)+1)
	parts = append(parts, name)
	parts = append(parts, args...)
	data, err := json.Marshal(parts)
	if err != nil {
		return nil, fmt.Errorf("encoding event %s: %w", name, err)
	}
	return SocketPacket{Type: SocketEvent, AckID: -1, Data: data}.Encode(), nil
}

// EncodeAck renders an ACK frame answering the given ack id.
func EncodeAck(namespace string, id int, args ...any) ([]byte, error) {
	if args == nil {
		args = []any{}
	}
	data, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encoding ack %d: %w", id, err)
	}
	return SocketPacket{Type: SocketAck, Namespace: namespace, AckID: id, Data: data}.Encode(), nil
}

// OpenPayload is the Engine.IO handshake sent right after the websocket opens.
// Intervals are in milliseconds.
type OpenPayload struct {
	SID          string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int64    `json:"pingInterval"`
	PingTimeout  int64    `json:"pingTimeout"`
	MaxPayload   int64    `json:"maxPayload,omitempty"`
}

// EncodeOpen renders the OPEN frame.
func EncodeOpen(p OpenPayload) ([]byte, error) {
	if p.Upgrades == nil {
		p.Upgrades = []string{}
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encoding open packet: %w", err)
	}
	return Packet{Type: PacketOpen, Data: string(data)}.Encode(), nil
}

// EncodeConnect renders the namespace CONNECT reply. Protocol v4 clients
// expect the session id; v3 clients expect an empty packet, so pass "".
func EncodeConnect(namespace, sid string) []byte {
	p := SocketPacket{Type: SocketConnect, Namespace: namespace, AckID: -1}
	if sid != "" {
		p.Data, _ = json.Marshal(map[string]string{"sid": sid})
	}
	return p.Encode()
}

// EncodeConnectError renders a CONNECT_ERROR for the given namespace.
func EncodeConnectError(namespace, message string) []byte {
	data, _ := json.Marshal(map[string]string{"message": message})
	return SocketPacket{Type: SocketConnectError, Namespace: namespace, AckID: -1, Data: data}.Encode()
}

// Engine.IO handshake error codes.
const (
	ErrorTransportUnknown   = 0
	ErrorUnknownSID         = 1
	ErrorBadHandshakeMethod = 2
	ErrorBadRequest         = 3
	ErrorForbidden          = 4
	ErrorUnsupportedVersion = 5
)

// ErrorBody is the JSON body of a rejected handshake.
type ErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// HandshakeError builds the body for one of the handshake error codes.
func HandshakeError(code int) ErrorBody {
	msg := map[int]string{
		ErrorTransportUnknown:   "Transport unknown",
		ErrorUnknownSID:         "Session ID unknown",
		ErrorBadHandshakeMethod: "Bad handshake method",
		ErrorBadRequest:         "Bad request",
		ErrorForbidden:          "Forbidden",
		ErrorUnsupportedVersion: "Unsupported protocol version",
	}[code]
	return ErrorBody{Code: code, Message: msg}
}
