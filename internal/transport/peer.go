package transport

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/opencav/shmbridge/internal/channel"
	"github.com/opencav/shmbridge/internal/dispatcher"
	"github.com/opencav/shmbridge/pkg/streaming"
)

// peer is one websocket session with a single write goroutine.
type peer struct {
	id     string
	proto  int
	conn   *ws.Conn
	cfg    Config
	out    *channel.Buffered[[]byte]
	done   chan struct{}
	once   sync.Once
	joined atomic.Bool
	logger *slog.Logger
}

func newPeer(id string, proto int, conn *ws.Conn, cfg Config, logger *slog.Logger) *peer {
	return &peer{
		id:     id,
		proto:  proto,
		conn:   conn,
		cfg:    cfg,
		out:    channel.NewBuffered[[]byte](cfg.SendBuffer),
		done:   make(chan struct{}),
		logger: logger.With("sid", id),
	}
}

// send queues a frame for the write loop without blocking.
func (p *peer) send(frame []byte) error {
	select {
	case <-p.done:
		return ErrPeerClosed
	default:
	}
	if !p.out.TrySend(frame) {
		return ErrSendBufferFull
	}
	return nil
}

// writeLoop drains the outbound queue. It returns on write error or close.
func (p *peer) writeLoop() {
	for {
		select {
		case <-p.done:
			return
		case frame := <-p.out.Receive():
			if err := p.conn.SetWriteDeadline(time.Now().Add(p.cfg.WriteWait)); err != nil {
				p.logger.Warn("WebSocket SetWriteDeadline error", "error", err)
				p.close()
				return
			}
			if err := p.conn.WriteMessage(ws.TextMessage, frame); err != nil {
				p.logger.Warn("WebSocket write error", "error", err)
				p.close()
				return
			}
		}
	}
}

// pingLoop sends protocol v4 heartbeats. A missing pong surfaces as a read timeout.
func (p *peer) pingLoop() {
	ticker := time.NewTicker(p.cfg.PingInterval)
	defer ticker.Stop()

	ping := streaming.Packet{Type: streaming.PacketPing}.Encode()
	for {
		select {
		case <-p.done:
			return
		case <-ticker.C:
			if err := p.send(ping); err != nil {
				p.logger.Warn("Failed to queue ping", "error", err)
				p.close()
				return
			}
		}
	}
}

func (p *peer) extendReadDeadline() error {
	return p.conn.SetReadDeadline(time.Now().Add(p.cfg.PingInterval + p.cfg.PingTimeout))
}

// close sends a close frame and tears the connection down. Safe to call repeatedly.
func (p *peer) close() {
	p.once.Do(func() {
		close(p.done)
		_ = p.conn.WriteControl(
			ws.CloseMessage,
			ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		_ = p.conn.Close()
	})
}

// readLoop decodes inbound frames until the connection ends.
func (s *Server) readLoop(p *peer) {
	defer func() {
		p.close()
		s.remove(p)
		s.leave(p, "transport close")
	}()

	if p.cfg.MaxPayload > 0 {
		p.conn.SetReadLimit(p.cfg.MaxPayload)
	}

	for {
		if err := p.extendReadDeadline(); err != nil {
			return
		}
		kind, frame, err := p.conn.ReadMessage()
		if err != nil {
			select {
			case <-p.done:
			default:
				if ws.IsUnexpectedCloseError(err, ws.CloseNormalClosure, ws.CloseGoingAway) {
					p.logger.Warn("WebSocket read error", "error", err)
				} else {
					p.logger.Debug("WebSocket closed", "error", err)
				}
			}
			return
		}
		if kind != ws.TextMessage {
			p.logger.Debug("Ignoring binary frame", "bytes", len(frame))
			continue
		}

		pkt, err := streaming.DecodePacket(frame)
		if err != nil {
			p.logger.Debug("Ignoring malformed packet", "error", err)
			continue
		}

		switch pkt.Type {
		case streaming.PacketPing:
			_ = p.send(streaming.Packet{Type: streaming.PacketPong, Data: pkt.Data}.Encode())
		case streaming.PacketClose:
			return
		case streaming.PacketMessage:
			s.handleMessage(p, pkt.Data)
		}
	}
}

func (s *Server) handleMessage(p *peer, payload string) {
	sp, err := streaming.DecodeSocketPacket(payload)
	if err != nil {
		p.logger.Debug("Ignoring socket packet", "error", err)
		return
	}

	if sp.Namespace != streaming.DefaultNamespace {
		if sp.Type == streaming.SocketConnect {
			_ = p.send(streaming.EncodeConnectError(sp.Namespace, "Invalid namespace"))
		}
		return
	}

	switch sp.Type {
	case streaming.SocketConnect:
		if p.proto == 4 && !p.joined.Load() {
			_ = p.send(streaming.EncodeConnect(streaming.DefaultNamespace, p.id))
		}
		s.join(p, sp.Data)
	case streaming.SocketDisconnect:
		s.leave(p, "client namespace disconnect")
	case streaming.SocketEvent:
		if !p.joined.Load() {
			p.logger.Debug("Event before namespace connect, ignoring")
			return
		}
		s.handleEvent(p, sp)
	}
}

func (s *Server) handleEvent(p *peer, sp streaming.SocketPacket) {
	ev, err := streaming.DecodeEvent(sp.Data)
	if err != nil {
		p.logger.Debug("Ignoring event", "error", err)
		return
	}

	result, err := s.dispatcher.Dispatch(dispatcher.Event{
		Name:      ev.Name,
		Peer:      p.id,
		Data:      ev.Arg(0),
		Timestamp: time.Now(),
	})
	switch {
	case errors.Is(err, dispatcher.ErrUnknownEvent):
		p.logger.Debug("No handler for event", "event", ev.Name)
	case err != nil:
		p.logger.Warn("Dispatch failed", "event", ev.Name, "error", err)
	}

	if sp.AckID >= 0 {
		var args []any
		if err == nil && result != nil {
			args = append(args, result)
		}
		ack, err := streaming.EncodeAck(sp.Namespace, sp.AckID, args...)
		if err != nil {
			p.logger.Warn("Failed to encode ack", "event", ev.Name, "error", err)
			return
		}
		_ = p.send(ack)
	}
}

// join marks the peer as connected to the default namespace and raises connect.
func (s *Server) join(p *peer, auth json.RawMessage) {
	if p.joined.Swap(true) {
		return
	}
	s.raise(p, streaming.EventConnect, auth)
}

// leave raises disconnect once for a joined peer.
func (s *Server) leave(p *peer, reason string) {
	if !p.joined.Swap(false) {
		return
	}
	data, _ := json.Marshal(reason)
	s.raise(p, streaming.EventDisconnect, data)
}

func (s *Server) raise(p *peer, name string, data json.RawMessage) {
	_, err := s.dispatcher.Dispatch(dispatcher.Event{
		Name:      name,
		Peer:      p.id,
		Data:      data,
		Timestamp: time.Now(),
	})
	if err != nil && !errors.Is(err, dispatcher.ErrUnknownEvent) {
		p.logger.Warn("Dispatch failed", "event", name, "error", err)
	}
}
