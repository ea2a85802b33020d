// Package transport serves the Socket.IO event channel over websockets.
//
// Only the websocket transport is offered. Engine.IO protocol v4 and v3
// clients are both accepted; v4 peers are pinged by the server, v3 peers
// ping the server themselves. Inbound events are handed to a dispatcher,
// outbound events are broadcast to every connected peer.
package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"

	"github.com/opencav/shmbridge/internal/dispatcher"
	"github.com/opencav/shmbridge/pkg/streaming"
)

var (
	ErrServerClosed    = errors.New("transport closed")
	ErrPeerClosed      = errors.New("peer closed")
	ErrSendBufferFull  = errors.New("peer send buffer full")
	ErrInvalidProtocol = errors.New("unsupported engine.io protocol")
)

// Dispatcher receives inbound events. *dispatcher.Dispatcher implements it.
type Dispatcher interface {
	Dispatch(dispatcher.Event) (any, error)
}

// Config tunes the websocket sessions.
type Config struct {
	PingInterval time.Duration
	PingTimeout  time.Duration
	// SendBuffer is the number of outbound frames queued per peer.
	SendBuffer int
	// MaxPayload is the largest inbound frame accepted, in bytes.
	MaxPayload int64
	WriteWait  time.Duration
	// CheckOrigin overrides the origin check; nil accepts every origin.
	CheckOrigin func(*http.Request) bool
}

// DefaultConfig mirrors the Engine.IO reference server defaults.
func DefaultConfig() Config {
	return Config{
		PingInterval: 25 * time.Second,
		PingTimeout:  20 * time.Second,
		SendBuffer:   64,
		MaxPayload:   1_000_000,
		WriteWait:    10 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.PingInterval <= 0 {
		c.PingInterval = def.PingInterval
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = def.PingTimeout
	}
	if c.SendBuffer < 1 {
		c.SendBuffer = def.SendBuffer
	}
	if c.MaxPayload <= 0 {
		c.MaxPayload = def.MaxPayload
	}
	if c.WriteWait <= 0 {
		c.WriteWait = def.WriteWait
	}
	return c
}

// Server accepts event-channel peers and broadcasts events to them.
type Server struct {
	cfg        Config
	dispatcher Dispatcher
	logger     *slog.Logger
	upgrader   ws.Upgrader

	mu      sync.RWMutex
	peers   map[string]*peer
	closed  bool
	onCount func(int)

	loops sync.WaitGroup
}

// NewServer creates a server that forwards inbound events to d.
func NewServer(cfg Config, d Dispatcher, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()
	checkOrigin := cfg.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &Server{
		cfg:        cfg,
		dispatcher: d,
		logger:     logger.With("component", "transport"),
		upgrader:   ws.Upgrader{CheckOrigin: checkOrigin},
		peers:      make(map[string]*peer),
	}
}

// OnPeerCountChange registers a callback invoked with the new peer count
// whenever a peer connects or goes away.
func (s *Server) OnPeerCountChange(fn func(int)) {
	s.mu.Lock()
	s.onCount = fn
	s.mu.Unlock()
}

// PeerCount returns the number of connected peers.
func (s *Server) PeerCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.peers)
}

// ServeHTTP performs the Engine.IO websocket handshake.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	proto, err := parseProtocol(q.Get("EIO"))
	if err != nil {
		writeHandshakeError(w, http.StatusBadRequest, streaming.ErrorUnsupportedVersion)
		return
	}
	if q.Get("transport") != "websocket" {
		writeHandshakeError(w, http.StatusBadRequest, streaming.ErrorTransportUnknown)
		return
	}
	if q.Get("sid") != "" {
		// There are no polling sessions to upgrade.
		writeHandshakeError(w, http.StatusBadRequest, streaming.ErrorUnknownSID)
		return
	}
	if r.Method != http.MethodGet {
		writeHandshakeError(w, http.StatusBadRequest, streaming.ErrorBadHandshakeMethod)
		return
	}
	if !ws.IsWebSocketUpgrade(r) {
		writeHandshakeError(w, http.StatusBadRequest, streaming.ErrorBadRequest)
		return
	}

	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		http.Error(w, ErrServerClosed.Error(), http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("WebSocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	p := newPeer(uuid.NewString(), proto, conn, s.cfg, s.logger)
	if err := s.add(p); err != nil {
		p.close()
		return
	}

	open, err := streaming.EncodeOpen(streaming.OpenPayload{
		SID:          p.id,
		PingInterval: s.cfg.PingInterval.Milliseconds(),
		PingTimeout:  s.cfg.PingTimeout.Milliseconds(),
		MaxPayload:   s.cfg.MaxPayload,
	})
	if err != nil {
		s.logger.Error("Failed to encode open packet", "error", err)
		s.remove(p)
		p.close()
		return
	}
	_ = p.send(open)

	s.logger.Info("Peer connected", "sid", p.id, "remote", r.RemoteAddr, "eio", proto)

	go p.writeLoop()
	if proto == 4 {
		go p.pingLoop()
	} else {
		// v3 clients are joined to the default namespace implicitly.
		_ = p.send(streaming.EncodeConnect(streaming.DefaultNamespace, ""))
		s.join(p, nil)
	}

	s.loops.Add(1)
	go func() {
		defer s.loops.Done()
		s.readLoop(p)
	}()
}

// Emit broadcasts an event to every peer joined to the default namespace.
// Having no peers is not an error. Per-peer failures are joined.
func (s *Server) Emit(event string, payload any) error {
	frame, err := streaming.EncodeEvent(event, payload)
	if err != nil {
		return err
	}

	s.mu.RLock()
	targets := make([]*peer, 0, len(s.peers))
	for _, p := range s.peers {
		if p.joined.Load() {
			targets = append(targets, p)
		}
	}
	s.mu.RUnlock()

	var errs []error
	for _, p := range targets {
		if err := p.send(frame); err != nil {
			errs = append(errs, fmt.Errorf("peer %s: %w", p.id, err))
		}
	}
	return errors.Join(errs...)
}

// Close disconnects every peer and waits for their read loops to finish,
// so disconnect events are dispatched before Close returns.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	peers := make([]*peer, 0, len(s.peers))
	for _, p := range s.peers {
		peers = append(peers, p)
	}
	s.mu.Unlock()

	for _, p := range peers {
		p.close()
	}
	s.loops.Wait()
	return nil
}

func (s *Server) add(p *peer) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrServerClosed
	}
	s.peers[p.id] = p
	n, fn := len(s.peers), s.onCount
	s.mu.Unlock()

	if fn != nil {
		fn(n)
	}
	return nil
}

func (s *Server) remove(p *peer) {
	s.mu.Lock()
	if _, ok := s.peers[p.id]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.peers, p.id)
	n, fn := len(s.peers), s.onCount
	s.mu.Unlock()

	if fn != nil {
		fn(n)
	}
}

func parseProtocol(v string) (int, error) {
	switch v {
	case "4":
		return 4, nil
	case "3":
		return 3, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidProtocol, v)
	}
}

func writeHandshakeError(w http.ResponseWriter, status, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(streaming.HandshakeError(code))
}
