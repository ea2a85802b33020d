package bridge

import (
	"github.com/opencav/shmbridge/internal/dispatcher"
	"github.com/opencav/shmbridge/pkg/streaming"
)

// RegisterHandlers wires the bridge into the event dispatch table.
// Telemetry goes through a single blocking queue, so ticks run one at a
// time in arrival order and a slow tick backs up the transport instead of
// dropping telemetry.
func (b *Bridge) RegisterHandlers(d *dispatcher.Dispatcher) {
	d.Register(streaming.EventConnect, b.handleConnect, dispatcher.Logged())
	d.Register(streaming.EventDisconnect, b.handleDisconnect, dispatcher.Logged())

	d.Register(b.cfg.EventName, b.handleTelemetry,
		dispatcher.Buffered(b.cfg.QueueSize), dispatcher.Blocking(), dispatcher.Logged())
}

func (b *Bridge) handleConnect(e dispatcher.Event) (any, error) {
	b.logger.Info("Event channel peer connected", "sid", e.Peer)
	return nil, nil
}

func (b *Bridge) handleDisconnect(e dispatcher.Event) (any, error) {
	b.logger.Info("Event channel peer disconnected", "sid", e.Peer, "reason", string(e.Data))
	return nil, nil
}

func (b *Bridge) handleTelemetry(e dispatcher.Event) (any, error) {
	msg, err := b.Tick(e.Data)
	if err != nil {
		return nil, err
	}
	return msg, nil
}
