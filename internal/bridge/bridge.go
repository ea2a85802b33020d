// Package bridge connects vehicle telemetry to the shared memory segment the
// external controller polls, and turns the controller's setpoints back into
// simulator commands.
//
// Every telemetry tick runs the same pipeline:
//
//	decode telemetry -> DTC -> shared memory
//	shared memory -> actuator setpoints / 100
//	environment + vehicle commands -> one merged message -> broadcast
//
// Ticks never overlap. Close is the teardown hook: it waits for the running
// tick, then closes and unlinks the segment.
package bridge

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/opencav/shmbridge/internal/actuator"
	"github.com/opencav/shmbridge/internal/monitor"
	"github.com/opencav/shmbridge/internal/planning"
	"github.com/opencav/shmbridge/internal/shm"
	"github.com/opencav/shmbridge/pkg/core"
	"github.com/opencav/shmbridge/pkg/streaming"
)

// ErrClosed is returned by Tick after Close.
var ErrClosed = errors.New("bridge closed")

// Segment is the shared memory the bridge owns. *shm.Segment implements it.
type Segment interface {
	ReadFloat64(offset int) (float64, error)
	WriteFloat64(offset int, v float64) error
	Name() string
	Close() error
	Unlink() error
}

// Vehicle decodes telemetry and renders vehicle commands. sim.Vehicle implements it.
type Vehicle interface {
	ParseTelemetry(data []byte) (core.VehicleState, error)
	GenerateCommands(cmd core.VehicleCommands) map[string]string
}

// Environment renders environment commands. sim.Environment implements it.
type Environment interface {
	GenerateCommands(cfg core.EnvironmentConfig) map[string]string
}

// Publisher broadcasts an event to the event channel. *transport.Server implements it.
type Publisher interface {
	Emit(event string, payload any) error
}

// Config holds the per-deployment constants of the bridge.
type Config struct {
	VehicleID   string
	Target      core.Vec3
	Environment core.EnvironmentConfig
	CosimMode   int
	Headlights  core.HeadlightMode
	// EventName is used for both inbound telemetry and outbound commands.
	EventName string
	// QueueSize bounds the telemetry events waiting for the tick worker.
	QueueSize int
}

// DefaultConfig returns the reference scenario settings.
func DefaultConfig() Config {
	return Config{
		VehicleID: "V1",
		Target:    planning.DefaultTarget,
		Environment: core.EnvironmentConfig{
			AutoTime:  false,
			TimeScale: 60,
			TimeOfDay: 560,
			WeatherID: core.WeatherLightFog,
		},
		CosimMode:  0,
		Headlights: core.HeadlightsDisabled,
		EventName:  streaming.EventBridge,
		QueueSize:  64,
	}
}

// Dependencies holds the collaborators of a Bridge.
type Dependencies struct {
	Segment     Segment
	Vehicle     Vehicle
	Environment Environment
	Publisher   Publisher
	Metrics     *monitor.Metrics
	Logger      *slog.Logger
}

// Bridge is the telemetry event handler and owner of the shared memory segment.
type Bridge struct {
	cfg  Config
	deps Dependencies

	logger *slog.Logger
	dump   rate.Sometimes
	state  atomic.Int32

	mu     sync.Mutex
	closed bool
	stats  stats
}

type stats struct {
	ticks            uint64
	failedTicks      uint64
	publishFailures  uint64
	lastTick         time.Time
	lastTickDuration time.Duration
}

// New creates a Bridge. The segment must already exist.
func New(cfg Config, deps Dependencies) (*Bridge, error) {
	if deps.Segment == nil || deps.Vehicle == nil || deps.Environment == nil || deps.Publisher == nil {
		return nil, errors.New("bridge: segment, vehicle, environment and publisher are required")
	}
	if cfg.EventName == "" {
		cfg.EventName = streaming.EventBridge
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Bridge{
		cfg:    cfg,
		deps:   deps,
		logger: logger.With("component", "bridge", "segment", deps.Segment.Name()),
		dump:   rate.Sometimes{Interval: time.Second},
	}, nil
}

// State returns the current processing state.
func (b *Bridge) State() State {
	return State(b.state.Load())
}

// Tick handles one telemetry payload and returns the message it published.
// An empty or null payload is ignored and yields (nil, nil).
// Publishing failures are logged and counted, never returned.
func (b *Bridge) Tick(data []byte) (core.CommandMessage, error) {
	if isEmptyPayload(data) {
		return nil, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		b.deps.Metrics.ObserveTick(monitor.OutcomeClosed, 0)
		return nil, ErrClosed
	}

	b.state.Store(int32(StateProcessing))
	defer b.state.Store(int32(StateIdle))

	start := time.Now()
	msg, outcome, err := b.tick(data)
	elapsed := time.Since(start)

	b.deps.Metrics.ObserveTick(outcome, elapsed)
	b.stats.ticks++
	b.stats.lastTick = start
	b.stats.lastTickDuration = elapsed
	if err != nil {
		b.stats.failedTicks++
		return nil, err
	}
	return msg, nil
}

func (b *Bridge) tick(data []byte) (core.CommandMessage, string, error) {
	state, err := b.deps.Vehicle.ParseTelemetry(data)
	if err != nil {
		return nil, monitor.OutcomeParseError, fmt.Errorf("decoding telemetry: %w", err)
	}

	dtc := planning.ComputeDTC(state.Position, b.cfg.Target)
	if err := b.deps.Segment.WriteFloat64(shm.OffsetDTC, dtc); err != nil {
		return nil, monitor.OutcomeShmError, fmt.Errorf("writing %s: %w", shm.FieldDTC.Name, err)
	}

	raw, err := actuator.Raw(b.deps.Segment)
	if err != nil {
		return nil, monitor.OutcomeShmError, err
	}
	b.dumpFields(raw, dtc)

	vehicle := core.VehicleCommands{
		CosimMode:        b.cfg.CosimMode,
		ActuatorCommands: actuator.Normalize(raw),
		Headlights:       b.cfg.Headlights,
		Indicators:       IndicatorFor(state.CollisionCount),
	}

	msg := Synthesize(
		b.deps.Environment.GenerateCommands(b.cfg.Environment),
		b.deps.Vehicle.GenerateCommands(vehicle),
	)
	b.publish(msg)

	return msg, monitor.OutcomeOK, nil
}

// publish broadcasts the message. A failure does not abort the tick.
func (b *Bridge) publish(msg core.CommandMessage) {
	if err := b.deps.Publisher.Emit(b.cfg.EventName, msg); err != nil {
		b.stats.publishFailures++
		b.deps.Metrics.PublishFailed()
		b.logger.Warn("Failed to publish commands", "event", b.cfg.EventName, "error", err)
	}
}

// dumpFields logs the shared values every tick at debug level and at most once a second at info.
func (b *Bridge) dumpFields(raw core.ActuatorCommands, dtc float64) {
	attrs := []any{
		shm.FieldThrottle.Name, raw.Throttle,
		shm.FieldSteering.Name, raw.Steering,
		shm.FieldBrake.Name, raw.Brake,
		shm.FieldHandbrake.Name, raw.Handbrake,
		shm.FieldDTC.Name, dtc,
	}
	b.logger.Debug("Shared memory", attrs...)
	b.dump.Do(func() {
		b.logger.Info("Shared memory", attrs...)
	})
}

// Status returns an operational snapshot.
func (b *Bridge) Status() core.BridgeStatus {
	b.mu.Lock()
	s := b.stats
	b.mu.Unlock()

	return core.BridgeStatus{
		Time:             time.Now(),
		State:            b.State().String(),
		Segment:          b.deps.Segment.Name(),
		VehicleID:        b.cfg.VehicleID,
		Ticks:            s.ticks,
		FailedTicks:      s.failedTicks,
		PublishFailures:  s.publishFailures,
		LastTick:         s.lastTick,
		LastTickDuration: s.lastTickDuration,
	}
}

// Close waits for the running tick, then closes and unlinks the segment.
// It is safe to call more than once.
func (b *Bridge) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	err := errors.Join(b.deps.Segment.Close(), b.deps.Segment.Unlink())
	if err != nil {
		b.logger.Error("Failed to release shared memory", "error", err)
		return fmt.Errorf("releasing shared memory: %w", err)
	}
	b.logger.Info("Shared memory released")
	return nil
}

// isEmptyPayload reports payloads that carry no telemetry at all.
func isEmptyPayload(data []byte) bool {
	var buf bytes.Buffer
	if err := json.Compact(&buf, data); err != nil {
		return len(bytes.TrimSpace(data)) == 0
	}
	switch buf.String() {
	case "", "null", "{}", `""`, "[]", "false", "0":
		return true
	}
	return false
}
