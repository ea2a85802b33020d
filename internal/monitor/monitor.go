package monitor

import (
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/opencav/shmbridge/pkg/core"
)

// StatusSource provides bridge status snapshots.
type StatusSource interface {
	Status() core.BridgeStatus
}

// StatusWriter persists status snapshots, e.g. to InfluxDB.
type StatusWriter interface {
	WriteStatus(core.BridgeStatus) error
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	Source     StatusSource
	Peers      func() int
	Writer     StatusWriter // optional
	StatusFile string       // optional
	Interval   time.Duration
	Logger     *slog.Logger
}

// Service periodically snapshots bridge status
type Service struct {
	deps      Dependencies
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.Interval <= 0 {
		deps.Interval = time.Second
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Service{deps: deps}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// GetStatus returns the current bridge status including the peer count.
func (s *Service) GetStatus() core.BridgeStatus {
	status := s.deps.Source.Status()
	if s.deps.Peers != nil {
		status.Peers = s.deps.Peers()
	}
	return status
}

// Start starts the status monitor goroutine
func (s *Service) Start() error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	go func() {
		defer close(done)

		logger := s.deps.Logger.With("component", "monitor")
		logger.Debug("Starting status monitor", "interval", s.deps.Interval)

		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.snapshot(logger)
			}
		}
	}()

	return nil
}

func (s *Service) snapshot(logger *slog.Logger) {
	status := s.GetStatus()

	if s.deps.StatusFile != "" {
		if err := writeStatusFile(s.deps.StatusFile, status); err != nil {
			logger.Error("Error writing status file", "path", s.deps.StatusFile, "error", err)
		}
	}

	if s.deps.Writer != nil {
		if err := s.deps.Writer.WriteStatus(status); err != nil {
			logger.Error("Error writing status point", "error", err)
		}
	}
}

func writeStatusFile(path string, status core.BridgeStatus) error {
	data, err := json.MarshalIndent(status, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Stop stops the status monitor and waits for the goroutine to exit
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	close(s.stopChan)
	done := s.done
	s.mu.Unlock()
	<-done
}
