// Command shmbridge bridges simulator telemetry on the event channel to the
// AutoDRIVE shared memory segment and publishes the resulting vehicle and
// environment commands back to the simulator.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"

	"github.com/opencav/shmbridge/internal/bridge"
	"github.com/opencav/shmbridge/internal/config"
	"github.com/opencav/shmbridge/internal/dispatcher"
	"github.com/opencav/shmbridge/internal/influx"
	"github.com/opencav/shmbridge/internal/logging"
	"github.com/opencav/shmbridge/internal/monitor"
	intOtel "github.com/opencav/shmbridge/internal/otel"
	"github.com/opencav/shmbridge/internal/shm"
	"github.com/opencav/shmbridge/internal/sim"
	"github.com/opencav/shmbridge/internal/transport"
	"github.com/opencav/shmbridge/pkg/streaming"
)

// BuildVersion and BuildDate can be set at build time via ldflags
var (
	BuildVersion string = "0.0.1"
	BuildDate    string = "unknown"
)

const serviceName = "shmbridge"

// shutdownTimeout bounds each teardown step.
const shutdownTimeout = 5 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	configDir := pflag.String("config-dir", ".", "directory containing "+config.FileName)
	logLevel := pflag.String("log-level", "", "override the configured log level")
	showVersion := pflag.Bool("version", false, "print version and exit")
	pflag.Parse()

	if *showVersion {
		fmt.Printf("%s %s (%s)\n", serviceName, BuildVersion, BuildDate)
		return 0
	}

	sessionStart := time.Now()

	found, err := config.Load(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}
	logCfg := config.GetLogConfig()
	if *logLevel != "" {
		logCfg.Level = *logLevel
	}
	logPath := logging.LogFilePath(logCfg.Dir, serviceName, sessionStart)
	logFile := logging.NewRotatingFile(logPath, logging.RotationConfig{
		MaxSizeMB:  logCfg.MaxSizeMB,
		MaxBackups: logCfg.MaxBackups,
		MaxAgeDays: logCfg.MaxAgeDays,
	})
	defer logFile.Close()

	metrics := monitor.NewMetrics()

	// Meter provider is always installed so dispatcher instruments land on /metrics.
	otelCfg := config.GetOTelConfig()
	otelProvider, err := intOtel.New(intOtel.Config{
		Enabled:      otelCfg.Enabled,
		ServiceName:  otelCfg.ServiceName,
		BatchTimeout: otelCfg.BatchTimeout,
		LogWriter:    logFile,
		Endpoint:     otelCfg.Endpoint,
		Insecure:     otelCfg.Insecure,
		Registerer:   metrics.Registry(),
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize OTel provider: %v\n", err)
		return 1
	}
	otelProvider.InstallGlobal()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := otelProvider.Shutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "OTel shutdown: %v\n", err)
		}
	}()

	var current atomic.Pointer[bridge.Bridge]
	slogManager := logging.NewSlogManager()
	slogManager.Setup(logging.Options{
		Console:     os.Stdout,
		File:        logFile,
		Level:       logCfg.Level,
		Provider:    otelProvider.LoggerProvider(),
		ServiceName: otelCfg.ServiceName,
		Context: logging.StringAttr("bridge_state", func() string {
			if b := current.Load(); b != nil {
				return b.State().String()
			}
			return "starting"
		}),
	})
	logger := slogManager.Logger()
	slog.SetDefault(logger)

	logger.Info("Starting up", "version", BuildVersion, "buildDate", BuildDate, "logFile", logPath)
	if !found {
		logger.Warn("Config file not found, using defaults", "dir", *configDir, "file", config.FileName)
	}

	segCfg := config.GetSegmentConfig()
	segment, err := shm.Create(shm.Options{Name: segCfg.Name, Size: segCfg.Size, Dir: segCfg.Dir})
	if err != nil {
		logger.Error("Failed to create shared memory segment", "name", segCfg.Name, "error", err)
		return 1
	}
	logger.Info("Shared memory segment created", "name", segment.Name(), "size", segment.Size(), "path", segment.Path())

	d, err := dispatcher.New(logging.NewDispatcherLogger(logger))
	if err != nil {
		logger.Error("Failed to create dispatcher", "error", err)
		closeSegment(logger, segment)
		return 1
	}

	tCfg := config.GetTransportConfig()
	eventServer := transport.NewServer(transport.Config{
		PingInterval: tCfg.PingInterval,
		PingTimeout:  tCfg.PingTimeout,
		SendBuffer:   tCfg.SendBuffer,
		MaxPayload:   tCfg.MaxPayload,
	}, d, logger)
	eventServer.OnPeerCountChange(metrics.SetPeers)

	bCfg := config.GetBridgeConfig()
	b, err := bridge.New(bridge.Config{
		VehicleID:   bCfg.VehicleID,
		Target:      bCfg.Target,
		Environment: bCfg.Environment,
		CosimMode:   bCfg.CosimMode,
		Headlights:  bCfg.Headlights,
		EventName:   streaming.EventBridge,
		QueueSize:   tCfg.QueueSize,
	}, bridge.Dependencies{
		Segment:     segment,
		Vehicle:     sim.Vehicle{ID: bCfg.VehicleID, Strict: bCfg.Strict},
		Environment: sim.Environment{},
		Publisher:   eventServer,
		Metrics:     metrics,
		Logger:      logger,
	})
	if err != nil {
		logger.Error("Failed to create bridge", "error", err)
		d.Close()
		closeSegment(logger, segment)
		return 1
	}
	current.Store(b)
	b.RegisterHandlers(d)

	// Teardown runs in reverse: HTTP, transport, dispatcher, then the segment.
	defer b.Close()
	defer d.Close()
	defer func() {
		if err := eventServer.Close(); err != nil {
			logger.Warn("Event channel close", "error", err)
		}
	}()

	monDeps := monitor.Dependencies{
		Source: b,
		Peers:  eventServer.PeerCount,
		Logger: logger,
	}
	if manager := startInflux(logger, logCfg.Level, logFile); manager != nil {
		monDeps.Writer = manager
		defer func() {
			if err := manager.Close(); err != nil {
				logger.Warn("InfluxDB close", "error", err)
			}
		}()
	}

	monCfg := config.GetMonitorConfig()
	monDeps.StatusFile = monCfg.StatusFile
	monDeps.Interval = monCfg.Interval
	statusMonitor := monitor.NewService(monDeps)
	if monCfg.Enabled {
		if err := statusMonitor.Start(); err != nil {
			logger.Error("Failed to start status monitor", "error", err)
		}
		defer statusMonitor.Stop()
	}

	srvCfg := config.GetServerConfig()
	httpServer := &http.Server{
		Addr:              srvCfg.Addr(),
		Handler:           newRouter(eventServer, statusMonitor, metrics, logCfg.Level),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", httpServer.Addr)
	if err != nil {
		logger.Error("Failed to listen", "addr", httpServer.Addr, "error", err)
		return 1
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpServer.Serve(ln)
	}()
	logger.Info("Listening", "addr", ln.Addr().String(), "event", streaming.EventBridge)

	code := 0
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", err)
			code = 1
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// Hijacked websocket connections are closed by the transport teardown.
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP server shutdown", "error", err)
	}

	logger.Info("Shutting down")
	return code
}

func closeSegment(logger *slog.Logger, segment *shm.Segment) {
	if err := errors.Join(segment.Close(), segment.Unlink()); err != nil {
		logger.Error("Failed to release shared memory segment", "error", err)
	}
}

// startInflux returns a connected manager when Influx output is enabled, or nil.
func startInflux(logger *slog.Logger, level string, file io.Writer) *influx.Manager {
	cfg := config.GetInfluxConfig()
	if !cfg.Enabled {
		return nil
	}

	zl := logging.NewZerolog(level, os.Stdout, file).With().Str("service", serviceName).Logger()
	manager := influx.NewManager(influx.Config{
		Enabled:    cfg.Enabled,
		Protocol:   cfg.Protocol,
		Host:       cfg.Host,
		Port:       cfg.Port,
		Token:      cfg.Token,
		Org:        cfg.Org,
		Bucket:     cfg.Bucket,
		BackupPath: cfg.BackupPath,
	}, zl)

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := manager.Connect(ctx); err != nil {
		logger.Error("Failed to initialize InfluxDB output", "error", err)
		return nil
	}
	return manager
}

func newRouter(events http.Handler, status *monitor.Service, metrics *monitor.Metrics, level string) *gin.Engine {
	if !strings.EqualFold(level, "debug") {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery(), metrics.Middleware())

	r.GET("/socket.io/", gin.WrapH(events))
	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	r.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, status.GetStatus())
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))
	return r
}
