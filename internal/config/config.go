// Package config loads bridge settings from defaults, an optional JSON file
// and SHMBRIDGE_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/opencav/shmbridge/pkg/core"
)

// FileName is the config file looked up in the config directory.
const FileName = "shmbridge.cfg.json"

// EnvPrefix prefixes environment overrides, e.g. SHMBRIDGE_SERVER_PORT.
const EnvPrefix = "SHMBRIDGE"

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host string `json:"host" mapstructure:"host"`
	Port int    `json:"port" mapstructure:"port"`
}

// Addr returns host:port for net.Listen.
func (c ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// TransportConfig holds the event-channel session settings.
type TransportConfig struct {
	PingInterval time.Duration `json:"pingInterval" mapstructure:"pingInterval"`
	PingTimeout  time.Duration `json:"pingTimeout" mapstructure:"pingTimeout"`
	SendBuffer   int           `json:"sendBuffer" mapstructure:"sendBuffer"`
	MaxPayload   int64         `json:"maxPayload" mapstructure:"maxPayload"`
	QueueSize    int           `json:"queueSize" mapstructure:"queueSize"`
}

// SegmentConfig names the shared memory segment.
type SegmentConfig struct {
	Name string `json:"name" mapstructure:"name"`
	Size int    `json:"size" mapstructure:"size"`
	Dir  string `json:"dir" mapstructure:"dir"`
}

// BridgeConfig holds the per-tick constants.
type BridgeConfig struct {
	VehicleID   string                 `json:"vehicleId"`
	Strict      bool                   `json:"strict"`
	CosimMode   int                    `json:"cosimMode"`
	Headlights  core.HeadlightMode     `json:"headlights"`
	Target      core.Vec3              `json:"target"`
	Environment core.EnvironmentConfig `json:"environment"`
}

// MonitorConfig holds the status loop settings.
type MonitorConfig struct {
	Enabled    bool          `json:"enabled" mapstructure:"enabled"`
	Interval   time.Duration `json:"interval" mapstructure:"interval"`
	StatusFile string        `json:"statusFile" mapstructure:"statusFile"`
}

// InfluxConfig holds InfluxDB connection settings.
type InfluxConfig struct {
	Enabled    bool   `json:"enabled" mapstructure:"enabled"`
	Host       string `json:"host" mapstructure:"host"`
	Port       int    `json:"port" mapstructure:"port"`
	Protocol   string `json:"protocol" mapstructure:"protocol"`
	Token      string `json:"token" mapstructure:"token"`
	Org        string `json:"org" mapstructure:"org"`
	Bucket     string `json:"bucket" mapstructure:"bucket"`
	BackupPath string `json:"backupPath" mapstructure:"backupPath"`
}

// OTelConfig holds OpenTelemetry settings
type OTelConfig struct {
	Enabled      bool          `json:"enabled" mapstructure:"enabled"`
	ServiceName  string        `json:"serviceName" mapstructure:"serviceName"`
	BatchTimeout time.Duration `json:"batchTimeout" mapstructure:"batchTimeout"`
	Endpoint     string        `json:"endpoint" mapstructure:"endpoint"`
	Insecure     bool          `json:"insecure" mapstructure:"insecure"`
}

// LogConfig holds log output settings.
type LogConfig struct {
	Level      string `json:"level"`
	Dir        string `json:"dir"`
	MaxSizeMB  int    `json:"maxSizeMB"`
	MaxBackups int    `json:"maxBackups"`
	MaxAgeDays int    `json:"maxAgeDays"`
}

func setDefaults() {
	viper.SetDefault("logLevel", "info")
	viper.SetDefault("logsDir", "./logs")
	viper.SetDefault("logRotation.maxSizeMB", 50)
	viper.SetDefault("logRotation.maxBackups", 5)
	viper.SetDefault("logRotation.maxAgeDays", 14)

	viper.SetDefault("server.host", "")
	viper.SetDefault("server.port", 4567)

	viper.SetDefault("transport.pingInterval", "25s")
	viper.SetDefault("transport.pingTimeout", "20s")
	viper.SetDefault("transport.sendBuffer", 64)
	viper.SetDefault("transport.maxPayload", 1_000_000)
	viper.SetDefault("transport.queueSize", 64)

	viper.SetDefault("shm.name", "AutoDRIVE")
	viper.SetDefault("shm.size", 1024)
	viper.SetDefault("shm.dir", "/dev/shm")

	viper.SetDefault("vehicle.id", "V1")
	viper.SetDefault("vehicle.cosimMode", 0)
	viper.SetDefault("vehicle.headlights", 0)
	viper.SetDefault("telemetry.strict", true)

	viper.SetDefault("planning.target.x", -242.16)
	viper.SetDefault("planning.target.y", -119.00)
	viper.SetDefault("planning.target.z", 341.91)

	viper.SetDefault("environment.autoTime", false)
	viper.SetDefault("environment.timeScale", 60)
	viper.SetDefault("environment.timeOfDay", 560)
	viper.SetDefault("environment.weatherID", 3)
	viper.SetDefault("environment.cloudIntensity", 0.0)
	viper.SetDefault("environment.fogIntensity", 0.0)
	viper.SetDefault("environment.rainIntensity", 0.0)
	viper.SetDefault("environment.snowIntensity", 0.0)

	viper.SetDefault("monitor.enabled", true)
	viper.SetDefault("monitor.interval", "1s")
	viper.SetDefault("monitor.statusFile", "")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.host", "localhost")
	viper.SetDefault("influx.port", 8086)
	viper.SetDefault("influx.protocol", "http")
	viper.SetDefault("influx.token", "")
	viper.SetDefault("influx.org", "opencav-metrics")
	viper.SetDefault("influx.bucket", "bridge_performance")
	viper.SetDefault("influx.backupPath", "./logs/influx_backup.lp.gz")

	viper.SetDefault("otel.enabled", false)
	viper.SetDefault("otel.serviceName", "shmbridge")
	viper.SetDefault("otel.batchTimeout", "5s")
	viper.SetDefault("otel.endpoint", "")
	viper.SetDefault("otel.insecure", true)
}

// Load sets defaults, enables environment overrides and reads the config
// file from configDir. A missing file is not an error; the returned
// found flag reports whether one was read.
func Load(configDir string) (found bool, err error) {
	setDefaults()

	viper.SetEnvPrefix(EnvPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	viper.SetConfigName(FileName)
	viper.SetConfigType("json")
	if configDir != "" {
		viper.AddConfigPath(configDir)
	}

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("error reading config file: %w", err)
	}
	return true, nil
}

// GetString returns a string config value.
func GetString(key string) string {
	return viper.GetString(key)
}

// GetInt returns an int config value.
func GetInt(key string) int {
	return viper.GetInt(key)
}

// GetBool returns a bool config value.
func GetBool(key string) bool {
	return viper.GetBool(key)
}

// GetLogConfig returns the log output settings.
func GetLogConfig() LogConfig {
	return LogConfig{
		Level:      viper.GetString("logLevel"),
		Dir:        viper.GetString("logsDir"),
		MaxSizeMB:  viper.GetInt("logRotation.maxSizeMB"),
		MaxBackups: viper.GetInt("logRotation.maxBackups"),
		MaxAgeDays: viper.GetInt("logRotation.maxAgeDays"),
	}
}

// GetServerConfig returns the HTTP listener settings.
func GetServerConfig() ServerConfig {
	return ServerConfig{
		Host: viper.GetString("server.host"),
		Port: viper.GetInt("server.port"),
	}
}

// GetTransportConfig returns the event-channel settings.
func GetTransportConfig() TransportConfig {
	return TransportConfig{
		PingInterval: viper.GetDuration("transport.pingInterval"),
		PingTimeout:  viper.GetDuration("transport.pingTimeout"),
		SendBuffer:   viper.GetInt("transport.sendBuffer"),
		MaxPayload:   viper.GetInt64("transport.maxPayload"),
		QueueSize:    viper.GetInt("transport.queueSize"),
	}
}

// GetSegmentConfig returns the shared memory settings.
func GetSegmentConfig() SegmentConfig {
	return SegmentConfig{
		Name: viper.GetString("shm.name"),
		Size: viper.GetInt("shm.size"),
		Dir:  viper.GetString("shm.dir"),
	}
}

// GetBridgeConfig returns the vehicle, planning and environment constants.
func GetBridgeConfig() BridgeConfig {
	return BridgeConfig{
		VehicleID:  viper.GetString("vehicle.id"),
		Strict:     viper.GetBool("telemetry.strict"),
		CosimMode:  viper.GetInt("vehicle.cosimMode"),
		Headlights: core.HeadlightMode(viper.GetInt("vehicle.headlights")),
		Target: core.Vec3{
			X: viper.GetFloat64("planning.target.x"),
			Y: viper.GetFloat64("planning.target.y"),
			Z: viper.GetFloat64("planning.target.z"),
		},
		Environment: core.EnvironmentConfig{
			AutoTime:       viper.GetBool("environment.autoTime"),
			TimeScale:      viper.GetInt("environment.timeScale"),
			TimeOfDay:      viper.GetInt("environment.timeOfDay"),
			WeatherID:      core.WeatherID(viper.GetInt("environment.weatherID")),
			CloudIntensity: viper.GetFloat64("environment.cloudIntensity"),
			FogIntensity:   viper.GetFloat64("environment.fogIntensity"),
			RainIntensity:  viper.GetFloat64("environment.rainIntensity"),
			SnowIntensity:  viper.GetFloat64("environment.snowIntensity"),
		},
	}
}

// GetMonitorConfig returns the status loop settings.
func GetMonitorConfig() MonitorConfig {
	return MonitorConfig{
		Enabled:    viper.GetBool("monitor.enabled"),
		Interval:   viper.GetDuration("monitor.interval"),
		StatusFile: viper.GetString("monitor.statusFile"),
	}
}

// GetInfluxConfig returns the InfluxDB settings.
func GetInfluxConfig() InfluxConfig {
	return InfluxConfig{
		Enabled:    viper.GetBool("influx.enabled"),
		Host:       viper.GetString("influx.host"),
		Port:       viper.GetInt("influx.port"),
		Protocol:   viper.GetString("influx.protocol"),
		Token:      viper.GetString("influx.token"),
		Org:        viper.GetString("influx.org"),
		Bucket:     viper.GetString("influx.bucket"),
		BackupPath: viper.GetString("influx.backupPath"),
	}
}

// GetOTelConfig returns the OpenTelemetry settings
func GetOTelConfig() OTelConfig {
	return OTelConfig{
		Enabled:      viper.GetBool("otel.enabled"),
		ServiceName:  viper.GetString("otel.serviceName"),
		BatchTimeout: viper.GetDuration("otel.batchTimeout"),
		Endpoint:     viper.GetString("otel.endpoint"),
		Insecure:     viper.GetBool("otel.insecure"),
	}
}
