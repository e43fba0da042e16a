package config

import (
	"fmt"
	"time"
)

// Config is the complete service configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Qemu     QemuDefaults   `mapstructure:"qemu"`
	Dosbox   DosboxDefaults `mapstructure:"dosbox"`
	Capture  CaptureConfig  `mapstructure:"capture"`
	Security SecurityConfig `mapstructure:"security"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Health   HealthConfig   `mapstructure:"health"`
}

// ServerConfig holds the HTTP+WebSocket listener settings.
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	WebSocketPath  string        `mapstructure:"websocket_path"`
	MaxConnections int           `mapstructure:"max_connections"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	PongWait       time.Duration `mapstructure:"pong_wait"`
	MaxMessageSize int64         `mapstructure:"max_message_size"`
}

// QemuDefaults holds the default launch configuration for the
// socket-based (QEMU-style) backend.
type QemuDefaults struct {
	BinaryPath       string        `mapstructure:"binary_path"`
	MonitorSocket    string        `mapstructure:"monitor_socket"`
	RemoteDebugPort  int           `mapstructure:"remote_debug_port"`
	RemoteDebugHost  string        `mapstructure:"remote_debug_host"`
	ConnectRetries   int           `mapstructure:"connect_retries"`
	ConnectRetryWait time.Duration `mapstructure:"connect_retry_wait"`
	StartWait        time.Duration `mapstructure:"start_wait"`
}

// DosboxDefaults holds the default launch configuration for the
// session-based (DOSBox-style) backend.
type DosboxDefaults struct {
	BinaryPath   string        `mapstructure:"binary_path"`
	ConfigDir    string        `mapstructure:"config_dir"`
	ScriptDir    string        `mapstructure:"script_dir"`
	OutputDir    string        `mapstructure:"output_dir"`
	DefaultPause time.Duration `mapstructure:"default_pause"`
}

// CaptureConfig holds the capture-pipeline on-disk output and golden
// comparison directories.
type CaptureConfig struct {
	OutputDir        string        `mapstructure:"output_dir"`
	GoldenDir        string        `mapstructure:"golden_dir"`
	DefaultWaitTime  time.Duration `mapstructure:"default_wait_time"`
	DefaultTimeout   time.Duration `mapstructure:"default_timeout"`
	SnapshotSettleMs time.Duration `mapstructure:"snapshot_settle"`
}

// SecurityConfig holds the JWT settings used to gate management
// endpoints (backend select, launch, execution control).
type SecurityConfig struct {
	JWTSecret    string        `mapstructure:"jwt_secret"`
	TokenExpiry  time.Duration `mapstructure:"token_expiry"`
	RequireAuth  bool          `mapstructure:"require_auth"`
}

// LoggingConfig mirrors internal/logging's configuration surface.
type LoggingConfig struct {
	Level          string `mapstructure:"level"`
	Format         string `mapstructure:"format"`
	FileEnabled    bool   `mapstructure:"file_enabled"`
	FilePath       string `mapstructure:"file_path"`
	MaxFileSizeMB  int    `mapstructure:"max_file_size_mb"`
	BackupCount    int    `mapstructure:"backup_count"`
	ConsoleEnabled bool   `mapstructure:"console_enabled"`
}

// HealthConfig holds the host health endpoint settings.
type HealthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// String renders a short debug summary of the configuration.
func (c *Config) String() string {
	return fmt.Sprintf("Config{Server: %s:%d, Qemu: %s, Dosbox: %s, Capture: %s}",
		c.Server.Host, c.Server.Port, c.Qemu.BinaryPath, c.Dosbox.BinaryPath, c.Capture.OutputDir)
}
