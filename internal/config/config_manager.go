package config

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dosdebug/broker/internal/logging"
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// ConfigManager loads configuration from YAML with environment
// overrides, validates it, and supports hot reload of the parts of
// the configuration that are safe to change without re-selecting a
// live backend (launch defaults, capture directories, logging).
type ConfigManager struct {
	lock            sync.RWMutex
	config          *Config
	configPath      string
	updateCallbacks []func(*Config)
	watcher         *fsnotify.Watcher
	watcherActive   int32
	logger          *logging.Logger
	stopChan        chan struct{}
	wg              sync.WaitGroup
}

// NewConfigManager constructs a ConfigManager seeded with defaults.
func NewConfigManager() *ConfigManager {
	return &ConfigManager{
		config:   defaultConfig(),
		logger:   logging.GetLogger("config-manager"),
		stopChan: make(chan struct{}, 1),
	}
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           8080,
			WebSocketPath:  "/ws",
			MaxConnections: 100,
			ReadTimeout:    10 * time.Second,
			WriteTimeout:   5 * time.Second,
			PingInterval:   30 * time.Second,
			PongWait:       60 * time.Second,
			MaxMessageSize: 4 * 1024 * 1024,
		},
		Qemu: QemuDefaults{
			BinaryPath:       "qemu-system-i386",
			MonitorSocket:    "/tmp/debugbroker-qemu.sock",
			RemoteDebugPort:  1234,
			RemoteDebugHost:  "127.0.0.1",
			ConnectRetries:   20,
			ConnectRetryWait: 500 * time.Millisecond,
			StartWait:        500 * time.Millisecond,
		},
		Dosbox: DosboxDefaults{
			BinaryPath:   "dosbox-x",
			ConfigDir:    "/tmp/debugbroker/config",
			ScriptDir:    "/tmp/debugbroker/scripts",
			OutputDir:    "/tmp/debugbroker/out",
			DefaultPause: 200 * time.Millisecond,
		},
		Capture: CaptureConfig{
			OutputDir:        "/tmp/debugbroker/captures",
			GoldenDir:        "/tmp/debugbroker/golden",
			DefaultWaitTime:  2 * time.Second,
			DefaultTimeout:   30 * time.Second,
			SnapshotSettleMs: 1000 * time.Millisecond,
		},
		Security: SecurityConfig{
			JWTSecret:   "debug-broker-change-in-production",
			TokenExpiry: 24 * time.Hour,
			RequireAuth: true,
		},
		Logging: LoggingConfig{
			Level:          "info",
			Format:         "text",
			ConsoleEnabled: true,
			MaxFileSizeMB:  10,
			BackupCount:    5,
		},
		Health: HealthConfig{
			Enabled: true,
			Path:    "/api/health",
		},
	}
}

// LoadConfig reads configuration from a YAML file with
// "DEBUGBROKER_"-prefixed environment overrides.
func (cm *ConfigManager) LoadConfig(path string) error {
	cm.lock.Lock()
	defer cm.lock.Unlock()

	cm.logger.WithFields(logging.Fields{"config_path": path}).Info("loading configuration")

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	cm.setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("DEBUGBROKER")

	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("cannot read configuration file %q: %w", path, err)
	}

	cfg := defaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	cm.configPath = path
	cm.config = cfg
	cm.notifyLocked()
	return nil
}

func (cm *ConfigManager) setDefaults(v *viper.Viper) {
	def := defaultConfig()
	v.SetDefault("server.host", def.Server.Host)
	v.SetDefault("server.port", def.Server.Port)
	v.SetDefault("server.websocket_path", def.Server.WebSocketPath)
	v.SetDefault("server.max_connections", def.Server.MaxConnections)
	v.SetDefault("qemu.binary_path", def.Qemu.BinaryPath)
	v.SetDefault("qemu.remote_debug_port", def.Qemu.RemoteDebugPort)
	v.SetDefault("dosbox.binary_path", def.Dosbox.BinaryPath)
	v.SetDefault("capture.output_dir", def.Capture.OutputDir)
	v.SetDefault("capture.golden_dir", def.Capture.GoldenDir)
	v.SetDefault("security.require_auth", def.Security.RequireAuth)
	v.SetDefault("logging.level", def.Logging.Level)
}

// GetConfig returns the current configuration snapshot.
func (cm *ConfigManager) GetConfig() *Config {
	cm.lock.RLock()
	defer cm.lock.RUnlock()
	return cm.config
}

// OnUpdate registers a callback invoked after every successful reload.
func (cm *ConfigManager) OnUpdate(cb func(*Config)) {
	cm.lock.Lock()
	defer cm.lock.Unlock()
	cm.updateCallbacks = append(cm.updateCallbacks, cb)
}

func (cm *ConfigManager) notifyLocked() {
	cfg := cm.config
	for _, cb := range cm.updateCallbacks {
		go cb(cfg)
	}
}

// WatchConfig starts a filesystem watch on the loaded config file and
// reloads it on change. Matches the teacher's fsnotify-driven hot
// reload pattern; unlike the teacher, a reload here never reseats a
// live backend - callers subscribed via OnUpdate only see defaults for
// the *next* launch.
func (cm *ConfigManager) WatchConfig() error {
	if !atomic.CompareAndSwapInt32(&cm.watcherActive, 0, 1) {
		return nil
	}

	cm.lock.RLock()
	path := cm.configPath
	cm.lock.RUnlock()
	if path == "" {
		atomic.StoreInt32(&cm.watcherActive, 0)
		return fmt.Errorf("no config file loaded yet")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		atomic.StoreInt32(&cm.watcherActive, 0)
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		atomic.StoreInt32(&cm.watcherActive, 0)
		return fmt.Errorf("failed to watch %q: %w", path, err)
	}

	cm.watcher = watcher
	cm.wg.Add(1)
	go cm.watchLoop(path)
	return nil
}

func (cm *ConfigManager) watchLoop(path string) {
	defer cm.wg.Done()
	for {
		select {
		case <-cm.stopChan:
			return
		case event, ok := <-cm.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				cm.logger.WithFields(logging.Fields{"event": event.String()}).Info("config file changed, reloading")
				if err := cm.LoadConfig(path); err != nil {
					cm.logger.WithError(err).Error("hot reload failed, keeping previous configuration")
				}
			}
		case err, ok := <-cm.watcher.Errors:
			if !ok {
				return
			}
			cm.logger.WithError(err).Warn("config watcher error")
		}
	}
}

// StopWatch stops the hot-reload watcher, if running.
func (cm *ConfigManager) StopWatch() {
	if !atomic.CompareAndSwapInt32(&cm.watcherActive, 1, 0) {
		return
	}
	close(cm.stopChan)
	if cm.watcher != nil {
		cm.watcher.Close()
	}
	cm.wg.Wait()
}

func validate(cfg *Config) error {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", cfg.Server.Port)
	}
	if cfg.Qemu.RemoteDebugPort <= 0 || cfg.Qemu.RemoteDebugPort > 65535 {
		return fmt.Errorf("qemu.remote_debug_port out of range: %d", cfg.Qemu.RemoteDebugPort)
	}
	if cfg.Capture.OutputDir == "" {
		return fmt.Errorf("capture.output_dir must not be empty")
	}
	if cfg.Security.RequireAuth && cfg.Security.JWTSecret == "" {
		return fmt.Errorf("security.jwt_secret must not be empty when require_auth is set")
	}
	return nil
}
