package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	path := writeTempConfig(t, "server:\n  port: 9090\n")
	cm := NewConfigManager()
	require.NoError(t, cm.LoadConfig(path))

	cfg := cm.GetConfig()
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "qemu-system-i386", cfg.Qemu.BinaryPath)
	assert.Equal(t, 1234, cfg.Qemu.RemoteDebugPort)
}

func TestLoadConfig_InvalidPort(t *testing.T) {
	path := writeTempConfig(t, "server:\n  port: 70000\n")
	cm := NewConfigManager()
	err := cm.LoadConfig(path)
	require.Error(t, err)
}

func TestLoadConfig_RequireAuthWithoutSecret(t *testing.T) {
	path := writeTempConfig(t, "security:\n  require_auth: true\n  jwt_secret: \"\"\n")
	cm := NewConfigManager()
	err := cm.LoadConfig(path)
	require.Error(t, err)
}

func TestConfigManager_HotReload(t *testing.T) {
	path := writeTempConfig(t, "capture:\n  output_dir: /tmp/a\n")
	cm := NewConfigManager()
	require.NoError(t, cm.LoadConfig(path))

	updated := make(chan *Config, 1)
	cm.OnUpdate(func(c *Config) { updated <- c })

	require.NoError(t, cm.WatchConfig())
	defer cm.StopWatch()

	require.NoError(t, os.WriteFile(path, []byte("capture:\n  output_dir: /tmp/b\n"), 0644))

	select {
	case c := <-updated:
		assert.Equal(t, "/tmp/b", c.Capture.OutputDir)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for hot reload")
	}
}
