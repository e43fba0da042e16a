package dosboxcfg

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dosdebug/broker/internal/brokererr"
)

// SessionConfig describes one emulator session's configuration. Zero
// values fall back to the defaults spec.md §4.5 names.
type SessionConfig struct {
	MountDir string // host directory mounted as the DOS drive

	Display     string // e.g. "svga_s3", blank selects the default
	MemorySizeMB int
	Machine     string // e.g. "svga_s3"
	CPUCycles   string // CPU profile / cycles setting

	SBBase string // Sound Blaster 16 I/O base, hex, e.g. "220"
	SBIRQ  string // Sound Blaster 16 IRQ

	LogPath          string
	DebugRunFilePath string

	// AutoexecExtra lines are appended after the mount+enter preamble
	// (e.g. an auto-typing line for key injection).
	AutoexecExtra []string
}

func (c SessionConfig) withDefaults() SessionConfig {
	if c.Display == "" {
		c.Display = "svga_s3"
	}
	if c.MemorySizeMB == 0 {
		c.MemorySizeMB = 16
	}
	if c.Machine == "" {
		c.Machine = "svga_s3"
	}
	if c.CPUCycles == "" {
		c.CPUCycles = "auto"
	}
	if c.SBBase == "" {
		c.SBBase = "220"
	}
	if c.SBIRQ == "" {
		c.SBIRQ = "7"
	}
	return c
}

// WriteConfig renders the sectioned .conf file under dir and returns
// its path.
func WriteConfig(dir string, cfg SessionConfig) (string, error) {
	cfg = cfg.withDefaults()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", brokererr.Connection("write_config", "failed to create session directory", err)
	}

	var buf bytes.Buffer
	buf.WriteString("[sdl]\n")
	buf.WriteString("fullscreen=false\n\n")

	buf.WriteString("[dosbox]\n")
	fmt.Fprintf(&buf, "machine=%s\n\n", cfg.Machine)

	buf.WriteString("[cpu]\n")
	fmt.Fprintf(&buf, "cycles=%s\n\n", cfg.CPUCycles)

	buf.WriteString("[dos]\n")
	fmt.Fprintf(&buf, "memsize=%d\n\n", cfg.MemorySizeMB)

	buf.WriteString("[render]\n")
	fmt.Fprintf(&buf, "scaler=none\n\n")

	buf.WriteString("[sblaster]\n")
	buf.WriteString("sbtype=sb16\n")
	fmt.Fprintf(&buf, "sbbase=%s\n", cfg.SBBase)
	fmt.Fprintf(&buf, "irq=%s\n\n", cfg.SBIRQ)

	buf.WriteString("[log]\n")
	if cfg.LogPath != "" {
		fmt.Fprintf(&buf, "logfile=%s\n", cfg.LogPath)
	}
	buf.WriteString("\n")

	buf.WriteString("[debugger]\n")
	if cfg.DebugRunFilePath != "" {
		fmt.Fprintf(&buf, "debugrunfile=%s\n", cfg.DebugRunFilePath)
	}
	buf.WriteString("\n")

	buf.WriteString("[autoexec]\n")
	if cfg.MountDir != "" {
		fmt.Fprintf(&buf, "mount c %s\n", cfg.MountDir)
		buf.WriteString("c:\n")
	}
	for _, line := range cfg.AutoexecExtra {
		buf.WriteString(line)
		buf.WriteString("\n")
	}

	path := filepath.Join(dir, "session.conf")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", brokererr.Connection("write_config", "failed to write session config", err)
	}
	return path, nil
}
