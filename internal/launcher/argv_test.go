package launcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildArgs_PrimaryDisk(t *testing.T) {
	args := BuildArgs(Config{BinaryPath: "qemu-system-i386", HDImage: "disk.img"})
	assertAdjacent(t, args, "-hda", "disk.img")
}

func TestBuildArgs_Headless(t *testing.T) {
	args := BuildArgs(Config{HDImage: "disk.img", Headless: true})
	assertAdjacent(t, args, "-display", "none")
	assertAdjacent(t, args, "-audiodev", "none,id=snd0")
}

func TestBuildArgs_VNC(t *testing.T) {
	args := BuildArgs(Config{HDImage: "disk.img", VNCPort: 5901})
	assertAdjacent(t, args, "-vnc", ":1")
}

func TestBuildArgs_WindowedDefault(t *testing.T) {
	args := BuildArgs(Config{HDImage: "disk.img"})
	assertAdjacent(t, args, "-display", "sdl")
	assertAdjacent(t, args, "-audiodev", "pa,id=snd0")
}

func TestBuildArgs_OpticalBothGameAndShared(t *testing.T) {
	args := BuildArgs(Config{HDImage: "disk.img", OpticalGame: "game.iso", OpticalShared: "shared.iso"})
	assertAdjacent(t, args, "-cdrom", "game.iso")
	assert.Contains(t, args, "-drive")
}

func TestBuildArgs_RemoteDebugDefaults(t *testing.T) {
	args := BuildArgs(Config{HDImage: "disk.img"})
	assertAdjacent(t, args, "-gdb", "tcp:127.0.0.1:1234")
}

func TestBuildArgs_MonitorSocket(t *testing.T) {
	args := BuildArgs(Config{HDImage: "disk.img", MonitorSocketPath: "/tmp/qmp.sock"})
	assertAdjacent(t, args, "-qmp", "unix:/tmp/qmp.sock,server,nowait")
}

func TestBuildArgs_MonitorStdio_OnlyInteractiveOrRecord(t *testing.T) {
	args := BuildArgs(Config{HDImage: "disk.img", Interactive: true, Mode: ModeInteractive})
	assert.Contains(t, args, "-monitor")

	args2 := BuildArgs(Config{HDImage: "disk.img", Interactive: true, Mode: ModeReplay})
	assert.NotContains(t, args2, "-monitor")
}

func TestBuildArgs_RecordMode_PrimaryDiskDiscards(t *testing.T) {
	args := BuildArgs(Config{HDImage: "disk.img", Mode: ModeRecord, ReplayFile: "replay.bin"})
	assert.NotContains(t, args, "-hda")
	found := false
	for i, a := range args {
		if a == "-drive" && i+1 < len(args) {
			found = found || args[i+1] == "file=disk.img,if=ide,snapshot=on"
		}
	}
	assert.True(t, found)
	assertAdjacent(t, args, "-icount", "shift=auto,rr=record,rrfile=replay.bin")
}

func TestBuildArgs_InitialSnapshot(t *testing.T) {
	args := BuildArgs(Config{HDImage: "disk.img", InitialSnapshot: "s1"})
	assertAdjacent(t, args, "-loadvm", "s1")
}

func assertAdjacent(t *testing.T, args []string, flag, value string) {
	t.Helper()
	for i, a := range args {
		if a == flag && i+1 < len(args) && args[i+1] == value {
			return
		}
	}
	t.Fatalf("expected %q followed by %q in %v", flag, value, args)
}
