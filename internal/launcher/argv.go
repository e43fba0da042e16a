package launcher

import "fmt"

// BuildArgs constructs the child's argument vector from cfg,
// reproducing the drive-topology, display, audio, remote-debug,
// machine-control, monitor, and record/replay rules the launcher must
// preserve exactly.
func BuildArgs(cfg Config) []string {
	var args []string

	primaryDiscard := cfg.Mode == ModeRecord || cfg.Mode == ModeReplay
	args = append(args, driveArg("-hda", cfg.HDImage, primaryDiscard)...)

	switch {
	case cfg.OpticalGame != "" && cfg.OpticalShared != "":
		args = append(args, "-cdrom", cfg.OpticalGame)
		args = append(args, driveArg("-drive", cfg.OpticalShared, false)...)
	case cfg.OpticalGame != "":
		args = append(args, "-cdrom", cfg.OpticalGame)
	case cfg.OpticalShared != "":
		args = append(args, "-cdrom", cfg.OpticalShared)
	}

	if cfg.Headless {
		args = append(args, "-display", "none")
	} else if cfg.VNCPort > 0 {
		args = append(args, "-vnc", fmt.Sprintf(":%d", cfg.VNCPort-5900))
	} else {
		display := cfg.WindowedDisplay
		if display == "" {
			display = "sdl"
		}
		args = append(args, "-display", display)
	}

	args = append(args, "-device", "sb16")
	if cfg.Headless {
		args = append(args, "-audiodev", "none,id=snd0")
	} else {
		backend := cfg.AudioBackend
		if backend == "" {
			backend = "pa"
		}
		args = append(args, "-audiodev", fmt.Sprintf("%s,id=snd0", backend))
	}

	debugPort := cfg.RemoteDebugPort
	if debugPort == 0 {
		debugPort = 1234
	}
	debugHost := cfg.RemoteDebugHost
	if debugHost == "" {
		debugHost = "127.0.0.1"
	}
	args = append(args, "-gdb", fmt.Sprintf("tcp:%s:%d", debugHost, debugPort))

	if cfg.MonitorSocketPath != "" {
		args = append(args, "-qmp", fmt.Sprintf("unix:%s,server,nowait", cfg.MonitorSocketPath))
	}

	if cfg.Interactive && (cfg.Mode == ModeInteractive || cfg.Mode == ModeRecord) {
		args = append(args, "-monitor", "stdio")
	}

	switch cfg.Mode {
	case ModeRecord:
		args = append(args, "-icount", fmt.Sprintf("shift=auto,rr=record,rrfile=%s", cfg.ReplayFile))
	case ModeReplay:
		args = append(args, "-icount", fmt.Sprintf("shift=auto,rr=replay,rrfile=%s", cfg.ReplayFile))
	}

	if cfg.InitialSnapshot != "" {
		args = append(args, "-loadvm", cfg.InitialSnapshot)
	}

	args = append(args, cfg.ExtraArgs...)
	return args
}

func driveArg(flag, image string, discard bool) []string {
	if image == "" {
		return nil
	}
	if flag == "-hda" {
		if discard {
			return []string{"-drive", fmt.Sprintf("file=%s,if=ide,snapshot=on", image)}
		}
		return []string{flag, image}
	}
	return []string{flag, fmt.Sprintf("file=%s,if=ide,media=cdrom", image)}
}
