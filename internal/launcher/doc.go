// Package launcher builds an emulator child process's argument vector
// from a typed launch configuration and spawns it, grounded on the
// teacher's ffmpeg_manager.go StartProcess (argv construction,
// exec.CommandContext, PID capture, background monitor goroutine) and
// its cleanupFFmpegProcess graceful/forced teardown.
package launcher
