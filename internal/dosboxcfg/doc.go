// Package dosboxcfg synthesizes the two on-disk inputs the
// session-based backend needs for a single spawn: a sectioned
// textual emulator configuration file and a debug-command script the
// emulator's built-in debugger executes on startup. It also parses
// the register-dump block a finished session leaves in its log file.
//
// Grounded on internal/config/config.go + config_manager.go's typed,
// sectioned configuration construction, and ffmpeg_manager.go's
// StartProcess for the manual-string-building, os.MkdirAll-then-write
// style used here.
package dosboxcfg
