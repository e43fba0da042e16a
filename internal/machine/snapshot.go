package machine

import "time"

// SnapshotHandle describes a named emulator state snapshot.
type SnapshotHandle struct {
	Name       string
	Backend    string
	Size       *int64
	ModifiedAt *time.Time
	Path       *string
}
