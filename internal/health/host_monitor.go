package health

import (
	"context"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// HostMonitor reports host resource usage via gopsutil, the same
// library the teacher uses for its own system metrics collection.
type HostMonitor struct {
	diskPath string
}

// NewHostMonitor creates a monitor that reports disk usage for the
// filesystem holding the given path; an empty path selects "/".
func NewHostMonitor(diskPath string) *HostMonitor {
	if diskPath == "" {
		diskPath = "/"
	}
	return &HostMonitor{diskPath: diskPath}
}

// Snapshot collects a point-in-time view of CPU, memory, and disk
// usage. Individual metric failures are tolerated; only the failing
// section is omitted.
func (m *HostMonitor) Snapshot(ctx context.Context) (map[string]interface{}, error) {
	out := map[string]interface{}{}

	if percents, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(percents) > 0 {
		out["cpu_percent"] = percents[0]
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		out["mem_used_percent"] = vm.UsedPercent
		out["mem_total_bytes"] = vm.Total
	}

	if du, err := disk.UsageWithContext(ctx, m.diskPath); err == nil {
		out["disk_used_percent"] = du.UsedPercent
		out["disk_path"] = m.diskPath
	}

	return out, nil
}
