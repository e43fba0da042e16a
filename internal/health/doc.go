// Package health exposes the broker's own liveness: a single
// /api/health endpoint reporting process uptime, host resource usage
// (via gopsutil), and which backend kind, if any, currently holds the
// emulator. It follows the teacher's thin-delegation HTTP pattern: the
// server has no logic of its own, it only serializes what HealthAPI
// and HostMonitor report.
package health
