// Package common provides small shared interfaces used across the
// debug broker's long-running components (the REST+WebSocket server,
// the health server, attached backends) to keep shutdown consistent.
package common
