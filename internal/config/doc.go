// Package config loads and validates the debug broker's service
// configuration: listener addresses, per-backend launch defaults,
// security, logging, and capture output locations.
package config
