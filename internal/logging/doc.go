// Package logging wraps logrus with correlation-ID propagation and
// lumberjack-backed log rotation, used by every other package in this
// module for structured, component-tagged logging.
package logging
