// Package pkg provides shared utilities for the keystash control plane.
//
// This package contains common functionality used by every component,
// including:
//
//   - Structured logging via Go's standard [log/slog] package
//   - A zap-backed console format for interactive sessions
//   - Sentinel error values for storage, console and event path failures
//   - Component identifiers for log filtering
//
// # Logging
//
// The logging subsystem wraps [log/slog] with a component attribute:
//
//	pkg.SetLogLevel(slog.LevelDebug)
//	pkg.LogInfo(pkg.ComponentStore, "filesystem mounted", "media", "dir")
//
// Three output formats are available through [SetLogFormat] and
// [SetLogOutput]: text and JSON (slog handlers) and console (a zap core
// bridged to slog). All of them honor [SetLogLevel].
//
// # Errors
//
// Errors are defined as sentinel values and wrapped with context:
//
//	if errors.Is(err, pkg.ErrStorage) {
//	    // Report to the operator, keep running
//	}
//
// Only errors wrapping [ErrFatal] halt the system.
package pkg
