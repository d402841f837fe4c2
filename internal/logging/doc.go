// Package logging provides logging utilities for repro-env.
//
// This package provides two categories of output:
//   - Debug logging: Structured logs for debugging (via slog)
//   - User output: Formatted messages for end users
//
// # Debug Logging
//
// Debug logs are written using slog and controlled by verbosity settings:
//
//	logging.Debug("resolving package", "name", name, "system", system)
//	logging.Warn("signature verification slow", "package", pkg, "elapsed", elapsed)
//
// # User Output
//
// User-facing messages are formatted with status indicators:
//
//	logging.UserInfo("fetching %s %s (%s)", name, version, system)
//	logging.UserSuccess("lockfile written with %d packages", count)
//	logging.UserWarning("package %s has no signature to verify", name)
//	logging.UserError("failed to resolve dependency closure: %v", err)
//
// Output destinations:
//   - UserInfo, UserSuccess: stdout
//   - UserWarning, UserError: stderr
//
// # Status Indicators
//
// User functions prepend status indicators:
//   - ℹ (info)
//   - ✓ (success)
//   - ⚠ (warning)
//   - ✗ (error)
package logging
