// Package logging provides structured logging for ShellyManager.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the entire application.
//
// # Features
//
//   - JSON output for production (machine-parsable)
//   - Text output for development (human-readable)
//   - Default fields (service, version) on all log entries
//   - Level-based filtering (debug, info, warn, error)
//   - Thread-safe for concurrent use
//
// # Configuration
//
// Logging is configured via the LoggingConfig in config.yaml:
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	cycleLog := logger.ForCycle(cycleID)
//	cycleLog.Info("closing intervals", "meters", 3)
//	cycleLog.Error("insert failed", "error", err)
//
// # Security
//
// Never log secrets, tokens, passwords, or API keys.
// Device passwords and broker tokens must stay out of attributes.
package logging
