// Package logging provides structured logging for Graychat Core.
//
// It wraps log/slog so every entry carries the service name and build
// version. JSON output is the default; text is available for local work.
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// Usage:
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("server started", "addr", addr)
//
// # Security
//
// Never log session credentials, password material or the signing secret.
// Log user IDs and request IDs instead.
package logging
