// Package logging provides structured logging for NeoBin Core.
//
// It wraps log/slog so every component logs with the same handler,
// level filtering, and default fields (service, version).
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Info("advertising", "name", cfg.Bluetooth.LocalName)
//
// # Security
//
// Never log the device credential, JWT secrets, or WiFi passwords.
package logging
