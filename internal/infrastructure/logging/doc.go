// Package logging provides structured logging for FeedSync Core.
//
// It wraps log/slog so every component logs with the same format and the
// same default fields (service, version).
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr, file
//	  file:
//	    path: "./logs/feedsync.log"
//	    max_size: 10     # megabytes before rotation
//	    max_backups: 3
//	    max_age: 28      # days
//	    compress: false
//
// File output is rotated by lumberjack. Call Close on shutdown to release
// the file handle.
//
// # Usage
//
//	logger := logging.New(cfg.Logging, "1.0.0")
//	defer logger.Close()
//	logger.Info("mapping started", "rows", 6)
//
// Never log secrets such as the JWT secret or broker passwords.
package logging
