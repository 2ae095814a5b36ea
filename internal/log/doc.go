// Package log provides secure logging functionality with automatic sanitization
// of sensitive information, built on top of the standard slog package.
//
// This package extends slog to provide:
//   - Automatic sanitization of sensitive values (cookies, tokens, secrets)
//   - Redaction of API keys embedded in provider URLs
//   - Optional truncation of the IP addresses of investigated users
//   - Configurable log levels with verbose mode support
//
// # Security Features
//
// The SecureHandler automatically sanitizes sensitive information in log output:
//   - HTTP headers (Authorization, Cookie, Set-Cookie, X-Api-Key)
//   - Secret values detected by pattern matching (passwords, tokens, keys)
//   - Query parameters such as key= and token= in logged URLs
//   - Database connection strings
//
// Even in verbose mode, sensitive values are masked to prevent accidental
// exposure of provider credentials in logs that may be shared or stored.
//
// # Usage
//
//	logger := log.NewSecureLogger(os.Stderr, true, log.WithIPMasking(true))
//
//	logger.Info("identity resolved",
//	    "public_ip", "203.0.113.77", // Logged as 203.0.113.0
//	    "url", "https://api.example.com/v1?key=abc", // key=redacted
//	)
//
//	slog.SetDefault(logger)
package log
