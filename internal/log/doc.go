// Package log provides secure logging built on top of the standard slog package.
//
// The SecureHandler masks sensitive information before it reaches the output:
//   - HTTP header values such as Cookie and Authorization, as configured per site
//   - attributes whose key names a secret (password, token, session, ...)
//   - values that look like credentials (bearer and basic auth, JWTs)
//   - user credentials and secret query parameters inside URLs, including
//     URLs quoted in error messages
//
// Even in verbose mode, sensitive values are masked.
//
// # Usage
//
//	logger := log.NewSecureLogger(os.Stderr, verbose)
//	slog.SetDefault(logger)
//	logger.Debug("request sent", "url", "https://user:pw@example.com/") // logged as https://example.com/
package log
