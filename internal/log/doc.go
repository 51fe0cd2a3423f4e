// Package log provides slog handlers that mask sensitive values.
//
// Crawls can carry site cookies, authorization headers, and proxy
// credentials, and crawled URLs often contain signed query parameters.
// SecureHandler masks these before records reach the output:
//   - attributes whose key names a secret (cookie, authorization, token)
//   - values shaped like secrets (JWTs, bearer and basic credentials)
//   - userinfo passwords and secret query parameters inside URLs
//
// Usage:
//
//	logger := log.NewLogger(os.Stderr, verbose, jsonFormat)
//	slog.SetDefault(logger)
package log
