// Package log builds the slog loggers used by crawlkit.
//
// Every logger returned here is wrapped in a SecureHandler. A crawl logs
// request URLs, request headers, cookies and proxy addresses, and the
// handler keeps the secrets among them out of the output:
//
//   - header and cookie attributes (authorization, cookie, set-cookie, ...)
//     and keys containing words like "token" or "password" are replaced
//     with MaskValue
//   - values that look like secrets on their own (JWTs, bearer credentials,
//     AWS keys) are replaced with MaskValue
//   - URLs keep their shape; only the userinfo password and credential-like
//     query parameters are masked
//
// Masking applies at every level, verbose included.
//
//	logger := log.NewSecureLogger(os.Stderr, verbose)
//	logger.Debug("fetching", log.RequestAttr(req))
//
// RequestAttr renders a request as a "request" group with its URL, method,
// generation, retry count, headers and cookies. The same loggers are
// passed to tornago when crawling through Tor.
package log
