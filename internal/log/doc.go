// Package log provides slog loggers that keep secrets and personal data out
// of log output.
//
// SecureHandler wraps any slog.Handler. Before a record is written it:
//   - masks values whose keys name credentials or people (cookie, token,
//     owner, phone, email, mailing_address)
//   - masks values that look like bearer tokens, JWTs or opaque keys
//   - rewrites email addresses and phone numbers found inside longer
//     strings and error messages, keeping the domain and last four digits
//
// Owner names and contact details are the product of a run. They belong in
// reports and the lead database, never in logs.
//
//	logger := log.NewSecureLogger(os.Stderr, verbose)
//	slog.SetDefault(logger)
package log
