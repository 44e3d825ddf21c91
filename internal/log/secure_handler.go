package log

import (
	"context"
	"io"
	"log/slog"
	"regexp"
	"strings"
)

// sensitiveKeys contains attribute keys whose values are always masked.
var sensitiveKeys = map[string]bool{
	// HTTP headers
	"authorization":       true,
	"cookie":              true,
	"set-cookie":          true,
	"x-api-key":           true,
	"proxy-authorization": true,

	// Authentication
	"password":     true,
	"secret":       true,
	"token":        true,
	"api_key":      true,
	"apikey":       true,
	"access_token": true,

	// Session
	"session":    true,
	"session_id": true,
	"sid":        true,

	// People. Owner and contact data is personal information and never
	// belongs in logs, even at debug level.
	"owner":           true,
	"owner_name":      true,
	"person":          true,
	"matched_person":  true,
	"mailing_address": true,
	"phone":           true,
	"phones":          true,
	"phone_numbers":   true,
	"email":           true,
	"emails":          true,
}

// sensitivePatterns mark a whole value as secret.
var sensitivePatterns = []*regexp.Regexp{
	// JWT tokens
	regexp.MustCompile(`^eyJ[A-Za-z0-9_-]*\.eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]*$`),

	// Bearer tokens
	regexp.MustCompile(`(?i)^bearer\s+.+`),

	// Basic auth
	regexp.MustCompile(`(?i)^basic\s+[A-Za-z0-9+/=]+$`),

	// Long opaque strings (API keys, session ids)
	regexp.MustCompile(`^[a-zA-Z0-9]{32,}$`),
}

// Personal data embedded in longer strings, such as error messages, is
// masked in place so the rest of the message stays readable.
var (
	emailInText = regexp.MustCompile(`([a-zA-Z0-9])[a-zA-Z0-9._%+\-]*@([a-zA-Z0-9.\-]+\.[a-zA-Z]{2,})`)
	phoneInText = regexp.MustCompile(`(?:\(\d{3}\)|\b\d{3})[\s.-]?\d{3}[\s.-]?(\d{4})\b`)
)

// identifierKeys hold record identifiers that look like phone numbers but
// are not personal data.
var identifierKeys = map[string]bool{
	"document":        true,
	"document_number": true,
	"run_id":          true,
}

// MaskValue is the string used to replace sensitive values.
const MaskValue = "***REDACTED***"

// SecureHandler wraps an slog.Handler and masks secrets and personal data
// before records reach the underlying handler.
type SecureHandler struct {
	handler slog.Handler
}

// NewSecureHandler creates a new SecureHandler wrapping the given handler.
// If handler is nil, slog.Default().Handler() is used.
func NewSecureHandler(handler slog.Handler) *SecureHandler {
	if handler == nil {
		handler = slog.Default().Handler()
	}
	return &SecureHandler{handler: handler}
}

// Enabled reports whether the handler handles records at the given level.
func (h *SecureHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle sanitizes the record's attributes and passes it to the underlying handler.
func (h *SecureHandler) Handle(ctx context.Context, r slog.Record) error {
	sanitized := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		sanitized.AddAttrs(h.sanitizeAttr(a))
		return true
	})
	return h.handler.Handle(ctx, sanitized)
}

// WithAttrs returns a new handler with the given attributes added.
func (h *SecureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	sanitizedAttrs := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		sanitizedAttrs[i] = h.sanitizeAttr(a)
	}
	return &SecureHandler{handler: h.handler.WithAttrs(sanitizedAttrs)}
}

// WithGroup returns a new handler with the given group name.
func (h *SecureHandler) WithGroup(name string) slog.Handler {
	return &SecureHandler{handler: h.handler.WithGroup(name)}
}

func (h *SecureHandler) sanitizeAttr(a slog.Attr) slog.Attr {
	a.Value = a.Value.Resolve()

	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		sanitizedAttrs := make([]slog.Attr, len(attrs))
		for i, groupAttr := range attrs {
			sanitizedAttrs[i] = h.sanitizeAttr(groupAttr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(sanitizedAttrs...)}
	}

	keyLower := strings.ToLower(a.Key)
	if sensitiveKeys[keyLower] || containsSensitiveKeyword(keyLower) {
		return slog.String(a.Key, MaskValue)
	}

	if identifierKeys[keyLower] {
		return a
	}

	switch a.Value.Kind() {
	case slog.KindString:
		s := a.Value.String()
		if isSensitiveValue(s) {
			return slog.String(a.Key, MaskValue)
		}
		if masked := MaskPersonalData(s); masked != s {
			return slog.String(a.Key, masked)
		}
	case slog.KindAny:
		// Errors often quote the page text they failed on.
		if err, ok := a.Value.Any().(error); ok && err != nil {
			msg := err.Error()
			if masked := MaskPersonalData(msg); masked != msg {
				return slog.String(a.Key, masked)
			}
		}
	}
	return a
}

// containsSensitiveKeyword checks if the key contains sensitive keywords.
// The bare word "key" is left out; it matches too much ("primary_key").
func containsSensitiveKeyword(key string) bool {
	sensitiveKeywords := []string{
		"password", "secret", "token", "auth", "credential",
		"phone", "email", "owner_name", "mailing",
	}
	for _, keyword := range sensitiveKeywords {
		if strings.Contains(key, keyword) {
			return true
		}
	}
	return false
}

func isSensitiveValue(value string) bool {
	for _, pattern := range sensitivePatterns {
		if pattern.MatchString(value) {
			return true
		}
	}
	return false
}

// MaskPersonalData masks email addresses and phone numbers inside s.
// "maria.lopez@example.com" becomes "m***@example.com" and
// "(210) 555-0100" becomes "***-***-0100".
func MaskPersonalData(s string) string {
	s = emailInText.ReplaceAllString(s, "${1}***@${2}")
	return phoneInText.ReplaceAllString(s, "***-***-${1}")
}

// NewSecureLogger creates a text logger that masks sensitive information.
// verbose selects Debug level; otherwise Info.
func NewSecureLogger(w io.Writer, verbose bool) *slog.Logger {
	return slog.New(NewSecureHandler(slog.NewTextHandler(w, handlerOptions(verbose))))
}

// NewSecureJSONLogger creates a JSON logger that masks sensitive information.
func NewSecureJSONLogger(w io.Writer, verbose bool) *slog.Logger {
	return slog.New(NewSecureHandler(slog.NewJSONHandler(w, handlerOptions(verbose))))
}

func handlerOptions(verbose bool) *slog.HandlerOptions {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return &slog.HandlerOptions{Level: level}
}
