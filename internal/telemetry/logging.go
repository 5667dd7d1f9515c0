// Package telemetry builds the structured logger and metric instruments used
// across recall.
//
// Logs never go to stdout: stdout carries the MCP stdio transport, so any
// stray byte there corrupts the protocol stream.
package telemetry

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// LogOptions configures NewLogger.
type LogOptions struct {
	// Level is one of debug, info, warn, error. Unknown values mean info.
	Level string
	// Dir, when set, also appends JSON lines to <Dir>/recall.jsonl.
	Dir string
	// Stderr overrides the console sink (tests). Defaults to os.Stderr.
	Stderr io.Writer
}

// NewLogger returns a JSON slog logger writing to stderr and, optionally, a
// log file. The returned closer releases the file and is never nil.
func NewLogger(opts LogOptions) (*slog.Logger, io.Closer, error) {
	var w io.Writer = os.Stderr
	if opts.Stderr != nil {
		w = opts.Stderr
	}

	var closer io.Closer = nopCloser{}
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, nil, err
		}
		f, err := os.OpenFile(filepath.Join(opts.Dir, "recall.jsonl"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, err
		}
		w = io.MultiWriter(w, f)
		closer = f
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(opts.Level),
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if shouldRedactKey(a.Key) {
				return slog.String(a.Key, "[REDACTED]")
			}
			if a.Value.Kind() == slog.KindString && looksLikeSecret(a.Value.String()) {
				return slog.String(a.Key, "[REDACTED]")
			}
			return a
		},
	})
	return slog.New(handler).With("component", "recall"), closer, nil
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func shouldRedactKey(key string) bool {
	lower := strings.ToLower(strings.TrimSpace(key))
	if lower == "" {
		return false
	}
	for _, token := range []string{"token", "secret", "password", "authorization", "api_key", "apikey"} {
		if strings.Contains(lower, token) {
			return true
		}
	}
	return false
}

// looksLikeSecret catches provider keys logged under innocent attribute names.
func looksLikeSecret(v string) bool {
	lower := strings.ToLower(v)
	if strings.Contains(lower, "bearer ") || strings.Contains(lower, "authorization:") {
		return true
	}
	for _, f := range strings.Fields(v) {
		if strings.HasPrefix(f, "sk-") && len(f) > 20 {
			return true
		}
	}
	return false
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
