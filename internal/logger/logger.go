// Package logger configures the process-wide slog logger used by the SDK.
//
// Backend libraries (sipgo in particular) emit their own structured logs;
// everything funnels through slog so host applications can install a single
// handler.
package logger

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
)

var (
	levelMu     sync.RWMutex
	globalLevel = slog.LevelInfo
)

// SetLevel sets the global log level from a string ("debug", "info", ...).
func SetLevel(levelStr string) {
	level := ParseLevel(levelStr)
	levelMu.Lock()
	defer levelMu.Unlock()
	globalLevel = level
}

// ParseLevel parses a string to an slog level. Unknown strings map to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// handler writes compact text logs to one or more outputs, filtered by the
// global level.
type handler struct {
	outs  []io.Writer
	attrs []slog.Attr
	mu    *sync.Mutex
}

func (h *handler) Enabled(_ context.Context, level slog.Level) bool {
	levelMu.RLock()
	defer levelMu.RUnlock()
	return level >= globalLevel
}

func (h *handler) Handle(_ context.Context, record slog.Record) error {
	timestamp := record.Time.Format("15:04:05.000")

	var sb strings.Builder
	sb.WriteString("[" + timestamp + "] [" + strings.ToUpper(record.Level.String()) + "] ")
	sb.WriteString(record.Message)

	for _, a := range h.attrs {
		sb.WriteString(" " + a.Key + "=" + a.Value.String())
	}
	record.Attrs(func(a slog.Attr) bool {
		sb.WriteString(" " + a.Key + "=" + a.Value.String())
		return true
	})
	sb.WriteString("\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, out := range h.outs {
		if out != nil {
			_, _ = out.Write([]byte(sb.String()))
		}
	}
	return nil
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &handler{outs: h.outs, attrs: merged, mu: h.mu}
}

func (h *handler) WithGroup(string) slog.Handler {
	return h
}

// Init installs the default slog logger writing to the given outputs.
func Init(outputs ...io.Writer) {
	slog.SetDefault(slog.New(&handler{outs: outputs, mu: &sync.Mutex{}}))
}

// Convenience functions that use the default logger.
func Debug(msg string, args ...any) { slog.Debug(msg, args...) }
func Info(msg string, args ...any)  { slog.Info(msg, args...) }
func Warn(msg string, args ...any)  { slog.Warn(msg, args...) }
func Error(msg string, args ...any) { slog.Error(msg, args...) }
