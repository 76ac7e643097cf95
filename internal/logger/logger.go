// Package logger wires log/slog to a zerolog-backed console handler, the
// teacher's customHandler/MultiLevelHandler shape (internal/logger/logger.go)
// adapted to back onto zerolog's ConsoleWriter instead of a hand-rolled
// formatter, with TTY-aware coloring via go-isatty/go-colorable.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

var (
	globalLevel  = slog.LevelInfo
	handlerMutex sync.RWMutex
)

// SetLevel sets the global log level by name ("debug", "info", "warn", "error").
func SetLevel(levelStr string) {
	handlerMutex.Lock()
	defer handlerMutex.Unlock()
	globalLevel = ParseLevel(levelStr)
}

// ParseLevel parses a level name, defaulting to Info on anything unrecognized.
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

// zerologHandler is an slog.Handler that reformats every record through a
// zerolog.Logger, giving the exchange zerolog's ConsoleWriter coloring and
// the teacher's global-level-gate behavior in one handler.
type zerologHandler struct {
	zl    zerolog.Logger
	attrs []slog.Attr
}

// New builds the process's *slog.Logger, writing to out (typically
// os.Stdout), wrapped in go-colorable so ANSI codes render correctly on
// Windows consoles too; colors are disabled automatically when out is not
// a TTY, via go-isatty.
func New(out *os.File, levelStr string) *slog.Logger {
	SetLevel(levelStr)

	isTTY := isatty.IsTerminal(out.Fd()) || isatty.IsCygwinTerminal(out.Fd())
	writer := colorable.NewColorable(out)

	console := zerolog.ConsoleWriter{Out: writer, NoColor: !isTTY, TimeFormat: "15:04:05"}
	zl := zerolog.New(console).With().Timestamp().Logger()

	return slog.New(&zerologHandler{zl: zl})
}

func (h *zerologHandler) Enabled(_ context.Context, level slog.Level) bool {
	handlerMutex.RLock()
	defer handlerMutex.RUnlock()
	return level >= globalLevel
}

func (h *zerologHandler) Handle(_ context.Context, record slog.Record) error {
	var ev *zerolog.Event
	switch {
	case record.Level >= slog.LevelError:
		ev = h.zl.Error()
	case record.Level >= slog.LevelWarn:
		ev = h.zl.Warn()
	case record.Level >= slog.LevelInfo:
		ev = h.zl.Info()
	default:
		ev = h.zl.Debug()
	}

	for _, a := range h.attrs {
		ev = ev.Interface(a.Key, a.Value.Any())
	}
	record.Attrs(func(a slog.Attr) bool {
		ev = ev.Interface(a.Key, a.Value.Any())
		return true
	})
	ev.Msg(record.Message)
	return nil
}

func (h *zerologHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &zerologHandler{zl: h.zl, attrs: merged}
}

func (h *zerologHandler) WithGroup(name string) slog.Handler {
	return &zerologHandler{zl: h.zl.With().Str("group", name).Logger(), attrs: h.attrs}
}
