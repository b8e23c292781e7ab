package logutil

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/lojf/weatherbot/internal/config"
)

// Logger bundles the slog logger with its adjustable level and the file sink
// (if any) so callers can close it on shutdown.
type Logger struct {
	*slog.Logger
	Level *slog.LevelVar
	file  *lumberjack.Logger
}

// New builds a logger from cfg. Logs go to stderr, and additionally to a
// rotating file when LOG_FILE is set.
func New(cfg *config.Config) (*Logger, error) {
	level, err := ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	lv := new(slog.LevelVar)
	lv.Set(level)

	var w io.Writer = os.Stderr
	var file *lumberjack.Logger
	if cfg.LogFile != "" {
		file = &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    10,
			MaxBackups: 5,
			MaxAge:     10,
			Compress:   true,
		}
		w = io.MultiWriter(os.Stderr, file)
	}

	h, err := newHandler(w, cfg.LogFormat, &slog.HandlerOptions{Level: lv})
	if err != nil {
		return nil, err
	}
	return &Logger{Logger: slog.New(h), Level: lv, file: file}, nil
}

// Close flushes and closes the rotating file sink.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}

func newHandler(w io.Writer, format string, opts *slog.HandlerOptions) (slog.Handler, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
		return slog.NewTextHandler(w, opts), nil
	case "json":
		return slog.NewJSONHandler(w, opts), nil
	default:
		return nil, fmt.Errorf("unknown LOG_FORMAT: %s", format)
	}
}

func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown LOG_LEVEL: %s", s)
	}
}

// Discard is a logger that drops everything; handy in tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
