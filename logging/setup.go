package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config selects level and output format.
type Config struct {
	Level  string // DEBUG, INFO, WARN, ERROR
	Format string // json or text
	Traces bool
}

// ParseLevel maps a level name to slog.Level, defaulting to Info.
func ParseLevel(s string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds a decorated logger writing to w.
func New(w io.Writer, cfg Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}
	var inner slog.Handler
	if strings.EqualFold(cfg.Format, "text") {
		inner = slog.NewTextHandler(w, opts)
	} else {
		inner = slog.NewJSONHandler(w, opts)
	}
	return slog.New(NewHandler(inner, HandlerOptions{Traces: cfg.Traces}))
}

// Setup installs New(os.Stdout, cfg) as the slog default.
func Setup(cfg Config) *slog.Logger {
	l := New(os.Stdout, cfg)
	slog.SetDefault(l)
	return l
}

// FileLogger appends request log lines to a file. It is safe for concurrent
// use.
type FileLogger struct {
	f      *os.File
	logger *slog.Logger
}

// NewFileLogger opens (or creates) path for appending.
func NewFileLogger(path string) (*FileLogger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, fmt.Errorf("logging: open %s: %w", path, err)
	}
	return &FileLogger{f: f, logger: slog.New(slog.NewTextHandler(f, nil))}, nil
}

// Logger returns the underlying logger.
func (l *FileLogger) Logger() *slog.Logger {
	return l.logger
}

// Close closes the file.
func (l *FileLogger) Close() error {
	return l.f.Close()
}
