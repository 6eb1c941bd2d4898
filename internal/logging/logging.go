// Package logging builds the diagnostic zap logger. Diagnostics go to
// rotating files under the project so they never mix with the supervised
// process's output on the terminal.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options configures New.
type Options struct {
	Dir       string
	Level     string // debug, info, warn, error
	Format    string // json or console
	MaxSizeMB int
	MaxFiles  int
}

// New returns a logger writing to a RotatingWriter in opts.Dir, together
// with a function that flushes and closes it.
func New(opts Options) (*zap.Logger, func() error, error) {
	level, err := zapcore.ParseLevel(orDefault(opts.Level, "info"))
	if err != nil {
		return nil, nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
	}

	w, err := NewRotatingWriter(opts.Dir, "devmend", int64(opts.MaxSizeMB)*1024*1024, opts.MaxFiles)
	if err != nil {
		return nil, nil, err
	}

	config := zap.NewProductionEncoderConfig()
	config.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	switch opts.Format {
	case "", "json":
		encoder = zapcore.NewJSONEncoder(config)
	case "console":
		encoder = zapcore.NewConsoleEncoder(config)
	default:
		w.Close()
		return nil, nil, fmt.Errorf("invalid log format %q", opts.Format)
	}

	logger := zap.New(zapcore.NewCore(encoder, w, zap.NewAtomicLevelAt(level)), zap.AddCaller())
	closer := func() error {
		_ = logger.Sync()
		return w.Close()
	}
	return logger, closer, nil
}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
