// Package logging builds the loggers used by the arena commands.
package logging

import (
	"io"
	"log/slog"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config selects where and how much to log.
type Config struct {
	// File is the rotating log file. Empty logs to stderr only.
	File  string
	Debug bool
}

// Loggers pairs the zap logger used by the transport with the slog logger
// used by the game core. Both write to the same outputs.
type Loggers struct {
	Zap  *zap.SugaredLogger
	Slog *slog.Logger

	closer io.Closer
}

// New builds the loggers. Call Sync before exiting.
func New(cfg Config) *Loggers {
	level := zapcore.InfoLevel
	slogLevel := slog.LevelInfo
	if cfg.Debug {
		level = zapcore.DebugLevel
		slogLevel = slog.LevelDebug
	}

	var (
		out    io.Writer = os.Stderr
		closer io.Closer
	)
	if cfg.File != "" {
		// 10MB per file, 3 backups, 7 days.
		lj := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    10,
			MaxBackups: 3,
			MaxAge:     7,
		}
		out = io.MultiWriter(lj, os.Stderr)
		closer = lj
	}

	encCfg := zapcore.EncoderConfig{
		TimeKey:       "ts",
		LevelKey:      "level",
		NameKey:       "logger",
		CallerKey:     "caller",
		MessageKey:    "msg",
		StacktraceKey: "stack",
		LineEnding:    zapcore.DefaultLineEnding,
		EncodeLevel:   zapcore.CapitalLevelEncoder,
		EncodeTime:    zapcore.ISO8601TimeEncoder,
		EncodeCaller:  zapcore.ShortCallerEncoder,
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.AddSync(out), level)

	return &Loggers{
		Zap:    zap.New(core, zap.AddCaller()).Named("transport").Sugar(),
		Slog:   slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: slogLevel})),
		closer: closer,
	}
}

// Sync flushes buffered zap entries and closes the log file.
func (l *Loggers) Sync() {
	_ = l.Zap.Sync()
	if l.closer != nil {
		_ = l.closer.Close()
	}
}
