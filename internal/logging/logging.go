// Package logging builds the zap loggers used by the extractor and CLI.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures New.
type Options struct {
	// Level is a zap level name ("debug", "info", "warn", "error"). Empty means info.
	Level string

	// File, when set, receives a copy of every entry through a rotating writer.
	File string

	// JSON selects the JSON encoder for the console sink. The file sink is always JSON.
	JSON bool

	// Console overrides the console writer (stderr when nil).
	Console io.Writer
}

// DefaultEncoderConfig uses capital levels and ISO8601 timestamps.
func DefaultEncoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return cfg
}

// DefaultLumberjackLogger rotates every 200MB and never prunes backups.
func DefaultLumberjackLogger(path string) *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:  path,
		MaxSize:   200,
		LocalTime: true,
		Compress:  true,
	}
}

// DefaultOptions adds caller info and stack traces from DPanic up.
func DefaultOptions() []zap.Option {
	var stackTraceLevel zap.LevelEnablerFunc = func(level zapcore.Level) bool {
		return level >= zapcore.DPanicLevel
	}
	return []zap.Option{
		zap.AddCaller(),
		zap.AddStacktrace(stackTraceLevel),
	}
}

// ParseLevel maps a level name to a zapcore.Level.
func ParseLevel(s string) (zapcore.Level, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return zapcore.InfoLevel, nil
	}
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(s))); err != nil {
		return zapcore.InfoLevel, fmt.Errorf("log level %q: %w", s, err)
	}
	return lvl, nil
}

// New builds a logger writing to the console and, optionally, a rotating file.
// The returned close func syncs the logger and closes the file sink.
func New(opts Options) (*zap.Logger, func() error, error) {
	lvl, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}

	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	encCfg := DefaultEncoderConfig()
	var consoleEnc zapcore.Encoder
	if opts.JSON {
		consoleEnc = zapcore.NewJSONEncoder(encCfg)
	} else {
		consoleEnc = zapcore.NewConsoleEncoder(encCfg)
	}

	cores := []zapcore.Core{
		zapcore.NewCore(consoleEnc, zapcore.AddSync(console), lvl),
	}

	var rotator *lumberjack.Logger
	if opts.File != "" {
		rotator = DefaultLumberjackLogger(opts.File)
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), zapcore.AddSync(rotator), lvl))
	}

	logger := zap.New(zapcore.NewTee(cores...), DefaultOptions()...)
	closeFn := func() error {
		_ = logger.Sync()
		if rotator != nil {
			return rotator.Close()
		}
		return nil
	}
	return logger, closeFn, nil
}
