// Package logging provides zap logger helpers.
//
// Harvest runs log to two places at once: an append-only audit file with
// lines shaped "timestamp - LEVEL - message" and a terse "LEVEL: message"
// console mirror. zap's DPanic level is rendered as CRITICAL and is what
// components use for unrecoverable setup failures; loggers built here never
// enable development mode on the file core, so DPanic does not panic.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const fileTimeLayout = "2006-01-02 15:04:05"

// Options configures the audit logger.
type Options struct {
	// FilePath is the audit log. Empty disables the file core.
	FilePath     string
	FileLevel    string
	ConsoleLevel string
	Development  bool
	// Console defaults to stderr.
	Console io.Writer
}

// NewAudit builds a logger that tees the audit file and the console. The
// returned close function flushes and releases the file.
func NewAudit(opts Options) (*zap.Logger, func(), error) {
	consoleLevel, err := ParseLevel(opts.ConsoleLevel)
	if err != nil {
		return nil, nil, err
	}
	if opts.Development {
		consoleLevel = zapcore.DebugLevel
	}
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(consoleEncoderConfig()), zapcore.Lock(zapcore.AddSync(console)), consoleLevel),
	}

	closeFile := func() {}
	if opts.FilePath != "" {
		fileLevel, err := ParseLevel(opts.FileLevel)
		if err != nil {
			return nil, nil, err
		}
		sink, closeSink, err := zap.Open(opts.FilePath)
		if err != nil {
			return nil, nil, fmt.Errorf("open audit log %s: %w", opts.FilePath, err)
		}
		closeFile = closeSink
		cores = append(cores, zapcore.NewCore(zapcore.NewConsoleEncoder(fileEncoderConfig()), sink, fileLevel))
	}

	logger := zap.New(zapcore.NewTee(cores...))
	cleanup := func() {
		_ = logger.Sync() //nolint:errcheck // best-effort flush
		closeFile()
	}
	return logger, cleanup, nil
}

// ParseLevel accepts zap level names plus "warning" and "critical". Empty
// means info.
func ParseLevel(text string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(text)) {
	case "":
		return zapcore.InfoLevel, nil
	case "warning":
		return zapcore.WarnLevel, nil
	case "critical":
		return zapcore.DPanicLevel, nil
	}
	level, err := zapcore.ParseLevel(text)
	if err != nil {
		return zapcore.InfoLevel, fmt.Errorf("parse log level %q: %w", text, err)
	}
	return level, nil
}

// LevelEncoder names levels the way the audit log reports them.
func LevelEncoder(level zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
	switch level {
	case zapcore.WarnLevel:
		enc.AppendString("WARNING")
	case zapcore.DPanicLevel, zapcore.PanicLevel, zapcore.FatalLevel:
		enc.AppendString("CRITICAL")
	default:
		enc.AppendString(level.CapitalString())
	}
}

func fileEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:          "ts",
		LevelKey:         "level",
		MessageKey:       "msg",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeLevel:      LevelEncoder,
		EncodeTime:       zapcore.TimeEncoderOfLayout(fileTimeLayout),
		EncodeDuration:   zapcore.StringDurationEncoder,
		ConsoleSeparator: " - ",
	}
}

func consoleEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		LevelKey:         "level",
		MessageKey:       "msg",
		LineEnding:       zapcore.DefaultLineEnding,
		EncodeLevel:      func(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) { LevelEncoder(l, suffixEncoder{enc}) },
		EncodeDuration:   zapcore.StringDurationEncoder,
		ConsoleSeparator: " ",
	}
}

// suffixEncoder renders "LEVEL:" so console lines read "LEVEL: message".
type suffixEncoder struct {
	zapcore.PrimitiveArrayEncoder
}

func (s suffixEncoder) AppendString(v string) {
	s.PrimitiveArrayEncoder.AppendString(v + ":")
}
