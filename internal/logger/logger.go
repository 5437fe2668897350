// Package logger builds the process-wide zap logger.
package logger

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/youtubelmm/api/internal/config"
)

// Logger wraps zap.Logger with a sugared twin for printf-style callers.
type Logger struct {
	*zap.Logger
	sugar *zap.SugaredLogger
	file  *lumberjack.Logger
}

// ParseLevel maps a config level name to a zap level. Unknown names mean info.
func ParseLevel(name string) zapcore.Level {
	switch name {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	}
	return zapcore.InfoLevel
}

// New builds a logger from the log section and the server log level.
func New(cfg config.LogConfig, level string) (*Logger, error) {
	lvl := ParseLevel(level)

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05"),
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var writer zapcore.WriteSyncer
	var file *lumberjack.Logger
	toFile := cfg.Output == "file"
	if toFile {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		file = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
		writer = zapcore.AddSync(file)
	} else {
		writer = zapcore.AddSync(os.Stdout)
	}

	var encoder zapcore.Encoder
	if useJSON(cfg.Format, toFile) {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	z := zap.New(zapcore.NewCore(encoder, writer, lvl), zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
	return &Logger{Logger: z, sugar: z.Sugar(), file: file}, nil
}

// useJSON resolves the auto format: console on a terminal, JSON otherwise.
func useJSON(format string, toFile bool) bool {
	switch format {
	case "json":
		return true
	case "console", "text":
		return false
	}
	if toFile {
		return true
	}
	fd := os.Stdout.Fd()
	return !(isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd))
}

// Sugar returns the sugared logger.
func (l *Logger) Sugar() *zap.SugaredLogger {
	return l.sugar
}

// Close flushes buffered entries and closes the log file.
func (l *Logger) Close() error {
	_ = l.Logger.Sync()
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// AsynqLogger adapts a sugared zap logger to asynq's Logger interface.
type AsynqLogger struct {
	S *zap.SugaredLogger
}

func (a AsynqLogger) Debug(args ...interface{}) { a.S.Debug(args...) }
func (a AsynqLogger) Info(args ...interface{})  { a.S.Info(args...) }
func (a AsynqLogger) Warn(args ...interface{})  { a.S.Warn(args...) }
func (a AsynqLogger) Error(args ...interface{}) { a.S.Error(args...) }
func (a AsynqLogger) Fatal(args ...interface{}) { a.S.Fatal(args...) }
