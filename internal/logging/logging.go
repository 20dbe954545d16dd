// Package logging builds the application's zap logger and carries it
// through contexts.
package logging

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger creates a production logger writing JSON to the log file and
// console output to stderr. Level falls back to info on unknown input.
func NewLogger(level, logFile string) (*zap.Logger, error) {
	return newLogger(level, logFile, true)
}

// NewFileOnlyLogger skips the stderr sink; used when stdout/stderr carry
// machine-readable command output.
func NewFileOnlyLogger(level, logFile string) (*zap.Logger, error) {
	return newLogger(level, logFile, false)
}

func newLogger(level, logFile string, includeStderr bool) (*zap.Logger, error) {
	zapLevel := parseLevel(level)

	var cores []zapcore.Core
	if logFile != "" {
		if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
			return nil, fmt.Errorf("cannot create log directory: %w", err)
		}
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("cannot open log file: %w", err)
		}
		encoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(file), zapLevel))
	}
	if includeStderr {
		encoderCfg := zap.NewDevelopmentEncoderConfig()
		encoder := zapcore.NewConsoleEncoder(encoderCfg)
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(os.Stderr), zapLevel))
	}
	if len(cores) == 0 {
		return zap.NewNop(), nil
	}

	return zap.New(zapcore.NewTee(cores...)), nil
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

type loggerContextKey struct{}

// ContextWithLogger stores the logger in the context.
func ContextWithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, logger)
}

// LoggerFromContext retrieves a logger previously stored with
// ContextWithLogger.
func LoggerFromContext(ctx context.Context) (*zap.Logger, bool) {
	logger, ok := ctx.Value(loggerContextKey{}).(*zap.Logger)
	return logger, ok
}
