// Package logger provides opinionated logging for the devserve dev server
package logger

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger returns a console logger at debug level when debug is set,
// info level otherwise.
func NewLogger(debug bool) *zap.Logger {
	level := zap.InfoLevel
	if debug {
		level = zap.DebugLevel
	}
	return newLogger(level)
}

// NewLoggerWithLevel returns a console logger for a config log level:
// debug, info, warn, error or silent. An empty level means info. A debug
// flag overrides the configured level.
func NewLoggerWithLevel(level string, debug bool) (*zap.Logger, error) {
	if debug {
		return NewLogger(true), nil
	}

	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		return newLogger(zap.InfoLevel), nil
	case "debug":
		return newLogger(zap.DebugLevel), nil
	case "warn":
		return newLogger(zap.WarnLevel), nil
	case "error":
		return newLogger(zap.ErrorLevel), nil
	case "silent":
		return zap.NewNop(), nil
	default:
		return nil, fmt.Errorf("unknown log level %q", level)
	}
}

func newLogger(level zapcore.Level) *zap.Logger {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "time"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.AddSync(os.Stdout),
		level,
	)

	return zap.New(core, zap.AddCaller())
}
