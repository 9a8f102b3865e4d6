package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger *zap.Logger

// LogLevelEnvVar is the environment variable that controls logging verbosity.
// When unset or empty, logging is silent (no zap output).
// Valid values: "debug", "info", "warn", "error"
const LogLevelEnvVar = "BASECAMP_LOG_LEVEL"

// Initialize creates a new logger with the specified level.
// If level is empty, it checks BASECAMP_LOG_LEVEL environment variable.
// If neither is set, logging is disabled (silent mode).
func Initialize(level string) error {
	if level == "" {
		level = os.Getenv(LogLevelEnvVar)
	}

	if level == "" {
		logger = zap.NewNop()
		return nil
	}

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(parseLevel(level)),
		Development:      false,
		Encoding:         "console",
		EncoderConfig:    zap.NewDevelopmentEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	config.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	var err error
	logger, err = config.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	return nil
}

// parseLevel maps a level name to a zap level. Unknown names fall back to info.
func parseLevel(level string) zapcore.Level {
	switch level {
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

// SetLogger replaces the global logger. Tests use it with zaptest/observer cores.
func SetLogger(l *zap.Logger) {
	logger = l
}

// GetLogger returns the global logger instance
func GetLogger() *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return logger
}

// Info logs an info message
func Info(msg string, fields ...zap.Field) {
	GetLogger().Info(msg, fields...)
}

// Debug logs a debug message
func Debug(msg string, fields ...zap.Field) {
	GetLogger().Debug(msg, fields...)
}

// Warn logs a warning message
func Warn(msg string, fields ...zap.Field) {
	GetLogger().Warn(msg, fields...)
}

// Error logs an error message
func Error(msg string, fields ...zap.Field) {
	GetLogger().Error(msg, fields...)
}

// LogBootEvaluation logs the outcome of the boot recovery decision
func LogBootEvaluation(cause string, failures uint, action string) {
	Info("Boot evaluated",
		zap.String("reset_cause", cause),
		zap.Uint("unsuccessful_boots", failures),
		zap.String("action", action),
	)
}

// LogNetworkEvent logs a link-layer event delivered by the radio
func LogNetworkEvent(kind string, fields ...zap.Field) {
	Info("Network event", append([]zap.Field{zap.String("event", kind)}, fields...)...)
}

// LogHTTPRequest logs a request served by the configuration UI
func LogHTTPRequest(remoteAddr string, method string, path string, statusCode int) {
	Debug("HTTP request",
		zap.String("remote_addr", remoteAddr),
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status_code", statusCode),
	)
}

// Sync flushes any buffered log entries
func Sync() {
	if logger != nil {
		_ = logger.Sync()
	}
}
