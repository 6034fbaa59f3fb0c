// Package logger provides standardized logging utilities for the code generator
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Global logger instance
var defaultLogger = zap.NewNop().Sugar()

// LogLevel represents the logging level
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Config holds logger configuration
type Config struct {
	Level     LogLevel
	Format    string // "text" or "json"
	Output    io.Writer
	AddSource bool
	LogFile   string
}

// DefaultConfig returns the default logger configuration
func DefaultConfig() Config {
	return Config{
		Level:     LevelInfo,
		Format:    "text",
		Output:    os.Stderr,
		AddSource: false,
	}
}

// Init initializes the global logger with the given configuration
func Init(cfg Config) error {
	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.LogFile != "" {
		file, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		output = file
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	var enc zapcore.Encoder
	if cfg.Format == "json" {
		encCfg = zap.NewProductionEncoderConfig()
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, zapcore.AddSync(output), toZapLevel(cfg.Level))
	var opts []zap.Option
	if cfg.AddSource {
		opts = append(opts, zap.AddCaller(), zap.AddCallerSkip(1))
	}

	defaultLogger = zap.New(core, opts...).Sugar()
	return nil
}

// InitDev initializes logging for development (debug level, text format)
func InitDev() {
	_ = Init(Config{
		Level:     LevelDebug,
		Format:    "text",
		Output:    os.Stderr,
		AddSource: true,
	})
}

// InitProd initializes logging for production (info level, json format)
func InitProd(logDir string) error {
	logPath := filepath.Join(logDir, "callgen.log")
	return Init(Config{
		Level:   LevelInfo,
		Format:  "json",
		LogFile: logPath,
	})
}

func toZapLevel(level LogLevel) zapcore.Level {
	switch level {
	case LevelDebug:
		return zapcore.DebugLevel
	case LevelInfo:
		return zapcore.InfoLevel
	case LevelWarn:
		return zapcore.WarnLevel
	case LevelError:
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// Sync flushes buffered log entries
func Sync() {
	_ = defaultLogger.Sync()
}

// Debug logs a debug message
func Debug(msg string, args ...any) {
	defaultLogger.Debugw(msg, args...)
}

// Info logs an info message
func Info(msg string, args ...any) {
	defaultLogger.Infow(msg, args...)
}

// Warn logs a warning message
func Warn(msg string, args ...any) {
	defaultLogger.Warnw(msg, args...)
}

// Error logs an error message
func Error(msg string, args ...any) {
	defaultLogger.Errorw(msg, args...)
}

// With returns a new logger with the given attributes
func With(args ...any) *zap.SugaredLogger {
	return defaultLogger.With(args...)
}

// Named returns a new logger scoped under the given name
func Named(name string) *zap.SugaredLogger {
	return defaultLogger.Named(name)
}

// Codegen-specific logging helpers

// LogPhase logs the start of a generation phase
func LogPhase(phase string) {
	Info("Starting generation phase", "phase", phase)
}

// LogPhaseComplete logs the completion of a generation phase
func LogPhaseComplete(phase string, procedures int) {
	Info("Completed generation phase", "phase", phase, "procedures", procedures)
}

// LogProcedure logs a procedure lifecycle event
func LogProcedure(name string, event string) {
	Debug("Procedure event", "procedure", name, "event", event)
}

// LogCodeGen logs code generation
func LogCodeGen(arch string, funcName string, instructionCount int) {
	Debug("Code generation complete",
		"arch", arch,
		"function", funcName,
		"instructions", instructionCount)
}

// LogFatal logs an internal invariant violation before the generator aborts
func LogFatal(procedure string, msg string) {
	Error("Internal code generation error",
		"procedure", procedure,
		"message", msg)
}
