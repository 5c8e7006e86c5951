// Package logging is the component logger used across rigd. Messages
// carry a level and a component tag ("rig", "listener", "web") and can
// go to the console, a size-rotated file, or both.
package logging

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dougsko/rigd/pkg/config"
	"gopkg.in/lumberjack.v2"
)

// Level is a logging severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel parses a level name; unknown names mean info.
func ParseLevel(level string) Level {
	switch strings.ToLower(level) {
	case "debug":
		return LevelDebug
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Logger writes leveled, component-tagged log lines.
type Logger struct {
	level      Level
	structured bool
	out        *log.Logger
	rotating   *lumberjack.Logger
}

// NewLogger builds a logger from the logging section of the config.
func NewLogger(cfg *config.Config) (*Logger, error) {
	l := &Logger{
		level:      ParseLevel(cfg.Logging.Level),
		structured: cfg.Logging.Structured,
	}

	var writers []io.Writer
	if cfg.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		l.rotating = &lumberjack.Logger{
			Filename:   cfg.Logging.File,
			MaxSize:    cfg.Logging.MaxSize,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAge:     cfg.Logging.MaxAge,
			Compress:   cfg.Logging.Compress,
		}
		writers = append(writers, l.rotating)
	}
	if cfg.Logging.Console || len(writers) == 0 {
		writers = append(writers, os.Stdout)
	}
	l.out = log.New(io.MultiWriter(writers...), "", 0)

	return l, nil
}

// Close flushes and closes the rotating file, if any.
func (l *Logger) Close() error {
	if l.rotating != nil {
		return l.rotating.Close()
	}
	return nil
}

func (l *Logger) format(level Level, component, message string) string {
	timestamp := time.Now().Format("2006-01-02 15:04:05.000")
	if l.structured {
		return fmt.Sprintf(`{"time":"%s","level":"%s","component":"%s","message":"%s"}`,
			timestamp, level, component, message)
	}
	return fmt.Sprintf("%s [%s] %s: %s", timestamp, level, component, message)
}

func (l *Logger) log(level Level, component, message string) {
	if level < l.level {
		return
	}
	l.out.Println(l.format(level, component, message))
}

func (l *Logger) Debug(component, message string) { l.log(LevelDebug, component, message) }
func (l *Logger) Info(component, message string)  { l.log(LevelInfo, component, message) }
func (l *Logger) Warn(component, message string)  { l.log(LevelWarn, component, message) }
func (l *Logger) Error(component, message string) { l.log(LevelError, component, message) }

func (l *Logger) Debugf(component, format string, args ...interface{}) {
	l.log(LevelDebug, component, fmt.Sprintf(format, args...))
}

func (l *Logger) Infof(component, format string, args ...interface{}) {
	l.log(LevelInfo, component, fmt.Sprintf(format, args...))
}

func (l *Logger) Warnf(component, format string, args ...interface{}) {
	l.log(LevelWarn, component, fmt.Sprintf(format, args...))
}

func (l *Logger) Errorf(component, format string, args ...interface{}) {
	l.log(LevelError, component, fmt.Sprintf(format, args...))
}

// Global logger instance
var globalLogger *Logger

// InitGlobalLogger initializes the global logger from configuration.
func InitGlobalLogger(cfg *config.Config) error {
	logger, err := NewLogger(cfg)
	if err != nil {
		return err
	}
	globalLogger = logger
	return nil
}

// GetGlobalLogger returns the global logger, falling back to console
// logging at info level when none was initialized.
func GetGlobalLogger() *Logger {
	if globalLogger == nil {
		globalLogger = &Logger{
			level: LevelInfo,
			out:   log.New(os.Stdout, "", 0),
		}
	}
	return globalLogger
}

// CloseGlobalLogger closes the global logger.
func CloseGlobalLogger() error {
	if globalLogger != nil {
		return globalLogger.Close()
	}
	return nil
}

// Convenience functions for the global logger
func Debug(component, message string) { GetGlobalLogger().Debug(component, message) }
func Info(component, message string)  { GetGlobalLogger().Info(component, message) }
func Warn(component, message string)  { GetGlobalLogger().Warn(component, message) }
func Error(component, message string) { GetGlobalLogger().Error(component, message) }

func Debugf(component, format string, args ...interface{}) {
	GetGlobalLogger().Debugf(component, format, args...)
}

func Infof(component, format string, args ...interface{}) {
	GetGlobalLogger().Infof(component, format, args...)
}

func Warnf(component, format string, args ...interface{}) {
	GetGlobalLogger().Warnf(component, format, args...)
}

func Errorf(component, format string, args ...interface{}) {
	GetGlobalLogger().Errorf(component, format, args...)
}
