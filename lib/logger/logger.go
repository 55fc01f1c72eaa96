// Package logger provides the leveled logging abstraction used across the
// lock service. Libraries accept an ILogger so embedders can plug in their
// own backend; the std implementation writes to stdout via the standard
// library log package.
package logger

import (
	"fmt"
	"log"
	"os"
	"strings"
)

// --------------------------------------------------------------------------
// Log Levels
// --------------------------------------------------------------------------

type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarning
	LevelError
)

func (l LogLevel) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarning:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a string level to a LogLevel.
func ParseLevel(level string) (LogLevel, error) {
	switch strings.ToLower(level) {
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warning", "warn":
		return LevelWarning, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("invalid log level: %s. must be one of debug, info, warn, error", level)
	}
}

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// ILogger is the logging interface consumed by all packages of this module.
type ILogger interface {
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warningf(format string, args ...interface{})
	Errorf(format string, args ...interface{})

	// SetLevel changes the minimum level that is emitted.
	SetLevel(level LogLevel)

	// WithComponent returns a logger that tags all messages with the given
	// component name. The level is inherited.
	WithComponent(name string) ILogger
}

// --------------------------------------------------------------------------
// Std Implementation
// --------------------------------------------------------------------------

// stdLogger implements ILogger with custom formatting on top of the
// standard library log package.
type stdLogger struct {
	name   string
	level  LogLevel
	logger *log.Logger
}

// New creates a logger for the given component writing to stdout.
func New(component string, level LogLevel) ILogger {
	return &stdLogger{
		name:   component,
		level:  level,
		logger: log.New(os.Stdout, "", log.Ldate|log.Ltime),
	}
}

func (l *stdLogger) SetLevel(level LogLevel) {
	l.level = level
}

func (l *stdLogger) WithComponent(name string) ILogger {
	return &stdLogger{
		name:   name,
		level:  l.level,
		logger: l.logger,
	}
}

func (l *stdLogger) Debugf(format string, args ...interface{}) {
	if l.level <= LevelDebug {
		l.log(LevelDebug, format, args...)
	}
}

func (l *stdLogger) Infof(format string, args ...interface{}) {
	if l.level <= LevelInfo {
		l.log(LevelInfo, format, args...)
	}
}

func (l *stdLogger) Warningf(format string, args ...interface{}) {
	if l.level <= LevelWarning {
		l.log(LevelWarning, format, args...)
	}
}

func (l *stdLogger) Errorf(format string, args ...interface{}) {
	if l.level <= LevelError {
		l.log(LevelError, format, args...)
	}
}

// log formats and writes a log message. this internal helper is used by the public methods
func (l *stdLogger) log(level LogLevel, format string, args ...interface{}) {
	message := fmt.Sprintf(format, args...)
	l.logger.Printf("%-5s | %-15s | %s", level, l.name, message)
}

// --------------------------------------------------------------------------
// NoOp Implementation
// --------------------------------------------------------------------------

// noOpLogger discards all messages. Used as the default in library code and
// in tests.
type noOpLogger struct{}

// NewNoOp returns a logger that discards everything.
func NewNoOp() ILogger {
	return &noOpLogger{}
}

func (noOpLogger) Debugf(string, ...interface{})   {}
func (noOpLogger) Infof(string, ...interface{})    {}
func (noOpLogger) Warningf(string, ...interface{}) {}
func (noOpLogger) Errorf(string, ...interface{})   {}
func (noOpLogger) SetLevel(LogLevel)               {}
func (n noOpLogger) WithComponent(string) ILogger  { return n }
