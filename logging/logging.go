// Package logging contains the structured logger used across envlog.
package logging

import (
	"fmt"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// Logger is the leveled, structured logger handed to every component.
type Logger interface {
	Debug(args ...interface{})
	Debugf(template string, args ...interface{})
	Debugw(msg string, keysAndValues ...interface{})
	Info(args ...interface{})
	Infof(template string, args ...interface{})
	Infow(msg string, keysAndValues ...interface{})
	Warn(args ...interface{})
	Warnf(template string, args ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
	Error(args ...interface{})
	Errorf(template string, args ...interface{})
	Errorw(msg string, keysAndValues ...interface{})

	// Sublogger returns a logger named "<name>.<subname>" that shares this logger's appenders.
	// Its level starts out as a copy of this logger's level.
	Sublogger(subname string) Logger
	SetLevel(level Level)
	GetLevel() Level
	AddAppender(appender Appender)
	Sync() error
}

// NewLogger returns a new logger that outputs Info+ logs to stdout in UTC.
func NewLogger(name string) Logger {
	const inUTC = true
	return &impl{name, NewAtomicLevelAt(INFO), inUTC, []Appender{NewStdoutAppender()}}
}

// NewBlankLogger returns a new logger that outputs Debug+ logs in UTC, but without any
// pre-existing appenders/outputs.
func NewBlankLogger(name string) Logger {
	const inUTC = true
	return &impl{name, NewAtomicLevelAt(DEBUG), inUTC, []Appender{}}
}

// NewTestLogger returns a new logger that outputs Debug+ logs to the test object in local time.
func NewTestLogger(tb testing.TB) Logger {
	logger, _ := NewObservedTestLogger(tb)
	return logger
}

// NewObservedTestLogger is like NewTestLogger but also saves logs to an in memory observer.
func NewObservedTestLogger(tb testing.TB) (Logger, *observer.ObservedLogs) {
	const inUTC = false
	logger := &impl{"", NewAtomicLevelAt(DEBUG), inUTC, []Appender{}}
	logger.AddAppender(NewTestAppender(tb))

	observerCore, observedLogs := observer.New(zap.LevelEnablerFunc(zapcore.DebugLevel.Enabled))
	logger.AddAppender(observerCore)

	return logger, observedLogs
}

// Printer adapts a Logger to libraries that log through Println/Printf, writing every line at a
// fixed level.
type Printer struct {
	logger Logger
	level  Level
}

// NewPrinter returns a Printer writing to `logger` at `level`.
func NewPrinter(logger Logger, level Level) *Printer {
	return &Printer{logger: logger, level: level}
}

// Println logs the operands formatted with `fmt.Sprintln`, without the trailing newline.
func (p *Printer) Println(v ...interface{}) {
	p.print(strings.TrimSuffix(fmt.Sprintln(v...), "\n"))
}

// Printf logs a formatted line.
func (p *Printer) Printf(format string, v ...interface{}) {
	p.print(strings.TrimSuffix(fmt.Sprintf(format, v...), "\n"))
}

func (p *Printer) print(msg string) {
	switch p.level {
	case DEBUG:
		p.logger.Debug(msg)
	case INFO:
		p.logger.Info(msg)
	case WARN:
		p.logger.Warn(msg)
	case ERROR:
		p.logger.Error(msg)
	}
}
