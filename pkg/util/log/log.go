// Unless explicitly stated otherwise all files in this repository are licensed
// under the Apache License Version 2.0.
// This product includes software developed at Datadog (https://www.datadoghq.com/).
// Copyright 2016-present Datadog, Inc.

// Package log wraps seelog behind a package-level singleton, the way the
// rest of the agent expects to log: through Infof/Warnf/Errorf/Debugf, not
// through fmt.Println or the standard library's log package.
package log

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/cihub/seelog"
)

var (
	logger *agentLogger

	// logsBuffer holds log lines sent to the logger before SetupLogger is
	// called. This buffer should be very short lived: it exists only
	// between process start and configuration load.
	logsBuffer           = []func(){}
	bufferLogsBeforeInit = true
	bufferMutex          sync.Mutex
)

// agentLogger wraps a seelog.LoggerInterface with a level gate.
type agentLogger struct {
	inner seelog.LoggerInterface
	level seelog.LogLevel
	l     sync.RWMutex
}

// SetupLogger installs l as the package-wide logger at the given level
// ("trace", "debug", "info", "warn", "error", "critical"; unrecognized
// values fall back to "info"), then flushes any log lines buffered before
// this call.
func SetupLogger(l seelog.LoggerInterface, level string) {
	lvl, ok := seelog.LogLevelFromString(strings.ToLower(level))
	if !ok {
		lvl = seelog.InfoLvl
	}
	logger = &agentLogger{inner: l, level: lvl}

	bufferMutex.Lock()
	defer bufferMutex.Unlock()
	bufferLogsBeforeInit = false
	for _, logLine := range logsBuffer {
		logLine()
	}
	logsBuffer = nil
}

func addLogToBuffer(logHandle func()) {
	bufferMutex.Lock()
	defer bufferMutex.Unlock()
	logsBuffer = append(logsBuffer, logHandle)
}

func (a *agentLogger) shouldLog(level seelog.LogLevel) bool {
	a.l.RLock()
	defer a.l.RUnlock()
	return level >= a.level
}

func (a *agentLogger) debug(s string) {
	a.l.Lock()
	defer a.l.Unlock()
	a.inner.Debug(s)
}

func (a *agentLogger) info(s string) {
	a.l.Lock()
	defer a.l.Unlock()
	a.inner.Info(s)
}

func (a *agentLogger) warn(s string) error {
	a.l.Lock()
	defer a.l.Unlock()
	return a.inner.Warn(s)
}

func (a *agentLogger) error(s string) error {
	a.l.Lock()
	defer a.l.Unlock()
	return a.inner.Error(s)
}

func buildLogEntry(v ...interface{}) string {
	var buf bytes.Buffer
	for i := 0; i < len(v)-1; i++ {
		buf.WriteString("%v ")
	}
	buf.WriteString("%v")
	return fmt.Sprintf(buf.String(), v...)
}

func logAt(level seelog.LogLevel, bufferFunc func(), logFunc func(string), v ...interface{}) {
	if logger != nil && logger.shouldLog(level) {
		logFunc(buildLogEntry(v...))
		return
	}
	if bufferLogsBeforeInit && logger == nil {
		addLogToBuffer(bufferFunc)
	}
}

func logfAt(level seelog.LogLevel, bufferFunc func(), logFunc func(string, ...interface{}), format string, params ...interface{}) {
	if logger != nil && logger.shouldLog(level) {
		logFunc(format, params...)
		return
	}
	if bufferLogsBeforeInit && logger == nil {
		addLogToBuffer(bufferFunc)
	}
}

func logWithErrorAt(level seelog.LogLevel, bufferFunc func(), logFunc func(string) error, v ...interface{}) error {
	if logger != nil && logger.shouldLog(level) {
		return logFunc(buildLogEntry(v...))
	}
	if bufferLogsBeforeInit && logger == nil {
		addLogToBuffer(bufferFunc)
	}
	err := errors.New(fmt.Sprint(v...))
	fmt.Fprintf(os.Stderr, "%s: %s\n", level.String(), err.Error())
	return err
}

// Debug logs at the debug level.
func Debug(v ...interface{}) {
	logAt(seelog.DebugLvl, func() { Debug(v...) }, logger.debug, v...)
}

// Debugf logs with format at the debug level.
func Debugf(format string, params ...interface{}) {
	logfAt(seelog.DebugLvl, func() { Debugf(format, params...) }, func(f string, p ...interface{}) { logger.inner.Debugf(f, p...) }, format, params...)
}

// Info logs at the info level.
func Info(v ...interface{}) {
	logAt(seelog.InfoLvl, func() { Info(v...) }, logger.info, v...)
}

// Infof logs with format at the info level.
func Infof(format string, params ...interface{}) {
	logfAt(seelog.InfoLvl, func() { Infof(format, params...) }, func(f string, p ...interface{}) { logger.inner.Infof(f, p...) }, format, params...)
}

// Warn logs at the warn level and returns an error carrying the message.
func Warn(v ...interface{}) error {
	return logWithErrorAt(seelog.WarnLvl, func() { Warn(v...) }, logger.warn, v...)
}

// Warnf logs with format at the warn level and returns an error carrying
// the formatted message.
func Warnf(format string, params ...interface{}) error {
	return logWithErrorAt(seelog.WarnLvl, func() { Warnf(format, params...) }, func(string) error {
		return logger.warn(fmt.Sprintf(format, params...))
	}, fmt.Sprintf(format, params...))
}

// Error logs at the error level and returns an error carrying the message.
func Error(v ...interface{}) error {
	return logWithErrorAt(seelog.ErrorLvl, func() { Error(v...) }, logger.error, v...)
}

// Errorf logs with format at the error level and returns an error carrying
// the formatted message.
func Errorf(format string, params ...interface{}) error {
	return logWithErrorAt(seelog.ErrorLvl, func() { Errorf(format, params...) }, func(string) error {
		return logger.error(fmt.Sprintf(format, params...))
	}, fmt.Sprintf(format, params...))
}

// Flush flushes the underlying seelog logger.
func Flush() {
	if logger != nil && logger.inner != nil {
		logger.inner.Flush()
	}
}
