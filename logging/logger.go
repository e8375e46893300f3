//  Copyright 2014-Present Couchbase, Inc.
//
//  Use of this software is governed by the Business Source License included
//  in the file licenses/BSL-Couchbase.txt.  As of the Change Date specified
//  in that file, in accordance with the Business Source License, use of this
//  software will be governed by the Apache License, Version 2.0, included in
//  the file licenses/APL2.txt.

/*
Package logging is the process-wide leveled logger used by every package
of the binding. Nothing is logged until SetLogger installs an
implementation; logger_golog provides the stock one.
*/
package logging

import (
	fmtpkg "fmt"
	"path"
	"regexp"
	"runtime"
	"strings"
	"sync"
)

type Level int

const (
	NONE   = Level(iota) // Disable all logging
	FATAL                // Process cannot continue
	SEVERE               // Client is in an error state it cannot recover from reliably
	ERROR                // An operation or connection failed but the client can continue
	WARN                 // Correct but undesirable state, e.g. retries or slow responses
	INFO                 // Lifecycle events: connect, close, fork notifications
	DEBUG                // Per-operation dispatch
	TRACE                // Detailed execution, e.g. backend callbacks
)

func (level Level) String() string {
	if level < NONE || int(level) >= len(_LEVEL_NAMES) {
		return "UNKNOWN"
	}
	return _LEVEL_NAMES[level]
}

var _LEVEL_NAMES = []string{
	DEBUG:  "DEBUG",
	TRACE:  "TRACE",
	INFO:   "INFO",
	WARN:   "WARN",
	ERROR:  "ERROR",
	SEVERE: "SEVERE",
	FATAL:  "FATAL",
	NONE:   "NONE",
}

var _LEVEL_MAP = map[string]Level{
	"debug":  DEBUG,
	"trace":  TRACE,
	"info":   INFO,
	"warn":   WARN,
	"error":  ERROR,
	"severe": SEVERE,
	"fatal":  FATAL,
	"none":   NONE,
}

// Pair is a single structured logging attribute.
type Pair struct {
	Name  string
	Value interface{}
}

type Map map[string]interface{}

// cache logging enablement to improve runtime performance (reduces from multiple tests to a single test on each call)
var (
	cachedDebug  bool
	cachedTrace  bool
	cachedInfo   bool
	cachedWarn   bool
	cachedError  bool
	cachedSevere bool
	cachedFatal  bool
)

// maintain the cached logging state
func cacheLoggingChange() {
	cachedDebug = !skipLogging(DEBUG)
	cachedTrace = !skipLogging(TRACE)
	cachedInfo = !skipLogging(INFO)
	cachedWarn = !skipLogging(WARN)
	cachedError = !skipLogging(ERROR)
	cachedSevere = !skipLogging(SEVERE)
	cachedFatal = !skipLogging(FATAL)
}

// ParseLevel accepts a level name, optionally followed for debug and
// trace by ":" and a ';' separated list of source file filters.
func ParseLevel(name string) (level Level, ok bool, filter string) {
	level, ok = _LEVEL_MAP[strings.ToLower(name)]
	if ok {
		return
	}
	for _, l := range []Level{DEBUG, TRACE} {
		prefix := _LEVEL_NAMES[l] + ":"
		if strings.HasPrefix(strings.ToUpper(name), prefix) {
			return l, true, name[len(prefix):]
		}
	}
	return
}

// Logger provides a common interface for logging libraries
type Logger interface {
	// Higher performance
	Loga(level Level, f func() string)
	Debuga(f func() string)
	Tracea(f func() string)

	// Printf style
	Logf(level Level, fmt string, args ...interface{})
	Debugf(fmt string, args ...interface{})
	Tracef(fmt string, args ...interface{})
	Infof(fmt string, args ...interface{})
	Warnf(fmt string, args ...interface{})
	Errorf(fmt string, args ...interface{})
	Severef(fmt string, args ...interface{})
	Fatalf(fmt string, args ...interface{})

	// Structured
	Logp(level Level, msg string, kv ...Pair)

	SetLevel(Level) // Set the logging level
	Level() Level   // Get the current logging level
}

var logger Logger = nil
var curLevel Level = DEBUG // initially set to never skip
var debugFilter []*regexp.Regexp

var loggerMutex sync.RWMutex

// The level is cached so that skipped entries, the majority, never touch
// the mutex.
func skipLogging(level Level) bool {
	if logger == nil {
		return true
	}
	return level > curLevel
}

func SetLogger(newLogger Logger) {
	loggerMutex.Lock()
	defer loggerMutex.Unlock()
	logger = newLogger
	if logger == nil {
		curLevel = NONE
	} else {
		curLevel = newLogger.Level()
	}
	cacheLoggingChange()
}

// callerSuffix returns " (func|file:line)" for the caller of the
// logging function.
func callerSuffix() string {
	pc, fname, lineno, ok := runtime.Caller(2)
	if !ok {
		return ""
	}
	fnc := runtime.FuncForPC(pc)
	if fnc == nil {
		return fmtpkg.Sprintf(" (%s:%d)", path.Base(fname), lineno)
	}
	n := fnc.Name()
	i := strings.LastIndexByte(n, '(')
	if i == -1 {
		i = strings.LastIndexByte(n, '.') + 1
	}
	return fmtpkg.Sprintf(" (%s|%s:%d)", n[i:], path.Base(fname), lineno)
}

func Debuga(f func() string) {
	if !cachedDebug || !filterDebug() {
		return
	}
	fl := callerSuffix()
	loggerMutex.Lock()
	defer loggerMutex.Unlock()
	logger.Debuga(func() string { return f() + fl })
}

func Tracea(f func() string) {
	if !cachedTrace || !filterDebug() {
		return
	}
	fl := callerSuffix()
	loggerMutex.Lock()
	defer loggerMutex.Unlock()
	logger.Tracea(func() string { return f() + fl })
}

// printf-style variants

func Logf(level Level, fmt string, args ...interface{}) {
	if skipLogging(level) {
		return
	} else if (level == DEBUG || level == TRACE) && !filterDebug() {
		return
	}
	loggerMutex.Lock()
	defer loggerMutex.Unlock()
	logger.Logf(level, fmt, args...)
}

func Debugf(fmt string, args ...interface{}) {
	if !cachedDebug || !filterDebug() {
		return
	}
	fmt += callerSuffix()
	loggerMutex.Lock()
	defer loggerMutex.Unlock()
	logger.Debugf(fmt, args...)
}

func Tracef(fmt string, args ...interface{}) {
	if !cachedTrace || !filterDebug() {
		return
	}
	fmt += callerSuffix()
	loggerMutex.Lock()
	defer loggerMutex.Unlock()
	logger.Tracef(fmt, args...)
}

func Infof(fmt string, args ...interface{}) {
	if !cachedInfo {
		return
	}
	loggerMutex.Lock()
	defer loggerMutex.Unlock()
	logger.Infof(fmt, args...)
}

func Warnf(fmt string, args ...interface{}) {
	if !cachedWarn {
		return
	}
	loggerMutex.Lock()
	defer loggerMutex.Unlock()
	logger.Warnf(fmt, args...)
}

func Errorf(fmt string, args ...interface{}) {
	if !cachedError {
		return
	}
	loggerMutex.Lock()
	defer loggerMutex.Unlock()
	logger.Errorf(fmt, args...)
}

func Severef(fmt string, args ...interface{}) {
	if !cachedSevere {
		return
	}
	loggerMutex.Lock()
	defer loggerMutex.Unlock()
	logger.Severef(fmt, args...)
}

func Fatalf(fmt string, args ...interface{}) {
	if !cachedFatal {
		return
	}
	loggerMutex.Lock()
	defer loggerMutex.Unlock()
	logger.Fatalf(fmt, args...)
}

func Logp(level Level, msg string, kv ...Pair) {
	if skipLogging(level) {
		return
	} else if (level == DEBUG || level == TRACE) && !filterDebug() {
		return
	}
	loggerMutex.Lock()
	defer loggerMutex.Unlock()
	logger.Logp(level, msg, kv...)
}

func SetLevel(level Level) {
	loggerMutex.Lock()
	defer loggerMutex.Unlock()
	if logger != nil {
		logger.SetLevel(level)
	}
	curLevel = level
	cacheLoggingChange()
}

func LogLevel() Level {
	loggerMutex.RLock()
	defer loggerMutex.RUnlock()
	if logger == nil {
		return NONE
	}
	return logger.Level()
}

// Enabled reports whether an entry at level would be written.
func Enabled(level Level) bool {
	return !skipLogging(level)
}

func SetDebugFilter(s string) {
	if s == "" {
		loggerMutex.Lock()
		debugFilter = nil
		loggerMutex.Unlock()
		return
	}
	pats := strings.Split(s, ";")
	df := make([]*regexp.Regexp, 0, len(pats))
	for _, p := range pats {
		f, err := regexp.Compile(p)
		if err == nil {
			df = append(df, f)
			Infof("Added debug logging filter: '%s'", p)
		}
	}
	loggerMutex.Lock()
	debugFilter = df
	loggerMutex.Unlock()
}

func filterDebug() bool {
	loggerMutex.RLock()
	df := debugFilter
	loggerMutex.RUnlock()
	if len(df) == 0 {
		return true
	}

	_, pathname, _, ok := runtime.Caller(2)
	if !ok {
		return false
	}
	for _, p := range df {
		if p.MatchString(pathname) {
			return true
		}
	}
	return false
}

func LogLevelString() string {
	l := LogLevel()
	loggerMutex.RLock()
	df := debugFilter
	loggerMutex.RUnlock()
	if (l != DEBUG && l != TRACE) || len(df) == 0 {
		return l.String()
	}
	s := make([]string, 0, len(df))
	for _, e := range df {
		s = append(s, e.String())
	}
	return l.String() + ":" + strings.Join(s, ";")
}
