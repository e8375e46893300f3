//  Copyright 2026-Present Couchbase, Inc.
//
//  Use of this software is governed by the Business Source License included
//  in the file licenses/BSL-Couchbase.txt.  As of the Change Date specified
//  in that file, in accordance with the Business Source License, use of this
//  software will be governed by the Apache License, Version 2.0, included in
//  the file licenses/APL2.txt.

package logging

import (
	"fmt"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in     string
		level  Level
		ok     bool
		filter string
	}{
		{"info", INFO, true, ""},
		{"WARN", WARN, true, ""},
		{"debug:backend/memory", DEBUG, true, "backend/memory"},
		{"TRACE:a;b", TRACE, true, "a;b"},
		{"verbose", NONE, false, ""},
	}
	for _, c := range cases {
		level, ok, filter := ParseLevel(c.in)
		if level != c.level || ok != c.ok || filter != c.filter {
			t.Errorf("ParseLevel(%q) = %v, %v, %q; want %v, %v, %q",
				c.in, level, ok, filter, c.level, c.ok, c.filter)
		}
	}
}

func TestNoLoggerIsSilent(t *testing.T) {
	SetLogger(nil)
	if Enabled(ERROR) {
		t.Errorf("Expected all levels disabled without a logger")
	}
	if LogLevel() != NONE {
		t.Errorf("Expected NONE, got %v", LogLevel())
	}
	// must not panic
	Errorf("dropped %d", 1)
	Debuga(func() string { return "dropped" })
}

func TestLevelString(t *testing.T) {
	if DEBUG.String() != "DEBUG" || Level(42).String() != "UNKNOWN" {
		t.Errorf("Unexpected level names %v %v", DEBUG, Level(42))
	}
}

type recorder struct {
	level   Level
	entries []string
}

func (r *recorder) Loga(level Level, f func() string) {
	if level <= r.level {
		r.entries = append(r.entries, level.String()+" "+f())
	}
}
func (r *recorder) Debuga(f func() string) { r.Loga(DEBUG, f) }
func (r *recorder) Tracea(f func() string) { r.Loga(TRACE, f) }
func (r *recorder) Logf(level Level, format string, args ...interface{}) {
	r.Loga(level, func() string { return fmt.Sprintf(format, args...) })
}
func (r *recorder) Debugf(f string, a ...interface{})  { r.Logf(DEBUG, f, a...) }
func (r *recorder) Tracef(f string, a ...interface{})  { r.Logf(TRACE, f, a...) }
func (r *recorder) Infof(f string, a ...interface{})   { r.Logf(INFO, f, a...) }
func (r *recorder) Warnf(f string, a ...interface{})   { r.Logf(WARN, f, a...) }
func (r *recorder) Errorf(f string, a ...interface{})  { r.Logf(ERROR, f, a...) }
func (r *recorder) Severef(f string, a ...interface{}) { r.Logf(SEVERE, f, a...) }
func (r *recorder) Fatalf(f string, a ...interface{})  { r.Logf(FATAL, f, a...) }
func (r *recorder) Logp(level Level, msg string, kv ...Pair) {
	r.Logf(level, "%s %v", msg, kv)
}
func (r *recorder) SetLevel(l Level) { r.level = l }
func (r *recorder) Level() Level     { return r.level }

func TestLazyEntries(t *testing.T) {
	r := &recorder{level: DEBUG}
	SetLogger(r)
	defer SetLogger(nil)

	called := false
	Tracea(func() string { called = true; return "trace" })
	if called {
		t.Errorf("A disabled entry must not be built")
	}
	Debuga(func() string { return "scan opened" })
	if len(r.entries) != 1 || !strings.HasPrefix(r.entries[0], "DEBUG scan opened (TestLazyEntries|logger_test.go:") {
		t.Errorf("Unexpected entries %q", r.entries)
	}
}

func TestLogLevelString(t *testing.T) {
	r := &recorder{level: INFO}
	SetLogger(r)
	defer SetLogger(nil)
	defer SetDebugFilter("")

	if s := LogLevelString(); s != "INFO" {
		t.Errorf("Expected INFO, got %q", s)
	}
	SetLevel(DEBUG)
	SetDebugFilter("backend/memory;collection")
	if s := LogLevelString(); s != "DEBUG:backend/memory;collection" {
		t.Errorf("The debug filter must be reported, got %q", s)
	}
	level, ok, filter := ParseLevel(LogLevelString())
	if !ok || level != DEBUG || filter != "backend/memory;collection" {
		t.Errorf("LogLevelString must round trip through ParseLevel, got %v %v %q", level, ok, filter)
	}
}
