//  Copyright (c) 2014 Couchbase, Inc.
//  Licensed under the Apache License, Version 2.0 (the "License"); you may not use this file
//  except in compliance with the License. You may obtain a copy of the License at
//    http://www.apache.org/licenses/LICENSE-2.0
//  Unless required by applicable law or agreed to in writing, software distributed under the
//  License is distributed on an "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND,
//  either express or implied. See the License for the specific language governing permissions
//  and limitations under the License.

package logger_golog

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"sort"
	"sync"
	"time"

	json "github.com/couchbase/go_json"
	"github.com/couchbase/kvsdk/logging"
)

type goLogger struct {
	sync.RWMutex
	logger         *log.Logger
	level          logging.Level
	entryFormatter formatter
}

const (
	_LEVEL = "_level"
	_MSG   = "_msg"
	_TIME  = "_time"
)

func NewLogger(out io.Writer, lvl logging.Level, jsonLogging bool) *goLogger {
	logger := &goLogger{
		logger: log.New(out, "", 0),
		level:  lvl,
	}
	if jsonLogging {
		logger.entryFormatter = &jsonFormatter{}
	} else {
		logger.entryFormatter = &textFormatter{}
	}
	return logger
}

func (gl *goLogger) enabled(level logging.Level) bool {
	if gl.logger == nil {
		return false
	}
	gl.RLock()
	defer gl.RUnlock()
	return level <= gl.level
}

func (gl *goLogger) Loga(level logging.Level, f func() string) {
	if gl.enabled(level) {
		gl.log(newLogEntry(f(), level))
	}
}

func (gl *goLogger) Debuga(f func() string) {
	gl.Loga(logging.DEBUG, f)
}

func (gl *goLogger) Tracea(f func() string) {
	gl.Loga(logging.TRACE, f)
}

func (gl *goLogger) Logp(level logging.Level, msg string, kv ...logging.Pair) {
	if gl.enabled(level) {
		e := newLogEntry(msg, level)
		copyPairs(e, kv)
		gl.log(e)
	}
}

func (gl *goLogger) Logf(level logging.Level, format string, args ...interface{}) {
	if gl.enabled(level) {
		gl.log(newLogEntry(fmt.Sprintf(format, args...), level))
	}
}

func (gl *goLogger) Debugf(format string, args ...interface{}) {
	gl.Logf(logging.DEBUG, format, args...)
}

func (gl *goLogger) Tracef(format string, args ...interface{}) {
	gl.Logf(logging.TRACE, format, args...)
}

func (gl *goLogger) Infof(format string, args ...interface{}) {
	gl.Logf(logging.INFO, format, args...)
}

func (gl *goLogger) Warnf(format string, args ...interface{}) {
	gl.Logf(logging.WARN, format, args...)
}

func (gl *goLogger) Errorf(format string, args ...interface{}) {
	gl.Logf(logging.ERROR, format, args...)
}

func (gl *goLogger) Severef(format string, args ...interface{}) {
	gl.Logf(logging.SEVERE, format, args...)
}

func (gl *goLogger) Fatalf(format string, args ...interface{}) {
	gl.Logf(logging.FATAL, format, args...)
}

func (gl *goLogger) Level() logging.Level {
	gl.RLock()
	defer gl.RUnlock()
	return gl.level
}

func (gl *goLogger) SetLevel(level logging.Level) {
	gl.Lock()
	gl.level = level
	gl.Unlock()
}

func (gl *goLogger) log(newEntry *logEntry) {
	s := gl.entryFormatter.format(newEntry)
	gl.logger.Print(s)
}

type logEntry struct {
	Time    string
	Level   logging.Level
	Message string
	Data    logging.Map
}

func newLogEntry(msg string, level logging.Level) *logEntry {
	return &logEntry{
		Time:    time.Now().Format("2006-01-02T15:04:05.000-07:00"), // time.RFC3339 with milliseconds
		Level:   level,
		Message: msg,
	}
}

func copyPairs(newEntry *logEntry, pairs []logging.Pair) {
	newEntry.Data = make(logging.Map, len(pairs))
	for _, p := range pairs {
		newEntry.Data[p.Name] = p.Value
	}
}

type formatter interface {
	format(*logEntry) string
}

type textFormatter struct {
}

func (*textFormatter) format(newEntry *logEntry) string {
	b := &bytes.Buffer{}
	appendKeyValue(b, _TIME, newEntry.Time)
	appendKeyValue(b, _LEVEL, newEntry.Level.String())
	appendKeyValue(b, _MSG, newEntry.Message)
	keys := make([]string, 0, len(newEntry.Data))
	for key := range newEntry.Data {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		appendKeyValue(b, key, newEntry.Data[key])
	}
	b.WriteByte('\n')
	return b.String()
}

func appendKeyValue(b *bytes.Buffer, key, value interface{}) {
	if _, ok := value.(string); ok {
		fmt.Fprintf(b, "%v=%s ", key, value)
	} else {
		fmt.Fprintf(b, "%v=%v ", key, value)
	}
}

type jsonFormatter struct {
}

func (*jsonFormatter) format(newEntry *logEntry) string {
	if newEntry.Data == nil {
		newEntry.Data = make(logging.Map, 3)
	}
	newEntry.Data[_TIME] = newEntry.Time
	newEntry.Data[_LEVEL] = newEntry.Level.String()
	newEntry.Data[_MSG] = newEntry.Message
	serialized, _ := json.Marshal(newEntry.Data)
	return string(append(serialized, '\n'))
}
