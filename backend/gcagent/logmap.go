//  Copyright 2020-Present Couchbase, Inc.
//
//  Use of this software is governed by the Business Source License included
//  in the file licenses/BSL-Couchbase.txt.  As of the Change Date specified
//  in that file, in accordance with the Business Source License, use of this
//  software will be governed by the Apache License, Version 2.0, included in
//  the file licenses/APL2.txt.

package gcagent

import (
	"strings"

	"github.com/couchbase/gocbcore/v10"

	"github.com/couchbase/kvsdk/logging"
)

// gocbcore levels run from LogError (0) upwards; anything past debug is
// trace or sched noise.
var gocbcoreLevels = map[gocbcore.LogLevel]logging.Level{
	gocbcore.LogError: logging.ERROR,
	gocbcore.LogWarn:  logging.WARN,
	gocbcore.LogInfo:  logging.INFO,
	gocbcore.LogDebug: logging.DEBUG,
}

// coreLogger forwards gocbcore's log lines to the process logger.
type coreLogger struct{}

func (coreLogger) Log(level gocbcore.LogLevel, offset int, format string, args ...interface{}) error {
	l, ok := gocbcoreLevels[level]
	if !ok {
		l = logging.TRACE
	}
	// retries are routine; keep them out of the info log
	if l == logging.INFO && strings.Contains(format, "Will retry request") {
		l = logging.DEBUG
	}
	if logging.Enabled(l) {
		logging.Logf(l, "gcagent: (gocbcore) "+format, args...)
	}
	return nil
}

func init() {
	gocbcore.SetLogger(coreLogger{})
	gocbcore.SetLogRedactionLevel(gocbcore.RedactFull)
}
