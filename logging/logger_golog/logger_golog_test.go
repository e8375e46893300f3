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
	"strings"
	"testing"

	json "github.com/couchbase/go_json"
	"github.com/couchbase/kvsdk/logging"
)

func TestTextLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, logging.INFO, false)
	logging.SetLogger(logger)
	defer logging.SetLogger(nil)

	logging.Infof("connected to %s", "mem://")
	logging.Debugf("should not appear")
	logger.Logp(logging.WARN, "slow op", logging.Pair{Name: "op", Value: "get"}, logging.Pair{Name: "ms", Value: 12})

	out := buf.String()
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 lines, got %d: %q", len(lines), out)
	}
	if !strings.Contains(lines[0], "_level=INFO") || !strings.Contains(lines[0], "_msg=connected to mem://") {
		t.Errorf("Unexpected info line %q", lines[0])
	}
	if !strings.Contains(lines[1], "_level=WARN") || !strings.HasSuffix(lines[1], "ms=12 op=get") {
		t.Errorf("Unexpected warn line %q", lines[1])
	}

	buf.Reset()
	logging.SetLevel(logging.DEBUG)
	logging.Debugf("now visible")
	if !strings.Contains(buf.String(), "now visible (TestTextLogger|logger_golog_test.go:") {
		t.Errorf("Expected caller suffix on debug entry, got %q", buf.String())
	}
}

func TestJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, logging.TRACE, true)
	logger.Logp(logging.ERROR, "failed", logging.Pair{Name: "id", Value: "doc1"})

	var m map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("Entry is not JSON: %v (%q)", err, buf.String())
	}
	if m[_LEVEL] != "ERROR" || m[_MSG] != "failed" || m["id"] != "doc1" {
		t.Errorf("Unexpected entry %v", m)
	}
	if _, ok := m[_TIME]; !ok {
		t.Errorf("Missing time in %v", m)
	}
}
