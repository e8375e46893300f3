//  Copyright 2026-Present Couchbase, Inc.
//
//  Use of this software is governed by the Business Source License included
//  in the file licenses/BSL-Couchbase.txt.  As of the Change Date specified
//  in that file, in accordance with the Business Source License, use of this
//  software will be governed by the Apache License, Version 2.0, included in
//  the file licenses/APL2.txt.

package collection

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	json "github.com/couchbase/go_json"
	"github.com/kylelemons/godebug/pretty"

	"github.com/couchbase/kvsdk/errors"
	"github.com/couchbase/kvsdk/logging"
	"github.com/couchbase/kvsdk/logging/logger_golog"
)

func TestOperationLogging(t *testing.T) {
	var buf bytes.Buffer
	logging.SetLogger(logger_golog.NewLogger(&buf, logging.TRACE, true))
	defer logging.SetLogger(nil)

	c := newTestCollection()
	ctx := context.Background()
	if _, err := c.Upsert(ctx, "airline_10", airline{Name: "40-Mile Air"}, nil); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	buf.Reset()
	if _, err := c.Get(ctx, "airline_10", nil); err != nil {
		t.Fatalf("Get: %v", err)
	}
	if _, err := c.Get(ctx, "airline_99", nil); !errors.Is(err, errors.ErrDocumentNotFound) {
		t.Fatalf("Expected not found, got %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected one entry per operation, got %q", buf.String())
	}
	entries := make([]map[string]interface{}, len(lines))
	for i, l := range lines {
		if err := json.Unmarshal([]byte(l), &entries[i]); err != nil {
			t.Fatalf("Entry %d is not JSON: %v (%q)", i, err, l)
		}
		if _, err := time.ParseDuration(entries[i]["latency"].(string)); err != nil {
			t.Errorf("Entry %d latency: %v", i, err)
		}
		delete(entries[i], "latency")
		delete(entries[i], "_time")
	}

	want := []map[string]interface{}{
		{
			"_level":   "TRACE",
			"_msg":     "kv operation",
			"op":       "get",
			"id":       "airline_10",
			"location": "travel-sample.inventory.airline",
		},
		{
			"_level":   "DEBUG",
			"_msg":     "kv operation failed",
			"op":       "get",
			"id":       "airline_99",
			"location": "travel-sample.inventory.airline",
			"error":    entries[1]["error"],
		},
	}
	if diff := pretty.Compare(entries, want); diff != "" {
		t.Errorf("Unexpected entries (-got +want):\n%s", diff)
	}
	if msg, _ := entries[1]["error"].(string); !strings.Contains(msg, "airline_99") {
		t.Errorf("The failure must carry the error, got %q", msg)
	}
}
