//  Copyright 2026-Present Couchbase, Inc.
//
//  Use of this software is governed by the Business Source License included
//  in the file licenses/BSL-Couchbase.txt.  As of the Change Date specified
//  in that file, in accordance with the Business Source License, use of this
//  software will be governed by the Apache License, Version 2.0, included in
//  the file licenses/APL2.txt.

/*
Package options holds the per-operation option structs.

Every struct has a Default* constructor returning a fresh value, so a
caller may modify it freely. Exporting an option to a backend request is
a pure function of its fields: one option value can be shared by many
concurrent calls as long as nobody modifies it meanwhile.
*/
package options

import (
	"time"

	"github.com/couchbase/kvsdk/backend"
	"github.com/couchbase/kvsdk/transcoder"
)

const (
	DefaultKVTimeout        = 2500 * time.Millisecond
	DefaultKVDurableTimeout = 10 * time.Second
	DefaultKVScanTimeout    = 75 * time.Second
	DefaultQueryTimeout     = 75 * time.Second
	DefaultAnalyticsTimeout = 75 * time.Second
	DefaultSearchTimeout    = 75 * time.Second
)

// Common is embedded in every option struct. A zero Timeout selects the
// operation's default.
type Common struct {
	Timeout       time.Duration
	RetryStrategy backend.RetryStrategy
	ClientContext map[string]interface{}
	ParentSpan    backend.SpanContext
}

func (c *Common) timeout(def time.Duration) time.Duration {
	if c.Timeout > 0 {
		return c.Timeout
	}
	return def
}

func (c *Common) request(loc backend.Location, id string, def time.Duration) backend.Common {
	return backend.Common{
		Location:      loc,
		ID:            id,
		Timeout:       c.timeout(def),
		RetryStrategy: c.RetryStrategy,
		ParentSpan:    c.ParentSpan,
	}
}

func (c *Common) multi(loc backend.Location, def time.Duration) backend.MultiCommon {
	return backend.MultiCommon{
		Location:      loc,
		Timeout:       c.timeout(def),
		RetryStrategy: c.RetryStrategy,
		ParentSpan:    c.ParentSpan,
	}
}

// EffectiveTimeout is the timeout a call with these options runs under.
func (c *Common) EffectiveTimeout(def time.Duration) time.Duration {
	return c.timeout(def)
}

func transcoderOr(tc transcoder.Transcoder) transcoder.Transcoder {
	if tc == nil {
		return transcoder.Default
	}
	return tc
}
