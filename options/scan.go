//  Copyright 2026-Present Couchbase, Inc.
//
//  Use of this software is governed by the Business Source License included
//  in the file licenses/BSL-Couchbase.txt.  As of the Change Date specified
//  in that file, in accordance with the Business Source License, use of this
//  software will be governed by the Apache License, Version 2.0, included in
//  the file licenses/APL2.txt.

package options

import (
	"github.com/couchbase/kvsdk/backend"
	"github.com/couchbase/kvsdk/errors"
	"github.com/couchbase/kvsdk/mutation"
	"github.com/couchbase/kvsdk/transcoder"
)

type Scan struct {
	Common
	// IDsOnly returns keys without document bodies or metadata.
	IDsOnly        bool
	Transcoder     transcoder.Transcoder
	MutationState  *mutation.State
	BatchByteLimit *uint32
	BatchItemLimit *uint32
	// Concurrency bounds how many partitions are streamed at once.
	Concurrency uint16
}

func DefaultScan() *Scan {
	return &Scan{Concurrency: 1}
}

func (o *Scan) TranscoderOrDefault() transcoder.Transcoder {
	return transcoderOr(o.Transcoder)
}

// ConsistentWith requires the scan to observe the state's mutations.
func (o *Scan) ConsistentWith(state *mutation.State) *Scan {
	o.MutationState = state
	return o
}

func (o *Scan) Request(loc backend.Location, st backend.ScanType) (*backend.ScanRequest, error) {
	if o.Concurrency == 0 {
		return nil, errors.NewInvalidArgument("scan concurrency must be at least 1")
	}
	rv := &backend.ScanRequest{
		Location:      loc,
		Type:          st,
		IDsOnly:       o.IDsOnly,
		MutationState: o.MutationState.ToBackend(),
		Concurrency:   o.Concurrency,
		Timeout:       o.timeout(DefaultKVScanTimeout),
		ParentSpan:    o.ParentSpan,
	}
	if o.BatchByteLimit != nil {
		v := *o.BatchByteLimit
		rv.BatchByteLimit = &v
	}
	if o.BatchItemLimit != nil {
		v := *o.BatchItemLimit
		rv.BatchItemLimit = &v
	}
	return rv, nil
}
