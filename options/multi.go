//  Copyright 2026-Present Couchbase, Inc.
//
//  Use of this software is governed by the Business Source License included
//  in the file licenses/BSL-Couchbase.txt.  As of the Change Date specified
//  in that file, in accordance with the Business Source License, use of this
//  software will be governed by the Apache License, Version 2.0, included in
//  the file licenses/APL2.txt.

package options

import (
	"time"

	"github.com/couchbase/kvsdk/backend"
	"github.com/couchbase/kvsdk/transcoder"
)

type GetMulti struct {
	Common
	Transcoder transcoder.Transcoder
}

func DefaultGetMulti() *GetMulti {
	return &GetMulti{}
}

func (o *GetMulti) TranscoderOrDefault() transcoder.Transcoder {
	return transcoderOr(o.Transcoder)
}

func (o *GetMulti) Request(loc backend.Location, ids []string) *backend.GetMultiRequest {
	rv := &backend.GetMultiRequest{MultiCommon: o.multi(loc, DefaultKVTimeout), IDs: make([]string, len(ids))}
	copy(rv.IDs, ids)
	return rv
}

// IDValue is one document of an UpsertMulti.
type IDValue struct {
	ID    string
	Value interface{}
}

type UpsertMulti struct {
	Common
	Durability
	Expiry         Expiry
	PreserveExpiry bool
	Transcoder     transcoder.Transcoder
}

func DefaultUpsertMulti() *UpsertMulti {
	return &UpsertMulti{}
}

func (o *UpsertMulti) TranscoderOrDefault() transcoder.Transcoder {
	return transcoderOr(o.Transcoder)
}

// Request encodes every value up front; one encoding failure fails the
// whole call before anything is sent.
func (o *UpsertMulti) Request(loc backend.Location, pairs []IDValue, now time.Time) (*backend.UpsertMultiRequest, error) {
	exp, err := o.Expiry.Resolve(now)
	if err != nil {
		return nil, err
	}
	tc := o.TranscoderOrDefault()
	entries := make([]backend.StoreEntry, 0, len(pairs))
	for _, p := range pairs {
		b, flags, err := tc.Encode(p.Value)
		if err != nil {
			return nil, err
		}
		entries = append(entries, backend.StoreEntry{ID: p.ID, Value: b, Flags: flags})
	}
	return &backend.UpsertMultiRequest{
		MultiCommon:    o.multi(loc, o.defaultTimeout()),
		Entries:        entries,
		Expiry:         exp,
		PreserveExpiry: o.PreserveExpiry,
		Durability:     o.durability(),
	}, nil
}

type RemoveMulti struct {
	Common
	Durability
}

func DefaultRemoveMulti() *RemoveMulti {
	return &RemoveMulti{}
}

func (o *RemoveMulti) Request(loc backend.Location, entries []backend.RemoveEntry) *backend.RemoveMultiRequest {
	rv := &backend.RemoveMultiRequest{
		MultiCommon: o.multi(loc, o.defaultTimeout()),
		Entries:     make([]backend.RemoveEntry, len(entries)),
		Durability:  o.durability(),
	}
	copy(rv.Entries, entries)
	return rv
}
