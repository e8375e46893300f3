//  Copyright 2026-Present Couchbase, Inc.
//
//  Use of this software is governed by the Business Source License included
//  in the file licenses/BSL-Couchbase.txt.  As of the Change Date specified
//  in that file, in accordance with the Business Source License, use of this
//  software will be governed by the Apache License, Version 2.0, included in
//  the file licenses/APL2.txt.

package collection

import (
	"context"

	"github.com/couchbase/kvsdk/backend"
	"github.com/couchbase/kvsdk/errors"
	"github.com/couchbase/kvsdk/options"
	"github.com/couchbase/kvsdk/results"
)

// RemoveEntry removes a document only if its CAS still matches.
type RemoveEntry = backend.RemoveEntry

// GetMulti returns one result per id, in order. A missing document is
// reported in its result's Err; only a failure of the whole call, such as
// the deadline passing, is returned as the error.
func (c *Collection) GetMulti(ctx context.Context, ids []string, opts *options.GetMulti) ([]*results.GetResult, error) {
	if opts == nil {
		opts = options.DefaultGetMulti()
	}
	req := opts.Request(c.loc, ids)
	var resps []*backend.GetResponse
	err := c.run(ctx, "get_multi", "", req.Timeout, func(ctx context.Context) (err error) {
		resps, err = c.backend.GetMulti(ctx, req)
		return
	})
	if err != nil {
		return nil, err
	}
	tc := opts.TranscoderOrDefault()
	rv := make([]*results.GetResult, len(resps))
	for i, r := range resps {
		rv[i] = results.NewGetResult(r, tc)
	}
	c.markItemErrors("get_multi", len(rv), func(i int) error { return rv[i].Err })
	return rv, nil
}

func (c *Collection) UpsertMulti(ctx context.Context, pairs []options.IDValue, opts *options.UpsertMulti) ([]*results.MutationResult, error) {
	if opts == nil {
		opts = options.DefaultUpsertMulti()
	}
	req, err := opts.Request(c.loc, pairs, c.now())
	if err != nil {
		return nil, err
	}
	var resps []*backend.MutationResponse
	err = c.run(ctx, "upsert_multi", "", req.Timeout, func(ctx context.Context) (err error) {
		resps, err = c.backend.UpsertMulti(ctx, req)
		return
	})
	if err != nil {
		return nil, err
	}
	return c.mutationResults("upsert_multi", resps), nil
}

// RemoveMulti takes each id as a string, a RemoveEntry or a *RemoveEntry.
// Any other entry fails the call before a request is sent.
func (c *Collection) RemoveMulti(ctx context.Context, ids []interface{}, opts *options.RemoveMulti) ([]*results.MutationResult, error) {
	if opts == nil {
		opts = options.DefaultRemoveMulti()
	}
	entries, err := removeEntries(ids)
	if err != nil {
		return nil, err
	}
	req := opts.Request(c.loc, entries)
	var resps []*backend.MutationResponse
	err = c.run(ctx, "remove_multi", "", req.Timeout, func(ctx context.Context) (err error) {
		resps, err = c.backend.RemoveMulti(ctx, req)
		return
	})
	if err != nil {
		return nil, err
	}
	return c.mutationResults("remove_multi", resps), nil
}

func removeEntries(ids []interface{}) ([]backend.RemoveEntry, error) {
	rv := make([]backend.RemoveEntry, len(ids))
	for i, id := range ids {
		switch id := id.(type) {
		case string:
			rv[i] = backend.RemoveEntry{ID: id}
		case RemoveEntry:
			rv[i] = id
		case *RemoveEntry:
			if id == nil {
				return nil, errors.NewInvalidArgument("remove entry %d is nil", i)
			}
			rv[i] = *id
		default:
			return nil, errors.NewInvalidArgument("remove entry %d must be an id or an id and cas pair, not %T", i, id)
		}
	}
	return rv, nil
}

func (c *Collection) mutationResults(op string, resps []*backend.MutationResponse) []*results.MutationResult {
	rv := make([]*results.MutationResult, len(resps))
	for i, r := range resps {
		rv[i] = results.NewMutationResult(r)
	}
	c.markItemErrors(op, len(rv), func(i int) error { return rv[i].Err })
	return rv
}

// markItemErrors counts failed items of a multi operation on its error
// meter.
func (c *Collection) markItemErrors(op string, n int, errAt func(int) error) {
	failed := int64(0)
	for i := 0; i < n; i++ {
		if errAt(i) != nil {
			failed++
		}
	}
	if failed > 0 {
		c.markErrors(op, failed)
	}
}
