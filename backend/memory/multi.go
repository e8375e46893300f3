//  Copyright 2026-Present Couchbase, Inc.
//
//  Use of this software is governed by the Business Source License included
//  in the file licenses/BSL-Couchbase.txt.  As of the Change Date specified
//  in that file, in accordance with the Business Source License, use of this
//  software will be governed by the Apache License, Version 2.0, included in
//  the file licenses/APL2.txt.

package memory

import (
	"context"

	"github.com/couchbase/kvsdk/backend"
)

func common(mc backend.MultiCommon, id string) backend.Common {
	return backend.Common{
		Location:      mc.Location,
		ID:            id,
		Timeout:       mc.Timeout,
		RetryStrategy: mc.RetryStrategy,
		ParentSpan:    mc.ParentSpan,
	}
}

// The multi operations run the single document operation per key and
// only fail as a whole when the context ends.

func (b *Backend) GetMulti(ctx context.Context, req *backend.GetMultiRequest) ([]*backend.GetResponse, error) {
	rv := make([]*backend.GetResponse, len(req.IDs))
	for i, id := range req.IDs {
		if err := ctxErr(ctx, false); err != nil {
			return nil, err
		}
		r, err := b.Get(ctx, &backend.GetRequest{Common: common(req.MultiCommon, id)})
		if err != nil {
			r = &backend.GetResponse{Err: err}
		}
		r.ID = id
		rv[i] = r
	}
	return rv, nil
}

func (b *Backend) UpsertMulti(ctx context.Context, req *backend.UpsertMultiRequest) ([]*backend.MutationResponse, error) {
	rv := make([]*backend.MutationResponse, len(req.Entries))
	for i, e := range req.Entries {
		if err := ctxErr(ctx, i > 0); err != nil {
			return nil, err
		}
		r, err := b.Upsert(ctx, &backend.StoreRequest{
			Common:         common(req.MultiCommon, e.ID),
			Value:          e.Value,
			Flags:          e.Flags,
			Expiry:         req.Expiry,
			PreserveExpiry: req.PreserveExpiry,
			Durability:     req.Durability,
		})
		if err != nil {
			r = &backend.MutationResponse{Err: err}
		}
		r.ID = e.ID
		rv[i] = r
	}
	return rv, nil
}

func (b *Backend) RemoveMulti(ctx context.Context, req *backend.RemoveMultiRequest) ([]*backend.MutationResponse, error) {
	rv := make([]*backend.MutationResponse, len(req.Entries))
	for i, e := range req.Entries {
		if err := ctxErr(ctx, i > 0); err != nil {
			return nil, err
		}
		r, err := b.Remove(ctx, &backend.RemoveRequest{
			Common:     common(req.MultiCommon, e.ID),
			Cas:        e.Cas,
			Durability: req.Durability,
		})
		if err != nil {
			r = &backend.MutationResponse{Err: err}
		}
		r.ID = e.ID
		rv[i] = r
	}
	return rv, nil
}
