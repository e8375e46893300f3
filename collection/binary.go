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
	"github.com/couchbase/kvsdk/options"
	"github.com/couchbase/kvsdk/results"
)

// BinaryCollection works on raw values and counters. Its documents are
// not JSON, so there is no transcoder.
type BinaryCollection struct {
	c *Collection
}

func (b *BinaryCollection) Append(ctx context.Context, id string, value []byte, opts *options.Append) (*results.MutationResult, error) {
	if opts == nil {
		opts = options.DefaultAppend()
	}
	return b.adjoin(ctx, "append", opts.Request(b.c.loc, id, value), b.c.backend.Append)
}

func (b *BinaryCollection) Prepend(ctx context.Context, id string, value []byte, opts *options.Prepend) (*results.MutationResult, error) {
	if opts == nil {
		opts = options.DefaultPrepend()
	}
	return b.adjoin(ctx, "prepend", opts.Request(b.c.loc, id, value), b.c.backend.Prepend)
}

func (b *BinaryCollection) adjoin(ctx context.Context, op string, req *backend.AdjoinRequest,
	send func(context.Context, *backend.AdjoinRequest) (*backend.MutationResponse, error)) (*results.MutationResult, error) {
	var resp *backend.MutationResponse
	err := b.c.run(ctx, op, req.ID, req.Timeout, func(ctx context.Context) (err error) {
		resp, err = send(ctx, req)
		return
	})
	if err != nil {
		return nil, err
	}
	return results.NewMutationResult(resp), nil
}

// Increment adds the option delta, creating the document from Initial
// when it is set.
func (b *BinaryCollection) Increment(ctx context.Context, id string, opts *options.Increment) (*results.CounterResult, error) {
	if opts == nil {
		opts = options.DefaultIncrement()
	}
	req, err := opts.Request(b.c.loc, id, b.c.now())
	if err != nil {
		return nil, err
	}
	return b.counter(ctx, "increment", req, b.c.backend.Increment)
}

// Decrement never goes below zero.
func (b *BinaryCollection) Decrement(ctx context.Context, id string, opts *options.Decrement) (*results.CounterResult, error) {
	if opts == nil {
		opts = options.DefaultDecrement()
	}
	req, err := opts.Request(b.c.loc, id, b.c.now())
	if err != nil {
		return nil, err
	}
	return b.counter(ctx, "decrement", req, b.c.backend.Decrement)
}

func (b *BinaryCollection) counter(ctx context.Context, op string, req *backend.CounterRequest,
	send func(context.Context, *backend.CounterRequest) (*backend.CounterResponse, error)) (*results.CounterResult, error) {
	var resp *backend.CounterResponse
	err := b.c.run(ctx, op, req.ID, req.Timeout, func(ctx context.Context) (err error) {
		resp, err = send(ctx, req)
		return
	})
	if err != nil {
		return nil, err
	}
	return results.NewCounterResult(resp), nil
}
