//  Copyright 2026-Present Couchbase, Inc.
//
//  Use of this software is governed by the Business Source License included
//  in the file licenses/BSL-Couchbase.txt.  As of the Change Date specified
//  in that file, in accordance with the Business Source License, use of this
//  software will be governed by the Apache License, Version 2.0, included in
//  the file licenses/APL2.txt.

/*
Package collection is the document API of one collection.

Every method turns its options into a backend request, runs it under a
deadline derived from the option timeout and wraps the raw response in
a result. Argument errors are reported before anything is sent.
*/
package collection

import (
	"context"
	"time"

	"github.com/rcrowley/go-metrics"

	"github.com/couchbase/kvsdk/backend"
	"github.com/couchbase/kvsdk/errors"
	"github.com/couchbase/kvsdk/logging"
	"github.com/couchbase/kvsdk/options"
	"github.com/couchbase/kvsdk/results"
	"github.com/couchbase/kvsdk/scan"
	"github.com/couchbase/kvsdk/subdoc"
)

type Collection struct {
	backend  backend.Backend
	loc      backend.Location
	registry metrics.Registry
	now      func() time.Time
}

// New binds a collection to a backend. A nil registry gets a private
// one.
func New(b backend.Backend, loc backend.Location, registry metrics.Registry) *Collection {
	if registry == nil {
		registry = metrics.NewRegistry()
	}
	return &Collection{
		backend:  b,
		loc:      loc,
		registry: registry,
		now:      time.Now,
	}
}

func (c *Collection) Name() string               { return c.loc.CollectionName() }
func (c *Collection) ScopeName() string          { return c.loc.ScopeName() }
func (c *Collection) BucketName() string         { return c.loc.Bucket }
func (c *Collection) Location() backend.Location { return c.loc }
func (c *Collection) Metrics() metrics.Registry  { return c.registry }
func (c *Collection) Binary() *BinaryCollection  { return &BinaryCollection{c} }

func (c *Collection) Get(ctx context.Context, id string, opts *options.Get) (*results.GetResult, error) {
	if opts == nil {
		opts = options.DefaultGet()
	}
	if opts.NeedProjectedGet() {
		return c.GetProjected(ctx, id, opts)
	}
	req := opts.Request(c.loc, id)
	var resp *backend.GetResponse
	err := c.run(ctx, "get", id, req.Timeout, func(ctx context.Context) (err error) {
		resp, err = c.backend.Get(ctx, req)
		return
	})
	if err != nil {
		return nil, err
	}
	return results.NewGetResult(resp, opts.TranscoderOrDefault()), nil
}

func (c *Collection) GetAndLock(ctx context.Context, id string, lockTime time.Duration, opts *options.GetAndLock) (*results.GetResult, error) {
	if opts == nil {
		opts = options.DefaultGetAndLock()
	}
	req := opts.Request(c.loc, id, lockTime)
	var resp *backend.GetResponse
	err := c.run(ctx, "get_and_lock", id, req.Timeout, func(ctx context.Context) (err error) {
		resp, err = c.backend.GetAndLock(ctx, req)
		return
	})
	if err != nil {
		return nil, err
	}
	return results.NewGetResult(resp, opts.TranscoderOrDefault()), nil
}

func (c *Collection) GetAndTouch(ctx context.Context, id string, expiry options.Expiry, opts *options.GetAndTouch) (*results.GetResult, error) {
	if opts == nil {
		opts = options.DefaultGetAndTouch()
	}
	req, err := opts.Request(c.loc, id, expiry, c.now())
	if err != nil {
		return nil, err
	}
	var resp *backend.GetResponse
	err = c.run(ctx, "get_and_touch", id, req.Timeout, func(ctx context.Context) (err error) {
		resp, err = c.backend.GetAndTouch(ctx, req)
		return
	})
	if err != nil {
		return nil, err
	}
	return results.NewGetResult(resp, opts.TranscoderOrDefault()), nil
}

func (c *Collection) GetAnyReplica(ctx context.Context, id string, opts *options.GetAnyReplica) (*results.GetReplicaResult, error) {
	if opts == nil {
		opts = options.DefaultGetAnyReplica()
	}
	req := opts.Request(c.loc, id)
	var resp *backend.GetResponse
	err := c.run(ctx, "get_any_replica", id, req.Timeout, func(ctx context.Context) (err error) {
		resp, err = c.backend.GetAnyReplica(ctx, req)
		return
	})
	if err != nil {
		return nil, err
	}
	return results.NewGetReplicaResult(resp, opts.TranscoderOrDefault()), nil
}

func (c *Collection) GetAllReplicas(ctx context.Context, id string, opts *options.GetAllReplicas) ([]*results.GetReplicaResult, error) {
	if opts == nil {
		opts = options.DefaultGetAllReplicas()
	}
	req := opts.Request(c.loc, id)
	var resps []*backend.GetResponse
	err := c.run(ctx, "get_all_replicas", id, req.Timeout, func(ctx context.Context) (err error) {
		resps, err = c.backend.GetAllReplicas(ctx, req)
		return
	})
	if err != nil {
		return nil, err
	}
	tc := opts.TranscoderOrDefault()
	rv := make([]*results.GetReplicaResult, len(resps))
	for i, r := range resps {
		rv[i] = results.NewGetReplicaResult(r, tc)
	}
	return rv, nil
}

func (c *Collection) Exists(ctx context.Context, id string, opts *options.Exists) (*results.ExistsResult, error) {
	if opts == nil {
		opts = options.DefaultExists()
	}
	req := opts.Request(c.loc, id)
	var resp *backend.ExistsResponse
	err := c.run(ctx, "exists", id, req.Timeout, func(ctx context.Context) (err error) {
		resp, err = c.backend.Exists(ctx, req)
		return
	})
	if err != nil {
		return nil, err
	}
	return results.NewExistsResult(resp), nil
}

func (c *Collection) Touch(ctx context.Context, id string, expiry options.Expiry, opts *options.Touch) (*results.MutationResult, error) {
	if opts == nil {
		opts = options.DefaultTouch()
	}
	req, err := opts.Request(c.loc, id, expiry, c.now())
	if err != nil {
		return nil, err
	}
	var resp *backend.MutationResponse
	err = c.run(ctx, "touch", id, req.Timeout, func(ctx context.Context) (err error) {
		resp, err = c.backend.Touch(ctx, req)
		return
	})
	if err != nil {
		return nil, err
	}
	return results.NewMutationResult(resp), nil
}

func (c *Collection) Unlock(ctx context.Context, id string, cas uint64, opts *options.Unlock) error {
	if opts == nil {
		opts = options.DefaultUnlock()
	}
	req := opts.Request(c.loc, id, cas)
	return c.run(ctx, "unlock", id, req.Timeout, func(ctx context.Context) error {
		return c.backend.Unlock(ctx, req)
	})
}

func (c *Collection) Insert(ctx context.Context, id string, value interface{}, opts *options.Insert) (*results.MutationResult, error) {
	if opts == nil {
		opts = options.DefaultInsert()
	}
	req, err := opts.Request(c.loc, id, value, c.now())
	if err != nil {
		return nil, err
	}
	return c.store(ctx, "insert", req, c.backend.Insert)
}

func (c *Collection) Upsert(ctx context.Context, id string, value interface{}, opts *options.Upsert) (*results.MutationResult, error) {
	if opts == nil {
		opts = options.DefaultUpsert()
	}
	req, err := opts.Request(c.loc, id, value, c.now())
	if err != nil {
		return nil, err
	}
	return c.store(ctx, "upsert", req, c.backend.Upsert)
}

func (c *Collection) Replace(ctx context.Context, id string, value interface{}, opts *options.Replace) (*results.MutationResult, error) {
	if opts == nil {
		opts = options.DefaultReplace()
	}
	req, err := opts.Request(c.loc, id, value, c.now())
	if err != nil {
		return nil, err
	}
	return c.store(ctx, "replace", req, c.backend.Replace)
}

func (c *Collection) store(ctx context.Context, op string, req *backend.StoreRequest,
	send func(context.Context, *backend.StoreRequest) (*backend.MutationResponse, error)) (*results.MutationResult, error) {
	var resp *backend.MutationResponse
	err := c.run(ctx, op, req.ID, req.Timeout, func(ctx context.Context) (err error) {
		resp, err = send(ctx, req)
		return
	})
	if err != nil {
		return nil, err
	}
	return results.NewMutationResult(resp), nil
}

func (c *Collection) Remove(ctx context.Context, id string, opts *options.Remove) (*results.MutationResult, error) {
	if opts == nil {
		opts = options.DefaultRemove()
	}
	req := opts.Request(c.loc, id)
	var resp *backend.MutationResponse
	err := c.run(ctx, "remove", id, req.Timeout, func(ctx context.Context) (err error) {
		resp, err = c.backend.Remove(ctx, req)
		return
	})
	if err != nil {
		return nil, err
	}
	return results.NewMutationResult(resp), nil
}

func (c *Collection) LookupIn(ctx context.Context, id string, specs []*subdoc.LookupInSpec, opts *options.LookupIn) (*results.LookupInResult, error) {
	if opts == nil {
		opts = options.DefaultLookupIn()
	}
	req, err := opts.Request(c.loc, id, specs)
	if err != nil {
		return nil, err
	}
	var resp *backend.LookupInResponse
	err = c.run(ctx, "lookup_in", id, req.Timeout, func(ctx context.Context) (err error) {
		resp, err = c.backend.LookupIn(ctx, req)
		return
	})
	if err != nil {
		return nil, err
	}
	return results.NewLookupInResult(resp, opts.TranscoderOrDefault()), nil
}

func (c *Collection) LookupInAnyReplica(ctx context.Context, id string, specs []*subdoc.LookupInSpec,
	opts *options.LookupInAnyReplica) (*results.LookupInReplicaResult, error) {
	if opts == nil {
		opts = options.DefaultLookupInAnyReplica()
	}
	req, err := opts.Request(c.loc, id, specs)
	if err != nil {
		return nil, err
	}
	var resp *backend.LookupInResponse
	err = c.run(ctx, "lookup_in_any_replica", id, req.Timeout, func(ctx context.Context) (err error) {
		resp, err = c.backend.LookupInAnyReplica(ctx, req)
		return
	})
	if err != nil {
		return nil, err
	}
	return results.NewLookupInReplicaResult(resp, opts.TranscoderOrDefault()), nil
}

func (c *Collection) LookupInAllReplicas(ctx context.Context, id string, specs []*subdoc.LookupInSpec,
	opts *options.LookupInAllReplicas) ([]*results.LookupInReplicaResult, error) {
	if opts == nil {
		opts = options.DefaultLookupInAllReplicas()
	}
	req, err := opts.Request(c.loc, id, specs)
	if err != nil {
		return nil, err
	}
	var resps []*backend.LookupInResponse
	err = c.run(ctx, "lookup_in_all_replicas", id, req.Timeout, func(ctx context.Context) (err error) {
		resps, err = c.backend.LookupInAllReplicas(ctx, req)
		return
	})
	if err != nil {
		return nil, err
	}
	tc := opts.TranscoderOrDefault()
	rv := make([]*results.LookupInReplicaResult, len(resps))
	for i, r := range resps {
		rv[i] = results.NewLookupInReplicaResult(r, tc)
	}
	return rv, nil
}

func (c *Collection) MutateIn(ctx context.Context, id string, specs []*subdoc.MutateInSpec, opts *options.MutateIn) (*results.MutateInResult, error) {
	if opts == nil {
		opts = options.DefaultMutateIn()
	}
	req, err := opts.Request(c.loc, id, specs, c.now())
	if err != nil {
		return nil, err
	}
	var resp *backend.MutateInResponse
	err = c.run(ctx, "mutate_in", id, req.Timeout, func(ctx context.Context) (err error) {
		resp, err = c.backend.MutateIn(ctx, req)
		return
	})
	if err != nil {
		return nil, err
	}
	return results.NewMutateInResult(resp, opts.TranscoderOrDefault()), nil
}

// Scan opens nothing until the first item is pulled. The scan runs under
// the option timeout, enforced by the backend, rather than ctx alone.
func (c *Collection) Scan(st scan.Type, opts *options.Scan) (*scan.Result, error) {
	if opts == nil {
		opts = options.DefaultScan()
	}
	if st == nil {
		return nil, errors.NewInvalidArgument("scan type is required")
	}
	bt, err := st.ToBackend()
	if err != nil {
		return nil, err
	}
	req, err := opts.Request(c.loc, bt)
	if err != nil {
		return nil, err
	}
	open := func(ctx context.Context) (stream backend.ScanStream, err error) {
		start := time.Now()
		stream, err = c.backend.Scan(ctx, req)
		c.record("scan", start, err)
		if err != nil {
			logging.Debugf("scan on %s failed: %v", c.loc, err)
		}
		return
	}
	return scan.NewResult(open, opts.TranscoderOrDefault()), nil
}

// run executes one backend call under the request timeout, recording its
// latency and failure.
func (c *Collection) run(ctx context.Context, op, id string, timeout time.Duration, fn func(context.Context) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	start := time.Now()
	err := fn(ctx)
	c.record(op, start, err)
	if err != nil {
		logging.Logp(logging.DEBUG, "kv operation failed", c.logPairs(op, id, start,
			logging.Pair{Name: "error", Value: err.Error()})...)
	} else {
		logging.Logp(logging.TRACE, "kv operation", c.logPairs(op, id, start)...)
	}
	return err
}

func (c *Collection) logPairs(op, id string, start time.Time, extra ...logging.Pair) []logging.Pair {
	return append([]logging.Pair{
		{Name: "op", Value: op},
		{Name: "id", Value: id},
		{Name: "location", Value: c.loc.String()},
		{Name: "latency", Value: time.Since(start).String()},
	}, extra...)
}

func (c *Collection) record(op string, start time.Time, err error) {
	metrics.GetOrRegisterTimer(timerName(op), c.registry).UpdateSince(start)
	if err != nil {
		c.markErrors(op, 1)
	}
}

func (c *Collection) markErrors(op string, n int64) {
	metrics.GetOrRegisterMeter(errorMeterName(op), c.registry).Mark(n)
}

func timerName(op string) string {
	return "kv." + op
}

func errorMeterName(op string) string {
	return "kv." + op + ".errors"
}
