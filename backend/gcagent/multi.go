//  Copyright 2020-Present Couchbase, Inc.
//
//  Use of this software is governed by the Business Source License included
//  in the file licenses/BSL-Couchbase.txt.  As of the Change Date specified
//  in that file, in accordance with the Business Source License, use of this
//  software will be governed by the Apache License, Version 2.0, included in
//  the file licenses/APL2.txt.

package gcagent

import (
	"context"
	"fmt"
	"sync"

	"github.com/couchbase/gocbcore/v10"

	"github.com/couchbase/kvsdk/backend"
	"github.com/couchbase/kvsdk/errors"
	"github.com/couchbase/kvsdk/logging"
)

// The bulk operations send every request before waiting for any
// answer; the agent pipelines them over its connections.

type GetOp struct {
	Key    string
	Resp   *backend.GetResponse
	Err    error
	Pendop gocbcore.PendingOp
}

type WriteOp struct {
	Key    string
	Resp   *backend.MutationResponse
	Err    error
	Pendop gocbcore.PendingOp
}

// bulkWait waits for every dispatched callback, cancelling whatever is
// still pending when ctx ends.
func bulkWait(ctx context.Context, wg *sync.WaitGroup, pending []gocbcore.PendingOp) error {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		for _, op := range pending {
			if op != nil {
				op.Cancel()
			}
		}
		<-done
		return ctx.Err()
	}
}

func (c *Client) beginMulti(ctx context.Context, mc backend.MultiCommon) (*call, error) {
	return c.begin(ctx, mc.Location, mc.Timeout, mc.RetryStrategy)
}

func (c *Client) GetMulti(ctx context.Context, req *backend.GetMultiRequest) (rv []*backend.GetResponse, errOut error) {
	cl, err := c.beginMulti(ctx, req.MultiCommon)
	if err != nil {
		return nil, err
	}
	defer cl.exit()

	defer func() {
		// protect from panics
		if r := recover(); r != nil {
			rv, errOut = nil, errors.NewError(fmt.Errorf("GetMulti() Panic: %v", r), "")
		}
	}()

	wg := &sync.WaitGroup{}
	items := make([]*GetOp, len(req.IDs))
	pending := make([]gocbcore.PendingOp, 0, len(req.IDs))
	for i, id := range req.IDs {
		item := &GetOp{Key: id}
		items[i] = item
		wg.Add(1)
		op, err := cl.agent.Get(gocbcore.GetOptions{
			Key:            []byte(id),
			ScopeName:      req.ScopeName(),
			CollectionName: req.CollectionName(),
			RetryStrategy:  cl.retry,
			Deadline:       cl.deadline,
		}, func(res *gocbcore.GetResult, err error) {
			defer wg.Done()
			item.Err = err
			if err == nil {
				item.Resp = &backend.GetResponse{Cas: uint64(res.Cas), Flags: res.Flags, Value: res.Value}
			}
		})
		if err != nil {
			// request send failed. no need to wait to complete.
			item.Err = err
			wg.Add(-1)
		} else {
			item.Pendop = op
			pending = append(pending, op)
		}
	}
	if err := bulkWait(ctx, wg, pending); err != nil {
		return nil, ctxError(ctx, false)
	}

	rv = make([]*backend.GetResponse, len(items))
	for i, item := range items {
		if item.Err != nil {
			item.Resp = &backend.GetResponse{Err: mapError(item.Err, item.Key)}
		}
		item.Resp.ID = item.Key
		rv[i] = item.Resp
	}
	logging.Tracea(func() string {
		failed := 0
		for _, r := range rv {
			if r.Err != nil {
				failed++
			}
		}
		return fmt.Sprintf("gcagent: get multi of %d keys, %d failed", len(rv), failed)
	})
	return rv, nil
}

func (c *Client) UpsertMulti(ctx context.Context, req *backend.UpsertMultiRequest) ([]*backend.MutationResponse, error) {
	return c.writeMulti(ctx, req.MultiCommon, len(req.Entries), req.Durability,
		func(cl *call, i int, cb func(gocbcore.Cas, gocbcore.MutationToken, error)) (string, gocbcore.PendingOp, error) {
			e := req.Entries[i]
			op, err := cl.agent.Set(gocbcore.SetOptions{
				Key:             []byte(e.ID),
				Value:           e.Value,
				Flags:           e.Flags,
				Datatype:        datatype(e.Flags),
				Expiry:          req.Expiry,
				PreserveExpiry:  req.PreserveExpiry,
				DurabilityLevel: durabilityLevel(req.Durability.Level),
				ScopeName:       req.ScopeName(),
				CollectionName:  req.CollectionName(),
				RetryStrategy:   cl.retry,
				Deadline:        cl.deadline,
			}, func(res *gocbcore.StoreResult, err error) {
				if err != nil {
					cb(0, gocbcore.MutationToken{}, err)
					return
				}
				cb(res.Cas, res.MutationToken, nil)
			})
			return e.ID, op, err
		})
}

func (c *Client) RemoveMulti(ctx context.Context, req *backend.RemoveMultiRequest) ([]*backend.MutationResponse, error) {
	return c.writeMulti(ctx, req.MultiCommon, len(req.Entries), req.Durability,
		func(cl *call, i int, cb func(gocbcore.Cas, gocbcore.MutationToken, error)) (string, gocbcore.PendingOp, error) {
			e := req.Entries[i]
			op, err := cl.agent.Delete(gocbcore.DeleteOptions{
				Key:             []byte(e.ID),
				Cas:             gocbcore.Cas(e.Cas),
				DurabilityLevel: durabilityLevel(req.Durability.Level),
				ScopeName:       req.ScopeName(),
				CollectionName:  req.CollectionName(),
				RetryStrategy:   cl.retry,
				Deadline:        cl.deadline,
			}, func(res *gocbcore.DeleteResult, err error) {
				if err != nil {
					cb(0, gocbcore.MutationToken{}, err)
					return
				}
				cb(res.Cas, res.MutationToken, nil)
			})
			return e.ID, op, err
		})
}

type sendWrite func(cl *call, i int, cb func(gocbcore.Cas, gocbcore.MutationToken, error)) (string, gocbcore.PendingOp, error)

func (c *Client) writeMulti(ctx context.Context, mc backend.MultiCommon, n int, d backend.Durability,
	send sendWrite) (rv []*backend.MutationResponse, errOut error) {
	cl, err := c.beginMulti(ctx, mc)
	if err != nil {
		return nil, err
	}
	defer cl.exit()
	if err = checkDurability(cl, d); err != nil {
		return nil, err
	}

	defer func() {
		// protect from panics
		if r := recover(); r != nil {
			rv, errOut = nil, errors.NewError(fmt.Errorf("writeMulti() Panic: %v", r), "")
		}
	}()

	wg := &sync.WaitGroup{}
	wops := make([]*WriteOp, n)
	tokens := make([]gocbcore.MutationToken, n)
	pending := make([]gocbcore.PendingOp, 0, n)
	for i := 0; i < n; i++ {
		wop := &WriteOp{}
		wops[i] = wop
		i := i
		wg.Add(1)
		key, op, err := send(cl, i, func(cas gocbcore.Cas, tok gocbcore.MutationToken, err error) {
			defer wg.Done()
			wop.Err = err
			if err == nil {
				tokens[i] = tok
				wop.Resp = &backend.MutationResponse{Cas: uint64(cas), Token: cl.token(tok)}
			}
		})
		wop.Key = key
		if err != nil {
			wop.Err = err
			wg.Add(-1)
		} else {
			wop.Pendop = op
			pending = append(pending, op)
		}
	}
	if err := bulkWait(ctx, wg, pending); err != nil {
		return nil, ctxError(ctx, len(pending) > 0)
	}

	rv = make([]*backend.MutationResponse, n)
	for i, wop := range wops {
		if wop.Err == nil {
			wop.Err = observe(ctx, cl, tokens[i], d)
		}
		if wop.Err != nil {
			wop.Resp = &backend.MutationResponse{Err: mapError(wop.Err, wop.Key)}
		}
		wop.Resp.ID = wop.Key
		rv[i] = wop.Resp
	}
	return rv, nil
}
