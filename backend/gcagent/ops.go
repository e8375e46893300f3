//  Copyright 2026-Present Couchbase, Inc.
//
//  Use of this software is governed by the Business Source License included
//  in the file licenses/BSL-Couchbase.txt.  As of the Change Date specified
//  in that file, in accordance with the Business Source License, use of this
//  software will be governed by the Apache License, Version 2.0, included in
//  the file licenses/APL2.txt.

package gcagent

import (
	"context"
	"strconv"
	"time"

	json "github.com/couchbase/go_json"
	"github.com/couchbase/gocbcore/v10"
	"github.com/couchbase/gocbcore/v10/memd"

	"github.com/couchbase/kvsdk/backend"
	"github.com/couchbase/kvsdk/errors"
	"github.com/couchbase/kvsdk/logging"
	"github.com/couchbase/kvsdk/mutation"
	"github.com/couchbase/kvsdk/transcoder"
)

const _NO_INITIAL = ^uint64(0)

type outcome[T any] struct {
	res T
	err error
}

// wait dispatches one gocbcore operation and blocks for its callback.
// When ctx ends first the operation is cancelled.
func wait[T any](ctx context.Context, ambiguous bool,
	dispatch func(cb func(T, error)) (gocbcore.PendingOp, error)) (T, error) {
	var zero T
	ch := make(chan outcome[T], 1)
	op, err := dispatch(func(res T, err error) {
		ch <- outcome[T]{res, err}
	})
	if err != nil {
		return zero, err
	}
	select {
	case o := <-ch:
		return o.res, o.err
	case <-ctx.Done():
		op.Cancel()
		<-ch
		return zero, ctxError(ctx, ambiguous)
	}
}

// call is the per operation state: the agent, the deadline and the
// retry strategy.
type call struct {
	ap       *AgentProvider
	agent    *gocbcore.Agent
	deadline time.Time
	retry    gocbcore.RetryStrategy
	exit     func()
}

// failFast gives up on the first retryable failure.
type failFast struct{}

func (failFast) RetryAfter(gocbcore.RetryRequest, gocbcore.RetryReason) gocbcore.RetryAction {
	return &gocbcore.NoRetryRetryAction{}
}

func (c *Client) begin(ctx context.Context, loc backend.Location, timeout time.Duration,
	rs backend.RetryStrategy) (*call, error) {
	exit, err := c.enter()
	if err != nil {
		return nil, err
	}
	if err = ctxError(ctx, false); err != nil {
		exit()
		return nil, err
	}
	ap, err := c.provider(loc.Bucket)
	if err != nil {
		exit()
		return nil, err
	}
	agent := ap.Agent()
	if agent == nil {
		exit()
		return nil, errors.NewKVError(errors.E_SERVICE_NOT_AVAILABLE, "no agent for bucket "+loc.Bucket)
	}
	rv := &call{ap: ap, agent: agent, exit: exit}
	if timeout > 0 {
		rv.deadline = time.Now().Add(timeout)
	}
	if d, ok := ctx.Deadline(); ok && (rv.deadline.IsZero() || d.Before(rv.deadline)) {
		rv.deadline = d
	}
	rv.deadline = ap.Deadline(rv.deadline, 1)
	if rs == backend.RetryFailFast {
		rv.retry = failFast{}
	}
	return rv, nil
}

func (c *Client) beginCommon(ctx context.Context, cmn backend.Common) (*call, error) {
	return c.begin(ctx, cmn.Location, cmn.Timeout, cmn.RetryStrategy)
}

func (cl *call) token(t gocbcore.MutationToken) *mutation.Token {
	if t.VbUUID == 0 && t.SeqNo == 0 {
		return nil
	}
	return &mutation.Token{
		BucketName:     cl.ap.bucketName,
		PartitionID:    t.VbID,
		PartitionUUID:  uint64(t.VbUUID),
		SequenceNumber: uint64(t.SeqNo),
	}
}

func durabilityLevel(l backend.DurabilityLevel) memd.DurabilityLevel {
	switch l {
	case backend.DurabilityMajority:
		return memd.DurabilityLevelMajority
	case backend.DurabilityMajorityAndPersistToActive:
		return memd.DurabilityLevelMajorityAndPersistOnMaster
	case backend.DurabilityPersistToMajority:
		return memd.DurabilityLevelPersistToMajority
	}
	return 0
}

func datatype(flags uint32) uint8 {
	if transcoder.FormatOf(flags) == transcoder.FormatJSON {
		return uint8(memd.DatatypeFlagJSON)
	}
	return 0
}

func (c *Client) Get(ctx context.Context, req *backend.GetRequest) (*backend.GetResponse, error) {
	if req.WithExpiry {
		return c.getWithExpiry(ctx, req)
	}
	cl, err := c.beginCommon(ctx, req.Common)
	if err != nil {
		return nil, err
	}
	defer cl.exit()

	res, err := wait(ctx, false, func(cb func(*gocbcore.GetResult, error)) (gocbcore.PendingOp, error) {
		return cl.agent.Get(gocbcore.GetOptions{
			Key:            []byte(req.ID),
			ScopeName:      req.ScopeName(),
			CollectionName: req.CollectionName(),
			RetryStrategy:  cl.retry,
			Deadline:       cl.deadline,
		}, cb)
	})
	if err != nil {
		return nil, mapError(err, req.ID)
	}
	return &backend.GetResponse{Cas: uint64(res.Cas), Flags: res.Flags, Value: res.Value}, nil
}

// getWithExpiry reads the body together with the expiry and flags
// virtual attributes, the only way to learn a document's expiry.
func (c *Client) getWithExpiry(ctx context.Context, req *backend.GetRequest) (*backend.GetResponse, error) {
	lr, err := c.LookupIn(ctx, &backend.LookupInRequest{
		Common: req.Common,
		Specs: []backend.SubdocCommand{
			{Opcode: backend.OpGet, Path: "$document.exptime", Xattr: true},
			{Opcode: backend.OpGet, Path: "$document.flags", Xattr: true},
			{Opcode: backend.OpGetDoc},
		},
	})
	if err != nil {
		return nil, err
	}
	rv := &backend.GetResponse{Cas: lr.Cas}
	for _, f := range lr.Fields {
		if f.Err != nil {
			return nil, f.Err
		}
	}
	var exp uint32
	var flags uint32
	if err := json.Unmarshal(lr.Fields[0].Value, &exp); err != nil {
		return nil, errors.NewDecodingFailure("$document.exptime", err)
	}
	if err := json.Unmarshal(lr.Fields[1].Value, &flags); err != nil {
		return nil, errors.NewDecodingFailure("$document.flags", err)
	}
	rv.Expiry = &exp
	rv.Flags = flags
	rv.Value = lr.Fields[2].Value
	return rv, nil
}

func (c *Client) GetAndLock(ctx context.Context, req *backend.GetAndLockRequest) (*backend.GetResponse, error) {
	cl, err := c.beginCommon(ctx, req.Common)
	if err != nil {
		return nil, err
	}
	defer cl.exit()

	res, err := wait(ctx, false, func(cb func(*gocbcore.GetAndLockResult, error)) (gocbcore.PendingOp, error) {
		return cl.agent.GetAndLock(gocbcore.GetAndLockOptions{
			Key:            []byte(req.ID),
			LockTime:       uint32(req.LockTime / time.Second),
			ScopeName:      req.ScopeName(),
			CollectionName: req.CollectionName(),
			RetryStrategy:  cl.retry,
			Deadline:       cl.deadline,
		}, cb)
	})
	if err != nil {
		return nil, mapError(err, req.ID)
	}
	return &backend.GetResponse{Cas: uint64(res.Cas), Flags: res.Flags, Value: res.Value}, nil
}

func (c *Client) GetAndTouch(ctx context.Context, req *backend.GetAndTouchRequest) (*backend.GetResponse, error) {
	cl, err := c.beginCommon(ctx, req.Common)
	if err != nil {
		return nil, err
	}
	defer cl.exit()

	res, err := wait(ctx, true, func(cb func(*gocbcore.GetAndTouchResult, error)) (gocbcore.PendingOp, error) {
		return cl.agent.GetAndTouch(gocbcore.GetAndTouchOptions{
			Key:            []byte(req.ID),
			Expiry:         req.Expiry,
			ScopeName:      req.ScopeName(),
			CollectionName: req.CollectionName(),
			RetryStrategy:  cl.retry,
			Deadline:       cl.deadline,
		}, cb)
	})
	if err != nil {
		return nil, mapError(err, req.ID)
	}
	return &backend.GetResponse{Cas: uint64(res.Cas), Flags: res.Flags, Value: res.Value}, nil
}

func (c *Client) getReplica(ctx context.Context, cl *call, cmn backend.Common, idx int) (*backend.GetResponse, error) {
	if idx == 0 {
		res, err := wait(ctx, false, func(cb func(*gocbcore.GetResult, error)) (gocbcore.PendingOp, error) {
			return cl.agent.Get(gocbcore.GetOptions{
				Key:            []byte(cmn.ID),
				ScopeName:      cmn.ScopeName(),
				CollectionName: cmn.CollectionName(),
				RetryStrategy:  cl.retry,
				Deadline:       cl.deadline,
			}, cb)
		})
		if err != nil {
			return nil, err
		}
		return &backend.GetResponse{Cas: uint64(res.Cas), Flags: res.Flags, Value: res.Value}, nil
	}
	res, err := wait(ctx, false, func(cb func(*gocbcore.GetReplicaResult, error)) (gocbcore.PendingOp, error) {
		return cl.agent.GetOneReplica(gocbcore.GetOneReplicaOptions{
			Key:            []byte(cmn.ID),
			ReplicaIdx:     idx,
			ScopeName:      cmn.ScopeName(),
			CollectionName: cmn.CollectionName(),
			RetryStrategy:  cl.retry,
			Deadline:       cl.deadline,
		}, cb)
	})
	if err != nil {
		return nil, err
	}
	return &backend.GetResponse{Cas: uint64(res.Cas), Flags: res.Flags, Value: res.Value, IsReplica: true}, nil
}

func numReplicas(agent *gocbcore.Agent) (int, error) {
	snapshot, err := agent.ConfigSnapshot()
	if err != nil {
		return 0, err
	}
	return snapshot.NumReplicas()
}

// fanOut runs read against the active and every replica concurrently;
// results are indexed by replica, the active first.
func fanOut[T any](cl *call, read func(idx int) (T, error)) ([]T, []error, error) {
	n, err := numReplicas(cl.agent)
	if err != nil {
		return nil, nil, mapError(err, "")
	}
	rv := make([]T, n+1)
	errs := make([]error, n+1)
	done := make(chan struct{}, n+1)
	for i := 0; i <= n; i++ {
		go func(i int) {
			rv[i], errs[i] = read(i)
			done <- struct{}{}
		}(i)
	}
	for i := 0; i <= n; i++ {
		<-done
	}
	return rv, errs, nil
}

func (c *Client) GetAnyReplica(ctx context.Context, req *backend.GetReplicaRequest) (*backend.GetResponse, error) {
	cl, err := c.beginCommon(ctx, req.Common)
	if err != nil {
		return nil, err
	}
	defer cl.exit()

	all, errs, err := fanOut(cl, func(idx int) (*backend.GetResponse, error) {
		return c.getReplica(ctx, cl, req.Common, idx)
	})
	if err != nil {
		return nil, err
	}
	for i, r := range all {
		if errs[i] == nil {
			return r, nil
		}
	}
	if err := ctxError(ctx, false); err != nil {
		return nil, err
	}
	return nil, errors.NewKVError(errors.E_DOCUMENT_IRRETRIEVABLE, req.ID)
}

func (c *Client) GetAllReplicas(ctx context.Context, req *backend.GetReplicaRequest) ([]*backend.GetResponse, error) {
	cl, err := c.beginCommon(ctx, req.Common)
	if err != nil {
		return nil, err
	}
	defer cl.exit()

	all, errs, err := fanOut(cl, func(idx int) (*backend.GetResponse, error) {
		return c.getReplica(ctx, cl, req.Common, idx)
	})
	if err != nil {
		return nil, err
	}
	rv := make([]*backend.GetResponse, 0, len(all))
	for i, r := range all {
		if errs[i] == nil {
			rv = append(rv, r)
		} else if !errors.Is(errs[i], gocbcore.ErrDocumentNotFound) {
			logging.Debugf("gcagent: replica %d of %s: %v", i, req.ID, errs[i])
		}
	}
	if len(rv) == 0 {
		if err := ctxError(ctx, false); err != nil {
			return nil, err
		}
	}
	return rv, nil
}

func (c *Client) Exists(ctx context.Context, req *backend.ExistsRequest) (*backend.ExistsResponse, error) {
	cl, err := c.beginCommon(ctx, req.Common)
	if err != nil {
		return nil, err
	}
	defer cl.exit()

	res, err := wait(ctx, false, func(cb func(*gocbcore.GetMetaResult, error)) (gocbcore.PendingOp, error) {
		return cl.agent.GetMeta(gocbcore.GetMetaOptions{
			Key:            []byte(req.ID),
			ScopeName:      req.ScopeName(),
			CollectionName: req.CollectionName(),
			RetryStrategy:  cl.retry,
			Deadline:       cl.deadline,
		}, cb)
	})
	if errors.Is(err, gocbcore.ErrDocumentNotFound) {
		return &backend.ExistsResponse{}, nil
	} else if err != nil {
		return nil, mapError(err, req.ID)
	}
	return &backend.ExistsResponse{
		Exists:         res.Deleted == 0,
		Deleted:        res.Deleted != 0,
		Cas:            uint64(res.Cas),
		Flags:          res.Flags,
		Expiry:         res.Expiry,
		SequenceNumber: uint64(res.SeqNo),
		Datatype:       res.Datatype,
	}, nil
}

func (c *Client) Touch(ctx context.Context, req *backend.TouchRequest) (*backend.MutationResponse, error) {
	cl, err := c.beginCommon(ctx, req.Common)
	if err != nil {
		return nil, err
	}
	defer cl.exit()

	res, err := wait(ctx, true, func(cb func(*gocbcore.TouchResult, error)) (gocbcore.PendingOp, error) {
		return cl.agent.Touch(gocbcore.TouchOptions{
			Key:            []byte(req.ID),
			Expiry:         req.Expiry,
			ScopeName:      req.ScopeName(),
			CollectionName: req.CollectionName(),
			RetryStrategy:  cl.retry,
			Deadline:       cl.deadline,
		}, cb)
	})
	if err != nil {
		return nil, mapError(err, req.ID)
	}
	return &backend.MutationResponse{Cas: uint64(res.Cas), Token: cl.token(res.MutationToken)}, nil
}

func (c *Client) Unlock(ctx context.Context, req *backend.UnlockRequest) error {
	cl, err := c.beginCommon(ctx, req.Common)
	if err != nil {
		return err
	}
	defer cl.exit()

	_, err = wait(ctx, true, func(cb func(*gocbcore.UnlockResult, error)) (gocbcore.PendingOp, error) {
		return cl.agent.Unlock(gocbcore.UnlockOptions{
			Key:            []byte(req.ID),
			Cas:            gocbcore.Cas(req.Cas),
			ScopeName:      req.ScopeName(),
			CollectionName: req.CollectionName(),
			RetryStrategy:  cl.retry,
			Deadline:       cl.deadline,
		}, cb)
	})
	return mapError(err, req.ID)
}

func (c *Client) Insert(ctx context.Context, req *backend.StoreRequest) (*backend.MutationResponse, error) {
	return c.store(ctx, req, func(cl *call, cb func(*gocbcore.StoreResult, error)) (gocbcore.PendingOp, error) {
		return cl.agent.Add(gocbcore.AddOptions{
			Key:             []byte(req.ID),
			Value:           req.Value,
			Flags:           req.Flags,
			Datatype:        datatype(req.Flags),
			Expiry:          req.Expiry,
			DurabilityLevel: durabilityLevel(req.Durability.Level),
			ScopeName:       req.ScopeName(),
			CollectionName:  req.CollectionName(),
			RetryStrategy:   cl.retry,
			Deadline:        cl.deadline,
		}, cb)
	})
}

func (c *Client) Upsert(ctx context.Context, req *backend.StoreRequest) (*backend.MutationResponse, error) {
	return c.store(ctx, req, func(cl *call, cb func(*gocbcore.StoreResult, error)) (gocbcore.PendingOp, error) {
		return cl.agent.Set(gocbcore.SetOptions{
			Key:             []byte(req.ID),
			Value:           req.Value,
			Flags:           req.Flags,
			Datatype:        datatype(req.Flags),
			Expiry:          req.Expiry,
			PreserveExpiry:  req.PreserveExpiry,
			DurabilityLevel: durabilityLevel(req.Durability.Level),
			ScopeName:       req.ScopeName(),
			CollectionName:  req.CollectionName(),
			RetryStrategy:   cl.retry,
			Deadline:        cl.deadline,
		}, cb)
	})
}

func (c *Client) Replace(ctx context.Context, req *backend.StoreRequest) (*backend.MutationResponse, error) {
	return c.store(ctx, req, func(cl *call, cb func(*gocbcore.StoreResult, error)) (gocbcore.PendingOp, error) {
		return cl.agent.Replace(gocbcore.ReplaceOptions{
			Key:             []byte(req.ID),
			Value:           req.Value,
			Flags:           req.Flags,
			Datatype:        datatype(req.Flags),
			Expiry:          req.Expiry,
			Cas:             gocbcore.Cas(req.Cas),
			PreserveExpiry:  req.PreserveExpiry,
			DurabilityLevel: durabilityLevel(req.Durability.Level),
			ScopeName:       req.ScopeName(),
			CollectionName:  req.CollectionName(),
			RetryStrategy:   cl.retry,
			Deadline:        cl.deadline,
		}, cb)
	})
}

func (c *Client) store(ctx context.Context, req *backend.StoreRequest,
	send func(*call, func(*gocbcore.StoreResult, error)) (gocbcore.PendingOp, error)) (*backend.MutationResponse, error) {
	cl, err := c.beginCommon(ctx, req.Common)
	if err != nil {
		return nil, err
	}
	defer cl.exit()
	if err = checkDurability(cl, req.Durability); err != nil {
		return nil, err
	}

	res, err := wait(ctx, true, func(cb func(*gocbcore.StoreResult, error)) (gocbcore.PendingOp, error) {
		return send(cl, cb)
	})
	if err != nil {
		return nil, mapError(err, req.ID)
	}
	if err = observe(ctx, cl, res.MutationToken, req.Durability); err != nil {
		return nil, err
	}
	return &backend.MutationResponse{Cas: uint64(res.Cas), Token: cl.token(res.MutationToken)}, nil
}

func (c *Client) Remove(ctx context.Context, req *backend.RemoveRequest) (*backend.MutationResponse, error) {
	cl, err := c.beginCommon(ctx, req.Common)
	if err != nil {
		return nil, err
	}
	defer cl.exit()
	if err = checkDurability(cl, req.Durability); err != nil {
		return nil, err
	}

	res, err := wait(ctx, true, func(cb func(*gocbcore.DeleteResult, error)) (gocbcore.PendingOp, error) {
		return cl.agent.Delete(gocbcore.DeleteOptions{
			Key:             []byte(req.ID),
			Cas:             gocbcore.Cas(req.Cas),
			DurabilityLevel: durabilityLevel(req.Durability.Level),
			ScopeName:       req.ScopeName(),
			CollectionName:  req.CollectionName(),
			RetryStrategy:   cl.retry,
			Deadline:        cl.deadline,
		}, cb)
	})
	if err != nil {
		return nil, mapError(err, req.ID)
	}
	if err = observe(ctx, cl, res.MutationToken, req.Durability); err != nil {
		return nil, err
	}
	return &backend.MutationResponse{Cas: uint64(res.Cas), Token: cl.token(res.MutationToken)}, nil
}

func (c *Client) Append(ctx context.Context, req *backend.AdjoinRequest) (*backend.MutationResponse, error) {
	return c.adjoin(ctx, req, true)
}

func (c *Client) Prepend(ctx context.Context, req *backend.AdjoinRequest) (*backend.MutationResponse, error) {
	return c.adjoin(ctx, req, false)
}

func (c *Client) adjoin(ctx context.Context, req *backend.AdjoinRequest, after bool) (*backend.MutationResponse, error) {
	cl, err := c.beginCommon(ctx, req.Common)
	if err != nil {
		return nil, err
	}
	defer cl.exit()
	if err = checkDurability(cl, req.Durability); err != nil {
		return nil, err
	}

	opts := gocbcore.AdjoinOptions{
		Key:             []byte(req.ID),
		Value:           req.Value,
		Cas:             gocbcore.Cas(req.Cas),
		DurabilityLevel: durabilityLevel(req.Durability.Level),
		ScopeName:       req.ScopeName(),
		CollectionName:  req.CollectionName(),
		RetryStrategy:   cl.retry,
		Deadline:        cl.deadline,
	}
	res, err := wait(ctx, true, func(cb func(*gocbcore.AdjoinResult, error)) (gocbcore.PendingOp, error) {
		if after {
			return cl.agent.Append(opts, cb)
		}
		return cl.agent.Prepend(opts, cb)
	})
	if err != nil {
		return nil, mapError(err, req.ID)
	}
	if err = observe(ctx, cl, res.MutationToken, req.Durability); err != nil {
		return nil, err
	}
	return &backend.MutationResponse{Cas: uint64(res.Cas), Token: cl.token(res.MutationToken)}, nil
}

func (c *Client) Increment(ctx context.Context, req *backend.CounterRequest) (*backend.CounterResponse, error) {
	return c.counter(ctx, req, true)
}

func (c *Client) Decrement(ctx context.Context, req *backend.CounterRequest) (*backend.CounterResponse, error) {
	return c.counter(ctx, req, false)
}

func (c *Client) counter(ctx context.Context, req *backend.CounterRequest, up bool) (*backend.CounterResponse, error) {
	cl, err := c.beginCommon(ctx, req.Common)
	if err != nil {
		return nil, err
	}
	defer cl.exit()
	if err = checkDurability(cl, req.Durability); err != nil {
		return nil, err
	}

	initial := _NO_INITIAL
	if req.Initial != nil {
		if *req.Initial == _NO_INITIAL {
			return nil, errors.NewInvalidArgument("initial value %s is reserved", strconv.FormatUint(_NO_INITIAL, 10))
		}
		initial = *req.Initial
	}
	opts := gocbcore.CounterOptions{
		Key:             []byte(req.ID),
		Delta:           req.Delta,
		Initial:         initial,
		Expiry:          req.Expiry,
		DurabilityLevel: durabilityLevel(req.Durability.Level),
		ScopeName:       req.ScopeName(),
		CollectionName:  req.CollectionName(),
		RetryStrategy:   cl.retry,
		Deadline:        cl.deadline,
	}
	res, err := wait(ctx, true, func(cb func(*gocbcore.CounterResult, error)) (gocbcore.PendingOp, error) {
		if up {
			return cl.agent.Increment(opts, cb)
		}
		return cl.agent.Decrement(opts, cb)
	})
	if err != nil {
		return nil, mapError(err, req.ID)
	}
	if err = observe(ctx, cl, res.MutationToken, req.Durability); err != nil {
		return nil, err
	}
	return &backend.CounterResponse{
		MutationResponse: backend.MutationResponse{Cas: uint64(res.Cas), Token: cl.token(res.MutationToken)},
		Value:            res.Value,
	}, nil
}
