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

	"github.com/couchbase/gocbcore/v10"
	"github.com/couchbase/gocbcore/v10/memd"

	"github.com/couchbase/kvsdk/backend"
	"github.com/couchbase/kvsdk/errors"
)

var _OPCODES = map[backend.Opcode]memd.SubDocOpType{
	backend.OpGet:            memd.SubDocOpGet,
	backend.OpGetDoc:         memd.SubDocOpGetDoc,
	backend.OpExists:         memd.SubDocOpExists,
	backend.OpCount:          memd.SubDocOpGetCount,
	backend.OpDictAdd:        memd.SubDocOpDictAdd,
	backend.OpDictUpsert:     memd.SubDocOpDictSet,
	backend.OpRemove:         memd.SubDocOpDelete,
	backend.OpRemoveDoc:      memd.SubDocOpDeleteDoc,
	backend.OpReplace:        memd.SubDocOpReplace,
	backend.OpSetDoc:         memd.SubDocOpSetDoc,
	backend.OpArrayPushLast:  memd.SubDocOpArrayPushLast,
	backend.OpArrayPushFirst: memd.SubDocOpArrayPushFirst,
	backend.OpArrayInsert:    memd.SubDocOpArrayInsert,
	backend.OpArrayAddUnique: memd.SubDocOpArrayAddUnique,
	backend.OpCounter:        memd.SubDocOpCounter,
}

// subdocOps converts specs to wire operations. The server wants every
// extended attribute operation ahead of the body ones, so the specs are
// stably reordered; order maps a wire position back to its spec index.
func subdocOps(specs []backend.SubdocCommand, lookup bool) (ops []gocbcore.SubDocOp, order []int, err error) {
	ops = make([]gocbcore.SubDocOp, 0, len(specs))
	order = make([]int, 0, len(specs))
	for pass := 0; pass < 2; pass++ {
		for i, s := range specs {
			if s.Xattr != (pass == 0) {
				continue
			}
			op, ok := _OPCODES[s.Opcode]
			if !ok || s.Opcode.IsLookup() != lookup {
				return nil, nil, errors.NewInvalidArgument("%s is not a %s operation", s.Opcode, kind(lookup))
			}
			flags := memd.SubdocFlagNone
			if s.Xattr {
				flags |= memd.SubdocFlagXattrPath
			}
			if s.CreatePath {
				flags |= memd.SubdocFlagMkDirP
			}
			if s.ExpandMacros {
				flags |= memd.SubdocFlagExpandMacros
			}
			ops = append(ops, gocbcore.SubDocOp{
				Op:    op,
				Flags: flags,
				Path:  s.Path,
				Value: s.Param,
			})
			order = append(order, i)
		}
	}
	return ops, order, nil
}

func kind(lookup bool) string {
	if lookup {
		return "lookup"
	}
	return "mutation"
}

// fields puts wire results back in spec order.
func fields(specs []backend.SubdocCommand, order []int, results []gocbcore.SubDocResult, lookup bool) []backend.SubdocField {
	rv := make([]backend.SubdocField, len(specs))
	for i := range rv {
		rv[i] = backend.SubdocField{Index: i, Path: specs[i].Path}
	}
	for w, r := range results {
		if w >= len(order) {
			break
		}
		i := order[w]
		f := &rv[i]
		f.Value = r.Value
		switch {
		case r.Err == nil:
			f.Exists = true
		case lookup && specs[i].Opcode == backend.OpExists && errors.Is(r.Err, gocbcore.ErrPathNotFound):
			// a missing path answers exists with false, not an error
		default:
			f.Err = mapPathError(r.Err, specs[i].Path)
		}
	}
	return rv
}

func lookupFlags(accessDeleted bool) memd.SubdocDocFlag {
	if accessDeleted {
		return memd.SubdocDocFlagAccessDeleted
	}
	return memd.SubdocDocFlagNone
}

func mutateFlags(req *backend.MutateInRequest) memd.SubdocDocFlag {
	flags := memd.SubdocDocFlagNone
	switch req.StoreSemantics {
	case backend.StoreUpsert:
		flags |= memd.SubdocDocFlagMkDoc
	case backend.StoreInsert:
		flags |= memd.SubdocDocFlagAddDoc
	}
	if req.AccessDeleted {
		flags |= memd.SubdocDocFlagAccessDeleted
	}
	if req.CreateAsDeleted {
		flags |= memd.SubdocDocFlagCreateAsDeleted
	}
	return flags
}

func (c *Client) lookupIn(ctx context.Context, cl *call, req *backend.LookupInRequest, replicaIdx int) (*backend.LookupInResponse, error) {
	ops, order, err := subdocOps(req.Specs, true)
	if err != nil {
		return nil, err
	}
	res, err := wait(ctx, false, func(cb func(*gocbcore.LookupInResult, error)) (gocbcore.PendingOp, error) {
		return cl.agent.LookupIn(gocbcore.LookupInOptions{
			Key:            []byte(req.ID),
			Ops:            ops,
			Flags:          lookupFlags(req.AccessDeleted),
			ReplicaIdx:     replicaIdx,
			ScopeName:      req.ScopeName(),
			CollectionName: req.CollectionName(),
			RetryStrategy:  cl.retry,
			Deadline:       cl.deadline,
		}, cb)
	})
	if err != nil {
		return nil, mapError(err, req.ID)
	}
	return &backend.LookupInResponse{
		Cas:       uint64(res.Cas),
		Deleted:   res.Internal.IsDeleted,
		IsReplica: replicaIdx > 0,
		Fields:    fields(req.Specs, order, res.Ops, true),
	}, nil
}

func (c *Client) LookupIn(ctx context.Context, req *backend.LookupInRequest) (*backend.LookupInResponse, error) {
	if len(req.Specs) == 0 {
		return nil, errors.NewInvalidArgument("at least one lookup spec is required")
	}
	cl, err := c.beginCommon(ctx, req.Common)
	if err != nil {
		return nil, err
	}
	defer cl.exit()
	return c.lookupIn(ctx, cl, req, 0)
}

func (c *Client) LookupInAnyReplica(ctx context.Context, req *backend.LookupInRequest) (*backend.LookupInResponse, error) {
	all, err := c.LookupInAllReplicas(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, errors.NewKVError(errors.E_DOCUMENT_IRRETRIEVABLE, req.ID)
	}
	return all[0], nil
}

func (c *Client) LookupInAllReplicas(ctx context.Context, req *backend.LookupInRequest) ([]*backend.LookupInResponse, error) {
	if len(req.Specs) == 0 {
		return nil, errors.NewInvalidArgument("at least one lookup spec is required")
	}
	cl, err := c.beginCommon(ctx, req.Common)
	if err != nil {
		return nil, err
	}
	defer cl.exit()

	all, errs, err := fanOut(cl, func(idx int) (*backend.LookupInResponse, error) {
		return c.lookupIn(ctx, cl, req, idx)
	})
	if err != nil {
		return nil, err
	}
	rv := make([]*backend.LookupInResponse, 0, len(all))
	for i, r := range all {
		if errs[i] == nil {
			rv = append(rv, r)
		}
	}
	if len(rv) == 0 {
		if err := ctxError(ctx, false); err != nil {
			return nil, err
		}
	}
	return rv, nil
}

func (c *Client) MutateIn(ctx context.Context, req *backend.MutateInRequest) (*backend.MutateInResponse, error) {
	if len(req.Specs) == 0 {
		return nil, errors.NewInvalidArgument("at least one mutation spec is required")
	}
	if req.CreateAsDeleted && !req.AccessDeleted {
		return nil, errors.NewInvalidArgument("create as deleted requires access deleted")
	}
	ops, order, err := subdocOps(req.Specs, false)
	if err != nil {
		return nil, err
	}
	cl, err := c.beginCommon(ctx, req.Common)
	if err != nil {
		return nil, err
	}
	defer cl.exit()
	if err = checkDurability(cl, req.Durability); err != nil {
		return nil, err
	}

	res, err := wait(ctx, true, func(cb func(*gocbcore.MutateInResult, error)) (gocbcore.PendingOp, error) {
		return cl.agent.MutateIn(gocbcore.MutateInOptions{
			Key:             []byte(req.ID),
			Ops:             ops,
			Flags:           mutateFlags(req),
			Cas:             gocbcore.Cas(req.Cas),
			Expiry:          req.Expiry,
			PreserveExpiry:  req.PreserveExpiry,
			DurabilityLevel: durabilityLevel(req.Durability.Level),
			ScopeName:       req.ScopeName(),
			CollectionName:  req.CollectionName(),
			RetryStrategy:   cl.retry,
			Deadline:        cl.deadline,
		}, cb)
	})
	if err != nil {
		return nil, mutateInError(err, req, order)
	}
	if err = observe(ctx, cl, res.MutationToken, req.Durability); err != nil {
		return nil, err
	}
	rv := &backend.MutateInResponse{
		Cas:    uint64(res.Cas),
		Token:  cl.token(res.MutationToken),
		Fields: fields(req.Specs, order, res.Ops, false),
	}
	for _, s := range req.Specs {
		if s.Opcode == backend.OpRemoveDoc {
			rv.Deleted = true
		}
	}
	if req.CreateAsDeleted && req.StoreSemantics != backend.StoreReplace {
		rv.Deleted = true
	}
	return rv, nil
}

// mutateInError names the failing spec by the caller's index; the agent
// reports it by the reordered position.
func mutateInError(err error, req *backend.MutateInRequest, order []int) error {
	var sde *gocbcore.SubDocumentError
	if errors.As(err, &sde) && sde.Index >= 0 && sde.Index < len(order) {
		return mapPathError(sde.InnerError, req.Specs[order[sde.Index]].Path)
	}
	return mapError(err, req.ID)
}
