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
	"math"
	"strconv"
	"time"

	"github.com/couchbase/kvsdk/backend"
	"github.com/couchbase/kvsdk/errors"
)

func (b *Backend) getResponse(id string, d *document, now time.Time, withExpiry bool) *backend.GetResponse {
	rv := &backend.GetResponse{
		ID:      id,
		Cas:     d.visibleCas(now),
		Flags:   d.flags,
		Value:   d.value(),
		Deleted: d.deleted,
	}
	if withExpiry {
		exp := d.expiry
		rv.Expiry = &exp
	}
	return rv
}

func (b *Backend) Get(ctx context.Context, req *backend.GetRequest) (*backend.GetResponse, error) {
	exit, err := b.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer exit()

	var rv *backend.GetResponse
	err = b.read(req.Location, req.ID, func(d *document, now time.Time) error {
		if !live(d, now) {
			return errors.NewDocumentNotFound(req.ID)
		}
		rv = b.getResponse(req.ID, d, now, req.WithExpiry)
		return nil
	})
	return rv, err
}

func (b *Backend) GetAndLock(ctx context.Context, req *backend.GetAndLockRequest) (*backend.GetResponse, error) {
	exit, err := b.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer exit()

	lockTime := req.LockTime
	if lockTime <= 0 || lockTime > _MAX_LOCK_TIME {
		lockTime = _DEFAULT_LOCK_TIME
	}
	var rv *backend.GetResponse
	err = b.modify(req.Location, req.ID, func(d *document, now time.Time) error {
		if !live(d, now) {
			return errors.NewDocumentNotFound(req.ID)
		}
		if d.locked(now) {
			return errors.NewKVError(errors.E_DOCUMENT_LOCKED, req.ID)
		}
		d.lockCas = b.nextCas()
		d.lockedUntil = now.Add(lockTime)
		rv = b.getResponse(req.ID, d, now, false)
		rv.Cas = d.lockCas
		return nil
	})
	return rv, err
}

func (b *Backend) GetAndTouch(ctx context.Context, req *backend.GetAndTouchRequest) (*backend.GetResponse, error) {
	exit, err := b.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer exit()

	d, _, err := b.mutate(req.Location, req.ID, func(cur *document, st *stamp) (*document, error) {
		if !live(cur, st.now) {
			return nil, errors.NewDocumentNotFound(req.ID)
		}
		if err := checkLock(cur, req.ID, 0, st.now); err != nil {
			return nil, err
		}
		n := cur.clone()
		n.expiry = b.absoluteExpiry(req.Expiry)
		return n, nil
	})
	if err != nil {
		return nil, err
	}
	return b.getResponse(req.ID, d, b.now(), false), nil
}

func (b *Backend) GetAnyReplica(ctx context.Context, req *backend.GetReplicaRequest) (*backend.GetResponse, error) {
	all, err := b.GetAllReplicas(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, errors.NewKVError(errors.E_DOCUMENT_IRRETRIEVABLE, req.ID)
	}
	return all[0], nil
}

// GetAllReplicas answers the active copy first, then one response per
// replica.
func (b *Backend) GetAllReplicas(ctx context.Context, req *backend.GetReplicaRequest) ([]*backend.GetResponse, error) {
	exit, err := b.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer exit()

	var rv []*backend.GetResponse
	err = b.read(req.Location, req.ID, func(d *document, now time.Time) error {
		if !live(d, now) {
			return nil
		}
		for i := 0; i <= b.opts.Replicas; i++ {
			r := b.getResponse(req.ID, d, now, false)
			r.Cas = d.cas
			r.IsReplica = i > 0
			rv = append(rv, r)
		}
		return nil
	})
	return rv, err
}

func (b *Backend) Exists(ctx context.Context, req *backend.ExistsRequest) (*backend.ExistsResponse, error) {
	exit, err := b.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer exit()

	rv := &backend.ExistsResponse{}
	err = b.read(req.Location, req.ID, func(d *document, now time.Time) error {
		if d == nil || d.expired(now) {
			return nil
		}
		rv.Exists = true
		rv.Deleted = d.deleted
		rv.Cas = d.cas
		rv.Flags = d.flags
		rv.Expiry = d.expiry
		rv.SequenceNumber = d.seqno
		rv.Datatype = d.datatype()
		return nil
	})
	return rv, err
}

func (b *Backend) Touch(ctx context.Context, req *backend.TouchRequest) (*backend.MutationResponse, error) {
	exit, err := b.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer exit()

	d, tok, err := b.mutate(req.Location, req.ID, func(cur *document, st *stamp) (*document, error) {
		if !live(cur, st.now) {
			return nil, errors.NewDocumentNotFound(req.ID)
		}
		if err := checkLock(cur, req.ID, 0, st.now); err != nil {
			return nil, err
		}
		n := cur.clone()
		n.expiry = b.absoluteExpiry(req.Expiry)
		return n, nil
	})
	if err != nil {
		return nil, err
	}
	return &backend.MutationResponse{ID: req.ID, Cas: d.cas, Token: tok}, nil
}

func (b *Backend) Unlock(ctx context.Context, req *backend.UnlockRequest) error {
	exit, err := b.enter(ctx)
	if err != nil {
		return err
	}
	defer exit()

	return b.modify(req.Location, req.ID, func(d *document, now time.Time) error {
		if !live(d, now) {
			return errors.NewDocumentNotFound(req.ID)
		}
		if !d.locked(now) {
			return errors.NewKVError(errors.E_DOCUMENT_NOT_LOCKED, req.ID)
		}
		if req.Cas != d.lockCas {
			return errors.NewCasMismatch(req.ID)
		}
		d.lockCas = 0
		d.lockedUntil = time.Time{}
		return nil
	})
}

type storeMode int

const (
	_INSERT storeMode = iota
	_UPSERT
	_REPLACE
)

func (b *Backend) store(ctx context.Context, req *backend.StoreRequest, mode storeMode) (*backend.MutationResponse, error) {
	exit, err := b.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer exit()

	if len(req.Value) > b.opts.MaxValueSize {
		return nil, errors.NewKVError(errors.E_VALUE_TOO_LARGE, req.ID)
	}
	if err := b.checkDurability(req.Durability); err != nil {
		return nil, err
	}
	d, tok, err := b.mutate(req.Location, req.ID, func(cur *document, st *stamp) (*document, error) {
		exists := live(cur, st.now)
		switch mode {
		case _INSERT:
			if exists {
				return nil, errors.NewDocumentExists(req.ID)
			}
		case _REPLACE:
			if !exists {
				return nil, errors.NewDocumentNotFound(req.ID)
			}
			if err := checkCas(cur, req.ID, req.Cas, st.now); err != nil {
				return nil, err
			}
		case _UPSERT:
			if exists {
				if err := checkLock(cur, req.ID, 0, st.now); err != nil {
					return nil, err
				}
			}
		}
		n := &document{flags: req.Flags, expiry: b.absoluteExpiry(req.Expiry)}
		if exists && req.PreserveExpiry {
			n.expiry = cur.expiry
		}
		n.setValue(req.Value, b.opts.CompressionThreshold)
		return n, nil
	})
	if err != nil {
		return nil, err
	}
	return &backend.MutationResponse{ID: req.ID, Cas: d.cas, Token: tok}, nil
}

func (b *Backend) Insert(ctx context.Context, req *backend.StoreRequest) (*backend.MutationResponse, error) {
	return b.store(ctx, req, _INSERT)
}

func (b *Backend) Upsert(ctx context.Context, req *backend.StoreRequest) (*backend.MutationResponse, error) {
	return b.store(ctx, req, _UPSERT)
}

func (b *Backend) Replace(ctx context.Context, req *backend.StoreRequest) (*backend.MutationResponse, error) {
	return b.store(ctx, req, _REPLACE)
}

// Remove leaves a tombstone carrying only the system attributes.
func (b *Backend) Remove(ctx context.Context, req *backend.RemoveRequest) (*backend.MutationResponse, error) {
	exit, err := b.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer exit()

	if err := b.checkDurability(req.Durability); err != nil {
		return nil, err
	}
	d, tok, err := b.mutate(req.Location, req.ID, func(cur *document, st *stamp) (*document, error) {
		if !live(cur, st.now) {
			return nil, errors.NewDocumentNotFound(req.ID)
		}
		if err := checkCas(cur, req.ID, req.Cas, st.now); err != nil {
			return nil, err
		}
		return &document{deleted: true, xattrs: systemXattrs(cur.xattrs)}, nil
	})
	if err != nil {
		return nil, err
	}
	return &backend.MutationResponse{ID: req.ID, Cas: d.cas, Token: tok}, nil
}

func (b *Backend) adjoin(ctx context.Context, req *backend.AdjoinRequest, prepend bool) (*backend.MutationResponse, error) {
	exit, err := b.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer exit()

	if err := b.checkDurability(req.Durability); err != nil {
		return nil, err
	}
	d, tok, err := b.mutate(req.Location, req.ID, func(cur *document, st *stamp) (*document, error) {
		if !live(cur, st.now) {
			return nil, errors.NewDocumentNotFound(req.ID)
		}
		if err := checkCas(cur, req.ID, req.Cas, st.now); err != nil {
			return nil, err
		}
		old := cur.value()
		if len(old)+len(req.Value) > b.opts.MaxValueSize {
			return nil, errors.NewKVError(errors.E_VALUE_TOO_LARGE, req.ID)
		}
		v := make([]byte, 0, len(old)+len(req.Value))
		if prepend {
			v = append(append(v, req.Value...), old...)
		} else {
			v = append(append(v, old...), req.Value...)
		}
		n := cur.clone()
		n.setValue(v, b.opts.CompressionThreshold)
		return n, nil
	})
	if err != nil {
		return nil, err
	}
	return &backend.MutationResponse{ID: req.ID, Cas: d.cas, Token: tok}, nil
}

func (b *Backend) Append(ctx context.Context, req *backend.AdjoinRequest) (*backend.MutationResponse, error) {
	return b.adjoin(ctx, req, false)
}

func (b *Backend) Prepend(ctx context.Context, req *backend.AdjoinRequest) (*backend.MutationResponse, error) {
	return b.adjoin(ctx, req, true)
}

// counter follows memcached: a missing document is created with the
// initial value, increments wrap and decrements stop at zero.
func (b *Backend) counter(ctx context.Context, req *backend.CounterRequest, decrement bool) (*backend.CounterResponse, error) {
	exit, err := b.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer exit()

	if err := b.checkDurability(req.Durability); err != nil {
		return nil, err
	}
	var value uint64
	d, tok, err := b.mutate(req.Location, req.ID, func(cur *document, st *stamp) (*document, error) {
		if !live(cur, st.now) {
			if req.Initial == nil {
				return nil, errors.NewDocumentNotFound(req.ID)
			}
			value = *req.Initial
			n := &document{expiry: b.absoluteExpiry(req.Expiry)}
			n.setValue([]byte(strconv.FormatUint(value, 10)), b.opts.CompressionThreshold)
			return n, nil
		}
		if err := checkLock(cur, req.ID, 0, st.now); err != nil {
			return nil, err
		}
		old, err := strconv.ParseUint(string(cur.value()), 10, 64)
		if err != nil {
			return nil, errors.NewKVError(errors.E_DELTA_INVALID, req.ID)
		}
		switch {
		case !decrement:
			value = old + req.Delta
		case req.Delta > old:
			value = 0
		default:
			value = old - req.Delta
		}
		n := cur.clone()
		n.setValue([]byte(strconv.FormatUint(value, 10)), b.opts.CompressionThreshold)
		return n, nil
	})
	if err != nil {
		return nil, err
	}
	return &backend.CounterResponse{
		MutationResponse: backend.MutationResponse{ID: req.ID, Cas: d.cas, Token: tok},
		Value:            value,
	}, nil
}

func (b *Backend) Increment(ctx context.Context, req *backend.CounterRequest) (*backend.CounterResponse, error) {
	return b.counter(ctx, req, false)
}

func (b *Backend) Decrement(ctx context.Context, req *backend.CounterRequest) (*backend.CounterResponse, error) {
	return b.counter(ctx, req, true)
}

// overflows reports whether a+b does not fit an int64.
func overflows(a, b int64) bool {
	return (b > 0 && a > math.MaxInt64-b) || (b < 0 && a < math.MinInt64-b)
}
