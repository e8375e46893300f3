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

type Get struct {
	Common
	WithExpiry  bool
	Transcoder  transcoder.Transcoder
	projections []string
}

func DefaultGet() *Get {
	return &Get{}
}

// Project adds paths to the projection; a path already present is not
// added twice.
func (o *Get) Project(paths ...string) *Get {
	for _, p := range paths {
		dup := false
		for _, e := range o.projections {
			if e == p {
				dup = true
				break
			}
		}
		if !dup {
			o.projections = append(o.projections, p)
		}
	}
	return o
}

func (o *Get) Projections() []string {
	rv := make([]string, len(o.projections))
	copy(rv, o.projections)
	return rv
}

// NeedProjectedGet reports whether the get must be served as a
// sub-document lookup rather than a whole document fetch.
func (o *Get) NeedProjectedGet() bool {
	return o.WithExpiry || len(o.projections) > 0
}

func (o *Get) TranscoderOrDefault() transcoder.Transcoder {
	return transcoderOr(o.Transcoder)
}

func (o *Get) Request(loc backend.Location, id string) *backend.GetRequest {
	return &backend.GetRequest{
		Common:      o.request(loc, id, DefaultKVTimeout),
		Projections: o.Projections(),
		WithExpiry:  o.WithExpiry,
	}
}

type GetAndLock struct {
	Common
	Transcoder transcoder.Transcoder
}

func DefaultGetAndLock() *GetAndLock {
	return &GetAndLock{}
}

func (o *GetAndLock) TranscoderOrDefault() transcoder.Transcoder {
	return transcoderOr(o.Transcoder)
}

func (o *GetAndLock) Request(loc backend.Location, id string, lockTime time.Duration) *backend.GetAndLockRequest {
	return &backend.GetAndLockRequest{
		Common:   o.request(loc, id, DefaultKVTimeout),
		LockTime: lockTime,
	}
}

type GetAndTouch struct {
	Common
	Transcoder transcoder.Transcoder
}

func DefaultGetAndTouch() *GetAndTouch {
	return &GetAndTouch{}
}

func (o *GetAndTouch) TranscoderOrDefault() transcoder.Transcoder {
	return transcoderOr(o.Transcoder)
}

func (o *GetAndTouch) Request(loc backend.Location, id string, expiry Expiry, now time.Time) (*backend.GetAndTouchRequest, error) {
	exp, err := expiry.Resolve(now)
	if err != nil {
		return nil, err
	}
	return &backend.GetAndTouchRequest{
		Common: o.request(loc, id, DefaultKVTimeout),
		Expiry: exp,
	}, nil
}

type GetAnyReplica struct {
	Common
	Transcoder transcoder.Transcoder
}

func DefaultGetAnyReplica() *GetAnyReplica {
	return &GetAnyReplica{}
}

func (o *GetAnyReplica) TranscoderOrDefault() transcoder.Transcoder {
	return transcoderOr(o.Transcoder)
}

func (o *GetAnyReplica) Request(loc backend.Location, id string) *backend.GetReplicaRequest {
	return &backend.GetReplicaRequest{Common: o.request(loc, id, DefaultKVTimeout)}
}

type GetAllReplicas struct {
	Common
	Transcoder transcoder.Transcoder
}

func DefaultGetAllReplicas() *GetAllReplicas {
	return &GetAllReplicas{}
}

func (o *GetAllReplicas) TranscoderOrDefault() transcoder.Transcoder {
	return transcoderOr(o.Transcoder)
}

func (o *GetAllReplicas) Request(loc backend.Location, id string) *backend.GetReplicaRequest {
	return &backend.GetReplicaRequest{Common: o.request(loc, id, DefaultKVTimeout)}
}

type Exists struct {
	Common
}

func DefaultExists() *Exists {
	return &Exists{}
}

func (o *Exists) Request(loc backend.Location, id string) *backend.ExistsRequest {
	return &backend.ExistsRequest{Common: o.request(loc, id, DefaultKVTimeout)}
}

type Touch struct {
	Common
}

func DefaultTouch() *Touch {
	return &Touch{}
}

func (o *Touch) Request(loc backend.Location, id string, expiry Expiry, now time.Time) (*backend.TouchRequest, error) {
	exp, err := expiry.Resolve(now)
	if err != nil {
		return nil, err
	}
	return &backend.TouchRequest{Common: o.request(loc, id, DefaultKVTimeout), Expiry: exp}, nil
}

type Unlock struct {
	Common
}

func DefaultUnlock() *Unlock {
	return &Unlock{}
}

func (o *Unlock) Request(loc backend.Location, id string, cas uint64) *backend.UnlockRequest {
	return &backend.UnlockRequest{Common: o.request(loc, id, DefaultKVTimeout), Cas: cas}
}

type Insert struct {
	Common
	Durability
	Expiry     Expiry
	Transcoder transcoder.Transcoder
}

func DefaultInsert() *Insert {
	return &Insert{}
}

func (o *Insert) TranscoderOrDefault() transcoder.Transcoder {
	return transcoderOr(o.Transcoder)
}

// Request encodes value with the option's transcoder.
func (o *Insert) Request(loc backend.Location, id string, value interface{}, now time.Time) (*backend.StoreRequest, error) {
	return storeRequest(o.request(loc, id, o.defaultTimeout()), o.TranscoderOrDefault(), value,
		o.Expiry, now, 0, false, o.durability())
}

type Upsert struct {
	Common
	Durability
	Expiry         Expiry
	PreserveExpiry bool
	Transcoder     transcoder.Transcoder
}

func DefaultUpsert() *Upsert {
	return &Upsert{}
}

func (o *Upsert) TranscoderOrDefault() transcoder.Transcoder {
	return transcoderOr(o.Transcoder)
}

func (o *Upsert) Request(loc backend.Location, id string, value interface{}, now time.Time) (*backend.StoreRequest, error) {
	return storeRequest(o.request(loc, id, o.defaultTimeout()), o.TranscoderOrDefault(), value,
		o.Expiry, now, 0, o.PreserveExpiry, o.durability())
}

type Replace struct {
	Common
	Durability
	Expiry         Expiry
	PreserveExpiry bool
	Cas            uint64
	Transcoder     transcoder.Transcoder
}

func DefaultReplace() *Replace {
	return &Replace{}
}

func (o *Replace) TranscoderOrDefault() transcoder.Transcoder {
	return transcoderOr(o.Transcoder)
}

func (o *Replace) Request(loc backend.Location, id string, value interface{}, now time.Time) (*backend.StoreRequest, error) {
	return storeRequest(o.request(loc, id, o.defaultTimeout()), o.TranscoderOrDefault(), value,
		o.Expiry, now, o.Cas, o.PreserveExpiry, o.durability())
}

func storeRequest(c backend.Common, tc transcoder.Transcoder, value interface{}, expiry Expiry, now time.Time,
	cas uint64, preserve bool, d backend.Durability) (*backend.StoreRequest, error) {
	exp, err := expiry.Resolve(now)
	if err != nil {
		return nil, err
	}
	b, flags, err := tc.Encode(value)
	if err != nil {
		return nil, err
	}
	return &backend.StoreRequest{
		Common:         c,
		Value:          b,
		Flags:          flags,
		Expiry:         exp,
		Cas:            cas,
		PreserveExpiry: preserve,
		Durability:     d,
	}, nil
}

type Remove struct {
	Common
	Durability
	Cas uint64
}

func DefaultRemove() *Remove {
	return &Remove{}
}

func (o *Remove) Request(loc backend.Location, id string) *backend.RemoveRequest {
	return &backend.RemoveRequest{
		Common:     o.request(loc, id, o.defaultTimeout()),
		Cas:        o.Cas,
		Durability: o.durability(),
	}
}
