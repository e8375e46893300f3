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
	"github.com/couchbase/kvsdk/errors"
	"github.com/couchbase/kvsdk/subdoc"
	"github.com/couchbase/kvsdk/transcoder"
)

// MaxSubdocSpecs is the most specs a single lookup or mutation may carry.
const MaxSubdocSpecs = 16

type LookupIn struct {
	Common
	AccessDeleted bool
	Transcoder    transcoder.Transcoder
}

func DefaultLookupIn() *LookupIn {
	return &LookupIn{}
}

func (o *LookupIn) TranscoderOrDefault() transcoder.Transcoder {
	return transcoderOr(o.Transcoder)
}

func (o *LookupIn) Request(loc backend.Location, id string, specs []*subdoc.LookupInSpec) (*backend.LookupInRequest, error) {
	if err := checkSpecs(len(specs)); err != nil {
		return nil, err
	}
	return &backend.LookupInRequest{
		Common:        o.request(loc, id, DefaultKVTimeout),
		Specs:         subdoc.LookupCommands(specs),
		AccessDeleted: o.AccessDeleted,
	}, nil
}

type LookupInAnyReplica struct {
	Common
	Transcoder transcoder.Transcoder
}

func DefaultLookupInAnyReplica() *LookupInAnyReplica {
	return &LookupInAnyReplica{}
}

func (o *LookupInAnyReplica) TranscoderOrDefault() transcoder.Transcoder {
	return transcoderOr(o.Transcoder)
}

func (o *LookupInAnyReplica) Request(loc backend.Location, id string, specs []*subdoc.LookupInSpec) (*backend.LookupInRequest, error) {
	if err := checkSpecs(len(specs)); err != nil {
		return nil, err
	}
	return &backend.LookupInRequest{
		Common: o.request(loc, id, DefaultKVTimeout),
		Specs:  subdoc.LookupCommands(specs),
	}, nil
}

type LookupInAllReplicas struct {
	Common
	Transcoder transcoder.Transcoder
}

func DefaultLookupInAllReplicas() *LookupInAllReplicas {
	return &LookupInAllReplicas{}
}

func (o *LookupInAllReplicas) TranscoderOrDefault() transcoder.Transcoder {
	return transcoderOr(o.Transcoder)
}

func (o *LookupInAllReplicas) Request(loc backend.Location, id string, specs []*subdoc.LookupInSpec) (*backend.LookupInRequest, error) {
	if err := checkSpecs(len(specs)); err != nil {
		return nil, err
	}
	return &backend.LookupInRequest{
		Common: o.request(loc, id, DefaultKVTimeout),
		Specs:  subdoc.LookupCommands(specs),
	}, nil
}

type MutateIn struct {
	Common
	Durability
	Expiry          Expiry
	StoreSemantics  backend.StoreSemantics
	AccessDeleted   bool
	CreateAsDeleted bool
	PreserveExpiry  bool
	Cas             uint64
	Transcoder      transcoder.Transcoder
}

func DefaultMutateIn() *MutateIn {
	return &MutateIn{}
}

func (o *MutateIn) TranscoderOrDefault() transcoder.Transcoder {
	return transcoderOr(o.Transcoder)
}

func (o *MutateIn) Request(loc backend.Location, id string, specs []*subdoc.MutateInSpec, now time.Time) (*backend.MutateInRequest, error) {
	if err := checkSpecs(len(specs)); err != nil {
		return nil, err
	}
	if o.Cas != 0 && o.StoreSemantics != backend.StoreReplace {
		return nil, errors.NewInvalidArgument("cas can only be used with replace store semantics")
	}
	exp, err := o.Expiry.Resolve(now)
	if err != nil {
		return nil, err
	}
	return &backend.MutateInRequest{
		Common:          o.request(loc, id, o.defaultTimeout()),
		Specs:           subdoc.MutateCommands(specs),
		StoreSemantics:  o.StoreSemantics,
		AccessDeleted:   o.AccessDeleted,
		CreateAsDeleted: o.CreateAsDeleted,
		Cas:             o.Cas,
		Expiry:          exp,
		PreserveExpiry:  o.PreserveExpiry,
		Durability:      o.durability(),
	}, nil
}

func checkSpecs(n int) error {
	if n == 0 {
		return errors.NewInvalidArgument("at least one sub-document spec is required")
	}
	if n > MaxSubdocSpecs {
		return errors.NewInvalidArgument("at most %d sub-document specs are allowed, got %d", MaxSubdocSpecs, n)
	}
	return nil
}
