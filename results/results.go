//  Copyright 2026-Present Couchbase, Inc.
//
//  Use of this software is governed by the Business Source License included
//  in the file licenses/BSL-Couchbase.txt.  As of the Change Date specified
//  in that file, in accordance with the Business Source License, use of this
//  software will be governed by the Apache License, Version 2.0, included in
//  the file licenses/APL2.txt.

/*
Package results holds the values returned by collection operations.

Results of multi-document operations carry the document ID and a
per-item Err; single document operations return an error instead and
leave both unset.
*/
package results

import (
	"time"

	"github.com/couchbase/kvsdk/backend"
	"github.com/couchbase/kvsdk/mutation"
	"github.com/couchbase/kvsdk/transcoder"
)

type GetResult struct {
	ID  string
	Err error

	cas        uint64
	flags      uint32
	value      []byte
	expiry     *uint32
	deleted    bool
	transcoder transcoder.Transcoder
}

// NewGetResult wraps a backend response; tc decodes Content.
func NewGetResult(resp *backend.GetResponse, tc transcoder.Transcoder) *GetResult {
	if tc == nil {
		tc = transcoder.Default
	}
	return &GetResult{
		ID:         resp.ID,
		Err:        resp.Err,
		cas:        resp.Cas,
		flags:      resp.Flags,
		value:      resp.Value,
		expiry:     resp.Expiry,
		deleted:    resp.Deleted,
		transcoder: tc,
	}
}

func (r *GetResult) Success() bool { return r.Err == nil }
func (r *GetResult) Cas() uint64   { return r.cas }
func (r *GetResult) Flags() uint32 { return r.flags }
func (r *GetResult) Deleted() bool { return r.deleted }

// Raw returns the encoded value as stored.
func (r *GetResult) Raw() []byte { return r.value }

// Content decodes the value with the operation's transcoder.
func (r *GetResult) Content(valuePtr interface{}) error {
	if r.Err != nil {
		return r.Err
	}
	return r.transcoder.Decode(r.value, r.flags, valuePtr)
}

func (r *GetResult) ContentAs(tc transcoder.Transcoder, valuePtr interface{}) error {
	if r.Err != nil {
		return r.Err
	}
	return tc.Decode(r.value, r.flags, valuePtr)
}

// Expiry is the raw server expiry; ok is false unless the get asked
// for it.
func (r *GetResult) Expiry() (uint32, bool) {
	if r.expiry == nil {
		return 0, false
	}
	return *r.expiry, true
}

// ExpiryTime is the zero time when the expiry is unknown or the document
// never expires.
func (r *GetResult) ExpiryTime() time.Time {
	if r.expiry == nil {
		return time.Time{}
	}
	return ExpiryTime(*r.expiry)
}

// ExpiryTime converts an absolute server expiry to a time.
func ExpiryTime(expiry uint32) time.Time {
	if expiry == 0 {
		return time.Time{}
	}
	return time.Unix(int64(expiry), 0)
}

type GetReplicaResult struct {
	GetResult
	isReplica bool
}

func NewGetReplicaResult(resp *backend.GetResponse, tc transcoder.Transcoder) *GetReplicaResult {
	return &GetReplicaResult{GetResult: *NewGetResult(resp, tc), isReplica: resp.IsReplica}
}

func (r *GetReplicaResult) IsReplica() bool { return r.isReplica }

type ExistsResult struct {
	exists         bool
	deleted        bool
	cas            uint64
	flags          uint32
	expiry         uint32
	sequenceNumber uint64
	datatype       uint8
}

func NewExistsResult(resp *backend.ExistsResponse) *ExistsResult {
	return &ExistsResult{
		exists:         resp.Exists,
		deleted:        resp.Deleted,
		cas:            resp.Cas,
		flags:          resp.Flags,
		expiry:         resp.Expiry,
		sequenceNumber: resp.SequenceNumber,
		datatype:       resp.Datatype,
	}
}

// Exists is false for a missing document and for a tombstone.
func (r *ExistsResult) Exists() bool           { return r.exists && !r.deleted }
func (r *ExistsResult) Deleted() bool          { return r.deleted }
func (r *ExistsResult) Cas() uint64            { return r.cas }
func (r *ExistsResult) Flags() uint32          { return r.flags }
func (r *ExistsResult) Expiry() uint32         { return r.expiry }
func (r *ExistsResult) ExpiryTime() time.Time  { return ExpiryTime(r.expiry) }
func (r *ExistsResult) SequenceNumber() uint64 { return r.sequenceNumber }
func (r *ExistsResult) Datatype() uint8        { return r.datatype }

type MutationResult struct {
	ID  string
	Err error

	cas   uint64
	token *mutation.Token
}

func NewMutationResult(resp *backend.MutationResponse) *MutationResult {
	return &MutationResult{ID: resp.ID, Err: resp.Err, cas: resp.Cas, token: resp.Token}
}

func (r *MutationResult) Success() bool { return r.Err == nil }
func (r *MutationResult) Cas() uint64   { return r.cas }

// MutationToken is nil when the server did not return one.
func (r *MutationResult) MutationToken() *mutation.Token { return r.token }

type CounterResult struct {
	MutationResult
	content uint64
}

func NewCounterResult(resp *backend.CounterResponse) *CounterResult {
	return &CounterResult{MutationResult: *NewMutationResult(&resp.MutationResponse), content: resp.Value}
}

// Content is the counter value after the operation.
func (r *CounterResult) Content() uint64 { return r.content }
