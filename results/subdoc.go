//  Copyright 2026-Present Couchbase, Inc.
//
//  Use of this software is governed by the Business Source License included
//  in the file licenses/BSL-Couchbase.txt.  As of the Change Date specified
//  in that file, in accordance with the Business Source License, use of this
//  software will be governed by the Apache License, Version 2.0, included in
//  the file licenses/APL2.txt.

package results

import (
	"github.com/couchbase/kvsdk/backend"
	"github.com/couchbase/kvsdk/errors"
	"github.com/couchbase/kvsdk/mutation"
	"github.com/couchbase/kvsdk/transcoder"
)

// fields gives index and path addressing over sub-document fields.
// Path addressing resolves to an index first so both modes agree.
type fields struct {
	fields     []backend.SubdocField
	transcoder transcoder.Transcoder
}

func newFields(f []backend.SubdocField, tc transcoder.Transcoder) fields {
	if tc == nil {
		tc = transcoder.Default
	}
	return fields{fields: f, transcoder: tc}
}

func (f *fields) field(index int) (*backend.SubdocField, error) {
	if index < 0 || index >= len(f.fields) {
		return nil, errors.NewInvalidArgument("no sub-document field at index %d", index)
	}
	return &f.fields[index], nil
}

// IndexOf returns the index of the first field with path.
func (f *fields) IndexOf(path string) (int, error) {
	for i := range f.fields {
		if f.fields[i].Path == path {
			return i, nil
		}
	}
	return -1, errors.NewInvalidArgument("no sub-document field with path %q", path)
}

// ContentAt decodes the field at index, returning its error if it
// failed. Sub-document values are always JSON.
func (f *fields) ContentAt(index int, valuePtr interface{}) error {
	fld, err := f.field(index)
	if err != nil {
		return err
	}
	if fld.Err != nil {
		return fld.Err
	}
	return f.transcoder.Decode(fld.Value, transcoder.EncodeFlags(transcoder.Flags{Format: transcoder.FormatJSON}), valuePtr)
}

func (f *fields) Content(path string, valuePtr interface{}) error {
	i, err := f.IndexOf(path)
	if err != nil {
		return err
	}
	return f.ContentAt(i, valuePtr)
}

// ExistsAt is false without error when the only problem is a missing
// path; any other field error is returned.
func (f *fields) ExistsAt(index int) (bool, error) {
	fld, err := f.field(index)
	if err != nil {
		return false, err
	}
	if fld.Err != nil && !errors.Is(fld.Err, errors.ErrPathNotFound) {
		return false, fld.Err
	}
	return fld.Exists, nil
}

func (f *fields) Exists(path string) (bool, error) {
	i, err := f.IndexOf(path)
	if err != nil {
		return false, err
	}
	return f.ExistsAt(i)
}

// ErrorAt is the stored error of the field at index.
func (f *fields) ErrorAt(index int) error {
	fld, err := f.field(index)
	if err != nil {
		return err
	}
	return fld.Err
}

func (f *fields) Len() int { return len(f.fields) }

type LookupInResult struct {
	fields
	ID  string
	Err error

	cas     uint64
	deleted bool
}

func NewLookupInResult(resp *backend.LookupInResponse, tc transcoder.Transcoder) *LookupInResult {
	return &LookupInResult{fields: newFields(resp.Fields, tc), cas: resp.Cas, deleted: resp.Deleted}
}

func (r *LookupInResult) Success() bool { return r.Err == nil }
func (r *LookupInResult) Cas() uint64   { return r.cas }
func (r *LookupInResult) Deleted() bool { return r.deleted }

type LookupInReplicaResult struct {
	LookupInResult
	isReplica bool
}

func NewLookupInReplicaResult(resp *backend.LookupInResponse, tc transcoder.Transcoder) *LookupInReplicaResult {
	return &LookupInReplicaResult{LookupInResult: *NewLookupInResult(resp, tc), isReplica: resp.IsReplica}
}

func (r *LookupInReplicaResult) IsReplica() bool { return r.isReplica }

type MutateInResult struct {
	fields
	cas     uint64
	token   *mutation.Token
	deleted bool
}

func NewMutateInResult(resp *backend.MutateInResponse, tc transcoder.Transcoder) *MutateInResult {
	return &MutateInResult{fields: newFields(resp.Fields, tc), cas: resp.Cas, token: resp.Token, deleted: resp.Deleted}
}

func (r *MutateInResult) Cas() uint64                    { return r.cas }
func (r *MutateInResult) MutationToken() *mutation.Token { return r.token }

// Deleted reports that the mutation left the document a tombstone.
func (r *MutateInResult) Deleted() bool { return r.deleted }
