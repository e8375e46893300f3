//  Copyright 2026-Present Couchbase, Inc.
//
//  Use of this software is governed by the Business Source License included
//  in the file licenses/BSL-Couchbase.txt.  As of the Change Date specified
//  in that file, in accordance with the Business Source License, use of this
//  software will be governed by the Apache License, Version 2.0, included in
//  the file licenses/APL2.txt.

package backend

import (
	"github.com/couchbase/kvsdk/mutation"
)

// GetResponse.ID and Err are only filled in by multi operations.
type GetResponse struct {
	ID        string
	Err       error
	Cas       uint64
	Flags     uint32
	Value     []byte
	Expiry    *uint32
	IsReplica bool
	Deleted   bool
}

type ExistsResponse struct {
	Exists         bool
	Deleted        bool
	Cas            uint64
	Flags          uint32
	Expiry         uint32
	SequenceNumber uint64
	Datatype       uint8
}

type MutationResponse struct {
	ID    string
	Err   error
	Cas   uint64
	Token *mutation.Token
}

type CounterResponse struct {
	MutationResponse
	Value uint64
}

// SubdocField is the outcome of one spec, at the spec's index.
type SubdocField struct {
	Index  int
	Path   string
	Value  []byte
	Exists bool
	Err    error
}

type LookupInResponse struct {
	Cas       uint64
	Deleted   bool
	IsReplica bool
	Fields    []SubdocField
}

type MutateInResponse struct {
	Cas     uint64
	Token   *mutation.Token
	Deleted bool
	Fields  []SubdocField
}

// ScanItem carries only the key when IDOnly is set.
type ScanItem struct {
	ID     string
	IDOnly bool
	Cas    uint64
	Expiry uint32
	Value  []byte
	Flags  uint32
}

type QueryResponse struct {
	Rows [][]byte
	Meta []byte
}
