//  Copyright 2026-Present Couchbase, Inc.
//
//  Use of this software is governed by the Business Source License included
//  in the file licenses/BSL-Couchbase.txt.  As of the Change Date specified
//  in that file, in accordance with the Business Source License, use of this
//  software will be governed by the Apache License, Version 2.0, included in
//  the file licenses/APL2.txt.

package backend

import (
	"time"

	"github.com/couchbase/kvsdk/mutation"
)

type GetRequest struct {
	Common
	Projections []string
	WithExpiry  bool
}

type GetAndLockRequest struct {
	Common
	LockTime time.Duration
}

type GetAndTouchRequest struct {
	Common
	Expiry uint32
}

type GetReplicaRequest struct {
	Common
}

type ExistsRequest struct {
	Common
}

type TouchRequest struct {
	Common
	Expiry uint32
}

type UnlockRequest struct {
	Common
	Cas uint64
}

// StoreRequest serves insert, upsert and replace. Expiry is the resolved
// server integer; Cas is only honoured by replace.
type StoreRequest struct {
	Common
	Value          []byte
	Flags          uint32
	Expiry         uint32
	Cas            uint64
	PreserveExpiry bool
	Durability     Durability
}

type RemoveRequest struct {
	Common
	Cas        uint64
	Durability Durability
}

type AdjoinRequest struct {
	Common
	Value      []byte
	Cas        uint64
	Durability Durability
}

// CounterRequest has an unsigned delta; the direction is the method.
// A nil Initial fails the operation when the document is missing.
type CounterRequest struct {
	Common
	Delta      uint64
	Initial    *uint64
	Expiry     uint32
	Durability Durability
}

type LookupInRequest struct {
	Common
	Specs         []SubdocCommand
	AccessDeleted bool
}

type MutateInRequest struct {
	Common
	Specs           []SubdocCommand
	StoreSemantics  StoreSemantics
	AccessDeleted   bool
	CreateAsDeleted bool
	Cas             uint64
	Expiry          uint32
	PreserveExpiry  bool
	Durability      Durability
}

// Multi requests share one set of options across every entry.
type MultiCommon struct {
	Location
	Timeout       time.Duration
	RetryStrategy RetryStrategy
	ParentSpan    SpanContext
}

type GetMultiRequest struct {
	MultiCommon
	IDs []string
}

type StoreEntry struct {
	ID    string
	Value []byte
	Flags uint32
}

type UpsertMultiRequest struct {
	MultiCommon
	Entries        []StoreEntry
	Expiry         uint32
	PreserveExpiry bool
	Durability     Durability
}

type RemoveEntry struct {
	ID  string
	Cas uint64
}

type RemoveMultiRequest struct {
	MultiCommon
	Entries    []RemoveEntry
	Durability Durability
}

type ScanRequest struct {
	Location
	Type           ScanType
	IDsOnly        bool
	MutationState  []mutation.Token
	BatchByteLimit *uint32
	BatchItemLimit *uint32
	Concurrency    uint16
	Timeout        time.Duration
	ParentSpan     SpanContext
}

// QueryRequest carries the complete JSON payload for the query service.
type QueryRequest struct {
	Statement     string
	Payload       []byte
	ReadOnly      bool
	Timeout       time.Duration
	RetryStrategy RetryStrategy
	ParentSpan    SpanContext
}
