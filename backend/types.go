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
)

const (
	DefaultScope      = "_default"
	DefaultCollection = "_default"
)

// Location addresses a collection. Empty scope and collection names
// mean the default ones.
type Location struct {
	Bucket     string
	Scope      string
	Collection string
}

func (l Location) ScopeName() string {
	if l.Scope == "" {
		return DefaultScope
	}
	return l.Scope
}

func (l Location) CollectionName() string {
	if l.Collection == "" {
		return DefaultCollection
	}
	return l.Collection
}

func (l Location) IsDefault() bool {
	return l.ScopeName() == DefaultScope && l.CollectionName() == DefaultCollection
}

func (l Location) String() string {
	return l.Bucket + "." + l.ScopeName() + "." + l.CollectionName()
}

type RetryStrategy int

const (
	RetryBestEffort RetryStrategy = iota
	RetryFailFast
)

func (r RetryStrategy) String() string {
	if r == RetryFailFast {
		return "fail_fast"
	}
	return "best_effort"
}

// SpanContext is an opaque parent tracing span passed through to the
// transport.
type SpanContext interface{}

// Common is carried by every single document request.
type Common struct {
	Location
	ID            string
	Timeout       time.Duration
	RetryStrategy RetryStrategy
	ParentSpan    SpanContext
}

type DurabilityLevel uint8

const (
	DurabilityNone DurabilityLevel = iota
	DurabilityMajority
	DurabilityMajorityAndPersistToActive
	DurabilityPersistToMajority
)

var _DURABILITY_NAMES = []string{
	DurabilityNone:                       "none",
	DurabilityMajority:                   "majority",
	DurabilityMajorityAndPersistToActive: "majority_and_persist_to_active",
	DurabilityPersistToMajority:          "persist_to_majority",
}

func (l DurabilityLevel) String() string {
	if int(l) < len(_DURABILITY_NAMES) {
		return _DURABILITY_NAMES[l]
	}
	return "unknown"
}

// PersistTo and ReplicateTo are the legacy observe based durability
// requirements.
type PersistTo uint8

const (
	PersistToNone PersistTo = iota
	PersistToActive
	PersistToOne
	PersistToTwo
	PersistToThree
	PersistToFour
)

type ReplicateTo uint8

const (
	ReplicateToNone ReplicateTo = iota
	ReplicateToOne
	ReplicateToTwo
	ReplicateToThree
)

type Durability struct {
	Level       DurabilityLevel
	PersistTo   PersistTo
	ReplicateTo ReplicateTo
}

// Legacy reports whether the observe based counters are in use.
func (d Durability) Legacy() bool {
	return d.PersistTo != PersistToNone || d.ReplicateTo != ReplicateToNone
}

func (d Durability) IsNone() bool {
	return d.Level == DurabilityNone && !d.Legacy()
}

// StoreSemantics controls whether a sub-document mutation may create the
// document.
type StoreSemantics uint8

const (
	StoreReplace StoreSemantics = iota
	StoreUpsert
	StoreInsert
)

func (s StoreSemantics) String() string {
	switch s {
	case StoreUpsert:
		return "upsert"
	case StoreInsert:
		return "insert"
	}
	return "replace"
}

// Opcode names a sub-document operation.
type Opcode string

const (
	OpGet            Opcode = "get"
	OpGetDoc         Opcode = "get_doc"
	OpExists         Opcode = "exists"
	OpCount          Opcode = "count"
	OpDictAdd        Opcode = "dict_add"
	OpDictUpsert     Opcode = "dict_upsert"
	OpRemove         Opcode = "remove"
	OpRemoveDoc      Opcode = "remove_doc"
	OpReplace        Opcode = "replace"
	OpSetDoc         Opcode = "set_doc"
	OpArrayPushLast  Opcode = "array_push_last"
	OpArrayPushFirst Opcode = "array_push_first"
	OpArrayInsert    Opcode = "array_insert"
	OpArrayAddUnique Opcode = "array_add_unique"
	OpCounter        Opcode = "counter"
)

func (o Opcode) IsLookup() bool {
	switch o {
	case OpGet, OpGetDoc, OpExists, OpCount:
		return true
	}
	return false
}

// SubdocCommand is the export form of one lookup or mutate spec.
// Lookups leave Param, ExpandMacros and CreatePath unset.
type SubdocCommand struct {
	Opcode       Opcode
	Path         string
	Param        []byte
	Xattr        bool
	ExpandMacros bool
	CreatePath   bool
}

type ScanKind uint8

const (
	ScanRange ScanKind = iota
	ScanPrefix
	ScanSampling
)

type ScanTerm struct {
	Term      string
	Exclusive bool
}

// ScanType is the resolved scan descriptor. A nil bound on a range scan
// is unbounded on that side.
type ScanType struct {
	Kind   ScanKind
	From   *ScanTerm
	To     *ScanTerm
	Prefix string
	Limit  uint64
	Seed   *uint64
}
