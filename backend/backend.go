//  Copyright 2026-Present Couchbase, Inc.
//
//  Use of this software is governed by the Business Source License included
//  in the file licenses/BSL-Couchbase.txt.  As of the Change Date specified
//  in that file, in accordance with the Business Source License, use of this
//  software will be governed by the Apache License, Version 2.0, included in
//  the file licenses/APL2.txt.

/*
Package backend defines the contract between the public API and a
transport. A Backend receives fully resolved requests (location, key,
encoded value, resolved expiry) and answers with raw responses; it owns
connections, retries and durability polling.

Errors returned by a Backend are passed to the caller unchanged, so
implementations must return errors from the errors package.
*/
package backend

import (
	"context"
)

type Backend interface {
	Get(ctx context.Context, req *GetRequest) (*GetResponse, error)
	GetAndLock(ctx context.Context, req *GetAndLockRequest) (*GetResponse, error)
	GetAndTouch(ctx context.Context, req *GetAndTouchRequest) (*GetResponse, error)
	GetAnyReplica(ctx context.Context, req *GetReplicaRequest) (*GetResponse, error)
	GetAllReplicas(ctx context.Context, req *GetReplicaRequest) ([]*GetResponse, error)
	Exists(ctx context.Context, req *ExistsRequest) (*ExistsResponse, error)
	Touch(ctx context.Context, req *TouchRequest) (*MutationResponse, error)
	Unlock(ctx context.Context, req *UnlockRequest) error

	Insert(ctx context.Context, req *StoreRequest) (*MutationResponse, error)
	Upsert(ctx context.Context, req *StoreRequest) (*MutationResponse, error)
	Replace(ctx context.Context, req *StoreRequest) (*MutationResponse, error)
	Remove(ctx context.Context, req *RemoveRequest) (*MutationResponse, error)

	Append(ctx context.Context, req *AdjoinRequest) (*MutationResponse, error)
	Prepend(ctx context.Context, req *AdjoinRequest) (*MutationResponse, error)
	Increment(ctx context.Context, req *CounterRequest) (*CounterResponse, error)
	Decrement(ctx context.Context, req *CounterRequest) (*CounterResponse, error)

	LookupIn(ctx context.Context, req *LookupInRequest) (*LookupInResponse, error)
	LookupInAnyReplica(ctx context.Context, req *LookupInRequest) (*LookupInResponse, error)
	LookupInAllReplicas(ctx context.Context, req *LookupInRequest) ([]*LookupInResponse, error)
	MutateIn(ctx context.Context, req *MutateInRequest) (*MutateInResponse, error)

	// Multi operations answer one response per input, in input order.
	// Per-item failures are reported in the response's Err.
	GetMulti(ctx context.Context, req *GetMultiRequest) ([]*GetResponse, error)
	UpsertMulti(ctx context.Context, req *UpsertMultiRequest) ([]*MutationResponse, error)
	RemoveMulti(ctx context.Context, req *RemoveMultiRequest) ([]*MutationResponse, error)

	Scan(ctx context.Context, req *ScanRequest) (ScanStream, error)
	Query(ctx context.Context, req *QueryRequest) (*QueryResponse, error)

	// NotifyFork quiesces or resets connection state around a process fork.
	NotifyFork(event ForkEvent) error
	Close() error
}

// ScanStream is an open server side scan. Next returns (nil, nil) once
// every partition has been drained.
type ScanStream interface {
	Next(ctx context.Context) (*ScanItem, error)
	Cancel()
}

type ForkEvent int

const (
	ForkPrepare ForkEvent = iota // about to fork, quiesce
	ForkParent                   // fork done, running in the parent
	ForkChild                    // fork done, running in the child
)

func (e ForkEvent) String() string {
	switch e {
	case ForkPrepare:
		return "prepare"
	case ForkParent:
		return "parent"
	case ForkChild:
		return "child"
	}
	return "unknown"
}
