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
	"time"

	"github.com/couchbase/gocbcore/v10"

	"github.com/couchbase/kvsdk/backend"
	"github.com/couchbase/kvsdk/errors"
	"github.com/couchbase/kvsdk/logging"
)

const _OBSERVE_INTERVAL = 10 * time.Millisecond

// checkDurability rejects observe requirements the bucket cannot meet
// before anything is written.
func checkDurability(cl *call, d backend.Durability) error {
	if !d.Legacy() {
		return nil
	}
	if d.Level != backend.DurabilityNone {
		return errors.NewInvalidArgument("durability level and persist_to/replicate_to are mutually exclusive")
	}
	replicas, err := numReplicas(cl.agent)
	if err != nil {
		return mapError(err, "")
	}
	return durabilityPossible(d, replicas)
}

func durabilityPossible(d backend.Durability, replicas int) error {
	if int(d.ReplicateTo) > replicas {
		return errors.NewKVError(errors.E_DURABILITY_IMPOSSIBLE, "replicate_to exceeds the configured replicas")
	}
	if persistNodes(d.PersistTo) > replicas+1 {
		return errors.NewKVError(errors.E_DURABILITY_IMPOSSIBLE, "persist_to exceeds the configured nodes")
	}
	return nil
}

// persistNodes is the number of nodes, the active included, that must
// have persisted the mutation.
func persistNodes(p backend.PersistTo) int {
	if p >= backend.PersistToOne {
		return int(p) - 1
	}
	return int(p)
}

// observeState tallies one round of ObserveVb answers.
type observeState struct {
	activePersisted bool
	persisted       int
	replicated      int
}

func (s *observeState) add(idx int, res *gocbcore.ObserveVbResult, seqNo gocbcore.SeqNo) {
	if res.PersistSeqNo >= seqNo {
		s.persisted++
		if idx == 0 {
			s.activePersisted = true
		}
	}
	if idx > 0 && res.CurrentSeqNo >= seqNo {
		s.replicated++
	}
}

func (s *observeState) satisfies(d backend.Durability) bool {
	if d.PersistTo == backend.PersistToActive && !s.activePersisted {
		return false
	}
	if s.persisted < persistNodes(d.PersistTo) {
		return false
	}
	return s.replicated >= int(d.ReplicateTo)
}

// observe polls the partition on every node until the mutation has
// reached the requested replicas and disks, or the deadline passes.
func observe(ctx context.Context, cl *call, token gocbcore.MutationToken, d backend.Durability) error {
	if !d.Legacy() {
		return nil
	}
	replicas, err := numReplicas(cl.agent)
	if err != nil {
		return mapError(err, "")
	}
	for {
		var st observeState
		for idx := 0; idx <= replicas; idx++ {
			res, err := wait(ctx, true, func(cb func(*gocbcore.ObserveVbResult, error)) (gocbcore.PendingOp, error) {
				return cl.agent.ObserveVb(gocbcore.ObserveVbOptions{
					VbID:          token.VbID,
					VbUUID:        token.VbUUID,
					ReplicaIdx:    idx,
					RetryStrategy: cl.retry,
					Deadline:      cl.deadline,
				}, cb)
			})
			if err != nil {
				if errors.IsCode(err, errors.E_REQUEST_CANCELED) || errors.IsCode(err, errors.E_TIMEOUT) ||
					errors.IsCode(err, errors.E_AMBIGUOUS_TIMEOUT) {
					return errors.NewKVError(errors.E_DURABILITY_AMBIGUOUS, err)
				}
				logging.Tracef("gcagent: observe vb %d replica %d: %v", token.VbID, idx, err)
				continue
			}
			if res.DidFailover {
				return errors.NewKVError(errors.E_DURABILITY_AMBIGUOUS, "partition failed over")
			}
			st.add(idx, res, token.SeqNo)
		}
		if st.satisfies(d) {
			return nil
		}
		if time.Now().Add(_OBSERVE_INTERVAL).After(cl.deadline) {
			return errors.NewKVError(errors.E_DURABILITY_AMBIGUOUS)
		}
		select {
		case <-ctx.Done():
			return errors.NewKVError(errors.E_DURABILITY_AMBIGUOUS, ctx.Err())
		case <-time.After(_OBSERVE_INTERVAL):
		}
	}
}
