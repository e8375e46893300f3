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
)

// Durability is embedded in every mutating option. A durability level and
// the legacy persist/replicate counters are alternative models: setting
// one while the other is in use fails and leaves the state unchanged.
type Durability struct {
	level       backend.DurabilityLevel
	persistTo   backend.PersistTo
	replicateTo backend.ReplicateTo
}

func NewDurability(level backend.DurabilityLevel, persistTo backend.PersistTo,
	replicateTo backend.ReplicateTo) (Durability, error) {
	if level != backend.DurabilityNone && (persistTo != backend.PersistToNone || replicateTo != backend.ReplicateToNone) {
		return Durability{}, errors.NewInvalidArgument(
			"durability level %v cannot be combined with persist_to/replicate_to", level)
	}
	return Durability{level: level, persistTo: persistTo, replicateTo: replicateTo}, nil
}

func (d *Durability) SetDurabilityLevel(level backend.DurabilityLevel) error {
	nd, err := NewDurability(level, d.persistTo, d.replicateTo)
	if err != nil {
		return err
	}
	*d = nd
	return nil
}

func (d *Durability) SetClientDurability(persistTo backend.PersistTo, replicateTo backend.ReplicateTo) error {
	nd, err := NewDurability(d.level, persistTo, replicateTo)
	if err != nil {
		return err
	}
	*d = nd
	return nil
}

// SetDurability replaces the whole durability requirement.
func (d *Durability) SetDurability(nd Durability) {
	*d = nd
}

func (d *Durability) DurabilityLevel() backend.DurabilityLevel { return d.level }
func (d *Durability) PersistTo() backend.PersistTo             { return d.persistTo }
func (d *Durability) ReplicateTo() backend.ReplicateTo         { return d.replicateTo }

func (d *Durability) durability() backend.Durability {
	return backend.Durability{Level: d.level, PersistTo: d.persistTo, ReplicateTo: d.replicateTo}
}

func (d *Durability) defaultTimeout() time.Duration {
	if d.level != backend.DurabilityNone {
		return DefaultKVDurableTimeout
	}
	return DefaultKVTimeout
}
