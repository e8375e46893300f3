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

type Append struct {
	Common
	Durability
	Cas uint64
}

func DefaultAppend() *Append {
	return &Append{}
}

func (o *Append) Request(loc backend.Location, id string, value []byte) *backend.AdjoinRequest {
	return &backend.AdjoinRequest{
		Common:     o.request(loc, id, o.defaultTimeout()),
		Value:      value,
		Cas:        o.Cas,
		Durability: o.durability(),
	}
}

type Prepend struct {
	Common
	Durability
	Cas uint64
}

func DefaultPrepend() *Prepend {
	return &Prepend{}
}

func (o *Prepend) Request(loc backend.Location, id string, value []byte) *backend.AdjoinRequest {
	return &backend.AdjoinRequest{
		Common:     o.request(loc, id, o.defaultTimeout()),
		Value:      value,
		Cas:        o.Cas,
		Durability: o.durability(),
	}
}

// counter holds the fields shared by Increment and Decrement. The delta
// is a magnitude and can only be set through SetDelta.
type counter struct {
	Common
	Durability
	Expiry Expiry
	// Initial is stored when the document does not exist; when nil the
	// operation fails with DocumentNotFound instead.
	Initial *uint64
	delta   uint64
}

func newCounter(delta int64) (counter, error) {
	c := counter{}
	if err := c.SetDelta(delta); err != nil {
		return counter{}, err
	}
	return c, nil
}

// SetDelta rejects negative values and keeps the previous delta.
func (c *counter) SetDelta(delta int64) error {
	if delta < 0 {
		return errors.NewInvalidArgument("delta must not be negative: %d", delta)
	}
	c.delta = uint64(delta)
	return nil
}

func (c *counter) Delta() uint64 {
	return c.delta
}

func (c *counter) counterRequest(loc backend.Location, id string, now time.Time) (*backend.CounterRequest, error) {
	exp, err := c.Expiry.Resolve(now)
	if err != nil {
		return nil, err
	}
	var initial *uint64
	if c.Initial != nil {
		v := *c.Initial
		initial = &v
	}
	return &backend.CounterRequest{
		Common:     c.request(loc, id, c.defaultTimeout()),
		Delta:      c.delta,
		Initial:    initial,
		Expiry:     exp,
		Durability: c.durability(),
	}, nil
}

type Increment struct {
	counter
}

func DefaultIncrement() *Increment {
	return &Increment{counter{delta: 1}}
}

func NewIncrement(delta int64) (*Increment, error) {
	c, err := newCounter(delta)
	if err != nil {
		return nil, err
	}
	return &Increment{c}, nil
}

func (o *Increment) Request(loc backend.Location, id string, now time.Time) (*backend.CounterRequest, error) {
	return o.counterRequest(loc, id, now)
}

type Decrement struct {
	counter
}

func DefaultDecrement() *Decrement {
	return &Decrement{counter{delta: 1}}
}

func NewDecrement(delta int64) (*Decrement, error) {
	c, err := newCounter(delta)
	if err != nil {
		return nil, err
	}
	return &Decrement{c}, nil
}

func (o *Decrement) Request(loc backend.Location, id string, now time.Time) (*backend.CounterRequest, error) {
	return o.counterRequest(loc, id, now)
}
