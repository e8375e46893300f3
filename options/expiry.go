//  Copyright 2026-Present Couchbase, Inc.
//
//  Use of this software is governed by the Business Source License included
//  in the file licenses/BSL-Couchbase.txt.  As of the Change Date specified
//  in that file, in accordance with the Business Source License, use of this
//  software will be governed by the Apache License, Version 2.0, included in
//  the file licenses/APL2.txt.

package options

import (
	"math"
	"time"

	"github.com/couchbase/kvsdk/errors"
)

// RelativeExpiryCutoff is the server's boundary: expiry integers below it
// are seconds from now, at or above it absolute Unix times.
const RelativeExpiryCutoff = 30 * 24 * 60 * 60

type expiryKind uint8

const (
	_EXPIRY_NONE expiryKind = iota
	_EXPIRY_SECONDS
	_EXPIRY_DURATION
	_EXPIRY_AT
)

// Expiry is a document lifetime. The zero value never expires.
type Expiry struct {
	kind    expiryKind
	seconds uint32
	d       time.Duration
	at      time.Time
}

func ExpiryNone() Expiry {
	return Expiry{}
}

// ExpirySeconds passes a server expiry integer through unchanged.
func ExpirySeconds(s uint32) Expiry {
	return Expiry{kind: _EXPIRY_SECONDS, seconds: s}
}

// ExpiryDuration expires the document d from now. Durations below the
// cutoff are sent as relative seconds, longer ones as now+d.
func ExpiryDuration(d time.Duration) Expiry {
	return Expiry{kind: _EXPIRY_DURATION, d: d}
}

func ExpiryAt(t time.Time) Expiry {
	return Expiry{kind: _EXPIRY_AT, at: t}
}

func (e Expiry) IsNone() bool {
	return e.kind == _EXPIRY_NONE
}

// Resolve computes the integer sent to the server.
func (e Expiry) Resolve(now time.Time) (uint32, error) {
	switch e.kind {
	case _EXPIRY_SECONDS:
		return e.seconds, nil
	case _EXPIRY_DURATION:
		switch {
		case e.d < 0:
			return 0, errors.NewInvalidArgument("expiry duration must not be negative: %v", e.d)
		case e.d == 0:
			return 0, nil
		case e.d < time.Second:
			// a zero would never expire
			return 1, nil
		case e.d < RelativeExpiryCutoff*time.Second:
			return uint32(e.d / time.Second), nil
		}
		return absolute(now.Add(e.d))
	case _EXPIRY_AT:
		if e.at.IsZero() {
			return 0, nil
		}
		return absolute(e.at)
	}
	return 0, nil
}

func absolute(t time.Time) (uint32, error) {
	u := t.Unix()
	if u < RelativeExpiryCutoff || u > math.MaxUint32 {
		return 0, errors.NewInvalidArgument("expiry time %v is out of range", t)
	}
	return uint32(u), nil
}
