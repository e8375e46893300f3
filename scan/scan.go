//  Copyright 2026-Present Couchbase, Inc.
//
//  Use of this software is governed by the Business Source License included
//  in the file licenses/BSL-Couchbase.txt.  As of the Change Date specified
//  in that file, in accordance with the Business Source License, use of this
//  software will be governed by the Apache License, Version 2.0, included in
//  the file licenses/APL2.txt.

/*
Package scan provides key-value range, prefix and sampling scans.

A Result is a lazy single pass cursor over an open server side scan. It
is not safe for concurrent use. Items from different partitions arrive
in no particular order when the scan runs with a concurrency above one.
*/
package scan

import (
	"context"
	"sync"
	"time"

	"github.com/couchbase/kvsdk/backend"
	"github.com/couchbase/kvsdk/errors"
	"github.com/couchbase/kvsdk/logging"
	"github.com/couchbase/kvsdk/results"
	"github.com/couchbase/kvsdk/transcoder"
)

type Type interface {
	ToBackend() (backend.ScanType, error)
}

// Term is one bound of a range scan.
type Term struct {
	Term      string
	Exclusive bool
}

// RangeScan scans keys between From and To; a nil bound is open.
type RangeScan struct {
	From *Term
	To   *Term
}

func (s RangeScan) ToBackend() (backend.ScanType, error) {
	rv := backend.ScanType{Kind: backend.ScanRange}
	if s.From != nil {
		rv.From = &backend.ScanTerm{Term: s.From.Term, Exclusive: s.From.Exclusive}
	}
	if s.To != nil {
		rv.To = &backend.ScanTerm{Term: s.To.Term, Exclusive: s.To.Exclusive}
	}
	return rv, nil
}

type PrefixScan struct {
	Prefix string
}

func (s PrefixScan) ToBackend() (backend.ScanType, error) {
	return backend.ScanType{Kind: backend.ScanPrefix, Prefix: s.Prefix}, nil
}

// SamplingScan returns up to Limit random documents. A Seed makes the
// sample repeatable.
type SamplingScan struct {
	Limit uint64
	Seed  *uint64
}

func (s SamplingScan) ToBackend() (backend.ScanType, error) {
	if s.Limit == 0 {
		return backend.ScanType{}, errors.NewInvalidArgument("sampling scan limit must be greater than zero")
	}
	rv := backend.ScanType{Kind: backend.ScanSampling, Limit: s.Limit}
	if s.Seed != nil {
		seed := *s.Seed
		rv.Seed = &seed
	}
	return rv, nil
}

// Document is the body and metadata of a scanned item.
type Document struct {
	Cas    uint64
	Expiry uint32

	value      []byte
	flags      uint32
	transcoder transcoder.Transcoder
}

func (d *Document) ExpiryTime() time.Time {
	return results.ExpiryTime(d.Expiry)
}

func (d *Document) Content(valuePtr interface{}) error {
	return d.transcoder.Decode(d.value, d.flags, valuePtr)
}

func (d *Document) ContentAs(tc transcoder.Transcoder, valuePtr interface{}) error {
	return tc.Decode(d.value, d.flags, valuePtr)
}

// Item is one scanned key. Document is nil for ids only scans.
type Item struct {
	ID       string
	IDOnly   bool
	Document *Document
}

type state int

const (
	_UNOPENED state = iota
	_OPEN
	_EXHAUSTED
)

// Opener starts the server side scan on first use.
type Opener func(ctx context.Context) (backend.ScanStream, error)

type Result struct {
	sync.Mutex
	open       Opener
	stream     backend.ScanStream
	state      state
	transcoder transcoder.Transcoder
}

func NewResult(open Opener, tc transcoder.Transcoder) *Result {
	if tc == nil {
		tc = transcoder.Default
	}
	return &Result{open: open, transcoder: tc}
}

// Next returns the next item, or nil once the scan is exhausted. After
// exhaustion every call returns (nil, nil). A scan that failed to open
// is opened again by the following call.
func (r *Result) Next(ctx context.Context) (*Item, error) {
	r.Lock()
	defer r.Unlock()
	switch r.state {
	case _EXHAUSTED:
		return nil, nil
	case _UNOPENED:
		stream, err := r.open(ctx)
		if err != nil {
			return nil, err
		}
		r.stream = stream
		r.state = _OPEN
	}
	raw, err := r.stream.Next(ctx)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		logging.Tracef("scan exhausted")
		r.state = _EXHAUSTED
		r.stream = nil
		return nil, nil
	}
	item := &Item{ID: raw.ID, IDOnly: raw.IDOnly}
	if !raw.IDOnly {
		item.Document = &Document{
			Cas:        raw.Cas,
			Expiry:     raw.Expiry,
			value:      raw.Value,
			flags:      raw.Flags,
			transcoder: r.transcoder,
		}
	}
	return item, nil
}

// Each calls fn for every remaining item. It stops at the first error,
// from the scan or from fn.
func (r *Result) Each(ctx context.Context, fn func(*Item) error) error {
	for {
		item, err := r.Next(ctx)
		if err != nil {
			return err
		}
		if item == nil {
			return nil
		}
		if err := fn(item); err != nil {
			return err
		}
	}
}

// All drains the scan.
func (r *Result) All(ctx context.Context) ([]*Item, error) {
	var rv []*Item
	err := r.Each(ctx, func(i *Item) error {
		rv = append(rv, i)
		return nil
	})
	return rv, err
}

// Close abandons the scan. The result is exhausted afterwards.
func (r *Result) Close() {
	r.Lock()
	defer r.Unlock()
	if r.stream != nil {
		r.stream.Cancel()
		r.stream = nil
	}
	r.state = _EXHAUSTED
}
