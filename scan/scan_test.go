//  Copyright 2026-Present Couchbase, Inc.
//
//  Use of this software is governed by the Business Source License included
//  in the file licenses/BSL-Couchbase.txt.  As of the Change Date specified
//  in that file, in accordance with the Business Source License, use of this
//  software will be governed by the Apache License, Version 2.0, included in
//  the file licenses/APL2.txt.

package scan

import (
	"context"
	"testing"

	"github.com/couchbase/kvsdk/backend"
	"github.com/couchbase/kvsdk/errors"
	"github.com/couchbase/kvsdk/transcoder"
)

type sliceStream struct {
	items    []*backend.ScanItem
	canceled bool
	pulls    int
}

func (s *sliceStream) Next(ctx context.Context) (*backend.ScanItem, error) {
	s.pulls++
	if len(s.items) == 0 {
		return nil, nil
	}
	i := s.items[0]
	s.items = s.items[1:]
	return i, nil
}

func (s *sliceStream) Cancel() {
	s.canceled = true
}

func TestExhaustion(t *testing.T) {
	flags := transcoder.EncodeFlags(transcoder.Flags{Format: transcoder.FormatJSON})
	stream := &sliceStream{items: []*backend.ScanItem{
		{ID: "a", Cas: 1, Value: []byte(`1`), Flags: flags},
		{ID: "b", Cas: 2, Value: []byte(`2`), Flags: flags},
	}}
	opened := 0
	r := NewResult(func(context.Context) (backend.ScanStream, error) {
		opened++
		return stream, nil
	}, nil)
	ctx := context.Background()

	items, err := r.All(ctx)
	if err != nil || len(items) != 2 {
		t.Fatalf("Expected 2 items, got %v (%v)", items, err)
	}
	var n int
	if err := items[1].Document.Content(&n); err != nil || n != 2 {
		t.Errorf("Unexpected content %v (%v)", n, err)
	}

	pulls := stream.pulls
	for i := 0; i < 3; i++ {
		item, err := r.Next(ctx)
		if item != nil || err != nil {
			t.Errorf("Expected (nil, nil) after exhaustion, got %v, %v", item, err)
		}
		count := 0
		if err := r.Each(ctx, func(*Item) error { count++; return nil }); err != nil || count != 0 {
			t.Errorf("Each after exhaustion must yield nothing, got %d (%v)", count, err)
		}
	}
	if stream.pulls != pulls || opened != 1 {
		t.Errorf("An exhausted scan must not touch the backend again")
	}
}

func TestOpenFailureIsNotExhaustion(t *testing.T) {
	flags := transcoder.EncodeFlags(transcoder.Flags{Format: transcoder.FormatJSON})
	stream := &sliceStream{items: []*backend.ScanItem{{ID: "a", Cas: 1, Value: []byte(`1`), Flags: flags}}}
	opened := 0
	r := NewResult(func(context.Context) (backend.ScanStream, error) {
		opened++
		if opened == 1 {
			return nil, errors.NewKVError(errors.E_TEMPORARY_FAILURE)
		}
		return stream, nil
	}, nil)
	ctx := context.Background()

	if item, err := r.Next(ctx); item != nil || !errors.Is(err, errors.ErrTemporaryFailure) {
		t.Fatalf("Expected the open failure, got %v, %v", item, err)
	}
	items, err := r.All(ctx)
	if err != nil || len(items) != 1 || items[0].ID != "a" {
		t.Errorf("A failed open must be retried, not reported as an empty scan, got %v (%v)", items, err)
	}
	if opened != 2 {
		t.Errorf("Expected 2 opens, got %d", opened)
	}
}

func TestIDsOnlyShape(t *testing.T) {
	stream := &sliceStream{items: []*backend.ScanItem{{ID: "a", IDOnly: true}}}
	r := NewResult(func(context.Context) (backend.ScanStream, error) { return stream, nil }, nil)
	item, err := r.Next(context.Background())
	if err != nil || item == nil {
		t.Fatalf("Unexpected %v, %v", item, err)
	}
	if !item.IDOnly || item.Document != nil {
		t.Errorf("ids only items must not carry a document: %+v", item)
	}
}

func TestCloseCancels(t *testing.T) {
	stream := &sliceStream{items: []*backend.ScanItem{{ID: "a"}, {ID: "b"}}}
	r := NewResult(func(context.Context) (backend.ScanStream, error) { return stream, nil }, nil)
	r.Next(context.Background())
	r.Close()
	if !stream.canceled {
		t.Errorf("Close must cancel the stream")
	}
	if item, err := r.Next(context.Background()); item != nil || err != nil {
		t.Errorf("Expected exhaustion after close")
	}
}

func TestScanTypes(t *testing.T) {
	if _, err := (SamplingScan{}).ToBackend(); !errors.Is(err, errors.ErrInvalidArgument) {
		t.Errorf("Expected invalid argument, got %v", err)
	}
	seed := uint64(3)
	st, err := SamplingScan{Limit: 10, Seed: &seed}.ToBackend()
	if err != nil || st.Kind != backend.ScanSampling || *st.Seed != 3 {
		t.Errorf("Unexpected %+v (%v)", st, err)
	}
	st, _ = RangeScan{From: &Term{Term: "a"}, To: &Term{Term: "b", Exclusive: true}}.ToBackend()
	if st.From.Term != "a" || st.From.Exclusive || !st.To.Exclusive {
		t.Errorf("Unexpected %+v", st)
	}
	st, _ = RangeScan{}.ToBackend()
	if st.From != nil || st.To != nil {
		t.Errorf("Unbounded range must keep nil bounds")
	}
}
