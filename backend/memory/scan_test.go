//  Copyright 2026-Present Couchbase, Inc.
//
//  Use of this software is governed by the Business Source License included
//  in the file licenses/BSL-Couchbase.txt.  As of the Change Date specified
//  in that file, in accordance with the Business Source License, use of this
//  software will be governed by the Apache License, Version 2.0, included in
//  the file licenses/APL2.txt.

package memory

import (
	"context"
	"fmt"
	"sort"
	"testing"

	"github.com/kylelemons/godebug/pretty"

	"github.com/couchbase/kvsdk/backend"
	"github.com/couchbase/kvsdk/errors"
	"github.com/couchbase/kvsdk/mutation"
)

func drain(t *testing.T, s backend.ScanStream) []*backend.ScanItem {
	t.Helper()
	var rv []*backend.ScanItem
	for {
		it, err := s.Next(context.Background())
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		if it == nil {
			return rv
		}
		rv = append(rv, it)
	}
}

func ids(items []*backend.ScanItem) []string {
	rv := make([]string, 0, len(items))
	for _, it := range items {
		rv = append(rv, it.ID)
	}
	sort.Strings(rv)
	return rv
}

func seed(t *testing.T, b *Backend, n int) {
	for i := 0; i < n; i++ {
		upsert(t, b, fmt.Sprintf("airport_%02d", i), fmt.Sprintf(`{"n":%d}`, i))
	}
	upsert(t, b, "hotel_1", `{}`)
}

func TestRangeAndPrefixScan(t *testing.T) {
	b, _ := newTestBackend()
	seed(t, b, 20)
	ctx := context.Background()

	s, err := b.Scan(ctx, &backend.ScanRequest{Location: testLoc, Concurrency: 1, Type: backend.ScanType{
		Kind: backend.ScanRange,
		From: &backend.ScanTerm{Term: "airport_05"},
		To:   &backend.ScanTerm{Term: "airport_08", Exclusive: true},
	}})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	want := []string{"airport_05", "airport_06", "airport_07"}
	if diff := pretty.Compare(ids(drain(t, s)), want); diff != "" {
		t.Errorf("Range scan (-got +want):\n%s", diff)
	}

	s, _ = b.Scan(ctx, &backend.ScanRequest{Location: testLoc, Concurrency: 1, IDsOnly: true,
		Type: backend.ScanType{Kind: backend.ScanPrefix, Prefix: "hotel"}})
	items := drain(t, s)
	if len(items) != 1 || items[0].ID != "hotel_1" || !items[0].IDOnly || items[0].Value != nil {
		t.Errorf("Unexpected prefix scan %+v", items)
	}

	s, _ = b.Scan(ctx, &backend.ScanRequest{Location: testLoc, Concurrency: 1, Type: backend.ScanType{Kind: backend.ScanRange}})
	if n := len(drain(t, s)); n != 21 {
		t.Errorf("An unbounded range sees every document, got %d", n)
	}
}

func TestScanOrderAndBatches(t *testing.T) {
	b, _ := newTestBackend()
	seed(t, b, 40)
	ctx := context.Background()
	one := uint32(1)

	s, _ := b.Scan(ctx, &backend.ScanRequest{Location: testLoc, Concurrency: 1, BatchItemLimit: &one,
		Type: backend.ScanType{Kind: backend.ScanRange}})
	items := drain(t, s)
	if len(items) != 41 {
		t.Fatalf("Expected every document, got %d", len(items))
	}
	// one partition at a time, keys ascending within a partition
	for i := 1; i < len(items); i++ {
		prev, cur := VBucketOf(items[i-1].ID), VBucketOf(items[i].ID)
		if prev > cur || (prev == cur && items[i-1].ID >= items[i].ID) {
			t.Fatalf("Out of order at %d: %s(%d) then %s(%d)", i, items[i-1].ID, prev, items[i].ID, cur)
		}
	}

	s, _ = b.Scan(ctx, &backend.ScanRequest{Location: testLoc, Concurrency: 4, BatchItemLimit: &one,
		Type: backend.ScanType{Kind: backend.ScanRange}})
	if diff := pretty.Compare(ids(drain(t, s)), ids(items)); diff != "" {
		t.Errorf("Concurrency must not change the result set (-got +want):\n%s", diff)
	}
}

func TestSamplingScan(t *testing.T) {
	b, _ := newTestBackend()
	seed(t, b, 30)
	ctx := context.Background()
	sd := uint64(42)
	req := &backend.ScanRequest{Location: testLoc, Concurrency: 1, Type: backend.ScanType{Kind: backend.ScanSampling, Limit: 5, Seed: &sd}}

	s1, _ := b.Scan(ctx, req)
	s2, _ := b.Scan(ctx, req)
	first, second := ids(drain(t, s1)), ids(drain(t, s2))
	if len(first) != 5 {
		t.Errorf("Expected 5 samples, got %d", len(first))
	}
	if diff := pretty.Compare(first, second); diff != "" {
		t.Errorf("A seed must repeat the sample:\n%s", diff)
	}
	req.Type.Limit = 0
	if _, err := b.Scan(ctx, req); !errors.Is(err, errors.ErrInvalidArgument) {
		t.Errorf("Expected invalid argument, got %v", err)
	}
}

func TestScanConsistencyAndCancel(t *testing.T) {
	b, _ := newTestBackend()
	ctx := context.Background()
	r := upsert(t, b, "airport_1", `{}`)
	tok := *r.Token

	req := &backend.ScanRequest{Location: testLoc, Concurrency: 1, Type: backend.ScanType{Kind: backend.ScanRange},
		MutationState: []mutation.Token{tok}}
	if _, err := b.Scan(ctx, req); err != nil {
		t.Errorf("A reached token must be accepted: %v", err)
	}
	ahead := tok
	ahead.SequenceNumber += 100
	req.MutationState = []mutation.Token{ahead}
	if _, err := b.Scan(ctx, req); !errors.IsCode(err, errors.E_SCAN_SNAPSHOT) {
		t.Errorf("Expected a snapshot error, got %v", err)
	}
	stale := tok
	stale.PartitionUUID++
	req.MutationState = []mutation.Token{stale}
	if _, err := b.Scan(ctx, req); !errors.IsCode(err, errors.E_SCAN_SNAPSHOT) {
		t.Errorf("Expected a snapshot error for a foreign partition UUID, got %v", err)
	}

	req.MutationState = nil
	s, _ := b.Scan(ctx, req)
	s.Cancel()
	if _, err := s.Next(ctx); !errors.Is(err, errors.ErrScanClosed) {
		t.Errorf("Expected scan closed, got %v", err)
	}
	if _, err := b.Scan(ctx, &backend.ScanRequest{Location: testLoc, Type: backend.ScanType{Kind: backend.ScanRange}}); !errors.Is(err, errors.ErrInvalidArgument) {
		t.Errorf("Zero concurrency is an argument error, got %v", err)
	}
}
