//  Copyright 2026-Present Couchbase, Inc.
//
//  Use of this software is governed by the Business Source License included
//  in the file licenses/BSL-Couchbase.txt.  As of the Change Date specified
//  in that file, in accordance with the Business Source License, use of this
//  software will be governed by the Apache License, Version 2.0, included in
//  the file licenses/APL2.txt.

package options

import (
	"fmt"
	"testing"
	"time"

	json "github.com/couchbase/go_json"
	"github.com/couchbase/kvsdk/backend"
	"github.com/couchbase/kvsdk/errors"
	"github.com/couchbase/kvsdk/mutation"
	"github.com/couchbase/kvsdk/subdoc"
	"github.com/kylelemons/godebug/pretty"
)

var loc = backend.Location{Bucket: "travel-sample", Scope: "inventory", Collection: "airline"}

func TestExpiryBoundary(t *testing.T) {
	now := time.Unix(1700000000, 0)
	cases := []struct {
		name string
		in   Expiry
		want uint32
	}{
		{"none", ExpiryNone(), 0},
		{"raw below cutoff", ExpirySeconds(RelativeExpiryCutoff - 1), RelativeExpiryCutoff - 1},
		{"raw at cutoff", ExpirySeconds(RelativeExpiryCutoff), RelativeExpiryCutoff},
		{"raw absolute", ExpirySeconds(1800000000), 1800000000},
		{"duration below cutoff", ExpiryDuration((RelativeExpiryCutoff - 1) * time.Second), RelativeExpiryCutoff - 1},
		{"duration at cutoff", ExpiryDuration(RelativeExpiryCutoff * time.Second), 1700000000 + RelativeExpiryCutoff},
		{"sub second duration", ExpiryDuration(10 * time.Millisecond), 1},
		{"absolute time", ExpiryAt(time.Unix(1800000000, 0)), 1800000000},
	}
	for _, c := range cases {
		got, err := c.in.Resolve(now)
		if err != nil || got != c.want {
			t.Errorf("%s: got %d (%v), want %d", c.name, got, err, c.want)
		}
	}
	if _, err := ExpiryDuration(-time.Second).Resolve(now); !errors.Is(err, errors.ErrInvalidArgument) {
		t.Errorf("Expected invalid argument for a negative duration, got %v", err)
	}
}

func TestDurabilityExclusivity(t *testing.T) {
	if _, err := NewDurability(backend.DurabilityMajority, backend.PersistToNone, backend.ReplicateToOne); !errors.Is(err, errors.ErrInvalidArgument) {
		t.Errorf("Expected invalid argument, got %v", err)
	}
	if _, err := NewDurability(backend.DurabilityMajority, backend.PersistToNone, backend.ReplicateToNone); err != nil {
		t.Errorf("Level alone must be accepted: %v", err)
	}
	if _, err := NewDurability(backend.DurabilityNone, backend.PersistToOne, backend.ReplicateToOne); err != nil {
		t.Errorf("Legacy counters alone must be accepted: %v", err)
	}

	for _, d := range []interface {
		SetDurabilityLevel(backend.DurabilityLevel) error
		SetClientDurability(backend.PersistTo, backend.ReplicateTo) error
		DurabilityLevel() backend.DurabilityLevel
		ReplicateTo() backend.ReplicateTo
	}{DefaultRemove(), DefaultInsert(), DefaultUpsert(), DefaultReplace(), DefaultMutateIn()} {
		if err := d.SetDurabilityLevel(backend.DurabilityMajority); err != nil {
			t.Fatalf("%T: unexpected error %v", d, err)
		}
		if err := d.SetClientDurability(backend.PersistToNone, backend.ReplicateToOne); !errors.Is(err, errors.ErrInvalidArgument) {
			t.Errorf("%T: expected invalid argument, got %v", d, err)
		}
		if d.DurabilityLevel() != backend.DurabilityMajority || d.ReplicateTo() != backend.ReplicateToNone {
			t.Errorf("%T: a failed update must leave the state unchanged", d)
		}
	}
}

func TestDurableTimeout(t *testing.T) {
	o := DefaultUpsert()
	req, err := o.Request(loc, "k", "v", time.Now())
	if err != nil || req.Timeout != DefaultKVTimeout {
		t.Errorf("Expected default timeout, got %v (%v)", req, err)
	}
	o.SetDurabilityLevel(backend.DurabilityPersistToMajority)
	req, _ = o.Request(loc, "k", "v", time.Now())
	if req.Timeout != DefaultKVDurableTimeout || req.Durability.Level != backend.DurabilityPersistToMajority {
		t.Errorf("Expected durable timeout, got %v", req.Timeout)
	}
	o.Timeout = time.Second
	req, _ = o.Request(loc, "k", "v", time.Now())
	if req.Timeout != time.Second {
		t.Errorf("Explicit timeout must win, got %v", req.Timeout)
	}
}

func TestDeltaValidation(t *testing.T) {
	if _, err := NewIncrement(-1); !errors.Is(err, errors.ErrInvalidArgument) {
		t.Errorf("Expected invalid argument, got %v", err)
	}
	inc, err := NewIncrement(5)
	if err != nil {
		t.Fatalf("Unexpected error %v", err)
	}
	if err := inc.SetDelta(-1); !errors.Is(err, errors.ErrInvalidArgument) {
		t.Errorf("Expected invalid argument, got %v", err)
	}
	if inc.Delta() != 5 {
		t.Errorf("Delta must be unchanged, got %d", inc.Delta())
	}
	if DefaultDecrement().Delta() != 1 || DefaultIncrement().Delta() != 1 {
		t.Errorf("Default delta must be 1")
	}

	initial := uint64(10)
	inc.Initial = &initial
	req, err := inc.Request(loc, "counter", time.Now())
	if err != nil {
		t.Fatalf("Unexpected error %v", err)
	}
	initial = 20
	if req.Delta != 5 || *req.Initial != 10 {
		t.Errorf("Unexpected request %+v", req)
	}
}

func TestProjectedGetFlag(t *testing.T) {
	o := DefaultGet()
	if o.NeedProjectedGet() {
		t.Errorf("Default get must not need a projected get")
	}
	o.Transcoder = nil
	o.Timeout = time.Second
	if o.NeedProjectedGet() {
		t.Errorf("Unrelated fields must not change the flag")
	}
	o.Project("a", "b").Project("a")
	if !o.NeedProjectedGet() {
		t.Errorf("Projection must set the flag")
	}
	if diff := pretty.Compare(o.Projections(), []string{"a", "b"}); diff != "" {
		t.Errorf("Projection is a set union: %s", diff)
	}
	w := DefaultGet()
	w.WithExpiry = true
	if !w.NeedProjectedGet() {
		t.Errorf("with expiry must set the flag")
	}
}

func TestExportIsPure(t *testing.T) {
	o := DefaultGet().Project("name")
	before := pretty.Sprint(o)
	r1 := o.Request(loc, "k1")
	r1.Projections[0] = "changed"
	r2 := o.Request(loc, "k2")
	if pretty.Sprint(o) != before || r2.Projections[0] != "name" {
		t.Errorf("Request must not alias or mutate the option")
	}
	if r2.Location != loc || r2.ID != "k2" || r2.Timeout != DefaultKVTimeout {
		t.Errorf("Unexpected request %+v", r2)
	}
}

func TestMutateInRequest(t *testing.T) {
	spec, _ := subdoc.MutateUpsert("a", 1)
	o := DefaultMutateIn()
	o.StoreSemantics = backend.StoreUpsert
	o.Cas = 12
	if _, err := o.Request(loc, "k", []*subdoc.MutateInSpec{spec}, time.Now()); !errors.Is(err, errors.ErrInvalidArgument) {
		t.Errorf("Expected cas with upsert semantics to be rejected, got %v", err)
	}
	o.Cas = 0
	if _, err := o.Request(loc, "k", nil, time.Now()); !errors.Is(err, errors.ErrInvalidArgument) {
		t.Errorf("Expected an empty spec list to be rejected, got %v", err)
	}
	req, err := o.Request(loc, "k", []*subdoc.MutateInSpec{spec}, time.Now())
	if err != nil || len(req.Specs) != 1 || req.StoreSemantics != backend.StoreUpsert {
		t.Errorf("Unexpected request %+v (%v)", req, err)
	}
}

func TestQueryParameters(t *testing.T) {
	if _, err := NewQuery([]interface{}{1}, map[string]interface{}{"a": 1}); !errors.Is(err, errors.ErrInvalidArgument) {
		t.Errorf("Expected invalid argument, got %v", err)
	}
	q, err := NewQuery([]interface{}{"LAX", 3}, nil)
	if err != nil {
		t.Fatalf("Unexpected error %v", err)
	}
	if diff := pretty.Compare(q.PositionalParameters(), []string{`"LAX"`, "3"}); diff != "" {
		t.Errorf("Unexpected positional export: %s", diff)
	}
	q.SetNamedParameters(map[string]interface{}{"code": "SFO"})
	if q.PositionalParameters() != nil {
		t.Errorf("Named parameters must clear positional ones")
	}
	q.SetPositionalParameters(true)
	if q.NamedParameters() != nil {
		t.Errorf("Positional parameters must clear named ones")
	}
}

func TestQueryConsistency(t *testing.T) {
	state := mutation.NewState(mutation.Token{BucketName: "b", PartitionID: 1, PartitionUUID: 2, SequenceNumber: 3})
	q := DefaultQuery()
	q.SetConsistentWith(state)
	q.SetScanConsistency(RequestPlus)
	if q.ConsistentWith() != nil {
		t.Errorf("Scan consistency must clear the mutation state")
	}
	q.SetConsistentWith(state)
	if q.ScanConsistency() != NotBounded {
		t.Errorf("Mutation state must clear the scan consistency")
	}

	q.RawParameter("use_cbo", true)
	q.SetNamedParameters(map[string]interface{}{"code": "SFO"})
	req, err := q.Request("SELECT 1")
	if err != nil {
		t.Fatalf("Unexpected error %v", err)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(req.Payload, &body); err != nil {
		t.Fatalf("Payload is not JSON: %v", err)
	}
	want := map[string]interface{}{
		"statement":        "SELECT 1",
		"timeout":          "1m15s",
		"scan_consistency": "at_plus",
		"scan_vectors":     map[string]interface{}{"b": map[string]interface{}{"1": []interface{}{float64(3), "2"}}},
		"use_cbo":          true,
		"$code":            "SFO",
	}
	if diff := pretty.Compare(body, want); diff != "" {
		t.Errorf("Unexpected payload: %s", diff)
	}
}

func TestAnalyticsPayload(t *testing.T) {
	a, err := NewAnalytics(nil, map[string]interface{}{"country": "France"})
	if err != nil {
		t.Fatalf("Unexpected error %v", err)
	}
	a.RawParameter("priority", -1)
	b, err := a.Payload("SELECT 1")
	if err != nil {
		t.Fatalf("Unexpected error %v", err)
	}
	var body map[string]interface{}
	if err := json.Unmarshal(b, &body); err != nil {
		t.Fatalf("Payload is not JSON: %v", err)
	}
	if body["$country"] != "France" || fmt.Sprint(body["priority"]) != "-1" {
		t.Errorf("Parameters must be embedded as JSON, got %v", body)
	}
}

func TestSearchPayload(t *testing.T) {
	s := DefaultSearch()
	limit := uint32(10)
	s.Limit = &limit
	s.SetConsistentWith(mutation.NewState(mutation.Token{BucketName: "b", PartitionID: 7, PartitionUUID: 8, SequenceNumber: 9}))
	b, err := s.Payload("idx", json.RawMessage(`{"match":"x"}`))
	if err != nil {
		t.Fatalf("Unexpected error %v", err)
	}
	var body map[string]interface{}
	json.Unmarshal(b, &body)
	ctl := body["ctl"].(map[string]interface{})
	vectors := ctl["consistency"].(map[string]interface{})["vectors"].(map[string]interface{})["idx"]
	if diff := pretty.Compare(vectors, map[string]interface{}{"7/8": float64(9)}); diff != "" {
		t.Errorf("Unexpected vectors: %s", diff)
	}
	// go_json may decode integral numbers without a float64
	if fmt.Sprint(body["size"]) != "10" {
		t.Errorf("Unexpected size %v", body["size"])
	}
	if diff := pretty.Compare(body["query"], map[string]interface{}{"match": "x"}); diff != "" {
		t.Errorf("The query must be embedded as JSON: %s", diff)
	}

	s = DefaultSearch()
	s.Raw = map[string]interface{}{"knn": json.RawMessage(`[{"k":3}]`)}
	b, err = s.Payload("idx", json.RawMessage(`{"match_all":{}}`))
	if err != nil {
		t.Fatalf("Unexpected error %v", err)
	}
	body = nil
	json.Unmarshal(b, &body)
	if diff := pretty.Compare(body["knn"], []interface{}{map[string]interface{}{"k": 3}}); diff != "" {
		t.Errorf("Raw JSON must be embedded as JSON: %s", diff)
	}
	if _, err := s.Payload("", nil); !errors.Is(err, errors.ErrInvalidArgument) {
		t.Errorf("Expected invalid argument, got %v", err)
	}
}

func TestScanRequest(t *testing.T) {
	o := DefaultScan()
	if o.Concurrency != 1 || o.IDsOnly {
		t.Errorf("Unexpected defaults %+v", o)
	}
	o.Concurrency = 0
	if _, err := o.Request(loc, backend.ScanType{Kind: backend.ScanPrefix, Prefix: "a"}); !errors.Is(err, errors.ErrInvalidArgument) {
		t.Errorf("Expected invalid argument, got %v", err)
	}
}
