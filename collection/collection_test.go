//  Copyright 2026-Present Couchbase, Inc.
//
//  Use of this software is governed by the Business Source License included
//  in the file licenses/BSL-Couchbase.txt.  As of the Change Date specified
//  in that file, in accordance with the Business Source License, use of this
//  software will be governed by the Apache License, Version 2.0, included in
//  the file licenses/APL2.txt.

package collection

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/kylelemons/godebug/pretty"
	"github.com/rcrowley/go-metrics"

	"github.com/couchbase/kvsdk/backend"
	"github.com/couchbase/kvsdk/backend/memory"
	"github.com/couchbase/kvsdk/errors"
	"github.com/couchbase/kvsdk/options"
	"github.com/couchbase/kvsdk/scan"
	"github.com/couchbase/kvsdk/subdoc"
	"github.com/couchbase/kvsdk/transcoder"
)

type airline struct {
	Name     string `json:"name"`
	Country  string `json:"country"`
	Callsign string `json:"callsign,omitempty"`
}

var testLoc = backend.Location{Bucket: "travel-sample", Scope: "inventory", Collection: "airline"}

func newTestCollection() *Collection {
	return New(memory.New(memory.DefaultOptions()), testLoc, nil)
}

func TestCrud(t *testing.T) {
	c := newTestCollection()
	ctx := context.Background()

	ins, err := c.Insert(ctx, "airline_10", airline{Name: "40-Mile Air", Country: "United States"}, nil)
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if ins.Cas() == 0 || ins.MutationToken() == nil {
		t.Errorf("Insert must return a cas and a token, got %d %v", ins.Cas(), ins.MutationToken())
	}
	if _, err := c.Insert(ctx, "airline_10", airline{}, nil); !errors.Is(err, errors.ErrDocumentExists) {
		t.Errorf("Expected document exists, got %v", err)
	}

	g, err := c.Get(ctx, "airline_10", nil)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	var a airline
	if err := g.Content(&a); err != nil {
		t.Fatalf("Content: %v", err)
	}
	if diff := pretty.Compare(a, airline{Name: "40-Mile Air", Country: "United States"}); diff != "" {
		t.Errorf("Unexpected content (-got +want):\n%s", diff)
	}
	if g.Cas() != ins.Cas() {
		t.Errorf("Expected cas %d, got %d", ins.Cas(), g.Cas())
	}

	ropts := options.DefaultReplace()
	ropts.Cas = g.Cas() + 1
	if _, err := c.Replace(ctx, "airline_10", airline{Name: "x"}, ropts); !errors.Is(err, errors.ErrCasMismatch) {
		t.Errorf("Expected cas mismatch, got %v", err)
	}
	ropts.Cas = g.Cas()
	if _, err := c.Replace(ctx, "airline_10", airline{Name: "40-Mile Air", Country: "US", Callsign: "MILE-AIR"}, ropts); err != nil {
		t.Fatalf("Replace: %v", err)
	}

	ex, err := c.Exists(ctx, "airline_10", nil)
	if err != nil || !ex.Exists() {
		t.Errorf("Expected the document to exist, got %+v (%v)", ex, err)
	}
	if _, err := c.Remove(ctx, "airline_10", nil); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	ex, err = c.Exists(ctx, "airline_10", nil)
	if err != nil || ex.Exists() {
		t.Errorf("A removed document must not exist, got %+v (%v)", ex, err)
	}
	if _, err := c.Get(ctx, "airline_10", nil); !errors.Is(err, errors.ErrDocumentNotFound) {
		t.Errorf("Expected not found, got %v", err)
	}
}

func TestLockAndTouch(t *testing.T) {
	c := newTestCollection()
	ctx := context.Background()
	c.Upsert(ctx, "airline_137", airline{Name: "Air France"}, nil)

	locked, err := c.GetAndLock(ctx, "airline_137", 5*time.Second, nil)
	if err != nil {
		t.Fatalf("GetAndLock: %v", err)
	}
	if _, err := c.Upsert(ctx, "airline_137", airline{}, nil); !errors.Is(err, errors.ErrDocumentLocked) {
		t.Errorf("A locked document must refuse writes, got %v", err)
	}
	if err := c.Unlock(ctx, "airline_137", locked.Cas(), nil); err != nil {
		t.Fatalf("Unlock: %v", err)
	}

	if _, err := c.Touch(ctx, "airline_137", options.ExpiryDuration(time.Hour), nil); err != nil {
		t.Fatalf("Touch: %v", err)
	}
	g, err := c.GetAndTouch(ctx, "airline_137", options.ExpiryDuration(2*time.Hour), nil)
	if err != nil {
		t.Fatalf("GetAndTouch: %v", err)
	}
	var a airline
	if err := g.Content(&a); err != nil || a.Name != "Air France" {
		t.Errorf("Unexpected content %+v (%v)", a, err)
	}

	opts := options.DefaultGet()
	opts.WithExpiry = true
	g, err = c.Get(ctx, "airline_137", opts)
	if err != nil {
		t.Fatalf("Get with expiry: %v", err)
	}
	exp, ok := g.Expiry()
	if !ok {
		t.Fatalf("Expected an expiry")
	}
	if d := time.Until(time.Unix(int64(exp), 0)); d < time.Hour || d > 2*time.Hour+time.Minute {
		t.Errorf("Expiry %d is not about two hours away", exp)
	}
}

func TestProjectedGet(t *testing.T) {
	c := newTestCollection()
	ctx := context.Background()
	doc := map[string]interface{}{
		"name":    "Texas Wings",
		"country": "United States",
		"geo":     map[string]interface{}{"lat": 32.7, "lon": -97.1, "alt": 600},
		"routes":  []interface{}{"DFW", "AUS", "IAH"},
	}
	if _, err := c.Upsert(ctx, "airline_10123", doc, nil); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	opts := options.DefaultGet().Project("name", "geo.lat", "missing.field", "routes[1]")
	g, err := c.Get(ctx, "airline_10123", opts)
	if err != nil {
		t.Fatalf("Projected get: %v", err)
	}
	var got map[string]interface{}
	if err := g.Content(&got); err != nil {
		t.Fatalf("Content: %v", err)
	}
	want := map[string]interface{}{
		"name":   "Texas Wings",
		"geo":    map[string]interface{}{"lat": 32.7},
		"routes": []interface{}{"AUS"},
	}
	if diff := pretty.Compare(got, want); diff != "" {
		t.Errorf("Unexpected projection (-got +want):\n%s", diff)
	}

	// one path more than a lookup can carry falls back to the full body
	wide := options.DefaultGet()
	wide.WithExpiry = true
	var paths []string
	for i := 0; i < options.MaxSubdocSpecs; i++ {
		paths = append(paths, fmt.Sprintf("f%d", i))
	}
	wide.Project(paths...).Project("name")
	g, err = c.Get(ctx, "airline_10123", wide)
	if err != nil {
		t.Fatalf("Wide projected get: %v", err)
	}
	got = nil
	if err := g.Content(&got); err != nil {
		t.Fatalf("Content: %v", err)
	}
	if diff := pretty.Compare(got, map[string]interface{}{"name": "Texas Wings"}); diff != "" {
		t.Errorf("Unexpected wide projection (-got +want):\n%s", diff)
	}
	if exp, ok := g.Expiry(); !ok || exp != 0 {
		t.Errorf("Expected a zero expiry, got %d %v", exp, ok)
	}

	if _, err := c.Get(ctx, "nope", options.DefaultGet().Project("name")); !errors.Is(err, errors.ErrDocumentNotFound) {
		t.Errorf("Expected not found, got %v", err)
	}

	reg := c.Metrics()
	if metrics.GetOrRegisterTimer(timerName("get_projected"), reg).Count() != 3 {
		t.Errorf("Projected gets must be timed on their own")
	}
}

func TestSubdoc(t *testing.T) {
	c := newTestCollection()
	ctx := context.Background()
	c.Upsert(ctx, "airline_1191", map[string]interface{}{"name": "Austrian", "fleet": []interface{}{}}, nil)

	push, _ := subdoc.MutateArrayAppend("fleet", "A320", "B767")
	up, _ := subdoc.MutateUpsert("meta.by", "importer")
	mr, err := c.MutateIn(ctx, "airline_1191", []*subdoc.MutateInSpec{push, up.Xattr().CreatePath()}, nil)
	if err != nil {
		t.Fatalf("MutateIn: %v", err)
	}
	if mr.MutationToken() == nil {
		t.Errorf("Expected a mutation token")
	}

	lr, err := c.LookupIn(ctx, "airline_1191", []*subdoc.LookupInSpec{
		subdoc.LookupCount("fleet"),
		subdoc.LookupGet("meta.by").Xattr(),
		subdoc.LookupExists("iata"),
	}, nil)
	if err != nil {
		t.Fatalf("LookupIn: %v", err)
	}
	var n int
	if err := lr.ContentAt(0, &n); err != nil || n != 2 {
		t.Errorf("Expected a count of 2, got %d (%v)", n, err)
	}
	var by string
	if err := lr.Content("meta.by", &by); err != nil || by != "importer" {
		t.Errorf("Unexpected xattr %q (%v)", by, err)
	}
	if ok, err := lr.Exists("iata"); ok || err != nil {
		t.Errorf("Expected iata to be absent, got %v %v", ok, err)
	}

	var specs []*subdoc.LookupInSpec
	for i := 0; i <= options.MaxSubdocSpecs; i++ {
		specs = append(specs, subdoc.LookupExists("name"))
	}
	if _, err := c.LookupIn(ctx, "airline_1191", specs, nil); !errors.Is(err, errors.ErrInvalidArgument) {
		t.Errorf("Too many specs must be rejected, got %v", err)
	}

	all, err := c.LookupInAllReplicas(ctx, "airline_1191", []*subdoc.LookupInSpec{subdoc.LookupGet("name")}, nil)
	if err != nil || len(all) == 0 {
		t.Fatalf("LookupInAllReplicas: %v %v", all, err)
	}
	if all[0].IsReplica() {
		t.Errorf("The active copy comes first")
	}
	one, err := c.LookupInAnyReplica(ctx, "airline_1191", []*subdoc.LookupInSpec{subdoc.LookupGet("name")}, nil)
	if err != nil {
		t.Fatalf("LookupInAnyReplica: %v", err)
	}
	var name string
	if err := one.ContentAt(0, &name); err != nil || name != "Austrian" {
		t.Errorf("Unexpected name %q (%v)", name, err)
	}
}

func TestReplicas(t *testing.T) {
	c := newTestCollection()
	ctx := context.Background()
	c.Upsert(ctx, "airline_2", airline{Name: "Aerocondor"}, nil)

	all, err := c.GetAllReplicas(ctx, "airline_2", nil)
	if err != nil {
		t.Fatalf("GetAllReplicas: %v", err)
	}
	if len(all) != 2 || all[0].IsReplica() || !all[1].IsReplica() {
		t.Errorf("Expected the active copy and one replica, got %d results", len(all))
	}
	r, err := c.GetAnyReplica(ctx, "airline_2", nil)
	if err != nil {
		t.Fatalf("GetAnyReplica: %v", err)
	}
	var a airline
	if err := r.Content(&a); err != nil || a.Name != "Aerocondor" {
		t.Errorf("Unexpected replica content %+v (%v)", a, err)
	}
}

func TestBinary(t *testing.T) {
	c := newTestCollection()
	ctx := context.Background()
	b := c.Binary()

	if _, err := b.Increment(ctx, "counter", nil); !errors.Is(err, errors.ErrDocumentNotFound) {
		t.Errorf("A counter without initial must not be created, got %v", err)
	}
	inc, err := options.NewIncrement(5)
	if err != nil {
		t.Fatalf("NewIncrement: %v", err)
	}
	initial := uint64(10)
	inc.Initial = &initial
	r, err := b.Increment(ctx, "counter", inc)
	if err != nil || r.Content() != 10 {
		t.Fatalf("Expected the initial value, got %v (%v)", r, err)
	}
	r, _ = b.Increment(ctx, "counter", inc)
	if r.Content() != 15 {
		t.Errorf("Expected 15, got %d", r.Content())
	}
	dec, _ := options.NewDecrement(100)
	r, err = b.Decrement(ctx, "counter", dec)
	if err != nil || r.Content() != 0 {
		t.Errorf("A decrement stops at zero, got %v (%v)", r, err)
	}
	if _, err := options.NewDecrement(-1); !errors.Is(err, errors.ErrInvalidArgument) {
		t.Errorf("A negative delta must be rejected, got %v", err)
	}

	raw := options.DefaultUpsert()
	raw.Transcoder = transcoder.NewRawBinary()
	c.Upsert(ctx, "log", []byte("b"), raw)
	b.Append(ctx, "log", []byte("c"), nil)
	b.Prepend(ctx, "log", []byte("a"), nil)
	gopts := options.DefaultGet()
	gopts.Transcoder = transcoder.NewRawBinary()
	g, err := c.Get(ctx, "log", gopts)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	var v []byte
	if err := g.Content(&v); err != nil || string(v) != "abc" {
		t.Errorf("Expected abc, got %q (%v)", v, err)
	}
}

func TestMulti(t *testing.T) {
	c := newTestCollection()
	ctx := context.Background()

	up, err := c.UpsertMulti(ctx, []options.IDValue{
		{ID: "airline_1", Value: airline{Name: "One"}},
		{ID: "airline_2", Value: airline{Name: "Two"}},
	}, nil)
	if err != nil || len(up) != 2 || !up[0].Success() || !up[1].Success() {
		t.Fatalf("UpsertMulti: %v (%v)", up, err)
	}

	gets, err := c.GetMulti(ctx, []string{"airline_2", "missing", "airline_1"}, nil)
	if err != nil {
		t.Fatalf("GetMulti: %v", err)
	}
	if gets[0].ID != "airline_2" || !gets[0].Success() || gets[2].ID != "airline_1" {
		t.Errorf("Results must follow the input order")
	}
	if !errors.Is(gets[1].Err, errors.ErrDocumentNotFound) || gets[1].Success() {
		t.Errorf("Expected a per item not found, got %v", gets[1].Err)
	}

	rm, err := c.RemoveMulti(ctx, []interface{}{"airline_1", RemoveEntry{ID: "airline_2", Cas: up[1].Cas()}, &RemoveEntry{ID: "missing"}}, nil)
	if err != nil {
		t.Fatalf("RemoveMulti: %v", err)
	}
	if !rm[0].Success() || !rm[1].Success() {
		t.Errorf("Expected both removals to succeed: %v %v", rm[0].Err, rm[1].Err)
	}
	if !errors.Is(rm[2].Err, errors.ErrDocumentNotFound) {
		t.Errorf("Expected a per item not found, got %v", rm[2].Err)
	}

	meter := metrics.GetOrRegisterMeter(errorMeterName("remove_multi"), c.Metrics())
	if meter.Count() != 1 {
		t.Errorf("Expected one failed item, got %d", meter.Count())
	}
}

type countingBackend struct {
	*memory.Backend
	removes  int
	deadline time.Duration
}

func (b *countingBackend) RemoveMulti(ctx context.Context, req *backend.RemoveMultiRequest) ([]*backend.MutationResponse, error) {
	b.removes++
	return b.Backend.RemoveMulti(ctx, req)
}

func (b *countingBackend) Get(ctx context.Context, req *backend.GetRequest) (*backend.GetResponse, error) {
	if dl, ok := ctx.Deadline(); ok {
		b.deadline = time.Until(dl)
	}
	return b.Backend.Get(ctx, req)
}

func TestRemoveMultiRejectsMalformedEntries(t *testing.T) {
	b := &countingBackend{Backend: memory.New(memory.DefaultOptions())}
	c := New(b, testLoc, nil)
	for _, bad := range []interface{}{42, []string{"a"}, (*RemoveEntry)(nil), nil} {
		_, err := c.RemoveMulti(context.Background(), []interface{}{"ok", bad}, nil)
		if !errors.Is(err, errors.ErrInvalidArgument) {
			t.Errorf("%#v: expected an invalid argument, got %v", bad, err)
		}
	}
	if b.removes != 0 {
		t.Errorf("Nothing may be sent for a malformed call, sent %d", b.removes)
	}
}

func TestDeadlineFromOptions(t *testing.T) {
	b := &countingBackend{Backend: memory.New(memory.DefaultOptions())}
	c := New(b, testLoc, metrics.NewRegistry())
	ctx := context.Background()
	c.Upsert(ctx, "k", 1, nil)

	c.Get(ctx, "k", nil)
	if b.deadline <= 0 || b.deadline > options.DefaultKVTimeout {
		t.Errorf("Expected the default timeout, got %v", b.deadline)
	}
	opts := options.DefaultGet()
	opts.Timeout = 100 * time.Millisecond
	c.Get(ctx, "k", opts)
	if b.deadline <= 0 || b.deadline > 100*time.Millisecond {
		t.Errorf("Expected the option timeout, got %v", b.deadline)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := c.Get(cancelled, "k", nil); err == nil {
		t.Errorf("A cancelled context must fail the call")
	}
	if metrics.GetOrRegisterMeter(errorMeterName("get"), c.Metrics()).Count() != 1 {
		t.Errorf("The failure must be counted")
	}
	if metrics.GetOrRegisterTimer(timerName("get"), c.Metrics()).Count() != 3 {
		t.Errorf("Every get must be timed")
	}
}

func TestScan(t *testing.T) {
	c := newTestCollection()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		c.Upsert(ctx, fmt.Sprintf("airline_%d", i), airline{Name: fmt.Sprintf("A%d", i)}, nil)
	}
	c.Upsert(ctx, "route_1", airline{}, nil)

	res, err := c.Scan(scan.PrefixScan{Prefix: "airline_"}, nil)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	items, err := res.All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(items) != 5 {
		t.Errorf("Expected 5 airlines, got %d", len(items))
	}
	for _, it := range items {
		var a airline
		if err := it.Document.Content(&a); err != nil || a.Name == "" {
			t.Errorf("%s: unexpected content %+v (%v)", it.ID, a, err)
		}
	}

	opts := options.DefaultScan()
	opts.IDsOnly = true
	res, _ = c.Scan(scan.RangeScan{From: &scan.Term{Term: "route"}}, opts)
	items, err = res.All(ctx)
	if err != nil || len(items) != 1 || items[0].ID != "route_1" || items[0].Document != nil {
		t.Errorf("Unexpected ids only scan %v (%v)", items, err)
	}

	if _, err := c.Scan(scan.SamplingScan{}, nil); !errors.Is(err, errors.ErrInvalidArgument) {
		t.Errorf("A zero sampling limit must be rejected, got %v", err)
	}
	if _, err := c.Scan(nil, nil); !errors.Is(err, errors.ErrInvalidArgument) {
		t.Errorf("A missing scan type must be rejected, got %v", err)
	}
}

func TestPlace(t *testing.T) {
	var root interface{} = map[string]interface{}{}
	for _, s := range []string{"a.b", "a.c", "d[0].e"} {
		p, err := subdoc.ParsePath(s)
		if err != nil {
			t.Fatalf("ParsePath: %v", err)
		}
		root = place(root, p, s)
	}
	want := map[string]interface{}{
		"a": map[string]interface{}{"b": "a.b", "c": "a.c"},
		"d": []interface{}{map[string]interface{}{"e": "d[0].e"}},
	}
	if diff := pretty.Compare(root, want); diff != "" {
		t.Errorf("Unexpected tree (-got +want):\n%s", diff)
	}
}
