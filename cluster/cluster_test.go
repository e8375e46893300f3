//  Copyright 2026-Present Couchbase, Inc.
//
//  Use of this software is governed by the Business Source License included
//  in the file licenses/BSL-Couchbase.txt.  As of the Change Date specified
//  in that file, in accordance with the Business Source License, use of this
//  software will be governed by the Apache License, Version 2.0, included in
//  the file licenses/APL2.txt.

package cluster

import (
	"context"
	"testing"

	"github.com/kylelemons/godebug/pretty"
	"github.com/rcrowley/go-metrics"

	"github.com/couchbase/kvsdk/backend"
	"github.com/couchbase/kvsdk/backend/gcagent"
	"github.com/couchbase/kvsdk/backend/memory"
	"github.com/couchbase/kvsdk/errors"
)

func TestDefaultRegistry(t *testing.T) {
	reg := NewDefaultRegistry()
	ctx := context.Background()

	c, err := Connect(ctx, reg, "couchbase://127.0.0.1", &ClusterOptions{Username: "Administrator", Password: "password"})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if _, ok := c.Backend().(*gcagent.Client); !ok {
		t.Errorf("couchbase:// must open a gocbcore client, got %T", c.Backend())
	}
	c.Close()

	c, err = Connect(ctx, reg, "mem://local", nil)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if _, ok := c.Backend().(*memory.Backend); !ok {
		t.Errorf("mem:// must open a memory backend, got %T", c.Backend())
	}
	c.Close()

	if _, err := Connect(ctx, reg, "couchbase2://127.0.0.1", nil); !errors.Is(err, errors.ErrFeatureNotAvailable) {
		t.Errorf("Expected feature not available, got %v", err)
	}
	if _, err := Connect(ctx, reg, "http://127.0.0.1:8091", nil); !errors.Is(err, errors.ErrInvalidArgument) {
		t.Errorf("Expected invalid argument, got %v", err)
	}
	if _, err := Connect(ctx, nil, "mem://", nil); !errors.Is(err, errors.ErrInvalidArgument) {
		t.Errorf("A registry is required, got %v", err)
	}
}

func TestRegistryOrder(t *testing.T) {
	reg := NewRegistry()
	var opened []string
	open := func(name string) Factory {
		return func(context.Context, string, *ClusterOptions) (backend.Backend, error) {
			opened = append(opened, name)
			return memory.New(memory.DefaultOptions()), nil
		}
	}
	reg.MustRegister(`^mem://special`, open("special"))
	reg.MustRegister(`^mem://`, open("generic"))

	for _, s := range []string{"mem://special/x", "mem://other"} {
		f, err := reg.Resolve(s)
		if err != nil {
			t.Fatalf("Resolve %s: %v", s, err)
		}
		f(context.Background(), s, &ClusterOptions{})
	}
	if diff := pretty.Compare(opened, []string{"special", "generic"}); diff != "" {
		t.Errorf("The first matching pattern must win (-got +want):\n%s", diff)
	}
	if err := reg.Register(`(`, open("bad")); !errors.Is(err, errors.ErrInvalidArgument) {
		t.Errorf("A bad pattern must be rejected, got %v", err)
	}
	if err := reg.Register(`^x://`, nil); !errors.Is(err, errors.ErrInvalidArgument) {
		t.Errorf("A nil factory must be rejected, got %v", err)
	}

	// registries are independent
	if _, err := NewRegistry().Resolve("mem://other"); err == nil {
		t.Errorf("A fresh registry must not know other registries' patterns")
	}
}

func TestHandles(t *testing.T) {
	reg := metrics.NewRegistry()
	c, err := Connect(context.Background(), NewDefaultRegistry(), "mem://", &ClusterOptions{Metrics: reg})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Close()

	coll := c.Bucket("travel-sample").Scope("inventory").Collection("airline")
	want := backend.Location{Bucket: "travel-sample", Scope: "inventory", Collection: "airline"}
	if diff := pretty.Compare(coll.Location(), want); diff != "" {
		t.Errorf("Unexpected location (-got +want):\n%s", diff)
	}
	def := c.Bucket("travel-sample").DefaultCollection()
	if def.ScopeName() != backend.DefaultScope || def.Name() != backend.DefaultCollection {
		t.Errorf("Unexpected default collection %s", def.Location())
	}
	if coll.Metrics() != reg {
		t.Errorf("Collections must record into the cluster's metrics registry")
	}

	ctx := context.Background()
	if _, err := coll.Upsert(ctx, "airline_10", map[string]string{"name": "40-Mile Air"}, nil); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	other := c.Bucket("travel-sample").Scope("inventory").Collection("airline")
	if _, err := other.Get(ctx, "airline_10", nil); err != nil {
		t.Errorf("Handles to one collection must share the backend: %v", err)
	}
	if _, err := def.Get(ctx, "airline_10", nil); !errors.Is(err, errors.ErrDocumentNotFound) {
		t.Errorf("Collections must be isolated, got %v", err)
	}
	if metrics.GetOrRegisterTimer("kv.upsert", reg).Count() != 1 {
		t.Errorf("Expected one timed upsert")
	}

	if _, err := c.Query(ctx, "SELECT 1", nil); !errors.Is(err, errors.ErrFeatureNotAvailable) {
		t.Errorf("The memory backend has no query service, got %v", err)
	}
}

func TestForkAndClose(t *testing.T) {
	c, err := Connect(context.Background(), NewDefaultRegistry(), "mem://", nil)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := c.NotifyFork(backend.ForkChild); !errors.Is(err, errors.ErrInvalidArgument) {
		t.Errorf("A fork must be prepared first, got %v", err)
	}
	for _, e := range []backend.ForkEvent{backend.ForkPrepare, backend.ForkChild, backend.ForkPrepare, backend.ForkParent} {
		if err := c.NotifyFork(e); err != nil {
			t.Fatalf("NotifyFork %s: %v", e, err)
		}
	}
	coll := c.Bucket("b").DefaultCollection()
	if _, err := coll.Upsert(context.Background(), "k", 1, nil); err != nil {
		t.Errorf("Operations must resume after a fork: %v", err)
	}

	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Errorf("Close must be idempotent: %v", err)
	}
	if _, err := coll.Get(context.Background(), "k", nil); !errors.IsCode(err, errors.E_SERVICE_NOT_AVAILABLE) {
		t.Errorf("A closed cluster must refuse operations, got %v", err)
	}
}
