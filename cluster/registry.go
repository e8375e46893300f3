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
	"regexp"
	"sync"

	"github.com/couchbase/kvsdk/backend"
	"github.com/couchbase/kvsdk/backend/gcagent"
	"github.com/couchbase/kvsdk/backend/memory"
	"github.com/couchbase/kvsdk/errors"
)

// Factory opens the backend for a connection string matched by its
// pattern.
type Factory func(ctx context.Context, connStr string, opts *ClusterOptions) (backend.Backend, error)

type entry struct {
	pattern *regexp.Regexp
	factory Factory
}

// Registry routes connection strings to backends. Patterns are tried in
// registration order and the first match wins. A registry is owned by
// whoever builds connections; there is no process wide instance.
type Registry struct {
	sync.RWMutex
	entries []entry
}

func NewRegistry() *Registry {
	return &Registry{}
}

// NewDefaultRegistry knows couchbase:// and couchbases:// (gocbcore),
// mem:// (in-process) and couchbase2://, which is refused.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.MustRegister(`^couchbases?://`, openGocbcore)
	r.MustRegister(`^mem://`, openMemory)
	r.MustRegister(`^couchbase2://`, func(context.Context, string, *ClusterOptions) (backend.Backend, error) {
		return nil, errors.NewFeatureNotAvailable("couchbase2:// (protostellar) connections")
	})
	return r
}

func (r *Registry) Register(pattern string, f Factory) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return errors.NewInvalidArgument("connection string pattern %q: %v", pattern, err)
	}
	if f == nil {
		return errors.NewInvalidArgument("connection string pattern %q has no factory", pattern)
	}
	r.Lock()
	r.entries = append(r.entries, entry{pattern: re, factory: f})
	r.Unlock()
	return nil
}

func (r *Registry) MustRegister(pattern string, f Factory) {
	if err := r.Register(pattern, f); err != nil {
		panic(err)
	}
}

func (r *Registry) Resolve(connStr string) (Factory, error) {
	r.RLock()
	defer r.RUnlock()
	for _, e := range r.entries {
		if e.pattern.MatchString(connStr) {
			return e.factory, nil
		}
	}
	return nil, errors.NewInvalidArgument("no backend for connection string %q", connStr)
}

func openGocbcore(ctx context.Context, connStr string, opts *ClusterOptions) (backend.Backend, error) {
	return gcagent.NewClient(gcagent.Config{
		ConnStr:          connStr,
		Username:         opts.Username,
		Password:         opts.Password,
		ServiceAuth:      opts.ServiceAuth,
		CertFile:         opts.CertFile,
		KVPoolSize:       opts.KVPoolSize,
		ConnectTimeout:   opts.ConnectTimeout,
		KVConnectTimeout: opts.KVConnectTimeout,
		KVTimeout:        opts.KVTimeout,
	})
}

func openMemory(ctx context.Context, connStr string, opts *ClusterOptions) (backend.Backend, error) {
	mo := memory.DefaultOptions()
	if opts.Memory != nil {
		mo = *opts.Memory
	}
	return memory.New(mo), nil
}
