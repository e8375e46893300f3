//  Copyright 2026-Present Couchbase, Inc.
//
//  Use of this software is governed by the Business Source License included
//  in the file licenses/BSL-Couchbase.txt.  As of the Change Date specified
//  in that file, in accordance with the Business Source License, use of this
//  software will be governed by the Apache License, Version 2.0, included in
//  the file licenses/APL2.txt.

/*
Package cluster opens connections and hands out bucket, scope and
collection handles bound to them.

	reg := cluster.NewDefaultRegistry()
	c, err := cluster.Connect(ctx, reg, "couchbase://127.0.0.1", &cluster.ClusterOptions{
		Username: "Administrator",
		Password: "password",
	})
	...
	coll := c.Bucket("travel-sample").Scope("inventory").Collection("airline")
*/
package cluster

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	json "github.com/couchbase/go_json"
	"github.com/rcrowley/go-metrics"

	"github.com/couchbase/kvsdk/backend"
	"github.com/couchbase/kvsdk/backend/memory"
	"github.com/couchbase/kvsdk/collection"
	"github.com/couchbase/kvsdk/errors"
	"github.com/couchbase/kvsdk/logging"
	"github.com/couchbase/kvsdk/options"
)

type ClusterOptions struct {
	Username string
	Password string

	// ServiceAuth takes credentials from cbauth, for code running as a
	// cluster service.
	ServiceAuth bool

	// CertFile holds the root CAs for couchbases:// connections.
	CertFile string

	KVPoolSize       int
	ConnectTimeout   time.Duration
	KVConnectTimeout time.Duration
	KVTimeout        time.Duration

	// Metrics receives the per operation timers and error meters. A
	// private registry is created when nil.
	Metrics metrics.Registry

	// Memory configures mem:// connections.
	Memory *memory.Options
}

type Cluster struct {
	connStr string
	backend backend.Backend
	metrics metrics.Registry
	closed  atomic.Bool
}

// Connect resolves connStr through the registry and opens its backend.
func Connect(ctx context.Context, registry *Registry, connStr string, opts *ClusterOptions) (*Cluster, error) {
	if registry == nil {
		return nil, errors.NewInvalidArgument("a registry is required")
	}
	if opts == nil {
		opts = &ClusterOptions{}
	}
	factory, err := registry.Resolve(connStr)
	if err != nil {
		return nil, err
	}
	b, err := factory(ctx, connStr, opts)
	if err != nil {
		return nil, err
	}
	return NewCluster(connStr, b, opts.Metrics), nil
}

// NewCluster wraps an already open backend.
func NewCluster(connStr string, b backend.Backend, registry metrics.Registry) *Cluster {
	if registry == nil {
		registry = metrics.NewRegistry()
	}
	logging.Infof("cluster: connected to %s", redact(connStr))
	return &Cluster{connStr: connStr, backend: b, metrics: registry}
}

func (c *Cluster) Backend() backend.Backend  { return c.backend }
func (c *Cluster) Metrics() metrics.Registry { return c.metrics }

func (c *Cluster) Bucket(name string) *Bucket {
	return &Bucket{cluster: c, name: name}
}

// NotifyFork must be called by whatever forks the process: with
// ForkPrepare before the fork, then ForkParent or ForkChild after it.
func (c *Cluster) NotifyFork(event backend.ForkEvent) error {
	logging.Debugf("cluster: fork %s", event)
	return c.backend.NotifyFork(event)
}

func (c *Cluster) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	logging.Infof("cluster: closing %s", redact(c.connStr))
	return c.backend.Close()
}

// redact drops the options of a connection string, which may carry
// secrets, before it is logged.
func redact(connStr string) string {
	s, _, _ := strings.Cut(connStr, "?")
	return s
}

type QueryResult struct {
	rows [][]byte
	meta []byte
}

func (r *QueryResult) Len() int { return len(r.rows) }

// Rows returns the raw JSON rows.
func (r *QueryResult) Rows() []json.RawMessage {
	rv := make([]json.RawMessage, len(r.rows))
	for i, row := range r.rows {
		rv[i] = row
	}
	return rv
}

func (r *QueryResult) Row(i int, valuePtr interface{}) error {
	if i < 0 || i >= len(r.rows) {
		return errors.NewInvalidArgument("row %d out of range [0, %d)", i, len(r.rows))
	}
	if err := json.Unmarshal(r.rows[i], valuePtr); err != nil {
		return errors.NewDecodingFailure("query row", err)
	}
	return nil
}

// One decodes the first row; a result without rows is a not found.
func (r *QueryResult) One(valuePtr interface{}) error {
	if len(r.rows) == 0 {
		return errors.NewKVError(errors.E_DOCUMENT_NOT_FOUND, "query returned no rows")
	}
	return r.Row(0, valuePtr)
}

// MetaData decodes the trailing metadata: status, metrics, warnings.
func (r *QueryResult) MetaData(valuePtr interface{}) error {
	if len(r.meta) == 0 {
		return errors.NewDecodingFailure("query returned no metadata")
	}
	if err := json.Unmarshal(r.meta, valuePtr); err != nil {
		return errors.NewDecodingFailure("query metadata", err)
	}
	return nil
}

func (c *Cluster) Query(ctx context.Context, statement string, opts *options.Query) (*QueryResult, error) {
	if opts == nil {
		opts = options.DefaultQuery()
	}
	req, err := opts.Request(statement)
	if err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, req.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.backend.Query(ctx, req)
	metrics.GetOrRegisterTimer("query", c.metrics).UpdateSince(start)
	if err != nil {
		metrics.GetOrRegisterMeter("query.errors", c.metrics).Mark(1)
		logging.Debugf("cluster: query failed: %v", err)
		return nil, err
	}
	return &QueryResult{rows: resp.Rows, meta: resp.Meta}, nil
}

type Bucket struct {
	cluster *Cluster
	name    string
}

func (b *Bucket) Name() string { return b.name }

func (b *Bucket) Scope(name string) *Scope {
	return &Scope{bucket: b, name: name}
}

func (b *Bucket) DefaultScope() *Scope {
	return b.Scope(backend.DefaultScope)
}

// Collection opens a collection of the default scope.
func (b *Bucket) Collection(name string) *collection.Collection {
	return b.DefaultScope().Collection(name)
}

func (b *Bucket) DefaultCollection() *collection.Collection {
	return b.DefaultScope().Collection(backend.DefaultCollection)
}

type Scope struct {
	bucket *Bucket
	name   string
}

func (s *Scope) Name() string       { return s.name }
func (s *Scope) BucketName() string { return s.bucket.name }

func (s *Scope) Collection(name string) *collection.Collection {
	c := s.bucket.cluster
	loc := backend.Location{Bucket: s.bucket.name, Scope: s.name, Collection: name}
	return collection.New(c.backend, loc, c.metrics)
}
