//  Copyright 2026-Present Couchbase, Inc.
//
//  Use of this software is governed by the Business Source License included
//  in the file licenses/BSL-Couchbase.txt.  As of the Change Date specified
//  in that file, in accordance with the Business Source License, use of this
//  software will be governed by the Apache License, Version 2.0, included in
//  the file licenses/APL2.txt.

/*
Package memory is an in-process, single node cluster implementing
backend.Backend.

Keys are hashed to 1024 partitions the way the server does it. Each
partition keeps a UUID and a sequence number so mutation tokens and
scan consistency behave as against a live bucket. Replicas are exact
copies of the active document, kept in step synchronously.
*/
package memory

import (
	"context"
	"hash/crc32"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/couchbase/kvsdk/backend"
	"github.com/couchbase/kvsdk/errors"
	"github.com/couchbase/kvsdk/logging"
	"github.com/couchbase/kvsdk/mutation"
)

const (
	_NUM_VBUCKETS           = 1024
	_RELATIVE_EXPIRY_CUTOFF = 30 * 24 * 60 * 60
	_DEFAULT_LOCK_TIME      = 15 * time.Second
	_MAX_LOCK_TIME          = 30 * time.Second
	_LOCKED_CAS             = ^uint64(0)

	_DEFAULT_COMPRESSION_THRESHOLD = 64
	_DEFAULT_MAX_VALUE_SIZE        = 20 * 1024 * 1024
	_DEFAULT_BATCH_ITEM_LIMIT      = 50
	_DEFAULT_BATCH_BYTE_LIMIT      = 15000
)

type Options struct {
	// Buckets restricts the bucket names that can be opened; empty
	// accepts any name.
	Buckets []string

	// Replicas is the number of replica copies of every document.
	Replicas int

	// Values larger than this are stored snappy compressed; zero
	// disables compression.
	CompressionThreshold int

	MaxValueSize int

	// Clock overrides time.Now, for expiry tests.
	Clock func() time.Time
}

func DefaultOptions() Options {
	return Options{
		Replicas:             1,
		CompressionThreshold: _DEFAULT_COMPRESSION_THRESHOLD,
		MaxValueSize:         _DEFAULT_MAX_VALUE_SIZE,
	}
}

type vbucket struct {
	sync.Mutex // serializes writers of the partition
	uuid       uint64
	seqno      atomic.Uint64
}

type bucket struct {
	name     string
	vbuckets [_NUM_VBUCKETS]vbucket
}

type collection struct {
	sync.RWMutex
	loc  backend.Location
	docs map[string]*document
}

var _ backend.Backend = (*Backend)(nil)

type Backend struct {
	opts        Options
	buckets     *xsync.MapOf[string, *bucket]
	collections *xsync.MapOf[backend.Location, *collection]
	lastCas     atomic.Uint64
	closed      atomic.Bool

	// held for writing between ForkPrepare and ForkParent/ForkChild
	gate    sync.RWMutex
	forkMu  sync.Mutex
	forking bool
}

func New(opts Options) *Backend {
	if opts.MaxValueSize <= 0 {
		opts.MaxValueSize = _DEFAULT_MAX_VALUE_SIZE
	}
	if opts.Replicas < 0 {
		opts.Replicas = 0
	}
	logging.Infof("memory backend: %d replicas, compression threshold %d", opts.Replicas, opts.CompressionThreshold)
	return &Backend{
		opts:        opts,
		buckets:     xsync.NewMapOf[string, *bucket](),
		collections: xsync.NewMapOf[backend.Location, *collection](),
	}
}

func (b *Backend) now() time.Time {
	if b.opts.Clock != nil {
		return b.opts.Clock()
	}
	return time.Now()
}

// nextCas is strictly increasing and derived from the clock, like the
// server's hybrid logical clock.
func (b *Backend) nextCas() uint64 {
	for {
		last := b.lastCas.Load()
		next := uint64(b.now().UnixNano())
		if next <= last {
			next = last + 1
		}
		if next == _LOCKED_CAS {
			next = 1
		}
		if b.lastCas.CompareAndSwap(last, next) {
			return next
		}
	}
}

// VBucketOf is the partition a key hashes to.
func VBucketOf(key string) uint16 {
	return uint16(((crc32.ChecksumIEEE([]byte(key)) >> 16) & 0x7fff) % _NUM_VBUCKETS)
}

func (b *Backend) bucket(name string) (*bucket, error) {
	if bk, ok := b.buckets.Load(name); ok {
		return bk, nil
	}
	if len(b.opts.Buckets) > 0 {
		found := false
		for _, n := range b.opts.Buckets {
			if n == name {
				found = true
				break
			}
		}
		if !found {
			return nil, errors.NewKVError(errors.E_BUCKET_NOT_FOUND, name)
		}
	}
	bk, _ := b.buckets.LoadOrCompute(name, func() *bucket {
		nb := &bucket{name: name}
		r := rand.New(rand.NewSource(time.Now().UnixNano()))
		for i := range nb.vbuckets {
			nb.vbuckets[i].uuid = r.Uint64()
		}
		return nb
	})
	return bk, nil
}

func (b *Backend) collection(loc backend.Location) (*bucket, *collection, error) {
	bk, err := b.bucket(loc.Bucket)
	if err != nil {
		return nil, nil, err
	}
	key := backend.Location{Bucket: loc.Bucket, Scope: loc.ScopeName(), Collection: loc.CollectionName()}
	c, _ := b.collections.LoadOrCompute(key, func() *collection {
		return &collection{loc: key, docs: make(map[string]*document)}
	})
	return bk, c, nil
}

// enter admits an operation. Operations started during a fork window
// wait for it to end.
func (b *Backend) enter(ctx context.Context) (func(), error) {
	if b.closed.Load() {
		return nil, errors.NewKVError(errors.E_SERVICE_NOT_AVAILABLE, "memory backend is closed")
	}
	if err := ctxErr(ctx, false); err != nil {
		return nil, err
	}
	b.gate.RLock()
	return b.gate.RUnlock, nil
}

// ctxErr maps a finished context onto a timeout or cancellation.
func ctxErr(ctx context.Context, ambiguous bool) error {
	switch ctx.Err() {
	case nil:
		return nil
	case context.DeadlineExceeded:
		return errors.NewTimeout(ambiguous, ctx.Err())
	default:
		return errors.NewKVError(errors.E_REQUEST_CANCELED, ctx.Err())
	}
}

func (b *Backend) token(bk *bucket, vb uint16, seqno uint64) *mutation.Token {
	return &mutation.Token{
		BucketName:     bk.name,
		PartitionID:    vb,
		PartitionUUID:  bk.vbuckets[vb].uuid,
		SequenceNumber: seqno,
	}
}

func (b *Backend) checkDurability(d backend.Durability) error {
	if d.IsNone() {
		return nil
	}
	nodes := b.opts.Replicas + 1
	if int(d.ReplicateTo) > b.opts.Replicas {
		return errors.NewKVError(errors.E_DURABILITY_IMPOSSIBLE, "replicate_to exceeds the configured replicas")
	}
	persist := int(d.PersistTo)
	if d.PersistTo >= backend.PersistToOne {
		persist = int(d.PersistTo) - 1
	}
	if persist > nodes {
		return errors.NewKVError(errors.E_DURABILITY_IMPOSSIBLE, "persist_to exceeds the configured nodes")
	}
	return nil
}

// absoluteExpiry converts a wire expiry to an absolute unix time.
func (b *Backend) absoluteExpiry(expiry uint32) uint32 {
	if expiry == 0 || expiry >= _RELATIVE_EXPIRY_CUTOFF {
		return expiry
	}
	return uint32(b.now().Unix()) + expiry
}

func (b *Backend) Query(ctx context.Context, req *backend.QueryRequest) (*backend.QueryResponse, error) {
	return nil, errors.NewFeatureNotAvailable("query on the memory backend")
}

// NotifyFork blocks new operations from ForkPrepare until the matching
// ForkParent or ForkChild.
func (b *Backend) NotifyFork(event backend.ForkEvent) error {
	b.forkMu.Lock()
	defer b.forkMu.Unlock()
	switch event {
	case backend.ForkPrepare:
		if b.forking {
			return errors.NewInvalidArgument("fork already in progress")
		}
		b.gate.Lock()
		b.forking = true
	case backend.ForkParent, backend.ForkChild:
		if !b.forking {
			return errors.NewInvalidArgument("fork %s without prepare", event)
		}
		b.forking = false
		b.gate.Unlock()
	default:
		return errors.NewInvalidArgument("unknown fork event %d", int(event))
	}
	logging.Debugf("memory backend: fork %s", event)
	return nil
}

func (b *Backend) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil
	}
	logging.Infof("memory backend: closed")
	return nil
}
