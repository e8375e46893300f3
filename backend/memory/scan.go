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
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/couchbase/kvsdk/backend"
	"github.com/couchbase/kvsdk/errors"
	"github.com/couchbase/kvsdk/logging"
)

type partitionCursor struct {
	vb      uint16
	lastKey string
	started bool
}

// scanStream pulls batches from up to concurrency partitions in turn,
// so items of different partitions interleave.
type scanStream struct {
	sync.Mutex
	b         *Backend
	c         *collection
	req       *backend.ScanRequest
	itemLimit int
	byteLimit int

	pending  []uint16
	active   []*partitionCursor
	next     int
	buffer   []*backend.ScanItem
	canceled bool
}

func (b *Backend) Scan(ctx context.Context, req *backend.ScanRequest) (backend.ScanStream, error) {
	exit, err := b.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer exit()

	if req.Concurrency == 0 {
		return nil, errors.NewInvalidArgument("scan concurrency must be at least one")
	}
	if req.Type.Kind == backend.ScanSampling && req.Type.Limit == 0 {
		return nil, errors.NewInvalidArgument("sampling scan limit must be greater than zero")
	}
	bk, c, err := b.collection(req.Location)
	if err != nil {
		return nil, err
	}
	for _, t := range req.MutationState {
		if t.BucketName != bk.name {
			continue
		}
		vb := &bk.vbuckets[t.PartitionID%_NUM_VBUCKETS]
		if vb.uuid != t.PartitionUUID || vb.seqno.Load() < t.SequenceNumber {
			return nil, errors.NewKVError(errors.E_SCAN_SNAPSHOT, t.PartitionID)
		}
	}

	s := &scanStream{
		b:         b,
		c:         c,
		req:       req,
		itemLimit: _DEFAULT_BATCH_ITEM_LIMIT,
		byteLimit: _DEFAULT_BATCH_BYTE_LIMIT,
	}
	if req.BatchItemLimit != nil && *req.BatchItemLimit > 0 {
		s.itemLimit = int(*req.BatchItemLimit)
	}
	if req.BatchByteLimit != nil && *req.BatchByteLimit > 0 {
		s.byteLimit = int(*req.BatchByteLimit)
	}
	if req.Type.Kind == backend.ScanSampling {
		s.buffer = s.sample()
		return s, nil
	}
	s.pending = s.partitions()
	logging.Debuga(func() string {
		return fmt.Sprintf("memory backend: scan of %s opened on %d partitions with concurrency %d", c.loc, len(s.pending), req.Concurrency)
	})
	return s, nil
}

// partitions lists, in order, the partitions holding documents when the
// scan opens. Partitions that gain their first document later are not
// visited.
func (s *scanStream) partitions() []uint16 {
	var seen [_NUM_VBUCKETS]bool
	s.c.RLock()
	for _, d := range s.c.docs {
		seen[d.vb] = true
	}
	s.c.RUnlock()
	var rv []uint16
	for vb, ok := range seen {
		if ok {
			rv = append(rv, uint16(vb))
		}
	}
	return rv
}

func (s *scanStream) matches(key string) bool {
	t := s.req.Type
	switch t.Kind {
	case backend.ScanPrefix:
		return strings.HasPrefix(key, t.Prefix)
	case backend.ScanRange:
		if t.From != nil {
			if key < t.From.Term || (t.From.Exclusive && key == t.From.Term) {
				return false
			}
		}
		if t.To != nil {
			if key > t.To.Term || (t.To.Exclusive && key == t.To.Term) {
				return false
			}
		}
		return true
	}
	return true
}

func (s *scanStream) item(id string, d *document) *backend.ScanItem {
	if s.req.IDsOnly {
		return &backend.ScanItem{ID: id, IDOnly: true}
	}
	return &backend.ScanItem{ID: id, Cas: d.cas, Expiry: d.expiry, Value: d.value(), Flags: d.flags}
}

func (s *scanStream) sample() []*backend.ScanItem {
	seed := time.Now().UnixNano()
	if s.req.Type.Seed != nil {
		seed = int64(*s.req.Type.Seed)
	}
	now := s.b.now()
	s.c.RLock()
	keys := make([]string, 0, len(s.c.docs))
	for k, d := range s.c.docs {
		if live(d, now) {
			keys = append(keys, k)
		}
	}
	// map order is random, sort so a seed always draws the same sample
	sort.Strings(keys)
	r := rand.New(rand.NewSource(seed))
	r.Shuffle(len(keys), func(i, j int) { keys[i], keys[j] = keys[j], keys[i] })
	if uint64(len(keys)) > s.req.Type.Limit {
		keys = keys[:s.req.Type.Limit]
	}
	rv := make([]*backend.ScanItem, 0, len(keys))
	for _, k := range keys {
		rv = append(rv, s.item(k, s.c.docs[k]))
	}
	s.c.RUnlock()
	return rv
}

// fill reads the next batch of a partition; it reports false once the
// partition has nothing left.
func (s *scanStream) fill(p *partitionCursor) bool {
	now := s.b.now()
	s.c.RLock()
	defer s.c.RUnlock()

	var keys []string
	for k, d := range s.c.docs {
		if d.vb != p.vb || !live(d, now) || (p.started && k <= p.lastKey) || !s.matches(k) {
			continue
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return false
	}
	sort.Strings(keys)
	bytes := 0
	for _, k := range keys {
		if len(s.buffer) > 0 && (len(s.buffer) >= s.itemLimit || bytes >= s.byteLimit) {
			break
		}
		it := s.item(k, s.c.docs[k])
		bytes += len(it.ID) + len(it.Value)
		s.buffer = append(s.buffer, it)
		p.lastKey = k
		p.started = true
	}
	return true
}

func (s *scanStream) Next(ctx context.Context) (*backend.ScanItem, error) {
	s.Lock()
	defer s.Unlock()
	if s.canceled {
		return nil, errors.NewKVError(errors.E_SCAN_CLOSED)
	}
	if err := ctxErr(ctx, false); err != nil {
		return nil, err
	}
	for len(s.buffer) == 0 {
		for len(s.active) < int(s.req.Concurrency) && len(s.pending) > 0 {
			s.active = append(s.active, &partitionCursor{vb: s.pending[0]})
			s.pending = s.pending[1:]
		}
		if len(s.active) == 0 {
			return nil, nil
		}
		if s.next >= len(s.active) {
			s.next = 0
		}
		p := s.active[s.next]
		if s.fill(p) {
			s.next++
		} else {
			s.active = append(s.active[:s.next], s.active[s.next+1:]...)
		}
	}
	it := s.buffer[0]
	s.buffer = s.buffer[1:]
	return it, nil
}

func (s *scanStream) Cancel() {
	s.Lock()
	defer s.Unlock()
	s.canceled = true
	s.buffer = nil
	s.active = nil
	s.pending = nil
}
