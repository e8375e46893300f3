//  Copyright 2026-Present Couchbase, Inc.
//
//  Use of this software is governed by the Business Source License included
//  in the file licenses/BSL-Couchbase.txt.  As of the Change Date specified
//  in that file, in accordance with the Business Source License, use of this
//  software will be governed by the Apache License, Version 2.0, included in
//  the file licenses/APL2.txt.

package gcagent

import (
	"context"
	"net"
	"strconv"
	"sync"

	"github.com/couchbase/cbauth"
	json "github.com/couchbase/go_json"
	"github.com/couchbase/gocb/v2"

	"github.com/couchbase/kvsdk/backend"
	"github.com/couchbase/kvsdk/errors"
	"github.com/couchbase/kvsdk/logging"
	"github.com/couchbase/kvsdk/mutation"
)

const _DEFAULT_KV_PORT = 11210

// scanProvider owns the gocb cluster used for range scans, opened on
// the first scan.
type scanProvider struct {
	client  *Client
	mutex   sync.Mutex
	cluster *gocb.Cluster
}

func newScanProvider(c *Client) *scanProvider {
	return &scanProvider{client: c}
}

func (sp *scanProvider) authenticator() (gocb.Authenticator, error) {
	cfg := sp.client.config
	if !cfg.ServiceAuth {
		return gocb.PasswordAuthenticator{Username: cfg.Username, Password: cfg.Password}, nil
	}
	addr := sp.client.spec.Addresses[0]
	port := addr.Port
	if port <= 0 {
		port = _DEFAULT_KV_PORT
	}
	username, password, err := cbauth.GetMemcachedServiceAuth(net.JoinHostPort(addr.Host, strconv.Itoa(port)))
	if err != nil {
		return nil, errors.NewKVError(errors.E_AUTHENTICATION_FAILURE, err)
	}
	return gocb.PasswordAuthenticator{Username: username, Password: password}, nil
}

func (sp *scanProvider) collection(loc backend.Location) (*gocb.Collection, error) {
	sp.mutex.Lock()
	defer sp.mutex.Unlock()
	if sp.cluster == nil {
		auth, err := sp.authenticator()
		if err != nil {
			return nil, err
		}
		cfg := sp.client.config
		cluster, err := gocb.Connect(cfg.ConnStr, gocb.ClusterOptions{
			Authenticator: auth,
			SecurityConfig: gocb.SecurityConfig{
				TLSRootCAs: sp.client.TLSRootCAs(),
			},
			TimeoutsConfig: gocb.TimeoutsConfig{
				ConnectTimeout: cfg.ConnectTimeout,
				KVTimeout:      cfg.KVTimeout,
			},
		})
		if err != nil {
			return nil, mapError(err, "")
		}
		sp.cluster = cluster
		logging.Debugf("gcagent: scan cluster connected")
	}
	return sp.cluster.Bucket(loc.Bucket).Scope(loc.ScopeName()).Collection(loc.CollectionName()), nil
}

func (sp *scanProvider) close() {
	sp.mutex.Lock()
	cluster := sp.cluster
	sp.cluster = nil
	sp.mutex.Unlock()
	if cluster != nil {
		if err := cluster.Close(nil); err != nil {
			logging.Warnf("gcagent: closing scan cluster: %v", err)
		}
	}
}

// rawItem receives an item's bytes and flags untouched; decoding
// happens in the caller's transcoder.
type rawItem struct {
	value []byte
	flags uint32
}

type passthroughTranscoder struct {
}

func (t passthroughTranscoder) Decode(b []byte, flags uint32, out interface{}) error {
	item, ok := out.(*rawItem)
	if !ok {
		return errors.NewDecodingFailure("scan items decode into *rawItem only")
	}
	item.value = append([]byte(nil), b...)
	item.flags = flags
	return nil
}

func (t passthroughTranscoder) Encode(value interface{}) ([]byte, uint32, error) {
	return nil, 0, errors.NewEncodingFailure("scans never encode")
}

func scanType(t backend.ScanType) (gocb.ScanType, error) {
	switch t.Kind {
	case backend.ScanRange:
		rs := gocb.RangeScan{}
		if t.From != nil {
			rs.From = &gocb.ScanTerm{Term: t.From.Term, Exclusive: t.From.Exclusive}
		}
		if t.To != nil {
			rs.To = &gocb.ScanTerm{Term: t.To.Term, Exclusive: t.To.Exclusive}
		}
		return rs, nil
	case backend.ScanPrefix:
		return gocb.NewRangeScanForPrefix(t.Prefix), nil
	case backend.ScanSampling:
		if t.Limit == 0 {
			return nil, errors.NewInvalidArgument("sampling scan limit must be positive")
		}
		ss := gocb.SamplingScan{Limit: t.Limit}
		if t.Seed != nil {
			ss.Seed = *t.Seed
		}
		return ss, nil
	}
	return nil, errors.NewInvalidArgument("unknown scan kind %d", int(t.Kind))
}

// consistentWith hands the tokens to gocb in the scan vector form both
// sides understand.
func consistentWith(tokens []mutation.Token) (*gocb.MutationState, error) {
	if len(tokens) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(mutation.NewState(tokens...))
	if err != nil {
		return nil, errors.NewEncodingFailure("mutation state", err)
	}
	ms := &gocb.MutationState{}
	if err := ms.UnmarshalJSON(data); err != nil {
		return nil, errors.NewEncodingFailure("mutation state", err)
	}
	return ms, nil
}

func (c *Client) Scan(ctx context.Context, req *backend.ScanRequest) (backend.ScanStream, error) {
	if req.Concurrency == 0 {
		return nil, errors.NewInvalidArgument("scan concurrency must be positive")
	}
	st, err := scanType(req.Type)
	if err != nil {
		return nil, err
	}
	ms, err := consistentWith(req.MutationState)
	if err != nil {
		return nil, err
	}
	exit, err := c.enter()
	if err != nil {
		return nil, err
	}
	defer exit()
	if err = ctxError(ctx, false); err != nil {
		return nil, err
	}

	coll, err := c.scans.collection(req.Location)
	if err != nil {
		return nil, err
	}
	res, err := coll.Scan(st, &gocb.ScanOptions{
		Transcoder:     passthroughTranscoder{},
		Timeout:        req.Timeout,
		ConsistentWith: ms,
		IDsOnly:        req.IDsOnly,
		BatchByteLimit: req.BatchByteLimit,
		BatchItemLimit: req.BatchItemLimit,
		Concurrency:    req.Concurrency,
		Context:        ctx,
	})
	if err != nil {
		return nil, mapError(err, req.Location.String())
	}
	return &scanStream{res: res, loc: req.Location}, nil
}

type scanStream struct {
	sync.Mutex
	res    *gocb.ScanResult
	loc    backend.Location
	closed bool
	done   bool
}

// Next pulls one item. gocb blocks on the batch fetch, so ctx is only
// consulted between items.
func (s *scanStream) Next(ctx context.Context) (*backend.ScanItem, error) {
	s.Lock()
	defer s.Unlock()
	if s.closed {
		return nil, errors.NewKVError(errors.E_SCAN_CLOSED)
	}
	if s.done {
		return nil, nil
	}
	if err := ctxError(ctx, false); err != nil {
		return nil, err
	}
	item := s.res.Next()
	if item == nil {
		s.done = true
		if err := s.res.Err(); err != nil {
			return nil, mapError(err, s.loc.String())
		}
		return nil, nil
	}
	rv := &backend.ScanItem{ID: item.ID(), IDOnly: item.IDOnly()}
	if rv.IDOnly {
		return rv, nil
	}
	var raw rawItem
	if err := item.Content(&raw); err != nil {
		return nil, errors.NewDecodingFailure(item.ID(), err)
	}
	rv.Value = raw.value
	rv.Flags = raw.flags
	rv.Cas = uint64(item.Cas())
	if exp := item.ExpiryTime(); !exp.IsZero() {
		rv.Expiry = uint32(exp.Unix())
	}
	return rv, nil
}

func (s *scanStream) Cancel() {
	s.Lock()
	defer s.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if err := s.res.Close(); err != nil {
		logging.Debugf("gcagent: closing scan on %s: %v", s.loc, err)
	}
}
