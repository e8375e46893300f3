//  Copyright 2026-Present Couchbase, Inc.
//
//  Use of this software is governed by the Business Source License included
//  in the file licenses/BSL-Couchbase.txt.  As of the Change Date specified
//  in that file, in accordance with the Business Source License, use of this
//  software will be governed by the Apache License, Version 2.0, included in
//  the file licenses/APL2.txt.

package memory

import (
	"strings"
	"time"

	json "github.com/couchbase/go_json"
	"github.com/golang/snappy"

	"github.com/couchbase/kvsdk/backend"
	"github.com/couchbase/kvsdk/errors"
	"github.com/couchbase/kvsdk/logging"
	"github.com/couchbase/kvsdk/mutation"
)

// datatype bits as reported by the server
const (
	_DATATYPE_JSON   = 0x01
	_DATATYPE_SNAPPY = 0x02
	_DATATYPE_XATTR  = 0x04
)

type document struct {
	body        []byte
	compressed  bool
	json        bool
	flags       uint32
	cas         uint64
	expiry      uint32
	seqno       uint64
	revid       uint64
	modified    time.Time
	deleted     bool
	lockCas     uint64
	lockedUntil time.Time
	xattrs      map[string]interface{}
	vb          uint16
}

func (d *document) value() []byte {
	if !d.compressed {
		return d.body
	}
	v, err := snappy.Decode(nil, d.body)
	if err != nil {
		// only ever written by setValue
		logging.Severef("memory backend: corrupt compressed value: %v", err)
		return nil
	}
	return v
}

func (d *document) setValue(v []byte, threshold int) {
	d.json = len(v) > 0 && json.Validate(v) == nil
	if threshold > 0 && len(v) > threshold {
		d.body = snappy.Encode(nil, v)
		d.compressed = true
		return
	}
	d.body = append([]byte(nil), v...)
	d.compressed = false
}

func (d *document) datatype() uint8 {
	var dt uint8
	if d.json {
		dt |= _DATATYPE_JSON
	}
	if d.compressed {
		dt |= _DATATYPE_SNAPPY
	}
	if len(d.xattrs) > 0 {
		dt |= _DATATYPE_XATTR
	}
	return dt
}

func (d *document) expired(now time.Time) bool {
	return d.expiry != 0 && uint32(now.Unix()) >= d.expiry
}

func (d *document) locked(now time.Time) bool {
	return d.lockCas != 0 && now.Before(d.lockedUntil)
}

// visibleCas hides the real CAS of a locked document from readers.
func (d *document) visibleCas(now time.Time) uint64 {
	if d.locked(now) {
		return _LOCKED_CAS
	}
	return d.cas
}

// clone copies the document deeply enough that a failed mutation
// leaves the original untouched.
func (d *document) clone() *document {
	n := *d
	n.xattrs = cloneTree(d.xattrs).(map[string]interface{})
	return &n
}

func cloneTree(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		n := make(map[string]interface{}, len(t))
		for k, e := range t {
			n[k] = cloneTree(e)
		}
		return n
	case []interface{}:
		n := make([]interface{}, len(t))
		for i, e := range t {
			n[i] = cloneTree(e)
		}
		return n
	}
	return v
}

// systemXattrs keeps the attributes that survive deletion.
func systemXattrs(x map[string]interface{}) map[string]interface{} {
	n := make(map[string]interface{})
	for k, v := range x {
		if strings.HasPrefix(k, "_") {
			n[k] = v
		}
	}
	return n
}

func live(d *document, now time.Time) bool {
	return d != nil && !d.deleted && !d.expired(now)
}

// visible is a live document, or a tombstone when accessDeleted is set.
func visible(d *document, now time.Time, accessDeleted bool) bool {
	if d == nil || d.expired(now) {
		return false
	}
	return !d.deleted || accessDeleted
}

func checkLock(d *document, id string, cas uint64, now time.Time) error {
	if d.locked(now) && cas != d.lockCas {
		return errors.NewKVError(errors.E_DOCUMENT_LOCKED, id)
	}
	return nil
}

// checkCas accepts the lock CAS of a locked document and otherwise
// compares against the current CAS when one is given.
func checkCas(d *document, id string, cas uint64, now time.Time) error {
	if d.locked(now) {
		return checkLock(d, id, cas, now)
	}
	if cas != 0 && cas != d.cas {
		return errors.NewCasMismatch(id)
	}
	return nil
}

// stamp is the identity a committed mutation receives. The CAS and the
// sequence number are drawn on first use so a rejected mutation leaves
// the counters untouched.
type stamp struct {
	b     *Backend
	vb    *vbucket
	cas   uint64
	seqno uint64
	now   time.Time
}

func (st *stamp) Cas() uint64 {
	if st.cas == 0 {
		st.cas = st.b.nextCas()
	}
	return st.cas
}

// Seqno is the sequence number the mutation will commit with. The
// partition lock is held, so nobody else can take it meanwhile.
func (st *stamp) Seqno() uint64 {
	if st.seqno == 0 {
		st.seqno = st.vb.seqno.Load() + 1
	}
	return st.seqno
}

// mutateFn returns the replacement for cur, a modified clone or a new
// document. cur is nil when the key was never written.
type mutateFn func(cur *document, st *stamp) (*document, error)

// mutate runs fn under the collection lock and commits its result.
func (b *Backend) mutate(loc backend.Location, id string, fn mutateFn) (*document, *mutation.Token, error) {
	bk, c, err := b.collection(loc)
	if err != nil {
		return nil, nil, err
	}
	vb := VBucketOf(id)
	c.Lock()
	defer c.Unlock()

	part := &bk.vbuckets[vb]
	part.Lock()
	defer part.Unlock()

	cur := c.docs[id]
	st := &stamp{b: b, vb: part, now: b.now()}
	next, err := fn(cur, st)
	if err != nil {
		return nil, nil, err
	}
	next.cas = st.Cas()
	next.seqno = part.seqno.Add(1)
	next.modified = st.now
	next.vb = vb
	next.lockCas = 0
	next.lockedUntil = time.Time{}
	if cur != nil {
		next.revid = cur.revid + 1
	} else {
		next.revid = 1
	}
	if next.xattrs == nil {
		next.xattrs = make(map[string]interface{})
	}
	c.docs[id] = next
	return next, b.token(bk, vb, next.seqno), nil
}

// read runs fn on the current document under the read lock.
func (b *Backend) read(loc backend.Location, id string, fn func(d *document, now time.Time) error) error {
	_, c, err := b.collection(loc)
	if err != nil {
		return err
	}
	c.RLock()
	defer c.RUnlock()
	return fn(c.docs[id], b.now())
}

// modify changes a document in place without a new mutation, as lock
// and unlock do.
func (b *Backend) modify(loc backend.Location, id string, fn func(d *document, now time.Time) error) error {
	_, c, err := b.collection(loc)
	if err != nil {
		return err
	}
	c.Lock()
	defer c.Unlock()
	return fn(c.docs[id], b.now())
}
