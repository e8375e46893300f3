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
	"hash/crc32"
	"math/bits"
	"strconv"
	"strings"
	"time"

	json "github.com/couchbase/go_json"

	"github.com/couchbase/kvsdk/backend"
	"github.com/couchbase/kvsdk/errors"
	"github.com/couchbase/kvsdk/subdoc"
	"github.com/couchbase/kvsdk/transcoder"
)

var _CASTAGNOLI = crc32.MakeTable(crc32.Castagnoli)

// workspace is a document opened for sub-document access. The body is
// decoded on first use.
type workspace struct {
	id         string
	doc        *document
	body       interface{}
	bodyLoaded bool
	bodyErr    error
	bodyDirty  bool
	removeDoc  bool
	expand     []subdoc.Path
}

func newWorkspace(id string, d *document) *workspace {
	if d.xattrs == nil {
		d.xattrs = make(map[string]interface{})
	}
	return &workspace{id: id, doc: d}
}

func (w *workspace) loadBody() (interface{}, error) {
	if w.bodyLoaded {
		return w.body, w.bodyErr
	}
	w.bodyLoaded = true
	raw := w.doc.value()
	if len(raw) == 0 {
		w.body = make(map[string]interface{})
		return w.body, nil
	}
	v, err := subdoc.DecodeValue(raw)
	if err != nil {
		w.bodyErr = errors.NewKVError(errors.E_DOCUMENT_NOT_JSON, w.id)
		return nil, w.bodyErr
	}
	w.body = v
	return v, nil
}

// virtual is the $document attribute tree.
func (w *workspace) virtual() map[string]interface{} {
	d := w.doc
	raw := d.value()
	datatype := []interface{}{}
	if d.json {
		datatype = append(datatype, "json")
	}
	if d.compressed {
		datatype = append(datatype, "snappy")
	}
	if len(d.xattrs) > 0 {
		datatype = append(datatype, "xattr")
	}
	return map[string]interface{}{
		"CAS":           fmt.Sprintf("0x%016x", bits.ReverseBytes64(d.cas)),
		"datatype":      datatype,
		"deleted":       d.deleted,
		"exptime":       d.expiry,
		"flags":         d.flags,
		"last_modified": strconv.FormatInt(d.modified.Unix(), 10),
		"revid":         strconv.FormatUint(d.revid, 10),
		"seqno":         fmt.Sprintf("0x%016x", d.seqno),
		"value_bytes":   len(raw),
		"value_crc32c":  fmt.Sprintf("0x%08x", crc32.Checksum(raw, _CASTAGNOLI)),
	}
}

// root returns the tree a command addresses and the parsed path.
func (w *workspace) root(cmd backend.SubdocCommand, forWrite bool) (interface{}, subdoc.Path, error) {
	p, err := subdoc.ParsePath(cmd.Path)
	if err != nil {
		return nil, nil, err
	}
	if !cmd.Xattr {
		body, err := w.loadBody()
		return body, p, err
	}
	if len(p) == 0 || p[0].IsIndex {
		return nil, nil, errors.NewPathError(errors.E_PATH_INVALID, cmd.Path)
	}
	if strings.HasPrefix(p[0].Key, "$") {
		if forWrite {
			return nil, nil, errors.NewKVError(errors.E_XATTR_CANNOT_MOD_VATTR, cmd.Path)
		}
		if p[0].Key != string(subdoc.MacroDocument) {
			return nil, nil, errors.NewKVError(errors.E_XATTR_UNKNOWN_VATTR, p[0].Key)
		}
		return map[string]interface{}{p[0].Key: w.virtual()}, p, nil
	}
	return w.doc.xattrs, p, nil
}

func (w *workspace) lookup(i int, cmd backend.SubdocCommand) backend.SubdocField {
	f := backend.SubdocField{Index: i, Path: cmd.Path}
	if cmd.Opcode == backend.OpGetDoc {
		if cmd.Xattr {
			f.Err = errors.NewPathError(errors.E_PATH_INVALID, cmd.Path)
			return f
		}
		raw := w.doc.value()
		if len(raw) == 0 {
			f.Err = errors.NewPathError(errors.E_PATH_NOT_FOUND, cmd.Path)
			return f
		}
		f.Value = raw
		f.Exists = true
		return f
	}
	root, p, err := w.root(cmd, false)
	if err != nil {
		f.Err = err
		return f
	}
	v, err := p.Get(root)
	if err != nil {
		f.Err = err
		return f
	}
	switch cmd.Opcode {
	case backend.OpGet:
		f.Value, err = json.Marshal(v)
		if err != nil {
			f.Err = errors.NewEncodingFailure(cmd.Path, err)
			return f
		}
	case backend.OpExists:
	case backend.OpCount:
		switch t := v.(type) {
		case map[string]interface{}:
			f.Value = []byte(strconv.Itoa(len(t)))
		case []interface{}:
			f.Value = []byte(strconv.Itoa(len(t)))
		default:
			f.Err = errors.NewPathError(errors.E_PATH_MISMATCH, cmd.Path)
			return f
		}
	default:
		f.Err = errors.NewInvalidArgument("%s is not a lookup operation", cmd.Opcode)
		return f
	}
	f.Exists = true
	return f
}

func decodeParam(cmd backend.SubdocCommand) (interface{}, error) {
	v, err := subdoc.DecodeValue(cmd.Param)
	if err != nil {
		return nil, errors.NewPathError(errors.E_VALUE_INVALID, cmd.Path)
	}
	return v, nil
}

func isPrimitive(v interface{}) bool {
	switch v.(type) {
	case map[string]interface{}, []interface{}:
		return false
	}
	return true
}

// mutate applies one command. Nothing is committed until every command
// of the request has succeeded.
func (w *workspace) mutate(i int, cmd backend.SubdocCommand) (backend.SubdocField, error) {
	f := backend.SubdocField{Index: i, Path: cmd.Path}
	switch cmd.Opcode {
	case backend.OpSetDoc:
		v, err := decodeParam(cmd)
		if err != nil {
			return f, err
		}
		w.body, w.bodyLoaded, w.bodyErr, w.bodyDirty = v, true, nil, true
		return f, nil
	case backend.OpRemoveDoc:
		w.removeDoc = true
		return f, nil
	}

	root, p, err := w.root(cmd, true)
	if err != nil {
		return f, err
	}
	var fn subdoc.Updater
	last, _ := p.Last()
	switch cmd.Opcode {
	case backend.OpDictAdd, backend.OpDictUpsert:
		if len(p) == 0 || last.IsIndex {
			return f, errors.NewPathError(errors.E_PATH_INVALID, cmd.Path)
		}
		v, err := decodeParam(cmd)
		if err != nil {
			return f, err
		}
		add := cmd.Opcode == backend.OpDictAdd
		fn = func(cur interface{}, exists bool) (interface{}, bool, error) {
			if add && exists {
				return nil, false, errors.NewPathError(errors.E_PATH_EXISTS, cmd.Path)
			}
			return v, false, nil
		}
	case backend.OpReplace:
		v, err := decodeParam(cmd)
		if err != nil {
			return f, err
		}
		fn = func(cur interface{}, exists bool) (interface{}, bool, error) {
			if !exists {
				return nil, false, errors.NewPathError(errors.E_PATH_NOT_FOUND, cmd.Path)
			}
			return v, false, nil
		}
	case backend.OpRemove:
		if len(p) == 0 {
			return f, errors.NewPathError(errors.E_PATH_INVALID, cmd.Path)
		}
		fn = func(cur interface{}, exists bool) (interface{}, bool, error) {
			if !exists {
				return nil, false, errors.NewPathError(errors.E_PATH_NOT_FOUND, cmd.Path)
			}
			return nil, true, nil
		}
	case backend.OpArrayPushLast, backend.OpArrayPushFirst:
		vs, err := subdoc.DecodeValues(cmd.Param)
		if err != nil {
			return f, errors.NewPathError(errors.E_VALUE_INVALID, cmd.Path)
		}
		first := cmd.Opcode == backend.OpArrayPushFirst
		fn = func(cur interface{}, exists bool) (interface{}, bool, error) {
			if !exists {
				if !cmd.CreatePath {
					return nil, false, errors.NewPathError(errors.E_PATH_NOT_FOUND, cmd.Path)
				}
				return vs, false, nil
			}
			arr, ok := cur.([]interface{})
			if !ok {
				return nil, false, errors.NewPathError(errors.E_PATH_MISMATCH, cmd.Path)
			}
			if first {
				return append(append([]interface{}{}, vs...), arr...), false, nil
			}
			return append(arr, vs...), false, nil
		}
	case backend.OpArrayInsert:
		if !last.IsIndex || last.Index < 0 {
			return f, errors.NewPathError(errors.E_PATH_INVALID, cmd.Path)
		}
		vs, err := subdoc.DecodeValues(cmd.Param)
		if err != nil {
			return f, errors.NewPathError(errors.E_VALUE_INVALID, cmd.Path)
		}
		// the index may equal the length, so address the parent array
		idx := last.Index
		p = p.Parent()
		fn = func(cur interface{}, exists bool) (interface{}, bool, error) {
			if !exists {
				return nil, false, errors.NewPathError(errors.E_PATH_NOT_FOUND, cmd.Path)
			}
			arr, ok := cur.([]interface{})
			if !ok {
				return nil, false, errors.NewPathError(errors.E_PATH_MISMATCH, cmd.Path)
			}
			if idx > len(arr) {
				return nil, false, errors.NewPathError(errors.E_PATH_NOT_FOUND, cmd.Path)
			}
			n := make([]interface{}, 0, len(arr)+len(vs))
			n = append(append(append(n, arr[:idx]...), vs...), arr[idx:]...)
			return n, false, nil
		}
	case backend.OpArrayAddUnique:
		v, err := decodeParam(cmd)
		if err != nil {
			return f, err
		}
		if !isPrimitive(v) {
			return f, errors.NewPathError(errors.E_VALUE_INVALID, cmd.Path)
		}
		fn = func(cur interface{}, exists bool) (interface{}, bool, error) {
			if !exists {
				if !cmd.CreatePath {
					return nil, false, errors.NewPathError(errors.E_PATH_NOT_FOUND, cmd.Path)
				}
				return []interface{}{v}, false, nil
			}
			arr, ok := cur.([]interface{})
			if !ok {
				return nil, false, errors.NewPathError(errors.E_PATH_MISMATCH, cmd.Path)
			}
			for _, e := range arr {
				if !isPrimitive(e) {
					return nil, false, errors.NewPathError(errors.E_PATH_MISMATCH, cmd.Path)
				}
				if e == v {
					return nil, false, errors.NewPathError(errors.E_PATH_EXISTS, cmd.Path)
				}
			}
			return append(arr, v), false, nil
		}
	case backend.OpCounter:
		if len(p) == 0 {
			return f, errors.NewPathError(errors.E_PATH_INVALID, cmd.Path)
		}
		delta, err := strconv.ParseInt(string(cmd.Param), 10, 64)
		if err != nil || delta == 0 {
			return f, errors.NewKVError(errors.E_DELTA_INVALID, w.id)
		}
		fn = func(cur interface{}, exists bool) (interface{}, bool, error) {
			var n int64
			if exists {
				num, ok := cur.(json.Number)
				if !ok {
					return nil, false, errors.NewPathError(errors.E_PATH_MISMATCH, cmd.Path)
				}
				n, err = strconv.ParseInt(string(num), 10, 64)
				if err != nil {
					if strings.ContainsAny(string(num), ".eE") {
						return nil, false, errors.NewPathError(errors.E_PATH_MISMATCH, cmd.Path)
					}
					return nil, false, errors.NewKVError(errors.E_NUMBER_TOO_BIG, cmd.Path)
				}
				if overflows(n, delta) {
					return nil, false, errors.NewPathError(errors.E_VALUE_INVALID, cmd.Path)
				}
			}
			res := json.Number(strconv.FormatInt(n+delta, 10))
			f.Value = []byte(res)
			return res, false, nil
		}
	default:
		return f, errors.NewInvalidArgument("%s is not a mutation operation", cmd.Opcode)
	}

	nr, err := p.Apply(root, cmd.CreatePath, fn)
	if err != nil {
		return f, err
	}
	if cmd.Xattr {
		w.doc.xattrs = nr.(map[string]interface{})
		if cmd.ExpandMacros {
			w.expand = append(w.expand, p)
		}
	} else {
		w.body = nr
		w.bodyDirty = true
	}
	return f, nil
}

// expandMacros replaces mutation macro tokens in the attributes written
// by this request.
func (w *workspace) expandMacros(st *stamp) error {
	if len(w.expand) == 0 {
		return nil
	}
	crc := fmt.Sprintf("0x%08x", crc32.Checksum(w.doc.value(), _CASTAGNOLI))
	var expandErr error
	var expand func(v interface{}) interface{}
	expand = func(v interface{}) interface{} {
		switch t := v.(type) {
		case string:
			switch subdoc.MutationMacro(t) {
			case subdoc.MutationMacroCAS:
				return fmt.Sprintf("0x%016x", bits.ReverseBytes64(st.Cas()))
			case subdoc.MutationMacroSeqNo:
				return fmt.Sprintf("0x%016x", st.Seqno())
			case subdoc.MutationMacroValueCRC32c:
				return crc
			}
			if strings.HasPrefix(t, "${") && strings.HasSuffix(t, "}") {
				expandErr = errors.NewXattrUnknownMacro(t)
			}
		case map[string]interface{}:
			for k, e := range t {
				t[k] = expand(e)
			}
		case []interface{}:
			for i, e := range t {
				t[i] = expand(e)
			}
		}
		return v
	}
	for _, p := range w.expand {
		_, err := p.Apply(w.doc.xattrs, false, func(cur interface{}, exists bool) (interface{}, bool, error) {
			if !exists {
				return cur, false, nil
			}
			return expand(cur), false, nil
		})
		if err != nil {
			return err
		}
		if expandErr != nil {
			return expandErr
		}
	}
	return nil
}

func (b *Backend) lookupIn(req *backend.LookupInRequest) (*backend.LookupInResponse, error) {
	if len(req.Specs) == 0 {
		return nil, errors.NewInvalidArgument("at least one lookup spec is required")
	}
	var rv *backend.LookupInResponse
	err := b.read(req.Location, req.ID, func(d *document, now time.Time) error {
		if !visible(d, now, req.AccessDeleted) {
			return errors.NewDocumentNotFound(req.ID)
		}
		view := *d
		view.xattrs = d.xattrs
		w := newWorkspace(req.ID, &view)
		rv = &backend.LookupInResponse{Cas: d.visibleCas(now), Deleted: d.deleted}
		for i, cmd := range req.Specs {
			if !cmd.Opcode.IsLookup() {
				return errors.NewInvalidArgument("%s is not a lookup operation", cmd.Opcode)
			}
			rv.Fields = append(rv.Fields, w.lookup(i, cmd))
		}
		return nil
	})
	return rv, err
}

func (b *Backend) LookupIn(ctx context.Context, req *backend.LookupInRequest) (*backend.LookupInResponse, error) {
	exit, err := b.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer exit()
	return b.lookupIn(req)
}

func (b *Backend) LookupInAnyReplica(ctx context.Context, req *backend.LookupInRequest) (*backend.LookupInResponse, error) {
	all, err := b.LookupInAllReplicas(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(all) == 0 {
		return nil, errors.NewKVError(errors.E_DOCUMENT_IRRETRIEVABLE, req.ID)
	}
	return all[0], nil
}

func (b *Backend) LookupInAllReplicas(ctx context.Context, req *backend.LookupInRequest) ([]*backend.LookupInResponse, error) {
	exit, err := b.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer exit()

	active, err := b.lookupIn(req)
	if errors.Is(err, errors.ErrDocumentNotFound) {
		return nil, nil
	} else if err != nil {
		return nil, err
	}
	rv := []*backend.LookupInResponse{active}
	for i := 0; i < b.opts.Replicas; i++ {
		r := *active
		r.Fields = append([]backend.SubdocField(nil), active.Fields...)
		r.IsReplica = true
		rv = append(rv, &r)
	}
	return rv, nil
}

func (b *Backend) MutateIn(ctx context.Context, req *backend.MutateInRequest) (*backend.MutateInResponse, error) {
	exit, err := b.enter(ctx)
	if err != nil {
		return nil, err
	}
	defer exit()

	if len(req.Specs) == 0 {
		return nil, errors.NewInvalidArgument("at least one mutation spec is required")
	}
	if req.CreateAsDeleted && !req.AccessDeleted {
		return nil, errors.NewInvalidArgument("create as deleted requires access deleted")
	}
	if err := b.checkDurability(req.Durability); err != nil {
		return nil, err
	}
	var fields []backend.SubdocField
	d, tok, err := b.mutate(req.Location, req.ID, func(cur *document, st *stamp) (*document, error) {
		fields = fields[:0]
		exists := visible(cur, st.now, req.AccessDeleted)
		var n *document
		switch {
		case exists && req.StoreSemantics == backend.StoreInsert && !cur.deleted:
			return nil, errors.NewDocumentExists(req.ID)
		case exists && req.StoreSemantics != backend.StoreInsert:
			if err := checkCas(cur, req.ID, req.Cas, st.now); err != nil {
				return nil, err
			}
			n = cur.clone()
			if !req.PreserveExpiry {
				n.expiry = b.absoluteExpiry(req.Expiry)
			}
		case req.StoreSemantics == backend.StoreReplace:
			return nil, errors.NewDocumentNotFound(req.ID)
		default:
			n = &document{
				flags:   transcoder.EncodeFlags(transcoder.Flags{Format: transcoder.FormatJSON}),
				expiry:  b.absoluteExpiry(req.Expiry),
				deleted: req.CreateAsDeleted,
			}
			if !req.CreateAsDeleted {
				n.setValue([]byte("{}"), 0)
			}
		}

		w := newWorkspace(req.ID, n)
		for i, cmd := range req.Specs {
			if cmd.Opcode.IsLookup() {
				return nil, errors.NewInvalidArgument("%s is not a mutation operation", cmd.Opcode)
			}
			if n.deleted && !cmd.Xattr {
				return nil, errors.NewInvalidArgument("only extended attributes can be mutated on a deleted document")
			}
			f, err := w.mutate(i, cmd)
			if err != nil {
				return nil, err
			}
			fields = append(fields, f)
		}
		if w.bodyDirty {
			v, err := json.Marshal(w.body)
			if err != nil {
				return nil, errors.NewEncodingFailure(req.ID, err)
			}
			if len(v) > b.opts.MaxValueSize {
				return nil, errors.NewKVError(errors.E_VALUE_TOO_LARGE, req.ID)
			}
			n.setValue(v, b.opts.CompressionThreshold)
		}
		if err := w.expandMacros(st); err != nil {
			return nil, err
		}
		if w.removeDoc {
			n = &document{deleted: true, xattrs: systemXattrs(n.xattrs)}
		}
		return n, nil
	})
	if err != nil {
		return nil, err
	}
	return &backend.MutateInResponse{Cas: d.cas, Token: tok, Deleted: d.deleted, Fields: fields}, nil
}
