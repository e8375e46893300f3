//  Copyright 2026-Present Couchbase, Inc.
//
//  Use of this software is governed by the Business Source License included
//  in the file licenses/BSL-Couchbase.txt.  As of the Change Date specified
//  in that file, in accordance with the Business Source License, use of this
//  software will be governed by the Apache License, Version 2.0, included in
//  the file licenses/APL2.txt.

package subdoc

import (
	"bytes"
	"strconv"
	"strings"

	json "github.com/couchbase/go_json"
	"github.com/couchbase/kvsdk/errors"
)

const (
	MaxPathLength = 1024
	MaxPathDepth  = 32
)

// Segment is one step of a path: an object key or an array index.
type Segment struct {
	Key     string
	Index   int
	IsIndex bool
}

type Path []Segment

// ParsePath parses the sub-document path syntax: dotted keys, [n]
// array indexes (negative counts from the end) and `backquoted` keys
// with `` as an escaped backquote. The empty string is the document root.
func ParsePath(s string) (Path, error) {
	if len(s) > MaxPathLength {
		return nil, errors.NewPathError(errors.E_PATH_TOO_BIG, s)
	}
	var rv Path
	i := 0
	expectKey := true
	for i < len(s) {
		switch {
		case s[i] == '[':
			if expectKey && i != 0 {
				return nil, errors.NewPathError(errors.E_PATH_INVALID, s)
			}
			end := strings.IndexByte(s[i:], ']')
			if end < 0 {
				return nil, errors.NewPathError(errors.E_PATH_INVALID, s)
			}
			n, err := strconv.Atoi(s[i+1 : i+end])
			if err != nil {
				return nil, errors.NewPathError(errors.E_PATH_INVALID, s)
			}
			rv = append(rv, Segment{Index: n, IsIndex: true})
			i += end + 1
			expectKey = false
		case s[i] == '.':
			if expectKey {
				return nil, errors.NewPathError(errors.E_PATH_INVALID, s)
			}
			i++
			expectKey = true
			if i == len(s) {
				return nil, errors.NewPathError(errors.E_PATH_INVALID, s)
			}
		default:
			if !expectKey {
				return nil, errors.NewPathError(errors.E_PATH_INVALID, s)
			}
			key, n, err := parseKey(s[i:])
			if err != nil {
				return nil, errors.NewPathError(errors.E_PATH_INVALID, s)
			}
			rv = append(rv, Segment{Key: key})
			i += n
			expectKey = false
		}
		if len(rv) > MaxPathDepth {
			return nil, errors.NewPathError(errors.E_PATH_TOO_DEEP, s)
		}
	}
	return rv, nil
}

func parseKey(s string) (string, int, error) {
	if s[0] != '`' {
		n := strings.IndexAny(s, ".[")
		if n < 0 {
			n = len(s)
		}
		if n == 0 {
			return "", 0, errors.ErrPathInvalid
		}
		return s[:n], n, nil
	}
	var b strings.Builder
	for i := 1; i < len(s); i++ {
		if s[i] != '`' {
			b.WriteByte(s[i])
			continue
		}
		if i+1 < len(s) && s[i+1] == '`' {
			b.WriteByte('`')
			i++
			continue
		}
		return b.String(), i + 1, nil
	}
	return "", 0, errors.ErrPathInvalid
}

func (p Path) String() string {
	var b strings.Builder
	for i, s := range p {
		if s.IsIndex {
			b.WriteString("[" + strconv.Itoa(s.Index) + "]")
			continue
		}
		if i > 0 {
			b.WriteByte('.')
		}
		if strings.ContainsAny(s.Key, ".[]`") {
			b.WriteString("`" + strings.ReplaceAll(s.Key, "`", "``") + "`")
		} else {
			b.WriteString(s.Key)
		}
	}
	return b.String()
}

// Parent is the path without its last segment.
func (p Path) Parent() Path {
	if len(p) == 0 {
		return p
	}
	return p[:len(p)-1]
}

func (p Path) Last() (Segment, bool) {
	if len(p) == 0 {
		return Segment{}, false
	}
	return p[len(p)-1], true
}

// Get returns the value at p in a decoded document tree.
func (p Path) Get(root interface{}) (interface{}, error) {
	cur := root
	for _, s := range p {
		next, ok, err := step(cur, s)
		if err != nil {
			return nil, errors.NewPathError(errors.E_PATH_MISMATCH, p.String())
		}
		if !ok {
			return nil, errors.NewPathError(errors.E_PATH_NOT_FOUND, p.String())
		}
		cur = next
	}
	return cur, nil
}

func step(node interface{}, s Segment) (interface{}, bool, error) {
	if s.IsIndex {
		arr, ok := node.([]interface{})
		if !ok {
			return nil, false, errors.ErrPathMismatch
		}
		idx := s.Index
		if idx < 0 {
			idx += len(arr)
		}
		if idx < 0 || idx >= len(arr) {
			return nil, false, nil
		}
		return arr[idx], true, nil
	}
	obj, ok := node.(map[string]interface{})
	if !ok {
		return nil, false, errors.ErrPathMismatch
	}
	v, ok := obj[s.Key]
	return v, ok, nil
}

// Updater computes the replacement for the value at a path. exists is
// false when the last segment is missing; returning remove deletes it.
type Updater func(cur interface{}, exists bool) (nv interface{}, remove bool, err error)

// Apply rewrites the tree at p and returns the new root. With create,
// missing intermediate objects are created on the way down.
func (p Path) Apply(root interface{}, create bool, fn Updater) (interface{}, error) {
	return p.apply(root, 0, create, fn)
}

func (p Path) apply(node interface{}, depth int, create bool, fn Updater) (interface{}, error) {
	if depth == len(p) {
		nv, remove, err := fn(node, true)
		if err != nil {
			return nil, err
		}
		if remove {
			return nil, errors.NewPathError(errors.E_PATH_INVALID, p.String())
		}
		return nv, nil
	}
	s := p[depth]
	last := depth == len(p)-1
	if s.IsIndex {
		arr, ok := node.([]interface{})
		if !ok {
			return nil, errors.NewPathError(errors.E_PATH_MISMATCH, p.String())
		}
		idx := s.Index
		if idx < 0 {
			idx += len(arr)
		}
		if idx < 0 || idx >= len(arr) {
			return nil, errors.NewPathError(errors.E_PATH_NOT_FOUND, p.String())
		}
		if last {
			nv, remove, err := fn(arr[idx], true)
			if err != nil {
				return nil, err
			}
			if remove {
				return append(arr[:idx:idx], arr[idx+1:]...), nil
			}
			arr[idx] = nv
			return arr, nil
		}
		child, err := p.apply(arr[idx], depth+1, create, fn)
		if err != nil {
			return nil, err
		}
		arr[idx] = child
		return arr, nil
	}

	obj, ok := node.(map[string]interface{})
	if !ok {
		return nil, errors.NewPathError(errors.E_PATH_MISMATCH, p.String())
	}
	cur, exists := obj[s.Key]
	if last {
		nv, remove, err := fn(cur, exists)
		if err != nil {
			return nil, err
		}
		if remove {
			delete(obj, s.Key)
		} else {
			obj[s.Key] = nv
		}
		return obj, nil
	}
	if !exists {
		if !create || p[depth+1].IsIndex {
			return nil, errors.NewPathError(errors.E_PATH_NOT_FOUND, p.String())
		}
		cur = make(map[string]interface{})
	}
	child, err := p.apply(cur, depth+1, create, fn)
	if err != nil {
		return nil, err
	}
	obj[s.Key] = child
	return obj, nil
}

// DecodeValue parses JSON keeping numbers as json.Number so that large
// integers survive a round trip.
func DecodeValue(data []byte) (interface{}, error) {
	d := json.NewDecoder(bytes.NewReader(data))
	d.UseNumber()
	var v interface{}
	if err := d.Decode(&v); err != nil {
		return nil, err
	}
	if d.More() {
		return nil, errors.ErrValueInvalid
	}
	return v, nil
}

// DecodeValues parses a comma separated list of JSON values, the wire
// form of multi-value array operations.
func DecodeValues(data []byte) ([]interface{}, error) {
	d := json.NewDecoder(bytes.NewReader(append(append([]byte{'['}, data...), ']')))
	d.UseNumber()
	var v []interface{}
	if err := d.Decode(&v); err != nil {
		return nil, err
	}
	return v, nil
}
