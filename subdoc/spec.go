//  Copyright 2026-Present Couchbase, Inc.
//
//  Use of this software is governed by the Business Source License included
//  in the file licenses/BSL-Couchbase.txt.  As of the Change Date specified
//  in that file, in accordance with the Business Source License, use of this
//  software will be governed by the Apache License, Version 2.0, included in
//  the file licenses/APL2.txt.

/*
Package subdoc builds sub-document lookup and mutation specs and provides
the JSON path engine used to evaluate them locally.

A mutation whose value is a MutationMacro is always addressed as an
extended attribute with macro expansion enabled; the builder sets both
flags so callers cannot forget them.
*/
package subdoc

import (
	"bytes"
	"fmt"
	"unicode/utf8"

	json "github.com/couchbase/go_json"
	"github.com/couchbase/kvsdk/backend"
	"github.com/couchbase/kvsdk/errors"
)

type LookupInSpec struct {
	opcode backend.Opcode
	path   string
	xattr  bool
}

// LookupGet fetches the value at path, or the whole document when path
// is empty.
func LookupGet(path string) *LookupInSpec {
	if path == "" {
		return &LookupInSpec{opcode: backend.OpGetDoc}
	}
	return &LookupInSpec{opcode: backend.OpGet, path: path}
}

func LookupExists(path string) *LookupInSpec {
	return &LookupInSpec{opcode: backend.OpExists, path: path}
}

func LookupCount(path string) *LookupInSpec {
	return &LookupInSpec{opcode: backend.OpCount, path: path}
}

// LookupMacro reads a virtual attribute of the document.
func LookupMacro(m Macro) *LookupInSpec {
	return &LookupInSpec{opcode: backend.OpGet, path: string(m), xattr: true}
}

// LookupMacroByName is LookupMacro for a symbolic macro name.
func LookupMacroByName(name string) (*LookupInSpec, error) {
	m, err := MacroByName(name)
	if err != nil {
		return nil, err
	}
	return LookupMacro(m), nil
}

func (s *LookupInSpec) Xattr() *LookupInSpec {
	s.xattr = true
	return s
}

func (s *LookupInSpec) IsXattr() bool          { return s.xattr }
func (s *LookupInSpec) Opcode() backend.Opcode { return s.opcode }
func (s *LookupInSpec) Path() string           { return s.path }

func (s *LookupInSpec) ToBackend() backend.SubdocCommand {
	return backend.SubdocCommand{Opcode: s.opcode, Path: s.path, Xattr: s.xattr}
}

func (s *LookupInSpec) String() string {
	return fmt.Sprintf("%s(%q xattr=%v)", s.opcode, s.path, s.xattr)
}

type MutateInSpec struct {
	opcode       backend.Opcode
	path         string
	param        []byte
	xattr        bool
	expandMacros bool
	createPath   bool
}

func newMutate(op backend.Opcode, path string, values ...interface{}) (*MutateInSpec, error) {
	s := &MutateInSpec{opcode: op, path: path}
	params := make([][]byte, 0, len(values))
	for _, v := range values {
		p, macro, err := encodeParam(v)
		if err != nil {
			return nil, err
		}
		if macro {
			s.xattr = true
			s.expandMacros = true
		}
		params = append(params, p)
	}
	if len(params) > 0 {
		s.param = bytes.Join(params, []byte{','})
	}
	return s, nil
}

func encodeParam(v interface{}) ([]byte, bool, error) {
	switch v := v.(type) {
	case MutationMacro:
		return v.param(), true, nil
	case string:
		if !utf8.ValidString(v) {
			return nil, false, errors.NewEncodingFailure("sub-document value is not valid UTF-8")
		}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, false, errors.NewEncodingFailure("sub-document value cannot be serialized", err)
	}
	return b, false, nil
}

// MutateReplace replaces the value at path, or the whole document when
// path is empty.
func MutateReplace(path string, value interface{}) (*MutateInSpec, error) {
	if path == "" {
		return newMutate(backend.OpSetDoc, "", value)
	}
	return newMutate(backend.OpReplace, path, value)
}

func MutateInsert(path string, value interface{}) (*MutateInSpec, error) {
	return newMutate(backend.OpDictAdd, path, value)
}

func MutateUpsert(path string, value interface{}) (*MutateInSpec, error) {
	return newMutate(backend.OpDictUpsert, path, value)
}

// MutateRemove removes the value at path, or the whole document when
// path is empty.
func MutateRemove(path string) *MutateInSpec {
	if path == "" {
		return &MutateInSpec{opcode: backend.OpRemoveDoc}
	}
	return &MutateInSpec{opcode: backend.OpRemove, path: path}
}

func MutateArrayAppend(path string, values ...interface{}) (*MutateInSpec, error) {
	return newArrayMutate(backend.OpArrayPushLast, path, values)
}

func MutateArrayPrepend(path string, values ...interface{}) (*MutateInSpec, error) {
	return newArrayMutate(backend.OpArrayPushFirst, path, values)
}

// MutateArrayInsert inserts values at the array index path ends with.
func MutateArrayInsert(path string, values ...interface{}) (*MutateInSpec, error) {
	return newArrayMutate(backend.OpArrayInsert, path, values)
}

func newArrayMutate(op backend.Opcode, path string, values []interface{}) (*MutateInSpec, error) {
	if len(values) == 0 {
		return nil, errors.NewInvalidArgument("%s requires at least one value", op)
	}
	return newMutate(op, path, values...)
}

func MutateArrayAddUnique(path string, value interface{}) (*MutateInSpec, error) {
	return newMutate(backend.OpArrayAddUnique, path, value)
}

// MutateIncrement and MutateDecrement both lower to a counter with a
// signed delta. The magnitude must not be negative.
func MutateIncrement(path string, delta int64) (*MutateInSpec, error) {
	if delta < 0 {
		return nil, errors.NewInvalidArgument("increment delta must not be negative: %d", delta)
	}
	return newMutate(backend.OpCounter, path, delta)
}

func MutateDecrement(path string, delta int64) (*MutateInSpec, error) {
	if delta < 0 {
		return nil, errors.NewInvalidArgument("decrement delta must not be negative: %d", delta)
	}
	return newMutate(backend.OpCounter, path, -delta)
}

func (s *MutateInSpec) Xattr() *MutateInSpec {
	s.xattr = true
	return s
}

func (s *MutateInSpec) CreatePath() *MutateInSpec {
	s.createPath = true
	return s
}

func (s *MutateInSpec) IsXattr() bool          { return s.xattr }
func (s *MutateInSpec) ExpandMacros() bool     { return s.expandMacros }
func (s *MutateInSpec) IsCreatePath() bool     { return s.createPath }
func (s *MutateInSpec) Opcode() backend.Opcode { return s.opcode }
func (s *MutateInSpec) Path() string           { return s.path }
func (s *MutateInSpec) Param() []byte          { return s.param }

func (s *MutateInSpec) ToBackend() backend.SubdocCommand {
	return backend.SubdocCommand{
		Opcode:       s.opcode,
		Path:         s.path,
		Param:        s.param,
		Xattr:        s.xattr,
		ExpandMacros: s.expandMacros,
		CreatePath:   s.createPath,
	}
}

func (s *MutateInSpec) String() string {
	return fmt.Sprintf("%s(%q xattr=%v param=%s)", s.opcode, s.path, s.xattr, s.param)
}

func LookupCommands(specs []*LookupInSpec) []backend.SubdocCommand {
	rv := make([]backend.SubdocCommand, len(specs))
	for i, s := range specs {
		rv[i] = s.ToBackend()
	}
	return rv
}

func MutateCommands(specs []*MutateInSpec) []backend.SubdocCommand {
	rv := make([]backend.SubdocCommand, len(specs))
	for i, s := range specs {
		rv[i] = s.ToBackend()
	}
	return rv
}
