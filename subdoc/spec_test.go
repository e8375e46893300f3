//  Copyright 2026-Present Couchbase, Inc.
//
//  Use of this software is governed by the Business Source License included
//  in the file licenses/BSL-Couchbase.txt.  As of the Change Date specified
//  in that file, in accordance with the Business Source License, use of this
//  software will be governed by the Apache License, Version 2.0, included in
//  the file licenses/APL2.txt.

package subdoc

import (
	"testing"

	"github.com/couchbase/kvsdk/backend"
	"github.com/couchbase/kvsdk/errors"
	"github.com/kylelemons/godebug/pretty"
)

func TestLookupSpecs(t *testing.T) {
	cases := []struct {
		spec *LookupInSpec
		want backend.SubdocCommand
	}{
		{LookupGet(""), backend.SubdocCommand{Opcode: backend.OpGetDoc}},
		{LookupGet("a.b"), backend.SubdocCommand{Opcode: backend.OpGet, Path: "a.b"}},
		{LookupExists("a").Xattr(), backend.SubdocCommand{Opcode: backend.OpExists, Path: "a", Xattr: true}},
		{LookupCount("tags"), backend.SubdocCommand{Opcode: backend.OpCount, Path: "tags"}},
		{LookupMacro(MacroCas), backend.SubdocCommand{Opcode: backend.OpGet, Path: "$document.CAS", Xattr: true}},
	}
	for _, c := range cases {
		if diff := pretty.Compare(c.spec.ToBackend(), c.want); diff != "" {
			t.Errorf("%v: %s", c.spec, diff)
		}
	}
}

func TestMacroByName(t *testing.T) {
	for name, want := range map[string]Macro{
		"expiry_time":       MacroExpiryTime,
		"rev_id":            MacroRevID,
		"$document.seqno":   MacroSeqNo,
		"value_size_bytes":  MacroValueSizeBytes,
		"$document.deleted": MacroIsDeleted,
	} {
		got, err := MacroByName(name)
		if err != nil || got != want {
			t.Errorf("MacroByName(%q) = %v, %v; want %v", name, got, err, want)
		}
	}
	if _, err := MacroByName("flux_capacitor"); !errors.Is(err, errors.ErrXattrUnknownMacro) {
		t.Errorf("Expected unknown macro error, got %v", err)
	}
	if _, err := LookupMacroByName("$document.nope"); !errors.Is(err, errors.ErrXattrUnknownMacro) {
		t.Errorf("Expected unknown macro error, got %v", err)
	}
}

func TestMutationMacroForcesXattr(t *testing.T) {
	spec, err := MutateUpsert("x", MutationMacroCAS)
	if err != nil {
		t.Fatalf("Unexpected error %v", err)
	}
	if !spec.IsXattr() || !spec.ExpandMacros() {
		t.Errorf("Macro value must force xattr and macro expansion")
	}
	if string(spec.Param()) != `"${Mutation.CAS}"` {
		t.Errorf("Unexpected param %s", spec.Param())
	}

	m, err := MutationMacroByName("sequence_number")
	if err != nil || m != MutationMacroSeqNo {
		t.Errorf("Unexpected macro %v (%v)", m, err)
	}
	m, err = MutationMacroByName("value_crc")
	if err != nil || m != MutationMacroValueCRC32c {
		t.Errorf("Unexpected macro %v (%v)", m, err)
	}
	if _, err := MutationMacroByName("bogus"); !errors.Is(err, errors.ErrXattrUnknownMacro) {
		t.Errorf("Expected unknown macro error, got %v", err)
	}
}

func TestMutateSpecs(t *testing.T) {
	replaceDoc, _ := MutateReplace("", map[string]int{"a": 1})
	replace, _ := MutateReplace("a", 2)
	insert, _ := MutateInsert("b", "x")
	appendMany, _ := MutateArrayAppend("tags", "a", 1, true)
	inc, _ := MutateIncrement("n", 5)
	dec, _ := MutateDecrement("n", 5)
	unique, _ := MutateArrayAddUnique("tags", "z")

	cases := []struct {
		spec *MutateInSpec
		want backend.SubdocCommand
	}{
		{replaceDoc, backend.SubdocCommand{Opcode: backend.OpSetDoc, Param: []byte(`{"a":1}`)}},
		{replace.CreatePath(), backend.SubdocCommand{Opcode: backend.OpReplace, Path: "a", Param: []byte("2"), CreatePath: true}},
		{insert.Xattr(), backend.SubdocCommand{Opcode: backend.OpDictAdd, Path: "b", Param: []byte(`"x"`), Xattr: true}},
		{MutateRemove(""), backend.SubdocCommand{Opcode: backend.OpRemoveDoc}},
		{MutateRemove("c"), backend.SubdocCommand{Opcode: backend.OpRemove, Path: "c"}},
		{appendMany, backend.SubdocCommand{Opcode: backend.OpArrayPushLast, Path: "tags", Param: []byte(`"a",1,true`)}},
		{inc, backend.SubdocCommand{Opcode: backend.OpCounter, Path: "n", Param: []byte("5")}},
		{dec, backend.SubdocCommand{Opcode: backend.OpCounter, Path: "n", Param: []byte("-5")}},
		{unique, backend.SubdocCommand{Opcode: backend.OpArrayAddUnique, Path: "tags", Param: []byte(`"z"`)}},
	}
	for _, c := range cases {
		if diff := pretty.Compare(c.spec.ToBackend(), c.want); diff != "" {
			t.Errorf("%v: %s", c.spec, diff)
		}
	}

	if _, err := MutateIncrement("n", -1); !errors.Is(err, errors.ErrInvalidArgument) {
		t.Errorf("Expected invalid argument, got %v", err)
	}
	if _, err := MutateArrayAppend("tags"); !errors.Is(err, errors.ErrInvalidArgument) {
		t.Errorf("Expected invalid argument for empty values, got %v", err)
	}
	if _, err := MutateUpsert("s", string([]byte{0xff})); !errors.Is(err, errors.ErrEncodingFailure) {
		t.Errorf("Expected encoding failure, got %v", err)
	}
}

// The builder sets xattr for macros but never clears it when the spec
// is rebuilt with a plain value.
func TestMacroXattrIsNotCleared(t *testing.T) {
	spec, _ := MutateUpsert("x", MutationMacroSeqNo)
	spec.Xattr()
	if !spec.IsXattr() {
		t.Errorf("Expected xattr")
	}
}
