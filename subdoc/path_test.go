//  Copyright 2026-Present Couchbase, Inc.
//
//  Use of this software is governed by the Business Source License included
//  in the file licenses/BSL-Couchbase.txt.  As of the Change Date specified
//  in that file, in accordance with the Business Source License, use of this
//  software will be governed by the Apache License, Version 2.0, included in
//  the file licenses/APL2.txt.

package subdoc

import (
	"strings"
	"testing"

	json "github.com/couchbase/go_json"
	"github.com/couchbase/kvsdk/errors"
	"github.com/kylelemons/godebug/pretty"
)

func TestParsePath(t *testing.T) {
	cases := []struct {
		in   string
		want Path
	}{
		{"", nil},
		{"a", Path{{Key: "a"}}},
		{"a.b[2].c", Path{{Key: "a"}, {Key: "b"}, {Index: 2, IsIndex: true}, {Key: "c"}}},
		{"[0][-1]", Path{{Index: 0, IsIndex: true}, {Index: -1, IsIndex: true}}},
		{"`a.b`.c", Path{{Key: "a.b"}, {Key: "c"}}},
		{"`we``ird`", Path{{Key: "we`ird"}}},
	}
	for _, c := range cases {
		got, err := ParsePath(c.in)
		if err != nil {
			t.Errorf("ParsePath(%q): unexpected error %v", c.in, err)
			continue
		}
		if diff := pretty.Compare(got, c.want); diff != "" {
			t.Errorf("ParsePath(%q): %s", c.in, diff)
		}
		if got.String() != c.in {
			t.Errorf("String() of %q gave %q", c.in, got.String())
		}
	}

	for _, bad := range []string{".a", "a.", "a..b", "a[x]", "a[1", "a.[1]", "`open"} {
		if _, err := ParsePath(bad); !errors.Is(err, errors.ErrPathInvalid) {
			t.Errorf("ParsePath(%q): expected invalid path, got %v", bad, err)
		}
	}
	if _, err := ParsePath(strings.Repeat("a.", 40) + "a"); !errors.Is(err, errors.ErrPathTooDeep) {
		t.Errorf("Expected path too deep, got %v", err)
	}
}

func mustDecode(t *testing.T, s string) interface{} {
	v, err := DecodeValue([]byte(s))
	if err != nil {
		t.Fatalf("Bad fixture %q: %v", s, err)
	}
	return v
}

func mustPath(t *testing.T, s string) Path {
	p, err := ParsePath(s)
	if err != nil {
		t.Fatalf("Bad path %q: %v", s, err)
	}
	return p
}

func TestPathGet(t *testing.T) {
	doc := mustDecode(t, `{"a":{"b":[1,2,{"c":"deep"}]},"n":12345678901234567890}`)
	v, err := mustPath(t, "a.b[-1].c").Get(doc)
	if err != nil || v != "deep" {
		t.Errorf("Got %v, %v", v, err)
	}
	v, err = mustPath(t, "n").Get(doc)
	if err != nil || v != json.Number("12345678901234567890") {
		t.Errorf("Large numbers must be kept verbatim, got %v", v)
	}
	if _, err := mustPath(t, "a.x").Get(doc); !errors.Is(err, errors.ErrPathNotFound) {
		t.Errorf("Expected path not found, got %v", err)
	}
	if _, err := mustPath(t, "a.b.c").Get(doc); !errors.Is(err, errors.ErrPathMismatch) {
		t.Errorf("Expected path mismatch, got %v", err)
	}
	if _, err := mustPath(t, "a.b[7]").Get(doc); !errors.Is(err, errors.ErrPathNotFound) {
		t.Errorf("Expected path not found, got %v", err)
	}
}

func TestPathApply(t *testing.T) {
	set := func(v interface{}) Updater {
		return func(interface{}, bool) (interface{}, bool, error) { return v, false, nil }
	}
	remove := func(interface{}, bool) (interface{}, bool, error) { return nil, true, nil }

	doc := mustDecode(t, `{"a":{"b":[1,2,3]}}`)
	doc, err := mustPath(t, "x.y.z").Apply(doc, true, set("new"))
	if err != nil {
		t.Fatalf("Unexpected error %v", err)
	}
	doc, err = mustPath(t, "a.b[1]").Apply(doc, false, remove)
	if err != nil {
		t.Fatalf("Unexpected error %v", err)
	}
	doc, err = mustPath(t, "a.b[0]").Apply(doc, false, set("one"))
	if err != nil {
		t.Fatalf("Unexpected error %v", err)
	}
	want := mustDecode(t, `{"a":{"b":["one",3]},"x":{"y":{"z":"new"}}}`)
	if diff := pretty.Compare(doc, want); diff != "" {
		t.Errorf("Unexpected document: %s", diff)
	}

	if _, err := mustPath(t, "q.r").Apply(doc, false, set(1)); !errors.Is(err, errors.ErrPathNotFound) {
		t.Errorf("Expected path not found without create, got %v", err)
	}
	if _, err := mustPath(t, "a.b.c").Apply(doc, true, set(1)); !errors.Is(err, errors.ErrPathMismatch) {
		t.Errorf("Expected path mismatch, got %v", err)
	}
}

func TestDecodeValues(t *testing.T) {
	vs, err := DecodeValues([]byte(`"a",1,{"b":true}`))
	if err != nil || len(vs) != 3 {
		t.Fatalf("Got %v, %v", vs, err)
	}
	if _, err := DecodeValue([]byte(`1 2`)); err == nil {
		t.Errorf("Expected an error for trailing data")
	}
}
