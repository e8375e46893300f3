//  Copyright 2026-Present Couchbase, Inc.
//
//  Use of this software is governed by the Business Source License included
//  in the file licenses/BSL-Couchbase.txt.  As of the Change Date specified
//  in that file, in accordance with the Business Source License, use of this
//  software will be governed by the Apache License, Version 2.0, included in
//  the file licenses/APL2.txt.

package transcoder

import (
	"testing"

	"github.com/couchbase/kvsdk/errors"
	"github.com/kylelemons/godebug/pretty"
)

func TestFlagsRoundTrip(t *testing.T) {
	formats := []Format{FormatReserved, FormatPrivate, FormatJSON, FormatBinary, FormatString}
	for _, f := range formats {
		for lower := 0; lower <= 0xffff; lower++ {
			in := Flags{Format: f, Compression: CompressionNone, LowerBits: uint16(lower)}
			out := DecodeFlags(EncodeFlags(in))
			if out != in {
				t.Fatalf("Round trip of %+v gave %+v", in, out)
			}
		}
	}
}

func TestFlagsLayout(t *testing.T) {
	if got := EncodeFlags(Flags{Format: FormatJSON}); got != 0x02000000 {
		t.Errorf("JSON flags = %#x, want 0x02000000", got)
	}
	if got := EncodeFlags(Flags{Format: FormatString, LowerBits: 0x1234}); got != 0x04001234 {
		t.Errorf("string flags = %#x, want 0x04001234", got)
	}
	legacy := DecodeFlags(0x00000011)
	if legacy.Specified() || legacy.LowerBits != 0x11 {
		t.Errorf("Expected unspecified format with lower bits kept, got %+v", legacy)
	}
	if DecodeFlags(0x0f000000).Specified() {
		t.Errorf("An undefined format nibble must decode as unspecified")
	}
}

func TestJSONTranscoder(t *testing.T) {
	tc := NewJSON()
	b, flags, err := tc.Encode(map[string]interface{}{"name": "couchbase", "ok": true})
	if err != nil {
		t.Fatalf("Unexpected error %v", err)
	}
	if FormatOf(flags) != FormatJSON {
		t.Errorf("Expected JSON flags, got %#x", flags)
	}
	var out map[string]interface{}
	if err := tc.Decode(b, flags, &out); err != nil {
		t.Fatalf("Unexpected error %v", err)
	}
	if diff := pretty.Compare(out, map[string]interface{}{"name": "couchbase", "ok": true}); diff != "" {
		t.Errorf("Decoded value differs: %s", diff)
	}

	// legacy flags are decoded best effort
	var n int
	if err := tc.Decode([]byte("42"), 0, &n); err != nil || n != 42 {
		t.Errorf("Expected 42, got %v (%v)", n, err)
	}

	var v interface{} = "stale"
	if err := tc.Decode(nil, flags, &v); err != nil || v != nil {
		t.Errorf("Empty payload should decode to no value, got %v (%v)", v, err)
	}

	if err := tc.Decode([]byte("abc"), flagsFor(FormatBinary), &v); !errors.Is(err, errors.ErrDecodingFailure) {
		t.Errorf("Expected decoding failure, got %v", err)
	}

	if _, _, err := tc.Encode(string([]byte{0xff, 0xfe})); !errors.Is(err, errors.ErrEncodingFailure) {
		t.Errorf("Expected encoding failure for invalid UTF-8, got %v", err)
	}
	if _, _, err := tc.Encode([]byte{'o', 'k', 0xc3}); !errors.Is(err, errors.ErrEncodingFailure) {
		t.Errorf("Expected encoding failure for invalid UTF-8 bytes, got %v", err)
	}
	if _, _, err := tc.Encode([]byte("déjà vu")); err != nil {
		t.Errorf("Valid UTF-8 bytes must encode, got %v", err)
	}
}

func TestRawTranscoders(t *testing.T) {
	cases := []struct {
		name    string
		tc      Transcoder
		value   interface{}
		format  Format
		badType interface{}
	}{
		{"string", NewRawString(), "hello", FormatString, 12},
		{"binary", NewRawBinary(), []byte{0, 1, 2}, FormatBinary, "hello"},
		{"json", NewRawJSON(), []byte(`{"a":1}`), FormatJSON, 3.5},
	}
	for _, c := range cases {
		b, flags, err := c.tc.Encode(c.value)
		if err != nil {
			t.Errorf("%s: unexpected error %v", c.name, err)
			continue
		}
		if FormatOf(flags) != c.format {
			t.Errorf("%s: expected format %v, got %v", c.name, c.format, FormatOf(flags))
		}
		var out interface{}
		if err := c.tc.Decode(b, flags, &out); err != nil {
			t.Errorf("%s: unexpected decode error %v", c.name, err)
		}
		if diff := pretty.Compare(out, c.value); diff != "" {
			t.Errorf("%s: decoded value differs: %s", c.name, diff)
		}
		if _, _, err := c.tc.Encode(c.badType); !errors.Is(err, errors.ErrEncodingFailure) {
			t.Errorf("%s: expected encoding failure, got %v", c.name, err)
		}
	}

	// a string document cannot be read as binary
	var b []byte
	err := NewRawBinary().Decode([]byte("x"), flagsFor(FormatString), &b)
	if !errors.Is(err, errors.ErrDecodingFailure) {
		t.Errorf("Expected decoding failure, got %v", err)
	}
}
