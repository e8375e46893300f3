//  Copyright 2026-Present Couchbase, Inc.
//
//  Use of this software is governed by the Business Source License included
//  in the file licenses/BSL-Couchbase.txt.  As of the Change Date specified
//  in that file, in accordance with the Business Source License, use of this
//  software will be governed by the Apache License, Version 2.0, included in
//  the file licenses/APL2.txt.

/*
Package transcoder converts between application values and the
(bytes, flags) pair stored with a document. All transcoders share the
flags layout of EncodeFlags so a document written by one is either
legible to another or rejected with a decoding failure.
*/
package transcoder

import (
	"fmt"
	"reflect"
	"unicode/utf8"

	json "github.com/couchbase/go_json"
	"github.com/couchbase/kvsdk/errors"
)

type Transcoder interface {
	Encode(value interface{}) ([]byte, uint32, error)
	Decode(data []byte, flags uint32, valuePtr interface{}) error
}

// Default is the transcoder used when an option leaves it unset.
var Default Transcoder = NewJSON()

type JSONTranscoder struct{}

func NewJSON() *JSONTranscoder {
	return &JSONTranscoder{}
}

func (t *JSONTranscoder) Encode(value interface{}) ([]byte, uint32, error) {
	switch v := value.(type) {
	case string:
		if !utf8.ValidString(v) {
			return nil, 0, errors.NewEncodingFailure("string value is not valid UTF-8")
		}
	case []byte:
		if !utf8.Valid(v) {
			return nil, 0, errors.NewEncodingFailure("byte value is not valid UTF-8")
		}
	}
	b, err := json.Marshal(value)
	if err != nil {
		return nil, 0, errors.NewEncodingFailure("value cannot be serialized to JSON", err)
	}
	return b, flagsFor(FormatJSON), nil
}

func (t *JSONTranscoder) Decode(data []byte, flags uint32, valuePtr interface{}) error {
	f := FormatOf(flags)
	if f != FormatJSON && f != FormatReserved {
		return errors.NewDecodingFailure(fmt.Sprintf("JSON transcoder cannot decode %v data", f))
	}
	if len(data) == 0 {
		return setNoValue(valuePtr)
	}
	if err := json.Unmarshal(data, valuePtr); err != nil {
		return errors.NewDecodingFailure("invalid JSON content", err)
	}
	return nil
}

// RawJSONTranscoder passes already serialized JSON through untouched.
type RawJSONTranscoder struct{}

func NewRawJSON() *RawJSONTranscoder {
	return &RawJSONTranscoder{}
}

func (t *RawJSONTranscoder) Encode(value interface{}) ([]byte, uint32, error) {
	switch v := value.(type) {
	case []byte:
		return v, flagsFor(FormatJSON), nil
	case json.RawMessage:
		return []byte(v), flagsFor(FormatJSON), nil
	case string:
		return []byte(v), flagsFor(FormatJSON), nil
	}
	return nil, 0, errors.NewEncodingFailure(fmt.Sprintf("raw JSON transcoder cannot encode %T", value))
}

func (t *RawJSONTranscoder) Decode(data []byte, flags uint32, valuePtr interface{}) error {
	f := FormatOf(flags)
	if f != FormatJSON && f != FormatReserved {
		return errors.NewDecodingFailure(fmt.Sprintf("raw JSON transcoder cannot decode %v data", f))
	}
	switch p := valuePtr.(type) {
	case *[]byte:
		*p = data
	case *json.RawMessage:
		*p = json.RawMessage(data)
	case *string:
		*p = string(data)
	case *interface{}:
		*p = data
	default:
		return errors.NewDecodingFailure(fmt.Sprintf("raw JSON transcoder cannot decode into %T", valuePtr))
	}
	return nil
}

type RawStringTranscoder struct{}

func NewRawString() *RawStringTranscoder {
	return &RawStringTranscoder{}
}

func (t *RawStringTranscoder) Encode(value interface{}) ([]byte, uint32, error) {
	s, ok := value.(string)
	if !ok {
		return nil, 0, errors.NewEncodingFailure(fmt.Sprintf("raw string transcoder cannot encode %T", value))
	}
	return []byte(s), flagsFor(FormatString), nil
}

func (t *RawStringTranscoder) Decode(data []byte, flags uint32, valuePtr interface{}) error {
	f := FormatOf(flags)
	if f != FormatString && f != FormatReserved {
		return errors.NewDecodingFailure(fmt.Sprintf("raw string transcoder cannot decode %v data", f))
	}
	switch p := valuePtr.(type) {
	case *string:
		*p = string(data)
	case *interface{}:
		*p = string(data)
	default:
		return errors.NewDecodingFailure(fmt.Sprintf("raw string transcoder cannot decode into %T", valuePtr))
	}
	return nil
}

type RawBinaryTranscoder struct{}

func NewRawBinary() *RawBinaryTranscoder {
	return &RawBinaryTranscoder{}
}

func (t *RawBinaryTranscoder) Encode(value interface{}) ([]byte, uint32, error) {
	b, ok := value.([]byte)
	if !ok {
		return nil, 0, errors.NewEncodingFailure(fmt.Sprintf("raw binary transcoder cannot encode %T", value))
	}
	return b, flagsFor(FormatBinary), nil
}

func (t *RawBinaryTranscoder) Decode(data []byte, flags uint32, valuePtr interface{}) error {
	f := FormatOf(flags)
	if f != FormatBinary && f != FormatReserved {
		return errors.NewDecodingFailure(fmt.Sprintf("raw binary transcoder cannot decode %v data", f))
	}
	switch p := valuePtr.(type) {
	case *[]byte:
		*p = data
	case *interface{}:
		*p = data
	default:
		return errors.NewDecodingFailure(fmt.Sprintf("raw binary transcoder cannot decode into %T", valuePtr))
	}
	return nil
}

// setNoValue resets the target to its zero value.
func setNoValue(valuePtr interface{}) error {
	v := reflect.ValueOf(valuePtr)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return errors.NewDecodingFailure(fmt.Sprintf("cannot decode into non-pointer %T", valuePtr))
	}
	v.Elem().Set(reflect.Zero(v.Elem().Type()))
	return nil
}
