//  Copyright 2014-Present Couchbase, Inc.
//
//  Use of this software is governed by the Business Source License included
//  in the file licenses/BSL-Couchbase.txt.  As of the Change Date specified
//  in that file, in accordance with the Business Source License, use of this
//  software will be governed by the Apache License, Version 2.0, included in
//  the file licenses/APL2.txt.

/*
Package errors provides the user-visible errors of the key-value binding.
Every error carries a numeric code and a translation key; errors that
are raised by the transport are passed through with their code intact
so callers can classify them with Is or IsCode.
*/
package errors

import (
	"errors"
	"fmt"
	"path"
	"runtime"
	"strings"

	json "github.com/couchbase/go_json"
)

type ErrorCode int32

// Tristate is the retry classification of an error.
type Tristate int

const (
	NONE Tristate = iota
	FALSE
	TRUE
)

func (t Tristate) String() string {
	switch t {
	case FALSE:
		return "false"
	case TRUE:
		return "true"
	}
	return "none"
}

type Errors []Error

// Error is the interface of every error returned by this module.
type Error interface {
	error
	Code() ErrorCode
	TranslationKey() string
	GetICause() error
	Object() map[string]interface{}
	Retry() Tristate
	Cause() interface{}
	HasCause(ErrorCode) bool
	SetCause(cause interface{})
	Unwrap() error
	Is(target error) bool
}

func NewError(e error, internalMsg string) Error {
	switch e := e.(type) {
	case Error: // if given error is already an Error, just return it:
		return e
	default:
		return &err{ICode: E_INTERNAL, IKey: "internal", ICause: e,
			InternalMsg: internalMsg, InternalCaller: CallerN(1)}
	}
}

type err struct {
	ICode          ErrorCode
	IKey           string
	ICause         error
	InternalMsg    string
	InternalCaller string
	retry          Tristate
	cause          interface{}
}

func (e *err) Error() string {
	switch {
	default:
		return "Unspecified error."
	case e.InternalMsg != "" && e.ICause != nil:
		return e.InternalMsg + " - cause: " + e.ICause.Error()
	case e.InternalMsg != "":
		return e.InternalMsg
	case e.ICause != nil:
		return e.ICause.Error()
	case e.cause != nil: // only as a last resort if InternalMsg & ICause aren't set
		return fmt.Sprintf("%v", e.cause)
	}
}

func (e *err) Object() map[string]interface{} {
	m := map[string]interface{}{
		// only use standard data types in the object
		"code":    int32(e.ICode),
		"key":     e.IKey,
		"message": e.InternalMsg,
		"caller":  e.InternalCaller,
	}
	if e.ICause != nil {
		m["icause"] = e.ICause.Error()
	}
	if e.retry != NONE {
		m["retry"] = e.retry == TRUE
	}
	if e.cause != nil {
		m["cause"] = processValue(e.cause)
	}
	return m
}

func processValue(v interface{}) interface{} {
	switch vt := v.(type) {
	case map[string]interface{}:
		rv := make(map[string]interface{}, len(vt))
		for k, v := range vt {
			rv[k] = processValue(v)
		}
		return rv
	case interface{ Object() map[string]interface{} }:
		return vt.Object()
	case interface{ Error() string }:
		return vt.Error()
	case interface{ String() string }:
		return vt.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}

func (e *err) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.Object())
}

func (e *err) Code() ErrorCode {
	return e.ICode
}

func (e *err) TranslationKey() string {
	return e.IKey
}

func (e *err) GetICause() error {
	return e.ICause
}

func (e *err) Retry() Tristate {
	return e.retry
}

func (e *err) Cause() interface{} {
	return e.cause
}

func (e *err) SetCause(cause interface{}) {
	e.cause = cause
}

func (e *err) Unwrap() error {
	if e.ICause != nil {
		return e.ICause
	}
	if c, ok := e.cause.(error); ok {
		return c
	}
	return nil
}

// Is matches any Error with the same code, or with a code that the
// target's code generalises (an ambiguous timeout is a timeout).
func (e *err) Is(target error) bool {
	var t Error
	if !errors.As(target, &t) {
		return false
	}
	for c := e.ICode; c != 0; c = _parents[c] {
		if c == t.Code() {
			return true
		}
	}
	return false
}

func (e *err) HasCause(code ErrorCode) bool {
	if e.Code() == code {
		return true
	}
	c := e.Cause()
	for c != nil {
		switch cse := c.(type) {
		case Error:
			if cse.Code() == code {
				return true
			}
			c = cse.Cause()
		default:
			c = nil
		}
	}
	return false
}

// IsCode reports whether any error in e's chain carries code.
func IsCode(e error, code ErrorCode) bool {
	for e != nil {
		if ee, ok := e.(Error); ok && ee.Code() == code {
			return true
		}
		e = errors.Unwrap(e)
	}
	return false
}

// Is is errors.Is, re-exported so callers need a single import.
func Is(e, target error) bool {
	return errors.Is(e, target)
}

// As is errors.As.
func As(e error, target interface{}) bool {
	return errors.As(e, target)
}

// Returns "FileName:LineNum" of caller.
func Caller() string {
	return CallerN(1)
}

// Returns "FileName:LineNum" of the Nth caller on the call stack,
// where level of 0 is the caller of CallerN.
func CallerN(level int) string {
	_, fname, lineno, ok := runtime.Caller(1 + level)
	if !ok {
		return "unknown:0"
	}
	return fmt.Sprintf("%s:%d",
		strings.Split(path.Base(fname), ".")[0], lineno)
}
