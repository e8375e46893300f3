//  Copyright 2026-Present Couchbase, Inc.
//
//  Use of this software is governed by the Business Source License included
//  in the file licenses/BSL-Couchbase.txt.  As of the Change Date specified
//  in that file, in accordance with the Business Source License, use of this
//  software will be governed by the Apache License, Version 2.0, included in
//  the file licenses/APL2.txt.

package errors

import (
	"fmt"
)

const (
	E_INTERNAL ErrorCode = 1000

	// local validation
	E_INVALID_ARGUMENT        ErrorCode = 1001
	E_FEATURE_NOT_AVAILABLE   ErrorCode = 1002
	E_UNSUPPORTED_CONNSTR     ErrorCode = 1003
	E_REQUEST_CANCELED        ErrorCode = 1004
	E_SERVICE_NOT_AVAILABLE   ErrorCode = 1005
	E_TEMPORARY_FAILURE       ErrorCode = 1006
	E_AUTHENTICATION_FAILURE  ErrorCode = 1007
	E_BUCKET_NOT_FOUND        ErrorCode = 1008
	E_SCOPE_NOT_FOUND         ErrorCode = 1009
	E_COLLECTION_NOT_FOUND    ErrorCode = 1010
	E_ENCODING_FAILURE        ErrorCode = 1020
	E_DECODING_FAILURE        ErrorCode = 1021
	E_TIMEOUT                 ErrorCode = 1030
	E_AMBIGUOUS_TIMEOUT       ErrorCode = 1031
	E_UNAMBIGUOUS_TIMEOUT     ErrorCode = 1032
	E_CAS_MISMATCH            ErrorCode = 1040
	E_DOCUMENT_NOT_FOUND      ErrorCode = 1041
	E_DOCUMENT_EXISTS         ErrorCode = 1042
	E_DOCUMENT_LOCKED         ErrorCode = 1043
	E_DOCUMENT_NOT_LOCKED     ErrorCode = 1044
	E_DOCUMENT_IRRETRIEVABLE  ErrorCode = 1045
	E_VALUE_TOO_LARGE         ErrorCode = 1046
	E_DELTA_INVALID           ErrorCode = 1047
	E_DURABILITY_IMPOSSIBLE   ErrorCode = 1050
	E_DURABILITY_AMBIGUOUS    ErrorCode = 1051
	E_DURABILITY_LEVEL_NA     ErrorCode = 1052
	E_DURABLE_WRITE_IN_PROG   ErrorCode = 1053
	E_PATH_NOT_FOUND          ErrorCode = 1060
	E_PATH_MISMATCH           ErrorCode = 1061
	E_PATH_INVALID            ErrorCode = 1062
	E_PATH_TOO_BIG            ErrorCode = 1063
	E_PATH_TOO_DEEP           ErrorCode = 1064
	E_PATH_EXISTS             ErrorCode = 1065
	E_VALUE_TOO_DEEP          ErrorCode = 1066
	E_VALUE_INVALID           ErrorCode = 1067
	E_DOCUMENT_NOT_JSON       ErrorCode = 1068
	E_NUMBER_TOO_BIG          ErrorCode = 1069
	E_XATTR_UNKNOWN_MACRO     ErrorCode = 1070
	E_XATTR_UNKNOWN_VATTR     ErrorCode = 1071
	E_XATTR_CANNOT_MOD_VATTR  ErrorCode = 1072
	E_XATTR_INVALID_KEY_COMBO ErrorCode = 1073
	E_SCAN_SNAPSHOT           ErrorCode = 1080
	E_SCAN_CLOSED             ErrorCode = 1081
)

var _kv = map[ErrorCode][2]string{
	E_INTERNAL:                {"internal", "Internal error"},
	E_INVALID_ARGUMENT:        {"invalid_argument", "Invalid argument: %v"},
	E_FEATURE_NOT_AVAILABLE:   {"feature_not_available", "Feature not available: %v"},
	E_UNSUPPORTED_CONNSTR:     {"unsupported_connstr", "No cluster implementation registered for connection string %v"},
	E_REQUEST_CANCELED:        {"request_canceled", "Request canceled"},
	E_SERVICE_NOT_AVAILABLE:   {"service_not_available", "Service not available: %v"},
	E_TEMPORARY_FAILURE:       {"temporary_failure", "Temporary failure"},
	E_AUTHENTICATION_FAILURE:  {"authentication_failure", "Authentication failure"},
	E_BUCKET_NOT_FOUND:        {"bucket_not_found", "Bucket %v not found"},
	E_SCOPE_NOT_FOUND:         {"scope_not_found", "Scope %v not found"},
	E_COLLECTION_NOT_FOUND:    {"collection_not_found", "Collection %v not found"},
	E_ENCODING_FAILURE:        {"encoding_failure", "Encoding failure: %v"},
	E_DECODING_FAILURE:        {"decoding_failure", "Decoding failure: %v"},
	E_TIMEOUT:                 {"timeout", "Operation timed out"},
	E_AMBIGUOUS_TIMEOUT:       {"ambiguous_timeout", "Operation timed out, the outcome is unknown"},
	E_UNAMBIGUOUS_TIMEOUT:     {"unambiguous_timeout", "Operation timed out before it took effect"},
	E_CAS_MISMATCH:            {"cas_mismatch", "CAS mismatch for document %v"},
	E_DOCUMENT_NOT_FOUND:      {"document_not_found", "Document %v not found"},
	E_DOCUMENT_EXISTS:         {"document_exists", "Document %v already exists"},
	E_DOCUMENT_LOCKED:         {"document_locked", "Document %v is locked"},
	E_DOCUMENT_NOT_LOCKED:     {"document_not_locked", "Document %v is not locked"},
	E_DOCUMENT_IRRETRIEVABLE:  {"document_irretrievable", "No copy of document %v could be retrieved"},
	E_VALUE_TOO_LARGE:         {"value_too_large", "Value for document %v is too large"},
	E_DELTA_INVALID:           {"delta_invalid", "Counter delta is invalid for document %v"},
	E_DURABILITY_IMPOSSIBLE:   {"durability_impossible", "Durability requirement cannot be satisfied: %v"},
	E_DURABILITY_AMBIGUOUS:    {"durability_ambiguous", "Durability outcome is ambiguous"},
	E_DURABILITY_LEVEL_NA:     {"durability_level_not_available", "Durability level %v is not available"},
	E_DURABLE_WRITE_IN_PROG:   {"durable_write_in_progress", "A durable write is in progress for document %v"},
	E_PATH_NOT_FOUND:          {"path_not_found", "Path %v not found"},
	E_PATH_MISMATCH:           {"path_mismatch", "Path %v does not match the document structure"},
	E_PATH_INVALID:            {"path_invalid", "Path %v is invalid"},
	E_PATH_TOO_BIG:            {"path_too_big", "Path %v is too long"},
	E_PATH_TOO_DEEP:           {"path_too_deep", "Path %v is nested too deeply"},
	E_PATH_EXISTS:             {"path_exists", "Path %v already exists"},
	E_VALUE_TOO_DEEP:          {"value_too_deep", "Value for path %v is nested too deeply"},
	E_VALUE_INVALID:           {"value_invalid", "Value for path %v is invalid"},
	E_DOCUMENT_NOT_JSON:       {"document_not_json", "Document %v is not JSON"},
	E_NUMBER_TOO_BIG:          {"number_too_big", "Number at path %v is too big"},
	E_XATTR_UNKNOWN_MACRO:     {"xattr_unknown_macro", "Unknown macro %v"},
	E_XATTR_UNKNOWN_VATTR:     {"xattr_unknown_virtual_attribute", "Unknown virtual attribute %v"},
	E_XATTR_CANNOT_MOD_VATTR:  {"xattr_cannot_modify_virtual_attribute", "Virtual attribute %v cannot be modified"},
	E_XATTR_INVALID_KEY_COMBO: {"xattr_invalid_key_combo", "Only one extended attribute key may be addressed per request: %v"},
	E_SCAN_SNAPSHOT:           {"scan_snapshot", "Partition %v cannot satisfy the scan consistency requirement"},
	E_SCAN_CLOSED:             {"scan_closed", "Scan has been closed"},
}

// a code's parent generalises it for Is matching
var _parents = map[ErrorCode]ErrorCode{
	E_AMBIGUOUS_TIMEOUT:   E_TIMEOUT,
	E_UNAMBIGUOUS_TIMEOUT: E_TIMEOUT,
}

// NewKVError builds an error from the code table. String and numeric
// arguments fill the message; an error argument becomes the cause.
func NewKVError(code ErrorCode, args ...interface{}) Error {
	e := &err{ICode: code, InternalCaller: CallerN(1),
		IKey: "kv." + _kv[code][0], InternalMsg: _kv[code][1]}
	switch code {
	case E_UNAMBIGUOUS_TIMEOUT:
		e.retry = TRUE
	case E_AMBIGUOUS_TIMEOUT, E_CAS_MISMATCH, E_DURABILITY_AMBIGUOUS:
		e.retry = FALSE
	case E_TEMPORARY_FAILURE, E_DOCUMENT_LOCKED, E_DURABLE_WRITE_IN_PROG:
		e.retry = TRUE
	}
	var fmtArgs []interface{}
	for _, a := range args {
		switch a := a.(type) {
		case Error:
			e.cause = a
		case error:
			e.ICause = a
		default:
			fmtArgs = append(fmtArgs, a)
		}
	}
	if len(fmtArgs) > 0 {
		e.InternalMsg = fmt.Sprintf(e.InternalMsg, fmtArgs...)
	} else if n := countVerbs(e.InternalMsg); n > 0 {
		// keep messages readable when the subject is unknown
		e.InternalMsg = fmt.Sprintf(e.InternalMsg, make([]interface{}, n)...)
	}
	return e
}

func countVerbs(s string) int {
	n := 0
	for i := 0; i < len(s)-1; i++ {
		if s[i] == '%' && s[i+1] == 'v' {
			n++
		}
	}
	return n
}

func sentinel(code ErrorCode) Error {
	return &err{ICode: code, IKey: "kv." + _kv[code][0], InternalMsg: _kv[code][1]}
}

// Sentinels for errors.Is; they match any error carrying the same code.
var (
	ErrInvalidArgument         = sentinel(E_INVALID_ARGUMENT)
	ErrFeatureNotAvailable     = sentinel(E_FEATURE_NOT_AVAILABLE)
	ErrRequestCanceled         = sentinel(E_REQUEST_CANCELED)
	ErrTemporaryFailure        = sentinel(E_TEMPORARY_FAILURE)
	ErrEncodingFailure         = sentinel(E_ENCODING_FAILURE)
	ErrDecodingFailure         = sentinel(E_DECODING_FAILURE)
	ErrTimeout                 = sentinel(E_TIMEOUT)
	ErrAmbiguousTimeout        = sentinel(E_AMBIGUOUS_TIMEOUT)
	ErrUnambiguousTimeout      = sentinel(E_UNAMBIGUOUS_TIMEOUT)
	ErrCasMismatch             = sentinel(E_CAS_MISMATCH)
	ErrDocumentNotFound        = sentinel(E_DOCUMENT_NOT_FOUND)
	ErrDocumentExists          = sentinel(E_DOCUMENT_EXISTS)
	ErrDocumentLocked          = sentinel(E_DOCUMENT_LOCKED)
	ErrDocumentNotLocked       = sentinel(E_DOCUMENT_NOT_LOCKED)
	ErrDocumentIrretrievable   = sentinel(E_DOCUMENT_IRRETRIEVABLE)
	ErrValueTooLarge           = sentinel(E_VALUE_TOO_LARGE)
	ErrDeltaInvalid            = sentinel(E_DELTA_INVALID)
	ErrDurabilityImpossible    = sentinel(E_DURABILITY_IMPOSSIBLE)
	ErrDurabilityAmbiguous     = sentinel(E_DURABILITY_AMBIGUOUS)
	ErrPathNotFound            = sentinel(E_PATH_NOT_FOUND)
	ErrPathMismatch            = sentinel(E_PATH_MISMATCH)
	ErrPathInvalid             = sentinel(E_PATH_INVALID)
	ErrPathTooBig              = sentinel(E_PATH_TOO_BIG)
	ErrPathTooDeep             = sentinel(E_PATH_TOO_DEEP)
	ErrPathExists              = sentinel(E_PATH_EXISTS)
	ErrValueInvalid            = sentinel(E_VALUE_INVALID)
	ErrDocumentNotJSON         = sentinel(E_DOCUMENT_NOT_JSON)
	ErrXattrUnknownMacro       = sentinel(E_XATTR_UNKNOWN_MACRO)
	ErrXattrUnknownVirtualAttr = sentinel(E_XATTR_UNKNOWN_VATTR)
	ErrScanClosed              = sentinel(E_SCAN_CLOSED)
)

func NewInvalidArgument(format string, args ...interface{}) Error {
	e := NewKVError(E_INVALID_ARGUMENT, fmt.Sprintf(format, args...)).(*err)
	e.InternalCaller = CallerN(1)
	return e
}

func NewFeatureNotAvailable(feature string) Error {
	return NewKVError(E_FEATURE_NOT_AVAILABLE, feature)
}

func NewEncodingFailure(reason string, cause ...error) Error {
	e := NewKVError(E_ENCODING_FAILURE, reason).(*err)
	if len(cause) > 0 {
		e.ICause = cause[0]
	}
	return e
}

func NewDecodingFailure(reason string, cause ...error) Error {
	e := NewKVError(E_DECODING_FAILURE, reason).(*err)
	if len(cause) > 0 {
		e.ICause = cause[0]
	}
	return e
}

func NewDocumentNotFound(id string) Error {
	return NewKVError(E_DOCUMENT_NOT_FOUND, id)
}

func NewDocumentExists(id string) Error {
	return NewKVError(E_DOCUMENT_EXISTS, id)
}

func NewCasMismatch(id string) Error {
	return NewKVError(E_CAS_MISMATCH, id)
}

func NewPathError(code ErrorCode, path string) Error {
	if path == "" {
		path = "(document root)"
	}
	return NewKVError(code, path)
}

func NewXattrUnknownMacro(name string) Error {
	return NewKVError(E_XATTR_UNKNOWN_MACRO, name)
}

// NewTimeout returns an ambiguous timeout when the operation may have
// taken effect and an unambiguous one otherwise.
func NewTimeout(ambiguous bool, cause error) Error {
	code := E_UNAMBIGUOUS_TIMEOUT
	if ambiguous {
		code = E_AMBIGUOUS_TIMEOUT
	}
	if cause != nil {
		return NewKVError(code, cause)
	}
	return NewKVError(code)
}
