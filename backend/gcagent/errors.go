//  Copyright 2020-Present Couchbase, Inc.
//
//  Use of this software is governed by the Business Source License included
//  in the file licenses/BSL-Couchbase.txt.  As of the Change Date specified
//  in that file, in accordance with the Business Source License, use of this
//  software will be governed by the Apache License, Version 2.0, included in
//  the file licenses/APL2.txt.

package gcagent

import (
	"context"

	"github.com/couchbase/gocbcore/v10"

	"github.com/couchbase/kvsdk/errors"
)

// gocbcore errors and the codes they become, most specific first. The
// subject (document id, path or bucket) fills the message.
var _ERROR_MAP = []struct {
	from error
	code errors.ErrorCode
}{
	{gocbcore.ErrDocumentNotFound, errors.E_DOCUMENT_NOT_FOUND},
	{gocbcore.ErrDocumentExists, errors.E_DOCUMENT_EXISTS},
	{gocbcore.ErrCasMismatch, errors.E_CAS_MISMATCH},
	{gocbcore.ErrDocumentLocked, errors.E_DOCUMENT_LOCKED},
	{gocbcore.ErrDocumentNotLocked, errors.E_DOCUMENT_NOT_LOCKED},
	{gocbcore.ErrDocumentUnretrievable, errors.E_DOCUMENT_IRRETRIEVABLE},
	{gocbcore.ErrValueTooLarge, errors.E_VALUE_TOO_LARGE},
	{gocbcore.ErrDeltaInvalid, errors.E_DELTA_INVALID},
	{gocbcore.ErrDurabilityImpossible, errors.E_DURABILITY_IMPOSSIBLE},
	{gocbcore.ErrDurabilityAmbiguous, errors.E_DURABILITY_AMBIGUOUS},
	{gocbcore.ErrDurabilityLevelNotAvailable, errors.E_DURABILITY_LEVEL_NA},
	{gocbcore.ErrDurableWriteInProgress, errors.E_DURABLE_WRITE_IN_PROG},
	{gocbcore.ErrPathNotFound, errors.E_PATH_NOT_FOUND},
	{gocbcore.ErrPathMismatch, errors.E_PATH_MISMATCH},
	{gocbcore.ErrPathInvalid, errors.E_PATH_INVALID},
	{gocbcore.ErrPathTooBig, errors.E_PATH_TOO_BIG},
	{gocbcore.ErrPathTooDeep, errors.E_PATH_TOO_DEEP},
	{gocbcore.ErrPathExists, errors.E_PATH_EXISTS},
	{gocbcore.ErrValueTooDeep, errors.E_VALUE_TOO_DEEP},
	{gocbcore.ErrValueInvalid, errors.E_VALUE_INVALID},
	{gocbcore.ErrDocumentNotJSON, errors.E_DOCUMENT_NOT_JSON},
	{gocbcore.ErrNumberTooBig, errors.E_NUMBER_TOO_BIG},
	{gocbcore.ErrXattrUnknownMacro, errors.E_XATTR_UNKNOWN_MACRO},
	{gocbcore.ErrXattrUnknownVirtualAttribute, errors.E_XATTR_UNKNOWN_VATTR},
	{gocbcore.ErrXattrCannotModifyVirtualAttribute, errors.E_XATTR_CANNOT_MOD_VATTR},
	{gocbcore.ErrXattrInvalidKeyCombo, errors.E_XATTR_INVALID_KEY_COMBO},
	{gocbcore.ErrBucketNotFound, errors.E_BUCKET_NOT_FOUND},
	{gocbcore.ErrScopeNotFound, errors.E_SCOPE_NOT_FOUND},
	{gocbcore.ErrCollectionNotFound, errors.E_COLLECTION_NOT_FOUND},
	{gocbcore.ErrAuthenticationFailure, errors.E_AUTHENTICATION_FAILURE},
	{gocbcore.ErrTemporaryFailure, errors.E_TEMPORARY_FAILURE},
	{gocbcore.ErrServiceNotAvailable, errors.E_SERVICE_NOT_AVAILABLE},
	{gocbcore.ErrFeatureNotAvailable, errors.E_FEATURE_NOT_AVAILABLE},
	{gocbcore.ErrInvalidArgument, errors.E_INVALID_ARGUMENT},
	{gocbcore.ErrRequestCanceled, errors.E_REQUEST_CANCELED},
}

// codes whose message takes no subject or a description instead of it
var _DESCRIBED = map[errors.ErrorCode]bool{
	errors.E_DURABILITY_IMPOSSIBLE: true,
	errors.E_DURABILITY_LEVEL_NA:   true,
	errors.E_SERVICE_NOT_AVAILABLE: true,
	errors.E_FEATURE_NOT_AVAILABLE: true,
	errors.E_INVALID_ARGUMENT:      true,
}

// mapError converts a gocbcore error. Errors already carrying a code
// pass through.
func mapError(err error, subject string) error {
	if err == nil {
		return nil
	}
	if e, ok := err.(errors.Error); ok {
		return e
	}
	switch {
	case errors.Is(err, gocbcore.ErrAmbiguousTimeout):
		return errors.NewTimeout(true, err)
	case errors.Is(err, gocbcore.ErrUnambiguousTimeout), errors.Is(err, gocbcore.ErrTimeout):
		return errors.NewTimeout(false, err)
	}
	for _, m := range _ERROR_MAP {
		if errors.Is(err, m.from) {
			if _DESCRIBED[m.code] {
				return errors.NewKVError(m.code, err.Error(), err)
			}
			if subject == "" {
				return errors.NewKVError(m.code, err)
			}
			return errors.NewKVError(m.code, subject, err)
		}
	}
	return errors.NewError(err, "gocbcore")
}

// mapPathError converts the error of a single sub-document operation.
func mapPathError(err error, path string) error {
	if path == "" {
		path = "(document root)"
	}
	return mapError(err, path)
}

// ctxError is the error for an operation abandoned because its context
// ended. Writes that were dispatched are ambiguous.
func ctxError(ctx context.Context, ambiguous bool) error {
	switch ctx.Err() {
	case nil:
		return nil
	case context.DeadlineExceeded:
		return errors.NewTimeout(ambiguous, ctx.Err())
	default:
		return errors.NewKVError(errors.E_REQUEST_CANCELED, ctx.Err())
	}
}
