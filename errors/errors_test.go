//  Copyright 2026-Present Couchbase, Inc.
//
//  Use of this software is governed by the Business Source License included
//  in the file licenses/BSL-Couchbase.txt.  As of the Change Date specified
//  in that file, in accordance with the Business Source License, use of this
//  software will be governed by the Apache License, Version 2.0, included in
//  the file licenses/APL2.txt.

package errors

import (
	goerrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestTimeoutHierarchy(t *testing.T) {
	amb := NewTimeout(true, nil)
	unamb := NewTimeout(false, nil)

	if !Is(amb, ErrTimeout) || !Is(unamb, ErrTimeout) {
		t.Errorf("Expected both timeouts to be timeouts")
	}
	if !Is(amb, ErrAmbiguousTimeout) || Is(amb, ErrUnambiguousTimeout) {
		t.Errorf("Ambiguous timeout misclassified")
	}
	if Is(ErrTimeout, ErrAmbiguousTimeout) {
		t.Errorf("A plain timeout must not match the ambiguous timeout")
	}
	if amb.Retry() != FALSE || unamb.Retry() != TRUE {
		t.Errorf("Unexpected retry classification %v %v", amb.Retry(), unamb.Retry())
	}
}

func TestKVErrorMessage(t *testing.T) {
	e := NewDocumentNotFound("airline_10")
	if e.Code() != E_DOCUMENT_NOT_FOUND {
		t.Errorf("Unexpected code %v", e.Code())
	}
	if e.Error() != "Document airline_10 not found" {
		t.Errorf("Unexpected message %q", e.Error())
	}
	if e.TranslationKey() != "kv.document_not_found" {
		t.Errorf("Unexpected key %q", e.TranslationKey())
	}
	if !Is(e, ErrDocumentNotFound) || Is(e, ErrDocumentExists) {
		t.Errorf("Sentinel matching failed")
	}

	bare := NewKVError(E_PATH_NOT_FOUND)
	if strings.Contains(bare.Error(), "%!") {
		t.Errorf("Unfilled verb in %q", bare.Error())
	}
}

func TestCauseIsUnwrapped(t *testing.T) {
	root := fmt.Errorf("connection reset")
	e := NewKVError(E_TEMPORARY_FAILURE, root)
	if !goerrors.Is(e, root) {
		t.Errorf("Expected the cause to be reachable through Unwrap")
	}
	if e.Retry() != TRUE {
		t.Errorf("Temporary failures are retriable")
	}
	wrapped := fmt.Errorf("upsert: %w", e)
	if !IsCode(wrapped, E_TEMPORARY_FAILURE) {
		t.Errorf("IsCode must walk wrapped chains")
	}
	var ke Error
	if !As(wrapped, &ke) || ke.Code() != E_TEMPORARY_FAILURE {
		t.Errorf("As failed to extract the error")
	}
}

func TestObject(t *testing.T) {
	e := NewInvalidArgument("delta %d must not be negative", -1)
	o := e.Object()
	if o["code"] != int32(E_INVALID_ARGUMENT) || o["key"] != "kv.invalid_argument" {
		t.Errorf("Unexpected object %v", o)
	}
	if o["message"] != "Invalid argument: delta -1 must not be negative" {
		t.Errorf("Unexpected message %v", o["message"])
	}
	if !strings.HasPrefix(o["caller"].(string), "errors_test:") {
		t.Errorf("Unexpected caller %v", o["caller"])
	}
}
