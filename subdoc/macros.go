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

	"github.com/couchbase/kvsdk/errors"
)

// Macro is a virtual extended attribute readable through a lookup.
type Macro string

const (
	MacroDocument       Macro = "$document"
	MacroExpiryTime     Macro = "$document.exptime"
	MacroCas            Macro = "$document.CAS"
	MacroSeqNo          Macro = "$document.seqno"
	MacroLastModified   Macro = "$document.last_modified"
	MacroIsDeleted      Macro = "$document.deleted"
	MacroValueSizeBytes Macro = "$document.value_bytes"
	MacroRevID          Macro = "$document.revid"
)

// MacroFlags is not a public lookup macro; projected gets read it to
// recover the stored flags.
const MacroFlags Macro = "$document.flags"

var _LOOKUP_MACROS = map[string]Macro{
	"document":         MacroDocument,
	"expiry_time":      MacroExpiryTime,
	"cas":              MacroCas,
	"seq_no":           MacroSeqNo,
	"last_modified":    MacroLastModified,
	"is_deleted":       MacroIsDeleted,
	"value_size_bytes": MacroValueSizeBytes,
	"rev_id":           MacroRevID,
}

// MacroByName resolves a macro symbol, accepting both the symbolic name
// and the $document spelling.
func MacroByName(name string) (Macro, error) {
	if m, ok := _LOOKUP_MACROS[name]; ok {
		return m, nil
	}
	if strings.HasPrefix(name, string(MacroDocument)) {
		for _, m := range _LOOKUP_MACROS {
			if string(m) == name {
				return m, nil
			}
		}
	}
	return "", errors.NewXattrUnknownMacro(name)
}

// MutationMacro is a value expanded by the server when the mutation is
// applied.
type MutationMacro string

const (
	MutationMacroCAS         MutationMacro = "${Mutation.CAS}"
	MutationMacroSeqNo       MutationMacro = "${Mutation.seqno}"
	MutationMacroValueCRC32c MutationMacro = "${Mutation.value_crc32c}"
)

var _MUTATION_MACROS = map[string]MutationMacro{
	"cas":             MutationMacroCAS,
	"seq_no":          MutationMacroSeqNo,
	"sequence_number": MutationMacroSeqNo,
	"value_crc32c":    MutationMacroValueCRC32c,
	"value_crc":       MutationMacroValueCRC32c,
}

func MutationMacroByName(name string) (MutationMacro, error) {
	if m, ok := _MUTATION_MACROS[name]; ok {
		return m, nil
	}
	switch MutationMacro(name) {
	case MutationMacroCAS, MutationMacroSeqNo, MutationMacroValueCRC32c:
		return MutationMacro(name), nil
	}
	return "", errors.NewXattrUnknownMacro(name)
}

// param is the JSON quoted token sent to the server.
func (m MutationMacro) param() []byte {
	return []byte(`"` + string(m) + `"`)
}
