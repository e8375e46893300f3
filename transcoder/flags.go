//  Copyright 2026-Present Couchbase, Inc.
//
//  Use of this software is governed by the Business Source License included
//  in the file licenses/BSL-Couchbase.txt.  As of the Change Date specified
//  in that file, in accordance with the Business Source License, use of this
//  software will be governed by the Apache License, Version 2.0, included in
//  the file licenses/APL2.txt.

package transcoder

import (
	"fmt"
)

// Format is the data format recorded in the common flags.
type Format uint8

const (
	FormatReserved Format = 0 // also the legacy / unspecified format
	FormatPrivate  Format = 1
	FormatJSON     Format = 2
	FormatBinary   Format = 3
	FormatString   Format = 4
)

var _FORMAT_NAMES = map[Format]string{
	FormatReserved: "reserved",
	FormatPrivate:  "private",
	FormatJSON:     "json",
	FormatBinary:   "binary",
	FormatString:   "string",
}

func (f Format) String() string {
	if n, ok := _FORMAT_NAMES[f]; ok {
		return n
	}
	return fmt.Sprintf("format(%d)", uint8(f))
}

type Compression uint8

const (
	CompressionNone Compression = 0
)

const (
	_COMMON_SHIFT      = 24
	_COMPRESSION_SHIFT = 5
	_FORMAT_MASK       = 0x0f
	_LOWER_MASK        = 0xffff
)

// Flags is the decoded form of the 32 bit flags word stored with every
// document.
type Flags struct {
	Format      Format
	Compression Compression
	LowerBits   uint16
}

// Specified is false for documents written without common flags.
func (f Flags) Specified() bool {
	return f.Format != FormatReserved
}

func EncodeFlags(f Flags) uint32 {
	common := uint32(f.Format)&_FORMAT_MASK | uint32(f.Compression)<<_COMPRESSION_SHIFT
	return common<<_COMMON_SHIFT | uint32(f.LowerBits)
}

func DecodeFlags(flags uint32) Flags {
	common := flags >> _COMMON_SHIFT
	rv := Flags{LowerBits: uint16(flags & _LOWER_MASK)}
	if common == 0 {
		return rv
	}
	rv.Compression = Compression(common >> _COMPRESSION_SHIFT)
	if _, ok := _FORMAT_NAMES[Format(common&_FORMAT_MASK)]; ok {
		rv.Format = Format(common & _FORMAT_MASK)
	}
	return rv
}

// FormatOf returns the format recorded in a raw flags word.
func FormatOf(flags uint32) Format {
	return DecodeFlags(flags).Format
}

func flagsFor(f Format) uint32 {
	return EncodeFlags(Flags{Format: f})
}
