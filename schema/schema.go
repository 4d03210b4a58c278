// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package schema holds the in-memory representation reconstructed from a
// SAS, SPSS, or Stata file: the logical Schema, its physical on-disk layout,
// scan options, and the shared error taxonomy that every decoder component
// reports through.
package schema

import "fmt"

// LogicalType is the closed set of column types the decoder can produce.
type LogicalType int

const (
	Int8 LogicalType = iota + 1
	Int16
	Int32
	Int64
	Float32
	Float64
	Date
	Time
	Datetime
	Utf8
	Categorical
)

func (t LogicalType) String() string {
	switch t {
	case Int8:
		return "Int8"
	case Int16:
		return "Int16"
	case Int32:
		return "Int32"
	case Int64:
		return "Int64"
	case Float32:
		return "Float32"
	case Float64:
		return "Float64"
	case Date:
		return "Date"
	case Time:
		return "Time"
	case Datetime:
		return "Datetime"
	case Utf8:
		return "Utf8"
	case Categorical:
		return "Categorical"
	default:
		return fmt.Sprintf("LogicalType(%d)", int(t))
	}
}

// TimeUnit qualifies a Datetime column's on-disk resolution.
type TimeUnit int

const (
	Seconds TimeUnit = iota
	Milliseconds
	Microseconds
)

// ByteOrder is the file's declared endianness.
type ByteOrder int

const (
	LittleEndian ByteOrder = iota
	BigEndian
)

// Compression enumerates the page/record compression scheme in effect.
type Compression int

const (
	CompressionNone Compression = iota
	CompressionRle              // SAS run-length encoding.
	CompressionRdc              // SAS Ross Data Compression.
	CompressionSPSSBytecode
	CompressionZsav // SPSS ZSAV zlib-wrapped blocks.
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionRle:
		return "rle"
	case CompressionRdc:
		return "rdc"
	case CompressionSPSSBytecode:
		return "spss-bytecode"
	case CompressionZsav:
		return "zsav"
	default:
		return "unknown"
	}
}

// PhysicalEncoding describes how a single column's cells are stored on disk.
type PhysicalEncoding struct {
	StorageWidth int  // bytes per cell in the fixed row layout.
	Signed       bool
	ByteOrder    ByteOrder
}

// MissingSpec describes the per-column missing-value rules. Not every field
// applies to every format; a format-specific decoder only reads the fields
// it produced at parse time.
type MissingSpec struct {
	// Numeric discrete sentinel values (SPSS: up to 3; Stata: tagged-missing
	// floor per type; SAS: tagged NaN payloads, see TaggedMissingCount).
	DiscreteValues []float64

	// RangeLow/RangeHigh: SPSS allows one numeric range plus one discrete
	// value. RangeLow <= RangeHigh when a range is present.
	HasRange         bool
	RangeLow         float64
	RangeHigh        float64

	// StringValues: SPSS string missing values (exact match after padding
	// strip).
	StringValues []string

	// TaggedMissingCount: SAS has exactly 27 tagged payloads ('.', '.A'-'.Z',
	// '._'); Stata has 27 as well ('.', '.a'-'.z'). Zero means "plain null
	// only", i.e. the format has no tagged-missing concept for this column.
	TaggedMissingCount int
}

// ValueLabelTable maps a column's raw stored values to display labels.
// Exactly one of NumericLabels or StringLabels is populated for a given
// table: the key is either the raw numeric code or the raw string code.
type ValueLabelTable struct {
	Name          string
	NumericLabels map[float64]string
	StringLabels  map[string]string
	// Order preserves insertion order, used only to break ties among
	// duplicate label strings when materializing a Categorical dictionary.
	Order []string
}

// ColumnDescriptor is one column of a Schema.
type ColumnDescriptor struct {
	Name          string // unique within the Schema; case preserved.
	OriginalName  string // name before any collision-rename.
	Renamed       bool
	Type          LogicalType
	DatetimeUnit  TimeUnit
	DatetimeTZ    string // empty when the source has no timezone concept.
	MaxUtf8Width  int    // 0 means unbounded / not fixed-width.
	Encoding      PhysicalEncoding
	Label         string // variable label, optional.
	Format        string // display format string, optional.
	ValueLabels   *ValueLabelTable
	Missing       MissingSpec
	TaggedMissing bool // true if this column carries SAS/Stata tagged-missing sentinels.
}

// Schema is the ordered, immutable-after-open column list for one file.
type Schema struct {
	Columns []ColumnDescriptor
	// Renames records the rename applied to resolve a name collision,
	// keyed by final (post-rename) name.
	Renames map[string]string
}

// ColumnIndex returns the position of name in the schema, or -1.
func (s *Schema) ColumnIndex(name string) int {
	for i, c := range s.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Dedup assigns unique names, renaming collisions by appending a numeric
// suffix and recording the rename, so every ColumnDescriptor.Name in the
// result is unique.
func Dedup(cols []ColumnDescriptor) ([]ColumnDescriptor, map[string]string) {
	seen := make(map[string]int, len(cols))
	renames := make(map[string]string)
	out := make([]ColumnDescriptor, len(cols))
	for i, c := range cols {
		c.OriginalName = c.Name
		name := c.Name
		if n, ok := seen[name]; ok {
			for {
				n++
				candidate := fmt.Sprintf("%s_%d", name, n)
				if _, exists := seen[candidate]; !exists {
					seen[name] = n
					name = candidate
					break
				}
			}
			c.Name = name
			c.Renamed = true
			renames[name] = c.OriginalName
		}
		seen[c.Name] = 0
		out[i] = c
	}
	return out, renames
}

// PageType enumerates SAS page kinds; unused by Stata/SPSS layouts.
type PageType int

const (
	PageMeta PageType = iota
	PageData
	PageMix
	PageComp
	PageAMD
)

// SASPageHeader describes one page of a SAS file, recorded during metadata
// parsing so the row decoder can locate data without re-walking subheaders.
type SASPageHeader struct {
	Offset         int64
	Type           PageType
	DataOffset     int64 // first byte of row data on this page (mix/data pages).
	SubheaderPtr   int
	BlockCount     int
	SubheaderCount int
}

// StataStrLKey identifies a long-string cell: (variable index, 48-bit offset).
type StataStrLKey struct {
	Variable int
	Offset   uint64
}

// StataStrLRef names where a StrL payload lives in the file and how long it
// is, resolved once while walking <strls> and consulted lazily by the row
// decoder when a cell is actually materialized.
type StataStrLRef struct {
	PayloadOffset int64
	Length        int32
}

// PhysicalLayout is the on-disk row/page geometry reconstructed by a
// format-specific metadata parser.
type PhysicalLayout struct {
	RowStride       int // sum of storage widths, including explicit alignment pads.
	PageSize        int
	PageCount       int
	DataOffset      int64 // offset of the first data byte (plain layouts).
	RowCount        int64
	Compression     Compression
	ByteOrder       ByteOrder
	CodePage        string

	// SAS-specific.
	SASPages []SASPageHeader

	// Stata-specific.
	StataStrLOffsets map[StataStrLKey]StataStrLRef
	StataRelease     int

	// SPSS-specific.
	SPSSCompressionBias float64
	SPSSSysmis          float64
	// SPSSSlotRanges maps a logical column index to the inclusive range of
	// raw 8-byte row slots that make up its value (long strings span more
	// than one slot).
	SPSSSlotRanges map[int][2]int
}
