// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package schema

// Validity is a per-row null mask; Validity[i] == false means row i is null.
// Its length always equals the owning ColumnChunk's row count.
type Validity []bool

// IsValid reports whether row i holds a non-null value.
func (v Validity) IsValid(i int) bool {
	if i < 0 || i >= len(v) {
		return false
	}
	return v[i]
}

// ColumnChunk is one column's typed data for one Chunk. Exactly one of the
// typed slices is populated, matching the column's LogicalType.
type ColumnChunk struct {
	Name    string
	Type    LogicalType
	Valid   Validity
	Int64   []int64   // Int8/Int16/Int32/Int64
	Float64 []float64 // Float32/Float64
	Time    []int64   // Date (days since Unix epoch) / Time (since midnight: microseconds from SAS, seconds from SPSS) / Datetime (since Unix epoch: microseconds from SAS, milliseconds from Stata, seconds from SPSS; the readers leave DatetimeUnit unset)
	Str     []string  // Utf8
	Cat     []int32   // Categorical: dictionary index; 0 conventionally means "(null)"
	Dict    []string  // Categorical dictionary, index 0 is always "(null)"

	// TagBytes holds the SAS tagged-missing payload sidecar, populated only
	// when ScanOptions.PreserveTaggedMissing is set and this column carries
	// tagged missings. nil otherwise.
	TagBytes []byte
}

// Len returns the row count of this column fragment.
func (c *ColumnChunk) Len() int {
	return len(c.Valid)
}

// Chunk is an immutable-once-emitted, contiguous block of rows across every
// column of a Schema.
type Chunk struct {
	Schema   *Schema
	Columns  []*ColumnChunk // parallel to Schema.Columns, insertion order preserved.
	RowCount int
	// Seq is the sequence number passed to ReadChunk: the work-unit index
	// under the scheduler, a running chunk count in pipeline mode. The
	// PreserveOrder reordering works per work unit and does not read it.
	Seq int64
	// StartRow is the physical row index of this chunk's first row.
	StartRow int64
}

// Column looks up a chunk's column fragment by name, or nil.
func (c *Chunk) Column(name string) *ColumnChunk {
	for _, col := range c.Columns {
		if col.Name == name {
			return col
		}
	}
	return nil
}

// NewColumnBuilder allocates a ColumnChunk sized to hold up to capacity rows,
// used by format-specific row decoders (C5) to build one output fragment.
func NewColumnBuilder(col ColumnDescriptor, capacity int) *ColumnChunk {
	cc := &ColumnChunk{Name: col.Name, Type: col.Type, Valid: make(Validity, 0, capacity)}
	switch col.Type {
	case Int8, Int16, Int32, Int64:
		cc.Int64 = make([]int64, 0, capacity)
	case Float32, Float64:
		cc.Float64 = make([]float64, 0, capacity)
	case Date, Time, Datetime:
		cc.Time = make([]int64, 0, capacity)
	case Utf8:
		cc.Str = make([]string, 0, capacity)
	case Categorical:
		cc.Cat = make([]int32, 0, capacity)
		cc.Dict = []string{"(null)"}
	}
	if col.TaggedMissing {
		cc.TagBytes = make([]byte, 0, capacity)
	}
	return cc
}

// AppendNull appends a null row to the builder, keeping every slice in sync.
func (c *ColumnChunk) AppendNull() {
	c.Valid = append(c.Valid, false)
	switch c.Type {
	case Int8, Int16, Int32, Int64:
		c.Int64 = append(c.Int64, 0)
	case Float32, Float64:
		c.Float64 = append(c.Float64, 0)
	case Date, Time, Datetime:
		c.Time = append(c.Time, 0)
	case Utf8:
		c.Str = append(c.Str, "")
	case Categorical:
		c.Cat = append(c.Cat, 0)
	}
	c.padTag()
}

func (c *ColumnChunk) AppendInt64(v int64) {
	c.Valid = append(c.Valid, true)
	c.Int64 = append(c.Int64, v)
	c.padTag()
}

func (c *ColumnChunk) AppendFloat64(v float64) {
	c.Valid = append(c.Valid, true)
	c.Float64 = append(c.Float64, v)
	c.padTag()
}

func (c *ColumnChunk) AppendTime(v int64) {
	c.Valid = append(c.Valid, true)
	c.Time = append(c.Time, v)
	c.padTag()
}

func (c *ColumnChunk) AppendStr(v string) {
	c.Valid = append(c.Valid, true)
	c.Str = append(c.Str, v)
	c.padTag()
}

func (c *ColumnChunk) padTag() {
	if c.TagBytes != nil {
		c.TagBytes = append(c.TagBytes, 0)
	}
}

// AppendCategory appends a dictionary entry, interning label into Dict if
// it has not been seen before, so no string is allocated more than once per
// distinct label regardless of how many rows carry it.
func (c *ColumnChunk) AppendCategory(label string, dictIndex map[string]int32) {
	idx, ok := dictIndex[label]
	if !ok {
		idx = int32(len(c.Dict))
		c.Dict = append(c.Dict, label)
		dictIndex[label] = idx
	}
	c.Valid = append(c.Valid, true)
	c.Cat = append(c.Cat, idx)
	c.padTag()
}

// AppendTagByte records the tagged-missing payload byte for the most
// recently appended row (0 means plain null / no tag).
func (c *ColumnChunk) AppendTagByte(tag byte) {
	if c.TagBytes == nil {
		return
	}
	c.TagBytes[len(c.TagBytes)-1] = tag
}
