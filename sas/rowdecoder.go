// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sas

import (
	"encoding/binary"
	"math"
	"strings"

	"github.com/solidcoredata/statread/schema"
	"github.com/solidcoredata/statread/textdecode"
)

// sasEpochDays is the number of days between SAS's 1960-01-01 epoch and the
// engine's canonical Unix 1970-01-01 epoch.
const sasEpochDays = 3653
const sasEpochSeconds = sasEpochDays * 86400

// boundColumn is bound once per column at scan-open time, rather than
// dispatched per cell, so the hot row-decode loop never branches on column
// type.
type boundColumn struct {
	desc     schema.ColumnDescriptor
	offset   int
	width    int
	decode   func(row []byte, bc *boundColumn, out *schema.ColumnChunk, dictIndex map[string]int32, opts schema.ScanOptions)
	textDec  *textdecode.Decoder
}

func bindColumns(meta *Metadata, opts schema.ScanOptions) []*boundColumn {
	dec := textdecode.ByTag(meta.Layout.CodePage)
	out := make([]*boundColumn, len(meta.Schema.Columns))
	for i, col := range meta.Schema.Columns {
		bc := &boundColumn{desc: col, width: col.Encoding.StorageWidth, textDec: dec}
		if i < len(meta.ColumnOffset) {
			bc.offset = int(meta.ColumnOffset[i])
		}
		switch {
		case col.Type == schema.Utf8:
			bc.decode = decodeSASString
		case col.Type == schema.Date, col.Type == schema.Time, col.Type == schema.Datetime:
			bc.decode = decodeSASTemporal
		case opts.ValueLabelsAsStrings && col.ValueLabels != nil:
			bc.desc.Type = schema.Categorical
			meta.Schema.Columns[i].Type = schema.Categorical
			bc.decode = decodeSASCategorical
		default:
			bc.decode = decodeSASNumeric
			if opts.PreserveTaggedMissing && !opts.UserMissingAsNull {
				bc.desc.TaggedMissing = true
				meta.Schema.Columns[i].TaggedMissing = true
			}
		}
		out[i] = bc
	}
	return out
}

func decodeSASNumeric(row []byte, bc *boundColumn, out *schema.ColumnChunk, _ map[string]int32, opts schema.ScanOptions) {
	if bc.offset+8 > len(row) {
		out.AppendNull()
		return
	}
	bits := binary.LittleEndian.Uint64(row[bc.offset : bc.offset+8])
	if bc.desc.Encoding.ByteOrder == schema.BigEndian {
		bits = binary.BigEndian.Uint64(row[bc.offset : bc.offset+8])
	}
	if tag, ok := taggedMissing(bits); ok {
		if opts.UserMissingAsNull || !bc.desc.TaggedMissing {
			out.AppendNull()
		} else {
			out.AppendNull()
			out.AppendTagByte(tag)
		}
		return
	}
	out.AppendFloat64(math.Float64frombits(bits))
}

func decodeSASString(row []byte, bc *boundColumn, out *schema.ColumnChunk, _ map[string]int32, _ schema.ScanOptions) {
	end := bc.offset + bc.width
	if end > len(row) {
		out.AppendNull()
		return
	}
	s, _ := bc.textDec.Decode(row[bc.offset:end])
	s = strings.TrimRight(s, " ")
	out.AppendStr(s)
}

func decodeSASTemporal(row []byte, bc *boundColumn, out *schema.ColumnChunk, _ map[string]int32, opts schema.ScanOptions) {
	if bc.offset+8 > len(row) {
		out.AppendNull()
		return
	}
	bits := binary.LittleEndian.Uint64(row[bc.offset : bc.offset+8])
	if bc.desc.Encoding.ByteOrder == schema.BigEndian {
		bits = binary.BigEndian.Uint64(row[bc.offset : bc.offset+8])
	}
	if _, ok := taggedMissing(bits); ok {
		out.AppendNull()
		return
	}
	v := math.Float64frombits(bits)
	switch bc.desc.Type {
	case schema.Date:
		out.AppendTime(int64(v) - sasEpochDays)
	case schema.Datetime:
		out.AppendTime(int64(v*1e6) - sasEpochSeconds*1_000_000) // microseconds since Unix epoch.
	case schema.Time:
		out.AppendTime(int64(v * 1e6)) // seconds since midnight, microsecond resolution.
	}
}

func decodeSASCategorical(row []byte, bc *boundColumn, out *schema.ColumnChunk, dictIndex map[string]int32, opts schema.ScanOptions) {
	if bc.offset+8 > len(row) {
		out.AppendCategory("(null)", dictIndex)
		return
	}
	bits := binary.LittleEndian.Uint64(row[bc.offset : bc.offset+8])
	v := math.Float64frombits(bits)
	if math.IsNaN(v) {
		out.AppendCategory("(null)", dictIndex)
		return
	}
	label := "(null)"
	if bc.desc.ValueLabels != nil {
		if l, ok := bc.desc.ValueLabels.NumericLabels[v]; ok {
			label = l
		}
	}
	out.AppendCategory(label, dictIndex)
}

// decodeRow converts one plaintext row buffer into the per-column builders,
// dispatching each column to its bound decode function.
func decodeRow(row []byte, bound []*boundColumn, builders []*schema.ColumnChunk, dictIndexes []map[string]int32, opts schema.ScanOptions) {
	for i, bc := range bound {
		bc.decode(row, bc, builders[i], dictIndexes[i], opts)
	}
}
