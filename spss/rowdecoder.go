// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package spss

import (
	"encoding/binary"
	"math"
	"strings"

	"github.com/solidcoredata/statread/schema"
)

// spssEpochDays is the day count between SPSS's 1582-10-14 epoch and the
// engine's canonical Unix 1970-01-01 epoch.
const spssEpochDays = 141428
const spssEpochSeconds = int64(spssEpochDays) * 86400

// boundColumn is bound once per column at scan-open time, mirroring
// sas.boundColumn and stata.boundColumn's dispatch-table shape.
type boundColumn struct {
	desc      schema.ColumnDescriptor
	startSlot int
	slots     int
	sysmis    float64
	decode    func(row []byte, bc *boundColumn, out *schema.ColumnChunk, dictIndex map[string]int32, opts schema.ScanOptions)
}

func bindColumns(meta *Metadata, opts schema.ScanOptions) []*boundColumn {
	out := make([]*boundColumn, len(meta.Schema.Columns))
	for i, col := range meta.Schema.Columns {
		r := meta.Layout.SPSSSlotRanges[i]
		bc := &boundColumn{desc: col, startSlot: r[0], slots: r[1] - r[0] + 1, sysmis: meta.Layout.SPSSSysmis}
		switch {
		case col.Type == schema.Utf8:
			bc.decode = decodeString
		case col.Type == schema.Date, col.Type == schema.Datetime, col.Type == schema.Time:
			bc.decode = decodeTemporal
		case opts.ValueLabelsAsStrings && col.ValueLabels != nil:
			bc.desc.Type = schema.Categorical
			meta.Schema.Columns[i].Type = schema.Categorical
			bc.decode = decodeCategorical
		default:
			bc.decode = decodeNumeric
		}
		out[i] = bc
	}
	return out
}

func slotBytes(row []byte, slot int) []byte {
	start := slot * 8
	end := start + 8
	if end > len(row) {
		return nil
	}
	return row[start:end]
}

func isUserMissing(v float64, spec schema.MissingSpec) bool {
	if spec.HasRange && v >= spec.RangeLow && v <= spec.RangeHigh {
		return true
	}
	for _, d := range spec.DiscreteValues {
		if v == d {
			return true
		}
	}
	return false
}

func decodeNumeric(row []byte, bc *boundColumn, out *schema.ColumnChunk, _ map[string]int32, opts schema.ScanOptions) {
	b := slotBytes(row, bc.startSlot)
	if b == nil {
		out.AppendNull()
		return
	}
	v := math.Float64frombits(binary.LittleEndian.Uint64(b))
	if v == bc.sysmis {
		out.AppendNull()
		return
	}
	if opts.UserMissingAsNull && isUserMissing(v, bc.desc.Missing) {
		out.AppendNull()
		return
	}
	out.AppendFloat64(v)
}

// decodeCategorical resolves a labeled numeric cell into a Categorical
// dictionary index, mirroring sas.decodeSASCategorical.
func decodeCategorical(row []byte, bc *boundColumn, out *schema.ColumnChunk, dictIndex map[string]int32, opts schema.ScanOptions) {
	b := slotBytes(row, bc.startSlot)
	if b == nil {
		out.AppendCategory("(null)", dictIndex)
		return
	}
	v := math.Float64frombits(binary.LittleEndian.Uint64(b))
	if v == bc.sysmis || (opts.UserMissingAsNull && isUserMissing(v, bc.desc.Missing)) {
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

func decodeTemporal(row []byte, bc *boundColumn, out *schema.ColumnChunk, _ map[string]int32, opts schema.ScanOptions) {
	b := slotBytes(row, bc.startSlot)
	if b == nil {
		out.AppendNull()
		return
	}
	v := math.Float64frombits(binary.LittleEndian.Uint64(b))
	if v == bc.sysmis {
		out.AppendNull()
		return
	}
	switch bc.desc.Type {
	case schema.Date:
		out.AppendTime(int64(v/86400) - spssEpochDays)
	case schema.Datetime:
		out.AppendTime(int64(v) - spssEpochSeconds)
	default: // Time: seconds since midnight, passed through unchanged.
		out.AppendTime(int64(v))
	}
}

func decodeString(row []byte, bc *boundColumn, out *schema.ColumnChunk, _ map[string]int32, opts schema.ScanOptions) {
	start := bc.startSlot * 8
	end := start + bc.slots*8
	if end > len(row) || start < 0 {
		out.AppendNull()
		return
	}
	s := strings.TrimRight(string(row[start:end]), " ")
	if opts.MissingStringAsNull && s == "" {
		out.AppendNull()
		return
	}
	if opts.UserMissingAsNull {
		for _, mv := range bc.desc.Missing.StringValues {
			if s == mv {
				out.AppendNull()
				return
			}
		}
	}
	out.AppendStr(s)
}

func decodeRow(row []byte, bound []*boundColumn, builders []*schema.ColumnChunk, dictIndexes []map[string]int32, opts schema.ScanOptions) {
	for i, bc := range bound {
		bc.decode(row, bc, builders[i], dictIndexes[i], opts)
	}
}
