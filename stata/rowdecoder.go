// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stata

import (
	"encoding/binary"
	"math"
	"strings"

	"github.com/solidcoredata/statread/schema"
)

// stataEpochDays is the day count between Stata's 1960-01-01 epoch and the
// engine's canonical Unix 1970-01-01 epoch.
const stataEpochDays = 3653
const stataEpochMillis = int64(stataEpochDays) * 86400 * 1000

// Missing-sentinel floors per integer type: any stored value at or above
// the floor is one of the 27 tagged missings ('.', '.a'..'.z').
const (
	byteMissingFloor = 101
	intMissingFloor  = 32741
	longMissingFloor = 2147483621

	floatMissingBase  uint32 = 0x7F800001
	floatMissingStep  uint32 = 0x00010000
	doubleMissingBase uint64 = 0x7FF0000000000001
	doubleMissingStep uint64 = 0x0001000000000000
)

// boundColumn is bound once per column at scan-open time, matching the
// sas package's dispatch-table approach.
type boundColumn struct {
	desc   schema.ColumnDescriptor
	offset int
	width  int
	vtype  uint16
	decode func(row []byte, bc *boundColumn, out *schema.ColumnChunk, dictIndex map[string]int32, r *Reader)
}

func bindColumns(meta *Metadata, opts schema.ScanOptions) []*boundColumn {
	out := make([]*boundColumn, len(meta.Schema.Columns))
	offset := 0
	for i, col := range meta.Schema.Columns {
		bc := &boundColumn{desc: col, offset: offset, width: col.Encoding.StorageWidth, vtype: meta.VarTypes[i]}
		offset += bc.width
		switch {
		case bc.vtype == typeStrL:
			bc.decode = decodeStrL
		case col.Type == schema.Utf8:
			bc.decode = decodeFixedString
		case col.Type == schema.Date, col.Type == schema.Datetime:
			bc.decode = decodeTemporal
		case opts.ValueLabelsAsStrings && col.ValueLabels != nil:
			bc.desc.Type = schema.Categorical
			meta.Schema.Columns[i].Type = schema.Categorical
			bc.decode = decodeCategorical
		case bc.vtype == typeFloat || bc.vtype == typeDouble:
			bc.decode = decodeFloat
		default:
			bc.decode = decodeInt
		}
		out[i] = bc
	}
	return out
}

func decodeInt(row []byte, bc *boundColumn, out *schema.ColumnChunk, _ map[string]int32, r *Reader) {
	end := bc.offset + bc.width
	if end > len(row) {
		out.AppendNull()
		return
	}
	order := binaryOrder(bc.desc.Encoding.ByteOrder)
	var v int64
	var floor int64
	switch bc.width {
	case 1:
		v = int64(int8(row[bc.offset]))
		floor = byteMissingFloor
	case 2:
		v = int64(int16(order.Uint16(row[bc.offset:end])))
		floor = intMissingFloor
	case 4:
		v = int64(int32(order.Uint32(row[bc.offset:end])))
		floor = longMissingFloor
	}
	if v >= floor {
		out.AppendNull()
		return
	}
	out.AppendInt64(v)
}

func decodeFloat(row []byte, bc *boundColumn, out *schema.ColumnChunk, _ map[string]int32, r *Reader) {
	end := bc.offset + bc.width
	if end > len(row) {
		out.AppendNull()
		return
	}
	order := binaryOrder(bc.desc.Encoding.ByteOrder)
	if bc.width == 4 {
		bits := order.Uint32(row[bc.offset:end])
		if _, ok := floatTag(bits); ok {
			out.AppendNull()
			return
		}
		out.AppendFloat64(float64(math.Float32frombits(bits)))
		return
	}
	bits := order.Uint64(row[bc.offset:end])
	if _, ok := doubleTag(bits); ok {
		out.AppendNull()
		return
	}
	out.AppendFloat64(math.Float64frombits(bits))
}

func floatTag(bits uint32) (byte, bool) {
	if bits < floatMissingBase {
		return 0, false
	}
	diff := bits - floatMissingBase
	if diff%floatMissingStep != 0 {
		return 0, false
	}
	tag := diff / floatMissingStep
	if tag > 26 {
		return 0, false
	}
	return byte(tag), true
}

func doubleTag(bits uint64) (byte, bool) {
	if bits < doubleMissingBase {
		return 0, false
	}
	diff := bits - doubleMissingBase
	if diff%doubleMissingStep != 0 {
		return 0, false
	}
	tag := diff / doubleMissingStep
	if tag > 26 {
		return 0, false
	}
	return byte(tag), true
}

// decodeCategorical resolves a labeled numeric cell (byte/int/long/float/
// double storage, any of which Stata's value-label tables key by the
// decoded float64) into a Categorical dictionary index, mirroring
// sas.decodeSASCategorical.
func decodeCategorical(row []byte, bc *boundColumn, out *schema.ColumnChunk, dictIndex map[string]int32, r *Reader) {
	end := bc.offset + bc.width
	if end > len(row) {
		out.AppendCategory("(null)", dictIndex)
		return
	}
	order := binaryOrder(bc.desc.Encoding.ByteOrder)
	var v float64
	switch {
	case bc.vtype == typeFloat:
		bits := order.Uint32(row[bc.offset:end])
		if _, ok := floatTag(bits); ok {
			out.AppendCategory("(null)", dictIndex)
			return
		}
		v = float64(math.Float32frombits(bits))
	case bc.vtype == typeDouble:
		bits := order.Uint64(row[bc.offset:end])
		if _, ok := doubleTag(bits); ok {
			out.AppendCategory("(null)", dictIndex)
			return
		}
		v = math.Float64frombits(bits)
	default:
		var iv int64
		var floor int64
		switch bc.width {
		case 1:
			iv, floor = int64(int8(row[bc.offset])), byteMissingFloor
		case 2:
			iv, floor = int64(int16(order.Uint16(row[bc.offset:end]))), intMissingFloor
		case 4:
			iv, floor = int64(int32(order.Uint32(row[bc.offset:end]))), longMissingFloor
		}
		if iv >= floor {
			out.AppendCategory("(null)", dictIndex)
			return
		}
		v = float64(iv)
	}
	label := "(null)"
	if bc.desc.ValueLabels != nil {
		if l, ok := bc.desc.ValueLabels.NumericLabels[v]; ok {
			label = l
		}
	}
	out.AppendCategory(label, dictIndex)
}

func decodeFixedString(row []byte, bc *boundColumn, out *schema.ColumnChunk, _ map[string]int32, r *Reader) {
	end := bc.offset + bc.width
	if end > len(row) {
		out.AppendNull()
		return
	}
	s := trimNul(row[bc.offset:end])
	out.AppendStr(s)
}

func decodeTemporal(row []byte, bc *boundColumn, out *schema.ColumnChunk, _ map[string]int32, r *Reader) {
	end := bc.offset + bc.width
	if end > len(row) {
		out.AppendNull()
		return
	}
	order := binaryOrder(bc.desc.Encoding.ByteOrder)
	var v int64
	var floor int64
	switch bc.width {
	case 1:
		v = int64(int8(row[bc.offset]))
		floor = byteMissingFloor
	case 2:
		v = int64(int16(order.Uint16(row[bc.offset:end])))
		floor = intMissingFloor
	case 4:
		v = int64(int32(order.Uint32(row[bc.offset:end])))
		floor = longMissingFloor
	case 8:
		bits := order.Uint64(row[bc.offset:end])
		if _, ok := doubleTag(bits); ok {
			out.AppendNull()
			return
		}
		v = int64(math.Float64frombits(bits))
		floor = longMissingFloor + 1 // unreachable; doubles handled above.
	}
	if v >= floor {
		out.AppendNull()
		return
	}
	switch bc.desc.Type {
	case schema.Date:
		out.AppendTime(v - stataEpochDays)
	case schema.Datetime:
		out.AppendTime(v - stataEpochMillis)
	default:
		out.AppendTime(v)
	}
}

// decodeStrL resolves the (v, o) pair embedded in an 8-byte StrL cell
// through the file's StrL offset table, reading the payload directly from
// the backing buffer, lazily at decode time rather than up front.
func decodeStrL(row []byte, bc *boundColumn, out *schema.ColumnChunk, _ map[string]int32, r *Reader) {
	end := bc.offset + 8
	if end > len(row) {
		out.AppendNull()
		return
	}
	v := binary.LittleEndian.Uint16(row[bc.offset : bc.offset+2])
	o := uint64(0)
	for i := 0; i < 6; i++ {
		o |= uint64(row[bc.offset+2+i]) << (8 * uint(i))
	}
	if v == 0 && o == 0 {
		out.AppendNull()
		return
	}
	ref, ok := r.meta.Layout.StataStrLOffsets[schema.StataStrLKey{Variable: int(v), Offset: o}]
	if !ok {
		out.AppendNull()
		return
	}
	start := ref.PayloadOffset
	payloadEnd := start + int64(ref.Length)
	if start < 0 || payloadEnd > int64(len(r.raw)) {
		out.AppendNull()
		return
	}
	out.AppendStr(strings.TrimRight(string(r.raw[start:payloadEnd]), "\x00"))
}

func decodeRow(row []byte, bound []*boundColumn, builders []*schema.ColumnChunk, dictIndexes []map[string]int32, r *Reader) {
	for i, bc := range bound {
		bc.decode(row, bc, builders[i], dictIndexes[i], r)
	}
}
