// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stata

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/solidcoredata/statread/schema"
)

// StataWriter emits a minimal, structurally valid release 118/119 .dta
// file: enough of the tagged-section contract for statread's own reader to
// round-trip it. Byte order is always little-endian on
// write; value-label tables are not re-materialized (Categorical columns
// are flattened to their label strings, noted in DESIGN.md).
type StataWriter struct {
	path string
	err  error
}

func NewWriter(path string) *StataWriter { return &StataWriter{path: path} }

// WriteChunks concatenates chunks (which must share sc's column order) and
// writes them as one .dta file.
func (w *StataWriter) WriteChunks(sc *schema.Schema, chunks []*schema.Chunk) error {
	if w.err != nil {
		return w.err
	}
	f, err := os.Create(w.path)
	if err != nil {
		w.err = err
		return err
	}
	defer f.Close()
	if err := writeDta(f, sc, chunks); err != nil {
		w.err = err
		return err
	}
	return nil
}

func (w *StataWriter) Error() error { return w.err }

// chooseRelease picks 118 for any dataset within release 118's variable-count
// ceiling (32767 variables) and 119 only when K exceeds it. 117 is never
// produced by the writer; it remains a read-only compatibility target.
func chooseRelease(k int) int {
	if k > 32767 {
		return 119
	}
	return 118
}

func writeDta(w io.Writer, sc *schema.Schema, chunks []*schema.Chunk) error {
	k := len(sc.Columns)
	n := 0
	for _, c := range chunks {
		n += c.RowCount
	}
	release := chooseRelease(k)
	widths := widthsFor(release)
	order := binary.LittleEndian

	types := make([]uint16, k)
	storageWidths := make([]int, k)
	strlColumns := make(map[int]bool)
	for i, col := range sc.Columns {
		switch col.Type {
		case schema.Int8:
			types[i], storageWidths[i] = typeByte, 1
		case schema.Int16:
			types[i], storageWidths[i] = typeInt, 2
		case schema.Int32, schema.Date:
			types[i], storageWidths[i] = typeLong, 4
		case schema.Int64, schema.Datetime:
			types[i], storageWidths[i] = typeDouble, 8
		case schema.Float32:
			types[i], storageWidths[i] = typeFloat, 4
		case schema.Float64:
			types[i], storageWidths[i] = typeDouble, 8
		case schema.Utf8, schema.Categorical:
			maxWidth := maxStringWidth(chunks, i)
			if maxWidth > 2045 {
				types[i], storageWidths[i] = typeStrL, 8
				strlColumns[i] = true
			} else {
				if maxWidth == 0 {
					maxWidth = 1
				}
				types[i], storageWidths[i] = uint16(maxWidth), maxWidth
			}
		default:
			types[i], storageWidths[i] = typeDouble, 8
		}
	}
	var buf bytes.Buffer
	buf.WriteString("<stata_dta>")

	var header bytes.Buffer
	writeTag(&header, "release", []byte(fmt.Sprintf("%d", release)))
	writeTag(&header, "byteorder", []byte("LSF"))
	kBuf := make([]byte, widths.kWidth)
	putUintWidth(order, kBuf, uint64(k))
	writeTag(&header, "K", kBuf)
	nBuf := make([]byte, widths.nWidth)
	putUintWidth(order, nBuf, uint64(n))
	writeTag(&header, "N", nBuf)
	writeTag(&header, "label", []byte{0})
	writeTag(&header, "timestamp", []byte{0})
	writeTag(&buf, "header", header.Bytes())

	writeTag(&buf, "map", make([]byte, 8))

	var vt bytes.Buffer
	for i := 0; i < k; i++ {
		var b [2]byte
		order.PutUint16(b[:], types[i])
		vt.Write(b[:])
	}
	writeTag(&buf, "variable_types", vt.Bytes())

	var names bytes.Buffer
	for _, col := range sc.Columns {
		names.Write(padTrunc([]byte(col.Name), widths.nameWidth))
	}
	writeTag(&buf, "varnames", names.Bytes())

	var sortlist bytes.Buffer
	for i := 0; i < k+1; i++ {
		var b [2]byte
		sortlist.Write(b[:])
		_ = i
	}
	writeTag(&buf, "sortlist", sortlist.Bytes())

	var formats bytes.Buffer
	for _, col := range sc.Columns {
		f := col.Format
		if f == "" {
			switch col.Type {
			case schema.Date:
				f = "%td"
			case schema.Datetime:
				f = "%tc"
			default:
				f = "%9.0g"
			}
		}
		formats.Write(padTrunc([]byte(f), widths.fmtWidth))
	}
	writeTag(&buf, "formats", formats.Bytes())

	writeTag(&buf, "value_label_names", bytes.Repeat([]byte{0}, widths.nameWidth*k))

	var labels bytes.Buffer
	for _, col := range sc.Columns {
		labels.Write(padTrunc([]byte(col.Label), widths.labelWidth))
	}
	writeTag(&buf, "variable_labels", labels.Bytes())

	writeTag(&buf, "characteristics", nil)

	var data bytes.Buffer
	var strls bytes.Buffer
	strlSeq := make([]int, k)
	for _, chunk := range chunks {
		for row := 0; row < chunk.RowCount; row++ {
			for i, col := range sc.Columns {
				writeCell(&data, &strls, order, col, chunk.Columns[i], row, i, storageWidths[i], types[i], strlSeq)
			}
		}
	}
	writeTag(&buf, "data", data.Bytes())
	writeTag(&buf, "strls", strls.Bytes())
	writeTag(&buf, "value_labels", nil)

	buf.WriteString("</stata_dta>")

	_, err := w.Write(buf.Bytes())
	return err
}

func writeTag(buf *bytes.Buffer, tag string, body []byte) {
	buf.WriteString("<" + tag + ">")
	buf.Write(body)
	buf.WriteString("</" + tag + ">")
}

func putUintWidth(order binary.ByteOrder, b []byte, v uint64) {
	switch len(b) {
	case 2:
		order.PutUint16(b, uint16(v))
	case 4:
		order.PutUint32(b, uint32(v))
	case 8:
		order.PutUint64(b, v)
	}
}

func padTrunc(b []byte, width int) []byte {
	out := make([]byte, width)
	n := copy(out, b)
	_ = n
	return out
}

func maxStringWidth(chunks []*schema.Chunk, col int) int {
	maxW := 0
	for _, c := range chunks {
		if col >= len(c.Columns) {
			continue
		}
		cc := c.Columns[col]
		for _, s := range cc.Str {
			if len(s) > maxW {
				maxW = len(s)
			}
		}
		for _, idx := range cc.Cat {
			if int(idx) < len(cc.Dict) && len(cc.Dict[idx]) > maxW {
				maxW = len(cc.Dict[idx])
			}
		}
	}
	return maxW
}

func writeCell(data, strls *bytes.Buffer, order binary.ByteOrder, col schema.ColumnDescriptor, cc *schema.ColumnChunk, row, colIdx, width int, vtype uint16, strlSeq []int) {
	valid := cc.Valid.IsValid(row)
	switch {
	case vtype == typeStrL:
		s := cellString(cc, row)
		if !valid {
			data.Write(make([]byte, 8))
			return
		}
		strlSeq[colIdx]++
		v := uint16(colIdx + 1)
		o := uint64(strlSeq[colIdx])
		cell := make([]byte, 8)
		binary.LittleEndian.PutUint16(cell[0:2], v)
		for i := 0; i < 6; i++ {
			cell[2+i] = byte(o >> (8 * uint(i)))
		}
		data.Write(cell)

		strls.WriteString("GSO")
		var vb [4]byte
		order.PutUint32(vb[:], uint32(v))
		strls.Write(vb[:])
		var ob [8]byte
		order.PutUint64(ob[:], o)
		strls.Write(ob[:])
		strls.WriteByte(1)
		var lb [4]byte
		order.PutUint32(lb[:], uint32(len(s)))
		strls.Write(lb[:])
		strls.WriteString(s)
	case vtype >= 1 && vtype <= 2045:
		s := cellString(cc, row)
		data.Write(padTrunc([]byte(s), width))
	case vtype == typeFloat:
		var bits uint32
		if !valid {
			bits = floatMissingBase
		} else {
			bits = math.Float32bits(float32(cc.Float64[row]))
		}
		var b [4]byte
		order.PutUint32(b[:], bits)
		data.Write(b[:])
	case vtype == typeDouble:
		var bits uint64
		if !valid {
			bits = doubleMissingBase
		} else if col.Type == schema.Date || col.Type == schema.Datetime {
			bits = math.Float64bits(float64(temporalCellRaw(col, cc, row)))
		} else {
			bits = math.Float64bits(cc.Float64[row])
		}
		var b [8]byte
		order.PutUint64(b[:], bits)
		data.Write(b[:])
	default: // byte/int/long
		var v int64
		floor := int64(0)
		switch width {
		case 1:
			floor = byteMissingFloor
		case 2:
			floor = intMissingFloor
		case 4:
			floor = longMissingFloor
		}
		if !valid {
			v = floor
		} else if col.Type == schema.Date {
			v = temporalCellRaw(col, cc, row)
		} else {
			v = cc.Int64[row]
		}
		b := make([]byte, width)
		switch width {
		case 1:
			b[0] = byte(int8(v))
		case 2:
			order.PutUint16(b, uint16(int16(v)))
		case 4:
			order.PutUint32(b, uint32(int32(v)))
		}
		data.Write(b)
	}
}

func cellString(cc *schema.ColumnChunk, row int) string {
	if cc.Str != nil {
		return cc.Str[row]
	}
	if cc.Cat != nil {
		idx := cc.Cat[row]
		if int(idx) < len(cc.Dict) {
			return cc.Dict[idx]
		}
	}
	return ""
}

// temporalCellRaw converts a canonical (Unix-epoch) Time/Date value back to
// Stata's 1960-01-01-anchored on-disk unit.
func temporalCellRaw(col schema.ColumnDescriptor, cc *schema.ColumnChunk, row int) int64 {
	v := cc.Time[row]
	switch col.Type {
	case schema.Date:
		return v + stataEpochDays
	case schema.Datetime:
		return v + stataEpochMillis
	default:
		return v
	}
}
