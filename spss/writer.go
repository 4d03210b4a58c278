// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package spss

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"os"

	"github.com/solidcoredata/statread/schema"
)

// SpssWriter emits a minimal, uncompressed $FL2 system file: the fixed
// header, one variable record per 8-byte slot (with type -1 continuation
// records for strings wider than 8 bytes), a type-999 terminator, and plain
// fixed-stride case data. It never emits $FL3/ZSAV or bytecode compression;
// value-label tables are not re-emitted (noted in DESIGN.md).
type SpssWriter struct {
	path string
	err  error
}

func NewWriter(path string) *SpssWriter { return &SpssWriter{path: path} }

func (w *SpssWriter) WriteChunks(sc *schema.Schema, chunks []*schema.Chunk) error {
	if w.err != nil {
		return w.err
	}
	f, err := os.Create(w.path)
	if err != nil {
		w.err = err
		return err
	}
	defer f.Close()
	if err := writeSav(f, sc, chunks); err != nil {
		w.err = err
		return err
	}
	return nil
}

func (w *SpssWriter) Error() error { return w.err }

// slotWidth returns the number of 8-byte row slots a column occupies and
// whether it is a string column.
func slotWidth(col schema.ColumnDescriptor) (slots int, isString bool) {
	if col.Type != schema.Utf8 {
		return 1, false
	}
	w := col.MaxUtf8Width
	if w <= 0 {
		w = 1
	}
	return (w + 7) / 8, true
}

func writeSav(w io.Writer, sc *schema.Schema, chunks []*schema.Chunk) error {
	var buf bytes.Buffer
	order := binary.LittleEndian

	slots := make([]int, len(sc.Columns))
	isString := make([]bool, len(sc.Columns))
	totalSlots := 0
	for i, col := range sc.Columns {
		slots[i], isString[i] = slotWidth(col)
		totalSlots += slots[i]
	}

	buf.WriteString("$FL2")
	buf.Write(padTrunc64([]byte("statread export"), 60))
	putUint32(&buf, order, 2) // layout code: 2 == unreversed.
	putUint32(&buf, order, uint32(totalSlots))
	putUint32(&buf, order, 0) // compression: none.
	putUint32(&buf, order, 0) // weight index: none.

	n := 0
	for _, c := range chunks {
		n += c.RowCount
	}
	putUint32(&buf, order, uint32(n))
	putFloat64(&buf, order, 100) // compression bias, unused when uncompressed.
	buf.Write(padTrunc64([]byte("01 Jan 26"), 9))
	buf.Write(padTrunc64([]byte("00:00:00"), 8))
	buf.Write(padTrunc64(nil, 64)) // file label.
	buf.Write(make([]byte, 3))     // padding to the 176-byte fixed header.

	for i, col := range sc.Columns {
		writeVariableRecord(&buf, order, col, slots[i], isString[i])
	}

	const encoding = "WINDOWS-1252"
	putUint32(&buf, order, recExtension)
	putUint32(&buf, order, uint32(subtypeCharEncoding))
	putUint32(&buf, order, 1)
	putUint32(&buf, order, uint32(len(encoding)))
	buf.WriteString(encoding)

	putUint32(&buf, order, recDictEnd)
	putUint32(&buf, order, 0)

	for _, chunk := range chunks {
		for row := 0; row < chunk.RowCount; row++ {
			for i, col := range sc.Columns {
				writeSavCell(&buf, order, col, chunk.Columns[i], row, slots[i], isString[i])
			}
		}
	}

	_, err := w.Write(buf.Bytes())
	return err
}

func putUint32(buf *bytes.Buffer, order binary.ByteOrder, v uint32) {
	var b [4]byte
	order.PutUint32(b[:], v)
	buf.Write(b[:])
}

func putFloat64(buf *bytes.Buffer, order binary.ByteOrder, v float64) {
	var b [8]byte
	order.PutUint64(b[:], math.Float64bits(v))
	buf.Write(b[:])
}

func padTrunc64(b []byte, width int) []byte {
	out := bytes.Repeat([]byte{' '}, width)
	copy(out, b)
	return out
}

func writeVariableRecord(buf *bytes.Buffer, order binary.ByteOrder, col schema.ColumnDescriptor, slots int, isString bool) {
	name := variableSlotName(col.Name)

	putUint32(buf, order, recVariable)
	if isString {
		putUint32(buf, order, int32Width(col.MaxUtf8Width))
	} else {
		putUint32(buf, order, 0)
	}
	hasLabel := col.Label != ""
	if hasLabel {
		putUint32(buf, order, 1)
	} else {
		putUint32(buf, order, 0)
	}
	putUint32(buf, order, 0) // no missing values on write.
	putUint32(buf, order, formatWord(col))
	putUint32(buf, order, formatWord(col))
	buf.Write(padTrunc64([]byte(name), 8))

	if hasLabel {
		putUint32(buf, order, uint32(len(col.Label)))
		buf.Write(padTrunc4([]byte(col.Label)))
	}

	for i := 1; i < slots; i++ {
		putUint32(buf, order, recVariable)
		putUint32(buf, order, uint32(int32(-1)))
		putUint32(buf, order, 0)
		putUint32(buf, order, 0)
		putUint32(buf, order, 0)
		putUint32(buf, order, 0)
		buf.Write(make([]byte, 8))
	}
}

func int32Width(w int) uint32 {
	if w <= 0 {
		return 1
	}
	return uint32(w)
}

// variableSlotName truncates a column name to the 8-byte short name slot;
// longer names survive only via the subtype-13 long-name extension, which
// this minimal writer does not emit (round-trip fidelity note in
// DESIGN.md).
func variableSlotName(name string) string {
	if len(name) > 8 {
		return name[:8]
	}
	return name
}

func formatWord(col schema.ColumnDescriptor) uint32 {
	var t byte
	switch col.Type {
	case schema.Date:
		t = 20
	case schema.Time:
		t = 21
	case schema.Datetime:
		t = 22
	default:
		t = 5 // F (numeric) format.
	}
	return uint32(t)<<16 | uint32(8)<<8 | 2
}

func padTrunc4(b []byte) []byte {
	n := roundUp4(len(b))
	out := make([]byte, n)
	copy(out, b)
	return out
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

func writeSavCell(buf *bytes.Buffer, order binary.ByteOrder, col schema.ColumnDescriptor, cc *schema.ColumnChunk, row, slots int, isString bool) {
	valid := cc.Valid.IsValid(row)
	if isString {
		s := ""
		if valid {
			s = cellString(cc, row)
		}
		buf.Write(padTrunc64([]byte(s), slots*8))
		return
	}
	if !valid {
		putFloat64(buf, order, -1.0*math.MaxFloat64)
		return
	}
	var v float64
	switch col.Type {
	case schema.Date:
		v = float64(cc.Time[row]+spssEpochDays) * 86400
	case schema.Datetime:
		v = float64(cc.Time[row] + spssEpochSeconds)
	case schema.Time:
		v = float64(cc.Time[row])
	default:
		v = cc.Float64[row]
	}
	putFloat64(buf, order, v)
}
