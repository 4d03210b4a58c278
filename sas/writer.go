// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sas

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"os"

	"github.com/solidcoredata/statread/schema"
)

// SasCompanionWriter emits a minimal, structurally valid 64-bit
// uncompressed SAS7BDAT file: one header, one meta page holding every
// dictionary subheader, and one data page holding all row bytes, enough
// for this package's own ParseMetadata/Reader to round-trip it. The
// dictionary and the rows cannot share a page: ParseMetadata only resolves
// a row-size
// subheader's rowLength from pages already scanned, and a data/mix page's
// own row offset can't be computed until rowLength is known. It never
// writes RLE/RDC-compressed pages or value-label subheaders; Categorical
// columns are flattened to their label strings on write, same as
// stata.StataWriter.
type SasCompanionWriter struct {
	path string
	err  error
}

func NewWriter(path string) *SasCompanionWriter { return &SasCompanionWriter{path: path} }

func (w *SasCompanionWriter) WriteChunks(sc *schema.Schema, chunks []*schema.Chunk) error {
	if w.err != nil {
		return w.err
	}
	f, err := os.Create(w.path)
	if err != nil {
		w.err = err
		return err
	}
	defer f.Close()
	if err := writeSas7bdat(f, sc, chunks); err != nil {
		w.err = err
		return err
	}
	return nil
}

func (w *SasCompanionWriter) Error() error { return w.err }

const (
	sasWriterHeaderLength = 256
	sasWriterEncodingCode = 20 // UTF-8, per textdecode.SASCodePage.
)

func writeSas7bdat(w io.Writer, sc *schema.Schema, chunks []*schema.Chunk) error {
	order := binary.LittleEndian
	cols := sc.Columns

	widths := make([]int, len(cols))
	colOffsets := make([]int64, len(cols))
	rowLength := int64(0)
	for i, col := range cols {
		width := col.Encoding.StorageWidth
		if col.Type == schema.Utf8 || col.Type == schema.Categorical {
			width = maxLabelWidth(chunks, i)
			if width == 0 {
				width = 1
			}
		} else {
			width = 8
		}
		widths[i] = width
		colOffsets[i] = rowLength
		rowLength += int64(width)
	}

	rowCount := int64(0)
	for _, c := range chunks {
		rowCount += int64(c.RowCount)
	}

	textPool, nameRefs, formatRefs, labelRefs := buildTextPool(cols)

	var rowSize bytes.Buffer
	order32 := order
	putU32(&rowSize, order32, sigRowSize)
	rowSize.Write(make([]byte, 36))
	putU64(&rowSize, order, uint64(rowLength))
	putU64(&rowSize, order, uint64(rowCount))

	var colSize bytes.Buffer
	putU32(&colSize, order32, sigColumnSize)
	putU64(&colSize, order, uint64(len(cols)))

	var colText bytes.Buffer
	putU32(&colText, order32, sigColumnText)
	colText.Write(make([]byte, 12))
	colText.Write(textPool)

	var colName bytes.Buffer
	putU32(&colName, order32, sigColumnName)
	colName.Write(make([]byte, 12))
	for _, ref := range nameRefs {
		putI16(&colName, order, int16(ref.subheaderIndex))
		putU16(&colName, order, uint16(ref.offset))
		putU16(&colName, order, uint16(ref.length))
		colName.Write(make([]byte, 2))
	}

	var colAttr bytes.Buffer
	putU32(&colAttr, order32, sigColumnAttribute)
	colAttr.Write(make([]byte, 12))
	for i, col := range cols {
		putU64(&colAttr, order, uint64(colOffsets[i]))
		putU32(&colAttr, order, uint32(widths[i]))
		colAttr.Write(make([]byte, 2))
		if col.Type == schema.Utf8 || col.Type == schema.Categorical {
			colAttr.WriteByte(1)
		} else {
			colAttr.WriteByte(0)
		}
		colAttr.Write(make([]byte, 1))
	}

	bodies := [][]byte{rowSize.Bytes(), colSize.Bytes(), colText.Bytes(), colName.Bytes(), colAttr.Bytes()}
	for i := range cols {
		// Field layout after the 16-byte sig+pad prefix matches
		// parseColumnFormatLabelSubheader's exact byte offsets: a 2-byte
		// pad, formatSub, labelSub, another 2-byte pad, then the four
		// offset/length u16s in format-then-label order.
		var fl bytes.Buffer
		putU32(&fl, order32, sigColumnFormatLabel)
		fl.Write(make([]byte, 12))
		fl.Write(make([]byte, 2))
		putI16(&fl, order, 0) // formatSub: always subheader 0, the single text pool.
		putI16(&fl, order, 0) // labelSub
		fl.Write(make([]byte, 2))
		putU16(&fl, order, uint16(formatRefs[i].offset))
		putU16(&fl, order, uint16(formatRefs[i].length))
		putU16(&fl, order, uint16(labelRefs[i].offset))
		putU16(&fl, order, uint16(labelRefs[i].length))
		bodies = append(bodies, fl.Bytes())
	}

	subCount := len(bodies)
	const ptrLen = 24
	const phOff = 32
	ptrTableOff := phOff + 8
	page0Offset := int64(sasWriterHeaderLength)

	// ParseMetadata resolves rowLength from a row-size subheader before it
	// ever calls mixPageDataOffset for a data/mix page (metadata.go's
	// per-page loop order), and mixPageDataOffset refuses to run with
	// rowLength still zero. A single page carrying both the dictionary and
	// the rows can never satisfy that ordering, so the dictionary goes on
	// its own meta page (type never reaches the mix/data branch, so no
	// dataOffset is computed) and every row lives on a second, pure data
	// page that follows it.
	bodyOffsets := make([]int64, subCount)
	cursor := page0Offset + int64(ptrTableOff+subCount*ptrLen)
	for i, b := range bodies {
		bodyOffsets[i] = cursor
		cursor += int64(len(b))
	}
	page0Size := cursor - page0Offset

	// Page 1's data offset is the 8-byte-aligned end of its (empty, since
	// subCount=0) pointer table, same formula mixPageDataOffset applies on
	// read. Keeping pageSize a multiple of 8 keeps page1's own start
	// 8-aligned too, so this reduces to a fixed relative offset.
	page1DataRel := int64(ptrTableOff)
	page1Size := page1DataRel + rowLength*rowCount

	pageSize := page0Size
	if page1Size > pageSize {
		pageSize = page1Size
	}
	if rem := pageSize % 8; rem != 0 {
		pageSize += 8 - rem
	}

	var page0 bytes.Buffer
	page0.Write(make([]byte, phOff))
	putU16(&page0, order, uint16(pageTypeMeta))
	putU16(&page0, order, uint16(subCount))
	putU16(&page0, order, uint16(subCount))
	if pad := ptrTableOff - page0.Len(); pad > 0 {
		page0.Write(make([]byte, pad))
	}
	for i, b := range bodies {
		putU64(&page0, order, uint64(bodyOffsets[i]))
		putU64(&page0, order, uint64(len(b)))
		page0.WriteByte(0) // compression: none.
		page0.WriteByte(0) // sigType: unused by this reader.
		page0.Write(make([]byte, 6))
	}
	for _, b := range bodies {
		page0.Write(b)
	}
	if int64(page0.Len()) < pageSize {
		page0.Write(make([]byte, pageSize-int64(page0.Len())))
	}

	var page1 bytes.Buffer
	page1.Write(make([]byte, phOff))
	putU16(&page1, order, uint16(pageTypeData))
	// blockCount is advancePage's rowsOnPage directly for a pure data page
	// (page.go: rowsOnPage = BlockCount, no subheader deduction).
	putU16(&page1, order, uint16(rowCount))
	putU16(&page1, order, 0) // subCount: the data page carries no subheaders.
	if pad := int(page1DataRel) - page1.Len(); pad > 0 {
		page1.Write(make([]byte, pad))
	}
	for _, chunk := range chunks {
		for row := 0; row < chunk.RowCount; row++ {
			for i, col := range cols {
				writeSasCell(&page1, order, col, chunk.Columns[i], row, widths[i])
			}
		}
	}
	if int64(page1.Len()) < pageSize {
		page1.Write(make([]byte, pageSize-int64(page1.Len())))
	}

	var header bytes.Buffer
	writeFileHeader(&header, order, uint32(pageSize))
	headerBytes := header.Bytes()
	if len(headerBytes) > sasWriterHeaderLength {
		return wrap(schema.SchemaInconsistency, "SAS writer fixed header overflowed its reserved size")
	}
	headerBytes = append(headerBytes, make([]byte, sasWriterHeaderLength-len(headerBytes))...)

	if _, err := w.Write(headerBytes); err != nil {
		return err
	}
	if _, err := w.Write(page0.Bytes()); err != nil {
		return err
	}
	_, err := w.Write(page1.Bytes())
	return err
}

// writeFileHeader emits the 236-byte prefix parseHeader reads (the caller
// pads it out to sasWriterHeaderLength):
// magic, alignment/endian/platform/encoding markers, then the 64-bit-layout
// header-length/page-size/page-count/compression/creator fields at their
// header.go-documented offsets.
func writeFileHeader(buf *bytes.Buffer, order binary.ByteOrder, pageSize uint32) {
	buf.Write(magic)                // [0:32)
	buf.WriteByte(0x33)             // [32] align1: 64-bit layout marker.
	buf.Write(make([]byte, 2))      // [33:35)
	buf.WriteByte(0x33)             // [35] align2: is64Bit marker.
	buf.Write(make([]byte, 1))      // [36]
	buf.WriteByte(0x01)             // [37] byteOrder: little-endian.
	buf.Write(make([]byte, 1))      // [38]
	buf.WriteByte(0)                // [39] platform: unspecified.
	buf.Write(make([]byte, 30))     // [40:70)
	buf.WriteByte(sasWriterEncodingCode) // [70]
	buf.Write(make([]byte, 101))    // [71:172) pad out to base = 164+4+4 = 172.

	base := buf.Len()
	if base != 172 {
		panic("sas: writer header layout drifted from header.go's offset assumptions")
	}
	buf.Write(make([]byte, 4))          // [172:176) unnamed field parseHeader skips before headerLength.
	putU32(buf, order, sasWriterHeaderLength) // [176:180) headerLength.
	putU32(buf, order, pageSize)         // [180:184) pageSize.
	putU64(buf, order, 2)                // [184:192) pageCount: one meta page, one data page.
	buf.Write(make([]byte, 12))          // [192:204) pad to compOff = base+32.
	buf.Write([]byte("        "))        // [204:212) compression tag: 8 spaces, CompressionNone.
	buf.Write(make([]byte, 8))           // [212:220) pad to creatorOff = base+48.
	buf.Write(make([]byte, 16))          // [220:236) creator proc name: left blank.
}

// writerTextRef mirrors metadata.go's textRef for writer-side bookkeeping.
type writerTextRef struct {
	subheaderIndex int
	offset         int
	length         int
}

// buildTextPool concatenates every column's name, format, and label into
// one string pool (subheader index 0, matching how ParseMetadata indexes
// textBlocks in column-text-subheader occurrence order, and this writer
// emits exactly one column-text subheader).
func buildTextPool(cols []schema.ColumnDescriptor) (pool []byte, names, formats, labels []writerTextRef) {
	names = make([]writerTextRef, len(cols))
	formats = make([]writerTextRef, len(cols))
	labels = make([]writerTextRef, len(cols))
	var buf bytes.Buffer
	add := func(s string) writerTextRef {
		ref := writerTextRef{subheaderIndex: 0, offset: buf.Len(), length: len(s)}
		buf.WriteString(s)
		return ref
	}
	for i, col := range cols {
		names[i] = add(col.Name)
		formats[i] = add(col.Format)
		labels[i] = add(col.Label)
	}
	return buf.Bytes(), names, formats, labels
}

func maxLabelWidth(chunks []*schema.Chunk, col int) int {
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

func writeSasCell(buf *bytes.Buffer, order binary.ByteOrder, col schema.ColumnDescriptor, cc *schema.ColumnChunk, row, width int) {
	valid := cc.Valid.IsValid(row)
	if col.Type == schema.Utf8 || col.Type == schema.Categorical {
		s := sasCellString(cc, row)
		padded := make([]byte, width)
		copy(padded, s)
		for i := len(s); i < width; i++ {
			padded[i] = ' '
		}
		buf.Write(padded)
		return
	}
	var bits uint64
	switch {
	case !valid:
		bits = math.Float64bits(math.NaN())
	case col.Type == schema.Date:
		bits = math.Float64bits(float64(cc.Time[row] + sasEpochDays))
	case col.Type == schema.Datetime:
		bits = math.Float64bits(float64(cc.Time[row])/1e6 + float64(sasEpochSeconds))
	case col.Type == schema.Time:
		bits = math.Float64bits(float64(cc.Time[row]) / 1e6)
	default:
		bits = math.Float64bits(cc.Float64[row])
	}
	var b [8]byte
	order.PutUint64(b[:], bits)
	buf.Write(b[:])
}

func sasCellString(cc *schema.ColumnChunk, row int) string {
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

func putU16(buf *bytes.Buffer, order binary.ByteOrder, v uint16) {
	var b [2]byte
	order.PutUint16(b[:], v)
	buf.Write(b[:])
}

func putI16(buf *bytes.Buffer, order binary.ByteOrder, v int16) {
	putU16(buf, order, uint16(v))
}

func putU32(buf *bytes.Buffer, order binary.ByteOrder, v uint32) {
	var b [4]byte
	order.PutUint32(b[:], v)
	buf.Write(b[:])
}

func putU64(buf *bytes.Buffer, order binary.ByteOrder, v uint64) {
	var b [8]byte
	order.PutUint64(b[:], v)
	buf.Write(b[:])
}
