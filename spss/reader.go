// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package spss

import (
	"github.com/solidcoredata/statread/compress"
	"github.com/solidcoredata/statread/schema"
)

// Reader is an opened SPSS system file, ready to decode case ranges into
// Chunks. Compression dispatch mirrors sas.Reader: None and Bytecode read
// directly from the backing buffer, ZSAV is inflated once at Open time into
// its own buffer.
type Reader struct {
	data   []byte // case-data region: raw[DataOffset:] for None/Bytecode, the inflated buffer for Zsav.
	meta   *Metadata
	bound  []*boundColumn
	opts   schema.ScanOptions
	decomp compress.Decompressor
}

func Open(raw []byte, opts schema.ScanOptions) (*Reader, error) {
	meta, err := ParseMetadata(raw)
	if err != nil {
		return nil, err
	}

	var data []byte
	var decomp compress.Decompressor
	switch meta.Layout.Compression {
	case schema.CompressionZsav:
		inflated, err := zsavBlockReader(raw[meta.Layout.DataOffset:])
		if err != nil {
			return nil, err
		}
		data = inflated
		decomp = compress.NewSPSSBytecode(meta.Layout.SPSSCompressionBias)
	case schema.CompressionSPSSBytecode:
		data = raw[meta.Layout.DataOffset:]
		decomp = compress.NewSPSSBytecode(meta.Layout.SPSSCompressionBias)
	default:
		data = raw[meta.Layout.DataOffset:]
		decomp = nil
	}

	return &Reader{data: data, meta: meta, bound: bindColumns(meta, opts), opts: opts, decomp: decomp}, nil
}

func (r *Reader) Schema() *schema.Schema        { return r.meta.Schema }
func (r *Reader) Layout() *schema.PhysicalLayout { return r.meta.Layout }
func (r *Reader) RowCount() int64               { return r.meta.Layout.RowCount }

// RowIterator walks cases sequentially. Compressed streams (Bytecode/Zsav)
// require sequential decode state, same as SAS RLE/RDC: thread count is
// capped at 1 for row-range-crossing compressed streams.
type RowIterator struct {
	r         *Reader
	pos       int64
	rowsEmitted int64
	rowBuf    []byte
	done      bool
}

func (r *Reader) NewRowIterator() *RowIterator {
	return &RowIterator{r: r}
}

// NewRowIteratorAt returns an iterator positioned at physical case start.
// Only safe for an uncompressed file: a compressed case stream (Bytecode or
// the inflated Zsav buffer) carries no reset points between cases, so
// random access would require replaying from case zero anyway.
func (r *Reader) NewRowIteratorAt(start int64) (*RowIterator, error) {
	if r.decomp != nil {
		return nil, schema.NewError(schema.Cancelled, "SPSS compressed layout does not support random row access")
	}
	if start < 0 || start > r.meta.Layout.RowCount {
		return nil, schema.NewError(schema.Cancelled, "row index out of range")
	}
	stride := int64(r.meta.Layout.RowStride)
	return &RowIterator{r: r, pos: start * stride, rowsEmitted: start}, nil
}

func (it *RowIterator) Next() (row []byte, ok bool, err error) {
	if it.done {
		return nil, false, nil
	}
	r := it.r
	stride := r.meta.Layout.RowStride
	if r.meta.Layout.RowCount >= 0 && it.rowsEmitted >= r.meta.Layout.RowCount {
		it.done = true
		return nil, false, nil
	}

	if r.decomp == nil {
		end := it.pos + int64(stride)
		if end > int64(len(r.data)) {
			it.done = true
			return nil, false, nil
		}
		row = r.data[it.pos:end]
		it.pos = end
	} else {
		if it.pos >= int64(len(r.data)) {
			it.done = true
			return nil, false, nil
		}
		var consumed int
		it.rowBuf, consumed, err = r.decomp.Decompress(r.data[it.pos:], stride, it.rowBuf)
		if err != nil {
			return nil, false, err
		}
		it.pos += int64(consumed)
		row = it.rowBuf
	}
	it.rowsEmitted++
	return row, true, nil
}

// ReadChunk decodes up to maxRows sequential cases.
func (r *Reader) ReadChunk(it *RowIterator, maxRows int, seq int64) (*schema.Chunk, error) {
	cols := r.meta.Schema.Columns
	builders := make([]*schema.ColumnChunk, len(cols))
	dictIndexes := make([]map[string]int32, len(cols))
	for i, col := range cols {
		builders[i] = schema.NewColumnBuilder(col, maxRows)
		if col.Type == schema.Categorical {
			dictIndexes[i] = map[string]int32{"(null)": 0}
		}
	}

	startRow := it.rowsEmitted
	n := 0
	for n < maxRows {
		row, ok, err := it.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		decodeRow(row, r.bound, builders, dictIndexes, r.opts)
		n++
	}
	if n == 0 {
		return nil, nil
	}
	return &schema.Chunk{Schema: r.meta.Schema, Columns: builders, RowCount: n, Seq: seq, StartRow: startRow}, nil
}
