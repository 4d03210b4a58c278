// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stata

import "github.com/solidcoredata/statread/schema"

// Reader is an opened Stata .dta file, ready to decode row ranges into
// Chunks. Stata rows are always plain (uncompressed, fixed stride), so
// unlike sas.Reader no decompressor state is threaded through.
type Reader struct {
	raw   []byte
	meta  *Metadata
	bound []*boundColumn
	opts  schema.ScanOptions
}

// Open resolves a .dta file's tagged sections and binds one decode function
// per column.
func Open(raw []byte, opts schema.ScanOptions) (*Reader, error) {
	meta, err := ParseMetadata(raw)
	if err != nil {
		return nil, err
	}
	return &Reader{raw: raw, meta: meta, bound: bindColumns(meta, opts), opts: opts}, nil
}

func (r *Reader) Schema() *schema.Schema        { return r.meta.Schema }
func (r *Reader) Layout() *schema.PhysicalLayout { return r.meta.Layout }
func (r *Reader) RowCount() int64               { return r.meta.Layout.RowCount }

// RowIterator walks the fixed-stride <data> block sequentially.
type RowIterator struct {
	r   *Reader
	pos int64
	row int64
}

func (r *Reader) NewRowIterator() *RowIterator {
	return &RowIterator{r: r, pos: r.meta.Layout.DataOffset}
}

// NewRowIteratorAt returns an iterator positioned at physical row start.
// Stata's <data> block is always fixed-stride and uncompressed, so any row
// index is a valid starting point, making the scheduler's work units fully
// parallelizable for this format.
func (r *Reader) NewRowIteratorAt(start int64) (*RowIterator, error) {
	if start < 0 || start > r.meta.Layout.RowCount {
		return nil, schema.NewError(schema.Cancelled, "row index out of range")
	}
	stride := int64(r.meta.Layout.RowStride)
	return &RowIterator{r: r, pos: r.meta.Layout.DataOffset + start*stride, row: start}, nil
}

func (it *RowIterator) Next() (row []byte, ok bool, err error) {
	if it.row >= it.r.meta.Layout.RowCount {
		return nil, false, nil
	}
	stride := int64(it.r.meta.Layout.RowStride)
	end := it.pos + stride
	if end > int64(len(it.r.raw)) {
		return nil, false, schema.NewError(schema.HeaderTruncated, "Stata data block runs past end of file")
	}
	row = it.r.raw[it.pos:end]
	it.pos = end
	it.row++
	return row, true, nil
}

// ReadChunk decodes up to maxRows sequential rows.
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

	startRow := it.row
	n := 0
	for n < maxRows {
		row, ok, err := it.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		decodeRow(row, r.bound, builders, dictIndexes, r)
		n++
	}
	if n == 0 {
		return nil, nil
	}

	return &schema.Chunk{Schema: r.meta.Schema, Columns: builders, RowCount: n, Seq: seq, StartRow: startRow}, nil
}
