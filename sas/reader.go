// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sas

import (
	"github.com/solidcoredata/statread/compress"
	"github.com/solidcoredata/statread/schema"
)

// Reader is an opened SAS7BDAT file: its metadata has been resolved and it
// is ready to decode row ranges into Chunks.
type Reader struct {
	raw    []byte
	meta   *Metadata
	bound  []*boundColumn
	opts   schema.ScanOptions
	decomp compress.Decompressor
}

// Open resolves a SAS7BDAT file's header, page directory, and dictionary
// subheaders, and binds one decode function per column once up front,
// ready to decode row ranges.
func Open(raw []byte, opts schema.ScanOptions) (*Reader, error) {
	meta, err := ParseMetadata(raw)
	if err != nil {
		return nil, err
	}
	return &Reader{
		raw:    raw,
		meta:   meta,
		bound:  bindColumns(meta, opts),
		opts:   opts,
		decomp: compress.New(meta.Layout.Compression),
	}, nil
}

// Schema returns the resolved column set.
func (r *Reader) Schema() *schema.Schema { return r.meta.Schema }

// Layout returns the resolved physical page/row layout.
func (r *Reader) Layout() *schema.PhysicalLayout { return r.meta.Layout }

// RowCount is the declared total row count across every data/mix page.
func (r *Reader) RowCount() int64 { return r.meta.Layout.RowCount }

// NewRowIterator returns a sequential row cursor starting at the file's
// first row. Rows must be consumed in order: compressed pages only record
// where one row's compressed bytes end relative to the row before it, so
// random access within a page is not possible without replaying from the
// page start.
func (r *Reader) NewRowIterator() *RowIterator {
	return &RowIterator{r: r, rowBuf: make([]byte, r.meta.Layout.RowStride)}
}

// RowIterator walks every data/mix page's rows in file order, decompressing
// as needed.
type RowIterator struct {
	r           *Reader
	pageIdx     int
	rowInPage   int
	pagePos     int64 // absolute file offset of the next unread row (compressed or not).
	rowsOnPage  int
	rowBuf      []byte
	rowsEmitted int64
	done        bool
}

// Next decodes the next physical row's raw bytes, or reports ok=false once
// every declared row has been emitted.
func (it *RowIterator) Next() (row []byte, ok bool, err error) {
	if it.done || it.rowsEmitted >= it.r.meta.Layout.RowCount {
		return nil, false, nil
	}
	for it.rowInPage >= it.rowsOnPage {
		if !it.advancePage() {
			it.done = true
			return nil, false, nil
		}
	}

	rowLength := it.r.meta.Layout.RowStride
	if it.r.meta.Layout.Compression == schema.CompressionNone {
		start := it.pagePos
		end := start + int64(rowLength)
		if end > int64(len(it.r.raw)) {
			return nil, false, wrap(schema.HeaderTruncated, "SAS data row runs past end of file")
		}
		row = it.r.raw[start:end]
		it.pagePos = end
	} else {
		pages := it.r.meta.Layout.SASPages
		pageEnd := pages[it.pageIdx].Offset + int64(it.r.meta.Layout.PageSize)
		if pageEnd > int64(len(it.r.raw)) {
			pageEnd = int64(len(it.r.raw))
		}
		input := it.r.raw[it.pagePos:pageEnd]
		out, consumed, derr := it.r.decomp.Decompress(input, rowLength, it.rowBuf)
		if derr != nil {
			return nil, false, derr
		}
		row = out
		it.pagePos += int64(consumed)
	}

	it.rowInPage++
	it.rowsEmitted++
	return row, true, nil
}

// PageRowBoundaries reports the physical row index at which each data/mix
// page begins, for callers that split scan work unit-per-page (the natural
// parallel-work granularity for this format).
func (r *Reader) PageRowBoundaries() []int64 {
	pages := r.meta.Layout.SASPages
	var bounds []int64
	var cum int64
	for _, p := range pages {
		switch p.Type {
		case schema.PageData, schema.PageMix:
			rowsOnPage := p.BlockCount
			if p.Type == schema.PageMix {
				rowsOnPage -= p.SubheaderCount
			}
			remaining := r.meta.Layout.RowCount - cum
			if int64(rowsOnPage) > remaining {
				rowsOnPage = int(remaining)
			}
			if rowsOnPage > 0 {
				bounds = append(bounds, cum)
				cum += int64(rowsOnPage)
			}
		}
	}
	return bounds
}

// NewRowIteratorAt returns an iterator positioned at physical row start,
// which must land on a page boundary reported by PageRowBoundaries.
// Uncompressed pages reset no state across page boundaries, so this is
// always safe; compressed pages (Rle/Rdc) are rejected because this
// implementation only exploits page-granularity random access when no
// decompressor window needs to be replayed (see DESIGN.md's work-unit
// splitting note).
func (r *Reader) NewRowIteratorAt(start int64) (*RowIterator, error) {
	if r.meta.Layout.Compression != schema.CompressionNone {
		return nil, wrap(schema.Cancelled, "SAS compressed layout does not support random row access")
	}
	it := &RowIterator{r: r, rowBuf: make([]byte, r.meta.Layout.RowStride)}
	pages := r.meta.Layout.SASPages
	var cum int64
	for it.pageIdx < len(pages) {
		p := pages[it.pageIdx]
		switch p.Type {
		case schema.PageData, schema.PageMix:
			rowsOnPage := p.BlockCount
			if p.Type == schema.PageMix {
				rowsOnPage -= p.SubheaderCount
			}
			remaining := r.meta.Layout.RowCount - cum
			if int64(rowsOnPage) > remaining {
				rowsOnPage = int(remaining)
			}
			if rowsOnPage > 0 {
				if start < cum+int64(rowsOnPage) {
					it.rowsOnPage = rowsOnPage
					it.rowInPage = int(start - cum)
					it.pagePos = p.DataOffset + int64(it.rowInPage)*int64(r.meta.Layout.RowStride)
					it.rowsEmitted = start
					it.pageIdx++
					return it, nil
				}
				cum += int64(rowsOnPage)
			}
		}
		it.pageIdx++
	}
	if start == cum {
		it.done = true
		it.rowsEmitted = start
		return it, nil
	}
	return nil, wrap(schema.Cancelled, "row index out of range")
}

// advancePage moves to the next page that carries rows, computing how many
// rows live on it. Mix pages interleave dictionary subheaders with rows, so
// their row count is the page's block count minus its subheader count.
func (it *RowIterator) advancePage() bool {
	pages := it.r.meta.Layout.SASPages
	for it.pageIdx < len(pages) {
		p := pages[it.pageIdx]
		switch p.Type {
		case schema.PageData, schema.PageMix:
			rowsOnPage := p.BlockCount
			if p.Type == schema.PageMix {
				rowsOnPage -= p.SubheaderCount
			}
			remaining := it.r.meta.Layout.RowCount - it.rowsEmitted
			if int64(rowsOnPage) > remaining {
				rowsOnPage = int(remaining)
			}
			if rowsOnPage > 0 {
				it.rowsOnPage = rowsOnPage
				it.rowInPage = 0
				it.pagePos = p.DataOffset
				it.pageIdx++
				return true
			}
		}
		it.pageIdx++
	}
	return false
}

// ReadChunk decodes up to maxRows sequential rows starting wherever it last
// left off, returning nil once the iterator is exhausted.
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

	return &schema.Chunk{
		Schema:   r.meta.Schema,
		Columns:  builders,
		RowCount: n,
		Seq:      seq,
		StartRow: startRow,
	}, nil
}
