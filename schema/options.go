// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package schema

import "runtime"

// DefaultChunkSize is the default row count per Chunk for numeric-heavy
// schemas.
const DefaultChunkSize = 64 * 1024

// MaxChunkBytes bounds chunk size for wide-string schemas: ResolveChunkSize
// shrinks the row count per chunk so no chunk exceeds this many bytes.
const MaxChunkBytes = 64 * 1024 * 1024

// PrefetchCapacity is the bounded queue size of the scan scheduler's
// prefetch boundary.
const PrefetchCapacity = 10

// ScanOptions controls every scan-time tunable: thread count, chunk sizing,
// missing-value handling, and delivery ordering.
type ScanOptions struct {
	// Threads is the worker count; zero means runtime.GOMAXPROCS(0).
	Threads int

	// ChunkSize is rows per chunk; zero means DefaultChunkSize, adjusted
	// down to respect MaxChunkBytes once the row stride is known.
	ChunkSize int

	// MissingStringAsNull treats all-spaces short strings as null (SPSS).
	MissingStringAsNull bool

	// UserMissingAsNull folds user-defined numeric missings to null.
	UserMissingAsNull bool

	// ValueLabelsAsStrings materializes labeled numerics as Categorical.
	ValueLabelsAsStrings bool

	// PreserveOrder requests deterministic chunk delivery order.
	PreserveOrder bool

	// Pipeline selects the alternate read/decode pipeline dispatch mode.
	Pipeline bool

	// DisableMmap is carried for callers but not consulted by Scan, which
	// decodes from an in-memory byte slice and opens no cursor backend.
	DisableMmap bool

	// PreserveTaggedMissing keeps SAS tagged-missing payloads in each
	// numeric column's ColumnChunk.TagBytes sidecar (one uint8 per row)
	// when UserMissingAsNull is false.
	PreserveTaggedMissing bool
}

// DefaultScanOptions returns the default for every tunable: one worker per
// GOMAXPROCS, byte-capped chunk size, and missing values folded to null.
func DefaultScanOptions() ScanOptions {
	return ScanOptions{
		Threads:              runtime.GOMAXPROCS(0),
		ChunkSize:            DefaultChunkSize,
		MissingStringAsNull:  true,
		UserMissingAsNull:    true,
		ValueLabelsAsStrings: true,
		PreserveOrder:        false,
		Pipeline:             false,
	}
}

// ResolveChunkSize applies the defaulting and the MaxChunkBytes clamp for a
// schema whose row stride (bytes) is known.
func (o ScanOptions) ResolveChunkSize(rowStride int) int {
	n := o.ChunkSize
	if n <= 0 {
		n = DefaultChunkSize
	}
	if rowStride <= 0 {
		return n
	}
	if n*rowStride > MaxChunkBytes {
		n = MaxChunkBytes / rowStride
		if n < 1 {
			n = 1
		}
	}
	return n
}

// ResolveThreads applies the defaulting rule and the sequential-stream cap:
// a compressed stream whose rows can straddle chunk boundaries must be
// walked by exactly one goroutine.
func (o ScanOptions) ResolveThreads(sequentialOnly bool) int {
	if sequentialOnly {
		return 1
	}
	n := o.Threads
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
	}
	return n
}
