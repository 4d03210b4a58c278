// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package scan implements the scan scheduler: probe-based dispatch to the
// three format readers, a worker-pool scheduler built on
// golang.org/x/sync/errgroup (mirroring internal/start.RunAll's fan-in
// idiom), a bounded prefetch boundary, and the alternate pipeline dispatch
// mode.
package scan

import (
	"github.com/solidcoredata/statread/sas"
	"github.com/solidcoredata/statread/schema"
	"github.com/solidcoredata/statread/spss"
	"github.com/solidcoredata/statread/stata"
)

// RowSource is the common surface every opened format reader exposes, so
// the scheduler dispatches work without a per-format switch on the hot
// path.
type RowSource interface {
	Schema() *schema.Schema
	Layout() *schema.PhysicalLayout
	RowCount() int64
	// ReadChunk decodes up to maxRows rows starting wherever this source's
	// iterator last left off, tagging the result with seq.
	ReadChunk(maxRows int, seq int64) (*schema.Chunk, error)
}

// windowed is implemented by sources that can be split into independently
// decodable row ranges for parallel work-unit dispatch. A source that
// does not implement it (or whose randomAccess reports false) must run as
// one sequential unit.
type windowed interface {
	// randomAccess reports whether openAt is safe to call at all. False for
	// a compressed stream with no reset points between rows.
	randomAccess() bool
	// alignedBoundaries lists the row offsets this source must be split on,
	// when splitting is constrained to specific points (SAS pages). Nil
	// means the caller may choose any boundary.
	alignedBoundaries() []int64
	// openAt returns an independent RowSource positioned at row start.
	openAt(start int64) (RowSource, error)
}

// Open probes raw against all three formats and returns the matching
// opened RowSource.
func Open(raw []byte, opts schema.ScanOptions) (RowSource, error) {
	switch {
	case sas.Probe(raw):
		r, err := sas.Open(raw, opts)
		if err != nil {
			return nil, err
		}
		return &sasSource{r: r, it: r.NewRowIterator()}, nil
	case spss.Probe(raw):
		r, err := spss.Open(raw, opts)
		if err != nil {
			return nil, err
		}
		return &spssSource{r: r, it: r.NewRowIterator()}, nil
	case stata.Probe(raw):
		r, err := stata.Open(raw, opts)
		if err != nil {
			return nil, err
		}
		return &stataSource{r: r, it: r.NewRowIterator()}, nil
	default:
		return nil, schema.NewError(schema.ProbeMismatch, "unrecognized file format")
	}
}

type sasSource struct {
	r  *sas.Reader
	it *sas.RowIterator
}

func (s *sasSource) Schema() *schema.Schema         { return s.r.Schema() }
func (s *sasSource) Layout() *schema.PhysicalLayout { return s.r.Layout() }
func (s *sasSource) RowCount() int64                { return s.r.RowCount() }
func (s *sasSource) ReadChunk(maxRows int, seq int64) (*schema.Chunk, error) {
	return s.r.ReadChunk(s.it, maxRows, seq)
}
func (s *sasSource) randomAccess() bool { return s.r.Layout().Compression == schema.CompressionNone }
func (s *sasSource) alignedBoundaries() []int64 {
	if !s.randomAccess() {
		return nil
	}
	return s.r.PageRowBoundaries()
}
func (s *sasSource) openAt(start int64) (RowSource, error) {
	it, err := s.r.NewRowIteratorAt(start)
	if err != nil {
		return nil, err
	}
	return &sasSource{r: s.r, it: it}, nil
}

type stataSource struct {
	r  *stata.Reader
	it *stata.RowIterator
}

func (s *stataSource) Schema() *schema.Schema         { return s.r.Schema() }
func (s *stataSource) Layout() *schema.PhysicalLayout { return s.r.Layout() }
func (s *stataSource) RowCount() int64                { return s.r.RowCount() }
func (s *stataSource) ReadChunk(maxRows int, seq int64) (*schema.Chunk, error) {
	return s.r.ReadChunk(s.it, maxRows, seq)
}
func (s *stataSource) randomAccess() bool           { return true }
func (s *stataSource) alignedBoundaries() []int64   { return nil }
func (s *stataSource) openAt(start int64) (RowSource, error) {
	it, err := s.r.NewRowIteratorAt(start)
	if err != nil {
		return nil, err
	}
	return &stataSource{r: s.r, it: it}, nil
}

type spssSource struct {
	r  *spss.Reader
	it *spss.RowIterator
}

func (s *spssSource) Schema() *schema.Schema         { return s.r.Schema() }
func (s *spssSource) Layout() *schema.PhysicalLayout { return s.r.Layout() }
func (s *spssSource) RowCount() int64                { return s.r.RowCount() }
func (s *spssSource) ReadChunk(maxRows int, seq int64) (*schema.Chunk, error) {
	return s.r.ReadChunk(s.it, maxRows, seq)
}
func (s *spssSource) randomAccess() bool         { return s.r.Layout().Compression == schema.CompressionNone }
func (s *spssSource) alignedBoundaries() []int64 { return nil }
func (s *spssSource) openAt(start int64) (RowSource, error) {
	it, err := s.r.NewRowIteratorAt(start)
	if err != nil {
		return nil, err
	}
	return &spssSource{r: s.r, it: it}, nil
}
