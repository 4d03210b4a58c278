// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package scan

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/solidcoredata/statread/schema"
)

// workUnit is a half-open row range [start, end) dispatched to one worker.
type workUnit struct {
	start, end int64
}

// planWorkUnits splits src's row range into independent units: SAS units
// are page-aligned; every other splittable source uses opts.ChunkSize-aligned
// ranges; a source that cannot be randomly accessed (a compressed SPSS
// stream, or a decompressed SAS page stream) becomes a single sequential
// unit, which ResolveThreads then caps to one worker.
func planWorkUnits(src RowSource, opts schema.ScanOptions) []workUnit {
	total := src.RowCount()
	if total <= 0 {
		return nil
	}
	w, ok := src.(windowed)
	if !ok || !w.randomAccess() {
		return []workUnit{{start: 0, end: total}}
	}
	if bounds := w.alignedBoundaries(); bounds != nil {
		units := make([]workUnit, 0, len(bounds))
		for i, b := range bounds {
			end := total
			if i+1 < len(bounds) {
				end = bounds[i+1]
			}
			units = append(units, workUnit{start: b, end: end})
		}
		return units
	}
	chunkRows := int64(opts.ResolveChunkSize(src.Layout().RowStride))
	var units []workUnit
	for start := int64(0); start < total; start += chunkRows {
		end := start + chunkRows
		if end > total {
			end = total
		}
		units = append(units, workUnit{start: start, end: end})
	}
	return units
}

// Scheduler dispatches one opened RowSource's row range across a worker
// pool.
type Scheduler struct {
	opts schema.ScanOptions
}

func NewScheduler(opts schema.ScanOptions) *Scheduler { return &Scheduler{opts: opts} }

// Run decodes src's full row range, delivering chunks to emit. When
// opts.PreserveOrder is set, delivery follows physical row order exactly;
// otherwise chunks are delivered as each worker finishes, which may
// interleave across work units. A single worker's failure aborts the whole
// group.
func (s *Scheduler) Run(ctx context.Context, src RowSource, emit func(*schema.Chunk) error) error {
	units := planWorkUnits(src, s.opts)
	if len(units) == 0 {
		return nil
	}
	sequentialOnly := len(units) <= 1
	threads := s.opts.ResolveThreads(sequentialOnly)
	if threads > len(units) {
		threads = len(units)
	}
	if threads < 1 {
		threads = 1
	}
	chunkRows := s.opts.ResolveChunkSize(src.Layout().RowStride)

	group, gctx := errgroup.WithContext(ctx)
	work := make(chan int)
	group.Go(func() error {
		defer close(work)
		for i := range units {
			select {
			case work <- i:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	decodeUnit := func(i int) ([]*schema.Chunk, error) {
		unit := units[i]
		unitSrc := src
		if i > 0 {
			w, ok := src.(windowed)
			if !ok {
				return nil, schema.NewError(schema.Cancelled, "source does not support split work units")
			}
			opened, err := w.openAt(unit.start)
			if err != nil {
				return nil, err
			}
			unitSrc = opened
		}
		var chunks []*schema.Chunk
		remaining := unit.end - unit.start
		for remaining > 0 {
			n := chunkRows
			if int64(n) > remaining {
				n = int(remaining)
			}
			c, err := unitSrc.ReadChunk(n, int64(i))
			if err != nil {
				return nil, err
			}
			if c == nil {
				break
			}
			chunks = append(chunks, c)
			remaining -= int64(c.RowCount)
		}
		return chunks, nil
	}

	var mu sync.Mutex
	ordered := make([][]*schema.Chunk, len(units))

	for n := 0; n < threads; n++ {
		group.Go(func() error {
			for {
				select {
				case i, ok := <-work:
					if !ok {
						return nil
					}
					chunks, err := decodeUnit(i)
					if err != nil {
						return err
					}
					if s.opts.PreserveOrder {
						mu.Lock()
						ordered[i] = chunks
						mu.Unlock()
						continue
					}
					for _, c := range chunks {
						mu.Lock()
						err := emit(c)
						mu.Unlock()
						if err != nil {
							return err
						}
					}
				case <-gctx.Done():
					return gctx.Err()
				}
			}
		})
	}

	if err := group.Wait(); err != nil {
		return err
	}

	if s.opts.PreserveOrder {
		for _, chunks := range ordered {
			for _, c := range chunks {
				if err := emit(c); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
