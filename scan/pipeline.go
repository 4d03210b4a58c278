// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package scan

import (
	"context"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/solidcoredata/statread/schema"
)

// runPipeline implements the alternate dispatch mode: a producer goroutine
// decodes chunks sequentially while a consumer goroutine drains them,
// linked by a weighted semaphore that bounds how many decoded chunks may
// sit ahead of the consumer (schema.PrefetchCapacity), rather than the
// worker pool's disjoint row-range parallelism. statread's row readers fuse
// page read, decompression, and cell decode into one ReadChunk call, so
// there is no independent read/decompress stage to hand to a second
// goroutine the way a two-thread producer/consumer split usually implies;
// the semaphore still caps peak buffered chunks, which is the memory
// property this mode exists to provide. Recorded as an Open Question
// resolution in DESIGN.md.
func runPipeline(ctx context.Context, src RowSource, opts schema.ScanOptions, emit func(*schema.Chunk) error) error {
	sem := semaphore.NewWeighted(int64(schema.PrefetchCapacity))
	chunkRows := opts.ResolveChunkSize(src.Layout().RowStride)
	out := make(chan *schema.Chunk)

	group, gctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		defer close(out)
		seq := int64(0)
		for {
			if err := sem.Acquire(gctx, 1); err != nil {
				return err
			}
			c, err := src.ReadChunk(chunkRows, seq)
			if err != nil {
				sem.Release(1)
				return err
			}
			if c == nil {
				sem.Release(1)
				return nil
			}
			seq++
			select {
			case out <- c:
			case <-gctx.Done():
				sem.Release(1)
				return gctx.Err()
			}
		}
	})

	group.Go(func() error {
		for c := range out {
			if err := emit(c); err != nil {
				return err
			}
			sem.Release(1)
		}
		return nil
	})

	return group.Wait()
}
