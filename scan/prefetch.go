// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package scan

import (
	"errors"

	"github.com/solidcoredata/statread/schema"
)

// errStopped is returned by the emit callback once the consumer has closed
// the Prefetcher, so the producer's own error path does not also try to
// push a value onto a channel nobody will read.
var errStopped = errors.New("scan: prefetch consumer stopped")

// Prefetcher is the bounded (capacity schema.PrefetchCapacity) prefetch
// boundary: a background goroutine drains a producer and stops on first
// failure, so a consumer reading slower than the decoder can still bound
// how many chunks pile up ahead of it.
type Prefetcher struct {
	ch   chan prefetchItem
	done chan struct{}
}

type prefetchItem struct {
	chunk *schema.Chunk
	err   error
}

// NewPrefetcher starts run in a background goroutine. run must call emit
// exactly once per chunk it wants delivered, in delivery order, and return
// the first error it encounters (or nil at normal end of stream).
func NewPrefetcher(run func(emit func(*schema.Chunk) error) error) *Prefetcher {
	p := &Prefetcher{
		ch:   make(chan prefetchItem, schema.PrefetchCapacity),
		done: make(chan struct{}),
	}
	go func() {
		defer close(p.ch)
		err := run(func(c *schema.Chunk) error {
			select {
			case p.ch <- prefetchItem{chunk: c}:
				return nil
			case <-p.done:
				return errStopped
			}
		})
		if err != nil && err != errStopped {
			select {
			case p.ch <- prefetchItem{err: err}:
			case <-p.done:
			}
		}
	}()
	return p
}

// Next blocks for the next chunk. ok is false at end of stream (the
// producer finished with no error, or Close was called). A non-nil error
// is terminal: the producer has stopped and no further chunks will arrive.
func (p *Prefetcher) Next() (chunk *schema.Chunk, ok bool, err error) {
	item, open := <-p.ch
	if !open {
		return nil, false, nil
	}
	if item.err != nil {
		return nil, false, item.err
	}
	return item.chunk, true, nil
}

// Close signals the producer to stop at its next dispatch boundary and
// drains whatever it already queued, so the background goroutine always
// exits. Dropping the boundary queue signals workers to stop; in-flight
// chunks may still be emitted and are discarded here.
func (p *Prefetcher) Close() {
	close(p.done)
	for range p.ch {
	}
}
