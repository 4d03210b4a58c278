// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package scan

import (
	"context"

	"github.com/solidcoredata/statread/schema"
)

// Scan opens raw against the three formats and returns its resolved source
// plus a Prefetcher the caller pulls decoded chunks from. Cancelling ctx
// propagates into the worker pool or pipeline goroutines the same way the
// teacher's internal/start.Start cancels its services on interrupt.
func Scan(ctx context.Context, raw []byte, opts schema.ScanOptions) (RowSource, *Prefetcher, error) {
	src, err := Open(raw, opts)
	if err != nil {
		return nil, nil, err
	}

	var run func(emit func(*schema.Chunk) error) error
	if opts.Pipeline {
		run = func(emit func(*schema.Chunk) error) error {
			return runPipeline(ctx, src, opts, emit)
		}
	} else {
		sched := NewScheduler(opts)
		run = func(emit func(*schema.Chunk) error) error {
			return sched.Run(ctx, src, emit)
		}
	}
	return src, NewPrefetcher(run), nil
}
