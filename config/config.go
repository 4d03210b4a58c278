// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config exposes cmd/statread's top-level scan options as flags,
// package-level flag.String/flag.Int/flag.Bool vars parsed once at startup.
// ScanOptions itself stays a plain struct (schema.ScanOptions) so library
// callers never need to touch the flag package.
package config

import (
	"context"
	"errors"
	"flag"
	"time"

	"github.com/solidcoredata/statread/schema"
)

var (
	path                 = flag.String("file", "", "path to a .sas7bdat, .sav, .zsav, or .dta file")
	threads              = flag.Int("threads", 0, "worker count; 0 means available parallelism")
	chunkSize            = flag.Int("chunk-size", 0, "rows per chunk; 0 means the engine default")
	preserveOrder        = flag.Bool("preserve-order", false, "deliver chunks in physical row order")
	pipeline             = flag.Bool("pipeline", false, "use the read/decode pipeline dispatch mode")
	userMissingAsNull    = flag.Bool("user-missing-as-null", true, "fold user-defined numeric missings to null")
	missingStringAsNull  = flag.Bool("missing-string-as-null", true, "treat all-spaces short strings as null")
	valueLabelsAsStrings = flag.Bool("value-labels-as-strings", true, "materialize labeled numerics as Categorical")
	metadataOnly         = flag.Bool("metadata", false, "print metadata_json and exit without scanning rows")
	stopTimeout          = flag.Duration("stop-timeout", time.Second*5, "bounded shutdown timeout on interrupt")
)

// Path returns the configured input file path, or an error if none was set.
func Path() (string, error) {
	if len(*path) == 0 {
		return "", errors.New("missing -file")
	}
	return *path, nil
}

// ScanOptions builds schema.ScanOptions from the parsed flags, layered over
// the engine defaults so an unset flag keeps its default behavior.
func ScanOptions() schema.ScanOptions {
	o := schema.DefaultScanOptions()
	if *threads > 0 {
		o.Threads = *threads
	}
	if *chunkSize > 0 {
		o.ChunkSize = *chunkSize
	}
	o.PreserveOrder = *preserveOrder
	o.Pipeline = *pipeline
	o.UserMissingAsNull = *userMissingAsNull
	o.MissingStringAsNull = *missingStringAsNull
	o.ValueLabelsAsStrings = *valueLabelsAsStrings
	return o
}

// MetadataOnly reports whether the CLI should only print metadata_json.
func MetadataOnly() bool { return *metadataOnly }

// StopTimeout is the bounded shutdown window internal/start.Start waits
// before forcing exit after an interrupt.
func StopTimeout() time.Duration { return *stopTimeout }

// Run validates the flags; it is dispatched through internal/start.RunAll
// alongside the scan itself so a missing -file is reported through the same
// cancellation path as a scan failure.
func Run(ctx context.Context) error {
	_, err := Path()
	return err
}
