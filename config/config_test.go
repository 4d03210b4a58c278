// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import (
	"flag"
	"testing"
)

func TestPathRequiresFile(t *testing.T) {
	flag.Set("file", "")
	if _, err := Path(); err == nil {
		t.Fatal("expected an error with no -file set")
	}
	flag.Set("file", "in.sas7bdat")
	got, err := Path()
	if err != nil {
		t.Fatal(err)
	}
	if got != "in.sas7bdat" {
		t.Fatalf("Path() = %q, want %q", got, "in.sas7bdat")
	}
}

func TestScanOptionsLayersOverDefaults(t *testing.T) {
	flag.Set("threads", "4")
	flag.Set("chunk-size", "128")
	flag.Set("preserve-order", "true")
	flag.Set("value-labels-as-strings", "false")

	o := ScanOptions()
	if o.Threads != 4 {
		t.Fatalf("Threads = %d, want 4", o.Threads)
	}
	if o.ChunkSize != 128 {
		t.Fatalf("ChunkSize = %d, want 128", o.ChunkSize)
	}
	if !o.PreserveOrder {
		t.Fatal("PreserveOrder = false, want true")
	}
	if o.ValueLabelsAsStrings {
		t.Fatal("ValueLabelsAsStrings = true, want false")
	}
}
