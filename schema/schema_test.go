// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package schema

import "testing"

func TestDedupRenamesCollisions(t *testing.T) {
	cols := []ColumnDescriptor{
		{Name: "x"},
		{Name: "x"},
		{Name: "x"},
		{Name: "y"},
	}
	out, renames := Dedup(cols)
	names := []string{out[0].Name, out[1].Name, out[2].Name, out[3].Name}
	want := []string{"x", "x_1", "x_2", "y"}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("names = %v, want %v", names, want)
		}
	}
	if !out[1].Renamed || out[1].OriginalName != "x" {
		t.Fatalf("out[1] = %+v, want Renamed with OriginalName x", out[1])
	}
	if renames["x_1"] != "x" || renames["x_2"] != "x" {
		t.Fatalf("renames = %v", renames)
	}
}

func TestColumnChunkAppendCategoryInterns(t *testing.T) {
	cc := NewColumnBuilder(ColumnDescriptor{Type: Categorical}, 4)
	idx := map[string]int32{"(null)": 0}
	cc.AppendCategory("red", idx)
	cc.AppendCategory("blue", idx)
	cc.AppendCategory("red", idx)
	if len(cc.Dict) != 3 {
		t.Fatalf("Dict = %v, want 3 entries", cc.Dict)
	}
	if cc.Cat[0] != cc.Cat[2] {
		t.Fatalf("two 'red' rows got different dictionary indexes: %v", cc.Cat)
	}
	if cc.Cat[0] == cc.Cat[1] {
		t.Fatalf("distinct labels got the same dictionary index: %v", cc.Cat)
	}
}

func TestResolveChunkSizeClampsToMaxBytes(t *testing.T) {
	o := ScanOptions{ChunkSize: 0}
	if got := o.ResolveChunkSize(0); got != DefaultChunkSize {
		t.Fatalf("ResolveChunkSize(0) = %d, want %d", got, DefaultChunkSize)
	}
	wide := o.ResolveChunkSize(MaxChunkBytes) // one row already equals the byte cap.
	if wide != 1 {
		t.Fatalf("ResolveChunkSize with a huge row stride = %d, want 1", wide)
	}
}

func TestResolveThreadsSequentialCap(t *testing.T) {
	o := ScanOptions{Threads: 8}
	if got := o.ResolveThreads(true); got != 1 {
		t.Fatalf("ResolveThreads(sequentialOnly=true) = %d, want 1", got)
	}
	if got := o.ResolveThreads(false); got != 8 {
		t.Fatalf("ResolveThreads(sequentialOnly=false) = %d, want 8", got)
	}
}
