// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sas

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/solidcoredata/statread/schema"
)

func buildTestChunk(sc *schema.Schema) *schema.Chunk {
	id := schema.NewColumnBuilder(sc.Columns[0], 3)
	id.AppendFloat64(1)
	id.AppendFloat64(2)
	id.AppendNull()

	name := schema.NewColumnBuilder(sc.Columns[1], 3)
	name.AppendStr("alpha")
	name.AppendStr("beta")
	name.AppendStr("")

	return &schema.Chunk{
		Schema:   sc,
		Columns:  []*schema.ColumnChunk{id, name},
		RowCount: 3,
	}
}

func TestWriterRoundTrip(t *testing.T) {
	sc := &schema.Schema{Columns: []schema.ColumnDescriptor{
		{Name: "id", Type: schema.Float64, Encoding: schema.PhysicalEncoding{StorageWidth: 8}},
		{Name: "name", Type: schema.Utf8, Encoding: schema.PhysicalEncoding{StorageWidth: 8}},
	}}
	chunk := buildTestChunk(sc)

	dir := t.TempDir()
	path := filepath.Join(dir, "out.sas7bdat")
	w := NewWriter(path)
	if err := w.WriteChunks(sc, []*schema.Chunk{chunk}); err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !Probe(raw) {
		t.Fatal("written file does not probe as SAS7BDAT")
	}

	r, err := Open(raw, schema.DefaultScanOptions())
	if err != nil {
		t.Fatal(err)
	}
	if got := r.RowCount(); got != 3 {
		t.Fatalf("RowCount = %d, want 3", got)
	}
	cols := r.Schema().Columns
	if len(cols) != 2 || cols[0].Name != "id" || cols[1].Name != "name" {
		t.Fatalf("unexpected schema: %+v", cols)
	}

	it := r.NewRowIterator()
	got, err := r.ReadChunk(it, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if got.RowCount != 3 {
		t.Fatalf("chunk RowCount = %d, want 3", got.RowCount)
	}
	idCol := got.Column("id")
	if idCol.Float64[0] != 1 || idCol.Float64[1] != 2 || idCol.Valid[2] {
		t.Fatalf("id column mismatch: %+v", idCol)
	}
	nameCol := got.Column("name")
	if nameCol.Str[0] != "alpha" || nameCol.Str[1] != "beta" {
		t.Fatalf("name column mismatch: %+v", nameCol)
	}
}
