// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stata

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/solidcoredata/statread/schema"
)

func TestWriterRoundTrip(t *testing.T) {
	sc := &schema.Schema{Columns: []schema.ColumnDescriptor{
		{Name: "id", Type: schema.Int32, Encoding: schema.PhysicalEncoding{StorageWidth: 4}},
		{Name: "name", Type: schema.Utf8, Encoding: schema.PhysicalEncoding{StorageWidth: 8}},
	}}

	id := schema.NewColumnBuilder(sc.Columns[0], 3)
	id.AppendInt64(1)
	id.AppendInt64(2)
	id.AppendNull()
	name := schema.NewColumnBuilder(sc.Columns[1], 3)
	name.AppendStr("alpha")
	name.AppendStr("beta")
	name.AppendStr("")
	chunk := &schema.Chunk{Schema: sc, Columns: []*schema.ColumnChunk{id, name}, RowCount: 3}

	dir := t.TempDir()
	path := filepath.Join(dir, "out.dta")
	w := NewWriter(path)
	if err := w.WriteChunks(sc, []*schema.Chunk{chunk}); err != nil {
		t.Fatal(err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !Probe(raw) {
		t.Fatal("written file does not probe as a Stata .dta")
	}

	r, err := Open(raw, schema.DefaultScanOptions())
	if err != nil {
		t.Fatal(err)
	}
	if got := r.RowCount(); got != 3 {
		t.Fatalf("RowCount = %d, want 3", got)
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
	if idCol.Int64[0] != 1 || idCol.Int64[1] != 2 || idCol.Valid[2] {
		t.Fatalf("id column mismatch: %+v", idCol)
	}
	nameCol := got.Column("name")
	if nameCol.Str[0] != "alpha" || nameCol.Str[1] != "beta" {
		t.Fatalf("name column mismatch: %+v", nameCol)
	}
}
