// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package scan

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/solidcoredata/statread/sas"
	"github.com/solidcoredata/statread/schema"
)

func writeTestSasFile(t *testing.T, rows int) []byte {
	t.Helper()
	sc := &schema.Schema{Columns: []schema.ColumnDescriptor{
		{Name: "id", Type: schema.Float64, Encoding: schema.PhysicalEncoding{StorageWidth: 8}},
	}}
	cc := schema.NewColumnBuilder(sc.Columns[0], rows)
	for i := 0; i < rows; i++ {
		cc.AppendFloat64(float64(i))
	}
	chunk := &schema.Chunk{Schema: sc, Columns: []*schema.ColumnChunk{cc}, RowCount: rows}

	path := filepath.Join(t.TempDir(), "scan.sas7bdat")
	w := sas.NewWriter(path)
	if err := w.WriteChunks(sc, []*schema.Chunk{chunk}); err != nil {
		t.Fatal(err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func drain(t *testing.T, raw []byte, opts schema.ScanOptions) int64 {
	t.Helper()
	ctx := context.Background()
	_, pf, err := Scan(ctx, raw, opts)
	if err != nil {
		t.Fatal(err)
	}
	var total int64
	for {
		c, ok, err := pf.Next()
		if err != nil {
			t.Fatal(err)
		}
		if !ok {
			break
		}
		total += int64(c.RowCount)
	}
	return total
}

func TestScanScheduler(t *testing.T) {
	raw := writeTestSasFile(t, 50)
	opts := schema.DefaultScanOptions()
	if got := drain(t, raw, opts); got != 50 {
		t.Fatalf("scheduler delivered %d rows, want 50", got)
	}
}

func TestScanPipeline(t *testing.T) {
	raw := writeTestSasFile(t, 50)
	opts := schema.DefaultScanOptions()
	opts.Pipeline = true
	if got := drain(t, raw, opts); got != 50 {
		t.Fatalf("pipeline delivered %d rows, want 50", got)
	}
}

func TestScanPreserveOrder(t *testing.T) {
	raw := writeTestSasFile(t, 50)
	opts := schema.DefaultScanOptions()
	opts.PreserveOrder = true
	opts.ChunkSize = 7
	if got := drain(t, raw, opts); got != 50 {
		t.Fatalf("ordered scan delivered %d rows, want 50", got)
	}
}

func TestScanUnrecognizedFormat(t *testing.T) {
	_, err := Open([]byte("not a stat file"), schema.DefaultScanOptions())
	if err == nil {
		t.Fatal("expected an error for an unrecognized format")
	}
}
