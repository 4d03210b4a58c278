// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/solidcoredata/statread/config"
	"github.com/solidcoredata/statread/internal/start"
	"github.com/solidcoredata/statread/scan"
)

func main() {
	flag.Parse()
	if err := start.Start(context.Background(), config.StopTimeout(), run); err != nil {
		log.Print(err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	return start.RunAll(ctx, config.Run, scanFile)
}

func scanFile(ctx context.Context) error {
	path, err := config.Path()
	if err != nil {
		return err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	opts := config.ScanOptions()

	if config.MetadataOnly() {
		doc, err := scan.MetadataJSON(raw, opts)
		if err != nil {
			return err
		}
		fmt.Println(doc)
		return nil
	}

	src, pf, err := scan.Scan(ctx, raw, opts)
	if err != nil {
		return err
	}
	defer pf.Close()

	log.Printf("statread: scanning %s (%d columns, %d rows)", path, len(src.Schema().Columns), src.RowCount())
	var rows int64
	for {
		chunk, ok, err := pf.Next()
		if err != nil {
			return err
		}
		if !ok {
			break
		}
		rows += int64(chunk.RowCount)
	}
	log.Printf("statread: decoded %d rows", rows)
	return nil
}
