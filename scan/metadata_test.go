// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package scan

import (
	"strings"
	"testing"

	"github.com/solidcoredata/statread/schema"
)

func TestMetadataJSON(t *testing.T) {
	raw := writeTestSasFile(t, 5)
	doc, err := MetadataJSON(raw, schema.DefaultScanOptions())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(doc, `"row_count":5`) {
		t.Fatalf("metadata_json missing row_count: %s", doc)
	}
	if !strings.Contains(doc, `"name":"id"`) {
		t.Fatalf("metadata_json missing id column: %s", doc)
	}
}
