// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package scan

import (
	"encoding/json"
	"math"
	"strconv"

	"github.com/solidcoredata/statread/schema"
)

type jsonMissing struct {
	Range    []float64 `json:"range,omitempty"`
	Discrete []float64 `json:"discrete,omitempty"`
	Strings  []string  `json:"strings,omitempty"`
}

type jsonColumn struct {
	Name         string            `json:"name"`
	LogicalType  string            `json:"logical_type"`
	Label        string            `json:"label,omitempty"`
	Format       string            `json:"format,omitempty"`
	StorageWidth int               `json:"storage_width"`
	Encoding     string            `json:"encoding,omitempty"`
	ValueLabels  map[string]string `json:"value_labels,omitempty"`
	Missing      *jsonMissing      `json:"missing,omitempty"`
}

type jsonMetadata struct {
	RowCount     int64        `json:"row_count"`
	Columns      []jsonColumn `json:"columns"`
	FileEncoding string       `json:"file_encoding"`
	Compression  string       `json:"compression"`
}

// MetadataJSON renders the resolved schema as a canonical JSON document,
// with a field order fixed by jsonMetadata/jsonColumn's declaration order
// so re-emitting the same parsed schema always produces byte-identical
// output.
func MetadataJSON(raw []byte, opts schema.ScanOptions) (string, error) {
	src, err := Open(raw, opts)
	if err != nil {
		return "", err
	}
	sc := src.Schema()
	layout := src.Layout()

	cols := make([]jsonColumn, len(sc.Columns))
	for i, c := range sc.Columns {
		jc := jsonColumn{
			Name:         c.Name,
			LogicalType:  c.Type.String(),
			Label:        c.Label,
			Format:       c.Format,
			StorageWidth: c.Encoding.StorageWidth,
		}
		if c.Encoding.ByteOrder == schema.BigEndian {
			jc.Encoding = "big-endian"
		} else {
			jc.Encoding = "little-endian"
		}
		if c.ValueLabels != nil {
			jc.ValueLabels = map[string]string{}
			for k, v := range c.ValueLabels.NumericLabels {
				jc.ValueLabels[formatFloatKey(k)] = v
			}
			for k, v := range c.ValueLabels.StringLabels {
				jc.ValueLabels[k] = v
			}
		}
		m := c.Missing
		if m.HasRange || len(m.DiscreteValues) > 0 || len(m.StringValues) > 0 {
			jm := &jsonMissing{}
			if m.HasRange {
				jm.Range = []float64{m.RangeLow, m.RangeHigh}
			}
			if len(m.DiscreteValues) > 0 {
				jm.Discrete = append([]float64(nil), m.DiscreteValues...)
			}
			if len(m.StringValues) > 0 {
				jm.Strings = append([]string(nil), m.StringValues...)
			}
			jc.Missing = jm
		}
		cols[i] = jc
	}

	doc := jsonMetadata{
		RowCount:     layout.RowCount,
		Columns:      cols,
		FileEncoding: layout.CodePage,
		Compression:  layout.Compression.String(),
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// formatFloatKey renders a value-label numeric key the way a human-facing
// JSON document should: integral values without a trailing ".0".
func formatFloatKey(v float64) string {
	if v == math.Trunc(v) {
		return strconv.FormatInt(int64(v), 10)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
