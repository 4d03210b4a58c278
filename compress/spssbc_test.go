// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package compress

import (
	"encoding/binary"
	"math"
	"testing"
)

func TestSPSSBytecodeBiasedNumber(t *testing.T) {
	// cmd 105 with bias 100 decodes to the raw value 5.
	vector := []byte{105, 252, 0, 0, 0, 0, 0, 0}
	d := NewSPSSBytecode(100)
	out, consumed, err := d.Decompress(vector, 8, nil)
	if err != nil {
		t.Fatal(err)
	}
	if consumed != 8 {
		t.Fatalf("consumed = %d, want 8", consumed)
	}
	got := math.Float64frombits(binary.LittleEndian.Uint64(out))
	if got != 5 {
		t.Fatalf("decoded value = %v, want 5", got)
	}
}

func TestSPSSBytecodeRawCellAndSysmis(t *testing.T) {
	raw := make([]byte, 8)
	binary.LittleEndian.PutUint64(raw, math.Float64bits(3.5))
	vector := append([]byte{253, 255, 252, 0, 0, 0, 0, 0}, raw...)

	d := NewSPSSBytecode(100)
	out, consumed, err := d.Decompress(vector, 16, nil)
	if err != nil {
		t.Fatal(err)
	}
	if consumed != len(vector) {
		t.Fatalf("consumed = %d, want %d", consumed, len(vector))
	}
	first := math.Float64frombits(binary.LittleEndian.Uint64(out[0:8]))
	if first != 3.5 {
		t.Fatalf("first cell = %v, want 3.5", first)
	}
	second := math.Float64frombits(binary.LittleEndian.Uint64(out[8:16]))
	if second != -math.MaxFloat64 {
		t.Fatalf("second cell = %v, want sysmis", second)
	}
}
