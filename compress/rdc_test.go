// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package compress

import (
	"bytes"
	"testing"
)

func TestRDCLiteralBytes(t *testing.T) {
	// Control word 0x0000: every one of the next 16 token slots is a
	// literal byte; only three are consumed before expectedOutputSize.
	input := []byte{0x00, 0x00, 'x', 'y', 'z'}
	out, consumed, err := NewRDC().Decompress(input, 3, nil)
	if err != nil {
		t.Fatal(err)
	}
	if consumed != len(input) {
		t.Fatalf("consumed = %d, want %d", consumed, len(input))
	}
	if !bytes.Equal(out, []byte("xyz")) {
		t.Fatalf("out = %q, want %q", out, "xyz")
	}
}

func TestRDCShortRun(t *testing.T) {
	// Control word 0x8000: the first token is a command. cmdByte 0x00
	// selects sub-command 0 (short run) with arg=0, so the following pad
	// byte repeats arg+3 == 3 times.
	input := []byte{0x80, 0x00, 0x00, 'Z'}
	out, consumed, err := NewRDC().Decompress(input, 3, nil)
	if err != nil {
		t.Fatal(err)
	}
	if consumed != len(input) {
		t.Fatalf("consumed = %d, want %d", consumed, len(input))
	}
	if !bytes.Equal(out, []byte("ZZZ")) {
		t.Fatalf("out = %q, want %q", out, "ZZZ")
	}
}
