// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package compress

import (
	"bytes"
	"testing"
)

func TestRLECopyLiteral(t *testing.T) {
	// 0x82 -> copy low+1 == 3 literal bytes.
	input := []byte{0x82, 'a', 'b', 'c'}
	out, consumed, err := NewRLE().Decompress(input, 3, nil)
	if err != nil {
		t.Fatal(err)
	}
	if consumed != len(input) {
		t.Fatalf("consumed = %d, want %d", consumed, len(input))
	}
	if !bytes.Equal(out, []byte("abc")) {
		t.Fatalf("out = %q, want %q", out, "abc")
	}
}

func TestRLEInsertSpacesAndZeros(t *testing.T) {
	// 0xE1 -> insert low+2 == 3 spaces. 0xF0 -> insert low+2 == 2 zeros.
	input := []byte{0xE1, 0xF0}
	out, consumed, err := NewRLE().Decompress(input, 5, nil)
	if err != nil {
		t.Fatal(err)
	}
	if consumed != len(input) {
		t.Fatalf("consumed = %d, want %d", consumed, len(input))
	}
	want := []byte("   \x00\x00")
	if !bytes.Equal(out, want) {
		t.Fatalf("out = %q, want %q", out, want)
	}
}

func TestRLEShortOutputIsAnError(t *testing.T) {
	input := []byte{0x80} // copy 1 literal byte, but no payload byte follows.
	if _, _, err := NewRLE().Decompress(input, 1, nil); err == nil {
		t.Fatal("expected an error for a truncated copy command")
	}
}
