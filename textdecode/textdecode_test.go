// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package textdecode

import "testing"

func TestDecodeUTF8(t *testing.T) {
	d := ByTag("UTF-8")
	got, replaced := d.Decode([]byte("caf\xc3\xa9"))
	if got != "café" {
		t.Fatalf("Decode = %q, want %q", got, "café")
	}
	if replaced {
		t.Fatal("replaced = true for valid UTF-8 input")
	}
}

func TestDecodeTruncatesAtNul(t *testing.T) {
	d := ByTag("WINDOWS-1252")
	got, _ := d.Decode([]byte("abc\x00def"))
	if got != "abc" {
		t.Fatalf("Decode = %q, want %q", got, "abc")
	}
}

func TestByTagUnknownFallsBackToWindows1252(t *testing.T) {
	d := ByTag("not-a-real-codepage")
	if d.Name() != "windows-1252" {
		t.Fatalf("Name() = %q, want windows-1252", d.Name())
	}
}

func TestSASCodePageMapping(t *testing.T) {
	cases := map[byte]string{
		0:  "",
		20: "UTF-8",
		29: "WINDOWS-1252",
	}
	for code, want := range cases {
		if got := SASCodePage(code); got != want {
			t.Fatalf("SASCodePage(%d) = %q, want %q", code, got, want)
		}
	}
}
