// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sas

import (
	"math"
	"testing"
)

func TestTaggedMissing(t *testing.T) {
	if _, ok := taggedMissing(math.Float64bits(1.5)); ok {
		t.Fatal("taggedMissing reported a tag for an ordinary value")
	}

	plain := uint64(0x7FF8000000000000) // quiet NaN, payload byte 0: plain '.'.
	tag, ok := taggedMissing(plain)
	if !ok || tag != 0 {
		t.Fatalf("taggedMissing(plain) = (%d, %v), want (0, true)", tag, ok)
	}
	if got := tagLabel(tag); got != "." {
		t.Fatalf("tagLabel(0) = %q, want %q", got, ".")
	}

	aTag := plain | (uint64(1) << 44)
	tag, ok = taggedMissing(aTag)
	if !ok || tag != 1 {
		t.Fatalf("taggedMissing('.A') = (%d, %v), want (1, true)", tag, ok)
	}
	if got := tagLabel(tag); got != ".A" {
		t.Fatalf("tagLabel(1) = %q, want %q", got, ".A")
	}

	underscore := plain | (uint64(27) << 44)
	tag, ok = taggedMissing(underscore)
	if !ok || tag != 27 {
		t.Fatalf("taggedMissing('._') = (%d, %v), want (27, true)", tag, ok)
	}
	if got := tagLabel(tag); got != "._" {
		t.Fatalf("tagLabel(27) = %q, want %q", got, "._")
	}
}
