// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stata

import "testing"

func TestFloatTag(t *testing.T) {
	if _, ok := floatTag(0); ok {
		t.Fatal("floatTag(0) reported a tag")
	}
	tag, ok := floatTag(floatMissingBase)
	if !ok || tag != 0 {
		t.Fatalf("floatTag(floatMissingBase) = (%d, %v), want (0, true)", tag, ok)
	}
	tag, ok = floatTag(floatMissingBase + 5*floatMissingStep)
	if !ok || tag != 5 {
		t.Fatalf("floatTag(+5 steps) = (%d, %v), want (5, true)", tag, ok)
	}
	if _, ok := floatTag(floatMissingBase + 1); ok {
		t.Fatal("floatTag reported a tag for a value not aligned to the step")
	}
}

func TestDoubleTag(t *testing.T) {
	if _, ok := doubleTag(0); ok {
		t.Fatal("doubleTag(0) reported a tag")
	}
	tag, ok := doubleTag(doubleMissingBase + 3*doubleMissingStep)
	if !ok || tag != 3 {
		t.Fatalf("doubleTag(+3 steps) = (%d, %v), want (3, true)", tag, ok)
	}
}

func TestChooseRelease(t *testing.T) {
	if got := chooseRelease(10); got != 118 {
		t.Fatalf("chooseRelease(10) = %d, want 118", got)
	}
	if got := chooseRelease(40000); got != 119 {
		t.Fatalf("chooseRelease(40000) = %d, want 119", got)
	}
}
