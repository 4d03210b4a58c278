// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sas

import "math"

// taggedMissing decodes a SAS special-missing value from a raw IEEE double.
// SAS represents '.' and '.A'..'.Z' and '._' as quiet NaNs whose mantissa
// bits 50-44 (just below the quiet bit 51) carry the tag: 0 = '.',
// 1-26 = 'A'-'Z', 27 = '_'. Any other NaN bit pattern, or a non-NaN value,
// is not a tagged missing.
func taggedMissing(bits uint64) (tag byte, ok bool) {
	v := math.Float64frombits(bits)
	if !math.IsNaN(v) {
		return 0, false
	}
	payload := byte((bits >> 44) & 0x7F)
	if payload <= 27 {
		return payload, true
	}
	return 0, false
}

// tagLabel renders a tag byte as the conventional SAS display, e.g. ".A".
func tagLabel(tag byte) string {
	switch {
	case tag == 0:
		return "."
	case tag == 27:
		return "._"
	case tag >= 1 && tag <= 26:
		return "." + string(rune('A'+tag-1))
	default:
		return "."
	}
}
