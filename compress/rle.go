// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package compress

import "github.com/solidcoredata/statread/schema"

// RLE implements SAS's page/row run-length scheme (schema.CompressionRle).
// Each control byte's high nibble selects a command; the low nibble (and
// sometimes a following byte) derives the repeat/copy length. The scheme
// distinguishes four command families: copy N literal bytes from the
// input, insert N copies of a literal byte, insert N spaces, and insert N
// zeros, plus a fixed '@' pad command SAS also emits.
type RLE struct{}

func NewRLE() *RLE { return &RLE{} }

func (RLE) Decompress(input []byte, expectedOutputSize int, out []byte) ([]byte, int, error) {
	out = growTo(out, expectedOutputSize)
	ipos, rpos := 0, 0

	need := func(n int) bool { return ipos+n <= len(input) }
	fits := func(n int) bool { return rpos+n <= expectedOutputSize }

	for ipos < len(input) {
		if rpos >= expectedOutputSize {
			break
		}
		control := input[ipos]
		cmd := control & 0xF0
		low := int(control & 0x0F)
		ipos++

		switch cmd {
		case 0x00: // copy (next byte + 64) literal bytes; low nibble must be 0
			if low != 0 || !need(1) {
				return nil, 0, &schema.InvalidRleCommand{Byte: control}
			}
			n := int(input[ipos]) + 64
			ipos++
			if !need(n) || !fits(n) {
				return nil, 0, &schema.InvalidRleCommand{Byte: control}
			}
			copy(out[rpos:rpos+n], input[ipos:ipos+n])
			ipos += n
			rpos += n
		case 0x40: // insert N copies of a literal byte, N = low*16 + next byte + 18
			if !need(2) {
				return nil, 0, &schema.InvalidRleCommand{Byte: control}
			}
			n := low*16 + int(input[ipos]) + 18
			ipos++
			pad := input[ipos]
			ipos++
			if !fits(n) {
				return nil, 0, &schema.InvalidRleCommand{Byte: control}
			}
			fillByte(out[rpos:rpos+n], pad)
			rpos += n
		case 0x60: // insert N spaces, N = low*256 + next byte + 17
			if !need(1) {
				return nil, 0, &schema.InvalidRleCommand{Byte: control}
			}
			n := low*256 + int(input[ipos]) + 17
			ipos++
			if !fits(n) {
				return nil, 0, &schema.InvalidRleCommand{Byte: control}
			}
			fillByte(out[rpos:rpos+n], ' ')
			rpos += n
		case 0x70: // insert N zeros, N = low*256 + next byte + 17
			if !need(1) {
				return nil, 0, &schema.InvalidRleCommand{Byte: control}
			}
			n := low*256 + int(input[ipos]) + 17
			ipos++
			if !fits(n) {
				return nil, 0, &schema.InvalidRleCommand{Byte: control}
			}
			fillByte(out[rpos:rpos+n], 0)
			rpos += n
		case 0x80: // copy low+1 literal bytes
			n := low + 1
			if !need(n) || !fits(n) {
				return nil, 0, &schema.InvalidRleCommand{Byte: control}
			}
			copy(out[rpos:rpos+n], input[ipos:ipos+n])
			ipos += n
			rpos += n
		case 0x90: // copy low+17 literal bytes
			n := low + 17
			if !need(n) || !fits(n) {
				return nil, 0, &schema.InvalidRleCommand{Byte: control}
			}
			copy(out[rpos:rpos+n], input[ipos:ipos+n])
			ipos += n
			rpos += n
		case 0xA0: // copy low+33 literal bytes
			n := low + 33
			if !need(n) || !fits(n) {
				return nil, 0, &schema.InvalidRleCommand{Byte: control}
			}
			copy(out[rpos:rpos+n], input[ipos:ipos+n])
			ipos += n
			rpos += n
		case 0xB0: // copy low+49 literal bytes
			n := low + 49
			if !need(n) || !fits(n) {
				return nil, 0, &schema.InvalidRleCommand{Byte: control}
			}
			copy(out[rpos:rpos+n], input[ipos:ipos+n])
			ipos += n
			rpos += n
		case 0xC0: // insert low+3 copies of a literal pad byte
			n := low + 3
			if !need(1) || !fits(n) {
				return nil, 0, &schema.InvalidRleCommand{Byte: control}
			}
			pad := input[ipos]
			ipos++
			fillByte(out[rpos:rpos+n], pad)
			rpos += n
		case 0xD0: // insert low+2 copies of a fixed pad character ('@')
			n := low + 2
			if !fits(n) {
				return nil, 0, &schema.InvalidRleCommand{Byte: control}
			}
			fillByte(out[rpos:rpos+n], '@')
			rpos += n
		case 0xE0: // insert low+2 spaces
			n := low + 2
			if !fits(n) {
				return nil, 0, &schema.InvalidRleCommand{Byte: control}
			}
			fillByte(out[rpos:rpos+n], ' ')
			rpos += n
		case 0xF0: // insert low+2 zeros
			n := low + 2
			if !fits(n) {
				return nil, 0, &schema.InvalidRleCommand{Byte: control}
			}
			fillByte(out[rpos:rpos+n], 0)
			rpos += n
		default:
			return nil, 0, &schema.InvalidRleCommand{Byte: control}
		}
	}

	if rpos != expectedOutputSize {
		return nil, 0, &schema.DecompressionError{Expected: expectedOutputSize, Actual: rpos}
	}
	return out, ipos, nil
}

func fillByte(b []byte, v byte) {
	for i := range b {
		b[i] = v
	}
}
