// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package compress

import "github.com/solidcoredata/statread/schema"

// RDC implements SAS's Ross Data Compression scheme
// (schema.CompressionRdc): a 16-bit control word gates groups of 16 tokens,
// one control bit per token (0 = literal byte, 1 = command). A command
// byte's top two bits select among four sub-commands: a short run of a
// single repeated byte, a longer run with an extra length byte, a short
// back-reference copy, and a long back-reference copy. Distances are
// measured from the current output position into the output buffer itself
// (the "sliding window" is simply what has already been written).
type RDC struct{}

func NewRDC() *RDC { return &RDC{} }

func (RDC) Decompress(input []byte, expectedOutputSize int, out []byte) ([]byte, int, error) {
	out = growTo(out, expectedOutputSize)
	ipos, rpos := 0, 0
	var ctrlBits uint16
	var ctrlMask uint16

	readU8 := func() (byte, bool) {
		if ipos >= len(input) {
			return 0, false
		}
		b := input[ipos]
		ipos++
		return b, true
	}

	for rpos < expectedOutputSize {
		if ctrlMask == 0 {
			hi, ok1 := readU8()
			lo, ok2 := readU8()
			if !ok1 || !ok2 {
				return nil, 0, &schema.DecompressionError{Expected: expectedOutputSize, Actual: rpos}
			}
			ctrlBits = uint16(hi)<<8 | uint16(lo)
			ctrlMask = 0x8000
		}

		isCommand := ctrlBits&ctrlMask != 0
		ctrlMask >>= 1

		if !isCommand {
			b, ok := readU8()
			if !ok {
				return nil, 0, &schema.DecompressionError{Expected: expectedOutputSize, Actual: rpos}
			}
			out[rpos] = b
			rpos++
			continue
		}

		cmdByte, ok := readU8()
		if !ok {
			return nil, 0, &schema.DecompressionError{Expected: expectedOutputSize, Actual: rpos}
		}
		sub := (cmdByte >> 6) & 0x03
		arg := int(cmdByte & 0x3F)

		switch sub {
		case 0: // short run: repeat the next literal byte arg+3 times.
			pad, ok := readU8()
			if !ok {
				return nil, 0, &schema.InvalidRdcCommand{Byte: cmdByte}
			}
			n := arg + 3
			if rpos+n > expectedOutputSize {
				return nil, 0, &schema.InvalidRdcCommand{Byte: cmdByte}
			}
			fillByte(out[rpos:rpos+n], pad)
			rpos += n
		case 1: // extended run: length gains an extra byte of range.
			ext, ok := readU8()
			pad, ok2 := readU8()
			if !ok || !ok2 {
				return nil, 0, &schema.InvalidRdcCommand{Byte: cmdByte}
			}
			n := arg<<8 | int(ext)
			n += 67
			if rpos+n > expectedOutputSize {
				return nil, 0, &schema.InvalidRdcCommand{Byte: cmdByte}
			}
			fillByte(out[rpos:rpos+n], pad)
			rpos += n
		case 2: // short back-reference: distance from low 6 bits, length in next byte.
			distLow, ok := readU8()
			if !ok {
				return nil, 0, &schema.InvalidRdcCommand{Byte: cmdByte}
			}
			dist := arg<<8 | int(distLow)
			dist++
			lenByte, ok2 := readU8()
			if !ok2 {
				return nil, 0, &schema.InvalidRdcCommand{Byte: cmdByte}
			}
			n := int(lenByte) + 3
			if dist > rpos || rpos+n > expectedOutputSize {
				return nil, 0, &schema.InvalidRdcCommand{Byte: cmdByte}
			}
			copyBackref(out, rpos, dist, n)
			rpos += n
		case 3: // long back-reference: distance and length both gain an extra byte.
			distHi, ok := readU8()
			distLo, ok2 := readU8()
			lenByte, ok3 := readU8()
			if !ok || !ok2 || !ok3 {
				return nil, 0, &schema.InvalidRdcCommand{Byte: cmdByte}
			}
			dist := arg<<16 | int(distHi)<<8 | int(distLo)
			dist++
			n := int(lenByte) + 19
			if dist > rpos || rpos+n > expectedOutputSize {
				return nil, 0, &schema.InvalidRdcCommand{Byte: cmdByte}
			}
			copyBackref(out, rpos, dist, n)
			rpos += n
		}
	}

	if rpos != expectedOutputSize {
		return nil, 0, &schema.DecompressionError{Expected: expectedOutputSize, Actual: rpos}
	}
	return out, ipos, nil
}

// copyBackref copies n bytes from dist bytes behind the current write
// position into out[rpos:], byte by byte so overlapping (run-length style)
// references work correctly, matching the "distance measured from current
// output position" rule.
func copyBackref(out []byte, rpos, dist, n int) {
	src := rpos - dist
	for i := 0; i < n; i++ {
		out[rpos+i] = out[src+i]
	}
}
