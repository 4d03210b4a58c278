// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package compress

import (
	"encoding/binary"
	"math"

	"github.com/solidcoredata/statread/schema"
)

// SPSSBytecode implements the SPSS record compression scheme
// (schema.CompressionSPSSBytecode). Each compressed record begins with an
// 8-byte command vector; every command byte in it drives the production of
// one 8-byte output cell, except 0 (padding) which produces nothing and 252
// which terminates the stream. 253 takes its cell from one extra raw 8-byte
// cell in the input.
type SPSSBytecode struct {
	bias float64
}

// NewSPSSBytecode constructs a decompressor using the compression bias
// recorded in the file's record-type-7 subtype-3 extension. The
// conventional SPSS default is 100.
func NewSPSSBytecode(bias float64) *SPSSBytecode {
	return &SPSSBytecode{bias: bias}
}

const spssCellSize = 8

// Decompress consumes one or more 8-byte-command-vector records from input
// until expectedOutputSize bytes have been produced or a command-252
// terminator is seen. A 252 encountered before expectedOutputSize is
// reached is a format error: it means fewer bytes were produced than the
// caller expected before the stream terminated.
func (d *SPSSBytecode) Decompress(input []byte, expectedOutputSize int, out []byte) ([]byte, int, error) {
	out = growTo(out, expectedOutputSize)
	ipos, rpos := 0, 0

	for rpos < expectedOutputSize {
		if ipos+8 > len(input) {
			return nil, 0, &schema.DecompressionError{Expected: expectedOutputSize, Actual: rpos}
		}
		vector := input[ipos : ipos+8]
		ipos += 8

		for _, cmd := range vector {
			if rpos >= expectedOutputSize {
				break
			}
			switch {
			case cmd == 0: // skip: no output produced for this slot.
				continue
			case cmd >= 1 && cmd <= 251:
				v := float64(cmd) - d.bias
				binary.LittleEndian.PutUint64(out[rpos:rpos+8], math.Float64bits(v))
				rpos += 8
			case cmd == 252: // end of stream.
				if rpos != expectedOutputSize {
					return nil, 0, &schema.DecompressionError{Expected: expectedOutputSize, Actual: rpos}
				}
				return out, ipos, nil
			case cmd == 253: // raw 8-byte cell follows in the input stream.
				if ipos+8 > len(input) {
					return nil, 0, &schema.DecompressionError{Expected: expectedOutputSize, Actual: rpos}
				}
				copy(out[rpos:rpos+8], input[ipos:ipos+8])
				ipos += 8
				rpos += 8
			case cmd == 254: // all-spaces string cell.
				fillByte(out[rpos:rpos+8], ' ')
				rpos += 8
			case cmd == 255: // system-missing.
				binary.LittleEndian.PutUint64(out[rpos:rpos+8], math.Float64bits(systemMissingBits()))
				rpos += 8
			}
		}
	}

	if rpos != expectedOutputSize {
		return nil, 0, &schema.DecompressionError{Expected: expectedOutputSize, Actual: rpos}
	}
	return out, ipos, nil
}

// systemMissingBits returns SPSS's conventional system-missing sentinel,
// -DBL_MAX, used when the file's own record-type-7 subtype-4 value is not
// available to the decompressor (the row decoder substitutes the file's
// declared value when present; this is only the compression-layer default).
func systemMissingBits() float64 {
	return -math.MaxFloat64
}
