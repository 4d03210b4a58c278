// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package compress implements the three page/record decompression schemes:
// SAS RLE, SAS RDC, and the SPSS bytecode scheme. Each transforms one
// compressed page or record into a fixed-size plaintext buffer; none
// allocate per row, reusing the output buffer sized to the page instead.
package compress

import "github.com/solidcoredata/statread/schema"

// Decompressor is the shared contract every scheme implements.
type Decompressor interface {
	// Decompress transforms a prefix of input into a buffer of exactly
	// expectedOutputSize bytes, reusing out when it has sufficient
	// capacity, and reports how many input bytes that prefix consumed so
	// a caller can decode consecutive compressed rows out of one page
	// buffer. Returns *schema.DecompressionError if the produced length
	// does not match expectedOutputSize before input is exhausted.
	Decompress(input []byte, expectedOutputSize int, out []byte) (result []byte, consumed int, err error)
}

// New builds the Decompressor for a given scheme. CompressionNone returns a
// passthrough that copies input into out.
func New(kind schema.Compression) Decompressor {
	switch kind {
	case schema.CompressionRle:
		return NewRLE()
	case schema.CompressionRdc:
		return NewRDC()
	case schema.CompressionSPSSBytecode:
		return NewSPSSBytecode(100.0)
	default:
		return passthrough{}
	}
}

type passthrough struct{}

func (passthrough) Decompress(input []byte, expectedOutputSize int, out []byte) ([]byte, int, error) {
	if len(input) < expectedOutputSize {
		return nil, 0, &schema.DecompressionError{Expected: expectedOutputSize, Actual: len(input)}
	}
	out = growTo(out, expectedOutputSize)
	copy(out, input[:expectedOutputSize])
	return out, expectedOutputSize, nil
}

// growTo returns a slice with length n, reusing buf's backing array when it
// has enough capacity.
func growTo(buf []byte, n int) []byte {
	if cap(buf) >= n {
		return buf[:n]
	}
	return make([]byte, n)
}
