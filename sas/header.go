// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sas

import (
	"bytes"
	"encoding/binary"

	"github.com/solidcoredata/statread/cursor"
	"github.com/solidcoredata/statread/schema"
	"github.com/solidcoredata/statread/textdecode"
)

// magic is the fixed 32-byte SAS7BDAT file signature every file starts
// with, regardless of bitness or byte order.
var magic = []byte{
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0xc2, 0xea, 0x81, 0x60,
	0xb3, 0x14, 0x11, 0xcf, 0xbd, 0x92, 0x08, 0x00,
	0x09, 0xc7, 0x31, 0x8c, 0x18, 0x1f, 0x10, 0x11,
}

// Probe reports whether data begins with the SAS7BDAT magic.
func Probe(data []byte) bool {
	return len(data) >= len(magic) && bytes.Equal(data[:len(magic)], magic)
}

// header holds the fixed fields of a SAS7BDAT file header.
type header struct {
	is64Bit      bool // alignment bits select 32-bit vs 64-bit widths.
	align1       int
	align2       int
	byteOrder    cursor.Endian
	platform     byte
	encodingCode byte
	pageSize     int
	pageCount    int
	headerLength int
	rowCount     int64
	rowLength    int
	colCount     int64
	creatorProc  string
	compression  schema.Compression
}

// compressionTag maps the fixed-width string SAS stores to name its page
// compression scheme to the shared Compression enum. Files with no
// compression store this field as spaces/NULs.
func compressionTag(tag string) schema.Compression {
	switch tag {
	case "SASYZCRL":
		return schema.CompressionRle
	case "SASYZCR2":
		return schema.CompressionRdc
	default:
		return schema.CompressionNone
	}
}

const (
	offsetAlign1   = 32
	offsetAlign2   = 35
	offsetEndian   = 37
	offsetPlatform = 39
	offsetEncoding = 70
)

func parseHeader(c cursor.Cursor) (*header, error) {
	raw, err := c.ReadBytes(int(c.Len()))
	if err != nil {
		return nil, err
	}
	if len(raw) < 288 {
		return nil, wrap(schema.HeaderTruncated, "file shorter than the declared SAS7BDAT header")
	}
	if !Probe(raw) {
		return nil, wrap(schema.ProbeMismatch, "SAS7BDAT magic not found")
	}

	h := &header{}
	if raw[offsetAlign1] == 0x33 {
		h.align1 = 4
	}
	if raw[offsetAlign2] == 0x33 {
		h.align2 = 4
		h.is64Bit = true
	}
	if raw[offsetEndian] == 0x01 {
		h.byteOrder = cursor.LittleEndian
	} else {
		h.byteOrder = cursor.BigEndian
	}
	h.platform = raw[offsetPlatform]
	h.encodingCode = raw[offsetEncoding]

	// Fields after the fixed prefix shift by align1+align2 bytes because
	// earlier variable-width fields (timestamps) widen in the 64-bit
	// layout: the two alignment bits select 32-bit vs 64-bit integer widths
	// for everything that follows.
	base := 164 + h.align1 + h.align2

	bo := binary.ByteOrder(binary.LittleEndian)
	if h.byteOrder == cursor.BigEndian {
		bo = binary.BigEndian
	}
	readU32At := func(off int) uint32 { return bo.Uint32(raw[off : off+4]) }
	readU64At := func(off int) uint64 { return bo.Uint64(raw[off : off+8]) }

	if h.is64Bit {
		h.headerLength = int(readU32At(base + 4))
		h.pageSize = int(readU32At(base + 8))
		h.pageCount = int(readU64At(base + 12))
	} else {
		h.headerLength = int(readU32At(base))
		h.pageSize = int(readU32At(base + 4))
		h.pageCount = int(readU32At(base + 8))
	}

	if h.headerLength <= 0 || h.pageSize <= 0 || h.pageCount < 0 {
		return nil, wrap(schema.SchemaInconsistency, "SAS7BDAT header declares a non-positive header length or page size")
	}

	creatorOff := base + 48
	if creatorOff+16 <= len(raw) {
		dec := textdecode.ByTag(textdecode.SASCodePage(h.encodingCode))
		name, _ := dec.Decode(raw[creatorOff : creatorOff+16])
		h.creatorProc = name
	}

	compOff := base + 32
	if compOff+8 <= len(raw) {
		h.compression = compressionTag(trimNulSpace(raw[compOff : compOff+8]))
	}

	return h, nil
}

func trimNulSpace(b []byte) string {
	end := len(b)
	for end > 0 && (b[end-1] == 0 || b[end-1] == ' ') {
		end--
	}
	return string(b[:end])
}
