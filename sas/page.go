// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sas

import (
	"encoding/binary"

	"github.com/solidcoredata/statread/schema"
)

// Page type codes, as laid out in the page header's type field.
const (
	pageTypeMeta uint16 = 0x0000
	pageTypeData uint16 = 0x0100
	pageTypeMix  uint16 = 0x0200
	pageTypeAMD  uint16 = 0x0400
	pageTypeComp uint16 = 0x9000
)

// subheaderPointerLength is the size of one entry in a page's subheader
// pointer table; it widens in the 64-bit layout exactly like every other
// offset/length field.
func subheaderPointerLength(is64Bit bool) int {
	if is64Bit {
		return 24
	}
	return 12
}

// pageHeaderOffset is where the fixed page-type/block-count/subheader-count
// triad begins within a page; it follows a small unused preamble that also
// widens under the 64-bit layout.
func pageHeaderOffset(is64Bit bool) int {
	if is64Bit {
		return 32
	}
	return 16
}

type subheaderPointer struct {
	offset      int64
	length      int64
	compression byte
	sigType     byte
}

// subheader signature values: row-size, column-size, column-text,
// column-name, column-attribute, column-format-label, data.
const (
	sigRowSize          uint32 = 0xF7F7F7F7
	sigColumnSize       uint32 = 0xF6F6F6F6
	sigColumnText       uint32 = 0xFFFFFFFD
	sigColumnName       uint32 = 0xFFFFFFFF
	sigColumnAttribute  uint32 = 0xFFFFFFFC
	sigColumnFormatLabel uint32 = 0xFFFFFFFE
	sigSubheaderCounts  uint32 = 0xFFFFFC00
)

// pageInfo is one parsed page: its type, subheader pointers, and (for
// mix/data pages) the offset of the first data row.
type pageInfo struct {
	offset     int64
	pageType   uint16
	blockCount int
	subCount   int
	pointers   []subheaderPointer
	dataOffset int64 // valid for data and mix pages.
}

func bo(h *header) binary.ByteOrder {
	if h.byteOrder.IsBig() {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

func parsePage(raw []byte, pageOffset int64, h *header, rowLength int) (*pageInfo, error) {
	order := bo(h)
	phOff := pageHeaderOffset(h.is64Bit)
	if int(pageOffset)+phOff+6 > len(raw) {
		return nil, wrap(schema.HeaderTruncated, "page header runs past end of file")
	}
	base := raw[pageOffset:]
	pt := order.Uint16(base[phOff : phOff+2])
	blockCount := int(order.Uint16(base[phOff+2 : phOff+4]))
	subCount := int(order.Uint16(base[phOff+4 : phOff+6]))

	pi := &pageInfo{offset: pageOffset, pageType: pt & 0x0F00, blockCount: blockCount, subCount: subCount}
	switch {
	case pt&pageTypeComp == pageTypeComp:
		pi.pageType = pageTypeComp
	case pt&pageTypeAMD == pageTypeAMD:
		pi.pageType = pageTypeAMD
	case pt&pageTypeMix == pageTypeMix:
		pi.pageType = pageTypeMix
	case pt&pageTypeData == pageTypeData:
		pi.pageType = pageTypeData
	default:
		pi.pageType = pageTypeMeta
	}

	ptrLen := subheaderPointerLength(h.is64Bit)
	ptrTableOff := phOff + 8
	for i := 0; i < subCount; i++ {
		entryOff := int(pageOffset) + ptrTableOff + i*ptrLen
		if entryOff+ptrLen > len(raw) {
			return nil, wrap(schema.HeaderTruncated, "subheader pointer table runs past end of file")
		}
		entry := raw[entryOff : entryOff+ptrLen]
		var off, length int64
		var compression, sigType byte
		if h.is64Bit {
			off = int64(order.Uint64(entry[0:8]))
			length = int64(order.Uint64(entry[8:16]))
			compression = entry[16]
			sigType = entry[17]
		} else {
			off = int64(order.Uint32(entry[0:4]))
			length = int64(order.Uint32(entry[4:8]))
			compression = entry[8]
			sigType = entry[9]
		}
		pi.pointers = append(pi.pointers, subheaderPointer{offset: off, length: length, compression: compression, sigType: sigType})
	}

	if pi.pageType == pageTypeMix || pi.pageType == pageTypeData {
		dataOff, err := mixPageDataOffset(pageOffset, ptrTableOff, ptrLen, subCount, rowLength, h)
		if err != nil {
			return nil, err
		}
		pi.dataOffset = dataOff
	}

	return pi, nil
}

// mixPageDataOffset computes the first data-row offset on a mix (or pure
// data) page. After the subheader pointer table ends, advance to the
// smallest offset >= current that is congruent to the row-stride alignment
// modulus. Getting this wrong by even one byte desyncs every row after it,
// so it is the single most error-prone part of this reader.
func mixPageDataOffset(pageOffset int64, ptrTableOff, ptrLen, subCount, rowLength int, h *header) (int64, error) {
	if rowLength <= 0 {
		return 0, wrap(schema.SchemaInconsistency, "row length must be known before computing mix-page alignment")
	}
	subheaderEnd := pageOffset + int64(ptrTableOff+subCount*ptrLen)

	// The alignment modulus is the row stride's own alignment unit: 8 bytes
	// under the 64-bit layout (rows are built from 8-byte-aligned fields),
	// 4 bytes otherwise.
	modulus := int64(4)
	if h.is64Bit {
		modulus = 8
	}

	aligned := subheaderEnd
	if rem := aligned % modulus; rem != 0 {
		aligned += modulus - rem
	}
	return aligned, nil
}
