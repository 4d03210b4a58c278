// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package sas

import (
	"fmt"

	"github.com/solidcoredata/statread/cursor"
	"github.com/solidcoredata/statread/schema"
	"github.com/solidcoredata/statread/textdecode"
)

// textRef names a (subheader index, offset, length) triple used to resolve
// column names/labels/formats against the shared column-text string pool:
// column-text subheaders hold a pool that every later name/label/format
// reference points into by (subheader index, offset, length).
type textRef struct {
	subheaderIndex int
	offset         int
	length         int
}

type rawColumnName struct {
	ref textRef
}

type rawColumnAttribute struct {
	offset int64
	width  int64
	isChar bool
}

type rawColumnFormatLabel struct {
	formatRef textRef
	labelRef  textRef
}

// Metadata is the parsed, intermediate representation before it is
// resolved into a schema.Schema; ParseMetadata returns the resolved form.
type Metadata struct {
	Schema  *schema.Schema
	Layout  *schema.PhysicalLayout
	Warning []string
	// ColumnOffset[i] is the byte offset of column i within one physical
	// row, resolved from the column-attribute subheaders.
	ColumnOffset []int64
}

// ParseMetadata implements C4.1's contract: read the file's header, page
// directory, and dictionary subheaders only, never a data page's row
// bytes, and reconstruct a unified Schema and PhysicalLayout.
func ParseMetadata(raw []byte) (*Metadata, error) {
	h, err := parseHeader(cursor.NewBuffered(raw))
	if err != nil {
		return nil, err
	}

	compression := h.compression
	var (
		textBlocks  [][]byte
		names       []rawColumnName
		attrs       []rawColumnAttribute
		formatLabel []rawColumnFormatLabel
		rowLength   int
		rowCount    int64
		colCount    int64
		pages       []schema.SASPageHeader
	)

	pageOffset := int64(h.headerLength)
	for pageIdx := 0; pageIdx < h.pageCount; pageIdx++ {
		if int(pageOffset)+h.pageSize > len(raw) {
			break
		}
		pi, err := parsePage(raw, pageOffset, h, rowLength)
		if err != nil {
			return nil, err
		}

		if pi.pageType == pageTypeMeta || pi.pageType == pageTypeMix || pi.pageType == pageTypeAMD {
			for _, ptr := range pi.pointers {
				if ptr.length == 0 {
					continue
				}
				start := ptr.offset
				end := ptr.offset + ptr.length
				if end > int64(len(raw)) || start < 0 {
					continue
				}
				body := raw[start:end]
				if len(body) < 4 {
					continue
				}
				sig := bo(h).Uint32(body[0:4])
				switch sig {
				case sigRowSize:
					rowLength, rowCount = parseRowSizeSubheader(body, h)
				case sigColumnSize:
					colCount = parseColumnSizeSubheader(body, h)
				case sigColumnText:
					textBlocks = append(textBlocks, body)
				case sigColumnName:
					names = append(names, parseColumnNameSubheader(body, h)...)
				case sigColumnAttribute:
					attrs = append(attrs, parseColumnAttributeSubheader(body, h)...)
				case sigColumnFormatLabel:
					formatLabel = append(formatLabel, parseColumnFormatLabelSubheader(body, h))
				default:
					// Unrecognized subheader signatures (amd/compression
					// info/etc.) are skipped: metadata parsing only needs
					// the handful of signatures handled above.
				}
			}
		}

		pages = append(pages, schema.SASPageHeader{
			Offset:         pageOffset,
			Type:           sasPageTypeToSchema(pi.pageType),
			DataOffset:     pi.dataOffset,
			SubheaderPtr:   0,
			BlockCount:     pi.blockCount,
			SubheaderCount: pi.subCount,
		})

		pageOffset += int64(h.pageSize)
	}

	if rowLength <= 0 || colCount <= 0 {
		return nil, wrap(schema.SchemaInconsistency, "SAS7BDAT metadata did not resolve a row-size or column-size subheader")
	}

	resolveText := func(ref textRef) string {
		if ref.subheaderIndex < 0 || ref.subheaderIndex >= len(textBlocks) {
			return ""
		}
		block := textBlocks[ref.subheaderIndex]
		start := headerTextBlockPrefix(h) + ref.offset
		end := start + ref.length
		if start < 0 || end > len(block) {
			return ""
		}
		dec := textdecode.ByTag(textdecode.SASCodePage(h.encodingCode))
		s, _ := dec.Decode(block[start:end])
		return s
	}

	cols := make([]schema.ColumnDescriptor, 0, colCount)
	colOffsets := make([]int64, 0, colCount)
	for i := int64(0); i < colCount; i++ {
		var name string
		if int(i) < len(names) {
			name = resolveText(names[i].ref)
		}
		if name == "" {
			name = fmt.Sprintf("Column%d", i+1)
		}

		var width int64 = 8
		var offset int64
		isChar := false
		if int(i) < len(attrs) {
			width = attrs[i].width
			isChar = attrs[i].isChar
			offset = attrs[i].offset
		}
		colOffsets = append(colOffsets, offset)

		col := schema.ColumnDescriptor{
			Name: name,
			Encoding: schema.PhysicalEncoding{
				StorageWidth: int(width),
				Signed:       !isChar,
				ByteOrder:    sasByteOrder(h),
			},
		}
		if isChar {
			col.Type = schema.Utf8
			col.MaxUtf8Width = int(width)
		} else {
			col.Type = schema.Float64
		}
		if int(i) < len(formatLabel) {
			col.Format = resolveText(formatLabel[i].formatRef)
			col.Label = resolveText(formatLabel[i].labelRef)
			col.Type = refineTemporalType(col.Format, col.Type)
		}
		cols = append(cols, col)
	}

	deduped, renames := schema.Dedup(cols)
	sc := &schema.Schema{Columns: deduped, Renames: renames}

	layout := &schema.PhysicalLayout{
		RowStride:   rowLength,
		PageSize:    h.pageSize,
		PageCount:   h.pageCount,
		DataOffset:  int64(h.headerLength),
		RowCount:    rowCount,
		Compression: compression,
		ByteOrder:   sasByteOrder(h),
		CodePage:    textdecode.SASCodePage(h.encodingCode),
		SASPages:    pages,
	}

	return &Metadata{Schema: sc, Layout: layout, ColumnOffset: colOffsets}, nil
}

func sasPageTypeToSchema(t uint16) schema.PageType {
	switch t {
	case pageTypeData:
		return schema.PageData
	case pageTypeMix:
		return schema.PageMix
	case pageTypeAMD:
		return schema.PageAMD
	case pageTypeComp:
		return schema.PageComp
	default:
		return schema.PageMeta
	}
}

func sasByteOrder(h *header) schema.ByteOrder {
	if h.byteOrder.IsBig() {
		return schema.BigEndian
	}
	return schema.LittleEndian
}

// headerTextBlockPrefix is the number of bytes at the start of every
// column-text subheader body before the string pool begins (the subheader
// signature plus a small remaining-length field).
func headerTextBlockPrefix(h *header) int {
	if h.is64Bit {
		return 16
	}
	return 12
}

func parseRowSizeSubheader(body []byte, h *header) (rowLength int, rowCount int64) {
	order := bo(h)
	if h.is64Bit {
		if len(body) < 48 {
			return 0, 0
		}
		rowLength = int(order.Uint64(body[40:48]))
		if len(body) >= 56 {
			rowCount = int64(order.Uint64(body[48:56]))
		}
		return
	}
	if len(body) < 28 {
		return 0, 0
	}
	rowLength = int(order.Uint32(body[20:24]))
	if len(body) >= 32 {
		rowCount = int64(order.Uint32(body[24:28]))
	}
	return
}

func parseColumnSizeSubheader(body []byte, h *header) int64 {
	order := bo(h)
	if h.is64Bit {
		if len(body) < 12 {
			return 0
		}
		return int64(order.Uint64(body[4:12]))
	}
	if len(body) < 8 {
		return 0
	}
	return int64(order.Uint32(body[4:8]))
}

func parseColumnNameSubheader(body []byte, h *header) []rawColumnName {
	order := bo(h)
	prefix := headerTextBlockPrefix(h)
	entrySize := 8
	var out []rawColumnName
	for off := prefix; off+entrySize <= len(body); off += entrySize {
		sub := int(int16(order.Uint16(body[off : off+2])))
		textOffset := int(order.Uint16(body[off+2 : off+4]))
		length := int(order.Uint16(body[off+4 : off+6]))
		out = append(out, rawColumnName{ref: textRef{subheaderIndex: sub, offset: textOffset, length: length}})
	}
	return out
}

func parseColumnAttributeSubheader(body []byte, h *header) []rawColumnAttribute {
	order := bo(h)
	prefix := headerTextBlockPrefix(h)
	entrySize := 16
	if h.is64Bit {
		entrySize = 16
	}
	var out []rawColumnAttribute
	for off := prefix; off+entrySize <= len(body); off += entrySize {
		var offsetVal, widthVal int64
		var typeByte byte
		if h.is64Bit {
			offsetVal = int64(order.Uint64(body[off : off+8]))
			widthVal = int64(order.Uint32(body[off+8 : off+12]))
			typeByte = body[off+14]
		} else {
			offsetVal = int64(order.Uint32(body[off : off+4]))
			widthVal = int64(order.Uint32(body[off+4 : off+8]))
			typeByte = body[off+10]
		}
		out = append(out, rawColumnAttribute{offset: offsetVal, width: widthVal, isChar: typeByte == 1})
	}
	return out
}

func parseColumnFormatLabelSubheader(body []byte, h *header) rawColumnFormatLabel {
	order := bo(h)
	prefix := headerTextBlockPrefix(h)
	if prefix+16 > len(body) {
		return rawColumnFormatLabel{}
	}
	formatSub := int(int16(order.Uint16(body[prefix+2 : prefix+4])))
	formatOff := int(order.Uint16(body[prefix+8 : prefix+10]))
	formatLen := int(order.Uint16(body[prefix+10 : prefix+12]))
	labelSub := int(int16(order.Uint16(body[prefix+4 : prefix+6])))
	labelOff := int(order.Uint16(body[prefix+12 : prefix+14]))
	labelLen := int(order.Uint16(body[prefix+14 : prefix+16]))
	return rawColumnFormatLabel{
		formatRef: textRef{subheaderIndex: formatSub, offset: formatOff, length: formatLen},
		labelRef:  textRef{subheaderIndex: labelSub, offset: labelOff, length: labelLen},
	}
}

// refineTemporalType upgrades a numeric column to Date/Datetime when its
// display format string names one of SAS's known date/datetime formats;
// the format string is what distinguishes a day count from a second count.
func refineTemporalType(format string, fallback schema.LogicalType) schema.LogicalType {
	switch format {
	case "DATE", "DATE9", "MMDDYY", "YYMMDD", "DDMMYY", "WEEKDATE", "JULIAN":
		return schema.Date
	case "DATETIME", "DATETIME19", "DATETIME20":
		return schema.Datetime
	case "TIME", "TIME5", "TIME8":
		return schema.Time
	default:
		return fallback
	}
}
