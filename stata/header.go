// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package stata

import (
	"bytes"
	"encoding/binary"
	"strings"

	"github.com/solidcoredata/statread/schema"
	"github.com/solidcoredata/statread/textdecode"
)

var openTag = []byte("<stata_dta>")

// Probe reports whether data begins with the fixed Stata 117+ XML-tag
// prologue.
func Probe(data []byte) bool {
	return len(data) >= len(openTag) && bytes.Equal(data[:len(openTag)], openTag)
}

// Stata variable type codes.
const (
	typeFloat  uint16 = 65527
	typeDouble uint16 = 65526
	typeByte   uint16 = 65528
	typeInt    uint16 = 65529
	typeLong   uint16 = 65530
	typeStrL   uint16 = 32768
)

// releaseWidths is the field-width table keyed by release.
type releaseWidths struct {
	kWidth     int
	nWidth     int
	nameWidth  int
	labelWidth int
	fmtWidth   int
}

func widthsFor(release int) releaseWidths {
	switch {
	case release >= 119:
		return releaseWidths{kWidth: 4, nWidth: 8, nameWidth: 129, labelWidth: 321, fmtWidth: 57}
	case release >= 118:
		return releaseWidths{kWidth: 2, nWidth: 8, nameWidth: 129, labelWidth: 321, fmtWidth: 57}
	default:
		return releaseWidths{kWidth: 2, nWidth: 4, nameWidth: 33, labelWidth: 81, fmtWidth: 49}
	}
}

// section names a tag's content range, exclusive of the `<tag>`/`</tag>`
// markers.
type section struct {
	start, end int
}

func (s section) bytesOf(raw []byte) []byte { return raw[s.start:s.end] }

// findSection locates the next occurrence of <tag>...</tag> at or after
// from, returning its content range and the position just past the closing
// tag (so callers can chain through the file's fixed section order).
func findSection(raw []byte, tag string, from int) (section, int, bool) {
	open := "<" + tag + ">"
	closeTag := "</" + tag + ">"
	oi := bytes.Index(raw[from:], []byte(open))
	if oi < 0 {
		return section{}, from, false
	}
	contentStart := from + oi + len(open)
	ci := bytes.Index(raw[contentStart:], []byte(closeTag))
	if ci < 0 {
		return section{}, from, false
	}
	contentEnd := contentStart + ci
	return section{start: contentStart, end: contentEnd}, contentEnd + len(closeTag), true
}

// Metadata is the resolved Stata schema plus the StrL lookup table that the
// row decoder consults lazily.
type Metadata struct {
	Schema   *schema.Schema
	Layout   *schema.PhysicalLayout
	VarTypes []uint16

	// valueLabels maps a named value-label table to its resolved contents.
	valueLabels map[string]*schema.ValueLabelTable
}

// ParseMetadata implements C4.2's contract over a Stata 117/118/119 file:
// read every tagged section up to <data>, resolve variable types/names/
// labels/formats, and record (but never dereference) the StrL offset table.
func ParseMetadata(raw []byte) (*Metadata, error) {
	if !Probe(raw) {
		return nil, wrap(schema.ProbeMismatch, "Stata <stata_dta> prologue not found")
	}

	pos := 0
	headerSec, next, ok := findSection(raw, "header", pos)
	if !ok {
		return nil, wrap(schema.HeaderTruncated, "missing <header> section")
	}
	pos = next

	release, byteOrder, k, n, err := parseHeader(headerSec.bytesOf(raw))
	if err != nil {
		return nil, err
	}
	w := widthsFor(release)
	order := binaryOrder(byteOrder)

	if _, next, ok := findSection(raw, "map", pos); ok {
		pos = next
	}

	varTypesSec, next, ok := findSection(raw, "variable_types", pos)
	if !ok {
		return nil, wrap(schema.SchemaInconsistency, "missing <variable_types> section")
	}
	pos = next
	varTypes := make([]uint16, k)
	vt := varTypesSec.bytesOf(raw)
	for i := 0; i < k && (i+1)*2 <= len(vt); i++ {
		varTypes[i] = order.Uint16(vt[i*2 : i*2+2])
	}

	varNamesSec, next, ok := findSection(raw, "varnames", pos)
	if !ok {
		return nil, wrap(schema.SchemaInconsistency, "missing <varnames> section")
	}
	pos = next
	names := splitFixedStrings(varNamesSec.bytesOf(raw), w.nameWidth, k)

	if _, next, ok := findSection(raw, "sortlist", pos); ok {
		pos = next
	}

	var formats []string
	if fmtsSec, next, ok := findSection(raw, "formats", pos); ok {
		pos = next
		formats = splitFixedStrings(fmtsSec.bytesOf(raw), w.fmtWidth, k)
	}

	var valueLabelNames []string
	if vlnSec, next, ok := findSection(raw, "value_label_names", pos); ok {
		pos = next
		valueLabelNames = splitFixedStrings(vlnSec.bytesOf(raw), w.nameWidth, k)
	}

	var labels []string
	if lblSec, next, ok := findSection(raw, "variable_labels", pos); ok {
		pos = next
		labels = splitFixedStrings(lblSec.bytesOf(raw), w.labelWidth, k)
	}

	if _, next, ok := findSection(raw, "characteristics", pos); ok {
		pos = next
	}

	dataSec, next, ok := findSection(raw, "data", pos)
	if !ok {
		return nil, wrap(schema.SchemaInconsistency, "missing <data> section")
	}
	pos = next

	strlOffsets := map[schema.StataStrLKey]schema.StataStrLRef{}
	if strlsSec, next, ok := findSection(raw, "strls", pos); ok {
		pos = next
		parseStrls(strlsSec.bytesOf(raw), strlsSec.start, order, strlOffsets)
	}

	valueLabels := map[string]*schema.ValueLabelTable{}
	if vlSec, next, ok := findSection(raw, "value_labels", pos); ok {
		pos = next
		parseValueLabelTables(vlSec.bytesOf(raw), order, valueLabels)
	}

	dec := textdecode.ByTag(defaultEncoding(release))

	cols := make([]schema.ColumnDescriptor, k)
	rowStride := 0
	for i := 0; i < k; i++ {
		name := ""
		if i < len(names) {
			name = names[i]
		}
		col := schema.ColumnDescriptor{Name: name}
		if i < len(labels) {
			col.Label = labels[i]
		}
		if i < len(formats) {
			col.Format = formats[i]
		}
		var width int
		switch t := varTypes[i]; {
		case t == typeByte:
			col.Type, width = schema.Int8, 1
		case t == typeInt:
			col.Type, width = schema.Int16, 2
		case t == typeLong:
			col.Type, width = schema.Int32, 4
		case t == typeFloat:
			col.Type, width = schema.Float32, 4
		case t == typeDouble:
			col.Type, width = schema.Float64, 8
		case t == typeStrL:
			col.Type, width = schema.Utf8, 8 // unbounded: resolved through the StrL table.
		case t >= 1 && t <= 2045:
			col.Type, width = schema.Utf8, int(t)
			col.MaxUtf8Width = int(t)
		default:
			return nil, invalidTypeCode(t)
		}
		col.Type = refineTemporal(col.Format, col.Type)
		col.Encoding = schema.PhysicalEncoding{StorageWidth: width, Signed: true, ByteOrder: byteOrder}
		if i < len(valueLabelNames) && valueLabelNames[i] != "" {
			if tbl, ok := valueLabels[valueLabelNames[i]]; ok {
				col.ValueLabels = tbl
			}
		}
		cols[i] = col
		rowStride += width
	}

	deduped, renames := schema.Dedup(cols)
	sc := &schema.Schema{Columns: deduped, Renames: renames}

	layout := &schema.PhysicalLayout{
		RowStride:        rowStride,
		DataOffset:       int64(dataSec.start),
		RowCount:         int64(n),
		Compression:      schema.CompressionNone,
		ByteOrder:        byteOrder,
		CodePage:         dec.Name(),
		StataStrLOffsets: strlOffsets,
		StataRelease:     release,
	}

	return &Metadata{Schema: sc, Layout: layout, VarTypes: varTypes, valueLabels: valueLabels}, nil
}

func parseHeader(body []byte) (release int, order schema.ByteOrder, k, n int, err error) {
	relSec, next, ok := findSection(body, "release", 0)
	if !ok {
		return 0, 0, 0, 0, wrap(schema.HeaderTruncated, "missing <release> tag")
	}
	release = atoiSafe(string(relSec.bytesOf(body)))

	boSec, next, ok := findSection(body, "byteorder", next)
	if !ok {
		return 0, 0, 0, 0, wrap(schema.HeaderTruncated, "missing <byteorder> tag")
	}
	order = byteOrderOf(string(boSec.bytesOf(body)))
	binOrder := binaryOrder(order)

	w := widthsFor(release)
	kSec, next, ok := findSection(body, "K", next)
	if !ok {
		return 0, 0, 0, 0, wrap(schema.HeaderTruncated, "missing <K> tag")
	}
	k = int(readUintWidth(binOrder, kSec.bytesOf(body), w.kWidth))

	nSec, _, ok := findSection(body, "N", next)
	if !ok {
		return 0, 0, 0, 0, wrap(schema.HeaderTruncated, "missing <N> tag")
	}
	n = int(readUintWidth(binOrder, nSec.bytesOf(body), w.nWidth))

	return release, order, k, n, nil
}

func byteOrderOf(tag string) schema.ByteOrder {
	if strings.TrimSpace(tag) == "MSF" {
		return schema.BigEndian
	}
	return schema.LittleEndian
}

func binaryOrder(o schema.ByteOrder) binary.ByteOrder {
	if o == schema.BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

func readUintWidth(order binary.ByteOrder, b []byte, width int) uint64 {
	switch width {
	case 2:
		if len(b) < 2 {
			return 0
		}
		return uint64(order.Uint16(b[:2]))
	case 4:
		if len(b) < 4 {
			return 0
		}
		return uint64(order.Uint32(b[:4]))
	case 8:
		if len(b) < 8 {
			return 0
		}
		return order.Uint64(b[:8])
	default:
		return 0
	}
}

func atoiSafe(s string) int {
	s = strings.TrimSpace(s)
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			break
		}
		n = n*10 + int(r-'0')
	}
	return n
}

func splitFixedStrings(body []byte, width, count int) []string {
	out := make([]string, 0, count)
	for i := 0; i < count; i++ {
		start := i * width
		if start+width > len(body) {
			out = append(out, "")
			continue
		}
		out = append(out, trimNul(body[start:start+width]))
	}
	return out
}

func trimNul(b []byte) string {
	end := 0
	for end < len(b) && b[end] != 0 {
		end++
	}
	return string(b[:end])
}

// refineTemporal upgrades a numeric column to Date/Datetime from its Stata
// display format: the %td family is a day count, %tc/%tC a millisecond
// count.
func refineTemporal(format string, fallback schema.LogicalType) schema.LogicalType {
	lower := strings.ToLower(format)
	switch {
	case strings.Contains(lower, "%tc"):
		return schema.Datetime
	case strings.Contains(lower, "%td"):
		return schema.Date
	case strings.Contains(lower, "%tm"), strings.Contains(lower, "%tq"), strings.Contains(lower, "%th"), strings.Contains(lower, "%ty"):
		return schema.Date
	default:
		return fallback
	}
}

// defaultEncoding applies the release-keyed default: release >= 118
// defaults to UTF-8, earlier releases default to Windows-1252.
func defaultEncoding(release int) string {
	if release >= 118 {
		return "UTF-8"
	}
	return "WINDOWS-1252"
}

// parseStrls walks the <strls> section's back-to-back GSO entries, each
// "GSO" + v(uint32) + o(uint64) + type(1 byte) + length(uint32) + payload.
func parseStrls(body []byte, sectionStart int, order binary.ByteOrder, out map[schema.StataStrLKey]schema.StataStrLRef) {
	pos := 0
	for pos+15 <= len(body) {
		if !bytes.Equal(body[pos:pos+3], []byte("GSO")) {
			break
		}
		pos += 3
		v := order.Uint32(body[pos : pos+4])
		pos += 4
		o := order.Uint64(body[pos : pos+8])
		pos += 8
		if pos+1 > len(body) {
			break
		}
		pos++ // type byte, not needed to locate the payload.
		if pos+4 > len(body) {
			break
		}
		length := order.Uint32(body[pos : pos+4])
		pos += 4
		if pos+int(length) > len(body) {
			break
		}
		out[schema.StataStrLKey{Variable: int(v), Offset: o}] = schema.StataStrLRef{
			PayloadOffset: int64(sectionStart + pos),
			Length:        int32(length),
		}
		pos += int(length)
	}
}

// parseValueLabelTables walks the <value_labels> section's named sub-blocks.
// Each entry: 4-byte total length, a fixed name field, 3 pad bytes, entry
// count, text blob length, an offset table, a value table, then the text
// blob itself (NUL-terminated labels indexed by the offset table).
func parseValueLabelTables(body []byte, order binary.ByteOrder, out map[string]*schema.ValueLabelTable) {
	pos := 0
	for pos+4 <= len(body) {
		total := int(order.Uint32(body[pos : pos+4]))
		entryStart := pos + 4
		entryEnd := entryStart + total
		if total <= 0 || entryEnd > len(body) {
			break
		}
		entry := body[entryStart:entryEnd]
		if len(entry) < 44 {
			pos = entryEnd
			continue
		}
		name := trimNul(entry[:32])
		n := int(order.Uint32(entry[36:40]))
		txtLen := int(order.Uint32(entry[40:44]))
		offTableStart := 44
		valTableStart := offTableStart + n*4
		txtStart := valTableStart + n*4
		if txtStart+txtLen > len(entry) {
			pos = entryEnd
			continue
		}
		tbl := &schema.ValueLabelTable{NumericLabels: map[float64]string{}}
		text := entry[txtStart : txtStart+txtLen]
		for i := 0; i < n; i++ {
			offOff := offTableStart + i*4
			valOff := valTableStart + i*4
			if offOff+4 > len(entry) || valOff+4 > len(entry) {
				break
			}
			labelOff := int(order.Uint32(entry[offOff : offOff+4]))
			val := int32(order.Uint32(entry[valOff : valOff+4]))
			if labelOff < 0 || labelOff >= len(text) {
				continue
			}
			label := trimNul(text[labelOff:])
			tbl.NumericLabels[float64(val)] = label
			tbl.Order = append(tbl.Order, label)
		}
		out[name] = tbl
		pos = entryEnd
	}
}
