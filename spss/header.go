// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package spss

import (
	"encoding/binary"
	"math"
	"strconv"
	"strings"

	"github.com/solidcoredata/statread/schema"
	"github.com/solidcoredata/statread/textdecode"
)

// Metadata is the resolved SPSS schema plus the decompression state the row
// decoder needs to dispatch on compression variant.
type Metadata struct {
	Schema *schema.Schema
	Layout *schema.PhysicalLayout
	Order  binary.ByteOrder
}

// Probe reports whether data begins with one of SPSS's two system-file
// magics: "$FL2" (plain/bytecode) or "$FL3" (ZSAV).
func Probe(data []byte) bool {
	if len(data) < 4 {
		return false
	}
	tag := string(data[:4])
	return tag == "$FL2" || tag == "$FL3"
}

const fixedHeaderSize = 176

// Record type tags in the dictionary stream.
const (
	recVariable   = 2
	recValueLabel = 3
	recVarIndex   = 4
	recDocument   = 6
	recExtension  = 7
	recDictEnd    = 999
)

// Extension record subtypes this parser interprets. The rest are skipped
// using their declared size*count: every extension record is keyed by
// subtype and self-describing about its own length.
const (
	subtypeIntegerInfo     = 3
	subtypeFloatInfo       = 4
	subtypeMeasureInfo     = 11
	subtypeLongVarNames    = 13
	subtypeVeryLongStrings = 14
	subtype64BitCaseCount  = 16
	subtypeCharEncoding    = 20
	subtypeLongStrLabels   = 21
	subtypeLongStrMissing  = 22
)

type fileHeader struct {
	zsav            bool
	order           binary.ByteOrder
	nominalCaseSize int
	compression     int32 // 0 none, 1 bytecode, 2 zsav-wrapped bytecode.
	bias            float64
	caseCount       int64 // -1 when unknown until subtype 16 or EOF-driven counting.
	label           string
}

func detectOrder(raw []byte) binary.ByteOrder {
	if len(raw) < 72 {
		return binary.LittleEndian
	}
	v := binary.LittleEndian.Uint32(raw[64:68])
	if v == 2 || v == 3 {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

func parseFileHeader(raw []byte) (*fileHeader, error) {
	if !Probe(raw) {
		return nil, wrap(schema.ProbeMismatch, "SPSS $FL2/$FL3 magic not found")
	}
	if len(raw) < fixedHeaderSize {
		return nil, wrap(schema.HeaderTruncated, "file shorter than the fixed SPSS header")
	}
	h := &fileHeader{zsav: raw[3] == '3', order: detectOrder(raw)}
	h.nominalCaseSize = int(int32(h.order.Uint32(raw[68:72])))
	h.compression = int32(h.order.Uint32(raw[72:76]))
	h.caseCount = int64(int32(h.order.Uint32(raw[80:84])))
	h.bias = math.Float64frombits(h.order.Uint64(raw[84:92]))
	h.label = strings.TrimRight(string(raw[109:173]), " \x00")
	return h, nil
}

// rawVariable is one primary (non-continuation) dictionary variable.
type rawVariable struct {
	slot        int // index of its first 8-byte row slot.
	slots       int // total 8-byte slots this variable and its continuations occupy.
	isString    bool
	width       int // declared byte width (strings only).
	name        string
	label       string
	formatRaw   uint32
	missing     schema.MissingSpec
	valueLabels *schema.ValueLabelTable
}

// ParseMetadata implements C4.3's contract: walk the fixed header and every
// dictionary record up to the type-999 terminator, coalescing long-string
// continuation records into one logical column each, and resolving value
// labels, long variable names, and very-long-string widths from their
// extension records.
func ParseMetadata(raw []byte) (*Metadata, error) {
	h, err := parseFileHeader(raw)
	if err != nil {
		return nil, err
	}
	order := h.order

	pos := fixedHeaderSize
	var vars []*rawVariable
	slotToVar := map[int]int{} // 8-byte slot index -> index into vars.
	slot := 0

	type pendingApply struct {
		labels map[string]string // raw 8-byte value key -> label
		isStr  bool
	}
	var labelRecords []pendingApply

	sysmis := -1.0 * math.MaxFloat64
	longNames := map[string]string{}
	veryLongWidths := map[string]int{}
	encodingTag := ""

	dataStart := -1

loop:
	for pos+4 <= len(raw) {
		recType := int32(order.Uint32(raw[pos : pos+4]))
		pos += 4
		switch recType {
		case recVariable:
			if pos+28 > len(raw) {
				return nil, wrap(schema.HeaderTruncated, "truncated SPSS variable record")
			}
			typeCode := int32(order.Uint32(raw[pos : pos+4]))
			hasLabel := order.Uint32(raw[pos+4:pos+8]) != 0
			nMissing := int32(order.Uint32(raw[pos+8 : pos+12]))
			formatRaw := order.Uint32(raw[pos+16 : pos+20])
			name := strings.TrimRight(string(raw[pos+20:pos+28]), " ")
			pos += 28

			if typeCode == -1 {
				// Continuation of the previous string variable's width.
				if n := len(vars); n > 0 {
					vars[n-1].slots++
					slotToVar[slot] = n - 1
				}
				slot++
				continue
			}

			rv := &rawVariable{slot: slot, slots: 1, formatRaw: formatRaw, name: name}
			if typeCode > 0 {
				rv.isString = true
				rv.width = int(typeCode)
			}
			if hasLabel {
				if pos+4 > len(raw) {
					return nil, wrap(schema.HeaderTruncated, "truncated variable label length")
				}
				labelLen := int(order.Uint32(raw[pos : pos+4]))
				pos += 4
				padded := roundUp4(labelLen)
				if pos+padded > len(raw) {
					return nil, wrap(schema.HeaderTruncated, "truncated variable label text")
				}
				rv.label = string(raw[pos : pos+labelLen])
				pos += padded
			}
			switch {
			case nMissing == -2, nMissing == -3:
				count := 2
				if nMissing == -3 {
					count = 3
				}
				if pos+count*8 > len(raw) {
					return nil, wrap(schema.HeaderTruncated, "truncated missing-value range")
				}
				lo := math.Float64frombits(order.Uint64(raw[pos : pos+8]))
				hi := math.Float64frombits(order.Uint64(raw[pos+8 : pos+16]))
				rv.missing.HasRange = true
				rv.missing.RangeLow, rv.missing.RangeHigh = lo, hi
				pos += 16
				if nMissing == -3 {
					rv.missing.DiscreteValues = append(rv.missing.DiscreteValues, math.Float64frombits(order.Uint64(raw[pos:pos+8])))
					pos += 8
				}
			case nMissing > 0:
				if pos+int(nMissing)*8 > len(raw) {
					return nil, wrap(schema.HeaderTruncated, "truncated discrete missing values")
				}
				for i := int32(0); i < nMissing; i++ {
					rv.missing.DiscreteValues = append(rv.missing.DiscreteValues, math.Float64frombits(order.Uint64(raw[pos:pos+8])))
					pos += 8
				}
			}

			slotToVar[slot] = len(vars)
			vars = append(vars, rv)
			slot++

		case recValueLabel:
			if pos+4 > len(raw) {
				return nil, wrap(schema.HeaderTruncated, "truncated value-label record")
			}
			count := int(order.Uint32(raw[pos : pos+4]))
			pos += 4
			labels := map[string]string{}
			for i := 0; i < count; i++ {
				if pos+9 > len(raw) {
					return nil, wrap(schema.HeaderTruncated, "truncated value-label entry")
				}
				value := string(raw[pos : pos+8])
				labelLen := int(raw[pos+8])
				entryLen := roundUp8(1 + labelLen)
				textStart := pos + 9
				if textStart+entryLen-1 > len(raw) {
					return nil, wrap(schema.HeaderTruncated, "truncated value-label text")
				}
				labels[value] = string(raw[textStart : textStart+labelLen])
				pos = pos + 8 + entryLen
			}
			labelRecords = append(labelRecords, pendingApply{labels: labels})
			// Must be followed immediately by a type-4 record naming which
			// dictionary slots this table applies to.
			if pos+4 > len(raw) {
				return nil, wrap(schema.HeaderTruncated, "value-label record missing its type-4 index list")
			}
			if int32(order.Uint32(raw[pos:pos+4])) != recVarIndex {
				continue
			}
			pos += 4
			if pos+4 > len(raw) {
				return nil, wrap(schema.HeaderTruncated, "truncated type-4 index count")
			}
			idxCount := int(order.Uint32(raw[pos : pos+4]))
			pos += 4
			cur := labelRecords[len(labelRecords)-1]
			for i := 0; i < idxCount; i++ {
				if pos+4 > len(raw) {
					break
				}
				idx := int(order.Uint32(raw[pos : pos+4])) // 1-based dictionary slot.
				pos += 4
				if vi, ok := slotToVar[idx-1]; ok {
					attachValueLabels(vars[vi], cur.labels)
				}
			}

		case recVarIndex:
			// A type-4 with no preceding type-3 in this loop iteration
			// shouldn't occur; skip defensively by reading its count and
			// index list.
			if pos+4 > len(raw) {
				break loop
			}
			idxCount := int(order.Uint32(raw[pos : pos+4]))
			pos += 4 + idxCount*4

		case recDocument:
			if pos+4 > len(raw) {
				return nil, wrap(schema.HeaderTruncated, "truncated document record")
			}
			nLines := int(order.Uint32(raw[pos : pos+4]))
			pos += 4 + nLines*80

		case recExtension:
			if pos+12 > len(raw) {
				return nil, wrap(schema.HeaderTruncated, "truncated extension record")
			}
			subtype := int32(order.Uint32(raw[pos : pos+4]))
			size := int(order.Uint32(raw[pos+4 : pos+8]))
			count := int(order.Uint32(raw[pos+8 : pos+12]))
			pos += 12
			dataLen := size * count
			if pos+dataLen > len(raw) {
				return nil, wrap(schema.HeaderTruncated, "truncated extension record payload")
			}
			body := raw[pos : pos+dataLen]
			switch subtype {
			case subtypeFloatInfo:
				if len(body) >= 8 {
					sysmis = math.Float64frombits(order.Uint64(body[0:8]))
				}
			case subtype64BitCaseCount:
				if len(body) >= 8 {
					h.caseCount = int64(order.Uint64(body[0:8]))
				}
			case subtypeLongVarNames:
				for _, pair := range strings.Split(string(body), "\t") {
					kv := strings.SplitN(pair, "=", 2)
					if len(kv) == 2 {
						longNames[strings.ToUpper(kv[0])] = kv[1]
					}
				}
			case subtypeVeryLongStrings:
				for _, pair := range strings.Split(strings.Trim(string(body), "\x00"), "\t") {
					kv := strings.SplitN(pair, "=", 2)
					if len(kv) != 2 {
						continue
					}
					if w, err := strconv.Atoi(strings.TrimRight(kv[1], "\x00")); err == nil {
						veryLongWidths[strings.ToUpper(kv[0])] = w
					}
				}
			case subtypeCharEncoding:
				encodingTag = strings.TrimRight(string(body), "\x00")
			case subtypeIntegerInfo, subtypeMeasureInfo, subtypeLongStrLabels, subtypeLongStrMissing:
				// Recognized but not materialized into any schema field yet.
				// Skipped via dataLen above.
			}
			pos += dataLen

		case recDictEnd:
			if pos+4 > len(raw) {
				return nil, wrap(schema.HeaderTruncated, "truncated dictionary-end record")
			}
			pos += 4
			dataStart = pos
			break loop

		default:
			return nil, invalidRecordType(recType)
		}
	}
	if dataStart < 0 {
		return nil, wrap(schema.SchemaInconsistency, "SPSS dictionary never reached its type-999 terminator")
	}

	if encodingTag == "" {
		encodingTag = "WINDOWS-1252"
	}
	dec := textdecode.ByTag(encodingTag)

	cols := make([]schema.ColumnDescriptor, len(vars))
	slotRanges := make(map[int][2]int, len(vars))
	for i, v := range vars {
		name := v.name
		if long, ok := longNames[strings.ToUpper(v.name)]; ok {
			name = long
		}
		width := v.width
		if w, ok := veryLongWidths[strings.ToUpper(name)]; ok {
			width = w
		}
		col := schema.ColumnDescriptor{Name: name, Label: v.label, Missing: v.missing}
		if v.isString {
			col.Type = schema.Utf8
			col.MaxUtf8Width = width
			col.Encoding = schema.PhysicalEncoding{StorageWidth: v.slots * 8, ByteOrder: schema.LittleEndian}
		} else {
			col.Type = refineTemporal(v.formatRaw)
			col.Encoding = schema.PhysicalEncoding{StorageWidth: 8, Signed: true, ByteOrder: schema.LittleEndian}
			col.ValueLabels = v.valueLabels
		}
		cols[i] = col
		slotRanges[i] = [2]int{v.slot, v.slot + v.slots - 1}
	}

	deduped, renames := schema.Dedup(cols)
	sc := &schema.Schema{Columns: deduped, Renames: renames}

	compression := schema.CompressionNone
	switch {
	case h.zsav:
		compression = schema.CompressionZsav
	case h.compression != 0:
		compression = schema.CompressionSPSSBytecode
	}

	layout := &schema.PhysicalLayout{
		RowStride:           h.nominalCaseSize * 8,
		DataOffset:          int64(dataStart),
		RowCount:            h.caseCount,
		Compression:         compression,
		ByteOrder:           schema.LittleEndian,
		CodePage:            dec.Name(),
		SPSSCompressionBias: h.bias,
		SPSSSysmis:          sysmis,
		SPSSSlotRanges:      slotRanges,
	}
	return &Metadata{Schema: sc, Layout: layout, Order: order}, nil
}

func attachValueLabels(v *rawVariable, labels map[string]string) {
	if v.isString {
		return
	}
	tbl := &schema.ValueLabelTable{Name: v.name, NumericLabels: map[float64]string{}}
	for raw, label := range labels {
		var bits uint64
		for i := 0; i < 8 && i < len(raw); i++ {
			bits |= uint64(raw[i]) << (8 * uint(i))
		}
		val := math.Float64frombits(bits)
		tbl.NumericLabels[val] = label
		tbl.Order = append(tbl.Order, label)
	}
	v.valueLabels = tbl
}

func roundUp4(n int) int { return (n + 3) &^ 3 }
func roundUp8(n int) int { return (n + 7) &^ 7 }

// refineTemporal maps SPSS print-format type codes to a Date/Time/Datetime
// logical type. The format word packs (type<<16 | width<<8 | decimals);
// only the type byte matters here.
func refineTemporal(formatRaw uint32) schema.LogicalType {
	switch byte(formatRaw >> 16) {
	case 20, 23, 24, 37, 38: // DATE, ADATE, JDATE, EDATE, SDATE.
		return schema.Date
	case 21: // TIME.
		return schema.Time
	case 22: // DATETIME.
		return schema.Datetime
	default:
		return schema.Float64
	}
}
