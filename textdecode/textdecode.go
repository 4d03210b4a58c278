// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package textdecode maps the vendor code-page tags SAS, SPSS, and Stata
// embed in their headers to a golang.org/x/text decoder. Invalid byte
// sequences are replaced rather than rejected;
// callers can inspect whether any replacement occurred to surface a
// TextDecode warning instead of a hard failure.
package textdecode

import (
	"bytes"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// Decoder owns one vendor code page and yields owned strings from raw
// bytes. Safe for concurrent use by multiple scan workers: each call
// allocates its own transform state.
type Decoder struct {
	enc  encoding.Encoding
	name string
}

// ByTag resolves a vendor encoding tag (the code-page names SASCodePage
// returns, Stata/SPSS charset names, or a handful of common aliases) to a
// Decoder. Unknown tags fall back to Windows-1252, the default for legacy
// (pre-Unicode) files across all three formats.
func ByTag(tag string) *Decoder {
	norm := strings.ToUpper(strings.TrimSpace(tag))
	switch norm {
	case "", "WINDOWS-1252", "CP1252", "LATIN1", "ISO-8859-1", "WLATIN1":
		return &Decoder{enc: charmap.Windows1252, name: "windows-1252"}
	case "UTF-8", "UTF8":
		return &Decoder{enc: unicode.UTF8, name: "utf-8"}
	case "WINDOWS-1250", "CP1250":
		return &Decoder{enc: charmap.Windows1250, name: "windows-1250"}
	case "WINDOWS-1251", "CP1251":
		return &Decoder{enc: charmap.Windows1251, name: "windows-1251"}
	case "WINDOWS-1253", "CP1253":
		return &Decoder{enc: charmap.Windows1253, name: "windows-1253"}
	case "WINDOWS-1254", "CP1254":
		return &Decoder{enc: charmap.Windows1254, name: "windows-1254"}
	case "WINDOWS-1255", "CP1255":
		return &Decoder{enc: charmap.Windows1255, name: "windows-1255"}
	case "WINDOWS-1256", "CP1256":
		return &Decoder{enc: charmap.Windows1256, name: "windows-1256"}
	case "ISO-8859-2":
		return &Decoder{enc: charmap.ISO8859_2, name: "iso-8859-2"}
	case "ISO-8859-15":
		return &Decoder{enc: charmap.ISO8859_15, name: "iso-8859-15"}
	case "KOI8-R":
		return &Decoder{enc: charmap.KOI8R, name: "koi8-r"}
	default:
		return &Decoder{enc: charmap.Windows1252, name: "windows-1252"}
	}
}

// SASCodePage maps the single-byte SAS encoding code (header offset 70)
// to a code page tag. Not exhaustive; unrecognized
// codes fall back to Windows-1252 via ByTag's default.
func SASCodePage(code byte) string {
	switch code {
	case 0:
		return "" // unspecified; ASCII-compatible subset.
	case 20:
		return "UTF-8"
	case 29:
		return "WINDOWS-1252"
	case 30:
		return "WINDOWS-1250"
	case 31:
		return "WINDOWS-1251"
	case 32:
		return "WINDOWS-1253"
	case 33:
		return "WINDOWS-1254"
	case 34:
		return "WINDOWS-1255"
	case 35:
		return "WINDOWS-1256"
	case 60:
		return "ISO-8859-1"
	default:
		return "WINDOWS-1252"
	}
}

// Name reports the resolved code page, for inclusion in metadata_json.
func (d *Decoder) Name() string { return d.name }

// Decode turns raw into an owned string. The bool result reports whether
// any byte sequence was invalid and replaced, a signal callers can use to
// raise a text-decode warning instead of a hard failure. A NUL byte
// truncates the logical length for fixed-width string
// columns, matching every one of the three formats' NUL-padding convention.
func (d *Decoder) Decode(raw []byte) (string, bool) {
	if nul := bytes.IndexByte(raw, 0); nul >= 0 {
		raw = raw[:nul]
	}
	dec := d.enc.NewDecoder()
	out, err := dec.Bytes(raw)
	if err != nil {
		// encoding.Decoder.Bytes uses encoding.Replacement internally for
		// malformed input when the transformer tolerates errors; a non-nil
		// err here means a hard failure (truncated multi-byte sequence at
		// EOF). Fall back to a lossy rune-by-rune decode so the caller
		// always gets a string back.
		return decodeLossy(d.enc, raw), true
	}
	return string(out), bytes.ContainsRune(out, '�')
}

func decodeLossy(enc encoding.Encoding, raw []byte) string {
	var b strings.Builder
	dec := enc.NewDecoder()
	dst := make([]byte, 4)
	for len(raw) > 0 {
		nDst, nSrc, err := dec.Transform(dst, raw, true)
		if nSrc == 0 {
			b.WriteRune('�')
			raw = raw[1:]
			continue
		}
		b.Write(dst[:nDst])
		raw = raw[nSrc:]
		if err != nil && nSrc == 0 {
			break
		}
	}
	return b.String()
}
