// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package spss

import (
	"bytes"
	"compress/zlib"
	"io"

	"github.com/solidcoredata/statread/schema"
)

// zsavBlockReader inflates a ZSAV file's zlib-wrapped case data into a flat
// buffer so it can be handed to the same compress.SPSSBytecode/plain row
// path that $FL2 uses. ZSAV's inner framing is standard zlib, so the
// standard library covers it; no third-party library applies to the zlib
// container itself.
func zsavBlockReader(tail []byte) ([]byte, error) {
	zr, err := zlib.NewReader(bytes.NewReader(tail))
	if err != nil {
		return nil, schema.WrapError(schema.BadCompression, "ZSAV zlib stream could not be opened", err)
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, schema.WrapError(schema.BadCompression, "ZSAV zlib stream ended early", err)
	}
	return out, nil
}
