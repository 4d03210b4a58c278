// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !unix

package cursor

import (
	"errors"
	"os"
)

// MappedCursor is unavailable on non-unix platforms; OpenMapped always
// fails so callers fall back to BufferedCursor, the same backend Open
// uses when asked not to map the file.
type MappedCursor struct {
	bufCursor
}

func OpenMapped(f *os.File) (*MappedCursor, error) {
	return nil, errors.New("cursor: mmap not supported on this platform")
}

func (m *MappedCursor) Close() error { return nil }
