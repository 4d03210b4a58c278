// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cursor

import (
	"io"

	"github.com/solidcoredata/statread/schema"
)

// BufferedCursor is the fallback Cursor backend: the whole region is read
// into a plain Go slice up front. Used when Open is asked not to map the
// file or when the OS does not support mmap for the given file.
type BufferedCursor struct {
	bufCursor
}

// NewBuffered wraps an already-materialized byte slice.
func NewBuffered(data []byte) *BufferedCursor {
	return &BufferedCursor{bufCursor{buf: data}}
}

// ReadAllBuffered slurps r fully into a BufferedCursor.
func ReadAllBuffered(r io.Reader) (*BufferedCursor, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return NewBuffered(data), nil
}

// Sub returns a new cursor restricted to [offset, offset+length) of this
// cursor's buffer, positioned at 0. Used to hand a decompressed page or a
// single row buffer to a row decoder without copying.
func (c *BufferedCursor) Sub(offset, length int64) (*BufferedCursor, error) {
	if offset < 0 || length < 0 || offset+length > int64(len(c.buf)) {
		return nil, &schema.BufferOutOfBounds{Offset: offset, Length: length}
	}
	return NewBuffered(c.buf[offset : offset+length]), nil
}
