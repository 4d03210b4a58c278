// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build unix

package cursor

import (
	"os"

	"golang.org/x/sys/unix"
)

// MappedCursor is the preferred Cursor backend: a read-only memory map over
// the whole file, avoiding the buffered-read copy.
type MappedCursor struct {
	bufCursor
	file *os.File
}

// OpenMapped memory-maps f read-only for its full size.
func OpenMapped(f *os.File) (*MappedCursor, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size := info.Size()
	if size == 0 {
		return &MappedCursor{bufCursor: bufCursor{buf: nil}, file: f}, nil
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, err
	}
	return &MappedCursor{bufCursor: bufCursor{buf: data}, file: f}, nil
}

// Close unmaps the region. The underlying *os.File is left open; the
// caller retains ownership of it.
func (m *MappedCursor) Close() error {
	if m.buf == nil {
		return nil
	}
	buf := m.buf
	m.buf = nil
	return unix.Munmap(buf)
}

// Sub mirrors BufferedCursor.Sub for a mapped region.
func (m *MappedCursor) Sub(offset, length int64) (*BufferedCursor, error) {
	b := &BufferedCursor{}
	sub, err := (&BufferedCursor{bufCursor{buf: m.buf}}).Sub(offset, length)
	if err != nil {
		return nil, err
	}
	*b = *sub
	return b, nil
}
