// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cursor implements the endian-aware, bounds-checked byte reader
// shared by every format-specific metadata parser and row decoder. It is
// backed by either a memory-mapped region
// (MappedCursor, the preferred backend) or a buffered in-memory slice
// (BufferedCursor, used when Open is asked not to map the file).
package cursor

import (
	"encoding/binary"
	"math"

	"github.com/solidcoredata/statread/schema"
)

// Endian selects a binary.ByteOrder for a multi-byte read.
type Endian int

const (
	LittleEndian Endian = iota
	BigEndian
)

func (e Endian) order() binary.ByteOrder {
	if e == BigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// IsBig reports whether e selects big-endian byte order.
func (e Endian) IsBig() bool { return e == BigEndian }

// Cursor is the read surface every parser and decoder programs against.
// Every method fails with *schema.BufferOutOfBounds rather than truncating.
type Cursor interface {
	ReadU8() (uint8, error)
	ReadU16(e Endian) (uint16, error)
	ReadU32(e Endian) (uint32, error)
	ReadU64(e Endian) (uint64, error)
	ReadF64(e Endian) (float64, error)
	ReadBytes(n int) ([]byte, error)
	Seek(abs int64) error
	Skip(n int64) error
	Pos() int64
	Remaining() int64
	Len() int64
}

// bufCursor is the shared implementation for both backends: both ultimately
// read from a byte slice (the buffered cursor owns its bytes; the mapped
// cursor's slice is backed by the kernel's page cache).
type bufCursor struct {
	buf []byte
	pos int64
}

func (c *bufCursor) Len() int64       { return int64(len(c.buf)) }
func (c *bufCursor) Pos() int64       { return c.pos }
func (c *bufCursor) Remaining() int64 { return int64(len(c.buf)) - c.pos }

func (c *bufCursor) checkBounds(n int64) error {
	if n < 0 || c.pos+n > int64(len(c.buf)) || c.pos < 0 {
		return &schema.BufferOutOfBounds{Offset: c.pos, Length: n}
	}
	return nil
}

func (c *bufCursor) ReadU8() (uint8, error) {
	if err := c.checkBounds(1); err != nil {
		return 0, err
	}
	v := c.buf[c.pos]
	c.pos++
	return v, nil
}

func (c *bufCursor) ReadU16(e Endian) (uint16, error) {
	if err := c.checkBounds(2); err != nil {
		return 0, err
	}
	v := e.order().Uint16(c.buf[c.pos : c.pos+2])
	c.pos += 2
	return v, nil
}

func (c *bufCursor) ReadU32(e Endian) (uint32, error) {
	if err := c.checkBounds(4); err != nil {
		return 0, err
	}
	v := e.order().Uint32(c.buf[c.pos : c.pos+4])
	c.pos += 4
	return v, nil
}

func (c *bufCursor) ReadU64(e Endian) (uint64, error) {
	if err := c.checkBounds(8); err != nil {
		return 0, err
	}
	v := e.order().Uint64(c.buf[c.pos : c.pos+8])
	c.pos += 8
	return v, nil
}

func (c *bufCursor) ReadF64(e Endian) (float64, error) {
	bits, err := c.ReadU64(e)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(bits), nil
}

func (c *bufCursor) ReadBytes(n int) ([]byte, error) {
	if err := c.checkBounds(int64(n)); err != nil {
		return nil, err
	}
	out := c.buf[c.pos : c.pos+int64(n)]
	c.pos += int64(n)
	return out, nil
}

func (c *bufCursor) Seek(abs int64) error {
	if abs < 0 || abs > int64(len(c.buf)) {
		return &schema.BufferOutOfBounds{Offset: abs, Length: 0}
	}
	c.pos = abs
	return nil
}

func (c *bufCursor) Skip(n int64) error {
	return c.Seek(c.pos + n)
}
