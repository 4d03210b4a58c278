// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cursor

import "testing"

func TestBufferedCursorReadsAndAdvances(t *testing.T) {
	c := NewBuffered([]byte{0x01, 0x02, 0x03, 0x04, 0xFF})
	u8, err := c.ReadU8()
	if err != nil {
		t.Fatal(err)
	}
	if u8 != 1 {
		t.Fatalf("ReadU8 = %d, want 1", u8)
	}
	u16, err := c.ReadU16(LittleEndian)
	if err != nil {
		t.Fatal(err)
	}
	if u16 != 0x0302 {
		t.Fatalf("ReadU16 = 0x%04X, want 0x0302", u16)
	}
	if c.Pos() != 3 {
		t.Fatalf("Pos() = %d, want 3", c.Pos())
	}
	if c.Remaining() != 2 {
		t.Fatalf("Remaining() = %d, want 2", c.Remaining())
	}
}

func TestBufferedCursorOutOfBounds(t *testing.T) {
	c := NewBuffered([]byte{0x01})
	if _, err := c.ReadU32(LittleEndian); err == nil {
		t.Fatal("expected an out-of-bounds error reading 4 bytes from a 1-byte buffer")
	}
}

func TestBufferedCursorSeekAndSkip(t *testing.T) {
	c := NewBuffered([]byte{0, 1, 2, 3, 4, 5})
	if err := c.Seek(4); err != nil {
		t.Fatal(err)
	}
	b, err := c.ReadU8()
	if err != nil {
		t.Fatal(err)
	}
	if b != 4 {
		t.Fatalf("ReadU8 after Seek(4) = %d, want 4", b)
	}
	if err := c.Skip(-2); err != nil {
		t.Fatal(err)
	}
	if c.Pos() != 3 {
		t.Fatalf("Pos() after Skip(-2) = %d, want 3", c.Pos())
	}
	if err := c.Seek(100); err == nil {
		t.Fatal("expected an error seeking past the buffer end")
	}
}
