// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cursor

import (
	"io"
	"os"
)

// Opened bundles a Cursor over a whole file with the resources that must be
// released once the scan completes.
type Opened struct {
	Cursor
	file   *os.File
	mapped *MappedCursor
}

func (o *Opened) Close() error {
	var err error
	if o.mapped != nil {
		err = o.mapped.Close()
	}
	if o.file != nil {
		if cerr := o.file.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Open opens path and returns a Cursor over its full contents, preferring a
// memory map unless disableMmap is set or mapping fails.
func Open(path string, disableMmap bool) (*Opened, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if !disableMmap {
		if mapped, merr := OpenMapped(f); merr == nil {
			return &Opened{Cursor: mapped, file: f, mapped: mapped}, nil
		}
	}
	buffered, err := ReadAllBuffered(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &Opened{Cursor: buffered, file: f}, nil
}

var _ io.Closer = (*Opened)(nil)
