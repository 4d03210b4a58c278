// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package spss implements the SPSS system-file (.sav/.zsav) reader/writer:
// the record-walking metadata parser and the SPSS-specific row decoder.
package spss

import (
	"fmt"

	"github.com/solidcoredata/statread/schema"
)

// Error is the SPSS-specific error type, mirroring sas.Error and
// stata.Error's shape: the shared taxonomy kind plus a record-type detail
// for failures that are specific to walking the record-prefixed stream.
type Error struct {
	*schema.Error
	RecordType *int32
}

func wrap(kind schema.ErrorKind, detail string) error {
	return &Error{Error: schema.NewError(kind, detail)}
}

func invalidRecordType(t int32) error {
	rt := t
	e := &Error{Error: schema.NewError(schema.SchemaInconsistency, fmt.Sprintf("unexpected record type: %d", t))}
	e.RecordType = &rt
	return e
}
