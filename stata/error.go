// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package stata implements the Stata .dta metadata parser (C4.2), row
// decoder (C5), and a minimal structural writer.
package stata

import "github.com/solidcoredata/statread/schema"

// Error wraps the shared taxonomy with the Stata-specific variants named in
// the original Rust decoder's own error enum (InvalidTypeCode chief among
// them).
type Error struct {
	*schema.Error
	TypeCode *uint16
}

func wrap(kind schema.ErrorKind, detail string) error {
	return &Error{Error: schema.NewError(kind, detail)}
}

func invalidTypeCode(code uint16) error {
	c := code
	return &Error{Error: schema.NewError(schema.SchemaInconsistency, "invalid Stata variable type code"), TypeCode: &c}
}
