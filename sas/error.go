// Copyright 2018 The Solid Core Data Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sas implements the SAS7BDAT format reader/writer: the page/
// subheader metadata parser and the SAS-specific row decoder.
package sas

import (
	"github.com/solidcoredata/statread/schema"
)

// Error is the SAS-specific error type. It embeds the shared taxonomy kind
// from schema.ErrorKind; SAS has no error variant of its own beyond that,
// since an unrecognized page type or subheader signature is tolerated
// rather than rejected (see page.go and metadata.go's default cases).
type Error struct {
	*schema.Error
}

func wrap(kind schema.ErrorKind, detail string) *Error {
	return &Error{Error: schema.NewError(kind, detail)}
}
