// Copyright 2020 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package blockio

import (
	"context"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/mlml-io/mlml/block"
)

// Writer appends blocks to an underlying data stream. Rows appear in
// the output in exactly the order written; callers control ordering
// semantics entirely by call order.
type Writer interface {
	// Write appends b to the underlying data stream. It returns a
	// non-nil error if there is a problem writing, and b may have
	// been partially written; the output must then be considered
	// invalid.
	Write(ctx context.Context, b block.Block) error
}

type fileWriter struct {
	w   io.Writer
	err error
}

// NewWriter returns a Writer that appends packed sample rows to w.
func NewWriter(w io.Writer) Writer {
	return &fileWriter{w: w}
}

func (f *fileWriter) Write(ctx context.Context, b block.Block) error {
	if f.err != nil {
		return f.err
	}
	if err := ctx.Err(); err != nil {
		f.err = err
		return err
	}
	if _, err := f.w.Write(b.Bytes()); err != nil {
		f.err = errors.E("write dataset", err)
		return f.err
	}
	return nil
}
