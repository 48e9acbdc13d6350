// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package blockio provides utilities for streaming sample blocks
// between memory and flat binary dataset files. Readers advance
// strictly forward through their underlying file and never re-read;
// they are restartable only by reopening the file.
package blockio

import (
	"context"
	"fmt"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/mlml-io/mlml/block"
)

// EOF is the error returned by Reader.Read when no more data is
// available. EOF is intended as a sentinel error: it signals a
// graceful end of output. If output terminates unexpectedly, a
// different error should be returned.
var EOF = errors.New("EOF")

// A Reader represents a stateful stream of sample blocks. Each call
// to Read reads the next set of available rows.
type Reader interface {
	// Read reads up to out.Len() rows into out, returning the number
	// of rows read, or an error. When no more rows are available,
	// Read returns EOF. Read may return EOF when n > 0: in this case
	// n rows were read, but no more are available.
	//
	// Read should not be called concurrently.
	Read(ctx context.Context, out block.Block) (int, error)
}

type fileReader struct {
	r   io.Reader
	err error
}

// NewReader returns a Reader that streams packed sample rows from r.
// The final block of a file that does not hold a whole multiple of
// the block size is surfaced as a shorter block. A file that ends
// partway through a sample is reported as an error, since a truncated
// row leaves the read offset unrecoverable.
func NewReader(r io.Reader) Reader {
	return &fileReader{r: r}
}

func (f *fileReader) Read(ctx context.Context, out block.Block) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	if err := ctx.Err(); err != nil {
		f.err = err
		return 0, err
	}
	n, err := io.ReadFull(f.r, out.Bytes())
	w := out.RowBytes()
	switch err {
	case nil:
		return n / w, nil
	case io.EOF:
		f.err = EOF
		return 0, EOF
	case io.ErrUnexpectedEOF:
		if n%w != 0 {
			f.err = errors.E(errors.Integrity, fmt.Sprintf("dataset truncated %d bytes into a sample", n%w))
			return n / w, f.err
		}
		f.err = EOF
		return n / w, EOF
	default:
		f.err = errors.E("read dataset", err)
		return n / w, f.err
	}
}

type multiReader struct {
	q   []Reader
	err error
}

// MultiReader returns a Reader that's the logical concatenation of
// the provided input readers. Once every underlying Reader has
// returned EOF, Read will return EOF, too. Non-EOF errors are
// returned immediately.
func MultiReader(readers ...Reader) Reader {
	return &multiReader{q: readers}
}

func (m *multiReader) Read(ctx context.Context, out block.Block) (int, error) {
	if m.err != nil {
		return 0, m.err
	}
	for len(m.q) > 0 {
		n, err := m.q[0].Read(ctx, out)
		switch {
		case err == EOF:
			m.q = m.q[1:]
			if n > 0 {
				return n, nil
			}
		case err != nil:
			m.err = err
			return n, err
		case n > 0:
			return n, nil
		}
	}
	return 0, EOF
}

// An errReader is a reader that only returns errors.
type errReader struct{ Err error }

// ErrReader returns a reader that returns the provided error
// on every call to Read. ErrReader panics if err is nil.
func ErrReader(err error) Reader {
	if err == nil {
		panic("nil error")
	}
	return &errReader{err}
}

func (e errReader) Read(ctx context.Context, out block.Block) (int, error) {
	return 0, e.Err
}

// ReadFull reads the full length of the block. ReadFull reads short
// blocks only on EOF.
func ReadFull(ctx context.Context, r Reader, b block.Block) (n int, err error) {
	len := b.Len()
	for n < len {
		m, err := r.Read(ctx, b.Slice(n, len))
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

// A ClosingReader closes the provided io.Closer when Read returns
// any error.
type ClosingReader struct {
	Reader
	io.Closer
}

// Read implements blockio.Reader.
func (c *ClosingReader) Read(ctx context.Context, out block.Block) (int, error) {
	n, err := c.Reader.Read(ctx, out)
	if err != nil && c.Closer != nil {
		c.Closer.Close()
		c.Closer = nil
	}
	return n, err
}
