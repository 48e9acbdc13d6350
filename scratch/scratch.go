// Copyright 2019 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package scratch manages the temporary slot files a shuffle run
// spills blocks to between its two phases. A Scope owns one temporary
// directory holding one slot file per original block index; the whole
// directory is removed by Cleanup on every exit path, so no scratch
// state survives a run, successful or not. The only supported access
// pattern per slot is a single writer followed by a single reader.
package scratch

import (
	"bufio"
	"context"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/grailbio/base/errors"
	"github.com/mlml-io/mlml/block"
	"github.com/mlml-io/mlml/blockio"
	"github.com/mlml-io/mlml/eltype"
)

// A Scope manages a set of numbered scratch slots backed by a
// temporary directory.
type Scope string

// New creates and returns a new scope backed by a temporary
// directory.
func New(name string) (Scope, error) {
	dir, err := ioutil.TempDir("", fmt.Sprintf("scratch-%s-", name))
	if err != nil {
		return "", err
	}
	return Scope(dir), nil
}

func (dir Scope) slotPath(index int) string {
	return filepath.Join(string(dir), fmt.Sprintf("slot-%08d", index))
}

// WriteBlock persists b as slot index, overwriting any prior content
// at that slot. There is no ordering constraint between indices.
func (dir Scope) WriteBlock(index int, b block.Block) error {
	f, err := os.Create(dir.slotPath(index))
	if err != nil {
		return errors.E(fmt.Sprintf("write scratch slot %d", index), err)
	}
	if _, err = f.Write(b.Bytes()); err != nil {
		f.Close()
		return errors.E(fmt.Sprintf("write scratch slot %d", index), err)
	}
	if err = f.Close(); err != nil {
		return errors.E(fmt.Sprintf("write scratch slot %d", index), err)
	}
	return nil
}

// Cursor returns a cursor over slot index that yields successive
// chunks of chunk rows (the last chunk possibly shorter) until the
// slot is exhausted. The slot must have been written by a prior
// WriteBlock.
func (dir Scope) Cursor(index, chunk int, typ eltype.Type, cols int) (*Cursor, error) {
	f, err := os.Open(dir.slotPath(index))
	if os.IsNotExist(err) {
		return nil, errors.E(errors.NotExist, fmt.Sprintf("scratch slot %d was never written", index))
	}
	if err != nil {
		return nil, errors.E(fmt.Sprintf("open scratch slot %d", index), err)
	}
	return &Cursor{
		reader: blockio.NewReader(bufio.NewReader(f)),
		closer: f,
		buf:    block.Make(typ, cols, chunk),
	}, nil
}

// Cleanup removes the scope's temporary directory and every slot in
// it. It is safe to call Cleanup while cursors are still open; their
// reads run to completion on the already-open files.
func (dir Scope) Cleanup() error {
	return os.RemoveAll(string(dir))
}

// A Cursor is a lazy reader positioned over one scratch slot. Each
// call to Next returns the slot's next chunk of rows; the cursor's
// underlying file is closed when the slot is exhausted or a read
// fails.
type Cursor struct {
	reader blockio.Reader
	closer *os.File
	buf    block.Block
	err    error
}

// Next returns the next chunk of the cursor's slot. The returned
// block is valid only until the following call to Next. Next returns
// blockio.EOF when the slot is exhausted.
func (c *Cursor) Next(ctx context.Context) (block.Block, error) {
	if c.err != nil {
		return block.Block{}, c.err
	}
	n, err := blockio.ReadFull(ctx, c.reader, c.buf)
	switch {
	case err == blockio.EOF && n > 0:
		c.err = blockio.EOF
		c.close()
		return c.buf.Slice(0, n), nil
	case err != nil:
		c.err = err
		c.close()
		return block.Block{}, err
	}
	return c.buf, nil
}

// Close releases the cursor's underlying file, if still open. It is
// a no-op after the cursor has been exhausted.
func (c *Cursor) Close() error {
	if c.err == nil {
		c.err = blockio.EOF
	}
	return c.close()
}

func (c *Cursor) close() error {
	if c.closer == nil {
		return nil
	}
	err := c.closer.Close()
	c.closer = nil
	return err
}
