// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package block contains definitions and utilities for sample blocks.
// A block is a fixed buffer of consecutive samples as processed by the
// shuffle engine: a rectangular array of rows, each row holding a
// sample's feature values and trailing label packed as raw bytes in
// the dataset file's own layout. Keeping rows as bytes lets blocks
// move between disk and memory without decoding, and lets row
// operations (swap, copy, shuffle) work uniformly across element
// types.
package block

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/rand"

	"github.com/mlml-io/mlml/eltype"
)

var order = binary.LittleEndian

// A Block is a rectangular buffer of samples: Len rows of Cols
// elements, all of one element type. Blocks share underlying storage
// when sliced, in the manner of Go slices.
type Block struct {
	typ  eltype.Type
	cols int
	data []byte
}

// Make creates a new block of the given type and shape. The returned
// block's rows are zero.
func Make(typ eltype.Type, cols, n int) Block {
	return Block{typ, cols, make([]byte, n*cols*typ.Width())}
}

// FromBytes interprets data as a block of the given type and number
// of columns. FromBytes panics if data does not hold a whole number
// of rows.
func FromBytes(typ eltype.Type, cols int, data []byte) Block {
	if len(data)%(cols*typ.Width()) != 0 {
		panic(fmt.Sprintf("block: %d bytes is not a whole number of %d-column rows", len(data), cols))
	}
	return Block{typ, cols, data}
}

// Type returns the block's element type.
func (b Block) Type() eltype.Type { return b.typ }

// Cols returns the number of elements per row.
func (b Block) Cols() int { return b.cols }

// RowBytes returns the storage size of one row.
func (b Block) RowBytes() int { return b.cols * b.typ.Width() }

// Len returns the number of rows in the block.
func (b Block) Len() int {
	if b.cols == 0 {
		return 0
	}
	return len(b.data) / b.RowBytes()
}

// Bytes returns the block's backing storage. The layout matches the
// dataset file exactly: rows back to back with no separators.
func (b Block) Bytes() []byte { return b.data }

// Row returns the raw bytes of row i.
func (b Block) Row(i int) []byte {
	w := b.RowBytes()
	return b.data[i*w : (i+1)*w]
}

// Slice returns the sub-block of rows [i, j). The returned block
// shares storage with b.
func (b Block) Slice(i, j int) Block {
	w := b.RowBytes()
	return Block{b.typ, b.cols, b.data[i*w : j*w]}
}

// Swap swaps rows i and j in place.
func (b Block) Swap(i, j int) {
	var (
		w  = b.RowBytes()
		ri = b.data[i*w : (i+1)*w]
		rj = b.data[j*w : (j+1)*w]
	)
	for k := range ri {
		ri[k], rj[k] = rj[k], ri[k]
	}
}

// Shuffle permutes the block's rows uniformly at random using the
// provided generator.
func (b Block) Shuffle(r *rand.Rand) {
	r.Shuffle(b.Len(), b.Swap)
}

// Value decodes element (i, j) as a float64, converting from the
// block's element type.
func (b Block) Value(i, j int) float64 {
	p := b.data[i*b.RowBytes()+j*b.typ.Width():]
	switch b.typ {
	case eltype.Float64:
		return math.Float64frombits(order.Uint64(p))
	case eltype.Float32:
		return float64(math.Float32frombits(order.Uint32(p)))
	case eltype.Int64:
		return float64(int64(order.Uint64(p)))
	case eltype.Int32:
		return float64(int32(order.Uint32(p)))
	case eltype.Uint8:
		return float64(p[0])
	}
	panic("invalid element type")
}

// SetValue encodes v as element (i, j), converting to the block's
// element type.
func (b Block) SetValue(i, j int, v float64) {
	p := b.data[i*b.RowBytes()+j*b.typ.Width():]
	switch b.typ {
	case eltype.Float64:
		order.PutUint64(p, math.Float64bits(v))
	case eltype.Float32:
		order.PutUint32(p, math.Float32bits(float32(v)))
	case eltype.Int64:
		order.PutUint64(p, uint64(int64(v)))
	case eltype.Int32:
		order.PutUint32(p, uint32(int32(v)))
	case eltype.Uint8:
		p[0] = byte(v)
	default:
		panic("invalid element type")
	}
}

// Copy copies the rows of src to dst, returning the number of rows
// copied, which is the smaller of the two lengths. Copy panics if the
// blocks have different shapes.
func Copy(dst, src Block) int {
	if dst.typ != src.typ || dst.cols != src.cols {
		panic("block: copy shape mismatch")
	}
	return copy(dst.data, src.data) / dst.RowBytes()
}

// Append appends the rows of g to f, returning the appended block.
// Its semantics matches that of Go's builtin append: the returned
// block may share underlying storage with f. A zero block may be
// appended to.
func Append(f, g Block) Block {
	if f.cols == 0 {
		f.typ, f.cols = g.typ, g.cols
	}
	if f.typ != g.typ || f.cols != g.cols {
		panic("block: append shape mismatch")
	}
	f.data = append(f.data, g.data...)
	return f
}
