// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package block

import (
	"bytes"
	"math/rand"
	"sort"
	"testing"

	fuzz "github.com/google/gofuzz"
	"github.com/mlml-io/mlml/eltype"
)

// fuzzBlock creates a fuzzed block of n rows of cols elements.
func fuzzBlock(fz *fuzz.Fuzzer, typ eltype.Type, cols, n int) Block {
	b := Make(typ, cols, n)
	for i := 0; i < n; i++ {
		for j := 0; j < cols; j++ {
			var v float64
			fz.Fuzz(&v)
			b.SetValue(i, j, v)
		}
	}
	return b
}

func TestValueRoundTrip(t *testing.T) {
	for _, typ := range []eltype.Type{eltype.Float64, eltype.Float32, eltype.Int64, eltype.Int32, eltype.Uint8} {
		b := Make(typ, 4, 3)
		for i := 0; i < b.Len(); i++ {
			for j := 0; j < b.Cols(); j++ {
				v := float64(i*b.Cols() + j)
				b.SetValue(i, j, v)
				if got, want := b.Value(i, j), v; got != want {
					t.Errorf("%s (%d,%d): got %v, want %v", typ, i, j, got, want)
				}
			}
		}
	}
}

func TestSwap(t *testing.T) {
	var (
		fz = fuzz.NewWithSeed(1)
		b  = fuzzBlock(fz, eltype.Float64, 5, 2)
		r0 = append([]byte{}, b.Row(0)...)
		r1 = append([]byte{}, b.Row(1)...)
	)
	b.Swap(0, 1)
	if !bytes.Equal(b.Row(0), r1) || !bytes.Equal(b.Row(1), r0) {
		t.Error("swap did not exchange rows")
	}
}

func TestSliceCopyAppend(t *testing.T) {
	var (
		fz = fuzz.NewWithSeed(2)
		b  = fuzzBlock(fz, eltype.Float32, 3, 10)
	)
	g := Make(eltype.Float32, 3, 4)
	if got, want := Copy(g, b.Slice(2, 6)), 4; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	if !bytes.Equal(g.Bytes(), b.Slice(2, 6).Bytes()) {
		t.Error("copied rows do not match")
	}
	var h Block
	h = Append(h, b.Slice(0, 5))
	h = Append(h, b.Slice(5, 10))
	if got, want := h.Len(), 10; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	if !bytes.Equal(h.Bytes(), b.Bytes()) {
		t.Error("appended rows do not match")
	}
}

func TestShufflePermutes(t *testing.T) {
	const n = 1000
	b := Make(eltype.Int64, 1, n)
	for i := 0; i < n; i++ {
		b.SetValue(i, 0, float64(i))
	}
	b.Shuffle(rand.New(rand.NewSource(42)))
	vals := make([]float64, n)
	var moved bool
	for i := 0; i < n; i++ {
		vals[i] = b.Value(i, 0)
		if vals[i] != float64(i) {
			moved = true
		}
	}
	if !moved {
		t.Error("shuffle left rows in place")
	}
	sort.Float64s(vals)
	for i := 0; i < n; i++ {
		if got, want := vals[i], float64(i); got != want {
			t.Fatalf("row %d: got %v, want %v", i, got, want)
		}
	}
}

func TestFromBytes(t *testing.T) {
	b := FromBytes(eltype.Uint8, 4, make([]byte, 12))
	if got, want := b.Len(), 3; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	defer func() {
		if recover() == nil {
			t.Error("expected panic on ragged data")
		}
	}()
	FromBytes(eltype.Uint8, 4, make([]byte, 13))
}
