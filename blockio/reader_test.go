// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package blockio

import (
	"bytes"
	"context"
	"testing"

	fuzz "github.com/google/gofuzz"
	"github.com/grailbio/base/errors"
	"github.com/mlml-io/mlml/block"
	"github.com/mlml-io/mlml/eltype"
)

// fuzzBlock creates a fuzzed block of n rows of cols float64 elements.
func fuzzBlock(fz *fuzz.Fuzzer, cols, n int) block.Block {
	b := block.Make(eltype.Float64, cols, n)
	for i := 0; i < n; i++ {
		for j := 0; j < cols; j++ {
			var v float64
			fz.Fuzz(&v)
			b.SetValue(i, j, v)
		}
	}
	return b
}

func TestReader(t *testing.T) {
	const (
		N    = 100
		cols = 4
	)
	var (
		fz  = fuzz.NewWithSeed(12345)
		in  = fuzzBlock(fz, cols, N)
		r   = NewReader(bytes.NewReader(in.Bytes()))
		out = block.Make(eltype.Float64, cols, N)
		ctx = context.Background()
	)
	n, err := ReadFull(ctx, r, out)
	if err != nil && err != EOF {
		t.Fatal(err)
	}
	if got, want := n, N; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	if !bytes.Equal(out.Bytes(), in.Bytes()) {
		t.Error("blocks do not match")
	}
	n, err = r.Read(ctx, block.Make(eltype.Float64, cols, 1))
	if got, want := err, EOF; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := n, 0; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestReaderShortFinalBlock(t *testing.T) {
	var (
		fz  = fuzz.NewWithSeed(2)
		in  = fuzzBlock(fz, 2, 10)
		r   = NewReader(bytes.NewReader(in.Bytes()))
		out = block.Make(eltype.Float64, 2, 4)
		ctx = context.Background()
	)
	var rows int
	for {
		n, err := r.Read(ctx, out)
		rows += n
		if err == EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
	}
	// 10 rows in blocks of 4: the final block holds just 2.
	if got, want := rows, 10; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestReaderTruncatedSample(t *testing.T) {
	var (
		fz  = fuzz.NewWithSeed(3)
		in  = fuzzBlock(fz, 4, 3)
		raw = in.Bytes()[:len(in.Bytes())-5]
		r   = NewReader(bytes.NewReader(raw))
		out = block.Make(eltype.Float64, 4, 3)
	)
	_, err := r.Read(context.Background(), out)
	if err == nil || err == EOF {
		t.Fatalf("expected truncation error, got %v", err)
	}
	if !errors.Is(errors.Integrity, err) {
		t.Errorf("error %v not Integrity", err)
	}
}

func TestMultiReader(t *testing.T) {
	const cols = 3
	var (
		fz   = fuzz.NewWithSeed(5)
		ins  = []block.Block{fuzzBlock(fz, cols, 7), fuzzBlock(fz, cols, 1), fuzzBlock(fz, cols, 4)}
		want bytes.Buffer
	)
	readers := []Reader{NewReader(bytes.NewReader(ins[0].Bytes()))}
	want.Write(ins[0].Bytes())
	// Empty readers are skipped over transparently.
	readers = append(readers, NewReader(bytes.NewReader(nil)))
	for _, in := range ins[1:] {
		readers = append(readers, NewReader(bytes.NewReader(in.Bytes())))
		want.Write(in.Bytes())
	}
	var (
		r   = MultiReader(readers...)
		out = block.Make(eltype.Float64, cols, 5)
		got bytes.Buffer
		ctx = context.Background()
	)
	for {
		n, err := r.Read(ctx, out)
		got.Write(out.Slice(0, n).Bytes())
		if err == EOF {
			break
		}
		if err != nil {
			t.Fatal(err)
		}
	}
	if !bytes.Equal(got.Bytes(), want.Bytes()) {
		t.Error("concatenated rows do not match inputs")
	}
	n, err := r.Read(ctx, out)
	if got, want := err, EOF; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	if got, want := n, 0; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestErrReader(t *testing.T) {
	var (
		fz      = fuzz.NewWithSeed(6)
		in      = fuzzBlock(fz, 2, 3)
		readErr = errors.New("read failed")
		r       = MultiReader(NewReader(bytes.NewReader(in.Bytes())), ErrReader(readErr))
		out     = block.Make(eltype.Float64, 2, 3)
		ctx     = context.Background()
	)
	n, err := r.Read(ctx, out)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := n, 3; got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
	if _, err = r.Read(ctx, out); err != readErr {
		t.Errorf("got %v, want %v", err, readErr)
	}
	// The error is sticky across subsequent reads.
	if _, err = r.Read(ctx, out); err != readErr {
		t.Errorf("got %v, want %v", err, readErr)
	}
}

func TestWriterAppendsInOrder(t *testing.T) {
	var (
		fz  = fuzz.NewWithSeed(4)
		in  = fuzzBlock(fz, 3, 9)
		buf bytes.Buffer
		w   = NewWriter(&buf)
		ctx = context.Background()
	)
	for i := 0; i < 9; i += 3 {
		if err := w.Write(ctx, in.Slice(i, i+3)); err != nil {
			t.Fatal(err)
		}
	}
	if !bytes.Equal(buf.Bytes(), in.Bytes()) {
		t.Error("written rows out of order")
	}
}

func TestScanner(t *testing.T) {
	const (
		N = 10
		d = 3
	)
	in := block.Make(eltype.Float64, d+1, N)
	for i := 0; i < N; i++ {
		for j := 0; j < d; j++ {
			in.SetValue(i, j, float64(i*d+j))
		}
		in.SetValue(i, d, float64(i))
	}
	var (
		scan = NewScanner(NewReader(bytes.NewReader(in.Bytes())), block.Make(eltype.Float64, d+1, 4))
		x    = make([]float64, d)
		ctx  = context.Background()
		i    int
	)
	for scan.Scan(ctx, x) {
		for j := 0; j < d; j++ {
			if got, want := x[j], float64(i*d+j); got != want {
				t.Fatalf("got %v, want %v", got, want)
			}
		}
		if got, want := scan.Label(), float64(i); got != want {
			t.Fatalf("got %v, want %v", got, want)
		}
		i++
	}
	if err := scan.Err(); err != nil {
		t.Fatal(err)
	}
	if got, want := i, N; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}
