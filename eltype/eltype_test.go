// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package eltype

import (
	"testing"

	"github.com/grailbio/base/errors"
)

func TestWidths(t *testing.T) {
	for _, c := range []struct {
		name  string
		width int
	}{
		{"float64", 8},
		{"float32", 4},
		{"int64", 8},
		{"int32", 4},
		{"uint8", 1},
	} {
		typ, err := Parse(c.name)
		if err != nil {
			t.Fatal(err)
		}
		if got, want := typ.Width(), c.width; got != want {
			t.Errorf("%s: got %v, want %v", c.name, got, want)
		}
		if got, want := typ.String(), c.name; got != want {
			t.Errorf("got %v, want %v", got, want)
		}
	}
}

func TestParseUnsupported(t *testing.T) {
	_, err := Parse("complex128")
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(errors.NotSupported, err) {
		t.Errorf("error %v not NotSupported", err)
	}
}

func TestSamplesPerBlock(t *testing.T) {
	// 10MB budget, 3 features + label of float64: 32 bytes per sample.
	if got, want := SamplesPerBlock(Float64, 3, 1e9, 10), 312500; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	// Clamped to n when the budget exceeds the dataset.
	if got, want := SamplesPerBlock(Float64, 3, 100, 10), 100; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
	// Never less than one sample, even for absurdly small budgets.
	if got, want := SamplesPerBlock(Float64, 1<<20, 100, 1e-6), 1; got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}
