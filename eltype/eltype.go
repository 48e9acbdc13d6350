// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package eltype defines the element types that samples may be stored
// as, together with their byte widths and the arithmetic that turns a
// memory budget into a block size. Every sample in a dataset file is a
// packed vector of values of a single element type.
package eltype

import (
	"fmt"

	"github.com/grailbio/base/errors"
)

// A Type identifies the storage type of a single sample element.
type Type int

const (
	// Float64 is an IEEE-754 64-bit float, stored little-endian.
	Float64 Type = iota
	// Float32 is an IEEE-754 32-bit float, stored little-endian.
	Float32
	// Int64 is a little-endian signed 64-bit integer.
	Int64
	// Int32 is a little-endian signed 32-bit integer.
	Int32
	// Uint8 is a single unsigned byte, as used by raw pixel datasets.
	Uint8

	maxType
)

var widths = [maxType]int{
	Float64: 8,
	Float32: 4,
	Int64:   8,
	Int32:   4,
	Uint8:   1,
}

var names = [maxType]string{
	Float64: "float64",
	Float32: "float32",
	Int64:   "int64",
	Int32:   "int32",
	Uint8:   "uint8",
}

// Parse returns the type named by the provided identifier, as it
// appears in external configuration (e.g., "float64"). Unknown
// identifiers are a caller configuration error.
func Parse(name string) (Type, error) {
	for t, n := range names {
		if n == name {
			return Type(t), nil
		}
	}
	return 0, errors.E(errors.NotSupported, fmt.Sprintf("unsupported element type %q", name))
}

// Width returns the type's storage width in bytes. Width panics if
// the type is not one of the declared constants.
func (t Type) Width() int {
	if t < 0 || t >= maxType {
		panic(fmt.Sprintf("invalid element type %d", t))
	}
	return widths[t]
}

// String returns the type's external identifier.
func (t Type) String() string {
	if t < 0 || t >= maxType {
		return fmt.Sprintf("eltype(%d)", int(t))
	}
	return names[t]
}

// BytesPerSample returns the storage size of one sample comprising
// d features and a trailing label, all of type t.
func BytesPerSample(t Type, d int) int {
	return (d + 1) * t.Width()
}

// SamplesPerBlock converts a memory budget in megabytes into the
// number of samples loaded per block: the largest count whose storage
// fits the budget, clamped to the dataset size n. This value is the
// single knob bounding resident memory for every downstream component.
func SamplesPerBlock(t Type, d, n int, bufferMB float64) int {
	b := int(bufferMB * 1e6 / float64(BytesPerSample(t, d)))
	if b > n {
		b = n
	}
	if b < 1 {
		b = 1
	}
	return b
}
