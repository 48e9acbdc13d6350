// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package shuffle implements bounded-memory reordering of flat binary
// sample files. Datasets too large for memory are reordered through a
// two-phase external algorithm: blocks are randomized (or key-sorted)
// in memory one at a time and spilled to scratch slots, then merged
// back out through a streaming writer. Peak resident sample memory is
// one block regardless of dataset size, and all disk access is
// sequential.
//
// Two algorithm variants are provided. ExternalShuffle mixes samples
// across blocks with a round-robin merge and a second randomization
// pass. ExternalSort assigns every sample a deterministic pseudo-random
// key derived from a seed and produces the total order of those keys,
// so a fixed seed yields byte-identical output across runs.
package shuffle

import (
	"context"
	"fmt"

	"github.com/grailbio/base/errors"
	"github.com/mlml-io/mlml/eltype"
)

// Algorithm names accepted by Shuffle.
const (
	ExternalShuffle = "external_shuffle"
	ExternalSort    = "external_sort"
)

// Algorithms lists the valid algorithm names.
var Algorithms = []string{ExternalShuffle, ExternalSort}

// Config describes a single shuffle run.
type Config struct {
	// Type is the element type of every value in the dataset.
	Type eltype.Type
	// N is the total number of samples in the dataset.
	N int
	// NumFeatures is the number of features per sample, excluding the
	// trailing label.
	NumFeatures int
	// SamplesPerBlock bounds the number of samples resident in memory
	// at any instant. It is typically derived from a memory budget by
	// eltype.SamplesPerBlock.
	SamplesPerBlock int
	// Path is the dataset file to be shuffled. The shuffled output
	// replaces the file in place: it is written alongside and renamed
	// over the original only after a fully successful run.
	Path string
	// Seed seeds every random choice made by the run. Runs with equal
	// seeds over equal inputs make equal random choices.
	Seed int64
	// Parallelism is the number of blocks randomized concurrently
	// during the first phase. Zero or one selects the sequential
	// path. Peak resident memory grows to Parallelism blocks.
	Parallelism int
}

func (c Config) cols() int { return c.NumFeatures + 1 }

// blocksize returns the per-block sample count, clamped to the
// dataset size.
func (c Config) blocksize() int {
	if c.SamplesPerBlock > c.N {
		return c.N
	}
	return c.SamplesPerBlock
}

func (c Config) validate() error {
	if c.N <= 0 {
		return errors.E(errors.Invalid, fmt.Sprintf("invalid sample count %d", c.N))
	}
	if c.NumFeatures <= 0 {
		return errors.E(errors.Invalid, fmt.Sprintf("invalid feature count %d", c.NumFeatures))
	}
	if c.SamplesPerBlock <= 0 {
		return errors.E(errors.Invalid, fmt.Sprintf("invalid block size %d", c.SamplesPerBlock))
	}
	return nil
}

// Shuffle reorders the dataset file named by cfg.Path using the named
// algorithm. The output file holds every input sample exactly once
// and is byte-for-byte the same length; only the row order differs.
// Unrecognized algorithm names fail before any I/O begins.
func Shuffle(ctx context.Context, algorithm string, cfg Config) error {
	if err := cfg.validate(); err != nil {
		return err
	}
	switch algorithm {
	case ExternalShuffle:
		return externalShuffle(ctx, cfg)
	case ExternalSort:
		return externalSort(ctx, cfg)
	}
	return errors.E(errors.Invalid, fmt.Sprintf("invalid shuffling algorithm %q", algorithm))
}
