// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package shuffle

import (
	"bufio"
	"context"
	"io"
	"math/rand"
	"os"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/mlml-io/mlml/block"
	"github.com/mlml-io/mlml/blockio"
	"github.com/mlml-io/mlml/scratch"
	"golang.org/x/sync/errgroup"
)

// externalShuffle produces a near-uniform random permutation of the
// dataset in two passes. The first pass reads the file block by
// block, shuffles each block in memory and spills it to a scratch
// slot. The second pass opens a cursor per slot and repeatedly pulls
// one small chunk from every still-active cursor, shuffles the
// combined rows again and appends them to the output. Mixing chunks
// of originally-distant blocks in the second pass is what pushes the
// result beyond a merely block-local shuffle.
//
// A short final block (when the block size does not divide the sample
// count) and short final chunks are carried through both passes at
// their natural size, so the output is a permutation for every
// dataset and block size combination.
func externalShuffle(ctx context.Context, cfg Config) error {
	scope, err := scratch.New("externalshuffle")
	if err != nil {
		return err
	}
	defer scope.Cleanup()
	nblocks, err := shuffleBlocks(ctx, cfg, scope)
	if err != nil {
		return err
	}
	if nblocks == 0 {
		return errors.E(errors.Integrity, "dataset file is empty")
	}
	chunk := cfg.blocksize() / nblocks
	if chunk < 1 {
		chunk = 1
	}
	cursors := make([]*scratch.Cursor, nblocks)
	defer closeCursors(cursors)
	for i := range cursors {
		if cursors[i], err = scope.Cursor(i, chunk, cfg.Type, cfg.cols()); err != nil {
			return err
		}
	}
	log.Printf("external shuffle: merging %d blocks in chunks of %d", nblocks, chunk)
	return writeOutput(ctx, cfg, func(ctx context.Context, w blockio.Writer) error {
		return mergeRounds(ctx, cfg, cursors, w)
	})
}

// shuffleBlocks runs the first phase, spilling one locally-shuffled
// block per slot. It returns the number of blocks spilled.
func shuffleBlocks(ctx context.Context, cfg Config, scope scratch.Scope) (int, error) {
	if cfg.Parallelism > 1 {
		return shuffleBlocksParallel(ctx, cfg, scope)
	}
	f, err := os.Open(cfg.Path)
	if err != nil {
		return 0, errors.E("open dataset", err)
	}
	defer f.Close()
	var (
		r   = blockio.NewReader(bufio.NewReader(f))
		buf = block.Make(cfg.Type, cfg.cols(), cfg.blocksize())
		i   int
	)
	for {
		n, err := blockio.ReadFull(ctx, r, buf)
		if err != nil && err != blockio.EOF {
			return i, err
		}
		if n > 0 {
			b := buf.Slice(0, n)
			b.Shuffle(blockRand(cfg.Seed, i))
			if werr := scope.WriteBlock(i, b); werr != nil {
				return i, werr
			}
			i++
		}
		if err == blockio.EOF {
			return i, nil
		}
	}
}

// shuffleBlocksParallel is the bounded-parallel variant of the first
// phase: cfg.Parallelism workers shuffle disjoint blocks, each
// reading its own section of the file. Blocks share no state, so the
// only cost of parallelism is holding one resident block per worker.
// The spilled slots are identical to the sequential path's, since
// each block's randomization is seeded by its index.
func shuffleBlocksParallel(ctx context.Context, cfg Config, scope scratch.Scope) (int, error) {
	f, err := os.Open(cfg.Path)
	if err != nil {
		return 0, errors.E("open dataset", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return 0, errors.E("stat dataset", err)
	}
	var (
		rowBytes  = int64(cfg.cols() * cfg.Type.Width())
		totalRows = int(info.Size() / rowBytes)
		blocksize = cfg.blocksize()
		nblocks   = (totalRows + blocksize - 1) / blocksize
	)
	if info.Size()%rowBytes != 0 {
		return 0, errors.E(errors.Integrity, "dataset ends partway through a sample")
	}
	g, gctx := errgroup.WithContext(ctx)
	indices := make(chan int)
	g.Go(func() error {
		defer close(indices)
		for i := 0; i < nblocks; i++ {
			select {
			case indices <- i:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})
	for w := 0; w < cfg.Parallelism; w++ {
		g.Go(func() error {
			buf := block.Make(cfg.Type, cfg.cols(), blocksize)
			for i := range indices {
				beg := i * blocksize
				end := beg + blocksize
				if end > totalRows {
					end = totalRows
				}
				var (
					sect = io.NewSectionReader(f, int64(beg)*rowBytes, int64(end-beg)*rowBytes)
					r    = blockio.NewReader(bufio.NewReader(sect))
					b    = buf.Slice(0, end-beg)
				)
				if _, err := blockio.ReadFull(gctx, r, b); err != nil && err != blockio.EOF {
					return err
				}
				b.Shuffle(blockRand(cfg.Seed, i))
				if err := scope.WriteBlock(i, b); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return nblocks, nil
}

// mergeRounds runs the second phase: each round pulls the next chunk
// from every active cursor, drops exhausted cursors, shuffles the
// combined rows and appends them to w. Every cursor strictly advances
// or is removed each round, so the phase terminates.
func mergeRounds(ctx context.Context, cfg Config, cursors []*scratch.Cursor, w blockio.Writer) error {
	var (
		rng      = rand.New(rand.NewSource(cfg.Seed))
		active   = cursors
		combined block.Block
	)
	for len(active) > 0 {
		combined = combined.Slice(0, 0)
		survivors := active[:0]
		for _, cur := range active {
			b, err := cur.Next(ctx)
			if err == blockio.EOF {
				continue
			}
			if err != nil {
				return err
			}
			survivors = append(survivors, cur)
			combined = block.Append(combined, b)
		}
		active = survivors
		if combined.Len() > 0 {
			combined.Shuffle(rng)
			if err := w.Write(ctx, combined); err != nil {
				return err
			}
		}
	}
	return nil
}

// writeOutput streams the emitted blocks into a file alongside
// cfg.Path and renames it over the original only after emit, flush
// and close have all succeeded, so a failed run never leaves a
// half-written dataset in place.
func writeOutput(ctx context.Context, cfg Config, emit func(context.Context, blockio.Writer) error) error {
	tmp := cfg.Path + ".shuffled"
	f, err := os.Create(tmp)
	if err != nil {
		return errors.E("create shuffled output", err)
	}
	defer os.Remove(tmp)
	buf := bufio.NewWriter(f)
	if err = emit(ctx, blockio.NewWriter(buf)); err != nil {
		f.Close()
		return err
	}
	if err = buf.Flush(); err != nil {
		f.Close()
		return errors.E("write dataset", err)
	}
	if err = f.Close(); err != nil {
		return errors.E("write dataset", err)
	}
	if err = os.Rename(tmp, cfg.Path); err != nil {
		return errors.E("rename shuffled output", err)
	}
	return nil
}

// blockRand returns the generator used to randomize block i. Seeding
// by block index keeps runs reproducible regardless of the order in
// which workers process blocks.
func blockRand(seed int64, i int) *rand.Rand {
	return rand.New(rand.NewSource(seed + int64(i) + 1))
}

func closeCursors(cursors []*scratch.Cursor) {
	for _, c := range cursors {
		if c != nil {
			c.Close()
		}
	}
}
