// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package shuffle

import (
	"bufio"
	"bytes"
	"container/heap"
	"context"
	"encoding/binary"
	"os"
	"sort"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/mlml-io/mlml/block"
	"github.com/mlml-io/mlml/blockio"
	"github.com/mlml-io/mlml/scratch"
	"github.com/spaolacci/murmur3"
)

// keyBytes is the width of the sort key prefixed to each row while it
// lives in scratch. Keys are stored big-endian so that byte-wise
// comparison orders them numerically.
const keyBytes = 8

// externalSort reorders the dataset into the total order of
// pseudo-random per-sample keys. Each sample's key is derived from
// the run's seed and the sample's position in the input file, so a
// fixed seed fully determines the output: two runs over the same
// input produce byte-identical files. That determinism is the reason
// to prefer this variant over externalShuffle's round-robin mixing.
//
// The first pass sorts one block at a time in memory by key and
// spills the keyed rows to a scratch slot per block. The second pass
// merges the sorted runs: one refillable buffer per run, repeatedly
// emitting the run whose next key is smallest, stripping keys as rows
// are appended to the output.
func externalSort(ctx context.Context, cfg Config) error {
	width := cfg.Type.Width()
	if keyBytes%width != 0 {
		return errors.E(errors.NotSupported, "element width does not divide the sort key width")
	}
	scope, err := scratch.New("externalsort")
	if err != nil {
		return err
	}
	defer scope.Cleanup()
	nblocks, err := sortBlocks(ctx, cfg, scope)
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
	keyedCols := cfg.cols() + keyBytes/width
	runs := make([]*sortRun, 0, nblocks)
	defer func() {
		for _, r := range runs {
			r.cur.Close()
		}
	}()
	for i := 0; i < nblocks; i++ {
		cur, err := scope.Cursor(i, chunk, cfg.Type, keyedCols)
		if err != nil {
			return err
		}
		runs = append(runs, &sortRun{cur: cur})
	}
	log.Printf("external sort: merging %d sorted runs in chunks of %d", nblocks, chunk)
	return writeOutput(ctx, cfg, func(ctx context.Context, w blockio.Writer) error {
		return mergeRuns(ctx, cfg, runs, w)
	})
}

// sortBlocks runs the first phase: read each block, prefix every row
// with its key, sort the keyed rows in memory and spill them to slot
// i. Returns the number of runs spilled.
func sortBlocks(ctx context.Context, cfg Config, scope scratch.Scope) (int, error) {
	f, err := os.Open(cfg.Path)
	if err != nil {
		return 0, errors.E("open dataset", err)
	}
	defer f.Close()
	var (
		width     = cfg.Type.Width()
		keyedCols = cfg.cols() + keyBytes/width
		r         = blockio.NewReader(bufio.NewReader(f))
		buf       = block.Make(cfg.Type, cfg.cols(), cfg.blocksize())
		keyed     = block.Make(cfg.Type, keyedCols, cfg.blocksize())
		i, global int
	)
	for {
		n, err := blockio.ReadFull(ctx, r, buf)
		if err != nil && err != blockio.EOF {
			return i, err
		}
		if n > 0 {
			kb := keyed.Slice(0, n)
			for row := 0; row < n; row++ {
				binary.BigEndian.PutUint64(kb.Row(row), sampleKey(cfg.Seed, global))
				copy(kb.Row(row)[keyBytes:], buf.Row(row))
				global++
			}
			sort.Sort(keyedRows{kb})
			if werr := scope.WriteBlock(i, kb); werr != nil {
				return i, werr
			}
			i++
		}
		if err == blockio.EOF {
			return i, nil
		}
	}
}

// sampleKey returns the sort key assigned to the sample at position
// index in the input file.
func sampleKey(seed int64, index int) uint64 {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(index))
	return murmur3.Sum64WithSeed(b[:], uint32(seed))
}

// keyedRows orders a keyed block by its row-prefix keys.
type keyedRows struct{ block.Block }

func (k keyedRows) Less(i, j int) bool {
	return bytes.Compare(k.Row(i)[:keyBytes], k.Row(j)[:keyBytes]) < 0
}

// A sortRun is one sorted sub-run during the merge: a cursor over its
// scratch slot and the chunk most recently pulled from it.
type sortRun struct {
	cur *scratch.Cursor
	blk block.Block
	idx int
}

// key returns the run's next undelivered key.
func (r *sortRun) key() []byte {
	return r.blk.Row(r.idx)[:keyBytes]
}

// fill pulls the run's next chunk. It returns blockio.EOF when the
// run is exhausted.
func (r *sortRun) fill(ctx context.Context) error {
	blk, err := r.cur.Next(ctx)
	if err != nil {
		return err
	}
	r.blk, r.idx = blk, 0
	return nil
}

// A runHeap is a min-heap of runs ordered by next key.
type runHeap []*sortRun

func (h runHeap) Len() int            { return len(h) }
func (h runHeap) Less(i, j int) bool  { return bytes.Compare(h[i].key(), h[j].key()) < 0 }
func (h runHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *runHeap) Push(x interface{}) { *h = append(*h, x.(*sortRun)) }
func (h *runHeap) Pop() interface{} {
	old := *h
	n := len(old)
	elem := old[n-1]
	*h = old[:n-1]
	return elem
}

// mergeRuns runs the second phase: a k-way merge of the sorted runs,
// buffering up to one block of output rows between writes and
// stripping the key prefix from each emitted row.
func mergeRuns(ctx context.Context, cfg Config, runs []*sortRun, w blockio.Writer) error {
	h := make(runHeap, 0, len(runs))
	for _, r := range runs {
		switch err := r.fill(ctx); err {
		case nil:
			h = append(h, r)
		case blockio.EOF:
		default:
			return err
		}
	}
	heap.Init(&h)
	var (
		out = block.Make(cfg.Type, cfg.cols(), cfg.blocksize())
		n   int
	)
	for len(h) > 0 {
		r := h[0]
		copy(out.Row(n), r.blk.Row(r.idx)[keyBytes:])
		n++
		r.idx++
		if r.idx == r.blk.Len() {
			switch err := r.fill(ctx); err {
			case nil:
				heap.Fix(&h, 0)
			case blockio.EOF:
				heap.Remove(&h, 0)
			default:
				return err
			}
		} else {
			heap.Fix(&h, 0)
		}
		if n == out.Len() {
			if err := w.Write(ctx, out); err != nil {
				return err
			}
			n = 0
		}
	}
	if n > 0 {
		return w.Write(ctx, out.Slice(0, n))
	}
	return nil
}
