// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package train

import (
	"context"

	"github.com/grailbio/base/log"
	"github.com/mlml-io/mlml/shuffle"
)

// SSGD is streaming stochastic gradient descent for datasets larger
// than memory: before every epoch the training file is reordered in
// place by the external shuffle engine, then the epoch streams it
// sequentially with per-sample updates. Sequential passes over a
// freshly permuted file recover most of SGD's sampling behavior while
// keeping both the shuffle and the pass within the block budget.
//
// The algorithm argument selects the shuffle variant and is validated
// before any I/O. The shuffle seed advances every epoch so that
// epochs see distinct permutations while the whole run remains
// reproducible from cfg and seed.
func SSGD(ctx context.Context, trainPath, algorithm string, n int, seed int64, cfg Config) (*Model, error) {
	state := newSGDState(cfg)
	open := FileOpener(trainPath)
	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		err := shuffle.Shuffle(ctx, algorithm, shuffle.Config{
			Type:            cfg.Type,
			N:               n,
			NumFeatures:     cfg.NumFeatures,
			SamplesPerBlock: cfg.SamplesPerBlock,
			Path:            trainPath,
			Seed:            seed + int64(epoch),
		})
		if err != nil {
			return nil, err
		}
		log.Printf("ssgd: epoch %d shuffled %s", epoch, trainPath)
		if err := sgdEpoch(ctx, open, cfg, state, epoch); err != nil {
			return nil, err
		}
		state.eta *= cfg.Damp
	}
	return &Model{W: state.w}, nil
}
