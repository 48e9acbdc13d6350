// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package train

import (
	"context"

	"github.com/grailbio/base/log"
	"github.com/mlml-io/mlml/block"
	"github.com/mlml-io/mlml/blockio"
)

// sgdState carries the weight and momentum-velocity vectors across
// epochs.
type sgdState struct {
	w, vel []float64
	eta    float64
}

func newSGDState(cfg Config) *sgdState {
	return &sgdState{
		w:   make([]float64, cfg.NumFeatures),
		vel: make([]float64, cfg.NumFeatures),
		eta: cfg.Eta0,
	}
}

// step applies one squared-loss update for the sample (x, y).
func (s *sgdState) step(cfg Config, x []float64, y float64) {
	var pred float64
	for j, w := range s.w {
		pred += w * x[j]
	}
	err := pred - y
	for j := range s.w {
		g := err*x[j] + cfg.Reg*s.w[j]
		s.vel[j] = cfg.Momentum*s.vel[j] - s.eta*g
		s.w[j] += s.vel[j]
	}
}

// SGD fits a linear model by per-sample stochastic gradient descent
// with momentum, making cfg.Epochs passes over the dataset and
// damping the learning rate after each. Each pass streams the data
// in blocks of cfg.SamplesPerBlock.
func SGD(ctx context.Context, open Opener, cfg Config) (*Model, error) {
	state := newSGDState(cfg)
	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		if err := sgdEpoch(ctx, open, cfg, state, epoch); err != nil {
			return nil, err
		}
		state.eta *= cfg.Damp
	}
	return &Model{W: state.w}, nil
}

func sgdEpoch(ctx context.Context, open Opener, cfg Config, state *sgdState, epoch int) error {
	f, err := open(ctx)
	if err != nil {
		return err
	}
	defer f.Close()
	var (
		scan = blockio.NewScanner(blockio.NewReader(f), block.Make(cfg.Type, cfg.cols(), cfg.SamplesPerBlock))
		x    = make([]float64, cfg.NumFeatures)
		i    int
	)
	for scan.Scan(ctx, x) {
		state.step(cfg, x, scan.Label())
		i++
		if cfg.LogFreq > 0 && i%cfg.LogFreq == 0 {
			log.Printf("sgd: epoch %d sample %d eta %g", epoch, i, state.eta)
		}
	}
	return scan.Err()
}
