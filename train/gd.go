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

// GD fits a linear model by full-batch gradient descent. Each epoch
// streams the whole dataset once to accumulate the exact gradient,
// then applies a single momentum update. The gradient vector is the
// only full-dataset aggregate held in memory.
func GD(ctx context.Context, open Opener, cfg Config) (*Model, error) {
	var (
		d     = cfg.NumFeatures
		w     = make([]float64, d)
		vel   = make([]float64, d)
		grad  = make([]float64, d)
		x     = make([]float64, d)
		eta   = cfg.Eta0
		total int
	)
	for epoch := 0; epoch < cfg.Epochs; epoch++ {
		f, err := open(ctx)
		if err != nil {
			return nil, err
		}
		scan := blockio.NewScanner(blockio.NewReader(f), block.Make(cfg.Type, cfg.cols(), cfg.SamplesPerBlock))
		for j := range grad {
			grad[j] = 0
		}
		total = 0
		for scan.Scan(ctx, x) {
			var pred float64
			for j := range w {
				pred += w[j] * x[j]
			}
			err := pred - scan.Label()
			for j := range grad {
				grad[j] += err * x[j]
			}
			total++
		}
		if serr := scan.Err(); serr != nil {
			f.Close()
			return nil, serr
		}
		f.Close()
		if total == 0 {
			break
		}
		for j := range w {
			g := grad[j]/float64(total) + cfg.Reg*w[j]
			vel[j] = cfg.Momentum*vel[j] - eta*g
			w[j] += vel[j]
		}
		if cfg.LogFreq > 0 && (epoch+1)%cfg.LogFreq == 0 {
			log.Printf("gd: epoch %d eta %g", epoch, eta)
		}
		eta *= cfg.Damp
	}
	return &Model{W: w}, nil
}
