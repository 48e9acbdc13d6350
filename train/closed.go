// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package train

import (
	"context"

	"github.com/grailbio/base/errors"
	"github.com/mlml-io/mlml/block"
	"github.com/mlml-io/mlml/blockio"
	"gonum.org/v1/gonum/mat"
)

// ClosedForm fits a ridge regression by the normal equations,
// streamed: one pass over the dataset accumulates XᵀX and Xᵀy, whose
// sizes depend only on the feature count, then solves
// (XᵀX + reg·I) w = Xᵀy. The dataset itself never needs to fit in
// memory; only the d-by-d Gram matrix does.
func ClosedForm(ctx context.Context, r blockio.Reader, cfg Config) (*Model, error) {
	var (
		d    = cfg.NumFeatures
		gram = make([]float64, d*d)
		xty  = make([]float64, d)
		buf  = block.Make(cfg.Type, cfg.cols(), cfg.SamplesPerBlock)
	)
	for {
		n, err := blockio.ReadFull(ctx, r, buf)
		if err != nil && err != blockio.EOF {
			return nil, err
		}
		for i := 0; i < n; i++ {
			y := buf.Value(i, d)
			for j := 0; j < d; j++ {
				xj := buf.Value(i, j)
				xty[j] += xj * y
				for k := j; k < d; k++ {
					gram[j*d+k] += xj * buf.Value(i, k)
				}
			}
		}
		if err == blockio.EOF {
			break
		}
	}
	for j := 0; j < d; j++ {
		gram[j*d+j] += cfg.Reg
		for k := j + 1; k < d; k++ {
			gram[k*d+j] = gram[j*d+k]
		}
	}
	var w mat.VecDense
	if err := w.SolveVec(mat.NewDense(d, d, gram), mat.NewVecDense(d, xty)); err != nil {
		return nil, errors.E("solve normal equations", err)
	}
	m := &Model{W: make([]float64, d)}
	copy(m.W, w.RawVector().Data)
	return m, nil
}
