// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package train implements linear model trainers that honor the same
// memory budget as the shuffle engine: every pass over a dataset
// streams it through a blockio.Reader in blocks of the configured
// sample count, so resident memory stays bounded no matter how large
// the file is. The streaming stochastic trainer (SSGD) reshuffles the
// dataset file between epochs with the shuffle package.
package train

import (
	"context"
	"io"
	"math"
	"os"

	"github.com/grailbio/base/errors"
	"github.com/mlml-io/mlml/block"
	"github.com/mlml-io/mlml/blockio"
	"github.com/mlml-io/mlml/eltype"
)

// A Model is a trained linear model: one weight per feature.
type Model struct {
	W []float64
}

// Predict returns the model's raw output for the feature vector x.
func (m *Model) Predict(x []float64) float64 {
	var y float64
	for j, w := range m.W {
		y += w * x[j]
	}
	return y
}

// Config carries the training surface shared by all trainers. Fields
// irrelevant to a given trainer are ignored by it.
type Config struct {
	// Type, NumFeatures and SamplesPerBlock describe the dataset and
	// its block budget, exactly as for shuffle.Config.
	Type            eltype.Type
	NumFeatures     int
	SamplesPerBlock int

	// Epochs is the number of passes over the training data.
	Epochs int
	// Eta0 is the initial learning rate; Damp multiplies it after
	// every epoch.
	Eta0, Damp float64
	// Momentum is applied to changes in weight.
	Momentum float64
	// Reg is the L2 regularization constant.
	Reg float64
	// LogFreq is the number of samples between log entries; zero
	// disables progress logging.
	LogFreq int
}

func (c Config) cols() int { return c.NumFeatures + 1 }

// An Opener opens a fresh sequential view of a dataset, positioned at
// its first sample. Trainers that make multiple passes call it once
// per pass.
type Opener func(ctx context.Context) (io.ReadCloser, error)

// FileOpener returns an Opener over a local dataset file.
func FileOpener(path string) Opener {
	return func(ctx context.Context) (io.ReadCloser, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, errors.E("open dataset", err)
		}
		return f, nil
	}
}

// Accuracy streams the dataset in r and returns the fraction of
// samples whose label the model predicts exactly after rounding the
// raw output to the nearest class identifier.
func Accuracy(ctx context.Context, r blockio.Reader, m *Model, cfg Config) (float64, error) {
	var (
		scan    = blockio.NewScanner(r, block.Make(cfg.Type, cfg.cols(), cfg.SamplesPerBlock))
		x       = make([]float64, cfg.NumFeatures)
		correct int
		total   int
	)
	for scan.Scan(ctx, x) {
		if math.Round(m.Predict(x)) == scan.Label() {
			correct++
		}
		total++
	}
	if err := scan.Err(); err != nil {
		return 0, err
	}
	if total == 0 {
		return 0, nil
	}
	return float64(correct) / float64(total), nil
}
