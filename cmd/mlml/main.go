// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Mlml is a memory-limited machine learning utility. It trains and
// evaluates linear models over flat binary sample files that may be
// far larger than available memory: the memory budget given by
// -buffer bounds the number of samples resident at any instant, for
// shuffling and training alike. Dataset files may be local paths or
// s3:// URLs; the streaming-SGD mode reshuffles the training file in
// place and therefore requires it to be local.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/file/s3file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/must"
	"github.com/mlml-io/mlml/blockio"
	"github.com/mlml-io/mlml/eltype"
	"github.com/mlml-io/mlml/shuffle"
	"github.com/mlml-io/mlml/train"
)

func init() {
	file.RegisterImplementation("s3", func() file.Implementation {
		return s3file.NewImplementation(
			s3file.NewDefaultProvider(session.Options{}), s3file.Options{})
	})
}

func main() {
	var (
		algo        = flag.String("algo", shuffle.ExternalShuffle, "shuffling algorithm used by ssgd")
		buffer      = flag.Float64("buffer", 10, "size of memory budget in megabytes")
		dtype       = flag.String("dtype", "float64", "the numeric type of each sample value")
		n           = flag.Int("n", 0, "number of training samples")
		d           = flag.Int("d", 0, "number of features per sample")
		nt          = flag.Int("nt", 0, "number of testing samples")
		trainPath   = flag.String("train", "data/train", "path to the training data binary")
		testPath    = flag.String("test", "data/test", "path to the test data binary")
		epochs      = flag.Int("epochs", 3, "number of passes over the training data")
		eta0        = flag.Float64("eta0", 1e-6, "the initial learning rate")
		damp        = flag.Float64("damp", 0.99, "amount to multiply learning rate by per epoch")
		momentum    = flag.Float64("momentum", 0.9, "momentum to apply to changes in weight")
		reg         = flag.Float64("reg", 0.1, "regularization constant")
		logfreq     = flag.Int("logfreq", 1000, "number of samples between log entries; 0 for no log")
		seed        = flag.Int64("seed", 0, "seed for all randomized choices")
		parallelism = flag.Int("p", 1, "blocks shuffled concurrently during the spill phase")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, `usage: mlml mode [flags]

Mlml trains a linear model under a fixed memory budget. Available
modes are:

	closed
		Closed-form ridge regression by streamed normal equations.
	gd
		Full-batch gradient descent.
	sgd
		Per-sample stochastic gradient descent.
	ssgd
		Streaming SGD: the training file is reshuffled out-of-core
		before every epoch (see -algo).
	shuffle
		Reorder the training file once and exit.
`)
		flag.PrintDefaults()
		os.Exit(2)
	}
	log.AddFlags()
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
	}
	mode := flag.Arg(0)

	typ, err := eltype.Parse(*dtype)
	must.Nil(err, "dtype")
	if *n <= 0 || *d <= 0 {
		log.Fatal("-n and -d are required")
	}
	var (
		ctx      = context.Background()
		perBlock = eltype.SamplesPerBlock(typ, *d, *n, *buffer)
		cfg      = train.Config{
			Type:            typ,
			NumFeatures:     *d,
			SamplesPerBlock: perBlock,
			Epochs:          *epochs,
			Eta0:            *eta0,
			Damp:            *damp,
			Momentum:        *momentum,
			Reg:             *reg,
			LogFreq:         *logfreq,
		}
	)
	log.Printf("%s: %d samples of %d features (%s), %d per block", mode, *n, *d, typ, perBlock)

	var model *train.Model
	switch mode {
	default:
		fmt.Fprintf(os.Stderr, "unknown mode %s\n", mode)
		flag.Usage()
	case "shuffle":
		err = shuffle.Shuffle(ctx, *algo, shuffle.Config{
			Type:            typ,
			N:               *n,
			NumFeatures:     *d,
			SamplesPerBlock: perBlock,
			Path:            *trainPath,
			Seed:            *seed,
			Parallelism:     *parallelism,
		})
		must.Nil(err, "shuffle")
		return
	case "closed":
		rc, err := open(ctx, *trainPath)
		must.Nil(err, "open train")
		model, err = train.ClosedForm(ctx, blockio.NewReader(rc), cfg)
		rc.Close()
		must.Nil(err, "closed")
	case "gd":
		model, err = train.GD(ctx, opener(*trainPath), cfg)
		must.Nil(err, "gd")
	case "sgd":
		model, err = train.SGD(ctx, opener(*trainPath), cfg)
		must.Nil(err, "sgd")
	case "ssgd":
		model, err = train.SSGD(ctx, *trainPath, *algo, *n, *seed, cfg)
		must.Nil(err, "ssgd")
	}

	trainAcc := accuracy(ctx, *trainPath, model, cfg)
	log.Printf("train accuracy: %v", trainAcc)
	if *nt > 0 {
		testAcc := accuracy(ctx, *testPath, model, cfg)
		log.Printf("test accuracy: %v", testAcc)
		fmt.Printf("Train: %v Test: %v\n", trainAcc, testAcc)
	} else {
		fmt.Printf("Train: %v\n", trainAcc)
	}
}

func accuracy(ctx context.Context, path string, m *train.Model, cfg train.Config) float64 {
	rc, err := open(ctx, path)
	must.Nil(err, "open ", path)
	defer rc.Close()
	acc, err := train.Accuracy(ctx, blockio.NewReader(rc), m, cfg)
	must.Nil(err, "accuracy ", path)
	return acc
}

// open opens path for sequential reading through the file package,
// so that s3:// URLs work wherever a dataset is only read.
func open(ctx context.Context, path string) (io.ReadCloser, error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	return fileReadCloser{f.Reader(ctx), ctx, f}, nil
}

// opener adapts open into a train.Opener for multi-pass trainers.
func opener(path string) train.Opener {
	return func(ctx context.Context) (io.ReadCloser, error) {
		return open(ctx, path)
	}
}

type fileReadCloser struct {
	io.Reader
	ctx context.Context
	f   file.File
}

func (f fileReadCloser) Close() error { return f.f.Close(f.ctx) }
