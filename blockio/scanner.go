// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package blockio

import (
	"context"

	"github.com/mlml-io/mlml/block"
)

// A Scanner provides a convenient interface for reading a dataset one
// sample at a time while buffering I/O in whole blocks. Successive
// calls to Scan decode the next sample's features and label. Scanning
// stops when no more data are available or if an error is
// encountered. Scan returns true while it's safe to continue
// scanning. When scanning is complete, the user should inspect the
// scanner's error to see if scanning stopped because of an EOF or
// because another error occurred.
type Scanner struct {
	reader   Reader
	err      error
	in       block.Block
	beg, end int
	label    float64
}

// NewScanner returns a Scanner over r, decoding rows of cols elements
// of the provided type and buffering chunk rows per read. The last
// column of each row is the sample's label; the rest are features.
func NewScanner(r Reader, b block.Block) *Scanner {
	return &Scanner{reader: r, in: b}
}

// Scan decodes the next sample's features into x, which must have one
// element per feature column. Scan returns true while no errors are
// encountered and there remains data to be scanned.
func (s *Scanner) Scan(ctx context.Context, x []float64) bool {
	if s.err != nil {
		return false
	}
	for s.beg == s.end {
		if s.reader == nil {
			s.err = EOF
			return false
		}
		n, err := s.reader.Read(ctx, s.in)
		if err != nil && err != EOF {
			s.err = err
			return false
		}
		s.beg, s.end = 0, n
		if err == EOF {
			s.reader = nil
		}
	}
	for j := range x {
		x[j] = s.in.Value(s.beg, j)
	}
	s.label = s.in.Value(s.beg, s.in.Cols()-1)
	s.beg++
	return true
}

// Label returns the label of the sample decoded by the last
// successful call to Scan.
func (s *Scanner) Label() float64 { return s.label }

// Err returns any error that occurred while scanning.
func (s *Scanner) Err() error {
	if s.err == EOF {
		return nil
	}
	return s.err
}
