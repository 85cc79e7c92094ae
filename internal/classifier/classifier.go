// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package classifier wraps the gesture model behind a fixed contract:
// a feature vector in, one (label, confidence) pair per known class out.
package classifier

import (
	"errors"
	"fmt"
	"math"

	"github.com/relabs-tech/gesture_link/internal/gesture"
)

// ErrInferenceFailed marks a failed classify call. It is recoverable: the
// caller skips the tick and keeps sampling.
var ErrInferenceFailed = errors.New("classifier: inference failed")

// Model is the trained classifier. Implementations must not keep state
// between calls.
type Model interface {
	Classify(fv gesture.FeatureVector) (gesture.Result, error)
}

// Adapter checks model output before it reaches the tracker.
type Adapter struct {
	model Model
}

func NewAdapter(m Model) *Adapter {
	return &Adapter{model: m}
}

// Classify runs the model once. Any model error, panic or out-of-range
// confidence is reported as ErrInferenceFailed.
func (a *Adapter) Classify(fv gesture.FeatureVector) (res gesture.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("%w: model panic: %v", ErrInferenceFailed, r)
		}
	}()

	res, err = a.model.Classify(fv)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInferenceFailed, err)
	}

	for _, c := range res {
		if math.IsNaN(c.Confidence) || c.Confidence < 0 || c.Confidence > 1 {
			return nil, fmt.Errorf("%w: label %q confidence %v outside [0,1]", ErrInferenceFailed, c.Label, c.Confidence)
		}
	}
	return res, nil
}
