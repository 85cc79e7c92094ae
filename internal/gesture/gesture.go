// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package gesture holds the values that flow through the gesture pipeline:
// feature vectors, classifier output, the best prediction of a session and
// the string payload sent to the display unit.
package gesture

// FeatureCount is the number of values in one feature vector.
const FeatureCount = 6

// FeatureVector is one motion sample in the order the model was trained with:
// ax, ay, az (m/s²) followed by gx, gy, gz (rad/s).
type FeatureVector [FeatureCount]float64

// Classification is one (label, confidence) pair produced by a classify call.
type Classification struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"` // 0..1, not normalised across labels
}

// Result is the full output of one classify call, one entry per known class.
type Result []Classification

// Prediction is the running best (label, confidence) of an analysis session.
type Prediction struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Empty reports whether no classification has been recorded.
func (p Prediction) Empty() bool {
	return p.Label == ""
}
