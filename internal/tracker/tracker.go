// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package tracker keeps the best classification seen during one analysis
// session. It is owned by the sensing loop and is not safe for concurrent use.
package tracker

import "github.com/relabs-tech/gesture_link/internal/gesture"

type Tracker struct {
	best     gesture.Prediction
	observed int
}

func New() *Tracker {
	return &Tracker{}
}

// Reset clears the best prediction back to ("", 0).
func (t *Tracker) Reset() {
	t.best = gesture.Prediction{}
	t.observed = 0
}

// Observe replaces the stored prediction with any pair whose confidence is
// strictly greater. Equal confidences keep the earlier leader. It reports
// whether the leader changed.
func (t *Tracker) Observe(res gesture.Result) bool {
	t.observed++
	changed := false
	for _, c := range res {
		if c.Confidence > t.best.Confidence {
			t.best = gesture.Prediction{Label: c.Label, Confidence: c.Confidence}
			changed = true
		}
	}
	return changed
}

// Snapshot returns the current best prediction.
func (t *Tracker) Snapshot() gesture.Prediction {
	return t.best
}

// Observations is the number of results observed since the last reset.
func (t *Tracker) Observations() int {
	return t.observed
}
