// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package display

import (
	"github.com/relabs-tech/gesture_link/internal/gesture"
)

// ResultTitle heads every result screen.
const ResultTitle = "Best Prediction:"

// Renderer sequences screen commands for the presentation machine.
type Renderer struct {
	screen Screen
}

func NewRenderer(s Screen) *Renderer {
	return &Renderer{screen: s}
}

func (r *Renderer) ShowStatus(lines ...string) error {
	if err := r.screen.Clear(); err != nil {
		return err
	}
	return r.screen.Show(lines...)
}

func (r *Renderer) ShowResult(d gesture.Decoded) error {
	if err := r.screen.Clear(); err != nil {
		return err
	}
	return r.screen.Show(ResultTitle, d.Label, d.ConfidenceText)
}
