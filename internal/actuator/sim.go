// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package actuator

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// SimCoils records coil activity instead of driving pins.
type SimCoils struct {
	mu       sync.Mutex
	steps    int
	releases int
	last     [4]bool
}

func (c *SimCoils) Set(phase [4]bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.steps++
	c.last = phase
	return nil
}

func (c *SimCoils) Release() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.releases++
	c.last = [4]bool{}
	return nil
}

// Steps is the number of phase changes so far.
func (c *SimCoils) Steps() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.steps
}

func (c *SimCoils) Releases() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.releases
}

// NewSimStepper is a Stepper on SimCoils.
func NewSimStepper(stepDelay time.Duration, pulseSteps int, log *zap.SugaredLogger) (*Stepper, *SimCoils) {
	coils := &SimCoils{}
	return NewStepper(coils, stepDelay, pulseSteps, log), coils
}
