// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package actuator moves the acknowledgment stepper of the display unit.
package actuator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultPulseSteps is the amplitude of one pulse.
const DefaultPulseSteps = 100

// 4-step full-step sequence, one coil at a time.
var sequence = [4][4]bool{
	{true, false, false, false},
	{false, true, false, false},
	{false, false, true, false},
	{false, false, false, true},
}

// Coils energizes the four windings of a unipolar stepper.
type Coils interface {
	Set(phase [4]bool) error
	// Release de-energizes every winding.
	Release() error
}

// Stepper tracks its own position; zero is the rest position.
type Stepper struct {
	coils      Coils
	delay      time.Duration
	pulseSteps int
	log        *zap.SugaredLogger

	mu       sync.Mutex
	position int
	phase    int
}

func NewStepper(c Coils, stepDelay time.Duration, pulseSteps int, log *zap.SugaredLogger) *Stepper {
	if pulseSteps <= 0 {
		pulseSteps = DefaultPulseSteps
	}
	return &Stepper{coils: c, delay: stepDelay, pulseSteps: pulseSteps, log: log}
}

func (s *Stepper) Position() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position
}

// Move turns steps (negative is backwards), stopping early when ctx is done.
func (s *Stepper) Move(ctx context.Context, steps int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.move(ctx, steps)
}

func (s *Stepper) move(ctx context.Context, steps int) error {
	dir := 1
	if steps < 0 {
		dir = -1
		steps = -steps
	}

	for range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		s.phase = (s.phase + dir + len(sequence)) % len(sequence)
		if err := s.coils.Set(sequence[s.phase]); err != nil {
			return fmt.Errorf("actuator: step at %d: %w", s.position, err)
		}
		s.position += dir
		if s.delay > 0 {
			time.Sleep(s.delay)
		}
	}
	return nil
}

// Pulse moves the pulse amplitude forward and back to rest, then releases
// the coils. The return leg always runs, so a cancelled pulse still ends at
// rest.
func (s *Stepper) Pulse(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	forwardErr := s.move(ctx, s.pulseSteps)
	returnErr := s.move(context.Background(), -s.position)
	if err := s.coils.Release(); err != nil {
		s.log.Warnf("coil release: %v", err)
	}

	if returnErr != nil {
		return returnErr
	}
	return forwardErr
}
