// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package actuator

import (
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// GPIOCoils drives IN1..IN4 of a ULN2003-style driver board.
type GPIOCoils struct {
	pins [4]gpio.PinOut
}

// OpenGPIOCoils looks up the four pins by name (e.g. "GPIO17").
func OpenGPIOCoils(names []string) (*GPIOCoils, error) {
	if len(names) != 4 {
		return nil, fmt.Errorf("actuator: need 4 pins, got %d", len(names))
	}
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph: %w", err)
	}

	c := &GPIOCoils{}
	for i, name := range names {
		p := gpioreg.ByName(name)
		if p == nil {
			return nil, fmt.Errorf("actuator: unknown pin %q", name)
		}
		if err := p.Out(gpio.Low); err != nil {
			return nil, fmt.Errorf("actuator: pin %s: %w", name, err)
		}
		c.pins[i] = p
	}
	return c, nil
}

func (c *GPIOCoils) Set(phase [4]bool) error {
	for i, on := range phase {
		if err := c.pins[i].Out(gpio.Level(on)); err != nil {
			return err
		}
	}
	return nil
}

func (c *GPIOCoils) Release() error {
	return c.Set([4]bool{})
}
