// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package display drives the result screen of the display unit.
package display

import (
	"fmt"
	"io"
	"strings"
	"sync"
)

// Screen is a text screen with a handful of lines.
type Screen interface {
	Clear() error
	Show(lines ...string) error
}

// Console prints each screen update as a framed block.
type Console struct {
	mu sync.Mutex
	w  io.Writer
}

func NewConsole(w io.Writer) *Console {
	return &Console{w: w}
}

func (c *Console) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintln(c.w, "+----------------------+")
	return err
}

func (c *Console) Show(lines ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var b strings.Builder
	b.WriteString("+----------------------+\n")
	for _, l := range lines {
		fmt.Fprintf(&b, "| %-20s |\n", l)
	}
	b.WriteString("+----------------------+\n")
	_, err := io.WriteString(c.w, b.String())
	return err
}
