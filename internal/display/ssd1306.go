// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package display

import (
	"fmt"
	"image"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"
)

const (
	oledWidth  = 128
	oledHeight = 64
	lineHeight = 13 // basicfont.Face7x13
	maxLines   = oledHeight / lineHeight
)

// SSD1306 is a 128x64 OLED on I2C.
type SSD1306 struct {
	mu  sync.Mutex
	bus i2c.BusCloser
	dev *ssd1306.Dev
	log *zap.SugaredLogger
}

// OpenSSD1306 opens busName ("" for the first bus) and initializes the panel.
func OpenSSD1306(busName string, log *zap.SugaredLogger) (*SSD1306, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph: %w", err)
	}

	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("failed to open I2C bus: %w", err)
	}

	dev, err := ssd1306.NewI2C(bus, &ssd1306.DefaultOpts)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("failed to initialize display: %w", err)
	}
	log.Infof("display initialized on I2C bus %q", busName)

	return &SSD1306{bus: bus, dev: dev, log: log}, nil
}

func (s *SSD1306) Clear() error {
	return s.Show()
}

// Show draws up to four lines; longer input is cut.
func (s *SSD1306) Show(lines ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dev.Draw(s.dev.Bounds(), render(lines), image.Point{})
}

func (s *SSD1306) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.dev.Halt(); err != nil {
		s.log.Warnf("display halt: %v", err)
	}
	return s.bus.Close()
}

// render draws lines top to bottom on a blank frame.
func render(lines []string) *image1bit.VerticalLSB {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, oledWidth, oledHeight))

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}

	if len(lines) > maxLines {
		lines = lines[:maxLines]
	}
	for i, l := range lines {
		drawer.Dot = fixed.P(0, (i+1)*lineHeight)
		drawer.DrawString(l)
	}
	return img
}
