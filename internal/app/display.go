// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/relabs-tech/gesture_link/internal/actuator"
	"github.com/relabs-tech/gesture_link/internal/config"
	"github.com/relabs-tech/gesture_link/internal/display"
	"github.com/relabs-tech/gesture_link/internal/link"
	"github.com/relabs-tech/gesture_link/internal/presentation"
)

// displayParts are the collaborators of the display unit.
type displayParts struct {
	radio    link.Client
	screen   display.Screen
	actuator presentation.Actuator
}

// RunDisplay is the display unit: link subscriber -> presentation ->
// screen and stepper, plus the optional status feed.
func RunDisplay(log *zap.SugaredLogger) error {
	cfg := config.Get()
	if err := cfg.ValidateDisplay(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	screen, err := openScreen(cfg, log.Named("display"))
	if err != nil {
		return err
	}

	stepper, err := openStepper(cfg, log.Named("actuator"))
	if err != nil {
		closeScreen(screen, log)
		return err
	}

	radio, err := openClient(cfg, log.Named("radio"))
	if err != nil {
		closeScreen(screen, log)
		return err
	}

	return runDisplay(ctx, cfg, displayParts{radio: radio, screen: screen, actuator: stepper}, log)
}

func openScreen(cfg *config.Config, log *zap.SugaredLogger) (display.Screen, error) {
	if cfg.DisplayKind == "console" {
		return display.NewConsole(os.Stdout), nil
	}
	return display.OpenSSD1306(cfg.DisplayI2CBus, log)
}

// closeScreen halts panels that hold a bus open.
func closeScreen(s display.Screen, log *zap.SugaredLogger) {
	c, ok := s.(io.Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		log.Warnf("close display: %v", err)
	}
}

func openStepper(cfg *config.Config, log *zap.SugaredLogger) (*actuator.Stepper, error) {
	if cfg.StepperKind == "sim" {
		s, _ := actuator.NewSimStepper(cfg.StepDelay(), cfg.PulseSteps, log)
		return s, nil
	}
	coils, err := actuator.OpenGPIOCoils(cfg.StepperPins)
	if err != nil {
		return nil, err
	}
	log.Infow("stepper initialized", "pins", cfg.StepperPins)
	return actuator.NewStepper(coils, cfg.StepDelay(), cfg.PulseSteps, log), nil
}

func runDisplay(ctx context.Context, cfg *config.Config, p displayParts, log *zap.SugaredLogger) error {
	defer p.radio.Close()
	defer closeScreen(p.screen, log)

	pm := presentation.New(display.NewRenderer(p.screen), p.actuator, cfg.QueueSize, log.Named("presentation"))
	sub := link.NewSubscriber(p.radio, pm, log.Named("link"))

	g, ctx := errgroup.WithContext(ctx)

	if cfg.WebServerPort > 0 {
		feed := NewStatusFeed(pm, log.Named("web"))
		pm.AddObserver(feed)
		addr := fmt.Sprintf(":%d", cfg.WebServerPort)
		g.Go(func() error { return serveStatus(ctx, addr, feed, log.Named("web")) })
	}

	g.Go(func() error { return pm.Run(ctx) })
	g.Go(func() error { return sub.Run(ctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
