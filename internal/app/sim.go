// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/relabs-tech/gesture_link/internal/actuator"
	"github.com/relabs-tech/gesture_link/internal/classifier"
	"github.com/relabs-tech/gesture_link/internal/config"
	"github.com/relabs-tech/gesture_link/internal/control"
	"github.com/relabs-tech/gesture_link/internal/display"
	"github.com/relabs-tech/gesture_link/internal/link/memlink"
	"github.com/relabs-tech/gesture_link/internal/sensors"
)

// RunSim runs both units in one process over an in-memory link, with the
// mock IMU, the console screen and a simulated stepper.
func RunSim(log *zap.SugaredLogger) error {
	cfg := config.Get()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	model, err := classifier.NewTemplateModelFromFile(cfg.ModelPath)
	if err != nil {
		return err
	}

	in, err := control.Open(cfg.ControlPort, cfg.ControlBaudRate, log.Named("control"))
	if err != nil {
		return fmt.Errorf("failed to open control port: %w", err)
	}
	defer in.Close()

	hub := memlink.NewHub()
	hub.ScanWindow = cfg.ScanWindowDuration()

	stepper, _ := actuator.NewSimStepper(cfg.StepDelay(), cfg.PulseSteps, log.Named("actuator"))

	sensing := sensingParts{
		imu:     sensors.NewMockSource(sensors.DefaultMockMotions, mockMotionPeriod, cfg.IMUAccelRange, cfg.IMUGyroRange),
		model:   model,
		radio:   hub.Server(cfg.DeviceName),
		toggles: control.Toggles(ctx, in, log.Named("control")),
	}
	disp := displayParts{
		radio:    hub.Client(),
		screen:   display.NewConsole(os.Stdout),
		actuator: stepper,
	}

	log.Info("simulation: both units on an in-memory link")
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return runSensing(ctx, cfg, sensing, log.Named("sensing")) })
	g.Go(func() error { return runDisplay(ctx, cfg, disp, log.Named("display")) })
	return g.Wait()
}
