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
	"time"

	"go.uber.org/zap"

	"github.com/relabs-tech/gesture_link/internal/classifier"
	"github.com/relabs-tech/gesture_link/internal/config"
	"github.com/relabs-tech/gesture_link/internal/control"
	"github.com/relabs-tech/gesture_link/internal/imu"
	"github.com/relabs-tech/gesture_link/internal/link"
	"github.com/relabs-tech/gesture_link/internal/sampler"
	"github.com/relabs-tech/gesture_link/internal/sensors"
	"github.com/relabs-tech/gesture_link/internal/session"
)

// mockMotionPeriod is how long the mock IMU holds each motion.
const mockMotionPeriod = 3 * time.Second

// sensingParts are the collaborators of the sensing unit.
type sensingParts struct {
	imu     imu.IMURawReader
	model   classifier.Model
	radio   link.Server
	toggles <-chan struct{}
}

// RunSensing is the sensing unit: IMU -> classifier -> best result ->
// link, started and stopped from the operator channel.
func RunSensing(log *zap.SugaredLogger) error {
	cfg := config.Get()
	if err := cfg.ValidateSensing(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	src, err := openIMU(cfg, log.Named("imu"))
	if err != nil {
		return err
	}

	model, err := classifier.NewTemplateModelFromFile(cfg.ModelPath)
	if err != nil {
		return err
	}
	log.Infow("model loaded", "path", cfg.ModelPath, "labels", model.Labels())

	in, err := control.Open(cfg.ControlPort, cfg.ControlBaudRate, log.Named("control"))
	if err != nil {
		return fmt.Errorf("failed to open control port: %w", err)
	}
	defer in.Close()

	// the radio is opened last: runSensing owns it from here on
	radio, err := openServer(cfg, log.Named("radio"))
	if err != nil {
		return err
	}

	return runSensing(ctx, cfg, sensingParts{
		imu:     src,
		model:   model,
		radio:   radio,
		toggles: control.Toggles(ctx, in, log.Named("control")),
	}, log)
}

func openIMU(cfg *config.Config, log *zap.SugaredLogger) (imu.IMURawReader, error) {
	if cfg.IMUSource == "mock" {
		log.Info("using mock IMU source")
		return sensors.NewMockSource(sensors.DefaultMockMotions, mockMotionPeriod, cfg.IMUAccelRange, cfg.IMUGyroRange), nil
	}
	return sensors.NewMPU9250(sensors.MPU9250Options{
		SPIDevice:  cfg.IMUSPIDevice,
		CSPin:      cfg.IMUCSPin,
		AccelRange: cfg.IMUAccelRange,
		GyroRange:  cfg.IMUGyroRange,
		Calibrate:  cfg.IMUCalibrate,
	}, log)
}

func runSensing(ctx context.Context, cfg *config.Config, p sensingParts, log *zap.SugaredLogger) error {
	smp, err := sampler.New(p.imu, cfg.IMUAccelRange, cfg.IMUGyroRange)
	if err != nil {
		_ = p.radio.Close()
		return err
	}

	adv := link.NewAdvertiser(p.radio, cfg.AdvertiseRestart(), log.Named("link"))
	if err := adv.Start(); err != nil {
		_ = p.radio.Close()
		return err
	}
	defer adv.Close()

	m := session.New(smp, classifier.NewAdapter(p.model), adv, log.Named("session"))
	log.Info("press SPACE to start or stop an analysis session")
	return m.Run(ctx, p.toggles, cfg.SampleEvery())
}
