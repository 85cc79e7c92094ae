// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/relabs-tech/gesture_link/internal/actuator"
	"github.com/relabs-tech/gesture_link/internal/config"
	"github.com/relabs-tech/gesture_link/internal/display"
	"github.com/relabs-tech/gesture_link/internal/gesture"
	"github.com/relabs-tech/gesture_link/internal/link"
	"github.com/relabs-tech/gesture_link/internal/link/memlink"
	"github.com/relabs-tech/gesture_link/internal/sensors"
)

// panel is a console that records being closed, like the SSD1306.
type panel struct {
	*display.Console
	closed atomic.Int32
}

func (p *panel) Close() error {
	p.closed.Add(1)
	return nil
}

type trackedServer struct {
	*memlink.Server
	closed atomic.Int32
}

func (s *trackedServer) Close() error {
	s.closed.Add(1)
	return s.Server.Close()
}

func TestRunDisplayClosesPanelOnShutdown(t *testing.T) {
	cfg := config.Default()
	cfg.WebServerPort = 0

	hub := memlink.NewHub()
	hub.ScanWindow = 10 * time.Millisecond
	stepper, _ := actuator.NewSimStepper(0, cfg.PulseSteps, zap.NewNop().Sugar())
	screen := &panel{Console: display.NewConsole(io.Discard)}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- runDisplay(ctx, cfg, displayParts{radio: hub.Client(), screen: screen, actuator: stepper}, zap.NewNop().Sugar())
	}()

	time.Sleep(30 * time.Millisecond)
	assert.Zero(t, screen.closed.Load())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runDisplay did not return")
	}
	assert.Equal(t, int32(1), screen.closed.Load())
}

func TestCloseScreenSkipsPlainScreens(t *testing.T) {
	assert.NotPanics(t, func() { closeScreen(display.NewConsole(io.Discard), zap.NewNop().Sugar()) })
}

func TestRunSensingReleasesRadioWhenAdvertisingFails(t *testing.T) {
	cfg := config.Default()
	hub := memlink.NewHub()

	// another server already owns the hub, so Register fails
	require.NoError(t, hub.Server("other").Register(link.ServiceUUID, link.CharacteristicUUID, link.CharacteristicProperties, nil))

	radio := &trackedServer{Server: hub.Server(cfg.DeviceName)}
	err := runSensing(context.Background(), cfg, sensingParts{
		imu:     sensors.NewMockSource(nil, time.Second, cfg.IMUAccelRange, cfg.IMUGyroRange),
		model:   fixedModel{gesture.Result{{Label: "jump", Confidence: 0.9}}},
		radio:   radio,
		toggles: make(chan struct{}),
	}, zap.NewNop().Sugar())

	require.Error(t, err)
	assert.Equal(t, int32(1), radio.closed.Load())
}
