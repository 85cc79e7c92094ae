// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/relabs-tech/gesture_link/internal/config"
	"github.com/relabs-tech/gesture_link/internal/link"
	"github.com/relabs-tech/gesture_link/internal/link/ble"
	"github.com/relabs-tech/gesture_link/internal/link/mqttlink"
)

func mqttOptions(cfg *config.Config, clientID string) mqttlink.Options {
	return mqttlink.Options{
		Broker:      cfg.MQTTBroker,
		ClientID:    clientID,
		TopicPrefix: cfg.MQTTTopicPrefix,
		Name:        cfg.DeviceName,
		ScanWindow:  cfg.ScanWindowDuration(),
	}
}

// openServer returns the peripheral radio selected by TRANSPORT.
func openServer(cfg *config.Config, log *zap.SugaredLogger) (link.Server, error) {
	switch cfg.Transport {
	case config.TransportBLE:
		return ble.NewServer(cfg.DeviceName, log)
	case config.TransportMQTT:
		return mqttlink.NewServer(mqttOptions(cfg, cfg.MQTTClientIDSensing), log), nil
	default:
		return nil, fmt.Errorf("TRANSPORT=%s cannot cross processes, use cmd/sim", cfg.Transport)
	}
}

// openClient returns the central radio selected by TRANSPORT.
func openClient(cfg *config.Config, log *zap.SugaredLogger) (link.Client, error) {
	switch cfg.Transport {
	case config.TransportBLE:
		return ble.NewClient(cfg.ScanWindowDuration(), log)
	case config.TransportMQTT:
		return mqttlink.NewClient(mqttOptions(cfg, cfg.MQTTClientIDDisplay), link.ServiceUUID, log)
	default:
		return nil, fmt.Errorf("TRANSPORT=%s cannot cross processes, use cmd/sim", cfg.Transport)
	}
}
