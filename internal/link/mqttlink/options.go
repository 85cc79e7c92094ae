// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package mqttlink

import (
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

const (
	DefaultTopicPrefix = "gesture"
	DefaultMaxPayload  = 512
	defaultWait        = 5 * time.Second
	disconnectQuiesce  = 250 // ms
)

// newMQTTClient builds the paho client for either side.
var newMQTTClient = mqtt.NewClient

// Options configure either side of the MQTT binding.
type Options struct {
	Broker      string // e.g. tcp://localhost:1883
	ClientID    string
	TopicPrefix string
	Name        string        // advertised local name (server only)
	ScanWindow  time.Duration // client only
}

func (o Options) prefix() string {
	if o.TopicPrefix == "" {
		return DefaultTopicPrefix
	}
	return o.TopicPrefix
}

func (o Options) scanWindow() time.Duration {
	if o.ScanWindow <= 0 {
		return 5 * time.Second
	}
	return o.ScanWindow
}

// wait blocks on a paho token with a bound.
func wait(token mqtt.Token) error {
	if !token.WaitTimeout(defaultWait) {
		return errTimeout
	}
	return token.Error()
}
