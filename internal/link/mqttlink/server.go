// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package mqttlink carries the link protocol over an MQTT broker so the two
// units can run on hosts without a radio.
package mqttlink

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/relabs-tech/gesture_link/internal/link"
)

var errTimeout = errors.New("mqttlink: broker did not answer in time")

// Server is the peripheral side.
type Server struct {
	opts Options
	log  *zap.SugaredLogger

	mu             sync.Mutex
	client         mqtt.Client
	topics         topics
	characteristic uuid.UUID
	props          link.Property
	ev             link.Events
	advertising    bool
	peers          map[link.Peer]bool
}

func NewServer(opts Options, log *zap.SugaredLogger) *Server {
	if opts.ClientID == "" {
		opts.ClientID = "gesture-sensing-" + uuid.NewString()
	}
	return &Server{opts: opts, log: log, peers: make(map[link.Peer]bool)}
}

// Register connects to the broker. The broker clears the advertisement if
// this process dies.
func (s *Server) Register(service, characteristic uuid.UUID, props link.Property, ev link.Events) error {
	s.mu.Lock()
	s.topics = newTopics(s.opts.prefix(), service)
	s.characteristic = characteristic
	s.props = props
	s.ev = ev
	s.mu.Unlock()

	opts := mqtt.NewClientOptions().
		AddBroker(s.opts.Broker).
		SetClientID(s.opts.ClientID).
		SetWill(s.topics.state(), "", 1, true).
		SetAutoReconnect(true).
		SetOrderMatters(false).
		SetOnConnectHandler(s.onBrokerConnect).
		SetConnectionLostHandler(s.onBrokerLost)

	client := newMQTTClient(opts)
	if err := wait(client.Connect()); err != nil {
		return fmt.Errorf("mqttlink: connect %s: %w", s.opts.Broker, err)
	}

	s.mu.Lock()
	s.client = client
	s.mu.Unlock()
	s.log.Infof("connected to MQTT broker at %s", s.opts.Broker)
	return nil
}

// onBrokerConnect runs on every (re)connect.
func (s *Server) onBrokerConnect(c mqtt.Client) {
	c.Subscribe(s.topics.connect(), 1, s.handleConnect)
	c.Subscribe(s.topics.disconnect(), 1, s.handleDisconnect)
	s.publishState(c)
}

// onBrokerLost ends every session; centrals see the will.
func (s *Server) onBrokerLost(_ mqtt.Client, err error) {
	s.log.Warnf("MQTT connection lost: %v", err)

	s.mu.Lock()
	peers := make([]link.Peer, 0, len(s.peers))
	for p := range s.peers {
		peers = append(peers, p)
	}
	s.peers = make(map[link.Peer]bool)
	ev := s.ev
	s.mu.Unlock()

	for _, p := range peers {
		ev.OnDisconnect(p)
	}
}

func (s *Server) record() stateRecord {
	return stateRecord{
		Peer:        s.opts.ClientID,
		Name:        s.opts.Name,
		Advertising: s.advertising,
		Characteristics: []charRecord{
			{UUID: s.characteristic.String(), Properties: s.props},
		},
	}
}

func (s *Server) publishState(c mqtt.Client) {
	s.mu.Lock()
	rec := s.record()
	s.mu.Unlock()

	payload, err := json.Marshal(rec)
	if err != nil {
		s.log.Errorf("state marshal error: %v", err)
		return
	}
	if token := c.Publish(s.topics.state(), 1, true, payload); token.Wait() && token.Error() != nil {
		s.log.Warnf("MQTT publish error (state): %v", token.Error())
	}
}

func (s *Server) handleConnect(c mqtt.Client, msg mqtt.Message) {
	central := link.Peer(msg.Payload())
	if central == "" {
		return
	}

	s.mu.Lock()
	if !s.advertising {
		s.mu.Unlock()
		c.Publish(s.topics.reject(), 1, false, []byte(central))
		return
	}
	s.advertising = false
	s.peers[central] = true
	ev := s.ev
	s.mu.Unlock()

	s.publishState(c)
	ev.OnConnect(central)
}

func (s *Server) handleDisconnect(_ mqtt.Client, msg mqtt.Message) {
	central := link.Peer(msg.Payload())

	s.mu.Lock()
	known := s.peers[central]
	delete(s.peers, central)
	ev := s.ev
	s.mu.Unlock()

	if known {
		ev.OnDisconnect(central)
	}
}

func (s *Server) setAdvertising(on bool) error {
	s.mu.Lock()
	c := s.client
	s.advertising = on
	s.mu.Unlock()
	if c == nil {
		return link.ErrClosed
	}
	s.publishState(c)
	return nil
}

func (s *Server) StartAdvertising() error { return s.setAdvertising(true) }
func (s *Server) StopAdvertising() error  { return s.setAdvertising(false) }

// Notify publishes at QoS 0: at most once, no retention.
func (s *Server) Notify(value []byte) error {
	s.mu.Lock()
	c := s.client
	topic := s.topics.characteristic(s.characteristic)
	s.mu.Unlock()
	if c == nil {
		return link.ErrClosed
	}
	return wait(c.Publish(topic, 0, false, value))
}

func (s *Server) Drop(peer link.Peer) error {
	s.mu.Lock()
	c := s.client
	known := s.peers[peer]
	delete(s.peers, peer)
	ev := s.ev
	s.mu.Unlock()
	if c == nil {
		return link.ErrClosed
	}

	if err := wait(c.Publish(s.topics.reject(), 1, false, []byte(peer))); err != nil {
		return err
	}
	if known {
		ev.OnDisconnect(peer)
	}
	return nil
}

func (s *Server) MaxPayload() int {
	return DefaultMaxPayload
}

// Close clears the advertisement and leaves the broker.
func (s *Server) Close() error {
	s.mu.Lock()
	c := s.client
	s.client = nil
	s.mu.Unlock()
	if c == nil {
		return nil
	}

	_ = wait(c.Publish(s.topics.state(), 1, true, []byte{}))
	c.Disconnect(disconnectQuiesce)
	return nil
}
