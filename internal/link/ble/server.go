// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package ble binds the link contract to a Bluetooth Low Energy radio
// (BlueZ on Linux).
package ble

import (
	"fmt"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"tinygo.org/x/bluetooth"

	"github.com/relabs-tech/gesture_link/internal/link"
)

// MaxAttributeValue is the largest ATT attribute value.
const MaxAttributeValue = 512

func toUUID(id uuid.UUID) (bluetooth.UUID, error) {
	u, err := bluetooth.ParseUUID(id.String())
	if err != nil {
		return bluetooth.UUID{}, fmt.Errorf("ble: uuid %s: %w", id, err)
	}
	return u, nil
}

func toFlags(p link.Property) bluetooth.CharacteristicPermissions {
	var f bluetooth.CharacteristicPermissions
	if p.Has(link.PropertyRead) {
		f |= bluetooth.CharacteristicReadPermission
	}
	if p.Has(link.PropertyWrite) {
		f |= bluetooth.CharacteristicWritePermission
	}
	if p.Has(link.PropertyNotify) {
		f |= bluetooth.CharacteristicNotifyPermission
	}
	return f
}

// startError maps the stack's advertisement errors onto the link ones.
// BlueZ keeps an advertisement registered across a central's connection,
// so a restart after disconnect may find it still there.
func startError(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "already started") {
		return fmt.Errorf("ble: start advertising: %w", link.ErrAlreadyAdvertising)
	}
	return fmt.Errorf("ble: start advertising: %w", err)
}

func stopError(err error) error {
	if err == nil || strings.Contains(err.Error(), "not started") {
		return nil
	}
	return fmt.Errorf("ble: stop advertising: %w", err)
}

// Server is the peripheral role on the default adapter. Remote centrals
// are tracked through BlueZ device signals.
type Server struct {
	name    string
	adapter *bluetooth.Adapter
	log     *zap.SugaredLogger

	mu         sync.Mutex
	adv        *bluetooth.Advertisement
	char       bluetooth.Characteristic
	watch      *watcher
	disconnect func(dbus.ObjectPath) error
	peers      map[link.Peer]dbus.ObjectPath
	ev         link.Events
}

// NewServer enables the adapter. name is the advertised local name.
func NewServer(name string, log *zap.SugaredLogger) (*Server, error) {
	adapter := bluetooth.DefaultAdapter
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("ble: enable adapter: %w", err)
	}
	return &Server{
		name:    name,
		adapter: adapter,
		log:     log,
		peers:   make(map[link.Peer]dbus.ObjectPath),
	}, nil
}

func (s *Server) Register(service, characteristic uuid.UUID, props link.Property, ev link.Events) error {
	svc, err := toUUID(service)
	if err != nil {
		return err
	}
	chr, err := toUUID(characteristic)
	if err != nil {
		return err
	}

	w, err := watchConnections(s.onConnectionChange, s.log)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.ev = ev
	s.watch = w
	s.disconnect = w.disconnect
	s.mu.Unlock()

	err = s.adapter.AddService(&bluetooth.Service{
		UUID: svc,
		Characteristics: []bluetooth.CharacteristicConfig{{
			Handle: &s.char,
			UUID:   chr,
			Value:  []byte{},
			Flags:  toFlags(props),
		}},
	})
	if err != nil {
		return fmt.Errorf("ble: add service: %w", err)
	}

	adv := s.adapter.DefaultAdvertisement()
	err = adv.Configure(bluetooth.AdvertisementOptions{
		LocalName:    s.name,
		ServiceUUIDs: []bluetooth.UUID{svc},
	})
	if err != nil {
		return fmt.Errorf("ble: configure advertisement: %w", err)
	}

	s.mu.Lock()
	s.adv = adv
	s.mu.Unlock()
	s.log.Infof("registered service %s as %q", service, s.name)
	return nil
}

func (s *Server) onConnectionChange(peer link.Peer, connected bool, path dbus.ObjectPath) {
	s.mu.Lock()
	ev := s.ev
	_, known := s.peers[peer]
	if connected {
		s.peers[peer] = path
	} else {
		delete(s.peers, peer)
	}
	s.mu.Unlock()

	if ev == nil {
		return
	}
	switch {
	case connected:
		ev.OnConnect(peer)
	case known:
		ev.OnDisconnect(peer)
	}
}

func (s *Server) advertisement() (*bluetooth.Advertisement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.adv == nil {
		return nil, link.ErrClosed
	}
	return s.adv, nil
}

func (s *Server) StartAdvertising() error {
	adv, err := s.advertisement()
	if err != nil {
		return err
	}
	return startError(adv.Start())
}

func (s *Server) StopAdvertising() error {
	adv, err := s.advertisement()
	if err != nil {
		return err
	}
	return stopError(adv.Stop())
}

// Notify writes the local value; the stack notifies subscribed centrals.
func (s *Server) Notify(value []byte) error {
	if _, err := s.char.Write(value); err != nil {
		return fmt.Errorf("ble: notify: %w", err)
	}
	return nil
}

func (s *Server) Drop(peer link.Peer) error {
	s.mu.Lock()
	path, ok := s.peers[peer]
	disconnect := s.disconnect
	s.mu.Unlock()
	if !ok || disconnect == nil {
		return fmt.Errorf("%w: %s", link.ErrPeerUnavailable, peer)
	}
	// the Connected=false signal reports the drop
	if err := disconnect(path); err != nil {
		return fmt.Errorf("ble: drop %s: %w", peer, err)
	}
	return nil
}

func (s *Server) MaxPayload() int {
	return MaxAttributeValue
}

func (s *Server) Close() error {
	s.mu.Lock()
	adv, w := s.adv, s.watch
	s.adv, s.watch = nil, nil
	s.mu.Unlock()

	if w != nil {
		w.Close()
	}
	if adv != nil {
		return stopError(adv.Stop())
	}
	return nil
}
