// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package link

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Advertiser is the publisher role. It accepts at most one connection,
// re-advertises after every disconnect and publishes fire-and-forget.
//
// Connection state is written only from radio callbacks and the restart
// timer; the sensing loop only reads it through Publish.
type Advertiser struct {
	radio        Server
	restartDelay time.Duration
	log          *zap.SugaredLogger

	mu       sync.Mutex
	state    ConnState
	peer     Peer
	sessions int
	restart  *time.Timer
	closed   bool
}

func NewAdvertiser(radio Server, restartDelay time.Duration, log *zap.SugaredLogger) *Advertiser {
	return &Advertiser{
		radio:        radio,
		restartDelay: restartDelay,
		log:          log,
	}
}

// Start registers the service and begins advertising.
func (a *Advertiser) Start() error {
	if err := a.radio.Register(ServiceUUID, CharacteristicUUID, CharacteristicProperties, a); err != nil {
		return fmt.Errorf("link: register service: %w", err)
	}
	if err := a.radio.StartAdvertising(); err != nil && !errors.Is(err, ErrAlreadyAdvertising) {
		return fmt.Errorf("link: start advertising: %w", err)
	}

	a.mu.Lock()
	if a.state == Disconnected {
		a.state = Advertising
	}
	a.mu.Unlock()

	a.log.Info("ready, waiting for connections...")
	return nil
}

func (a *Advertiser) State() ConnState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Peer is the connected subscriber, empty when none.
func (a *Advertiser) Peer() Peer {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.peer
}

// Sessions counts accepted connections.
func (a *Advertiser) Sessions() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sessions
}

// OnDiscover is unused by the publisher role.
func (a *Advertiser) OnDiscover(Peer) {}

func (a *Advertiser) OnConnect(peer Peer) {
	a.mu.Lock()
	if a.closed || (a.state == Connected && a.peer != peer) {
		current := a.peer
		a.mu.Unlock()
		a.log.Warnw("rejecting extra connection", "peer", peer, "connected", current)
		if err := a.radio.Drop(peer); err != nil {
			a.log.Warnw("drop failed", "peer", peer, "error", err)
		}
		return
	}
	if a.state == Connected {
		a.mu.Unlock()
		return
	}
	if a.restart != nil {
		a.restart.Stop()
		a.restart = nil
	}
	a.state = Connected
	a.peer = peer
	a.sessions++
	a.mu.Unlock()

	a.log.Infow("connected", "peer", peer)
}

func (a *Advertiser) OnDisconnect(peer Peer) {
	a.mu.Lock()
	if a.state != Connected || a.peer != peer {
		a.mu.Unlock()
		return
	}
	a.state = Disconnected
	a.peer = ""
	if !a.closed {
		a.restart = time.AfterFunc(a.restartDelay, a.readvertise)
	}
	a.mu.Unlock()

	a.log.Infow("disconnected", "peer", peer)
}

func (a *Advertiser) readvertise() {
	a.mu.Lock()
	if a.closed || a.state != Disconnected {
		a.mu.Unlock()
		return
	}
	a.mu.Unlock()

	if err := a.radio.StartAdvertising(); err != nil && !errors.Is(err, ErrAlreadyAdvertising) {
		a.log.Warnf("restart advertising failed, retrying: %v", err)
		a.mu.Lock()
		if !a.closed && a.state == Disconnected {
			a.restart = time.AfterFunc(a.restartDelay, a.readvertise)
		}
		a.mu.Unlock()
		return
	}

	a.mu.Lock()
	if a.state == Disconnected {
		a.state = Advertising
	}
	a.mu.Unlock()
	a.log.Info("Start advertising")
}

// Publish sends payload to the connected subscriber once. Without a
// subscriber it returns ErrNotConnected and the payload is lost.
func (a *Advertiser) Publish(payload []byte) error {
	if a.State() != Connected {
		return ErrNotConnected
	}
	if limit := a.radio.MaxPayload(); limit > 0 && len(payload) > limit {
		return fmt.Errorf("%w: %d > %d bytes", ErrPayloadTooLarge, len(payload), limit)
	}
	if err := a.radio.Notify(payload); err != nil {
		return fmt.Errorf("link: notify: %w", err)
	}
	return nil
}

// Close stops advertising and releases the radio.
func (a *Advertiser) Close() error {
	a.mu.Lock()
	a.closed = true
	if a.restart != nil {
		a.restart.Stop()
		a.restart = nil
	}
	a.mu.Unlock()

	if err := a.radio.StopAdvertising(); err != nil {
		a.log.Warnf("stop advertising: %v", err)
	}
	return a.radio.Close()
}
