// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package link

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultRetryDelay paces the scan loop after a radio error.
const DefaultRetryDelay = time.Second

// Handler receives everything the subscriber role observes.
type Handler interface {
	Events
	Receiver
}

// Subscriber is the display-side role: scan, connect, subscribe, and scan
// again whenever the connection is lost. There is no backoff and no give-up
// state.
type Subscriber struct {
	radio      Client
	handler    Handler
	retryDelay time.Duration
	log        *zap.SugaredLogger

	mu    sync.Mutex
	state ConnState
	peer  Peer
}

func NewSubscriber(radio Client, h Handler, log *zap.SugaredLogger) *Subscriber {
	return &Subscriber{
		radio:      radio,
		handler:    h,
		retryDelay: DefaultRetryDelay,
		log:        log,
	}
}

func (s *Subscriber) State() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Subscriber) setState(st ConnState, peer Peer) {
	s.mu.Lock()
	s.state = st
	s.peer = peer
	s.mu.Unlock()
}

// Run loops until ctx is done. Each iteration runs one scan window and,
// on a match, one connect attempt.
func (s *Subscriber) Run(ctx context.Context) error {
	defer s.setState(Disconnected, "")

	for ctx.Err() == nil {
		s.setState(Scanning, "")
		peer, err := s.radio.Scan(ctx, ServiceUUID)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			if !errors.Is(err, ErrScanTimeout) {
				s.log.Warnf("scan failed: %v", err)
				s.wait(ctx)
			}
			continue
		}

		s.log.Infow("advertiser found", "peer", peer)
		s.handler.OnDiscover(peer)

		conn, err := s.connect(ctx, peer)
		if err != nil {
			s.log.Warnw("Failed to connect", "peer", peer, "error", err)
			s.setState(Disconnected, "")
			s.handler.OnDisconnect(peer)
			continue
		}

		s.setState(Connected, peer)
		s.log.Infow("Connected to the server", "peer", peer)
		s.handler.OnConnect(peer)

		select {
		case <-conn.Done():
		case <-ctx.Done():
			_ = conn.Close()
		}

		s.setState(Disconnected, "")
		s.log.Infow("Disconnected", "peer", peer)
		s.handler.OnDisconnect(peer)
	}
	return nil
}

// connect is all-or-nothing: a connection whose service or characteristic
// does not resolve is closed again.
func (s *Subscriber) connect(ctx context.Context, peer Peer) (Conn, error) {
	conn, err := s.radio.Connect(ctx, peer)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", peer, err)
	}

	if err := conn.Subscribe(ServiceUUID, CharacteristicUUID, s.handler.OnNotify); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("subscribe %s: %w", peer, err)
	}
	return conn, nil
}

func (s *Subscriber) wait(ctx context.Context) {
	t := time.NewTimer(s.retryDelay)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Peer is the connected advertiser, empty when none.
func (s *Subscriber) Peer() Peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peer
}
