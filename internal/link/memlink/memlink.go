// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package memlink is an in-process radio: one Hub joins a Server and any
// number of Clients. It follows the peripheral rules the real stacks have:
// advertising stops when a central connects, and a notification reaches only
// subscribed connections.
package memlink

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/relabs-tech/gesture_link/internal/link"
)

const (
	DefaultMaxPayload = 512
	DefaultScanWindow = 5 * time.Second
)

// Hub is the shared medium.
type Hub struct {
	MaxPayload int
	ScanWindow time.Duration

	mu          sync.Mutex
	server      *Server
	advertising bool
	conns       map[link.Peer]*conn
	seq         int
	wake        chan struct{}
}

func NewHub() *Hub {
	return &Hub{
		MaxPayload: DefaultMaxPayload,
		ScanWindow: DefaultScanWindow,
		conns:      make(map[link.Peer]*conn),
		wake:       make(chan struct{}),
	}
}

// signal wakes scanners. Callers hold h.mu.
func (h *Hub) signal() {
	close(h.wake)
	h.wake = make(chan struct{})
}

// Server returns the peripheral radio with the given address.
func (h *Hub) Server(name string) *Server {
	return &Server{hub: h, name: link.Peer(name)}
}

// Client returns a new central radio.
func (h *Hub) Client() *Client {
	return &Client{hub: h}
}

// Advertising reports whether the server is currently discoverable.
func (h *Hub) Advertising() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.advertising
}

// Connections is the number of live connections.
func (h *Hub) Connections() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// DropAll simulates radio loss: every connection is torn down and both
// sides are told.
func (h *Hub) DropAll() {
	h.mu.Lock()
	conns := make([]*conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.teardown()
	}
}

// Server is the peripheral side.
type Server struct {
	hub  *Hub
	name link.Peer

	service        uuid.UUID
	characteristic uuid.UUID
	props          link.Property
	ev             link.Events
	value          []byte
}

func (s *Server) Register(service, characteristic uuid.UUID, props link.Property, ev link.Events) error {
	h := s.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.server != nil && h.server != s {
		return fmt.Errorf("memlink: hub already has server %s", h.server.name)
	}
	s.service = service
	s.characteristic = characteristic
	s.props = props
	s.ev = ev
	h.server = s
	return nil
}

func (s *Server) StartAdvertising() error {
	h := s.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.server != s {
		return fmt.Errorf("memlink: server %s not registered", s.name)
	}
	h.advertising = true
	h.signal()
	return nil
}

func (s *Server) StopAdvertising() error {
	h := s.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.server == s {
		h.advertising = false
	}
	return nil
}

// Notify stores value and delivers a copy to every subscribed connection.
func (s *Server) Notify(value []byte) error {
	h := s.hub
	h.mu.Lock()
	s.value = append(s.value[:0], value...)
	var targets []func([]byte)
	for _, c := range h.conns {
		if c.notify != nil {
			targets = append(targets, c.notify)
		}
	}
	h.mu.Unlock()

	for _, fn := range targets {
		fn(append([]byte(nil), value...))
	}
	return nil
}

// Value is the last value written by Notify.
func (s *Server) Value() []byte {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	return append([]byte(nil), s.value...)
}

func (s *Server) Drop(peer link.Peer) error {
	s.hub.mu.Lock()
	c, ok := s.hub.conns[peer]
	s.hub.mu.Unlock()
	if !ok {
		return link.ErrPeerUnavailable
	}
	c.teardown()
	return nil
}

func (s *Server) MaxPayload() int {
	return s.hub.MaxPayload
}

// Close drops all connections and unregisters the server.
func (s *Server) Close() error {
	s.hub.DropAll()
	h := s.hub
	h.mu.Lock()
	if h.server == s {
		h.server = nil
		h.advertising = false
	}
	h.mu.Unlock()
	return nil
}

// Client is a central.
type Client struct {
	hub *Hub
}

func (c *Client) Scan(ctx context.Context, service uuid.UUID) (link.Peer, error) {
	h := c.hub
	timer := time.NewTimer(h.ScanWindow)
	defer timer.Stop()

	for {
		h.mu.Lock()
		if h.advertising && h.server != nil && h.server.service == service {
			name := h.server.name
			h.mu.Unlock()
			return name, nil
		}
		wake := h.wake
		h.mu.Unlock()

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
			return "", link.ErrScanTimeout
		case <-wake:
		}
	}
}

func (c *Client) Connect(ctx context.Context, peer link.Peer) (link.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h := c.hub
	h.mu.Lock()
	srv := h.server
	if srv == nil || srv.name != peer || !h.advertising {
		h.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", link.ErrPeerUnavailable, peer)
	}
	h.seq++
	cn := &conn{
		hub:     h,
		server:  srv,
		remote:  peer,
		central: link.Peer(fmt.Sprintf("central-%d", h.seq)),
		done:    make(chan struct{}),
	}
	h.conns[cn.central] = cn
	h.advertising = false
	ev := srv.ev
	h.mu.Unlock()

	if ev != nil {
		ev.OnConnect(cn.central)
	}
	return cn, nil
}

func (c *Client) Close() error {
	return nil
}

type conn struct {
	hub     *Hub
	server  *Server
	remote  link.Peer
	central link.Peer
	notify  func([]byte)
	done    chan struct{}
	once    sync.Once
}

func (c *conn) Peer() link.Peer {
	return c.remote
}

func (c *conn) Subscribe(service, characteristic uuid.UUID, fn func([]byte)) error {
	h := c.hub
	h.mu.Lock()
	defer h.mu.Unlock()

	select {
	case <-c.done:
		return link.ErrClosed
	default:
	}
	if c.server.service != service {
		return fmt.Errorf("%w: %s", link.ErrServiceNotFound, service)
	}
	if c.server.characteristic != characteristic {
		return fmt.Errorf("%w: %s", link.ErrCharacteristicNotFound, characteristic)
	}
	if !c.server.props.Has(link.PropertyNotify) {
		return fmt.Errorf("%w: %s does not notify", link.ErrCharacteristicNotFound, characteristic)
	}
	c.notify = fn
	return nil
}

func (c *conn) Done() <-chan struct{} {
	return c.done
}

func (c *conn) Close() error {
	c.teardown()
	return nil
}

func (c *conn) teardown() {
	c.once.Do(func() {
		h := c.hub
		h.mu.Lock()
		delete(h.conns, c.central)
		ev := c.server.ev
		h.mu.Unlock()

		close(c.done)
		if ev != nil {
			ev.OnDisconnect(c.central)
		}
	})
}
