// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package presentation is the display-side state machine. Link callbacks
// are queued and consumed by Run, which is the only writer of the state and
// the only caller of the renderer and the actuator.
package presentation

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/relabs-tech/gesture_link/internal/gesture"
	"github.com/relabs-tech/gesture_link/internal/link"
)

type State int

const (
	Disconnected State = iota
	Connecting
	ConnectedIdle
	ConnectedShowing
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case ConnectedIdle:
		return "connected-idle"
	case ConnectedShowing:
		return "connected-showing"
	default:
		return "unknown"
	}
}

// MarshalText lets State appear by name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Status texts shown on the screen.
const (
	TextScanning      = "Scanning..."
	TextConnecting    = "Connecting..."
	TextConnected     = "Connected"
	TextAwaiting      = "Awaiting predictions..."
	TextConnectFailed = "Failed to connect"
	TextDisconnected  = "Disconnected"
)

const DefaultQueueSize = 8

type Renderer interface {
	ShowStatus(lines ...string) error
	ShowResult(d gesture.Decoded) error
}

// Actuator performs one bounded move-and-return. Pulse blocks until the
// motion is done; a cancelled ctx makes it return to rest early.
type Actuator interface {
	Pulse(ctx context.Context) error
}

// Snapshot is a copy of the machine's visible state.
type Snapshot struct {
	State    State            `json:"state"`
	Peer     link.Peer        `json:"peer,omitempty"`
	Last     *gesture.Decoded `json:"last,omitempty"`
	Results  int              `json:"results"`
	Pulses   int              `json:"pulses"`
	Dropped  int              `json:"dropped"`
	Rejected int              `json:"rejected"`
	Changed  time.Time        `json:"changed"`
}

// Observer is told about every transition. It is called from Run and must
// not block.
type Observer interface {
	Observe(s Snapshot)
}

type eventKind int

const (
	evDiscover eventKind = iota
	evConnect
	evDisconnect
	evNotify
)

type event struct {
	kind    eventKind
	peer    link.Peer
	payload []byte
}

// Machine implements link.Events and link.Receiver.
type Machine struct {
	renderer Renderer
	actuator Actuator
	log      *zap.SugaredLogger
	queue    chan event
	stopped  chan struct{}
	stopOnce sync.Once

	mu          sync.RWMutex
	snap        Snapshot
	observers   []Observer
	cancelPulse context.CancelFunc
}

func New(r Renderer, a Actuator, queueSize int, log *zap.SugaredLogger) *Machine {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Machine{
		renderer: r,
		actuator: a,
		log:      log,
		queue:    make(chan event, queueSize),
		stopped:  make(chan struct{}),
		snap:     Snapshot{State: Disconnected, Changed: time.Now()},
	}
}

// AddObserver registers o. Call before Run.
func (m *Machine) AddObserver(o Observer) {
	m.mu.Lock()
	m.observers = append(m.observers, o)
	m.mu.Unlock()
}

func (m *Machine) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s := m.snap
	if s.Last != nil {
		last := *s.Last
		s.Last = &last
	}
	return s
}

func (m *Machine) State() State {
	return m.Snapshot().State
}

// post blocks until the event is queued or Run has returned.
func (m *Machine) post(ev event) {
	select {
	case m.queue <- ev:
	case <-m.stopped:
	}
}

func (m *Machine) OnDiscover(peer link.Peer) {
	m.post(event{kind: evDiscover, peer: peer})
}

func (m *Machine) OnConnect(peer link.Peer) {
	m.post(event{kind: evConnect, peer: peer})
}

// OnDisconnect aborts a running pulse before queueing the event.
func (m *Machine) OnDisconnect(peer link.Peer) {
	m.mu.RLock()
	cancel := m.cancelPulse
	m.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
	m.post(event{kind: evDisconnect, peer: peer})
}

// OnNotify drops the payload unless the machine is waiting for one and the
// queue has room.
func (m *Machine) OnNotify(payload []byte) {
	if m.State() != ConnectedIdle {
		m.countDrop()
		return
	}
	ev := event{kind: evNotify, payload: append([]byte(nil), payload...)}
	select {
	case m.queue <- ev:
	default:
		m.countDrop()
	}
}

func (m *Machine) countDrop() {
	m.mu.Lock()
	m.snap.Dropped++
	m.mu.Unlock()
}

// Run consumes events until ctx is done.
func (m *Machine) Run(ctx context.Context) error {
	defer m.stopOnce.Do(func() { close(m.stopped) })

	m.status(TextScanning)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-m.queue:
			m.handle(ctx, ev)
		}
	}
}

func (m *Machine) handle(ctx context.Context, ev event) {
	state := m.State()

	switch ev.kind {
	case evDiscover:
		if state != Disconnected {
			return
		}
		m.transition(Connecting, ev.peer)
		m.status(TextConnecting)

	case evConnect:
		if state != Disconnected && state != Connecting {
			return
		}
		m.transition(ConnectedIdle, ev.peer)
		m.status(TextConnected, TextAwaiting)

	case evDisconnect:
		switch state {
		case Disconnected:
			return
		case Connecting:
			m.transition(Disconnected, "")
			m.status(TextConnectFailed, TextScanning)
		default:
			m.transition(Disconnected, "")
			m.status(TextDisconnected, TextScanning)
		}

	case evNotify:
		if state != ConnectedIdle {
			m.countDrop()
			return
		}
		m.show(ctx, ev.payload)
	}
}

func (m *Machine) show(ctx context.Context, payload []byte) {
	decoded, err := gesture.ParsePayload(string(payload))
	if err != nil {
		m.log.Warnw("payload rejected", "payload", string(payload), "err", err)
		m.mu.Lock()
		m.snap.Rejected++
		m.mu.Unlock()
		return
	}

	m.mu.Lock()
	m.snap.Last = &decoded
	m.snap.Results++
	m.mu.Unlock()
	m.transition(ConnectedShowing, m.Snapshot().Peer)
	m.log.Infow("result received", "label", decoded.Label, "confidence", decoded.ConfidenceText)

	if err := m.renderer.ShowResult(decoded); err != nil {
		m.log.Warnf("render error: %v", err)
	}

	pulseCtx, cancel := context.WithCancel(ctx)
	m.mu.Lock()
	m.cancelPulse = cancel
	m.mu.Unlock()

	err = m.actuator.Pulse(pulseCtx)

	m.mu.Lock()
	m.cancelPulse = nil
	m.mu.Unlock()
	aborted := pulseCtx.Err() != nil
	cancel()

	switch {
	case err == nil:
		m.mu.Lock()
		m.snap.Pulses++
		m.mu.Unlock()
	case errors.Is(err, context.Canceled):
		m.log.Info("pulse aborted")
	default:
		m.log.Warnf("actuator error: %v", err)
	}

	// An aborted pulse means a disconnect is queued; it moves the machine
	// out of ConnectedShowing.
	if aborted && ctx.Err() == nil {
		return
	}
	m.transition(ConnectedIdle, m.Snapshot().Peer)
}

func (m *Machine) status(lines ...string) {
	if err := m.renderer.ShowStatus(lines...); err != nil {
		m.log.Warnf("render error: %v", err)
	}
}

func (m *Machine) transition(to State, peer link.Peer) {
	m.mu.Lock()
	from := m.snap.State
	m.snap.State = to
	m.snap.Peer = peer
	m.snap.Changed = time.Now()
	observers := m.observers
	m.mu.Unlock()

	if from != to {
		m.log.Debugw("transition", "from", from, "to", to, "peer", peer)
	}
	snap := m.Snapshot()
	for _, o := range observers {
		o.Observe(snap)
	}
}
