// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package presentation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/relabs-tech/gesture_link/internal/gesture"
)

type fakeRenderer struct {
	mu      sync.Mutex
	status  [][]string
	results []gesture.Decoded
}

func (r *fakeRenderer) ShowStatus(lines ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.status = append(r.status, lines)
	return nil
}

func (r *fakeRenderer) ShowResult(d gesture.Decoded) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, d)
	return nil
}

func (r *fakeRenderer) lastStatus() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.status) == 0 {
		return nil
	}
	return r.status[len(r.status)-1]
}

func (r *fakeRenderer) resultCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.results)
}

type fakeActuator struct {
	mu      sync.Mutex
	calls   int
	block   bool
	started chan struct{}
}

func (a *fakeActuator) Pulse(ctx context.Context) error {
	a.mu.Lock()
	a.calls++
	a.mu.Unlock()
	if a.started != nil {
		a.started <- struct{}{}
	}
	if a.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (a *fakeActuator) count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

type recorder struct {
	mu     sync.Mutex
	states []State
}

func (o *recorder) Observe(s Snapshot) {
	o.mu.Lock()
	o.states = append(o.states, s.State)
	o.mu.Unlock()
}

func (o *recorder) seen() []State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]State(nil), o.states...)
}

func start(t *testing.T, r Renderer, a Actuator) *Machine {
	t.Helper()
	m := New(r, a, 4, zap.NewNop().Sugar())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = m.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return m
}

func waitState(t *testing.T, m *Machine, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return m.State() == want },
		time.Second, 5*time.Millisecond, "want %s, have %s", want, m.State())
}

func TestConnectShowPulse(t *testing.T) {
	r := &fakeRenderer{}
	a := &fakeActuator{}
	m := New(r, a, 4, zap.NewNop().Sugar())
	obs := &recorder{}
	m.AddObserver(obs)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = m.Run(ctx) }()

	m.OnDiscover("sensor")
	m.OnConnect("sensor")
	waitState(t, m, ConnectedIdle)
	assert.Equal(t, []string{TextConnected, TextAwaiting}, r.lastStatus())

	m.OnNotify([]byte("jump : 0.950000"))
	require.Eventually(t, func() bool { return m.Snapshot().Pulses == 1 }, time.Second, 5*time.Millisecond)
	waitState(t, m, ConnectedIdle)

	snap := m.Snapshot()
	require.NotNil(t, snap.Last)
	assert.Equal(t, "jump", snap.Last.Label)
	assert.Equal(t, "0.950000", snap.Last.ConfidenceText)
	assert.Equal(t, 1, a.count())
	assert.Equal(t, []State{Connecting, ConnectedIdle, ConnectedShowing, ConnectedIdle}, obs.seen())
}

func TestDisconnectWhileShowingPulsesOnce(t *testing.T) {
	r := &fakeRenderer{}
	a := &fakeActuator{block: true, started: make(chan struct{}, 1)}
	m := start(t, r, a)

	m.OnConnect("sensor")
	waitState(t, m, ConnectedIdle)

	m.OnNotify([]byte("spin : 0.900000"))
	select {
	case <-a.started:
	case <-time.After(time.Second):
		t.Fatal("pulse did not start")
	}
	assert.Equal(t, ConnectedShowing, m.State())

	// a repeat of the same payload while showing is not processed
	m.OnNotify([]byte("spin : 0.900000"))

	m.OnDisconnect("sensor")
	waitState(t, m, Disconnected)
	assert.Equal(t, []string{TextDisconnected, TextScanning}, r.lastStatus())

	m.OnNotify([]byte("spin : 0.900000"))
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, 1, a.count())
	assert.Equal(t, 1, r.resultCount())
	assert.Zero(t, m.Snapshot().Pulses)
	assert.Equal(t, 2, m.Snapshot().Dropped)
}

func TestFailedConnect(t *testing.T) {
	r := &fakeRenderer{}
	m := start(t, r, &fakeActuator{})

	m.OnDiscover("sensor")
	waitState(t, m, Connecting)
	m.OnDisconnect("sensor")
	waitState(t, m, Disconnected)

	require.Eventually(t, func() bool {
		s := r.lastStatus()
		return len(s) > 0 && s[0] == TextConnectFailed
	}, time.Second, 5*time.Millisecond)
}

func TestMalformedPayloadIsRejected(t *testing.T) {
	r := &fakeRenderer{}
	a := &fakeActuator{}
	m := start(t, r, a)

	m.OnConnect("sensor")
	waitState(t, m, ConnectedIdle)
	m.OnNotify([]byte("garbage"))

	require.Eventually(t, func() bool { return m.Snapshot().Rejected == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, ConnectedIdle, m.State())
	assert.Zero(t, a.count())
	assert.Zero(t, r.resultCount())
}

func TestNotifyBeforeConnectIsDropped(t *testing.T) {
	a := &fakeActuator{}
	m := start(t, &fakeRenderer{}, a)

	m.OnNotify([]byte("jump : 0.950000"))
	assert.Equal(t, 1, m.Snapshot().Dropped)
	assert.Zero(t, a.count())
}

func TestCallbacksDoNotBlockAfterRunReturns(t *testing.T) {
	m := New(&fakeRenderer{}, &fakeActuator{}, 1, zap.NewNop().Sugar())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, m.Run(ctx), context.Canceled)

	done := make(chan struct{})
	go func() {
		m.OnConnect("a")
		m.OnConnect("b")
		m.OnDisconnect("a")
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("callbacks blocked")
	}
}
