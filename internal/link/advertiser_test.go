// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package link

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeServer struct {
	mu          sync.Mutex
	ev          Events
	advertising bool
	advStarts   int
	notified    [][]byte
	dropped     []Peer
	maxPayload  int
	startErr    error
}

func (f *fakeServer) Register(service, characteristic uuid.UUID, props Property, ev Events) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if service != ServiceUUID || characteristic != CharacteristicUUID {
		return errors.New("unexpected identifiers")
	}
	if props != CharacteristicProperties {
		return errors.New("unexpected properties")
	}
	f.ev = ev
	return nil
}

func (f *fakeServer) StartAdvertising() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		err := f.startErr
		f.startErr = nil
		return err
	}
	f.advertising = true
	f.advStarts++
	return nil
}

func (f *fakeServer) StopAdvertising() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.advertising = false
	return nil
}

func (f *fakeServer) Notify(value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notified = append(f.notified, append([]byte(nil), value...))
	return nil
}

func (f *fakeServer) Drop(peer Peer) error {
	f.mu.Lock()
	f.dropped = append(f.dropped, peer)
	ev := f.ev
	f.mu.Unlock()
	ev.OnDisconnect(peer)
	return nil
}

func (f *fakeServer) MaxPayload() int { return f.maxPayload }
func (f *fakeServer) Close() error    { return nil }

func (f *fakeServer) starts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.advStarts
}

func newTestAdvertiser(t *testing.T) (*Advertiser, *fakeServer) {
	t.Helper()
	srv := &fakeServer{}
	a := NewAdvertiser(srv, time.Millisecond, zap.NewNop().Sugar())
	require.NoError(t, a.Start())
	t.Cleanup(func() { _ = a.Close() })
	return a, srv
}

func TestAdvertiserPublishRequiresConnection(t *testing.T) {
	a, srv := newTestAdvertiser(t)
	assert.Equal(t, Advertising, a.State())

	assert.ErrorIs(t, a.Publish([]byte("jump : 0.950000")), ErrNotConnected)
	assert.Empty(t, srv.notified)

	a.OnConnect("central-1")
	require.NoError(t, a.Publish([]byte("jump : 0.950000")))
	assert.Equal(t, [][]byte{[]byte("jump : 0.950000")}, srv.notified)
}

func TestAdvertiserRejectsSecondPeer(t *testing.T) {
	a, srv := newTestAdvertiser(t)

	a.OnConnect("central-1")
	a.OnConnect("central-2")

	assert.Equal(t, Connected, a.State())
	assert.Equal(t, Peer("central-1"), a.Peer())
	assert.Equal(t, []Peer{"central-2"}, srv.dropped)
	assert.Equal(t, 1, a.Sessions())
}

func TestAdvertiserRestartsAdvertisingAfterDisconnect(t *testing.T) {
	a, srv := newTestAdvertiser(t)
	require.Equal(t, 1, srv.starts())

	a.OnConnect("central-1")
	a.OnDisconnect("central-1")
	assert.Eventually(t, func() bool { return a.State() == Advertising }, time.Second, time.Millisecond)
	assert.Equal(t, 2, srv.starts())
	assert.ErrorIs(t, a.Publish([]byte("x : 1.000000")), ErrNotConnected)
}

func TestAdvertiserRetriesFailedRestart(t *testing.T) {
	a, srv := newTestAdvertiser(t)

	srv.mu.Lock()
	srv.startErr = errors.New("stack busy")
	srv.mu.Unlock()

	a.OnConnect("central-1")
	a.OnDisconnect("central-1")
	assert.Eventually(t, func() bool { return a.State() == Advertising }, time.Second, time.Millisecond)
	assert.Equal(t, 2, srv.starts())
}

func TestAdvertiserTreatsLeftoverAdvertisementAsRestarted(t *testing.T) {
	a, srv := newTestAdvertiser(t)

	srv.mu.Lock()
	srv.startErr = fmt.Errorf("ble: start advertising: %w", ErrAlreadyAdvertising)
	srv.mu.Unlock()

	a.OnConnect("central-1")
	a.OnDisconnect("central-1")
	require.Eventually(t, func() bool { return a.State() == Advertising }, time.Second, time.Millisecond)

	// no retry: the leftover advertisement already counts
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, srv.starts())

	a.OnConnect("central-2")
	assert.Equal(t, Connected, a.State())
	assert.Equal(t, 2, a.Sessions())
}

func TestAdvertiserRepeatedCyclesAcceptExactlyOne(t *testing.T) {
	a, srv := newTestAdvertiser(t)

	for i := 0; i < 20; i++ {
		peer := Peer("cycle")
		a.OnConnect(peer)
		require.Equal(t, Connected, a.State())
		a.OnDisconnect(peer)
	}
	assert.Eventually(t, func() bool { return a.State() == Advertising }, time.Second, time.Millisecond)

	a.OnConnect("final")
	a.OnConnect("intruder")

	assert.Equal(t, Peer("final"), a.Peer())
	assert.Equal(t, []Peer{"intruder"}, srv.dropped)
	assert.Equal(t, 21, a.Sessions())
}

func TestAdvertiserIgnoresStaleDisconnect(t *testing.T) {
	a, _ := newTestAdvertiser(t)

	a.OnConnect("central-1")
	a.OnDisconnect("someone-else")
	assert.Equal(t, Connected, a.State())
}

func TestAdvertiserPayloadLimit(t *testing.T) {
	a, srv := newTestAdvertiser(t)
	srv.maxPayload = 8
	a.OnConnect("central-1")

	assert.ErrorIs(t, a.Publish([]byte("jump : 0.950000")), ErrPayloadTooLarge)
	assert.Empty(t, srv.notified)
}

func TestConnStateString(t *testing.T) {
	assert.Equal(t, "connected", Connected.String())
	assert.Equal(t, "scanning", Scanning.String())
	assert.True(t, CharacteristicProperties.Has(PropertyNotify))
	assert.False(t, PropertyRead.Has(PropertyWrite))
}
