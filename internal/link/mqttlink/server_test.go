// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package mqttlink

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/relabs-tech/gesture_link/internal/link"
)

type recordingEvents struct {
	mu       sync.Mutex
	events   []string
	payloads []string
}

func (r *recordingEvents) add(e string) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *recordingEvents) OnDiscover(p link.Peer)   { r.add("discover:" + string(p)) }
func (r *recordingEvents) OnConnect(p link.Peer)    { r.add("connect:" + string(p)) }
func (r *recordingEvents) OnDisconnect(p link.Peer) { r.add("disconnect:" + string(p)) }

func (r *recordingEvents) OnNotify(b []byte) {
	r.mu.Lock()
	r.payloads = append(r.payloads, string(b))
	r.mu.Unlock()
}

func (r *recordingEvents) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recordingEvents) received() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.payloads...)
}

var testTopics = newTopics(DefaultTopicPrefix, link.ServiceUUID)

func newRegisteredServer(t *testing.T, b *fakeBroker) (*Server, *recordingEvents) {
	t.Helper()
	s := NewServer(Options{Broker: "tcp://broker:1883", ClientID: "sensor-1", Name: "XIAO_ESP32S3"}, zap.NewNop().Sugar())
	ev := &recordingEvents{}
	require.NoError(t, s.Register(link.ServiceUUID, link.CharacteristicUUID, link.CharacteristicProperties, ev))
	t.Cleanup(func() { _ = s.Close() })
	return s, ev
}

func retainedState(t *testing.T, b *fakeBroker) stateRecord {
	t.Helper()
	b.mu.Lock()
	payload := b.retained[testTopics.state()]
	b.mu.Unlock()
	rec, ok, err := decodeState(payload)
	require.NoError(t, err)
	require.True(t, ok, "no retained state")
	return rec
}

func TestServerRejectsConnectWhileNotAdvertising(t *testing.T) {
	b := newFakeBroker(t)
	_, ev := newRegisteredServer(t, b)
	central := b.client(nil)

	central.Publish(testTopics.connect(), 1, false, []byte("central-1"))

	assert.Equal(t, []string{"central-1"}, b.payloads(testTopics.reject()))
	assert.Empty(t, ev.snapshot())
}

func TestServerAcceptsOneCentral(t *testing.T) {
	b := newFakeBroker(t)
	s, ev := newRegisteredServer(t, b)
	require.NoError(t, s.StartAdvertising())
	assert.True(t, retainedState(t, b).Advertising)

	central := b.client(nil)
	central.Publish(testTopics.connect(), 1, false, []byte("central-1"))
	assert.Equal(t, []string{"connect:central-1"}, ev.snapshot())
	assert.False(t, retainedState(t, b).Advertising)

	central.Publish(testTopics.connect(), 1, false, []byte("central-2"))
	assert.Equal(t, []string{"central-2"}, b.payloads(testTopics.reject()))
	assert.Equal(t, []string{"connect:central-1"}, ev.snapshot())

	// stray disconnects from centrals that never connected
	central.Publish(testTopics.disconnect(), 1, false, []byte("central-2"))
	central.Publish(testTopics.disconnect(), 1, false, []byte("central-1"))
	assert.Equal(t, []string{"connect:central-1", "disconnect:central-1"}, ev.snapshot())
}

func TestServerDropRejectsAndReportsDisconnect(t *testing.T) {
	b := newFakeBroker(t)
	s, ev := newRegisteredServer(t, b)
	require.NoError(t, s.StartAdvertising())

	b.client(nil).Publish(testTopics.connect(), 1, false, []byte("central-1"))
	require.NoError(t, s.Drop("central-1"))

	assert.Equal(t, []string{"central-1"}, b.payloads(testTopics.reject()))
	assert.Equal(t, []string{"connect:central-1", "disconnect:central-1"}, ev.snapshot())

	require.NoError(t, s.Drop("central-1"))
	assert.Len(t, ev.snapshot(), 2)
}

func TestServerBrokerLossEndsSessions(t *testing.T) {
	b := newFakeBroker(t)
	s, ev := newRegisteredServer(t, b)
	require.NoError(t, s.StartAdvertising())
	b.client(nil).Publish(testTopics.connect(), 1, false, []byte("central-1"))

	s.onBrokerLost(nil, errors.New("EOF"))
	assert.Equal(t, []string{"connect:central-1", "disconnect:central-1"}, ev.snapshot())
}

func TestServerWillClearsAdvertisement(t *testing.T) {
	b := newFakeBroker(t)
	s, _ := newRegisteredServer(t, b)
	require.NoError(t, s.StartAdvertising())

	b.byID("sensor-1").crash()

	b.mu.Lock()
	_, held := b.retained[testTopics.state()]
	b.mu.Unlock()
	assert.False(t, held)
}

func TestServerClosedRefusesWork(t *testing.T) {
	b := newFakeBroker(t)
	s, _ := newRegisteredServer(t, b)
	require.NoError(t, s.Close())

	assert.ErrorIs(t, s.StartAdvertising(), link.ErrClosed)
	assert.ErrorIs(t, s.Notify([]byte("x : 1.000000")), link.ErrClosed)
	assert.ErrorIs(t, s.Drop("central-1"), link.ErrClosed)
}
