// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package mqttlink

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/relabs-tech/gesture_link/internal/link"
)

func newTestClient(t *testing.T, id string) *Client {
	t.Helper()
	c, err := NewClient(Options{
		Broker:     "tcp://broker:1883",
		ClientID:   id,
		ScanWindow: 10 * time.Millisecond,
	}, link.ServiceUUID, zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func startAdvertiser(t *testing.T) *link.Advertiser {
	t.Helper()
	s := NewServer(Options{Broker: "tcp://broker:1883", ClientID: "sensor-1"}, zap.NewNop().Sugar())
	adv := link.NewAdvertiser(s, time.Millisecond, zap.NewNop().Sugar())
	require.NoError(t, adv.Start())
	t.Cleanup(func() { _ = adv.Close() })
	return adv
}

func isDone(c link.Conn) bool {
	select {
	case <-c.Done():
		return true
	default:
		return false
	}
}

func TestSecondCentralIsRejected(t *testing.T) {
	b := newFakeBroker(t)
	adv := startAdvertiser(t)
	first := newTestClient(t, "display-1")
	second := newTestClient(t, "display-2")
	ctx := context.Background()

	// both see the advertisement before either connects
	peer, err := first.Scan(ctx, link.ServiceUUID)
	require.NoError(t, err)
	assert.Equal(t, link.Peer("sensor-1"), peer)
	_, err = second.Scan(ctx, link.ServiceUUID)
	require.NoError(t, err)

	c1, err := first.Connect(ctx, peer)
	require.NoError(t, err)
	assert.Equal(t, link.Connected, adv.State())

	c2, err := second.Connect(ctx, peer)
	require.NoError(t, err)
	assert.True(t, isDone(c2), "second central should be rejected")
	assert.False(t, isDone(c1))
	assert.Equal(t, []string{"display-2"}, b.payloads(testTopics.reject()))
	assert.Equal(t, 1, adv.Sessions())

	_, err = second.Scan(ctx, link.ServiceUUID)
	assert.ErrorIs(t, err, link.ErrScanTimeout, "not advertising while connected")
}

func TestCentralWillRestartsAdvertising(t *testing.T) {
	b := newFakeBroker(t)
	adv := startAdvertiser(t)
	c := newTestClient(t, "display-1")
	ctx := context.Background()

	peer, err := c.Scan(ctx, link.ServiceUUID)
	require.NoError(t, err)
	_, err = c.Connect(ctx, peer)
	require.NoError(t, err)
	require.Equal(t, link.Connected, adv.State())

	b.byID("display-1").crash()

	require.Eventually(t, func() bool { return adv.State() == link.Advertising }, time.Second, time.Millisecond)
	assert.True(t, retainedState(t, b).Advertising)

	other := newTestClient(t, "display-2")
	peer, err = other.Scan(ctx, link.ServiceUUID)
	require.NoError(t, err)
	_, err = other.Connect(ctx, peer)
	require.NoError(t, err)
	assert.Equal(t, 2, adv.Sessions())
}

func TestSubscriberOverBroker(t *testing.T) {
	b := newFakeBroker(t)
	adv := startAdvertiser(t)
	c := newTestClient(t, "display-1")
	h := &recordingEvents{}
	sub := link.NewSubscriber(c, h, zap.NewNop().Sugar())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = sub.Run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	require.Eventually(t, func() bool { return sub.State() == link.Connected }, time.Second, time.Millisecond)
	require.Equal(t, link.Connected, adv.State())

	require.NoError(t, adv.Publish([]byte("jump : 0.950000")))
	assert.Equal(t, []string{"jump : 0.950000"}, h.received())

	// the sensing unit vanishes; its will clears the advertisement
	b.byID("sensor-1").crash()

	require.Eventually(t, func() bool {
		ev := h.snapshot()
		return len(ev) > 0 && ev[len(ev)-1] == "disconnect:sensor-1"
	}, time.Second, time.Millisecond)
	assert.Equal(t, []string{"discover:sensor-1", "connect:sensor-1", "disconnect:sensor-1"}, h.snapshot())
	assert.NotEqual(t, link.Connected, sub.State())
}
