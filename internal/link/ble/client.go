// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package ble

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"tinygo.org/x/bluetooth"

	"github.com/relabs-tech/gesture_link/internal/link"
)

// DefaultScanWindow matches the 5 s active scan of the display firmware.
const DefaultScanWindow = 5 * time.Second

// Client is the central role on the default adapter.
type Client struct {
	adapter *bluetooth.Adapter
	window  time.Duration
	log     *zap.SugaredLogger

	mu    sync.Mutex
	watch *watcher
	seen  map[link.Peer]bluetooth.Address
	conns map[link.Peer]*conn
}

func NewClient(window time.Duration, log *zap.SugaredLogger) (*Client, error) {
	if window <= 0 {
		window = DefaultScanWindow
	}
	adapter := bluetooth.DefaultAdapter
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("ble: enable adapter: %w", err)
	}
	c := &Client{
		adapter: adapter,
		window:  window,
		log:     log,
		seen:    make(map[link.Peer]bluetooth.Address),
		conns:   make(map[link.Peer]*conn),
	}
	// links the remote or the controller drops show up only as signals
	w, err := watchConnections(func(peer link.Peer, connected bool, _ dbus.ObjectPath) {
		c.onConnectionChange(peer, connected)
	}, log)
	if err != nil {
		return nil, err
	}
	c.watch = w
	adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		c.onConnectionChange(link.Peer(device.Address.String()), connected)
	})
	return c, nil
}

// onConnectionChange closes the conn to peer once the link is gone.
func (c *Client) onConnectionChange(peer link.Peer, connected bool) {
	if connected {
		return
	}
	c.mu.Lock()
	cn := c.conns[peer]
	c.mu.Unlock()
	if cn != nil {
		cn.teardown()
	}
}

func (c *Client) Scan(ctx context.Context, service uuid.UUID) (link.Peer, error) {
	svc, err := toUUID(service)
	if err != nil {
		return "", err
	}

	var timedOut atomic.Bool
	timer := time.AfterFunc(c.window, func() {
		timedOut.Store(true)
		_ = c.adapter.StopScan()
	})
	defer timer.Stop()
	stop := context.AfterFunc(ctx, func() { _ = c.adapter.StopScan() })
	defer stop()

	var found *bluetooth.ScanResult
	err = c.adapter.Scan(func(a *bluetooth.Adapter, r bluetooth.ScanResult) {
		if found != nil || !r.HasServiceUUID(svc) {
			return
		}
		found = &r
		_ = a.StopScan()
	})
	if err != nil {
		return "", fmt.Errorf("ble: scan: %w", err)
	}

	if found == nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		if !timedOut.Load() {
			c.log.Debug("scan ended early")
		}
		return "", link.ErrScanTimeout
	}

	peer := link.Peer(found.Address.String())
	c.mu.Lock()
	c.seen[peer] = found.Address
	c.mu.Unlock()
	c.log.Infow("advertiser found", "peer", peer, "name", found.LocalName(), "rssi", found.RSSI)
	return peer, nil
}

func (c *Client) Connect(ctx context.Context, peer link.Peer) (link.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	addr, ok := c.seen[peer]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s not scanned", link.ErrPeerUnavailable, peer)
	}

	device, err := c.adapter.Connect(addr, bluetooth.ConnectionParams{})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", link.ErrPeerUnavailable, peer, err)
	}

	cn := &conn{owner: c, remote: peer, device: device, done: make(chan struct{})}
	c.mu.Lock()
	c.conns[peer] = cn
	c.mu.Unlock()
	return cn, nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	conns := make([]*conn, 0, len(c.conns))
	for _, cn := range c.conns {
		conns = append(conns, cn)
	}
	w := c.watch
	c.watch = nil
	c.mu.Unlock()

	if w != nil {
		defer w.Close()
	}

	var errs []error
	for _, cn := range conns {
		errs = append(errs, cn.Close())
	}
	return errors.Join(errs...)
}

type conn struct {
	owner  *Client
	remote link.Peer
	device bluetooth.Device
	done   chan struct{}
	once   sync.Once
}

func (cn *conn) Peer() link.Peer { return cn.remote }

func (cn *conn) Subscribe(service, characteristic uuid.UUID, fn func([]byte)) error {
	svc, err := toUUID(service)
	if err != nil {
		return err
	}
	chr, err := toUUID(characteristic)
	if err != nil {
		return err
	}

	services, err := cn.device.DiscoverServices([]bluetooth.UUID{svc})
	if err != nil || len(services) == 0 {
		return fmt.Errorf("%w: %s", link.ErrServiceNotFound, service)
	}
	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{chr})
	if err != nil || len(chars) == 0 {
		return fmt.Errorf("%w: %s", link.ErrCharacteristicNotFound, characteristic)
	}

	if err := chars[0].EnableNotifications(func(buf []byte) {
		// the stack reuses buf
		fn(append([]byte(nil), buf...))
	}); err != nil {
		return fmt.Errorf("%w: %s: %w", link.ErrCharacteristicNotFound, characteristic, err)
	}
	return nil
}

func (cn *conn) Done() <-chan struct{} { return cn.done }

func (cn *conn) Close() error {
	var err error
	select {
	case <-cn.done:
	default:
		err = cn.device.Disconnect()
	}
	cn.teardown()
	return err
}

func (cn *conn) teardown() {
	cn.once.Do(func() {
		c := cn.owner
		c.mu.Lock()
		if c.conns[cn.remote] == cn {
			delete(c.conns, cn.remote)
		}
		c.mu.Unlock()
		close(cn.done)
	})
}
