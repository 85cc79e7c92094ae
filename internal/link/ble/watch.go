// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package ble

import (
	"fmt"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
	"go.uber.org/zap"

	"github.com/relabs-tech/gesture_link/internal/link"
)

// The tinygo stack reports connections it makes itself; BlueZ announces
// every other change only as a Device1 property change.
const (
	bluezService      = "org.bluez"
	deviceInterface   = "org.bluez.Device1"
	propertiesChanged = "org.freedesktop.DBus.Properties.PropertiesChanged"
	devicePathMarker  = "/dev_"
)

// connectionChange extracts a Connected transition from a BlueZ signal.
func connectionChange(sig *dbus.Signal) (peer link.Peer, connected bool, ok bool) {
	if sig == nil || sig.Name != propertiesChanged || len(sig.Body) < 2 {
		return "", false, false
	}
	if iface, _ := sig.Body[0].(string); iface != deviceInterface {
		return "", false, false
	}
	changes, isMap := sig.Body[1].(map[string]dbus.Variant)
	if !isMap {
		return "", false, false
	}
	v, found := changes["Connected"]
	if !found {
		return "", false, false
	}
	connected, isBool := v.Value().(bool)
	if !isBool {
		return "", false, false
	}
	peer, ok = peerFromPath(sig.Path)
	return peer, connected, ok
}

// peerFromPath turns /org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF into AA:BB:CC:DD:EE:FF.
func peerFromPath(path dbus.ObjectPath) (link.Peer, bool) {
	s := string(path)
	i := strings.LastIndex(s, devicePathMarker)
	if i < 0 {
		return "", false
	}
	mac := s[i+len(devicePathMarker):]
	if len(mac) != 17 || strings.Contains(mac, "/") {
		return "", false
	}
	return link.Peer(strings.ReplaceAll(mac, "_", ":")), true
}

// watcher delivers Device1 Connected changes to fn until closed.
type watcher struct {
	bus     *dbus.Conn
	signals chan *dbus.Signal
	match   []dbus.MatchOption
	done    chan struct{}
	once    sync.Once
}

func watchConnections(fn func(peer link.Peer, connected bool, path dbus.ObjectPath), log *zap.SugaredLogger) (*watcher, error) {
	bus, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("ble: system bus: %w", err)
	}

	w := &watcher{
		bus:     bus,
		signals: make(chan *dbus.Signal, 16),
		match: []dbus.MatchOption{
			dbus.WithMatchInterface("org.freedesktop.DBus.Properties"),
			dbus.WithMatchMember("PropertiesChanged"),
			dbus.WithMatchArg(0, deviceInterface),
		},
		done: make(chan struct{}),
	}
	if err := bus.AddMatchSignal(w.match...); err != nil {
		return nil, fmt.Errorf("ble: watch device signals: %w", err)
	}
	bus.Signal(w.signals)

	go func() {
		for {
			select {
			case <-w.done:
				return
			case sig := <-w.signals:
				peer, connected, ok := connectionChange(sig)
				if !ok {
					continue
				}
				log.Debugw("device connection changed", "peer", peer, "connected", connected)
				fn(peer, connected, sig.Path)
			}
		}
	}()
	return w, nil
}

// disconnect asks BlueZ to drop the device at path.
func (w *watcher) disconnect(path dbus.ObjectPath) error {
	return w.bus.Object(bluezService, path).Call(deviceInterface+".Disconnect", 0).Err
}

// Close stops the watcher. The shared system bus stays open.
func (w *watcher) Close() {
	w.once.Do(func() {
		w.bus.RemoveSignal(w.signals)
		_ = w.bus.RemoveMatchSignal(w.match...)
		close(w.done)
	})
}
