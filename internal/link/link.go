// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package link is the wireless session between the sensing unit (publisher)
// and the display unit (subscriber). The radio itself is a collaborator
// behind Server and Client; bindings live in the ble, mqttlink and memlink
// sub-packages.
package link

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Protocol constants shared by both units.
const (
	ServiceID        = "b0baad1d-7659-47ca-9e6e-e6558c186240"
	CharacteristicID = "8d28bf86-3102-4978-8693-47651082cade"
)

var (
	ServiceUUID        = uuid.MustParse(ServiceID)
	CharacteristicUUID = uuid.MustParse(CharacteristicID)
)

// DefaultRestartDelay gives the radio stack time to settle after a
// disconnect before advertising again.
const DefaultRestartDelay = 500 * time.Millisecond

// Property is a characteristic capability bit.
type Property uint8

const (
	PropertyRead Property = 1 << iota
	PropertyWrite
	PropertyNotify
)

// CharacteristicProperties are the properties of the result characteristic.
const CharacteristicProperties = PropertyRead | PropertyWrite | PropertyNotify

func (p Property) Has(q Property) bool {
	return p&q == q
}

var (
	ErrNotConnected           = errors.New("link: not connected")
	ErrPayloadTooLarge        = errors.New("link: payload exceeds notification size")
	ErrServiceNotFound        = errors.New("link: service not found")
	ErrCharacteristicNotFound = errors.New("link: characteristic not found")
	ErrScanTimeout            = errors.New("link: no matching advertiser in scan window")
	ErrPeerUnavailable        = errors.New("link: peer unavailable")
	ErrClosed                 = errors.New("link: closed")

	// ErrAlreadyAdvertising means the radio still holds an advertisement
	// from an earlier start; the device is discoverable.
	ErrAlreadyAdvertising = errors.New("link: already advertising")
)

// Peer is a transport address.
type Peer string

type ConnState int

const (
	Disconnected ConnState = iota
	Advertising
	Scanning
	Connected
)

func (s ConnState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Advertising:
		return "advertising"
	case Scanning:
		return "scanning"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// Events is the callback capability each side implements. Callbacks can
// arrive on any goroutine.
type Events interface {
	OnDiscover(peer Peer)
	OnConnect(peer Peer)
	OnDisconnect(peer Peer)
}

// Receiver gets notification payloads on the subscriber side.
type Receiver interface {
	OnNotify(payload []byte)
}

// Server is the peripheral-side radio: one service with one characteristic.
type Server interface {
	// Register declares the service and characteristic and installs the
	// connection callbacks. It is called once before advertising.
	Register(service, characteristic uuid.UUID, props Property, ev Events) error
	StartAdvertising() error
	StopAdvertising() error
	// Notify sets the characteristic value and notifies subscribed peers.
	Notify(value []byte) error
	// Drop disconnects a peer.
	Drop(peer Peer) error
	// MaxPayload is the largest value one notification can carry, 0 if unknown.
	MaxPayload() int
	Close() error
}

// Client is the central-side radio.
type Client interface {
	// Scan runs one scan window and returns the first advertiser of service.
	// It returns ErrScanTimeout when the window ends without a match.
	Scan(ctx context.Context, service uuid.UUID) (Peer, error)
	Connect(ctx context.Context, peer Peer) (Conn, error)
	Close() error
}

// Conn is one established central-side connection.
type Conn interface {
	Peer() Peer
	// Subscribe resolves service and characteristic on the remote and enables
	// notifications. It returns ErrServiceNotFound or ErrCharacteristicNotFound
	// when resolution fails.
	Subscribe(service, characteristic uuid.UUID, fn func(payload []byte)) error
	// Done is closed when the connection is lost or closed.
	Done() <-chan struct{}
	Close() error
}
