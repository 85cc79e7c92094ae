// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package mqttlink

import (
	"context"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/relabs-tech/gesture_link/internal/link"
)

// Client is the central side. One Client talks to one service.
type Client struct {
	opts    Options
	service uuid.UUID
	topics  topics
	id      string
	client  mqtt.Client
	log     *zap.SugaredLogger

	mu      sync.Mutex
	records map[link.Peer]stateRecord
	live    *conn
}

// NewClient connects to the broker. If this process dies the broker
// publishes a disconnect for it.
func NewClient(opts Options, service uuid.UUID, log *zap.SugaredLogger) (*Client, error) {
	id := opts.ClientID
	if id == "" {
		id = "gesture-display-" + uuid.NewString()
	}

	c := &Client{
		opts:    opts,
		service: service,
		topics:  newTopics(opts.prefix(), service),
		id:      id,
		log:     log,
		records: make(map[link.Peer]stateRecord),
	}

	mopts := mqtt.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(id).
		SetWill(c.topics.disconnect(), id, 1, false).
		SetAutoReconnect(true).
		SetOrderMatters(false).
		SetConnectionLostHandler(c.onBrokerLost)

	c.client = newMQTTClient(mopts)
	if err := wait(c.client.Connect()); err != nil {
		return nil, fmt.Errorf("mqttlink: connect %s: %w", opts.Broker, err)
	}
	log.Infof("connected to MQTT broker at %s", opts.Broker)
	return c, nil
}

func (c *Client) onBrokerLost(_ mqtt.Client, err error) {
	c.log.Warnf("MQTT connection lost: %v", err)
	c.mu.Lock()
	cn := c.live
	c.mu.Unlock()
	if cn != nil {
		cn.teardown()
	}
}

// Scan waits one scan window for an advertising server. The retained state
// record arrives right after subscribing when a server is up.
func (c *Client) Scan(ctx context.Context, service uuid.UUID) (link.Peer, error) {
	if service != c.service {
		return "", fmt.Errorf("mqttlink: client bound to service %s", c.service)
	}

	found := make(chan stateRecord, 1)
	token := c.client.Subscribe(c.topics.state(), 1, func(_ mqtt.Client, msg mqtt.Message) {
		rec, ok, err := decodeState(msg.Payload())
		if err != nil {
			c.log.Warnf("scan: %v", err)
			return
		}
		if !ok || !rec.Advertising {
			return
		}
		select {
		case found <- rec:
		default:
		}
	})
	if err := wait(token); err != nil {
		return "", fmt.Errorf("mqttlink: subscribe %s: %w", c.topics.state(), err)
	}
	defer c.client.Unsubscribe(c.topics.state())

	timer := time.NewTimer(c.opts.scanWindow())
	defer timer.Stop()

	select {
	case rec := <-found:
		peer := link.Peer(rec.Peer)
		c.mu.Lock()
		c.records[peer] = rec
		c.mu.Unlock()
		return peer, nil
	case <-timer.C:
		return "", link.ErrScanTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Connect asks the server for a session. A reject from the server or the
// server's advertisement disappearing ends it.
func (c *Client) Connect(ctx context.Context, peer link.Peer) (link.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	rec, ok := c.records[peer]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s not scanned", link.ErrPeerUnavailable, peer)
	}

	cn := &conn{owner: c, remote: peer, record: rec, done: make(chan struct{})}

	rejectToken := c.client.Subscribe(c.topics.reject(), 1, func(_ mqtt.Client, msg mqtt.Message) {
		if string(msg.Payload()) == c.id {
			c.log.Infow("rejected by server", "peer", peer)
			cn.teardown()
		}
	})
	if err := wait(rejectToken); err != nil {
		return nil, fmt.Errorf("mqttlink: subscribe reject: %w", err)
	}

	stateToken := c.client.Subscribe(c.topics.state(), 1, func(_ mqtt.Client, msg mqtt.Message) {
		rec, ok, err := decodeState(msg.Payload())
		if err != nil {
			return
		}
		if !ok || link.Peer(rec.Peer) != peer {
			cn.teardown()
			return
		}
		cn.setRecord(rec)
	})
	if err := wait(stateToken); err != nil {
		c.client.Unsubscribe(c.topics.reject())
		return nil, fmt.Errorf("mqttlink: subscribe state: %w", err)
	}

	c.mu.Lock()
	c.live = cn
	c.mu.Unlock()

	if err := wait(c.client.Publish(c.topics.connect(), 1, false, []byte(c.id))); err != nil {
		cn.teardown()
		return nil, fmt.Errorf("mqttlink: connect request: %w", err)
	}
	return cn, nil
}

func (c *Client) Close() error {
	c.mu.Lock()
	cn := c.live
	c.mu.Unlock()
	if cn != nil {
		_ = cn.Close()
	}
	c.client.Disconnect(disconnectQuiesce)
	return nil
}

type conn struct {
	owner  *Client
	remote link.Peer
	done   chan struct{}
	once   sync.Once

	mu     sync.Mutex
	record stateRecord
	topic  string
}

func (cn *conn) Peer() link.Peer {
	return cn.remote
}

func (cn *conn) setRecord(rec stateRecord) {
	cn.mu.Lock()
	cn.record = rec
	cn.mu.Unlock()
}

func (cn *conn) Subscribe(service, characteristic uuid.UUID, fn func([]byte)) error {
	c := cn.owner
	if service != c.service {
		return fmt.Errorf("%w: %s", link.ErrServiceNotFound, service)
	}

	cn.mu.Lock()
	props, ok := cn.record.find(characteristic)
	cn.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", link.ErrCharacteristicNotFound, characteristic)
	}
	if !props.Has(link.PropertyNotify) {
		return fmt.Errorf("%w: %s does not notify", link.ErrCharacteristicNotFound, characteristic)
	}

	topic := c.topics.characteristic(characteristic)
	token := c.client.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		select {
		case <-cn.done:
			return
		default:
		}
		fn(msg.Payload())
	})
	if err := wait(token); err != nil {
		return fmt.Errorf("mqttlink: subscribe %s: %w", topic, err)
	}

	cn.mu.Lock()
	cn.topic = topic
	cn.mu.Unlock()
	return nil
}

func (cn *conn) Done() <-chan struct{} {
	return cn.done
}

// Close tells the server and releases the subscriptions.
func (cn *conn) Close() error {
	c := cn.owner
	select {
	case <-cn.done:
	default:
		c.client.Publish(c.topics.disconnect(), 1, false, []byte(c.id))
	}
	cn.teardown()
	return nil
}

func (cn *conn) teardown() {
	cn.once.Do(func() {
		c := cn.owner
		cn.mu.Lock()
		topics := []string{c.topics.reject(), c.topics.state()}
		if cn.topic != "" {
			topics = append(topics, cn.topic)
		}
		cn.mu.Unlock()

		c.client.Unsubscribe(topics...)

		c.mu.Lock()
		if c.live == cn {
			c.live = nil
		}
		c.mu.Unlock()
		close(cn.done)
	})
}
