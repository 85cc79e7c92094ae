// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package mqttlink

import (
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// fakeBroker routes exact topics between fakeClients and delivers inline.
type fakeBroker struct {
	mu        sync.Mutex
	subs      map[string]map[*fakeClient]mqtt.MessageHandler
	retained  map[string][]byte
	clients   map[string]*fakeClient
	published []fakeMessage
}

func newFakeBroker(t *testing.T) *fakeBroker {
	t.Helper()
	b := &fakeBroker{
		subs:     make(map[string]map[*fakeClient]mqtt.MessageHandler),
		retained: make(map[string][]byte),
		clients:  make(map[string]*fakeClient),
	}
	prev := newMQTTClient
	newMQTTClient = func(o *mqtt.ClientOptions) mqtt.Client { return b.client(o) }
	t.Cleanup(func() { newMQTTClient = prev })
	return b
}

func (b *fakeBroker) client(o *mqtt.ClientOptions) *fakeClient {
	c := &fakeClient{b: b, opts: o}
	if o != nil {
		b.mu.Lock()
		b.clients[o.ClientID] = c
		b.mu.Unlock()
	}
	return c
}

func (b *fakeBroker) byID(id string) *fakeClient {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.clients[id]
}

// payloads lists what was published on topic, in order.
func (b *fakeBroker) payloads(topic string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, m := range b.published {
		if m.topic == topic {
			out = append(out, string(m.payload))
		}
	}
	return out
}

func (b *fakeBroker) publish(topic string, retained bool, payload []byte) {
	msg := fakeMessage{topic: topic, payload: payload, retained: retained}

	b.mu.Lock()
	b.published = append(b.published, msg)
	if retained {
		if len(payload) == 0 {
			delete(b.retained, topic)
		} else {
			b.retained[topic] = payload
		}
	}
	type delivery struct {
		c *fakeClient
		h mqtt.MessageHandler
	}
	var targets []delivery
	for c, h := range b.subs[topic] {
		targets = append(targets, delivery{c, h})
	}
	b.mu.Unlock()

	msg.retained = false
	for _, d := range targets {
		d.h(d.c, msg)
	}
}

func (b *fakeBroker) subscribe(c *fakeClient, topic string, h mqtt.MessageHandler) {
	b.mu.Lock()
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[*fakeClient]mqtt.MessageHandler)
	}
	b.subs[topic][c] = h
	held, ok := b.retained[topic]
	b.mu.Unlock()

	if ok {
		h(c, fakeMessage{topic: topic, payload: held, retained: true})
	}
}

func (b *fakeBroker) unsubscribe(c *fakeClient, topics ...string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, topic := range topics {
		delete(b.subs[topic], c)
	}
}

func (b *fakeBroker) forget(c *fakeClient) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, handlers := range b.subs {
		delete(handlers, c)
	}
}

type fakeClient struct {
	mqtt.Client
	b    *fakeBroker
	opts *mqtt.ClientOptions
}

func (c *fakeClient) Connect() mqtt.Token {
	if c.opts != nil && c.opts.OnConnect != nil {
		c.opts.OnConnect(c)
	}
	return doneToken{}
}

func (c *fakeClient) Disconnect(uint) { c.b.forget(c) }

func (c *fakeClient) Publish(topic string, _ byte, retained bool, payload interface{}) mqtt.Token {
	var data []byte
	switch p := payload.(type) {
	case []byte:
		data = append([]byte(nil), p...)
	case string:
		data = []byte(p)
	}
	c.b.publish(topic, retained, data)
	return doneToken{}
}

func (c *fakeClient) Subscribe(topic string, _ byte, h mqtt.MessageHandler) mqtt.Token {
	c.b.subscribe(c, topic, h)
	return doneToken{}
}

func (c *fakeClient) Unsubscribe(topics ...string) mqtt.Token {
	c.b.unsubscribe(c, topics...)
	return doneToken{}
}

// crash drops the session uncleanly; the broker publishes the will.
func (c *fakeClient) crash() {
	c.b.forget(c)
	if c.opts != nil && c.opts.WillEnabled {
		c.b.publish(c.opts.WillTopic, c.opts.WillRetained, c.opts.WillPayload)
	}
}

type fakeMessage struct {
	topic    string
	payload  []byte
	retained bool
}

func (m fakeMessage) Duplicate() bool   { return false }
func (m fakeMessage) Qos() byte         { return 1 }
func (m fakeMessage) Retained() bool    { return m.retained }
func (m fakeMessage) Topic() string     { return m.topic }
func (m fakeMessage) MessageID() uint16 { return 0 }
func (m fakeMessage) Payload() []byte   { return m.payload }
func (m fakeMessage) Ack()              {}

var closedChan = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

type doneToken struct{}

func (doneToken) Wait() bool                     { return true }
func (doneToken) WaitTimeout(time.Duration) bool { return true }
func (doneToken) Done() <-chan struct{}          { return closedChan }
func (doneToken) Error() error                   { return nil }
