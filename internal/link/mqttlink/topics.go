// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package mqttlink

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/relabs-tech/gesture_link/internal/link"
)

// Topic layout under <prefix>/<service>:
//
//	state               retained advertisement record, cleared by the server's will
//	connect             central id, central -> server
//	disconnect          central id, central -> server (also the central's will)
//	reject              central id, server -> central
//	char/<uuid>         notifications of one characteristic
type topics struct {
	base string
}

func newTopics(prefix string, service uuid.UUID) topics {
	prefix = strings.TrimSuffix(prefix, "/")
	return topics{base: fmt.Sprintf("%s/%s", prefix, service)}
}

func (t topics) state() string      { return t.base + "/state" }
func (t topics) connect() string    { return t.base + "/connect" }
func (t topics) disconnect() string { return t.base + "/disconnect" }
func (t topics) reject() string     { return t.base + "/reject" }

func (t topics) characteristic(id uuid.UUID) string {
	return t.base + "/char/" + id.String()
}

type charRecord struct {
	UUID       string        `json:"uuid"`
	Properties link.Property `json:"properties"`
}

// stateRecord is what a scanner sees of the server.
type stateRecord struct {
	Peer            string       `json:"peer"`
	Name            string       `json:"name,omitempty"`
	Advertising     bool         `json:"advertising"`
	Characteristics []charRecord `json:"characteristics"`
}

// decodeState returns ok=false for an empty (cleared) record.
func decodeState(payload []byte) (stateRecord, bool, error) {
	if len(payload) == 0 {
		return stateRecord{}, false, nil
	}
	var rec stateRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return stateRecord{}, false, fmt.Errorf("mqttlink: state record: %w", err)
	}
	return rec, true, nil
}

// find returns the properties of characteristic id.
func (r stateRecord) find(id uuid.UUID) (link.Property, bool) {
	for _, c := range r.Characteristics {
		if parsed, err := uuid.Parse(c.UUID); err == nil && parsed == id {
			return c.Properties, true
		}
	}
	return 0, false
}
