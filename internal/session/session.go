// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package session is the sensing-side state machine. An operator toggle
// starts and stops an analysis session; while analyzing every tick runs
// sample -> classify -> track, and stopping hands the best result to the
// publisher.
package session

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/relabs-tech/gesture_link/internal/gesture"
	"github.com/relabs-tech/gesture_link/internal/tracker"
)

type State int

const (
	Idle State = iota
	Analyzing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Analyzing:
		return "analyzing"
	default:
		return "unknown"
	}
}

type Sampler interface {
	Sample() (gesture.FeatureVector, error)
}

type Classifier interface {
	Classify(gesture.FeatureVector) (gesture.Result, error)
}

// Publisher delivers a payload at most once. An error means the payload
// was not sent; it is never retried.
type Publisher interface {
	Publish(payload []byte) error
}

// Stats counts what the machine did since it was created.
type Stats struct {
	Sessions     int
	Ticks        int
	SkippedTicks int
	Published    int
	Dropped      int
	Empty        int
}

// Machine owns the session state and the tracker. All methods must be
// called from the same goroutine; Run is that goroutine.
type Machine struct {
	state      State
	tracker    *tracker.Tracker
	sampler    Sampler
	classifier Classifier
	publisher  Publisher
	log        *zap.SugaredLogger
	stats      Stats
	started    time.Time
}

func New(s Sampler, c Classifier, p Publisher, log *zap.SugaredLogger) *Machine {
	return &Machine{
		state:      Idle,
		tracker:    tracker.New(),
		sampler:    s,
		classifier: c,
		publisher:  p,
		log:        log,
	}
}

func (m *Machine) State() State {
	return m.state
}

func (m *Machine) Stats() Stats {
	return m.stats
}

// Best is the running best prediction of the current (or last) session.
func (m *Machine) Best() gesture.Prediction {
	return m.tracker.Snapshot()
}

// Toggle flips between Idle and Analyzing.
func (m *Machine) Toggle() {
	if m.state == Idle {
		m.state = Analyzing
		m.tracker.Reset()
		m.started = time.Now()
		m.stats.Sessions++
		m.log.Info("Analysis started. Press SPACE to stop.")
		return
	}

	m.state = Idle
	m.log.Infow("Analysis stopped.", "duration", time.Since(m.started).Round(time.Millisecond),
		"observations", m.tracker.Observations())
	m.finish()
}

func (m *Machine) finish() {
	best := m.tracker.Snapshot()
	if best.Empty() {
		m.stats.Empty++
		m.log.Info("No valid prediction made during this period.")
		return
	}

	payload := gesture.EncodePayload(best)
	m.log.Infof("best prediction: %s", payload)

	if err := m.publisher.Publish([]byte(payload)); err != nil {
		m.stats.Dropped++
		m.log.Infow("result not sent", "payload", payload, "reason", err)
		return
	}
	m.stats.Published++
}

// Tick runs one sample -> classify -> track step. Failures skip the tick.
func (m *Machine) Tick() {
	if m.state != Analyzing {
		return
	}
	m.stats.Ticks++

	fv, err := m.sampler.Sample()
	if err != nil {
		m.stats.SkippedTicks++
		m.log.Warnf("sample skipped: %v", err)
		return
	}

	res, err := m.classifier.Classify(fv)
	if err != nil {
		m.stats.SkippedTicks++
		m.log.Warnf("Inference failed: %v", err)
		return
	}

	if m.tracker.Observe(res) {
		best := m.tracker.Snapshot()
		m.log.Debugw("new leader", "label", best.Label, "confidence", best.Confidence)
	}
}

// Run is the sensing loop. Each iteration handles either one toggle or one
// sampling tick. Ticks that arrive while a previous one is still running
// are dropped by the ticker. A closed toggles channel leaves the machine in
// its current state until ctx is done.
func (m *Machine) Run(ctx context.Context, toggles <-chan struct{}, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.log.Infow("session loop started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			m.log.Infow("session loop stopped", "stats", m.stats)
			return nil
		case _, ok := <-toggles:
			if !ok {
				m.log.Warn("control channel closed")
				toggles = nil
				continue
			}
			m.Toggle()
		case <-ticker.C:
			m.Tick()
		}
	}
}
