// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/relabs-tech/gesture_link/internal/presentation"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

const (
	feedBuffer   = 8
	writeTimeout = 5 * time.Second
)

type snapshotter interface {
	Snapshot() presentation.Snapshot
}

// StatusFeed serves the presentation state read-only: the latest snapshot
// as JSON and every transition over a websocket.
type StatusFeed struct {
	source snapshotter
	log    *zap.SugaredLogger

	mu      sync.Mutex
	clients map[chan presentation.Snapshot]struct{}
}

func NewStatusFeed(source snapshotter, log *zap.SugaredLogger) *StatusFeed {
	return &StatusFeed{
		source:  source,
		log:     log,
		clients: make(map[chan presentation.Snapshot]struct{}),
	}
}

// Observe fans s out to every websocket. Slow clients miss updates.
func (f *StatusFeed) Observe(s presentation.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for ch := range f.clients {
		select {
		case ch <- s:
		default:
		}
	}
}

func (f *StatusFeed) subscribe() chan presentation.Snapshot {
	ch := make(chan presentation.Snapshot, feedBuffer)
	f.mu.Lock()
	f.clients[ch] = struct{}{}
	f.mu.Unlock()
	return ch
}

func (f *StatusFeed) unsubscribe(ch chan presentation.Snapshot) {
	f.mu.Lock()
	delete(f.clients, ch)
	f.mu.Unlock()
}

func (f *StatusFeed) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/presentation", f.handleSnapshot)
	mux.HandleFunc("/ws", f.handleWS)
	return mux
}

func (f *StatusFeed) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(f.source.Snapshot()); err != nil {
		f.log.Warnf("json encode error: %v", err)
	}
}

func (f *StatusFeed) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		f.log.Warnf("websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	updates := f.subscribe()
	defer f.unsubscribe(updates)

	// The reader only notices the client going away.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					f.log.Debugf("websocket error: %v", err)
				}
				return
			}
		}
	}()

	send := func(s presentation.Snapshot) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		return conn.WriteJSON(s) == nil
	}

	if !send(f.source.Snapshot()) {
		return
	}
	for {
		select {
		case <-gone:
			return
		case <-r.Context().Done():
			return
		case s := <-updates:
			if !send(s) {
				return
			}
		}
	}
}

// serveStatus runs the feed on addr until ctx is done.
func serveStatus(ctx context.Context, addr string, feed *StatusFeed, log *zap.SugaredLogger) error {
	srv := &http.Server{Addr: addr, Handler: feed.Handler(), ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() {
		log.Infof("web server listening on %s", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}
