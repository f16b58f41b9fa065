// Cartographus - Media Server Analytics and Geographic Visualization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/adcollector

// Package events implements the collector's lifecycle event emitter,
// per spec.md §4.6. Listeners receive only the Event payload, never a
// reference back to the collector, per design-notes §9's "cyclic
// component ownership" guidance.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tomtom215/adcollector/internal/logging"
)

// Type is a lifecycle event tag, per spec.md §3.
type Type string

const (
	CollectionStarted  Type = "collection_started"
	AdCollected        Type = "ad_collected"
	PageFetched        Type = "page_fetched"
	ErrorOccurred      Type = "error_occurred"
	RateLimited        Type = "rate_limited"
	SessionRefreshed   Type = "session_refreshed"
	CollectionFinished Type = "collection_finished"
)

// Event is an immutable, tagged lifecycle record.
type Event struct {
	ID        string
	Type      Type
	Payload   map[string]any
	Timestamp time.Time
}

// New constructs an Event with a fresh correlation id and a UTC
// timestamp.
func New(t Type, payload map[string]any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// Listener receives an Event. It must not block for long; emission
// is synchronous and a slow listener delays every subsequent listener
// and the caller.
type Listener func(Event)

// Emitter is a map from event type to an ordered list of listeners,
// guarded by a single mutex so registration and emission never race.
type Emitter struct {
	mu        sync.Mutex
	listeners map[Type][]Listener
}

// NewEmitter returns an empty Emitter.
func NewEmitter() *Emitter {
	return &Emitter{listeners: make(map[Type][]Listener)}
}

// On registers listener for t, appended after any existing listeners
// for that type.
func (e *Emitter) On(t Type, listener Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners[t] = append(e.listeners[t], listener)
}

// Emit invokes every listener registered for ev.Type synchronously, in
// registration order. A listener that panics is recovered and logged
// at warning level; subsequent listeners still run, per spec.md §4.6.
func (e *Emitter) Emit(ev Event) {
	e.mu.Lock()
	listeners := append([]Listener(nil), e.listeners[ev.Type]...)
	e.mu.Unlock()

	for _, l := range listeners {
		invoke(l, ev)
	}
}

func invoke(l Listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			logging.Warn().Interface("panic", r).Str("event_type", string(ev.Type)).Msg("event listener panicked")
		}
	}()
	l(ev)
}
