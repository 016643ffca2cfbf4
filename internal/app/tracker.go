// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"errors"
	"sync"
	"time"

	"github.com/relabs-tech/geoanchor/internal/geo"
	"github.com/relabs-tech/geoanchor/internal/gps"
	"github.com/relabs-tech/geoanchor/internal/metrics"
)

var (
	ErrNoFix    = errors.New("no fix received yet")
	ErrNoAnchor = errors.New("no anchor saved")
)

// StatusMessage is the session state published next to the fixes.
type StatusMessage struct {
	State string    `json:"state"`
	Error string    `json:"error,omitempty"`
	Time  time.Time `json:"time"`
}

// Snapshot is what subscribers render: the latest fix, where it sits in
// the local frame, and how far it is from the saved anchor.
type Snapshot struct {
	Status         StatusMessage      `json:"status"`
	Fix            *gps.Fix           `json:"fix,omitempty"`
	Anchor         *gps.Fix           `json:"anchor,omitempty"`
	Local          *geo.LocalPosition `json:"local,omitempty"`
	DistanceMeters *float64           `json:"distance_m,omitempty"`
	Origin         geo.Origin         `json:"origin"`
}

// Tracker is the host-side state shared by MQTT callbacks and readers.
// The anchor is held as an explicit optional: a fix at (0, 0) is a real
// reading, not "unset".
type Tracker struct {
	transform *geo.Transform
	component string

	mu     sync.RWMutex
	status StatusMessage
	latest *gps.Fix
	anchor *gps.Fix
}

// NewTracker creates a tracker projecting into transform's frame.
// component labels the metrics it records.
func NewTracker(transform *geo.Transform, component string) *Tracker {
	return &Tracker{
		transform: transform,
		component: component,
		status:    StatusMessage{State: "unknown"},
	}
}

// Observe records a newly received fix and updates the anchor distance
// gauge when an anchor is saved.
func (t *Tracker) Observe(fix gps.Fix) {
	t.mu.Lock()
	t.latest = &fix
	anchor := t.anchor
	t.mu.Unlock()
	metrics.FixesReceived.WithLabelValues(t.component).Inc()

	if anchor != nil {
		if d, err := t.distance(fix, *anchor); err == nil {
			metrics.AnchorDistance.Set(d)
		}
	}
}

// SetStatus records the latest published session state.
func (t *Tracker) SetStatus(st StatusMessage) {
	t.mu.Lock()
	t.status = st
	t.mu.Unlock()
}

func (t *Tracker) Status() StatusMessage {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

func (t *Tracker) Latest() (gps.Fix, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.latest == nil {
		return gps.Fix{}, false
	}
	return *t.latest, true
}

// SaveAnchor captures the latest fix as the reference point.
func (t *Tracker) SaveAnchor() (gps.Fix, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.latest == nil {
		return gps.Fix{}, ErrNoFix
	}
	anchor := *t.latest
	t.anchor = &anchor
	metrics.AnchorDistance.Set(0)
	return anchor, nil
}

func (t *Tracker) Anchor() (gps.Fix, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.anchor == nil {
		return gps.Fix{}, false
	}
	return *t.anchor, true
}

func (t *Tracker) ClearAnchor() {
	t.mu.Lock()
	t.anchor = nil
	t.mu.Unlock()
}

// DistanceToAnchor returns the great-circle distance from the latest fix
// to the saved anchor.
func (t *Tracker) DistanceToAnchor() (float64, error) {
	t.mu.RLock()
	latest, anchor := t.latest, t.anchor
	t.mu.RUnlock()

	if latest == nil {
		return 0, ErrNoFix
	}
	if anchor == nil {
		return 0, ErrNoAnchor
	}
	return t.distance(*latest, *anchor)
}

// LocalPosition projects the latest fix into the local frame.
func (t *Tracker) LocalPosition() (geo.LocalPosition, error) {
	t.mu.RLock()
	latest := t.latest
	t.mu.RUnlock()

	if latest == nil {
		return geo.LocalPosition{}, ErrNoFix
	}
	return t.project(*latest)
}

func (t *Tracker) distance(a, b gps.Fix) (float64, error) {
	d, err := t.transform.Distance(a, b)
	if err != nil {
		metrics.GeoErrors.WithLabelValues("distance").Inc()
		return 0, err
	}
	return d, nil
}

func (t *Tracker) project(fix gps.Fix) (geo.LocalPosition, error) {
	pos, err := t.transform.Project(fix)
	if err != nil {
		metrics.GeoErrors.WithLabelValues("project").Inc()
		return geo.LocalPosition{}, err
	}
	return pos, nil
}

func (t *Tracker) Origin() geo.Origin {
	return t.transform.Origin()
}

// Snapshot gathers everything a view needs from one consistent read.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	status, latest, anchor := t.status, t.latest, t.anchor
	t.mu.RUnlock()

	snap := Snapshot{
		Status: status,
		Origin: t.transform.Origin(),
	}
	if latest != nil {
		fix := *latest
		snap.Fix = &fix
		if pos, err := t.project(fix); err == nil {
			snap.Local = &pos
		}
	}
	if anchor != nil {
		a := *anchor
		snap.Anchor = &a
		if latest != nil {
			if d, err := t.distance(*latest, a); err == nil {
				snap.DistanceMeters = &d
			}
		}
	}
	return snap
}
