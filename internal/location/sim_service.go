// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package location

import (
	"math"
	"sync"
	"time"

	"github.com/relabs-tech/geoanchor/internal/geo"
	"github.com/relabs-tech/geoanchor/internal/gps"
)

// SimService is a simulated receiver for bench work without a GPS.
// After a warmup it reports Ready and walks a circle around a centre.
type SimService struct {
	clock   Clock
	centre  gps.Fix
	radiusM float64
	period  time.Duration
	warmup  time.Duration

	mu      sync.Mutex
	started time.Time
}

// NewSimService creates a simulated receiver walking a circle of radiusM
// meters around centre, one lap per period.
func NewSimService(centre gps.Fix, radiusM float64, period, warmup time.Duration, clock Clock) *SimService {
	if clock == nil {
		clock = SystemClock{}
	}
	if period <= 0 {
		period = time.Minute
	}
	return &SimService{
		clock:   clock,
		centre:  centre,
		radiusM: radiusM,
		period:  period,
		warmup:  warmup,
	}
}

func (s *SimService) Enabled() bool { return true }

func (s *SimService) RequestStart() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started.IsZero() {
		s.started = s.clock.Now()
	}
	return nil
}

func (s *SimService) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started.IsZero() || s.clock.Now().Sub(s.started) < s.warmup {
		return StatusInitializing
	}
	return StatusReady
}

func (s *SimService) CurrentFix() gps.Fix {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()

	now := s.clock.Now()
	angle := 2 * math.Pi * now.Sub(started).Seconds() / s.period.Seconds()

	// meters to degrees on the sphere
	const mPerDeg = geo.EarthRadiusMeters * math.Pi / 180.0
	north := s.radiusM * math.Cos(angle)
	east := s.radiusM * math.Sin(angle)

	fix := s.centre
	fix.Latitude, fix.Longitude = wrapCoordinate(
		s.centre.Latitude+north/mPerDeg,
		s.centre.Longitude+east/(mPerDeg*math.Cos(s.centre.Latitude*math.Pi/180.0)),
	)
	fix.Timestamp = now.UTC()
	fix.SpeedKnots = 2 * math.Pi * s.radiusM / s.period.Seconds() * 1.943844
	fix.CourseDeg = math.Mod(angle*180/math.Pi+90, 360)
	return fix
}

// wrapCoordinate reflects a latitude that walked past a pole and wraps
// longitude back into [-180, 180].
func wrapCoordinate(lat, lon float64) (float64, float64) {
	switch {
	case lat > 90:
		lat = 180 - lat
		lon += 180
	case lat < -90:
		lat = -180 - lat
		lon += 180
	}
	return lat, math.Remainder(lon, 360)
}
