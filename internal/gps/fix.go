// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package gps

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidCoordinate is returned when a latitude or longitude is out of range.
var ErrInvalidCoordinate = errors.New("invalid coordinate")

// Fix represents a single GPS position reading suitable for JSON and MQTT.
type Fix struct {
	Latitude   float64   `json:"lat"`         // decimal degrees
	Longitude  float64   `json:"lon"`         // decimal degrees
	Altitude   float64   `json:"alt"`         // meters above mean sea level
	Timestamp  time.Time `json:"time"`        // acquisition time (UTC)
	SpeedKnots float64   `json:"speed_knots"` // speed over ground
	CourseDeg  float64   `json:"course_deg"`  // course over ground
	Satellites int64     `json:"satellites"`  // satellites used, from GGA
}

// Validate reports whether the fix has usable coordinates.
func (f Fix) Validate() error {
	return ValidateCoordinate(f.Latitude, f.Longitude)
}

// ValidateCoordinate checks latitude is within [-90, 90] and longitude
// within [-180, 180]. NaN is rejected.
func ValidateCoordinate(lat, lon float64) error {
	if math.IsNaN(lat) || lat < -90 || lat > 90 {
		return fmt.Errorf("%w: latitude %v outside [-90, 90]", ErrInvalidCoordinate, lat)
	}
	if math.IsNaN(lon) || lon < -180 || lon > 180 {
		return fmt.Errorf("%w: longitude %v outside [-180, 180]", ErrInvalidCoordinate, lon)
	}
	return nil
}
