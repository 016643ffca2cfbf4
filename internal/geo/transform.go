// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package geo converts GPS fixes into distances and local scene positions.
//
// Both algorithms use a spherical Earth with EarthRadiusMeters. The local
// projection is a small-angle equirectangular approximation anchored at an
// Origin: good for tens of kilometers around the origin, worse towards the
// poles.
package geo

import (
	"fmt"
	"math"

	"github.com/relabs-tech/geoanchor/internal/gps"
)

// EarthRadiusMeters is the mean Earth radius shared by Distance and Project.
const EarthRadiusMeters = 6371000.0

// Origin is the geographic point that maps to LocalPosition{0, 0, 0}.
type Origin struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
	Altitude  float64 `json:"alt"`
}

// LocalPosition is a point in the origin-anchored frame, in meters.
// X grows east, Z grows north, Y is the altitude delta.
type LocalPosition struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func degToRad(deg float64) float64 {
	return deg * math.Pi / 180.0
}

// Distance returns the great-circle (haversine) distance in meters between
// two fixes. Altitude is ignored.
func Distance(a, b gps.Fix) (float64, error) {
	if err := a.Validate(); err != nil {
		return 0, err
	}
	if err := b.Validate(); err != nil {
		return 0, err
	}

	lat1 := degToRad(a.Latitude)
	lat2 := degToRad(b.Latitude)
	dLat := lat2 - lat1
	dLon := degToRad(b.Longitude) - degToRad(a.Longitude)

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLon*sinLon

	// Rounding can push h a hair past 1 for antipodal points.
	h = math.Min(h, 1)

	return 2 * EarthRadiusMeters * math.Atan2(math.Sqrt(h), math.Sqrt(1-h)), nil
}

// Project maps fix into the local frame anchored at origin.
//
//	x = Δlon · cos(lat0) · R
//	z = Δlat · R
//	y = alt − alt0
func Project(origin Origin, fix gps.Fix) (LocalPosition, error) {
	if err := gps.ValidateCoordinate(origin.Latitude, origin.Longitude); err != nil {
		return LocalPosition{}, fmt.Errorf("origin: %w", err)
	}
	if err := fix.Validate(); err != nil {
		return LocalPosition{}, err
	}

	lat0 := degToRad(origin.Latitude)
	dLat := degToRad(fix.Latitude) - lat0
	dLon := degToRad(fix.Longitude) - degToRad(origin.Longitude)

	return LocalPosition{
		X: dLon * math.Cos(lat0) * EarthRadiusMeters,
		Y: fix.Altitude - origin.Altitude,
		Z: dLat * EarthRadiusMeters,
	}, nil
}

// Transform binds the projection to a single origin for the lifetime of a
// session. Positions computed against one Transform are not comparable with
// those of another.
type Transform struct {
	origin Origin
}

// NewTransform validates origin and returns a Transform anchored at it.
func NewTransform(origin Origin) (*Transform, error) {
	if err := gps.ValidateCoordinate(origin.Latitude, origin.Longitude); err != nil {
		return nil, fmt.Errorf("origin: %w", err)
	}
	return &Transform{origin: origin}, nil
}

// Origin returns the anchor of the local frame.
func (t *Transform) Origin() Origin {
	return t.origin
}

// Project maps fix into the transform's local frame.
func (t *Transform) Project(fix gps.Fix) (LocalPosition, error) {
	return Project(t.origin, fix)
}

// Distance is a convenience wrapper over the package-level Distance.
func (t *Transform) Distance(a, b gps.Fix) (float64, error) {
	return Distance(a, b)
}
