// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/relabs-tech/geoanchor/internal/location"
)

var allStates = []location.State{
	location.StateUnstarted,
	location.StateDisabled,
	location.StateInitializing,
	location.StateReady,
	location.StateFailed,
	location.StateTimedOut,
}

var (
	// SessionState is 1 for the state the location session is in, 0 otherwise.
	SessionState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "geoanchor",
			Name:      "location_session_state",
			Help:      "Current location session state (1 = active).",
		},
		[]string{"state"},
	)

	// FixesPublished counts fixes sent to MQTT by the producer.
	FixesPublished = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "geoanchor",
			Name:      "fixes_published_total",
			Help:      "Total number of GPS fixes published.",
		},
	)

	// FixesReceived counts fixes received by subscribers.
	FixesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "geoanchor",
			Name:      "fixes_received_total",
			Help:      "Total number of GPS fixes received from MQTT.",
		},
		[]string{"component"},
	)

	// GeoErrors counts distance/projection calls rejected for bad input.
	GeoErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "geoanchor",
			Name:      "geo_errors_total",
			Help:      "Total number of rejected distance or projection computations.",
		},
		[]string{"op"},
	)

	// AnchorDistance is the distance from the latest observed fix to the saved anchor.
	AnchorDistance = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "geoanchor",
			Name:      "anchor_distance_meters",
			Help:      "Great-circle distance from the latest fix to the saved anchor.",
		},
	)
)

func init() {
	prometheus.MustRegister(SessionState)
	prometheus.MustRegister(FixesPublished)
	prometheus.MustRegister(FixesReceived)
	prometheus.MustRegister(GeoErrors)
	prometheus.MustRegister(AnchorDistance)
}

// SetSessionState marks current as the active session state.
func SetSessionState(current location.State) {
	for _, st := range allStates {
		v := 0.0
		if st == current {
			v = 1
		}
		SessionState.WithLabelValues(st.String()).Set(v)
	}
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
