// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/relabs-tech/geoanchor/internal/config"
	"github.com/relabs-tech/geoanchor/internal/geo"
	"github.com/relabs-tech/geoanchor/internal/gps"
	"github.com/relabs-tech/geoanchor/internal/location"
	"github.com/relabs-tech/geoanchor/internal/metrics"
)

// RunGPSProducer acquires a fix through a location session and publishes
// fixes and session state as JSON to MQTT until ctx is done.
func RunGPSProducer(ctx context.Context) error {
	cfg := config.Get()

	// ---- 1) Connect to MQTT broker ----
	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDGPS)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)
	log.Printf("gps: connected to MQTT broker at %s", cfg.MQTTBroker)

	// ---- 2) Build the positioning service ----
	svc, closeSvc := newLocationService(cfg)
	defer closeSvc()

	transform, err := geo.NewTransform(geo.Origin{
		Latitude:  cfg.OriginLat,
		Longitude: cfg.OriginLon,
		Altitude:  cfg.OriginAlt,
	})
	if err != nil {
		return err
	}

	session := location.NewSession(svc,
		location.WithMaxWait(cfg.GPSMaxWait),
		location.WithPollInterval(time.Duration(cfg.GPSPollInterval)*time.Millisecond),
	)

	// ---- 3) Start, wait for a fix, publish ----
	return produce(ctx, cfg, session, transform, mqttPublisher{client: client})
}

func newLocationService(cfg *config.Config) (location.Service, func()) {
	if cfg.GPSSource == "sim" {
		log.Printf("gps: simulated receiver around %.6f, %.6f", cfg.OriginLat, cfg.OriginLon)
		centre := gps.Fix{Latitude: cfg.OriginLat, Longitude: cfg.OriginLon, Altitude: cfg.OriginAlt}
		svc := location.NewSimService(centre, cfg.SimRadiusMeters,
			time.Duration(cfg.SimPeriodSec)*time.Second,
			time.Duration(cfg.SimWarmupSec)*time.Second, nil)
		return svc, func() {}
	}

	svc := location.NewSerialNMEAService(cfg.GPSSerialPort, cfg.GPSBaudRate)
	return svc, func() {
		if err := svc.Close(); err != nil {
			log.Printf("gps: close error: %v", err)
		}
	}
}

func publishStatus(pub publisher, topic string, session *location.Session) {
	state := session.State()
	metrics.SetSessionState(state)

	msg := StatusMessage{State: state.String(), Time: time.Now().UTC()}
	if err := session.Err(); err != nil {
		msg.Error = err.Error()
	}
	if err := pub.Publish(topic, msg); err != nil {
		log.Printf("gps: status publish error: %v", err)
	}
}

// produce drives session from start to Ready, then publishes the latest
// fix every publish interval. A terminal session state is returned as an
// error; ctx being done is not.
func produce(ctx context.Context, cfg *config.Config, session *location.Session, transform *geo.Transform, pub publisher) error {
	state := session.Start()
	publishStatus(pub, cfg.TopicGPSStatus, session)
	log.Printf("gps: location session %s", state)

	state, err := session.Wait(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			log.Println("gps: wait abandoned")
			return nil
		}
		return err
	}
	publishStatus(pub, cfg.TopicGPSStatus, session)

	if state != location.StateReady {
		return fmt.Errorf("location session %s: %w", state, session.Err())
	}
	log.Println("gps: location session ready")

	ticker := time.NewTicker(time.Duration(cfg.GPSPublishInterval) * time.Millisecond)
	defer ticker.Stop()

	for {
		fix, err := session.LatestFix()
		if err != nil {
			return err
		}

		if err := pub.Publish(cfg.TopicGPS, fix); err != nil {
			log.Printf("gps: publish error: %v", err)
		} else {
			metrics.FixesPublished.Inc()
			if pos, err := transform.Project(fix); err == nil {
				log.Printf("gps: published fix lat=%.6f lon=%.6f alt=%.1f local=(%.1f, %.1f, %.1f)",
					fix.Latitude, fix.Longitude, fix.Altitude, pos.X, pos.Y, pos.Z)
			} else {
				metrics.GeoErrors.WithLabelValues("project").Inc()
				log.Printf("gps: published fix lat=%.6f lon=%.6f: %v", fix.Latitude, fix.Longitude, err)
			}
		}

		select {
		case <-ctx.Done():
			log.Println("gps: shutting down")
			return nil
		case <-ticker.C:
		}
	}
}
