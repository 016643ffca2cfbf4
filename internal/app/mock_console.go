// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/relabs-tech/geoanchor/internal/config"
	"github.com/relabs-tech/geoanchor/internal/gps"
	"github.com/relabs-tech/geoanchor/internal/location"
)

// RunMockConsole runs a location session over the simulated receiver in
// process, without a broker, and prints a console line per fix. Enter
// saves the anchor as in the MQTT console.
func RunMockConsole(ctx context.Context) error {
	cfg := config.Get()

	tracker, err := newTracker(cfg, "mock_console")
	if err != nil {
		return err
	}

	centre := gps.Fix{Latitude: cfg.OriginLat, Longitude: cfg.OriginLon, Altitude: cfg.OriginAlt}
	svc := location.NewSimService(centre, cfg.SimRadiusMeters,
		time.Duration(cfg.SimPeriodSec)*time.Second,
		time.Duration(cfg.SimWarmupSec)*time.Second, nil)
	session := location.NewSession(svc,
		location.WithMaxWait(cfg.GPSMaxWait),
		location.WithPollInterval(time.Duration(cfg.GPSPollInterval)*time.Millisecond),
	)

	go readConsoleCommands(os.Stdin, os.Stdout, tracker)

	return runLocalConsole(ctx, session, tracker, 100*time.Millisecond, os.Stdout)
}

func runLocalConsole(ctx context.Context, session *location.Session, tracker *Tracker, interval time.Duration, out io.Writer) error {
	session.Start()
	tracker.SetStatus(StatusMessage{State: session.State().String(), Time: time.Now().UTC()})
	fmt.Fprintln(out, formatConsoleLine(tracker.Snapshot()))

	state, err := session.Wait(ctx)
	if err != nil {
		return nil
	}
	tracker.SetStatus(StatusMessage{State: state.String(), Time: time.Now().UTC()})
	if state != location.StateReady {
		return fmt.Errorf("location session %s: %w", state, session.Err())
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		fix, err := session.LatestFix()
		if err != nil {
			return err
		}
		tracker.Observe(fix)
		fmt.Fprintln(out, formatConsoleLine(tracker.Snapshot()))

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
