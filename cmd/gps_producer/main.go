// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/relabs-tech/geoanchor/internal/app"
	"github.com/relabs-tech/geoanchor/internal/config"
)

func main() {
	log.Println("starting geoanchor GPS producer (location session → MQTT)")

	// Load configuration
	if err := config.InitGlobal("geoanchor_config.txt"); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunGPSProducer(ctx); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
