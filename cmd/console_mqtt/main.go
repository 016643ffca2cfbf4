package main

import (
	"log"

	"github.com/relabs-tech/geoanchor/internal/app"
	"github.com/relabs-tech/geoanchor/internal/config"
)

func main() {
	log.Println("starting geoanchor console (MQTT subscriber)")

	// Load configuration
	if err := config.InitGlobal("geoanchor_config.txt"); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunConsoleMQTT(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
