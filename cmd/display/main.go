package main

import (
	"log"

	"github.com/relabs-tech/geoanchor/internal/app"
	"github.com/relabs-tech/geoanchor/internal/config"
)

func main() {
	log.Println("starting geoanchor OLED display (MQTT subscriber)")

	if err := config.InitGlobal("geoanchor_config.txt"); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunDisplay(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
