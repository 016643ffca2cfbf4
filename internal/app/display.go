package app

import (
	"fmt"
	"image"
	"log"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/geoanchor/internal/config"
)

const (
	displayWidth  = 128
	displayHeight = 64
	lineHeight    = 13
)

// RunDisplay renders the latest fix, distance to the anchor and local
// position on an SSD1306 OLED.
func RunDisplay() error {
	cfg := config.Get()

	tracker, err := newTracker(cfg, "display")
	if err != nil {
		return err
	}

	// Initialize periph
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}

	// Open I2C bus
	bus, err := i2creg.Open("")
	if err != nil {
		return fmt.Errorf("failed to open I2C bus: %w", err)
	}
	defer bus.Close()

	dev, err := ssd1306.NewI2C(bus, cfg.DisplayI2CAddr, &ssd1306.DefaultOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize display: %w", err)
	}
	log.Printf("display: initialized at 0x%02X", cfg.DisplayI2CAddr)

	if err := drawLines(dev, []string{"", "  GeoAnchor", " Looking for", "    sats"}); err != nil {
		log.Printf("display: error showing splash: %v", err)
	}

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDDisplay)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)
	log.Printf("display: connected to MQTT broker at %s", cfg.MQTTBroker)

	if err := subscribeTracker(client, cfg, tracker, "display", nil); err != nil {
		return err
	}

	// Display update loop
	ticker := time.NewTicker(time.Duration(cfg.DisplayUpdateInterval) * time.Millisecond)
	defer ticker.Stop()

	log.Println("display: starting update loop")

	for range ticker.C {
		if err := drawLines(dev, displayLines(tracker.Snapshot())); err != nil {
			log.Printf("display: error updating display: %v", err)
		}
	}

	return nil
}

// displayLines lays out a snapshot in four 7x13 rows.
func displayLines(snap Snapshot) []string {
	if snap.Fix == nil {
		return []string{"GPS Position", "Waiting...", "State:", snap.Status.State}
	}

	latDir := "N"
	lat := snap.Fix.Latitude
	if lat < 0 {
		latDir = "S"
		lat = -lat
	}
	lonDir := "E"
	lon := snap.Fix.Longitude
	if lon < 0 {
		lonDir = "W"
		lon = -lon
	}

	lines := []string{
		fmt.Sprintf("%.5f%s", lat, latDir),
		fmt.Sprintf("%.5f%s", lon, lonDir),
	}

	if snap.DistanceMeters != nil {
		lines = append(lines, fmt.Sprintf("Anc: %.1fm", *snap.DistanceMeters))
	} else {
		lines = append(lines, fmt.Sprintf("Alt: %.0fm", snap.Fix.Altitude))
	}

	if snap.Local != nil {
		lines = append(lines, fmt.Sprintf("X%.0f Z%.0f", snap.Local.X, snap.Local.Z))
	}
	return lines
}

func renderLines(lines []string) *image1bit.VerticalLSB {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, displayWidth, displayHeight))

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}

	for i, line := range lines {
		drawer.Dot = fixed.P(0, lineHeight*(i+1))
		drawer.DrawBytes([]byte(line))
	}
	return img
}

func drawLines(dev *ssd1306.Dev, lines []string) error {
	return dev.Draw(dev.Bounds(), renderLines(lines), image.Point{})
}
