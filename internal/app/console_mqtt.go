package app

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/relabs-tech/geoanchor/internal/config"
	"github.com/relabs-tech/geoanchor/internal/gps"
)

// RunConsoleMQTT prints every fix with its local position and distance to
// the saved anchor. Enter saves the current fix as anchor, "c" clears it.
func RunConsoleMQTT() error {
	cfg := config.Get()

	tracker, err := newTracker(cfg, "console")
	if err != nil {
		return err
	}

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDConsole)
	if err != nil {
		return err
	}
	log.Printf("console: connected to MQTT broker at %s", cfg.MQTTBroker)

	err = subscribeTracker(client, cfg, tracker, "console", func(gps.Fix) {
		fmt.Println(formatConsoleLine(tracker.Snapshot()))
	})
	if err != nil {
		return err
	}

	go readConsoleCommands(os.Stdin, os.Stdout, tracker)

	// Wait for Ctrl+C
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("console: shutting down")
	client.Disconnect(250)
	return nil
}

func readConsoleCommands(in io.Reader, out io.Writer, tracker *Tracker) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		fmt.Fprintln(out, runConsoleCommand(strings.TrimSpace(scanner.Text()), tracker))
	}
}

func runConsoleCommand(cmd string, tracker *Tracker) string {
	switch cmd {
	case "", "s", "save":
		anchor, err := tracker.SaveAnchor()
		if err != nil {
			return fmt.Sprintf("[ANCH] cannot save: %v", err)
		}
		return fmt.Sprintf("[ANCH] saved lat=%.6f lon=%.6f alt=%.1f", anchor.Latitude, anchor.Longitude, anchor.Altitude)
	case "c", "clear":
		tracker.ClearAnchor()
		return "[ANCH] cleared"
	default:
		return fmt.Sprintf("[ANCH] unknown command %q (enter = save, c = clear)", cmd)
	}
}

func formatConsoleLine(snap Snapshot) string {
	if snap.Fix == nil {
		return fmt.Sprintf("[GPS ]  state=%s waiting for fix", snap.Status.State)
	}

	f := snap.Fix
	line := fmt.Sprintf("[GPS ]  lat=%.6f lon=%.6f alt=%.1fm", f.Latitude, f.Longitude, f.Altitude)
	if snap.Local != nil {
		line += fmt.Sprintf("  local=(%.2f, %.2f, %.2f)", snap.Local.X, snap.Local.Y, snap.Local.Z)
	}
	if snap.DistanceMeters != nil {
		line += fmt.Sprintf("  anchor=%.2fm", *snap.DistanceMeters)
	} else {
		line += "  anchor=none"
	}
	return line
}
