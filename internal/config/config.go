// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"bufio"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/relabs-tech/geoanchor/internal/gps"
)

// Config holds all application configuration values.
type Config struct {
	// MQTT
	MQTTBroker          string
	MQTTClientIDGPS     string
	MQTTClientIDConsole string
	MQTTClientIDWeb     string
	MQTTClientIDDisplay string

	// Topics
	TopicGPS       string
	TopicGPSStatus string

	// GPS source: "serial" reads NMEA from GPSSerialPort, "sim" walks a
	// circle around the origin.
	GPSSource     string
	GPSSerialPort string
	GPSBaudRate   int

	// Location session
	GPSMaxWait         int // polls before giving up on a fix
	GPSPollInterval    int // milliseconds between startup polls
	GPSPublishInterval int // milliseconds between published fixes

	// Local frame origin
	OriginLat float64
	OriginLon float64
	OriginAlt float64

	// Simulation
	SimRadiusMeters float64
	SimPeriodSec    int
	SimWarmupSec    int

	// Web Server
	WebServerPort     int
	WebUpdateInterval int // milliseconds between websocket pushes

	// Display
	DisplayI2CAddr        uint16
	DisplayUpdateInterval int // milliseconds
}

// globalConfig is only reachable through InitGlobal and Get; configMu
// guards it and configOnce makes InitGlobal load at most once.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Default returns a Config with every optional value filled in.
func Default() *Config {
	return &Config{
		MQTTBroker:            "tcp://localhost:1883",
		MQTTClientIDGPS:       "geoanchor-gps-producer",
		MQTTClientIDConsole:   "geoanchor-console",
		MQTTClientIDWeb:       "geoanchor-web",
		MQTTClientIDDisplay:   "geoanchor-display",
		TopicGPS:              "geoanchor/gps",
		TopicGPSStatus:        "geoanchor/gps/status",
		GPSSource:             "serial",
		GPSSerialPort:         "/dev/serial0",
		GPSBaudRate:           9600,
		GPSMaxWait:            20,
		GPSPollInterval:       1000,
		GPSPublishInterval:    1000,
		SimRadiusMeters:       20,
		SimPeriodSec:          60,
		SimWarmupSec:          3,
		WebServerPort:         8080,
		WebUpdateInterval:     500,
		DisplayI2CAddr:        0x3C,
		DisplayUpdateInterval: 500,
	}
}

// Load reads the configuration file and returns a Config struct. Keys not
// present in the file keep their defaults.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := Default()
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func parsePositiveInt(key, value string) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %d", key, v)
	}
	return v, nil
}

func parseFloat(key, value string) (float64, error) {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("invalid %s %q: not a finite number", key, value)
	}
	return v, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error

	switch key {
	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_GPS":
		c.MQTTClientIDGPS = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value
	case "MQTT_CLIENT_ID_DISPLAY":
		c.MQTTClientIDDisplay = value

	// Topics
	case "TOPIC_GPS":
		c.TopicGPS = value
	case "TOPIC_GPS_STATUS":
		c.TopicGPSStatus = value

	// GPS
	case "GPS_SOURCE":
		if value != "serial" && value != "sim" {
			return fmt.Errorf("GPS_SOURCE must be serial or sim, got %q", value)
		}
		c.GPSSource = value
	case "GPS_SERIAL_PORT":
		c.GPSSerialPort = value
	case "GPS_BAUD_RATE":
		c.GPSBaudRate, err = parsePositiveInt(key, value)
	case "GPS_MAX_WAIT":
		wait, convErr := strconv.Atoi(value)
		if convErr != nil {
			return fmt.Errorf("invalid GPS_MAX_WAIT %q: %w", value, convErr)
		}
		if wait < 0 {
			return fmt.Errorf("GPS_MAX_WAIT must be >= 0, got %d", wait)
		}
		c.GPSMaxWait = wait
	case "GPS_POLL_INTERVAL":
		c.GPSPollInterval, err = parsePositiveInt(key, value)
	case "GPS_PUBLISH_INTERVAL":
		c.GPSPublishInterval, err = parsePositiveInt(key, value)

	// Origin
	case "ORIGIN_LAT":
		c.OriginLat, err = parseFloat(key, value)
	case "ORIGIN_LON":
		c.OriginLon, err = parseFloat(key, value)
	case "ORIGIN_ALT":
		c.OriginAlt, err = parseFloat(key, value)

	// Simulation
	case "SIM_RADIUS_METERS":
		c.SimRadiusMeters, err = parseFloat(key, value)
		if err == nil && c.SimRadiusMeters < 0 {
			return fmt.Errorf("SIM_RADIUS_METERS must be >= 0, got %v", c.SimRadiusMeters)
		}
	case "SIM_PERIOD_SEC":
		c.SimPeriodSec, err = parsePositiveInt(key, value)
	case "SIM_WARMUP_SEC":
		warmup, convErr := strconv.Atoi(value)
		if convErr != nil {
			return fmt.Errorf("invalid SIM_WARMUP_SEC %q: %w", value, convErr)
		}
		if warmup < 0 {
			return fmt.Errorf("SIM_WARMUP_SEC must be >= 0, got %d", warmup)
		}
		c.SimWarmupSec = warmup

	// Web Server
	case "WEB_SERVER_PORT":
		c.WebServerPort, err = parsePositiveInt(key, value)
	case "WEB_UPDATE_INTERVAL":
		c.WebUpdateInterval, err = parsePositiveInt(key, value)

	// Display
	case "DISPLAY_I2C_ADDR":
		addr, convErr := strconv.ParseUint(value, 0, 16)
		if convErr != nil {
			return fmt.Errorf("invalid DISPLAY_I2C_ADDR %q: %w", value, convErr)
		}
		c.DisplayI2CAddr = uint16(addr)
	case "DISPLAY_UPDATE_INTERVAL":
		c.DisplayUpdateInterval, err = parsePositiveInt(key, value)

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return err
}

// validate checks that all required fields are set and consistent.
func (c *Config) validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	if c.TopicGPS == "" {
		return fmt.Errorf("TOPIC_GPS is required")
	}
	if c.GPSSource == "serial" && c.GPSSerialPort == "" {
		return fmt.Errorf("GPS_SERIAL_PORT is required when GPS_SOURCE=serial")
	}
	if err := gps.ValidateCoordinate(c.OriginLat, c.OriginLon); err != nil {
		return fmt.Errorf("ORIGIN_LAT/ORIGIN_LON: %w", err)
	}
	return nil
}

// InitGlobal initializes the global configuration from file.
// Only the first call reads the file.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
