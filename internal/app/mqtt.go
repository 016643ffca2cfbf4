// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"log"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/geoanchor/internal/config"
	"github.com/relabs-tech/geoanchor/internal/geo"
	"github.com/relabs-tech/geoanchor/internal/gps"
)

// publisher is the slice of an MQTT client the producer needs.
type publisher interface {
	Publish(topic string, v interface{}) error
}

type mqttPublisher struct {
	client mqtt.Client
}

// Publish marshals v to JSON and publishes it retained at QoS 0, so late
// subscribers get the last fix and state straight away.
func (p mqttPublisher) Publish(topic string, v interface{}) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", topic, err)
	}
	token := p.client.Publish(topic, 0, true, payload)
	token.Wait()
	return token.Error()
}

func connectMQTT(broker, clientID string) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	return client, nil
}

func newTracker(cfg *config.Config, component string) (*Tracker, error) {
	transform, err := geo.NewTransform(geo.Origin{
		Latitude:  cfg.OriginLat,
		Longitude: cfg.OriginLon,
		Altitude:  cfg.OriginAlt,
	})
	if err != nil {
		return nil, err
	}
	return NewTracker(transform, component), nil
}

// handleFixMessage decodes a fix payload into the tracker.
func handleFixMessage(tr *Tracker, component string, payload []byte) error {
	var f gps.Fix
	if err := json.Unmarshal(payload, &f); err != nil {
		return fmt.Errorf("%s: gps unmarshal error: %w", component, err)
	}
	tr.Observe(f)
	return nil
}

func handleStatusMessage(tr *Tracker, component string, payload []byte) error {
	var st StatusMessage
	if err := json.Unmarshal(payload, &st); err != nil {
		return fmt.Errorf("%s: status unmarshal error: %w", component, err)
	}
	tr.SetStatus(st)
	return nil
}

// subscribeTracker feeds the fix and status topics into tr. onFix, if set,
// runs after every accepted fix.
func subscribeTracker(client mqtt.Client, cfg *config.Config, tr *Tracker, component string, onFix func(gps.Fix)) error {
	fixToken := client.Subscribe(cfg.TopicGPS, 0, func(_ mqtt.Client, msg mqtt.Message) {
		if err := handleFixMessage(tr, component, msg.Payload()); err != nil {
			log.Print(err)
			return
		}
		if onFix != nil {
			if fix, ok := tr.Latest(); ok {
				onFix(fix)
			}
		}
	})
	fixToken.Wait()
	if fixToken.Error() != nil {
		return fixToken.Error()
	}
	log.Printf("%s: subscribed to %s", component, cfg.TopicGPS)

	statusToken := client.Subscribe(cfg.TopicGPSStatus, 0, func(_ mqtt.Client, msg mqtt.Message) {
		if err := handleStatusMessage(tr, component, msg.Payload()); err != nil {
			log.Print(err)
		}
	})
	statusToken.Wait()
	if statusToken.Error() != nil {
		return statusToken.Error()
	}
	log.Printf("%s: subscribed to %s", component, cfg.TopicGPSStatus)

	return nil
}
