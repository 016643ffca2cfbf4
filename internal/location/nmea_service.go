// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package location

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
	"time"

	nmea "github.com/adrianmo/go-nmea"
	serial "github.com/jacobsa/go-serial/serial"

	"github.com/relabs-tech/geoanchor/internal/gps"
)

// NMEAService is a Service backed by an NMEA 0183 receiver.
//
// RMC sentences carry position, time, speed and course; the service turns
// Ready on the first RMC with validity "A". GGA sentences add altitude and
// satellite count. A read error after start marks the service Failed.
type NMEAService struct {
	portName string
	open     func() (io.ReadCloser, error)

	mu     sync.RWMutex
	status Status
	fix    gps.Fix
	port   io.ReadCloser
}

// NewSerialNMEAService reads NMEA from a serial port such as /dev/serial0.
// An empty portName means the receiver is not configured and the service
// reports itself disabled.
func NewSerialNMEAService(portName string, baudRate int) *NMEAService {
	return NewNMEAService(portName, func() (io.ReadCloser, error) {
		opts := serial.OpenOptions{
			PortName:              portName,
			BaudRate:              uint(baudRate),
			DataBits:              8,
			StopBits:              1,
			MinimumReadSize:       1,
			ParityMode:            serial.PARITY_NONE,
			InterCharacterTimeout: 0,
		}
		port, err := serial.Open(opts)
		if err != nil {
			return nil, err
		}
		log.Printf("gps: serial port opened on %s at %d baud", portName, baudRate)
		return port, nil
	})
}

// NewNMEAService reads NMEA from whatever open returns.
func NewNMEAService(name string, open func() (io.ReadCloser, error)) *NMEAService {
	return &NMEAService{
		portName: name,
		open:     open,
		status:   StatusInitializing,
	}
}

func (s *NMEAService) Enabled() bool {
	return s.portName != "" && s.open != nil
}

// RequestStart opens the port and starts the reader goroutine.
func (s *NMEAService) RequestStart() error {
	rc, err := s.open()
	if err != nil {
		return fmt.Errorf("open %s: %w", s.portName, err)
	}

	s.mu.Lock()
	s.port = rc
	s.mu.Unlock()

	go s.readLoop(rc)
	return nil
}

func (s *NMEAService) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

func (s *NMEAService) CurrentFix() gps.Fix {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fix
}

// Close releases the port. The reader goroutine exits on the next read.
func (s *NMEAService) Close() error {
	s.mu.Lock()
	port := s.port
	s.port = nil
	s.mu.Unlock()

	if port == nil {
		return nil
	}
	return port.Close()
}

func (s *NMEAService) readLoop(r io.Reader) {
	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			if ferr := s.Feed(line); ferr != nil {
				// noisy receivers emit partial sentences at startup
				continue
			}
		}
		if err != nil {
			s.mu.Lock()
			closed := s.port == nil
			if !closed {
				s.status = StatusFailed
			}
			s.mu.Unlock()
			if !closed {
				log.Printf("gps: read error: %v", err)
			}
			return
		}
	}
}

// Feed processes one NMEA line. Lines that are not sentences are ignored;
// sentences that fail to parse return the parser error.
func (s *NMEAService) Feed(line string) error {
	line = strings.TrimSpace(line)
	if line == "" || !strings.HasPrefix(line, "$") {
		return nil
	}

	sentence, err := nmea.Parse(line)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch sentence.DataType() {
	case nmea.TypeRMC:
		m := sentence.(nmea.RMC)
		if m.Validity != nmea.ValidRMC {
			return nil
		}
		s.fix.Latitude = m.Latitude
		s.fix.Longitude = m.Longitude
		s.fix.SpeedKnots = m.Speed
		s.fix.CourseDeg = m.Course
		s.fix.Timestamp = fixTime(m.Date, m.Time)
		if s.status == StatusInitializing {
			s.status = StatusReady
		}

	case nmea.TypeGGA:
		m := sentence.(nmea.GGA)
		if m.FixQuality == nmea.Invalid {
			return nil
		}
		s.fix.Altitude = m.Altitude
		s.fix.Satellites = m.NumSatellites

	default:
		// GSA, GSV, VTG etc. carry nothing the session needs
	}
	return nil
}

func fixTime(d nmea.Date, t nmea.Time) time.Time {
	if !d.Valid || !t.Valid {
		return time.Now().UTC()
	}
	return time.Date(2000+d.YY, time.Month(d.MM), d.DD,
		t.Hour, t.Minute, t.Second, t.Millisecond*int(time.Millisecond), time.UTC)
}
