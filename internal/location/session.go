// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package location

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/relabs-tech/geoanchor/internal/gps"
)

// Defaults for the startup wait: one poll per second, twenty polls.
const (
	DefaultMaxWait      = 20
	DefaultPollInterval = time.Second
)

var (
	ErrLocationDisabled = errors.New("location service disabled")
	ErrLocationTimedOut = errors.New("location service timed out")
	ErrLocationFailed   = errors.New("unable to determine device location")
	ErrNotReady         = errors.New("location not ready")
)

// State is the lifecycle of a Session.
type State int

const (
	StateUnstarted State = iota
	StateDisabled
	StateInitializing
	StateReady
	StateFailed
	StateTimedOut
)

func (s State) String() string {
	switch s {
	case StateUnstarted:
		return "unstarted"
	case StateDisabled:
		return "disabled"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	case StateTimedOut:
		return "timed_out"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateDisabled || s == StateFailed || s == StateTimedOut
}

// Status is what the underlying positioning service reports.
type Status int

const (
	StatusInitializing Status = iota
	StatusReady
	StatusFailed
)

// Service is the device positioning service a Session drives.
// It is polled, never pushed.
type Service interface {
	Enabled() bool
	RequestStart() error
	Status() Status
	CurrentFix() gps.Fix
}

// Session owns the acquisition of a position fix from a Service.
// Terminal states stick; retrying needs a new Session.
type Session struct {
	svc      Service
	clock    Clock
	maxWait  int
	interval time.Duration

	mu        sync.Mutex
	state     State
	remaining int
	err       error
}

// Option configures a Session.
type Option func(*Session)

// WithMaxWait sets how many polls the session waits while the service is
// still initializing.
func WithMaxWait(n int) Option {
	return func(s *Session) {
		if n >= 0 {
			s.maxWait = n
		}
	}
}

// WithPollInterval sets the delay between polls in Wait.
func WithPollInterval(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithClock replaces the system clock.
func WithClock(c Clock) Option {
	return func(s *Session) {
		if c != nil {
			s.clock = c
		}
	}
}

// NewSession creates an unstarted session over svc.
func NewSession(svc Service, opts ...Option) *Session {
	s := &Session{
		svc:      svc,
		clock:    SystemClock{},
		maxWait:  DefaultMaxWait,
		interval: DefaultPollInterval,
		state:    StateUnstarted,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.remaining = s.maxWait
	return s
}

// Start requests positioning from the service. It only acts on an
// unstarted session; otherwise it returns the current state.
func (s *Session) Start() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateUnstarted {
		return s.state
	}

	if !s.svc.Enabled() {
		s.state = StateDisabled
		s.err = ErrLocationDisabled
		return s.state
	}

	if err := s.svc.RequestStart(); err != nil {
		s.state = StateFailed
		s.err = fmt.Errorf("%w: %v", ErrLocationFailed, err)
		return s.state
	}

	s.state = StateInitializing
	return s.state
}

// Poll runs one iteration of the startup wait. The budget only shrinks
// while the service still reports Initializing.
func (s *Session) Poll() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateInitializing {
		return s.state
	}

	switch s.svc.Status() {
	case StatusReady:
		s.state = StateReady
	case StatusFailed:
		s.state = StateFailed
		s.err = ErrLocationFailed
	default:
		if s.remaining <= 0 {
			s.state = StateTimedOut
			s.err = ErrLocationTimedOut
		} else {
			s.remaining--
		}
	}
	return s.state
}

// Wait polls until the session leaves Initializing, sleeping one poll
// interval between polls. It returns ctx.Err() if ctx is done first, in
// which case the session stays Initializing.
func (s *Session) Wait(ctx context.Context) (State, error) {
	for {
		state := s.Poll()
		if state != StateInitializing {
			return state, nil
		}

		select {
		case <-ctx.Done():
			return state, ctx.Err()
		case <-s.clock.After(s.interval):
		}
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the terminal error, or nil if the session is not in a
// failure state.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Remaining returns how many polls are left in the wait budget.
func (s *Session) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remaining
}

// LatestFix returns the service's current fix. It fails with ErrNotReady
// unless the session is Ready.
func (s *Session) LatestFix() (gps.Fix, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateReady {
		return gps.Fix{}, fmt.Errorf("%w: session %s", ErrNotReady, s.state)
	}
	return s.svc.CurrentFix(), nil
}
