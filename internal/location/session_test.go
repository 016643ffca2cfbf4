package location

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/geoanchor/internal/gps"
)

// fakeService is a scripted Service. Each Status call pops the next scripted
// status; once the script is exhausted the last one repeats.
type fakeService struct {
	mu       sync.Mutex
	enabled  bool
	startErr error
	starts   int
	statuses []Status
	polls    int
	fix      gps.Fix
	fixReads int
}

func (f *fakeService) Enabled() bool { return f.enabled }

func (f *fakeService) RequestStart() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.starts++
	return f.startErr
}

func (f *fakeService) Status() Status {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if len(f.statuses) == 0 {
		return StatusInitializing
	}
	st := f.statuses[0]
	if len(f.statuses) > 1 {
		f.statuses = f.statuses[1:]
	}
	return st
}

func (f *fakeService) CurrentFix() gps.Fix {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fixReads++
	return f.fix
}

func (f *fakeService) setFix(fix gps.Fix) {
	f.mu.Lock()
	f.fix = fix
	f.mu.Unlock()
}

// instantClock fires every After immediately and counts the waits.
type instantClock struct {
	mu    sync.Mutex
	now   time.Time
	waits int
}

func (c *instantClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *instantClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.waits++
	c.now = c.now.Add(d)
	ch := make(chan time.Time, 1)
	ch <- c.now
	return ch
}

// stuckClock never fires.
type stuckClock struct{}

func (stuckClock) Now() time.Time                       { return time.Time{} }
func (stuckClock) After(time.Duration) <-chan time.Time { return make(chan time.Time) }

func TestSession_StartDisabled(t *testing.T) {
	svc := &fakeService{enabled: false}
	s := NewSession(svc)

	assert.Equal(t, StateDisabled, s.Start())
	assert.Equal(t, 0, svc.starts, "disabled service must not be started")
	assert.ErrorIs(t, s.Err(), ErrLocationDisabled)

	_, err := s.LatestFix()
	assert.ErrorIs(t, err, ErrNotReady)

	state, err := s.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateDisabled, state)
	assert.Equal(t, 0, svc.polls, "disabled session must not poll")
}

func TestSession_StartIsIdempotent(t *testing.T) {
	svc := &fakeService{enabled: true}
	s := NewSession(svc)

	assert.Equal(t, StateUnstarted, s.State())
	assert.Equal(t, StateInitializing, s.Start())
	assert.Equal(t, StateInitializing, s.Start())
	assert.Equal(t, 1, svc.starts)
}

func TestSession_RequestStartError(t *testing.T) {
	svc := &fakeService{enabled: true, startErr: errors.New("no such port")}
	s := NewSession(svc)

	assert.Equal(t, StateFailed, s.Start())
	assert.ErrorIs(t, s.Err(), ErrLocationFailed)
	assert.Contains(t, s.Err().Error(), "no such port")
}

func TestSession_BecomesReady(t *testing.T) {
	svc := &fakeService{
		enabled:  true,
		statuses: []Status{StatusInitializing, StatusInitializing, StatusReady},
		fix:      gps.Fix{Latitude: 40.4168, Longitude: -3.7038, Altitude: 650},
	}
	clock := &instantClock{}
	s := NewSession(svc, WithClock(clock), WithMaxWait(20))

	_, err := s.LatestFix()
	assert.ErrorIs(t, err, ErrNotReady)

	s.Start()
	state, err := s.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateReady, state)
	assert.NoError(t, s.Err())
	assert.Equal(t, 2, clock.waits)
	assert.Equal(t, 18, s.Remaining())

	fix, err := s.LatestFix()
	require.NoError(t, err)
	assert.Equal(t, svc.fix, fix)
}

func TestSession_TimesOut(t *testing.T) {
	svc := &fakeService{enabled: true, statuses: []Status{StatusInitializing}}
	clock := &instantClock{}
	s := NewSession(svc, WithClock(clock), WithMaxWait(20), WithPollInterval(time.Second))

	s.Start()
	state, err := s.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateTimedOut, state)
	assert.ErrorIs(t, s.Err(), ErrLocationTimedOut)
	assert.Equal(t, 20, clock.waits, "one wait per unit of budget")
	assert.Equal(t, 0, s.Remaining())

	_, err = s.LatestFix()
	assert.ErrorIs(t, err, ErrNotReady)

	// terminal: start is a no-op and polling changes nothing
	assert.Equal(t, StateTimedOut, s.Start())
	assert.Equal(t, StateTimedOut, s.Poll())
	assert.Equal(t, 1, svc.starts)
}

func TestSession_Fails(t *testing.T) {
	svc := &fakeService{enabled: true, statuses: []Status{StatusInitializing, StatusFailed}}
	clock := &instantClock{}
	s := NewSession(svc, WithClock(clock))

	s.Start()
	state, err := s.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateFailed, state)
	assert.ErrorIs(t, s.Err(), ErrLocationFailed)
	assert.Equal(t, DefaultMaxWait-1, s.Remaining())

	_, err = s.LatestFix()
	assert.ErrorIs(t, err, ErrNotReady)
}

func TestSession_PollOnlyDecrementsWhileInitializing(t *testing.T) {
	svc := &fakeService{enabled: true, statuses: []Status{StatusInitializing, StatusInitializing, StatusReady}}
	s := NewSession(svc, WithMaxWait(5))

	// polling before start does nothing
	assert.Equal(t, StateUnstarted, s.Poll())
	assert.Equal(t, 0, svc.polls)

	s.Start()
	assert.Equal(t, StateInitializing, s.Poll())
	assert.Equal(t, StateInitializing, s.Poll())
	assert.Equal(t, 3, s.Remaining())
	assert.Equal(t, StateReady, s.Poll())
	assert.Equal(t, 3, s.Remaining())

	// ready sticks without consulting the service status again
	polls := svc.polls
	assert.Equal(t, StateReady, s.Poll())
	assert.Equal(t, polls, svc.polls)
}

func TestSession_ZeroBudgetTimesOutOnFirstInitializingPoll(t *testing.T) {
	svc := &fakeService{enabled: true}
	s := NewSession(svc, WithMaxWait(0))

	s.Start()
	assert.Equal(t, StateTimedOut, s.Poll())
}

func TestSession_WaitCancelled(t *testing.T) {
	svc := &fakeService{enabled: true}
	s := NewSession(svc, WithClock(stuckClock{}))
	s.Start()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := s.Wait(ctx)
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Wait did not return after cancel")
	}
	assert.Equal(t, StateInitializing, s.State())
}

func TestSession_LatestFixTracksService(t *testing.T) {
	svc := &fakeService{enabled: true, statuses: []Status{StatusReady}}
	s := NewSession(svc)
	s.Start()
	require.Equal(t, StateReady, s.Poll())

	svc.setFix(gps.Fix{Latitude: 1, Longitude: 2})
	first, err := s.LatestFix()
	require.NoError(t, err)

	svc.setFix(gps.Fix{Latitude: 1.0001, Longitude: 2})
	second, err := s.LatestFix()
	require.NoError(t, err)

	assert.NotEqual(t, first, second)
	assert.Equal(t, 1.0001, second.Latitude)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "unstarted", StateUnstarted.String())
	assert.Equal(t, "timed_out", StateTimedOut.String())
	assert.Equal(t, "state(42)", State(42).String())
	assert.True(t, StateFailed.Terminal())
	assert.False(t, StateReady.Terminal())
}
