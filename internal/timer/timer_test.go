package timer

import (
	"errors"
	"io"
	"log"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/ameet2r/workout/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTicker struct {
	c chan time.Time
}

func (f *fakeTicker) Chan() <-chan time.Time { return f.c }
func (f *fakeTicker) Reset(time.Duration)    {}
func (f *fakeTicker) Stop()                  {}

type harness struct {
	t      *testing.T
	timer  *Timer
	ticker *fakeTicker

	mu   sync.Mutex
	runs []models.TimerRun
}

var testStart = time.Date(2026, 5, 1, 7, 0, 0, 0, time.UTC)

func newHarness(t *testing.T, signaler Signaler) *harness {
	t.Helper()
	h := &harness{t: t, ticker: &fakeTicker{c: make(chan time.Time)}}
	h.timer = New(log.New(io.Discard, "", 0), Options{
		Now:       func() time.Time { return testStart },
		NewTicker: func() Ticker { return h.ticker },
		Signaler:  signaler,
	})
	h.timer.ListenRuns(func(run models.TimerRun) {
		h.mu.Lock()
		h.runs = append(h.runs, run)
		h.mu.Unlock()
	})
	t.Cleanup(h.timer.Shutdown)
	return h
}

// tick delivers n ticks and waits until the loop has handled the last one.
func (h *harness) tick(n int) {
	for i := 0; i < n; i++ {
		h.ticker.c <- testStart
	}
	h.barrier()
}

func (h *harness) barrier() {
	_, err := h.timer.send(command{kind: commandKind(-1)})
	require.NoError(h.t, err)
}

func (h *harness) recorded() []models.TimerRun {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]models.TimerRun(nil), h.runs...)
}

func TestStopAfterTwentySeconds(t *testing.T) {
	h := newHarness(t, nil)

	stopped, err := h.timer.Start(0, 60)
	require.NoError(t, err)
	assert.Nil(t, stopped)
	assert.Equal(t, State{Status: StatusRunning, TimerIndex: 0, PlannedSeconds: 60, RemainingSeconds: 60, StartedAt: testStart}, h.timer.State())

	h.tick(20)
	assert.Equal(t, 40, h.timer.State().RemainingSeconds)

	run := h.timer.Stop()
	require.NotNil(t, run)
	want := models.TimerRun{TimerIndex: 0, StartedAt: testStart, PlannedSeconds: 60, ActualSeconds: 20, Completed: false}
	assert.Equal(t, want, *run)
	assert.Equal(t, []models.TimerRun{want}, h.recorded())
	assert.Equal(t, StatusStopped, h.timer.State().Status)
}

func TestCountdownCompletes(t *testing.T) {
	var signalled []models.TimerRun
	h := newHarness(t, SignalerFunc(func(run models.TimerRun) error {
		signalled = append(signalled, run)
		return nil
	}))

	_, err := h.timer.Start(2, 3)
	require.NoError(t, err)
	h.tick(2)
	assert.Empty(t, h.recorded())

	h.tick(1)
	want := models.TimerRun{TimerIndex: 2, StartedAt: testStart, PlannedSeconds: 3, ActualSeconds: 3, Completed: true}
	assert.Equal(t, []models.TimerRun{want}, h.recorded())
	assert.Equal(t, []models.TimerRun{want}, signalled)
	state := h.timer.State()
	assert.Equal(t, StatusCompleted, state.Status)
	assert.Zero(t, state.RemainingSeconds)

	// stray ticks after completion are ignored
	h.tick(3)
	assert.Len(t, h.recorded(), 1)
	assert.Nil(t, h.timer.Stop())
}

func TestStartWhileRunningStopsPrevious(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.timer.Start(0, 60)
	require.NoError(t, err)
	h.tick(5)

	stopped, err := h.timer.Start(1, 30)
	require.NoError(t, err)
	require.NotNil(t, stopped)
	assert.Equal(t, models.TimerRun{TimerIndex: 0, StartedAt: testStart, PlannedSeconds: 60, ActualSeconds: 5}, *stopped)

	runs := h.recorded()
	require.Len(t, runs, 1)
	assert.False(t, runs[0].Completed)

	state := h.timer.State()
	assert.Equal(t, StatusRunning, state.Status)
	assert.Equal(t, 1, state.TimerIndex)
	assert.Equal(t, 30, state.RemainingSeconds)
}

func TestRestartIsStopThenStart(t *testing.T) {
	h := newHarness(t, nil)

	stopped, err := h.timer.Restart(0, 10)
	require.NoError(t, err)
	assert.Nil(t, stopped)

	h.tick(4)
	stopped, err = h.timer.Restart(0, 10)
	require.NoError(t, err)
	require.NotNil(t, stopped)
	assert.Equal(t, 4, stopped.ActualSeconds)
	assert.Equal(t, 10, h.timer.State().RemainingSeconds)
	assert.Len(t, h.recorded(), 1)
}

func TestStopWhenIdleIsNoop(t *testing.T) {
	h := newHarness(t, nil)
	assert.Nil(t, h.timer.Stop())
	assert.Empty(t, h.recorded())
	assert.Equal(t, StatusIdle, h.timer.State().Status)
	assert.Equal(t, -1, h.timer.State().TimerIndex)
}

func TestInvalidDuration(t *testing.T) {
	h := newHarness(t, nil)
	_, err := h.timer.Start(0, 0)
	assert.ErrorIs(t, err, ErrInvalidDuration)
	_, err = h.timer.Restart(0, -5)
	assert.ErrorIs(t, err, ErrInvalidDuration)
	assert.Equal(t, StatusIdle, h.timer.State().Status)
}

func TestSignalFailureDoesNotAffectState(t *testing.T) {
	for name, s := range map[string]Signaler{
		"error": SignalerFunc(func(models.TimerRun) error { return errors.New("no speaker") }),
		"panic": SignalerFunc(func(models.TimerRun) error { panic("boom") }),
	} {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t, s)
			_, err := h.timer.Start(0, 1)
			require.NoError(t, err)
			h.tick(1)

			assert.Equal(t, StatusCompleted, h.timer.State().Status)
			assert.Len(t, h.recorded(), 1)

			_, err = h.timer.Start(0, 5)
			assert.NoError(t, err)
		})
	}
}

func TestRunDeliveredBeforeStateLeavesRunning(t *testing.T) {
	h := newHarness(t, nil)
	var statusDuringDelivery []Status
	h.timer.ListenRuns(func(models.TimerRun) {
		statusDuringDelivery = append(statusDuringDelivery, h.timer.State().Status)
	})

	_, err := h.timer.Start(0, 2)
	require.NoError(t, err)
	h.timer.Stop()
	_, err = h.timer.Start(0, 1)
	require.NoError(t, err)
	h.tick(1)

	assert.Equal(t, []Status{StatusRunning, StatusRunning}, statusDuringDelivery)
}

func TestStateSnapshots(t *testing.T) {
	h := newHarness(t, nil)
	ch := make(chan State, 16)
	unlisten := h.timer.ListenState(ch)
	defer unlisten()

	_, err := h.timer.Start(0, 2)
	require.NoError(t, err)
	h.tick(2)

	var got []int
	for len(ch) > 0 {
		got = append(got, (<-ch).RemainingSeconds)
	}
	assert.Equal(t, []int{2, 1, 0}, got)
}

func TestRunInvariants(t *testing.T) {
	h := newHarness(t, nil)
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 200; i++ {
		switch rng.Intn(4) {
		case 0:
			_, err := h.timer.Start(rng.Intn(3), 1+rng.Intn(5))
			require.NoError(t, err)
		case 1:
			h.timer.Stop()
		case 2:
			_, err := h.timer.Restart(rng.Intn(3), 1+rng.Intn(5))
			require.NoError(t, err)
		case 3:
			h.tick(1 + rng.Intn(3))
		}
	}

	runs := h.recorded()
	require.NotEmpty(t, runs)
	for _, run := range runs {
		if run.Completed {
			assert.Equal(t, run.PlannedSeconds, run.ActualSeconds)
		} else {
			assert.GreaterOrEqual(t, run.ActualSeconds, 0)
			assert.Less(t, run.ActualSeconds, run.PlannedSeconds)
		}
	}
}

func TestShutdown(t *testing.T) {
	h := newHarness(t, nil)
	h.timer.Shutdown()
	h.timer.Shutdown()

	_, err := h.timer.Start(0, 10)
	assert.ErrorIs(t, err, ErrShutdown)
	assert.Nil(t, h.timer.Stop())
}

func TestNewPanicsWithoutLogger(t *testing.T) {
	assert.Panics(t, func() { New(nil, Options{}) })
}
