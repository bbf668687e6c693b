package session

import (
	"bytes"
	"io"
	"log"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ameet2r/workout/internal/cache"
	"github.com/ameet2r/workout/internal/devstore"
	"github.com/ameet2r/workout/internal/events"
	"github.com/ameet2r/workout/internal/models"
	"github.com/ameet2r/workout/internal/sensor"
	"github.com/ameet2r/workout/internal/store"
	"github.com/ameet2r/workout/internal/timer"
)

const fixtureYAML = `
plans:
  - id: plan-single
    name: Bench only
    exercises:
      - exercise_version_id: bench
        order: 1
        planned_sets: 3
        planned_reps: "10"
        planned_weight: 135
  - id: plan-push
    name: Push day
    exercises:
      - exercise_version_id: ohp
        order: 2
        planned_sets: 3
        planned_reps: "8-12"
        planned_weight: 95
      - exercise_version_id: bench
        order: 1
        planned_sets: 3
        planned_reps: "10"
        planned_weight: 135
        timers:
          - duration_seconds: 60
            kind: per_set
          - duration_seconds: 90
            kind: per_set
      - exercise_version_id: pullup
        order: 3
        planned_reps: "5"
        bodyweight: true
sessions:
  - id: sess-single
    workout_plan_id: plan-single
    start_time: 2026-01-02T10:00:00Z
    exercises: []
  - id: sess-push
    workout_plan_id: plan-push
    start_time: 2026-01-02T10:00:00Z
    exercises: []
  - id: sess-partial
    workout_plan_id: plan-push
    start_time: 2026-01-02T10:00:00Z
    exercises:
      - exercise_version_id: ohp
        sets:
          - reps: 8
            weight: 95
            completed_at: 2026-01-02T10:05:00Z
      - exercise_version_id: curl
        sets: []
  - id: sess-orphan
    workout_plan_id: plan-gone
    start_time: 2026-01-02T10:00:00Z
    exercises: []
  - id: sess-done
    start_time: 2026-01-01T10:00:00Z
    end_time: 2026-01-01T11:00:00Z
    exercises: []
history:
  - exercise_version_id: bench
    sessions:
      - session_id: old-1
        date: 2025-12-20T10:00:00Z
        sets:
          - reps: 5
            weight: 200
          - reps: 1
            weight: 225
`

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// fakeTicker only fires when the test sends on c. The unbuffered send
// returns once the timer loop has taken the tick; the next command to the
// timer is handled after that tick.
type fakeTicker struct{ c chan time.Time }

func (f *fakeTicker) Chan() <-chan time.Time { return f.c }
func (f *fakeTicker) Reset(time.Duration) {}
func (f *fakeTicker) Stop() {}

type fakeSensor struct {
	mu          sync.Mutex
	state       sensor.State
	disconnects int
	readings    *events.CallbackEvent[models.HeartRateReading]

	// onDisconnect runs inside Disconnect after the state change, standing
	// in for a reading already in flight when the link drops.
	onDisconnect func()
}

func newFakeSensor() *fakeSensor {
	return &fakeSensor{
		state:    sensor.StateConnected,
		readings: events.NewCallbackEvent[models.HeartRateReading](false),
	}
}

func (f *fakeSensor) State() sensor.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeSensor) ListenReadings(fn func(models.HeartRateReading)) func() {
	return f.readings.Listen(fn)
}

func (f *fakeSensor) Disconnect() error {
	f.mu.Lock()
	f.disconnects++
	f.state = sensor.StateDisconnected
	hook := f.onDisconnect
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return nil
}

func (f *fakeSensor) Disconnects() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disconnects
}

func (f *fakeSensor) Emit(r models.HeartRateReading) {
	f.readings.Notify(r)
}

type harness struct {
	srv     *devstore.Server
	client  *store.Client
	cache   *cache.Cache
	sensor  *fakeSensor
	clock   *fakeClock
	logs    *syncBuffer
	manager *Manager

	mu      sync.Mutex
	tickers []*fakeTicker
}

func newHarness(t *testing.T) *harness {
	return newHarnessWithSource(t, nil)
}

// newHarnessWithSource uses hr as the heart rate source, or a fakeSensor
// when hr is nil.
func newHarnessWithSource(t *testing.T, hr HeartRateSource) *harness {
	t.Helper()
	h := &harness{
		clock: &fakeClock{t: time.Date(2026, 1, 2, 10, 30, 0, 0, time.UTC)},
		logs:  &syncBuffer{},
	}
	logger := log.New(h.logs, "", 0)

	h.srv = devstore.New(log.New(io.Discard, "", 0), devstore.Options{Now: h.clock.Now})
	fixtures, err := devstore.ParseFixtures([]byte(fixtureYAML))
	require.NoError(t, err)
	h.srv.Seed(fixtures)
	ts := httptest.NewServer(h.srv)
	t.Cleanup(ts.Close)
	h.client = store.NewClient(ts.URL, "", 5*time.Second, log.New(io.Discard, "", 0))

	h.cache, err = cache.Open(filepath.Join(t.TempDir(), "cache.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { h.cache.Close() })

	if hr == nil {
		h.sensor = newFakeSensor()
		hr = h.sensor
	}

	h.manager = NewManager(h.client, h.cache, hr, logger, ManagerOptions{
		Now: h.clock.Now,
		NewTimer: func() Timer {
			tk := &fakeTicker{c: make(chan time.Time)}
			h.mu.Lock()
			h.tickers = append(h.tickers, tk)
			h.mu.Unlock()
			return timer.New(logger, timer.Options{
				Now:       h.clock.Now,
				NewTicker: func() timer.Ticker { return tk },
			})
		},
	})
	return h
}

func (h *harness) open(t *testing.T, id string) *Session {
	t.Helper()
	s, err := h.manager.Open(t.Context(), id)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

// tick advances the most recently built timer by n seconds.
func (h *harness) tick(n int) {
	h.mu.Lock()
	tk := h.tickers[len(h.tickers)-1]
	h.mu.Unlock()
	for range n {
		h.clock.Advance(time.Second)
		tk.c <- h.clock.Now()
	}
}

func (h *harness) requestCount(key string) int {
	n := 0
	for _, r := range h.srv.Requests() {
		if r == key {
			n++
		}
	}
	return n
}

func ptr[T any](v T) *T { return &v }

func reps(n int) SetInput { return SetInput{Reps: &n} }

func repsAt(n int, weight float64) SetInput { return SetInput{Reps: &n, Weight: &weight} }
