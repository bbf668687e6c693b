package devstore

import (
	"bytes"
	"context"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ameet2r/workout/internal/models"
	"github.com/ameet2r/workout/internal/store"
)

const fixtureYAML = `
plans:
  - id: plan-1
    name: Push day
    exercises:
      - exercise_version_id: ohp
        order: 2
        planned_sets: 3
        planned_reps: "8-12"
      - exercise_version_id: bench
        order: 1
        planned_sets: 3
        planned_reps: "10"
        planned_weight: 135
        timers:
          - duration_seconds: 60
            kind: per_set
sessions:
  - id: sess-1
    workout_plan_id: plan-1
    start_time: 2026-01-02T10:00:00Z
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

var fixedNow = time.Date(2026, 1, 2, 11, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T, opts Options) (*Server, *store.Client) {
	t.Helper()
	if opts.Now == nil {
		opts.Now = func() time.Time { return fixedNow }
	}
	srv := New(log.New(io.Discard, "", 0), opts)
	fixtures, err := ParseFixtures([]byte(fixtureYAML))
	require.NoError(t, err)
	srv.Seed(fixtures)

	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return srv, store.NewClient(ts.URL, opts.Token, 5*time.Second, log.New(io.Discard, "", 0))
}

func TestParseFixtures(t *testing.T) {
	f, err := ParseFixtures([]byte(fixtureYAML))
	require.NoError(t, err)
	require.Len(t, f.Plans, 1)
	require.Len(t, f.Plans[0].Exercises, 2)
	bench := f.Plans[0].Exercises[1]
	assert.Equal(t, "bench", bench.ExerciseVersionID)
	require.NotNil(t, bench.PlannedWeight)
	assert.Equal(t, 135.0, *bench.PlannedWeight)
	assert.Equal(t, models.TimerKindPerSet, bench.Timers[0].Kind)
	assert.Equal(t, time.Date(2026, 1, 2, 10, 0, 0, 0, time.UTC), f.Sessions[0].StartTime)

	_, err = ParseFixtures([]byte("plans:\n  - name: no id\n"))
	assert.Error(t, err)
}

func TestSessionLifecycle(t *testing.T) {
	srv, client := newTestStore(t, Options{})
	ctx := context.Background()

	plan, err := client.GetPlan(ctx, "plan-1")
	require.NoError(t, err)
	planID := plan.ID
	created, err := client.CreateSession(ctx, store.SessionCreate{WorkoutPlanID: &planID})
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, fixedNow, created.StartTime)

	weight := 135.0
	name := "Monday"
	require.NoError(t, client.PatchExercises(ctx, created.ID, store.ExercisesPatch{
		Exercises: []models.SessionExercise{{ExerciseVersionID: "bench", Sets: []models.SetRecord{{Reps: 10, Weight: &weight}}}},
		Name:      &name,
	}))
	require.NoError(t, client.PatchHeartRateSummary(ctx, created.ID, models.HeartRateSummary{AvgHeartRate: 120, Samples: 2}))

	stored, ok := srv.Session(created.ID)
	require.True(t, ok)
	require.Len(t, stored.Exercises, 1)
	assert.Equal(t, "Monday", *stored.Name)
	require.NotNil(t, stored.GarminData)
	assert.Equal(t, 120, stored.GarminData.AvgHeartRate)

	done, err := client.Complete(ctx, created.ID)
	require.NoError(t, err)
	require.NotNil(t, done.EndTime)
	assert.Len(t, done.Exercises, 1)

	require.NoError(t, client.DeleteSession(ctx, created.ID))
	_, err = client.GetSession(ctx, created.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCreateSessionUnknownPlan(t *testing.T) {
	_, client := newTestStore(t, Options{})
	missing := "nope"
	_, err := client.CreateSession(context.Background(), store.SessionCreate{WorkoutPlanID: &missing})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestHeartRateChunks(t *testing.T) {
	srv, client := newTestStore(t, Options{})
	ctx := context.Background()

	reading := func(i int) models.HeartRateReading {
		return models.HeartRateReading{Timestamp: fixedNow.Add(time.Duration(i) * time.Second), BPM: 100 + i}
	}
	require.NoError(t, client.PostHeartRateChunk(ctx, "sess-1", 1, []models.HeartRateReading{reading(2)}))
	require.NoError(t, client.PostHeartRateChunk(ctx, "sess-1", 0, []models.HeartRateReading{reading(0), reading(1)}))

	chunks := srv.Chunks("sess-1")
	require.Len(t, chunks, 2)
	assert.Len(t, chunks[0], 2)
	assert.Equal(t, 102, chunks[1][0].BPM)

	tooMany := make([]models.HeartRateReading, models.HeartRateChunkSize+1)
	err := client.PostHeartRateChunk(ctx, "sess-1", 2, tooMany)
	var se *store.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.StatusCode)

	err = client.PostHeartRateChunk(ctx, "missing", 0, []models.HeartRateReading{reading(0)})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestHistoryMergesCompletedSessions(t *testing.T) {
	_, client := newTestStore(t, Options{})
	ctx := context.Background()

	weight := 250.0
	require.NoError(t, client.PatchExercises(ctx, "sess-1", store.ExercisesPatch{
		Exercises: []models.SessionExercise{{ExerciseVersionID: "bench", Sets: []models.SetRecord{{Reps: 1, Weight: &weight}}}},
	}))

	history, err := client.GetExerciseHistory(ctx, "bench")
	require.NoError(t, err)
	require.Len(t, history.Sessions, 1, "active sessions are not history")

	_, err = client.Complete(ctx, "sess-1")
	require.NoError(t, err)

	history, err = client.GetExerciseHistory(ctx, "bench")
	require.NoError(t, err)
	require.Len(t, history.Sessions, 2)
	assert.Equal(t, "sess-1", history.Sessions[0].SessionID)
	require.NotNil(t, history.ActualOneRepMax)
	assert.Equal(t, 250.0, *history.ActualOneRepMax)
	require.NotNil(t, history.EstimatedOneRepMax)
	assert.Equal(t, 250.0, *history.EstimatedOneRepMax)

	empty, err := client.GetExerciseHistory(ctx, "squat")
	require.NoError(t, err)
	assert.Empty(t, empty.Sessions)
	assert.Nil(t, empty.EstimatedOneRepMax)
}

func TestBearerAuth(t *testing.T) {
	_, client := newTestStore(t, Options{Token: "secret"})
	_, err := client.GetSession(context.Background(), "sess-1")
	require.NoError(t, err)

	srv := New(log.New(io.Discard, "", 0), Options{Token: "secret"})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	wrong := store.NewClient(ts.URL, "guess", time.Second, log.New(io.Discard, "", 0))
	_, err = wrong.GetSession(context.Background(), "sess-1")
	assert.ErrorIs(t, err, store.ErrUnauthorized)

	anon := store.NewClient(ts.URL, "", time.Second, log.New(io.Discard, "", 0))
	_, err = anon.GetSession(context.Background(), "sess-1")
	var se *store.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusUnauthorized, se.StatusCode)
}

func TestFailNextIsConsumedOnce(t *testing.T) {
	srv, client := newTestStore(t, Options{})
	srv.FailNext(http.MethodPost, "/api/workout-sessions/sess-1/complete", http.StatusServiceUnavailable)

	_, err := client.Complete(context.Background(), "sess-1")
	require.Error(t, err)
	assert.True(t, store.IsRetryable(err))

	_, err = client.Complete(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"POST /api/workout-sessions/sess-1/complete",
		"POST /api/workout-sessions/sess-1/complete",
	}, srv.Requests())
}

func TestRequestsAreLogged(t *testing.T) {
	var buf syncBuffer
	srv := New(log.New(&buf, "", 0), Options{})
	ts := httptest.NewServer(srv)
	defer ts.Close()

	client := store.NewClient(ts.URL, "", time.Second, log.New(io.Discard, "", 0))
	_, _ = client.GetPlan(context.Background(), "missing")
	assert.Contains(t, buf.String(), "DevStore: GET /api/workout-plans/missing -> 404")
}
