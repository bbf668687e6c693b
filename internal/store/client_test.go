package store

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ameet2r/workout/internal/models"
)

// route keys are "METHOD /path".
func newTestServer(t *testing.T, handlers map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, ok := handlers[r.Method+" "+r.URL.Path]
		if !ok {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			http.NotFound(w, r)
			return
		}
		h(w, r)
	}))
}

func writeTestJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Fatal(err)
	}
}

func newTestClient(url string) *Client {
	return NewClient(url+"/", "tok", 5*time.Second, log.New(io.Discard, "", 0))
}

func TestGetSessionSendsAuthAndRequestID(t *testing.T) {
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"GET /api/workout-sessions/s1": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
			assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
			planID := "p1"
			writeTestJSON(t, w, models.WorkoutSession{
				ID:            "s1",
				WorkoutPlanID: &planID,
				StartTime:     time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC),
				Exercises:     []models.SessionExercise{},
			})
		},
	})
	defer ts.Close()

	session, err := newTestClient(ts.URL).GetSession(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", session.ID)
	require.NotNil(t, session.WorkoutPlanID)
	assert.Equal(t, "p1", *session.WorkoutPlanID)
	assert.True(t, session.IsActive())
}

func TestPatchExercisesBody(t *testing.T) {
	var got map[string]json.RawMessage
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"PATCH /api/workout-sessions/s1": func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			writeTestJSON(t, w, map[string]string{"id": "s1"})
		},
	})
	defer ts.Close()

	weight := 135.0
	err := newTestClient(ts.URL).PatchExercises(context.Background(), "s1", ExercisesPatch{
		Exercises: []models.SessionExercise{{
			ExerciseVersionID: "bench",
			Sets:              []models.SetRecord{{Reps: 10, Weight: &weight}},
		}},
	})
	require.NoError(t, err)
	assert.Contains(t, got, "exercises")
	assert.NotContains(t, got, "name")
	assert.NotContains(t, got, "notes")

	var exercises []models.SessionExercise
	require.NoError(t, json.Unmarshal(got["exercises"], &exercises))
	require.Len(t, exercises, 1)
	assert.Equal(t, "bench", exercises[0].ExerciseVersionID)
	assert.Equal(t, 10, exercises[0].Sets[0].Reps)
}

func TestPatchHeartRateSummaryWrapsGarminData(t *testing.T) {
	var got map[string]models.HeartRateSummary
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"PATCH /api/workout-sessions/s1": func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
			w.WriteHeader(http.StatusNoContent)
		},
	})
	defer ts.Close()

	summary := models.HeartRateSummary{AvgHeartRate: 120, MinHeartRate: 90, MaxHeartRate: 160, Samples: 3}
	require.NoError(t, newTestClient(ts.URL).PatchHeartRateSummary(context.Background(), "s1", summary))
	assert.Equal(t, summary, got["garmin_data"])
}

func TestPostHeartRateChunkPathAndBody(t *testing.T) {
	var body []map[string]any
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"POST /api/workout-sessions/s1/heart-rate/2": func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			w.WriteHeader(http.StatusCreated)
		},
	})
	defer ts.Close()

	readings := []models.HeartRateReading{
		{Timestamp: time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC), BPM: 101},
		{Timestamp: time.Date(2026, 1, 1, 10, 0, 1, 0, time.UTC), BPM: 102},
	}
	require.NoError(t, newTestClient(ts.URL).PostHeartRateChunk(context.Background(), "s1", 2, readings))
	require.Len(t, body, 2)
	assert.EqualValues(t, 101, body[0]["value"])
	assert.Contains(t, body[0], "timestamp")
}

func TestCompleteAndDelete(t *testing.T) {
	end := time.Date(2026, 1, 1, 11, 0, 0, 0, time.UTC)
	deleted := false
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"POST /api/workout-sessions/s1/complete": func(w http.ResponseWriter, r *http.Request) {
			writeTestJSON(t, w, models.WorkoutSession{ID: "s1", EndTime: &end})
		},
		"DELETE /api/workout-sessions/s1": func(w http.ResponseWriter, r *http.Request) {
			deleted = true
			w.WriteHeader(http.StatusNoContent)
		},
	})
	defer ts.Close()

	client := newTestClient(ts.URL)
	session, err := client.Complete(context.Background(), "s1")
	require.NoError(t, err)
	assert.False(t, session.IsActive())

	require.NoError(t, client.DeleteSession(context.Background(), "s1"))
	assert.True(t, deleted)
}

func TestGetExerciseHistory(t *testing.T) {
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"GET /api/analytics/history/bench-v1": func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"sessions":[{"session_id":"old","sets":[{"reps":5,"weight":200}]}],"estimated_1rm":233.3,"actual_1rm":null}`))
		},
	})
	defer ts.Close()

	history, err := newTestClient(ts.URL).GetExerciseHistory(context.Background(), "bench-v1")
	require.NoError(t, err)
	assert.Equal(t, "bench-v1", history.ExerciseVersionID)
	require.Len(t, history.Sessions, 1)
	require.NotNil(t, history.EstimatedOneRepMax)
	assert.InDelta(t, 233.3, *history.EstimatedOneRepMax, 0.001)
	assert.Nil(t, history.ActualOneRepMax)
}

func TestStatusErrors(t *testing.T) {
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"GET /api/workout-sessions/missing": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"detail":"Workout session not found"}`, http.StatusNotFound)
		},
		"GET /api/workout-sessions/theirs": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, `{"detail":"Not authorized"}`, http.StatusForbidden)
		},
		"POST /api/workout-sessions/s1/complete": func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "upstream", http.StatusBadGateway)
		},
	})
	defer ts.Close()
	client := newTestClient(ts.URL)

	_, err := client.GetSession(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, IsRetryable(err))
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "/api/workout-sessions/missing", se.Path)
	assert.Contains(t, se.Body, "not found")

	_, err = client.GetSession(context.Background(), "theirs")
	assert.ErrorIs(t, err, ErrUnauthorized)
	assert.NotErrorIs(t, err, ErrNotFound)

	_, err = client.Complete(context.Background(), "s1")
	assert.True(t, IsRetryable(err))
}

func TestTransportErrorIsRetryable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	err := newTestClient(url).DeleteSession(context.Background(), "s1")
	require.Error(t, err)
	assert.True(t, IsRetryable(err))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = newTestClient(url).DeleteSession(ctx, "s1")
	require.Error(t, err)
	assert.False(t, IsRetryable(err))
}

func TestNewClientPanicsOnNilLogger(t *testing.T) {
	assert.PanicsWithValue(t, "Client: logger cannot be nil", func() {
		NewClient("http://localhost", "", time.Second, nil)
	})
}
