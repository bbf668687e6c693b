package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateOneRepMax(t *testing.T) {
	assert.InDelta(t, 180.0, EstimateOneRepMax(135, 10), 0.001)
	assert.Equal(t, 200.0, EstimateOneRepMax(200, 1))
	assert.Zero(t, EstimateOneRepMax(0, 5))
	assert.Zero(t, EstimateOneRepMax(100, 0))
}

func TestHistorySnapshotBests(t *testing.T) {
	h := ExerciseHistorySnapshot{
		Sessions: []HistorySession{
			{SessionID: "s1", Sets: []SetRecord{{Reps: 10, Weight: ptr(135.0)}, {Reps: 1, Weight: ptr(185.0)}}},
			{SessionID: "s2", Sets: []SetRecord{{Reps: 12}, {Reps: 5, Weight: ptr(175.0)}}},
		},
	}

	est, ok := h.BestEstimatedOneRepMax()
	assert.True(t, ok)
	assert.InDelta(t, 175*(1+5.0/30), est, 0.001)

	single, ok := h.BestSingle()
	assert.True(t, ok)
	assert.Equal(t, 185.0, single)

	var empty ExerciseHistorySnapshot
	_, ok = empty.BestEstimatedOneRepMax()
	assert.False(t, ok)
	_, ok = empty.BestSingle()
	assert.False(t, ok)
}

func TestSessionTotals(t *testing.T) {
	exercises := []SessionExercise{
		{Sets: []SetRecord{{Reps: 10, Weight: ptr(135.0)}, {Reps: 10, Weight: ptr(135.0)}}},
		{Sets: []SetRecord{{Reps: 15}}},
	}
	assert.Equal(t, Totals{Sets: 3, Reps: 35, Volume: 2700}, SessionTotals(exercises))
}
