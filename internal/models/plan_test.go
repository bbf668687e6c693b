package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestParseRepTarget(t *testing.T) {
	tests := []struct {
		in   string
		want int
		ok   bool
	}{
		{"10", 10, true},
		{"8-12", 8, true},
		{" 5 ", 5, true},
		{"AMRAP", 0, false},
		{"", 0, false},
		{"0", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseRepTarget(tt.in)
		assert.Equal(t, tt.ok, ok, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestSeedExercises_FollowsPlanOrder(t *testing.T) {
	plan := WorkoutPlan{
		ID: "p1",
		Exercises: []PlannedExercise{
			{ExerciseVersionID: "b", Order: 2, PlannedReps: ptr("8-12")},
			{ExerciseVersionID: "a", Order: 1, PlannedSets: ptr(3), PlannedWeight: ptr(135.0),
				Timers: []TimerDefinition{{DurationSeconds: 60, Kind: TimerKindPerSet}}},
		},
	}

	seeded := plan.SeedExercises()
	require.Len(t, seeded, 2)
	assert.Equal(t, "a", seeded[0].ExerciseVersionID)
	assert.Equal(t, 3, *seeded[0].PlannedSets)
	assert.Equal(t, 135.0, *seeded[0].PlannedWeight)
	assert.Equal(t, []TimerDefinition{{DurationSeconds: 60, Kind: TimerKindPerSet}}, seeded[0].Timers)
	assert.NotNil(t, seeded[0].Sets)
	assert.Empty(t, seeded[0].Sets)
	assert.Equal(t, "b", seeded[1].ExerciseVersionID)

	seeded[0].Timers[0].DurationSeconds = 1
	assert.Equal(t, 60, plan.Exercises[1].Timers[0].DurationSeconds)
}

func TestCloneExercises(t *testing.T) {
	orig := []SessionExercise{{
		ExerciseVersionID: "a",
		Sets: []SetRecord{{Reps: 5, TimerRuns: []TimerRun{{PlannedSeconds: 60, ActualSeconds: 20}}}},
	}}
	clone := CloneExercises(orig)
	clone[0].Sets[0].Reps = 6
	clone[0].Sets[0].TimerRuns[0].ActualSeconds = 60
	clone[0].Sets = append(clone[0].Sets, SetRecord{Reps: 1})

	assert.Equal(t, 5, orig[0].Sets[0].Reps)
	assert.Equal(t, 20, orig[0].Sets[0].TimerRuns[0].ActualSeconds)
	assert.Len(t, orig[0].Sets, 1)
	assert.Nil(t, CloneExercises(nil))
}
