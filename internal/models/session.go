package models

import "time"

// WorkoutSession is the remote record for one workout. A nil EndTime means
// the session is still active.
type WorkoutSession struct {
	ID            string            `json:"id" yaml:"id"`
	UserID        string            `json:"user_id,omitempty" yaml:"user_id,omitempty"`
	WorkoutPlanID *string           `json:"workout_plan_id,omitempty" yaml:"workout_plan_id,omitempty"`
	Exercises     []SessionExercise `json:"exercises" yaml:"exercises"`
	StartTime     time.Time         `json:"start_time" yaml:"start_time"`
	EndTime       *time.Time        `json:"end_time,omitempty" yaml:"end_time,omitempty"`
	Name          *string           `json:"name,omitempty" yaml:"name,omitempty"`
	Notes         *string           `json:"notes,omitempty" yaml:"notes,omitempty"`
	GarminData    *HeartRateSummary `json:"garmin_data,omitempty" yaml:"garmin_data,omitempty"`
}

func (s *WorkoutSession) IsActive() bool {
	return s.EndTime == nil
}

// SessionExercise is one exercise inside a session. The planned fields are
// copied from the plan when the session starts and never change afterwards.
type SessionExercise struct {
	ExerciseVersionID string            `json:"exercise_version_id" yaml:"exercise_version_id"`
	PlannedSets       *int              `json:"planned_sets,omitempty" yaml:"planned_sets,omitempty"`
	PlannedReps       *string           `json:"planned_reps,omitempty" yaml:"planned_reps,omitempty"`
	PlannedWeight     *float64          `json:"planned_weight,omitempty" yaml:"planned_weight,omitempty"`
	Bodyweight        bool              `json:"bodyweight,omitempty" yaml:"bodyweight,omitempty"`
	Instructions      *string           `json:"instructions,omitempty" yaml:"instructions,omitempty"`
	Timers            []TimerDefinition `json:"timers,omitempty" yaml:"timers,omitempty"`
	Sets              []SetRecord       `json:"sets" yaml:"sets"`
}

// SetRecord is a logged set. Records are created and deleted, never edited.
type SetRecord struct {
	Reps        int        `json:"reps" yaml:"reps"`
	Weight      *float64   `json:"weight" yaml:"weight"`
	RPE         *int       `json:"rpe" yaml:"rpe"`
	CompletedAt time.Time  `json:"completed_at" yaml:"completed_at"`
	TimerRuns   []TimerRun `json:"timer_runs,omitempty" yaml:"timer_runs,omitempty"`
	Notes       *string    `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// TimerKind says whether a timer is meant to run once per set or across the
// whole exercise.
type TimerKind string

const (
	TimerKindPerSet TimerKind = "per_set"
	TimerKindTotal  TimerKind = "total"
)

type TimerDefinition struct {
	DurationSeconds int       `json:"duration_seconds" yaml:"duration_seconds"`
	Kind            TimerKind `json:"kind" yaml:"kind"`
}

// TimerRun records one start-to-stop execution of a countdown.
// Completed runs have ActualSeconds == PlannedSeconds; stopped runs have
// 0 <= ActualSeconds < PlannedSeconds.
type TimerRun struct {
	TimerIndex     int       `json:"timer_index" yaml:"timer_index"`
	StartedAt      time.Time `json:"started_at" yaml:"started_at"`
	PlannedSeconds int       `json:"planned_seconds" yaml:"planned_seconds"`
	ActualSeconds  int       `json:"actual_seconds" yaml:"actual_seconds"`
	Completed      bool      `json:"completed" yaml:"completed"`
}

// CloneExercises deep-copies the exercise graph so callers can hold a
// snapshot without sharing slices with the owner.
func CloneExercises(in []SessionExercise) []SessionExercise {
	if in == nil {
		return nil
	}
	out := make([]SessionExercise, len(in))
	for i, ex := range in {
		out[i] = ex
		if ex.Timers != nil {
			out[i].Timers = append([]TimerDefinition(nil), ex.Timers...)
		}
		if ex.Sets != nil {
			out[i].Sets = make([]SetRecord, len(ex.Sets))
			for j, set := range ex.Sets {
				out[i].Sets[j] = set
				if set.TimerRuns != nil {
					out[i].Sets[j].TimerRuns = append([]TimerRun(nil), set.TimerRuns...)
				}
			}
		}
	}
	return out
}
