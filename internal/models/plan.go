package models

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// WorkoutPlan is the template a session is started from.
type WorkoutPlan struct {
	ID        string            `json:"id" yaml:"id"`
	UserID    string            `json:"user_id,omitempty" yaml:"user_id,omitempty"`
	Name      string            `json:"name" yaml:"name"`
	Exercises []PlannedExercise `json:"exercises" yaml:"exercises"`
	Notes     *string           `json:"notes,omitempty" yaml:"notes,omitempty"`
	CreatedAt time.Time         `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	UpdatedAt time.Time         `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
}

type PlannedExercise struct {
	ExerciseVersionID string            `json:"exercise_version_id" yaml:"exercise_version_id"`
	Order             int               `json:"order" yaml:"order"`
	PlannedSets       *int              `json:"planned_sets,omitempty" yaml:"planned_sets,omitempty"`
	PlannedReps       *string           `json:"planned_reps,omitempty" yaml:"planned_reps,omitempty"` // "10" or "8-12"
	PlannedWeight     *float64          `json:"planned_weight,omitempty" yaml:"planned_weight,omitempty"`
	Bodyweight        bool              `json:"bodyweight,omitempty" yaml:"bodyweight,omitempty"`
	Instructions      *string           `json:"instructions,omitempty" yaml:"instructions,omitempty"`
	Timers            []TimerDefinition `json:"timers,omitempty" yaml:"timers,omitempty"`
}

// SeedExercises builds empty session exercises from the plan, in plan order.
func (p *WorkoutPlan) SeedExercises() []SessionExercise {
	planned := append([]PlannedExercise(nil), p.Exercises...)
	sort.SliceStable(planned, func(i, j int) bool { return planned[i].Order < planned[j].Order })

	out := make([]SessionExercise, 0, len(planned))
	for _, pe := range planned {
		out = append(out, SessionExercise{
			ExerciseVersionID: pe.ExerciseVersionID,
			PlannedSets:       pe.PlannedSets,
			PlannedReps:       pe.PlannedReps,
			PlannedWeight:     pe.PlannedWeight,
			Bodyweight:        pe.Bodyweight,
			Instructions:      pe.Instructions,
			Timers:            append([]TimerDefinition(nil), pe.Timers...),
			Sets:              []SetRecord{},
		})
	}
	return out
}

// ParseRepTarget returns the lower bound of a rep scheme such as "10" or
// "8-12". ok is false when no leading integer can be found.
func ParseRepTarget(scheme string) (int, bool) {
	scheme = strings.TrimSpace(scheme)
	if scheme == "" {
		return 0, false
	}
	end := 0
	for end < len(scheme) && scheme[end] >= '0' && scheme[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(scheme[:end])
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}
