package models

import "time"

// ExerciseHistorySnapshot is what the store returns for one exercise version:
// recent sessions' sets plus estimated and actual one-rep-max.
type ExerciseHistorySnapshot struct {
	ExerciseVersionID  string           `json:"exercise_version_id" yaml:"exercise_version_id"`
	Sessions           []HistorySession `json:"sessions" yaml:"sessions"`
	EstimatedOneRepMax *float64         `json:"estimated_1rm" yaml:"estimated_1rm"`
	ActualOneRepMax    *float64         `json:"actual_1rm" yaml:"actual_1rm"`
}

type HistorySession struct {
	SessionID string      `json:"session_id" yaml:"session_id"`
	Date      time.Time   `json:"date" yaml:"date"`
	Sets      []SetRecord `json:"sets" yaml:"sets"`
}

// EstimateOneRepMax applies the Epley formula. A single rep is its own max.
func EstimateOneRepMax(weight float64, reps int) float64 {
	if reps <= 0 || weight <= 0 {
		return 0
	}
	if reps == 1 {
		return weight
	}
	return weight * (1 + float64(reps)/30)
}

// BestEstimatedOneRepMax returns the highest Epley estimate over every
// weighted set in the snapshot.
func (h *ExerciseHistorySnapshot) BestEstimatedOneRepMax() (float64, bool) {
	best := 0.0
	for _, s := range h.Sessions {
		for _, set := range s.Sets {
			if set.Weight == nil {
				continue
			}
			best = max(best, EstimateOneRepMax(*set.Weight, set.Reps))
		}
	}
	return best, best > 0
}

// BestSingle returns the heaviest weight lifted for exactly one rep.
func (h *ExerciseHistorySnapshot) BestSingle() (float64, bool) {
	best := 0.0
	for _, s := range h.Sessions {
		for _, set := range s.Sets {
			if set.Reps == 1 && set.Weight != nil {
				best = max(best, *set.Weight)
			}
		}
	}
	return best, best > 0
}
