package session

import (
	"context"

	"github.com/ameet2r/workout/internal/models"
)

// OneRepMax is the reference shown while testing a single.
type OneRepMax struct {
	ExerciseVersionID string
	Estimated         *float64
	Actual            *float64
}

// SetOneRepMaxMode toggles one-rep-max mode for the current exercise. Turning
// it on locks reps to 1 and fetches the exercise's history once per process.
// A failed fetch leaves the mode on and is returned for display.
func (s *Session) SetOneRepMaxMode(ctx context.Context, on bool) error {
	s.mu.Lock()
	if err := s.checkOpenLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.oneRepMax = on
	weight := s.inputs.Weight
	s.inputs = s.defaultInputsLocked(weight)
	versionID := ""
	if len(s.exercises) > 0 {
		versionID = s.exercises[s.current].ExerciseVersionID
	}
	s.mu.Unlock()

	if !on || versionID == "" {
		return nil
	}
	if _, err := s.m.fetchHistory(ctx, versionID); err != nil {
		s.logger.Printf("Session: one-rep-max history unavailable: %v", err)
		return err
	}
	return nil
}

// OneRepMax returns the cached figures for the current exercise. The
// estimate falls back to the best Epley estimate over the history's sets
// when the store did not provide one.
func (s *Session) OneRepMax() (OneRepMax, bool) {
	s.mu.Lock()
	if len(s.exercises) == 0 {
		s.mu.Unlock()
		return OneRepMax{}, false
	}
	versionID := s.exercises[s.current].ExerciseVersionID
	s.mu.Unlock()

	history, ok := s.m.CachedHistory(versionID)
	if !ok {
		return OneRepMax{}, false
	}
	out := OneRepMax{
		ExerciseVersionID: versionID,
		Estimated:         copyPtr(history.EstimatedOneRepMax),
		Actual:            copyPtr(history.ActualOneRepMax),
	}
	if out.Estimated == nil {
		if v, ok := history.BestEstimatedOneRepMax(); ok {
			out.Estimated = &v
		}
	}
	return out, true
}

// EstimateFor is the Epley estimate of the pending input, for display next
// to the form.
func EstimateFor(in SetInput) (float64, bool) {
	if in.Reps == nil || in.Weight == nil {
		return 0, false
	}
	v := models.EstimateOneRepMax(*in.Weight, *in.Reps)
	return v, v > 0
}
