package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ameet2r/workout/internal/models"
	"github.com/ameet2r/workout/internal/sensor"
	"github.com/ameet2r/workout/internal/store"
)

type CompleteOptions struct {
	IncludeHeartRate bool
}

// Summary describes a completed session.
type Summary struct {
	models.Totals
	Duration  time.Duration
	HeartRate *models.HeartRateSummary
	Chunks    int
}

// Complete commits the session to the store. The remote writes run in
// order: exercises, heart rate summary and chunks, then the finalize call.
// If any of them fails the error is returned and local state and cache are
// left as they were, so calling Complete again retries from the start.
// Only after the finalize call succeeds is the cache cleared and the sensor
// disconnected.
func (s *Session) Complete(ctx context.Context, opts CompleteOptions) (Summary, error) {
	if err := s.beginCompletion(); err != nil {
		return Summary{}, err
	}
	defer s.endCompletion()

	s.timer.Stop()

	s.mu.Lock()
	exercises := models.CloneExercises(s.exercises)
	readings := append([]models.HeartRateReading(nil), s.readings...)
	info := s.info
	s.mu.Unlock()

	patch := store.ExercisesPatch{Exercises: exercises, Name: info.Name, Notes: info.Notes}
	if err := s.m.store.PatchExercises(ctx, s.id, patch); err != nil {
		return Summary{}, fmt.Errorf("saving exercises: %w", err)
	}

	summary := Summary{Totals: models.SessionTotals(exercises)}
	if opts.IncludeHeartRate && len(readings) > 0 {
		hr, _ := models.SummarizeHeartRate(readings)
		if err := s.m.store.PatchHeartRateSummary(ctx, s.id, hr); err != nil {
			return Summary{}, fmt.Errorf("saving heart rate summary: %w", err)
		}
		chunks := models.ChunkReadings(readings, models.HeartRateChunkSize)
		for i, chunk := range chunks {
			if err := s.m.store.PostHeartRateChunk(ctx, s.id, i, chunk); err != nil {
				return Summary{}, fmt.Errorf("uploading heart rate chunk %d of %d: %w", i+1, len(chunks), err)
			}
		}
		summary.HeartRate = &hr
		summary.Chunks = len(chunks)
	}

	done, err := s.m.store.Complete(ctx, s.id)
	if err != nil {
		return Summary{}, fmt.Errorf("finalizing session: %w", err)
	}

	end := s.m.now()
	if done != nil && done.EndTime != nil {
		end = *done.EndTime
	}
	summary.Duration = end.Sub(info.StartTime)

	// Finished before clearing: a reading delivered during the disconnect
	// must not write the cache back.
	s.mu.Lock()
	s.finished = true
	s.info.EndTime = &end
	s.mu.Unlock()

	s.m.cache.Clear(s.id)
	s.disconnectSensor()

	s.logger.Printf("Session: completed %s (%d sets, %d reps, %d heart rate chunks)", s.id, summary.Sets, summary.Reps, summary.Chunks)
	return summary, nil
}

// Cancel discards the session: the remote record is deleted, the local cache
// cleared and the sensor disconnected. A session already gone from the store
// counts as deleted.
func (s *Session) Cancel(ctx context.Context) error {
	if err := s.beginCompletion(); err != nil {
		return err
	}
	defer s.endCompletion()

	s.timer.Stop()

	if err := s.m.store.DeleteSession(ctx, s.id); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("deleting session: %w", err)
	}
	s.mu.Lock()
	s.finished = true
	s.mu.Unlock()

	s.m.cache.Clear(s.id)
	s.disconnectSensor()

	s.logger.Printf("Session: cancelled %s", s.id)
	return nil
}

func (s *Session) beginCompletion() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpenLocked(); err != nil {
		return err
	}
	s.completing = true
	return nil
}

func (s *Session) endCompletion() {
	s.mu.Lock()
	s.completing = false
	s.mu.Unlock()
}

func (s *Session) disconnectSensor() {
	if s.m.sensor.State() != sensor.StateConnected {
		return
	}
	if err := s.m.sensor.Disconnect(); err != nil {
		s.logger.Printf("Session: sensor disconnect after %s failed: %v", s.id, err)
	}
}
