package session

import (
	"fmt"
	"log"
	"slices"
	"sync"

	"github.com/ameet2r/workout/internal/models"
	"github.com/ameet2r/workout/internal/timer"
)

// SetInput is the set entry form. Inputs() returns the pre-filled defaults.
type SetInput struct {
	Reps   *int
	Weight *float64
	RPE    *int
}

// Session is the state of one opened session view. Every mutation of the
// set lists is written through to the local cache before returning.
type Session struct {
	m      *Manager
	id     string
	timer  Timer
	logger *log.Logger

	mu         sync.Mutex
	info       models.WorkoutSession
	exercises  []models.SessionExercise
	current    int
	pending    []models.TimerRun
	readings   []models.HeartRateReading
	inputs     SetInput
	oneRepMax  bool
	finished   bool
	completing bool

	unsubscribe []func()
	closeOnce   sync.Once
}

func newSession(m *Manager, info models.WorkoutSession, exercises []models.SessionExercise, readings []models.HeartRateReading) *Session {
	info.Exercises = nil
	s := &Session{
		m:         m,
		id:        info.ID,
		timer:     m.newTimer(),
		logger:    m.logger,
		info:      info,
		exercises: exercises,
		readings:  append([]models.HeartRateReading(nil), readings...),
	}
	s.inputs = s.defaultInputsLocked(nil)

	s.unsubscribe = append(s.unsubscribe,
		s.timer.ListenRuns(s.onTimerRun),
		m.sensor.ListenReadings(s.onReading),
	)
	return s
}

func (s *Session) ID() string { return s.id }

// Info returns the session metadata without exercises.
func (s *Session) Info() models.WorkoutSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info
}

func (s *Session) Exercises() []models.SessionExercise {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.CloneExercises(s.exercises)
}

// Current returns the current exercise index and a copy of it. ok is false
// for a session with no exercises.
func (s *Session) Current() (int, models.SessionExercise, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.exercises) == 0 {
		return 0, models.SessionExercise{}, false
	}
	return s.current, models.CloneExercises(s.exercises[s.current : s.current+1])[0], true
}

func (s *Session) Inputs() SetInput {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inputs
}

func (s *Session) Readings() []models.HeartRateReading {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.HeartRateReading(nil), s.readings...)
}

// PendingTimerRuns are the runs that will be attached to the next set.
func (s *Session) PendingTimerRuns() []models.TimerRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.TimerRun(nil), s.pending...)
}

func (s *Session) TimerState() timer.State {
	return s.timer.State()
}

func (s *Session) OneRepMaxMode() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.oneRepMax
}

func (s *Session) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

func (s *Session) Totals() models.Totals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.SessionTotals(s.exercises)
}

// ChangeExercise moves to exercise i. A running timer is stopped and every
// unattached run is discarded along with one-rep-max mode.
func (s *Session) ChangeExercise(i int) error {
	s.mu.Lock()
	if err := s.checkOpenLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if i < 0 || i >= len(s.exercises) {
		s.mu.Unlock()
		return fmt.Errorf("exercise %d: %w", i, ErrIndexOutOfRange)
	}
	s.mu.Unlock()

	// Stop delivers its run through onTimerRun, which takes s.mu.
	s.timer.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()
	if discarded := len(s.pending); discarded > 0 {
		s.logger.Printf("Session: discarding %d unattached timer runs", discarded)
	}
	s.current = i
	s.pending = nil
	s.oneRepMax = false
	s.inputs = s.defaultInputsLocked(nil)
	return nil
}

// AddSet logs a set on the current exercise. It is rejected, with no change
// to memory or cache, while a timer is running or when reps are missing or
// out of range.
func (s *Session) AddSet(in SetInput) (models.SetRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpenLocked(); err != nil {
		return models.SetRecord{}, err
	}
	if len(s.exercises) == 0 {
		return models.SetRecord{}, fmt.Errorf("no exercises: %w", ErrIndexOutOfRange)
	}
	if s.timer.State().Running() {
		return models.SetRecord{}, ErrTimerRunning
	}
	if err := s.validateLocked(in); err != nil {
		return models.SetRecord{}, err
	}

	record := models.SetRecord{
		Reps:        *in.Reps,
		Weight:      copyPtr(in.Weight),
		RPE:         copyPtr(in.RPE),
		CompletedAt: s.m.now(),
		TimerRuns:   s.pending,
	}
	s.pending = nil

	ex := &s.exercises[s.current]
	ex.Sets = append(ex.Sets, record)
	s.m.cache.Save(s.id, models.CloneExercises(s.exercises))

	s.inputs = s.defaultInputsLocked(record.Weight)
	s.logger.Printf("Session: added set %d to %s (%d reps, %d timer runs)", len(ex.Sets), ex.ExerciseVersionID, record.Reps, len(record.TimerRuns))
	return record, nil
}

// DeleteSet removes a set immediately.
func (s *Session) DeleteSet(exerciseIndex, setIndex int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkOpenLocked(); err != nil {
		return err
	}
	if exerciseIndex < 0 || exerciseIndex >= len(s.exercises) {
		return fmt.Errorf("exercise %d: %w", exerciseIndex, ErrIndexOutOfRange)
	}
	ex := &s.exercises[exerciseIndex]
	if setIndex < 0 || setIndex >= len(ex.Sets) {
		return fmt.Errorf("set %d of exercise %d: %w", setIndex, exerciseIndex, ErrIndexOutOfRange)
	}
	ex.Sets = slices.Delete(slices.Clone(ex.Sets), setIndex, setIndex+1)
	s.m.cache.Save(s.id, models.CloneExercises(s.exercises))
	s.logger.Printf("Session: deleted set %d of %s", setIndex+1, ex.ExerciseVersionID)
	return nil
}

// StartTimer starts timer i of the current exercise. A running timer is
// stopped first and its run becomes pending.
func (s *Session) StartTimer(i int) error {
	seconds, err := s.timerSeconds(i)
	if err != nil {
		return err
	}
	_, err = s.timer.Start(i, seconds)
	return err
}

// StopTimer returns the stopped run, or nil when no timer was running.
func (s *Session) StopTimer() *models.TimerRun {
	return s.timer.Stop()
}

func (s *Session) RestartTimer(i int) error {
	seconds, err := s.timerSeconds(i)
	if err != nil {
		return err
	}
	_, err = s.timer.Restart(i, seconds)
	return err
}

func (s *Session) SetName(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpenLocked(); err != nil {
		return err
	}
	s.info.Name = &name
	return nil
}

func (s *Session) SetNotes(notes string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpenLocked(); err != nil {
		return err
	}
	s.info.Notes = &notes
	return nil
}

// Close detaches the view from the timer and the sensor. The connector and
// its link are untouched. Safe to call more than once.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		for _, unsubscribe := range s.unsubscribe {
			unsubscribe()
		}
		s.timer.Shutdown()
		s.logger.Printf("Session: closed view for %s", s.id)
	})
}

func (s *Session) timerSeconds(i int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkOpenLocked(); err != nil {
		return 0, err
	}
	if len(s.exercises) == 0 {
		return 0, fmt.Errorf("no exercises: %w", ErrIndexOutOfRange)
	}
	timers := s.exercises[s.current].Timers
	if i < 0 || i >= len(timers) {
		return 0, fmt.Errorf("timer %d: %w", i, ErrNoTimer)
	}
	return timers[i].DurationSeconds, nil
}

// onTimerRun runs on the timer goroutine while the timer still reports
// Running, so AddSet cannot slip in between.
func (s *Session) onTimerRun(run models.TimerRun) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	s.pending = append(s.pending, run)
}

func (s *Session) onReading(r models.HeartRateReading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	s.readings = append(s.readings, r)
	s.m.cache.AppendReading(s.id, len(s.readings)-1, r)
}

// checkOpenLocked gates every mutation. While Complete or Cancel runs the
// session is read-only, so nothing lands after the upload snapshot.
func (s *Session) checkOpenLocked() error {
	switch {
	case s.finished:
		return ErrSessionFinished
	case s.completing:
		return ErrCompletionInProgress
	}
	return nil
}

func (s *Session) validateLocked(in SetInput) error {
	if in.Reps == nil {
		return ErrRepsRequired
	}
	if *in.Reps < 1 {
		return fmt.Errorf("%w: reps must be at least 1, got %d", ErrInvalidInput, *in.Reps)
	}
	if s.oneRepMax && *in.Reps != 1 {
		return fmt.Errorf("%w: one-rep-max mode requires 1 rep, got %d", ErrInvalidInput, *in.Reps)
	}
	if in.Weight != nil && *in.Weight < 0 {
		return fmt.Errorf("%w: weight cannot be negative", ErrInvalidInput)
	}
	if in.RPE != nil && (*in.RPE < 1 || *in.RPE > 10) {
		return fmt.Errorf("%w: rpe must be between 1 and 10, got %d", ErrInvalidInput, *in.RPE)
	}
	return nil
}

// defaultInputsLocked pre-fills reps and weight from the current exercise's
// targets. lastWeight, when set, carries over the weight of the previous set.
// Bodyweight exercises get no pre-fill.
func (s *Session) defaultInputsLocked(lastWeight *float64) SetInput {
	var in SetInput
	if s.oneRepMax {
		one := 1
		in.Reps = &one
	}
	if len(s.exercises) == 0 {
		return in
	}
	ex := s.exercises[s.current]
	if ex.Bodyweight {
		return in
	}
	if in.Reps == nil && ex.PlannedReps != nil {
		if reps, ok := models.ParseRepTarget(*ex.PlannedReps); ok {
			in.Reps = &reps
		}
	}
	switch {
	case lastWeight != nil:
		in.Weight = copyPtr(lastWeight)
	case ex.PlannedWeight != nil:
		in.Weight = copyPtr(ex.PlannedWeight)
	}
	return in
}

func copyPtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
