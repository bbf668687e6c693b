// Package session holds the in-memory state of an active workout and keeps
// the local cache, the countdown timer and the heart rate stream in step
// with it.
package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/ameet2r/workout/internal/models"
	"github.com/ameet2r/workout/internal/safe_map"
	"github.com/ameet2r/workout/internal/sensor"
	"github.com/ameet2r/workout/internal/store"
	"github.com/ameet2r/workout/internal/timer"
)

// Store is the remote session store.
type Store interface {
	GetSession(ctx context.Context, id string) (*models.WorkoutSession, error)
	GetPlan(ctx context.Context, id string) (*models.WorkoutPlan, error)
	PatchExercises(ctx context.Context, id string, patch store.ExercisesPatch) error
	PatchHeartRateSummary(ctx context.Context, id string, summary models.HeartRateSummary) error
	PostHeartRateChunk(ctx context.Context, id string, index int, readings []models.HeartRateReading) error
	Complete(ctx context.Context, id string) (*models.WorkoutSession, error)
	DeleteSession(ctx context.Context, id string) error
	GetExerciseHistory(ctx context.Context, versionID string) (*models.ExerciseHistorySnapshot, error)
}

// Cache mirrors in-progress state locally. Implementations swallow their own
// write errors.
type Cache interface {
	Save(sessionID string, exercises []models.SessionExercise)
	Load(sessionID string) ([]models.SessionExercise, bool)
	AppendReading(sessionID string, seq int, reading models.HeartRateReading)
	LoadReadings(sessionID string) ([]models.HeartRateReading, bool)
	Clear(sessionID string)
}

// HeartRateSource is the process-wide sensor connector.
type HeartRateSource interface {
	State() sensor.State
	ListenReadings(fn func(models.HeartRateReading)) func()
	Disconnect() error
}

// Timer is the countdown engine a session view drives.
type Timer interface {
	State() timer.State
	Start(index, seconds int) (*models.TimerRun, error)
	Stop() *models.TimerRun
	Restart(index, seconds int) (*models.TimerRun, error)
	ListenRuns(fn func(models.TimerRun)) func()
	Shutdown()
}

type ManagerOptions struct {
	// NewTimer builds the timer for each opened view.
	NewTimer func() Timer
	Now      func() time.Time
}

// Manager lives for the whole process. It owns the history cache and hands
// out one Session per opened view.
type Manager struct {
	store    Store
	cache    Cache
	sensor   HeartRateSource
	logger   *log.Logger
	newTimer func() Timer
	now      func() time.Time

	history *safe_map.SafeMap[string, models.ExerciseHistorySnapshot]
}

func NewManager(st Store, cache Cache, hr HeartRateSource, logger *log.Logger, opts ManagerOptions) *Manager {
	if st == nil {
		panic("Manager: store cannot be nil")
	}
	if cache == nil {
		panic("Manager: cache cannot be nil")
	}
	if hr == nil {
		panic("Manager: heart rate source cannot be nil")
	}
	if logger == nil {
		panic("Manager: logger cannot be nil")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewTimer == nil {
		opts.NewTimer = func() Timer { return timer.New(logger, timer.Options{Now: opts.Now}) }
	}
	return &Manager{
		store:    st,
		cache:    cache,
		sensor:   hr,
		logger:   logger,
		newTimer: opts.NewTimer,
		now:      opts.Now,
		history:  safe_map.NewSafeMap[string, models.ExerciseHistorySnapshot](),
	}
}

// Open loads a session and builds its view state. Exercises come from, in
// increasing precedence: the plan's targets, the server's partial data merged
// by exercise version, and a non-empty local cache entry.
func (m *Manager) Open(ctx context.Context, sessionID string) (*Session, error) {
	remote, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("loading session %s: %w", sessionID, err)
	}
	if !remote.IsActive() {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrSessionFinished)
	}

	var plan *models.WorkoutPlan
	if remote.WorkoutPlanID != nil && *remote.WorkoutPlanID != "" {
		plan, err = m.store.GetPlan(ctx, *remote.WorkoutPlanID)
		if errors.Is(err, store.ErrNotFound) {
			m.logger.Printf("Manager: plan %s for session %s not found, continuing without targets", *remote.WorkoutPlanID, sessionID)
			plan = nil
		} else if err != nil {
			return nil, fmt.Errorf("loading plan %s: %w", *remote.WorkoutPlanID, err)
		}
	}

	exercises := resolveExercises(plan, remote.Exercises)
	if cached, ok := m.cache.Load(sessionID); ok && len(cached) > 0 {
		m.logger.Printf("Manager: session %s restored from local cache (%d exercises)", sessionID, len(cached))
		exercises = cached
	}
	readings, _ := m.cache.LoadReadings(sessionID)

	s := newSession(m, *remote, exercises, readings)
	m.logger.Printf("Manager: opened session %s with %d exercises, %d cached readings", sessionID, len(exercises), len(readings))
	return s, nil
}

// CachedHistory returns the history snapshot fetched earlier in this process.
func (m *Manager) CachedHistory(versionID string) (models.ExerciseHistorySnapshot, bool) {
	return m.history.Load(versionID)
}

func (m *Manager) fetchHistory(ctx context.Context, versionID string) (models.ExerciseHistorySnapshot, error) {
	if h, ok := m.history.Load(versionID); ok {
		return h, nil
	}
	h, err := m.store.GetExerciseHistory(ctx, versionID)
	if err != nil {
		return models.ExerciseHistorySnapshot{}, fmt.Errorf("loading history for %s: %w", versionID, err)
	}
	actual, _ := m.history.LoadOrStore(versionID, *h)
	return actual, nil
}

// resolveExercises seeds from the plan when the server has nothing, and
// otherwise overlays the server's exercises onto the plan by version id.
// Server exercises absent from the plan keep their order after the plan's.
func resolveExercises(plan *models.WorkoutPlan, remote []models.SessionExercise) []models.SessionExercise {
	if plan == nil {
		return normalize(models.CloneExercises(remote))
	}
	seeded := plan.SeedExercises()
	if len(remote) == 0 {
		return seeded
	}

	used := make([]bool, len(remote))
	out := make([]models.SessionExercise, 0, len(seeded)+len(remote))
	for _, seed := range seeded {
		merged := seed
		for i, r := range remote {
			if used[i] || r.ExerciseVersionID != seed.ExerciseVersionID {
				continue
			}
			used[i] = true
			merged = mergeExercise(seed, r)
			break
		}
		out = append(out, merged)
	}
	for i, r := range remote {
		if !used[i] {
			out = append(out, r)
		}
	}
	return normalize(models.CloneExercises(out))
}

// mergeExercise keeps the server's sets and fills planned fields the server
// left empty from the plan.
func mergeExercise(seed, remote models.SessionExercise) models.SessionExercise {
	out := remote
	if out.PlannedSets == nil {
		out.PlannedSets = seed.PlannedSets
	}
	if out.PlannedReps == nil {
		out.PlannedReps = seed.PlannedReps
	}
	if out.PlannedWeight == nil {
		out.PlannedWeight = seed.PlannedWeight
	}
	if out.Instructions == nil {
		out.Instructions = seed.Instructions
	}
	if len(out.Timers) == 0 {
		out.Timers = seed.Timers
	}
	out.Bodyweight = out.Bodyweight || seed.Bodyweight
	return out
}

func normalize(exercises []models.SessionExercise) []models.SessionExercise {
	if exercises == nil {
		return []models.SessionExercise{}
	}
	for i := range exercises {
		if exercises[i].Sets == nil {
			exercises[i].Sets = []models.SetRecord{}
		}
	}
	return exercises
}
