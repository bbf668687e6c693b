package devstore

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ameet2r/workout/internal/models"
)

type sessionCreate struct {
	WorkoutPlanID *string                  `json:"workout_plan_id"`
	Exercises     []models.SessionExercise `json:"exercises"`
	Notes         *string                  `json:"notes"`
}

type sessionPatch struct {
	Exercises  *[]models.SessionExercise `json:"exercises"`
	GarminData *models.HeartRateSummary  `json:"garmin_data"`
	Name       *string                   `json:"name"`
	Notes      *string                   `json:"notes"`
	EndTime    *time.Time                `json:"end_time"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var in sessionCreate
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	s.mu.Lock()
	if in.WorkoutPlanID != nil {
		if _, ok := s.plans[*in.WorkoutPlanID]; !ok {
			s.mu.Unlock()
			writeError(w, http.StatusNotFound, "Workout plan not found")
			return
		}
	}
	if in.Exercises == nil {
		in.Exercises = []models.SessionExercise{}
	}
	session := models.WorkoutSession{
		ID:            s.newID(),
		WorkoutPlanID: in.WorkoutPlanID,
		Exercises:     in.Exercises,
		StartTime:     s.now().UTC(),
		Notes:         in.Notes,
	}
	s.sessions[session.ID] = session
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, session)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, ok := s.Session(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "Workout session not found")
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handlePatchSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var patch sessionPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	s.mu.Lock()
	session, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		writeError(w, http.StatusNotFound, "Workout session not found")
		return
	}
	if patch.Exercises != nil {
		session.Exercises = models.CloneExercises(*patch.Exercises)
		if session.Exercises == nil {
			session.Exercises = []models.SessionExercise{}
		}
	}
	if patch.GarminData != nil {
		session.GarminData = patch.GarminData
	}
	if patch.Name != nil {
		session.Name = patch.Name
	}
	if patch.Notes != nil {
		session.Notes = patch.Notes
	}
	if patch.EndTime != nil {
		session.EndTime = patch.EndTime
	}
	s.sessions[id] = session
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	_, ok := s.sessions[id]
	delete(s.sessions, id)
	delete(s.chunks, id)
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "Workout session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCompleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	session, ok := s.sessions[id]
	if ok {
		end := s.now().UTC()
		session.EndTime = &end
		s.sessions[id] = session
	}
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "Workout session not found")
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleHeartRateChunk(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		writeError(w, http.StatusBadRequest, "chunk index must be a non-negative integer")
		return
	}
	var readings []models.HeartRateReading
	if err := json.NewDecoder(r.Body).Decode(&readings); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(readings) == 0 || len(readings) > models.HeartRateChunkSize {
		writeError(w, http.StatusBadRequest, "chunk must hold 1 to "+strconv.Itoa(models.HeartRateChunkSize)+" readings")
		return
	}

	s.mu.Lock()
	_, ok := s.sessions[id]
	if ok {
		if s.chunks[id] == nil {
			s.chunks[id] = make(map[int][]models.HeartRateReading)
		}
		s.chunks[id][index] = readings
	}
	s.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, "Workout session not found")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int{"index": index, "count": len(readings)})
}

func (s *Server) handleGetPlan(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	plan, ok := s.plans[chi.URLParam(r, "id")]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "Workout plan not found")
		return
	}
	writeJSON(w, http.StatusOK, plan)
}

// handleHistory merges seeded history with completed sessions in the store,
// newest first, and derives both one-rep-max figures when not seeded.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	versionID := chi.URLParam(r, "versionID")

	s.mu.Lock()
	snapshot := s.history[versionID]
	sessions := append([]models.HistorySession(nil), snapshot.Sessions...)
	for _, sess := range s.sessions {
		if sess.EndTime == nil {
			continue
		}
		for _, ex := range sess.Exercises {
			if ex.ExerciseVersionID != versionID || len(ex.Sets) == 0 {
				continue
			}
			sessions = append(sessions, models.HistorySession{
				SessionID: sess.ID,
				Date:      sess.StartTime,
				Sets:      append([]models.SetRecord(nil), ex.Sets...),
			})
		}
	}
	s.mu.Unlock()

	sort.SliceStable(sessions, func(i, j int) bool { return sessions[i].Date.After(sessions[j].Date) })
	if len(sessions) > historyLimit {
		sessions = sessions[:historyLimit]
	}

	out := models.ExerciseHistorySnapshot{
		ExerciseVersionID:  versionID,
		Sessions:           sessions,
		EstimatedOneRepMax: snapshot.EstimatedOneRepMax,
		ActualOneRepMax:    snapshot.ActualOneRepMax,
	}
	if out.Sessions == nil {
		out.Sessions = []models.HistorySession{}
	}
	if out.EstimatedOneRepMax == nil {
		if v, ok := out.BestEstimatedOneRepMax(); ok {
			out.EstimatedOneRepMax = &v
		}
	}
	if out.ActualOneRepMax == nil {
		if v, ok := out.BestSingle(); ok {
			out.ActualOneRepMax = &v
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
