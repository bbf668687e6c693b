// Package devstore is an in-memory implementation of the remote workout
// session store. It backs the dev-store command and the HTTP-level tests.
package devstore

import (
	"log"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/ameet2r/workout/internal/models"
)

const historyLimit = 5

type Options struct {
	// Token, when set, is required as a bearer token on every request.
	Token string
	Now   func() time.Time
}

type Server struct {
	logger *log.Logger
	token  string
	now    func() time.Time
	router chi.Router

	mu       sync.Mutex
	plans    map[string]models.WorkoutPlan
	sessions map[string]models.WorkoutSession
	history  map[string]models.ExerciseHistorySnapshot
	chunks   map[string]map[int][]models.HeartRateReading
	failures map[string][]int
	requests []string
}

func New(logger *log.Logger, opts Options) *Server {
	if logger == nil {
		panic("DevStore: logger cannot be nil")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Server{
		logger:   logger,
		token:    opts.Token,
		now:      opts.Now,
		router:   chi.NewRouter(),
		plans:    make(map[string]models.WorkoutPlan),
		sessions: make(map[string]models.WorkoutSession),
		history:  make(map[string]models.ExerciseHistorySnapshot),
		chunks:   make(map[string]map[int][]models.HeartRateReading),
		failures: make(map[string][]int),
	}
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.requestLogging)
	s.router.Use(s.injectFailures)
	s.router.Use(s.bearerAuth)

	s.router.Route("/api/workout-sessions", func(r chi.Router) {
		r.Post("/", s.handleCreateSession)
		r.Get("/{id}", s.handleGetSession)
		r.Patch("/{id}", s.handlePatchSession)
		r.Delete("/{id}", s.handleDeleteSession)
		r.Post("/{id}/complete", s.handleCompleteSession)
		r.Post("/{id}/heart-rate/{index}", s.handleHeartRateChunk)
	})
	s.router.Get("/api/workout-plans/{id}", s.handleGetPlan)
	s.router.Get("/api/analytics/history/{versionID}", s.handleHistory)
}

// Seed loads fixtures, replacing entries with the same id.
func (s *Server) Seed(f *Fixtures) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range f.Plans {
		s.plans[p.ID] = p
	}
	for _, sess := range f.Sessions {
		if sess.Exercises == nil {
			sess.Exercises = []models.SessionExercise{}
		}
		s.sessions[sess.ID] = sess
	}
	for _, h := range f.History {
		s.history[h.ExerciseVersionID] = h
	}
	if f.Token != "" && s.token == "" {
		s.token = f.Token
	}
}

// FailNext makes the next request matching method and path answer with
// status instead of being handled. Calls queue in order.
func (s *Server) FailNext(method, path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := method + " " + path
	s.failures[key] = append(s.failures[key], status)
}

func (s *Server) Session(id string) (models.WorkoutSession, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if ok {
		sess.Exercises = models.CloneExercises(sess.Exercises)
	}
	return sess, ok
}

// Chunks returns the uploaded heart rate chunks for a session ordered by index.
func (s *Server) Chunks(id string) [][]models.HeartRateReading {
	s.mu.Lock()
	defer s.mu.Unlock()
	byIndex := s.chunks[id]
	indexes := make([]int, 0, len(byIndex))
	for i := range byIndex {
		indexes = append(indexes, i)
	}
	sort.Ints(indexes)
	out := make([][]models.HeartRateReading, 0, len(indexes))
	for _, i := range indexes {
		out = append(out, append([]models.HeartRateReading(nil), byIndex[i]...))
	}
	return out
}

// Requests returns every handled or failed request as "METHOD /path".
func (s *Server) Requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

func (s *Server) newID() string {
	return uuid.NewString()
}

func (s *Server) requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.logger.Printf("DevStore: %s %s -> %d (%v) req=%s", r.Method, r.URL.Path, sw.status,
			time.Since(start).Round(time.Microsecond), r.Header.Get("X-Request-ID"))
	})
}

func (s *Server) injectFailures(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + strings.TrimRight(r.URL.Path, "/")
		s.mu.Lock()
		s.requests = append(s.requests, key)
		queued := s.failures[key]
		status := 0
		if len(queued) > 0 {
			status = queued[0]
			s.failures[key] = queued[1:]
		}
		s.mu.Unlock()

		if status != 0 {
			writeError(w, status, "injected failure")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) bearerAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		token := s.token
		s.mu.Unlock()
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}
		got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || got == "" {
			writeError(w, http.StatusUnauthorized, "Not authenticated")
			return
		}
		if got != token {
			writeError(w, http.StatusForbidden, "Not authorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
