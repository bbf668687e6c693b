package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ameet2r/workout/internal/models"
)

// ExercisesPatch is the body of the final exercise write. Name and Notes are
// only sent when set.
type ExercisesPatch struct {
	Exercises []models.SessionExercise `json:"exercises"`
	Name      *string                  `json:"name,omitempty"`
	Notes     *string                  `json:"notes,omitempty"`
}

type summaryPatch struct {
	GarminData models.HeartRateSummary `json:"garmin_data"`
}

// SessionCreate starts a session, optionally from a plan.
type SessionCreate struct {
	WorkoutPlanID *string                  `json:"workout_plan_id,omitempty"`
	Exercises     []models.SessionExercise `json:"exercises"`
	Notes         *string                  `json:"notes,omitempty"`
}

// Client talks to the remote workout session store over HTTP/JSON.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *log.Logger
}

func NewClient(baseURL, token string, timeout time.Duration, logger *log.Logger) *Client {
	if logger == nil {
		panic("Client: logger cannot be nil")
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func sessionPath(id string) string {
	return "/api/workout-sessions/" + url.PathEscape(id)
}

func (c *Client) GetSession(ctx context.Context, id string) (*models.WorkoutSession, error) {
	var session models.WorkoutSession
	if err := c.do(ctx, http.MethodGet, sessionPath(id), nil, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *Client) GetPlan(ctx context.Context, id string) (*models.WorkoutPlan, error) {
	var plan models.WorkoutPlan
	if err := c.do(ctx, http.MethodGet, "/api/workout-plans/"+url.PathEscape(id), nil, &plan); err != nil {
		return nil, err
	}
	return &plan, nil
}

func (c *Client) CreateSession(ctx context.Context, in SessionCreate) (*models.WorkoutSession, error) {
	if in.Exercises == nil {
		in.Exercises = []models.SessionExercise{}
	}
	var session models.WorkoutSession
	if err := c.do(ctx, http.MethodPost, "/api/workout-sessions", in, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *Client) PatchExercises(ctx context.Context, id string, patch ExercisesPatch) error {
	if patch.Exercises == nil {
		patch.Exercises = []models.SessionExercise{}
	}
	return c.do(ctx, http.MethodPatch, sessionPath(id), patch, nil)
}

func (c *Client) PatchHeartRateSummary(ctx context.Context, id string, summary models.HeartRateSummary) error {
	return c.do(ctx, http.MethodPatch, sessionPath(id), summaryPatch{GarminData: summary}, nil)
}

// PostHeartRateChunk uploads one ordered segment of the reading stream.
func (c *Client) PostHeartRateChunk(ctx context.Context, id string, index int, readings []models.HeartRateReading) error {
	path := sessionPath(id) + "/heart-rate/" + strconv.Itoa(index)
	return c.do(ctx, http.MethodPost, path, readings, nil)
}

// Complete sets the session's end time.
func (c *Client) Complete(ctx context.Context, id string) (*models.WorkoutSession, error) {
	var session models.WorkoutSession
	if err := c.do(ctx, http.MethodPost, sessionPath(id)+"/complete", nil, &session); err != nil {
		return nil, err
	}
	return &session, nil
}

func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, sessionPath(id), nil, nil)
}

func (c *Client) GetExerciseHistory(ctx context.Context, versionID string) (*models.ExerciseHistorySnapshot, error) {
	var history models.ExerciseHistorySnapshot
	if err := c.do(ctx, http.MethodGet, "/api/analytics/history/"+url.PathEscape(versionID), nil, &history); err != nil {
		return nil, err
	}
	if history.ExerciseVersionID == "" {
		history.ExerciseVersionID = versionID
	}
	return &history, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("store: marshal %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("store: create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Printf("Store: %s %s failed: %v", method, path, err)
		return fmt.Errorf("store: %s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("store: read body: %w", err)
	}
	c.logger.Printf("Store: %s %s -> %d (%v)", method, path, resp.StatusCode, time.Since(start).Round(time.Millisecond))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{
			Method:     method,
			Path:       path,
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(respBody)),
		}
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("store: decode %s %s: %w", method, path, err)
	}
	return nil
}
