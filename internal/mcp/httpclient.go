package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/claude/restset/internal/models"
	"github.com/google/uuid"
)

// HTTPClient implements DataSource by calling the restset REST API.
// Used for remote MCP mode where the binary runs locally (stdio) but
// data lives on the remote server (accessed over Tailscale).
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Compile-time check: HTTPClient satisfies DataSource.
var _ DataSource = (*HTTPClient)(nil)

// NewHTTPClient creates an HTTPClient targeting the given base URL. A non-empty
// token is sent as a bearer token for servers running in jwt mode.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// APIError is a non-2xx response of the REST API.
type APIError struct {
	Path    string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("httpclient: %s returned %d: %s", e.Path, e.Status, e.Message)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("httpclient: encode body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("httpclient: create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("httpclient: %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("httpclient: read body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Path: path, Status: resp.StatusCode, Message: strings.TrimSpace(string(data))}
		var payload struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(data, &payload) == nil && payload.Error != "" {
			apiErr.Message = payload.Error
		}
		return nil, apiErr
	}

	return data, nil
}

func progressPath(id uuid.UUID, parts ...string) string {
	p := "/api/v1/workouts/" + id.String() + "/progress"
	for _, part := range parts {
		p += "/" + url.PathEscape(part)
	}
	return p
}

func (c *HTTPClient) ListWorkouts(ctx context.Context, _ int) ([]models.Workout, error) {
	body, err := c.do(ctx, http.MethodGet, "/api/v1/workouts", nil)
	if err != nil {
		return nil, err
	}

	var workouts []models.Workout
	if err := json.Unmarshal(body, &workouts); err != nil {
		return nil, fmt.Errorf("httpclient: decode workouts: %w", err)
	}
	return workouts, nil
}

func (c *HTTPClient) Progress(ctx context.Context, _ int, id uuid.UUID) (models.ProgressView, error) {
	body, err := c.do(ctx, http.MethodGet, progressPath(id), nil)
	if err != nil {
		return models.ProgressView{}, err
	}

	var view models.ProgressView
	if err := json.Unmarshal(body, &view); err != nil {
		return models.ProgressView{}, fmt.Errorf("httpclient: decode progress: %w", err)
	}
	return view, nil
}

func (c *HTTPClient) CompleteSet(ctx context.Context, _ int, id uuid.UUID, exerciseID string, index int) (models.ExerciseState, error) {
	body, err := c.do(ctx, http.MethodPost, progressPath(id, exerciseID, "sets", strconv.Itoa(index)), nil)
	if err != nil {
		return models.ExerciseState{}, err
	}
	return decodeState(body)
}

func (c *HTTPClient) SetCompleted(ctx context.Context, _ int, id uuid.UUID, exerciseID string, completed bool) (models.ExerciseState, error) {
	body, err := c.do(ctx, http.MethodPost, progressPath(id, exerciseID, "complete"),
		map[string]bool{"completed": completed})
	if err != nil {
		return models.ExerciseState{}, err
	}
	return decodeState(body)
}

func (c *HTTPClient) FinishWorkout(ctx context.Context, _ int, id uuid.UUID) error {
	_, err := c.do(ctx, http.MethodPost, progressPath(id, "finish"), nil)
	return err
}

func decodeState(body []byte) (models.ExerciseState, error) {
	var st models.ExerciseState
	if err := json.Unmarshal(body, &st); err != nil {
		return models.ExerciseState{}, fmt.Errorf("httpclient: decode exercise state: %w", err)
	}
	return st, nil
}
