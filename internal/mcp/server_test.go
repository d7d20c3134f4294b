package mcp

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"testing"

	"github.com/claude/restset/internal/models"
	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
)

// fakeSource records calls and returns canned values.
type fakeSource struct {
	userID     int
	exerciseID string
	index      int
	completed  bool
	finished   uuid.UUID
	err        error
}

func (f *fakeSource) ListWorkouts(_ context.Context, userID int) ([]models.Workout, error) {
	f.userID = userID
	return []models.Workout{{ID: testWorkoutID, Title: "Treino A"}}, f.err
}

func (f *fakeSource) Progress(_ context.Context, userID int, id uuid.UUID) (models.ProgressView, error) {
	f.userID = userID
	return models.ProgressView{WorkoutID: id, TotalExercises: 1}, f.err
}

func (f *fakeSource) CompleteSet(_ context.Context, userID int, _ uuid.UUID, exerciseID string, index int) (models.ExerciseState, error) {
	f.userID, f.exerciseID, f.index = userID, exerciseID, index
	return models.DefaultState(), f.err
}

func (f *fakeSource) SetCompleted(_ context.Context, userID int, _ uuid.UUID, exerciseID string, completed bool) (models.ExerciseState, error) {
	f.userID, f.exerciseID, f.completed = userID, exerciseID, completed
	return models.CompletedState(2), f.err
}

func (f *fakeSource) FinishWorkout(_ context.Context, userID int, id uuid.UUID) error {
	f.userID, f.finished = userID, id
	return f.err
}

func newHandlers(ds DataSource) *handlers {
	return &handlers{ds: ds, log: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func callRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

// TestUserIDFromContextDefault verifies the default user ID (1) when no value
// is set in the context.
func TestUserIDFromContextDefault(t *testing.T) {
	ctx := context.Background()
	if id := UserIDFromContext(ctx); id != 1 {
		t.Errorf("UserIDFromContext(empty) = %d, want 1", id)
	}
}

// TestUserIDFromContextSet verifies the user ID is extracted from context
// after being set by WithUserID.
func TestUserIDFromContextSet(t *testing.T) {
	ctx := WithUserID(context.Background(), 42)
	if id := UserIDFromContext(ctx); id != 42 {
		t.Errorf("UserIDFromContext = %d, want 42", id)
	}
}

// TestCompleteSetTool verifies argument extraction and user scoping.
func TestCompleteSetTool(t *testing.T) {
	ds := &fakeSource{}
	h := newHandlers(ds)

	res, err := h.completeSet(WithUserID(context.Background(), 7), callRequest(map[string]any{
		"workout_id":  testWorkoutID.String(),
		"exercise_id": "bench",
		"set_index":   float64(1),
	}))
	if err != nil {
		t.Fatal(err)
	}
	if res.IsError {
		t.Fatalf("tool returned error: %+v", res.Content)
	}
	if ds.userID != 7 || ds.exerciseID != "bench" || ds.index != 1 {
		t.Errorf("call = user %d exercise %q index %d", ds.userID, ds.exerciseID, ds.index)
	}
}

// TestToolArgumentErrors verifies that bad arguments become tool errors, not protocol errors.
func TestToolArgumentErrors(t *testing.T) {
	h := newHandlers(&fakeSource{})

	tests := []struct {
		name string
		call func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)
		args map[string]any
	}{
		{"progress without id", h.getProgress, map[string]any{}},
		{"progress bad id", h.getProgress, map[string]any{"workout_id": "nope"}},
		{"complete without index", h.completeSet, map[string]any{"workout_id": testWorkoutID.String(), "exercise_id": "bench"}},
		{"switch without position", h.setExerciseCompleted, map[string]any{"workout_id": testWorkoutID.String(), "exercise_id": "bench"}},
		{"finish without id", h.finishWorkout, map[string]any{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := tt.call(context.Background(), callRequest(tt.args))
			if err != nil {
				t.Fatalf("protocol error: %v", err)
			}
			if !res.IsError {
				t.Error("expected tool error result")
			}
		})
	}
}

// TestDataSourceErrorsBecomeToolErrors verifies rejected operations are reported to the agent.
func TestDataSourceErrorsBecomeToolErrors(t *testing.T) {
	h := newHandlers(&fakeSource{err: errors.New("set cannot be completed now")})
	res, err := h.completeSet(context.Background(), callRequest(map[string]any{
		"workout_id":  testWorkoutID.String(),
		"exercise_id": "bench",
		"set_index":   float64(0),
	}))
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsError {
		t.Error("expected tool error result")
	}
}

// TestSwitchAndFinishTools verifies the remaining write tools reach the data source.
func TestSwitchAndFinishTools(t *testing.T) {
	ds := &fakeSource{}
	h := newHandlers(ds)

	res, err := h.setExerciseCompleted(context.Background(), callRequest(map[string]any{
		"workout_id":  testWorkoutID.String(),
		"exercise_id": "bench",
		"completed":   true,
	}))
	if err != nil || res.IsError {
		t.Fatalf("set_exercise_completed: %v %+v", err, res)
	}
	if !ds.completed {
		t.Error("switch position not forwarded")
	}

	res, err = h.finishWorkout(context.Background(), callRequest(map[string]any{"workout_id": testWorkoutID.String()}))
	if err != nil || res.IsError {
		t.Fatalf("finish_workout: %v %+v", err, res)
	}
	if ds.finished != testWorkoutID {
		t.Errorf("finished = %s", ds.finished)
	}
}

// TestToolSchemas verifies the required arguments advertised to agents.
func TestToolSchemas(t *testing.T) {
	tests := []struct {
		tool mcp.Tool
		want []string
	}{
		{toolListWorkouts, nil},
		{toolGetProgress, []string{"workout_id"}},
		{toolCompleteSet, []string{"workout_id", "exercise_id", "set_index"}},
		{toolSetExerciseCompleted, []string{"workout_id", "exercise_id", "completed"}},
		{toolFinishWorkout, []string{"workout_id"}},
	}
	for _, tt := range tests {
		t.Run(tt.tool.Name, func(t *testing.T) {
			if !slices.Equal(tt.tool.InputSchema.Required, tt.want) {
				t.Errorf("required = %v, want %v", tt.tool.InputSchema.Required, tt.want)
			}
		})
	}
	if New(&fakeSource{}, "test", slog.Default()) == nil {
		t.Error("New returned nil")
	}
}
