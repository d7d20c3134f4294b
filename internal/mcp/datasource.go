package mcp

import (
	"context"

	"github.com/claude/restset/internal/models"
	"github.com/claude/restset/internal/service"
	"github.com/google/uuid"
)

// DataSource abstracts the data layer for MCP tools. Both *service.Service
// (local) and HTTPClient (remote via REST API) satisfy this interface.
type DataSource interface {
	ListWorkouts(ctx context.Context, userID int) ([]models.Workout, error)
	Progress(ctx context.Context, userID int, id uuid.UUID) (models.ProgressView, error)
	CompleteSet(ctx context.Context, userID int, id uuid.UUID, exerciseID string, index int) (models.ExerciseState, error)
	SetCompleted(ctx context.Context, userID int, id uuid.UUID, exerciseID string, completed bool) (models.ExerciseState, error)
	FinishWorkout(ctx context.Context, userID int, id uuid.UUID) error
}

// Compile-time check: *service.Service satisfies DataSource.
var _ DataSource = (*service.Service)(nil)
