package mcp

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

type contextKey int

const userIDKey contextKey = iota

// UserIDFromContext extracts the user ID injected by the transport layer.
func UserIDFromContext(ctx context.Context) int {
	if id, ok := ctx.Value(userIDKey).(int); ok {
		return id
	}
	return 1
}

// WithUserID returns a context with the given user ID.
func WithUserID(ctx context.Context, userID int) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// New creates an MCP server with all tools and resources registered.
func New(ds DataSource, version string, log *slog.Logger) *server.MCPServer {
	s := server.NewMCPServer("restset", version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
		server.WithInstructions("restset workout tracker. List workouts, read live set progress and rest timers, complete sets and finish workouts. All data is scoped to the authenticated user."),
	)

	h := &handlers{ds: ds, log: log}

	s.AddTools(
		server.ServerTool{Tool: toolListWorkouts, Handler: h.listWorkouts},
		server.ServerTool{Tool: toolGetProgress, Handler: h.getProgress},
		server.ServerTool{Tool: toolCompleteSet, Handler: h.completeSet},
		server.ServerTool{Tool: toolSetExerciseCompleted, Handler: h.setExerciseCompleted},
		server.ServerTool{Tool: toolFinishWorkout, Handler: h.finishWorkout},
	)

	s.AddResources(
		server.ServerResource{Resource: resWorkouts, Handler: h.workouts},
	)

	return s
}

// handlers holds dependencies for MCP tool/resource handlers.
type handlers struct {
	ds  DataSource
	log *slog.Logger
}

var resWorkouts = mcp.NewResource(
	"restset://workouts",
	"Workouts",
	mcp.WithResourceDescription("All workouts of the user with their exercises, in display order"),
	mcp.WithMIMEType("application/json"),
)
