package mcp

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
)

// --- Tool definitions ---

var toolListWorkouts = mcp.NewTool("list_workouts",
	mcp.WithDescription("List the user's workouts in display order. Each workout has an id, a title and its exercises with sets, reps, weight and rest seconds."),
)

var toolGetProgress = mcp.NewTool("get_progress",
	mcp.WithDescription("Live progress of a workout: per exercise the completed sets, the current set, whether a rest timer runs and the whole seconds left on it."),
	mcp.WithString("workout_id", mcp.Required(), mcp.Description("Workout UUID")),
)

var toolCompleteSet = mcp.NewTool("complete_set",
	mcp.WithDescription("Mark a set as done. Only the current set of an exercise can be completed, and not while its rest timer runs. Completing a non-final set starts the rest timer."),
	mcp.WithString("workout_id", mcp.Required(), mcp.Description("Workout UUID")),
	mcp.WithString("exercise_id", mcp.Required(), mcp.Description("Exercise id inside the workout")),
	mcp.WithNumber("set_index", mcp.Required(), mcp.Description("Zero-based set index")),
)

var toolSetExerciseCompleted = mcp.NewTool("set_exercise_completed",
	mcp.WithDescription("Manual completion switch. true completes every set and cancels any rest timer; false resets the exercise."),
	mcp.WithString("workout_id", mcp.Required(), mcp.Description("Workout UUID")),
	mcp.WithString("exercise_id", mcp.Required(), mcp.Description("Exercise id inside the workout")),
	mcp.WithBoolean("completed", mcp.Required(), mcp.Description("Switch position")),
)

var toolFinishWorkout = mcp.NewTool("finish_workout",
	mcp.WithDescription("Finish a workout: stop all rest timers and clear its progress."),
	mcp.WithString("workout_id", mcp.Required(), mcp.Description("Workout UUID")),
)

// --- Tool handlers ---

func workoutID(req mcp.CallToolRequest) (uuid.UUID, *mcp.CallToolResult) {
	raw, err := req.RequireString("workout_id")
	if err != nil {
		return uuid.Nil, mcp.NewToolResultError("workout_id parameter is required")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, mcp.NewToolResultError("invalid workout_id: " + err.Error())
	}
	return id, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	result, err := mcp.NewToolResultJSON(v)
	if err != nil {
		return mcp.NewToolResultError("serialization failed"), nil
	}
	return result, nil
}

func (h *handlers) listWorkouts(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	workouts, err := h.ds.ListWorkouts(ctx, UserIDFromContext(ctx))
	if err != nil {
		h.log.Error("mcp list_workouts", "error", err)
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	return jsonResult(workouts)
}

func (h *handlers) getProgress(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, errResult := workoutID(req)
	if errResult != nil {
		return errResult, nil
	}
	view, err := h.ds.Progress(ctx, UserIDFromContext(ctx), id)
	if err != nil {
		return mcp.NewToolResultError("query failed: " + err.Error()), nil
	}
	return jsonResult(view)
}

func (h *handlers) completeSet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, errResult := workoutID(req)
	if errResult != nil {
		return errResult, nil
	}
	exerciseID, err := req.RequireString("exercise_id")
	if err != nil {
		return mcp.NewToolResultError("exercise_id parameter is required"), nil
	}
	index, err := req.RequireInt("set_index")
	if err != nil {
		return mcp.NewToolResultError("set_index parameter is required"), nil
	}

	st, err := h.ds.CompleteSet(ctx, UserIDFromContext(ctx), id, exerciseID, index)
	if err != nil {
		return mcp.NewToolResultError("complete_set failed: " + err.Error()), nil
	}
	return jsonResult(st)
}

func (h *handlers) setExerciseCompleted(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, errResult := workoutID(req)
	if errResult != nil {
		return errResult, nil
	}
	exerciseID, err := req.RequireString("exercise_id")
	if err != nil {
		return mcp.NewToolResultError("exercise_id parameter is required"), nil
	}
	completed, err := req.RequireBool("completed")
	if err != nil {
		return mcp.NewToolResultError("completed parameter is required"), nil
	}

	st, err := h.ds.SetCompleted(ctx, UserIDFromContext(ctx), id, exerciseID, completed)
	if err != nil {
		return mcp.NewToolResultError("set_exercise_completed failed: " + err.Error()), nil
	}
	return jsonResult(st)
}

func (h *handlers) finishWorkout(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, errResult := workoutID(req)
	if errResult != nil {
		return errResult, nil
	}
	if err := h.ds.FinishWorkout(ctx, UserIDFromContext(ctx), id); err != nil {
		return mcp.NewToolResultError("finish_workout failed: " + err.Error()), nil
	}
	return mcp.NewToolResultText("workout finished, progress cleared"), nil
}

// --- Resource handlers ---

func (h *handlers) workouts(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	workouts, err := h.ds.ListWorkouts(ctx, UserIDFromContext(ctx))
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(workouts)
	if err != nil {
		return nil, err
	}

	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
