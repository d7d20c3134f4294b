package models

import "github.com/google/uuid"

// ExerciseProgress is an exercise definition joined with its live state.
type ExerciseProgress struct {
	ExerciseID       string        `json:"exerciseId"`
	Name             string        `json:"name"`
	Sets             int           `json:"sets"`
	Rest             int           `json:"rest"`
	State            ExerciseState `json:"state"`
	RemainingSeconds int           `json:"remainingSeconds"`
}

// ProgressView is the progress of a whole workout as returned to clients.
type ProgressView struct {
	WorkoutID          uuid.UUID          `json:"workoutId"`
	Exercises          []ExerciseProgress `json:"exercises"`
	CompletedExercises int                `json:"completedExercises"`
	TotalExercises     int                `json:"totalExercises"`
	// PersistenceDegraded is set once local persistence failed and progress
	// lives only in memory for the rest of the process lifetime.
	PersistenceDegraded bool `json:"persistenceDegraded"`
}
