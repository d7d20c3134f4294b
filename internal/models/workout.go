package models

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrExerciseNotFound is returned when an exercise id is not part of a workout.
	ErrExerciseNotFound = errors.New("exercise not found")
	// ErrInvalidOrder is returned when a reorder request is not a permutation of the current ids.
	ErrInvalidOrder = errors.New("order must list every id exactly once")
	// ErrInvalidWorkout wraps validation failures for workout and exercise input.
	ErrInvalidWorkout = errors.New("invalid workout")
)

// Exercise is a movement inside a workout document. Rest is in seconds.
type Exercise struct {
	ID     string  `json:"id"`
	Name   string  `json:"name"`
	Sets   int     `json:"sets"`
	Reps   int     `json:"reps"`
	Weight float64 `json:"weight"`
	Rest   int     `json:"rest"`
	Obs    string  `json:"obs,omitempty"`
}

// RestDuration returns the configured rest as a time.Duration.
func (e Exercise) RestDuration() time.Duration {
	return time.Duration(e.Rest) * time.Second
}

// Workout is the stored workout document.
type Workout struct {
	ID        uuid.UUID  `json:"id"`
	Title     string     `json:"title"`
	Exercises []Exercise `json:"exercises"`
	Order     int        `json:"order"`
	CreatedBy int        `json:"createdBy"`
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// Exercise returns the exercise with the given id.
func (w *Workout) Exercise(id string) (Exercise, bool) {
	for _, ex := range w.Exercises {
		if ex.ID == id {
			return ex, true
		}
	}
	return Exercise{}, false
}

// WorkoutInput is the payload for creating a workout.
type WorkoutInput struct {
	Title     string     `json:"title"`
	Exercises []Exercise `json:"exercises"`
}

// WorkoutUpdate is a partial update of a workout. Nil fields are left untouched.
type WorkoutUpdate struct {
	Title     *string     `json:"title,omitempty"`
	Exercises *[]Exercise `json:"exercises,omitempty"`
}

// ExerciseUpdate is a partial update of a single exercise.
type ExerciseUpdate struct {
	Name   *string  `json:"name,omitempty"`
	Sets   *int     `json:"sets,omitempty"`
	Reps   *int     `json:"reps,omitempty"`
	Weight *float64 `json:"weight,omitempty"`
	Rest   *int     `json:"rest,omitempty"`
	Obs    *string  `json:"obs,omitempty"`
}

// NewExerciseID generates an id for exercises created without one.
func NewExerciseID() string {
	return "exercise-" + uuid.NewString()
}

// Validate checks an exercise definition.
func (e Exercise) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return fmt.Errorf("%w: exercise name is required", ErrInvalidWorkout)
	}
	if e.Sets < 1 {
		return fmt.Errorf("%w: exercise %q needs at least one set", ErrInvalidWorkout, e.Name)
	}
	if e.Reps < 0 || e.Weight < 0 || e.Rest < 0 {
		return fmt.Errorf("%w: exercise %q has negative reps, weight or rest", ErrInvalidWorkout, e.Name)
	}
	return nil
}

// Validate checks the title and every exercise, assigning ids to exercises that lack one.
func (in *WorkoutInput) Validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidWorkout)
	}
	exercises, err := PrepareExercises(in.Exercises)
	if err != nil {
		return err
	}
	in.Exercises = exercises
	return nil
}

// PrepareExercises validates a full exercise list, filling missing ids and
// rejecting duplicates.
func PrepareExercises(exercises []Exercise) ([]Exercise, error) {
	out := make([]Exercise, 0, len(exercises))
	seen := make(map[string]bool, len(exercises))
	for _, ex := range exercises {
		if ex.ID == "" {
			ex.ID = NewExerciseID()
		}
		if seen[ex.ID] {
			return nil, fmt.Errorf("%w: duplicate exercise id %q", ErrInvalidWorkout, ex.ID)
		}
		seen[ex.ID] = true
		if err := ex.Validate(); err != nil {
			return nil, err
		}
		out = append(out, ex)
	}
	return out, nil
}

// AddExercise appends ex to the list, generating an id when missing.
func AddExercise(exercises []Exercise, ex Exercise) ([]Exercise, Exercise, error) {
	if ex.ID == "" {
		ex.ID = NewExerciseID()
	}
	if err := ex.Validate(); err != nil {
		return nil, Exercise{}, err
	}
	for _, e := range exercises {
		if e.ID == ex.ID {
			return nil, Exercise{}, fmt.Errorf("%w: duplicate exercise id %q", ErrInvalidWorkout, ex.ID)
		}
	}
	out := make([]Exercise, 0, len(exercises)+1)
	out = append(out, exercises...)
	return append(out, ex), ex, nil
}

// UpdateExercise applies upd to the exercise with the given id.
func UpdateExercise(exercises []Exercise, id string, upd ExerciseUpdate) ([]Exercise, error) {
	out := make([]Exercise, len(exercises))
	copy(out, exercises)
	for i, ex := range out {
		if ex.ID != id {
			continue
		}
		if upd.Name != nil {
			ex.Name = *upd.Name
		}
		if upd.Sets != nil {
			ex.Sets = *upd.Sets
		}
		if upd.Reps != nil {
			ex.Reps = *upd.Reps
		}
		if upd.Weight != nil {
			ex.Weight = *upd.Weight
		}
		if upd.Rest != nil {
			ex.Rest = *upd.Rest
		}
		if upd.Obs != nil {
			ex.Obs = *upd.Obs
		}
		if err := ex.Validate(); err != nil {
			return nil, err
		}
		out[i] = ex
		return out, nil
	}
	return nil, ErrExerciseNotFound
}

// DeleteExercise removes the exercise with the given id.
func DeleteExercise(exercises []Exercise, id string) ([]Exercise, error) {
	out := make([]Exercise, 0, len(exercises))
	found := false
	for _, ex := range exercises {
		if ex.ID == id {
			found = true
			continue
		}
		out = append(out, ex)
	}
	if !found {
		return nil, ErrExerciseNotFound
	}
	return out, nil
}

// ReorderExercises returns the exercises arranged in the order of ids.
func ReorderExercises(exercises []Exercise, ids []string) ([]Exercise, error) {
	if len(ids) != len(exercises) {
		return nil, ErrInvalidOrder
	}
	byID := make(map[string]Exercise, len(exercises))
	for _, ex := range exercises {
		byID[ex.ID] = ex
	}
	out := make([]Exercise, 0, len(ids))
	for _, id := range ids {
		ex, ok := byID[id]
		if !ok {
			return nil, ErrInvalidOrder
		}
		delete(byID, id)
		out = append(out, ex)
	}
	return out, nil
}

// ValidateOrder checks that ids is a permutation of current.
func ValidateOrder(current, ids []uuid.UUID) error {
	if len(current) != len(ids) {
		return ErrInvalidOrder
	}
	remaining := make(map[uuid.UUID]bool, len(current))
	for _, id := range current {
		remaining[id] = true
	}
	for _, id := range ids {
		if !remaining[id] {
			return ErrInvalidOrder
		}
		delete(remaining, id)
	}
	return nil
}
