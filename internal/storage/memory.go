package storage

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/claude/restset/internal/models"
	"github.com/google/uuid"
)

// Memory is an in-process workout store with the same semantics as DB. It
// backs the memory database driver used for local development and tests.
type Memory struct {
	mu       sync.Mutex
	now      func() time.Time
	users    map[string]int
	nextUser int
	workouts map[uuid.UUID]*models.Workout
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{
		now:      time.Now,
		users:    make(map[string]int),
		nextUser: 1,
		workouts: make(map[uuid.UUID]*models.Workout),
	}
}

func cloneWorkout(w *models.Workout) *models.Workout {
	c := *w
	c.Exercises = slices.Clone(w.Exercises)
	if c.Exercises == nil {
		c.Exercises = []models.Exercise{}
	}
	return &c
}

func (m *Memory) GetOrCreateUser(_ context.Context, login, _ string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.users[login]; ok {
		return id, nil
	}
	id := m.nextUser
	m.nextUser++
	m.users[login] = id
	return id, nil
}

func (m *Memory) DeleteUserData(_ context.Context, userID int) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []uuid.UUID
	for id, w := range m.workouts {
		if w.CreatedBy == userID {
			ids = append(ids, id)
			delete(m.workouts, id)
		}
	}
	return ids, nil
}

// owned returns the user's workouts sorted by order. Must be called with mu held.
func (m *Memory) owned(userID int) []*models.Workout {
	var out []*models.Workout
	for _, w := range m.workouts {
		if w.CreatedBy == userID {
			out = append(out, w)
		}
	}
	slices.SortFunc(out, func(a, b *models.Workout) int {
		if a.Order != b.Order {
			return a.Order - b.Order
		}
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return out
}

func (m *Memory) ListWorkouts(_ context.Context, userID int) ([]models.Workout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := []models.Workout{}
	for _, w := range m.owned(userID) {
		result = append(result, *cloneWorkout(w))
	}
	return result, nil
}

func (m *Memory) GetWorkout(_ context.Context, id uuid.UUID, userID int) (*models.Workout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.workouts[id]
	if !ok || w.CreatedBy != userID {
		return nil, ErrNotFound
	}
	return cloneWorkout(w), nil
}

func (m *Memory) CreateWorkout(_ context.Context, userID int, in models.WorkoutInput) (*models.Workout, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	w := &models.Workout{
		ID:        uuid.New(),
		Title:     in.Title,
		Exercises: slices.Clone(in.Exercises),
		Order:     len(m.owned(userID)),
		CreatedBy: userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.workouts[w.ID] = w
	return cloneWorkout(w), nil
}

func (m *Memory) UpdateWorkout(_ context.Context, id uuid.UUID, userID int, upd models.WorkoutUpdate) (*models.Workout, error) {
	return m.mutate(id, userID, func(w *models.Workout) error {
		if upd.Title != nil {
			in := models.WorkoutInput{Title: *upd.Title}
			if err := in.Validate(); err != nil {
				return err
			}
			w.Title = *upd.Title
		}
		if upd.Exercises != nil {
			exercises, err := models.PrepareExercises(*upd.Exercises)
			if err != nil {
				return err
			}
			w.Exercises = exercises
		}
		return nil
	})
}

func (m *Memory) DeleteWorkout(_ context.Context, id uuid.UUID, userID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.workouts[id]
	if !ok || w.CreatedBy != userID {
		return ErrNotFound
	}
	delete(m.workouts, id)
	return nil
}

func (m *Memory) ReorderWorkouts(_ context.Context, userID int, ids []uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	owned := m.owned(userID)
	current := make([]uuid.UUID, len(owned))
	for i, w := range owned {
		current[i] = w.ID
	}
	if err := models.ValidateOrder(current, ids); err != nil {
		return err
	}
	now := m.now()
	for i, id := range ids {
		m.workouts[id].Order = i
		m.workouts[id].UpdatedAt = now
	}
	return nil
}

func (m *Memory) AddExercise(_ context.Context, id uuid.UUID, userID int, ex models.Exercise) (*models.Workout, models.Exercise, error) {
	var added models.Exercise
	w, err := m.mutate(id, userID, func(w *models.Workout) error {
		exercises, created, err := models.AddExercise(w.Exercises, ex)
		if err != nil {
			return err
		}
		w.Exercises, added = exercises, created
		return nil
	})
	return w, added, err
}

func (m *Memory) UpdateExercise(_ context.Context, id uuid.UUID, userID int, exerciseID string, upd models.ExerciseUpdate) (*models.Workout, error) {
	return m.mutate(id, userID, func(w *models.Workout) error {
		exercises, err := models.UpdateExercise(w.Exercises, exerciseID, upd)
		if err != nil {
			return err
		}
		w.Exercises = exercises
		return nil
	})
}

func (m *Memory) DeleteExercise(_ context.Context, id uuid.UUID, userID int, exerciseID string) (*models.Workout, error) {
	return m.mutate(id, userID, func(w *models.Workout) error {
		exercises, err := models.DeleteExercise(w.Exercises, exerciseID)
		if err != nil {
			return err
		}
		w.Exercises = exercises
		return nil
	})
}

func (m *Memory) ReorderExercises(_ context.Context, id uuid.UUID, userID int, ids []string) (*models.Workout, error) {
	return m.mutate(id, userID, func(w *models.Workout) error {
		exercises, err := models.ReorderExercises(w.Exercises, ids)
		if err != nil {
			return err
		}
		w.Exercises = exercises
		return nil
	})
}

// mutate edits a copy of the workout and stores it only when fn succeeds.
func (m *Memory) mutate(id uuid.UUID, userID int, fn func(*models.Workout) error) (*models.Workout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.workouts[id]
	if !ok || stored.CreatedBy != userID {
		return nil, ErrNotFound
	}
	w := cloneWorkout(stored)
	if err := fn(w); err != nil {
		return nil, err
	}
	w.UpdatedAt = m.now()
	m.workouts[id] = w
	return cloneWorkout(w), nil
}
