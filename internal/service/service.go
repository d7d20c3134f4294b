// Package service joins the workout store with the live progress sessions.
// HTTP handlers and MCP tools go through it so that every workout change is
// reflected in the running timers and persisted progress.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/claude/restset/internal/models"
	"github.com/claude/restset/internal/session"
	"github.com/google/uuid"
)

// Repository is the workout document store.
type Repository interface {
	GetOrCreateUser(ctx context.Context, login, displayName string) (int, error)
	DeleteUserData(ctx context.Context, userID int) ([]uuid.UUID, error)

	ListWorkouts(ctx context.Context, userID int) ([]models.Workout, error)
	GetWorkout(ctx context.Context, id uuid.UUID, userID int) (*models.Workout, error)
	CreateWorkout(ctx context.Context, userID int, in models.WorkoutInput) (*models.Workout, error)
	UpdateWorkout(ctx context.Context, id uuid.UUID, userID int, upd models.WorkoutUpdate) (*models.Workout, error)
	DeleteWorkout(ctx context.Context, id uuid.UUID, userID int) error
	ReorderWorkouts(ctx context.Context, userID int, ids []uuid.UUID) error

	AddExercise(ctx context.Context, id uuid.UUID, userID int, ex models.Exercise) (*models.Workout, models.Exercise, error)
	UpdateExercise(ctx context.Context, id uuid.UUID, userID int, exerciseID string, upd models.ExerciseUpdate) (*models.Workout, error)
	DeleteExercise(ctx context.Context, id uuid.UUID, userID int, exerciseID string) (*models.Workout, error)
	ReorderExercises(ctx context.Context, id uuid.UUID, userID int, ids []string) (*models.Workout, error)
}

// Service implements the workout and progress operations for one process.
type Service struct {
	repo     Repository
	sessions *session.Manager
	log      *slog.Logger
}

// New creates a Service.
func New(repo Repository, sessions *session.Manager, log *slog.Logger) *Service {
	return &Service{repo: repo, sessions: sessions, log: log}
}

// EnsureUser maps a login to its user id, creating the user on first sight.
func (s *Service) EnsureUser(ctx context.Context, login, displayName string) (int, error) {
	return s.repo.GetOrCreateUser(ctx, login, displayName)
}

// DeleteAccount removes every workout of the user together with its progress.
func (s *Service) DeleteAccount(ctx context.Context, userID int) (int, error) {
	ids, err := s.repo.DeleteUserData(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("deleting account data: %w", err)
	}
	for _, id := range ids {
		s.sessions.Discard(id)
	}
	s.log.Info("account data deleted", "user_id", userID, "workouts", len(ids))
	return len(ids), nil
}

func (s *Service) ListWorkouts(ctx context.Context, userID int) ([]models.Workout, error) {
	return s.repo.ListWorkouts(ctx, userID)
}

func (s *Service) GetWorkout(ctx context.Context, userID int, id uuid.UUID) (*models.Workout, error) {
	return s.repo.GetWorkout(ctx, id, userID)
}

func (s *Service) CreateWorkout(ctx context.Context, userID int, in models.WorkoutInput) (*models.Workout, error) {
	return s.repo.CreateWorkout(ctx, userID, in)
}

func (s *Service) UpdateWorkout(ctx context.Context, userID int, id uuid.UUID, upd models.WorkoutUpdate) (*models.Workout, error) {
	return s.refreshed(s.repo.UpdateWorkout(ctx, id, userID, upd))
}

func (s *Service) DeleteWorkout(ctx context.Context, userID int, id uuid.UUID) error {
	if err := s.repo.DeleteWorkout(ctx, id, userID); err != nil {
		return err
	}
	s.sessions.Discard(id)
	return nil
}

func (s *Service) ReorderWorkouts(ctx context.Context, userID int, ids []uuid.UUID) error {
	return s.repo.ReorderWorkouts(ctx, userID, ids)
}

func (s *Service) AddExercise(ctx context.Context, userID int, id uuid.UUID, ex models.Exercise) (*models.Workout, models.Exercise, error) {
	w, added, err := s.repo.AddExercise(ctx, id, userID, ex)
	if err != nil {
		return nil, models.Exercise{}, err
	}
	s.sessions.Refresh(w)
	return w, added, nil
}

func (s *Service) UpdateExercise(ctx context.Context, userID int, id uuid.UUID, exerciseID string, upd models.ExerciseUpdate) (*models.Workout, error) {
	return s.refreshed(s.repo.UpdateExercise(ctx, id, userID, exerciseID, upd))
}

func (s *Service) DeleteExercise(ctx context.Context, userID int, id uuid.UUID, exerciseID string) (*models.Workout, error) {
	return s.refreshed(s.repo.DeleteExercise(ctx, id, userID, exerciseID))
}

func (s *Service) ReorderExercises(ctx context.Context, userID int, id uuid.UUID, ids []string) (*models.Workout, error) {
	return s.refreshed(s.repo.ReorderExercises(ctx, id, userID, ids))
}

func (s *Service) refreshed(w *models.Workout, err error) (*models.Workout, error) {
	if err != nil {
		return nil, err
	}
	s.sessions.Refresh(w)
	return w, nil
}

// session returns the live session of a workout the user owns.
func (s *Service) session(ctx context.Context, userID int, id uuid.UUID) (*session.Session, error) {
	w, err := s.repo.GetWorkout(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	return s.sessions.Get(w), nil
}

// Progress returns the progress view of a workout.
func (s *Service) Progress(ctx context.Context, userID int, id uuid.UUID) (models.ProgressView, error) {
	sess, err := s.session(ctx, userID, id)
	if err != nil {
		return models.ProgressView{}, err
	}
	return sess.View(), nil
}

// CompleteSet marks a set done and starts the rest timer when more sets remain.
func (s *Service) CompleteSet(ctx context.Context, userID int, id uuid.UUID, exerciseID string, index int) (models.ExerciseState, error) {
	sess, err := s.session(ctx, userID, id)
	if err != nil {
		return models.ExerciseState{}, err
	}
	return sess.CompleteSet(exerciseID, index)
}

// SetCompleted applies the manual completion switch of an exercise.
func (s *Service) SetCompleted(ctx context.Context, userID int, id uuid.UUID, exerciseID string, completed bool) (models.ExerciseState, error) {
	sess, err := s.session(ctx, userID, id)
	if err != nil {
		return models.ExerciseState{}, err
	}
	return sess.SetCompleted(exerciseID, completed)
}

// ResetExercise clears the progress of one exercise.
func (s *Service) ResetExercise(ctx context.Context, userID int, id uuid.UUID, exerciseID string) error {
	sess, err := s.session(ctx, userID, id)
	if err != nil {
		return err
	}
	return sess.ResetExercise(exerciseID)
}

// FinishWorkout clears all progress of a workout.
func (s *Service) FinishWorkout(ctx context.Context, userID int, id uuid.UUID) error {
	sess, err := s.session(ctx, userID, id)
	if err != nil {
		return err
	}
	sess.Finish()
	return nil
}

// SetVisible forwards a client visibility change to the workout's timers.
func (s *Service) SetVisible(ctx context.Context, userID int, id uuid.UUID, visible bool) (models.ProgressView, error) {
	sess, err := s.session(ctx, userID, id)
	if err != nil {
		return models.ProgressView{}, err
	}
	sess.SetVisible(visible)
	return sess.View(), nil
}

// WatchVisibility feeds visibility signals from ch to the workout's timers
// until ch is closed or ctx is done.
func (s *Service) WatchVisibility(ctx context.Context, userID int, id uuid.UUID, ch <-chan bool) error {
	sess, err := s.session(ctx, userID, id)
	if err != nil {
		return err
	}
	go sess.WatchVisibility(ctx, ch)
	return nil
}

// Subscribe opens the workout's session and registers for its events.
func (s *Service) Subscribe(ctx context.Context, userID int, id uuid.UUID) (<-chan session.Event, func(), error) {
	if _, err := s.session(ctx, userID, id); err != nil {
		return nil, nil, err
	}
	ch, cancel := s.sessions.Hub().Subscribe(id)
	return ch, cancel, nil
}
