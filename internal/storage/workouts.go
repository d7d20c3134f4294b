package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/claude/restset/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const workoutColumns = `id, title, exercises, sort_order, created_by, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWorkout(row rowScanner) (*models.Workout, error) {
	var w models.Workout
	var raw []byte
	if err := row.Scan(&w.ID, &w.Title, &raw, &w.Order, &w.CreatedBy, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, &w.Exercises); err != nil {
		return nil, fmt.Errorf("decoding exercises of workout %s: %w", w.ID, err)
	}
	if w.Exercises == nil {
		w.Exercises = []models.Exercise{}
	}
	return &w, nil
}

func encodeExercises(exercises []models.Exercise) ([]byte, error) {
	if exercises == nil {
		exercises = []models.Exercise{}
	}
	return json.Marshal(exercises)
}

// ListWorkouts returns the user's workouts sorted by their order field.
func (db *DB) ListWorkouts(ctx context.Context, userID int) ([]models.Workout, error) {
	rows, err := db.Pool.Query(ctx,
		`SELECT `+workoutColumns+`
		 FROM workouts
		 WHERE created_by = $1
		 ORDER BY sort_order ASC, created_at ASC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("querying workouts: %w", err)
	}
	defer rows.Close()

	result := []models.Workout{}
	for rows.Next() {
		w, err := scanWorkout(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning workout: %w", err)
		}
		result = append(result, *w)
	}
	return result, rows.Err()
}

// GetWorkout retrieves a single workout of the user.
func (db *DB) GetWorkout(ctx context.Context, id uuid.UUID, userID int) (*models.Workout, error) {
	w, err := scanWorkout(db.Pool.QueryRow(ctx,
		`SELECT `+workoutColumns+` FROM workouts WHERE id = $1 AND created_by = $2`,
		id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying workout: %w", err)
	}
	return w, nil
}

// CreateWorkout stores a new workout at the end of the user's list.
func (db *DB) CreateWorkout(ctx context.Context, userID int, in models.WorkoutInput) (*models.Workout, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	raw, err := encodeExercises(in.Exercises)
	if err != nil {
		return nil, fmt.Errorf("encoding exercises: %w", err)
	}

	w, err := scanWorkout(db.Pool.QueryRow(ctx,
		`INSERT INTO workouts (id, title, exercises, sort_order, created_by)
		 VALUES ($1, $2, $3,
		         (SELECT COUNT(*) FROM workouts WHERE created_by = $4), $4)
		 RETURNING `+workoutColumns,
		uuid.New(), in.Title, raw, userID))
	if err != nil {
		return nil, fmt.Errorf("inserting workout: %w", err)
	}
	return w, nil
}

// UpdateWorkout applies a partial update to a workout.
func (db *DB) UpdateWorkout(ctx context.Context, id uuid.UUID, userID int, upd models.WorkoutUpdate) (*models.Workout, error) {
	return db.mutate(ctx, id, userID, func(w *models.Workout) error {
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

// DeleteWorkout removes a workout.
func (db *DB) DeleteWorkout(ctx context.Context, id uuid.UUID, userID int) error {
	tag, err := db.Pool.Exec(ctx,
		`DELETE FROM workouts WHERE id = $1 AND created_by = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("deleting workout: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ReorderWorkouts sets each workout's order to its index in ids. ids must list
// every workout of the user exactly once.
func (db *DB) ReorderWorkouts(ctx context.Context, userID int, ids []uuid.UUID) (err error) {
	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	rows, err := tx.Query(ctx,
		`SELECT id FROM workouts WHERE created_by = $1 FOR UPDATE`, userID)
	if err != nil {
		return fmt.Errorf("locking workouts: %w", err)
	}
	current, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return fmt.Errorf("scanning workout ids: %w", err)
	}
	if err = models.ValidateOrder(current, ids); err != nil {
		return err
	}

	batch := &pgx.Batch{}
	for i, id := range ids {
		batch.Queue(`UPDATE workouts SET sort_order = $1, updated_at = NOW() WHERE id = $2`, i, id)
	}
	if err = tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("updating order: %w", err)
	}
	return tx.Commit(ctx)
}

// AddExercise appends an exercise to a workout.
func (db *DB) AddExercise(ctx context.Context, id uuid.UUID, userID int, ex models.Exercise) (*models.Workout, models.Exercise, error) {
	var added models.Exercise
	w, err := db.mutate(ctx, id, userID, func(w *models.Workout) error {
		exercises, created, err := models.AddExercise(w.Exercises, ex)
		if err != nil {
			return err
		}
		w.Exercises, added = exercises, created
		return nil
	})
	return w, added, err
}

// UpdateExercise applies a partial update to one exercise of a workout.
func (db *DB) UpdateExercise(ctx context.Context, id uuid.UUID, userID int, exerciseID string, upd models.ExerciseUpdate) (*models.Workout, error) {
	return db.mutate(ctx, id, userID, func(w *models.Workout) error {
		exercises, err := models.UpdateExercise(w.Exercises, exerciseID, upd)
		if err != nil {
			return err
		}
		w.Exercises = exercises
		return nil
	})
}

// DeleteExercise removes one exercise from a workout.
func (db *DB) DeleteExercise(ctx context.Context, id uuid.UUID, userID int, exerciseID string) (*models.Workout, error) {
	return db.mutate(ctx, id, userID, func(w *models.Workout) error {
		exercises, err := models.DeleteExercise(w.Exercises, exerciseID)
		if err != nil {
			return err
		}
		w.Exercises = exercises
		return nil
	})
}

// ReorderExercises rearranges a workout's exercises in the order of ids.
func (db *DB) ReorderExercises(ctx context.Context, id uuid.UUID, userID int, ids []string) (*models.Workout, error) {
	return db.mutate(ctx, id, userID, func(w *models.Workout) error {
		exercises, err := models.ReorderExercises(w.Exercises, ids)
		if err != nil {
			return err
		}
		w.Exercises = exercises
		return nil
	})
}

// mutate is the read-modify-write cycle of the workout document: the row is
// locked, fn edits it in memory and the title and exercises are written back.
func (db *DB) mutate(ctx context.Context, id uuid.UUID, userID int, fn func(*models.Workout) error) (w *models.Workout, err error) {
	tx, err := db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	w, err = scanWorkout(tx.QueryRow(ctx,
		`SELECT `+workoutColumns+` FROM workouts WHERE id = $1 AND created_by = $2 FOR UPDATE`,
		id, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("locking workout: %w", err)
	}

	if err = fn(w); err != nil {
		return nil, err
	}

	raw, err := encodeExercises(w.Exercises)
	if err != nil {
		return nil, fmt.Errorf("encoding exercises: %w", err)
	}
	w, err = scanWorkout(tx.QueryRow(ctx,
		`UPDATE workouts SET title = $1, exercises = $2, updated_at = NOW()
		 WHERE id = $3
		 RETURNING `+workoutColumns,
		w.Title, raw, id))
	if err != nil {
		return nil, fmt.Errorf("updating workout: %w", err)
	}
	if err = tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("committing workout: %w", err)
	}
	return w, nil
}
