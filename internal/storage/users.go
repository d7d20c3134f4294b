package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// GetOrCreateUser finds or creates a user by login name.
// Returns the user ID. Updates last_seen and display_name on each call.
func (db *DB) GetOrCreateUser(ctx context.Context, login, displayName string) (int, error) {
	var id int
	err := db.Pool.QueryRow(ctx, `
		INSERT INTO users (login, display_name)
		VALUES ($1, $2)
		ON CONFLICT (login) DO UPDATE
			SET last_seen = NOW(), display_name = COALESCE(NULLIF($2, ''), users.display_name)
		RETURNING id
	`, login, displayName).Scan(&id)
	return id, err
}

// DeleteUserData removes every workout created by the user and returns their
// ids so callers can drop the matching local progress.
func (db *DB) DeleteUserData(ctx context.Context, userID int) ([]uuid.UUID, error) {
	rows, err := db.Pool.Query(ctx,
		`DELETE FROM workouts WHERE created_by = $1 RETURNING id`, userID)
	if err != nil {
		return nil, fmt.Errorf("deleting user workouts: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning deleted workout: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
