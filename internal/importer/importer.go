// Package importer loads workout documents in bulk from seed files, the
// JSON array format the app ships as its initial workout list.
package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/claude/restset/internal/models"
)

// Stats tracks import progress.
type Stats struct {
	FilesProcessed int `json:"filesProcessed"`
	FilesErrored   int `json:"filesErrored"`

	WorkoutsReceived   int `json:"workoutsReceived"`
	WorkoutsInserted   int `json:"workoutsInserted"`
	WorkoutsDuplicated int `json:"workoutsDuplicated"`
	WorkoutsInvalid    int `json:"workoutsInvalid"`
	ExercisesInserted  int `json:"exercisesInserted"`
}

// Target is the workout store imported into.
type Target interface {
	ListWorkouts(ctx context.Context, userID int) ([]models.Workout, error)
	CreateWorkout(ctx context.Context, userID int, in models.WorkoutInput) (*models.Workout, error)
}

// Importer creates workouts from seed data. Workouts whose title the user
// already has are skipped, so running an import twice is harmless.
type Importer struct {
	target Target
	log    *slog.Logger
	dryRun bool
	stats  Stats
	titles map[string]bool
}

// New creates a new Importer.
func New(target Target, log *slog.Logger, dryRun bool) *Importer {
	return &Importer{target: target, log: log, dryRun: dryRun}
}

// Import processes path for the user. A directory is scanned for *.json and
// *.json.gz files in name order; anything else is read as a single seed file.
func (imp *Importer) Import(ctx context.Context, userID int, path string) (*Stats, error) {
	files, err := seedFiles(path)
	if err != nil {
		return &imp.stats, err
	}

	for _, f := range files {
		data, err := ReadSeedFile(f)
		if err != nil {
			imp.log.Warn("read failed", "file", f, "error", err)
			imp.stats.FilesErrored++
			continue
		}

		var seed []models.WorkoutInput
		if err := json.Unmarshal(data, &seed); err != nil {
			imp.log.Warn("parse failed", "file", f, "error", err)
			imp.stats.FilesErrored++
			continue
		}

		if err := imp.importWorkouts(ctx, userID, seed); err != nil {
			return &imp.stats, fmt.Errorf("importing %s: %w", filepath.Base(f), err)
		}
		imp.stats.FilesProcessed++
	}

	return &imp.stats, nil
}

// ImportReader imports a single seed document read from r.
func (imp *Importer) ImportReader(ctx context.Context, userID int, r io.Reader) (*Stats, error) {
	var seed []models.WorkoutInput
	if err := json.NewDecoder(r).Decode(&seed); err != nil {
		return &imp.stats, fmt.Errorf("%w: %v", models.ErrInvalidWorkout, err)
	}
	if err := imp.importWorkouts(ctx, userID, seed); err != nil {
		return &imp.stats, err
	}
	imp.stats.FilesProcessed++
	return &imp.stats, nil
}

func (imp *Importer) importWorkouts(ctx context.Context, userID int, seed []models.WorkoutInput) error {
	if imp.titles == nil {
		existing, err := imp.target.ListWorkouts(ctx, userID)
		if err != nil {
			return fmt.Errorf("listing existing workouts: %w", err)
		}
		imp.titles = make(map[string]bool, len(existing))
		for _, w := range existing {
			imp.titles[normalizeTitle(w.Title)] = true
		}
	}

	for _, in := range seed {
		imp.stats.WorkoutsReceived++

		if err := in.Validate(); err != nil {
			imp.log.Warn("skipping invalid workout", "title", in.Title, "error", err)
			imp.stats.WorkoutsInvalid++
			continue
		}
		key := normalizeTitle(in.Title)
		if imp.titles[key] {
			imp.stats.WorkoutsDuplicated++
			continue
		}
		imp.titles[key] = true

		if imp.dryRun {
			imp.stats.WorkoutsInserted++
			imp.stats.ExercisesInserted += len(in.Exercises)
			continue
		}

		w, err := imp.target.CreateWorkout(ctx, userID, in)
		if err != nil {
			return fmt.Errorf("creating workout %q: %w", in.Title, err)
		}
		imp.stats.WorkoutsInserted++
		imp.stats.ExercisesInserted += len(w.Exercises)
		imp.log.Debug("workout imported", "id", w.ID, "title", w.Title)
	}
	return nil
}

func seedFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if !info.IsDir() {
		return []string{path}, nil
	}

	var files []string
	for _, pattern := range []string{"*.json", "*.json.gz"} {
		matches, err := filepath.Glob(filepath.Join(path, pattern))
		if err != nil {
			return nil, err
		}
		files = append(files, matches...)
	}
	sort.Strings(files)
	return files, nil
}

func normalizeTitle(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}
