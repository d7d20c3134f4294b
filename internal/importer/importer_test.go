package importer

import (
	"compress/gzip"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/claude/restset/internal/models"
	"github.com/claude/restset/internal/storage"
)

const seedA = `[
  {"title": "Treino A - Peito e Tríceps", "exercises": [
    {"id": "exercise-1", "name": "Supino Reto", "sets": 4, "reps": 10, "weight": 40, "rest": 90},
    {"name": "Tríceps Corda", "sets": 3, "reps": 12, "weight": 20, "rest": 60, "obs": "cadência lenta"}
  ]},
  {"title": "Treino B - Costas", "exercises": [
    {"name": "Puxada Frontal", "sets": 4, "reps": 10, "weight": 45, "rest": 90}
  ]}
]`

const seedB = `[
  {"title": "treino a - peito e tríceps", "exercises": []},
  {"title": "", "exercises": []},
  {"title": "Treino C - Pernas", "exercises": [{"name": "Agachamento", "sets": 0, "reps": 8, "rest": 120}]},
  {"title": "Treino D - Ombros", "exercises": [{"name": "Desenvolvimento", "sets": 3, "reps": 10, "rest": 60}]}
]`

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if strings.HasSuffix(name, ".gz") {
		f, err := os.Create(path)
		if err != nil {
			t.Fatal(err)
		}
		zw := gzip.NewWriter(f)
		if _, err := zw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
		zw.Close()
		f.Close()
		return
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

// TestImportDirectory verifies plain and gzipped seed files, duplicate
// titles and invalid entries.
func TestImportDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "01-base.json", seedA)
	writeFile(t, dir, "02-extra.json.gz", seedB)
	writeFile(t, dir, "03-broken.json", `{not json`)
	writeFile(t, dir, "notes.txt", "ignored")

	store := storage.NewMemory()
	stats, err := New(store, discardLogger(), false).Import(context.Background(), 1, dir)
	if err != nil {
		t.Fatalf("Import: %v", err)
	}

	want := Stats{
		FilesProcessed:     2,
		FilesErrored:       1,
		WorkoutsReceived:   6,
		WorkoutsInserted:   3,
		WorkoutsDuplicated: 1,
		WorkoutsInvalid:    2,
		ExercisesInserted:  4,
	}
	if *stats != want {
		t.Errorf("stats = %+v, want %+v", *stats, want)
	}

	workouts, _ := store.ListWorkouts(context.Background(), 1)
	if len(workouts) != 3 {
		t.Fatalf("stored %d workouts, want 3", len(workouts))
	}
	if workouts[0].Exercises[0].ID != "exercise-1" {
		t.Errorf("seed exercise id not kept: %q", workouts[0].Exercises[0].ID)
	}
	if workouts[0].Exercises[1].ID == "" {
		t.Error("missing exercise id not generated")
	}
	if workouts[2].Order != 2 {
		t.Errorf("third workout order = %d, want 2", workouts[2].Order)
	}
}

// TestImportDryRun verifies that dry runs count without writing.
func TestImportDryRun(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "seed.json", seedA)

	store := storage.NewMemory()
	stats, err := New(store, discardLogger(), true).Import(context.Background(), 1, filepath.Join(dir, "seed.json"))
	if err != nil {
		t.Fatal(err)
	}
	if stats.WorkoutsInserted != 2 || stats.ExercisesInserted != 3 {
		t.Errorf("stats = %+v", *stats)
	}
	if workouts, _ := store.ListWorkouts(context.Background(), 1); len(workouts) != 0 {
		t.Errorf("dry run stored %d workouts", len(workouts))
	}
}

// TestImportSkipsExistingTitles verifies that a second run adds nothing.
func TestImportSkipsExistingTitles(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	if _, err := store.CreateWorkout(ctx, 1, models.WorkoutInput{Title: "Treino B - Costas"}); err != nil {
		t.Fatal(err)
	}

	stats, err := New(store, discardLogger(), false).ImportReader(ctx, 1, strings.NewReader(seedA))
	if err != nil {
		t.Fatal(err)
	}
	if stats.WorkoutsInserted != 1 || stats.WorkoutsDuplicated != 1 {
		t.Errorf("stats = %+v", *stats)
	}
}

// TestImportReaderRejectsMalformed verifies malformed bodies map to the invalid-input error.
func TestImportReaderRejectsMalformed(t *testing.T) {
	_, err := New(storage.NewMemory(), discardLogger(), false).ImportReader(context.Background(), 1, strings.NewReader(`{"title":"x"}`))
	if err == nil || !strings.Contains(err.Error(), models.ErrInvalidWorkout.Error()) {
		t.Errorf("err = %v, want invalid workout", err)
	}
}

// TestImportMissingPath verifies a clear error for a nonexistent path.
func TestImportMissingPath(t *testing.T) {
	if _, err := New(storage.NewMemory(), discardLogger(), false).Import(context.Background(), 1, "/nonexistent/seed"); err == nil {
		t.Fatal("expected error for missing path")
	}
}
