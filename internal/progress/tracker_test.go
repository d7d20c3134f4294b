package progress

import (
	"errors"
	"io"
	"log/slog"
	"reflect"
	"testing"
	"time"

	"github.com/claude/restset/internal/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// failingStore fails every write and counts attempts.
type failingStore struct {
	*MemoryStore
	sets int
}

func (f *failingStore) Set(string, []byte) error {
	f.sets++
	return errors.New("quota exceeded")
}

// flakyStore accepts the first ok writes, then fails every later one.
type flakyStore struct {
	*MemoryStore
	ok int
}

func (f *flakyStore) Set(key string, value []byte) error {
	if f.ok == 0 {
		return errors.New("disk full")
	}
	f.ok--
	return f.MemoryStore.Set(key, value)
}

func boolPtr(v bool) *bool { return &v }

// TestGetDefault verifies that unknown exercises read as the default state.
func TestGetDefault(t *testing.T) {
	tr := Open("w1", NewMemoryStore(), discardLogger())
	if got := tr.Get("missing"); !reflect.DeepEqual(got, models.DefaultState()) {
		t.Errorf("Get = %+v, want default", got)
	}
}

// TestUpdatePersists verifies that updates are written through and reloadable.
func TestUpdatePersists(t *testing.T) {
	store := NewMemoryStore()
	tr := Open("w1", store, discardLogger())

	tr.Update("ex", models.StatePatch{
		CompletedSeries: []int{0},
		Timer:           models.StartTimer(time.UnixMilli(0), 60*time.Second),
	})

	if _, err := store.Get(StateKey("w1")); err != nil {
		t.Fatalf("state not persisted: %v", err)
	}

	reopened := Open("w1", store, discardLogger())
	got := reopened.Get("ex")
	want := tr.Get("ex")
	if !reflect.DeepEqual(got, want) {
		t.Errorf("reloaded = %+v, want %+v", got, want)
	}
	if !got.TimerActive || *got.TimerDuration != 60 || *got.TimerStartTime != 0 {
		t.Errorf("timer not restored: %+v", got)
	}
}

// TestResetExercise verifies that a reset exercise reads as default again.
func TestResetExercise(t *testing.T) {
	tr := Open("w1", NewMemoryStore(), discardLogger())
	tr.Update("ex", models.StatePatch{Completed: boolPtr(true)})
	tr.Update("other", models.StatePatch{Completed: boolPtr(true)})

	tr.ResetExercise("ex")

	if got := tr.Get("ex"); !reflect.DeepEqual(got, models.DefaultState()) {
		t.Errorf("after reset Get = %+v, want default", got)
	}
	if !tr.Get("other").Completed {
		t.Error("reset touched another exercise")
	}
}

// TestResetWorkout verifies that the whole mapping and the persisted key are removed.
func TestResetWorkout(t *testing.T) {
	store := NewMemoryStore()
	tr := Open("w1", store, discardLogger())
	tr.Update("ex", models.StatePatch{Completed: boolPtr(true)})

	tr.ResetWorkout()

	if len(tr.Snapshot()) != 0 {
		t.Error("snapshot not empty after reset")
	}
	if _, err := store.Get(StateKey("w1")); !errors.Is(err, ErrNotFound) {
		t.Errorf("persisted entry still present: err = %v", err)
	}
}

// TestCorruptedStateDiscarded verifies that malformed JSON falls back to empty
// state and the bad entry is removed.
func TestCorruptedStateDiscarded(t *testing.T) {
	store := NewMemoryStore()
	if err := store.Set(StateKey("w1"), []byte("{broken")); err != nil {
		t.Fatal(err)
	}

	tr := Open("w1", store, discardLogger())
	if len(tr.Snapshot()) != 0 {
		t.Error("expected empty state after corrupted load")
	}
	if _, err := store.Get(StateKey("w1")); !errors.Is(err, ErrNotFound) {
		t.Errorf("corrupted entry not removed: err = %v", err)
	}
}

// TestPersistFailureDegrades verifies that a failing store switches the
// tracker to memory-only without losing in-memory updates.
func TestPersistFailureDegrades(t *testing.T) {
	store := &failingStore{MemoryStore: NewMemoryStore()}
	tr := Open("w1", store, discardLogger())

	tr.Update("ex", models.StatePatch{Completed: boolPtr(true)})
	tr.Update("ex2", models.StatePatch{Completed: boolPtr(true)})

	if !tr.Degraded() {
		t.Error("Degraded = false after write failure")
	}
	if store.sets != 1 {
		t.Errorf("store writes attempted = %d, want 1 (memory-only after first failure)", store.sets)
	}
	if !tr.Get("ex").Completed || !tr.Get("ex2").Completed {
		t.Error("in-memory state lost after persistence failure")
	}
}

// TestResetWorkoutAfterPersistFailure verifies that a degraded tracker still
// removes the persisted entry, so a reopened workout starts clean.
func TestResetWorkoutAfterPersistFailure(t *testing.T) {
	store := &flakyStore{MemoryStore: NewMemoryStore(), ok: 1}
	tr := Open("w1", store, discardLogger())

	tr.Update("bench", models.StatePatch{
		CompletedSeries: []int{0},
		Timer:           models.StartTimer(time.UnixMilli(0), time.Minute),
	})
	tr.Update("bench", models.StatePatch{Completed: boolPtr(true)})
	if !tr.Degraded() {
		t.Fatal("Degraded = false after write failure")
	}

	tr.ResetWorkout()

	if _, err := store.Get(StateKey("w1")); !errors.Is(err, ErrNotFound) {
		t.Errorf("persisted entry survived reset: err = %v", err)
	}
	if st := Open("w1", store, discardLogger()).Get("bench"); st.TimerActive || len(st.CompletedSeries) != 0 {
		t.Errorf("reopened state = %+v, want default", st)
	}
}

// TestWorkoutsIsolated verifies that keys are namespaced by workout id.
func TestWorkoutsIsolated(t *testing.T) {
	store := NewMemoryStore()
	a := Open("a", store, discardLogger())
	a.Update("ex", models.StatePatch{Completed: boolPtr(true)})

	b := Open("b", store, discardLogger())
	if b.Get("ex").Completed {
		t.Error("workout b sees workout a's state")
	}
}

// TestClearAll verifies that state and timer keys are removed and others kept.
func TestClearAll(t *testing.T) {
	store := NewMemoryStore()
	_ = store.Set(StateKey("a"), []byte("{}"))
	_ = store.Set(TimerPrefix+"ex", []byte("1"))
	_ = store.Set("theme", []byte("dark"))

	if err := ClearAll(store); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Get(StateKey("a")); !errors.Is(err, ErrNotFound) {
		t.Error("state key survived ClearAll")
	}
	if _, err := store.Get(TimerPrefix + "ex"); !errors.Is(err, ErrNotFound) {
		t.Error("timer key survived ClearAll")
	}
	if _, err := store.Get("theme"); err != nil {
		t.Error("unrelated key removed by ClearAll")
	}
}
