package progress

import (
	"errors"
	"log/slog"
	"maps"
	"sync"

	"github.com/claude/restset/internal/models"
	"github.com/claude/restset/internal/observability"
)

// Tracker owns the exercise state mapping of one workout and writes it
// through to a Store after every mutation.
//
// Store failures never reach callers. A failed write is logged and the
// tracker keeps working from memory only for the rest of its life.
type Tracker struct {
	mu         sync.Mutex
	key        string
	store      Store
	log        *slog.Logger
	states     map[string]models.ExerciseState
	memoryOnly bool
}

// Open loads the persisted states for workoutID. Corrupted data is discarded.
func Open(workoutID string, store Store, log *slog.Logger) *Tracker {
	t := &Tracker{
		key:    StateKey(workoutID),
		store:  store,
		log:    log.With("workout_id", workoutID),
		states: make(map[string]models.ExerciseState),
	}
	t.load()
	return t
}

func (t *Tracker) load() {
	data, err := t.store.Get(t.key)
	if errors.Is(err, ErrNotFound) {
		return
	}
	if err != nil {
		t.log.Error("loading exercise states", "error", err)
		observability.RecordPersistFailure("get")
		return
	}

	states, err := models.DecodeStates(data)
	if err != nil {
		t.log.Warn("discarding corrupted exercise states", "error", err)
		observability.RecordCorruptedState()
		if err := t.store.Delete(t.key); err != nil {
			t.log.Error("removing corrupted exercise states", "error", err)
			observability.RecordPersistFailure("delete")
		}
		return
	}
	t.states = states
}

// Get returns the state of exerciseID, or the default state when absent.
func (t *Tracker) Get(exerciseID string) models.ExerciseState {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.states[exerciseID]
	if !ok {
		return models.DefaultState()
	}
	return st.Clone()
}

// Update merges patch into the state of exerciseID and persists the mapping.
func (t *Tracker) Update(exerciseID string, patch models.StatePatch) models.ExerciseState {
	t.mu.Lock()
	defer t.mu.Unlock()
	base, ok := t.states[exerciseID]
	if !ok {
		base = models.DefaultState()
	}
	st := models.Merge(base, patch)
	t.states[exerciseID] = st
	t.persist()
	return st.Clone()
}

// Replace stores st as the full state of exerciseID.
func (t *Tracker) Replace(exerciseID string, st models.ExerciseState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.states[exerciseID] = st.Clone()
	t.persist()
}

// ResetExercise drops exerciseID; the next Get returns the default state.
func (t *Tracker) ResetExercise(exerciseID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.states, exerciseID)
	t.persist()
}

// ResetWorkout clears every state and removes the persisted entry.
func (t *Tracker) ResetWorkout() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.states = make(map[string]models.ExerciseState)
	// Delete even when degraded so stale progress is not resumed on restart.
	if err := t.store.Delete(t.key); err != nil {
		t.log.Error("clearing exercise states", "error", err)
		observability.RecordPersistFailure("delete")
	}
}

// Snapshot returns a copy of the whole mapping.
func (t *Tracker) Snapshot() map[string]models.ExerciseState {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]models.ExerciseState, len(t.states))
	for id, st := range maps.All(t.states) {
		out[id] = st.Clone()
	}
	return out
}

// Degraded reports whether persistence was abandoned after a failure.
func (t *Tracker) Degraded() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.memoryOnly
}

// persist must be called with mu held.
func (t *Tracker) persist() {
	if t.memoryOnly {
		return
	}
	data, err := models.EncodeStates(t.states)
	if err == nil {
		err = t.store.Set(t.key, data)
	}
	if err != nil {
		t.log.Error("persisting exercise states, continuing in memory", "error", err)
		observability.RecordPersistFailure("set")
		t.memoryOnly = true
	}
}
