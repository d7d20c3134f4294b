package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"testing"
	"time"

	"github.com/claude/restset/internal/models"
	"github.com/claude/restset/internal/progress"
	"github.com/claude/restset/internal/timer"
	"github.com/google/uuid"
)

var t0 = time.UnixMilli(0)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fixture struct {
	clock   *timer.ManualClock
	store   *progress.MemoryStore
	session *Session
	changes chan string
}

func newFixture(t *testing.T, exercises ...models.Exercise) *fixture {
	t.Helper()
	f := &fixture{
		clock:   timer.NewManualClock(t0),
		store:   progress.NewMemoryStore(),
		changes: make(chan string, 64),
	}
	f.session = f.open(exercises...)
	t.Cleanup(f.session.Close)
	return f
}

func (f *fixture) open(exercises ...models.Exercise) *Session {
	id := uuid.MustParse("6f1c1b2e-0000-4000-8000-000000000001")
	tracker := progress.Open(id.String(), f.store, discardLogger())
	s := New(id, exercises, tracker, Config{
		Clock: f.clock,
		Log:   discardLogger(),
		OnStateChange: func(exerciseID string, _ models.ExerciseState) {
			f.changes <- exerciseID
		},
	})
	s.Resume()
	return s
}

func bench() models.Exercise {
	return models.Exercise{ID: "bench", Name: "Supino Reto", Sets: 3, Reps: 10, Rest: 60}
}

func single() models.Exercise {
	return models.Exercise{ID: "plank", Name: "Prancha", Sets: 1, Rest: 30}
}

// TestCompleteNonFinalSetStartsTimer covers the 3-set / 60s rest scenario up to expiry.
func TestCompleteNonFinalSetStartsTimer(t *testing.T) {
	f := newFixture(t, bench())

	st, err := f.session.CompleteSet("bench", 0)
	if err != nil {
		t.Fatalf("CompleteSet: %v", err)
	}
	if st.CurrentSeries != 0 || !reflect.DeepEqual(st.CompletedSeries, []int{0}) {
		t.Errorf("state = %+v", st)
	}
	if !st.TimerActive || *st.TimerStartTime != 0 || *st.TimerDuration != 60 {
		t.Errorf("timer = active:%v start:%v duration:%v, want true/0/60",
			st.TimerActive, st.TimerStartTime, st.TimerDuration)
	}

	f.clock.Set(t0.Add(61 * time.Second))
	f.session.SetVisible(true)

	got := f.session.State("bench")
	if got.CurrentSeries != 1 || got.TimerActive {
		t.Errorf("after expiry state = %+v, want currentSeries 1 without timer", got)
	}
}

// TestTickAdvancesSet verifies that the periodic tick alone expires the timer.
func TestTickAdvancesSet(t *testing.T) {
	f := newFixture(t, bench())
	if _, err := f.session.CompleteSet("bench", 0); err != nil {
		t.Fatal(err)
	}
	<-f.changes // set completion

	f.clock.Advance(61 * time.Second)

	select {
	case <-f.changes:
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not expire on tick")
	}
	if got := f.session.State("bench"); got.CurrentSeries != 1 || got.TimerActive {
		t.Errorf("state = %+v", got)
	}
}

// TestCompleteFinalSetSkipsTimer covers the single-set scenario.
func TestCompleteFinalSetSkipsTimer(t *testing.T) {
	f := newFixture(t, single())

	st, err := f.session.CompleteSet("plank", 0)
	if err != nil {
		t.Fatal(err)
	}
	if !st.Completed || st.TimerActive || !reflect.DeepEqual(st.CompletedSeries, []int{0}) {
		t.Errorf("state = %+v, want completed without timer", st)
	}
	if f.clock.Tickers() != 0 {
		t.Errorf("a ticker was started for the final set")
	}
}

// TestCompleteSetRejected verifies that ineligible sets leave the state unchanged.
func TestCompleteSetRejected(t *testing.T) {
	f := newFixture(t, bench())

	before := f.session.State("bench")
	if _, err := f.session.CompleteSet("bench", 1); !errors.Is(err, ErrSetRejected) {
		t.Errorf("out of order: err = %v, want ErrSetRejected", err)
	}
	if got := f.session.State("bench"); !reflect.DeepEqual(got, before) {
		t.Errorf("state changed on rejected set: %+v", got)
	}

	if _, err := f.session.CompleteSet("bench", 0); err != nil {
		t.Fatal(err)
	}
	during := f.session.State("bench")
	if _, err := f.session.CompleteSet("bench", 0); !errors.Is(err, ErrSetRejected) {
		t.Errorf("timer running: err = %v, want ErrSetRejected", err)
	}
	if got := f.session.State("bench"); !reflect.DeepEqual(got, during) {
		t.Errorf("state changed while timer running: %+v", got)
	}

	if _, err := f.session.CompleteSet("missing", 0); !errors.Is(err, models.ErrExerciseNotFound) {
		t.Errorf("unknown exercise: err = %v", err)
	}
}

// TestFullExercise walks every set through its rest period.
func TestFullExercise(t *testing.T) {
	f := newFixture(t, bench())

	for i := range 3 {
		st, err := f.session.CompleteSet("bench", i)
		if err != nil {
			t.Fatalf("set %d: %v", i, err)
		}
		if i < 2 {
			f.clock.Set(f.clock.Now().Add(60 * time.Second))
			f.session.SetVisible(true)
			continue
		}
		if !st.Completed || st.CurrentSeries != 2 {
			t.Errorf("final state = %+v", st)
		}
	}

	if _, err := f.session.CompleteSet("bench", 2); !errors.Is(err, ErrSetRejected) {
		t.Errorf("completed exercise accepted another set: %v", err)
	}
}

// TestResumeExpiredTimer verifies that a timer persisted by a previous process
// whose rest already elapsed fires immediately on load.
func TestResumeExpiredTimer(t *testing.T) {
	f := newFixture(t, bench())
	if _, err := f.session.CompleteSet("bench", 0); err != nil {
		t.Fatal(err)
	}
	f.session.Close()

	f.clock.Set(t0.Add(5 * time.Minute))
	reloaded := f.open(bench())
	defer reloaded.Close()

	got := reloaded.State("bench")
	if got.CurrentSeries != 1 || got.TimerActive {
		t.Errorf("state = %+v, want advanced to set 1", got)
	}
	if f.clock.Tickers() != 0 {
		t.Errorf("tickers = %d, want 0", f.clock.Tickers())
	}
}

// TestResumeRunningTimer verifies that a reloaded timer keeps counting from its start.
func TestResumeRunningTimer(t *testing.T) {
	f := newFixture(t, bench())
	if _, err := f.session.CompleteSet("bench", 0); err != nil {
		t.Fatal(err)
	}
	f.session.Close()

	f.clock.Set(t0.Add(20500 * time.Millisecond))
	reloaded := f.open(bench())
	defer reloaded.Close()

	view := reloaded.View()
	if len(view.Exercises) != 1 {
		t.Fatalf("exercises = %d", len(view.Exercises))
	}
	if got := view.Exercises[0].RemainingSeconds; got != 40 {
		t.Errorf("remaining = %d, want 40", got)
	}
	if !view.Exercises[0].State.TimerActive {
		t.Error("timer not active after reload")
	}
}

// TestMarkAllComplete verifies that the manual switch completes every set and stops the timer.
func TestMarkAllComplete(t *testing.T) {
	f := newFixture(t, bench())
	if _, err := f.session.CompleteSet("bench", 0); err != nil {
		t.Fatal(err)
	}

	st, err := f.session.SetCompleted("bench", true)
	if err != nil {
		t.Fatal(err)
	}
	if !st.Completed || st.TimerActive || !reflect.DeepEqual(st.CompletedSeries, []int{0, 1, 2}) {
		t.Errorf("state = %+v", st)
	}
	if f.clock.Tickers() != 0 {
		t.Errorf("timer still ticking after mark all complete")
	}

	st, err = f.session.SetCompleted("bench", false)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(st, models.DefaultState()) {
		t.Errorf("switch off state = %+v, want default", st)
	}
}

// TestResetExercise verifies that a reset exercise reads as default.
func TestResetExercise(t *testing.T) {
	f := newFixture(t, bench())
	if _, err := f.session.CompleteSet("bench", 0); err != nil {
		t.Fatal(err)
	}
	if err := f.session.ResetExercise("bench"); err != nil {
		t.Fatal(err)
	}
	if got := f.session.State("bench"); !reflect.DeepEqual(got, models.DefaultState()) {
		t.Errorf("state = %+v, want default", got)
	}
	if err := f.session.ResetExercise("missing"); !errors.Is(err, models.ErrExerciseNotFound) {
		t.Errorf("err = %v", err)
	}
}

// TestFinish verifies that finishing clears all progress and the persisted entry.
func TestFinish(t *testing.T) {
	f := newFixture(t, bench(), single())
	if _, err := f.session.CompleteSet("bench", 0); err != nil {
		t.Fatal(err)
	}
	if _, err := f.session.CompleteSet("plank", 0); err != nil {
		t.Fatal(err)
	}

	f.session.Finish()

	view := f.session.View()
	if view.CompletedExercises != 0 {
		t.Errorf("completed = %d after finish", view.CompletedExercises)
	}
	for _, ex := range view.Exercises {
		if !reflect.DeepEqual(ex.State, models.DefaultState()) {
			t.Errorf("%s state = %+v", ex.ExerciseID, ex.State)
		}
	}
	if _, err := f.store.Get(progress.StateKey(f.session.WorkoutID().String())); !errors.Is(err, progress.ErrNotFound) {
		t.Errorf("persisted progress survived finish: %v", err)
	}
}

// TestSyncReconcilesEditedExercise verifies the policy for set counts edited mid-workout.
func TestSyncReconcilesEditedExercise(t *testing.T) {
	f := newFixture(t, bench(), single())
	for i := range 2 {
		if _, err := f.session.CompleteSet("bench", i); err != nil {
			t.Fatal(err)
		}
		f.clock.Set(f.clock.Now().Add(time.Minute))
		f.session.SetVisible(true)
	}

	edited := bench()
	edited.Sets = 2
	f.session.Sync([]models.Exercise{edited})

	st := f.session.State("bench")
	if !st.Completed || st.CurrentSeries != 1 {
		t.Errorf("state = %+v, want completed at set 1", st)
	}
	if got := f.session.View().TotalExercises; got != 1 {
		t.Errorf("total exercises = %d, want 1 after removal", got)
	}
}

// TestWatchVisibility verifies that visibility signals trigger a recompute.
func TestWatchVisibility(t *testing.T) {
	f := newFixture(t, bench())
	if _, err := f.session.CompleteSet("bench", 0); err != nil {
		t.Fatal(err)
	}
	<-f.changes

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	visibility := make(chan bool)
	go f.session.WatchVisibility(ctx, visibility)

	f.clock.Set(t0.Add(2 * time.Minute))
	visibility <- false
	visibility <- true

	select {
	case <-f.changes:
	case <-time.After(2 * time.Second):
		t.Fatal("visibility did not expire the timer")
	}
	if got := f.session.State("bench"); got.CurrentSeries != 1 {
		t.Errorf("currentSeries = %d, want 1", got.CurrentSeries)
	}
}

// TestViewCounts verifies the summary counters of the view.
func TestViewCounts(t *testing.T) {
	f := newFixture(t, bench(), single())
	if _, err := f.session.CompleteSet("plank", 0); err != nil {
		t.Fatal(err)
	}
	view := f.session.View()
	if view.TotalExercises != 2 || view.CompletedExercises != 1 {
		t.Errorf("view = %d/%d, want 1/2", view.CompletedExercises, view.TotalExercises)
	}
	if view.Exercises[0].ExerciseID != "bench" || view.Exercises[1].ExerciseID != "plank" {
		t.Error("view does not follow exercise order")
	}
	if view.PersistenceDegraded {
		t.Error("unexpected degraded persistence")
	}
}

// TestExpireAfterClose verifies a timer firing after Close leaves the stored
// progress alone.
func TestExpireAfterClose(t *testing.T) {
	f := newFixture(t, bench())
	if _, err := f.session.CompleteSet("bench", 0); err != nil {
		t.Fatal(err)
	}
	<-f.changes

	f.session.Close()
	f.clock.Set(t0.Add(2 * time.Minute))
	f.session.expire("bench")

	select {
	case id := <-f.changes:
		t.Errorf("closed session reported change of %q", id)
	default:
	}
	st := progress.Open(f.session.workoutID.String(), f.store, discardLogger()).Get("bench")
	if !st.TimerActive || st.CurrentSeries != 0 {
		t.Errorf("stored state = %+v, want untouched running timer", st)
	}
}
