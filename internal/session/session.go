// Package session runs the set-completion flow of a workout: it accepts
// completed sets, drives the rest timer of each exercise and records every
// transition in the workout's progress tracker.
package session

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"reflect"
	"sync"
	"time"

	"github.com/claude/restset/internal/models"
	"github.com/claude/restset/internal/observability"
	"github.com/claude/restset/internal/progress"
	"github.com/claude/restset/internal/timer"
	"github.com/google/uuid"
)

// ErrSetRejected is returned when a set is not eligible for completion: it is
// not the current set, a rest timer is running or the exercise is done.
var ErrSetRejected = errors.New("set cannot be completed now")

// Config holds the collaborators of a Session.
type Config struct {
	Clock    timer.Clock
	Interval time.Duration
	Log      *slog.Logger
	// OnStateChange is called after every state transition of an exercise.
	OnStateChange func(exerciseID string, st models.ExerciseState)
	// Cue is the best-effort alert fired when a rest period ends.
	Cue func(exerciseID string) error
}

// Session is the live progress of one workout.
type Session struct {
	workoutID uuid.UUID
	tracker   *progress.Tracker
	cfg       Config
	log       *slog.Logger

	mu        sync.Mutex
	exercises map[string]models.Exercise
	order     []string
	timers    map[string]*timer.Timer
	closed    bool
}

// New creates a session for the workout's exercises. Call Resume to restart
// timers persisted by a previous process.
func New(workoutID uuid.UUID, exercises []models.Exercise, tracker *progress.Tracker, cfg Config) *Session {
	if cfg.Clock == nil {
		cfg.Clock = timer.System
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
	s := &Session{
		workoutID: workoutID,
		tracker:   tracker,
		cfg:       cfg,
		log:       cfg.Log.With("workout_id", workoutID),
		timers:    make(map[string]*timer.Timer),
	}
	s.Sync(exercises)
	return s
}

// WorkoutID returns the workout this session tracks.
func (s *Session) WorkoutID() uuid.UUID { return s.workoutID }

// State returns the current state of an exercise.
func (s *Session) State(exerciseID string) models.ExerciseState {
	return s.tracker.Get(exerciseID)
}

// CompleteSet marks set index of exerciseID as done. It is accepted only for
// the current set, while no timer runs and the exercise is not completed;
// otherwise the state is left untouched and ErrSetRejected is returned.
// Completing the last set completes the exercise; any other set starts the
// rest timer.
func (s *Session) CompleteSet(exerciseID string, index int) (models.ExerciseState, error) {
	s.mu.Lock()
	ex, ok := s.exercises[exerciseID]
	if !ok {
		s.mu.Unlock()
		return models.ExerciseState{}, models.ErrExerciseNotFound
	}
	st := s.tracker.Get(exerciseID)
	if st.Completed || st.TimerActive || index != st.CurrentSeries || index >= ex.Sets || st.IsSetDone(index) {
		s.mu.Unlock()
		return st, ErrSetRejected
	}

	now := s.cfg.Clock.Now()
	done := append(st.CompletedSeries, index)
	patch := models.StatePatch{CompletedSeries: done}

	var tm *timer.Timer
	if len(done) >= ex.Sets {
		completed, last := true, ex.Sets-1
		patch.Completed = &completed
		patch.CurrentSeries = &last
		patch.Timer = models.ClearTimer()
	} else {
		patch.Timer = models.StartTimer(now, ex.RestDuration())
		tm = s.timerFor(exerciseID)
	}
	st = s.tracker.Update(exerciseID, patch)
	s.mu.Unlock()

	observability.RecordSetCompleted()
	if st.Completed {
		observability.RecordExerciseCompleted()
	}
	s.log.Debug("set completed", "exercise_id", exerciseID, "set", index, "completed", st.Completed)
	s.notify(exerciseID, st)

	if tm != nil {
		tm.Start(st.TimerStart(), st.TimerLength())
	}
	return s.tracker.Get(exerciseID), nil
}

// MarkAllComplete moves an exercise straight to completed, skipping any timer.
func (s *Session) MarkAllComplete(exerciseID string) (models.ExerciseState, error) {
	s.mu.Lock()
	ex, ok := s.exercises[exerciseID]
	if !ok {
		s.mu.Unlock()
		return models.ExerciseState{}, models.ErrExerciseNotFound
	}
	if tm := s.timers[exerciseID]; tm != nil {
		tm.Stop()
	}
	wasCompleted := s.tracker.Get(exerciseID).Completed
	st := models.CompletedState(ex.Sets)
	s.tracker.Replace(exerciseID, st)
	s.mu.Unlock()

	if !wasCompleted {
		observability.RecordExerciseCompleted()
	}
	s.notify(exerciseID, st)
	return st, nil
}

// SetCompleted applies the manual completion switch: on completes every set,
// off resets the exercise.
func (s *Session) SetCompleted(exerciseID string, completed bool) (models.ExerciseState, error) {
	if completed {
		return s.MarkAllComplete(exerciseID)
	}
	if err := s.ResetExercise(exerciseID); err != nil {
		return models.ExerciseState{}, err
	}
	return s.tracker.Get(exerciseID), nil
}

// ResetExercise clears an exercise back to its default state.
func (s *Session) ResetExercise(exerciseID string) error {
	s.mu.Lock()
	if _, ok := s.exercises[exerciseID]; !ok {
		s.mu.Unlock()
		return models.ErrExerciseNotFound
	}
	if tm := s.timers[exerciseID]; tm != nil {
		tm.Stop()
	}
	s.tracker.ResetExercise(exerciseID)
	s.mu.Unlock()

	s.notify(exerciseID, models.DefaultState())
	return nil
}

// Finish ends the workout: all timers stop and all progress is cleared.
func (s *Session) Finish() {
	s.mu.Lock()
	s.stopTimers()
	s.tracker.ResetWorkout()
	ids := append([]string(nil), s.order...)
	s.mu.Unlock()

	s.log.Info("workout finished")
	for _, id := range ids {
		s.notify(id, models.DefaultState())
	}
}

// Resume restarts the timers recorded in the tracker. A timer whose rest
// period already elapsed expires immediately and advances its exercise.
func (s *Session) Resume() {
	type pending struct {
		tm       *timer.Timer
		start    time.Time
		duration time.Duration
	}

	s.mu.Lock()
	var resume []pending
	for id, st := range s.tracker.Snapshot() {
		if !st.TimerActive {
			continue
		}
		if _, ok := s.exercises[id]; !ok {
			continue
		}
		resume = append(resume, pending{s.timerFor(id), st.TimerStart(), st.TimerLength()})
	}
	s.mu.Unlock()

	for _, p := range resume {
		p.tm.Start(p.start, p.duration)
	}
}

// SetVisible reports a visibility change of the client. Becoming visible
// recomputes every running timer from the wall clock.
func (s *Session) SetVisible(visible bool) {
	if !visible {
		return
	}
	s.mu.Lock()
	timers := make([]*timer.Timer, 0, len(s.timers))
	for _, tm := range s.timers {
		timers = append(timers, tm)
	}
	s.mu.Unlock()

	for _, tm := range timers {
		tm.Check()
	}
}

// WatchVisibility feeds visibility signals from ch into SetVisible until ctx
// is done or ch is closed.
func (s *Session) WatchVisibility(ctx context.Context, ch <-chan bool) {
	for {
		select {
		case <-ctx.Done():
			return
		case visible, ok := <-ch:
			if !ok {
				return
			}
			s.SetVisible(visible)
		}
	}
}

// Sync replaces the exercise definitions and reconciles stored progress with
// them. Progress of removed exercises is dropped; progress of exercises whose
// set count changed is fitted to the new count.
func (s *Session) Sync(exercises []models.Exercise) {
	s.mu.Lock()
	s.exercises = make(map[string]models.Exercise, len(exercises))
	s.order = s.order[:0]
	for _, ex := range exercises {
		s.exercises[ex.ID] = ex
		s.order = append(s.order, ex.ID)
	}

	changed := map[string]models.ExerciseState{}
	for id, st := range s.tracker.Snapshot() {
		ex, ok := s.exercises[id]
		if !ok {
			if tm := s.timers[id]; tm != nil {
				tm.Stop()
				delete(s.timers, id)
			}
			s.tracker.ResetExercise(id)
			continue
		}
		next := models.Reconcile(st, ex.Sets)
		if reflect.DeepEqual(next, st) {
			continue
		}
		if !next.TimerActive {
			if tm := s.timers[id]; tm != nil {
				tm.Stop()
			}
		}
		s.tracker.Replace(id, next)
		changed[id] = next
	}
	s.mu.Unlock()

	for id, st := range changed {
		s.notify(id, st)
	}
}

// View returns every exercise of the workout with its state and the whole
// seconds left on its rest timer.
func (s *Session) View() models.ProgressView {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.cfg.Clock.Now()
	view := models.ProgressView{
		WorkoutID:           s.workoutID,
		Exercises:           make([]models.ExerciseProgress, 0, len(s.order)),
		TotalExercises:      len(s.order),
		PersistenceDegraded: s.tracker.Degraded(),
	}
	for _, id := range s.order {
		ex := s.exercises[id]
		st := s.tracker.Get(id)
		p := models.ExerciseProgress{
			ExerciseID: id,
			Name:       ex.Name,
			Sets:       ex.Sets,
			Rest:       ex.Rest,
			State:      st,
		}
		if st.TimerActive {
			p.RemainingSeconds = ceilSeconds(timer.Remaining(st.TimerStart(), st.TimerLength(), now))
		}
		if st.Completed {
			view.CompletedExercises++
		}
		view.Exercises = append(view.Exercises, p)
	}
	return view
}

// Close stops every timer without touching stored progress. A timer already
// expiring when Close runs no longer changes the state.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.stopTimers()
}

// Idle reports whether no rest timer is running in the workout.
func (s *Session) Idle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.tracker.Snapshot() {
		if st.TimerActive {
			return false
		}
	}
	return true
}

// stopTimers must be called with mu held.
func (s *Session) stopTimers() {
	for _, tm := range s.timers {
		tm.Stop()
	}
}

// timerFor returns the timer of exerciseID, creating it on first use. Must be
// called with mu held.
func (s *Session) timerFor(exerciseID string) *timer.Timer {
	if tm, ok := s.timers[exerciseID]; ok {
		return tm
	}
	opts := []timer.Option{timer.WithInterval(s.cfg.Interval), timer.WithLogger(s.log)}
	if s.cfg.Cue != nil {
		opts = append(opts, timer.WithAlerter(timer.AlertFunc(func() error {
			return s.cfg.Cue(exerciseID)
		})))
	}
	tm := timer.New(s.cfg.Clock, func() { s.expire(exerciseID) }, opts...)
	s.timers[exerciseID] = tm
	return tm
}

// expire is the timer callback: it advances to the next set and clears the
// timer metadata.
func (s *Session) expire(exerciseID string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	st := s.tracker.Get(exerciseID)
	if !st.TimerActive {
		s.mu.Unlock()
		return
	}
	total := st.CurrentSeries + 1
	if ex, ok := s.exercises[exerciseID]; ok {
		total = ex.Sets
	}
	next := st.NextSeries(total)
	st = s.tracker.Update(exerciseID, models.StatePatch{
		CurrentSeries: &next,
		Timer:         models.ClearTimer(),
	})
	s.mu.Unlock()

	s.log.Debug("rest over", "exercise_id", exerciseID, "current_series", next)
	s.notify(exerciseID, st)
}

func (s *Session) notify(exerciseID string, st models.ExerciseState) {
	if s.cfg.OnStateChange != nil {
		s.cfg.OnStateChange(exerciseID, st)
	}
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(math.Ceil(d.Seconds()))
}
