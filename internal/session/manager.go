package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/claude/restset/internal/models"
	"github.com/claude/restset/internal/progress"
	"github.com/claude/restset/internal/timer"
	"github.com/google/uuid"
)

// Manager keeps one Session per workout and publishes their events on a Hub.
type Manager struct {
	store    progress.Store
	hub      *Hub
	clock    timer.Clock
	interval time.Duration
	idleTTL  time.Duration
	log      *slog.Logger

	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
	lastUsed map[uuid.UUID]time.Time
}

// DefaultIdleTTL is how long an unused session stays open.
const DefaultIdleTTL = 30 * time.Minute

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithClock sets the clock used by every session's timers.
func WithClock(c timer.Clock) ManagerOption {
	return func(m *Manager) { m.clock = c }
}

// WithInterval sets the timer tick granularity.
func WithInterval(d time.Duration) ManagerOption {
	return func(m *Manager) { m.interval = d }
}

// WithIdleTTL sets how long an unused session stays open.
func WithIdleTTL(d time.Duration) ManagerOption {
	return func(m *Manager) { m.idleTTL = d }
}

// NewManager creates a Manager persisting progress to store.
func NewManager(store progress.Store, hub *Hub, log *slog.Logger, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:    store,
		hub:      hub,
		clock:    timer.System,
		interval: timer.DefaultInterval,
		idleTTL:  DefaultIdleTTL,
		log:      log,
		sessions: make(map[uuid.UUID]*Session),
		lastUsed: make(map[uuid.UUID]time.Time),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Hub returns the event hub.
func (m *Manager) Hub() *Hub { return m.hub }

// Get returns the session of w, opening it on first use. Opening loads the
// persisted progress and resumes its timers.
func (m *Manager) Get(w *models.Workout) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastUsed[w.ID] = m.clock.Now()
	if s, ok := m.sessions[w.ID]; ok {
		return s
	}

	id := w.ID
	tracker := progress.Open(id.String(), m.store, m.log)
	s := New(id, w.Exercises, tracker, Config{
		Clock:    m.clock,
		Interval: m.interval,
		Log:      m.log,
		OnStateChange: func(exerciseID string, st models.ExerciseState) {
			m.hub.Publish(Event{Type: EventState, WorkoutID: id, ExerciseID: exerciseID, State: &st})
		},
		Cue: func(exerciseID string) error {
			return m.hub.Cue(id, exerciseID)
		},
	})
	s.Resume()
	m.sessions[id] = s
	return s
}

// Refresh pushes new exercise definitions into an open session.
func (m *Manager) Refresh(w *models.Workout) {
	m.mu.Lock()
	s, ok := m.sessions[w.ID]
	m.mu.Unlock()
	if ok {
		s.Sync(w.Exercises)
	}
}

// Discard closes the session of a deleted workout and removes its persisted progress.
func (m *Manager) Discard(workoutID uuid.UUID) {
	m.mu.Lock()
	s, ok := m.sessions[workoutID]
	delete(m.sessions, workoutID)
	delete(m.lastUsed, workoutID)
	m.mu.Unlock()

	if ok {
		s.Close()
	}
	if err := m.store.Delete(progress.StateKey(workoutID.String())); err != nil {
		m.log.Error("removing progress of deleted workout", "workout_id", workoutID, "error", err)
	}
	m.hub.Publish(Event{Type: EventReset, WorkoutID: workoutID})
}

// Close stops the timers of every open session. Persisted progress is kept so
// the next process resumes where this one stopped.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		s.Close()
		delete(m.sessions, id)
		delete(m.lastUsed, id)
	}
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// EvictIdle closes sessions unused for longer than the idle TTL. Sessions
// with a running rest timer or an event subscriber stay open. Progress is
// kept in the store and reloaded by the next Get.
func (m *Manager) EvictIdle() int {
	cutoff := m.clock.Now().Add(-m.idleTTL)

	m.mu.Lock()
	var evicted []*Session
	for id, s := range m.sessions {
		if m.lastUsed[id].After(cutoff) || m.hub.Listeners(id) > 0 || !s.Idle() {
			continue
		}
		delete(m.sessions, id)
		delete(m.lastUsed, id)
		evicted = append(evicted, s)
	}
	m.mu.Unlock()

	for _, s := range evicted {
		s.Close()
	}
	if len(evicted) > 0 {
		m.log.Debug("evicted idle sessions", "count", len(evicted))
	}
	return len(evicted)
}

// Run evicts idle sessions periodically until ctx is done.
func (m *Manager) Run(ctx context.Context) {
	every := m.idleTTL / 2
	if every <= 0 {
		return
	}
	ticker := m.clock.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			m.EvictIdle()
		}
	}
}
