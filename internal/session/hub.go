package session

import (
	"errors"
	"sync"

	"github.com/claude/restset/internal/models"
	"github.com/google/uuid"
)

// Event types published to workout subscribers.
const (
	EventState    = "state"
	EventRestOver = "rest_over"
	EventReset    = "reset"
)

// VibratePattern is the pattern sent to clients with a rest_over cue.
var VibratePattern = []int{200, 100, 200}

// ErrNoListeners is returned by Cue when nobody is subscribed to the workout.
var ErrNoListeners = errors.New("no listeners for workout")

// Event is a progress notification for one workout.
type Event struct {
	Type       string                `json:"type"`
	WorkoutID  uuid.UUID             `json:"workoutId"`
	ExerciseID string                `json:"exerciseId,omitempty"`
	State      *models.ExerciseState `json:"state,omitempty"`
	Vibrate    []int                 `json:"vibrate,omitempty"`
}

// Hub fans out events to the subscribers of each workout. Slow subscribers
// miss events rather than block the publisher.
type Hub struct {
	mu   sync.Mutex
	subs map[uuid.UUID]map[chan Event]struct{}
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[uuid.UUID]map[chan Event]struct{})}
}

// Subscribe registers for events of workoutID. The returned cancel function
// unregisters and closes the channel.
func (h *Hub) Subscribe(workoutID uuid.UUID) (<-chan Event, func()) {
	ch := make(chan Event, 16)
	h.mu.Lock()
	if h.subs[workoutID] == nil {
		h.subs[workoutID] = make(map[chan Event]struct{})
	}
	h.subs[workoutID][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[workoutID], ch)
			if len(h.subs[workoutID]) == 0 {
				delete(h.subs, workoutID)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Listeners returns the number of subscribers of workoutID.
func (h *Hub) Listeners(workoutID uuid.UUID) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[workoutID])
}

// Publish delivers ev to every subscriber of its workout and returns how many
// received it.
func (h *Hub) Publish(ev Event) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for ch := range h.subs[ev.WorkoutID] {
		select {
		case ch <- ev:
			n++
		default:
		}
	}
	return n
}

// Cue publishes a rest_over event carrying the vibration pattern.
func (h *Hub) Cue(workoutID uuid.UUID, exerciseID string) error {
	n := h.Publish(Event{
		Type:       EventRestOver,
		WorkoutID:  workoutID,
		ExerciseID: exerciseID,
		Vibrate:    VibratePattern,
	})
	if n == 0 {
		return ErrNoListeners
	}
	return nil
}
