package models

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"
)

// ExerciseState is the in-progress state of one exercise during a workout.
// TimerStartTime is milliseconds since the Unix epoch, TimerDuration is seconds.
type ExerciseState struct {
	Completed       bool   `json:"completed"`
	CurrentSeries   int    `json:"currentSeries"`
	CompletedSeries []int  `json:"completedSeries"`
	TimerActive     bool   `json:"timerActive"`
	TimerStartTime  *int64 `json:"timerStartTime"`
	TimerDuration   *int   `json:"timerDuration"`
}

// DefaultState returns the state of an exercise nobody has touched yet.
func DefaultState() ExerciseState {
	return ExerciseState{CompletedSeries: []int{}}
}

// TimerFields is the rest timer metadata. Start and duration always travel together;
// a TimerFields with either one nil describes "no active timer".
type TimerFields struct {
	StartTime *int64 `json:"timerStartTime"`
	Duration  *int   `json:"timerDuration"`
}

// StartTimer returns timer fields for a rest period beginning at start.
func StartTimer(start time.Time, rest time.Duration) *TimerFields {
	ms := start.UnixMilli()
	secs := int(rest / time.Second)
	return &TimerFields{StartTime: &ms, Duration: &secs}
}

// ClearTimer returns timer fields describing no active timer.
func ClearTimer() *TimerFields {
	return &TimerFields{}
}

// StatePatch is a partial ExerciseState. Nil fields keep the existing value.
type StatePatch struct {
	Completed       *bool        `json:"completed,omitempty"`
	CurrentSeries   *int         `json:"currentSeries,omitempty"`
	CompletedSeries []int        `json:"completedSeries,omitempty"`
	Timer           *TimerFields `json:"timer,omitempty"`
}

// Merge overlays patch on base and returns the merged record. The timer
// invariant is enforced on the result: timerActive is true iff both start and
// duration are present.
func Merge(base ExerciseState, patch StatePatch) ExerciseState {
	out := base.Clone()
	if patch.Completed != nil {
		out.Completed = *patch.Completed
	}
	if patch.CurrentSeries != nil {
		out.CurrentSeries = *patch.CurrentSeries
	}
	if patch.CompletedSeries != nil {
		out.CompletedSeries = slices.Clone(patch.CompletedSeries)
	}
	if patch.Timer != nil {
		out.TimerStartTime = patch.Timer.StartTime
		out.TimerDuration = patch.Timer.Duration
		out.TimerActive = true
	}
	out.fixTimer()
	return out
}

// Clone returns a deep copy.
func (s ExerciseState) Clone() ExerciseState {
	out := s
	out.CompletedSeries = slices.Clone(s.CompletedSeries)
	if out.CompletedSeries == nil {
		out.CompletedSeries = []int{}
	}
	if s.TimerStartTime != nil {
		v := *s.TimerStartTime
		out.TimerStartTime = &v
	}
	if s.TimerDuration != nil {
		v := *s.TimerDuration
		out.TimerDuration = &v
	}
	return out
}

func (s *ExerciseState) fixTimer() {
	if !s.TimerActive || s.TimerStartTime == nil || s.TimerDuration == nil {
		s.TimerActive = false
		s.TimerStartTime = nil
		s.TimerDuration = nil
	}
}

// TimerStart returns the wall-clock start of the active timer.
func (s ExerciseState) TimerStart() time.Time {
	if s.TimerStartTime == nil {
		return time.Time{}
	}
	return time.UnixMilli(*s.TimerStartTime)
}

// TimerLength returns the configured rest of the active timer.
func (s ExerciseState) TimerLength() time.Duration {
	if s.TimerDuration == nil {
		return 0
	}
	return time.Duration(*s.TimerDuration) * time.Second
}

// IsSetDone reports whether set index i has been completed.
func (s ExerciseState) IsSetDone(i int) bool {
	return slices.Contains(s.CompletedSeries, i)
}

// NextSeries returns the smallest set index not yet completed, capped at totalSets-1.
func (s ExerciseState) NextSeries(totalSets int) int {
	if totalSets <= 0 {
		return 0
	}
	for i := range totalSets {
		if !s.IsSetDone(i) {
			return i
		}
	}
	return totalSets - 1
}

// CompletedState is the state of an exercise whose sets were all done.
func CompletedState(totalSets int) ExerciseState {
	st := DefaultState()
	st.Completed = true
	for i := range totalSets {
		st.CompletedSeries = append(st.CompletedSeries, i)
	}
	if totalSets > 0 {
		st.CurrentSeries = totalSets - 1
	}
	return st
}

// Reconcile fits st to an exercise that now has totalSets sets. Completed
// indices past the end are dropped, completion is recomputed from the
// remaining indices and currentSeries is moved back in range.
func Reconcile(st ExerciseState, totalSets int) ExerciseState {
	out := st.Clone()
	if totalSets < 1 {
		totalSets = 1
	}
	kept := out.CompletedSeries[:0]
	for _, i := range out.CompletedSeries {
		if i >= 0 && i < totalSets {
			kept = append(kept, i)
		}
	}
	out.CompletedSeries = kept
	if out.CurrentSeries < 0 {
		out.CurrentSeries = 0
	}

	if len(out.CompletedSeries) == totalSets {
		out.Completed = true
		out.CurrentSeries = totalSets - 1
		out.TimerActive = false
		out.fixTimer()
		return out
	}

	out.Completed = false
	if !out.TimerActive {
		out.CurrentSeries = out.NextSeries(totalSets)
	} else if out.CurrentSeries >= totalSets {
		out.CurrentSeries = totalSets - 1
	}
	return out
}

// EncodeStates serializes a state mapping for local persistence.
func EncodeStates(states map[string]ExerciseState) ([]byte, error) {
	data, err := json.Marshal(states)
	if err != nil {
		return nil, fmt.Errorf("encoding exercise states: %w", err)
	}
	return data, nil
}

// DecodeStates parses persisted states, coercing every field the way loaded
// data must be treated: booleans by truthiness, numbers defaulting to 0,
// arrays defaulting to empty. Entries that are not objects are dropped.
// Only a payload that is not a JSON object at all returns an error.
func DecodeStates(data []byte) (map[string]ExerciseState, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding exercise states: %w", err)
	}
	out := make(map[string]ExerciseState, len(raw))
	for id, v := range raw {
		obj, ok := v.(map[string]any)
		if !ok {
			continue
		}
		out[id] = coerceState(obj)
	}
	return out, nil
}

// maxStoredNumber bounds set indices and timer seconds read from storage.
const maxStoredNumber = math.MaxInt32

// maxStoredMillis bounds stored timer start times (year 2286 in Unix millis).
const maxStoredMillis = 1e13

func coerceState(obj map[string]any) ExerciseState {
	st := DefaultState()
	st.Completed = truthy(obj["completed"])
	if n, ok := number(obj["currentSeries"]); ok && n > 0 && n <= maxStoredNumber {
		st.CurrentSeries = int(n)
	}
	if arr, ok := obj["completedSeries"].([]any); ok {
		for _, item := range arr {
			n, ok := number(item)
			if !ok || n < 0 || n > maxStoredNumber || n != math.Trunc(n) {
				continue
			}
			if !slices.Contains(st.CompletedSeries, int(n)) {
				st.CompletedSeries = append(st.CompletedSeries, int(n))
			}
		}
		slices.Sort(st.CompletedSeries)
	}
	st.TimerActive = truthy(obj["timerActive"])
	if n, ok := number(obj["timerStartTime"]); ok && n >= 0 && n <= maxStoredMillis {
		ms := int64(n)
		st.TimerStartTime = &ms
	}
	if n, ok := number(obj["timerDuration"]); ok && n >= 0 && n <= maxStoredNumber {
		secs := int(n)
		st.TimerDuration = &secs
	}
	if st.Completed {
		st.TimerActive = false
	}
	st.fixTimer()
	return st
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case float64:
		return t != 0 && !math.IsNaN(t)
	case string:
		return t != ""
	default:
		return true
	}
}

func number(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return 0, false
		}
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	case bool:
		if t {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}
