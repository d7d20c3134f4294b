package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/claude/restset/internal/models"
	"github.com/google/uuid"
)

// newTestServer creates an httptest server that routes requests to handler functions
// keyed by method and path. Verifies the HTTP client sends correct paths and bodies.
func newTestServer(t *testing.T, handlers map[string]http.HandlerFunc) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h, ok := handlers[r.Method+" "+r.URL.Path]
		if !ok {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			http.NotFound(w, r)
			return
		}
		h(w, r)
	}))
}

func writeTestJSON(t *testing.T, w http.ResponseWriter, status int, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		t.Fatal(err)
	}
}

var testWorkoutID = uuid.MustParse("0b6c7d9e-1111-4222-8333-444455556666")

// TestListWorkouts verifies the bearer token is forwarded and the array parsed.
func TestListWorkouts(t *testing.T) {
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"GET /api/v1/workouts": func(w http.ResponseWriter, r *http.Request) {
			if got := r.Header.Get("Authorization"); got != "Bearer tok" {
				t.Errorf("Authorization = %q, want Bearer tok", got)
			}
			writeTestJSON(t, w, http.StatusOK, []models.Workout{
				{ID: testWorkoutID, Title: "Treino A", Exercises: []models.Exercise{{ID: "bench", Name: "Supino", Sets: 3}}},
			})
		},
	})
	defer ts.Close()

	workouts, err := NewHTTPClient(ts.URL+"/", "tok").ListWorkouts(context.Background(), 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(workouts) != 1 || workouts[0].Exercises[0].ID != "bench" {
		t.Errorf("workouts = %+v", workouts)
	}
}

// TestCompleteSetPath verifies the set endpoint path and the state decoding.
func TestCompleteSetPath(t *testing.T) {
	start := int64(1000)
	duration := 60
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"POST /api/v1/workouts/" + testWorkoutID.String() + "/progress/bench/sets/0": func(w http.ResponseWriter, r *http.Request) {
			writeTestJSON(t, w, http.StatusOK, models.ExerciseState{
				CompletedSeries: []int{0},
				TimerActive:     true,
				TimerStartTime:  &start,
				TimerDuration:   &duration,
			})
		},
	})
	defer ts.Close()

	st, err := NewHTTPClient(ts.URL, "").CompleteSet(context.Background(), 1, testWorkoutID, "bench", 0)
	if err != nil {
		t.Fatal(err)
	}
	if !st.TimerActive || *st.TimerDuration != 60 {
		t.Errorf("state = %+v", st)
	}
}

// TestSetCompletedBody verifies the switch position is sent as JSON.
func TestSetCompletedBody(t *testing.T) {
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"POST /api/v1/workouts/" + testWorkoutID.String() + "/progress/bench/complete": func(w http.ResponseWriter, r *http.Request) {
			var body struct {
				Completed bool `json:"completed"`
			}
			if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
				t.Errorf("decode body: %v", err)
			}
			if !body.Completed {
				t.Error("completed = false, want true")
			}
			writeTestJSON(t, w, http.StatusOK, models.CompletedState(3))
		},
	})
	defer ts.Close()

	st, err := NewHTTPClient(ts.URL, "").SetCompleted(context.Background(), 1, testWorkoutID, "bench", true)
	if err != nil {
		t.Fatal(err)
	}
	if !st.Completed || len(st.CompletedSeries) != 3 {
		t.Errorf("state = %+v", st)
	}
}

// TestHTTPClientAPIError verifies non-2xx responses surface the server's error message.
func TestHTTPClientAPIError(t *testing.T) {
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"POST /api/v1/workouts/" + testWorkoutID.String() + "/progress/bench/sets/2": func(w http.ResponseWriter, r *http.Request) {
			writeTestJSON(t, w, http.StatusConflict, map[string]string{"error": "set cannot be completed now"})
		},
		"POST /api/v1/workouts/" + testWorkoutID.String() + "/progress/finish": func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("boom"))
		},
	})
	defer ts.Close()

	client := NewHTTPClient(ts.URL, "")
	_, err := client.CompleteSet(context.Background(), 1, testWorkoutID, "bench", 2)
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusConflict || apiErr.Message != "set cannot be completed now" {
		t.Errorf("apiErr = %+v", apiErr)
	}

	err = client.FinishWorkout(context.Background(), 1, testWorkoutID)
	if !errors.As(err, &apiErr) || apiErr.Message != "boom" {
		t.Errorf("finish err = %v", err)
	}
}

// TestProgress verifies the progress view decoding.
func TestProgress(t *testing.T) {
	ts := newTestServer(t, map[string]http.HandlerFunc{
		"GET /api/v1/workouts/" + testWorkoutID.String() + "/progress": func(w http.ResponseWriter, r *http.Request) {
			writeTestJSON(t, w, http.StatusOK, models.ProgressView{
				WorkoutID:      testWorkoutID,
				TotalExercises: 2,
				Exercises:      []models.ExerciseProgress{{ExerciseID: "bench", RemainingSeconds: 42}},
			})
		},
	})
	defer ts.Close()

	view, err := NewHTTPClient(ts.URL, "").Progress(context.Background(), 1, testWorkoutID)
	if err != nil {
		t.Fatal(err)
	}
	if view.TotalExercises != 2 || view.Exercises[0].RemainingSeconds != 42 {
		t.Errorf("view = %+v", view)
	}
}
