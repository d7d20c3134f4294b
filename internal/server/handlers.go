package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/claude/restset/internal/models"
	"github.com/claude/restset/internal/session"
	"github.com/claude/restset/internal/storage"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, userInfoFromContext(r))
}

func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	n, err := s.svc.DeleteAccount(r.Context(), userIDFromContext(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"workouts_deleted": n})
}

func (s *Server) handleListWorkouts(w http.ResponseWriter, r *http.Request) {
	workouts, err := s.svc.ListWorkouts(r.Context(), userIDFromContext(r))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if workouts == nil {
		workouts = []models.Workout{}
	}
	writeJSON(w, http.StatusOK, workouts)
}

func (s *Server) handleCreateWorkout(w http.ResponseWriter, r *http.Request) {
	var in models.WorkoutInput
	if !decodeBody(w, r, &in) {
		return
	}
	workout, err := s.svc.CreateWorkout(r.Context(), userIDFromContext(r), in)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, workout)
}

func (s *Server) handleReorderWorkouts(w http.ResponseWriter, r *http.Request) {
	var body struct {
		IDs []uuid.UUID `json:"ids"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if err := s.svc.ReorderWorkouts(r.Context(), userIDFromContext(r), body.IDs); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleGetWorkout(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	workout, err := s.svc.GetWorkout(r.Context(), userIDFromContext(r), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, workout)
}

func (s *Server) handleUpdateWorkout(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var upd models.WorkoutUpdate
	if !decodeBody(w, r, &upd) {
		return
	}
	workout, err := s.svc.UpdateWorkout(r.Context(), userIDFromContext(r), id, upd)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, workout)
}

func (s *Server) handleDeleteWorkout(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if err := s.svc.DeleteWorkout(r.Context(), userIDFromContext(r), id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddExercise(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var ex models.Exercise
	if !decodeBody(w, r, &ex) {
		return
	}
	workout, created, err := s.svc.AddExercise(r.Context(), userIDFromContext(r), id, ex)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"workout": workout, "exercise": created})
}

func (s *Server) handleUpdateExercise(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var upd models.ExerciseUpdate
	if !decodeBody(w, r, &upd) {
		return
	}
	workout, err := s.svc.UpdateExercise(r.Context(), userIDFromContext(r), id, chi.URLParam(r, "exerciseID"), upd)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, workout)
}

func (s *Server) handleDeleteExercise(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	workout, err := s.svc.DeleteExercise(r.Context(), userIDFromContext(r), id, chi.URLParam(r, "exerciseID"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, workout)
}

func (s *Server) handleReorderExercises(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var body struct {
		IDs []string `json:"ids"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	workout, err := s.svc.ReorderExercises(r.Context(), userIDFromContext(r), id, body.IDs)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, workout)
}

// writeError maps domain errors to HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, models.ErrExerciseNotFound):
		status = http.StatusNotFound
	case errors.Is(err, models.ErrInvalidWorkout), errors.Is(err, models.ErrInvalidOrder):
		status = http.StatusBadRequest
	case errors.Is(err, session.ErrSetRejected):
		status = http.StatusConflict
	}
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON: " + err.Error()})
		return false
	}
	return true
}

func parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid workout id"})
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
