package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
)

// keepAliveInterval bounds how long an idle event stream stays silent.
const keepAliveInterval = 25 * time.Second

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	view, err := s.svc.Progress(r.Context(), userIDFromContext(r), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleCompleteSet(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid set index"})
		return
	}
	st, err := s.svc.CompleteSet(r.Context(), userIDFromContext(r), id, chi.URLParam(r, "exerciseID"), index)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleSetCompleted(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var body struct {
		Completed *bool `json:"completed"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Completed == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "completed is required"})
		return
	}
	st, err := s.svc.SetCompleted(r.Context(), userIDFromContext(r), id, chi.URLParam(r, "exerciseID"), *body.Completed)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleResetExercise(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if err := s.svc.ResetExercise(r.Context(), userIDFromContext(r), id, chi.URLParam(r, "exerciseID")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleFinish(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if err := s.svc.FinishWorkout(r.Context(), userIDFromContext(r), id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleVisibility(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var body struct {
		Visible bool `json:"visible"`
	}
	if !decodeBody(w, r, &body) {
		return
	}
	view, err := s.svc.SetVisible(r.Context(), userIDFromContext(r), id, body.Visible)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// handleEvents streams progress events for one workout as server-sent events.
// The first event is the full progress view.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "streaming not supported"})
		return
	}

	userID := userIDFromContext(r)
	view, err := s.svc.Progress(r.Context(), userID, id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	events, cancel, err := s.svc.Subscribe(r.Context(), userID, id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	defer cancel()

	// An open stream means the client is showing the workout: connecting
	// counts as becoming visible.
	visibility := make(chan bool, 1)
	visibility <- true
	if err := s.svc.WatchVisibility(r.Context(), userID, id, visibility); err != nil {
		s.writeError(w, err)
		return
	}
	defer close(visibility)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	fmt.Fprintf(w, "event: progress\ndata: %s\n\n", mustJSON(view))
	flusher.Flush()

	ping := time.NewTicker(keepAliveInterval)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ping.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case ev, ok := <-events:
			if !ok {
				return
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, mustJSON(ev))
			flusher.Flush()
		}
	}
}

func mustJSON(v any) string {
	data, _ := json.Marshal(v)
	return string(data)
}
