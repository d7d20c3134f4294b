package server

import (
	"net/http"

	"github.com/claude/restset/internal/importer"
)

// handleImport loads a seed document (a JSON array of workouts) for the
// caller. Pass ?dry_run=true to count without writing.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	dryRun := r.URL.Query().Get("dry_run") == "true"
	stats, err := importer.New(s.imports, s.log, dryRun).ImportReader(r.Context(), userIDFromContext(r), r.Body)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
