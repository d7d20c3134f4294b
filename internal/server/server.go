package server

import (
	"log/slog"
	"net/http"

	"github.com/claude/restset/internal/importer"
	"github.com/claude/restset/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server holds dependencies for HTTP handlers.
type Server struct {
	svc      *service.Service
	imports  importer.Target
	log      *slog.Logger
	apiKey   string
	identity func(http.Handler) http.Handler
	mcp      http.Handler
	router   chi.Router
}

// Option configures a Server.
type Option func(*Server)

// WithIdentity sets the middleware that maps requests to users. Defaults to DevIdentity.
func WithIdentity(mw func(http.Handler) http.Handler) Option {
	return func(s *Server) { s.identity = mw }
}

// WithMCP mounts a streamable MCP handler at /mcp behind the identity middleware.
func WithMCP(h http.Handler) Option {
	return func(s *Server) { s.mcp = h }
}

// New creates a new Server with all routes configured. Imports go through
// imports, normally the same store the service reads from.
func New(svc *service.Service, imports importer.Target, apiKey string, log *slog.Logger, opts ...Option) *Server {
	s := &Server{
		svc:      svc,
		imports:  imports,
		log:      log,
		apiKey:   apiKey,
		identity: DevIdentity,
		router:   chi.NewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Use(RequestLogging(s.log))
	s.router.Use(CORS)

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	s.router.Handle("/metrics", promhttp.Handler())

	// Bulk import (API key required, imports into the dev user unless an identity is resolved)
	s.router.Route("/api/v1/import", func(r chi.Router) {
		r.Use(APIKeyAuth(s.apiKey))
		r.Use(s.identity)
		r.Post("/", s.handleImport)
	})

	s.router.Group(func(r chi.Router) {
		r.Use(s.identity)

		if s.mcp != nil {
			r.Handle("/mcp", s.mcp)
		}

		r.Get("/api/v1/me", s.handleMe)
		r.Delete("/api/v1/me", s.handleDeleteAccount)

		r.Route("/api/v1/workouts", func(r chi.Router) {
			r.Get("/", s.handleListWorkouts)
			r.Post("/", s.handleCreateWorkout)
			r.Put("/order", s.handleReorderWorkouts)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetWorkout)
				r.Patch("/", s.handleUpdateWorkout)
				r.Delete("/", s.handleDeleteWorkout)

				r.Post("/exercises", s.handleAddExercise)
				r.Put("/exercises/order", s.handleReorderExercises)
				r.Patch("/exercises/{exerciseID}", s.handleUpdateExercise)
				r.Delete("/exercises/{exerciseID}", s.handleDeleteExercise)

				r.Get("/progress", s.handleProgress)
				r.Post("/progress/finish", s.handleFinish)
				r.Post("/progress/visibility", s.handleVisibility)
				r.Post("/progress/{exerciseID}/sets/{index}", s.handleCompleteSet)
				r.Post("/progress/{exerciseID}/complete", s.handleSetCompleted)
				r.Delete("/progress/{exerciseID}", s.handleResetExercise)

				r.Get("/events", s.handleEvents)
			})
		})
	})
}
