package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/claude/restset/internal/auth"
	"tailscale.com/client/tailscale/apitype"
)

type contextKey int

const (
	userIDKey contextKey = iota
	userInfoKey
)

// UserInfo is the identity of the caller as shown by /api/v1/me.
type UserInfo struct {
	ID          int    `json:"id"`
	Login       string `json:"login"`
	DisplayName string `json:"display_name"`
}

// Dev mode runs as a single local user.
const (
	DevLogin       = "local"
	DevDisplayName = "Local Dev User"
)

var devUser = UserInfo{ID: 1, Login: DevLogin, DisplayName: DevDisplayName}

// UserResolver maps a login to its user id, creating the user on first sight.
type UserResolver interface {
	EnsureUser(ctx context.Context, login, displayName string) (int, error)
}

// WhoIser resolves a tailnet peer address to its user.
type WhoIser interface {
	WhoIs(ctx context.Context, remoteAddr string) (*apitype.WhoIsResponse, error)
}

// userIDFromContext returns the user id stored by the identity middleware,
// defaulting to the dev user.
func userIDFromContext(r *http.Request) int {
	if id, ok := r.Context().Value(userIDKey).(int); ok {
		return id
	}
	return devUser.ID
}

func userInfoFromContext(r *http.Request) UserInfo {
	if info, ok := r.Context().Value(userInfoKey).(UserInfo); ok {
		return info
	}
	return devUser
}

func withUser(r *http.Request, info UserInfo) *http.Request {
	ctx := context.WithValue(r.Context(), userIDKey, info.ID)
	ctx = context.WithValue(ctx, userInfoKey, info)
	return r.WithContext(ctx)
}

// DevIdentity attributes every request to user 1.
func DevIdentity(next http.Handler) http.Handler {
	return StaticIdentity(devUser.ID)(next)
}

// StaticIdentity attributes every request to the dev login stored as userID.
func StaticIdentity(userID int) func(http.Handler) http.Handler {
	info := devUser
	info.ID = userID
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, withUser(r, info))
		})
	}
}

// TailscaleIdentity identifies callers by their tailnet login.
func TailscaleIdentity(lc WhoIser, users UserResolver, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			who, err := lc.WhoIs(r.Context(), r.RemoteAddr)
			if err != nil || who == nil || who.UserProfile == nil {
				log.Warn("tailscale whois failed", "remote", r.RemoteAddr, "error", err)
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unknown tailnet peer"})
				return
			}
			info := UserInfo{Login: who.UserProfile.LoginName, DisplayName: who.UserProfile.DisplayName}
			if !resolve(w, r, users, &info, log) {
				return
			}
			next.ServeHTTP(w, withUser(r, info))
		})
	}
}

// BearerIdentity identifies callers by a JWT bearer token.
func BearerIdentity(cfg auth.Config, users UserResolver, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		resolveClaims := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := auth.FromContext(r.Context())
			if !ok {
				writeJSON(w, http.StatusUnauthorized, map[string]string{"error": auth.ErrMissingToken.Error()})
				return
			}
			info := UserInfo{Login: claims.Subject, DisplayName: claims.Name}
			if !resolve(w, r, users, &info, log) {
				return
			}
			next.ServeHTTP(w, withUser(r, info))
		})
		return auth.NewMiddleware(cfg, nil).Wrap(resolveClaims)
	}
}

func resolve(w http.ResponseWriter, r *http.Request, users UserResolver, info *UserInfo, log *slog.Logger) bool {
	id, err := users.EnsureUser(r.Context(), info.Login, info.DisplayName)
	if err != nil {
		log.Error("resolving user", "login", info.Login, "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "resolving user failed"})
		return false
	}
	info.ID = id
	return true
}

// APIKeyAuth returns middleware that validates the X-API-Key header.
func APIKeyAuth(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				http.Error(w, `{"error":"missing API key"}`, http.StatusUnauthorized)
				return
			}
			if key != apiKey {
				http.Error(w, `{"error":"invalid API key"}`, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequestLogging returns middleware that logs each request.
func RequestLogging(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)
			log.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				"duration", time.Since(start).String(),
			)
		})
	}
}

// CORS adds permissive CORS headers for local development.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-API-Key")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusWriter wraps ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush keeps event streams working through the logging middleware.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
