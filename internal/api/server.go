// Package api exposes the deeppomo engines over HTTP under /api/v1.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/deeppomo/deeppomo/internal/apperr"
	"github.com/deeppomo/deeppomo/internal/associations"
	"github.com/deeppomo/deeppomo/internal/auth"
	"github.com/deeppomo/deeppomo/internal/health"
	"github.com/deeppomo/deeppomo/internal/logging"
	"github.com/deeppomo/deeppomo/internal/pomodoro"
	"github.com/deeppomo/deeppomo/internal/settings"
	"github.com/deeppomo/deeppomo/internal/tasks"
	"github.com/deeppomo/deeppomo/internal/users"
)

// Services are the engines the API calls into.
type Services struct {
	Users    *users.Service
	Settings *settings.Service
	Tasks    *tasks.Service
	Sessions *pomodoro.Service
	Links    *associations.Service
	Tokens   *auth.TokenService
	Health   *health.Checker
}

// Config holds router settings
type Config struct {
	RequestTimeout time.Duration
	CORSOrigins    []string
}

// Server handles HTTP requests
type Server struct {
	users    *users.Service
	settings *settings.Service
	tasks    *tasks.Service
	sessions *pomodoro.Service
	links    *associations.Service
	tokens   *auth.TokenService
	health   *health.Checker
	cfg      Config
	log      *slog.Logger
}

// NewServer creates a new API server
func NewServer(svc Services, cfg Config) *Server {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 60 * time.Second
	}
	return &Server{
		users:    svc.Users,
		settings: svc.Settings,
		tasks:    svc.Tasks,
		sessions: svc.Sessions,
		links:    svc.Links,
		tokens:   svc.Tokens,
		health:   svc.Health,
		cfg:      cfg,
		log:      logging.WithComponent("api"),
	}
}

// Router returns the HTTP router
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.cfg.RequestTimeout))
	if len(s.cfg.CORSOrigins) > 0 {
		r.Use(s.corsMiddleware)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.healthCheck)

		// Public routes
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", s.register)
			r.Post("/token", s.login)
		})

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.tokens.AuthMiddleware)

			r.Get("/auth/me", s.getProfile)
			r.Post("/auth/logout", s.logout)

			r.Route("/users/me", func(r chi.Router) {
				r.Put("/", s.updateProfile)
				r.Get("/settings", s.getSettings)
				r.Put("/settings", s.updateSettings)
			})

			r.Route("/tasks", func(r chi.Router) {
				r.Get("/", s.listTasks)
				r.Post("/", s.createTask)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.getTask)
					r.Put("/", s.replaceTask)
					r.Patch("/", s.patchTask)
					r.Delete("/", s.deleteTask)
					r.Post("/restore", s.restoreTask)
					r.Get("/breadcrumb", s.taskBreadcrumb)
					r.Get("/children", s.taskChildren)
					r.Get("/tree", s.taskTree)
					r.Get("/history", s.taskHistory)
				})
			})

			r.Route("/pomodoros", func(r chi.Router) {
				r.Get("/", s.listSessions)
				r.Post("/", s.createSession)
				r.Post("/preset", s.createPresetSession)
				r.Get("/task/{taskID}", s.sessionsForTask)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.getSession)
					r.Patch("/", s.updateSession)
					r.Delete("/", s.deleteSession)
					r.Post("/complete", s.completeSession)
					r.Post("/pause", s.pauseSession)
					r.Post("/resume", s.resumeSession)
					r.Get("/pause-stats", s.sessionPauseStats)
					r.Get("/interruptions", s.sessionInterruptions)
					r.Get("/tasks", s.tasksForSession)
					r.Post("/tasks", s.associateTask)
				})
			})
		})
	})

	return r
}

// Middleware

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		ctx := logging.ContextWithRequestID(r.Context(), middleware.GetReqID(r.Context()))

		next.ServeHTTP(ww, r.WithContext(ctx))

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		logging.FromContext(ctx, s.log).Log(ctx, level, "request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", status),
			slog.Int("bytes", ww.BytesWritten()),
			slog.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	allowAll := slices.Contains(s.cfg.CORSOrigins, "*")
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		switch {
		case allowAll:
			w.Header().Set("Access-Control-Allow-Origin", "*")
		case origin != "" && slices.Contains(s.cfg.CORSOrigins, origin):
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Add("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Health check
func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	report := s.health.Run(r.Context())
	status := http.StatusOK
	if !report.Healthy() {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

// Helpers

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeServiceError maps engine errors onto status codes. Unknown errors are
// logged and reported without detail.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, apperr.ErrInvalidOperation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, apperr.ErrValidation):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, apperr.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, users.ErrInvalidCredentials):
		w.Header().Set("WWW-Authenticate", "Bearer")
		writeError(w, http.StatusUnauthorized, err.Error())
	default:
		logging.FromContext(r.Context(), s.log).Error("request failed",
			slog.String("path", r.URL.Path), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.New("invalid request body")
	}
	return nil
}

func userID(r *http.Request) int64 {
	id, _ := auth.GetUserID(r.Context())
	return id
}

// pathID parses a positive integer URL parameter.
func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

type query struct {
	values map[string][]string
	errs   []string
}

func newQuery(r *http.Request) *query {
	return &query{values: r.URL.Query()}
}

func (q *query) get(name string) string {
	if v := q.values[name]; len(v) > 0 {
		return strings.TrimSpace(v[0])
	}
	return ""
}

func (q *query) int(name string) int {
	raw := q.get(name)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		q.errs = append(q.errs, name+" must be a non-negative integer")
		return 0
	}
	return n
}

func (q *query) int64Ptr(name string) *int64 {
	raw := q.get(name)
	if raw == "" {
		return nil
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		q.errs = append(q.errs, name+" must be an integer")
		return nil
	}
	return &n
}

func (q *query) boolPtr(name string) *bool {
	raw := q.get(name)
	if raw == "" {
		return nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		q.errs = append(q.errs, name+" must be a boolean")
		return nil
	}
	return &b
}

func (q *query) timePtr(name string) *time.Time {
	raw := q.get(name)
	if raw == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		q.errs = append(q.errs, name+" must be an RFC 3339 timestamp")
		return nil
	}
	return &t
}

func (q *query) stringPtr(name string) *string {
	if _, ok := q.values[name]; !ok {
		return nil
	}
	v := q.get(name)
	return &v
}

// err returns the collected parse errors, if any.
func (q *query) err() error {
	if len(q.errs) == 0 {
		return nil
	}
	return errors.New(strings.Join(q.errs, "; "))
}
