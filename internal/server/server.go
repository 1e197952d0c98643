package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/shiftwatch/shiftwatch/internal/auth"
	"github.com/shiftwatch/shiftwatch/internal/fraud"
	shhttp "github.com/shiftwatch/shiftwatch/internal/http"
	"github.com/shiftwatch/shiftwatch/internal/logger"
	"github.com/shiftwatch/shiftwatch/internal/store"
)

// Server holds the HTTP surface: the tracking write endpoints employees hit
// and the admin fraud API.
type Server struct {
	telemetry store.TelemetryStore
	alerts    store.AlertStore
	users     store.UserStore
	detector  *fraud.Detector
	recorder  *fraud.Recorder
	clock     fraud.Clock
	validate  *validator.Validate

	jwtSecret   []byte
	corsOrigins []string
}

// Config carries the server dependencies.
type Config struct {
	Telemetry store.TelemetryStore
	Alerts    store.AlertStore
	Users     store.UserStore
	Detector  *fraud.Detector
	Recorder  *fraud.Recorder
	Clock     fraud.Clock

	JWTSecret   []byte
	CORSOrigins []string
}

// New creates a Server. A nil clock defaults to the system clock.
func New(cfg Config) *Server {
	clock := cfg.Clock
	if clock == nil {
		clock = fraud.SystemClock()
	}

	return &Server{
		telemetry:   cfg.Telemetry,
		alerts:      cfg.Alerts,
		users:       cfg.Users,
		detector:    cfg.Detector,
		recorder:    cfg.Recorder,
		clock:       clock,
		validate:    validator.New(),
		jwtSecret:   cfg.JWTSecret,
		corsOrigins: cfg.CORSOrigins,
	}
}

// Handler builds the routing tree with auth, client IP and request logging
// middleware applied.
func (s *Server) Handler(requestLog zerolog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	authenticated := auth.Middleware(s.jwtSecret, "")
	mux.Handle("POST /api/tracking/start", authenticated(http.HandlerFunc(s.startTracking)))
	mux.Handle("POST /api/tracking/stop", authenticated(http.HandlerFunc(s.stopTracking)))
	mux.Handle("POST /api/screenshots", authenticated(http.HandlerFunc(s.recordScreenshot)))

	admin := auth.AdminMiddleware(s.jwtSecret)
	mux.Handle("GET /api/fraud/alerts", admin(http.HandlerFunc(s.listAlerts)))
	mux.Handle("GET /api/fraud/alerts/{id}", admin(http.HandlerFunc(s.getAlert)))
	mux.Handle("POST /api/fraud/alerts/{id}/resolve", admin(http.HandlerFunc(s.resolveAlert)))
	mux.Handle("GET /api/fraud/stats", admin(http.HandlerFunc(s.alertStats)))

	return s.middleware(requestLog)(mux)
}

func (s *Server) middleware(requestLog zerolog.Logger) func(http.Handler) http.Handler {
	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins:   s.corsOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	})

	return func(next http.Handler) http.Handler {
		handler := shhttp.ClientIPMiddleware()(next)
		handler = corsMiddleware.Handler(handler)
		handler = logger.RequestLogger(requestLog)(handler)
		return handler
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// writeStoreError maps store sentinel errors onto HTTP statuses. Anything
// unmapped is an internal error and gets logged server side only.
func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrAlertNotFound),
		errors.Is(err, store.ErrSessionNotFound),
		errors.Is(err, store.ErrUserNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrSessionNotActive):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrActiveSessionExists):
		s.writeError(w, http.StatusConflict, err.Error())
	default:
		log.Error().Err(err).Msg("Request failed")
		s.writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// decode reads and validates a JSON request body.
func (s *Server) decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return err
	}
	return s.validate.Struct(v)
}
