package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/shiftwatch/shiftwatch/internal/fraud"
	"github.com/shiftwatch/shiftwatch/internal/logger"
	"github.com/shiftwatch/shiftwatch/internal/server"
	"github.com/shiftwatch/shiftwatch/internal/store"
	memorystore "github.com/shiftwatch/shiftwatch/internal/store/memory"
	postgresstore "github.com/shiftwatch/shiftwatch/internal/store/postgres"
	"github.com/shiftwatch/shiftwatch/internal/telemetry"
)

type ServerCmd struct {
	// Server configuration
	Listen string `help:"HTTP server listen address" default:"0.0.0.0:8080" env:"SHIFTWATCH_LISTEN"`

	// CORS configuration
	CORSOrigins []string `help:"allowed CORS origins for API requests" default:"https://localhost" env:"SHIFTWATCH_CORS_ORIGINS"`

	// Auth configuration
	JWTSecret string `help:"shared HS256 secret for verifying bearer tokens" env:"SHIFTWATCH_JWT_SECRET"`

	// Detection rule configuration
	RulesConfig string `help:"path to a YAML rules config overriding detection thresholds" default:"" env:"SHIFTWATCH_RULES_CONFIG"`

	// Operational modes
	Tracing bool `help:"enable tracing" default:"false" env:"SHIFTWATCH_TRACING"`

	// Store configuration
	StoreType     string             `help:"store type (memory or postgres)" default:"memory" env:"SHIFTWATCH_STORE_TYPE" enum:"memory,postgres"`
	PostgresStore PostgresStoreFlags `embed:"" prefix:"postgres-"`
}

type PostgresStoreFlags struct {
	// Connection Configuration
	ConnString string `help:"PostgreSQL connection string" env:"POSTGRES_CONNECTION_STRING"`

	// Connection Pool Configuration
	MaxConns        int32 `help:"maximum number of connections in pool" default:"20"`
	MinConns        int32 `help:"minimum number of connections in pool" default:"5"`
	MaxConnLifetime int32 `help:"maximum connection lifetime in seconds" default:"3600"`
	MaxConnIdleTime int32 `help:"maximum connection idle time in seconds" default:"1800"`

	// Migration Configuration
	AutoMigrate bool `help:"run database migrations on startup" default:"false" env:"SHIFTWATCH_POSTGRES_AUTO_MIGRATE"`
}

func (s *PostgresStoreFlags) Validate() error {
	if s.ConnString == "" {
		return errors.New("PostgreSQL connection string is required (--postgres-conn-string or POSTGRES_CONNECTION_STRING)")
	}
	return nil
}

func (c *ServerCmd) Run(globals *Globals) error {
	log := logger.Setup(globals.Debug)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting server")

	if c.JWTSecret == "" {
		return errors.New("JWT secret is required (--jwt-secret or SHIFTWATCH_JWT_SECRET)")
	}
	if len(c.JWTSecret) < 32 {
		return errors.New("JWT secret must be at least 32 bytes (256 bits) for HMAC-SHA256")
	}

	// Setup telemetry if enabled
	if c.Tracing {
		log.Info().Msg("Tracing is enabled")
		shutdown, err := telemetry.InitTelemetry(ctx, "shiftwatch-server", globals.Version)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize telemetry, continuing without metrics")
			shutdown = func(ctx context.Context) error { return nil }
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("Failed to shutdown telemetry")
			}
		}()
	}

	rules := fraud.DefaultConfig()
	if c.RulesConfig != "" {
		var err error
		rules, err = fraud.LoadConfig(c.RulesConfig)
		if err != nil {
			return fmt.Errorf("failed to load rules config: %w", err)
		}
		log.Info().Str("path", c.RulesConfig).Msg("Loaded detection rules config")
	}

	// Create stores based on store type
	var (
		telemetryStore store.TelemetryStore
		alertStore     store.AlertStore
		userStore      store.UserStore
	)

	switch c.StoreType {
	case "postgres":
		if err := c.PostgresStore.Validate(); err != nil {
			return fmt.Errorf("failed to validate postgres flags: %w", err)
		}

		pool, err := postgresstore.Connect(ctx, &postgresstore.PoolConfig{
			ConnString:      c.PostgresStore.ConnString,
			MaxConns:        c.PostgresStore.MaxConns,
			MinConns:        c.PostgresStore.MinConns,
			MaxConnLifetime: c.PostgresStore.MaxConnLifetime,
			MaxConnIdleTime: c.PostgresStore.MaxConnIdleTime,
			AutoMigrate:     c.PostgresStore.AutoMigrate,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		defer pool.Close()

		telemetryStore = postgresstore.NewTelemetryStore(pool)
		alertStore = postgresstore.NewAlertStore(pool)
		userStore = postgresstore.NewUserStore(pool)
		log.Info().Msg("Using PostgreSQL stores")

	default:
		users := memorystore.NewUserStore()
		telemetryStore = memorystore.NewTelemetryStore()
		alertStore = memorystore.NewAlertStore(users)
		userStore = users
		log.Info().Msg("Using in-memory stores")
	}

	clock := fraud.SystemClock()
	detector := fraud.NewDetector(telemetryStore, clock, rules)
	recorder := fraud.NewRecorder(alertStore, clock)

	srv := server.New(server.Config{
		Telemetry:   telemetryStore,
		Alerts:      alertStore,
		Users:       userStore,
		Detector:    detector,
		Recorder:    recorder,
		Clock:       clock,
		JWTSecret:   []byte(c.JWTSecret),
		CORSOrigins: c.CORSOrigins,
	})

	httpServer := configureHTTPServer(c.Listen, srv.Handler(log))

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", c.Listen).Msg("Starting HTTP server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}

	return nil
}
