//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/shiftwatch/shiftwatch/internal/models"
	"github.com/shiftwatch/shiftwatch/internal/store"
)

func setupPostgresContainer(t *testing.T, ctx context.Context) (*pgxpool.Pool, func()) {
	// Start postgres container
	req := testcontainers.ContainerRequest{
		Image:        "postgres:18-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)

	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	connString := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	pool, err := Connect(ctx, &PoolConfig{
		ConnString:  connString,
		AutoMigrate: true, // Enable migrations for tests
	})
	require.NoError(t, err)

	cleanup := func() {
		pool.Close()
		_ = container.Terminate(ctx)
	}

	return pool, cleanup
}

func createTestUser(t *testing.T, ctx context.Context, users *UserStore, role string) *models.User {
	t.Helper()

	user := &models.User{
		UserID:    uuid.Must(uuid.NewV7()),
		Email:     fmt.Sprintf("%s@example.com", uuid.Must(uuid.NewV7())),
		FirstName: "Test",
		LastName:  "User",
		Role:      role,
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, users.Create(ctx, user))
	return user
}

func TestIntegration_SessionLifecycle(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	telemetry := NewTelemetryStore(pool)
	users := NewUserStore(pool)
	user := createTestUser(t, ctx, users, models.RoleEmployee)

	start := time.Now().UTC().Truncate(time.Microsecond)
	session := &models.Session{
		SessionID: uuid.Must(uuid.NewV7()),
		UserID:    user.UserID,
		ProjectID: uuid.Must(uuid.NewV7()),
		StartTime: start,
		Device: models.DeviceMetadata{
			IPAddress:  "10.0.0.1",
			MACAddress: "aa:bb:cc:00:00:01",
			Hostname:   "laptop-01",
		},
		IsActive:  true,
		CreatedAt: start,
		UpdatedAt: start,
	}

	t.Run("create and fetch", func(t *testing.T) {
		require.NoError(t, telemetry.CreateSession(ctx, session))

		got, err := telemetry.GetSession(ctx, session.SessionID)
		require.NoError(t, err)
		require.Equal(t, session.UserID, got.UserID)
		require.Equal(t, "10.0.0.1", got.Device.IPAddress)
		require.True(t, got.IsActive)
	})

	t.Run("second active session for the user is rejected", func(t *testing.T) {
		dup := *session
		dup.SessionID = uuid.Must(uuid.NewV7())
		err := telemetry.CreateSession(ctx, &dup)
		require.ErrorIs(t, err, store.ErrActiveSessionExists)
	})

	t.Run("unknown user violates the foreign key", func(t *testing.T) {
		orphan := *session
		orphan.SessionID = uuid.Must(uuid.NewV7())
		orphan.UserID = uuid.Must(uuid.NewV7())
		err := telemetry.CreateSession(ctx, &orphan)
		require.ErrorIs(t, err, store.ErrUserNotFound)
	})

	t.Run("close computes duration", func(t *testing.T) {
		closed, err := telemetry.CloseSession(ctx, session.SessionID, start.Add(90*time.Minute))
		require.NoError(t, err)
		require.False(t, closed.IsActive)
		require.Equal(t, int64(5400), closed.DurationSeconds)
	})

	t.Run("closing twice is a conflict", func(t *testing.T) {
		_, err := telemetry.CloseSession(ctx, session.SessionID, start.Add(2*time.Hour))
		require.ErrorIs(t, err, store.ErrSessionNotActive)
	})

	t.Run("closing an unknown session is not found", func(t *testing.T) {
		_, err := telemetry.CloseSession(ctx, uuid.Must(uuid.NewV7()), start)
		require.ErrorIs(t, err, store.ErrSessionNotFound)
	})

	t.Run("closed seconds since midnight", func(t *testing.T) {
		seconds, err := telemetry.ClosedSessionSeconds(ctx, user.UserID, start.Add(-time.Hour))
		require.NoError(t, err)
		require.Equal(t, int64(5400), seconds)
	})

	t.Run("recent sessions and distinct MACs", func(t *testing.T) {
		recent, err := telemetry.RecentSessions(ctx, user.UserID, start.Add(-time.Hour), 5)
		require.NoError(t, err)
		require.Len(t, recent, 1)

		macs, err := telemetry.DistinctMACAddresses(ctx, user.UserID, start.Add(-time.Hour))
		require.NoError(t, err)
		require.Equal(t, []string{"aa:bb:cc:00:00:01"}, macs)
	})
}

func TestIntegration_Screenshots(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	telemetry := NewTelemetryStore(pool)
	users := NewUserStore(pool)
	user := createTestUser(t, ctx, users, models.RoleEmployee)

	start := time.Now().UTC().Truncate(time.Microsecond)
	session := &models.Session{
		SessionID: uuid.Must(uuid.NewV7()),
		UserID:    user.UserID,
		StartTime: start,
		IsActive:  true,
		CreatedAt: start,
		UpdatedAt: start,
	}
	require.NoError(t, telemetry.CreateSession(ctx, session))

	sizes := []int64{1200, 9000, 250000}
	for i, size := range sizes {
		require.NoError(t, telemetry.CreateScreenshot(ctx, &models.Screenshot{
			ScreenshotID: uuid.Must(uuid.NewV7()),
			SessionID:    session.SessionID,
			UserID:       user.UserID,
			FileSize:     size,
			TakenAt:      start.Add(time.Duration(i) * time.Minute),
			UploadStatus: models.ScreenshotStatusCompleted,
			CreatedAt:    start,
		}))
	}

	t.Run("small screenshot count", func(t *testing.T) {
		count, err := telemetry.CountSmallScreenshots(ctx, session.SessionID, 10000)
		require.NoError(t, err)
		require.Equal(t, 2, count)
	})

	t.Run("recent screenshots newest first", func(t *testing.T) {
		recent, err := telemetry.RecentScreenshots(ctx, user.UserID, start.Add(-time.Hour), 20)
		require.NoError(t, err)
		require.Len(t, recent, 3)
		require.Equal(t, int64(250000), recent[0].FileSize)
	})

	t.Run("screenshot for unknown session violates the foreign key", func(t *testing.T) {
		err := telemetry.CreateScreenshot(ctx, &models.Screenshot{
			ScreenshotID: uuid.Must(uuid.NewV7()),
			SessionID:    uuid.Must(uuid.NewV7()),
			UserID:       user.UserID,
			TakenAt:      start,
			UploadStatus: models.ScreenshotStatusCompleted,
			CreatedAt:    start,
		})
		require.ErrorIs(t, err, store.ErrSessionNotFound)
	})
}

func TestIntegration_Alerts(t *testing.T) {
	ctx := context.Background()
	pool, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	alerts := NewAlertStore(pool)
	users := NewUserStore(pool)
	subject := createTestUser(t, ctx, users, models.RoleEmployee)
	admin := createTestUser(t, ctx, users, models.RoleAdmin)

	now := time.Now().UTC().Truncate(time.Microsecond)

	newAlert := func(score int, severity models.Severity, createdAt time.Time) *models.Alert {
		return &models.Alert{
			AlertID:   uuid.Must(uuid.NewV7()),
			UserID:    subject.UserID,
			RiskScore: score,
			Flags: []models.Flag{
				{Type: models.FlagRapidLocationChange, Severity: severity, Details: "Multiple IPs (3) in 2 hours: a, b, c"},
			},
			SessionData: map[string]any{"ip_address": "10.0.0.1"},
			CreatedAt:   createdAt,
		}
	}

	first := newAlert(25, models.SeverityHigh, now.Add(-time.Hour))
	second := newAlert(55, models.SeverityCritical, now.Add(-2*time.Hour))
	third := newAlert(80, models.SeverityCritical, now.Add(-26*time.Hour))
	for _, alert := range []*models.Alert{first, second, third} {
		require.NoError(t, alerts.Insert(ctx, alert))
	}

	t.Run("flags round-trip through JSONB", func(t *testing.T) {
		got, err := alerts.Get(ctx, first.AlertID)
		require.NoError(t, err)
		require.Equal(t, first.Flags, got.Flags)
		require.Equal(t, "10.0.0.1", got.SessionData["ip_address"])
		require.Equal(t, subject.Email, got.UserEmail)
		require.Nil(t, got.ResolverEmail)
	})

	t.Run("list newest first with severity filter", func(t *testing.T) {
		page, err := alerts.List(ctx, store.ListAlertsFilter{Severity: "CRITICAL", Page: 1, PageSize: 50})
		require.NoError(t, err)
		require.Equal(t, 2, page.Total)
		require.Equal(t, second.AlertID, page.Alerts[0].AlertID)
	})

	t.Run("pagination computes page count", func(t *testing.T) {
		page, err := alerts.List(ctx, store.ListAlertsFilter{Page: 2, PageSize: 2})
		require.NoError(t, err)
		require.Equal(t, 3, page.Total)
		require.Equal(t, 2, page.Pages)
		require.Len(t, page.Alerts, 1)
	})

	t.Run("resolve joins the resolver email", func(t *testing.T) {
		require.NoError(t, alerts.Resolve(ctx, first.AlertID, admin.UserID, "verified with manager", now))

		got, err := alerts.Get(ctx, first.AlertID)
		require.NoError(t, err)
		require.True(t, got.Resolved)
		require.Equal(t, admin.UserID, *got.ResolvedBy)
		require.NotNil(t, got.ResolverEmail)
		require.Equal(t, admin.Email, *got.ResolverEmail)
		require.Equal(t, "verified with manager", *got.ResolutionNotes)
	})

	t.Run("resolving an unknown alert is not found", func(t *testing.T) {
		err := alerts.Resolve(ctx, uuid.Must(uuid.NewV7()), admin.UserID, "", now)
		require.ErrorIs(t, err, store.ErrAlertNotFound)
	})

	t.Run("stats partition risk buckets", func(t *testing.T) {
		stats, err := alerts.Stats(ctx, now.Add(-30*24*time.Hour))
		require.NoError(t, err)

		summary := stats.Summary
		require.Equal(t, 3, summary.Total)
		require.Equal(t, 1, summary.Resolved)
		require.Equal(t, summary.Total, summary.HighRisk+summary.MediumRisk+summary.LowRisk)
		require.NotEmpty(t, stats.Daily)
	})
}
