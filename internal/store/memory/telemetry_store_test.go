package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/shiftwatch/shiftwatch/internal/models"
	"github.com/shiftwatch/shiftwatch/internal/store"
)

func TestTelemetryStoreSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	userID := uuid.Must(uuid.NewV7())

	st := NewTelemetryStore()

	session := &models.Session{
		SessionID: uuid.Must(uuid.NewV7()),
		UserID:    userID,
		ProjectID: uuid.Must(uuid.NewV7()),
		StartTime: baseTime,
		Device:    models.DeviceMetadata{IPAddress: "10.0.0.1"},
		IsActive:  true,
	}
	require.NoError(t, st.CreateSession(ctx, session))

	t.Run("active until closed", func(t *testing.T) {
		active, err := st.ActiveSessions(ctx, userID)
		require.NoError(t, err)
		require.Len(t, active, 1)
	})

	t.Run("close fills duration and clears the active flag", func(t *testing.T) {
		closed, err := st.CloseSession(ctx, session.SessionID, baseTime.Add(90*time.Minute))
		require.NoError(t, err)
		require.False(t, closed.IsActive)
		require.True(t, closed.IsClosed())
		require.Equal(t, int64(5400), closed.DurationSeconds)

		active, err := st.ActiveSessions(ctx, userID)
		require.NoError(t, err)
		require.Empty(t, active)
	})

	t.Run("closing twice fails", func(t *testing.T) {
		_, err := st.CloseSession(ctx, session.SessionID, baseTime.Add(2*time.Hour))
		require.ErrorIs(t, err, store.ErrSessionNotActive)
	})

	t.Run("closing an unknown session fails", func(t *testing.T) {
		_, err := st.CloseSession(ctx, uuid.Must(uuid.NewV7()), baseTime)
		require.ErrorIs(t, err, store.ErrSessionNotFound)
	})

	t.Run("closed duration counts toward daily total", func(t *testing.T) {
		seconds, err := st.ClosedSessionSeconds(ctx, userID, baseTime.Add(-time.Hour))
		require.NoError(t, err)
		require.Equal(t, int64(5400), seconds)
	})
}

func TestTelemetryStoreRecentSessions(t *testing.T) {
	ctx := context.Background()
	userID := uuid.Must(uuid.NewV7())

	st := NewTelemetryStore()
	for i := range 8 {
		require.NoError(t, st.CreateSession(ctx, &models.Session{
			SessionID: uuid.Must(uuid.NewV7()),
			UserID:    userID,
			StartTime: baseTime.Add(-time.Duration(i) * 10 * time.Minute),
			Device:    models.DeviceMetadata{IPAddress: "10.0.0.1"},
		}))
	}

	recent, err := st.RecentSessions(ctx, userID, baseTime.Add(-time.Hour), 5)
	require.NoError(t, err)
	require.Len(t, recent, 5)
	for i := 1; i < len(recent); i++ {
		require.True(t, recent[i].StartTime.Before(recent[i-1].StartTime))
	}
}

func TestTelemetryStoreScreenshots(t *testing.T) {
	ctx := context.Background()
	userID := uuid.Must(uuid.NewV7())
	sessionID := uuid.Must(uuid.NewV7())

	st := NewTelemetryStore()
	sizes := []int64{5000, 9999, 10000, 50000}
	for i, size := range sizes {
		require.NoError(t, st.CreateScreenshot(ctx, &models.Screenshot{
			ScreenshotID: uuid.Must(uuid.NewV7()),
			SessionID:    sessionID,
			UserID:       userID,
			FileSize:     size,
			TakenAt:      baseTime.Add(-time.Duration(i) * time.Minute),
		}))
	}

	t.Run("small count uses a strict upper bound", func(t *testing.T) {
		count, err := st.CountSmallScreenshots(ctx, sessionID, 10000)
		require.NoError(t, err)
		require.Equal(t, 2, count)
	})

	t.Run("recent screenshots are newest first", func(t *testing.T) {
		recent, err := st.RecentScreenshots(ctx, userID, baseTime.Add(-time.Hour), 20)
		require.NoError(t, err)
		require.Len(t, recent, 4)
		require.Equal(t, int64(5000), recent[0].FileSize)
	})

	t.Run("between is inclusive", func(t *testing.T) {
		matched, err := st.ScreenshotsBetween(ctx, userID, baseTime.Add(-3*time.Minute), baseTime)
		require.NoError(t, err)
		require.Len(t, matched, 4)
	})
}
