package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/shiftwatch/shiftwatch/internal/models"
	"github.com/shiftwatch/shiftwatch/internal/store"
)

// TelemetryStore implements store.TelemetryStore using PostgreSQL.
type TelemetryStore struct {
	pool *pgxpool.Pool
}

// NewTelemetryStore creates a new PostgreSQL-backed telemetry store.
func NewTelemetryStore(pool *pgxpool.Pool) *TelemetryStore {
	return &TelemetryStore{pool: pool}
}

const sessionColumns = `
	session_id, user_id, project_id, task_id,
	start_time, end_time, duration_seconds,
	ip_address, mac_address, hostname, os_info,
	is_active, created_at, updated_at
`

// CreateSession inserts a new time log row. The partial unique index on
// active sessions maps a concurrent start to ErrActiveSessionExists.
func (s *TelemetryStore) CreateSession(ctx context.Context, session *models.Session) error {
	query := `
		INSERT INTO time_logs (
			session_id, user_id, project_id, task_id,
			start_time, end_time, duration_seconds,
			ip_address, mac_address, hostname, os_info,
			is_active, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
		)
	`

	_, err := s.pool.Exec(ctx, query,
		session.SessionID,
		session.UserID,
		session.ProjectID,
		session.TaskID,
		session.StartTime,
		session.EndTime,
		session.DurationSeconds,
		nullIfEmpty(session.Device.IPAddress),
		nullIfEmpty(session.Device.MACAddress),
		nullIfEmpty(session.Device.Hostname),
		nullIfEmpty(session.Device.OSInfo),
		session.IsActive,
		session.CreatedAt,
		session.UpdatedAt,
	)
	if err != nil {
		return mapPostgresError(err)
	}

	log.Debug().
		Str("session_id", session.SessionID.String()).
		Str("user_id", session.UserID.String()).
		Msg("Created session")

	return nil
}

// CloseSession fills in the end time, computes the duration from the stored
// start time, and clears the active flag. Only active sessions can close.
func (s *TelemetryStore) CloseSession(ctx context.Context, sessionID uuid.UUID, endTime time.Time) (*models.Session, error) {
	query := `
		UPDATE time_logs
		SET
			end_time = $2,
			duration_seconds = EXTRACT(EPOCH FROM ($2 - start_time))::BIGINT,
			is_active = FALSE,
			updated_at = $2
		WHERE session_id = $1
		  AND is_active
		RETURNING ` + sessionColumns

	session, err := scanSession(s.pool.QueryRow(ctx, query, sessionID, endTime))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Distinguish a missing session from an already-closed one
			if _, getErr := s.GetSession(ctx, sessionID); getErr != nil {
				return nil, getErr
			}
			return nil, store.ErrSessionNotActive
		}
		return nil, mapPostgresError(err)
	}

	log.Debug().
		Str("session_id", sessionID.String()).
		Int64("duration_seconds", session.DurationSeconds).
		Msg("Closed session")

	return session, nil
}

// GetSession retrieves a session by ID.
func (s *TelemetryStore) GetSession(ctx context.Context, sessionID uuid.UUID) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM time_logs WHERE session_id = $1`

	session, err := scanSession(s.pool.QueryRow(ctx, query, sessionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrSessionNotFound
		}
		return nil, mapPostgresError(err)
	}

	return session, nil
}

// ActiveSessions returns all sessions currently flagged active for the user.
func (s *TelemetryStore) ActiveSessions(ctx context.Context, userID uuid.UUID) ([]*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM time_logs WHERE user_id = $1 AND is_active`

	return s.querySessions(ctx, query, userID)
}

// RecentSessions returns sessions starting at or after since, newest first,
// capped at limit.
func (s *TelemetryStore) RecentSessions(ctx context.Context, userID uuid.UUID, since time.Time, limit int) ([]*models.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM time_logs
		WHERE user_id = $1 AND start_time >= $2
		ORDER BY start_time DESC
		LIMIT $3
	`

	return s.querySessions(ctx, query, userID, since, limit)
}

// DistinctMACAddresses returns the distinct non-empty MAC addresses across
// the user's sessions starting at or after since.
func (s *TelemetryStore) DistinctMACAddresses(ctx context.Context, userID uuid.UUID, since time.Time) ([]string, error) {
	query := `
		SELECT DISTINCT mac_address
		FROM time_logs
		WHERE user_id = $1
		  AND start_time >= $2
		  AND mac_address IS NOT NULL
	`

	rows, err := s.pool.Query(ctx, query, userID, since)
	if err != nil {
		return nil, mapPostgresError(err)
	}
	defer rows.Close()

	var macs []string
	for rows.Next() {
		var mac string
		if err := rows.Scan(&mac); err != nil {
			return nil, mapPostgresError(err)
		}
		macs = append(macs, mac)
	}

	if err := rows.Err(); err != nil {
		return nil, mapPostgresError(err)
	}

	return macs, nil
}

// ClosedSessionSeconds sums the recorded duration of closed sessions
// starting at or after since.
func (s *TelemetryStore) ClosedSessionSeconds(ctx context.Context, userID uuid.UUID, since time.Time) (int64, error) {
	query := `
		SELECT COALESCE(SUM(duration_seconds), 0)
		FROM time_logs
		WHERE user_id = $1
		  AND start_time >= $2
		  AND end_time IS NOT NULL
	`

	var total int64
	if err := s.pool.QueryRow(ctx, query, userID, since).Scan(&total); err != nil {
		return 0, mapPostgresError(err)
	}

	return total, nil
}

// SessionsBetween returns sessions starting inside [from, to], newest first.
func (s *TelemetryStore) SessionsBetween(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]*models.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM time_logs
		WHERE user_id = $1 AND start_time BETWEEN $2 AND $3
		ORDER BY start_time DESC
	`

	return s.querySessions(ctx, query, userID, from, to)
}

// CreateScreenshot inserts a new screenshot record.
func (s *TelemetryStore) CreateScreenshot(ctx context.Context, screenshot *models.Screenshot) error {
	query := `
		INSERT INTO screenshots (
			screenshot_id, session_id, user_id, file_size, taken_at,
			upload_status, permission_denied, error_message, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)
	`

	_, err := s.pool.Exec(ctx, query,
		screenshot.ScreenshotID,
		screenshot.SessionID,
		screenshot.UserID,
		screenshot.FileSize,
		screenshot.TakenAt,
		screenshot.UploadStatus,
		screenshot.PermissionDenied,
		nullIfEmpty(screenshot.ErrorMessage),
		screenshot.CreatedAt,
	)
	if err != nil {
		return mapPostgresError(err)
	}

	log.Debug().
		Str("screenshot_id", screenshot.ScreenshotID.String()).
		Str("session_id", screenshot.SessionID.String()).
		Msg("Created screenshot record")

	return nil
}

const screenshotColumns = `
	screenshot_id, session_id, user_id, file_size, taken_at,
	upload_status, permission_denied, error_message, created_at
`

// RecentScreenshots returns screenshots taken at or after since, newest
// first, capped at limit.
func (s *TelemetryStore) RecentScreenshots(ctx context.Context, userID uuid.UUID, since time.Time, limit int) ([]*models.Screenshot, error) {
	query := `
		SELECT ` + screenshotColumns + `
		FROM screenshots
		WHERE user_id = $1 AND taken_at >= $2
		ORDER BY taken_at DESC
		LIMIT $3
	`

	return s.queryScreenshots(ctx, query, userID, since, limit)
}

// CountSmallScreenshots counts the session's screenshots strictly below
// maxBytes.
func (s *TelemetryStore) CountSmallScreenshots(ctx context.Context, sessionID uuid.UUID, maxBytes int64) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM screenshots
		WHERE session_id = $1 AND file_size < $2
	`

	var count int
	if err := s.pool.QueryRow(ctx, query, sessionID, maxBytes).Scan(&count); err != nil {
		return 0, mapPostgresError(err)
	}

	return count, nil
}

// ScreenshotsBetween returns screenshots taken inside [from, to], newest
// first.
func (s *TelemetryStore) ScreenshotsBetween(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]*models.Screenshot, error) {
	query := `
		SELECT ` + screenshotColumns + `
		FROM screenshots
		WHERE user_id = $1 AND taken_at BETWEEN $2 AND $3
		ORDER BY taken_at DESC
	`

	return s.queryScreenshots(ctx, query, userID, from, to)
}

// Helpers

func (s *TelemetryStore) querySessions(ctx context.Context, query string, args ...any) ([]*models.Session, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapPostgresError(err)
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, mapPostgresError(err)
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, mapPostgresError(err)
	}

	return sessions, nil
}

func (s *TelemetryStore) queryScreenshots(ctx context.Context, query string, args ...any) ([]*models.Screenshot, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapPostgresError(err)
	}
	defer rows.Close()

	var screenshots []*models.Screenshot
	for rows.Next() {
		var shot models.Screenshot
		var errorMessage *string

		err := rows.Scan(
			&shot.ScreenshotID,
			&shot.SessionID,
			&shot.UserID,
			&shot.FileSize,
			&shot.TakenAt,
			&shot.UploadStatus,
			&shot.PermissionDenied,
			&errorMessage,
			&shot.CreatedAt,
		)
		if err != nil {
			return nil, mapPostgresError(err)
		}

		if errorMessage != nil {
			shot.ErrorMessage = *errorMessage
		}
		screenshots = append(screenshots, &shot)
	}

	if err := rows.Err(); err != nil {
		return nil, mapPostgresError(err)
	}

	return screenshots, nil
}

func scanSession(row pgx.Row) (*models.Session, error) {
	var session models.Session
	var ipAddress, macAddress, hostname, osInfo *string

	err := row.Scan(
		&session.SessionID,
		&session.UserID,
		&session.ProjectID,
		&session.TaskID,
		&session.StartTime,
		&session.EndTime,
		&session.DurationSeconds,
		&ipAddress,
		&macAddress,
		&hostname,
		&osInfo,
		&session.IsActive,
		&session.CreatedAt,
		&session.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	session.Device = models.DeviceMetadata{
		IPAddress:  deref(ipAddress),
		MACAddress: deref(macAddress),
		Hostname:   deref(hostname),
		OSInfo:     deref(osInfo),
	}

	return &session, nil
}

// nullIfEmpty converts empty device fields to NULL so the DISTINCT queries
// never see empty strings.
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
