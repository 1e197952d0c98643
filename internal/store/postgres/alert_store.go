package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"github.com/shiftwatch/shiftwatch/internal/models"
	"github.com/shiftwatch/shiftwatch/internal/store"
)

// AlertStore implements store.AlertStore using PostgreSQL. Flags and the
// session-context snapshot live in JSONB columns and round-trip losslessly
// through encoding/json.
type AlertStore struct {
	pool *pgxpool.Pool
}

// NewAlertStore creates a new PostgreSQL-backed alert store.
func NewAlertStore(pool *pgxpool.Pool) *AlertStore {
	return &AlertStore{pool: pool}
}

// Insert writes one alert row.
func (s *AlertStore) Insert(ctx context.Context, alert *models.Alert) error {
	flagsJSON, err := json.Marshal(alert.Flags)
	if err != nil {
		return fmt.Errorf("failed to marshal flags: %w", err)
	}

	var sessionDataJSON []byte
	if alert.SessionData != nil {
		sessionDataJSON, err = json.Marshal(alert.SessionData)
		if err != nil {
			return fmt.Errorf("failed to marshal session_data: %w", err)
		}
	}

	query := `
		INSERT INTO fraud_alerts (
			alert_id, user_id, risk_score, flags, session_data,
			resolved, created_at
		) VALUES (
			$1, $2, $3, $4, $5, FALSE, $6
		)
	`

	_, err = s.pool.Exec(ctx, query,
		alert.AlertID,
		alert.UserID,
		alert.RiskScore,
		flagsJSON,
		sessionDataJSON,
		alert.CreatedAt,
	)
	if err != nil {
		return mapPostgresError(err)
	}

	log.Debug().
		Str("alert_id", alert.AlertID.String()).
		Str("user_id", alert.UserID.String()).
		Int("risk_score", alert.RiskScore).
		Msg("Inserted fraud alert")

	return nil
}

const alertColumns = `
	fa.alert_id, fa.user_id, fa.risk_score, fa.flags, fa.session_data,
	fa.resolved, fa.resolved_by, fa.resolved_at, fa.resolution_notes, fa.created_at,
	u.email, u.first_name, u.last_name,
	resolver.email
`

const alertJoins = `
	FROM fraud_alerts fa
	JOIN users u ON fa.user_id = u.user_id
	LEFT JOIN users resolver ON fa.resolved_by = resolver.user_id
`

// Get returns one alert joined with identity fields.
func (s *AlertStore) Get(ctx context.Context, alertID uuid.UUID) (*store.AlertWithIdentity, error) {
	query := `SELECT ` + alertColumns + alertJoins + ` WHERE fa.alert_id = $1`

	alert, err := scanAlert(s.pool.QueryRow(ctx, query, alertID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrAlertNotFound
		}
		return nil, mapPostgresError(err)
	}

	return alert, nil
}

// List returns a filtered, paginated page of alerts, newest first, with the
// total matching count.
func (s *AlertStore) List(ctx context.Context, filter store.ListAlertsFilter) (*store.AlertPage, error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 {
		pageSize = 50
	}

	// Build the WHERE clause shared by the page and count queries
	where := ""
	var args []any
	argIdx := 1

	if filter.Severity != "" {
		where += fmt.Sprintf(" AND fa.flags::text LIKE $%d", argIdx)
		args = append(args, "%"+filter.Severity+"%")
		argIdx++
	}

	if filter.Resolved != nil {
		where += fmt.Sprintf(" AND fa.resolved = $%d", argIdx)
		args = append(args, *filter.Resolved)
		argIdx++
	}

	query := `SELECT ` + alertColumns + alertJoins + ` WHERE 1=1` + where +
		fmt.Sprintf(" ORDER BY fa.created_at DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	pageArgs := append(args, pageSize, (page-1)*pageSize)

	rows, err := s.pool.Query(ctx, query, pageArgs...)
	if err != nil {
		return nil, mapPostgresError(err)
	}
	defer rows.Close()

	alerts := []*store.AlertWithIdentity{}
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, mapPostgresError(err)
		}
		alerts = append(alerts, alert)
	}

	if err := rows.Err(); err != nil {
		return nil, mapPostgresError(err)
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM fraud_alerts fa WHERE 1=1` + where
	if err := s.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, mapPostgresError(err)
	}

	log.Debug().
		Int("count", len(alerts)).
		Int("total", total).
		Int("page", page).
		Msg("Listed fraud alerts")

	return &store.AlertPage{
		Alerts:   alerts,
		Page:     page,
		PageSize: pageSize,
		Total:    total,
		Pages:    (total + pageSize - 1) / pageSize,
	}, nil
}

// Resolve marks an alert resolved. Re-resolving overwrites the resolver and
// timestamp; the overwrite is the observed product behavior.
func (s *AlertStore) Resolve(ctx context.Context, alertID, resolvedBy uuid.UUID, notes string, resolvedAt time.Time) error {
	query := `
		UPDATE fraud_alerts
		SET
			resolved = TRUE,
			resolved_by = $2,
			resolved_at = $3,
			resolution_notes = $4
		WHERE alert_id = $1
	`

	result, err := s.pool.Exec(ctx, query, alertID, resolvedBy, resolvedAt, nullIfEmpty(notes))
	if err != nil {
		return mapPostgresError(err)
	}

	if result.RowsAffected() == 0 {
		return store.ErrAlertNotFound
	}

	log.Info().
		Str("alert_id", alertID.String()).
		Str("resolved_by", resolvedBy.String()).
		Msg("Resolved fraud alert")

	return nil
}

// Stats aggregates alerts created at or after since: a window summary plus a
// per-day breakdown ordered newest first.
func (s *AlertStore) Stats(ctx context.Context, since time.Time) (*store.AlertStats, error) {
	summaryQuery := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE resolved),
			COUNT(*) FILTER (WHERE risk_score >= 75),
			COUNT(*) FILTER (WHERE risk_score >= 50 AND risk_score < 75),
			COUNT(*) FILTER (WHERE risk_score < 50),
			COALESCE(AVG(risk_score), 0)::float8
		FROM fraud_alerts
		WHERE created_at >= $1
	`

	var summary store.AlertSummary
	err := s.pool.QueryRow(ctx, summaryQuery, since).Scan(
		&summary.Total,
		&summary.Resolved,
		&summary.HighRisk,
		&summary.MediumRisk,
		&summary.LowRisk,
		&summary.AvgRiskScore,
	)
	if err != nil {
		return nil, mapPostgresError(err)
	}

	dailyQuery := `
		SELECT
			created_at::date AS date,
			COUNT(*),
			COALESCE(AVG(risk_score), 0)::float8,
			COUNT(*) FILTER (WHERE resolved),
			COUNT(*) FILTER (WHERE risk_score >= 75)
		FROM fraud_alerts
		WHERE created_at >= $1
		GROUP BY created_at::date
		ORDER BY date DESC
	`

	rows, err := s.pool.Query(ctx, dailyQuery, since)
	if err != nil {
		return nil, mapPostgresError(err)
	}
	defer rows.Close()

	var daily []store.DailyAlertStats
	for rows.Next() {
		var day store.DailyAlertStats
		var date time.Time

		err := rows.Scan(&date, &day.Total, &day.AvgRiskScore, &day.Resolved, &day.HighRisk)
		if err != nil {
			return nil, mapPostgresError(err)
		}

		day.Date = date.Format("2006-01-02")
		daily = append(daily, day)
	}

	if err := rows.Err(); err != nil {
		return nil, mapPostgresError(err)
	}

	return &store.AlertStats{
		Summary: summary,
		Daily:   daily,
	}, nil
}

func scanAlert(row pgx.Row) (*store.AlertWithIdentity, error) {
	var alert store.AlertWithIdentity
	var flagsJSON, sessionDataJSON []byte

	err := row.Scan(
		&alert.AlertID,
		&alert.UserID,
		&alert.RiskScore,
		&flagsJSON,
		&sessionDataJSON,
		&alert.Resolved,
		&alert.ResolvedBy,
		&alert.ResolvedAt,
		&alert.ResolutionNotes,
		&alert.CreatedAt,
		&alert.UserEmail,
		&alert.UserFirstName,
		&alert.UserLastName,
		&alert.ResolverEmail,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(flagsJSON, &alert.Flags); err != nil {
		return nil, fmt.Errorf("failed to unmarshal flags: %w", err)
	}

	if sessionDataJSON != nil {
		if err := json.Unmarshal(sessionDataJSON, &alert.SessionData); err != nil {
			return nil, fmt.Errorf("failed to unmarshal session_data: %w", err)
		}
	}

	return &alert, nil
}
