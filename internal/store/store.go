package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shiftwatch/shiftwatch/internal/models"
)

// Sentinel errors for common error conditions
var (
	ErrUserNotFound        = errors.New("user not found")
	ErrUserAlreadyExists   = errors.New("user already exists")
	ErrSessionNotFound     = errors.New("session not found")
	ErrSessionNotActive    = errors.New("session is not active")
	ErrActiveSessionExists = errors.New("user already has an active session")
	ErrAlertNotFound       = errors.New("fraud alert not found")
)

// TelemetryStore abstracts read/write access to session records (time logs)
// and screenshot records. The rule evaluators only use the read side; the
// tracking endpoints use the write side.
type TelemetryStore interface {
	// Sessions
	CreateSession(ctx context.Context, session *models.Session) error
	CloseSession(ctx context.Context, sessionID uuid.UUID, endTime time.Time) (*models.Session, error)
	GetSession(ctx context.Context, sessionID uuid.UUID) (*models.Session, error)

	// ActiveSessions returns every session currently flagged active for the
	// user. More than one is possible under the known read-then-write race
	// window; the concurrent-session check depends on seeing all of them.
	ActiveSessions(ctx context.Context, userID uuid.UUID) ([]*models.Session, error)

	// RecentSessions returns the user's sessions with a start time at or
	// after since, newest first, capped at limit rows.
	RecentSessions(ctx context.Context, userID uuid.UUID, since time.Time, limit int) ([]*models.Session, error)

	// DistinctMACAddresses returns the distinct non-empty hardware addresses
	// across the user's sessions starting at or after since.
	DistinctMACAddresses(ctx context.Context, userID uuid.UUID, since time.Time) ([]string, error)

	// ClosedSessionSeconds sums the recorded duration of the user's closed
	// sessions whose start time is at or after since.
	ClosedSessionSeconds(ctx context.Context, userID uuid.UUID, since time.Time) (int64, error)

	// SessionsBetween returns the user's sessions with start times inside
	// [from, to], newest first. Used for the alert related-data view.
	SessionsBetween(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]*models.Session, error)

	// Screenshots
	CreateScreenshot(ctx context.Context, screenshot *models.Screenshot) error

	// RecentScreenshots returns the user's screenshot records taken at or
	// after since, newest first, capped at limit rows.
	RecentScreenshots(ctx context.Context, userID uuid.UUID, since time.Time, limit int) ([]*models.Screenshot, error)

	// CountSmallScreenshots counts the given session's screenshot records
	// with a byte size strictly below maxBytes.
	CountSmallScreenshots(ctx context.Context, sessionID uuid.UUID, maxBytes int64) (int, error)

	// ScreenshotsBetween returns the user's screenshots taken inside
	// [from, to], newest first. Used for the alert related-data view.
	ScreenshotsBetween(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]*models.Screenshot, error)
}

// AlertStore persists fraud alerts and serves the admin read side.
type AlertStore interface {
	Insert(ctx context.Context, alert *models.Alert) error

	// Get returns one alert joined with the subject's and resolver's
	// identity fields. Returns ErrAlertNotFound when absent.
	Get(ctx context.Context, alertID uuid.UUID) (*AlertWithIdentity, error)

	List(ctx context.Context, filter ListAlertsFilter) (*AlertPage, error)

	// Resolve marks an alert resolved. Resolving an already-resolved alert
	// overwrites the resolver and timestamp.
	Resolve(ctx context.Context, alertID, resolvedBy uuid.UUID, notes string, resolvedAt time.Time) error

	// Stats aggregates alerts created at or after since.
	Stats(ctx context.Context, since time.Time) (*AlertStats, error)
}

// UserStore is the minimal slice of user persistence the reporting joins and
// foreign keys need. Everything else about users is out of scope.
type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	Get(ctx context.Context, userID uuid.UUID) (*models.User, error)
}

// AlertWithIdentity is an alert joined with identity fields for display.
type AlertWithIdentity struct {
	models.Alert

	UserEmail     string  `json:"user_email"`
	UserFirstName string  `json:"user_first_name"`
	UserLastName  string  `json:"user_last_name"`
	ResolverEmail *string `json:"resolver_email,omitempty"`
}

// ListAlertsFilter selects and paginates alerts. Page is 1-based.
type ListAlertsFilter struct {
	// Resolved filters by resolution state when non-nil.
	Resolved *bool
	// Severity does a substring match against the serialized flags.
	Severity string
	Page     int
	PageSize int
}

// AlertPage is one page of alerts plus the total matching count.
type AlertPage struct {
	Alerts   []*AlertWithIdentity `json:"alerts"`
	Page     int                  `json:"page"`
	PageSize int                  `json:"page_size"`
	Total    int                  `json:"total"`
	Pages    int                  `json:"pages"`
}

// DailyAlertStats is one day's breakdown, used by the stats endpoint.
type DailyAlertStats struct {
	Date         string  `json:"date"` // YYYY-MM-DD
	Total        int     `json:"total_alerts"`
	AvgRiskScore float64 `json:"avg_risk_score"`
	Resolved     int     `json:"resolved_alerts"`
	HighRisk     int     `json:"high_risk_alerts"` // risk score >= 75
}

// AlertSummary aggregates a whole stats window. The three risk buckets
// partition the total: high >= 75, medium 50-74, low < 50.
type AlertSummary struct {
	Total        int     `json:"total_alerts"`
	Resolved     int     `json:"resolved_alerts"`
	HighRisk     int     `json:"high_risk_alerts"`
	MediumRisk   int     `json:"medium_risk_alerts"`
	LowRisk      int     `json:"low_risk_alerts"`
	AvgRiskScore float64 `json:"avg_risk_score"`
}

// AlertStats is the stats endpoint payload: a window summary plus a per-day
// breakdown ordered newest first.
type AlertStats struct {
	Summary AlertSummary      `json:"summary"`
	Daily   []DailyAlertStats `json:"daily_stats"`
}
