package memory

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shiftwatch/shiftwatch/internal/models"
	"github.com/shiftwatch/shiftwatch/internal/store"
)

// AlertStore implements store.AlertStore using in-memory storage. It borrows
// the user store for the identity joins the read side needs.
type AlertStore struct {
	mu sync.RWMutex

	alerts map[uuid.UUID]*models.Alert
	users  *UserStore
}

// NewAlertStore creates a new in-memory alert store joined against users.
func NewAlertStore(users *UserStore) *AlertStore {
	return &AlertStore{
		alerts: make(map[uuid.UUID]*models.Alert),
		users:  users,
	}
}

// Insert stores a new alert.
func (s *AlertStore) Insert(ctx context.Context, alert *models.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *alert
	s.alerts[alert.AlertID] = &clone

	return nil
}

// Get returns one alert with joined identity fields.
func (s *AlertStore) Get(ctx context.Context, alertID uuid.UUID) (*store.AlertWithIdentity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	alert, exists := s.alerts[alertID]
	if !exists {
		return nil, store.ErrAlertNotFound
	}

	return s.withIdentity(ctx, alert), nil
}

// List returns a filtered, paginated page of alerts, newest first.
func (s *AlertStore) List(ctx context.Context, filter store.ListAlertsFilter) (*store.AlertPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	page := filter.Page
	if page < 1 {
		page = 1
	}
	pageSize := filter.PageSize
	if pageSize < 1 {
		pageSize = 50
	}

	var matched []*models.Alert
	for _, alert := range s.alerts {
		if filter.Resolved != nil && alert.Resolved != *filter.Resolved {
			continue
		}
		if filter.Severity != "" && !flagsContain(alert.Flags, filter.Severity) {
			continue
		}
		matched = append(matched, alert)
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	pages := (total + pageSize - 1) / pageSize

	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := min(start+pageSize, total)

	alerts := make([]*store.AlertWithIdentity, 0, end-start)
	for _, alert := range matched[start:end] {
		alerts = append(alerts, s.withIdentity(ctx, alert))
	}

	return &store.AlertPage{
		Alerts:   alerts,
		Page:     page,
		PageSize: pageSize,
		Total:    total,
		Pages:    pages,
	}, nil
}

// Resolve marks an alert resolved, overwriting any prior resolution.
func (s *AlertStore) Resolve(ctx context.Context, alertID, resolvedBy uuid.UUID, notes string, resolvedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	alert, exists := s.alerts[alertID]
	if !exists {
		return store.ErrAlertNotFound
	}

	resolver := resolvedBy
	at := resolvedAt
	alert.Resolved = true
	alert.ResolvedBy = &resolver
	alert.ResolvedAt = &at
	if notes != "" {
		alert.ResolutionNotes = &notes
	}

	return nil
}

// Stats aggregates alerts created at or after since.
func (s *AlertStore) Stats(ctx context.Context, since time.Time) (*store.AlertStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := store.AlertSummary{}
	daily := make(map[string]*store.DailyAlertStats)
	dayScores := make(map[string]int)
	scoreSum := 0

	for _, alert := range s.alerts {
		if alert.CreatedAt.Before(since) {
			continue
		}

		summary.Total++
		scoreSum += alert.RiskScore
		if alert.Resolved {
			summary.Resolved++
		}
		switch {
		case alert.RiskScore >= 75:
			summary.HighRisk++
		case alert.RiskScore >= 50:
			summary.MediumRisk++
		default:
			summary.LowRisk++
		}

		date := alert.CreatedAt.Format("2006-01-02")
		day, exists := daily[date]
		if !exists {
			day = &store.DailyAlertStats{Date: date}
			daily[date] = day
		}
		day.Total++
		dayScores[date] += alert.RiskScore
		if alert.Resolved {
			day.Resolved++
		}
		if alert.RiskScore >= 75 {
			day.HighRisk++
		}
	}

	if summary.Total > 0 {
		summary.AvgRiskScore = float64(scoreSum) / float64(summary.Total)
	}

	days := make([]store.DailyAlertStats, 0, len(daily))
	for date, day := range daily {
		day.AvgRiskScore = float64(dayScores[date]) / float64(day.Total)
		days = append(days, *day)
	}

	// Newest first
	sort.Slice(days, func(i, j int) bool {
		return days[i].Date > days[j].Date
	})

	return &store.AlertStats{
		Summary: summary,
		Daily:   days,
	}, nil
}

// withIdentity joins the alert with subject and resolver identity fields.
// Missing users leave the fields empty, matching a LEFT JOIN.
func (s *AlertStore) withIdentity(ctx context.Context, alert *models.Alert) *store.AlertWithIdentity {
	clone := *alert
	joined := &store.AlertWithIdentity{Alert: clone}

	if s.users != nil {
		if user, err := s.users.Get(ctx, alert.UserID); err == nil {
			joined.UserEmail = user.Email
			joined.UserFirstName = user.FirstName
			joined.UserLastName = user.LastName
		}
		if alert.ResolvedBy != nil {
			if resolver, err := s.users.Get(ctx, *alert.ResolvedBy); err == nil {
				email := resolver.Email
				joined.ResolverEmail = &email
			}
		}
	}

	return joined
}

// flagsContain reports whether the serialized flag collection contains the
// given substring, mirroring the SQL text match the Postgres store does.
func flagsContain(flags []models.Flag, substr string) bool {
	data, err := json.Marshal(flags)
	if err != nil {
		return false
	}
	return strings.Contains(string(data), substr)
}
