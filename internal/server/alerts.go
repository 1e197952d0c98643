package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/shiftwatch/shiftwatch/internal/auth"
	"github.com/shiftwatch/shiftwatch/internal/models"
	"github.com/shiftwatch/shiftwatch/internal/store"
	"github.com/shiftwatch/shiftwatch/internal/telemetry"
)

const relatedDataWindow = 2 * time.Hour

type listAlertsParams struct {
	Page     int    `validate:"min=1"`
	PageSize int    `validate:"min=1,max=100"`
	Severity string `validate:"omitempty,oneof=LOW MEDIUM HIGH CRITICAL"`
}

func (s *Server) listAlerts(w http.ResponseWriter, r *http.Request) {
	params := listAlertsParams{
		Page:     1,
		PageSize: 50,
		Severity: r.URL.Query().Get("severity"),
	}

	var err error
	if raw := r.URL.Query().Get("page"); raw != "" {
		if params.Page, err = strconv.Atoi(raw); err != nil {
			s.writeError(w, http.StatusBadRequest, "page must be an integer")
			return
		}
	}
	if raw := r.URL.Query().Get("page_size"); raw != "" {
		if params.PageSize, err = strconv.Atoi(raw); err != nil {
			s.writeError(w, http.StatusBadRequest, "page_size must be an integer")
			return
		}
	}

	if err := s.validate.Struct(params); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	filter := store.ListAlertsFilter{
		Severity: params.Severity,
		Page:     params.Page,
		PageSize: params.PageSize,
	}

	if raw := r.URL.Query().Get("resolved"); raw != "" {
		resolved, err := strconv.ParseBool(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, "resolved must be a boolean")
			return
		}
		filter.Resolved = &resolved
	}

	page, err := s.alerts.List(r.Context(), filter)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, page)
}

type alertDetailResponse struct {
	Alert              *store.AlertWithIdentity `json:"alert"`
	RelatedSessions    []*models.Session        `json:"related_sessions"`
	RelatedScreenshots []*models.Screenshot     `json:"related_screenshots"`
}

// getAlert returns one alert plus the subject's sessions and screenshots
// within two hours either side of the alert's creation time.
func (s *Server) getAlert(w http.ResponseWriter, r *http.Request) {
	alertID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid alert id")
		return
	}

	alert, err := s.alerts.Get(r.Context(), alertID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	from := alert.CreatedAt.Add(-relatedDataWindow)
	to := alert.CreatedAt.Add(relatedDataWindow)

	sessions, err := s.telemetry.SessionsBetween(r.Context(), alert.UserID, from, to)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	screenshots, err := s.telemetry.ScreenshotsBetween(r.Context(), alert.UserID, from, to)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, alertDetailResponse{
		Alert:              alert,
		RelatedSessions:    sessions,
		RelatedScreenshots: screenshots,
	})
}

type resolveAlertRequest struct {
	Notes string `json:"notes" validate:"max=2048"`
}

// resolveAlert marks an alert resolved by the calling admin. The resolver
// must still exist as a user; re-resolving overwrites the previous resolver
// and timestamp.
func (s *Server) resolveAlert(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFromContext(r.Context())

	alertID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid alert id")
		return
	}

	req := resolveAlertRequest{}
	if r.ContentLength != 0 {
		if err := s.decode(r, &req); err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	if _, err := s.users.Get(r.Context(), identity.UserID); err != nil {
		s.writeStoreError(w, err)
		return
	}

	err = s.alerts.Resolve(r.Context(), alertID, identity.UserID, req.Notes, s.clock.Now())
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	telemetry.GetMetrics().AlertsResolvedTotal.Add(r.Context(), 1)

	s.writeJSON(w, http.StatusOK, map[string]any{
		"alert_id": alertID,
		"resolved": true,
	})
}

func (s *Server) alertStats(w http.ResponseWriter, r *http.Request) {
	days := 30
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			s.writeError(w, http.StatusBadRequest, "days must be a positive integer")
			return
		}
		days = parsed
	}

	since := s.clock.Now().AddDate(0, 0, -days)

	stats, err := s.alerts.Stats(r.Context(), since)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, stats)
}
