package server

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/shiftwatch/shiftwatch/internal/auth"
	shhttp "github.com/shiftwatch/shiftwatch/internal/http"
	"github.com/shiftwatch/shiftwatch/internal/models"
)

type startTrackingRequest struct {
	ProjectID uuid.UUID `json:"project_id" validate:"required"`
	TaskID    uuid.UUID `json:"task_id"`
	Device    struct {
		MACAddress string `json:"mac_address" validate:"max=64"`
		Hostname   string `json:"hostname" validate:"max=255"`
		OSInfo     string `json:"os_info" validate:"max=255"`
	} `json:"device"`
}

// startTracking opens a session for the caller. Fraud evaluation runs against
// the history as it stands before the new session is written, and its outcome
// never blocks the request.
func (s *Server) startTracking(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFromContext(r.Context())

	var req startTrackingRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	device := models.DeviceMetadata{
		IPAddress:  shhttp.ClientIPFromContext(r.Context()),
		MACAddress: req.Device.MACAddress,
		Hostname:   req.Device.Hostname,
		OSInfo:     req.Device.OSInfo,
	}

	now := s.clock.Now()

	var flags []models.Flag
	if flag := s.detector.CheckConcurrentSessions(r.Context(), identity.UserID, device); flag != nil {
		flags = append(flags, *flag)
	}
	flags = append(flags, s.detector.EvaluateSessionStart(r.Context(), identity.UserID, device)...)

	s.recorder.RecordIfFlagged(r.Context(), identity.UserID, flags, map[string]any{
		"project_id":  req.ProjectID.String(),
		"task_id":     req.TaskID.String(),
		"ip_address":  device.IPAddress,
		"mac_address": device.MACAddress,
		"hostname":    device.Hostname,
		"timestamp":   now.Format(time.RFC3339),
	})

	active, err := s.telemetry.ActiveSessions(r.Context(), identity.UserID)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if len(active) > 0 {
		s.writeJSON(w, http.StatusConflict, map[string]any{
			"error":             "user already has an active session",
			"active_session_id": active[0].SessionID,
		})
		return
	}

	session := &models.Session{
		SessionID: uuid.Must(uuid.NewV7()),
		UserID:    identity.UserID,
		ProjectID: req.ProjectID,
		TaskID:    req.TaskID,
		StartTime: now,
		Device:    device,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.telemetry.CreateSession(r.Context(), session); err != nil {
		s.writeStoreError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, session)
}

type stopTrackingRequest struct {
	SessionID uuid.UUID `json:"session_id" validate:"required"`
}

func (s *Server) stopTracking(w http.ResponseWriter, r *http.Request) {
	var req stopTrackingRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	session, err := s.telemetry.CloseSession(r.Context(), req.SessionID, s.clock.Now())
	if err != nil {
		s.writeStoreError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, session)
}

type recordScreenshotRequest struct {
	SessionID        uuid.UUID  `json:"session_id" validate:"required"`
	FileSize         int64      `json:"file_size" validate:"min=0"`
	TakenAt          *time.Time `json:"taken_at"`
	PermissionDenied bool       `json:"permission_denied"`
	ErrorMessage     string     `json:"error_message" validate:"max=1024"`
}

// recordScreenshot runs the screenshot evaluators against the history as it
// stands before the new capture, then stores the metadata. A capture counts
// toward the thresholds from the next upload onward.
func (s *Server) recordScreenshot(w http.ResponseWriter, r *http.Request) {
	identity := auth.IdentityFromContext(r.Context())

	var req recordScreenshotRequest
	if err := s.decode(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	now := s.clock.Now()

	takenAt := now
	if req.TakenAt != nil {
		takenAt = *req.TakenAt
	}

	status := models.ScreenshotStatusCompleted
	if req.PermissionDenied {
		status = models.ScreenshotStatusPermissionDenied
	}

	flags := s.detector.EvaluateScreenshotUpload(r.Context(), identity.UserID, req.SessionID)
	s.recorder.RecordIfFlagged(r.Context(), identity.UserID, flags, map[string]any{
		"session_id":        req.SessionID.String(),
		"file_size":         req.FileSize,
		"permission_denied": req.PermissionDenied,
		"timestamp":         now.Format(time.RFC3339),
	})

	screenshot := &models.Screenshot{
		ScreenshotID:     uuid.Must(uuid.NewV7()),
		SessionID:        req.SessionID,
		UserID:           identity.UserID,
		FileSize:         req.FileSize,
		TakenAt:          takenAt,
		UploadStatus:     status,
		PermissionDenied: req.PermissionDenied,
		ErrorMessage:     req.ErrorMessage,
		CreatedAt:        now,
	}

	if err := s.telemetry.CreateScreenshot(r.Context(), screenshot); err != nil {
		s.writeStoreError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, screenshot)
}
