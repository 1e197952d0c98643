package models

import (
	"time"

	"github.com/google/uuid"
)

// Screenshot upload outcomes reported by the desktop agent.
const (
	ScreenshotStatusPending          = "pending"
	ScreenshotStatusCompleted        = "completed"
	ScreenshotStatusPermissionDenied = "permission_denied"
	ScreenshotStatusFailed           = "failed"
)

// Screenshot is the metadata for one capture attempt tied to a session.
// The file bytes themselves are stored elsewhere; the fraud engine only
// looks at sizes, timestamps and denial flags. Rows are never mutated.
type Screenshot struct {
	ScreenshotID uuid.UUID `json:"screenshot_id"`
	SessionID    uuid.UUID `json:"session_id"`
	UserID       uuid.UUID `json:"user_id"`

	FileSize int64     `json:"file_size"`
	TakenAt  time.Time `json:"taken_at"`

	UploadStatus     string `json:"upload_status"`
	PermissionDenied bool   `json:"permission_denied"`
	ErrorMessage     string `json:"error_message,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
