package models

import (
	"time"

	"github.com/google/uuid"
)

// Severity of a single fraud flag. Stored as the string form inside the
// alert's flags JSON, so the values must stay stable.
type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// FlagType identifies which heuristic produced a flag.
type FlagType string

const (
	FlagRapidLocationChange      FlagType = "RAPID_LOCATION_CHANGE"
	FlagMultipleDevices          FlagType = "MULTIPLE_DEVICES"
	FlagUnusualHours             FlagType = "UNUSUAL_HOURS"
	FlagExcessiveHours           FlagType = "EXCESSIVE_HOURS"
	FlagConcurrentSessions       FlagType = "CONCURRENT_SESSIONS"
	FlagFrequentScreenshotDenial FlagType = "FREQUENT_SCREENSHOT_DENIAL"
	FlagSuspiciousScreenshotSize FlagType = "SUSPICIOUS_SCREENSHOT_SIZE"
)

// Flag is one heuristic finding produced by a single evaluation pass.
// Flags are never persisted individually, only as part of an alert's flag
// collection. The concurrent-session check attaches the offending active
// sessions so reviewers can see what overlapped.
type Flag struct {
	Type     FlagType   `json:"type"`
	Severity Severity   `json:"severity"`
	Details  string     `json:"details"`
	Sessions []*Session `json:"sessions,omitempty"`
}

// Alert is a persisted, scored group of flags tied to a user. Once resolved
// the resolver id and resolution timestamp are both set; resolving again
// overwrites them.
type Alert struct {
	AlertID   uuid.UUID `json:"alert_id"`
	UserID    uuid.UUID `json:"user_id"`
	RiskScore int       `json:"risk_score"`

	Flags       []Flag         `json:"flags"`
	SessionData map[string]any `json:"session_data,omitempty"`

	Resolved        bool       `json:"resolved"`
	ResolvedBy      *uuid.UUID `json:"resolved_by,omitempty"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
	ResolutionNotes *string    `json:"resolution_notes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}
