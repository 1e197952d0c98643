package models

import (
	"time"

	"github.com/google/uuid"
)

// DeviceMetadata describes the machine a work session was started from, as
// reported by the desktop agent. All fields are optional.
type DeviceMetadata struct {
	IPAddress  string `json:"ip_address,omitempty"`
	MACAddress string `json:"mac_address,omitempty"`
	Hostname   string `json:"hostname,omitempty"`
	OSInfo     string `json:"os_info,omitempty"`
}

// DeviceID returns the best-available proxy for "distinct physical device":
// the MAC address, else the IP address, else the hostname. Returns "" when
// no device field was reported.
func (d DeviceMetadata) DeviceID() string {
	switch {
	case d.MACAddress != "":
		return d.MACAddress
	case d.IPAddress != "":
		return d.IPAddress
	default:
		return d.Hostname
	}
}

// Session represents one continuous tracked work interval (a time log).
// It is created at session-start and mutated exactly once at session-stop,
// when the end time and duration are filled in and the active flag cleared.
type Session struct {
	SessionID uuid.UUID `json:"session_id"`
	UserID    uuid.UUID `json:"user_id"`
	ProjectID uuid.UUID `json:"project_id"`
	TaskID    uuid.UUID `json:"task_id"`

	StartTime       time.Time  `json:"start_time"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	DurationSeconds int64      `json:"duration_seconds"`

	Device   DeviceMetadata `json:"device"`
	IsActive bool           `json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsClosed reports whether the session has been stopped.
func (s *Session) IsClosed() bool {
	return s.EndTime != nil
}
