package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/shiftwatch/shiftwatch/internal/models"
	"github.com/shiftwatch/shiftwatch/internal/store"
)

// TelemetryStore implements store.TelemetryStore using in-memory storage.
// This implementation is for tests and development mode - data is lost on
// restart. Unlike the Postgres store it does not enforce the single active
// session index, which lets the fraud tests construct the multi-active
// histories the evaluators must tolerate.
type TelemetryStore struct {
	mu sync.RWMutex

	sessions       map[uuid.UUID]*models.Session   // session_id -> Session
	sessionsByUser map[uuid.UUID][]uuid.UUID       // user_id -> []session_id
	screenshots    map[uuid.UUID]*models.Screenshot
	shotsByUser    map[uuid.UUID][]uuid.UUID
	shotsBySession map[uuid.UUID][]uuid.UUID
}

// NewTelemetryStore creates a new in-memory telemetry store.
func NewTelemetryStore() *TelemetryStore {
	return &TelemetryStore{
		sessions:       make(map[uuid.UUID]*models.Session),
		sessionsByUser: make(map[uuid.UUID][]uuid.UUID),
		screenshots:    make(map[uuid.UUID]*models.Screenshot),
		shotsByUser:    make(map[uuid.UUID][]uuid.UUID),
		shotsBySession: make(map[uuid.UUID][]uuid.UUID),
	}
}

// CreateSession stores a new session.
func (s *TelemetryStore) CreateSession(ctx context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Clone to avoid external modifications
	clone := *session
	s.sessions[session.SessionID] = &clone
	s.sessionsByUser[session.UserID] = append(s.sessionsByUser[session.UserID], session.SessionID)

	return nil
}

// CloseSession fills in the end time and duration and clears the active flag.
func (s *TelemetryStore) CloseSession(ctx context.Context, sessionID uuid.UUID, endTime time.Time) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, exists := s.sessions[sessionID]
	if !exists {
		return nil, store.ErrSessionNotFound
	}
	if !session.IsActive {
		return nil, store.ErrSessionNotActive
	}

	end := endTime
	session.EndTime = &end
	session.DurationSeconds = int64(endTime.Sub(session.StartTime).Seconds())
	session.IsActive = false
	session.UpdatedAt = endTime

	clone := *session
	return &clone, nil
}

// GetSession retrieves a session by ID.
func (s *TelemetryStore) GetSession(ctx context.Context, sessionID uuid.UUID) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, exists := s.sessions[sessionID]
	if !exists {
		return nil, store.ErrSessionNotFound
	}

	clone := *session
	return &clone, nil
}

// ActiveSessions returns all sessions currently flagged active for the user.
func (s *TelemetryStore) ActiveSessions(ctx context.Context, userID uuid.UUID) ([]*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active []*models.Session
	for _, id := range s.sessionsByUser[userID] {
		if session := s.sessions[id]; session.IsActive {
			clone := *session
			active = append(active, &clone)
		}
	}

	return active, nil
}

// RecentSessions returns the user's sessions starting at or after since,
// newest first, capped at limit.
func (s *TelemetryStore) RecentSessions(ctx context.Context, userID uuid.UUID, since time.Time, limit int) ([]*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var recent []*models.Session
	for _, id := range s.sessionsByUser[userID] {
		if session := s.sessions[id]; !session.StartTime.Before(since) {
			clone := *session
			recent = append(recent, &clone)
		}
	}

	sort.Slice(recent, func(i, j int) bool {
		return recent[i].StartTime.After(recent[j].StartTime)
	})

	if limit > 0 && len(recent) > limit {
		recent = recent[:limit]
	}

	return recent, nil
}

// DistinctMACAddresses returns the distinct non-empty MAC addresses across
// the user's sessions starting at or after since.
func (s *TelemetryStore) DistinctMACAddresses(ctx context.Context, userID uuid.UUID, since time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]bool)
	var macs []string
	for _, id := range s.sessionsByUser[userID] {
		session := s.sessions[id]
		if session.StartTime.Before(since) {
			continue
		}
		if mac := session.Device.MACAddress; mac != "" && !seen[mac] {
			seen[mac] = true
			macs = append(macs, mac)
		}
	}

	return macs, nil
}

// ClosedSessionSeconds sums the recorded duration of the user's closed
// sessions starting at or after since.
func (s *TelemetryStore) ClosedSessionSeconds(ctx context.Context, userID uuid.UUID, since time.Time) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total int64
	for _, id := range s.sessionsByUser[userID] {
		session := s.sessions[id]
		if session.IsClosed() && !session.StartTime.Before(since) {
			total += session.DurationSeconds
		}
	}

	return total, nil
}

// SessionsBetween returns the user's sessions starting inside [from, to],
// newest first.
func (s *TelemetryStore) SessionsBetween(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.Session
	for _, id := range s.sessionsByUser[userID] {
		session := s.sessions[id]
		if !session.StartTime.Before(from) && !session.StartTime.After(to) {
			clone := *session
			matched = append(matched, &clone)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].StartTime.After(matched[j].StartTime)
	})

	return matched, nil
}

// CreateScreenshot stores a new screenshot record.
func (s *TelemetryStore) CreateScreenshot(ctx context.Context, screenshot *models.Screenshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *screenshot
	s.screenshots[screenshot.ScreenshotID] = &clone
	s.shotsByUser[screenshot.UserID] = append(s.shotsByUser[screenshot.UserID], screenshot.ScreenshotID)
	s.shotsBySession[screenshot.SessionID] = append(s.shotsBySession[screenshot.SessionID], screenshot.ScreenshotID)

	return nil
}

// RecentScreenshots returns the user's screenshots taken at or after since,
// newest first, capped at limit.
func (s *TelemetryStore) RecentScreenshots(ctx context.Context, userID uuid.UUID, since time.Time, limit int) ([]*models.Screenshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var recent []*models.Screenshot
	for _, id := range s.shotsByUser[userID] {
		if shot := s.screenshots[id]; !shot.TakenAt.Before(since) {
			clone := *shot
			recent = append(recent, &clone)
		}
	}

	sort.Slice(recent, func(i, j int) bool {
		return recent[i].TakenAt.After(recent[j].TakenAt)
	})

	if limit > 0 && len(recent) > limit {
		recent = recent[:limit]
	}

	return recent, nil
}

// CountSmallScreenshots counts the session's screenshots with a byte size
// strictly below maxBytes.
func (s *TelemetryStore) CountSmallScreenshots(ctx context.Context, sessionID uuid.UUID, maxBytes int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, id := range s.shotsBySession[sessionID] {
		if s.screenshots[id].FileSize < maxBytes {
			count++
		}
	}

	return count, nil
}

// ScreenshotsBetween returns the user's screenshots taken inside [from, to],
// newest first.
func (s *TelemetryStore) ScreenshotsBetween(ctx context.Context, userID uuid.UUID, from, to time.Time) ([]*models.Screenshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*models.Screenshot
	for _, id := range s.shotsByUser[userID] {
		shot := s.screenshots[id]
		if !shot.TakenAt.Before(from) && !shot.TakenAt.After(to) {
			clone := *shot
			matched = append(matched, &clone)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].TakenAt.After(matched[j].TakenAt)
	})

	return matched, nil
}
