package fraud

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/shiftwatch/shiftwatch/internal/models"
)

// concurrentSessions reports a user running active sessions on more than one
// device at once. One active session is normal; several active sessions that
// all resolve to the same device identifier usually mean an unclean stop and
// are not flagged. The full active session list rides along on the flag so a
// reviewer can see exactly what overlapped.
//
// The "at most one active session per user" invariant is enforced by the
// session-start path, not here; this check assumes it can be violated and
// reads whatever is actually in the store.
func (d *Detector) concurrentSessions(ctx context.Context, userID uuid.UUID) *models.Flag {
	active, err := d.telemetry.ActiveSessions(ctx, userID)
	if err != nil {
		d.queryFailed("concurrent_sessions", err)
		return nil
	}

	if len(active) <= 1 {
		return nil
	}

	devices := make(map[string]bool)
	for _, s := range active {
		if id := s.Device.DeviceID(); id != "" {
			devices[id] = true
		}
	}

	if len(devices) <= 1 {
		return nil
	}

	return &models.Flag{
		Type:     models.FlagConcurrentSessions,
		Severity: models.SeverityCritical,
		Details:  fmt.Sprintf("%d active sessions from %d different devices", len(active), len(devices)),
		Sessions: active,
	}
}
