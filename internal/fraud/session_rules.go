package fraud

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shiftwatch/shiftwatch/internal/models"
)

// rapidLocationChange flags a user whose recent sessions came from more
// distinct IP addresses than a single location plausibly produces. Skipped
// when the current device reported no IP address, matching the original
// agent behavior of omitting the field on capture failure.
func (d *Detector) rapidLocationChange(ctx context.Context, userID uuid.UUID, device models.DeviceMetadata) *models.Flag {
	if device.IPAddress == "" {
		return nil
	}

	since := d.clock.Now().Add(-d.cfg.LocationWindow)
	sessions, err := d.telemetry.RecentSessions(ctx, userID, since, d.cfg.LocationSessionLimit)
	if err != nil {
		d.queryFailed("rapid_location_change", err)
		return nil
	}

	// Distinct non-empty IPs, preserving newest-first order for the detail.
	seen := make(map[string]bool)
	var ips []string
	for _, s := range sessions {
		if ip := s.Device.IPAddress; ip != "" && !seen[ip] {
			seen[ip] = true
			ips = append(ips, ip)
		}
	}

	if len(ips) <= d.cfg.MaxDistinctIPs {
		return nil
	}

	return &models.Flag{
		Type:     models.FlagRapidLocationChange,
		Severity: models.SeverityHigh,
		Details:  fmt.Sprintf("Multiple IPs (%d) in 2 hours: %s", len(ips), strings.Join(ips, ", ")),
	}
}

// multipleDevices flags a user who worked from more distinct hardware
// addresses inside the device window than expected. Skipped when the current
// device reported no MAC address.
func (d *Detector) multipleDevices(ctx context.Context, userID uuid.UUID, device models.DeviceMetadata) *models.Flag {
	if device.MACAddress == "" {
		return nil
	}

	since := d.clock.Now().Add(-d.cfg.DeviceWindow)
	macs, err := d.telemetry.DistinctMACAddresses(ctx, userID, since)
	if err != nil {
		d.queryFailed("multiple_devices", err)
		return nil
	}

	if len(macs) <= d.cfg.MaxDistinctDevices {
		return nil
	}

	return &models.Flag{
		Type:     models.FlagMultipleDevices,
		Severity: models.SeverityMedium,
		Details:  fmt.Sprintf("%d different devices in 24 hours", len(macs)),
	}
}

// unusualHours flags work started outside the configured workday, judged by
// the evaluator's local clock, not the session's timezone. With the default
// end hour of 23 the upper comparison can never fire on a 0-23 clock; the
// check is kept in this literal form deliberately.
func (d *Detector) unusualHours() *models.Flag {
	hour := d.clock.Now().Hour()
	if hour >= d.cfg.WorkdayStartHour && hour <= d.cfg.WorkdayEndHour {
		return nil
	}

	return &models.Flag{
		Type:     models.FlagUnusualHours,
		Severity: models.SeverityLow,
		Details:  fmt.Sprintf("Working at %d:00 (outside normal hours)", hour),
	}
}

// excessiveDailyHours flags a user whose closed sessions since local
// midnight already sum past the daily maximum. Active sessions do not count
// until they close; the strict > boundary means exactly the maximum is fine.
func (d *Detector) excessiveDailyHours(ctx context.Context, userID uuid.UUID) *models.Flag {
	now := d.clock.Now()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	seconds, err := d.telemetry.ClosedSessionSeconds(ctx, userID, midnight)
	if err != nil {
		d.queryFailed("excessive_daily_hours", err)
		return nil
	}

	hours := float64(seconds) / 3600
	if hours <= d.cfg.MaxDailyHours {
		return nil
	}

	return &models.Flag{
		Type:     models.FlagExcessiveHours,
		Severity: models.SeverityHigh,
		Details:  fmt.Sprintf("%.1f hours worked today", hours),
	}
}
