package fraud

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/shiftwatch/shiftwatch/internal/models"
)

// frequentScreenshotDenial flags a user whose recent capture attempts were
// mostly refused. With no recent screenshots there is nothing to judge and
// no flag. Strict > boundary: exactly the threshold percentage passes.
func (d *Detector) frequentScreenshotDenial(ctx context.Context, userID uuid.UUID) *models.Flag {
	since := d.clock.Now().Add(-d.cfg.DenialWindow)
	screenshots, err := d.telemetry.RecentScreenshots(ctx, userID, since, d.cfg.DenialSampleLimit)
	if err != nil {
		d.queryFailed("frequent_screenshot_denial", err)
		return nil
	}

	if len(screenshots) == 0 {
		return nil
	}

	denied := 0
	for _, s := range screenshots {
		if s.PermissionDenied {
			denied++
		}
	}

	pct := float64(denied) / float64(len(screenshots)) * 100
	if pct <= d.cfg.MaxDenialPercent {
		return nil
	}

	return &models.Flag{
		Type:     models.FlagFrequentScreenshotDenial,
		Severity: models.SeverityHigh,
		Details:  fmt.Sprintf("%.1f%% of screenshots denied in last 4 hours", pct),
	}
}

// suspiciousScreenshotSize flags a session accumulating implausibly small
// captures, a signature of blanked or covered screens.
func (d *Detector) suspiciousScreenshotSize(ctx context.Context, sessionID uuid.UUID) *models.Flag {
	count, err := d.telemetry.CountSmallScreenshots(ctx, sessionID, d.cfg.SmallScreenshotBytes)
	if err != nil {
		d.queryFailed("suspicious_screenshot_size", err)
		return nil
	}

	if count <= d.cfg.MaxSmallScreenshots {
		return nil
	}

	return &models.Flag{
		Type:     models.FlagSuspiciousScreenshotSize,
		Severity: models.SeverityMedium,
		Details:  fmt.Sprintf("%d unusually small screenshots", count),
	}
}
