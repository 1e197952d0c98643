package fraud

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/shiftwatch/shiftwatch/internal/models"
	"github.com/shiftwatch/shiftwatch/internal/store"
	"github.com/shiftwatch/shiftwatch/internal/telemetry"
)

// Recorder persists scored findings as durable alerts. Like the detector it
// is best-effort: an insert failure is logged and swallowed, so an
// evaluation that found flags but could not persist them produces no alert
// and no error for the triggering request. The warning log lines are the
// only real-time signal; there is no push channel.
type Recorder struct {
	alerts store.AlertStore
	clock  Clock
}

// NewRecorder creates a recorder. A nil clock falls back to the system clock.
func NewRecorder(alerts store.AlertStore, clock Clock) *Recorder {
	if clock == nil {
		clock = SystemClock()
	}

	return &Recorder{
		alerts: alerts,
		clock:  clock,
	}
}

// RecordIfFlagged scores the flags and inserts one alert row. A no-op when
// flags is empty: recording with zero flags is not a defined operation.
func (r *Recorder) RecordIfFlagged(ctx context.Context, userID uuid.UUID, flags []models.Flag, sessionData map[string]any) {
	if len(flags) == 0 {
		return
	}

	alert := &models.Alert{
		AlertID:     uuid.Must(uuid.NewV7()),
		UserID:      userID,
		RiskScore:   RiskScore(flags),
		Flags:       flags,
		SessionData: sessionData,
		CreatedAt:   r.clock.Now(),
	}

	if err := r.alerts.Insert(ctx, alert); err != nil {
		log.Error().Err(err).
			Str("user_id", userID.String()).
			Int("risk_score", alert.RiskScore).
			Int("flag_count", len(flags)).
			Msg("Failed to persist fraud alert, finding lost")
		telemetry.GetMetrics().AlertRecordFailuresTotal.Add(context.Background(), 1)
		return
	}

	log.Warn().
		Str("alert_id", alert.AlertID.String()).
		Str("user_id", userID.String()).
		Int("risk_score", alert.RiskScore).
		Msg("Fraud alert recorded")
	for _, flag := range flags {
		log.Warn().
			Str("alert_id", alert.AlertID.String()).
			Str("type", string(flag.Type)).
			Str("severity", string(flag.Severity)).
			Str("details", flag.Details).
			Msg("Fraud flag")
	}

	telemetry.GetMetrics().AlertsRecordedTotal.Add(context.Background(), 1)
}
