package fraud

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/shiftwatch/shiftwatch/internal/models"
	"github.com/shiftwatch/shiftwatch/internal/store"
	"github.com/shiftwatch/shiftwatch/internal/telemetry"
)

// Detector runs the heuristic rule evaluators against the telemetry store.
// It holds no state between invocations: every evaluation re-reads history,
// so each pass is idempotent with respect to storage contents.
//
// Storage errors inside an evaluator are logged and swallowed, never
// propagated. Fraud detection is best-effort: a detection failure must not
// block the business operation that triggered it.
type Detector struct {
	telemetry store.TelemetryStore
	clock     Clock
	cfg       *Config
}

// NewDetector creates a detector. A nil clock falls back to the system
// clock, a nil config to the default rule set. A non-nil config is used
// as given, zeros included; build one from DefaultConfig or LoadConfig.
func NewDetector(ts store.TelemetryStore, clock Clock, cfg *Config) *Detector {
	if clock == nil {
		clock = SystemClock()
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}

	return &Detector{
		telemetry: ts,
		clock:     clock,
		cfg:       cfg,
	}
}

// EvaluateSessionStart runs the session-start evaluators for a user about to
// start a session from the given device. Returns the flags produced, which
// may be empty. Never returns an error.
func (d *Detector) EvaluateSessionStart(ctx context.Context, userID uuid.UUID, device models.DeviceMetadata) []models.Flag {
	ctx, cancel := d.queryContext(ctx)
	defer cancel()
	defer d.observe("session_start", d.clock.Now())

	var flags []models.Flag

	if flag := d.rapidLocationChange(ctx, userID, device); flag != nil {
		flags = append(flags, *flag)
	}
	if flag := d.multipleDevices(ctx, userID, device); flag != nil {
		flags = append(flags, *flag)
	}
	if flag := d.unusualHours(); flag != nil {
		flags = append(flags, *flag)
	}
	if flag := d.excessiveDailyHours(ctx, userID); flag != nil {
		flags = append(flags, *flag)
	}

	d.countFlags("session_start", flags)
	return flags
}

// EvaluateScreenshotUpload runs the screenshot-upload evaluators for a user
// after a capture attempt on the given session. Never returns an error.
func (d *Detector) EvaluateScreenshotUpload(ctx context.Context, userID, sessionID uuid.UUID) []models.Flag {
	ctx, cancel := d.queryContext(ctx)
	defer cancel()
	defer d.observe("screenshot_upload", d.clock.Now())

	var flags []models.Flag

	if flag := d.frequentScreenshotDenial(ctx, userID); flag != nil {
		flags = append(flags, *flag)
	}
	if flag := d.suspiciousScreenshotSize(ctx, sessionID); flag != nil {
		flags = append(flags, *flag)
	}

	d.countFlags("screenshot_upload", flags)
	return flags
}

// CheckConcurrentSessions detects overlapping active sessions from distinct
// devices. Invoked at session-start before the new session row exists. The
// check is advisory: it reports, it never prevents session creation.
func (d *Detector) CheckConcurrentSessions(ctx context.Context, userID uuid.UUID, device models.DeviceMetadata) *models.Flag {
	ctx, cancel := d.queryContext(ctx)
	defer cancel()
	defer d.observe("concurrent_sessions", d.clock.Now())

	flag := d.concurrentSessions(ctx, userID)
	if flag != nil {
		d.countFlags("concurrent_sessions", []models.Flag{*flag})
	}
	return flag
}

// queryContext bounds evaluator storage queries so a degraded store cannot
// hold up the triggering request indefinitely. A non-positive timeout
// disables the bound.
func (d *Detector) queryContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if d.cfg.QueryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, d.cfg.QueryTimeout)
}

func (d *Detector) observe(trigger string, started time.Time) {
	m := telemetry.GetMetrics()
	attrs := metric.WithAttributes(attribute.String("trigger", trigger))
	m.EvaluationsTotal.Add(context.Background(), 1, attrs)
	m.EvaluationDuration.Record(context.Background(),
		float64(d.clock.Now().Sub(started).Milliseconds()), attrs)
}

func (d *Detector) countFlags(trigger string, flags []models.Flag) {
	if len(flags) == 0 {
		return
	}
	m := telemetry.GetMetrics()
	for _, flag := range flags {
		m.FlagsRaisedTotal.Add(context.Background(), 1, metric.WithAttributes(
			attribute.String("trigger", trigger),
			attribute.String("type", string(flag.Type)),
			attribute.String("severity", string(flag.Severity)),
		))
	}
}

// queryFailed implements the best-effort contract: the error is logged and
// counted, and the rule that hit it yields no flags.
func (d *Detector) queryFailed(rule string, err error) {
	log.Error().Err(err).Str("rule", rule).Msg("Fraud rule query failed, skipping rule")
	telemetry.GetMetrics().EvaluationErrorsTotal.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("rule", rule)))
}
