package alerting

import "context"

// MetricQuery identifies a metric value to look up, optionally scoped to a
// branch and a cohort. Metric may carry a qualifier, e.g. "revenue:forecast".
type MetricQuery struct {
	Metric   string
	BranchID string
	Cohort   *Cohort
}

// Band is a forecast lower/upper bound pair for outside_bounds comparisons.
type Band struct {
	LowerBound float64 `json:"lowerBound"`
	UpperBound float64 `json:"upperBound"`
}

// MetricProvider resolves a metric's current (or forecasted) value. A nil
// value with a nil error means the data is unavailable, which is a normal
// non-error outcome.
type MetricProvider interface {
	MetricValue(ctx context.Context, query MetricQuery) (*float64, error)
}

// BandProvider is the optional forecast-band lookup a MetricProvider may
// expose. Rules with outside_bounds comparisons only trigger when their
// provider implements it and returns a band.
type BandProvider interface {
	ForecastBand(ctx context.Context, query MetricQuery) (*Band, error)
}

// Notifier sends email and SMS notifications. A false return with a nil error
// means the channel is disabled by configuration, not a failure.
type Notifier interface {
	SendEmail(ctx context.Context, to, subject, html string) (bool, error)
	SendSMS(ctx context.Context, to, message string) (bool, error)
}

// SlackSender posts a message to a Slack incoming webhook. Any error is a
// delivery failure.
type SlackSender interface {
	SendMessage(ctx context.Context, webhookURL, text string) error
}

// WebhookSender delivers to generic push/webhook targets configured as direct
// rule channels.
type WebhookSender interface {
	Send(ctx context.Context, targetURL, message string) error
}
