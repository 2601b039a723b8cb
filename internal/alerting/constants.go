// Package alerting schedules threshold-rule evaluation, computes metric
// comparisons, and dispatches multi-channel notifications.
package alerting

// Comparison operators define how an observed metric value is tested against
// the rule's threshold or forecast band.
const (
	ComparisonAbove         = "above"
	ComparisonBelow         = "below"
	ComparisonEqual         = "equal"
	ComparisonOutsideBounds = "outside_bounds"
)

// Schedule frequencies define how often a rule is evaluated.
const (
	FrequencyHourly = "hourly"
	FrequencyDaily  = "daily"
	FrequencyWeekly = "weekly"
)

// Notification channels.
const (
	ChannelEmail   = "email"
	ChannelSMS     = "sms"
	ChannelSlack   = "slack"
	ChannelWebhook = "webhook"

	// ChannelAll marks a delivery record covering a whole subscriber,
	// used for quiet-hours skips.
	ChannelAll = "all"
)

// Delivery statuses.
const (
	StatusSent    = "sent"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

// CohortKeyAll is the sentinel cohort key for rules without a cohort filter.
const CohortKeyAll = "__all__"

// defaultEqualTolerance is the absolute tolerance for the equal comparison
// when the engine config leaves it unset.
const defaultEqualTolerance = 0.01
