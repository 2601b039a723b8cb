package alerting

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zeez-dotcom/laundryao-analytics/internal/datastore/entities"
)

// dispatch fans a triggered rule out to every subscriber and every direct
// rule channel concurrently. It returns only once every attempt — sent,
// skipped, or failed — has been recorded in the audit trail.
func (e *Engine) dispatch(ctx context.Context, rule *entities.AlertRule, value float64, band *Band, now time.Time) {
	msg := buildMessage(rule, value, band, now)

	var wg sync.WaitGroup
	for i := range rule.Subscribers {
		wg.Add(1)
		go func(userID string) {
			defer wg.Done()
			e.dispatchSubscriber(ctx, rule, msg, userID, now)
		}(rule.Subscribers[i].UserID)
	}
	for i := range rule.Channels {
		wg.Add(1)
		go func(channel entities.AlertChannel) {
			defer wg.Done()
			e.dispatchDirect(ctx, rule, msg, channel, now)
		}(rule.Channels[i])
	}
	wg.Wait()
}

// dispatchSubscriber resolves one subscriber's preferences and notifies their
// enabled channels. Quiet hours suppress everything for the subscriber with a
// single skipped record; direct rule channels are deliberately not gated by
// any individual's quiet hours.
func (e *Engine) dispatchSubscriber(ctx context.Context, rule *entities.AlertRule, msg Message, userID string, now time.Time) {
	prefs, err := e.repo.GetPreferences(ctx, userID)
	if err != nil {
		e.record(ctx, rule, ChannelAll, userID, msg, StatusFailed, err.Error(), now)
		return
	}
	if prefs == nil {
		e.log.Debug("subscriber has no preferences on file",
			zap.Uint("rule_id", rule.ID),
			zap.String("user_id", userID))
		return
	}

	if inQuietWindow(prefs.QuietStart, prefs.QuietEnd, now) {
		e.record(ctx, rule, ChannelAll, userID, msg, StatusSkipped, "quiet hours", now)
		return
	}

	var wg sync.WaitGroup
	if prefs.EmailEnabled && prefs.EmailAddress != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.sendEmail(ctx, rule, msg, prefs.EmailAddress, now)
		}()
	}
	if prefs.SMSEnabled && prefs.PhoneNumber != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.sendSMS(ctx, rule, msg, prefs.PhoneNumber, now)
		}()
	}
	if prefs.SlackEnabled && prefs.SlackWebhookURL != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.sendSlack(ctx, rule, msg, prefs.SlackWebhookURL, now)
		}()
	}
	wg.Wait()
}

// dispatchDirect delivers to one explicit rule-level target.
func (e *Engine) dispatchDirect(ctx context.Context, rule *entities.AlertRule, msg Message, channel entities.AlertChannel, now time.Time) {
	switch channel.Channel {
	case ChannelEmail:
		e.sendEmail(ctx, rule, msg, channel.Target, now)
	case ChannelSMS:
		e.sendSMS(ctx, rule, msg, channel.Target, now)
	case ChannelSlack:
		e.sendSlack(ctx, rule, msg, channel.Target, now)
	case ChannelWebhook:
		e.sendWebhook(ctx, rule, msg, channel.Target, now)
	default:
		e.record(ctx, rule, channel.Channel, channel.Target, msg, StatusFailed, "unknown channel", now)
	}
}

func (e *Engine) sendEmail(ctx context.Context, rule *entities.AlertRule, msg Message, to string, now time.Time) {
	if e.notifier == nil {
		e.record(ctx, rule, ChannelEmail, to, msg, StatusFailed, "email client not configured", now)
		return
	}
	sent, err := e.notifier.SendEmail(ctx, to, msg.Subject, msg.HTML)
	switch {
	case err != nil:
		e.record(ctx, rule, ChannelEmail, to, msg, StatusFailed, err.Error(), now)
	case !sent:
		e.record(ctx, rule, ChannelEmail, to, msg, StatusSkipped, "email channel disabled", now)
	default:
		e.record(ctx, rule, ChannelEmail, to, msg, StatusSent, "", now)
	}
}

func (e *Engine) sendSMS(ctx context.Context, rule *entities.AlertRule, msg Message, to string, now time.Time) {
	if e.notifier == nil {
		e.record(ctx, rule, ChannelSMS, to, msg, StatusFailed, "sms client not configured", now)
		return
	}
	sent, err := e.notifier.SendSMS(ctx, to, msg.Text)
	switch {
	case err != nil:
		e.record(ctx, rule, ChannelSMS, to, msg, StatusFailed, err.Error(), now)
	case !sent:
		e.record(ctx, rule, ChannelSMS, to, msg, StatusSkipped, "sms channel disabled", now)
	default:
		e.record(ctx, rule, ChannelSMS, to, msg, StatusSent, "", now)
	}
}

func (e *Engine) sendSlack(ctx context.Context, rule *entities.AlertRule, msg Message, webhookURL string, now time.Time) {
	if e.slack == nil {
		e.record(ctx, rule, ChannelSlack, webhookURL, msg, StatusFailed, "slack client not configured", now)
		return
	}
	if err := e.slack.SendMessage(ctx, webhookURL, msg.Text); err != nil {
		e.record(ctx, rule, ChannelSlack, webhookURL, msg, StatusFailed, err.Error(), now)
		return
	}
	e.record(ctx, rule, ChannelSlack, webhookURL, msg, StatusSent, "", now)
}

func (e *Engine) sendWebhook(ctx context.Context, rule *entities.AlertRule, msg Message, target string, now time.Time) {
	if e.webhook == nil {
		e.record(ctx, rule, ChannelWebhook, target, msg, StatusFailed, "webhook sender not configured", now)
		return
	}
	if err := e.webhook.Send(ctx, target, msg.Text); err != nil {
		e.record(ctx, rule, ChannelWebhook, target, msg, StatusFailed, err.Error(), now)
		return
	}
	e.record(ctx, rule, ChannelWebhook, target, msg, StatusSent, "", now)
}

// record appends one delivery audit row. Recording failures are logged; they
// never propagate out of dispatch.
func (e *Engine) record(ctx context.Context, rule *entities.AlertRule, channel, recipient string, msg Message, status, errText string, now time.Time) {
	e.metrics.DeliveryRecorded(channel, status)
	delivery := &entities.AlertDelivery{
		RuleID:      rule.ID,
		Channel:     channel,
		Recipient:   recipient,
		Payload:     msg.Snapshot,
		DeliveredAt: now,
		Status:      status,
		Error:       errText,
	}
	if err := e.repo.RecordDelivery(ctx, delivery); err != nil {
		e.log.Error("failed to record delivery",
			zap.Uint("rule_id", rule.ID),
			zap.String("channel", channel),
			zap.Error(err))
	}
}
