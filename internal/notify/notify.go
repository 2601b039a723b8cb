// Package notify implements the outbound notification clients consumed by the
// alerting engine: transactional email, an SMS gateway, Slack incoming
// webhooks, and generic push targets.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/resend/resend-go/v2"
	"go.uber.org/zap"
)

const httpTimeout = 30 * time.Second

// Config enables channels explicitly. Flags live here, not in process-wide
// environment reads, so tests and hosts control them directly.
type Config struct {
	EmailEnabled  bool
	EmailFrom     string
	ResendAPIKey  string
	SMSEnabled    bool
	SMSGatewayURL string
}

// Service sends email and SMS notifications. A disabled channel returns
// (false, nil): not sent, not an error.
type Service struct {
	cfg        Config
	emails     *resend.Client
	httpClient *http.Client
	log        *zap.Logger
}

// NewService creates the notification service from explicit configuration.
func NewService(cfg Config, log *zap.Logger) *Service {
	s := &Service{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: httpTimeout},
		log:        log,
	}
	if cfg.EmailEnabled && cfg.ResendAPIKey != "" {
		s.emails = resend.NewClient(cfg.ResendAPIKey)
	}
	return s
}

// SendEmail delivers one HTML email. Returns false when the email channel is
// disabled or unconfigured.
func (s *Service) SendEmail(ctx context.Context, to, subject, html string) (bool, error) {
	if !s.cfg.EmailEnabled || s.emails == nil {
		return false, nil
	}
	if to == "" {
		return false, fmt.Errorf("email recipient is required")
	}

	params := &resend.SendEmailRequest{
		From:    s.cfg.EmailFrom,
		To:      []string{to},
		Subject: subject,
		Html:    html,
	}
	if _, err := s.emails.Emails.SendWithContext(ctx, params); err != nil {
		return false, fmt.Errorf("sending email to %s: %w", to, err)
	}
	s.log.Debug("email sent", zap.String("to", to), zap.String("subject", subject))
	return true, nil
}

// smsPayload is the JSON body posted to the SMS gateway.
type smsPayload struct {
	To      string `json:"to"`
	Message string `json:"message"`
}

// SendSMS posts one message to the configured SMS gateway. Returns false when
// the SMS channel is disabled or unconfigured.
func (s *Service) SendSMS(ctx context.Context, to, message string) (bool, error) {
	if !s.cfg.SMSEnabled || s.cfg.SMSGatewayURL == "" {
		return false, nil
	}
	if to == "" {
		return false, fmt.Errorf("sms recipient is required")
	}

	body, err := json.Marshal(smsPayload{To: to, Message: message})
	if err != nil {
		return false, fmt.Errorf("encoding sms payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.SMSGatewayURL, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("building sms request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("sending sms to %s: %w", to, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false, fmt.Errorf("sms gateway returned status %d", resp.StatusCode)
	}
	s.log.Debug("sms sent", zap.String("to", to))
	return true, nil
}
