package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// SlackClient posts messages to Slack incoming webhooks.
type SlackClient struct {
	httpClient *http.Client
	log        *zap.Logger
}

// NewSlackClient creates a Slack webhook client.
func NewSlackClient(log *zap.Logger) *SlackClient {
	return &SlackClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        log,
	}
}

type slackPayload struct {
	Text string `json:"text"`
}

// SendMessage posts text to the webhook URL. Any failure, including a
// non-2xx response, is a delivery failure.
func (c *SlackClient) SendMessage(ctx context.Context, webhookURL, text string) error {
	if webhookURL == "" {
		return fmt.Errorf("slack webhook URL is required")
	}
	if !strings.HasPrefix(webhookURL, "http://") && !strings.HasPrefix(webhookURL, "https://") {
		return fmt.Errorf("invalid slack webhook URL %q", maskURL(webhookURL))
	}

	body, err := json.Marshal(slackPayload{Text: text})
	if err != nil {
		return fmt.Errorf("encoding slack payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("sending slack message to %s: %w", maskURL(webhookURL), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("slack webhook returned status %d", resp.StatusCode)
	}
	c.log.Debug("slack message sent", zap.String("webhook", maskURL(webhookURL)))
	return nil
}

// maskURL hides the secret tail of a webhook URL in logs and errors.
func maskURL(url string) string {
	if len(url) > 50 {
		return url[:30] + "..." + url[len(url)-10:]
	}
	return url
}
