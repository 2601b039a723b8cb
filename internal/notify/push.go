package notify

import (
	"context"
	"errors"
	"fmt"

	"github.com/nicholas-fedor/shoutrrr"
	"github.com/nicholas-fedor/shoutrrr/pkg/types"
	"go.uber.org/zap"
)

// PushSender delivers to generic push/webhook targets expressed as shoutrrr
// service URLs (ntfy://, discord://, generic://, ...). It backs the "webhook"
// direct rule channel.
type PushSender struct {
	log *zap.Logger
}

// NewPushSender creates a push sender.
func NewPushSender(log *zap.Logger) *PushSender {
	return &PushSender{log: log}
}

// Send routes one message to the target service URL.
func (p *PushSender) Send(_ context.Context, targetURL, message string) error {
	if targetURL == "" {
		return fmt.Errorf("push target URL is required")
	}

	sender, err := shoutrrr.CreateSender(targetURL)
	if err != nil {
		return fmt.Errorf("creating push sender: %w", err)
	}

	if errs := sender.Send(message, &types.Params{}); len(errs) > 0 {
		if err := errors.Join(errs...); err != nil {
			return fmt.Errorf("sending push notification: %w", err)
		}
	}
	p.log.Debug("push notification sent")
	return nil
}
