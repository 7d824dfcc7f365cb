// Package postmark sends rendered notifications through the Postmark
// transactional email API.
package postmark

import (
	"context"
	"fmt"

	"github.com/mrz1836/postmark"

	"github.com/ahrav/mailcourier/internal/domain/notification"
)

// Postmark API error codes that indicate the message can never be delivered.
// Everything else is treated as transient and retried.
// https://postmarkapp.com/developer/api/overview#error-codes
const (
	errCodeInactiveRecipient     = 406
	errCodeInvalidEmail          = 300
	errCodeSignatureNotFound     = 400
	errCodeSignatureNotConfirmed = 401
)

// Config holds the Postmark credentials and sender identity.
type Config struct {
	ServerToken  string
	AccountToken string
	SenderEmail  string
	ReplyTo      string
}

var _ notification.Transport = (*Transport)(nil)

// Transport sends messages via Postmark. Failures are classified so the
// retry scheduler only retries what can plausibly succeed later.
type Transport struct {
	client *postmark.Client
	config Config
}

// NewTransport creates a Postmark-backed transport.
func NewTransport(cfg Config) (*Transport, error) {
	if cfg.ServerToken == "" {
		return nil, fmt.Errorf("postmark: server token is required")
	}
	if cfg.SenderEmail == "" {
		return nil, fmt.Errorf("postmark: sender email is required")
	}
	return &Transport{
		client: postmark.NewClient(cfg.ServerToken, cfg.AccountToken),
		config: cfg,
	}, nil
}

// Send delivers a single message. Network and rate-limit failures come back
// transient; rejections tied to the recipient or sender identity come back
// permanent.
func (t *Transport) Send(ctx context.Context, to notification.Recipient, msg notification.Message) error {
	resp, err := t.client.SendEmail(ctx, postmark.Email{
		From:     t.config.SenderEmail,
		ReplyTo:  t.config.ReplyTo,
		To:       to.Email,
		Subject:  msg.Subject,
		HTMLBody: msg.Body,
	})
	if err != nil {
		return notification.TransientDelivery(fmt.Errorf("postmark send: %w", err))
	}
	if resp.ErrorCode > 0 {
		cause := fmt.Errorf("postmark error %d: %s", resp.ErrorCode, resp.Message)
		if isPermanentCode(resp.ErrorCode) {
			return notification.PermanentDelivery(cause)
		}
		return notification.TransientDelivery(cause)
	}
	return nil
}

func isPermanentCode(code int64) bool {
	switch code {
	case errCodeInactiveRecipient, errCodeInvalidEmail,
		errCodeSignatureNotFound, errCodeSignatureNotConfirmed:
		return true
	}
	return false
}
