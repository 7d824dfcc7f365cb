// Package devlog is a transport that logs messages instead of sending them.
// It exists for local development and smoke tests where real email delivery
// is unwanted.
package devlog

import (
	"context"

	"github.com/ahrav/mailcourier/internal/domain/notification"
	"github.com/ahrav/mailcourier/pkg/common/logger"
)

var _ notification.Transport = (*Transport)(nil)

// Transport logs each message at info level and reports success.
type Transport struct{ log *logger.Logger }

// NewTransport creates a log-only transport.
func NewTransport(log *logger.Logger) *Transport { return &Transport{log: log} }

// Send logs the message and never fails.
func (t *Transport) Send(ctx context.Context, to notification.Recipient, msg notification.Message) error {
	t.log.Info(ctx, "devlog transport: message sent",
		"to", to.Email,
		"subject", msg.Subject,
		"body_bytes", len(msg.Body))
	return nil
}
