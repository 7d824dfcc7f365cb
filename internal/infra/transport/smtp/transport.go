// Package smtp sends rendered notifications over plain SMTP. It backs the
// synchronous fallback path and small self-hosted deployments where a
// transactional email API is not available.
package smtp

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"net/textproto"
	"strings"

	"golang.org/x/time/rate"

	"github.com/ahrav/mailcourier/internal/domain/notification"
)

// Config holds the SMTP server address and credentials.
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string

	// MaxSendRate caps outgoing messages per second. Zero disables the cap.
	// Relay providers throttle aggressively; staying under their limit beats
	// burning the retry budget on rate-limit rejections.
	MaxSendRate float64
}

var _ notification.Transport = (*Transport)(nil)

// Transport sends messages through a single SMTP server.
type Transport struct {
	config  Config
	limiter *rate.Limiter
}

// NewTransport creates an SMTP transport.
func NewTransport(cfg Config) (*Transport, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp: host is required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("smtp: from address is required")
	}
	t := &Transport{config: cfg}
	if cfg.MaxSendRate > 0 {
		t.limiter = rate.NewLimiter(rate.Limit(cfg.MaxSendRate), 1)
	}
	return t, nil
}

// Send delivers a single message. SMTP gives little structure to its
// failures, so 5xx reply codes are classified permanent and everything else
// transient.
func (t *Transport) Send(ctx context.Context, to notification.Recipient, msg notification.Message) error {
	if t.limiter != nil {
		if err := t.limiter.Wait(ctx); err != nil {
			return notification.TransientDelivery(err)
		}
	}
	if err := ctx.Err(); err != nil {
		return notification.TransientDelivery(err)
	}

	addr := fmt.Sprintf("%s:%d", t.config.Host, t.config.Port)
	var auth smtp.Auth
	if t.config.Username != "" {
		auth = smtp.PlainAuth("", t.config.Username, t.config.Password, t.config.Host)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", t.config.From)
	fmt.Fprintf(&b, "To: %s\r\n", to.Email)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Body)
	b.WriteString("\r\n")

	if err := smtp.SendMail(addr, auth, t.config.From, []string{to.Email}, []byte(b.String())); err != nil {
		cause := fmt.Errorf("smtp send to %s: %w", to.Email, err)
		if isPermanentReply(err) {
			return notification.PermanentDelivery(cause)
		}
		return notification.TransientDelivery(cause)
	}
	return nil
}

// isPermanentReply reports whether the error carries a 5xx SMTP reply code.
// net/smtp surfaces server rejections as *textproto.Error.
func isPermanentReply(err error) bool {
	var replyErr *textproto.Error
	if errors.As(err, &replyErr) {
		return replyErr.Code >= 500 && replyErr.Code < 600
	}
	return false
}
