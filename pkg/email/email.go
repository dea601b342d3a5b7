// Package email defines the outbound email contract consumed by action nodes.
package email

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"
)

// ErrSendFailed indicates the email provider rejected or failed the send.
var ErrSendFailed = errors.New("email send failed")

// Message is one outbound email addressed to a lead.
type Message struct {
	WorkspaceID string
	LeadID      string
	ToEmail     string
	ToName      string
	Subject     string
	TextBody    string
	HTMLBody    string
}

// Result carries the provider's identifier for a sent message.
type Result struct {
	MessageID string
}

// Sender delivers messages through an email provider.
type Sender interface {
	Send(ctx context.Context, msg Message) (*Result, error)
}

// SlogSender logs messages instead of delivering them. Used in development
// and as a safe default when no provider is configured.
type SlogSender struct {
	logger *slog.Logger
}

func NewSlogSender(logger *slog.Logger) *SlogSender {
	return &SlogSender{logger: logger.With("module", "email_sender")}
}

func (s *SlogSender) Send(ctx context.Context, msg Message) (*Result, error) {
	messageID := "msg-" + uuid.New().String()

	s.logger.InfoContext(ctx, "Sending email",
		"message_id", messageID,
		"lead_id", msg.LeadID,
		"to", msg.ToEmail,
		"subject", msg.Subject,
	)

	return &Result{MessageID: messageID}, nil
}
