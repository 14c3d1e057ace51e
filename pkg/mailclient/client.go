package mailclient

import (
	"context"
)

// MailTransport delivers one composed Email to its single recipient.
type MailTransport interface {
	Send(ctx context.Context, email *Email) error
	Name() string
}

// Email is a ready to send HTML message. Attachments are file paths read at compose time.
type Email struct {
	From        string   `validate:"required"`
	To          string   `validate:"required"`
	Subject     string   `validate:"required"`
	HTMLBody    string   `validate:"required"`
	Attachments []string `validate:"-"`
}
