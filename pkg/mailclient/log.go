package mailclient

import (
	"context"

	"github.com/yusufsyaifudin/ylog"
)

// Log only writes the message summary to the logger. Nothing leaves the process.
type Log struct{}

var _ MailTransport = (*Log)(nil)

func NewLog() *Log {
	return &Log{}
}

func (l *Log) Name() string {
	return "log"
}

func (l *Log) Send(ctx context.Context, email *Email) error {
	if email == nil {
		return nil
	}

	ylog.Info(ctx, "email delivery skipped by log transport",
		ylog.KV("from", email.From),
		ylog.KV("to", email.To),
		ylog.KV("subject", email.Subject),
		ylog.KV("body_length", len(email.HTMLBody)),
		ylog.KV("attachments", email.Attachments),
	)
	return nil
}
