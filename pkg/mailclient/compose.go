package mailclient

import (
	"bytes"
	"fmt"
	"path/filepath"

	"github.com/yusufsyaifudin/edumail/pkg/validator"
	"gopkg.in/gomail.v2"
)

// Compose renders the email as raw MIME bytes. The body is sent as text/html and
// every attachment is base64 encoded under its base name.
func Compose(email *Email) ([]byte, error) {
	if email == nil {
		return nil, fmt.Errorf("email is nil")
	}

	if err := validator.Validate(email); err != nil {
		return nil, fmt.Errorf("email validation error: %w", err)
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", email.From)
	msg.SetHeader("To", email.To)
	msg.SetHeader("Subject", email.Subject)
	msg.SetBody("text/html", email.HTMLBody)

	for _, path := range email.Attachments {
		msg.Attach(path, gomail.Rename(filepath.Base(path)))
	}

	buf := &bytes.Buffer{}
	if _, err := msg.WriteTo(buf); err != nil {
		return nil, fmt.Errorf("compose message error: %w", err)
	}

	return buf.Bytes(), nil
}
