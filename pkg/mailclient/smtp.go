package mailclient

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/yusufsyaifudin/edumail/pkg/validator"
	"go.uber.org/multierr"
)

type SMTPConfig struct {
	Host     string        `validate:"required"`
	Port     int           `validate:"required,min=1,max=65535"`
	Username string        `validate:"-"`
	Password string        `validate:"-"`
	StartTLS bool          `validate:"-"`
	Timeout  time.Duration `validate:"-"`

	// TLSConfig overrides the STARTTLS config, nil means verifying against Host.
	TLSConfig *tls.Config `validate:"-"`
}

// SMTP opens a new connection for every Send, there is no pooling.
type SMTP struct {
	cfg SMTPConfig
}

var _ MailTransport = (*SMTP)(nil)

func NewSMTP(cfg SMTPConfig) (*SMTP, error) {
	if err := validator.Validate(cfg); err != nil {
		return nil, fmt.Errorf("smtp config validation error: %w", err)
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &SMTP{cfg: cfg}, nil
}

func (m *SMTP) Name() string {
	return "smtp"
}

func (m *SMTP) Send(ctx context.Context, email *Email) (err error) {
	raw, err := Compose(email)
	if err != nil {
		return err
	}

	c, conn, err := m.dial(ctx)
	if err != nil {
		return err
	}

	defer func() {
		if _err := c.Close(); _err != nil && err != nil {
			err = multierr.Append(err, fmt.Errorf("close connection error: %w", _err))
		}
	}()

	phase := func() error {
		if _err := conn.SetDeadline(m.deadline(ctx)); _err != nil {
			return fmt.Errorf("set connection deadline error: %w", _err)
		}
		return nil
	}

	if err = phase(); err != nil {
		return err
	}

	if err = c.Mail(email.From, nil); err != nil {
		return fmt.Errorf("MAIL cmd failed: %w", err)
	}

	if err = phase(); err != nil {
		return err
	}

	if err = c.Rcpt(email.To); err != nil {
		return fmt.Errorf("error recipient %s: %w", email.To, err)
	}

	if err = phase(); err != nil {
		return err
	}

	var wc io.WriteCloser
	wc, err = c.Data()
	if err != nil {
		return fmt.Errorf("error data writer: %w", err)
	}

	if _, err = io.Copy(wc, bytes.NewReader(raw)); err != nil {
		_ = wc.Close()
		return fmt.Errorf("error data copy: %w", err)
	}

	if err = phase(); err != nil {
		_ = wc.Close()
		return err
	}

	if err = wc.Close(); err != nil {
		return fmt.Errorf("error data close: %w", err)
	}

	if err = phase(); err != nil {
		return err
	}

	if err = c.Quit(); err != nil {
		return fmt.Errorf("quit command error: %w", err)
	}

	return nil
}

// deadline is the end of the next command phase, never later than the ctx deadline.
func (m *SMTP) deadline(ctx context.Context) time.Time {
	deadline := time.Now().Add(m.cfg.Timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}

	return deadline
}

// dial connects, upgrades to TLS when configured and authenticates.
// The handshake shares one timeout, Send refreshes it before every later command phase.
func (m *SMTP) dial(ctx context.Context) (*smtp.Client, net.Conn, error) {
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))

	dialer := net.Dialer{Timeout: m.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("tcp dial error: %w", err)
	}

	if err = conn.SetDeadline(m.deadline(ctx)); err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("set connection deadline error: %w", err)
	}

	c, err := smtp.NewClient(conn, m.cfg.Host)
	if err != nil {
		_ = conn.Close()
		return nil, nil, fmt.Errorf("error new smtp client: %w", err)
	}

	if m.cfg.StartTLS {
		tlsCfg := m.cfg.TLSConfig
		if tlsCfg == nil {
			tlsCfg = &tls.Config{ServerName: m.cfg.Host}
		}

		if err = c.StartTLS(tlsCfg); err != nil {
			_ = c.Close()
			return nil, nil, fmt.Errorf("error start tls: %w", err)
		}
	}

	if m.cfg.Username != "" {
		if err = c.Auth(sasl.NewPlainClient("", m.cfg.Username, m.cfg.Password)); err != nil {
			_ = c.Close()
			return nil, nil, fmt.Errorf("error auth: %w", err)
		}
	}

	return c, conn, nil
}
