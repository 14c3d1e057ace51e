package mergesvc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/yusufsyaifudin/edumail/internal/svc/attemptsvc"
	"github.com/yusufsyaifudin/edumail/internal/svc/svcerr"
	"github.com/yusufsyaifudin/edumail/pkg/mailclient"
	"github.com/yusufsyaifudin/edumail/pkg/validator"
	"github.com/yusufsyaifudin/edumail/pkg/worker"
	"github.com/yusufsyaifudin/ylog"
	"go.uber.org/multierr"
)

const (
	msgMissingSingle   = "Missing recipient, subject, or body"
	msgMissingTemplate = `Missing "email_data" in form-data. This is the HTML body of the email.`
	msgMissingEmail    = "Missing email"
	msgMissingCSV      = "CSV file is required"
	msgNotCSV          = "Uploaded file must be a CSV"
)

var errMissingEmail = errors.New(msgMissingEmail)

type Config struct {
	Transport mailclient.MailTransport `validate:"required"`
	Attempts  attemptsvc.Service       `validate:"required"`
	Inliner   Inliner                  `validate:"required"`

	// Sender is the From address. An empty sender makes every send fail.
	Sender string `validate:"-"`

	// MaxParallel is the number of concurrent sends within one batch, 1 keeps the CSV order.
	MaxParallel int `validate:"min=0"`
	MaxQueue    int `validate:"min=0"`
}

type DefaultService struct {
	transport   mailclient.MailTransport
	attempts    attemptsvc.Service
	inliner     Inliner
	sender      string
	maxParallel int
	maxQueue    int
}

var _ Service = (*DefaultService)(nil)

func New(cfg Config) (*DefaultService, error) {
	err := validator.Validate(cfg)
	if err != nil {
		return nil, fmt.Errorf("merge service config validation error: %w", err)
	}

	if cfg.MaxParallel < 1 {
		cfg.MaxParallel = 1
	}

	if cfg.MaxQueue < 1 {
		cfg.MaxQueue = cfg.MaxParallel
	}

	return &DefaultService{
		transport:   cfg.Transport,
		attempts:    cfg.Attempts,
		inliner:     cfg.Inliner,
		sender:      cfg.Sender,
		maxParallel: cfg.MaxParallel,
		maxQueue:    cfg.MaxQueue,
	}, nil
}

// SendOne delivers the body as is to one recipient. There is no retry.
func (s *DefaultService) SendOne(ctx context.Context, in InSendOne) (out OutSendOne, err error) {
	recipient := strings.TrimSpace(in.Recipient)
	subject := in.Subject
	if recipient == "" || strings.TrimSpace(subject) == "" || strings.TrimSpace(in.Body) == "" {
		err = svcerr.Wrap(svcerr.ErrValidation, msgMissingSingle)
		return
	}

	sendErr := s.transport.Send(ctx, &mailclient.Email{
		From:     s.sender,
		To:       recipient,
		Subject:  subject,
		HTMLBody: in.Body,
	})

	s.record(ctx, "", recipient, subject, sendErr)

	if sendErr != nil {
		ylog.Error(ctx, "send email failed", ylog.KV("to", recipient), ylog.KV("transport", s.transport.Name()), ylog.KV("error", sendErr))
		err = svcerr.Wrap(svcerr.ErrDelivery, sendErr.Error())
		return
	}

	ylog.Info(ctx, "email sent", ylog.KV("to", recipient))
	out.Recipient = recipient
	return
}

// SendBulk merges every CSV row into the template and sends it. The attachment files are removed before it returns.
// A failing row never stops the batch, and the batch keeps running when ctx is cancelled.
func (s *DefaultService) SendBulk(ctx context.Context, in InSendBulk) (out OutSendBulk, err error) {
	defer s.removeAttachments(ctx, in.Attachments)

	if strings.TrimSpace(in.Template) == "" {
		err = svcerr.Wrap(svcerr.ErrValidation, msgMissingTemplate)
		return
	}

	if in.CSV == nil {
		err = svcerr.Wrap(svcerr.ErrValidation, msgMissingCSV)
		return
	}

	if !strings.HasSuffix(strings.ToLower(in.CSVName), ".csv") {
		err = svcerr.Wrap(svcerr.ErrValidation, msgNotCSV)
		return
	}

	recipients, err := ParseRecipients(in.CSV)
	if err != nil {
		return
	}

	subject := in.Subject
	if strings.TrimSpace(subject) == "" {
		subject = DefaultBulkSubject
	}

	ctx = context.WithoutCancel(ctx)

	body, err := s.inliner.Inline(ctx, in.Template)
	if err != nil {
		ylog.Error(ctx, "inline css failed", ylog.KV("error", err))
		err = svcerr.Wrap(svcerr.ErrInternal, err.Error())
		return
	}

	b := &batch{
		svc:         s,
		emailColumn: recipients.EmailColumn,
		body:        body,
		subject:     subject,
		attachments: in.Attachments,
		failed:      make([]Failure, 0),
	}

	w := worker.NewWorker(s.maxParallel, s.maxQueue, worker.YLog{})
	for i, row := range recipients.Rows {
		if err = w.AddJob(&rowJob{ctx: ctx, index: i, row: row, batch: b}); err != nil {
			// the worker is owned by this call, this only happens after Done
			b.fail(i, row, err.Error())
		}
	}
	w.Done()

	sort.SliceStable(b.failed, func(i, j int) bool {
		return b.failed[i].Index < b.failed[j].Index
	})

	out = OutSendBulk{
		Sent:   b.sent,
		Failed: b.failed,
		Total:  len(recipients.Rows),
	}

	ylog.Info(ctx, "bulk send finished",
		ylog.KV("sent", out.Sent),
		ylog.KV("failed", len(out.Failed)),
		ylog.KV("total", out.Total),
	)
	return out, nil
}

func (s *DefaultService) record(ctx context.Context, name, email, subject string, sendErr error) {
	attempt := attemptsvc.Attempt{
		Name:    name,
		Email:   email,
		Subject: subject,
		Status:  attemptsvc.StatusSuccess,
	}

	if sendErr != nil {
		attempt.Status = attemptsvc.StatusFailure
		attempt.Error = sendErr.Error()
	}

	if err := s.attempts.Record(ctx, attempt); err != nil {
		ylog.Error(ctx, "record attempt failed", ylog.KV("email", email), ylog.KV("error", err))
	}
}

func (s *DefaultService) removeAttachments(ctx context.Context, paths []string) {
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			ylog.Error(ctx, "remove attachment failed", ylog.KV("path", path), ylog.KV("error", err))
		}
	}
}

// batch is the state shared by every row job of one SendBulk call.
type batch struct {
	svc         *DefaultService
	emailColumn string
	body        string
	subject     string
	attachments []string

	lock   sync.Mutex
	sent   int
	failed []Failure
}

func (b *batch) succeed() {
	b.lock.Lock()
	b.sent++
	b.lock.Unlock()
}

func (b *batch) fail(index int, row RecipientRow, reason string) {
	b.lock.Lock()
	b.failed = append(b.failed, Failure{Index: index, Row: row, Error: reason})
	b.lock.Unlock()
}

type rowJob struct {
	ctx   context.Context
	index int
	row   RecipientRow
	batch *batch

	email   string
	name    string
	subject string
	body    string
}

var _ worker.Job = (*rowJob)(nil)

func (j *rowJob) ID() uint64 {
	return uint64(j.index + 1)
}

func (j *rowJob) Context() context.Context {
	return j.ctx
}

func (j *rowJob) PreExecute() error {
	email, _ := j.row.Get(j.batch.emailColumn)
	j.email = strings.TrimSpace(email)
	j.name = j.row.Name()

	if j.email == "" {
		return errMissingEmail
	}

	j.body = Personalize(j.batch.body, j.row)
	j.subject = Personalize(j.batch.subject, j.row)
	return nil
}

func (j *rowJob) Execute() error {
	return j.batch.svc.transport.Send(j.ctx, &mailclient.Email{
		From:        j.batch.svc.sender,
		To:          j.email,
		Subject:     j.subject,
		HTMLBody:    j.body,
		Attachments: j.batch.attachments,
	})
}

func (j *rowJob) PostExecute(err error) {
	subject := j.subject
	if subject == "" {
		subject = Personalize(j.batch.subject, j.row)
	}

	switch {
	case err == nil:
		j.batch.succeed()
		j.batch.svc.record(j.ctx, j.name, j.email, subject, nil)

	case j.email == "":
		j.batch.fail(j.index, j.row, msgMissingEmail)
		j.batch.svc.record(j.ctx, j.name, "", subject, errMissingEmail)

	default:
		cause := unwrapJobErr(err)
		ylog.Error(j.ctx, "bulk row send failed", ylog.KV("row", j.index), ylog.KV("to", j.email), ylog.KV("error", cause))
		reason := svcerr.Wrap(svcerr.ErrDelivery, cause.Error())
		j.batch.fail(j.index, j.row, reason.Error())
		j.batch.svc.record(j.ctx, j.name, j.email, subject, reason)
	}
}

// unwrapJobErr drops the worker stage marker so the caller sees the transport error only.
func unwrapJobErr(err error) error {
	for _, e := range multierr.Errors(err) {
		if errors.Is(e, worker.ErrExecute) || errors.Is(e, worker.ErrPreExecute) {
			continue
		}
		return e
	}

	return err
}
