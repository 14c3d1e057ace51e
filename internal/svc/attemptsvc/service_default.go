package attemptsvc

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/encoding/json"
	"github.com/yusufsyaifudin/edumail/internal/storage/attemptrepo"
	"github.com/yusufsyaifudin/edumail/internal/svc/svcerr"
	"github.com/yusufsyaifudin/edumail/pkg/pubsub"
	"github.com/yusufsyaifudin/edumail/pkg/validator"
	"github.com/yusufsyaifudin/ylog"
	"go.uber.org/multierr"
)

var csvHeader = []string{"timestamp", "name", "email", "subject", "status", "error"}

type Config struct {
	CSVDir  string `validate:"required"`
	TextDir string `validate:"required"`

	// Location decides which calendar day an attempt belongs to, nil means time.Local.
	Location *time.Location `validate:"-"`

	// Publisher and Repo are optional, both are best effort.
	Publisher pubsub.IPublisher `validate:"-"`
	Repo      attemptrepo.Repo  `validate:"-"`

	Now func() time.Time `validate:"-"`
}

type DefaultService struct {
	csvDir    string
	textDir   string
	location  *time.Location
	publisher pubsub.IPublisher
	repo      attemptrepo.Repo
	now       func() time.Time

	// lock serializes the CSV and text appends of one attempt
	lock sync.Mutex
}

var _ Service = (*DefaultService)(nil)

func New(cfg Config) (*DefaultService, error) {
	err := validator.Validate(cfg)
	if err != nil {
		return nil, fmt.Errorf("attempt service config validation error: %w", err)
	}

	if cfg.Location == nil {
		cfg.Location = time.Local
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	for _, dir := range []string{cfg.CSVDir, cfg.TextDir} {
		if err = os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir %s error: %w", dir, err)
		}
	}

	return &DefaultService{
		csvDir:    cfg.CSVDir,
		textDir:   cfg.TextDir,
		location:  cfg.Location,
		publisher: cfg.Publisher,
		repo:      cfg.Repo,
		now:       cfg.Now,
	}, nil
}

// Record appends the attempt to the daily CSV and the daily per-status text log, then mirrors and publishes it.
// Only disk errors are returned.
func (s *DefaultService) Record(ctx context.Context, in Attempt) error {
	err := validator.Validate(in)
	if err != nil {
		return svcerr.Wrap(svcerr.ErrValidation, err.Error())
	}

	ts := in.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}
	ts = ts.In(s.location)

	date := ts.Format(dateLayout)
	event := Event{
		Timestamp: ts.Format(timestampLayout),
		Name:      in.Name,
		Email:     in.Email,
		Subject:   in.Subject,
		Status:    in.Status,
		Error:     in.Error,
	}

	row, err := csvRow(event)
	if err != nil {
		return svcerr.Wrap(svcerr.ErrInternal, err.Error())
	}

	diskErr := s.appendAll(s.csvPath(date), row, s.textPath(event.Status, date), textLine(event))
	if diskErr != nil {
		ylog.Error(ctx, "attempt log write failed", ylog.KV("error", diskErr), ylog.KV("email", in.Email))
	}

	s.mirror(ctx, date, event)
	s.publish(ctx, event)

	if diskErr != nil {
		return svcerr.Wrap(svcerr.ErrInternal, diskErr.Error())
	}

	return nil
}

func (s *DefaultService) appendAll(csvPath string, row []byte, textPath string, line []byte) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	var err error
	err = multierr.Append(err, appendCSV(csvPath, row))
	err = multierr.Append(err, appendFile(textPath, line))
	return err
}

func (s *DefaultService) mirror(ctx context.Context, date string, event Event) {
	if s.repo == nil {
		return
	}

	err := s.repo.Insert(ctx, attemptrepo.InInsert{
		Attempt: attemptrepo.Attempt{
			LogDate:     date,
			AttemptedAt: event.Timestamp,
			Name:        event.Name,
			Email:       event.Email,
			Subject:     event.Subject,
			Status:      event.Status,
			Error:       event.Error,
		},
	})
	if err != nil {
		ylog.Error(ctx, "attempt history mirror failed", ylog.KV("error", err))
	}
}

func (s *DefaultService) publish(ctx context.Context, event Event) {
	if s.publisher == nil {
		return
	}

	body, err := json.Marshal(event)
	if err != nil {
		ylog.Error(ctx, "attempt event marshal failed", ylog.KV("error", err))
		return
	}

	err = s.publisher.Publish(ctx, &pubsub.Message{
		LoggableID: event.Email,
		Body:       body,
	})
	if err != nil {
		ylog.Error(ctx, "attempt event publish failed", ylog.KV("error", err))
	}
}

func (s *DefaultService) Counts(ctx context.Context) (out Counts, err error) {
	paths, err := filepath.Glob(filepath.Join(s.csvDir, "email_logs_*.csv"))
	if err != nil {
		err = svcerr.Wrap(svcerr.ErrInternal, err.Error())
		return
	}

	for _, path := range paths {
		var c Counts
		c, err = countFile(path)
		if err != nil {
			ylog.Error(ctx, "attempt count failed", ylog.KV("file", path), ylog.KV("error", err))
			err = svcerr.Wrap(svcerr.ErrInternal, err.Error())
			return
		}

		out.Success += c.Success
		out.Failure += c.Failure
		out.Total += c.Total
	}

	return
}

func (s *DefaultService) Files(_ context.Context) (out Files, err error) {
	out.CSVFiles, err = globNames(s.csvDir, "email_logs_*.csv")
	if err != nil {
		err = svcerr.Wrap(svcerr.ErrInternal, err.Error())
		return
	}

	out.LogFiles, err = globNames(s.textDir, "*_emails_*.txt")
	if err != nil {
		err = svcerr.Wrap(svcerr.ErrInternal, err.Error())
		return
	}

	return
}

// CSVPath returns the path of an existing daily CSV file.
func (s *DefaultService) CSVPath(date string) (string, error) {
	if err := validateDate(date); err != nil {
		return "", err
	}

	return existing(s.csvPath(date))
}

// TextLogPath returns the path of an existing daily text log for the status.
func (s *DefaultService) TextLogPath(status, date string) (string, error) {
	if err := validator.Var(status, "required,oneof=success failure"); err != nil {
		return "", svcerr.Wrap(svcerr.ErrValidation, fmt.Sprintf("status must be %s or %s", StatusSuccess, StatusFailure))
	}

	if err := validateDate(date); err != nil {
		return "", err
	}

	return existing(s.textPath(status, date))
}

// ClearAll removes every regular file in the CSV and text directories and empties the history mirror.
func (s *DefaultService) ClearAll(ctx context.Context) (int, error) {
	s.lock.Lock()
	defer s.lock.Unlock()

	dirs := []string{s.csvDir}
	if filepath.Clean(s.textDir) != filepath.Clean(s.csvDir) {
		dirs = append(dirs, s.textDir)
	}

	var (
		removed int
		err     error
	)

	for _, dir := range dirs {
		n, _err := removeFiles(dir)
		removed += n
		err = multierr.Append(err, _err)
	}

	if s.repo != nil {
		if _, _err := s.repo.DeleteAll(ctx); _err != nil {
			ylog.Error(ctx, "attempt history clear failed", ylog.KV("error", _err))
		}
	}

	if err != nil {
		ylog.Error(ctx, "clear attempt logs failed", ylog.KV("error", err), ylog.KV("removed", removed))
		return removed, svcerr.Wrap(svcerr.ErrInternal, err.Error())
	}

	ylog.Info(ctx, "attempt logs cleared", ylog.KV("removed", removed))
	return removed, nil
}

// History lists mirrored attempts of one day, today when date is empty.
func (s *DefaultService) History(ctx context.Context, date string, limit int) ([]attemptrepo.Attempt, error) {
	if s.repo == nil {
		return nil, svcerr.Wrap(svcerr.ErrNotFound, "attempt history is not configured")
	}

	if date == "" {
		date = s.now().In(s.location).Format(dateLayout)
	}

	if err := validateDate(date); err != nil {
		return nil, err
	}

	if limit < 0 {
		return nil, svcerr.Wrap(svcerr.ErrValidation, "limit must not be negative")
	}

	out, err := s.repo.ListByDate(ctx, attemptrepo.InListByDate{LogDate: date, Limit: limit})
	if err != nil {
		return nil, svcerr.Wrap(svcerr.ErrInternal, err.Error())
	}

	return out.Attempts, nil
}

func (s *DefaultService) csvPath(date string) string {
	return filepath.Join(s.csvDir, fmt.Sprintf("email_logs_%s.csv", date))
}

func (s *DefaultService) textPath(status, date string) string {
	return filepath.Join(s.textDir, fmt.Sprintf("%s_emails_%s.txt", status, date))
}

func validateDate(date string) error {
	if err := validator.Var(date, "required,len=8,numeric"); err != nil {
		return svcerr.Wrap(svcerr.ErrValidation, "date must be in YYYYMMDD format")
	}

	if _, err := time.Parse(dateLayout, date); err != nil {
		return svcerr.Wrap(svcerr.ErrValidation, "date must be in YYYYMMDD format")
	}

	return nil
}

func existing(path string) (string, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return "", svcerr.Wrap(svcerr.ErrNotFound, fmt.Sprintf("%s does not exist", filepath.Base(path)))
	}

	if err != nil {
		return "", svcerr.Wrap(svcerr.ErrInternal, err.Error())
	}

	if !info.Mode().IsRegular() {
		return "", svcerr.Wrap(svcerr.ErrNotFound, fmt.Sprintf("%s is not a file", filepath.Base(path)))
	}

	return path, nil
}

func csvRow(event Event) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	err := w.Write([]string{event.Timestamp, event.Name, event.Email, event.Subject, event.Status, event.Error})
	if err != nil {
		return nil, fmt.Errorf("encode csv row error: %w", err)
	}

	w.Flush()
	return buf.Bytes(), w.Error()
}

var flatten = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

func textLine(event Event) []byte {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s to=%s name=%s subject=%s",
		event.Timestamp,
		strings.ToUpper(event.Status),
		flatten.Replace(event.Email),
		flatten.Replace(event.Name),
		flatten.Replace(event.Subject),
	))

	if event.Status == StatusFailure {
		sb.WriteString(" error=")
		sb.WriteString(flatten.Replace(event.Error))
	}

	sb.WriteString("\n")
	return []byte(sb.String())
}

// appendCSV writes the header together with the row when the file is still empty, so it appears exactly once.
func appendCSV(path string, row []byte) (err error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s error: %w", path, err)
	}

	defer func() {
		err = multierr.Append(err, f.Close())
	}()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s error: %w", path, err)
	}

	data := row
	if info.Size() == 0 {
		header, _err := csvRow(Event{
			Timestamp: csvHeader[0], Name: csvHeader[1], Email: csvHeader[2],
			Subject: csvHeader[3], Status: csvHeader[4], Error: csvHeader[5],
		})
		if _err != nil {
			return _err
		}

		data = append(header, row...)
	}

	if _, err = f.Write(data); err != nil {
		return fmt.Errorf("append %s error: %w", path, err)
	}

	return nil
}

func appendFile(path string, line []byte) (err error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s error: %w", path, err)
	}

	defer func() {
		err = multierr.Append(err, f.Close())
	}()

	if _, err = f.Write(line); err != nil {
		return fmt.Errorf("append %s error: %w", path, err)
	}

	return nil
}

func countFile(path string) (out Counts, err error) {
	f, err := os.Open(path)
	if err != nil {
		return out, fmt.Errorf("open %s error: %w", path, err)
	}

	defer func() {
		err = multierr.Append(err, f.Close())
	}()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	records, err := r.ReadAll()
	if err != nil {
		return out, fmt.Errorf("read %s error: %w", path, err)
	}

	statusIdx := 4
	for i, record := range records {
		if i == 0 {
			continue
		}

		out.Total++
		if len(record) <= statusIdx {
			continue
		}

		switch record[statusIdx] {
		case StatusSuccess:
			out.Success++
		case StatusFailure:
			out.Failure++
		}
	}

	return out, nil
}

func globNames(dir, pattern string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(paths))
	for _, p := range paths {
		names = append(names, filepath.Base(p))
	}

	sort.Strings(names)
	return names, nil
}

func removeFiles(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return 0, nil
	}

	if err != nil {
		return 0, fmt.Errorf("read dir %s error: %w", dir, err)
	}

	var removed int
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}

		if _err := os.Remove(filepath.Join(dir, entry.Name())); _err != nil {
			err = multierr.Append(err, fmt.Errorf("remove %s error: %w", entry.Name(), _err))
			continue
		}

		removed++
	}

	return removed, err
}
