package attemptsvc

import (
	"context"
	"time"

	"github.com/yusufsyaifudin/edumail/internal/storage/attemptrepo"
)

const (
	StatusSuccess = "success"
	StatusFailure = "failure"

	dateLayout      = "20060102"
	timestampLayout = "2006-01-02 15:04:05"
)

// Attempt is one delivery outcome. A zero Timestamp means now.
type Attempt struct {
	Timestamp time.Time `validate:"-"`
	Name      string    `validate:"-"`
	Email     string    `validate:"-"`
	Subject   string    `validate:"-"`
	Status    string    `validate:"required,oneof=success failure"`
	Error     string    `validate:"-"`
}

// Event is published for every recorded attempt and carries the same fields as the CSV row.
type Event struct {
	Timestamp string `json:"timestamp"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Subject   string `json:"subject"`
	Status    string `json:"status"`
	Error     string `json:"error"`
}

type Counts struct {
	Success int `json:"success"`
	Failure int `json:"failure"`
	Total   int `json:"total"`
}

type Files struct {
	CSVFiles []string `json:"csv_files"`
	LogFiles []string `json:"log_files"`
}

type Service interface {
	Record(ctx context.Context, in Attempt) error
	Counts(ctx context.Context) (Counts, error)
	Files(ctx context.Context) (Files, error)
	CSVPath(date string) (string, error)
	TextLogPath(status, date string) (string, error)
	ClearAll(ctx context.Context) (int, error)
	History(ctx context.Context, date string, limit int) ([]attemptrepo.Attempt, error)
}
