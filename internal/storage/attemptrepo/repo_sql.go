package attemptrepo

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/yusufsyaifudin/edumail/pkg/validator"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000

	sqlInsertAttempt = `INSERT INTO email_attempts (id, log_date, attempted_at, name, email, subject, status, error) VALUES (?, ?, ?, ?, ?, ?, ?, ?);`

	sqlListByDate = `SELECT id, log_date, attempted_at, name, email, subject, status, error FROM email_attempts WHERE log_date = ? ORDER BY id ASC LIMIT ?;`

	sqlDeleteAll = `DELETE FROM email_attempts;`
)

// IDGen is satisfied by *sonyflake.Sonyflake.
type IDGen interface {
	NextID() (uint64, error)
}

type SqlConfig struct {
	Connection *sqlx.DB `validate:"required"`
	IDGen      IDGen    `validate:"required"`
}

// SqlRepo works on both postgres and sqlite, queries are written with ? and rebound per driver.
type SqlRepo struct {
	db    *sqlx.DB
	idGen IDGen

	insertQuery string
	listQuery   string
}

var _ Repo = (*SqlRepo)(nil)

func NewSql(conf SqlConfig) (*SqlRepo, error) {
	err := validator.Validate(conf)
	if err != nil {
		return nil, fmt.Errorf("attempt repo config validation error: %w", err)
	}

	return &SqlRepo{
		db:          conf.Connection,
		idGen:       conf.IDGen,
		insertQuery: conf.Connection.Rebind(sqlInsertAttempt),
		listQuery:   conf.Connection.Rebind(sqlListByDate),
	}, nil
}

func (s *SqlRepo) Insert(ctx context.Context, in InInsert) error {
	err := validator.Validate(in)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrValidation, err)
	}

	id, err := s.idGen.NextID()
	if err != nil {
		return fmt.Errorf("generate attempt id error: %w", err)
	}

	a := in.Attempt
	_, err = s.db.ExecContext(ctx, s.insertQuery,
		int64(id), a.LogDate, a.AttemptedAt, a.Name, a.Email, a.Subject, a.Status, a.Error,
	)
	if err != nil {
		return fmt.Errorf("insert attempt error: %w", err)
	}

	return nil
}

// ListByDate returns attempts of one day, oldest first. Limit 0 means the default page size.
func (s *SqlRepo) ListByDate(ctx context.Context, in InListByDate) (out OutListByDate, err error) {
	err = validator.Validate(in)
	if err != nil {
		err = fmt.Errorf("%w: %s", ErrValidation, err)
		return
	}

	limit := in.Limit
	if limit == 0 {
		limit = defaultListLimit
	}

	if limit > maxListLimit {
		limit = maxListLimit
	}

	out.Attempts = make([]Attempt, 0)
	err = sqlx.SelectContext(ctx, s.db, &out.Attempts, s.listQuery, in.LogDate, limit)
	if err != nil {
		err = fmt.Errorf("list attempts error: %w", err)
		return
	}

	return
}

func (s *SqlRepo) DeleteAll(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, sqlDeleteAll)
	if err != nil {
		return 0, fmt.Errorf("delete attempts error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete attempts rows affected error: %w", err)
	}

	return n, nil
}
