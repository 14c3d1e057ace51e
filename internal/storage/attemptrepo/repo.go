package attemptrepo

import (
	"context"
	"errors"
)

var (
	ErrValidation = errors.New("validation error")
)

type InInsert struct {
	Attempt Attempt `validate:"required"`
}

type InListByDate struct {
	LogDate string `validate:"required,len=8,numeric"`
	Limit   int    `validate:"min=0"`
}

type OutListByDate struct {
	Attempts []Attempt
}

// Repo mirrors the flat file attempt log into SQL so it can be queried by date.
type Repo interface {
	Insert(ctx context.Context, in InInsert) error
	ListByDate(ctx context.Context, in InListByDate) (OutListByDate, error)
	DeleteAll(ctx context.Context) (int64, error)
}
