package multidb

import (
	"io"

	"github.com/jmoiron/sqlx"
)

// MultiDB keeps one connection pool per configured label.
type MultiDB interface {
	GetSqlx(driver Driver, key string) (*sqlx.DB, error)
	io.Closer
}
