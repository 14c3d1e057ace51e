package multidb

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	sqldblogger "github.com/simukti/sqldb-logger"
	"github.com/yusufsyaifudin/edumail/pkg/validator"
	"go.uber.org/multierr"
	_ "modernc.org/sqlite"
)

type SqlDbConnMakerConfig struct {
	Config DatabaseResources `validate:"required"`
}

type SqlDbConnMaker struct {
	conf     DatabaseResources
	disabled map[string]struct{} // list of disabled databases, using struct for minimal memory footprint
	dbSQL    map[string]*sqlx.DB // db key name => real connection
	dbDriver map[string]Driver   // db key name => driver name
	closer   []Closer
}

var _ MultiDB = (*SqlDbConnMaker)(nil)

func NewSqlDbConnMaker(conf SqlDbConnMakerConfig) (*SqlDbConnMaker, error) {
	err := validator.Validate(conf)
	if err != nil {
		err = fmt.Errorf("sql db connection maker failed: %w", err)
		return nil, err
	}

	instance := &SqlDbConnMaker{
		conf:     conf.Config,
		disabled: make(map[string]struct{}),
		dbSQL:    make(map[string]*sqlx.DB),
		dbDriver: make(map[string]Driver),
		closer:   make([]Closer, 0),
	}

	err = instance.connect()
	if err != nil {
		// close previous opened connection if error happen
		if _err := instance.Close(); _err != nil {
			err = multierr.Append(err, fmt.Errorf("close db sql error: %w", _err))
		}

		return nil, err
	}

	return instance, nil
}

func (i *SqlDbConnMaker) GetSqlx(driver Driver, key string) (*sqlx.DB, error) {
	key = strings.TrimSpace(strings.ToLower(key))
	_, exists := i.disabled[key]
	if exists {
		return nil, fmt.Errorf("db with key '%s' is disabled", key)
	}

	dbConnection, ok := i.dbSQL[key]
	if !ok {
		return nil, fmt.Errorf("key '%s' is not exist on db list", key)
	}

	registeredDriver, ok := i.dbDriver[key]
	if ok && driver == registeredDriver {
		return dbConnection, nil
	}

	return nil, fmt.Errorf("db key '%s' not using driver %s", key, driver)
}

// Driver returns the driver registered under key.
func (i *SqlDbConnMaker) Driver(key string) (Driver, bool) {
	d, ok := i.dbDriver[strings.TrimSpace(strings.ToLower(key))]
	return d, ok
}

func (i *SqlDbConnMaker) Close() error {
	var err error
	for _, c := range i.closer {
		if c == nil {
			continue
		}

		err = multierr.Append(err, c.Close())
	}

	return err
}

func (i *SqlDbConnMaker) connect() error {
	for dbLabel, dbConfig := range i.conf {
		dbLabel = strings.TrimSpace(strings.ToLower(dbLabel))
		if err := validator.Var(dbLabel, "required,alphanum"); err != nil {
			err = fmt.Errorf("error connecting to database dbLabel '%s': %w", dbLabel, err)
			return err
		}

		if dbConfig.Disable {
			i.disabled[dbLabel] = struct{}{}
			continue
		}

		var goSql GoSqlDb
		var sqlxDriver string
		switch dbConfig.Driver {
		case Postgres:
			goSql = dbConfig.Postgres
			sqlxDriver = "postgres"

		case Sqlite:
			goSql = dbConfig.Sqlite
			// sqlx picks the bind var style by driver name and only knows sqlite as sqlite3
			sqlxDriver = "sqlite3"

		default:
			return fmt.Errorf("not supported driver '%s'", dbConfig.Driver)
		}

		db, err := open(dbLabel, dbConfig.Driver, goSql)
		if err != nil {
			return err
		}

		if dbConfig.Driver == Sqlite {
			// one writer at a time, otherwise parallel inserts fail with SQLITE_BUSY
			db.SetMaxOpenConns(1)
		}

		// don't forget to register in closer, using unique name to track in the Log
		i.dbSQL[dbLabel] = sqlx.NewDb(db, sqlxDriver)
		i.dbDriver[dbLabel] = dbConfig.Driver
		i.closer = append(i.closer, newNamedCloser(dbLabel, db))
	}

	return nil
}

func open(dbLabel string, driver Driver, conf GoSqlDb) (*sql.DB, error) {
	if conf.DSN == "" {
		return nil, fmt.Errorf("empty dsn for db '%s'", dbLabel)
	}

	db, err := sql.Open(driver.String(), conf.DSN)
	if err != nil {
		return nil, fmt.Errorf("cannot open db connection '%s': %w", dbLabel, err)
	}

	if conf.Debug {
		db = sqldblogger.OpenDriver(conf.DSN, db.Driver(), &QueryLogger{}, sqldblogger.WithConnectionIDFieldname(dbLabel))
	}

	return db, nil
}
