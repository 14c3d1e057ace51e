package container

import (
	"fmt"
	"io"

	"github.com/yusufsyaifudin/edumail/internal/storage/attemptrepo"
	"github.com/yusufsyaifudin/edumail/pkg/multidb"
	"github.com/yusufsyaifudin/edumail/pkg/validator"
	"go.uber.org/multierr"
)

// Repositories is an abstraction layer to list down all repositories.
// This only will connect and save the repository.
// To use this, you must select the db label based on config file
type Repositories interface {
	io.Closer

	AttemptRepo(dbLabel string, idGen attemptrepo.IDGen) (attemptrepo.Repo, error)
}

// RepositoryImpl the real implementation of Repositories
type RepositoryImpl struct {
	dbResourceMap ConfigDatabaseResources `validate:"-"`
	dbSqlConn     *multidb.SqlDbConnMaker `validate:"required"` // all database connection
}

// Ensure that RepositoryImpl implements Repositories
var _ Repositories = (*RepositoryImpl)(nil)

// SetupRepositories connects every enabled database resource.
// It returns RepositoryImpl instead of Repositories so the caller can Close it in deferred mode.
func SetupRepositories(conf ConfigDatabaseResources) (*RepositoryImpl, error) {
	sqlDbConfig := multidb.DatabaseResources{}
	for name, conn := range conf {
		sqlDbConfig[name] = multidb.DatabaseResource{
			Disable:  conn.Disable,
			Driver:   multidb.Driver(conn.Driver),
			Postgres: multidb.GoSqlDb(conn.Postgres),
			Sqlite:   multidb.GoSqlDb(conn.Sqlite),
		}
	}

	dbSqlConn, err := multidb.NewSqlDbConnMaker(multidb.SqlDbConnMakerConfig{Config: sqlDbConfig})
	if err != nil {
		return nil, err
	}

	dep := &RepositoryImpl{
		dbResourceMap: conf,
		dbSqlConn:     dbSqlConn,
	}

	err = validator.Validate(dep)
	if err != nil {
		return nil, err
	}

	return dep, nil
}

// AttemptRepo migrates the attempt history schema on the labelled database and returns the repo over it.
func (r *RepositoryImpl) AttemptRepo(dbLabel string, idGen attemptrepo.IDGen) (repo attemptrepo.Repo, err error) {
	if _, ok := r.dbResourceMap[dbLabel]; !ok {
		err = fmt.Errorf("unknown database key %s on attemptRepo", dbLabel)
		return
	}

	driver, ok := r.dbSqlConn.Driver(dbLabel)
	if !ok {
		err = fmt.Errorf("database %s is disabled or not connected", dbLabel)
		return
	}

	switch driver {
	case multidb.Postgres, multidb.Sqlite:
		sqlConn, _err := r.dbSqlConn.GetSqlx(driver, dbLabel)
		if _err != nil {
			err = _err
			return
		}

		if err = attemptrepo.Migrate(sqlConn, driver); err != nil {
			err = fmt.Errorf("attempt repo migration on %s: %w", dbLabel, err)
			return
		}

		repo, err = attemptrepo.NewSql(attemptrepo.SqlConfig{
			Connection: sqlConn,
			IDGen:      idGen,
		})
		return

	default:
		err = fmt.Errorf("not supported db driver '%s' on label '%s'", driver, dbLabel)
		return
	}
}

// Close will close all dependencies.
func (r *RepositoryImpl) Close() error {
	if r == nil {
		return nil
	}

	if r.dbSqlConn == nil {
		return nil
	}

	var err error
	if _err := r.dbSqlConn.Close(); _err != nil {
		err = multierr.Append(err, fmt.Errorf("close db error: %w", _err))
	}

	return err
}
