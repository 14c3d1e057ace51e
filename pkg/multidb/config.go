package multidb

type Driver string

func (d Driver) String() string {
	return string(d)
}

const (
	Postgres Driver = "postgres"
	Sqlite   Driver = "sqlite"
)

type GoSqlDb struct {
	Debug bool
	DSN   string // Data Source Name
}

type DatabaseResource struct {
	Disable bool
	Driver  Driver // postgres or sqlite

	// per driver configuration
	Postgres GoSqlDb
	Sqlite   GoSqlDb
}

type DatabaseResources map[string]DatabaseResource
