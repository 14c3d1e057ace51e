package attemptrepo_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/yusufsyaifudin/edumail/internal/storage/attemptrepo"
	"github.com/yusufsyaifudin/edumail/pkg/multidb"
)

type seqID struct {
	next uint64
}

func (s *seqID) NextID() (uint64, error) {
	s.next++
	return s.next, nil
}

func prepareRepo(t *testing.T) *attemptrepo.SqlRepo {
	t.Helper()

	conn, err := multidb.NewSqlDbConnMaker(multidb.SqlDbConnMakerConfig{
		Config: multidb.DatabaseResources{
			"history": {
				Driver: multidb.Sqlite,
				Sqlite: multidb.GoSqlDb{DSN: filepath.Join(t.TempDir(), "history.db")},
			},
		},
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	db, err := conn.GetSqlx(multidb.Sqlite, "history")
	require.NoError(t, err)

	require.NoError(t, attemptrepo.Migrate(db, multidb.Sqlite))
	// second run is a no-op
	require.NoError(t, attemptrepo.Migrate(db, multidb.Sqlite))

	repo, err := attemptrepo.NewSql(attemptrepo.SqlConfig{Connection: db, IDGen: &seqID{}})
	require.NoError(t, err)
	return repo
}

func TestNewSql(t *testing.T) {
	repo, err := attemptrepo.NewSql(attemptrepo.SqlConfig{})
	assert.Error(t, err)
	assert.Nil(t, repo)
}

func TestMigrate_unknownDriver(t *testing.T) {
	err := attemptrepo.Migrate(&sqlx.DB{}, multidb.Driver("mysql"))
	assert.Error(t, err)
}

func TestSqlRepo(t *testing.T) {
	ctx := context.Background()
	repo := prepareRepo(t)

	attempts := []attemptrepo.Attempt{
		{LogDate: "20240301", AttemptedAt: "2024-03-01 09:00:00", Name: "Alice", Email: "alice@example.com", Subject: "Hi", Status: "success"},
		{LogDate: "20240301", AttemptedAt: "2024-03-01 09:00:01", Email: "bob@example.com", Subject: "Hi", Status: "failure", Error: "SMTP error: refused"},
		{LogDate: "20240302", AttemptedAt: "2024-03-02 10:00:00", Email: "carol@example.com", Subject: "Hi", Status: "success"},
	}

	for _, a := range attempts {
		require.NoError(t, repo.Insert(ctx, attemptrepo.InInsert{Attempt: a}))
	}

	t.Run("insert invalid status", func(t *testing.T) {
		err := repo.Insert(ctx, attemptrepo.InInsert{Attempt: attemptrepo.Attempt{
			LogDate: "20240301", AttemptedAt: "2024-03-01 09:00:00", Status: "pending",
		}})
		assert.ErrorIs(t, err, attemptrepo.ErrValidation)
	})

	t.Run("list by date keeps insertion order", func(t *testing.T) {
		out, err := repo.ListByDate(ctx, attemptrepo.InListByDate{LogDate: "20240301"})
		require.NoError(t, err)
		require.Len(t, out.Attempts, 2)

		assert.Equal(t, "alice@example.com", out.Attempts[0].Email)
		assert.Equal(t, "Alice", out.Attempts[0].Name)
		assert.Equal(t, "bob@example.com", out.Attempts[1].Email)
		assert.Equal(t, "SMTP error: refused", out.Attempts[1].Error)
		assert.Less(t, out.Attempts[0].ID, out.Attempts[1].ID)
	})

	t.Run("list with limit", func(t *testing.T) {
		out, err := repo.ListByDate(ctx, attemptrepo.InListByDate{LogDate: "20240301", Limit: 1})
		require.NoError(t, err)
		assert.Len(t, out.Attempts, 1)
	})

	t.Run("list empty date", func(t *testing.T) {
		out, err := repo.ListByDate(ctx, attemptrepo.InListByDate{LogDate: "20991231"})
		require.NoError(t, err)
		assert.Empty(t, out.Attempts)
	})

	t.Run("list bad date", func(t *testing.T) {
		_, err := repo.ListByDate(ctx, attemptrepo.InListByDate{LogDate: "2024-03-01"})
		assert.ErrorIs(t, err, attemptrepo.ErrValidation)
	})

	t.Run("delete all", func(t *testing.T) {
		n, err := repo.DeleteAll(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(3), n)

		out, err := repo.ListByDate(ctx, attemptrepo.InListByDate{LogDate: "20240302"})
		require.NoError(t, err)
		assert.Empty(t, out.Attempts)
	})
}
