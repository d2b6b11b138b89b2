package catalog

import (
	"context"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/fastmerger/internal/bindeps"
	"github.com/fastmerger/pkg/config"
	apperrors "github.com/fastmerger/pkg/errors"
)

func setupCatalog(t *testing.T) *Catalog {
	t.Helper()
	c, err := Open(context.Background(), &config.CatalogConfig{
		Type: "sqlite",
		Path: filepath.Join(t.TempDir(), "catalog.db"),
	}, Options{})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestOpen_Errors(t *testing.T) {
	_, err := Open(context.Background(), nil, Options{})
	assert.Equal(t, apperrors.CodeConfigError, apperrors.GetErrorCode(err))

	_, err = Open(context.Background(), &config.CatalogConfig{Type: "oracle"}, Options{})
	assert.Equal(t, apperrors.CodeConfigError, apperrors.GetErrorCode(err))
}

func TestOpen_Tracing(t *testing.T) {
	c, err := Open(context.Background(), &config.CatalogConfig{
		Path: filepath.Join(t.TempDir(), "traced.db"),
	}, Options{Tracing: true})
	require.NoError(t, err)
	defer c.Close()

	require.NoError(t, c.Record(context.Background(), &BuildRecord{Path: "traced.bindeps"}))
}

func TestCatalog_RecordAndLatest(t *testing.T) {
	c := setupCatalog(t)
	ctx := context.Background()

	t.Run("Empty", func(t *testing.T) {
		_, err := c.Latest(ctx, "out/app.bindeps")
		assert.True(t, apperrors.IsNotFound(err))

		recs, err := c.List(ctx, 10)
		require.NoError(t, err)
		assert.Empty(t, recs)
	})

	t.Run("WithData", func(t *testing.T) {
		first := &BuildRecord{Path: "out/app.bindeps", StringPoolSize: 10, ClassInfoSize: 3, HeapSize: 64}
		require.NoError(t, c.Record(ctx, first))
		assert.NotZero(t, first.ID)
		assert.False(t, first.CreatedAt.IsZero())

		second := &BuildRecord{Path: "out/app.bindeps", StringPoolSize: 12, ClassInfoSize: 4, HeapSize: 80, Checksum: "xxh3:00"}
		require.NoError(t, c.Record(ctx, second))
		require.NoError(t, c.Record(ctx, &BuildRecord{Path: "out/other.bindeps"}))

		latest, err := c.Latest(ctx, "out/app.bindeps")
		require.NoError(t, err)
		assert.Equal(t, second.ID, latest.ID)
		assert.Equal(t, int32(12), latest.StringPoolSize)
		assert.Equal(t, "xxh3:00", latest.Checksum)

		recs, err := c.List(ctx, 2)
		require.NoError(t, err)
		require.Len(t, recs, 2)
		assert.Equal(t, "out/other.bindeps", recs[0].Path)
		assert.Equal(t, second.ID, recs[1].ID)

		all, err := c.List(ctx, 0)
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})

	t.Run("MissingPath", func(t *testing.T) {
		assert.True(t, apperrors.IsInvalidInput(c.Record(ctx, &BuildRecord{})))
		assert.True(t, apperrors.IsInvalidInput(c.Record(ctx, nil)))
	})
}

func TestCatalog_MarkPublished(t *testing.T) {
	c := setupCatalog(t)
	ctx := context.Background()

	rec := &BuildRecord{Path: "out/app.bindeps"}
	require.NoError(t, c.Record(ctx, rec))
	require.NoError(t, c.MarkPublished(ctx, rec.ID, "indexes/app.bindeps.zst"))

	latest, err := c.Latest(ctx, "out/app.bindeps")
	require.NoError(t, err)
	assert.Equal(t, "indexes/app.bindeps.zst", latest.ObjectKey)

	err = c.MarkPublished(ctx, rec.ID+100, "nowhere")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestNewBuildRecord(t *testing.T) {
	res := &bindeps.BuildResult{
		Path:           "out/app.bindeps",
		StringPoolSize: 5,
		ClassInfoSize:  2,
		HeapSize:       40,
		Duration:       1500 * time.Millisecond,
	}
	rec := NewBuildRecord(res, "xxh3:ab")

	assert.Equal(t, "out/app.bindeps", rec.Path)
	assert.Equal(t, int64(bindeps.HeaderSize+5*bindeps.StringPoolRecordSize+2*bindeps.ClassInfoRecordSize+40), rec.FileSize)
	assert.Equal(t, int64(1500), rec.DurationMs)
	assert.Equal(t, 1500*time.Millisecond, rec.Duration())
	assert.Equal(t, "xxh3:ab", rec.Checksum)
}

func TestCatalog_MySQLInsert(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	db, err := gorm.Open(mysql.New(mysql.Config{Conn: sqlDB, SkipInitializeWithVersion: true}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `bindeps_builds`")).
		WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectCommit()

	rec := &BuildRecord{Path: "out/app.bindeps", ClassInfoSize: 3}
	require.NoError(t, New(db).Record(context.Background(), rec))
	assert.Equal(t, int64(7), rec.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalog_MySQLInsertFailure(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	db, err := gorm.Open(mysql.New(mysql.Config{Conn: sqlDB, SkipInitializeWithVersion: true}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO `bindeps_builds`")).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	err = New(db).Record(context.Background(), &BuildRecord{Path: "out/app.bindeps"})
	assert.Equal(t, apperrors.CodeDatabaseError, apperrors.GetErrorCode(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCatalog_PostgresLatestNotFound(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "bindeps_builds" WHERE path = $1`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "path"}))

	_, err = New(db).Latest(context.Background(), "out/app.bindeps")
	assert.True(t, apperrors.IsNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}
