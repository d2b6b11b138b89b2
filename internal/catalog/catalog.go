package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/fastmerger/pkg/config"
	apperrors "github.com/fastmerger/pkg/errors"
)

// DBType represents the database type.
type DBType string

const (
	DBTypeSQLite   DBType = "sqlite"
	DBTypeMySQL    DBType = "mysql"
	DBTypePostgres DBType = "postgres"
)

// Options tunes Open.
type Options struct {
	// Tracing installs the OpenTelemetry GORM plugin.
	Tracing bool
}

// Catalog stores BuildRecords through GORM.
type Catalog struct {
	db *gorm.DB
}

// dialector returns the GORM dialector for cfg.
func dialector(cfg *config.CatalogConfig) (gorm.Dialector, error) {
	switch DBType(cfg.Type) {
	case DBTypeSQLite, "":
		return sqlite.Open(cfg.Path), nil
	case DBTypeMySQL:
		port := cfg.Port
		if port == 0 {
			port = 3306
		}
		dsn := fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true&loc=Local",
			cfg.User, cfg.Password, cfg.Host, port, cfg.Database,
		)
		return mysql.Open(dsn), nil
	case DBTypePostgres, DBType("postgresql"):
		port := cfg.Port
		if port == 0 {
			port = 5432
		}
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			cfg.Host, port, cfg.User, cfg.Password, cfg.Database,
		)
		return postgres.Open(dsn), nil
	default:
		return nil, apperrors.Newf(apperrors.CodeConfigError, "unsupported catalog type: %s", cfg.Type)
	}
}

// Open connects to the configured database and migrates the schema.
func Open(ctx context.Context, cfg *config.CatalogConfig, opts Options) (*Catalog, error) {
	if cfg == nil {
		return nil, apperrors.New(apperrors.CodeConfigError, "catalog config is nil")
	}
	dial, err := dialector(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dial, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDatabaseError, "open catalog", err)
	}
	if opts.Tracing {
		if err := db.Use(tracing.NewPlugin()); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeDatabaseError, "enable catalog tracing", err)
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDatabaseError, "get underlying sql.DB", err)
	}
	maxConns := cfg.MaxConns
	if maxConns <= 0 {
		maxConns = 4
	}
	sqlDB.SetMaxOpenConns(maxConns)
	sqlDB.SetMaxIdleConns(max(maxConns/2, 1))
	sqlDB.SetConnMaxLifetime(time.Hour)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		sqlDB.Close()
		return nil, apperrors.Wrap(apperrors.CodeDatabaseError, "ping catalog", err)
	}

	c := New(db)
	if err := c.Migrate(ctx); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return c, nil
}

// New wraps an open GORM handle. The schema is not migrated.
func New(db *gorm.DB) *Catalog {
	return &Catalog{db: db}
}

// Migrate creates or updates the catalog tables.
func (c *Catalog) Migrate(ctx context.Context) error {
	if err := c.db.WithContext(ctx).AutoMigrate(&BuildRecord{}); err != nil {
		return apperrors.Wrap(apperrors.CodeDatabaseError, "migrate catalog", err)
	}
	return nil
}

// Record inserts rec and sets its ID and CreatedAt.
func (c *Catalog) Record(ctx context.Context, rec *BuildRecord) error {
	if rec == nil || rec.Path == "" {
		return apperrors.New(apperrors.CodeInvalidInput, "build record without a path")
	}
	if err := c.db.WithContext(ctx).Create(rec).Error; err != nil {
		return apperrors.Wrap(apperrors.CodeDatabaseError, "record build", err)
	}
	return nil
}

// Latest returns the most recent build of path.
func (c *Catalog) Latest(ctx context.Context, path string) (*BuildRecord, error) {
	var rec BuildRecord
	err := c.db.WithContext(ctx).
		Where("path = ?", path).
		Order("created_at DESC").
		Order("id DESC").
		First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.Newf(apperrors.CodeNotFound, "no build recorded for %s", path)
		}
		return nil, apperrors.Wrap(apperrors.CodeDatabaseError, "query latest build", err)
	}
	return &rec, nil
}

// List returns up to limit builds, newest first. A non-positive limit
// returns all builds.
func (c *Catalog) List(ctx context.Context, limit int) ([]*BuildRecord, error) {
	q := c.db.WithContext(ctx).Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var recs []*BuildRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, apperrors.Wrap(apperrors.CodeDatabaseError, "list builds", err)
	}
	return recs, nil
}

// MarkPublished stores the object key a build was published under.
func (c *Catalog) MarkPublished(ctx context.Context, id int64, objectKey string) error {
	result := c.db.WithContext(ctx).
		Model(&BuildRecord{}).
		Where("id = ?", id).
		Update("object_key", objectKey)
	if result.Error != nil {
		return apperrors.Wrap(apperrors.CodeDatabaseError, "mark build published", result.Error)
	}
	if result.RowsAffected == 0 {
		return apperrors.Newf(apperrors.CodeNotFound, "build not found: %d", id)
	}
	return nil
}

// Close closes the database connection.
func (c *Catalog) Close() error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
