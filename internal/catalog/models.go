// Package catalog records index builds in a SQL database.
package catalog

import (
	"time"

	"github.com/fastmerger/internal/bindeps"
)

// BuildRecord represents the bindeps_builds table.
type BuildRecord struct {
	ID             int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Path           string    `gorm:"column:path;type:varchar(512);index:idx_builds_path"`
	StringPoolSize int32     `gorm:"column:string_pool_size"`
	ClassInfoSize  int32     `gorm:"column:class_info_size"`
	HeapSize       int64     `gorm:"column:heap_size"`
	FileSize       int64     `gorm:"column:file_size"`
	Checksum       string    `gorm:"column:checksum;type:varchar(64)"`
	DurationMs     int64     `gorm:"column:duration_ms"`
	ObjectKey      string    `gorm:"column:object_key;type:varchar(512)"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName returns the table name for BuildRecord.
func (BuildRecord) TableName() string {
	return "bindeps_builds"
}

// Duration returns the build duration.
func (r *BuildRecord) Duration() time.Duration {
	return time.Duration(r.DurationMs) * time.Millisecond
}

// NewBuildRecord converts a build result into a record. checksum may be
// empty.
func NewBuildRecord(res *bindeps.BuildResult, checksum string) *BuildRecord {
	h := bindeps.Header{
		StringPoolSize: res.StringPoolSize,
		ClassInfoSize:  res.ClassInfoSize,
		HeapSize:       int32(res.HeapSize),
	}
	return &BuildRecord{
		Path:           res.Path,
		StringPoolSize: res.StringPoolSize,
		ClassInfoSize:  res.ClassInfoSize,
		HeapSize:       res.HeapSize,
		FileSize:       h.FileSize(),
		Checksum:       checksum,
		DurationMs:     res.Duration.Milliseconds(),
	}
}
