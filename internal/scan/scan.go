package scan

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/fastmerger/internal/bindeps"
	apperrors "github.com/fastmerger/pkg/errors"
	"github.com/fastmerger/pkg/parallel"
	"github.com/fastmerger/pkg/utils"
)

// Options configures Scan.
type Options struct {
	Pool parallel.PoolConfig
	// Progress, when set, is called periodically with completed/total and
	// once more when the scan ends.
	Progress         func(completed, total int64)
	ProgressInterval time.Duration
	Logger           utils.Logger
}

// Stats summarizes one scan.
type Stats struct {
	Classes      int64
	Interfaces   int64
	Annotations  int64
	Dependencies int64
	Duration     time.Duration
}

// Scan replays records concurrently, one ClassCollector per record, and
// adds every released ClassInfo to b. It stops at the first failing record.
func Scan(ctx context.Context, records []ClassRecord, b *bindeps.Builder, opts Options) (*Stats, error) {
	if b == nil {
		return nil, apperrors.New(apperrors.CodeInvalidInput, "nil builder")
	}
	logger := opts.Logger
	if logger == nil {
		logger = &utils.NullLogger{}
	}
	if opts.Pool.Workers <= 0 {
		opts.Pool = parallel.DefaultPoolConfig()
	}

	start := time.Now()
	var ifaces, anns, deps atomic.Int64

	progress := parallel.NewProgress(int64(len(records)), opts.Progress, opts.ProgressInterval)
	progress.Start(ctx)
	defer progress.Stop()

	classes, err := parallel.ForEach(ctx, records, opts.Pool, func(ctx context.Context, rec ClassRecord) error {
		c := b.NewClassCollector()
		if err := Replay(rec, c); err != nil {
			return err
		}
		info, err := c.Release()
		if err != nil {
			return err
		}
		if err := b.Add(info); err != nil {
			return err
		}
		ifaces.Add(int64(len(info.Interfaces)))
		anns.Add(int64(len(info.Annotations)))
		deps.Add(int64(info.DependencySymbols.Len()))
		progress.Add(1)
		return nil
	})

	stats := &Stats{
		Classes:      classes,
		Interfaces:   ifaces.Load(),
		Annotations:  anns.Load(),
		Dependencies: deps.Load(),
		Duration:     time.Since(start),
	}
	if err != nil {
		return stats, err
	}
	logger.WithFields(map[string]interface{}{
		"classes":      stats.Classes,
		"dependencies": stats.Dependencies,
	}).Debug("scanned %d records in %v", len(records), stats.Duration)
	return stats, nil
}
