package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fastmerger/internal/bindeps"
	"github.com/fastmerger/internal/catalog"
	"github.com/fastmerger/internal/scan"
	"github.com/fastmerger/internal/storage"
	apperrors "github.com/fastmerger/pkg/errors"
	"github.com/fastmerger/pkg/parallel"
	"github.com/fastmerger/pkg/telemetry"
	"github.com/fastmerger/pkg/utils"
)

var (
	// Build command flags
	manifestFile string
	indexOutput  string
	buildWorkers int
	bufferSize   string
	showTiming   bool
	recordBuild  bool
)

// buildCmd represents the build command
var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build an index from a class manifest",
	Long: `Build reads a JSON-lines class manifest, one class per line:

  {"name":"com/app/Main","access":33,"super":"java/lang/Object",
   "interfaces":[],"annotations":[],"dependencies":["com/app/Service"]}

Classes are collected concurrently and written as a single index file. The
output is deterministic: it depends only on the manifest contents, not on
line order or worker count.`,
	Args: cobra.NoArgs,
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)

	binName := BinName()
	buildCmd.Example = `  # Build next to the configured output directory
  ` + binName + ` build -m classes.jsonl

  # Read the manifest from stdin and print phase timings
  ` + binName + ` build -m - -o app.bindeps --timing

  # Record the build in the catalog
  ` + binName + ` build -m classes.jsonl --record`

	buildCmd.Flags().StringVarP(&manifestFile, "manifest", "m", "", "Class manifest file, - for stdin (required)")
	buildCmd.Flags().StringVarP(&indexOutput, "output", "o", "", "Output index file (default <output_dir>/<manifest>.bindeps)")
	buildCmd.Flags().IntVarP(&buildWorkers, "workers", "w", 0, "Collector workers (default from config)")
	buildCmd.Flags().StringVar(&bufferSize, "buffer-size", "", "Writer buffer per channel, e.g. 256KiB (default from config)")
	buildCmd.Flags().BoolVar(&showTiming, "timing", false, "Log per-phase timings")
	buildCmd.Flags().BoolVar(&recordBuild, "record", false, "Record the build in the catalog even if catalog.enabled is false")
	buildCmd.MarkFlagRequired("manifest")
}

func runBuild(cmd *cobra.Command, args []string) (err error) {
	log := GetLogger()
	out := cmd.OutOrStdout()

	ctx := cmd.Context()
	if cfg.Build.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Build.Timeout)
		defer cancel()
	}
	ctx, span := telemetry.StartSpan(ctx, "bindeps.build", attribute.String("bindeps.manifest", manifestFile))
	defer func() { telemetry.EndSpan(span, err) }()

	buf := cfg.Index.BufferSize
	if bufferSize != "" {
		n, err := humanize.ParseBytes(bufferSize)
		if err != nil {
			return apperrors.Wrap(apperrors.CodeInvalidInput, "invalid --buffer-size", err)
		}
		buf = int(n)
	}
	workers := cfg.Build.Workers
	if buildWorkers > 0 {
		workers = buildWorkers
	}

	output, err := filepath.Abs(resolveOutput(manifestFile, indexOutput, cfg.Index.OutputDir))
	if err != nil {
		return apperrors.Wrap(apperrors.CodeIOError, "resolve output path", err)
	}
	if err := os.MkdirAll(filepath.Dir(output), 0755); err != nil {
		return apperrors.Wrap(apperrors.CodeIOError, "create output directory", err)
	}

	timer := utils.NewTimer("build",
		utils.WithEnabled(showTiming || cfg.Build.Timing),
		utils.WithLogger(log),
	)

	var records []scan.ClassRecord
	if _, err := timer.Time("manifest", func() error {
		var err error
		records, err = readManifest(cmd.InOrStdin(), manifestFile)
		return err
	}); err != nil {
		return err
	}
	log.Info("read %d classes from %s", len(records), manifestFile)

	builder := bindeps.NewBuilder(bindeps.BuilderOptions{
		BufferSize: buf,
		Logger:     log,
		Timer:      timer,
	})

	var stats *scan.Stats
	if _, err := timer.Time("collect", func() error {
		var err error
		stats, err = scan.Scan(ctx, records, builder, scan.Options{
			Pool: parallel.DefaultPoolConfig().WithWorkers(workers),
			Progress: func(completed, total int64) {
				log.Debug("collected %d/%d classes", completed, total)
			},
			ProgressInterval: time.Second,
			Logger:           log,
		})
		return err
	}); err != nil {
		return err
	}

	res, err := builder.Build(ctx, output)
	if err != nil {
		return err
	}
	timer.PrintSummary()

	header := bindeps.Header{
		StringPoolSize: res.StringPoolSize,
		ClassInfoSize:  res.ClassInfoSize,
		HeapSize:       int32(res.HeapSize),
	}
	span.SetAttributes(
		attribute.Int("bindeps.classes", int(res.ClassInfoSize)),
		attribute.Int("bindeps.names", int(res.StringPoolSize)),
	)

	success(out, "Built %s", res.Path)
	keyValues(out,
		[2]interface{}{"Classes", humanize.Comma(int64(res.ClassInfoSize))},
		[2]interface{}{"Names", humanize.Comma(int64(res.StringPoolSize))},
		[2]interface{}{"Dependencies", humanize.Comma(stats.Dependencies)},
		[2]interface{}{"Heap", humanize.IBytes(uint64(res.HeapSize))},
		[2]interface{}{"File size", humanize.IBytes(uint64(header.FileSize()))},
		[2]interface{}{"Duration", res.Duration.Round(time.Millisecond)},
	)

	if recordBuild || cfg.Catalog.Enabled {
		if err := recordInCatalog(ctx, res); err != nil {
			return err
		}
		success(out, "Recorded build in catalog")
	}
	return nil
}

// resolveOutput picks the index path for a manifest.
func resolveOutput(manifest, output, outputDir string) string {
	if output != "" {
		return output
	}
	name := "index"
	if manifest != "-" {
		base := filepath.Base(manifest)
		name = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return filepath.Join(outputDir, name+".bindeps")
}

func readManifest(stdin io.Reader, path string) ([]scan.ClassRecord, error) {
	if path == "-" {
		return scan.ReadManifest(stdin)
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.Newf(apperrors.CodeNotFound, "manifest not found: %s", path)
		}
		return nil, apperrors.Wrap(apperrors.CodeIOError, "open manifest", err)
	}
	defer f.Close()
	return scan.ReadManifest(f)
}

func recordInCatalog(ctx context.Context, res *bindeps.BuildResult) error {
	sum, err := storage.Checksum(res.Path)
	if err != nil {
		return err
	}
	c, err := openCatalog(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	rec := catalog.NewBuildRecord(res, sum)
	if err := c.Record(ctx, rec); err != nil {
		return err
	}
	GetLogger().WithField("id", rec.ID).Info("recorded build of %s", res.Path)
	return nil
}

func openCatalog(ctx context.Context) (*catalog.Catalog, error) {
	c, err := catalog.Open(ctx, &cfg.Catalog, catalog.Options{
		Tracing: telemetry.LoadFromEnv().Enabled,
	})
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	return c, nil
}
