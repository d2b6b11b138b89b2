// Package cmd implements the bindeps command line.
package cmd

import (
	"context"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/fastmerger/internal/bindeps"
	"github.com/fastmerger/pkg/config"
	apperrors "github.com/fastmerger/pkg/errors"
	"github.com/fastmerger/pkg/parallel"
	"github.com/fastmerger/pkg/pprof"
	"github.com/fastmerger/pkg/telemetry"
	"github.com/fastmerger/pkg/utils"
)

var (
	// Global flags
	cfgFile       string
	verbose       bool
	noColor       bool
	pprofDir      string
	pprofProfiles string

	cfg               *config.Config
	logger            utils.Logger = &utils.NullLogger{}
	shutdownTelemetry telemetry.ShutdownFunc
	profiler          *pprof.Collector
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "bindeps",
	Short: "Build and query binary class-dependency indexes",
	Long: `bindeps turns a class manifest into a compact binary index of class
names, superclasses, interfaces, annotations and dependencies.

The index is memory-mapped on read, so lookups and dependency queries start
without loading the whole file. Indexes can be published to object storage,
recorded in a build catalog and exported to Neo4j.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return err
		}
		cfg = loaded

		l, err := newLogger(&cfg.Log)
		if err != nil {
			return err
		}
		logger = l
		utils.SetGlobalLogger(l)

		if noColor {
			color.NoColor = true
		}

		if err := startProfiler(cmd.Name()); err != nil {
			return err
		}

		shutdown, err := telemetry.Init(cmd.Context(), telemetry.LoadFromEnv())
		if err != nil {
			logger.Warn("telemetry disabled: %v", err)
			return nil
		}
		shutdownTelemetry = shutdown
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if shutdownTelemetry != nil {
			if err := shutdownTelemetry(context.Background()); err != nil {
				logger.Warn("failed to flush traces: %v", err)
			}
			shutdownTelemetry = nil
		}
		return stopProfiler()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Config file (default ./bindeps.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().StringVar(&pprofDir, "pprof-dir", "", "Write runtime profiles of this run to the directory")
	rootCmd.PersistentFlags().StringVar(&pprofProfiles, "pprof-profiles", "cpu,heap", "Profiles to collect (cpu,heap,goroutine,block,mutex,allocs)")

	binName := BinName()
	rootCmd.Example = `  # Build an index from a class manifest
  ` + binName + ` build -m classes.jsonl -o app.bindeps

  # Show what depends on a class
  ` + binName + ` query app.bindeps com/app/Service --dependents --transitive

  # Summarize an index
  ` + binName + ` stats app.bindeps --top 20

  # Publish to the configured storage and fetch it back
  ` + binName + ` publish app.bindeps
  ` + binName + ` fetch bindeps/app.zst -o app.bindeps`
}

// newLogger builds the process logger from the log section. --verbose
// forces debug level.
func newLogger(lc *config.LogConfig) (utils.Logger, error) {
	level := utils.ParseLogLevel(lc.Level)
	if verbose {
		level = utils.LevelDebug
	}

	var l *utils.DefaultLogger
	if lc.OutputPath != "" {
		fl, err := utils.NewFileLogger(level, lc.OutputPath)
		if err != nil {
			return nil, err
		}
		l = fl
	} else {
		l = utils.NewDefaultLogger(level, os.Stderr)
		l.SetColor(!noColor)
	}
	l.SetFormat(utils.ParseLogFormat(lc.Format))
	return l, nil
}

// startProfiler starts a collector when --pprof-dir is set.
func startProfiler(label string) error {
	// A failed command skips PersistentPostRunE and leaves its collector running.
	_ = stopProfiler()
	if pprofDir == "" {
		return nil
	}
	types, err := pprof.ParseProfileTypes(pprofProfiles)
	if err != nil {
		return apperrors.Usagef("--pprof-profiles: %v", err)
	}
	c, err := pprof.NewCollector(&pprof.Config{OutputDir: pprofDir, Profiles: types, Label: label})
	if err != nil {
		return apperrors.Usagef("--pprof-dir: %v", err)
	}
	if err := c.Start(); err != nil {
		return apperrors.Wrap(apperrors.CodeIOError, "failed to start profiling", err)
	}
	profiler = c
	logger.Debug("profiling %s to %s", label, pprofDir)
	return nil
}

func stopProfiler() error {
	if profiler == nil {
		return nil
	}
	c := profiler
	profiler = nil
	if err := c.Stop(); err != nil {
		return apperrors.Wrap(apperrors.CodeIOError, "failed to write profiles", err)
	}
	for _, f := range c.Files() {
		logger.Info("wrote profile %s", f)
	}
	return nil
}

// GetLogger returns the configured logger
func GetLogger() utils.Logger {
	return logger
}

// BinName returns the base name of the current executable
func BinName() string {
	return filepath.Base(os.Args[0])
}

// openIndex opens path with the configured mapping mode.
func openIndex(path string) (*bindeps.Reader, error) {
	return bindeps.Open(path,
		bindeps.WithMmap(cfg.Index.UseMmap),
		bindeps.WithReaderLogger(logger),
	)
}

// poolConfig returns the worker pool settings for index-wide queries.
func poolConfig() parallel.PoolConfig {
	return parallel.DefaultPoolConfig().WithWorkers(cfg.Build.Workers)
}
