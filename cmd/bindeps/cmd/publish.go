package cmd

import (
	"context"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/fastmerger/internal/storage"
	"github.com/fastmerger/pkg/compression"
	apperrors "github.com/fastmerger/pkg/errors"
)

var (
	// Publish command flags
	publishName        string
	publishCompression string
	publishBest        bool
	publishNoClobber   bool

	// Fetch command flags
	fetchOutput string
)

// publishCmd represents the publish command
var publishCmd = &cobra.Command{
	Use:   "publish <index>",
	Short: "Compress an index and upload it to storage",
	Long: `Publish validates an index, compresses it and uploads it to the storage
backend from the config file (local directory or Tencent COS). The object key
is <storage.prefix>/<name><ext>, where the extension names the codec.

When the catalog is enabled, the latest build of the index is marked with the
object key.`,
	Args: cobra.ExactArgs(1),
	RunE: runPublish,
}

// unpublishCmd represents the unpublish command
var unpublishCmd = &cobra.Command{
	Use:   "unpublish <key>",
	Short: "Delete a published index from storage",
	Args:  cobra.ExactArgs(1),
	RunE:  runUnpublish,
}

// fetchCmd represents the fetch command
var fetchCmd = &cobra.Command{
	Use:   "fetch <key>",
	Short: "Download a published index",
	Long: `Fetch downloads an object, decompresses it whatever codec it was stored
with and validates the result before moving it into place. An existing file
at the output path is left untouched when any step fails.`,
	Args: cobra.ExactArgs(1),
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(unpublishCmd)

	publishCmd.Flags().StringVar(&publishName, "name", "", "Object name (default index file name without extension)")
	publishCmd.Flags().StringVar(&publishCompression, "compression", "", "zstd, gzip or none (default from config)")
	publishCmd.Flags().BoolVar(&publishBest, "best", false, "Use the best compression level")
	publishCmd.Flags().BoolVar(&publishNoClobber, "no-clobber", false, "Fail if the object key already exists")

	fetchCmd.Flags().StringVarP(&fetchOutput, "output", "o", "", "Output index file (required)")
	fetchCmd.MarkFlagRequired("output")
}

func newPublisher() (*storage.Publisher, error) {
	store, err := storage.Open(&cfg.Storage)
	if err != nil {
		return nil, err
	}
	name := cfg.Storage.Compression
	if publishCompression != "" {
		name = publishCompression
	}
	typ, err := compression.ParseType(name)
	if err != nil {
		return nil, err
	}
	level := compression.LevelDefault
	if publishBest {
		level = compression.LevelBest
	}
	return storage.NewPublisher(store, storage.PublisherOptions{
		Prefix:      cfg.Storage.Prefix,
		Compression: typ,
		Level:       level,
		NoClobber:   publishNoClobber,
		Logger:      GetLogger(),
	}), nil
}

func runPublish(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	ctx := cmd.Context()

	path, err := filepath.Abs(args[0])
	if err != nil {
		return apperrors.Wrap(apperrors.CodeIOError, "resolve index path", err)
	}
	p, err := newPublisher()
	if err != nil {
		return err
	}

	name := publishName
	if name == "" {
		name = storage.IndexName(path)
	}
	pub, err := p.Publish(ctx, path, name)
	if err != nil {
		return err
	}

	success(out, "Published %s", pub.Key)
	ratio := 0.0
	if pub.Size > 0 {
		ratio = float64(pub.StoredSize) / float64(pub.Size) * 100
	}
	keyValues(out,
		[2]interface{}{"URL", pub.URL},
		[2]interface{}{"Classes", humanize.Comma(int64(pub.Header.ClassInfoSize))},
		[2]interface{}{"Size", humanize.IBytes(uint64(pub.Size))},
		[2]interface{}{"Stored", humanize.IBytes(uint64(pub.StoredSize)) + " (" + humanize.FtoaWithDigits(ratio, 1) + "%)"},
		[2]interface{}{"Checksum", pub.Checksum},
	)

	if cfg.Catalog.Enabled {
		markPublished(ctx, cmd, path, pub.Key)
	}
	return nil
}

// markPublished stores key on the latest catalog entry for path. Failures
// are reported but do not fail the publish.
func markPublished(ctx context.Context, cmd *cobra.Command, path, key string) {
	c, err := openCatalog(ctx)
	if err != nil {
		warning(cmd.ErrOrStderr(), "catalog unavailable: %v", err)
		return
	}
	defer c.Close()

	rec, err := c.Latest(ctx, path)
	if err != nil {
		if apperrors.IsNotFound(err) {
			warning(cmd.ErrOrStderr(), "no catalog entry for %s", path)
		} else {
			warning(cmd.ErrOrStderr(), "catalog lookup failed: %v", err)
		}
		return
	}
	if err := c.MarkPublished(ctx, rec.ID, key); err != nil {
		warning(cmd.ErrOrStderr(), "failed to update catalog: %v", err)
	}
}

func runFetch(cmd *cobra.Command, args []string) error {
	p, err := newPublisher()
	if err != nil {
		return err
	}
	typ, err := p.Fetch(cmd.Context(), args[0], fetchOutput)
	if err != nil {
		return err
	}
	success(cmd.OutOrStdout(), "Fetched %s to %s (%s)", args[0], fetchOutput, typ)
	return nil
}

func runUnpublish(cmd *cobra.Command, args []string) error {
	p, err := newPublisher()
	if err != nil {
		return err
	}
	if err := p.Unpublish(cmd.Context(), args[0]); err != nil {
		return err
	}
	success(cmd.OutOrStdout(), "Unpublished %s", args[0])
	return nil
}
