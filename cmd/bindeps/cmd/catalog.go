package cmd

import (
	"io"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/fastmerger/internal/catalog"
	apperrors "github.com/fastmerger/pkg/errors"
)

var catalogLimit int

// catalogCmd represents the catalog command
var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect recorded builds",
	Long: `Catalog reads the build catalog configured in the catalog section of the
config file. Builds are recorded by "build --record" or automatically when
catalog.enabled is true.`,
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent builds",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := openCatalog(cmd.Context())
		if err != nil {
			return err
		}
		defer c.Close()

		recs, err := c.List(cmd.Context(), catalogLimit)
		if err != nil {
			return err
		}
		printBuilds(cmd.OutOrStdout(), recs)
		return nil
	},
}

var catalogLatestCmd = &cobra.Command{
	Use:   "latest <index>",
	Short: "Show the latest build of an index",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := filepath.Abs(args[0])
		if err != nil {
			return apperrors.Wrap(apperrors.CodeIOError, "resolve index path", err)
		}
		c, err := openCatalog(cmd.Context())
		if err != nil {
			return err
		}
		defer c.Close()

		rec, err := c.Latest(cmd.Context(), path)
		if err != nil {
			return err
		}
		printBuilds(cmd.OutOrStdout(), []*catalog.BuildRecord{rec})
		return nil
	},
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.AddCommand(catalogListCmd)
	catalogCmd.AddCommand(catalogLatestCmd)

	catalogListCmd.Flags().IntVarP(&catalogLimit, "limit", "n", 20, "Maximum builds to list (0 for all)")
}

func printBuilds(out io.Writer, recs []*catalog.BuildRecord) {
	tbl := newTable(out)
	tbl.AppendHeader(table.Row{"ID", "Path", "Classes", "Names", "Size", "Duration", "Built", "Object"})
	for _, r := range recs {
		object := r.ObjectKey
		if object == "" {
			object = "-"
		}
		tbl.AppendRow(table.Row{
			r.ID,
			r.Path,
			humanize.Comma(int64(r.ClassInfoSize)),
			humanize.Comma(int64(r.StringPoolSize)),
			humanize.IBytes(uint64(r.FileSize)),
			r.Duration().Round(time.Millisecond),
			humanize.Time(r.CreatedAt),
			object,
		})
	}
	tbl.AppendFooter(table.Row{"", "Total", len(recs)})
	tbl.Render()
}
