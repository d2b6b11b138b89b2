package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fastmerger/internal/graph"
	"github.com/fastmerger/pkg/filter"
	"github.com/fastmerger/pkg/telemetry"
)

var (
	// Stats command flags
	statsTop              int
	statsBusinessPrefixes []string
)

// statsCmd represents the stats command
var statsCmd = &cobra.Command{
	Use:   "stats <index>",
	Short: "Summarize an index",
	Long: `Stats prints class and dependency totals, a breakdown by class category
and the most depended-on names. Classes under a --business-prefix are
reported as their own category.`,
	Args: cobra.ExactArgs(1),
	RunE: runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)

	statsCmd.Flags().IntVarP(&statsTop, "top", "n", 10, "Number of most depended-on names to list")
	statsCmd.Flags().StringSliceVarP(&statsBusinessPrefixes, "business-prefix", "b", nil, "Class name prefixes reported as business classes")
}

func runStats(cmd *cobra.Command, args []string) (err error) {
	out := cmd.OutOrStdout()

	ctx, span := telemetry.StartSpan(cmd.Context(), "bindeps.stats", attribute.String("bindeps.path", args[0]))
	defer func() { telemetry.EndSpan(span, err) }()

	r, err := openIndex(args[0])
	if err != nil {
		return err
	}
	defer r.Close()

	f := filter.NewClassFilter()
	for _, p := range statsBusinessPrefixes {
		f.AddBusinessPrefix(internalName(p))
	}

	summary, err := graph.Summarize(ctx, r, f, poolConfig())
	if err != nil {
		return err
	}

	heading(out, "Summary")
	maxClass := "-"
	if summary.MaxClass >= 0 {
		maxClass = fmt.Sprintf("%s (%d)", className(r, summary.MaxClass), summary.MaxDependencies)
	}
	keyValues(out,
		[2]interface{}{"File size", humanize.IBytes(uint64(r.Header().FileSize()))},
		[2]interface{}{"Classes", humanize.Comma(int64(summary.Classes))},
		[2]interface{}{"Names", humanize.Comma(int64(summary.Names))},
		[2]interface{}{"Dependencies", humanize.Comma(summary.Dependencies)},
		[2]interface{}{"Avg deps/class", fmt.Sprintf("%.2f", summary.AverageDependencies())},
		[2]interface{}{"Most dependencies", maxClass},
	)

	heading(out, "By category")
	tbl := newTable(out)
	tbl.AppendHeader(table.Row{"Category", "Classes", "Dependencies"})
	for _, c := range filter.Categories {
		cc, ok := summary.ByCategory[c]
		if !ok {
			continue
		}
		tbl.AppendRow(table.Row{c.String(), humanize.Comma(int64(cc.Classes)), humanize.Comma(cc.Dependencies)})
	}
	tbl.Render()

	if statsTop <= 0 {
		return nil
	}
	top, err := graph.TopDependedOn(ctx, r, statsTop, poolConfig())
	if err != nil {
		return err
	}
	heading(out, "Most depended on")
	tbl = newTable(out)
	tbl.AppendHeader(table.Row{"#", "Name", "Dependents"})
	for i, rk := range top {
		tbl.AppendRow(table.Row{i + 1, poolName(r, rk.PoolIndex), rk.Dependents})
	}
	tbl.Render()
	return nil
}
