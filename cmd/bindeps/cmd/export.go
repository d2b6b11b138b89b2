package cmd

import (
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/fastmerger/internal/export"
	"github.com/fastmerger/pkg/filter"
)

var (
	// Export command flags
	neo4jURI         string
	neo4jUser        string
	neo4jPassword    string
	neo4jDatabase    string
	neo4jBatchSize   int
	neo4jClean       bool
	exportBusinesses []string
)

// exportCmd represents the export command
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export an index to another system",
}

var exportNeo4jCmd = &cobra.Command{
	Use:   "neo4j <index>",
	Short: "Load an index into Neo4j",
	Long: `Load writes every class as a JavaClass node keyed by its full name and
adds EXTENDS, IMPLEMENTS, ANNOTATED_WITH and DEPENDS_ON relationships. Names
referenced but not indexed become nodes with indexed = false. Statements use
MERGE, so loading the same index twice is idempotent.

Connection settings default to the neo4j section of the config file; the
password is usually supplied as BINDEPS_NEO4J_PASSWORD.`,
	Args: cobra.ExactArgs(1),
	RunE: runExportNeo4j,
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.AddCommand(exportNeo4jCmd)

	exportNeo4jCmd.Flags().StringVar(&neo4jURI, "uri", "", "Neo4j bolt URI (default from config)")
	exportNeo4jCmd.Flags().StringVar(&neo4jUser, "user", "", "Neo4j user (default from config)")
	exportNeo4jCmd.Flags().StringVar(&neo4jPassword, "password", "", "Neo4j password (default from config)")
	exportNeo4jCmd.Flags().StringVar(&neo4jDatabase, "database", "", "Neo4j database (default from config)")
	exportNeo4jCmd.Flags().IntVar(&neo4jBatchSize, "batch-size", 0, "Rows per statement (default from config)")
	exportNeo4jCmd.Flags().BoolVar(&neo4jClean, "clean", false, "Delete existing JavaClass nodes first")
	exportNeo4jCmd.Flags().StringSliceVarP(&exportBusinesses, "business-prefix", "b", nil, "Class name prefixes categorized as business")
}

func runExportNeo4j(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	nc := cfg.Neo4j
	if neo4jURI != "" {
		nc.URI = neo4jURI
	}
	if neo4jUser != "" {
		nc.User = neo4jUser
	}
	if neo4jPassword != "" {
		nc.Password = neo4jPassword
	}
	if neo4jDatabase != "" {
		nc.Database = neo4jDatabase
	}
	if neo4jBatchSize > 0 {
		nc.BatchSize = neo4jBatchSize
	}

	r, err := openIndex(args[0])
	if err != nil {
		return err
	}
	defer r.Close()

	runner, err := export.NewNeo4jRunner(ctx, &nc)
	if err != nil {
		return err
	}
	defer runner.Close(ctx)

	f := filter.NewClassFilter()
	for _, p := range exportBusinesses {
		f.AddBusinessPrefix(internalName(p))
	}

	stats, err := export.NewExporter(runner, export.Options{
		BatchSize: nc.BatchSize,
		Clean:     neo4jClean,
		Filter:    f,
		Logger:    GetLogger(),
	}).Export(ctx, r)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	success(out, "Exported %s to %s", r.Path(), nc.URI)
	keyValues(out,
		[2]interface{}{"Nodes", humanize.Comma(int64(stats.Nodes))},
		[2]interface{}{"EXTENDS", humanize.Comma(int64(stats.Extends))},
		[2]interface{}{"IMPLEMENTS", humanize.Comma(int64(stats.Implements))},
		[2]interface{}{"ANNOTATED_WITH", humanize.Comma(int64(stats.Annotations))},
		[2]interface{}{"DEPENDS_ON", humanize.Comma(int64(stats.Dependencies))},
		[2]interface{}{"Statements", stats.Statements},
	)
	return nil
}
