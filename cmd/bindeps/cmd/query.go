package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"

	"github.com/fastmerger/internal/bindeps"
	"github.com/fastmerger/internal/graph"
	apperrors "github.com/fastmerger/pkg/errors"
	"github.com/fastmerger/pkg/filter"
	"github.com/fastmerger/pkg/telemetry"
)

var (
	// Query command flags
	queryDependents bool
	queryTransitive bool
	queryExcludeJDK bool
)

// queryCmd represents the query command
var queryCmd = &cobra.Command{
	Use:   "query <index> <class>",
	Short: "Look up a class and its dependency edges",
	Long: `Query prints the record of one class. Class names use the internal
slash form, e.g. com/app/Main; dotted names are accepted and converted.

  --dependents              classes whose dependency list names the class
  --dependents --transitive every class that reaches it through dependencies
  --transitive              everything the class reaches through dependencies`,
	Args: cobra.ExactArgs(2),
	RunE: runQuery,
}

func init() {
	rootCmd.AddCommand(queryCmd)

	queryCmd.Flags().BoolVarP(&queryDependents, "dependents", "d", false, "List classes that depend on the class")
	queryCmd.Flags().BoolVarP(&queryTransitive, "transitive", "t", false, "Follow dependency edges transitively")
	queryCmd.Flags().BoolVar(&queryExcludeJDK, "exclude-jdk", false, "Hide JDK classes from the result")
}

// internalName converts a dotted class name to the slash form.
func internalName(name string) string {
	return strings.ReplaceAll(name, ".", "/")
}

func runQuery(cmd *cobra.Command, args []string) (err error) {
	out := cmd.OutOrStdout()
	name := internalName(args[1])

	ctx, span := telemetry.StartSpan(cmd.Context(), "bindeps.query",
		attribute.String("bindeps.path", args[0]),
		attribute.String("bindeps.class", name),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	r, err := openIndex(args[0])
	if err != nil {
		return err
	}
	defer r.Close()

	idx, err := r.NameIndex()
	if err != nil {
		return err
	}

	switch {
	case queryDependents:
		poolIndex, ok := idx.PoolIndex(name)
		if !ok {
			return apperrors.Newf(apperrors.CodeNotFound, "name not in index: %s", name)
		}
		return printDependents(ctx, out, r, name, poolIndex)
	case queryTransitive:
		classIndex, ok := idx.ClassByName(name)
		if !ok {
			return apperrors.Newf(apperrors.CodeNotFound, "class not in index: %s", name)
		}
		deps, err := graph.TransitiveDependencies(ctx, r, classIndex)
		if err != nil {
			return err
		}
		heading(out, fmt.Sprintf("Transitive dependencies of %s", name))
		printNames(out, poolNames(r, deps))
		return nil
	default:
		ci, err := r.FindClass(name)
		if err != nil {
			return err
		}
		return printClass(out, r, ci)
	}
}

func printDependents(ctx context.Context, out io.Writer, r *bindeps.Reader, name string, poolIndex int32) error {
	var (
		rows  []int32
		err   error
		title string
	)
	if queryTransitive {
		rows, err = graph.TransitiveDependents(ctx, r, poolIndex)
		title = fmt.Sprintf("Transitive dependents of %s", name)
	} else {
		rows, err = graph.Dependents(ctx, r, poolIndex, poolConfig())
		title = fmt.Sprintf("Dependents of %s", name)
	}
	if err != nil {
		return err
	}

	names := make([]string, len(rows))
	for i, row := range rows {
		names[i] = className(r, row)
	}
	heading(out, title)
	printNames(out, names)
	return nil
}

func poolNames(r *bindeps.Reader, rows []int32) []string {
	names := make([]string, len(rows))
	for i, row := range rows {
		names[i] = poolName(r, row)
	}
	return names
}

// printNames renders names one per row, dropping JDK classes when
// --exclude-jdk is set.
func printNames(out io.Writer, names []string) {
	tbl := newTable(out)
	tbl.AppendHeader(table.Row{"#", "Class", "Category"})
	shown := 0
	for _, n := range names {
		if queryExcludeJDK && filter.IsJDK(n) {
			continue
		}
		shown++
		tbl.AppendRow(table.Row{shown, n, filter.Classify(n).String()})
	}
	tbl.AppendFooter(table.Row{"", fmt.Sprintf("Total: %d", shown), ""})
	tbl.Render()
}

func printClass(out io.Writer, r *bindeps.Reader, ci *bindeps.ClassInfoEntry) error {
	ifaces, err := ci.InterfaceIndices()
	if err != nil {
		return err
	}
	annos, err := ci.AnnotationIndices()
	if err != nil {
		return err
	}
	deps, err := ci.DependencyIndices()
	if err != nil {
		return err
	}

	name := poolName(r, ci.NameIndex())
	heading(out, name)
	keyValues(out,
		[2]interface{}{"Row", ci.Index()},
		[2]interface{}{"Access", fmt.Sprintf("0x%04x", ci.Access())},
		[2]interface{}{"Category", filter.Classify(name).String()},
		[2]interface{}{"Super", poolName(r, ci.SuperIndex())},
		[2]interface{}{"Interfaces", joinNames(r, ifaces)},
		[2]interface{}{"Annotations", joinNames(r, annos)},
	)
	heading(out, "Dependencies")
	printNames(out, poolNames(r, deps))
	return nil
}
