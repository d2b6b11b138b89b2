package cmd

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/fastmerger/internal/bindeps"
)

var (
	// Dump command flags
	dumpPool    bool
	dumpClasses bool
	dumpLimit   int
)

// dumpCmd represents the dump command
var dumpCmd = &cobra.Command{
	Use:   "dump <index>",
	Short: "Print the header and records of an index",
	Long: `Dump prints the index header and, on request, the string pool and class
info records in row order. Use --limit to cap the number of rows printed per
section.`,
	Args: cobra.ExactArgs(1),
	RunE: runDump,
}

func init() {
	rootCmd.AddCommand(dumpCmd)

	dumpCmd.Flags().BoolVar(&dumpPool, "pool", false, "Print string pool records")
	dumpCmd.Flags().BoolVar(&dumpClasses, "classes", false, "Print class info records")
	dumpCmd.Flags().IntVarP(&dumpLimit, "limit", "n", 0, "Maximum rows per section (0 for all)")
}

func runDump(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	r, err := openIndex(args[0])
	if err != nil {
		return err
	}
	defer r.Close()

	h := r.Header()
	heading(out, "Header")
	keyValues(out,
		[2]interface{}{"Path", r.Path()},
		[2]interface{}{"Version", h.Version},
		[2]interface{}{"String pool", humanize.Comma(int64(h.StringPoolSize))},
		[2]interface{}{"Class info", humanize.Comma(int64(h.ClassInfoSize))},
		[2]interface{}{"Heap", humanize.IBytes(uint64(h.HeapSize))},
		[2]interface{}{"File size", humanize.IBytes(uint64(h.FileSize()))},
		[2]interface{}{"Memory mapped", r.Mapped()},
	)

	if dumpPool {
		if err := dumpStringPool(cmd, r); err != nil {
			return err
		}
	}
	if dumpClasses {
		if err := dumpClassInfo(cmd, r); err != nil {
			return err
		}
	}
	return nil
}

func rowLimit(total int32) int32 {
	if dumpLimit > 0 && int32(dumpLimit) < total {
		return int32(dumpLimit)
	}
	return total
}

func dumpStringPool(cmd *cobra.Command, r *bindeps.Reader) error {
	out := cmd.OutOrStdout()
	heading(out, "String pool")

	tbl := newTable(out)
	tbl.AppendHeader(table.Row{"Row", "Hash", "Parent", "Full name"})
	n := rowLimit(r.StringPoolSize())
	for i := int32(0); i < n; i++ {
		e, err := r.StringPoolEntry(i)
		if err != nil {
			return err
		}
		name, err := e.FullName()
		if err != nil {
			return err
		}
		tbl.AppendRow(table.Row{i, fmt.Sprintf("%016x", uint64(e.Hash())), e.ParentIndex(), name})
	}
	if n < r.StringPoolSize() {
		tbl.AppendFooter(table.Row{"", "", "", fmt.Sprintf("%d of %d rows", n, r.StringPoolSize())})
	}
	tbl.Render()
	return nil
}

func dumpClassInfo(cmd *cobra.Command, r *bindeps.Reader) error {
	out := cmd.OutOrStdout()
	heading(out, "Class info")

	tbl := newTable(out)
	tbl.AppendHeader(table.Row{"Row", "Name", "Super", "Access", "Interfaces", "Annotations", "Deps"})
	n := rowLimit(r.ClassInfoSize())
	for i := int32(0); i < n; i++ {
		ci, err := r.ClassInfoEntry(i)
		if err != nil {
			return err
		}
		tbl.AppendRow(table.Row{
			i,
			poolName(r, ci.NameIndex()),
			poolName(r, ci.SuperIndex()),
			fmt.Sprintf("0x%04x", ci.Access()),
			ci.InterfaceCount(),
			ci.AnnotationCount(),
			ci.DependencyCount(),
		})
	}
	if n < r.ClassInfoSize() {
		tbl.AppendFooter(table.Row{"", fmt.Sprintf("%d of %d rows", n, r.ClassInfoSize())})
	}
	tbl.Render()
	return nil
}
