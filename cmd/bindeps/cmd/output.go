package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/fastmerger/internal/bindeps"
)

// newTable returns a table that renders to out.
func newTable(out io.Writer) table.Writer {
	tbl := table.NewWriter()
	tbl.SetOutputMirror(out)
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Format.Footer = text.FormatDefault
	return tbl
}

func heading(out io.Writer, title string) {
	color.New(color.Bold, color.FgCyan).Fprintln(out, title)
}

func success(out io.Writer, format string, args ...interface{}) {
	color.New(color.FgGreen).Fprintf(out, format+"\n", args...)
}

func warning(out io.Writer, format string, args ...interface{}) {
	color.New(color.FgYellow).Fprintf(out, format+"\n", args...)
}

// keyValues renders label/value pairs as a two-column table.
func keyValues(out io.Writer, pairs ...[2]interface{}) {
	tbl := newTable(out)
	for _, p := range pairs {
		tbl.AppendRow(table.Row{p[0], p[1]})
	}
	tbl.Render()
}

// poolName returns the full name of a string pool row, or a placeholder when
// the row cannot be resolved.
func poolName(r *bindeps.Reader, poolIndex int32) string {
	if poolIndex == bindeps.NoIndex {
		return "-"
	}
	e, err := r.StringPoolEntry(poolIndex)
	if err != nil {
		return fmt.Sprintf("<%d: %v>", poolIndex, err)
	}
	name, err := e.FullName()
	if err != nil {
		return fmt.Sprintf("<%d: %v>", poolIndex, err)
	}
	return name
}

// className returns the full name of the class at classIndex.
func className(r *bindeps.Reader, classIndex int32) string {
	ci, err := r.ClassInfoEntry(classIndex)
	if err != nil {
		return fmt.Sprintf("<class %d: %v>", classIndex, err)
	}
	return poolName(r, ci.NameIndex())
}

func joinNames(r *bindeps.Reader, indices []int32) string {
	if len(indices) == 0 {
		return "-"
	}
	names := make([]string, len(indices))
	for i, idx := range indices {
		names[i] = poolName(r, idx)
	}
	return strings.Join(names, "\n")
}
