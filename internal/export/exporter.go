package export

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/fastmerger/internal/bindeps"
	"github.com/fastmerger/pkg/filter"
	"github.com/fastmerger/pkg/telemetry"
	"github.com/fastmerger/pkg/utils"
)

// DefaultBatchSize is the number of rows sent per UNWIND statement.
const DefaultBatchSize = 1000

// Relationship types written between JavaClass nodes.
const (
	RelExtends     = "EXTENDS"
	RelImplements  = "IMPLEMENTS"
	RelAnnotated   = "ANNOTATED_WITH"
	RelDependsOn   = "DEPENDS_ON"
	nodeLabel      = "JavaClass"
	cleanStatement = "MATCH (n:JavaClass) DETACH DELETE n"
)

var indexStatements = []string{
	"CREATE INDEX java_class_name IF NOT EXISTS FOR (n:JavaClass) ON (n.name)",
	"CREATE INDEX java_class_package IF NOT EXISTS FOR (n:JavaClass) ON (n.package)",
}

const nodeStatement = `UNWIND $batch AS row
MERGE (n:JavaClass {name: row.name})
SET n.simple_name = row.simple, n.package = row.pkg, n.category = row.category,
    n.access = row.access, n.indexed = true`

// edgeStatement returns the UNWIND statement for one relationship type.
// Targets missing from the index become nodes with indexed = false.
func edgeStatement(rel string) string {
	return `UNWIND $batch AS row
MERGE (s:JavaClass {name: row.source})
MERGE (t:JavaClass {name: row.target})
ON CREATE SET t.category = row.category, t.indexed = false
MERGE (s)-[:` + rel + `]->(t)`
}

// Options configures an Exporter.
type Options struct {
	BatchSize int
	// Clean deletes every JavaClass node before loading.
	Clean  bool
	Filter *filter.ClassFilter
	Logger utils.Logger
}

// Stats counts what an export wrote.
type Stats struct {
	Nodes        int
	Extends      int
	Implements   int
	Annotations  int
	Dependencies int
	Statements   int
}

// Exporter writes an index as JavaClass nodes and typed relationships.
type Exporter struct {
	runner Runner
	opts   Options
}

// NewExporter creates an exporter that runs its statements on runner.
func NewExporter(runner Runner, opts Options) *Exporter {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Filter == nil {
		opts.Filter = filter.NewClassFilter()
	}
	if opts.Logger == nil {
		opts.Logger = &utils.NullLogger{}
	}
	return &Exporter{runner: runner, opts: opts}
}

// batch accumulates rows for one statement and flushes them when full.
type batch struct {
	statement string
	rows      []map[string]any
	written   *int
}

// export is the state of one Export call.
type export struct {
	e     *Exporter
	r     *bindeps.Reader
	names map[int32]string
	stats Stats

	nodes, extends, implements, annotations, deps *batch
}

// Export loads every class in r into the graph.
func (e *Exporter) Export(ctx context.Context, r *bindeps.Reader) (stats *Stats, err error) {
	ctx, span := telemetry.StartSpan(ctx, "bindeps.export.neo4j",
		attribute.String("bindeps.path", r.Path()),
		attribute.Int("bindeps.classes", int(r.ClassInfoSize())),
	)
	defer func() { telemetry.EndSpan(span, err) }()

	x := &export{e: e, r: r, names: make(map[int32]string)}
	x.nodes = x.newBatch(nodeStatement, &x.stats.Nodes)
	x.extends = x.newBatch(edgeStatement(RelExtends), &x.stats.Extends)
	x.implements = x.newBatch(edgeStatement(RelImplements), &x.stats.Implements)
	x.annotations = x.newBatch(edgeStatement(RelAnnotated), &x.stats.Annotations)
	x.deps = x.newBatch(edgeStatement(RelDependsOn), &x.stats.Dependencies)

	for _, stmt := range indexStatements {
		if err := x.run(ctx, stmt, nil); err != nil {
			return nil, err
		}
	}
	if e.opts.Clean {
		e.opts.Logger.Info("cleaning existing %s nodes", nodeLabel)
		if err := x.run(ctx, cleanStatement, nil); err != nil {
			return nil, err
		}
	}

	for i := int32(0); i < r.ClassInfoSize(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := x.addClass(ctx, i); err != nil {
			return nil, err
		}
	}

	for _, b := range []*batch{x.nodes, x.extends, x.implements, x.annotations, x.deps} {
		if err := x.flush(ctx, b); err != nil {
			return nil, err
		}
	}

	span.SetAttributes(attribute.Int("bindeps.export.statements", x.stats.Statements))
	e.opts.Logger.WithFields(map[string]interface{}{
		"nodes":        x.stats.Nodes,
		"dependencies": x.stats.Dependencies,
		"statements":   x.stats.Statements,
	}).Info("exported %s to neo4j", r.Path())
	return &x.stats, nil
}

func (x *export) newBatch(statement string, written *int) *batch {
	return &batch{
		statement: statement,
		rows:      make([]map[string]any, 0, x.e.opts.BatchSize),
		written:   written,
	}
}

func (x *export) run(ctx context.Context, cypher string, params map[string]any) error {
	x.stats.Statements++
	return x.e.runner.Run(ctx, cypher, params)
}

// add appends row to b. Pending nodes are flushed ahead of a full edge
// batch so that indexed classes exist before they gain relationships.
func (x *export) add(ctx context.Context, b *batch, row map[string]any) error {
	b.rows = append(b.rows, row)
	if len(b.rows) < x.e.opts.BatchSize {
		return nil
	}
	if b != x.nodes {
		if err := x.flush(ctx, x.nodes); err != nil {
			return err
		}
	}
	return x.flush(ctx, b)
}

func (x *export) flush(ctx context.Context, b *batch) error {
	if len(b.rows) == 0 {
		return nil
	}
	if err := x.run(ctx, b.statement, map[string]any{"batch": b.rows}); err != nil {
		return err
	}
	*b.written += len(b.rows)
	b.rows = make([]map[string]any, 0, x.e.opts.BatchSize)
	return nil
}

// name returns the full name of a string pool row, caching the result.
func (x *export) name(poolIndex int32) (string, error) {
	if n, ok := x.names[poolIndex]; ok {
		return n, nil
	}
	entry, err := x.r.StringPoolEntry(poolIndex)
	if err != nil {
		return "", err
	}
	n, err := entry.FullName()
	if err != nil {
		return "", err
	}
	x.names[poolIndex] = n
	return n, nil
}

func (x *export) addClass(ctx context.Context, classIndex int32) error {
	ci, err := x.r.ClassInfoEntry(classIndex)
	if err != nil {
		return err
	}
	source, err := x.name(ci.NameIndex())
	if err != nil {
		return err
	}

	pkg, simple := "", source
	if i := strings.LastIndexByte(source, '/'); i >= 0 {
		pkg, simple = source[:i], source[i+1:]
	}
	err = x.add(ctx, x.nodes, map[string]any{
		"name":     source,
		"simple":   simple,
		"pkg":      pkg,
		"category": x.e.opts.Filter.Classify(source).String(),
		"access":   int64(ci.Access()),
	})
	if err != nil {
		return err
	}

	if ci.SuperIndex() != bindeps.NoIndex {
		if err := x.addEdges(ctx, x.extends, source, []int32{ci.SuperIndex()}); err != nil {
			return err
		}
	}
	edges := []struct {
		b       *batch
		indices func() ([]int32, error)
	}{
		{x.implements, ci.InterfaceIndices},
		{x.annotations, ci.AnnotationIndices},
		{x.deps, ci.DependencyIndices},
	}
	for _, edge := range edges {
		targets, err := edge.indices()
		if err != nil {
			return err
		}
		if err := x.addEdges(ctx, edge.b, source, targets); err != nil {
			return err
		}
	}
	return nil
}

func (x *export) addEdges(ctx context.Context, b *batch, source string, targets []int32) error {
	for _, t := range targets {
		target, err := x.name(t)
		if err != nil {
			return err
		}
		err = x.add(ctx, b, map[string]any{
			"source":   source,
			"target":   target,
			"category": x.e.opts.Filter.Classify(target).String(),
		})
		if err != nil {
			return err
		}
	}
	return nil
}
