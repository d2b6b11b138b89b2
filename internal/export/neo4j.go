// Package export loads an index into a Neo4j graph.
package export

import (
	"context"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/fastmerger/pkg/config"
	apperrors "github.com/fastmerger/pkg/errors"
)

// Runner executes one Cypher statement.
type Runner interface {
	Run(ctx context.Context, cypher string, params map[string]any) error
}

// Neo4jRunner runs statements through the official driver.
type Neo4jRunner struct {
	driver   neo4j.DriverWithContext
	database string
}

// NewNeo4jRunner connects to cfg.URI and verifies connectivity.
func NewNeo4jRunner(ctx context.Context, cfg *config.Neo4jConfig) (*Neo4jRunner, error) {
	if cfg == nil || cfg.URI == "" {
		return nil, apperrors.New(apperrors.CodeConfigError, "neo4j uri is required")
	}
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.User, cfg.Password, ""))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConfigError, "create neo4j driver", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, apperrors.Wrap(apperrors.CodeDatabaseError, "connect to neo4j", err)
	}
	return &Neo4jRunner{driver: driver, database: cfg.Database}, nil
}

// Run executes cypher and discards the result records.
func (r *Neo4jRunner) Run(ctx context.Context, cypher string, params map[string]any) error {
	var opts []neo4j.ExecuteQueryConfigurationOption
	if r.database != "" {
		opts = append(opts, neo4j.ExecuteQueryWithDatabase(r.database))
	}
	_, err := neo4j.ExecuteQuery(ctx, r.driver, cypher, params, neo4j.EagerResultTransformer, opts...)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeDatabaseError, "run cypher", err)
	}
	return nil
}

// Close releases the driver.
func (r *Neo4jRunner) Close(ctx context.Context) error {
	return r.driver.Close(ctx)
}
