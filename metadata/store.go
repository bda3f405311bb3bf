// Package metadata is the Metadata Store Gateway: typed pgx access to
// projects, runs, parameters, and tags. Apart from the idempotency ledger
// (package ledger), which shares its pool, it is the only package that
// issues SQL against the relational store.
package metadata

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/runledger/runledger/db"
)

// Store wraps the metadata store connection pool.
type Store struct {
	pg  *db.PostgresDB
	log *logrus.Entry
}

// New connects to the metadata store and ensures its schema exists.
func New(ctx context.Context, connString string, log *logrus.Entry) (*Store, error) {
	pg, err := db.NewPostgresDB(connString)
	if err != nil {
		return nil, fmt.Errorf("metadata: connect: %w", err)
	}
	s := &Store{pg: pg, log: log.WithField("component", "metadata")}
	if err := s.migrate(ctx); err != nil {
		pg.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if err := s.pg.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("metadata: migrate: %w", err)
		}
	}
	return nil
}

// Pool exposes the underlying pgx pool for components (the idempotency
// ledger) that share the metadata store's connection.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pg.Pool()
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pg.Close()
}
