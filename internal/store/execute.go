package store

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/roach88/qdsl/internal/queryir"
	"github.com/roach88/qdsl/internal/querysql"
	"github.com/roach88/qdsl/internal/schema"
)

// Execute runs a bulk update or delete and returns the number of
// affected rows.
func (s *Store) Execute(ctx context.Context, m *queryir.MutationDescriptor) (int64, error) {
	stmt, err := s.compile("mutation:"+m.Fingerprint(), func() (querysql.Statement, error) {
		return s.compiler.Mutation(m)
	})
	if err != nil {
		return 0, fmt.Errorf("compile mutation: %w", err)
	}

	start := time.Now()
	res, err := s.db.ExecContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return 0, fmt.Errorf("execute %s %s: %w", m.Kind(), queryID(m.Fingerprint()), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}

	s.log.WithFields(logrus.Fields{
		"query_id": queryID(m.Fingerprint()),
		"kind":     m.Kind(),
		"affected": n,
		"elapsed":  time.Since(start),
	}).Debug("mutation executed")
	return n, nil
}

// CreateSchema creates a table for every entity of reg that does not
// exist yet.
func (s *Store) CreateSchema(ctx context.Context, reg *schema.Registry) error {
	for _, e := range reg.Entities() {
		if _, err := s.db.ExecContext(ctx, s.compiler.CreateTable(reg, e)); err != nil {
			return fmt.Errorf("create table %s: %w", e.Table, err)
		}
	}
	s.log.WithField("entities", len(reg.Entities())).Info("schema created")
	return nil
}

// DropSchema drops the table of every entity of reg.
func (s *Store) DropSchema(ctx context.Context, reg *schema.Registry) error {
	for _, e := range reg.Entities() {
		if _, err := s.db.ExecContext(ctx, s.compiler.DropTable(e)); err != nil {
			return fmt.Errorf("drop table %s: %w", e.Table, err)
		}
	}
	return nil
}

// Insert adds one row to the table of e. values maps field names to
// values; relation fields take the target's primary key.
func (s *Store) Insert(ctx context.Context, e *schema.Entity, values map[string]any) error {
	stmt, err := s.compiler.Insert(e, values)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, stmt.SQL, stmt.Args...); err != nil {
		return fmt.Errorf("insert %s: %w", e.Name, err)
	}
	return nil
}

// Seed inserts rows into the table of the named entity, in order.
func (s *Store) Seed(ctx context.Context, reg *schema.Registry, entity string, rows []map[string]any) error {
	e, ok := reg.Entity(entity)
	if !ok {
		return fmt.Errorf("seed: unknown entity %q", entity)
	}
	for i, row := range rows {
		if err := s.Insert(ctx, e, row); err != nil {
			return fmt.Errorf("seed row %d: %w", i, err)
		}
	}
	s.log.WithFields(logrus.Fields{"entity": entity, "rows": len(rows)}).Debug("seeded")
	return nil
}
