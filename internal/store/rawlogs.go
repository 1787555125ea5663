package store

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"
)

// AppendRawLogs bulk-loads raw log lines for an entity in a single
// immediate transaction. Empty input is a no-op.
func (s *Store) AppendRawLogs(ctx context.Context, entityID string, lines []string) error {
	if entityID == "" {
		return fmt.Errorf("store: append raw logs: entity id is required")
	}
	if len(lines) == 0 {
		return nil
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return fmt.Errorf("store: append raw logs: %w", err)
	}
	defer s.pool.Put(conn)

	endTransaction, err := sqlitex.ImmediateTransaction(conn)
	if err != nil {
		return fmt.Errorf("store: append raw logs: begin transaction: %w", err)
	}
	defer endTransaction(&err)

	loadedAt := time.Now().UTC().UnixNano()
	for _, line := range lines {
		err = sqlitex.Execute(conn,
			"INSERT INTO raw_logs (entity_id, line, loaded_at) VALUES (?, ?, ?)",
			&sqlitex.ExecOptions{Args: []any{entityID, line, loadedAt}})
		if err != nil {
			return fmt.Errorf("store: append raw logs: %w", err)
		}
	}

	s.logger.Info("raw logs loaded",
		zap.String("entity", entityID),
		zap.Int("lines", len(lines)))
	return err
}

// RawLogLines returns all raw log lines for an entity in load order.
func (s *Store) RawLogLines(ctx context.Context, entityID string) ([]string, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: raw log lines: %w", err)
	}
	defer s.pool.Put(conn)

	var lines []string
	err = sqlitex.Execute(conn,
		"SELECT line FROM raw_logs WHERE entity_id = ? ORDER BY loaded_at, rowid",
		&sqlitex.ExecOptions{
			Args: []any{entityID},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				lines = append(lines, stmt.ColumnText(0))
				return nil
			},
		})
	if err != nil {
		return nil, fmt.Errorf("store: raw log lines: %w", err)
	}
	return lines, nil
}
