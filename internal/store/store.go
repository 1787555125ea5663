// Package store persists decision records and raw behavioral logs in
// SQLite.
//
// The store is the single owner of DecisionRecord mutation: status
// changes happen only through Transition, a conditional compare-and-set
// on one row. Records are never deleted by normal operation so the
// table doubles as an audit trail.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/signalworks/outreachd/internal/classify"
	"github.com/signalworks/outreachd/internal/decision"
)

// Status is the lifecycle state of a decision record. No other value
// is valid in storage.
type Status string

const (
	StatusPending      Status = "PENDING"
	StatusDraftCreated Status = "DRAFT_CREATED"
	StatusFailed       Status = "FAILED"
)

// Valid reports whether s is one of the three lifecycle states.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusDraftCreated, StatusFailed:
		return true
	}
	return false
}

// Record is a persisted decision awaiting, having completed, or having
// failed external draft creation.
type Record struct {
	ID        string            `json:"id"`
	EntityID  string            `json:"entity_id"`
	LeadEmail string            `json:"lead_email"`
	Decision  decision.Decision `json:"decision"`
	Status    Status            `json:"status"`
	CreatedAt time.Time         `json:"created_at"`
}

var (
	// ErrDuplicateID indicates an id collision on create. The caller
	// must regenerate the id and retry.
	ErrDuplicateID = errors.New("store: duplicate record id")

	// ErrNotFound indicates no record exists for the given id.
	ErrNotFound = errors.New("store: record not found")
)

// Config holds the parameters for opening a store.
type Config struct {
	// Path is the filesystem path to the SQLite database file. The
	// parent directory must exist; the file is created if missing.
	Path string

	// PoolSize is the number of connections in the pool. Defaults to 4.
	PoolSize int

	// Logger receives operational messages. Nil means no-op.
	Logger *zap.Logger
}

// Store manages SQLite storage for decision records and raw logs. Safe
// for concurrent use; individual transitions are serialized by SQLite
// at row granularity.
type Store struct {
	pool   *sqlitex.Pool
	logger *zap.Logger

	// newID generates record ids. Overridable in tests to force
	// collisions.
	newID func() string
}

const schema = `
CREATE TABLE IF NOT EXISTS email_drafts (
	id               TEXT PRIMARY KEY,
	entity_id        TEXT NOT NULL,
	lead_email       TEXT NOT NULL,
	category         TEXT NOT NULL,
	propensity_score REAL NOT NULL,
	email_subject    TEXT NOT NULL,
	email_body       TEXT NOT NULL,
	reasoning        TEXT NOT NULL,
	status           TEXT NOT NULL CHECK (status IN ('PENDING', 'DRAFT_CREATED', 'FAILED')),
	created_at       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_email_drafts_status ON email_drafts(status, created_at);

CREATE TABLE IF NOT EXISTS raw_logs (
	entity_id TEXT NOT NULL,
	line      TEXT NOT NULL,
	loaded_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_raw_logs_entity ON raw_logs(entity_id, loaded_at);
`

// Open creates the connection pool, applies pragmas to each connection,
// and ensures the schema exists. The caller must Close the store.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("store: Path is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 4
	}

	pool, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize:    poolSize,
		PrepareConn: prepareConn,
	})
	if err != nil {
		return nil, fmt.Errorf("store: opening %s: %w", cfg.Path, err)
	}

	s := &Store{
		pool:   pool,
		logger: logger,
		newID:  func() string { return uuid.New().String() },
	}

	if err := s.ensureSchema(); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("store opened",
		zap.String("path", cfg.Path),
		zap.Int("pool_size", poolSize))
	return s, nil
}

// prepareConn applies standard pragmas once per pooled connection.
// WAL gives concurrent readers with a single writer; the busy timeout
// covers short write contention between dispatcher runs.
func prepareConn(conn *sqlite.Conn) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("store: %s: %w", pragma, err)
		}
	}
	return nil
}

func (s *Store) ensureSchema() error {
	conn, err := s.pool.Take(context.Background())
	if err != nil {
		return fmt.Errorf("store: ensure schema: %w", err)
	}
	defer s.pool.Put(conn)

	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return fmt.Errorf("store: creating schema: %w", err)
	}
	return nil
}

// Close closes the underlying connection pool. Blocks until all
// borrowed connections are returned.
func (s *Store) Close() error {
	if err := s.pool.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}

// Create persists a validated decision as a new PENDING record with a
// fresh unique id. Returns ErrDuplicateID if the generated id collides.
func (s *Store) Create(ctx context.Context, d decision.Decision, entityID, leadEmail string) (Record, error) {
	if err := d.Validate(); err != nil {
		return Record{}, fmt.Errorf("store: create: %w", err)
	}
	if entityID == "" {
		return Record{}, fmt.Errorf("store: create: entity id is required")
	}
	if leadEmail == "" {
		return Record{}, fmt.Errorf("store: create: lead email is required")
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("store: create: %w", err)
	}
	defer s.pool.Put(conn)

	record := Record{
		ID:        s.newID(),
		EntityID:  entityID,
		LeadEmail: leadEmail,
		Decision:  d,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}

	err = sqlitex.Execute(conn, `INSERT INTO email_drafts
		(id, entity_id, lead_email, category, propensity_score,
		 email_subject, email_body, reasoning, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, &sqlitex.ExecOptions{
		Args: []any{
			record.ID,
			record.EntityID,
			record.LeadEmail,
			string(record.Decision.Category),
			record.Decision.PropensityScore,
			record.Decision.EmailSubject,
			record.Decision.EmailBody,
			record.Decision.Reasoning,
			string(record.Status),
			record.CreatedAt.UnixNano(),
		},
	})
	if err != nil {
		if sqlite.ErrCode(err) == sqlite.ResultConstraintPrimaryKey {
			return Record{}, ErrDuplicateID
		}
		return Record{}, fmt.Errorf("store: create: %w", err)
	}

	s.logger.Info("decision record created",
		zap.String("id", record.ID),
		zap.String("entity", record.EntityID),
		zap.String("category", string(record.Decision.Category)))
	return record, nil
}

const recordColumns = `id, entity_id, lead_email, category, propensity_score,
	email_subject, email_body, reasoning, status, created_at`

// ListPending returns a snapshot of all PENDING records in creation
// order. Rows are not locked; the dispatcher resolves races through
// conditional transitions.
func (s *Store) ListPending(ctx context.Context) ([]Record, error) {
	return s.List(ctx, StatusPending)
}

// List returns records with the given status in creation order. An
// empty status returns every record.
func (s *Store) List(ctx context.Context, status Status) ([]Record, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("store: list: invalid status %q", status)
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	defer s.pool.Put(conn)

	query := "SELECT " + recordColumns + " FROM email_drafts"
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY created_at, id"

	var records []Record
	err = sqlitex.Execute(conn, query, &sqlitex.ExecOptions{
		Args: args,
		ResultFunc: func(stmt *sqlite.Stmt) error {
			records = append(records, scanRecord(stmt))
			return nil
		},
	})
	if err != nil {
		return nil, fmt.Errorf("store: list: %w", err)
	}
	return records, nil
}

// Get returns the record with the given id, or ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (Record, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return Record{}, fmt.Errorf("store: get: %w", err)
	}
	defer s.pool.Put(conn)

	var record Record
	found := false
	err = sqlitex.Execute(conn,
		"SELECT "+recordColumns+" FROM email_drafts WHERE id = ?",
		&sqlitex.ExecOptions{
			Args: []any{id},
			ResultFunc: func(stmt *sqlite.Stmt) error {
				record = scanRecord(stmt)
				found = true
				return nil
			},
		})
	if err != nil {
		return Record{}, fmt.Errorf("store: get: %w", err)
	}
	if !found {
		return Record{}, ErrNotFound
	}
	return record, nil
}

// Transition conditionally moves a record from one status to another.
// The update applies only when the current status equals from; it
// returns (false, nil) when the record already moved, so concurrent or
// duplicate dispatch attempts observe a NoOp instead of an error.
func (s *Store) Transition(ctx context.Context, id string, from, to Status) (bool, error) {
	if !from.Valid() || !to.Valid() {
		return false, fmt.Errorf("store: transition: invalid status %q -> %q", from, to)
	}

	conn, err := s.pool.Take(ctx)
	if err != nil {
		return false, fmt.Errorf("store: transition: %w", err)
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn,
		"UPDATE email_drafts SET status = ? WHERE id = ? AND status = ?",
		&sqlitex.ExecOptions{
			Args: []any{string(to), id, string(from)},
		})
	if err != nil {
		return false, fmt.Errorf("store: transition %s: %w", id, err)
	}

	applied := conn.Changes() > 0
	if applied {
		s.logger.Info("record transitioned",
			zap.String("id", id),
			zap.String("from", string(from)),
			zap.String("to", string(to)))
	}
	return applied, nil
}

func scanRecord(stmt *sqlite.Stmt) Record {
	return Record{
		ID:        stmt.ColumnText(0),
		EntityID:  stmt.ColumnText(1),
		LeadEmail: stmt.ColumnText(2),
		Decision: decision.Decision{
			Category:        classify.Category(stmt.ColumnText(3)),
			PropensityScore: stmt.ColumnFloat(4),
			EmailSubject:    stmt.ColumnText(5),
			EmailBody:       stmt.ColumnText(6),
			Reasoning:       stmt.ColumnText(7),
		},
		Status:    Status(stmt.ColumnText(8)),
		CreatedAt: time.Unix(0, stmt.ColumnInt64(9)).UTC(),
	}
}
