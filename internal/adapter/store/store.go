package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// DBTX is the subset of *sql.DB / *sql.Tx the repositories use, so the
// same repository code runs standalone or inside a cascade transaction.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Repos bundles every entity repository bound to one DBTX.
type Repos struct {
	Projects           *ProjectRepo
	Graphs             *GraphRepo
	SubAgents          *SubAgentRepo
	ExternalAgents     *ExternalAgentRepo
	Relations          *RelationRepo
	Tools              *ToolRepo
	Functions          *FunctionRepo
	AgentTools         *AgentToolRepo
	DataComponents     *DataComponentRepo
	ArtifactComponents *ArtifactComponentRepo
	ContextConfigs     *ContextConfigRepo
	ContextCache       *ContextCacheRepo
	Credentials        *CredentialRepo
	Tasks              *TaskRepo
	Messages           *MessageRepo
	Artifacts          *ArtifactRepo
}

func newRepos(q DBTX, logger *slog.Logger) Repos {
	return Repos{
		Projects:           &ProjectRepo{q: q},
		Graphs:             &GraphRepo{q: q},
		SubAgents:          &SubAgentRepo{q: q},
		ExternalAgents:     &ExternalAgentRepo{q: q},
		Relations:          &RelationRepo{q: q},
		Tools:              &ToolRepo{q: q},
		Functions:          &FunctionRepo{q: q},
		AgentTools:         &AgentToolRepo{q: q},
		DataComponents:     &DataComponentRepo{q: q},
		ArtifactComponents: &ArtifactComponentRepo{q: q},
		ContextConfigs:     &ContextConfigRepo{q: q},
		ContextCache:       &ContextCacheRepo{q: q},
		Credentials:        &CredentialRepo{q: q},
		Tasks:              &TaskRepo{q: q},
		Messages:           &MessageRepo{q: q},
		Artifacts:          &ArtifactRepo{q: q, logger: logger},
	}
}

// Store owns the SQLite connection and the default repository set.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
	Repos
}

// New opens (or creates) the SQLite database at dbPath and runs the
// schema migration.
func New(dbPath string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// WAL mode for better concurrent reads.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate db: %w", err)
	}

	s := &Store{db: db, logger: logger}
	s.Repos = newRepos(db, logger)
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// WithTx runs fn with a repository set bound to a single transaction.
// Any error (or panic) rolls the transaction back.
func (s *Store) WithTx(ctx context.Context, fn func(Repos) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(newRepos(tx, s.logger)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	return tx.Commit()
}

// --- column helpers ---

// marshalCol serializes v as a JSON TEXT column. Nil pointers and nil maps
// store as NULL so inheritance can distinguish "unset" from "empty".
func marshalCol(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("marshal column: %w", err)
	}
	if string(data) == "null" {
		return sql.NullString{}, nil
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// unmarshalCol deserializes a JSON TEXT column into dst, leaving dst
// untouched for NULL columns.
func unmarshalCol(col sql.NullString, dst any) error {
	if !col.Valid || col.String == "" {
		return nil
	}
	if err := json.Unmarshal([]byte(col.String), dst); err != nil {
		return fmt.Errorf("unmarshal column: %w", err)
	}
	return nil
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func parseTimePtr(col sql.NullString) *time.Time {
	if !col.Valid || col.String == "" {
		return nil
	}
	t := parseTime(col.String)
	return &t
}

// rawCol stores a json.RawMessage as TEXT, NULL when empty.
func rawCol(raw json.RawMessage) sql.NullString {
	if len(raw) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}

// isUniqueViolation matches SQLite unique-constraint failures without
// depending on driver-specific error types.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// isBusy matches SQLITE_BUSY / locked-database errors that are worth retrying.
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

func nullStr(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func strOrEmpty(col sql.NullString) string {
	if !col.Valid {
		return ""
	}
	return col.String
}
