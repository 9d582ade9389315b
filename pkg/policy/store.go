package policy

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store persists approval state outside the in-memory call stack so a
// suspended interaction can be inspected and resolved by an external
// approver.
type Store interface {
	SavePending(ctx context.Context, approval PendingApproval) error
	MarkResolved(ctx context.Context, token string, decision string) error
	LoadPending(ctx context.Context) ([]PendingApproval, error)
	Close() error
}

// SQLiteStore is the default durable approval store
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and migrates) the approval database at path
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open approval store: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS approvals (
		token       TEXT PRIMARY KEY,
		request     TEXT NOT NULL,
		category    TEXT NOT NULL,
		created_at  TIMESTAMP NOT NULL,
		decision    TEXT,
		resolved_at TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_approvals_unresolved ON approvals (decision) WHERE decision IS NULL;
	`
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate approval store: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// SavePending inserts a pending approval
func (s *SQLiteStore) SavePending(ctx context.Context, approval PendingApproval) error {
	reqJSON, err := json.Marshal(approval.Request)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO approvals (token, request, category, created_at) VALUES (?, ?, ?, ?)`,
		approval.Token, string(reqJSON), approval.Category, approval.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save pending approval: %w", err)
	}
	return nil
}

// MarkResolved records a decision for a token; only the first resolution wins
func (s *SQLiteStore) MarkResolved(ctx context.Context, token string, decision string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE approvals SET decision = ?, resolved_at = ? WHERE token = ? AND decision IS NULL`,
		decision, time.Now().UTC(), token,
	)
	if err != nil {
		return fmt.Errorf("failed to mark approval resolved: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("approval %s not found or already resolved", token)
	}
	return nil
}

// LoadPending returns approvals that have no decision yet
func (s *SQLiteStore) LoadPending(ctx context.Context) ([]PendingApproval, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT token, request, category, created_at FROM approvals WHERE decision IS NULL ORDER BY created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load pending approvals: %w", err)
	}
	defer rows.Close()

	var out []PendingApproval
	for rows.Next() {
		var approval PendingApproval
		var reqJSON string
		if err := rows.Scan(&approval.Token, &reqJSON, &approval.Category, &approval.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(reqJSON), &approval.Request); err != nil {
			return nil, fmt.Errorf("corrupt request payload for token %s: %w", approval.Token, err)
		}
		out = append(out, approval)
	}
	return out, rows.Err()
}

// Close releases the database handle
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
