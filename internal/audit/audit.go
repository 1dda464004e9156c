// Package audit is the operational history trail: every pipeline
// invocation's shape (session id, truncated query hash, outcome, latency)
// is appended to a local SQLite file. Never consulted by any gate or
// policy decision — purely a breadcrumb trail for an operator who needs
// to answer "my search never came back."
package audit

import (
	"crypto/sha256"
	"database/sql"
	_ "embed"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Outcome labels one row. Kept as a small closed set rather than a free
// string so a later reader grepping the table knows every value it can
// contain.
type Outcome string

const (
	OutcomeSuccess       Outcome = "success"
	OutcomeError         Outcome = "error"
	OutcomeBusy          Outcome = "busy"
	OutcomeCooldown      Outcome = "cooldown"
	OutcomeGroundingNone Outcome = "grounding_no_record"
)

// Log is the append-only audit sink.
type Log struct {
	db *sql.DB
}

// Open creates path's parent directory if needed, opens the database in
// WAL mode with a busy timeout, and applies the schema.
func Open(path string) (*Log, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("audit: create dir: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("audit: open db: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: apply schema: %w", err)
	}

	return &Log{db: db}, nil
}

// Record appends one invocation row. Errors are returned, not swallowed,
// because the pipeline logs-and-ignores audit failures itself (this is a
// breadcrumb trail, not a gate — it must never block or fail a request).
func (l *Log) Record(sessionID, query string, outcome Outcome, duration time.Duration) error {
	_, err := l.db.Exec(
		`INSERT INTO invocations (ts, session_id, query_hash, outcome, duration_ms) VALUES (?, ?, ?, ?, ?)`,
		time.Now().UnixMilli(), sessionID, hashQuery(query), string(outcome), duration.Milliseconds(),
	)
	return err
}

// Row is one audit entry as read back by Recent.
type Row struct {
	Timestamp  int64
	SessionID  string
	QueryHash  string
	Outcome    Outcome
	DurationMS int64
}

// Recent returns the most recent n rows, newest first. Used only by
// operator tooling, never by any gate/policy decision.
func (l *Log) Recent(n int) ([]Row, error) {
	rows, err := l.db.Query(`SELECT ts, session_id, query_hash, outcome, duration_ms FROM invocations ORDER BY ts DESC, id DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		var r Row
		var outcome string
		if err := rows.Scan(&r.Timestamp, &r.SessionID, &r.QueryHash, &outcome, &r.DurationMS); err != nil {
			return nil, err
		}
		r.Outcome = Outcome(outcome)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close releases the underlying sql.DB.
func (l *Log) Close() error {
	return l.db.Close()
}

func hashQuery(query string) string {
	sum := sha256.Sum256([]byte(query))
	return hex.EncodeToString(sum[:])[:16]
}
