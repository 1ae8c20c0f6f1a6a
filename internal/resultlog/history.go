package resultlog

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed history_schema.sql
var historySchemaSQL string

// historySchemaVersion is bumped when history_schema.sql changes.
const historySchemaVersion = 1

// ErrSchemaMismatch indicates the history database was created by a different version.
var ErrSchemaMismatch = errors.New("history schema version mismatch")

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// History stores every logged cycle in SQLite.
type History struct {
	db   *sql.DB
	path string
}

// Record is a stored history row.
type Record struct {
	ID int64 `json:"id"`
	Entry
	LeftBackup  string `json:"left_backup,omitempty"`
	RightBackup string `json:"right_backup,omitempty"`
}

// Query filters Recent.
type Query struct {
	Limit      int
	Board      string
	FailedOnly bool
	Since      time.Time
}

// Stats summarizes pass/fail counts.
type Stats struct {
	Total  int `json:"total"`
	Passed int `json:"passed"`
	Failed int `json:"failed"`
}

// PassRate returns the fraction of passing cycles, or 0 with no cycles.
func (s Stats) PassRate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Passed) / float64(s.Total)
}

// OpenHistory initializes or connects to the history database at path.
func OpenHistory(path string) (*History, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	h := &History{db: db, path: path}
	if err := h.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return h, nil
}

// Path returns the database file path.
func (h *History) Path() string {
	return h.path
}

// Close closes the underlying database connection.
func (h *History) Close() error {
	if h == nil || h.db == nil {
		return nil
	}
	return h.db.Close()
}

func (h *History) initSchema(ctx context.Context) error {
	var tableExists int
	if err := h.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists); err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		return h.createSchema(ctx)
	}

	var version int
	if err := h.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != historySchemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (move %s aside to start fresh)",
			ErrSchemaMismatch, version, historySchemaVersion, h.path)
	}
	return nil
}

func (h *History) createSchema(ctx context.Context) error {
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, historySchemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", historySchemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// Insert stores one cycle.
func (h *History) Insert(ctx context.Context, e Entry, leftBackup, rightBackup string) (int64, error) {
	var id int64
	err := retryOnBusy(ctx, func() error {
		res, err := h.db.ExecContext(ctx,
			`INSERT INTO cycles (cycle_id, ts_ms, operator, board, left_sn, right_sn, result, message, left_backup, right_backup)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			e.CycleID, e.Timestamp.UnixMilli(), e.Operator, e.Board, e.LeftSN, e.RightSN, e.Result, e.Message, leftBackup, rightBackup,
		)
		if err != nil {
			return err
		}
		id, err = res.LastInsertId()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("insert cycle: %w", err)
	}
	return id, nil
}

// Recent returns the newest cycles first.
func (h *History) Recent(ctx context.Context, q Query) ([]Record, error) {
	var (
		where []string
		args  []any
	)
	if q.Board != "" {
		where = append(where, "board = ?")
		args = append(args, q.Board)
	}
	if q.FailedOnly {
		where = append(where, "result = ?")
		args = append(args, ResultFail)
	}
	if !q.Since.IsZero() {
		where = append(where, "ts_ms >= ?")
		args = append(args, q.Since.UnixMilli())
	}
	query := `SELECT id, cycle_id, ts_ms, operator, board, left_sn, right_sn, result, message, left_backup, right_backup FROM cycles`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY ts_ms DESC, id DESC"
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query cycles: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			r  Record
			ms int64
		)
		if err := rows.Scan(&r.ID, &r.CycleID, &ms, &r.Operator, &r.Board, &r.LeftSN, &r.RightSN, &r.Result, &r.Message, &r.LeftBackup, &r.RightBackup); err != nil {
			return nil, fmt.Errorf("scan cycle: %w", err)
		}
		r.Timestamp = time.UnixMilli(ms)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Stats counts cycles logged at or after since (all cycles for a zero time).
func (h *History) Stats(ctx context.Context, since time.Time) (Stats, error) {
	var s Stats
	var passed sql.NullInt64
	err := h.db.QueryRowContext(ctx,
		`SELECT COUNT(1), SUM(CASE WHEN result = 'PASS' THEN 1 ELSE 0 END) FROM cycles WHERE ts_ms >= ?`,
		since.UnixMilli(),
	).Scan(&s.Total, &passed)
	if err != nil {
		return Stats{}, fmt.Errorf("count cycles: %w", err)
	}
	s.Passed = int(passed.Int64)
	s.Failed = s.Total - s.Passed
	return s, nil
}

// Prune deletes cycles logged before cutoff.
func (h *History) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	var removed int64
	err := retryOnBusy(ctx, func() error {
		res, err := h.db.ExecContext(ctx, "DELETE FROM cycles WHERE ts_ms < ?", cutoff.UnixMilli())
		if err != nil {
			return err
		}
		removed, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("prune cycles: %w", err)
	}
	return removed, nil
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}
