package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/frederikbeimgraben/mcssh/internal/domain"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// SQLite has a single writer. One connection serializes the console
	// reader with session writes instead of failing them with
	// "database is locked", and keeps an in-memory database alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// migrate runs database migrations.
func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS console_messages (
			fingerprint TEXT PRIMARY KEY,
			timestamp_millis INTEGER NOT NULL,
			level TEXT NOT NULL,
			message TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_console_messages_ts ON console_messages(timestamp_millis)`,
		`CREATE TABLE IF NOT EXISTS commands (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user TEXT NOT NULL,
			line TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_history_user ON history(user, id)`,
		`CREATE TABLE IF NOT EXISTS audit (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user TEXT NOT NULL,
			kind TEXT NOT NULL,
			line TEXT NOT NULL,
			decision TEXT NOT NULL,
			error TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SeenMessage reports whether a console message was stored before.
func (s *SQLiteStore) SeenMessage(ctx context.Context, fingerprint string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM console_messages WHERE fingerprint = ?`, fingerprint).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SaveMessage stores a console message. Storing it twice is a no-op.
func (s *SQLiteStore) SaveMessage(ctx context.Context, record *domain.ConsoleRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO console_messages (fingerprint, timestamp_millis, level, message) VALUES (?, ?, ?, ?)`,
		record.Fingerprint, record.TimestampMillis, record.Level, record.Message)
	return err
}

// RecentMessages returns the newest messages in chronological order.
func (s *SQLiteStore) RecentMessages(ctx context.Context, limit int) ([]domain.ConsoleRecord, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT fingerprint, timestamp_millis, level, message FROM (
			SELECT fingerprint, timestamp_millis, level, message, rowid FROM console_messages
			ORDER BY timestamp_millis DESC, rowid DESC LIMIT ?
		) ORDER BY timestamp_millis ASC, rowid ASC`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []domain.ConsoleRecord
	for rows.Next() {
		var r domain.ConsoleRecord
		if err := rows.Scan(&r.Fingerprint, &r.TimestampMillis, &r.Level, &r.Message); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// LatestTimestamp returns the newest stored console timestamp, or 0.
func (s *SQLiteStore) LatestTimestamp(ctx context.Context) (int64, error) {
	var ts sql.NullInt64
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(timestamp_millis) FROM console_messages`).Scan(&ts); err != nil {
		return 0, err
	}
	return ts.Int64, nil
}

// AddCommand records a known command name. It reports whether the name was new.
func (s *SQLiteStore) AddCommand(ctx context.Context, name string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO commands (name) VALUES (?)`, name)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListCommands returns known commands in discovery order.
func (s *SQLiteStore) ListCommands(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM commands ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// AppendHistory adds a line to a user's history unless it repeats the
// latest entry. It reports whether the line was added.
func (s *SQLiteStore) AppendHistory(ctx context.Context, user, line string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	var last string
	err = tx.QueryRowContext(ctx,
		`SELECT line FROM history WHERE user = ? ORDER BY id DESC LIMIT 1`, user).Scan(&last)
	if err != nil && err != sql.ErrNoRows {
		return false, err
	}
	if err == nil && last == line {
		return false, nil
	}

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO history (user, line, created_at) VALUES (?, ?, ?)`,
		user, line, time.Now().UTC()); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

// History returns a user's history, newest first. An empty user returns
// every user's history.
func (s *SQLiteStore) History(ctx context.Context, user string, limit int) ([]domain.HistoryEntry, error) {
	query := `SELECT id, user, line, created_at FROM history`
	args := []interface{}{}

	if user != "" {
		query += ` WHERE user = ?`
		args = append(args, user)
	}

	query += ` ORDER BY id DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.HistoryEntry
	for rows.Next() {
		var e domain.HistoryEntry
		if err := rows.Scan(&e.ID, &e.User, &e.Line, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// RecordAudit stores an audit entry.
func (s *SQLiteStore) RecordAudit(ctx context.Context, entry *domain.AuditEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	var errText sql.NullString
	if entry.Error != "" {
		errText = sql.NullString{String: entry.Error, Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO audit (user, kind, line, decision, error, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		entry.User, string(entry.Kind), entry.Line, string(entry.Decision), errText, entry.CreatedAt)
	if err != nil {
		return err
	}
	entry.ID, err = res.LastInsertId()
	return err
}

// ListAudit returns audit entries, newest first.
func (s *SQLiteStore) ListAudit(ctx context.Context, limit int) ([]domain.AuditEntry, error) {
	query := `SELECT id, user, kind, line, decision, error, created_at FROM audit ORDER BY id DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.AuditEntry
	for rows.Next() {
		var e domain.AuditEntry
		var kind, decision string
		var errText sql.NullString
		if err := rows.Scan(&e.ID, &e.User, &kind, &e.Line, &decision, &errText, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Kind = domain.CommandKind(kind)
		e.Decision = domain.Decision(decision)
		e.Error = errText.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
