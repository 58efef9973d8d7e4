package conversation

import (
	"context"
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

// SQLiteStore persists threads in a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		return nil, errors.New("sqlite path is empty")
	}
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	// One writer keeps seq assignment race free.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS threads (
			id INTEGER PRIMARY KEY,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS turns (
			thread_id INTEGER NOT NULL REFERENCES threads(id),
			seq INTEGER NOT NULL,
			role TEXT NOT NULL,
			text TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (thread_id, seq)
		);
	`)
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create tables")
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) History(ctx context.Context, threadID int64) ([]Turn, error) {
	if _, err := s.db.ExecContext(ctx, "INSERT OR IGNORE INTO threads (id) VALUES (?)", threadID); err != nil {
		return nil, errors.Wrapf(err, "create thread %d", threadID)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT role, text FROM turns WHERE thread_id = ? ORDER BY seq ASC",
		threadID,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "query thread %d", threadID)
	}
	defer rows.Close()

	turns := []Turn{}
	for rows.Next() {
		var t Turn
		var role string
		if err := rows.Scan(&role, &t.Text); err != nil {
			return nil, errors.Wrap(err, "scan turn")
		}
		t.Role = Role(role)
		turns = append(turns, t)
	}
	return turns, errors.Wrap(rows.Err(), "iterate turns")
}

func (s *SQLiteStore) Append(ctx context.Context, threadID int64, turns ...Turn) error {
	if err := validateTurns(turns); err != nil {
		return err
	}
	if len(turns) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "INSERT OR IGNORE INTO threads (id) VALUES (?)", threadID); err != nil {
		return errors.Wrapf(err, "create thread %d", threadID)
	}
	var next int64
	if err := tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(seq), 0) FROM turns WHERE thread_id = ?", threadID,
	).Scan(&next); err != nil {
		return errors.Wrap(err, "next seq")
	}
	for _, t := range turns {
		next++
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO turns (thread_id, seq, role, text) VALUES (?, ?, ?, ?)",
			threadID, next, string(t.Role), t.Text,
		); err != nil {
			return errors.Wrap(err, "insert turn")
		}
	}
	return errors.Wrap(tx.Commit(), "commit")
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
