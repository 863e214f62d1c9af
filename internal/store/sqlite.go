package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/bi-agent/internal/model"
)

// ErrNotFound is returned when a refresh id does not exist.
var ErrNotFound = eris.New("refresh not found")

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS refreshes (
	id           TEXT PRIMARY KEY,
	status       TEXT NOT NULL DEFAULT 'running',
	trigger_name TEXT NOT NULL,
	stats        TEXT,
	error        TEXT NOT NULL DEFAULT '',
	created_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	completed_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_refreshes_status ON refreshes(status);
CREATE INDEX IF NOT EXISTS idx_refreshes_created_at ON refreshes(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRefresh(ctx context.Context, trigger string) (*model.Refresh, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO refreshes (id, status, trigger_name, created_at) VALUES (?, ?, ?, ?)`,
		id, string(model.RefreshRunning), trigger, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert refresh")
	}

	return &model.Refresh{
		ID:        id,
		Status:    model.RefreshRunning,
		Trigger:   trigger,
		CreatedAt: now,
	}, nil
}

func (s *SQLiteStore) CompleteRefresh(ctx context.Context, id string, stats *model.RefreshStats) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal stats")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE refreshes SET status = ?, stats = ?, completed_at = ? WHERE id = ?`,
		string(model.RefreshComplete), string(statsJSON), time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete refresh %s", id)
	}
	return checkRowsAffected(res, id)
}

func (s *SQLiteStore) FailRefresh(ctx context.Context, id string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE refreshes SET status = ?, error = ?, completed_at = ? WHERE id = ?`,
		string(model.RefreshFailed), msg, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail refresh %s", id)
	}
	return checkRowsAffected(res, id)
}

func (s *SQLiteStore) GetRefresh(ctx context.Context, id string) (*model.Refresh, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, status, trigger_name, stats, error, created_at, completed_at FROM refreshes WHERE id = ?`,
		id,
	)
	r, err := scanRefresh(row)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get refresh %s", id)
	}
	return r, nil
}

func (s *SQLiteStore) ListRefreshes(ctx context.Context, filter RefreshFilter) ([]model.Refresh, error) {
	query := `SELECT id, status, trigger_name, stats, error, created_at, completed_at FROM refreshes WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Trigger != "" {
		query += ` AND trigger_name = ?`
		args = append(args, filter.Trigger)
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, listLimit(filter.Limit))

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list refreshes")
	}
	defer rows.Close()

	var out []model.Refresh
	for rows.Next() {
		r, err := scanRefresh(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: list refreshes")
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list refreshes iterate")
}

func checkRowsAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "refresh %s", id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRefresh(row scannable) (*model.Refresh, error) {
	var r model.Refresh
	var stats sql.NullString
	var completed sql.NullTime

	err := row.Scan(&r.ID, &r.Status, &r.Trigger, &stats, &r.Error, &r.CreatedAt, &completed)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, eris.Wrap(err, "scan refresh")
	}

	if stats.Valid && stats.String != "" && stats.String != "null" {
		r.Stats = &model.RefreshStats{}
		if err := json.Unmarshal([]byte(stats.String), r.Stats); err != nil {
			return nil, eris.Wrap(err, "unmarshal stats")
		}
	}
	if completed.Valid {
		t := completed.Time.UTC()
		r.CompletedAt = &t
	}
	r.CreatedAt = r.CreatedAt.UTC()
	return &r, nil
}
