package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/bi-agent/internal/model"
)

// Pool is the subset of pgxpool.Pool used by PostgresStore. pgxmock pools
// satisfy it in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const selectRefresh = `SELECT id, status, trigger_name, stats, error, created_at, completed_at FROM refreshes`

// preparedStatements lists queries to prepare on each new connection.
var preparedStatements = map[string]string{
	"insert_refresh":   `INSERT INTO refreshes (id, status, trigger_name, created_at) VALUES ($1, $2, $3, $4)`,
	"complete_refresh": `UPDATE refreshes SET status = $1, stats = $2, completed_at = $3 WHERE id = $4`,
	"fail_refresh":     `UPDATE refreshes SET status = $1, error = $2, completed_at = $3 WHERE id = $4`,
	"get_refresh":      selectRefresh + ` WHERE id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS refreshes (
	id           TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	status       TEXT NOT NULL DEFAULT 'running',
	trigger_name TEXT NOT NULL,
	stats        JSONB,
	error        TEXT NOT NULL DEFAULT '',
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_refreshes_status ON refreshes(status);
CREATE INDEX IF NOT EXISTS idx_refreshes_created_at ON refreshes(created_at);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRefresh(ctx context.Context, trigger string) (*model.Refresh, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx, preparedStatements["insert_refresh"],
		id, string(model.RefreshRunning), trigger, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert refresh")
	}

	return &model.Refresh{
		ID:        id,
		Status:    model.RefreshRunning,
		Trigger:   trigger,
		CreatedAt: now,
	}, nil
}

func (s *PostgresStore) CompleteRefresh(ctx context.Context, id string, stats *model.RefreshStats) error {
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal stats")
	}

	tag, err := s.pool.Exec(ctx, preparedStatements["complete_refresh"],
		string(model.RefreshComplete), statsJSON, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete refresh %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "refresh %s", id)
	}
	return nil
}

func (s *PostgresStore) FailRefresh(ctx context.Context, id string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	tag, err := s.pool.Exec(ctx, preparedStatements["fail_refresh"],
		string(model.RefreshFailed), msg, time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail refresh %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "refresh %s", id)
	}
	return nil
}

func (s *PostgresStore) GetRefresh(ctx context.Context, id string) (*model.Refresh, error) {
	r, err := scanPgRefresh(s.pool.QueryRow(ctx, preparedStatements["get_refresh"], id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get refresh %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get refresh %s", id)
	}
	return r, nil
}

func (s *PostgresStore) ListRefreshes(ctx context.Context, filter RefreshFilter) ([]model.Refresh, error) {
	query := selectRefresh + ` WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.Trigger != "" {
		query += fmt.Sprintf(` AND trigger_name = $%d`, argIdx)
		args = append(args, filter.Trigger)
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter.Limit))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list refreshes")
	}
	defer rows.Close()

	var out []model.Refresh
	for rows.Next() {
		r, err := scanPgRefresh(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan refresh")
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list refreshes iterate")
}

func scanPgRefresh(row pgx.Row) (*model.Refresh, error) {
	var r model.Refresh
	var status string
	var stats []byte

	if err := row.Scan(&r.ID, &status, &r.Trigger, &stats, &r.Error, &r.CreatedAt, &r.CompletedAt); err != nil {
		return nil, err
	}
	r.Status = model.RefreshStatus(status)
	if len(stats) > 0 && string(stats) != "null" {
		r.Stats = &model.RefreshStats{}
		if err := json.Unmarshal(stats, r.Stats); err != nil {
			return nil, eris.Wrap(err, "unmarshal stats")
		}
	}
	return &r, nil
}
