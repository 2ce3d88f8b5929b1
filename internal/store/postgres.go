package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/place-resolver/internal/db"
	"github.com/sells-group/place-resolver/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

const (
	pgGetEntry = `SELECT value, created_at, expires_at FROM resolution_cache WHERE key = $1 AND expires_at > $2`
	pgSetEntry = `INSERT INTO resolution_cache (key, value, created_at, expires_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, created_at = EXCLUDED.created_at, expires_at = EXCLUDED.expires_at`
	pgDeleteEntry   = `DELETE FROM resolution_cache WHERE key = $1`
	pgDeleteExpired = `DELETE FROM resolution_cache WHERE expires_at <= $1`
)

// preparedStatements lists queries to prepare on each new connection.
var preparedStatements = map[string]string{
	"get_cache_entry":    pgGetEntry,
	"set_cache_entry":    pgSetEntry,
	"delete_cache_entry": pgDeleteEntry,
}

var auditColumns = []string{"id", "subject_name", "artifact_kind", "provider_id", "level", "value", "reason", "created_at"}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *db.PoolConfig) (*PostgresStore, error) {
	pool, err := db.NewPool(ctx, connString, poolCfg, preparedStatements)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: open")
	}
	return newPostgresWithPool(pool), nil
}

func newPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, nowFunc: time.Now}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS resolution_cache (
	key        TEXT PRIMARY KEY,
	value      BYTEA NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS disambiguation_audit (
	id            TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	subject_name  TEXT NOT NULL,
	artifact_kind TEXT NOT NULL,
	provider_id   TEXT NOT NULL,
	level         TEXT NOT NULL,
	value         TEXT NOT NULL,
	reason        TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_resolution_cache_expires_at ON resolution_cache(expires_at);
CREATE INDEX IF NOT EXISTS idx_disambiguation_audit_subject ON disambiguation_audit(subject_name, created_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) (*model.CacheEntry, error) {
	entry := model.CacheEntry{Key: key}
	err := s.pool.QueryRow(ctx, pgGetEntry, key, s.nowFunc().UTC()).
		Scan(&entry.Value, &entry.CreatedAt, &entry.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: get cache entry")
	}
	return &entry, nil
}

func (s *PostgresStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		_, err := s.pool.Exec(ctx, pgDeleteEntry, key)
		return eris.Wrap(err, "postgres: delete cache entry")
	}
	now := s.nowFunc().UTC()
	_, err := s.pool.Exec(ctx, pgSetEntry, key, value, now, now.Add(ttl))
	return eris.Wrap(err, "postgres: set cache entry")
}

func (s *PostgresStore) DeleteExpired(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, pgDeleteExpired, s.nowFunc().UTC())
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired")
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) RecordRejections(ctx context.Context, rejections []model.Rejection) error {
	if len(rejections) == 0 {
		return nil
	}
	now := s.nowFunc()
	rows := make([][]any, len(rejections))
	for i := range rejections {
		r := &rejections[i]
		fillRejection(r, now)
		rows[i] = []any{r.ID, r.SubjectName, string(r.Kind), r.ProviderID, string(r.Level), r.Value, r.Reason, r.CreatedAt}
	}
	_, err := db.CopyFrom(ctx, s.pool, "disambiguation_audit", auditColumns, rows)
	return eris.Wrap(err, "postgres: record rejections")
}

func (s *PostgresStore) ListRejections(ctx context.Context, filter RejectionFilter) ([]model.Rejection, error) {
	query := `SELECT ` + strings.Join(auditColumns, ", ") + ` FROM disambiguation_audit`
	var conds []string
	var args []any
	if filter.SubjectName != "" {
		args = append(args, filter.SubjectName)
		conds = append(conds, fmt.Sprintf("subject_name = $%d", len(args)))
	}
	if filter.Kind != "" {
		args = append(args, string(filter.Kind))
		conds = append(conds, fmt.Sprintf("artifact_kind = $%d", len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, listLimit(filter.Limit))
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list rejections")
	}
	defer rows.Close()

	var out []model.Rejection
	for rows.Next() {
		var r model.Rejection
		var kind, level string
		if err := rows.Scan(&r.ID, &r.SubjectName, &kind, &r.ProviderID, &level, &r.Value, &r.Reason, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan rejection")
		}
		r.Kind = model.ArtifactKind(kind)
		r.Level = model.LevelName(level)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate rejections")
}
