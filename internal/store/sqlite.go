package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/place-resolver/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. Timestamps are kept
// as unix milliseconds so expiry comparisons are plain integer compares.
type SQLiteStore struct {
	db *sql.DB

	// nowFunc allows test injection of time.
	nowFunc func() time.Time
}

// NewSQLite opens (or creates) a SQLite database at dsn.
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
	return &SQLiteStore{db: db, nowFunc: time.Now}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS resolution_cache (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	created_at INTEGER NOT NULL,
	expires_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS disambiguation_audit (
	id            TEXT PRIMARY KEY,
	subject_name  TEXT NOT NULL,
	artifact_kind TEXT NOT NULL,
	provider_id   TEXT NOT NULL,
	level         TEXT NOT NULL,
	value         TEXT NOT NULL,
	reason        TEXT NOT NULL,
	created_at    INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_resolution_cache_expires_at ON resolution_cache(expires_at);
CREATE INDEX IF NOT EXISTS idx_disambiguation_audit_subject ON disambiguation_audit(subject_name, created_at DESC);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Get(ctx context.Context, key string) (*model.CacheEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT value, created_at, expires_at FROM resolution_cache
		 WHERE key = ? AND expires_at > ?`,
		key, s.nowFunc().UnixMilli(),
	)

	var value []byte
	var createdMs, expiresMs int64
	err := row.Scan(&value, &createdMs, &expiresMs)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get cache entry")
	}
	return &model.CacheEntry{
		Key:       key,
		Value:     value,
		CreatedAt: time.UnixMilli(createdMs).UTC(),
		ExpiresAt: time.UnixMilli(expiresMs).UTC(),
	}, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		_, err := s.db.ExecContext(ctx, `DELETE FROM resolution_cache WHERE key = ?`, key)
		return eris.Wrap(err, "sqlite: delete cache entry")
	}
	now := s.nowFunc()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO resolution_cache (key, value, created_at, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, created_at = excluded.created_at, expires_at = excluded.expires_at`,
		key, value, now.UnixMilli(), now.Add(ttl).UnixMilli(),
	)
	return eris.Wrap(err, "sqlite: set cache entry")
}

func (s *SQLiteStore) DeleteExpired(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM resolution_cache WHERE expires_at <= ?`, s.nowFunc().UnixMilli(),
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired")
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) RecordRejections(ctx context.Context, rejections []model.Rejection) error {
	if len(rejections) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO disambiguation_audit (id, subject_name, artifact_kind, provider_id, level, value, reason, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare audit insert")
	}
	defer stmt.Close() //nolint:errcheck

	for i := range rejections {
		r := &rejections[i]
		fillRejection(r, s.nowFunc())
		if _, err := stmt.ExecContext(ctx,
			r.ID, r.SubjectName, string(r.Kind), r.ProviderID, string(r.Level), r.Value, r.Reason, r.CreatedAt.UnixMilli(),
		); err != nil {
			return eris.Wrap(err, "sqlite: insert rejection")
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit rejections")
}

func (s *SQLiteStore) ListRejections(ctx context.Context, filter RejectionFilter) ([]model.Rejection, error) {
	query := `SELECT id, subject_name, artifact_kind, provider_id, level, value, reason, created_at FROM disambiguation_audit`
	var conds []string
	var args []any
	if filter.SubjectName != "" {
		conds = append(conds, "subject_name = ?")
		args = append(args, filter.SubjectName)
	}
	if filter.Kind != "" {
		conds = append(conds, "artifact_kind = ?")
		args = append(args, string(filter.Kind))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, listLimit(filter.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list rejections")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.Rejection
	for rows.Next() {
		var r model.Rejection
		var kind, level string
		var createdMs int64
		if err := rows.Scan(&r.ID, &r.SubjectName, &kind, &r.ProviderID, &level, &r.Value, &r.Reason, &createdMs); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan rejection")
		}
		r.Kind = model.ArtifactKind(kind)
		r.Level = model.LevelName(level)
		r.CreatedAt = time.UnixMilli(createdMs).UTC()
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate rejections")
}

// fillRejection assigns an ID and timestamp to records that lack them.
func fillRejection(r *model.Rejection, now time.Time) {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now.UTC()
	}
}
