package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/insights/internal/apperr"
)

// DBTX is the subset of pgx used by the Postgres store.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

const schema = `
CREATE TABLE IF NOT EXISTS uploaded_files (
	id       uuid PRIMARY KEY,
	name     text NOT NULL UNIQUE,
	original text NOT NULL,
	size     bigint NOT NULL,
	content  bytea NOT NULL,
	saved_at timestamptz NOT NULL
);
CREATE INDEX IF NOT EXISTS uploaded_files_saved_at_idx ON uploaded_files (saved_at DESC);
`

// Postgres stores files as rows of the uploaded_files table.
type Postgres struct {
	db   DBTX
	opts Options
}

var _ Store = (*Postgres)(nil)

// NewPostgres returns a store backed by db. Call Migrate before first use.
func NewPostgres(db DBTX, opts Options) *Postgres {
	return &Postgres{db: db, opts: opts}
}

// Migrate creates the uploaded_files table if it does not exist.
func (s *Postgres) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return apperr.External("storage", "migrate", err)
	}
	return nil
}

func (s *Postgres) Save(ctx context.Context, name string, r io.Reader) (Entry, error) {
	base, err := CheckUpload(name)
	if err != nil {
		return Entry{}, err
	}
	data, err := readLimited(r, s.opts.MaxBytes)
	if err != nil {
		if errors.Is(err, ErrTooLarge) {
			return Entry{}, err
		}
		return Entry{}, apperr.External("storage", "save", err)
	}

	savedAt := s.opts.now().Truncate(time.Second)
	e := Entry{Name: SavedName(savedAt, base), Original: base, Size: int64(len(data)), SavedAt: savedAt}

	_, err = s.db.Exec(ctx, `
		INSERT INTO uploaded_files (id, name, original, size, content, saved_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (name) DO UPDATE
		SET original = EXCLUDED.original, size = EXCLUDED.size,
		    content = EXCLUDED.content, saved_at = EXCLUDED.saved_at`,
		uuid.New(), e.Name, e.Original, e.Size, data, e.SavedAt,
	)
	if err != nil {
		return Entry{}, apperr.External("storage", "save", err)
	}
	return e, nil
}

func (s *Postgres) List(ctx context.Context) ([]Entry, error) {
	rows, err := s.db.Query(ctx, `
		SELECT name, original, size, saved_at
		FROM uploaded_files
		ORDER BY saved_at DESC, name DESC`)
	if err != nil {
		return nil, apperr.External("storage", "list", err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var e Entry
		err := row.Scan(&e.Name, &e.Original, &e.Size, &e.SavedAt)
		return e, err
	})
	if err != nil {
		return nil, apperr.External("storage", "list", err)
	}
	return entries, nil
}

func (s *Postgres) Delete(ctx context.Context, name string) error {
	if err := CheckName(name); err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx, `DELETE FROM uploaded_files WHERE name = $1`, name)
	if err != nil {
		return apperr.External("storage", "delete", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return nil
}

func (s *Postgres) Open(ctx context.Context, name string) (io.ReadCloser, Entry, error) {
	if err := CheckName(name); err != nil {
		return nil, Entry{}, err
	}

	e := Entry{Name: name}
	var data []byte
	err := s.db.QueryRow(ctx, `
		SELECT original, size, saved_at, content
		FROM uploaded_files WHERE name = $1`, name,
	).Scan(&e.Original, &e.Size, &e.SavedAt, &data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, Entry{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, Entry{}, apperr.External("storage", "open", err)
	}
	return io.NopCloser(bytes.NewReader(data)), e, nil
}

func (s *Postgres) Clear(ctx context.Context) (int, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM uploaded_files`)
	if err != nil {
		return 0, apperr.External("storage", "clear", err)
	}
	return int(tag.RowsAffected()), nil
}

// PoolConfig tunes the connection pool opened by Connect.
type PoolConfig struct {
	URL             string
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Connect opens and pings a connection pool.
func Connect(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxConns)
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = int32(cfg.MinConns)
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}
