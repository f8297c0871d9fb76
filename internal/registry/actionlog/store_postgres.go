package actionlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"zkns/internal/namekey"
	"zkns/internal/registry/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS pending_actions (
	seq        BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	id         UUID        NOT NULL,
	field      SMALLINT    NOT NULL,
	key        BYTEA,
	from_value BYTEA,
	to_value   BYTEA       NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS log_cursor (
	id              INT PRIMARY KEY CHECK (id = 1),
	settled_through BIGINT NOT NULL
);
INSERT INTO log_cursor (id, settled_through) VALUES (1, 0) ON CONFLICT (id) DO NOTHING;
`

// Postgres persists the action log so the log survives restarts of the
// settlement daemon. Settled actions are retained: a restarted node replays
// them to rebuild its last-settled views. The cursor row decides what is
// pending.
type Postgres struct {
	db *sql.DB
}

// NewPostgres opens the log over an existing database handle and ensures the
// schema exists.
func NewPostgres(ctx context.Context, db *sql.DB) (*Postgres, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("ensure action log schema: %w", err)
	}
	return &Postgres{db: db}, nil
}

// OpenPostgres dials the DSN with the pgx stdlib driver and returns a ready
// log.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	log, err := NewPostgres(ctx, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return log, nil
}

// DB exposes the underlying handle for integration test hooks.
func (p *Postgres) DB() *sql.DB { return p.db }

// Close releases the database handle.
func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) Append(ctx context.Context, action models.Action) (uint64, error) {
	a := action
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	var key []byte
	if a.Key != nil {
		key = a.Key.Bytes()
	}
	var seq uint64
	err := p.db.QueryRowContext(ctx,
		`INSERT INTO pending_actions (id, field, key, from_value, to_value, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6) RETURNING seq`,
		a.ID, int16(a.Field), key, a.From, a.To, a.CreatedAt,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("append action: %w", err)
	}
	return seq, nil
}

func (p *Postgres) Pending(ctx context.Context, limit int) ([]models.Action, error) {
	q := `SELECT seq, id, field, key, from_value, to_value, created_at
	      FROM pending_actions
	      WHERE seq > (SELECT settled_through FROM log_cursor WHERE id = 1)
	      ORDER BY seq`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list pending actions: %w", err)
	}
	defer rows.Close()

	var out []models.Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list pending actions: %w", err)
	}
	return out, nil
}

func (p *Postgres) Settled(ctx context.Context) ([]models.Action, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT seq, id, field, key, from_value, to_value, created_at
		 FROM pending_actions
		 WHERE seq <= (SELECT settled_through FROM log_cursor WHERE id = 1)
		 ORDER BY seq`,
	)
	if err != nil {
		return nil, fmt.Errorf("list settled actions: %w", err)
	}
	defer rows.Close()

	var out []models.Action
	for rows.Next() {
		a, err := scanAction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list settled actions: %w", err)
	}
	return out, nil
}

func (p *Postgres) PendingCount(ctx context.Context) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM pending_actions
		 WHERE seq > (SELECT settled_through FROM log_cursor WHERE id = 1)`,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count pending actions: %w", err)
	}
	return n, nil
}

func (p *Postgres) Cursor(ctx context.Context) (uint64, error) {
	var cursor uint64
	err := p.db.QueryRowContext(ctx, `SELECT settled_through FROM log_cursor WHERE id = 1`).Scan(&cursor)
	if err != nil {
		return 0, fmt.Errorf("read log cursor: %w", err)
	}
	return cursor, nil
}

func (p *Postgres) MarkSettled(ctx context.Context, through uint64) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE log_cursor SET settled_through = $1 WHERE id = 1 AND settled_through <= $1`,
		through,
	)
	if err != nil {
		return fmt.Errorf("advance log cursor: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("advance log cursor: %w", err)
	}
	if n == 0 {
		return ErrCursorRegression
	}
	return nil
}

func scanAction(rows *sql.Rows) (models.Action, error) {
	var (
		a     models.Action
		field int16
		key   []byte
	)
	if err := rows.Scan(&a.Seq, &a.ID, &field, &key, &a.From, &a.To, &a.CreatedAt); err != nil {
		return a, fmt.Errorf("scan action: %w", err)
	}
	a.Field = models.FieldID(field)
	if key != nil {
		if len(key) != 32 {
			return a, errors.New("scan action: malformed key")
		}
		var k namekey.Key
		copy(k[:], key)
		a.Key = &k
	}
	return a, nil
}
