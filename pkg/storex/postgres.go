package storex

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/Abraxas-365/keystone/pkg/errx"
	"github.com/Abraxas-365/keystone/pkg/logx"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

var tableName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Postgres keeps one JSONB document per row and guards updates with a version
// column. A lost race re-reads the row and re-applies the transform.
type Postgres[T any] struct {
	db    *sqlx.DB
	table string
	opts  Options[T]
}

// NewPostgres binds a store to table, which must be a plain identifier.
func NewPostgres[T any](db *sqlx.DB, table string, opts Options[T]) (*Postgres[T], error) {
	if !tableName.MatchString(table) {
		return nil, errx.Validation("invalid table name").WithDetail("table", table)
	}
	return &Postgres[T]{db: db, table: table, opts: opts}, nil
}

// Schema returns the DDL for the store's table
func (p *Postgres[T]) Schema() string {
	return fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id          TEXT PRIMARY KEY,
			lookup_key  TEXT UNIQUE,
			version     BIGINT NOT NULL DEFAULT 1,
			document    JSONB NOT NULL,
			updated_by  TEXT NOT NULL DEFAULT '',
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`, p.table)
}

// Migrate creates the table when missing
func (p *Postgres[T]) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, p.Schema()); err != nil {
		return errx.Wrapf(err, errx.TypeInternal, "failed to create table %s", p.table).WithDetail("table", p.table)
	}
	return nil
}

type documentRow struct {
	ID        string         `db:"id"`
	LookupKey sql.NullString `db:"lookup_key"`
	Version   int64          `db:"version"`
	Document  []byte         `db:"document"`
	UpdatedBy string         `db:"updated_by"`
	UpdatedAt time.Time      `db:"updated_at"`
}

func (p *Postgres[T]) decode(raw []byte) (T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, errx.Wrap(err, "failed to decode document", errx.TypeInternal).WithDetail("table", p.table)
	}
	return v, nil
}

func (p *Postgres[T]) lookupKey(v T) sql.NullString {
	k := p.opts.key(v)
	return sql.NullString{String: k, Valid: k != ""}
}

func (p *Postgres[T]) Get(ctx context.Context, id string) (T, error) {
	var row documentRow
	query := fmt.Sprintf(`SELECT id, version, document FROM %s WHERE id = $1`, p.table)
	if err := p.db.GetContext(ctx, &row, query, id); err != nil {
		var zero T
		if errors.Is(err, sql.ErrNoRows) {
			return zero, ErrNotFound(id)
		}
		return zero, errx.Wrap(err, "failed to get record", errx.TypeInternal).WithDetail("id", id)
	}
	return p.decode(row.Document)
}

func (p *Postgres[T]) FindByKey(ctx context.Context, key string) (T, error) {
	var row documentRow
	query := fmt.Sprintf(`SELECT id, version, document FROM %s WHERE lookup_key = $1`, p.table)
	if err := p.db.GetContext(ctx, &row, query, key); err != nil {
		var zero T
		if errors.Is(err, sql.ErrNoRows) {
			return zero, ErrNotFound(key)
		}
		return zero, errx.Wrap(err, "failed to find record by key", errx.TypeInternal).WithDetail("key", key)
	}
	return p.decode(row.Document)
}

func (p *Postgres[T]) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	query := fmt.Sprintf(`SELECT EXISTS(SELECT 1 FROM %s WHERE id = $1)`, p.table)
	if err := p.db.GetContext(ctx, &exists, query, id); err != nil {
		return false, errx.Wrap(err, "failed to check record existence", errx.TypeInternal)
	}
	return exists, nil
}

func (p *Postgres[T]) List(ctx context.Context) ([]T, error) {
	var rows []documentRow
	query := fmt.Sprintf(`SELECT id, version, document FROM %s ORDER BY id`, p.table)
	if err := p.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, errx.Wrapf(err, errx.TypeInternal, "failed to list %s", p.table).WithDetail("table", p.table)
	}

	out := make([]T, 0, len(rows))
	for _, row := range rows {
		v, err := p.decode(row.Document)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (p *Postgres[T]) Create(ctx context.Context, id string, value T, actor string) (T, error) {
	var zero T
	doc, err := json.Marshal(value)
	if err != nil {
		return zero, errx.Wrap(err, "failed to encode document", errx.TypeInternal)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, lookup_key, version, document, updated_by, updated_at)
		VALUES (:id, :lookup_key, 1, :document, :updated_by, :updated_at)`, p.table)

	_, err = p.db.NamedExecContext(ctx, query, documentRow{
		ID:        id,
		LookupKey: p.lookupKey(value),
		Document:  doc,
		UpdatedBy: actor,
		UpdatedAt: time.Now().UTC(),
	})
	if err != nil {
		if field, ok := uniqueViolation(err); ok {
			if field == "key" {
				return zero, ErrDuplicateKey(field, p.opts.key(value))
			}
			return zero, ErrDuplicateKey(field, id)
		}
		return zero, errx.Wrap(err, "failed to create record", errx.TypeInternal).WithDetail("id", id)
	}
	return value, nil
}

func (p *Postgres[T]) Update(ctx context.Context, id string, fn UpdateFunc[T], actor string) (T, error) {
	var zero T
	selectQuery := fmt.Sprintf(`SELECT id, version, document FROM %s WHERE id = $1`, p.table)
	updateQuery := fmt.Sprintf(`
		UPDATE %s SET document = $1, lookup_key = $2, version = version + 1, updated_by = $3, updated_at = $4
		WHERE id = $5 AND version = $6`, p.table)

	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		var row documentRow
		if err := p.db.GetContext(ctx, &row, selectQuery, id); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return zero, ErrNotFound(id)
			}
			return zero, errx.Wrap(err, "failed to read record for update", errx.TypeInternal).WithDetail("id", id)
		}

		current, err := p.decode(row.Document)
		if err != nil {
			return zero, err
		}
		next, err := fn(current)
		if err != nil {
			return zero, err
		}
		doc, err := json.Marshal(next)
		if err != nil {
			return zero, errx.Wrap(err, "failed to encode document", errx.TypeInternal)
		}

		res, err := p.db.ExecContext(ctx, updateQuery, doc, p.lookupKey(next), actor, time.Now().UTC(), id, row.Version)
		if err != nil {
			if _, ok := uniqueViolation(err); ok {
				return zero, ErrDuplicateKey("key", p.opts.key(next))
			}
			return zero, errx.Wrap(err, "failed to update record", errx.TypeInternal).WithDetail("id", id)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return zero, errx.Wrap(err, "failed to get rows affected on update", errx.TypeInternal)
		}
		if affected == 1 {
			return next, nil
		}

		logx.WithFields(logx.Fields{
			"table":   p.table,
			"id":      id,
			"attempt": attempt,
		}).Debug("storex: version conflict, retrying update")
	}
	return zero, ErrContention(id)
}

func (p *Postgres[T]) Delete(ctx context.Context, id string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, p.table)
	res, err := p.db.ExecContext(ctx, query, id)
	if err != nil {
		return errx.Wrap(err, "failed to delete record", errx.TypeInternal).WithDetail("id", id)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errx.Wrap(err, "failed to get rows affected on delete", errx.TypeInternal)
	}
	if affected == 0 {
		return ErrNotFound(id)
	}
	return nil
}

// uniqueViolation reports a 23505 and which column caused it
func uniqueViolation(err error) (string, bool) {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != "23505" {
		return "", false
	}
	if strings.Contains(pqErr.Constraint, "lookup_key") {
		return "key", true
	}
	return "id", true
}
