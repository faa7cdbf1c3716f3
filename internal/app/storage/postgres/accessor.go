package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/eslamgaber/storefront/internal/app/storage/sqlgen"
)

// Result carries the outcome of a mutating statement: the affected row count
// and the rows produced by RETURNING *. A zero RowCount on update or delete
// means no row matched the condition; it is a valid outcome, not an error.
type Result[T any] struct {
	RowCount int64
	Rows     []T
}

// First returns the first returned row, or nil when nothing was affected.
func (r Result[T]) First() *T {
	if len(r.Rows) == 0 {
		return nil
	}
	return &r.Rows[0]
}

// Accessor executes synthesized queries for one table and one row shape. It
// holds no row state of its own: every operation acquires a connection from
// the injected pool, issues exactly one statement and releases the connection
// on every exit path. Statement errors are propagated unmodified.
type Accessor[T any] struct {
	table string
	db    *sqlx.DB
}

// NewAccessor builds an accessor for the given table backed by the pool
// handle. Construct once per process and entity; use Rebind to re-point at a
// different database.
func NewAccessor[T any](table string, db *sqlx.DB) *Accessor[T] {
	return &Accessor[T]{table: table, db: db}
}

// Table returns the table this accessor operates on.
func (a *Accessor[T]) Table() string { return a.table }

// Rebind swaps the pool handle. Intended for startup and tests only; callers
// must not race a rebind against in-flight operations.
func (a *Accessor[T]) Rebind(db *sqlx.DB) { a.db = db }

// Index runs a SELECT built from the descriptor and returns all matching
// rows, or an empty slice when none match.
func (a *Accessor[T]) Index(ctx context.Context, opts sqlgen.SelectOptions) ([]T, error) {
	return a.queryRows(ctx, sqlgen.Select(a.table, opts))
}

// FindOne runs Index with the limit forced to 1 and returns the first row,
// or nil when no row matches. The caller's descriptor is not modified.
func (a *Accessor[T]) FindOne(ctx context.Context, opts sqlgen.SelectOptions) (*T, error) {
	opts.Limit = 1
	rows, err := a.Index(ctx, opts)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// Exists reports whether at least one row matches the condition. It selects
// count(id) with limit 1 and tests the parsed count for non-zero, mirroring
// the single-row existence probe of FindOne rather than a bare COUNT(*).
func (a *Accessor[T]) Exists(ctx context.Context, cond sqlgen.Condition) (bool, error) {
	q := sqlgen.Select(a.table, sqlgen.SelectOptions{
		Condition:  cond,
		Projection: []string{"count(id)"},
		Limit:      1,
	})

	conn, err := a.db.Connx(ctx)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	var count int64
	if err := conn.QueryRowxContext(ctx, q.SQL, q.Args...).Scan(&count); err != nil {
		return false, err
	}
	return count != 0, nil
}

// Create inserts the row and returns the stored row via RETURNING *.
// Constraint violations surface as the driver's error, untranslated.
func (a *Accessor[T]) Create(ctx context.Context, row sqlgen.Values) (Result[T], error) {
	return a.execReturning(ctx, sqlgen.Insert(a.table, row))
}

// Update applies the change set to every row matching the condition and
// returns the updated rows. Callers must validate that Changes is non-empty
// and that an empty Condition really is meant to touch every row.
func (a *Accessor[T]) Update(ctx context.Context, opts sqlgen.UpdateOptions) (Result[T], error) {
	return a.execReturning(ctx, sqlgen.Update(a.table, opts))
}

// Delete removes every row matching the condition and returns the removed
// rows. An empty condition deletes the entire table; guarding intent is the
// caller's responsibility.
func (a *Accessor[T]) Delete(ctx context.Context, cond sqlgen.Condition) (Result[T], error) {
	return a.execReturning(ctx, sqlgen.Delete(a.table, cond))
}

func (a *Accessor[T]) execReturning(ctx context.Context, q sqlgen.Query) (Result[T], error) {
	rows, err := a.queryRows(ctx, q)
	if err != nil {
		return Result[T]{}, err
	}
	return Result[T]{RowCount: int64(len(rows)), Rows: rows}, nil
}

func (a *Accessor[T]) queryRows(ctx context.Context, q sqlgen.Query) ([]T, error) {
	conn, err := a.db.Connx(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	rows, err := conn.QueryxContext(ctx, q.SQL, q.Args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []T{}
	for rows.Next() {
		var row T
		if err := rows.StructScan(&row); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
