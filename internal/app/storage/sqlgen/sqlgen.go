// Package sqlgen turns declarative query descriptors into parameterized SQL.
//
// The package performs no I/O: it only produces statement text plus an ordered
// argument list. Values are always bound as positional $N parameters; column
// names, join predicates and grouping expressions are trusted identifiers
// supplied by callers, never user input.
package sqlgen

import (
	"fmt"
	"sort"
	"strings"
)

// Condition is an equality map column -> value. All entries are ANDed. An
// empty or nil condition produces no WHERE clause and therefore matches (or
// affects) every row; callers that do not intend "all rows" must never pass
// an empty condition to update or delete.
type Condition map[string]any

// Values holds column -> value pairs for insert rows and update change sets.
type Values map[string]any

// JoinKind selects the SQL join variant.
type JoinKind string

const (
	LeftJoin  JoinKind = "LEFT"
	InnerJoin JoinKind = "INNER"
	RightJoin JoinKind = "RIGHT"
	OuterJoin JoinKind = "OUTER"
)

// Join describes one "<KIND> JOIN <table> ON <predicate>" clause. Joins are
// emitted in slice order; later joins may reference earlier-joined tables.
type Join struct {
	Kind  JoinKind
	Table string
	On    string
}

// SelectOptions describes the shape of a SELECT statement.
type SelectOptions struct {
	Condition  Condition
	Projection []string
	Joins      []Join
	GroupBy    []string
	Limit      int
}

// UpdateOptions describes the shape of an UPDATE statement. Changes must be
// non-empty; an update with no changes has no defined SQL shape and must be
// rejected before reaching this package.
type UpdateOptions struct {
	Changes   Values
	Condition Condition
}

// Query is the contract handed to the executing layer: the Nth $N placeholder
// in SQL corresponds exactly to the Nth element of Args.
type Query struct {
	SQL  string
	Args []any
}

// sortedKeys returns map keys in a fixed order so that generated SQL is
// deterministic. Go maps iterate in random order; the placeholder/argument
// pairing below would hold either way, but stable text keeps statements
// cacheable and testable.
func sortedKeys[M ~map[string]any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// projection joins the column expressions, defaulting to * when absent.
func projection(cols []string) string {
	if len(cols) == 0 {
		return "*"
	}
	return strings.Join(cols, ", ")
}

// condition renders the WHERE clause with placeholders starting at
// offset+1. The offset threads UPDATE's shared bind namespace: SET values are
// bound first, so condition numbering must continue after them.
func condition(cond Condition, offset int) (string, []any) {
	if len(cond) == 0 {
		return "", nil
	}

	keys := sortedKeys(cond)
	terms := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, k := range keys {
		terms[i] = fmt.Sprintf("%s=$%d", k, offset+i+1)
		args[i] = cond[k]
	}
	return "WHERE " + strings.Join(terms, " AND "), args
}

func joins(list []Join) string {
	if len(list) == 0 {
		return ""
	}
	parts := make([]string, len(list))
	for i, j := range list {
		parts[i] = fmt.Sprintf("%s JOIN %s ON %s", j.Kind, j.Table, j.On)
	}
	return strings.Join(parts, " ")
}

func groupBy(cols []string) string {
	if len(cols) == 0 {
		return ""
	}
	return "GROUP BY " + strings.Join(cols, ", ")
}

func limit(n int) string {
	if n <= 0 {
		return ""
	}
	return fmt.Sprintf("LIMIT %d", n)
}

// assemble joins non-empty fragments with single spaces and terminates the
// statement.
func assemble(fragments ...string) string {
	parts := fragments[:0:0]
	for _, f := range fragments {
		if f != "" {
			parts = append(parts, f)
		}
	}
	return strings.Join(parts, " ") + ";"
}

// Select builds a SELECT statement. Only the condition contributes bind
// parameters; joins, grouping and limit are plain text fragments.
func Select(table string, opts SelectOptions) Query {
	where, args := condition(opts.Condition, 0)
	sql := assemble(
		"SELECT "+projection(opts.Projection),
		"FROM "+table,
		joins(opts.Joins),
		where,
		groupBy(opts.GroupBy),
		limit(opts.Limit),
	)
	return Query{SQL: sql, Args: args}
}

// Insert builds an INSERT ... RETURNING * statement binding every row value
// positionally.
func Insert(table string, row Values) Query {
	keys := sortedKeys(row)
	binds := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, k := range keys {
		binds[i] = fmt.Sprintf("$%d", i+1)
		args[i] = row[k]
	}
	sql := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING *;",
		table, strings.Join(keys, ", "), strings.Join(binds, ", "))
	return Query{SQL: sql, Args: args}
}

// Update builds an UPDATE ... RETURNING * statement. Change values are bound
// at $1..$m and condition values continue at $m+1..$m+n; both clauses share
// one bind namespace, so the condition is rendered with a binding offset.
func Update(table string, opts UpdateOptions) Query {
	keys := sortedKeys(opts.Changes)
	sets := make([]string, len(keys))
	args := make([]any, 0, len(keys)+len(opts.Condition))
	for i, k := range keys {
		sets[i] = fmt.Sprintf("%s=$%d", k, i+1)
		args = append(args, opts.Changes[k])
	}

	where, condArgs := condition(opts.Condition, len(keys))
	args = append(args, condArgs...)

	sql := assemble(
		fmt.Sprintf("UPDATE %s SET %s", table, strings.Join(sets, ", ")),
		where,
		"RETURNING *",
	)
	return Query{SQL: sql, Args: args}
}

// Delete builds a DELETE ... RETURNING * statement. An empty condition
// deletes the whole table; guarding against an unintended empty condition is
// the caller's responsibility.
func Delete(table string, cond Condition) Query {
	where, args := condition(cond, 0)
	sql := assemble("DELETE FROM "+table, where, "RETURNING *")
	return Query{SQL: sql, Args: args}
}
