// Package database provides typed data access over a black-box row store.
// The RowStore capability has two implementations: a Supabase PostgREST
// client for production and an in-memory store for development and tests.
// The typed operations layered on top add retry, caching, validation, and
// best-effort audit history.
package database

import (
	"context"
	"fmt"
	"time"
)

// Filter restricts rows by a single column comparison.
type Filter struct {
	Column string
	Op     string // eq, neq, gt, gte, lt, lte, is, in
	Value  any
}

func Eq(column string, value any) Filter  { return Filter{Column: column, Op: "eq", Value: value} }
func Gte(column string, value any) Filter { return Filter{Column: column, Op: "gte", Value: value} }
func Lte(column string, value any) Filter { return Filter{Column: column, Op: "lte", Value: value} }

// Order sorts results by one column.
type Order struct {
	Column    string
	Ascending bool
}

// Query describes a read against one table. Filters compose conjunctively.
type Query struct {
	Columns string // comma-separated projection, empty selects all columns
	Filters []Filter
	Order   []Order
	Limit   int
}

// RowStore is the generic capability set over the hosted row store. Row data
// crosses the boundary as JSON: Select and the mutating calls return the
// affected rows encoded as a JSON array.
type RowStore interface {
	Select(ctx context.Context, table string, q Query) ([]byte, error)
	Insert(ctx context.Context, table string, rows any) ([]byte, error)
	// Upsert inserts or updates by the natural key named in onConflict.
	Upsert(ctx context.Context, table string, row any, onConflict string) ([]byte, error)
	Update(ctx context.Context, table string, filters []Filter, changes map[string]any) ([]byte, error)
	Delete(ctx context.Context, table string, filters []Filter) ([]byte, error)
	Count(ctx context.Context, table string, filters []Filter) (int, error)
}

// Taipei is the fixed offset used for all task-date boundaries, regardless
// of server locale.
var Taipei = time.FixedZone("UTC+8", 8*60*60)

// DateOf formats t as a task date in the fixed UTC+8 offset.
func DateOf(t time.Time) string {
	return t.In(Taipei).Format("2006-01-02")
}

// formatValue renders a filter value for the wire.
func formatValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		if t {
			return "true"
		}
		return "false"
	case nil:
		return "null"
	default:
		return fmt.Sprintf("%v", t)
	}
}
