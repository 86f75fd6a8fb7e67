package database

import (
	"context"
	"encoding/json"
	"testing"
)

func selectRows(t *testing.T, store *MemoryStore, table string, q Query) []map[string]any {
	t.Helper()
	data, err := store.Select(context.Background(), table, q)
	if err != nil {
		t.Fatalf("Select: %v", err)
	}
	var rows []map[string]any
	if err := json.Unmarshal(data, &rows); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return rows
}

func TestMemoryStore_InsertAssignsIDs(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	data, err := store.Insert(ctx, "tasks", []map[string]any{
		{"title": "a"},
		{"title": "b"},
	})
	if err != nil {
		t.Fatalf("Insert: %v", err)
	}

	var rows []map[string]any
	if err := json.Unmarshal(data, &rows); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("inserted %d rows, want 2", len(rows))
	}
	if rows[0]["id"] == nil || rows[1]["id"] == nil {
		t.Fatal("insert should assign ids")
	}
	if rows[0]["id"] == rows[1]["id"] {
		t.Fatal("ids should be unique")
	}
}

func TestMemoryStore_Filters(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.Insert(ctx, "tasks", []map[string]any{
		{"task_id": "t1", "task_date": "2026-03-10", "completed": false},
		{"task_id": "t2", "task_date": "2026-03-14", "completed": true},
		{"task_id": "t3", "task_date": "2026-03-20", "completed": false},
	}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	tests := []struct {
		name    string
		filters []Filter
		want    []string
	}{
		{"eq", []Filter{Eq("task_id", "t2")}, []string{"t2"}},
		{"eq bool", []Filter{Eq("completed", false)}, []string{"t1", "t3"}},
		{"gte date", []Filter{Gte("task_date", "2026-03-14")}, []string{"t2", "t3"}},
		{"lte date", []Filter{Lte("task_date", "2026-03-14")}, []string{"t1", "t2"}},
		{"range", []Filter{Gte("task_date", "2026-03-11"), Lte("task_date", "2026-03-15")}, []string{"t2"}},
		{"no match", []Filter{Eq("task_id", "nope")}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows := selectRows(t, store, "tasks", Query{Filters: tt.filters})
			if len(rows) != len(tt.want) {
				t.Fatalf("got %d rows, want %d", len(rows), len(tt.want))
			}
			for i, id := range tt.want {
				if rows[i]["task_id"] != id {
					t.Fatalf("row %d = %v, want %s", i, rows[i]["task_id"], id)
				}
			}
		})
	}
}

func TestMemoryStore_OrderAndLimit(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.Insert(ctx, "tasks", []map[string]any{
		{"task_id": "t1", "created_at": "2026-03-14T08:00:00Z"},
		{"task_id": "t2", "created_at": "2026-03-14T10:00:00Z"},
		{"task_id": "t3", "created_at": "2026-03-14T09:00:00Z"},
	}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	rows := selectRows(t, store, "tasks", Query{
		Order: []Order{{Column: "created_at"}},
		Limit: 2,
	})
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	if rows[0]["task_id"] != "t2" || rows[1]["task_id"] != "t3" {
		t.Fatalf("order = [%v, %v], want [t2, t3]", rows[0]["task_id"], rows[1]["task_id"])
	}
}

func TestMemoryStore_Projection(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.Insert(ctx, "tasks", map[string]any{
		"task_id": "t1", "title": "a", "description": "long text",
	}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	rows := selectRows(t, store, "tasks", Query{Columns: "task_id,title"})
	if _, ok := rows[0]["description"]; ok {
		t.Fatal("projection should drop unselected columns")
	}
	if rows[0]["task_id"] != "t1" || rows[0]["title"] != "a" {
		t.Fatalf("projected row = %v", rows[0])
	}
}

func TestMemoryStore_UpsertMergesOnConflict(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.Upsert(ctx, "members", map[string]any{"line_id": "U1", "display_name": "old"}, "line_id"); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if _, err := store.Upsert(ctx, "members", map[string]any{"line_id": "U1", "display_name": "new"}, "line_id"); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	rows := selectRows(t, store, "members", Query{})
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1 after conflicting upsert", len(rows))
	}
	if rows[0]["display_name"] != "new" {
		t.Fatalf("display_name = %v, want merged value", rows[0]["display_name"])
	}
}

func TestMemoryStore_UpdateNilDeletesKey(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.Insert(ctx, "tasks", map[string]any{"task_id": "t1", "completed_at": "2026-03-14T10:00:00Z"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := store.Update(ctx, "tasks", []Filter{Eq("task_id", "t1")}, map[string]any{"completed_at": nil}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	rows := selectRows(t, store, "tasks", Query{})
	if _, ok := rows[0]["completed_at"]; ok {
		t.Fatal("nil change should clear the column")
	}
}

func TestMemoryStore_DeleteReturnsRemovedRows(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.Insert(ctx, "tasks", []map[string]any{
		{"task_id": "t1", "line_user_id": "U1"},
		{"task_id": "t2", "line_user_id": "U2"},
	}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	data, err := store.Delete(ctx, "tasks", []Filter{Eq("line_user_id", "U1")})
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	var deleted []map[string]any
	if err := json.Unmarshal(data, &deleted); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(deleted) != 1 || deleted[0]["task_id"] != "t1" {
		t.Fatalf("deleted = %v, want [t1]", deleted)
	}

	if n, _ := store.Count(ctx, "tasks", nil); n != 1 {
		t.Fatalf("Count = %d, want 1", n)
	}
}
