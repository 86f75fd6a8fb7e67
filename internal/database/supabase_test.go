package database

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func newStoreAgainst(t *testing.T, handler http.HandlerFunc) *SupabaseStore {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	store, err := NewSupabaseStore(SupabaseConfig{URL: server.URL, APIKey: "test-key"})
	if err != nil {
		t.Fatalf("NewSupabaseStore: %v", err)
	}
	return store
}

func TestNewSupabaseStore_Validation(t *testing.T) {
	if _, err := NewSupabaseStore(SupabaseConfig{APIKey: "k"}); err == nil {
		t.Fatal("missing URL should be rejected")
	}
	if _, err := NewSupabaseStore(SupabaseConfig{URL: "https://x"}); err == nil {
		t.Fatal("missing API key should be rejected")
	}
}

func TestSupabaseStore_SelectBuildsQuery(t *testing.T) {
	var gotPath, gotQuery string
	var gotHeaders http.Header
	store := newStoreAgainst(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		gotHeaders = r.Header
		w.Write([]byte(`[{"task_id":"t1"}]`))
	})

	completed := false
	_, err := store.Select(context.Background(), "tasks", Query{
		Columns: "task_id,title",
		Filters: []Filter{
			Eq("line_user_id", "U1"),
			Eq("completed", completed),
			Gte("task_date", "2026-03-01"),
		},
		Order: []Order{{Column: "task_date"}, {Column: "created_at", Ascending: true}},
		Limit: 5,
	})
	if err != nil {
		t.Fatalf("Select: %v", err)
	}

	if gotPath != "/rest/v1/tasks" {
		t.Fatalf("path = %q", gotPath)
	}
	for _, want := range []string{
		"select=task_id%2Ctitle",
		"line_user_id=eq.U1",
		"completed=eq.false",
		"task_date=gte.2026-03-01",
		"order=task_date.desc%2Ccreated_at.asc",
		"limit=5",
	} {
		if !strings.Contains(gotQuery, want) {
			t.Fatalf("query %q missing %q", gotQuery, want)
		}
	}
	if gotHeaders.Get("apikey") != "test-key" {
		t.Fatal("apikey header missing")
	}
	if gotHeaders.Get("Authorization") != "Bearer test-key" {
		t.Fatal("bearer header missing")
	}
}

func TestSupabaseStore_InsertAndUpsertHeaders(t *testing.T) {
	var prefers []string
	var conflicts []string
	store := newStoreAgainst(t, func(w http.ResponseWriter, r *http.Request) {
		prefers = append(prefers, r.Header.Get("Prefer"))
		conflicts = append(conflicts, r.URL.Query().Get("on_conflict"))
		w.Write([]byte(`[{"id":1}]`))
	})
	ctx := context.Background()

	if _, err := store.Insert(ctx, "tasks", map[string]any{"title": "a"}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if _, err := store.Upsert(ctx, "members", map[string]any{"line_id": "U1"}, "line_id"); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	if prefers[0] != "return=representation" {
		t.Fatalf("insert Prefer = %q", prefers[0])
	}
	if prefers[1] != "resolution=merge-duplicates,return=representation" {
		t.Fatalf("upsert Prefer = %q", prefers[1])
	}
	if conflicts[1] != "line_id" {
		t.Fatalf("on_conflict = %q", conflicts[1])
	}
}

func TestSupabaseStore_CountParsesContentRange(t *testing.T) {
	store := newStoreAgainst(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Prefer") != "count=exact" {
			t.Errorf("Prefer = %q, want count=exact", r.Header.Get("Prefer"))
		}
		w.Header().Set("Content-Range", "0-0/42")
		w.Write([]byte(`[]`))
	})

	n, err := store.Count(context.Background(), "tasks", nil)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 42 {
		t.Fatalf("Count = %d, want 42", n)
	}
}

func TestSupabaseStore_ErrorMapping(t *testing.T) {
	store := newStoreAgainst(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"code":"23505","message":"duplicate key value"}`))
	})

	_, err := store.Insert(context.Background(), "members", map[string]any{"line_id": "U1"})
	var serr *StoreError
	if !errors.As(err, &serr) {
		t.Fatalf("error %T should be *StoreError", err)
	}
	if serr.Status != http.StatusConflict || serr.Code != "23505" {
		t.Fatalf("StoreError = %+v", serr)
	}
	if serr.Message != "duplicate key value" {
		t.Fatalf("Message = %q", serr.Message)
	}
}
