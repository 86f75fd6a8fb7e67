package database

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MemoryStore implements RowStore with process-local maps. It exists for
// development and tests; nothing persists across restarts.
type MemoryStore struct {
	mu     sync.RWMutex
	tables map[string][]map[string]any
	nextID int64
}

// NewMemoryStore creates an empty in-memory row store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{tables: make(map[string][]map[string]any), nextID: 1}
}

func (m *MemoryStore) Select(_ context.Context, table string, q Query) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rows := m.match(table, q.Filters)
	sortRows(rows, q.Order)
	if q.Limit > 0 && len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}
	if q.Columns != "" && q.Columns != "*" {
		rows = project(rows, q.Columns)
	}
	return json.Marshal(rows)
}

func (m *MemoryStore) Insert(_ context.Context, table string, rows any) ([]byte, error) {
	normalized, err := normalizeRows(rows)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, row := range normalized {
		if _, ok := row["id"]; !ok {
			row["id"] = m.nextID
			m.nextID++
		}
		m.tables[table] = append(m.tables[table], row)
	}
	return json.Marshal(normalized)
}

func (m *MemoryStore) Upsert(_ context.Context, table string, row any, onConflict string) ([]byte, error) {
	normalized, err := normalizeRows(row)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	result := make([]map[string]any, 0, len(normalized))
	for _, incoming := range normalized {
		existing := m.findByKey(table, onConflict, incoming[onConflict])
		if existing == nil {
			if _, ok := incoming["id"]; !ok {
				incoming["id"] = m.nextID
				m.nextID++
			}
			m.tables[table] = append(m.tables[table], incoming)
			result = append(result, incoming)
			continue
		}
		for k, v := range incoming {
			existing[k] = v
		}
		result = append(result, existing)
	}
	return json.Marshal(result)
}

func (m *MemoryStore) Update(_ context.Context, table string, filters []Filter, changes map[string]any) ([]byte, error) {
	normalized, err := normalizeRows(changes)
	if err != nil {
		return nil, err
	}
	applied := normalized[0]

	m.mu.Lock()
	defer m.mu.Unlock()

	updated := m.match(table, filters)
	for _, row := range updated {
		for k, v := range applied {
			if v == nil {
				delete(row, k)
				continue
			}
			row[k] = v
		}
	}
	return json.Marshal(updated)
}

func (m *MemoryStore) Delete(_ context.Context, table string, filters []Filter) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var kept []map[string]any
	var deleted []map[string]any
	for _, row := range m.tables[table] {
		if matches(row, filters) {
			deleted = append(deleted, row)
			continue
		}
		kept = append(kept, row)
	}
	m.tables[table] = kept
	return json.Marshal(deleted)
}

func (m *MemoryStore) Count(_ context.Context, table string, filters []Filter) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.match(table, filters)), nil
}

// match returns the live row maps so Update can mutate in place.
func (m *MemoryStore) match(table string, filters []Filter) []map[string]any {
	var out []map[string]any
	for _, row := range m.tables[table] {
		if matches(row, filters) {
			out = append(out, row)
		}
	}
	return out
}

func (m *MemoryStore) findByKey(table, column string, value any) map[string]any {
	for _, row := range m.tables[table] {
		if compare(row[column], value) == 0 {
			return row
		}
	}
	return nil
}

// normalizeRows round-trips arbitrary structs through JSON so the stored
// representation matches what the hosted store would hand back.
func normalizeRows(rows any) ([]map[string]any, error) {
	data, err := json.Marshal(rows)
	if err != nil {
		return nil, fmt.Errorf("marshal rows: %w", err)
	}

	if len(data) > 0 && data[0] == '[' {
		var many []map[string]any
		if err := json.Unmarshal(data, &many); err != nil {
			return nil, fmt.Errorf("unmarshal rows: %w", err)
		}
		return many, nil
	}

	var one map[string]any
	if err := json.Unmarshal(data, &one); err != nil {
		return nil, fmt.Errorf("unmarshal row: %w", err)
	}
	return []map[string]any{one}, nil
}

func matches(row map[string]any, filters []Filter) bool {
	for _, f := range filters {
		if !matchFilter(row, f) {
			return false
		}
	}
	return true
}

func matchFilter(row map[string]any, f Filter) bool {
	have, ok := row[f.Column]
	switch f.Op {
	case "eq":
		return ok && compare(have, f.Value) == 0
	case "neq":
		return !ok || compare(have, f.Value) != 0
	case "gt":
		return ok && compare(have, f.Value) > 0
	case "gte":
		return ok && compare(have, f.Value) >= 0
	case "lt":
		return ok && compare(have, f.Value) < 0
	case "lte":
		return ok && compare(have, f.Value) <= 0
	case "is":
		if formatValue(f.Value) == "null" {
			return !ok || have == nil
		}
		return ok && compare(have, f.Value) == 0
	case "in":
		values, isSlice := f.Value.([]any)
		if !isSlice {
			return false
		}
		for _, v := range values {
			if ok && compare(have, v) == 0 {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// compare orders JSON scalar values. Mixed types fall back to their string
// forms, which keeps ISO dates and timestamps ordering correctly.
func compare(a, b any) int {
	af, aIsNum := toFloat(a)
	bf, bIsNum := toFloat(b)
	if aIsNum && bIsNum {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	return strings.Compare(fmt.Sprintf("%v", a), fmt.Sprintf("%v", b))
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case int64:
		return float64(t), true
	default:
		return 0, false
	}
}

func sortRows(rows []map[string]any, order []Order) {
	if len(order) == 0 {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, o := range order {
			c := compare(rows[i][o.Column], rows[j][o.Column])
			if c == 0 {
				continue
			}
			if o.Ascending {
				return c < 0
			}
			return c > 0
		}
		return false
	})
}

func project(rows []map[string]any, columns string) []map[string]any {
	fields := strings.Split(columns, ",")
	out := make([]map[string]any, len(rows))
	for i, row := range rows {
		slim := make(map[string]any, len(fields))
		for _, f := range fields {
			f = strings.TrimSpace(f)
			if v, ok := row[f]; ok {
				slim[f] = v
			}
		}
		out[i] = slim
	}
	return out
}
