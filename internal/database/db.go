package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/puppylog/pawbot/internal/cache"
	"github.com/puppylog/pawbot/internal/retry"
)

// DB layers typed member/task/reminder operations over a RowStore, adding
// retry with backoff, a bounded read cache, input validation, and
// best-effort audit history. It exclusively owns cache invalidation
// relative to mutations.
type DB struct {
	store  RowStore
	cache  *cache.Cache
	policy retry.Policy
	// pingPolicy uses a higher attempt ceiling: TestConnection doubles as
	// the primary dependency health signal.
	pingPolicy retry.Policy

	now func() time.Time

	// historyErrs receives failures from fire-and-forget history writes.
	// Optional; sends never block.
	historyErrs chan error
}

// Config assembles a DB. Zero values fall back to defaults so tests can
// control expiry windows and retry ceilings deterministically.
type Config struct {
	Store         RowStore
	Cache         *cache.Cache
	Retry         retry.Policy
	Clock         func() time.Time
	HistoryErrors chan error
}

// New creates the data access component.
func New(cfg Config) *DB {
	if cfg.Cache == nil {
		cfg.Cache = cache.New()
	}
	if cfg.Retry.MaxAttempts == 0 {
		cfg.Retry = retry.DefaultPolicy()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	ping := cfg.Retry
	ping.MaxAttempts = 5
	return &DB{
		store:       cfg.Store,
		cache:       cfg.Cache,
		policy:      cfg.Retry,
		pingPolicy:  ping,
		now:         cfg.Clock,
		historyErrs: cfg.HistoryErrors,
	}
}

// Cache exposes the read cache for diagnostics endpoints.
func (db *DB) Cache() *cache.Cache { return db.cache }

func (db *DB) nowISO() string {
	return db.now().UTC().Format(time.RFC3339)
}

// Today returns the current task date in the fixed UTC+8 offset.
func (db *DB) Today() string {
	return DateOf(db.now())
}

func decodeRows[T any](data []byte) ([]T, error) {
	var rows []T
	if len(data) == 0 {
		return nil, nil
	}
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode rows: %w", err)
	}
	return rows, nil
}

// ==========================================================================
// Members
// ==========================================================================

// UpsertMember inserts or updates a member by its unique line_id.
func (db *DB) UpsertMember(ctx context.Context, m *Member) (*Member, error) {
	var missing []string
	if m == nil || m.LineID == "" {
		missing = append(missing, "line_id")
	}
	if m == nil || m.MemberID == "" {
		missing = append(missing, "member_id")
	}
	if len(missing) > 0 {
		return nil, &ValidationError{Message: "member is missing required fields", Fields: missing}
	}

	m.UpdatedAt = db.nowISO()
	if m.CreatedAt == "" {
		m.CreatedAt = m.UpdatedAt
	}

	data, err := retry.Do(ctx, "upsertMember", db.policy, func() ([]byte, error) {
		return db.store.Upsert(ctx, "members", m, "line_id")
	})
	if err != nil {
		return nil, err
	}
	rows, err := decodeRows[Member](data)
	if err != nil {
		return nil, err
	}

	db.cache.Invalidate(m.LineID)
	db.cache.Invalidate(m.MemberID)

	if len(rows) == 0 {
		return m, nil
	}
	return &rows[0], nil
}

// GetMemberByLineID is a cached read. A missing row is a successful result
// with a nil member, not an error.
func (db *DB) GetMemberByLineID(ctx context.Context, lineID string) (*Member, error) {
	key := cache.Key("getMemberByLineId", map[string]string{"lineId": lineID})
	if v, ok := db.cache.Get(key); ok {
		return v.(*Member), nil
	}

	data, err := retry.Do(ctx, "getMemberByLineId", db.policy, func() ([]byte, error) {
		return db.store.Select(ctx, "members", Query{
			Filters: []Filter{Eq("line_id", lineID)},
			Limit:   1,
		})
	})
	if err != nil {
		return nil, err
	}
	rows, err := decodeRows[Member](data)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	member := &rows[0]
	db.cache.Set(key, member)
	return member, nil
}

// GetMemberByID is the cached surrogate-id variant of GetMemberByLineID.
func (db *DB) GetMemberByID(ctx context.Context, memberID string) (*Member, error) {
	key := cache.Key("getMemberById", map[string]string{"memberId": memberID})
	if v, ok := db.cache.Get(key); ok {
		return v.(*Member), nil
	}

	data, err := retry.Do(ctx, "getMemberById", db.policy, func() ([]byte, error) {
		return db.store.Select(ctx, "members", Query{
			Filters: []Filter{Eq("member_id", memberID)},
			Limit:   1,
		})
	})
	if err != nil {
		return nil, err
	}
	rows, err := decodeRows[Member](data)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	member := &rows[0]
	db.cache.Set(key, member)
	return member, nil
}

// UpdateMemberStats partially updates a member's aggregate counters.
func (db *DB) UpdateMemberStats(ctx context.Context, memberID string, stats *MemberStats) (*Member, error) {
	if memberID == "" {
		return nil, &ValidationError{Message: "member stats update is missing required fields", Fields: []string{"member_id"}}
	}

	data, err := retry.Do(ctx, "updateMemberStats", db.policy, func() ([]byte, error) {
		return db.store.Update(ctx, "members",
			[]Filter{Eq("member_id", memberID)},
			map[string]any{"stats": stats, "updated_at": db.nowISO()})
	})
	if err != nil {
		return nil, err
	}
	rows, err := decodeRows[Member](data)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	db.cache.Invalidate(rows[0].LineID)
	db.cache.Invalidate(memberID)
	return &rows[0], nil
}

// SetMemberActive soft-deletes (or restores) a member. Rows are never
// physically removed.
func (db *DB) SetMemberActive(ctx context.Context, memberID string, active bool) (*Member, error) {
	changes := map[string]any{
		"is_active":  active,
		"updated_at": db.nowISO(),
	}
	if active {
		changes["deactivated_at"] = nil
	} else {
		changes["deactivated_at"] = db.nowISO()
	}

	data, err := retry.Do(ctx, "setMemberActive", db.policy, func() ([]byte, error) {
		return db.store.Update(ctx, "members", []Filter{Eq("member_id", memberID)}, changes)
	})
	if err != nil {
		return nil, err
	}
	rows, err := decodeRows[Member](data)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}

	db.cache.Invalidate(rows[0].LineID)
	db.cache.Invalidate(memberID)
	return &rows[0], nil
}

// LogMemberLogin appends a login record and refreshes the member's
// last-login bookkeeping. The append and the member update retry
// independently: replaying them as one closure would re-insert the login
// row into the append-only log whenever the update hiccups.
func (db *DB) LogMemberLogin(ctx context.Context, memberID string, entry *LoginLog) error {
	if memberID == "" {
		return &ValidationError{Message: "login log is missing required fields", Fields: []string{"member_id"}}
	}

	member, err := db.GetMemberByID(ctx, memberID)
	if err != nil {
		return err
	}
	if member == nil {
		return ErrMemberNotFound
	}

	if entry == nil {
		entry = &LoginLog{}
	}
	entry.MemberID = memberID
	entry.CreatedAt = db.nowISO()

	if _, err := retry.Do(ctx, "logMemberLogin", db.policy, func() ([]byte, error) {
		return db.store.Insert(ctx, "member_login_logs", entry)
	}); err != nil {
		return err
	}

	if _, err := retry.Do(ctx, "logMemberLogin", db.policy, func() ([]byte, error) {
		return db.store.Update(ctx, "members",
			[]Filter{Eq("member_id", memberID)},
			map[string]any{
				"last_login_at": db.nowISO(),
				"login_count":   member.LoginCount + 1,
			})
	}); err != nil {
		return err
	}

	db.cache.Invalidate(member.LineID)
	db.cache.Invalidate(memberID)
	return nil
}

// ==========================================================================
// Tasks
// ==========================================================================

// TaskFilter narrows GetUserTasks. Filters compose conjunctively.
type TaskFilter struct {
	Date      string `json:"date,omitempty"`
	Status    string `json:"status,omitempty"`
	Completed *bool  `json:"completed,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

// CreateTask validates and persists one task, generating a
// collision-resistant task_id when absent. The audit-history write is
// best-effort.
func (db *DB) CreateTask(ctx context.Context, t *Task) (*Task, error) {
	if err := validateTask(t); err != nil {
		return nil, err
	}

	if t.TaskID == "" {
		t.TaskID = db.generateTaskID()
	}
	if t.Status == "" {
		t.Status = StatusPending
	}
	now := db.nowISO()
	t.CreatedAt = now
	t.UpdatedAt = now

	data, err := retry.Do(ctx, "createTask", db.policy, func() ([]byte, error) {
		return db.store.Insert(ctx, "tasks", t)
	})
	if err != nil {
		return nil, err
	}
	rows, err := decodeRows[Task](data)
	if err != nil {
		return nil, err
	}

	created := t
	if len(rows) > 0 {
		created = &rows[0]
	}

	db.cache.Invalidate(t.LineUserID)
	db.logTaskHistory(created.ID, "", "created", created)

	return created, nil
}

// CreateTasksBatch validates every element up front: if any task is missing
// required fields the whole batch fails and no row is inserted.
func (db *DB) CreateTasksBatch(ctx context.Context, tasks []*Task) ([]*Task, error) {
	var invalid []string
	for i, t := range tasks {
		if err := validateTask(t); err != nil {
			var verr *ValidationError
			if !errors.As(err, &verr) {
				return nil, err
			}
			invalid = append(invalid, fmt.Sprintf("%d: %s", i, strings.Join(verr.Fields, "/")))
		}
	}
	if len(invalid) > 0 {
		return nil, &ValidationError{
			Message: fmt.Sprintf("%d task(s) are missing required fields", len(invalid)),
			Fields:  invalid,
		}
	}

	now := db.nowISO()
	for _, t := range tasks {
		if t.TaskID == "" {
			t.TaskID = db.generateTaskID()
		}
		if t.Status == "" {
			t.Status = StatusPending
		}
		t.CreatedAt = now
		t.UpdatedAt = now
	}

	data, err := retry.Do(ctx, "createTasksBatch", db.policy, func() ([]byte, error) {
		return db.store.Insert(ctx, "tasks", tasks)
	})
	if err != nil {
		return nil, err
	}
	rows, err := decodeRows[Task](data)
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	for _, t := range tasks {
		if !seen[t.LineUserID] {
			db.cache.Invalidate(t.LineUserID)
			seen[t.LineUserID] = true
		}
	}

	out := make([]*Task, len(rows))
	for i := range rows {
		out[i] = &rows[i]
	}
	return out, nil
}

// GetUserTasks is a cached read of one user's tasks, newest-created first.
func (db *DB) GetUserTasks(ctx context.Context, userID string, f TaskFilter) ([]*Task, error) {
	key := cache.Key("getUserTasks", struct {
		UserID string     `json:"lineUserId"`
		Filter TaskFilter `json:"options"`
	}{userID, f})
	if v, ok := db.cache.Get(key); ok {
		return v.([]*Task), nil
	}

	q := Query{
		Filters: []Filter{Eq("line_user_id", userID)},
		Order:   []Order{{Column: "created_at"}},
		Limit:   f.Limit,
	}
	if f.Date != "" {
		q.Filters = append(q.Filters, Eq("task_date", f.Date))
	}
	if f.Status != "" {
		q.Filters = append(q.Filters, Eq("status", f.Status))
	}
	if f.Completed != nil {
		q.Filters = append(q.Filters, Eq("completed", *f.Completed))
	}

	data, err := retry.Do(ctx, "getUserTasks", db.policy, func() ([]byte, error) {
		return db.store.Select(ctx, "tasks", q)
	})
	if err != nil {
		return nil, err
	}
	rows, err := decodeRows[Task](data)
	if err != nil {
		return nil, err
	}

	out := make([]*Task, len(rows))
	for i := range rows {
		out[i] = &rows[i]
	}
	db.cache.Set(key, out)
	return out, nil
}

// OptimizedFilter narrows GetUserTasksOptimized. DateStart/DateEnd form an
// inclusive range used when Date is empty.
type OptimizedFilter struct {
	Columns   string
	Date      string
	DateStart string
	DateEnd   string
	Completed *bool
	Limit     int
}

// GetUserTasksOptimized reads a reduced projection ordered by task date then
// creation time, both descending.
func (db *DB) GetUserTasksOptimized(ctx context.Context, userID string, f OptimizedFilter) ([]*Task, error) {
	columns := f.Columns
	if columns == "" {
		columns = "task_id,title,completed,task_date,priority,created_at"
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	q := Query{
		Columns: columns,
		Filters: []Filter{Eq("line_user_id", userID)},
		Order:   []Order{{Column: "task_date"}, {Column: "created_at"}},
		Limit:   limit,
	}
	switch {
	case f.Date != "":
		q.Filters = append(q.Filters, Eq("task_date", f.Date))
	case f.DateStart != "" && f.DateEnd != "":
		q.Filters = append(q.Filters, Gte("task_date", f.DateStart), Lte("task_date", f.DateEnd))
	}
	if f.Completed != nil {
		q.Filters = append(q.Filters, Eq("completed", *f.Completed))
	}

	data, err := retry.Do(ctx, "getUserTasksOptimized", db.policy, func() ([]byte, error) {
		return db.store.Select(ctx, "tasks", q)
	})
	if err != nil {
		return nil, err
	}
	rows, err := decodeRows[Task](data)
	if err != nil {
		return nil, err
	}
	out := make([]*Task, len(rows))
	for i := range rows {
		out[i] = &rows[i]
	}
	return out, nil
}

// ToggleTaskComplete flips a task's completion flag, keeping the status
// field and completed_at timestamp consistent with the new flag.
func (db *DB) ToggleTaskComplete(ctx context.Context, taskID string) (*Task, error) {
	data, err := retry.Do(ctx, "toggleTaskComplete", db.policy, func() ([]byte, error) {
		return db.store.Select(ctx, "tasks", Query{
			Columns: "completed,line_user_id",
			Filters: []Filter{Eq("task_id", taskID)},
			Limit:   1,
		})
	})
	if err != nil {
		return nil, err
	}
	rows, err := decodeRows[Task](data)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrTaskNotFound
	}

	completed := !rows[0].Completed
	changes := map[string]any{
		"completed":  completed,
		"updated_at": db.nowISO(),
	}
	if completed {
		changes["status"] = StatusCompleted
		changes["completed_at"] = db.nowISO()
	} else {
		changes["status"] = StatusPending
		changes["completed_at"] = nil
	}

	data, err = retry.Do(ctx, "toggleTaskComplete", db.policy, func() ([]byte, error) {
		return db.store.Update(ctx, "tasks", []Filter{Eq("task_id", taskID)}, changes)
	})
	if err != nil {
		return nil, err
	}
	updated, err := decodeRows[Task](data)
	if err != nil {
		return nil, err
	}
	if len(updated) == 0 {
		return nil, ErrTaskNotFound
	}

	db.cache.Invalidate(rows[0].LineUserID)
	return &updated[0], nil
}

// UpdateTask applies a partial update and writes best-effort audit history.
func (db *DB) UpdateTask(ctx context.Context, taskID string, updates map[string]any) (*Task, error) {
	changes := make(map[string]any, len(updates)+1)
	for k, v := range updates {
		changes[k] = v
	}
	changes["updated_at"] = db.nowISO()

	data, err := retry.Do(ctx, "updateTask", db.policy, func() ([]byte, error) {
		return db.store.Update(ctx, "tasks", []Filter{Eq("task_id", taskID)}, changes)
	})
	if err != nil {
		return nil, err
	}
	rows, err := decodeRows[Task](data)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrTaskNotFound
	}

	task := &rows[0]
	db.cache.Invalidate(task.LineUserID)
	db.logTaskHistory(task.ID, "", "updated", updates)
	return task, nil
}

// DeleteTask removes a task permanently.
func (db *DB) DeleteTask(ctx context.Context, taskID string) error {
	data, err := retry.Do(ctx, "deleteTask", db.policy, func() ([]byte, error) {
		return db.store.Delete(ctx, "tasks", []Filter{Eq("task_id", taskID)})
	})
	if err != nil {
		return err
	}
	rows, err := decodeRows[Task](data)
	if err != nil {
		return err
	}
	if len(rows) > 0 {
		db.cache.Invalidate(rows[0].LineUserID)
	}
	return nil
}

// ClearTodayTasks deletes every task the user has dated today and returns
// the number removed.
func (db *DB) ClearTodayTasks(ctx context.Context, userID string) (int, error) {
	today := db.Today()

	data, err := retry.Do(ctx, "clearTodayTasks", db.policy, func() ([]byte, error) {
		return db.store.Delete(ctx, "tasks", []Filter{
			Eq("line_user_id", userID),
			Eq("task_date", today),
		})
	})
	if err != nil {
		return 0, err
	}
	rows, err := decodeRows[Task](data)
	if err != nil {
		return 0, err
	}

	db.cache.Invalidate(userID)
	return len(rows), nil
}

// GetMultiDayTasks reads an inclusive date range ordered by date ascending
// then creation descending.
func (db *DB) GetMultiDayTasks(ctx context.Context, userID, startDate, endDate string) ([]*Task, error) {
	data, err := retry.Do(ctx, "getMultiDayTasks", db.policy, func() ([]byte, error) {
		return db.store.Select(ctx, "tasks", Query{
			Filters: []Filter{
				Eq("line_user_id", userID),
				Gte("task_date", startDate),
				Lte("task_date", endDate),
			},
			Order: []Order{{Column: "task_date", Ascending: true}, {Column: "created_at"}},
		})
	})
	if err != nil {
		return nil, err
	}
	rows, err := decodeRows[Task](data)
	if err != nil {
		return nil, err
	}
	out := make([]*Task, len(rows))
	for i := range rows {
		out[i] = &rows[i]
	}
	return out, nil
}

// ==========================================================================
// Reminders
// ==========================================================================

// CreateTaskReminder schedules a notification for a task.
func (db *DB) CreateTaskReminder(ctx context.Context, taskID, memberID, reminderTime string) (*Reminder, error) {
	if taskID == "" || reminderTime == "" {
		return nil, &ValidationError{Message: "reminder is missing required fields", Fields: []string{"task_id", "reminder_time"}}
	}
	reminder := &Reminder{
		TaskID:       taskID,
		MemberID:     memberID,
		ReminderTime: reminderTime,
		CreatedAt:    db.nowISO(),
	}

	data, err := retry.Do(ctx, "createTaskReminder", db.policy, func() ([]byte, error) {
		return db.store.Insert(ctx, "task_reminders", reminder)
	})
	if err != nil {
		return nil, err
	}
	rows, err := decodeRows[Reminder](data)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return reminder, nil
	}
	return &rows[0], nil
}

// GetPendingReminders returns unsent reminders due now or earlier, joined
// with the minimal task fields needed to compose the notification.
func (db *DB) GetPendingReminders(ctx context.Context) ([]*PendingReminder, error) {
	data, err := retry.Do(ctx, "getPendingReminders", db.policy, func() ([]byte, error) {
		return db.store.Select(ctx, "task_reminders", Query{
			Filters: []Filter{
				Eq("is_sent", false),
				Lte("reminder_time", db.nowISO()),
			},
		})
	})
	if err != nil {
		return nil, err
	}
	reminders, err := decodeRows[Reminder](data)
	if err != nil {
		return nil, err
	}

	out := make([]*PendingReminder, 0, len(reminders))
	for i := range reminders {
		pending := &PendingReminder{Reminder: reminders[i]}
		taskData, err := db.store.Select(ctx, "tasks", Query{
			Columns: "title,description,task_time,line_user_id",
			Filters: []Filter{Eq("task_id", reminders[i].TaskID)},
			Limit:   1,
		})
		if err == nil {
			if tasks, derr := decodeRows[Task](taskData); derr == nil && len(tasks) > 0 {
				pending.TaskTitle = tasks[0].Title
				pending.TaskDescription = tasks[0].Description
				pending.TaskTime = tasks[0].TaskTime
				pending.LineUserID = tasks[0].LineUserID
			}
		}
		out = append(out, pending)
	}
	return out, nil
}

// MarkReminderSent flips the sent flag, recording the delivery error when
// the notification push failed.
func (db *DB) MarkReminderSent(ctx context.Context, reminderID int64, errorMessage string) error {
	changes := map[string]any{
		"is_sent": true,
		"sent_at": db.nowISO(),
	}
	if errorMessage != "" {
		changes["error_message"] = errorMessage
	}

	data, err := retry.Do(ctx, "markReminderSent", db.policy, func() ([]byte, error) {
		return db.store.Update(ctx, "task_reminders", []Filter{Eq("id", reminderID)}, changes)
	})
	if err != nil {
		return err
	}
	rows, err := decodeRows[Reminder](data)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return ErrReminderNotFound
	}
	return nil
}

// ==========================================================================
// Stats and health
// ==========================================================================

// GetSystemStats returns cached aggregate member/task statistics.
func (db *DB) GetSystemStats(ctx context.Context) (*SystemStats, error) {
	key := cache.Key("getSystemStats", map[string]string{})
	if v, ok := db.cache.Get(key); ok {
		return v.(*SystemStats), nil
	}

	memberData, err := retry.Do(ctx, "getSystemStats", db.policy, func() ([]byte, error) {
		return db.store.Select(ctx, "members", Query{
			Columns: "member_level",
			Filters: []Filter{Eq("is_active", true)},
		})
	})
	if err != nil {
		return nil, err
	}
	members, err := decodeRows[Member](memberData)
	if err != nil {
		return nil, err
	}

	taskData, err := retry.Do(ctx, "getSystemStats", db.policy, func() ([]byte, error) {
		return db.store.Select(ctx, "tasks", Query{Columns: "status,completed"})
	})
	if err != nil {
		return nil, err
	}
	tasks, err := decodeRows[Task](taskData)
	if err != nil {
		return nil, err
	}

	stats := &SystemStats{
		TotalMembers:   len(members),
		MembersByLevel: map[string]int{"basic": 0, "premium": 0, "vip": 0},
		TotalTasks:     len(tasks),
	}
	for _, m := range members {
		if _, ok := stats.MembersByLevel[m.MemberLevel]; ok {
			stats.MembersByLevel[m.MemberLevel]++
		}
	}
	for _, t := range tasks {
		if t.Completed {
			stats.CompletedTasks++
		}
	}
	stats.PendingTasks = stats.TotalTasks - stats.CompletedTasks
	if stats.TotalTasks > 0 {
		stats.CompletionRate = int(math.Round(float64(stats.CompletedTasks) / float64(stats.TotalTasks) * 100))
	}

	db.cache.Set(key, stats)
	return stats, nil
}

// TestConnection performs a lightweight read as a liveness probe.
func (db *DB) TestConnection(ctx context.Context) error {
	_, err := retry.Do(ctx, "testConnection", db.pingPolicy, func() ([]byte, error) {
		return db.store.Select(ctx, "system_settings", Query{Columns: "key", Limit: 1})
	})
	return err
}

// TableCount reports the row count of one table; used by the diagnostics
// endpoint.
func (db *DB) TableCount(ctx context.Context, table string) (int, error) {
	return db.store.Count(ctx, table, nil)
}

// ==========================================================================
// Internals
// ==========================================================================

func validateTask(t *Task) error {
	var missing []string
	if t == nil || t.LineUserID == "" {
		missing = append(missing, "line_user_id")
	}
	if t == nil || t.Title == "" {
		missing = append(missing, "title")
	}
	if len(missing) > 0 {
		return &ValidationError{Message: "task is missing required fields", Fields: missing}
	}
	return nil
}

func (db *DB) generateTaskID() string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:13]
	return fmt.Sprintf("task_%d_%s", db.now().UnixMilli(), suffix)
}

// logTaskHistory appends an audit record in the background. Failures are
// logged and offered to the observer channel; they never fail the parent
// operation.
func (db *DB) logTaskHistory(taskID int64, memberID, action string, changes any) {
	entry := &HistoryEntry{
		TaskID:    taskID,
		MemberID:  memberID,
		Action:    action,
		Changes:   changes,
		CreatedBy: "system",
		CreatedAt: db.nowISO(),
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if _, err := db.store.Insert(ctx, "task_history", entry); err != nil {
			logrus.WithError(err).WithField("action", action).Warn("task history write failed")
			if db.historyErrs != nil {
				select {
				case db.historyErrs <- err:
				default:
				}
			}
		}
	}()
}
