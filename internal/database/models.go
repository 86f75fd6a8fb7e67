package database

// Member is one chat-platform identity. line_id is the natural key: one
// member per external identity.
type Member struct {
	ID            int64              `json:"id,omitempty"`
	MemberID      string             `json:"member_id"`
	LineID        string             `json:"line_id"`
	DisplayName   string             `json:"display_name,omitempty"`
	PictureURL    string             `json:"picture_url,omitempty"`
	StatusMessage string             `json:"status_message,omitempty"`
	MemberLevel   string             `json:"member_level,omitempty"` // basic, premium, vip
	IsActive      bool               `json:"is_active"`
	Preferences   *Preferences       `json:"preferences,omitempty"`
	Stats         *MemberStats       `json:"stats,omitempty"`
	CreatedAt     string             `json:"created_at,omitempty"`
	UpdatedAt     string             `json:"updated_at,omitempty"`
	LastLoginAt   string             `json:"last_login_at,omitempty"`
	DeactivatedAt string             `json:"deactivated_at,omitempty"`
	LoginCount    int                `json:"login_count,omitempty"`
}

// Preferences holds per-member display and notification settings.
type Preferences struct {
	Language      string        `json:"language,omitempty"`
	Timezone      string        `json:"timezone,omitempty"`
	Notifications Notifications `json:"notifications"`
}

type Notifications struct {
	TaskReminder bool `json:"task_reminder"`
	DailySummary bool `json:"daily_summary"`
	WeeklyReport bool `json:"weekly_report"`
}

// MemberStats aggregates per-member activity counters.
type MemberStats struct {
	TotalTasks     int `json:"total_tasks"`
	CompletedTasks int `json:"completed_tasks"`
	LoginCount     int `json:"login_count"`
}

// Task statuses. The completed flag and status stay consistent:
// completed == true exactly when status == StatusCompleted.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
)

// Task is one unit of work owned by a chat user.
type Task struct {
	ID          int64  `json:"id,omitempty"`
	TaskID      string `json:"task_id"`
	LineUserID  string `json:"line_user_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Note        string `json:"note,omitempty"`
	TaskDate    string `json:"task_date,omitempty"`
	TaskTime    string `json:"task_time,omitempty"`
	Completed   bool   `json:"completed"`
	Status      string `json:"status,omitempty"`
	Priority    int    `json:"priority,omitempty"`
	Category    string `json:"category,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty"`
	CompletedAt string `json:"completed_at,omitempty"`
}

// HistoryEntry is one append-only audit record. Writes are best-effort and
// never fail the parent operation.
type HistoryEntry struct {
	ID        int64  `json:"id,omitempty"`
	TaskID    any    `json:"task_id"`
	MemberID  string `json:"member_id,omitempty"`
	Action    string `json:"action"`
	Changes   any    `json:"changes,omitempty"`
	CreatedBy string `json:"created_by,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

// Reminder is a task-scoped scheduled notification.
type Reminder struct {
	ID           int64  `json:"id,omitempty"`
	TaskID       string `json:"task_id"`
	MemberID     string `json:"member_id,omitempty"`
	ReminderTime string `json:"reminder_time"`
	IsSent       bool   `json:"is_sent"`
	SentAt       string `json:"sent_at,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	CreatedAt    string `json:"created_at,omitempty"`
}

// PendingReminder joins a due reminder with the minimal task fields needed
// to compose the notification.
type PendingReminder struct {
	Reminder
	TaskTitle       string `json:"task_title,omitempty"`
	TaskDescription string `json:"task_description,omitempty"`
	TaskTime        string `json:"task_time,omitempty"`
	LineUserID      string `json:"line_user_id,omitempty"`
}

// SystemStats is the cached aggregate served by health endpoints.
type SystemStats struct {
	TotalMembers   int            `json:"total_members"`
	MembersByLevel map[string]int `json:"members_by_level"`
	TotalTasks     int            `json:"total_tasks"`
	CompletedTasks int            `json:"completed_tasks"`
	PendingTasks   int            `json:"pending_tasks"`
	CompletionRate int            `json:"completion_rate"` // rounded percentage, 0 with no tasks
}

// LoginLog is one append-only member login record.
type LoginLog struct {
	ID        int64  `json:"id,omitempty"`
	MemberID  string `json:"member_id"`
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}
