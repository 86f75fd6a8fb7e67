// Package reminder polls for due task reminders and pushes notifications.
package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/puppylog/pawbot/internal/database"
)

// Pusher sends a message to a user outside a reply window.
type Pusher interface {
	PushMessage(ctx context.Context, to string, messages ...messaging_api.MessageInterface) error
}

// Scheduler runs the reminder sweep on a cron schedule. Each sweep marks
// every due reminder as sent, recording the delivery error when the push
// failed so a broken reminder is never retried forever.
type Scheduler struct {
	db     *database.DB
	pusher Pusher
	cron   *cron.Cron
	spec   string
}

// NewScheduler creates a scheduler; an empty spec defaults to every minute.
func NewScheduler(db *database.DB, pusher Pusher, spec string) *Scheduler {
	if spec == "" {
		spec = "@every 1m"
	}
	return &Scheduler{
		db:     db,
		pusher: pusher,
		cron:   cron.New(),
		spec:   spec,
	}
}

// Start registers the sweep job and starts the cron loop.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.spec, s.Sweep); err != nil {
		return fmt.Errorf("schedule reminder sweep: %w", err)
	}
	s.cron.Start()
	logrus.WithField("spec", s.spec).Info("reminder scheduler started")
	return nil
}

// Stop halts scheduling and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Sweep delivers every due reminder. Exported so a sweep can be triggered
// outside the cron schedule.
func (s *Scheduler) Sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pending, err := s.db.GetPendingReminders(ctx)
	if err != nil {
		logrus.WithError(err).Error("pending reminder fetch failed")
		return
	}
	if len(pending) == 0 {
		return
	}
	logrus.WithField("count", len(pending)).Info("delivering reminders")

	for _, p := range pending {
		deliveryErr := ""
		if p.LineUserID == "" {
			deliveryErr = "reminder has no deliverable recipient"
		} else if err := s.pusher.PushMessage(ctx, p.LineUserID, reminderMessage(p)); err != nil {
			deliveryErr = err.Error()
			logrus.WithError(err).WithField("reminderId", p.ID).Warn("reminder push failed")
		}

		if err := s.db.MarkReminderSent(ctx, p.ID, deliveryErr); err != nil {
			logrus.WithError(err).WithField("reminderId", p.ID).Error("reminder bookkeeping failed")
		}
	}
}

func reminderMessage(p *database.PendingReminder) messaging_api.TextMessage {
	title := p.TaskTitle
	if title == "" {
		title = "任務"
	}
	text := fmt.Sprintf("⏰🐕 汪汪！提醒你：「%s」", title)
	if p.TaskTime != "" {
		text += fmt.Sprintf("（%s）", p.TaskTime)
	}
	text += " 時間到囉～"
	return messaging_api.TextMessage{Text: text}
}
