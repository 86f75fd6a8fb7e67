// Package bot maps inbound chat events to task operations and replies.
// Command state lives entirely in the matched input; nothing is persisted
// between events.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	linewebhook "github.com/line/line-bot-sdk-go/v8/linebot/webhook"
	"github.com/sirupsen/logrus"

	"github.com/puppylog/pawbot/internal/database"
	"github.com/puppylog/pawbot/internal/flexmsg"
	"github.com/puppylog/pawbot/internal/line"
	"github.com/puppylog/pawbot/internal/member"
	"github.com/puppylog/pawbot/internal/speech"
)

// Canned replies. The bot speaks as 小汪, the task puppy.
const (
	replyTaskNotFound  = "🐕 汪？找不到這個任務耶～"
	replyAllDone       = "🎉🐕 汪汪！所有任務都完成了！你真棒～"
	replyGenericError  = "🐕 汪汪！小汪遇到了一點小問題，請稍後再試～"
	replySpeechFailed  = "無法識別語音內容，請重新發送"
	replyWelcome       = "🐕 汪汪！我是小汪，你的任務小幫手！\n直接輸入文字就能新增任務，輸入「清單」查看今天的任務喔～"
	postbackTogglePrix = "complete_task_"
)

var (
	listCommands = map[string]bool{
		"查看所有任務": true,
		"任務":     true,
		"清單":     true,
		"汪汪清單":   true,
		"查看任務":   true,
	}
	completeCommands = map[string]bool{
		"完成任務": true,
		"餵食小汪": true,
		"完成":   true,
		"汪汪完成": true,
	}
	clearTodayCommands = map[string]bool{
		"清空今日任務": true,
		"清空":     true,
	}
)

// Messenger is the outbound messaging capability the bot consumes.
type Messenger interface {
	ReplyMessage(ctx context.Context, replyToken string, messages ...messaging_api.MessageInterface) error
	GetProfile(ctx context.Context, userID string) (*line.Profile, error)
	GetMessageContent(ctx context.Context, messageID string) ([]byte, error)
}

// Bot interprets webhook events. Transcriber and Members are optional;
// without them audio messages and follow registration degrade gracefully.
type Bot struct {
	db          *database.DB
	messenger   Messenger
	transcriber speech.Transcriber
	members     *member.Service
}

func New(db *database.DB, messenger Messenger, transcriber speech.Transcriber, members *member.Service) *Bot {
	return &Bot{
		db:          db,
		messenger:   messenger,
		transcriber: transcriber,
		members:     members,
	}
}

// HandleEvent implements webhook.EventHandler. Any failure during command
// execution degrades to a generic apologetic reply; a failure sending that
// reply is logged and swallowed so the rest of the batch is unaffected.
func (b *Bot) HandleEvent(ctx context.Context, event linewebhook.EventInterface) error {
	if err := b.handle(ctx, event); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"type":   fmt.Sprintf("%T", event),
			"userId": eventUserID(event),
		}).Error("command failed")

		if token := replyTokenOf(event); token != "" {
			if replyErr := b.replyText(ctx, token, replyGenericError); replyErr != nil {
				logrus.WithError(replyErr).Error("error reply failed")
			}
		}
	}
	return nil
}

// handle routes one event. Event and message types the bot does not serve
// are ignored without error.
func (b *Bot) handle(ctx context.Context, event linewebhook.EventInterface) error {
	switch ev := event.(type) {
	case linewebhook.FollowEvent:
		return b.handleFollow(ctx, ev)
	case linewebhook.PostbackEvent:
		if ev.Postback == nil {
			return nil
		}
		return b.handlePostback(ctx, ev.ReplyToken, eventUserID(event), ev.Postback.Data)
	case linewebhook.MessageEvent:
		userID := eventUserID(event)
		switch msg := ev.Message.(type) {
		case linewebhook.TextMessageContent:
			return b.handleText(ctx, ev.ReplyToken, userID, strings.TrimSpace(msg.Text))
		case linewebhook.AudioMessageContent:
			return b.handleAudio(ctx, ev.ReplyToken, userID, msg.Id)
		}
	}
	return nil
}

func replyTokenOf(event linewebhook.EventInterface) string {
	switch ev := event.(type) {
	case linewebhook.MessageEvent:
		return ev.ReplyToken
	case linewebhook.PostbackEvent:
		return ev.ReplyToken
	case linewebhook.FollowEvent:
		return ev.ReplyToken
	}
	return ""
}

// eventUserID extracts the sending user's id; group and room sources the bot
// does not serve yield an empty string.
func eventUserID(event linewebhook.EventInterface) string {
	var source linewebhook.SourceInterface
	switch ev := event.(type) {
	case linewebhook.MessageEvent:
		source = ev.Source
	case linewebhook.PostbackEvent:
		source = ev.Source
	case linewebhook.FollowEvent:
		source = ev.Source
	}
	if user, ok := source.(linewebhook.UserSource); ok {
		return user.UserId
	}
	return ""
}

func (b *Bot) handleFollow(ctx context.Context, event linewebhook.FollowEvent) error {
	if b.members != nil {
		profile, err := b.messenger.GetProfile(ctx, eventUserID(event))
		if err != nil {
			logrus.WithError(err).Warn("profile fetch failed on follow")
		} else if _, err := b.members.RegisterOrUpdate(ctx, profile); err != nil {
			logrus.WithError(err).Warn("member registration failed on follow")
		}
	}
	if event.ReplyToken == "" {
		return nil
	}
	return b.replyText(ctx, event.ReplyToken, replyWelcome)
}

func (b *Bot) handlePostback(ctx context.Context, replyToken, userID, data string) error {
	if !strings.HasPrefix(data, postbackTogglePrix) {
		return nil
	}
	taskID := strings.TrimPrefix(data, postbackTogglePrix)

	_, err := b.db.ToggleTaskComplete(ctx, taskID)
	if errors.Is(err, database.ErrTaskNotFound) {
		return b.replyText(ctx, replyToken, replyTaskNotFound)
	}
	if err != nil {
		return err
	}
	return b.replyCard(ctx, replyToken, userID)
}

func (b *Bot) handleText(ctx context.Context, replyToken, userID, text string) error {
	switch {
	case listCommands[text]:
		return b.replyCard(ctx, replyToken, userID)
	case completeCommands[text]:
		return b.completeNext(ctx, replyToken, userID)
	case clearTodayCommands[text]:
		return b.clearToday(ctx, replyToken, userID)
	default:
		return b.createTask(ctx, replyToken, userID, text)
	}
}

// handleAudio downloads the voice clip, transcribes it, and feeds the text
// through the normal command path.
func (b *Bot) handleAudio(ctx context.Context, replyToken, userID, messageID string) error {
	if b.transcriber == nil {
		return b.replyText(ctx, replyToken, replySpeechFailed)
	}

	audio, err := b.messenger.GetMessageContent(ctx, messageID)
	if err != nil {
		return fmt.Errorf("download audio: %w", err)
	}

	text, err := b.transcriber.Transcribe(ctx, audio)
	if errors.Is(err, speech.ErrNoSpeech) {
		return b.replyText(ctx, replyToken, replySpeechFailed)
	}
	if err != nil {
		return fmt.Errorf("transcribe audio: %w", err)
	}
	return b.handleText(ctx, replyToken, userID, strings.TrimSpace(text))
}

// completeNext toggles the first incomplete task in the fetched ordering
// (newest-created-first) and confirms by title.
func (b *Bot) completeNext(ctx context.Context, replyToken, userID string) error {
	tasks, err := b.db.GetUserTasks(ctx, userID, database.TaskFilter{Date: b.db.Today()})
	if err != nil {
		return err
	}

	var next *database.Task
	for _, t := range tasks {
		if !t.Completed {
			next = t
			break
		}
	}
	if next == nil {
		return b.replyText(ctx, replyToken, replyAllDone)
	}

	updated, err := b.db.ToggleTaskComplete(ctx, next.TaskID)
	if err != nil {
		return err
	}
	return b.replyText(ctx, replyToken, fmt.Sprintf("✅🐕 汪汪！「%s」完成了！", updated.Title))
}

func (b *Bot) clearToday(ctx context.Context, replyToken, userID string) error {
	n, err := b.db.ClearTodayTasks(ctx, userID)
	if err != nil {
		return err
	}
	if n == 0 {
		return b.replyText(ctx, replyToken, "🐕 汪汪！今天本來就沒有任務喔～")
	}
	return b.replyText(ctx, replyToken, fmt.Sprintf("🧹🐕 汪汪！已經清空今天的 %d 個任務了～", n))
}

func (b *Bot) createTask(ctx context.Context, replyToken, userID, title string) error {
	if title == "" {
		return nil
	}
	_, err := b.db.CreateTask(ctx, &database.Task{
		LineUserID: userID,
		Title:      title,
		TaskDate:   b.db.Today(),
		Status:     database.StatusPending,
	})
	if err != nil {
		return err
	}
	return b.replyCard(ctx, replyToken, userID)
}

// replyCard renders today's tasks as the puppy card and sends it.
func (b *Bot) replyCard(ctx context.Context, replyToken, userID string) error {
	tasks, err := b.db.GetUserTasks(ctx, userID, database.TaskFilter{Date: b.db.Today()})
	if err != nil {
		return err
	}

	name := ""
	if b.members != nil {
		if m, err := b.db.GetMemberByLineID(ctx, userID); err == nil && m != nil {
			name = m.DisplayName
		}
	}

	card := flexmsg.TaskCard(tasks, b.db.Today(), name)
	return b.messenger.ReplyMessage(ctx, replyToken, card)
}

func (b *Bot) replyText(ctx context.Context, replyToken, text string) error {
	return b.messenger.ReplyMessage(ctx, replyToken, messaging_api.TextMessage{Text: text})
}
