package flexmsg

import (
	"strings"
	"testing"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"

	"github.com/puppylog/pawbot/internal/database"
)

const today = "2026-03-14"

func bubble(t *testing.T, msg messaging_api.FlexMessage) messaging_api.FlexBubble {
	t.Helper()
	b, ok := msg.Contents.(messaging_api.FlexBubble)
	if !ok {
		t.Fatalf("card contents are %T, want a bubble", msg.Contents)
	}
	return b
}

func header(t *testing.T, msg messaging_api.FlexMessage) (title, mood string) {
	t.Helper()
	b := bubble(t, msg)
	if b.Header == nil || len(b.Header.Contents) < 2 {
		t.Fatal("card has no complete header")
	}
	titleText := b.Header.Contents[0].(messaging_api.FlexText)
	moodText := b.Header.Contents[1].(messaging_api.FlexText)
	return titleText.Text, moodText.Text
}

func TestTaskCard_Moods(t *testing.T) {
	incomplete := func(n int) []*database.Task {
		tasks := make([]*database.Task, n)
		for i := range tasks {
			tasks[i] = &database.Task{TaskID: "t", Title: "task", TaskDate: today}
		}
		return tasks
	}

	tests := []struct {
		name      string
		tasks     []*database.Task
		wantEmoji string
		wantMood  string
	}{
		{"no tasks is sleepy", nil, "😴🐕", "今天沒有任務，小汪可以睡覺了～"},
		{
			"all complete is party",
			[]*database.Task{{TaskID: "t1", Title: "done", TaskDate: today, Completed: true}},
			"🎉🐕", "太棒了！今天的任務都完成了！",
		},
		{"more than five is overwhelmed", incomplete(6), "😰🐕", "汪！今天任務有點多喔..."},
		{"otherwise working", incomplete(2), "🦮", "還有 2 個任務要完成，加油！"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			title, mood := header(t, TaskCard(tt.tasks, today, ""))
			if !strings.HasPrefix(title, tt.wantEmoji) {
				t.Fatalf("header = %q, want %q prefix", title, tt.wantEmoji)
			}
			if mood != tt.wantMood {
				t.Fatalf("mood = %q, want %q", mood, tt.wantMood)
			}
		})
	}
}

func TestTaskCard_FiltersToToday(t *testing.T) {
	tasks := []*database.Task{
		{TaskID: "t1", Title: "today", TaskDate: today},
		{TaskID: "t2", Title: "other day", TaskDate: "2026-03-15"},
		{TaskID: "t3", Title: "undated", TaskDate: ""},
	}

	msg := TaskCard(tasks, today, "")
	if !strings.Contains(msg.AltText, "今天有 1 個任務") {
		t.Fatalf("altText = %q, want only today's task counted", msg.AltText)
	}
}

func TestTaskCard_RowsCarryToggleActions(t *testing.T) {
	tasks := []*database.Task{
		{TaskID: "t1", Title: "pending", TaskDate: today},
		{TaskID: "t2", Title: "done", TaskDate: today, Completed: true},
	}

	msg := TaskCard(tasks, today, "")
	body := bubble(t, msg).Body.Contents

	pendingRow := body[0].(messaging_api.FlexBox)
	checkbox := pendingRow.Contents[0].(messaging_api.FlexText)
	label := pendingRow.Contents[1].(messaging_api.FlexText)
	if checkbox.Text != "⬜" {
		t.Fatalf("pending checkbox = %q, want ⬜", checkbox.Text)
	}
	action, ok := label.Action.(messaging_api.PostbackAction)
	if !ok || action.Data != "complete_task_t1" {
		t.Fatalf("pending row action = %+v, want complete_task_t1 postback", label.Action)
	}
	if label.Decoration != "" {
		t.Fatal("pending row should not be struck through")
	}

	doneRow := body[1].(messaging_api.FlexBox)
	doneCheckbox := doneRow.Contents[0].(messaging_api.FlexText)
	doneLabel := doneRow.Contents[1].(messaging_api.FlexText)
	if doneCheckbox.Text != "✅" {
		t.Fatalf("done checkbox = %q, want ✅", doneCheckbox.Text)
	}
	if doneLabel.Decoration != messaging_api.FlexTextDECORATION_LINE_THROUGH {
		t.Fatalf("done row decoration = %q, want line-through", doneLabel.Decoration)
	}
	doneAction, ok := doneLabel.Action.(messaging_api.PostbackAction)
	if !ok || doneAction.Data != "complete_task_t2" {
		t.Fatalf("done row action = %+v, want complete_task_t2 postback", doneLabel.Action)
	}
}

func TestTaskCard_ProgressSummary(t *testing.T) {
	tasks := []*database.Task{
		{TaskID: "t1", Title: "a", TaskDate: today, Completed: true},
		{TaskID: "t2", Title: "b", TaskDate: today},
	}

	msg := TaskCard(tasks, today, "")
	body := bubble(t, msg).Body.Contents

	// Last two components are the summary line and the progress bar.
	summary := body[len(body)-2].(messaging_api.FlexBox)
	counter := summary.Contents[1].(messaging_api.FlexText)
	if counter.Text != "1 / 2 完成" {
		t.Fatalf("summary = %q, want %q", counter.Text, "1 / 2 完成")
	}

	bar := body[len(body)-1].(messaging_api.FlexBox)
	fill := bar.Contents[0].(messaging_api.FlexBox)
	if fill.Width != "50%" {
		t.Fatalf("progress width = %q, want 50%%", fill.Width)
	}
	if len(fill.Contents) != 1 {
		t.Fatalf("fill box has %d children, want a single filler", len(fill.Contents))
	}
	if _, ok := fill.Contents[0].(messaging_api.FlexFiller); !ok {
		t.Fatalf("fill box child is %T, want a filler", fill.Contents[0])
	}
}

func TestTaskCard_EmptyStateLine(t *testing.T) {
	msg := TaskCard(nil, today, "")
	body := bubble(t, msg).Body.Contents

	empty, ok := body[0].(messaging_api.FlexText)
	if !ok || empty.Text != "🐾 今天還沒有任務喔～" {
		t.Fatalf("first body child = %+v, want the empty-state line", body[0])
	}
}

func TestTaskCard_FooterNamesUser(t *testing.T) {
	msg := TaskCard(nil, today, "小美")
	footer := bubble(t, msg).Footer.Contents[0].(messaging_api.FlexText)
	if !strings.Contains(footer.Text, "小美") {
		t.Fatalf("footer = %q, want user name", footer.Text)
	}

	msg = TaskCard(nil, today, "")
	footer = bubble(t, msg).Footer.Contents[0].(messaging_api.FlexText)
	if !strings.Contains(footer.Text, "主人") {
		t.Fatalf("footer = %q, want default name", footer.Text)
	}
}
