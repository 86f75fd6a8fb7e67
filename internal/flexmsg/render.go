// Package flexmsg renders the puppy-themed task card. Rendering never
// fails: any panic while building the card degrades to a plain fallback
// bubble so the reply still goes out.
package flexmsg

import (
	"fmt"
	"math"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/sirupsen/logrus"

	"github.com/puppylog/pawbot/internal/database"
)

const (
	colorHeaderBG   = "#DEB887"
	colorBodyBG     = "#FFF8DC"
	colorFooterBG   = "#FAEBD7"
	colorBrown      = "#8B4513"
	colorDarkGold   = "#8B6914"
	colorDoneText   = "#999999"
	colorProgressOn = "#90EE90"
	colorTrack      = "#E0E0E0"
)

// TaskCard filters tasks down to the given date and renders the mood
// header, tappable checkbox rows, progress summary, and footer.
func TaskCard(tasks []*database.Task, today, userName string) (msg messaging_api.FlexMessage) {
	defer func() {
		if r := recover(); r != nil {
			logrus.WithField("panic", r).Error("task card render failed")
			msg = fallbackCard()
		}
	}()

	if userName == "" {
		userName = "主人"
	}

	var todayTasks []*database.Task
	for _, t := range tasks {
		if t.TaskDate != "" && t.TaskDate == today {
			todayTasks = append(todayTasks, t)
		}
	}
	completed := 0
	for _, t := range todayTasks {
		if t.Completed {
			completed++
		}
	}
	pending := len(todayTasks) - completed

	mood, moodText := puppyMood(len(todayTasks), completed, pending)

	var rows []messaging_api.FlexComponentInterface
	if len(todayTasks) == 0 {
		rows = append(rows, messaging_api.FlexText{
			Text:  "🐾 今天還沒有任務喔～",
			Size:  "sm",
			Color: colorBrown,
			Align: messaging_api.FlexTextALIGN_CENTER,
		})
	} else {
		for _, t := range todayTasks {
			rows = append(rows, taskRow(t))
		}
		rows = append(rows, messaging_api.FlexSeparator{Margin: "md"})
	}

	rows = append(rows, progressLine(completed, len(todayTasks)))
	rows = append(rows, progressBar(completed, len(todayTasks)))

	bubble := messaging_api.FlexBubble{
		Size: messaging_api.FlexBubbleSIZE_KILO,
		Header: &messaging_api.FlexBox{
			Layout: messaging_api.FlexBoxLAYOUT_VERTICAL,
			Contents: []messaging_api.FlexComponentInterface{
				messaging_api.FlexText{
					Text:   mood + " 小汪的任務清單",
					Weight: messaging_api.FlexTextWEIGHT_BOLD,
					Size:   "lg",
					Color:  colorBrown,
				},
				messaging_api.FlexText{
					Text:   moodText,
					Size:   "xs",
					Color:  colorDarkGold,
					Margin: "sm",
				},
			},
			BackgroundColor: colorHeaderBG,
			PaddingAll:      "15px",
		},
		Body: &messaging_api.FlexBox{
			Layout:          messaging_api.FlexBoxLAYOUT_VERTICAL,
			Contents:        rows,
			PaddingAll:      "10px",
			BackgroundColor: colorBodyBG,
		},
		Footer: &messaging_api.FlexBox{
			Layout: messaging_api.FlexBoxLAYOUT_VERTICAL,
			Contents: []messaging_api.FlexComponentInterface{
				messaging_api.FlexText{
					Text:  fmt.Sprintf("🦴 %s，記得完成任務喔！", userName),
					Size:  "xs",
					Color: colorBrown,
					Align: messaging_api.FlexTextALIGN_CENTER,
				},
			},
			BackgroundColor: colorFooterBG,
			PaddingAll:      "10px",
		},
		Styles: &messaging_api.FlexBubbleStyles{
			Body: &messaging_api.FlexBlockStyle{Separator: true},
		},
	}

	return messaging_api.FlexMessage{
		AltText:  fmt.Sprintf("🐕 小汪提醒：今天有 %d 個任務，已完成 %d 個", len(todayTasks), completed),
		Contents: bubble,
	}
}

func puppyMood(total, completed, pending int) (emoji, text string) {
	switch {
	case total == 0:
		return "😴🐕", "今天沒有任務，小汪可以睡覺了～"
	case completed == total:
		return "🎉🐕", "太棒了！今天的任務都完成了！"
	case total > 5:
		return "😰🐕", "汪！今天任務有點多喔..."
	default:
		return "🦮", fmt.Sprintf("還有 %d 個任務要完成，加油！", pending)
	}
}

// taskRow renders one tappable task line. Tapping toggles completion via a
// postback carrying the task id.
func taskRow(t *database.Task) messaging_api.FlexBox {
	checkbox := "⬜"
	verb := "完成"
	if t.Completed {
		checkbox = "✅"
		verb = "取消完成"
	}
	title := t.Title
	if title == "" {
		title = "未命名任務"
	}

	text := messaging_api.FlexText{
		Text: title,
		Flex: 1,
		Size: "sm",
		Wrap: true,
		Action: messaging_api.PostbackAction{
			Data:        "complete_task_" + t.TaskID,
			DisplayText: fmt.Sprintf("%s「%s」", verb, title),
		},
	}
	if t.Completed {
		text.Decoration = messaging_api.FlexTextDECORATION_LINE_THROUGH
		text.Color = colorDoneText
	}

	return messaging_api.FlexBox{
		Layout: messaging_api.FlexBoxLAYOUT_HORIZONTAL,
		Contents: []messaging_api.FlexComponentInterface{
			messaging_api.FlexText{Text: checkbox, Size: "sm"},
			text,
		},
		Margin:  "sm",
		Spacing: "sm",
	}
}

func progressLine(completed, total int) messaging_api.FlexBox {
	return messaging_api.FlexBox{
		Layout: messaging_api.FlexBoxLAYOUT_HORIZONTAL,
		Contents: []messaging_api.FlexComponentInterface{
			messaging_api.FlexText{
				Text:  "🐾 今日進度",
				Size:  "xs",
				Color: colorBrown,
			},
			messaging_api.FlexText{
				Text:  fmt.Sprintf("%d / %d 完成", completed, total),
				Flex:  1,
				Size:  "xs",
				Color: colorBrown,
				Align: messaging_api.FlexTextALIGN_END,
			},
		},
		Margin: "md",
	}
}

func progressBar(completed, total int) messaging_api.FlexBox {
	percent := 0
	if total > 0 {
		percent = int(math.Round(float64(completed) / float64(total) * 100))
	}
	fillColor := colorTrack
	if percent > 0 {
		fillColor = colorProgressOn
	}

	return messaging_api.FlexBox{
		Layout: messaging_api.FlexBoxLAYOUT_VERTICAL,
		Contents: []messaging_api.FlexComponentInterface{
			messaging_api.FlexBox{
				Layout:          messaging_api.FlexBoxLAYOUT_VERTICAL,
				Contents:        []messaging_api.FlexComponentInterface{messaging_api.FlexFiller{}},
				Height:          "6px",
				BackgroundColor: fillColor,
				Width:           fmt.Sprintf("%d%%", percent),
				CornerRadius:    "3px",
			},
		},
		BackgroundColor: colorTrack,
		Height:          "6px",
		Margin:          "sm",
		CornerRadius:    "3px",
	}
}

func fallbackCard() messaging_api.FlexMessage {
	return messaging_api.FlexMessage{
		AltText: "🐕 小汪的任務清單",
		Contents: messaging_api.FlexBubble{
			Body: &messaging_api.FlexBox{
				Layout: messaging_api.FlexBoxLAYOUT_VERTICAL,
				Contents: []messaging_api.FlexComponentInterface{
					messaging_api.FlexText{Text: "🐕 汪汪！載入任務時遇到問題", Wrap: true},
				},
			},
		},
	}
}
