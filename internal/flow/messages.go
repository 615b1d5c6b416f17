package flow

import (
	"fmt"
	"strings"

	"github.com/BTreeMap/KeikobaBot/internal/models"
	"github.com/BTreeMap/KeikobaBot/internal/util"
	"github.com/BTreeMap/KeikobaBot/internal/venues"
)

// CarouselColumnMax is the platform limit on columns per carousel message.
const CarouselColumnMax = 10

// PageCount returns the number of carousel messages needed for itemCount
// columns.
func PageCount(itemCount int) int {
	return (itemCount + CarouselColumnMax - 1) / CarouselColumnMax
}

func groupChoiceMessage(altText, title, text string, groups []models.GroupRef) models.Message {
	actions := make([]models.Action, 0, len(groups))
	for _, g := range groups {
		actions = append(actions, models.Action{
			Type:        models.ActionTypePostback,
			Label:       g.GroupName,
			DisplayText: g.GroupName,
			Data:        "group_id=" + g.GroupID,
		})
	}
	return models.Message{
		Type:    models.MessageTypeTemplate,
		AltText: altText,
		Template: &models.Template{
			Type:    models.TemplateTypeButtons,
			Title:   title,
			Text:    text,
			Actions: actions,
		},
	}
}

// AddPracticeAskGroupMessage asks which group a practice is added to.
func AddPracticeAskGroupMessage(groups []models.GroupRef) models.Message {
	return groupChoiceMessage(
		"稽古予定追加メッセージ",
		"座組を選択",
		"どの座組の稽古を追加しますか？",
		groups,
	)
}

// NotifyAskGroupMessage asks which group's schedule gets broadcast.
func NotifyAskGroupMessage(groups []models.GroupRef) models.Message {
	return groupChoiceMessage(
		"稽古場予定通知メッセージ",
		"座組を選択",
		"どの座組に対して稽古予定を通知しますか？",
		groups,
	)
}

// WithdrawAskGroupMessage asks which group the user leaves.
func WithdrawAskGroupMessage(groups []models.GroupRef) models.Message {
	return groupChoiceMessage(
		"座組を抜けるボタン",
		"座組を抜ける",
		"座組を抜けられるんですね\nどの座組を抜けますか？",
		groups,
	)
}

func confirmMessage(altText, text, approveLabel, cancelLabel string) models.Message {
	return models.Message{
		Type:    models.MessageTypeTemplate,
		AltText: altText,
		Template: &models.Template{
			Type: models.TemplateTypeConfirm,
			Text: text,
			Actions: []models.Action{
				{
					Type:  models.ActionTypePostback,
					Label: approveLabel,
					Text:  approveLabel,
					Data:  "action=" + string(models.ConfirmApprove),
				},
				{
					Type:  models.ActionTypePostback,
					Label: cancelLabel,
					Text:  cancelLabel,
					Data:  "action=" + string(models.ConfirmCancel),
				},
			},
		},
	}
}

// NotifyConfirmMessage asks whether to broadcast a group's schedule.
func NotifyConfirmMessage(groupName string) models.Message {
	text := fmt.Sprintf("「%s」のメンバーに稽古予定を通知します。\nよろしいですか？", groupName)
	return confirmMessage("稽古予定通知の確認", text, "通知する", "やめておく")
}

// WithdrawConfirmMessage asks whether the user really leaves the group.
func WithdrawConfirmMessage(groupName string) models.Message {
	text := fmt.Sprintf("「%s」から本当に抜けますか？", groupName)
	return confirmMessage("座組を抜ける確認", text, "抜ける", "やめておく")
}

// VenueCarouselMessages renders the venue catalog as carousel messages of at
// most CarouselColumnMax columns each. domain prefixes the thumbnail paths.
func VenueCarouselMessages(domain string, places []venues.Venue) []models.Message {
	pages := make([]models.Message, 0, PageCount(len(places)))
	for start := 0; start < len(places); start += CarouselColumnMax {
		end := start + CarouselColumnMax
		if end > len(places) {
			end = len(places)
		}
		columns := make([]models.CarouselColumn, 0, end-start)
		for _, p := range places[start:end] {
			columns = append(columns, models.CarouselColumn{
				ThumbnailImageURL: domain + "/" + p.Image,
				Text:              p.Name,
				Actions: []models.Action{
					{
						Type:        models.ActionTypePostback,
						Text:        "選ぶ",
						DisplayText: "選ぶ",
						Data:        "place=" + p.Name,
					},
				},
			})
		}
		pages = append(pages, models.Message{
			Type:    models.MessageTypeTemplate,
			AltText: "稽古予定追加メッセージ",
			Template: &models.Template{
				Type:    models.TemplateTypeCarousel,
				Columns: columns,
			},
		})
	}
	return pages
}

// AskDateMessage prompts for the practice date with a date picker.
func AskDateMessage() models.Message {
	return models.Message{
		Type:    models.MessageTypeTemplate,
		AltText: "稽古予定追加メッセージ",
		Template: &models.Template{
			Type: models.TemplateTypeButtons,
			Text: "稽古予定を追加（2/4）\n稽古の日付を指定してください",
			Actions: []models.Action{
				{
					Type:  models.ActionTypeDatetimePicker,
					Label: "日付を選ぶ",
					Data:  "pick=date",
					Mode:  models.PickerModeDate,
				},
			},
		},
	}
}

// AskTimeMessage prompts for the start or end time with a time picker.
func AskTimeMessage(phase models.Phase) models.Message {
	text := "稽古予定を追加（3/4）\n開始時間を指定してください"
	label := "開始時間を選ぶ"
	if phase == models.PhaseAskEnd {
		text = "稽古予定を追加（4/4）\n終了時間を指定してください"
		label = "終了時間を選ぶ"
	}
	return models.Message{
		Type:    models.MessageTypeTemplate,
		AltText: "稽古予定追加メッセージ",
		Template: &models.Template{
			Type: models.TemplateTypeButtons,
			Text: text,
			Actions: []models.Action{
				{
					Type:  models.ActionTypeDatetimePicker,
					Label: label,
					Data:  "pick=time",
					Mode:  models.PickerModeTime,
				},
			},
		},
	}
}

// PracticeLine renders one practice as "MM/DD(曜) HH:mm〜HH:mm@place".
func PracticeLine(p models.Practice) string {
	return fmt.Sprintf("%s %s〜%s@%s",
		util.MessageDateFormat(p.Date), p.StartTime, p.EndTime, p.Place)
}

// PracticeListText renders the upcoming practices of several groups as the
// reply body of the schedule listing, grouped under 【group name】 headers.
func PracticeListText(practiceGroups [][]models.Practice) string {
	var b strings.Builder
	b.WriteString("予定されている稽古は以下の通りです。\n\n")
	for i, practices := range practiceGroups {
		fmt.Fprintf(&b, "【%s】\n", practices[0].GroupName)
		for _, p := range practices {
			b.WriteString(PracticeLine(p))
			b.WriteString("\n")
		}
		if i+1 < len(practiceGroups) {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// NotifyBroadcastText renders the push body a member sends to the whole
// group from the notify flow.
func NotifyBroadcastText(senderName, groupName string, practices []models.Practice) string {
	if len(practices) == 0 {
		return fmt.Sprintf("%sさんからのお知らせです。\n「%s」で予定されている稽古はありません", senderName, groupName)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%sさんからのお知らせです。\n「%s」で予定されている稽古は以下の通りです。\n\n", senderName, groupName)
	for _, p := range practices {
		b.WriteString(PracticeLine(p))
		b.WriteString("\n")
	}
	return b.String()
}

// PracticeRegisteredText renders the confirmation sent after a practice is
// stored, echoing every field the wizard collected.
func PracticeRegisteredText(d models.PracticeDraft) string {
	return fmt.Sprintf(
		"以下の内容で登録しました。\n[座組]\n%s\n[場所]\n%s\n[日付]\n%s\n[時間]\n%s~%s",
		d.GroupName, d.Place, d.Date, d.StartTime, d.EndTime,
	)
}
