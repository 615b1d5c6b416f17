package flow

import (
	"strings"
	"testing"

	"github.com/BTreeMap/KeikobaBot/internal/models"
	"github.com/BTreeMap/KeikobaBot/internal/venues"
)

func TestPageCount(t *testing.T) {
	cases := []struct {
		items int
		want  int
	}{
		{0, 0},
		{1, 1},
		{10, 1},
		{11, 2},
		{18, 2},
		{20, 2},
		{21, 3},
	}
	for _, c := range cases {
		if got := PageCount(c.items); got != c.want {
			t.Errorf("PageCount(%d) = %d, want %d", c.items, got, c.want)
		}
	}
}

func TestVenueCarouselMessages(t *testing.T) {
	places, err := venues.ByArea(models.DefaultArea)
	if err != nil {
		t.Fatalf("ByArea: %v", err)
	}
	pages := VenueCarouselMessages("https://static.example.com", places)
	if len(pages) != PageCount(len(places)) {
		t.Fatalf("expected %d pages, got %d", PageCount(len(places)), len(pages))
	}

	total := 0
	seen := make(map[string]bool)
	for _, page := range pages {
		if page.Template == nil || page.Template.Type != models.TemplateTypeCarousel {
			t.Fatalf("expected carousel template, got %+v", page)
		}
		if n := len(page.Template.Columns); n == 0 || n > CarouselColumnMax {
			t.Errorf("page has %d columns, want 1..%d", n, CarouselColumnMax)
		}
		for _, col := range page.Template.Columns {
			if seen[col.Text] {
				t.Errorf("venue %q appears on more than one page", col.Text)
			}
			seen[col.Text] = true
			if !strings.HasPrefix(col.ThumbnailImageURL, "https://static.example.com/") {
				t.Errorf("thumbnail %q missing domain prefix", col.ThumbnailImageURL)
			}
			if len(col.Actions) != 1 || col.Actions[0].Data != "place="+col.Text {
				t.Errorf("unexpected action for %q: %+v", col.Text, col.Actions)
			}
		}
		total += len(page.Template.Columns)
	}
	if total != len(places) {
		t.Errorf("pages cover %d venues, want %d", total, len(places))
	}
}

func TestConfirmMessagesCarryApproveAndCancel(t *testing.T) {
	for name, msg := range map[string]models.Message{
		"notify":   NotifyConfirmMessage("第一劇団"),
		"withdraw": WithdrawConfirmMessage("第一劇団"),
	} {
		if msg.Template == nil || msg.Template.Type != models.TemplateTypeConfirm {
			t.Fatalf("%s: expected confirm template, got %+v", name, msg)
		}
		if len(msg.Template.Actions) != 2 {
			t.Fatalf("%s: expected two actions, got %d", name, len(msg.Template.Actions))
		}
		if msg.Template.Actions[0].Data != "action=approve" {
			t.Errorf("%s: first action %q, want approve", name, msg.Template.Actions[0].Data)
		}
		if msg.Template.Actions[1].Data != "action=cancel" {
			t.Errorf("%s: second action %q, want cancel", name, msg.Template.Actions[1].Data)
		}
		if !strings.Contains(msg.Template.Text, "第一劇団") {
			t.Errorf("%s: group name missing from %q", name, msg.Template.Text)
		}
	}
}

func TestGroupChoiceMessages(t *testing.T) {
	groups := []models.GroupRef{
		{GroupID: "aaa111", GroupName: "第一劇団", Area: models.DefaultArea},
		{GroupID: "bbb222", GroupName: "第二劇団", Area: models.DefaultArea},
	}
	msg := AddPracticeAskGroupMessage(groups)
	if msg.Template == nil || msg.Template.Type != models.TemplateTypeButtons {
		t.Fatalf("expected buttons template, got %+v", msg)
	}
	if len(msg.Template.Actions) != 2 {
		t.Fatalf("expected one button per group, got %d", len(msg.Template.Actions))
	}
	if msg.Template.Actions[0].Data != "group_id=aaa111" {
		t.Errorf("unexpected data %q", msg.Template.Actions[0].Data)
	}
	if msg.Template.Actions[1].Label != "第二劇団" {
		t.Errorf("unexpected label %q", msg.Template.Actions[1].Label)
	}
}

func TestPickerMessages(t *testing.T) {
	date := AskDateMessage()
	if date.Template == nil || len(date.Template.Actions) != 1 {
		t.Fatalf("unexpected date message %+v", date)
	}
	if a := date.Template.Actions[0]; a.Type != models.ActionTypeDatetimePicker || a.Mode != models.PickerModeDate {
		t.Errorf("expected date picker action, got %+v", a)
	}

	start := AskTimeMessage(models.PhaseAskStart)
	if !strings.Contains(start.Template.Text, "3/4") || !strings.Contains(start.Template.Text, "開始時間") {
		t.Errorf("unexpected start prompt %q", start.Template.Text)
	}
	end := AskTimeMessage(models.PhaseAskEnd)
	if !strings.Contains(end.Template.Text, "4/4") || !strings.Contains(end.Template.Text, "終了時間") {
		t.Errorf("unexpected end prompt %q", end.Template.Text)
	}
	if a := end.Template.Actions[0]; a.Mode != models.PickerModeTime {
		t.Errorf("expected time picker, got %+v", a)
	}
}

func TestPracticeListText(t *testing.T) {
	groups := [][]models.Practice{
		{
			{GroupName: "第一劇団", Date: "2024-08-02", StartTime: "18:00", EndTime: "21:00", Place: "月島区民館"},
			{GroupName: "第一劇団", Date: "2024-08-03", StartTime: "13:00", EndTime: "17:00", Place: "築地社会教育会館"},
		},
		{
			{GroupName: "第二劇団", Date: "2024-08-04", StartTime: "10:00", EndTime: "12:00", Place: "月島区民館"},
		},
	}
	text := PracticeListText(groups)
	want := "予定されている稽古は以下の通りです。\n\n" +
		"【第一劇団】\n" +
		"08/02(金) 18:00〜21:00@月島区民館\n" +
		"08/03(土) 13:00〜17:00@築地社会教育会館\n" +
		"\n" +
		"【第二劇団】\n" +
		"08/04(日) 10:00〜12:00@月島区民館\n"
	if text != want {
		t.Errorf("PracticeListText mismatch:\ngot:  %q\nwant: %q", text, want)
	}
}

func TestNotifyBroadcastText(t *testing.T) {
	empty := NotifyBroadcastText("田中", "第一劇団", nil)
	if !strings.Contains(empty, "予定されている稽古はありません") || !strings.Contains(empty, "田中さん") {
		t.Errorf("unexpected empty broadcast %q", empty)
	}

	practices := []models.Practice{
		{Date: "2024-08-02", StartTime: "18:00", EndTime: "21:00", Place: "月島区民館"},
	}
	text := NotifyBroadcastText("田中", "第一劇団", practices)
	if !strings.Contains(text, "「第一劇団」で予定されている稽古は以下の通りです") {
		t.Errorf("header missing from %q", text)
	}
	if !strings.Contains(text, "08/02(金) 18:00〜21:00@月島区民館") {
		t.Errorf("practice line missing from %q", text)
	}
}

func TestPracticeRegisteredText(t *testing.T) {
	draft := models.PracticeDraft{
		GroupName: "第一劇団",
		Place:     "月島区民館",
		Date:      "2024-08-01",
		StartTime: "18:00",
		EndTime:   "21:00",
	}
	text := PracticeRegisteredText(draft)
	for _, part := range []string{"[座組]", "第一劇団", "[場所]", "月島区民館", "[日付]", "2024-08-01", "[時間]", "18:00~21:00"} {
		if !strings.Contains(text, part) {
			t.Errorf("expected %q in %q", part, text)
		}
	}
}
