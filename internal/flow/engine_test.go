package flow

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/BTreeMap/KeikobaBot/internal/models"
	"github.com/BTreeMap/KeikobaBot/internal/store"
)

// fakeMessenger records outbound messages instead of calling the platform.
type fakeMessenger struct {
	replies  [][]models.Message
	pushes   map[string][][]models.Message
	profiles map[string]string
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{
		pushes:   make(map[string][][]models.Message),
		profiles: make(map[string]string),
	}
}

func (f *fakeMessenger) Reply(ctx context.Context, replyToken string, messages []models.Message) error {
	f.replies = append(f.replies, messages)
	return nil
}

func (f *fakeMessenger) Push(ctx context.Context, to string, messages []models.Message) error {
	f.pushes[to] = append(f.pushes[to], messages)
	return nil
}

func (f *fakeMessenger) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	name, ok := f.profiles[userID]
	if !ok {
		name = "テストユーザー"
	}
	return &models.Profile{UserID: userID, DisplayName: name}, nil
}

func (f *fakeMessenger) lastReplyText(t *testing.T) string {
	t.Helper()
	if len(f.replies) == 0 {
		t.Fatalf("expected at least one reply")
	}
	last := f.replies[len(f.replies)-1]
	if len(last) == 0 {
		t.Fatalf("expected reply to carry messages")
	}
	return last[0].Text
}

func newTestEngine(t *testing.T) (*Engine, *store.InMemoryStore, *fakeMessenger) {
	t.Helper()
	st := store.NewInMemoryStore()
	msg := newFakeMessenger()
	engine := NewEngine(st, msg, Config{StaticDomain: "https://static.example.com"})
	engine.now = func() time.Time {
		return time.Date(2024, 8, 1, 12, 0, 0, 0, time.UTC)
	}
	return engine, st, msg
}

func followEvent(userID string) models.Event {
	return models.Event{
		Type:       models.EventTypeFollow,
		ReplyToken: "rt-follow",
		Source:     models.EventSource{Type: "user", UserID: userID},
	}
}

func textEvent(userID, text string) models.Event {
	return models.Event{
		Type:       models.EventTypeMessage,
		ReplyToken: "rt-text",
		Source:     models.EventSource{Type: "user", UserID: userID},
		Message:    &models.TextInput{Type: "text", Text: text},
	}
}

func postbackEvent(userID, data string) models.Event {
	return models.Event{
		Type:       models.EventTypePostback,
		ReplyToken: "rt-postback",
		Source:     models.EventSource{Type: "user", UserID: userID},
		Postback:   &models.Postback{Data: data},
	}
}

func pickerEvent(userID, data string, params models.PostbackParams) models.Event {
	ev := postbackEvent(userID, data)
	ev.Postback.Params = &params
	return ev
}

func mustCreateGroup(t *testing.T, st store.Store, id, name string) {
	t.Helper()
	if err := st.CreateGroup(models.Group{GroupID: id, GroupName: name, Area: models.DefaultArea}); err != nil {
		t.Fatalf("CreateGroup(%s): %v", id, err)
	}
}

func mustJoin(t *testing.T, engine *Engine, st store.Store, userID, groupID string) {
	t.Helper()
	ctx := context.Background()
	if err := engine.HandleEvent(ctx, postbackEvent(userID, "method=JoinGroup")); err != nil {
		t.Fatalf("menu JoinGroup: %v", err)
	}
	if err := engine.HandleEvent(ctx, textEvent(userID, groupID)); err != nil {
		t.Fatalf("join %s: %v", groupID, err)
	}
	user, err := st.GetUser(userID)
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if !user.BelongsTo(groupID) {
		t.Fatalf("expected user to belong to %s after join", groupID)
	}
}

func TestFollowCreatesUserAndGreets(t *testing.T) {
	engine, st, msg := newTestEngine(t)
	ctx := context.Background()
	msg.profiles["U1"] = "田中"

	if err := engine.HandleEvent(ctx, followEvent("U1")); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	user, err := st.GetUser("U1")
	if err != nil || user == nil {
		t.Fatalf("expected user after follow, got %v, %v", user, err)
	}
	if len(user.Groups) != 0 || !user.Session.IsZero() {
		t.Errorf("expected empty fresh user, got %+v", user)
	}
	greeting := msg.lastReplyText(t)
	if !strings.Contains(greeting, "稽古管理Bot") || !strings.Contains(greeting, "田中さん") {
		t.Errorf("unexpected greeting %q", greeting)
	}
}

func TestRepeatedFollowDoesNotGreetAgain(t *testing.T) {
	engine, _, msg := newTestEngine(t)
	ctx := context.Background()

	if err := engine.HandleEvent(ctx, followEvent("U1")); err != nil {
		t.Fatalf("first follow: %v", err)
	}
	if err := engine.HandleEvent(ctx, followEvent("U1")); err != nil {
		t.Fatalf("second follow: %v", err)
	}
	if len(msg.replies) != 1 {
		t.Errorf("expected exactly one greeting, got %d replies", len(msg.replies))
	}
}

func TestUnfollowDeletesUserAndRelations(t *testing.T) {
	engine, st, _ := newTestEngine(t)
	ctx := context.Background()
	mustCreateGroup(t, st, "abc123", "第一劇団")

	if err := engine.HandleEvent(ctx, followEvent("U1")); err != nil {
		t.Fatalf("follow: %v", err)
	}
	mustJoin(t, engine, st, "U1", "abc123")

	if err := engine.HandleEvent(ctx, models.Event{
		Type:   models.EventTypeUnfollow,
		Source: models.EventSource{UserID: "U1"},
	}); err != nil {
		t.Fatalf("unfollow: %v", err)
	}
	user, err := st.GetUser("U1")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if user != nil {
		t.Errorf("expected user to be gone after unfollow")
	}
	members, err := st.ListGroupMembers("abc123")
	if err != nil {
		t.Fatalf("ListGroupMembers: %v", err)
	}
	if len(members) != 0 {
		t.Errorf("expected relations removed with the user, got %v", members)
	}
}

func TestNonFollowEventForUnknownUserRecreatesRecord(t *testing.T) {
	engine, st, msg := newTestEngine(t)
	ctx := context.Background()

	if err := engine.HandleEvent(ctx, textEvent("U9", "hello")); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	user, err := st.GetUser("U9")
	if err != nil || user == nil {
		t.Fatalf("expected recreated user, got %v, %v", user, err)
	}
	pushes := msg.pushes["U9"]
	if len(pushes) != 1 || !strings.Contains(pushes[0][0].Text, "もう一度話しかけて") {
		t.Errorf("expected retry push, got %v", pushes)
	}
}

func TestJoinGroupFlow(t *testing.T) {
	engine, st, msg := newTestEngine(t)
	ctx := context.Background()
	mustCreateGroup(t, st, "abc123", "第一劇団")

	if err := engine.HandleEvent(ctx, followEvent("U1")); err != nil {
		t.Fatalf("follow: %v", err)
	}

	if err := engine.HandleEvent(ctx, postbackEvent("U1", "method=JoinGroup")); err != nil {
		t.Fatalf("menu: %v", err)
	}
	if !strings.Contains(msg.lastReplyText(t), "座組のIDを入力") {
		t.Errorf("unexpected prompt %q", msg.lastReplyText(t))
	}
	user, _ := st.GetUser("U1")
	if user.Session.IsZero() || user.Session.Mode != models.ModeJoinGroup {
		t.Fatalf("expected JoinGroup session, got %+v", user.Session)
	}

	// Unknown id rejected, session stays so the user can retry.
	if err := engine.HandleEvent(ctx, textEvent("U1", "nosuch")); err != nil {
		t.Fatalf("unknown id: %v", err)
	}
	if !strings.Contains(msg.lastReplyText(t), "存在しません") {
		t.Errorf("unexpected reply %q", msg.lastReplyText(t))
	}

	if err := engine.HandleEvent(ctx, textEvent("U1", "abc123")); err != nil {
		t.Fatalf("join: %v", err)
	}
	if !strings.Contains(msg.lastReplyText(t), "「第一劇団」に参加しました") {
		t.Errorf("unexpected reply %q", msg.lastReplyText(t))
	}
	user, _ = st.GetUser("U1")
	if !user.BelongsTo("abc123") {
		t.Errorf("expected membership after join")
	}
	if !user.Session.IsZero() {
		t.Errorf("expected session cleared after join, got %+v", user.Session)
	}
	members, _ := st.ListGroupMembers("abc123")
	if len(members) != 1 || members[0] != "U1" {
		t.Errorf("expected relation row, got %v", members)
	}
}

func TestJoinGroupAlreadyMember(t *testing.T) {
	engine, st, msg := newTestEngine(t)
	ctx := context.Background()
	mustCreateGroup(t, st, "abc123", "第一劇団")
	if err := engine.HandleEvent(ctx, followEvent("U1")); err != nil {
		t.Fatalf("follow: %v", err)
	}
	mustJoin(t, engine, st, "U1", "abc123")

	if err := engine.HandleEvent(ctx, postbackEvent("U1", "method=JoinGroup")); err != nil {
		t.Fatalf("menu: %v", err)
	}
	if err := engine.HandleEvent(ctx, textEvent("U1", "abc123")); err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if !strings.Contains(msg.lastReplyText(t), "すでに参加しています") {
		t.Errorf("unexpected reply %q", msg.lastReplyText(t))
	}
	user, _ := st.GetUser("U1")
	if len(user.Groups) != 1 {
		t.Errorf("expected membership unchanged, got %d groups", len(user.Groups))
	}
}

func TestJoinGroupCapReached(t *testing.T) {
	engine, st, msg := newTestEngine(t)
	ctx := context.Background()
	if err := engine.HandleEvent(ctx, followEvent("U1")); err != nil {
		t.Fatalf("follow: %v", err)
	}
	groupIDs := []string{"aaa111", "bbb222", "ccc333", "ddd444"}
	for i, id := range groupIDs {
		mustCreateGroup(t, st, id, "座組"+string(rune('A'+i)))
		mustJoin(t, engine, st, "U1", id)
	}

	if err := engine.HandleEvent(ctx, postbackEvent("U1", "method=JoinGroup")); err != nil {
		t.Fatalf("menu: %v", err)
	}
	if !strings.Contains(msg.lastReplyText(t), "参加できる座組は4組まで") {
		t.Errorf("unexpected reply %q", msg.lastReplyText(t))
	}
	user, _ := st.GetUser("U1")
	if !user.Session.IsZero() {
		t.Errorf("expected no session when cap is reached, got %+v", user.Session)
	}
}

func TestListPractices(t *testing.T) {
	engine, st, msg := newTestEngine(t)
	ctx := context.Background()
	mustCreateGroup(t, st, "abc123", "第一劇団")
	if err := engine.HandleEvent(ctx, followEvent("U1")); err != nil {
		t.Fatalf("follow: %v", err)
	}

	// No groups yet.
	if err := engine.HandleEvent(ctx, postbackEvent("U1", "method=ListPractices")); err != nil {
		t.Fatalf("menu: %v", err)
	}
	if !strings.Contains(msg.lastReplyText(t), "参加している座組がありません") {
		t.Errorf("unexpected reply %q", msg.lastReplyText(t))
	}

	mustJoin(t, engine, st, "U1", "abc123")

	// No practices yet.
	if err := engine.HandleEvent(ctx, postbackEvent("U1", "method=ListPractices")); err != nil {
		t.Fatalf("menu: %v", err)
	}
	if !strings.Contains(msg.lastReplyText(t), "予定されている稽古はありません") {
		t.Errorf("unexpected reply %q", msg.lastReplyText(t))
	}

	// A past practice must not show; a future one must.
	past := models.Practice{
		GroupID:        "abc123",
		DateStartPlace: models.PracticeKey("2024-07-01", "18:00", "月島区民館"),
		GroupName:      "第一劇団",
		Place:          "月島区民館",
		Date:           "2024-07-01",
		StartTime:      "18:00",
		EndTime:        "21:00",
	}
	future := models.Practice{
		GroupID:        "abc123",
		DateStartPlace: models.PracticeKey("2024-08-02", "18:00", "月島区民館"),
		GroupName:      "第一劇団",
		Place:          "月島区民館",
		Date:           "2024-08-02",
		StartTime:      "18:00",
		EndTime:        "21:00",
	}
	if err := st.CreatePractice(past); err != nil {
		t.Fatalf("CreatePractice: %v", err)
	}
	if err := st.CreatePractice(future); err != nil {
		t.Fatalf("CreatePractice: %v", err)
	}

	if err := engine.HandleEvent(ctx, postbackEvent("U1", "method=ListPractices")); err != nil {
		t.Fatalf("menu: %v", err)
	}
	reply := msg.lastReplyText(t)
	if !strings.Contains(reply, "【第一劇団】") {
		t.Errorf("expected group header in %q", reply)
	}
	if !strings.Contains(reply, "08/02(金) 18:00〜21:00@月島区民館") {
		t.Errorf("expected formatted future practice in %q", reply)
	}
	if strings.Contains(reply, "07/01") {
		t.Errorf("past practice leaked into %q", reply)
	}
}

func TestAddPracticeWizardSingleGroup(t *testing.T) {
	engine, st, msg := newTestEngine(t)
	ctx := context.Background()
	mustCreateGroup(t, st, "abc123", "第一劇団")
	if err := engine.HandleEvent(ctx, followEvent("U1")); err != nil {
		t.Fatalf("follow: %v", err)
	}
	mustJoin(t, engine, st, "U1", "abc123")

	// Menu: one group, so the wizard starts at the venue step.
	if err := engine.HandleEvent(ctx, postbackEvent("U1", "method=AddPractice")); err != nil {
		t.Fatalf("menu: %v", err)
	}
	user, _ := st.GetUser("U1")
	if user.Session.IsZero() || user.Session.Phase != models.PhaseAskPlace {
		t.Fatalf("expected AskPlace phase, got %+v", user.Session)
	}
	lastReply := msg.replies[len(msg.replies)-1]
	if !strings.Contains(lastReply[0].Text, "稽古場所を指定してください") {
		t.Errorf("unexpected prompt %q", lastReply[0].Text)
	}
	if len(lastReply) != 2 || lastReply[1].Template == nil || lastReply[1].Template.Type != models.TemplateTypeCarousel {
		t.Fatalf("expected carousel with the prompt, got %+v", lastReply)
	}
	// 18 venues: first page in the reply, second page pushed.
	if got := len(msg.pushes["U1"]); got != 1 {
		t.Errorf("expected one pushed carousel page, got %d", got)
	}

	// Place.
	if err := engine.HandleEvent(ctx, postbackEvent("U1", "place=月島区民館")); err != nil {
		t.Fatalf("place: %v", err)
	}
	user, _ = st.GetUser("U1")
	if user.Session.Phase != models.PhaseAskDate || user.Session.Data.Place != "月島区民館" {
		t.Fatalf("expected AskDate with place stored, got %+v", user.Session)
	}

	// Yesterday is rejected, phase stays.
	if err := engine.HandleEvent(ctx, pickerEvent("U1", "pick=date", models.PostbackParams{Date: "2024-07-31"})); err != nil {
		t.Fatalf("past date: %v", err)
	}
	if !strings.Contains(msg.lastReplyText(t), "今日以降の日付") {
		t.Errorf("unexpected reply %q", msg.lastReplyText(t))
	}
	user, _ = st.GetUser("U1")
	if user.Session.Phase != models.PhaseAskDate {
		t.Fatalf("expected phase retained after bad date, got %+v", user.Session)
	}

	// Same-day is allowed.
	if err := engine.HandleEvent(ctx, pickerEvent("U1", "pick=date", models.PostbackParams{Date: "2024-08-01"})); err != nil {
		t.Fatalf("date: %v", err)
	}
	user, _ = st.GetUser("U1")
	if user.Session.Phase != models.PhaseAskStart || user.Session.Data.Date != "2024-08-01" {
		t.Fatalf("expected AskStart with date stored, got %+v", user.Session)
	}

	// Start time.
	if err := engine.HandleEvent(ctx, pickerEvent("U1", "pick=time", models.PostbackParams{Time: "18:00"})); err != nil {
		t.Fatalf("start: %v", err)
	}
	user, _ = st.GetUser("U1")
	if user.Session.Phase != models.PhaseAskEnd || user.Session.Data.StartTime != "18:00" {
		t.Fatalf("expected AskEnd with start stored, got %+v", user.Session)
	}

	// End not after start is rejected, phase stays.
	if err := engine.HandleEvent(ctx, pickerEvent("U1", "pick=time", models.PostbackParams{Time: "18:00"})); err != nil {
		t.Fatalf("equal end: %v", err)
	}
	if !strings.Contains(msg.lastReplyText(t), "開始時間より後の時間") {
		t.Errorf("unexpected reply %q", msg.lastReplyText(t))
	}

	// Valid end completes the wizard.
	if err := engine.HandleEvent(ctx, pickerEvent("U1", "pick=time", models.PostbackParams{Time: "21:00"})); err != nil {
		t.Fatalf("end: %v", err)
	}
	reply := msg.lastReplyText(t)
	if !strings.Contains(reply, "以下の内容で登録しました") ||
		!strings.Contains(reply, "第一劇団") ||
		!strings.Contains(reply, "18:00~21:00") {
		t.Errorf("unexpected confirmation %q", reply)
	}
	user, _ = st.GetUser("U1")
	if !user.Session.IsZero() {
		t.Errorf("expected session cleared after registration, got %+v", user.Session)
	}
	key := models.PracticeKey("2024-08-01", "18:00", "月島区民館")
	exists, err := st.PracticeExists("abc123", key)
	if err != nil || !exists {
		t.Errorf("expected practice stored, exists=%v err=%v", exists, err)
	}
	on, _ := st.ListPracticesOn("abc123", "2024-08-01")
	if len(on) != 1 || on[0].Address != "東京都中央区月島2丁目8-11" {
		t.Errorf("expected venue address on stored practice, got %+v", on)
	}
	logs, err := st.ListPracticeLogs("abc123")
	if err != nil || len(logs) != 1 {
		t.Errorf("expected one audit entry, got %v, %v", logs, err)
	}
}

func TestAddPracticeAddressFollowsGroupArea(t *testing.T) {
	engine, st, _ := newTestEngine(t)
	ctx := context.Background()
	if err := st.CreateGroup(models.Group{GroupID: "min456", GroupName: "港劇団", Area: "港区"}); err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if err := engine.HandleEvent(ctx, followEvent("U1")); err != nil {
		t.Fatalf("follow: %v", err)
	}
	mustJoin(t, engine, st, "U1", "min456")

	// The venue catalog has no 港区 entries, so seed the wizard at the
	// final step with a place name that exists only under 中央区.
	session := &models.Session{
		Mode:  models.ModeAddPractice,
		Phase: models.PhaseAskEnd,
		Data: &models.PracticeDraft{
			GroupID:   "min456",
			GroupName: "港劇団",
			Place:     "月島区民館",
			Date:      "2024-08-01",
			StartTime: "18:00",
		},
	}
	if err := st.UpdateUserSession("U1", session); err != nil {
		t.Fatalf("UpdateUserSession: %v", err)
	}
	if err := engine.HandleEvent(ctx, pickerEvent("U1", "pick=time", models.PostbackParams{Time: "21:00"})); err != nil {
		t.Fatalf("end: %v", err)
	}
	on, err := st.ListPracticesOn("min456", "2024-08-01")
	if err != nil || len(on) != 1 {
		t.Fatalf("expected one practice, got %v, %v", on, err)
	}
	if on[0].Address != "" {
		t.Errorf("address must not come from another area's venue, got %q", on[0].Address)
	}
}

func TestAddPracticeDuplicateClearsSession(t *testing.T) {
	engine, st, msg := newTestEngine(t)
	ctx := context.Background()
	mustCreateGroup(t, st, "abc123", "第一劇団")
	if err := engine.HandleEvent(ctx, followEvent("U1")); err != nil {
		t.Fatalf("follow: %v", err)
	}
	mustJoin(t, engine, st, "U1", "abc123")

	existing := models.Practice{
		GroupID:        "abc123",
		DateStartPlace: models.PracticeKey("2024-08-01", "18:00", "月島区民館"),
		GroupName:      "第一劇団",
		Place:          "月島区民館",
		Date:           "2024-08-01",
		StartTime:      "18:00",
		EndTime:        "21:00",
	}
	if err := st.CreatePractice(existing); err != nil {
		t.Fatalf("CreatePractice: %v", err)
	}

	steps := []models.Event{
		postbackEvent("U1", "method=AddPractice"),
		postbackEvent("U1", "place=月島区民館"),
		pickerEvent("U1", "pick=date", models.PostbackParams{Date: "2024-08-01"}),
		pickerEvent("U1", "pick=time", models.PostbackParams{Time: "18:00"}),
	}
	for i, ev := range steps {
		if err := engine.HandleEvent(ctx, ev); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	if !strings.Contains(msg.lastReplyText(t), "二つ以上登録できません") {
		t.Errorf("unexpected reply %q", msg.lastReplyText(t))
	}
	user, _ := st.GetUser("U1")
	if !user.Session.IsZero() {
		t.Errorf("expected session cleared on duplicate, got %+v", user.Session)
	}
}

func TestAddPracticeMultiGroupAsksGroupFirst(t *testing.T) {
	engine, st, msg := newTestEngine(t)
	ctx := context.Background()
	mustCreateGroup(t, st, "aaa111", "第一劇団")
	mustCreateGroup(t, st, "bbb222", "第二劇団")
	if err := engine.HandleEvent(ctx, followEvent("U1")); err != nil {
		t.Fatalf("follow: %v", err)
	}
	mustJoin(t, engine, st, "U1", "aaa111")
	mustJoin(t, engine, st, "U1", "bbb222")

	if err := engine.HandleEvent(ctx, postbackEvent("U1", "method=AddPractice")); err != nil {
		t.Fatalf("menu: %v", err)
	}
	user, _ := st.GetUser("U1")
	if user.Session.Phase != models.PhaseAskGroup {
		t.Fatalf("expected AskGroup, got %+v", user.Session)
	}
	last := msg.replies[len(msg.replies)-1][0]
	if last.Template == nil || len(last.Template.Actions) != 2 {
		t.Fatalf("expected two group buttons, got %+v", last)
	}

	if err := engine.HandleEvent(ctx, postbackEvent("U1", "group_id=bbb222")); err != nil {
		t.Fatalf("group: %v", err)
	}
	user, _ = st.GetUser("U1")
	if user.Session.Phase != models.PhaseAskPlace || user.Session.Data.GroupID != "bbb222" {
		t.Fatalf("expected AskPlace for bbb222, got %+v", user.Session)
	}
}

func TestAddPracticeUnknownPlaceKeepsSession(t *testing.T) {
	engine, st, msg := newTestEngine(t)
	ctx := context.Background()
	mustCreateGroup(t, st, "abc123", "第一劇団")
	if err := engine.HandleEvent(ctx, followEvent("U1")); err != nil {
		t.Fatalf("follow: %v", err)
	}
	mustJoin(t, engine, st, "U1", "abc123")

	if err := engine.HandleEvent(ctx, postbackEvent("U1", "method=AddPractice")); err != nil {
		t.Fatalf("menu: %v", err)
	}
	if err := engine.HandleEvent(ctx, postbackEvent("U1", "place=存在しない会館")); err != nil {
		t.Fatalf("place: %v", err)
	}
	if !strings.Contains(msg.lastReplyText(t), "見つかりません") {
		t.Errorf("unexpected reply %q", msg.lastReplyText(t))
	}
	user, _ := st.GetUser("U1")
	if user.Session.IsZero() || user.Session.Phase != models.PhaseAskPlace {
		t.Errorf("expected AskPlace retained, got %+v", user.Session)
	}
}

func TestNotifyPracticesBroadcast(t *testing.T) {
	engine, st, msg := newTestEngine(t)
	ctx := context.Background()
	mustCreateGroup(t, st, "abc123", "第一劇団")
	for _, id := range []string{"U1", "U2"} {
		if err := engine.HandleEvent(ctx, followEvent(id)); err != nil {
			t.Fatalf("follow %s: %v", id, err)
		}
		mustJoin(t, engine, st, id, "abc123")
	}
	msg.profiles["U1"] = "田中"

	practice := models.Practice{
		GroupID:        "abc123",
		DateStartPlace: models.PracticeKey("2024-08-02", "18:00", "月島区民館"),
		GroupName:      "第一劇団",
		Place:          "月島区民館",
		Date:           "2024-08-02",
		StartTime:      "18:00",
		EndTime:        "21:00",
	}
	if err := st.CreatePractice(practice); err != nil {
		t.Fatalf("CreatePractice: %v", err)
	}

	// One group: menu goes straight to Confirm.
	if err := engine.HandleEvent(ctx, postbackEvent("U1", "method=NotifyPractices")); err != nil {
		t.Fatalf("menu: %v", err)
	}
	user, _ := st.GetUser("U1")
	if user.Session.Phase != models.PhaseConfirm {
		t.Fatalf("expected Confirm, got %+v", user.Session)
	}
	confirm := msg.replies[len(msg.replies)-1][0]
	if confirm.Template == nil || confirm.Template.Type != models.TemplateTypeConfirm {
		t.Fatalf("expected confirm template, got %+v", confirm)
	}

	if err := engine.HandleEvent(ctx, postbackEvent("U1", "action=approve")); err != nil {
		t.Fatalf("approve: %v", err)
	}
	for _, id := range []string{"U1", "U2"} {
		pushes := msg.pushes[id]
		if len(pushes) == 0 {
			t.Fatalf("expected push to %s", id)
		}
		text := pushes[len(pushes)-1][0].Text
		if !strings.Contains(text, "田中さんからのお知らせです") || !strings.Contains(text, "08/02(金)") {
			t.Errorf("unexpected broadcast to %s: %q", id, text)
		}
	}
	user, _ = st.GetUser("U1")
	if !user.Session.IsZero() {
		t.Errorf("expected session cleared after approve, got %+v", user.Session)
	}
}

func TestNotifyPracticesCancel(t *testing.T) {
	engine, st, msg := newTestEngine(t)
	ctx := context.Background()
	mustCreateGroup(t, st, "abc123", "第一劇団")
	if err := engine.HandleEvent(ctx, followEvent("U1")); err != nil {
		t.Fatalf("follow: %v", err)
	}
	mustJoin(t, engine, st, "U1", "abc123")

	if err := engine.HandleEvent(ctx, postbackEvent("U1", "method=NotifyPractices")); err != nil {
		t.Fatalf("menu: %v", err)
	}
	if err := engine.HandleEvent(ctx, postbackEvent("U1", "action=cancel")); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !strings.Contains(msg.lastReplyText(t), "通知は行いません") {
		t.Errorf("unexpected reply %q", msg.lastReplyText(t))
	}
	user, _ := st.GetUser("U1")
	if !user.Session.IsZero() {
		t.Errorf("expected session cleared after cancel, got %+v", user.Session)
	}
}

func TestWithdrawGroupFlow(t *testing.T) {
	engine, st, msg := newTestEngine(t)
	ctx := context.Background()
	mustCreateGroup(t, st, "abc123", "第一劇団")
	if err := engine.HandleEvent(ctx, followEvent("U1")); err != nil {
		t.Fatalf("follow: %v", err)
	}
	mustJoin(t, engine, st, "U1", "abc123")

	if err := engine.HandleEvent(ctx, postbackEvent("U1", "method=WithdrawGroup")); err != nil {
		t.Fatalf("menu: %v", err)
	}
	if err := engine.HandleEvent(ctx, postbackEvent("U1", "group_id=abc123")); err != nil {
		t.Fatalf("choose: %v", err)
	}
	user, _ := st.GetUser("U1")
	if user.Session.Phase != models.PhaseConfirm {
		t.Fatalf("expected Confirm, got %+v", user.Session)
	}

	if err := engine.HandleEvent(ctx, postbackEvent("U1", "action=approve")); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if !strings.Contains(msg.lastReplyText(t), "「第一劇団」を抜けました") {
		t.Errorf("unexpected reply %q", msg.lastReplyText(t))
	}
	user, _ = st.GetUser("U1")
	if user.BelongsTo("abc123") || !user.Session.IsZero() {
		t.Errorf("expected membership and session gone, got %+v", user)
	}
	members, _ := st.ListGroupMembers("abc123")
	if len(members) != 0 {
		t.Errorf("expected no members left, got %v", members)
	}
}

func TestWithdrawGroupCancelKeepsMembership(t *testing.T) {
	engine, st, msg := newTestEngine(t)
	ctx := context.Background()
	mustCreateGroup(t, st, "abc123", "第一劇団")
	if err := engine.HandleEvent(ctx, followEvent("U1")); err != nil {
		t.Fatalf("follow: %v", err)
	}
	mustJoin(t, engine, st, "U1", "abc123")

	if err := engine.HandleEvent(ctx, postbackEvent("U1", "method=WithdrawGroup")); err != nil {
		t.Fatalf("menu: %v", err)
	}
	if err := engine.HandleEvent(ctx, postbackEvent("U1", "group_id=abc123")); err != nil {
		t.Fatalf("choose: %v", err)
	}
	if err := engine.HandleEvent(ctx, postbackEvent("U1", "action=cancel")); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if !strings.Contains(msg.lastReplyText(t), "そのまま参加されるんですね") {
		t.Errorf("unexpected reply %q", msg.lastReplyText(t))
	}
	user, _ := st.GetUser("U1")
	if !user.BelongsTo("abc123") {
		t.Errorf("expected membership kept on cancel")
	}
	if !user.Session.IsZero() {
		t.Errorf("expected session cleared on cancel, got %+v", user.Session)
	}
}

func TestDeletePracticeMenuIsStub(t *testing.T) {
	engine, st, msg := newTestEngine(t)
	ctx := context.Background()
	if err := engine.HandleEvent(ctx, followEvent("U1")); err != nil {
		t.Fatalf("follow: %v", err)
	}
	if err := engine.HandleEvent(ctx, postbackEvent("U1", "method=DeletePractice")); err != nil {
		t.Fatalf("menu: %v", err)
	}
	if !strings.Contains(msg.lastReplyText(t), "このモードはまだ使えません") {
		t.Errorf("unexpected reply %q", msg.lastReplyText(t))
	}
	user, _ := st.GetUser("U1")
	if !user.Session.IsZero() {
		t.Errorf("expected no session for stub mode, got %+v", user.Session)
	}
}

func TestUnexpectedActionClearsSession(t *testing.T) {
	engine, st, msg := newTestEngine(t)
	ctx := context.Background()
	mustCreateGroup(t, st, "abc123", "第一劇団")
	if err := engine.HandleEvent(ctx, followEvent("U1")); err != nil {
		t.Fatalf("follow: %v", err)
	}
	mustJoin(t, engine, st, "U1", "abc123")

	if err := engine.HandleEvent(ctx, postbackEvent("U1", "method=WithdrawGroup")); err != nil {
		t.Fatalf("menu: %v", err)
	}
	if err := engine.HandleEvent(ctx, postbackEvent("U1", "group_id=abc123")); err != nil {
		t.Fatalf("choose: %v", err)
	}
	if err := engine.HandleEvent(ctx, postbackEvent("U1", "action=bogus")); err != nil {
		t.Fatalf("bogus action: %v", err)
	}
	if !strings.Contains(msg.lastReplyText(t), "最初からやり直してください") {
		t.Errorf("unexpected reply %q", msg.lastReplyText(t))
	}
	user, _ := st.GetUser("U1")
	if !user.Session.IsZero() {
		t.Errorf("expected session cleared, got %+v", user.Session)
	}
}

func TestFreeTextOutsideJoinFlow(t *testing.T) {
	engine, st, msg := newTestEngine(t)
	ctx := context.Background()
	mustCreateGroup(t, st, "abc123", "第一劇団")
	if err := engine.HandleEvent(ctx, followEvent("U1")); err != nil {
		t.Fatalf("follow: %v", err)
	}

	if err := engine.HandleEvent(ctx, textEvent("U1", "こんにちは")); err != nil {
		t.Fatalf("text: %v", err)
	}
	if !strings.Contains(msg.lastReplyText(t), "座組に未参加です") {
		t.Errorf("unexpected reply %q", msg.lastReplyText(t))
	}

	mustJoin(t, engine, st, "U1", "abc123")
	if err := engine.HandleEvent(ctx, textEvent("U1", "こんにちは")); err != nil {
		t.Fatalf("text: %v", err)
	}
	if !strings.Contains(msg.lastReplyText(t), "お答えできません") {
		t.Errorf("unexpected reply %q", msg.lastReplyText(t))
	}
}
