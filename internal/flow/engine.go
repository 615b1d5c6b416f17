// Package flow implements the conversation engine: the multi-turn session
// state machine behind the chat menu, and the pure message builders it
// replies with.
package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/BTreeMap/KeikobaBot/internal/messaging"
	"github.com/BTreeMap/KeikobaBot/internal/models"
	"github.com/BTreeMap/KeikobaBot/internal/store"
	"github.com/BTreeMap/KeikobaBot/internal/util"
	"github.com/BTreeMap/KeikobaBot/internal/venues"
)

// Reply texts shared by several transitions.
const (
	textRestart      = "エラーが発生しました。最初からやり直してください"
	textTalkAgain    = "エラーが発生しました。もう一度話しかけてみてください"
	textNoGroups     = "参加している座組がありません"
	textUnavailable  = "ごめんなさい>_<\nこのモードはまだ使えません"
	textAskPlaceHead = "稽古予定を追加（1/4）\n稽古場所を指定してください"
)

// Config controls engine behavior.
type Config struct {
	// StaticDomain is the base URL serving venue thumbnail images.
	StaticDomain string
	// StrictSessionUpdates makes session writes compare-and-swap against
	// the version read at event load time, discarding the turn on conflict.
	// Off by default: the last write wins, matching the chat platform's
	// single-event delivery.
	StrictSessionUpdates bool
}

// Engine dispatches webhook events against the session state machine.
type Engine struct {
	store store.Store
	msg   messaging.Service
	cfg   Config
	now   func() time.Time
}

// NewEngine creates a conversation engine.
func NewEngine(st store.Store, msg messaging.Service, cfg Config) *Engine {
	return &Engine{store: st, msg: msg, cfg: cfg, now: time.Now}
}

// HandleEvent processes one inbound webhook event.
func (e *Engine) HandleEvent(ctx context.Context, event models.Event) error {
	userID := event.Source.UserID
	if userID == "" {
		return fmt.Errorf("flow.Engine.HandleEvent: event has no user id")
	}
	user, err := e.store.GetUser(userID)
	if err != nil {
		return fmt.Errorf("flow.Engine.HandleEvent: load user: %w", err)
	}

	if user == nil && event.Type != models.EventTypeFollow {
		// The user record is gone but the platform still routes events to
		// us. Recreate the record and ask the user to retry.
		slog.Error("Engine.HandleEvent: user missing for non-follow event", "user_id", userID, "type", event.Type)
		if err := e.store.CreateUser(userID); err != nil {
			return fmt.Errorf("flow.Engine.HandleEvent: recreate user: %w", err)
		}
		return e.msg.Push(ctx, userID, []models.Message{models.NewTextMessage(textTalkAgain)})
	}

	switch event.Type {
	case models.EventTypeFollow:
		return e.handleFollow(ctx, user, event)
	case models.EventTypeUnfollow:
		slog.Info("Engine.HandleEvent: unfollow, deleting user", "user_id", userID)
		return e.store.DeleteUser(userID)
	case models.EventTypeMessage:
		return e.handleTextMessage(ctx, user, event)
	case models.EventTypePostback:
		return e.handlePostback(ctx, user, event)
	default:
		slog.Debug("Engine.HandleEvent: ignoring event", "type", event.Type)
		return nil
	}
}

func (e *Engine) handleFollow(ctx context.Context, user *models.User, event models.Event) error {
	if user != nil {
		slog.Error("Engine.handleFollow: user already exists", "user_id", user.UserID)
		return nil
	}
	userID := event.Source.UserID
	if err := e.store.CreateUser(userID); err != nil {
		return fmt.Errorf("flow.Engine.handleFollow: %w", err)
	}
	userName := ""
	if profile, err := e.msg.GetProfile(ctx, userID); err == nil {
		userName = profile.DisplayName
	} else {
		slog.Error("Engine.handleFollow: profile fetch failed", "user_id", userID, "error", err)
	}
	text := fmt.Sprintf("こんにちは！ 稽古管理Botです\n%sさん、これからよろしくね", userName)
	return e.msg.Reply(ctx, event.ReplyToken, []models.Message{models.NewTextMessage(text)})
}

func (e *Engine) handleTextMessage(ctx context.Context, user *models.User, event models.Event) error {
	if event.Message == nil || event.Message.Type != "text" {
		return nil
	}

	if !user.Session.IsZero() && user.Session.Mode == models.ModeJoinGroup {
		return e.joinGroup(ctx, user, event)
	}

	// Free text outside the join flow is not actionable.
	text := "ごめんなさい！\nこのアカウントではメッセージにお答えできません >_<"
	if len(user.Groups) == 0 {
		text = "座組に未参加です。\nメニューの「座組に参加」ボタンをタップして、座組に参加してください"
	}
	return e.msg.Reply(ctx, event.ReplyToken, []models.Message{models.NewTextMessage(text)})
}

func (e *Engine) joinGroup(ctx context.Context, user *models.User, event models.Event) error {
	groupID := event.Message.Text
	group, err := e.store.GetGroup(groupID)
	if err != nil {
		return fmt.Errorf("flow.Engine.joinGroup: %w", err)
	}

	var text string
	switch {
	case group == nil:
		text = "指定された座組は存在しません"
	case user.BelongsTo(groupID):
		text = "その座組にはすでに参加しています"
	default:
		groups := append(user.Groups, group.Ref())
		if err := e.store.UpdateUserGroups(user.UserID, groups); err != nil {
			return fmt.Errorf("flow.Engine.joinGroup: %w", err)
		}
		if err := e.store.AddRelation(user.UserID, groupID); err != nil {
			return fmt.Errorf("flow.Engine.joinGroup: %w", err)
		}
		if err := e.saveSession(user, nil); err != nil {
			return err
		}
		slog.Info("Engine.joinGroup: user joined group", "user_id", user.UserID, "group_id", groupID)
		text = fmt.Sprintf("「%s」に参加しました", group.GroupName)
	}
	return e.msg.Reply(ctx, event.ReplyToken, []models.Message{models.NewTextMessage(text)})
}

func (e *Engine) handlePostback(ctx context.Context, user *models.User, event models.Event) error {
	if event.Postback == nil {
		return nil
	}
	data := models.ParsePostbackData(event.Postback.Data)

	if data.IsMenu() {
		return e.handleMenu(ctx, user, event, data.Menu)
	}

	if user.Session.IsZero() {
		slog.Debug("Engine.handlePostback: postback without session", "user_id", user.UserID)
		return nil
	}

	switch user.Session.Mode {
	case models.ModeNotifyPractices:
		return e.notifyPostback(ctx, user, event, data)
	case models.ModeAddPractice:
		return e.addPracticePostback(ctx, user, event, data)
	case models.ModeWithdrawGroup:
		return e.withdrawPostback(ctx, user, event, data)
	default:
		slog.Error("Engine.handlePostback: postback under unexpected mode", "user_id", user.UserID, "mode", user.Session.Mode)
		return e.failRestart(ctx, user, event)
	}
}

func (e *Engine) handleMenu(ctx context.Context, user *models.User, event models.Event, menu models.Mode) error {
	slog.Info("Engine.handleMenu", "user_id", user.UserID, "menu", menu)
	switch menu {
	case models.ModeJoinGroup:
		return e.menuJoinGroup(ctx, user, event)
	case models.ModeListPractices:
		return e.menuListPractices(ctx, user, event)
	case models.ModeNotifyPractices:
		return e.menuNotifyPractices(ctx, user, event)
	case models.ModeAddPractice:
		return e.menuAddPractice(ctx, user, event)
	case models.ModeDeletePractice:
		return e.msg.Reply(ctx, event.ReplyToken, []models.Message{models.NewTextMessage(textUnavailable)})
	case models.ModeWithdrawGroup:
		return e.menuWithdrawGroup(ctx, user, event)
	default:
		slog.Error("Engine.handleMenu: unknown menu", "menu", menu)
		return nil
	}
}

func (e *Engine) menuJoinGroup(ctx context.Context, user *models.User, event models.Event) error {
	if len(user.Groups) >= models.MaxJoinableGroups {
		text := fmt.Sprintf(
			"参加できる座組は%d組までです。\n「座組を抜ける」ボタンから座組を抜けたのち、もう一度お試しください",
			models.MaxJoinableGroups,
		)
		return e.msg.Reply(ctx, event.ReplyToken, []models.Message{models.NewTextMessage(text)})
	}
	if err := e.saveSession(user, &models.Session{Mode: models.ModeJoinGroup}); err != nil {
		return err
	}
	text := "座組に参加されるんですね！\n座組のIDを入力してください"
	return e.msg.Reply(ctx, event.ReplyToken, []models.Message{models.NewTextMessage(text)})
}

func (e *Engine) menuListPractices(ctx context.Context, user *models.User, event models.Event) error {
	if len(user.Groups) == 0 {
		return e.msg.Reply(ctx, event.ReplyToken, []models.Message{models.NewTextMessage(textNoGroups)})
	}
	today := e.now().Format(models.DateLayout)
	var practiceGroups [][]models.Practice
	for _, g := range user.Groups {
		practices, err := e.store.ListPracticesFrom(g.GroupID, today)
		if err != nil {
			return fmt.Errorf("flow.Engine.menuListPractices: %w", err)
		}
		if len(practices) > 0 {
			practiceGroups = append(practiceGroups, practices)
		}
	}
	if len(practiceGroups) == 0 {
		return e.msg.Reply(ctx, event.ReplyToken, []models.Message{models.NewTextMessage("予定されている稽古はありません")})
	}
	return e.msg.Reply(ctx, event.ReplyToken, []models.Message{models.NewTextMessage(PracticeListText(practiceGroups))})
}

func (e *Engine) menuNotifyPractices(ctx context.Context, user *models.User, event models.Event) error {
	switch len(user.Groups) {
	case 0:
		return e.msg.Reply(ctx, event.ReplyToken, []models.Message{models.NewTextMessage(textNoGroups)})
	case 1:
		g := user.Groups[0]
		session := &models.Session{
			Mode:  models.ModeNotifyPractices,
			Phase: models.PhaseConfirm,
			Data:  &models.PracticeDraft{GroupID: g.GroupID, GroupName: g.GroupName},
		}
		if err := e.saveSession(user, session); err != nil {
			return err
		}
		return e.msg.Reply(ctx, event.ReplyToken, []models.Message{NotifyConfirmMessage(g.GroupName)})
	default:
		session := &models.Session{Mode: models.ModeNotifyPractices, Phase: models.PhaseAskGroup}
		if err := e.saveSession(user, session); err != nil {
			return err
		}
		return e.msg.Reply(ctx, event.ReplyToken, []models.Message{NotifyAskGroupMessage(user.Groups)})
	}
}

func (e *Engine) menuAddPractice(ctx context.Context, user *models.User, event models.Event) error {
	switch len(user.Groups) {
	case 0:
		return e.msg.Reply(ctx, event.ReplyToken, []models.Message{models.NewTextMessage(textNoGroups)})
	case 1:
		g := user.Groups[0]
		session := &models.Session{
			Mode:  models.ModeAddPractice,
			Phase: models.PhaseAskPlace,
			Data:  &models.PracticeDraft{GroupID: g.GroupID, GroupName: g.GroupName},
		}
		if err := e.saveSession(user, session); err != nil {
			return err
		}
		return e.askPlace(ctx, user, event, g.Area)
	default:
		session := &models.Session{Mode: models.ModeAddPractice, Phase: models.PhaseAskGroup}
		if err := e.saveSession(user, session); err != nil {
			return err
		}
		return e.msg.Reply(ctx, event.ReplyToken, []models.Message{AddPracticeAskGroupMessage(user.Groups)})
	}
}

// askPlace sends the wizard's first step: the venue catalog of the group's
// area. The reply carries the prompt and the first carousel; extra pages go
// out as pushes because a reply holds at most five messages.
func (e *Engine) askPlace(ctx context.Context, user *models.User, event models.Event, area string) error {
	places, err := venues.ByArea(area)
	if err != nil {
		return fmt.Errorf("flow.Engine.askPlace: %w", err)
	}
	pages := VenueCarouselMessages(e.cfg.StaticDomain, places)

	reply := []models.Message{models.NewTextMessage(textAskPlaceHead)}
	if len(pages) > 0 {
		reply = append(reply, pages[0])
	}
	if err := e.msg.Reply(ctx, event.ReplyToken, reply); err != nil {
		return err
	}
	for i := 1; i < len(pages); i++ {
		if err := e.msg.Push(ctx, user.UserID, []models.Message{pages[i]}); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) menuWithdrawGroup(ctx context.Context, user *models.User, event models.Event) error {
	if len(user.Groups) == 0 {
		return e.msg.Reply(ctx, event.ReplyToken, []models.Message{models.NewTextMessage(textNoGroups)})
	}
	session := &models.Session{Mode: models.ModeWithdrawGroup, Phase: models.PhaseAskGroup}
	if err := e.saveSession(user, session); err != nil {
		return err
	}
	return e.msg.Reply(ctx, event.ReplyToken, []models.Message{WithdrawAskGroupMessage(user.Groups)})
}

func (e *Engine) notifyPostback(ctx context.Context, user *models.User, event models.Event, data models.PostbackData) error {
	switch user.Session.Phase {
	case models.PhaseAskGroup:
		group, ok := user.GroupByID(data.GroupID)
		if !ok {
			slog.Error("Engine.notifyPostback: selected group not joined", "user_id", user.UserID, "group_id", data.GroupID)
			return e.failRestart(ctx, user, event)
		}
		session := &models.Session{
			Mode:  models.ModeNotifyPractices,
			Phase: models.PhaseConfirm,
			Data:  &models.PracticeDraft{GroupID: group.GroupID, GroupName: group.GroupName},
		}
		if err := e.saveSession(user, session); err != nil {
			return err
		}
		return e.msg.Reply(ctx, event.ReplyToken, []models.Message{NotifyConfirmMessage(group.GroupName)})

	case models.PhaseConfirm:
		switch data.Action {
		case models.ConfirmApprove:
			return e.notifyApprove(ctx, user)
		case models.ConfirmCancel:
			if err := e.saveSession(user, nil); err != nil {
				return err
			}
			return e.msg.Reply(ctx, event.ReplyToken, []models.Message{models.NewTextMessage("かしこまりました。通知は行いません")})
		default:
			slog.Error("Engine.notifyPostback: unexpected action", "user_id", user.UserID, "data", event.Postback.Data)
			return e.failRestart(ctx, user, event)
		}

	default:
		slog.Error("Engine.notifyPostback: unexpected phase", "user_id", user.UserID, "phase", user.Session.Phase)
		return e.failRestart(ctx, user, event)
	}
}

// notifyApprove broadcasts the group's upcoming schedule to every member.
// The sender is a member too and receives the push, so no separate reply is
// sent.
func (e *Engine) notifyApprove(ctx context.Context, user *models.User) error {
	groupID := user.Session.Data.GroupID
	groupName := user.Session.Data.GroupName

	today := e.now().Format(models.DateLayout)
	practices, err := e.store.ListPracticesFrom(groupID, today)
	if err != nil {
		return fmt.Errorf("flow.Engine.notifyApprove: %w", err)
	}
	members, err := e.store.ListGroupMembers(groupID)
	if err != nil {
		return fmt.Errorf("flow.Engine.notifyApprove: %w", err)
	}

	senderName := ""
	if profile, err := e.msg.GetProfile(ctx, user.UserID); err == nil {
		senderName = profile.DisplayName
	} else {
		slog.Error("Engine.notifyApprove: profile fetch failed", "user_id", user.UserID, "error", err)
	}

	text := NotifyBroadcastText(senderName, groupName, practices)
	for _, member := range members {
		if err := e.msg.Push(ctx, member, []models.Message{models.NewTextMessage(text)}); err != nil {
			slog.Error("Engine.notifyApprove: push failed", "to", member, "error", err)
		}
	}
	slog.Info("Engine.notifyApprove: broadcast sent", "group_id", groupID, "members", len(members))
	return e.saveSession(user, nil)
}

func (e *Engine) addPracticePostback(ctx context.Context, user *models.User, event models.Event, data models.PostbackData) error {
	switch user.Session.Phase {
	case models.PhaseAskGroup:
		return e.addPracticeAskGroup(ctx, user, event, data)
	case models.PhaseAskPlace:
		return e.addPracticeAskPlace(ctx, user, event, data)
	case models.PhaseAskDate:
		return e.addPracticeAskDate(ctx, user, event)
	case models.PhaseAskStart:
		return e.addPracticeAskStart(ctx, user, event)
	case models.PhaseAskEnd:
		return e.addPracticeAskEnd(ctx, user, event)
	default:
		slog.Error("Engine.addPracticePostback: unexpected phase", "user_id", user.UserID, "phase", user.Session.Phase)
		return e.failRestart(ctx, user, event)
	}
}

func (e *Engine) addPracticeAskGroup(ctx context.Context, user *models.User, event models.Event, data models.PostbackData) error {
	group, ok := user.GroupByID(data.GroupID)
	if !ok {
		slog.Error("Engine.addPracticeAskGroup: selected group not joined", "user_id", user.UserID, "group_id", data.GroupID)
		return e.failRestart(ctx, user, event)
	}
	session := &models.Session{
		Mode:  models.ModeAddPractice,
		Phase: models.PhaseAskPlace,
		Data:  &models.PracticeDraft{GroupID: group.GroupID, GroupName: group.GroupName},
	}
	if err := e.saveSession(user, session); err != nil {
		return err
	}
	return e.askPlace(ctx, user, event, group.Area)
}

func (e *Engine) addPracticeAskPlace(ctx context.Context, user *models.User, event models.Event, data models.PostbackData) error {
	group, err := e.store.GetGroup(user.Session.Data.GroupID)
	if err != nil {
		return fmt.Errorf("flow.Engine.addPracticeAskPlace: %w", err)
	}
	if group == nil {
		slog.Error("Engine.addPracticeAskPlace: session group vanished", "group_id", user.Session.Data.GroupID)
		return e.failRestart(ctx, user, event)
	}
	if _, ok := venues.Lookup(group.Area, data.Place); !ok {
		// Keep the session so the user can pick again from the carousel.
		slog.Error("Engine.addPracticeAskPlace: unknown place", "area", group.Area, "place", data.Place)
		text := "指定された稽古場が見つかりません。\nもう一度カルーセルから選んでください"
		return e.msg.Reply(ctx, event.ReplyToken, []models.Message{models.NewTextMessage(text)})
	}
	session := &models.Session{
		Mode:  models.ModeAddPractice,
		Phase: models.PhaseAskDate,
		Data: &models.PracticeDraft{
			GroupID:   group.GroupID,
			GroupName: group.GroupName,
			Place:     data.Place,
		},
	}
	if err := e.saveSession(user, session); err != nil {
		return err
	}
	return e.msg.Reply(ctx, event.ReplyToken, []models.Message{AskDateMessage()})
}

func (e *Engine) addPracticeAskDate(ctx context.Context, user *models.User, event models.Event) error {
	if event.Postback.Params == nil || event.Postback.Params.Date == "" {
		return e.failRestart(ctx, user, event)
	}
	date := event.Postback.Params.Date
	before, err := util.IsBeforeDay(date, e.now())
	if err != nil {
		return e.failRestart(ctx, user, event)
	}
	if before {
		text := "【エラー】\n日付には今日以降の日付を指定してください"
		return e.msg.Reply(ctx, event.ReplyToken, []models.Message{models.NewTextMessage(text)})
	}
	draft := *user.Session.Data
	draft.Date = date
	session := &models.Session{Mode: models.ModeAddPractice, Phase: models.PhaseAskStart, Data: &draft}
	if err := e.saveSession(user, session); err != nil {
		return err
	}
	return e.msg.Reply(ctx, event.ReplyToken, []models.Message{AskTimeMessage(models.PhaseAskStart)})
}

func (e *Engine) addPracticeAskStart(ctx context.Context, user *models.User, event models.Event) error {
	if event.Postback.Params == nil || event.Postback.Params.Time == "" {
		return e.failRestart(ctx, user, event)
	}
	startTime := event.Postback.Params.Time
	draft := *user.Session.Data
	key := models.PracticeKey(draft.Date, startTime, draft.Place)
	exists, err := e.store.PracticeExists(draft.GroupID, key)
	if err != nil {
		return fmt.Errorf("flow.Engine.addPracticeAskStart: %w", err)
	}
	if exists {
		if err := e.saveSession(user, nil); err != nil {
			return err
		}
		text := "一つの座組の稽古予定に、同じ稽古場で同じ日付、同じ開始時間の稽古は二つ以上登録できません。\n初めからやりなおしてください"
		return e.msg.Reply(ctx, event.ReplyToken, []models.Message{models.NewTextMessage(text)})
	}
	draft.StartTime = startTime
	session := &models.Session{Mode: models.ModeAddPractice, Phase: models.PhaseAskEnd, Data: &draft}
	if err := e.saveSession(user, session); err != nil {
		return err
	}
	return e.msg.Reply(ctx, event.ReplyToken, []models.Message{AskTimeMessage(models.PhaseAskEnd)})
}

func (e *Engine) addPracticeAskEnd(ctx context.Context, user *models.User, event models.Event) error {
	if event.Postback.Params == nil || event.Postback.Params.Time == "" {
		return e.failRestart(ctx, user, event)
	}
	endTime := event.Postback.Params.Time
	draft := *user.Session.Data
	startBeforeEnd, err := util.IsClockBefore(draft.StartTime, endTime)
	if err != nil {
		return e.failRestart(ctx, user, event)
	}
	if !startBeforeEnd {
		text := "【エラー】\n終了時間には、開始時間より後の時間を指定してください"
		return e.msg.Reply(ctx, event.ReplyToken, []models.Message{models.NewTextMessage(text)})
	}
	draft.EndTime = endTime

	practice := models.Practice{
		GroupID:        draft.GroupID,
		DateStartPlace: models.PracticeKey(draft.Date, draft.StartTime, draft.Place),
		GroupName:      draft.GroupName,
		Place:          draft.Place,
		Date:           draft.Date,
		StartTime:      draft.StartTime,
		EndTime:        draft.EndTime,
	}
	area := models.DefaultArea
	if g, ok := user.GroupByID(draft.GroupID); ok {
		area = g.Area
	}
	if v, ok := venues.Lookup(area, draft.Place); ok {
		practice.Address = v.Address
	}
	if err := e.store.CreatePractice(practice); err != nil {
		if errors.Is(err, models.ErrPracticeExists) {
			return e.failRestart(ctx, user, event)
		}
		return fmt.Errorf("flow.Engine.addPracticeAskEnd: %w", err)
	}
	if err := e.saveSession(user, nil); err != nil {
		return err
	}
	slog.Info("Engine.addPracticeAskEnd: practice created",
		"group_id", practice.GroupID, "key", practice.DateStartPlace)

	if err := e.msg.Reply(ctx, event.ReplyToken, []models.Message{models.NewTextMessage(PracticeRegisteredText(draft))}); err != nil {
		return err
	}

	userName := ""
	if profile, err := e.msg.GetProfile(ctx, user.UserID); err == nil {
		userName = profile.DisplayName
	}
	entry := fmt.Sprintf("%sが%s %s〜%s@%sの稽古を追加しました",
		userName, draft.Date, draft.StartTime, draft.EndTime, draft.Place)
	if err := e.store.AppendPracticeLog(draft.GroupID, entry); err != nil {
		slog.Error("Engine.addPracticeAskEnd: audit log write failed", "group_id", draft.GroupID, "error", err)
	}
	return nil
}

func (e *Engine) withdrawPostback(ctx context.Context, user *models.User, event models.Event, data models.PostbackData) error {
	switch user.Session.Phase {
	case models.PhaseAskGroup:
		group, ok := user.GroupByID(data.GroupID)
		if !ok {
			slog.Error("Engine.withdrawPostback: selected group not joined", "user_id", user.UserID, "group_id", data.GroupID)
			return e.failRestart(ctx, user, event)
		}
		session := &models.Session{
			Mode:  models.ModeWithdrawGroup,
			Phase: models.PhaseConfirm,
			Data:  &models.PracticeDraft{GroupID: group.GroupID, GroupName: group.GroupName},
		}
		if err := e.saveSession(user, session); err != nil {
			return err
		}
		return e.msg.Reply(ctx, event.ReplyToken, []models.Message{WithdrawConfirmMessage(group.GroupName)})

	case models.PhaseConfirm:
		switch data.Action {
		case models.ConfirmApprove:
			return e.withdrawApprove(ctx, user, event)
		case models.ConfirmCancel:
			if err := e.saveSession(user, nil); err != nil {
				return err
			}
			text := "座組にはそのまま参加されるんですね。\nかしこまりました"
			return e.msg.Reply(ctx, event.ReplyToken, []models.Message{models.NewTextMessage(text)})
		default:
			slog.Error("Engine.withdrawPostback: unexpected action", "user_id", user.UserID, "data", event.Postback.Data)
			return e.failRestart(ctx, user, event)
		}

	default:
		slog.Error("Engine.withdrawPostback: unexpected phase", "user_id", user.UserID, "phase", user.Session.Phase)
		return e.failRestart(ctx, user, event)
	}
}

func (e *Engine) withdrawApprove(ctx context.Context, user *models.User, event models.Event) error {
	groupID := user.Session.Data.GroupID
	groupName := user.Session.Data.GroupName

	remaining := make([]models.GroupRef, 0, len(user.Groups))
	for _, g := range user.Groups {
		if g.GroupID != groupID {
			remaining = append(remaining, g)
		}
	}
	if err := e.store.UpdateUserGroups(user.UserID, remaining); err != nil {
		return fmt.Errorf("flow.Engine.withdrawApprove: %w", err)
	}
	if err := e.store.DeleteRelation(user.UserID, groupID); err != nil {
		return fmt.Errorf("flow.Engine.withdrawApprove: %w", err)
	}
	if err := e.saveSession(user, nil); err != nil {
		return err
	}
	slog.Info("Engine.withdrawApprove: user left group", "user_id", user.UserID, "group_id", groupID)
	text := fmt.Sprintf("「%s」を抜けました。お疲れさまでした", groupName)
	return e.msg.Reply(ctx, event.ReplyToken, []models.Message{models.NewTextMessage(text)})
}

// failRestart is the shared unrecoverable-state handler: wipe the session
// and ask the user to start over.
func (e *Engine) failRestart(ctx context.Context, user *models.User, event models.Event) error {
	if err := e.saveSession(user, nil); err != nil {
		return err
	}
	return e.msg.Reply(ctx, event.ReplyToken, []models.Message{models.NewTextMessage(textRestart)})
}

// saveSession persists the session and mirrors it onto the loaded user so
// later steps of the same turn see the new state.
func (e *Engine) saveSession(user *models.User, session *models.Session) error {
	var err error
	if e.cfg.StrictSessionUpdates {
		err = e.store.CompareAndSwapUserSession(user.UserID, session, user.SessionVersion)
	} else {
		err = e.store.UpdateUserSession(user.UserID, session)
	}
	if err != nil {
		return fmt.Errorf("flow.Engine.saveSession: %w", err)
	}
	user.Session = session
	user.SessionVersion++
	return nil
}
