// Package notify implements the daily practice reminder: the evening before
// a practice, every member of the group gets a push summarizing it.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/BTreeMap/KeikobaBot/internal/flow"
	"github.com/BTreeMap/KeikobaBot/internal/messaging"
	"github.com/BTreeMap/KeikobaBot/internal/models"
	"github.com/BTreeMap/KeikobaBot/internal/store"
)

// mapActionMax is the platform limit on actions per button template.
const mapActionMax = 4

// Notifier fans the next-day practices out to group members.
type Notifier struct {
	store store.Store
	msg   messaging.Service
	now   func() time.Time
}

// NewNotifier creates a Notifier.
func NewNotifier(st store.Store, msg messaging.Service) *Notifier {
	return &Notifier{store: st, msg: msg, now: time.Now}
}

// groupBatch is one group's next-day practices plus its members.
type groupBatch struct {
	groupName string
	practices []models.Practice
	members   []string
}

// Run executes one reminder pass: collect tomorrow's practices per group,
// resolve members, and push one grouped summary per user.
func (n *Notifier) Run(ctx context.Context) error {
	groups, err := n.store.ListGroups()
	if err != nil {
		return fmt.Errorf("notify.Notifier.Run: list groups: %w", err)
	}
	if len(groups) == 0 {
		slog.Info("Notifier.Run: no groups exist")
		return nil
	}

	tomorrow := n.now().AddDate(0, 0, 1).Format(models.DateLayout)
	batches := make(map[string]*groupBatch)
	for _, g := range groups {
		practices, err := n.store.ListPracticesOn(g.GroupID, tomorrow)
		if err != nil {
			return fmt.Errorf("notify.Notifier.Run: practices of %s: %w", g.GroupID, err)
		}
		if len(practices) == 0 {
			continue
		}
		members, err := n.store.ListGroupMembers(g.GroupID)
		if err != nil {
			return fmt.Errorf("notify.Notifier.Run: members of %s: %w", g.GroupID, err)
		}
		if len(members) == 0 {
			// Nobody to notify.
			continue
		}
		batches[g.GroupID] = &groupBatch{
			groupName: g.GroupName,
			practices: practices,
			members:   members,
		}
	}
	if len(batches) == 0 {
		slog.Info("Notifier.Run: no practices tomorrow", "date", tomorrow)
		return nil
	}

	// Regroup by user so each member gets one summary covering all of
	// their groups.
	perUser := make(map[string][]*groupBatch)
	for _, batch := range batches {
		for _, userID := range batch.members {
			perUser[userID] = append(perUser[userID], batch)
		}
	}

	sent := 0
	for userID, userBatches := range perUser {
		message := buildReminderMessage(userBatches)
		if err := n.msg.Push(ctx, userID, []models.Message{message}); err != nil {
			slog.Error("Notifier.Run: push failed", "to", userID, "error", err)
			continue
		}
		sent++
	}
	slog.Info("Notifier.Run: reminders sent", "date", tomorrow, "groups", len(batches), "users", len(perUser), "sent", sent)
	return nil
}

// buildReminderMessage renders one user's reminder. When any practice in the
// batch carries location data the message is a button template with map
// links, otherwise plain text.
func buildReminderMessage(batches []*groupBatch) models.Message {
	var b strings.Builder
	b.WriteString("明日は、以下の稽古が予定されています。\n頑張っていきましょう!\n\n")
	var mapActions []models.Action
	for _, batch := range batches {
		fmt.Fprintf(&b, "【%s】\n", batch.groupName)
		for _, p := range batch.practices {
			b.WriteString(flow.PracticeLine(p))
			b.WriteString("\n")
			if p.HasGeometry() && len(mapActions) < mapActionMax {
				mapActions = append(mapActions, models.Action{
					Type:  models.ActionTypeURI,
					Label: p.Place + "の地図",
					URI:   "https://www.google.co.jp/maps?q=" + p.Address,
				})
			}
		}
	}
	text := b.String()

	if len(mapActions) == 0 {
		return models.NewTextMessage(text)
	}
	return models.Message{
		Type:    models.MessageTypeTemplate,
		AltText: "稽古予定通知メッセージ",
		Template: &models.Template{
			Type:    models.TemplateTypeButtons,
			Text:    text,
			Actions: mapActions,
		},
	}
}
