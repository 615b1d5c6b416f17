// Package messaging provides the outbound message delivery abstraction and
// the webhook authenticity check for KeikobaBot.
package messaging

import (
	"context"

	"github.com/BTreeMap/KeikobaBot/internal/models"
)

// Service defines a pluggable message delivery abstraction.
//
// Reply answers an inbound event using its one-shot reply token and is
// preferred for synchronous in-turn responses. Push targets a user id
// directly and is used for broadcasts, reminders, and pagination beyond the
// first message of a turn.
type Service interface {
	// Reply sends messages bound to the inbound event's reply token.
	Reply(ctx context.Context, replyToken string, messages []models.Message) error

	// Push sends messages to a user by id.
	Push(ctx context.Context, to string, messages []models.Message) error

	// GetProfile fetches the display profile of a user.
	GetProfile(ctx context.Context, userID string) (*models.Profile, error)
}
