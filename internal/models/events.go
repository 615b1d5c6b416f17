// Package models defines the inbound webhook event envelope.
package models

import "strings"

// EventType discriminates inbound webhook events.
type EventType string

const (
	EventTypeFollow   EventType = "follow"
	EventTypeUnfollow EventType = "unfollow"
	EventTypeMessage  EventType = "message"
	EventTypePostback EventType = "postback"
)

// WebhookRequest is the signed webhook body. The platform delivers one event
// per request in practice; the engine processes the first event present.
type WebhookRequest struct {
	Destination string  `json:"destination,omitempty"`
	Events      []Event `json:"events"`
}

// Event is a single inbound webhook event.
type Event struct {
	Type       EventType   `json:"type"`
	ReplyToken string      `json:"replyToken,omitempty"`
	Source     EventSource `json:"source"`
	Timestamp  int64       `json:"timestamp,omitempty"`
	Message    *TextInput  `json:"message,omitempty"`
	Postback   *Postback   `json:"postback,omitempty"`
}

// EventSource identifies the sender of an event.
type EventSource struct {
	Type   string `json:"type"`
	UserID string `json:"userId"`
}

// TextInput is the message payload of a message event. Only text messages
// are meaningful to the engine.
type TextInput struct {
	ID   string `json:"id,omitempty"`
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Postback carries the data string of a tapped action plus optional
// date/time picker parameters.
type Postback struct {
	Data   string          `json:"data"`
	Params *PostbackParams `json:"params,omitempty"`
}

// PostbackParams holds datetime picker results.
type PostbackParams struct {
	Date     string `json:"date,omitempty"`
	Time     string `json:"time,omitempty"`
	Datetime string `json:"datetime,omitempty"`
}

// ConfirmAction is the approve/cancel choice of a confirm template.
type ConfirmAction string

const (
	ConfirmApprove ConfirmAction = "approve"
	ConfirmCancel  ConfirmAction = "cancel"
)

// PostbackData is a postback data string decoded once at the boundary.
// Exactly one of the fields is set per postback: menu selections carry
// "method=<Mode>", in-flow selections carry "group_id=", "place=" or
// "action=".
type PostbackData struct {
	Menu    Mode
	GroupID string
	Place   string
	Action  ConfirmAction
}

// ParsePostbackData decodes a raw postback data string into its typed form.
// Unknown keys decode to the zero value; the engine treats that as an
// unexpected input for the current phase.
func ParsePostbackData(data string) PostbackData {
	key, value, found := strings.Cut(data, "=")
	if !found {
		return PostbackData{}
	}
	switch key {
	case "method":
		return PostbackData{Menu: Mode(value)}
	case "group_id":
		return PostbackData{GroupID: value}
	case "place":
		return PostbackData{Place: value}
	case "action":
		return PostbackData{Action: ConfirmAction(value)}
	default:
		return PostbackData{}
	}
}

// IsMenu reports whether the postback is a menu selection.
func (d PostbackData) IsMenu() bool {
	return d.Menu != ""
}
