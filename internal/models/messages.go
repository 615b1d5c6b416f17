// Package models defines outbound message payloads.
//
// The shapes follow the LINE Messaging API template message format; the
// message builders in the flow package assemble them and the messaging
// gateway serializes them as-is.
package models

// Template type discriminators.
const (
	MessageTypeText     = "text"
	MessageTypeTemplate = "template"

	TemplateTypeButtons  = "buttons"
	TemplateTypeConfirm  = "confirm"
	TemplateTypeCarousel = "carousel"

	ActionTypePostback       = "postback"
	ActionTypeDatetimePicker = "datetimepicker"
	ActionTypeURI            = "uri"

	PickerModeDate = "date"
	PickerModeTime = "time"
)

// Message is a single outbound message, either plain text or a template.
type Message struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	AltText  string    `json:"altText,omitempty"`
	Template *Template `json:"template,omitempty"`
}

// Template is the body of a template message.
type Template struct {
	Type    string           `json:"type"`
	Title   string           `json:"title,omitempty"`
	Text    string           `json:"text,omitempty"`
	Actions []Action         `json:"actions,omitempty"`
	Columns []CarouselColumn `json:"columns,omitempty"`
}

// Action is a tappable action inside a template.
type Action struct {
	Type        string `json:"type"`
	Label       string `json:"label,omitempty"`
	Text        string `json:"text,omitempty"`
	DisplayText string `json:"displayText,omitempty"`
	Data        string `json:"data,omitempty"`
	Mode        string `json:"mode,omitempty"`
	URI         string `json:"uri,omitempty"`
}

// CarouselColumn is one card of a carousel template.
type CarouselColumn struct {
	ThumbnailImageURL string   `json:"thumbnailImageUrl,omitempty"`
	Text              string   `json:"text"`
	Actions           []Action `json:"actions"`
}

// NewTextMessage builds a plain text message.
func NewTextMessage(text string) Message {
	return Message{Type: MessageTypeText, Text: text}
}
