package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/BTreeMap/KeikobaBot/internal/models"
)

// DefaultEndpoint is the base URL of the LINE Messaging API.
const DefaultEndpoint = "https://api.line.me"

// Opts holds the LineService configuration.
type Opts struct {
	// ChannelToken is the long-lived channel access token used as a Bearer
	// credential on every request.
	ChannelToken string
	// Endpoint is the API base URL. Defaults to DefaultEndpoint.
	Endpoint string
	// HTTPClient is the client used for API calls. Defaults to a client with
	// a 30s timeout.
	HTTPClient *http.Client
}

// Option configures Opts.
type Option func(*Opts)

// WithChannelToken sets the channel access token.
func WithChannelToken(token string) Option {
	return func(o *Opts) {
		o.ChannelToken = token
	}
}

// WithEndpoint overrides the API base URL. Useful for tests.
func WithEndpoint(endpoint string) Option {
	return func(o *Opts) {
		o.Endpoint = endpoint
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) {
		o.HTTPClient = c
	}
}

// LineService delivers messages through the LINE Messaging API.
type LineService struct {
	opts Opts
}

// NewLineService creates a LineService with the given options.
func NewLineService(options ...Option) (*LineService, error) {
	opts := Opts{
		Endpoint: DefaultEndpoint,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range options {
		opt(&opts)
	}
	if opts.ChannelToken == "" {
		return nil, fmt.Errorf("messaging.NewLineService: channel token is required")
	}
	slog.Debug("LineService initialized", "endpoint", opts.Endpoint)
	return &LineService{opts: opts}, nil
}

type replyRequest struct {
	ReplyToken string           `json:"replyToken"`
	Messages   []models.Message `json:"messages"`
}

type pushRequest struct {
	To       string           `json:"to"`
	Messages []models.Message `json:"messages"`
}

// Reply sends messages bound to a reply token.
func (s *LineService) Reply(ctx context.Context, replyToken string, messages []models.Message) error {
	if replyToken == "" {
		return fmt.Errorf("messaging.LineService.Reply: reply token is empty")
	}
	if len(messages) == 0 {
		return nil
	}
	body := replyRequest{ReplyToken: replyToken, Messages: messages}
	if err := s.post(ctx, "/v2/bot/message/reply", body); err != nil {
		slog.Error("LineService Reply failed", "error", err)
		return fmt.Errorf("messaging.LineService.Reply: %w", err)
	}
	slog.Debug("LineService Reply succeeded", "messages", len(messages))
	return nil
}

// Push sends messages to a user by id.
func (s *LineService) Push(ctx context.Context, to string, messages []models.Message) error {
	if to == "" {
		return fmt.Errorf("messaging.LineService.Push: recipient is empty")
	}
	if len(messages) == 0 {
		return nil
	}
	body := pushRequest{To: to, Messages: messages}
	if err := s.post(ctx, "/v2/bot/message/push", body); err != nil {
		slog.Error("LineService Push failed", "to", to, "error", err)
		return fmt.Errorf("messaging.LineService.Push: %w", err)
	}
	slog.Debug("LineService Push succeeded", "to", to, "messages", len(messages))
	return nil
}

// GetProfile fetches a user's display profile.
func (s *LineService) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	if userID == "" {
		return nil, fmt.Errorf("messaging.LineService.GetProfile: user id is empty")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.opts.Endpoint+"/v2/bot/profile/"+userID, nil)
	if err != nil {
		return nil, fmt.Errorf("messaging.LineService.GetProfile: create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.opts.ChannelToken)
	resp, err := s.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("messaging.LineService.GetProfile: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("messaging.LineService.GetProfile: status %d: %s", resp.StatusCode, payload)
	}
	var profile models.Profile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return nil, fmt.Errorf("messaging.LineService.GetProfile: decode response: %w", err)
	}
	return &profile, nil
}

func (s *LineService) post(ctx context.Context, path string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.opts.Endpoint+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.opts.ChannelToken)
	resp, err := s.opts.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("status %d: %s", resp.StatusCode, detail)
	}
	return nil
}
