// Slack Web API implementation of presence publishing.
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/nowplaying/internal/models"
	"github.com/desertthunder/nowplaying/internal/shared"
	"github.com/hashicorp/go-retryablehttp"
)

type slackProfileRequest struct {
	Profile models.PresenceUpdate `json:"profile"`
}

type slackResponse struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error"`
	Warning string `json:"warning"`
}

// SlackPublisher sets the user's Slack profile status with a static, pre-issued user token.
type SlackPublisher struct {
	baseURL string
	token   string
	client  *retryablehttp.Client
	logger  *log.Logger
}

// NewSlackPublisher creates a publisher from cfg. Transport errors, 429 and 5xx responses are retried
// up to cfg.RetryMax times. base, when non-nil, replaces the underlying [http.Client].
func NewSlackPublisher(cfg shared.SlackConfig, logger *log.Logger, base *http.Client) *SlackPublisher {
	if logger == nil {
		logger = shared.NewLogger(nil)
	}

	client := retryablehttp.NewClient()
	client.RetryMax = cfg.RetryMax
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 5 * time.Second
	client.Logger = nil
	if base != nil {
		client.HTTPClient = base
	} else {
		client.HTTPClient.Timeout = 10 * time.Second
	}

	return &SlackPublisher{
		baseURL: strings.TrimRight(cfg.APIURL, "/"),
		token:   cfg.Token,
		client:  client,
		logger:  shared.WithLogger(logger, "component", "slack"),
	}
}

// Publish sets status text and emoji. Empty arguments clear the status.
//
// A response with "ok": false is logged and returned as [shared.ErrPresenceRejected].
func (s *SlackPublisher) Publish(ctx context.Context, text, emoji string) error {
	return s.PublishUpdate(ctx, models.NewPresence(text, emoji))
}

// Clear removes the status.
func (s *SlackPublisher) Clear(ctx context.Context) error {
	return s.PublishUpdate(ctx, models.PresenceUpdate{})
}

// PublishUpdate posts update to users.profile.set.
func (s *SlackPublisher) PublishUpdate(ctx context.Context, update models.PresenceUpdate) error {
	payload, err := json.Marshal(slackProfileRequest{Profile: update})
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/users.profile.set", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Error("presence request failed", "error", err)
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		s.logger.Error("failed to read presence response", "error", err)
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}

	var result slackResponse
	if err := json.Unmarshal(body, &result); err != nil {
		s.logger.Error("unexpected presence response", "status", resp.Status, "body", string(body))
		return fmt.Errorf("%w: status %s", shared.ErrPresenceRejected, resp.Status)
	}

	if !result.OK {
		s.logger.Error("slack rejected presence update", "error", result.Error, "status", resp.Status)
		return fmt.Errorf("%w: %s", shared.ErrPresenceRejected, result.Error)
	}

	if result.Warning != "" {
		s.logger.Warn("slack presence warning", "warning", result.Warning)
	}
	s.logger.Debug("presence updated", "text", update.StatusText, "emoji", update.StatusEmoji)
	return nil
}
