// Package moderation decides whether user-submitted content may be
// delivered. The decision is delegated to an external collaborator; a
// deterministic local policy answers when the collaborator cannot.
package moderation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"studyroom/internal/metrics"
	"studyroom/pkg/interfaces"
	"studyroom/pkg/types"
)

// bannedTerms is the local fallback policy: content containing any of
// these (case-insensitive substring) is flagged inappropriate.
var bannedTerms = []string{"hate", "violence", "discrimination", "harassment"}

// Gate wraps the moderation collaborator with the local fallback so the
// chat path never hard-fails on moderation.
type Gate struct {
	client interfaces.Moderator
	logger zerolog.Logger
}

// NewGate creates a gate over client; a nil client means fallback-only.
func NewGate(client interfaces.Moderator, logger zerolog.Logger) *Gate {
	return &Gate{
		client: client,
		logger: logger.With().Str("component", "moderation_gate").Logger(),
	}
}

// Check returns a verdict for content. It never returns an error: when
// the collaborator is unavailable or answers garbage, the deterministic
// local policy decides instead.
func (g *Gate) Check(ctx context.Context, content string) *types.ModerationResult {
	if g.client != nil {
		result, err := g.client.Moderate(ctx, content)
		if err == nil && result != nil {
			if result.Content == "" {
				result.Content = content
			}
			g.count(result)
			return result
		}
		if err != nil {
			g.logger.Warn().Err(err).Msg("moderation collaborator unavailable, using fallback")
		}
	}

	metrics.ModerationFallbacks.Inc()
	result := Fallback(content)
	g.count(result)
	return result
}

func (g *Gate) count(result *types.ModerationResult) {
	if result.IsAppropriate {
		metrics.ModerationChecks.WithLabelValues("appropriate").Inc()
	} else {
		metrics.ModerationChecks.WithLabelValues("flagged").Inc()
	}
}

// Fallback is the deterministic local policy, exported for tests and for
// callers that want the offline behaviour directly.
func Fallback(content string) *types.ModerationResult {
	lowered := strings.ToLower(content)
	var flags []string
	for _, term := range bannedTerms {
		if strings.Contains(lowered, term) {
			flags = append(flags, term)
		}
	}
	return &types.ModerationResult{
		IsAppropriate: len(flags) == 0,
		Content:       content,
		Flags:         flags,
		Confidence:    1.0,
	}
}

// HTTPClient calls the external moderation collaborator over HTTP.
type HTTPClient struct {
	url    string
	client *http.Client
}

// NewHTTPClient builds a collaborator client for the given endpoint.
func NewHTTPClient(url string, client *http.Client) *HTTPClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPClient{url: url, client: client}
}

type moderateRequest struct {
	Content string `json:"content"`
}

// Moderate posts content to the collaborator and decodes the verdict.
func (c *HTTPClient) Moderate(ctx context.Context, content string) (*types.ModerationResult, error) {
	body, err := json.Marshal(moderateRequest{Content: content})
	if err != nil {
		return nil, fmt.Errorf("failed to encode moderation request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build moderation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("moderation request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("moderation service returned status %d", resp.StatusCode)
	}

	var result types.ModerationResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("unparseable moderation response: %w", err)
	}
	return &result, nil
}
