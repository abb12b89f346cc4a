// Package spendagent is the HTTP client for the spend analyzer agent
// endpoint. One Invoke call mints a fresh session identifier, sends the
// prompt and returns the raw response envelope; correlation with traces and
// scores happens elsewhere through the session id.
package spendagent

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"time"

	"github.com/bytedance/sonic"
	"github.com/preetham599/PSAAutomation/logger"
	"github.com/preetham599/PSAAutomation/model"
	"golang.org/x/time/rate"
)

const invokePath = "/react/invoke"

// sessionIDSpace bounds the numeric session identifier: 8 decimal digits,
// zero padded.
const sessionIDSpace = 100_000_000

type Client struct {
	baseURL     string
	workspaceID int
	httpClient  *http.Client
	limiter     *rate.Limiter
}

// NewClient builds an agent client. The timeout is generous since agent
// responses involve long-running generation.
func NewClient(baseURL string, workspaceID int, timeout time.Duration) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("agent base URL is empty")
	}
	if workspaceID <= 0 {
		workspaceID = model.DefaultWorkspaceID
	}
	if timeout <= 0 {
		timeout = model.DefaultInvokeTimeout
	}

	return &Client{
		baseURL:     baseURL,
		workspaceID: workspaceID,
		httpClient:  &http.Client{Timeout: timeout},
	}, nil
}

// SetRateLimit throttles outbound invokes to at most rpm requests per minute.
// Zero or negative disables throttling.
func (c *Client) SetRateLimit(rpm int) {
	if rpm <= 0 {
		c.limiter = nil
		return
	}
	c.limiter = rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1)
}

// Invocation carries the outcome of one agent call. SessionID is always
// populated so callers can correlate traces even when the call failed.
type Invocation struct {
	SessionID string
	Response  *model.InvokeResponse
	RawBody   []byte
}

// Invoke sends exactly one request for the given prompt. A transport failure
// or non-2xx status comes back as an error alongside the minted session id;
// the client never retries.
func (c *Client) Invoke(ctx context.Context, query, runID string) (*Invocation, error) {
	return c.InvokeFollowUp(ctx, query, runID, "")
}

// InvokeFollowUp is Invoke with a previous query attached, used for
// conversational follow-up prompts. An empty previousQuery is omitted from
// the payload.
func (c *Client) InvokeFollowUp(ctx context.Context, query, runID, previousQuery string) (*Invocation, error) {
	inv := &Invocation{SessionID: NewSessionID()}

	payload := model.InvokePayload{
		Input: model.InvokeInput{
			Query:       query,
			WorkspaceID: c.workspaceID,
			UserConfig: model.UserConfig{
				SessionID:              inv.SessionID,
				LLMModel:               model.DefaultLLMModel,
				UserID:                 "",
				GroupIDs:               []string{},
				AgentLabel:             model.DefaultAgentLabel,
				IncludeRecommendations: true,
				ForceRegenerate:        true,
				IncludeInsights:        true,
				RefreshData:            true,
			},
			AdditionalInfo: model.AdditionalInfo{
				QueryID:      0,
				SystemPrompt: "",
				SourceScreen: model.DefaultSourceScreen,
				RunID:        runID,
			},
			PreviousQuery: previousQuery,
		},
		Kwargs: map[string]any{},
		Config: map[string]any{},
	}

	body, err := sonic.Marshal(payload)
	if err != nil {
		return inv, fmt.Errorf("failed to marshal invoke payload: %w", err)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return inv, fmt.Errorf("rate limiter wait: %w", err)
		}
	}

	logger.Logger.Info("Invoking agent",
		"url", c.baseURL+invokePath,
		"session_id", inv.SessionID,
		"run_id", runID,
		"query", query)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+invokePath, bytes.NewReader(body))
	if err != nil {
		return inv, fmt.Errorf("failed to build invoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return inv, fmt.Errorf("invoke request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return inv, fmt.Errorf("failed to read invoke response: %w", err)
	}
	inv.RawBody = raw

	logger.Logger.Debug("Agent responded",
		"status", resp.StatusCode,
		"session_id", inv.SessionID,
		"duration", time.Since(start),
		"bytes", len(raw))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return inv, fmt.Errorf("agent returned status %d: %s", resp.StatusCode, truncate(raw, 512))
	}

	var envelope model.InvokeResponse
	if err := sonic.Unmarshal(raw, &envelope); err != nil {
		return inv, fmt.Errorf("failed to decode invoke response: %w", err)
	}
	inv.Response = &envelope

	return inv, nil
}

// NewSessionID mints a fresh 8-digit zero-padded numeric session identifier.
func NewSessionID() string {
	n, err := rand.Int(rand.Reader, big.NewInt(sessionIDSpace))
	if err != nil {
		// crypto/rand failing means the platform is broken; fall back to a
		// time-derived id rather than abort the batch.
		return fmt.Sprintf("%08d", time.Now().UnixNano()%sessionIDSpace)
	}
	return fmt.Sprintf("%08d", n.Int64())
}

func truncate(b []byte, max int) string {
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max]) + "..."
}
