// Package langfuse is the read-side client for the observability backend.
// Traces and scores are produced asynchronously after an agent invocation;
// lookups here report "not there yet" as a nil result rather than an error so
// polling callers simply try again.
package langfuse

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/bytedance/sonic"
	"github.com/life4/genesis/slices"
	"github.com/preetham599/PSAAutomation/logger"
	"github.com/preetham599/PSAAutomation/model"
)

const (
	apiPrefix = "/api/public"

	// Reads can lag behind slow eval runs, so the per-request timeout is
	// deliberately long.
	defaultRequestTimeout = 180 * time.Second
)

type Client struct {
	baseURL    string
	publicKey  string
	secretKey  string
	metricName string
	httpClient *http.Client
}

func NewClient(baseURL, publicKey, secretKey, metricName string) *Client {
	if metricName == "" {
		metricName = model.DefaultMetricName
	}
	return &Client{
		baseURL:    baseURL,
		publicKey:  publicKey,
		secretKey:  secretKey,
		metricName: metricName,
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
	}
}

// BaseURL exposes the configured backend root, used to build trace links.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// LatestTrace returns the most recently created trace for a session, or nil
// when none has been ingested yet. Transport failures are logged and reported
// as nil so the caller's polling loop retries instead of aborting.
//
// Traces are sorted by creation timestamp before selecting; ties keep the
// backend's array order, last element winning.
func (c *Client) LatestTrace(ctx context.Context, sessionID string) (*model.Trace, error) {
	logger.Logger.Debug("Fetching traces for session", "session_id", sessionID)

	raw, err := c.get(ctx, apiPrefix+"/sessions/"+url.PathEscape(sessionID), nil)
	if err != nil {
		logger.Logger.Warn("Session lookup failed, will retry", "session_id", sessionID, "error", err)
		return nil, nil
	}

	var session model.SessionDetail
	if err := sonic.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("failed to decode session %s: %w", sessionID, err)
	}

	if len(session.Traces) == 0 {
		logger.Logger.Debug("No traces yet for session", "session_id", sessionID)
		return nil, nil
	}

	traces := make([]model.Trace, len(session.Traces))
	copy(traces, session.Traces)
	sort.SliceStable(traces, func(i, j int) bool {
		return traces[i].Timestamp.Before(traces[j].Timestamp)
	})

	latest := traces[len(traces)-1]
	logger.Logger.Debug("Selected trace", "session_id", sessionID, "trace_id", latest.ID)
	return &latest, nil
}

// ScoreByTrace returns the value of the tracked metric for a trace, or nil
// when no matching score has been recorded yet. Transport failures are
// treated as "not yet ready".
func (c *Client) ScoreByTrace(ctx context.Context, traceID string) (*float64, error) {
	raw, err := c.get(ctx, apiPrefix+"/scores", url.Values{"traceId": []string{traceID}})
	if err != nil {
		logger.Logger.Warn("Score lookup failed, will retry", "trace_id", traceID, "error", err)
		return nil, nil
	}

	var list model.ScoreList
	if err := sonic.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("failed to decode scores for trace %s: %w", traceID, err)
	}

	// The backend filters by traceId already, but the metric name filter is
	// client-side.
	matches := slices.Filter(list.Data, func(s model.Score) bool {
		return s.Name == c.metricName && s.TraceID == traceID
	})
	if len(matches) == 0 {
		return nil, nil
	}

	value := matches[0].Value
	return &value, nil
}

// TraceByTag returns the newest trace carrying the exact tag, or nil when
// none matches.
func (c *Client) TraceByTag(ctx context.Context, tag string) (*model.Trace, error) {
	raw, err := c.get(ctx, apiPrefix+"/traces", url.Values{"tag": []string{tag}})
	if err != nil {
		logger.Logger.Warn("Trace tag lookup failed", "tag", tag, "error", err)
		return nil, nil
	}

	var list struct {
		Data []model.Trace `json:"data"`
	}
	if err := sonic.Unmarshal(raw, &list); err != nil {
		return nil, fmt.Errorf("failed to decode traces for tag %s: %w", tag, err)
	}

	matches := slices.Filter(list.Data, func(t model.Trace) bool {
		return slices.Contains(t.Tags, tag)
	})
	if len(matches) == 0 {
		return nil, nil
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Timestamp.After(matches[j].Timestamp)
	})
	return &matches[0], nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if query != nil {
		req.URL.RawQuery = query.Encode()
	}
	req.SetBasicAuth(c.publicKey, c.secretKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("backend returned status %d", resp.StatusCode)
	}
	return body, nil
}
