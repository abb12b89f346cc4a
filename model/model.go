package model

import (
	"time"

	"github.com/bytedance/sonic"
)

// ============================================================================
// FAILURE TAXONOMY
// ============================================================================

// FailureKind classifies why a test case failed. A report carries at most one
// kind; passing reports carry none.
type FailureKind string

const (
	// FailureRequestError covers transport failures, non-2xx responses and
	// envelopes with success=false.
	FailureRequestError FailureKind = "REQUEST_ERROR"
	// FailureInvalidResponse marks a success envelope without a result object.
	FailureInvalidResponse FailureKind = "INVALID_RESPONSE"
	// FailureNoTrace means the score wait timed out before any trace was
	// recorded for the session.
	FailureNoTrace FailureKind = "NO_TRACE"
	// FailureNoEvalScore means a trace was found but no score of the tracked
	// metric appeared before the deadline.
	FailureNoEvalScore FailureKind = "NO_EVAL_SCORE"
	// FailureLowScore means scoring completed below the pass threshold.
	FailureLowScore FailureKind = "LOW_SCORE"
)

// IsReliability reports whether the failure indicates the pipeline itself
// broke, as opposed to a low-quality but complete result.
func (k FailureKind) IsReliability() bool {
	switch k {
	case FailureRequestError, FailureInvalidResponse, FailureNoTrace, FailureNoEvalScore:
		return true
	}
	return false
}

// IsQuality reports whether the failure is a scored-but-poor result.
func (k FailureKind) IsQuality() bool {
	return k == FailureLowScore
}

type Verdict string

const (
	VerdictPass Verdict = "PASS"
	VerdictFail Verdict = "FAIL"
)

// ============================================================================
// INVOKE WIRE TYPES
// ============================================================================

// InvokePayload is the request body for POST /react/invoke. Immutable once
// sent.
type InvokePayload struct {
	Input  InvokeInput    `json:"input"`
	Kwargs map[string]any `json:"kwargs"`
	Config map[string]any `json:"config"`
}

type InvokeInput struct {
	Query          string         `json:"query"`
	WorkspaceID    int            `json:"workspace_id"`
	UserConfig     UserConfig     `json:"user_config"`
	AdditionalInfo AdditionalInfo `json:"additional_info"`
	PreviousQuery  string         `json:"previous_query,omitempty"`
}

type UserConfig struct {
	SessionID              string   `json:"session_id"`
	LLMModel               string   `json:"llm_model"`
	UserID                 string   `json:"user_id"`
	GroupIDs               []string `json:"group_ids"`
	AgentLabel             string   `json:"agent_label"`
	IncludeRecommendations bool     `json:"include_recommendations"`
	ForceRegenerate        bool     `json:"force_regenerate"`
	IncludeInsights        bool     `json:"include_insights"`
	RefreshData            bool     `json:"refresh_data"`
}

type AdditionalInfo struct {
	QueryID      int    `json:"query_id"`
	SystemPrompt string `json:"system_prompt"`
	SourceScreen string `json:"source_screen"`
	RunID        string `json:"run_id"`
}

// InvokeResponse is the tagged success/failure envelope returned by the
// agent. The nested result object is optional even on success; callers must
// check HasResult before reading rows or query text.
type InvokeResponse struct {
	Success bool        `json:"success"`
	Data    *InvokeData `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type InvokeData struct {
	Result *InvokeResult `json:"result,omitempty"`
}

type InvokeResult struct {
	Rows        []any  `json:"rows,omitempty"`
	SQL         string `json:"sql,omitempty"`
	QueryObject any    `json:"query_object,omitempty"`
}

// QueryNotReturned is the sentinel recorded when the agent returned neither
// SQL text nor an abstract query object.
const QueryNotReturned = "NOT RETURNED"

func (r *InvokeResponse) HasResult() bool {
	return r != nil && r.Data != nil && r.Data.Result != nil
}

// RowCount returns the number of result rows, 0 when absent.
func (r *InvokeResponse) RowCount() int {
	if !r.HasResult() {
		return 0
	}
	return len(r.Data.Result.Rows)
}

// QueryText extracts the query representation: SQL text when present,
// otherwise the serialized query object, otherwise QueryNotReturned. Never
// empty.
func (r *InvokeResponse) QueryText() string {
	if !r.HasResult() {
		return QueryNotReturned
	}
	res := r.Data.Result
	if res.SQL != "" {
		return res.SQL
	}
	if res.QueryObject != nil {
		if s, ok := res.QueryObject.(string); ok {
			return s
		}
		if marshaled, err := sonic.MarshalString(res.QueryObject); err == nil {
			return marshaled
		}
	}
	return QueryNotReturned
}

// ============================================================================
// OBSERVABILITY READ API
// ============================================================================

// Trace is a backend-recorded execution record for one invocation, discovered
// asynchronously through the session it belongs to.
type Trace struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Tags      []string  `json:"tags,omitempty"`
}

// SessionDetail is the GET /sessions/{id} response body.
type SessionDetail struct {
	ID     string  `json:"id"`
	Traces []Trace `json:"traces"`
}

// Score is a numeric judgment attached to a trace by a named evaluation
// metric.
type Score struct {
	ID      string  `json:"id,omitempty"`
	Name    string  `json:"name"`
	TraceID string  `json:"traceId"`
	Value   float64 `json:"value"`
}

// ScoreList is the GET /scores response body.
type ScoreList struct {
	Data []Score `json:"data"`
}

// ============================================================================
// TEST CASE REPORT
// ============================================================================

// TestCaseReport is the per-prompt outcome record. It is created at the start
// of a case run, filled in as stages complete and immutable once appended to
// the batch.
type TestCaseReport struct {
	TestCase    string            `json:"testCase"`
	Prompt      string            `json:"prompt"`
	Result      Verdict           `json:"result"`
	Failure     FailureKind       `json:"failure,omitempty"`
	Rows        int               `json:"rows"`
	SQL         string            `json:"sql"`
	EvalScore   *float64          `json:"evalScore"` // nil = score unavailable
	TraceID     string            `json:"traceId,omitempty"`
	TraceURL    string            `json:"traceUrl,omitempty"`
	SessionID   string            `json:"sessionId"`
	Error       string            `json:"error,omitempty"`
	TimeTakenMs int64             `json:"timeTakenMs"`
	Captures    map[string]string `json:"captures,omitempty"`
}

// Scored reports whether a numeric eval score was obtained.
func (r *TestCaseReport) Scored() bool {
	return r.EvalScore != nil
}

// ============================================================================
// QUALITY GATE
// ============================================================================

type GateCategory string

const (
	GateNone               GateCategory = "NONE"
	GateReliabilityFailure GateCategory = "RELIABILITY_FAILURE"
	GateQualityFailure     GateCategory = "QUALITY_FAILURE"
)

// GateResult is the aggregate build/ship decision over a batch.
type GateResult struct {
	Passed              bool         `json:"passed"`
	Category            GateCategory `json:"category"`
	TotalCases          int          `json:"totalCases"`
	ScoredCases         int          `json:"scoredCases"`
	ReliabilityFailures int          `json:"reliabilityFailures"`
	QualityFailures     int          `json:"qualityFailures"`
	AverageScore        float64      `json:"averageScore"` // over scored cases only
}

// BatchResult is the ordered batch of reports plus the derived aggregate,
// computed once at batch end and handed to report rendering untouched.
type BatchResult struct {
	RunID         string              `json:"runId"`
	StartedAt     time.Time           `json:"startedAt"`
	FinishedAt    time.Time           `json:"finishedAt"`
	Reports       []TestCaseReport    `json:"reports"`
	FailureCounts map[FailureKind]int `json:"failureCounts"`
	Gate          GateResult          `json:"gate"`
}
