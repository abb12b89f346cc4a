package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/preetham599/PSAAutomation/langfuse"
	"github.com/preetham599/PSAAutomation/logger"
	"github.com/preetham599/PSAAutomation/model"
	"github.com/preetham599/PSAAutomation/spendagent"
)

// AgentInvoker is the slice of the spend agent client the runner needs.
type AgentInvoker interface {
	InvokeFollowUp(ctx context.Context, query, runID, previousQuery string) (*spendagent.Invocation, error)
}

// ScoreWaiter blocks until the eval score for a session is available or the
// wait deadline passes.
type ScoreWaiter interface {
	WaitForScore(ctx context.Context, sessionID string) (float64, string, error)
}

// Runner executes eval test cases one at a time and owns the batch
// accumulator. It is not safe for concurrent use; cases run strictly
// sequentially so report order matches prompt order.
type Runner struct {
	agent  AgentInvoker
	waiter ScoreWaiter

	passThreshold   float64
	warnOnEmptyRows bool
	traceURLBase    string // "<langfuse>/project/<id>", empty disables links

	reports []model.TestCaseReport
}

func NewRunner(agent AgentInvoker, waiter ScoreWaiter, settings model.Settings) *Runner {
	traceURLBase := ""
	if settings.LangfuseBaseURL != "" && settings.LangfuseProjectID != "" {
		traceURLBase = settings.LangfuseBaseURL + "/project/" + settings.LangfuseProjectID
	}
	return &Runner{
		agent:           agent,
		waiter:          waiter,
		passThreshold:   settings.PassThreshold,
		warnOnEmptyRows: settings.EmptyRowsWarning(),
		traceURLBase:    traceURLBase,
		reports:         make([]model.TestCaseReport, 0),
	}
}

// Reports returns the accumulated batch in submission order.
func (r *Runner) Reports() []model.TestCaseReport {
	return r.reports
}

// RunCase executes one test case end to end and appends the completed report
// to the batch. It never returns an error: every failure path is classified
// into the report. The first failing condition wins.
func (r *Runner) RunCase(ctx context.Context, tc model.TestCase, templateCtx map[string]string) model.TestCaseReport {
	start := time.Now()

	prompt := model.RenderTemplate(tc.Prompt, templateCtx)
	report := model.TestCaseReport{
		TestCase: tc.ID,
		Prompt:   prompt,
		Result:   model.VerdictFail,
	}

	defer func() {
		report.TimeTakenMs = time.Since(start).Milliseconds()
		r.reports = append(r.reports, report)
		if report.Result == model.VerdictPass {
			logger.Logger.Info("Test case PASSED", "test_case", tc.ID, "time_taken_ms", report.TimeTakenMs)
		} else {
			logger.Logger.Warn("Test case FAILED",
				"test_case", tc.ID,
				"failure", string(report.Failure),
				"error", report.Error,
				"time_taken_ms", report.TimeTakenMs)
		}
	}()

	logger.Logger.Info("Executing test case", "test_case", tc.ID, "name", tc.Name)

	runID := "Auto-" + uuid.New().String()
	previousQuery := model.RenderTemplate(tc.PreviousQuery, templateCtx)

	inv, err := r.agent.InvokeFollowUp(ctx, prompt, runID, previousQuery)
	if inv != nil {
		report.SessionID = inv.SessionID
	}
	if err != nil || inv == nil || inv.Response == nil {
		report.Failure = model.FailureRequestError
		if err != nil {
			report.Error = err.Error()
		} else {
			report.Error = "empty response from agent"
		}
		return report
	}
	if !inv.Response.Success {
		report.Failure = model.FailureRequestError
		report.Error = inv.Response.Error
		if report.Error == "" {
			report.Error = "API returned success=false"
		}
		return report
	}

	if !inv.Response.HasResult() {
		report.Failure = model.FailureInvalidResponse
		report.Error = "result object missing in response"
		return report
	}

	report.Rows = inv.Response.RowCount()
	report.SQL = inv.Response.QueryText()
	if report.Rows == 0 && r.warnOnEmptyRows {
		// Soft warning only; an empty result set does not fail the case.
		report.Error = "no rows returned for the given query"
		logger.Logger.Warn("No rows returned", "test_case", tc.ID)
	}

	r.evalCaptures(tc, inv.RawBody, &report)

	score, traceID, err := r.waiter.WaitForScore(ctx, inv.SessionID)
	if traceID != "" {
		report.TraceID = traceID
		if r.traceURLBase != "" {
			report.TraceURL = r.traceURLBase + "/traces/" + traceID
		}
	}
	if err != nil {
		report.Error = err.Error()
		var timeoutErr *langfuse.ScoreTimeoutError
		if errors.As(err, &timeoutErr) && timeoutErr.TraceID == "" {
			report.Failure = model.FailureNoTrace
		} else {
			report.Failure = model.FailureNoEvalScore
		}
		return report
	}

	report.EvalScore = &score
	if score < r.passThreshold {
		report.Failure = model.FailureLowScore
		report.Error = fmt.Sprintf("eval score %.2f below pass threshold %.2f", score, r.passThreshold)
		return report
	}

	report.Result = model.VerdictPass
	report.Failure = ""
	return report
}

func (r *Runner) evalCaptures(tc model.TestCase, raw []byte, report *model.TestCaseReport) {
	if len(tc.Captures) == 0 || len(raw) == 0 {
		return
	}

	report.Captures = make(map[string]string, len(tc.Captures))
	for _, capture := range tc.Captures {
		value, err := capture.Extract(raw)
		if err != nil {
			logger.Logger.Warn("Capture failed", "test_case", tc.ID, "capture", capture.Name, "error", err)
			continue
		}
		report.Captures[capture.Name] = value
	}
	if len(report.Captures) == 0 {
		report.Captures = nil
	}
}
