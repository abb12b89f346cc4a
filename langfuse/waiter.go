package langfuse

import (
	"context"
	"fmt"
	"time"

	"github.com/preetham599/PSAAutomation/logger"
	"github.com/preetham599/PSAAutomation/model"
)

// ScoreReader is the slice of the backend client the waiter polls against.
type ScoreReader interface {
	LatestTrace(ctx context.Context, sessionID string) (*model.Trace, error)
	ScoreByTrace(ctx context.Context, traceID string) (*float64, error)
}

// ScoreTimeoutError is the single terminal failure of a score wait. TraceID
// is empty when the deadline passed before any trace was ingested, letting
// callers distinguish a missing trace from a missing score.
type ScoreTimeoutError struct {
	SessionID string
	TraceID   string
	Elapsed   time.Duration
}

func (e *ScoreTimeoutError) Error() string {
	if e.TraceID == "" {
		return fmt.Sprintf("no trace found within %s for session=%s", e.Elapsed, e.SessionID)
	}
	return fmt.Sprintf("eval score not found within %s for session=%s trace=%s", e.Elapsed, e.SessionID, e.TraceID)
}

type waitState int

const (
	awaitingTrace waitState = iota
	awaitingScore
)

// ScoreWaiter polls the backend for the eval score of a session: first until
// a trace is correlated, then until the score of the tracked metric appears.
// A single clock bounds both phases; the deadline is not reset on the
// trace-to-score transition.
type ScoreWaiter struct {
	reader   ScoreReader
	timeout  time.Duration
	interval time.Duration

	// Injectable time primitives so tests can simulate the poll loop without
	// real delays.
	now   func() time.Time
	sleep func(time.Duration)
}

func NewScoreWaiter(reader ScoreReader, timeout, interval time.Duration) *ScoreWaiter {
	if timeout <= 0 {
		timeout = model.DefaultScoreTimeout
	}
	if interval <= 0 {
		interval = model.DefaultPollInterval
	}
	return &ScoreWaiter{
		reader:   reader,
		timeout:  timeout,
		interval: interval,
		now:      time.Now,
		sleep:    time.Sleep,
	}
}

// SetClock replaces the waiter's time primitives. Tests inject a fake clock
// whose sleep advances simulated time.
func (w *ScoreWaiter) SetClock(now func() time.Time, sleep func(time.Duration)) {
	w.now = now
	w.sleep = sleep
}

// WaitForScore blocks until the score for the session is available or the
// overall timeout elapses. It returns the score and the correlated trace id,
// or a *ScoreTimeoutError. It resolves at most once; once the score is
// obtained all polling stops immediately.
func (w *ScoreWaiter) WaitForScore(ctx context.Context, sessionID string) (float64, string, error) {
	logger.Logger.Info("Waiting for eval score", "session_id", sessionID, "timeout", w.timeout)

	start := w.now()
	state := awaitingTrace
	traceID := ""

	for {
		elapsed := w.now().Sub(start)
		if elapsed >= w.timeout {
			return 0, traceID, &ScoreTimeoutError{SessionID: sessionID, TraceID: traceID, Elapsed: elapsed}
		}

		switch state {
		case awaitingTrace:
			trace, err := w.reader.LatestTrace(ctx, sessionID)
			if err != nil {
				logger.Logger.Warn("Trace lookup error, treating as not ready",
					"session_id", sessionID, "error", err)
			}
			if trace != nil && trace.ID != "" {
				// The trace id is pinned here and never re-queried.
				traceID = trace.ID
				state = awaitingScore
				logger.Logger.Info("Trace found, now waiting for score",
					"session_id", sessionID,
					"trace_id", traceID,
					"elapsed", elapsed.Round(time.Second))
				continue
			}
			logger.Logger.Debug("Trace not ready yet",
				"session_id", sessionID, "elapsed", elapsed.Round(time.Second))

		case awaitingScore:
			score, err := w.reader.ScoreByTrace(ctx, traceID)
			if err != nil {
				logger.Logger.Warn("Score lookup error, treating as not ready",
					"trace_id", traceID, "error", err)
			}
			if score != nil {
				logger.Logger.Info("Eval score ready",
					"session_id", sessionID,
					"trace_id", traceID,
					"score", *score,
					"elapsed", elapsed.Round(time.Second))
				return *score, traceID, nil
			}
			logger.Logger.Debug("Score not ready yet",
				"trace_id", traceID, "elapsed", elapsed.Round(time.Second))
		}

		w.sleep(w.interval)
	}
}
