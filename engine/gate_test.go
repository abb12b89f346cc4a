package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/preetham599/PSAAutomation/model"
)

func scoredReport(id string, score float64, passThreshold float64) model.TestCaseReport {
	r := model.TestCaseReport{TestCase: id, EvalScore: &score}
	if score >= passThreshold {
		r.Result = model.VerdictPass
	} else {
		r.Result = model.VerdictFail
		r.Failure = model.FailureLowScore
	}
	return r
}

func failedReport(id string, kind model.FailureKind) model.TestCaseReport {
	return model.TestCaseReport{TestCase: id, Result: model.VerdictFail, Failure: kind}
}

func defaultThresholds() model.GateThresholds {
	return model.GateConfig{}.Resolve()
}

func TestDecide_AllPassing(t *testing.T) {
	reports := []model.TestCaseReport{
		scoredReport("TC1", 9, 8),
		scoredReport("TC2", 10, 8),
		scoredReport("TC3", 8, 8),
	}

	result, err := Decide(reports, defaultThresholds())
	require.NoError(t, err)
	assert.True(t, result.Passed)
	assert.Equal(t, model.GateNone, result.Category)
	assert.Equal(t, 3, result.TotalCases)
	assert.Equal(t, 3, result.ScoredCases)
	assert.InDelta(t, 9.0, result.AverageScore, 0.001)
}

func TestDecide_ReliabilityCheckedBeforeQuality(t *testing.T) {
	// One request error against a zero tolerance trips the reliability gate
	// even though every scored case is a perfect 10.
	reports := []model.TestCaseReport{
		failedReport("TC1", model.FailureRequestError),
		scoredReport("TC2", 10, 8),
		scoredReport("TC3", 10, 8),
	}
	thresholds := model.GateThresholds{
		MaxReliabilityFailures: 0,
		MaxQualityFailures:     3,
		MinAvgScore:            8,
	}

	result, err := Decide(reports, thresholds)
	require.NoError(t, err)
	assert.False(t, result.Passed)
	assert.Equal(t, model.GateReliabilityFailure, result.Category)
	assert.Equal(t, 1, result.ReliabilityFailures)
	assert.InDelta(t, 10.0, result.AverageScore, 0.001)
}

func TestDecide_AverageFloorFailsWithoutLowScores(t *testing.T) {
	// Scores 9, 7 and 10 average 8.67. With the floor raised to 8.8 the gate
	// fails on the average alone even though individual low scores stay under
	// the per-case limit.
	reports := []model.TestCaseReport{
		scoredReport("TC1", 9, 8),
		scoredReport("TC2", 7, 8),
		scoredReport("TC3", 10, 8),
	}
	thresholds := model.GateThresholds{
		MaxReliabilityFailures: 0,
		MaxQualityFailures:     3,
		MinAvgScore:            8.8,
	}

	result, err := Decide(reports, thresholds)
	require.NoError(t, err)
	assert.False(t, result.Passed)
	assert.Equal(t, model.GateQualityFailure, result.Category)
	assert.Equal(t, 1, result.QualityFailures)
	assert.InDelta(t, 8.6667, result.AverageScore, 0.001)
}

func TestDecide_TooManyQualityFailures(t *testing.T) {
	reports := []model.TestCaseReport{
		scoredReport("TC1", 2, 8),
		scoredReport("TC2", 3, 8),
		scoredReport("TC3", 5, 8),
		scoredReport("TC4", 7, 8),
		scoredReport("TC5", 10, 8),
	}
	thresholds := model.GateThresholds{
		MaxReliabilityFailures: 0,
		MaxQualityFailures:     3,
		MinAvgScore:            0,
	}

	result, err := Decide(reports, thresholds)
	require.NoError(t, err)
	assert.False(t, result.Passed)
	assert.Equal(t, model.GateQualityFailure, result.Category)
	assert.Equal(t, 0, result.ReliabilityFailures)
	assert.Equal(t, 4, result.QualityFailures)
}

func TestDecide_UnscoredExcludedFromAverage(t *testing.T) {
	reports := []model.TestCaseReport{
		scoredReport("TC1", 10, 8),
		failedReport("TC2", model.FailureNoEvalScore),
		failedReport("TC3", model.FailureRequestError),
	}
	thresholds := model.GateThresholds{
		MaxReliabilityFailures: 5,
		MaxQualityFailures:     5,
		MinAvgScore:            8,
	}

	result, err := Decide(reports, thresholds)
	require.NoError(t, err)
	assert.Equal(t, 1, result.ScoredCases)
	assert.InDelta(t, 10.0, result.AverageScore, 0.001, "unscored cases must not dilute the average")
	assert.True(t, result.Passed)
}

func TestDecide_NothingScoredFailsQuality(t *testing.T) {
	// With reliability tolerated, a batch that never obtained a single score
	// still cannot pass: the empty average sits below any positive floor.
	reports := []model.TestCaseReport{
		failedReport("TC1", model.FailureNoEvalScore),
		failedReport("TC2", model.FailureNoEvalScore),
	}
	thresholds := model.GateThresholds{
		MaxReliabilityFailures: 5,
		MaxQualityFailures:     5,
		MinAvgScore:            8,
	}

	result, err := Decide(reports, thresholds)
	require.NoError(t, err)
	assert.False(t, result.Passed)
	assert.Equal(t, model.GateQualityFailure, result.Category)
	assert.Equal(t, 0, result.ScoredCases)
	assert.Zero(t, result.AverageScore)
}

func TestDecide_EmptyBatchIsHardFailure(t *testing.T) {
	result, err := Decide(nil, defaultThresholds())
	require.ErrorIs(t, err, ErrEmptyBatch)
	assert.False(t, result.Passed)
}

func TestDecide_BoundaryEqualsThresholdPasses(t *testing.T) {
	// Exactly at the limits: failures equal to the maximum and an average
	// equal to the floor both pass. Only strictly-over or strictly-under trip
	// the gate.
	reports := []model.TestCaseReport{
		scoredReport("TC1", 6, 8),
		scoredReport("TC2", 10, 8),
	}
	thresholds := model.GateThresholds{
		MaxReliabilityFailures: 0,
		MaxQualityFailures:     1,
		MinAvgScore:            8,
	}

	result, err := Decide(reports, thresholds)
	require.NoError(t, err)
	assert.True(t, result.Passed)
	assert.Equal(t, model.GateNone, result.Category)
}

func TestCountFailures(t *testing.T) {
	reports := []model.TestCaseReport{
		scoredReport("TC1", 10, 8),
		failedReport("TC2", model.FailureRequestError),
		failedReport("TC3", model.FailureRequestError),
		failedReport("TC4", model.FailureNoTrace),
		scoredReport("TC5", 4, 8),
	}

	counts := CountFailures(reports)
	assert.Equal(t, 2, counts[model.FailureRequestError])
	assert.Equal(t, 1, counts[model.FailureNoTrace])
	assert.Equal(t, 1, counts[model.FailureLowScore])
	assert.NotContains(t, counts, model.FailureInvalidResponse)
	assert.Len(t, counts, 3, "passing reports contribute to no bucket")
}
