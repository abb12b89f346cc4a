package engine

import (
	"errors"

	"github.com/life4/genesis/slices"
	"github.com/preetham599/PSAAutomation/logger"
	"github.com/preetham599/PSAAutomation/model"
)

// ErrEmptyBatch marks a batch with no reports at all. An empty batch is no
// evidence of a successful run and must never read as a passing gate.
var ErrEmptyBatch = errors.New("no test case reports collected")

// Decide reduces the batch into the aggregate quality-gate verdict.
// Reliability failures are decisive and checked first, independent of score;
// quality failures and the average-score floor are checked second. The
// average covers only reports that actually obtained a score.
func Decide(reports []model.TestCaseReport, thresholds model.GateThresholds) (model.GateResult, error) {
	if len(reports) == 0 {
		return model.GateResult{Passed: false, Category: model.GateReliabilityFailure}, ErrEmptyBatch
	}

	reliability := slices.Filter(reports, func(r model.TestCaseReport) bool {
		return r.Failure.IsReliability()
	})
	quality := slices.Filter(reports, func(r model.TestCaseReport) bool {
		return r.Failure.IsQuality()
	})
	scored := slices.Filter(reports, func(r model.TestCaseReport) bool {
		return r.Scored()
	})

	avgScore := 0.0
	if len(scored) > 0 {
		sum := 0.0
		for _, r := range scored {
			sum += *r.EvalScore
		}
		avgScore = sum / float64(len(scored))
	}

	result := model.GateResult{
		TotalCases:          len(reports),
		ScoredCases:         len(scored),
		ReliabilityFailures: len(reliability),
		QualityFailures:     len(quality),
		AverageScore:        avgScore,
	}

	switch {
	case len(reliability) > thresholds.MaxReliabilityFailures:
		result.Category = model.GateReliabilityFailure
	case len(quality) > thresholds.MaxQualityFailures || avgScore < thresholds.MinAvgScore:
		result.Category = model.GateQualityFailure
	default:
		result.Category = model.GateNone
		result.Passed = true
	}

	logger.Logger.Info("Quality gate decided",
		"passed", result.Passed,
		"category", string(result.Category),
		"total", result.TotalCases,
		"scored", result.ScoredCases,
		"reliability_failures", result.ReliabilityFailures,
		"quality_failures", result.QualityFailures,
		"avg_score", result.AverageScore)

	return result, nil
}

// CountFailures tallies reports per failure classification. Passing reports
// contribute to no bucket.
func CountFailures(reports []model.TestCaseReport) map[model.FailureKind]int {
	counts := make(map[model.FailureKind]int)
	for _, r := range reports {
		if r.Failure != "" {
			counts[r.Failure]++
		}
	}
	return counts
}
