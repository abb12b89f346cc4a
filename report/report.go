// Package report renders a finished eval batch into the artifacts CI and
// humans consume: a console summary, JSON, a markdown table and an Excel
// workbook with trace links. It is a pure consumer of model.BatchResult.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/preetham599/PSAAutomation/logger"
	"github.com/preetham599/PSAAutomation/model"
	"github.com/xuri/excelize/v2"
)

const sheetName = "Eval Results"

var xlsxHeader = []string{
	"Test Case", "Prompt", "Result", "Failure", "Rows Returned", "Eval Score",
	"Trace ID", "Session ID", "SQL Query", "Time Taken (ms)", "Error", "Trace URL",
}

type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

// OutputPath resolves the artifact path for a report type. An empty base
// falls back to a timestamped file name in the working directory.
func OutputPath(base, reportType string) string {
	if base == "" {
		timestamp := time.Now().UTC().Format("2006-01-02T15-04-05Z")
		base = "eval_report_" + timestamp
	}
	return base + "." + reportType
}

// Generate writes the batch as the requested report type to outputPath.
func (g *Generator) Generate(batch *model.BatchResult, reportType, outputPath string) error {
	if batch == nil || len(batch.Reports) == 0 {
		return fmt.Errorf("no test results to generate report")
	}

	outputDir := filepath.Dir(outputPath)
	if outputDir != "." && outputDir != "" {
		if err := os.MkdirAll(outputDir, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	switch reportType {
	case "json":
		content, err := g.GenerateJSON(batch)
		if err != nil {
			return err
		}
		return os.WriteFile(outputPath, []byte(content), logger.FilePermission)
	case "md":
		return os.WriteFile(outputPath, []byte(g.GenerateMarkdown(batch)), logger.FilePermission)
	case "xlsx":
		return g.GenerateXLSX(batch, outputPath)
	}
	return fmt.Errorf("unknown report type: %s", reportType)
}

func (g *Generator) GenerateJSON(batch *model.BatchResult) (string, error) {
	out, err := sonic.ConfigDefault.MarshalIndent(batch, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal batch result: %w", err)
	}
	return string(out), nil
}

func (g *Generator) GenerateMarkdown(batch *model.BatchResult) string {
	var b strings.Builder

	b.WriteString("# Eval Report\n\n")
	fmt.Fprintf(&b, "Run: `%s` — started %s\n\n", batch.RunID, batch.StartedAt.Format(time.RFC3339))

	gateStatus := "PASSED"
	if !batch.Gate.Passed {
		gateStatus = fmt.Sprintf("FAILED (%s)", batch.Gate.Category)
	}
	fmt.Fprintf(&b, "**Quality gate: %s** — %d cases, %d scored, avg score %.2f, %d reliability / %d quality failures\n\n",
		gateStatus,
		batch.Gate.TotalCases,
		batch.Gate.ScoredCases,
		batch.Gate.AverageScore,
		batch.Gate.ReliabilityFailures,
		batch.Gate.QualityFailures)

	b.WriteString("| Test Case | Result | Failure | Score | Rows | Time (ms) | Trace | Error |\n")
	b.WriteString("|---|---|---|---|---|---|---|---|\n")
	for _, r := range batch.Reports {
		score := "-"
		if r.Scored() {
			score = fmt.Sprintf("%.1f", *r.EvalScore)
		}
		trace := "-"
		if r.TraceURL != "" {
			trace = fmt.Sprintf("[%s](%s)", r.TraceID, r.TraceURL)
		} else if r.TraceID != "" {
			trace = r.TraceID
		}
		failure := string(r.Failure)
		if failure == "" {
			failure = "-"
		}
		errText := r.Error
		if errText == "" {
			errText = "-"
		}
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %d | %d | %s | %s |\n",
			r.TestCase, r.Result, failure, score, r.Rows, r.TimeTakenMs, trace, escapePipes(errText))
	}

	return b.String()
}

// GenerateXLSX writes the Excel workbook, one row per test case with a
// clickable trace link when available.
func (g *Generator) GenerateXLSX(batch *model.BatchResult, outputPath string) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("failed to remove default sheet: %w", err)
	}

	for col, title := range xlsxHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheetName, cell, title); err != nil {
			return err
		}
	}

	for i, r := range batch.Reports {
		row := i + 2

		score := any("-")
		if r.Scored() {
			score = *r.EvalScore
		}
		traceID := r.TraceID
		if traceID == "" {
			traceID = "-"
		}
		errText := r.Error
		if errText == "" {
			errText = "-"
		}

		values := []any{
			r.TestCase, r.Prompt, string(r.Result), string(r.Failure), r.Rows,
			score, traceID, r.SessionID, r.SQL, r.TimeTakenMs, errText,
		}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheetName, cell, v); err != nil {
				return err
			}
		}

		linkCell, err := excelize.CoordinatesToCellName(len(values)+1, row)
		if err != nil {
			return err
		}
		if r.TraceURL != "" {
			if err := f.SetCellValue(sheetName, linkCell, "Click to View"); err != nil {
				return err
			}
			if err := f.SetCellHyperLink(sheetName, linkCell, r.TraceURL, "External"); err != nil {
				return err
			}
		} else {
			if err := f.SetCellValue(sheetName, linkCell, "-"); err != nil {
				return err
			}
		}
	}

	if err := f.SaveAs(outputPath); err != nil {
		return fmt.Errorf("failed to write xlsx report: %w", err)
	}
	return nil
}

// PrintSummary writes the human-readable batch summary to stdout, mirroring
// what the structured logs carry.
func (g *Generator) PrintSummary(batch *model.BatchResult) {
	if batch == nil || len(batch.Reports) == 0 {
		logger.Logger.Info("No test cases were run")
		return
	}

	passed := 0
	for _, r := range batch.Reports {
		if r.Result == model.VerdictPass {
			passed++
		}
	}

	fmt.Println("\n" + strings.Repeat("=", 60))
	fmt.Println("EVAL SUMMARY")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("  Total Prompts      : %d\n", batch.Gate.TotalCases)
	fmt.Printf("  Evaluated Prompts  : %d\n", batch.Gate.ScoredCases)
	fmt.Printf("  Passed             : %d\n", passed)
	fmt.Printf("  Reliability Fails  : %d\n", batch.Gate.ReliabilityFailures)
	fmt.Printf("  Quality Fails      : %d\n", batch.Gate.QualityFailures)
	fmt.Printf("  Average Score      : %.2f\n", batch.Gate.AverageScore)
	for kind, count := range batch.FailureCounts {
		fmt.Printf("    %-17s: %d\n", kind, count)
	}
	fmt.Println(strings.Repeat("=", 60))

	logger.Logger.Info("Eval execution summary",
		"total", batch.Gate.TotalCases,
		"scored", batch.Gate.ScoredCases,
		"passed", passed,
		"avg_score", batch.Gate.AverageScore,
		"duration", batch.FinishedAt.Sub(batch.StartedAt).Round(time.Second))
}

func escapePipes(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}
