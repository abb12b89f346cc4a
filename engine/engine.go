package engine

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/preetham599/PSAAutomation/langfuse"
	"github.com/preetham599/PSAAutomation/logger"
	"github.com/preetham599/PSAAutomation/model"
	"github.com/preetham599/PSAAutomation/report"
	"github.com/preetham599/PSAAutomation/spendagent"
)

// Run executes the full eval batch described by evalPath and returns the
// process exit code: 0 when the quality gate passes, 1 otherwise.
func Run(evalPath string, verbose bool, reportBase string, reportTypes []string) int {
	// Secrets and CI overrides come from the environment; a local .env is
	// honored when present.
	if err := godotenv.Load(); err == nil {
		logger.Logger.Debug("Loaded .env file")
	}

	if err := ValidateEvalInputFile(evalPath); err != nil {
		logger.Logger.Error("Invalid input file", "error", err)
		return 1
	}

	logger.Logger.Info("Loading eval configuration", "file", evalPath)
	config, err := model.ParseEvalConfig(evalPath)
	if err != nil {
		logger.Logger.Error("Failed to parse configuration", "error", err)
		return 1
	}
	config.ApplyEnvOverrides()
	if verbose {
		config.Settings.Verbose = true
	}

	if err := ValidateEvalConfig(config); err != nil {
		logger.Logger.Error("Invalid configuration", "error", err)
		return 1
	}

	logger.Logger.Info("Configuration loaded",
		"cases", len(config.Cases),
		"base_url", config.Settings.BaseURL,
		"langfuse_url", config.Settings.LangfuseBaseURL,
		"pass_threshold", config.Settings.PassThreshold,
		"score_timeout", config.Settings.ScoreTimeoutDuration(),
		"poll_interval", config.Settings.PollIntervalDuration())

	agentClient, err := spendagent.NewClient(
		config.Settings.BaseURL,
		config.Settings.WorkspaceID,
		config.Settings.InvokeTimeoutDuration(),
	)
	if err != nil {
		logger.Logger.Error("Failed to create agent client", "error", err)
		return 1
	}
	if config.Settings.InvokeRPM > 0 {
		agentClient.SetRateLimit(config.Settings.InvokeRPM)
		logger.Logger.Info("Invoke throttling enabled", "rpm", config.Settings.InvokeRPM)
	}

	observability := langfuse.NewClient(
		config.Settings.LangfuseBaseURL,
		config.Settings.LangfusePublicKey,
		config.Settings.LangfuseSecretKey,
		config.Settings.MetricName,
	)
	waiter := langfuse.NewScoreWaiter(
		observability,
		config.Settings.ScoreTimeoutDuration(),
		config.Settings.PollIntervalDuration(),
	)

	batch := RunBatch(context.Background(), agentClient, waiter, config, evalPath)

	gate, err := Decide(batch.Reports, config.Gate.Resolve())
	if err != nil {
		logger.Logger.Error("Quality gate hard failure", "error", err)
		return 1
	}
	batch.Gate = gate

	generator := report.NewGenerator()
	generator.PrintSummary(batch)

	for _, reportType := range reportTypes {
		outputPath := report.OutputPath(reportBase, reportType)
		if err := generator.Generate(batch, reportType, outputPath); err != nil {
			logger.Logger.Error("Failed to generate report", "type", reportType, "error", err)
			return 1
		}
		logger.Logger.Info("Report generated", "type", reportType, "path", outputPath)
	}

	if !gate.Passed {
		logger.Logger.Warn("CI quality gate FAILED", "category", string(gate.Category))
		return 1
	}
	logger.Logger.Info("CI quality gate PASSED")
	return 0
}

// RunBatch runs every case strictly sequentially and assembles the batch
// result. The gate verdict is left for the caller to fill in.
func RunBatch(ctx context.Context, agent AgentInvoker, waiter ScoreWaiter, config *model.EvalConfig, sourceFile string) *model.BatchResult {
	runID := uuid.New().String()
	templateCtx := CreateTemplateContext(evalDirOf(sourceFile), config.Variables, runID)

	runner := NewRunner(agent, waiter, config.Settings)

	logger.Logger.Info("Starting eval execution", "run_id", runID, "cases", len(config.Cases))
	startedAt := time.Now()

	for i, tc := range config.Cases {
		logger.Logger.Info("Running test case",
			"test_case", tc.ID,
			"number", i+1,
			"total", len(config.Cases))
		runner.RunCase(ctx, tc, templateCtx)
	}

	batch := &model.BatchResult{
		RunID:         runID,
		StartedAt:     startedAt,
		FinishedAt:    time.Now(),
		Reports:       runner.Reports(),
		FailureCounts: CountFailures(runner.Reports()),
	}
	return batch
}

// CreateTemplateContext builds the Handlebars context for prompt rendering:
// environment variables, RUN_ID, TEMP_DIR and user variables. Variables may
// themselves contain templates referring to earlier entries.
func CreateTemplateContext(evalDir string, variables map[string]string, runID string) map[string]string {
	templateCtx := model.GetAllEnv()
	templateCtx["RUN_ID"] = runID
	templateCtx["TEMP_DIR"] = os.TempDir()
	if evalDir != "" {
		templateCtx["EVAL_DIR"] = evalDir
	}

	for k, v := range variables {
		templateCtx[k] = model.RenderTemplate(v, templateCtx)
	}
	return templateCtx
}

func ValidateEvalInputFile(path string) error {
	if path == "" {
		return fmt.Errorf("input file path is empty")
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("file does not exist: %s", path)
		}
		return fmt.Errorf("cannot access file %s: %w", path, err)
	}

	if info.IsDir() {
		return fmt.Errorf("path is a directory, not a file: %s", path)
	}
	if info.Size() == 0 {
		return fmt.Errorf("file is empty: %s", path)
	}

	ext := filepath.Ext(path)
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unexpected file extension: %s", ext)
	}
	return nil
}

func ValidateEvalConfig(config *model.EvalConfig) error {
	if config == nil {
		return fmt.Errorf("configuration is nil")
	}
	if config.Settings.BaseURL == "" {
		return fmt.Errorf("agent base URL is not configured (settings.base_url or BASE_URL)")
	}
	if config.Settings.LangfuseBaseURL == "" {
		return fmt.Errorf("observability base URL is not configured (settings.langfuse_base_url or LANGFUSE_BASE_URL)")
	}
	if len(config.Cases) == 0 {
		return fmt.Errorf("no test cases configured")
	}

	seen := make(map[string]bool, len(config.Cases))
	for i, tc := range config.Cases {
		if tc.ID == "" {
			return fmt.Errorf("test case at index %d has empty id", i)
		}
		if seen[tc.ID] {
			return fmt.Errorf("duplicate test case id: %s", tc.ID)
		}
		seen[tc.ID] = true
		if tc.Prompt == "" {
			return fmt.Errorf("test case %s has empty prompt", tc.ID)
		}
	}
	return nil
}

func ValidateReportType(reportType string) error {
	switch reportType {
	case "json", "md", "xlsx":
		return nil
	}
	return fmt.Errorf("unknown type %s, supported types are: json, md, xlsx", reportType)
}

func evalDirOf(sourceFile string) string {
	if sourceFile == "" {
		return ""
	}
	absPath, err := filepath.Abs(sourceFile)
	if err != nil {
		return ""
	}
	return filepath.Dir(absPath)
}
