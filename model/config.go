package model

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/aymerick/raymond"
	"github.com/bytedance/sonic"
	"github.com/preetham599/PSAAutomation/logger"
	"github.com/yalp/jsonpath"
	"gopkg.in/yaml.v3"
)

const (
	DefaultWorkspaceID   = 1173
	DefaultLLMModel      = "gpt"
	DefaultAgentLabel    = "dataviz"
	DefaultSourceScreen  = "dashboard"
	DefaultMetricName    = "nlp2sql_EVAL"
	DefaultPassThreshold = 8.0

	DefaultInvokeTimeout = 230 * time.Second
	DefaultScoreTimeout  = 90 * time.Second
	DefaultPollInterval  = 2 * time.Second

	DefaultMaxReliabilityFailures = 0
	DefaultMaxQualityFailures     = 3
	DefaultMinAvgScore            = 8.0
)

// ============================================================================
// EVAL CONFIGURATION
// ============================================================================

type EvalConfig struct {
	Settings  Settings          `yaml:"settings"`
	Gate      GateConfig        `yaml:"gate"`
	Variables map[string]string `yaml:"variables,omitempty"`
	Cases     []TestCase        `yaml:"cases"`
}

type Settings struct {
	BaseURL           string `yaml:"base_url"`
	LangfuseBaseURL   string `yaml:"langfuse_base_url"`
	LangfusePublicKey string `yaml:"langfuse_public_key"`
	LangfuseSecretKey string `yaml:"langfuse_secret_key"`
	LangfuseProjectID string `yaml:"langfuse_project_id"`
	MetricName        string `yaml:"metric_name"`
	WorkspaceID       int    `yaml:"workspace_id"`

	InvokeTimeout string  `yaml:"invoke_timeout"`
	ScoreTimeout  string  `yaml:"score_timeout"`
	PollInterval  string  `yaml:"poll_interval"`
	PassThreshold float64 `yaml:"pass_threshold"`
	InvokeRPM     int     `yaml:"invoke_rpm"`

	// WarnOnEmptyRows records an empty result set as a soft warning on the
	// report without affecting the verdict. Enabled by default.
	WarnOnEmptyRows *bool `yaml:"warn_on_empty_rows"`

	Verbose bool `yaml:"verbose"`
}

// GateConfig holds the raw gate thresholds. Pointers distinguish "absent"
// from an explicit zero; Resolve applies the defaults.
type GateConfig struct {
	MaxReliabilityFailures *int     `yaml:"max_reliability_failures"`
	MaxQualityFailures     *int     `yaml:"max_quality_failures"`
	MinAvgScore            *float64 `yaml:"min_avg_score"`
}

// GateThresholds is the resolved, ready-to-apply form of GateConfig.
type GateThresholds struct {
	MaxReliabilityFailures int
	MaxQualityFailures     int
	MinAvgScore            float64
}

func (g GateConfig) Resolve() GateThresholds {
	t := GateThresholds{
		MaxReliabilityFailures: DefaultMaxReliabilityFailures,
		MaxQualityFailures:     DefaultMaxQualityFailures,
		MinAvgScore:            DefaultMinAvgScore,
	}
	if g.MaxReliabilityFailures != nil {
		t.MaxReliabilityFailures = *g.MaxReliabilityFailures
	}
	if g.MaxQualityFailures != nil {
		t.MaxQualityFailures = *g.MaxQualityFailures
	}
	if g.MinAvgScore != nil {
		t.MinAvgScore = *g.MinAvgScore
	}
	return t
}

type TestCase struct {
	ID            string    `yaml:"id"`
	Name          string    `yaml:"name,omitempty"`
	Prompt        string    `yaml:"prompt"`
	PreviousQuery string    `yaml:"previous_query,omitempty"`
	Captures      []Capture `yaml:"captures,omitempty"`
}

// Capture extracts a named value out of the raw invoke response for
// diagnostics. Extraction failures never fail the case.
type Capture struct {
	Name string `yaml:"name"`
	Path string `yaml:"path"`
}

// Extract evaluates the capture's jsonpath against a raw JSON document and
// renders the match as a string.
func (c Capture) Extract(raw []byte) (string, error) {
	var doc any
	if err := sonic.Unmarshal(raw, &doc); err != nil {
		return "", fmt.Errorf("capture %q: invalid JSON document: %w", c.Name, err)
	}

	res, err := jsonpath.Read(doc, c.Path)
	if err != nil {
		return "", fmt.Errorf("capture %q: path %s: %w", c.Name, c.Path, err)
	}

	switch v := res.(type) {
	case string:
		return v, nil
	case nil:
		return "", nil
	default:
		out, err := sonic.MarshalString(v)
		if err != nil {
			return "", fmt.Errorf("capture %q: marshal result: %w", c.Name, err)
		}
		return out, nil
	}
}

func ParseEvalConfig(filename string) (*EvalConfig, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return ParseEvalConfigFromString(string(data))
}

func ParseEvalConfigFromString(definition string) (*EvalConfig, error) {
	var config EvalConfig
	if err := yaml.Unmarshal([]byte(definition), &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if config.Settings.MetricName == "" {
		config.Settings.MetricName = DefaultMetricName
	}
	if config.Settings.WorkspaceID == 0 {
		config.Settings.WorkspaceID = DefaultWorkspaceID
	}
	if config.Settings.PassThreshold == 0 {
		config.Settings.PassThreshold = DefaultPassThreshold
	}

	return &config, nil
}

// EmptyRowsWarning reports whether an empty result set should be recorded as
// a soft warning.
func (s *Settings) EmptyRowsWarning() bool {
	if s.WarnOnEmptyRows == nil {
		return true
	}
	return *s.WarnOnEmptyRows
}

// InvokeTimeoutDuration returns the agent request timeout.
func (s *Settings) InvokeTimeoutDuration() time.Duration {
	return ParseDurationOr(s.InvokeTimeout, DefaultInvokeTimeout)
}

// ScoreTimeoutDuration returns the overall score-wait deadline.
func (s *Settings) ScoreTimeoutDuration() time.Duration {
	return ParseDurationOr(s.ScoreTimeout, DefaultScoreTimeout)
}

// PollIntervalDuration returns the fixed suspension between poll attempts.
func (s *Settings) PollIntervalDuration() time.Duration {
	return ParseDurationOr(s.PollInterval, DefaultPollInterval)
}

// ParseDurationOr parses a duration string, falling back to def on empty or
// invalid input. Negative values collapse to the fallback as well.
func ParseDurationOr(raw string, def time.Duration) time.Duration {
	if raw == "" {
		return def
	}

	dur, err := time.ParseDuration(raw)
	if err != nil {
		logger.Logger.Warn("Invalid duration, using default",
			"value", raw,
			"default", def,
			"error", err)
		return def
	}
	if dur < 0 {
		logger.Logger.Warn("Negative duration, using default", "value", dur, "default", def)
		return def
	}
	return dur
}

// ============================================================================
// ENVIRONMENT OVERRIDES
// ============================================================================

// ApplyEnvOverrides layers environment-style overrides on top of the parsed
// file. CI pipelines tune thresholds and endpoints without editing the
// checked-in eval file.
func (c *EvalConfig) ApplyEnvOverrides() {
	if v := os.Getenv("BASE_URL"); v != "" {
		c.Settings.BaseURL = v
	}
	if v := os.Getenv("LANGFUSE_BASE_URL"); v != "" {
		c.Settings.LangfuseBaseURL = v
	}
	if v := os.Getenv("LANGFUSE_PUBLIC_KEY"); v != "" {
		c.Settings.LangfusePublicKey = v
	}
	if v := os.Getenv("LANGFUSE_SECRET_KEY"); v != "" {
		c.Settings.LangfuseSecretKey = v
	}
	if v := os.Getenv("LANGFUSE_PROJECT_ID"); v != "" {
		c.Settings.LangfuseProjectID = v
	}

	if n, ok := envInt("MAX_RELIABILITY_FAILURES"); ok {
		c.Gate.MaxReliabilityFailures = &n
	}
	if n, ok := envInt("MAX_ALLOWED_FAILURES"); ok {
		c.Gate.MaxQualityFailures = &n
	}
	if f, ok := envFloat("MIN_AVG_SCORE"); ok {
		c.Gate.MinAvgScore = &f
	}
	if ms, ok := envInt("SCORE_TIMEOUT_MS"); ok {
		c.Settings.ScoreTimeout = fmt.Sprintf("%dms", ms)
	}
	if ms, ok := envInt("POLL_INTERVAL_MS"); ok {
		c.Settings.PollInterval = fmt.Sprintf("%dms", ms)
	}
}

func envInt(key string) (int, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		logger.Logger.Warn("Invalid numeric override, ignoring", "key", key, "value", raw, "error", err)
		return 0, false
	}
	return n, true
}

func envFloat(key string) (float64, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		logger.Logger.Warn("Invalid numeric override, ignoring", "key", key, "value", raw, "error", err)
		return 0, false
	}
	return f, true
}

func GetAllEnv() map[string]string {
	envMap := make(map[string]string)
	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) == 2 {
			envMap[parts[0]] = parts[1]
		}
	}
	return envMap
}

// RenderTemplate safely parses and executes a Raymond template.
// If parsing or execution fails, it returns the input string unchanged.
func RenderTemplate(input string, context map[string]string) string {
	tmpl, err := raymond.Parse(input)
	if err != nil {
		logger.Logger.Warn("Failed to parse template", "error", err)
		return input
	}

	output, err := tmpl.Exec(context)
	if err != nil {
		logger.Logger.Warn("Failed to execute template", "error", err)
		return input
	}

	return output
}
