package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
settings:
  base_url: http://agent.local
  langfuse_base_url: http://langfuse.local
  langfuse_public_key: pk
  langfuse_secret_key: sk
  langfuse_project_id: proj-1
  score_timeout: 90s
  poll_interval: 2s
gate:
  max_quality_failures: 5
variables:
  REGION: EMEA
cases:
  - id: TC1
    prompt: total spend by supplier
  - id: TC2
    prompt: spend in {{REGION}}
    previous_query: total spend by supplier
    captures:
      - name: chart
        path: $.data.result.chart_type
`

func TestParseEvalConfigFromString(t *testing.T) {
	config, err := ParseEvalConfigFromString(sampleConfig)
	require.NoError(t, err)

	assert.Equal(t, "http://agent.local", config.Settings.BaseURL)
	assert.Equal(t, "proj-1", config.Settings.LangfuseProjectID)
	assert.Equal(t, "EMEA", config.Variables["REGION"])

	require.Len(t, config.Cases, 2)
	assert.Equal(t, "TC1", config.Cases[0].ID)
	assert.Equal(t, "total spend by supplier", config.Cases[1].PreviousQuery)
	require.Len(t, config.Cases[1].Captures, 1)
	assert.Equal(t, "$.data.result.chart_type", config.Cases[1].Captures[0].Path)
}

func TestParseEvalConfigFromString_Defaults(t *testing.T) {
	config, err := ParseEvalConfigFromString("cases: []")
	require.NoError(t, err)

	assert.Equal(t, DefaultMetricName, config.Settings.MetricName)
	assert.Equal(t, DefaultWorkspaceID, config.Settings.WorkspaceID)
	assert.Equal(t, DefaultPassThreshold, config.Settings.PassThreshold)
	assert.Equal(t, DefaultScoreTimeout, config.Settings.ScoreTimeoutDuration())
	assert.Equal(t, DefaultPollInterval, config.Settings.PollIntervalDuration())
	assert.Equal(t, DefaultInvokeTimeout, config.Settings.InvokeTimeoutDuration())
	assert.True(t, config.Settings.EmptyRowsWarning())
}

func TestParseEvalConfigFromString_Invalid(t *testing.T) {
	_, err := ParseEvalConfigFromString("settings: [not a mapping")
	require.Error(t, err)
}

func TestGateConfig_Resolve(t *testing.T) {
	resolved := GateConfig{}.Resolve()
	assert.Equal(t, DefaultMaxReliabilityFailures, resolved.MaxReliabilityFailures)
	assert.Equal(t, DefaultMaxQualityFailures, resolved.MaxQualityFailures)
	assert.Equal(t, DefaultMinAvgScore, resolved.MinAvgScore)

	// Explicit zeros are honored, not mistaken for absent.
	zero := 0
	zeroF := 0.0
	resolved = GateConfig{
		MaxReliabilityFailures: &zero,
		MaxQualityFailures:     &zero,
		MinAvgScore:            &zeroF,
	}.Resolve()
	assert.Zero(t, resolved.MaxReliabilityFailures)
	assert.Zero(t, resolved.MaxQualityFailures)
	assert.Zero(t, resolved.MinAvgScore)
}

func TestEmptyRowsWarning_ExplicitOff(t *testing.T) {
	off := false
	s := Settings{WarnOnEmptyRows: &off}
	assert.False(t, s.EmptyRowsWarning())
}

func TestParseDurationOr(t *testing.T) {
	assert.Equal(t, 5*time.Second, ParseDurationOr("5s", time.Minute))
	assert.Equal(t, 1500*time.Millisecond, ParseDurationOr("1500ms", time.Minute))
	assert.Equal(t, time.Minute, ParseDurationOr("", time.Minute))
	assert.Equal(t, time.Minute, ParseDurationOr("not-a-duration", time.Minute))
	assert.Equal(t, time.Minute, ParseDurationOr("-3s", time.Minute))
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("BASE_URL", "http://override.agent")
	t.Setenv("LANGFUSE_BASE_URL", "http://override.langfuse")
	t.Setenv("LANGFUSE_PUBLIC_KEY", "pk-override")
	t.Setenv("LANGFUSE_SECRET_KEY", "sk-override")
	t.Setenv("LANGFUSE_PROJECT_ID", "proj-override")
	t.Setenv("MAX_RELIABILITY_FAILURES", "2")
	t.Setenv("MAX_ALLOWED_FAILURES", "7")
	t.Setenv("MIN_AVG_SCORE", "8.8")
	t.Setenv("SCORE_TIMEOUT_MS", "120000")
	t.Setenv("POLL_INTERVAL_MS", "500")

	config, err := ParseEvalConfigFromString(sampleConfig)
	require.NoError(t, err)
	config.ApplyEnvOverrides()

	assert.Equal(t, "http://override.agent", config.Settings.BaseURL)
	assert.Equal(t, "http://override.langfuse", config.Settings.LangfuseBaseURL)
	assert.Equal(t, "pk-override", config.Settings.LangfusePublicKey)
	assert.Equal(t, "sk-override", config.Settings.LangfuseSecretKey)
	assert.Equal(t, "proj-override", config.Settings.LangfuseProjectID)

	resolved := config.Gate.Resolve()
	assert.Equal(t, 2, resolved.MaxReliabilityFailures)
	assert.Equal(t, 7, resolved.MaxQualityFailures)
	assert.Equal(t, 8.8, resolved.MinAvgScore)

	assert.Equal(t, 120*time.Second, config.Settings.ScoreTimeoutDuration())
	assert.Equal(t, 500*time.Millisecond, config.Settings.PollIntervalDuration())
}

func TestApplyEnvOverrides_InvalidNumbersIgnored(t *testing.T) {
	t.Setenv("MAX_ALLOWED_FAILURES", "lots")
	t.Setenv("MIN_AVG_SCORE", "high")

	config, err := ParseEvalConfigFromString(sampleConfig)
	require.NoError(t, err)
	config.ApplyEnvOverrides()

	resolved := config.Gate.Resolve()
	assert.Equal(t, 5, resolved.MaxQualityFailures, "file value survives an unparseable override")
	assert.Equal(t, DefaultMinAvgScore, resolved.MinAvgScore)
}

func TestCapture_Extract(t *testing.T) {
	raw := []byte(`{"data":{"result":{"chart_type":"bar","confidence":0.92,"labels":["a","b"]}}}`)

	value, err := Capture{Name: "chart", Path: "$.data.result.chart_type"}.Extract(raw)
	require.NoError(t, err)
	assert.Equal(t, "bar", value)

	value, err = Capture{Name: "conf", Path: "$.data.result.confidence"}.Extract(raw)
	require.NoError(t, err)
	assert.Equal(t, "0.92", value)

	value, err = Capture{Name: "labels", Path: "$.data.result.labels"}.Extract(raw)
	require.NoError(t, err)
	assert.JSONEq(t, `["a","b"]`, value)

	_, err = Capture{Name: "missing", Path: "$.data.result.nope"}.Extract(raw)
	assert.Error(t, err)

	_, err = Capture{Name: "bad", Path: "$.data"}.Extract([]byte("not json"))
	assert.Error(t, err)
}

func TestRenderTemplate(t *testing.T) {
	ctx := map[string]string{"REGION": "EMEA"}
	assert.Equal(t, "spend in EMEA", RenderTemplate("spend in {{REGION}}", ctx))
	assert.Equal(t, "no placeholders", RenderTemplate("no placeholders", ctx))
	assert.Equal(t, "spend in {{", RenderTemplate("spend in {{", ctx), "broken templates pass through unchanged")
	assert.Equal(t, "spend in ", RenderTemplate("spend in {{MISSING}}", ctx))
}
