package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/dd0wney/cluso-variantsynth/pkg/featuremodel"
	"github.com/dd0wney/cluso-variantsynth/pkg/synthesis"
)

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append([]string{"--root", "testdata", "--log-level", "error"}, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestSynthTable(t *testing.T) {
	out, _, err := run(t, "synth", "V1", "V3")
	require.NoError(t, err)

	assert.Contains(t, out, "Synthesis results")
	assert.Contains(t, out, "V1")
	assert.Contains(t, out, "V3")
	assert.Contains(t, out, "satisfied")
	assert.Contains(t, out, "MAC_32")
	assert.Contains(t, out, "dropped requires(Ghost,SecOC_Protection)")
}

func TestSynthJSON(t *testing.T) {
	out, _, err := run(t, "synth", "--diagnostics", "-o", "json", "V2", "V3")
	require.NoError(t, err)

	var views []outcomeView
	require.NoError(t, json.Unmarshal([]byte(out), &views))
	require.Len(t, views, 2)

	assert.Equal(t, "V2", views[0].Variant)
	assert.Equal(t, synthesis.StatusInfeasible, views[0].Result.Status)
	assert.Contains(t, views[0].Result.Conflicts, synthesis.GroupEmpiricalLatency)

	assert.Equal(t, synthesis.StatusSatisfied, views[1].Result.Status)
	assert.True(t, views[1].Result.Assignment["SecOC_Protection"])
	assert.InDelta(t, 2.8, views[1].Result.LatencyMs, 1e-9)
}

func TestSynthCatalogVariants(t *testing.T) {
	out, _, err := run(t, "synth", "--presets", "presets.yaml", "-o", "yaml")
	require.NoError(t, err)

	var views []outcomeView
	require.NoError(t, yaml.Unmarshal([]byte(out), &views))
	variants := make([]string, 0, len(views))
	for _, v := range views {
		variants = append(variants, v.Variant)
	}
	assert.Equal(t, []string{"V1", "V2", "V3", "V4"}, variants)
	assert.Equal(t, synthesis.StatusInfeasible, views[3].Result.Status, "MAC_128 cannot fit the global bound")
}

func TestSynthPreferFalse(t *testing.T) {
	out, _, err := run(t, "synth", "--tie-break", "prefer-false", "-o", "json", "V99")
	require.NoError(t, err)

	var views []outcomeView
	require.NoError(t, json.Unmarshal([]byte(out), &views))
	require.Len(t, views, 1)
	assert.Equal(t, []string{"AES_256", "CAN_FD", "Fresh_Counter", "MAC_32", "SecOC_Protection"}, views[0].Result.Selected())
}

func TestSynthFailures(t *testing.T) {
	out, stderr, err := run(t, "synth", "--feature-model", "missing.xml", "-o", "json", "V1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 1 requests failed")
	assert.Contains(t, out, `"error"`)
	assert.Contains(t, stderr, "synthesis failed")
}

func TestCompile(t *testing.T) {
	out, _, err := run(t, "compile", "-o", "json")
	require.NoError(t, err)

	var report compileReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Len(t, report.Features, 15)
	assert.Equal(t, []string{"requires(Ghost,SecOC_Protection)"}, report.Dropped)
	assert.Contains(t, report.Cost, "latency_ms == If(MAC_32, 1.20, If(MAC_64, 2.20, 3.20))")
	assert.NotEmpty(t, report.Constraints)
	for _, c := range report.Constraints {
		assert.Equal(t, "structure", c.Origin)
	}

	table, _, err := run(t, "compile")
	require.NoError(t, err)
	assert.Contains(t, table, "15 features")
	assert.Contains(t, table, "excludes(MAC_128,CAN)")
}

func TestCompileStrict(t *testing.T) {
	_, _, err := run(t, "compile", "--strict")
	assert.ErrorIs(t, err, featuremodel.ErrUnknownFeature)
}

func TestBounds(t *testing.T) {
	out, _, err := run(t, "bounds", "-o", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "d2_max_auth_latency_ms: 3.5")
	assert.Contains(t, out, "d4_min_replay_interval_ms: 25.5")

	table, _, err := run(t, "bounds")
	require.NoError(t, err)
	assert.Contains(t, table, "d3 max latency V2")
	assert.Contains(t, table, "3.2")
}

func TestPresets(t *testing.T) {
	out, _, err := run(t, "presets")
	require.NoError(t, err)
	assert.Contains(t, out, "Variant presets")
	assert.Contains(t, out, "SecOC_Protection=true")

	out, _, err = run(t, "presets", "--presets", "presets.yaml", "-o", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"V4"`)
	assert.Contains(t, out, `"MAC_128": true`)
}

func TestConfigFileAndMetrics(t *testing.T) {
	dir := t.TempDir()
	textfile := filepath.Join(dir, "variantsynth.prom")
	cfgPath := filepath.Join(dir, "variantsynth.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("policy:\n  tie_break: prefer-false\nworkers: 2\nmetrics:\n  textfile: "+textfile+"\n"), 0o600))

	_, _, err := run(t, "--config", cfgPath, "synth", "V3")
	require.NoError(t, err)

	data, err := os.ReadFile(textfile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `variantsynth_synthesis_total{status="satisfied",variant="V3"} 1`)
}

func TestMetricsWrittenOnFailure(t *testing.T) {
	textfile := filepath.Join(t.TempDir(), "variantsynth.prom")

	_, _, err := run(t, "--metrics-textfile", textfile, "--feature-model", "missing.xml", "synth", "V1")
	require.Error(t, err)

	data, err := os.ReadFile(textfile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `variantsynth_synthesis_total{status="error",variant="V1"} 1`)
}

func TestRenderOutcomeWithoutResult(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, renderOutcomes(&out, "table", []synthesis.Outcome{{Variant: "V1"}}))
	assert.Contains(t, out.String(), "no result")
}

func TestInvalidInvocation(t *testing.T) {
	_, _, err := run(t, "synth", "-o", "xml", "V1")
	assert.ErrorContains(t, err, "unknown output format")

	_, _, err = run(t, "synth", "--tie-break", "random", "V1")
	assert.Error(t, err)

	_, _, err = run(t, "--config", "does-not-exist.yaml", "bounds")
	assert.Error(t, err)
}
