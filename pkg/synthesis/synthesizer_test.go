package synthesis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/dd0wney/cluso-variantsynth/pkg/bounds"
	"github.com/dd0wney/cluso-variantsynth/pkg/config"
	"github.com/dd0wney/cluso-variantsynth/pkg/featuremodel"
	"github.com/dd0wney/cluso-variantsynth/pkg/logging"
	"github.com/dd0wney/cluso-variantsynth/pkg/metrics"
	"github.com/dd0wney/cluso-variantsynth/pkg/preset"
)

// memStore serves artifacts from memory, seeded from testdata
type memStore map[string][]byte

func (m memStore) Read(_ context.Context, uri string) ([]byte, error) {
	data, ok := m[uri]
	if !ok {
		return nil, fmt.Errorf("read %s: %w", uri, os.ErrNotExist)
	}
	return data, nil
}

func fixtureStore(t *testing.T) memStore {
	t.Helper()
	store := memStore{}
	entries, err := os.ReadDir("testdata")
	require.NoError(t, err)
	for _, e := range entries {
		data, err := os.ReadFile(filepath.Join("testdata", e.Name()))
		require.NoError(t, err)
		store[e.Name()] = data
	}
	return store
}

type harness struct {
	synth   *Synthesizer
	store   memStore
	metrics *metrics.Registry
	logs    *bytes.Buffer
}

func newHarness(t *testing.T, mutate func(*config.Config), opts ...func(*Options)) *harness {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, cfg.Validate())

	h := &harness{store: fixtureStore(t), metrics: metrics.NewRegistry(), logs: &bytes.Buffer{}}
	o := Options{
		Store:   h.store,
		Logger:  logging.NewJSONLogger(h.logs, logging.DebugLevel),
		Metrics: h.metrics,
	}
	for _, fn := range opts {
		fn(&o)
	}
	s, err := New(cfg, o)
	require.NoError(t, err)
	h.synth = s
	return h
}

func withCatalog(c preset.Catalog) func(*Options) {
	return func(o *Options) { o.Catalog = c }
}

func (h *harness) synthesize(t *testing.T, variant string) *Result {
	t.Helper()
	res, err := h.synth.Synthesize(context.Background(), variant)
	require.NoError(t, err)
	return res
}

func assertStructure(t *testing.T, res *Result) {
	t.Helper()
	a := res.Assignment
	exactlyOne := func(names ...string) {
		n := 0
		for _, name := range names {
			if a[name] {
				n++
			}
		}
		assert.Equal(t, 1, n, "exactly one of %v", names)
	}
	exactlyOne("MAC_32", "MAC_64", "MAC_128")
	exactlyOne("AES_128", "AES_256")
	exactlyOne("CAN", "CAN_FD")
	assert.True(t, a["Fresh_Counter"] || a["Fresh_Timestamp"], "or group")
	assert.True(t, !a["SecOC_Protection"] || a["Fresh_Counter"], "requires(SecOC_Protection,Fresh_Counter)")
	assert.False(t, a["MAC_128"] && a["CAN"], "excludes(MAC_128,CAN)")
}

// V3 under a 3.0 ms variant bound admits only the cheapest stack.
func TestSynthesizeV3(t *testing.T) {
	h := newHarness(t, nil)
	res := h.synthesize(t, "V3")

	require.True(t, res.Feasible())
	assert.Equal(t, "V3", res.Variant)
	assert.NotEmpty(t, res.RequestID)
	assert.Len(t, res.Assignment, 15, "every declared feature is assigned")
	assertStructure(t, res)

	assert.True(t, res.Assignment["SecOC_Protection"])
	assert.True(t, res.Assignment["Fresh_Counter"])
	assert.True(t, res.Assignment["MAC_32"])
	assert.True(t, res.Assignment["AES_128"])

	assert.InDelta(t, 2.8, res.LatencyMs, 1e-9)
	assert.LessOrEqual(t, res.LatencyMs, 3.0)
	assert.Equal(t, 3.0, res.LatencyBoundMs)
	assert.Equal(t, []CostTerm{
		{Dimension: "mac", Feature: "MAC_32", CostMs: 1.2},
		{Dimension: "encryption", Feature: "AES_128", CostMs: 0.9},
		{Dimension: "freshness", Feature: "Fresh_Counter", CostMs: 0.7},
	}, res.Costs)
	assert.GreaterOrEqual(t, res.FreshnessWindowMs, int64(5))
	assert.Equal(t, []string{"requires(Ghost,SecOC_Protection)"}, res.Dropped)
}

func TestSynthesizeInfeasibleLatency(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Policy.Diagnostics = true })
	h.store["Simulink_Variant_Timing.csv"] = []byte("variant,latency_ms\nV3,1.0\n")

	res := h.synthesize(t, "V3")
	assert.False(t, res.Feasible())
	assert.Equal(t, StatusInfeasible, res.Status)
	assert.Nil(t, res.Assignment)
	assert.Equal(t, 1.0, res.LatencyBoundMs)
	assert.Contains(t, res.Conflicts, GroupEmpiricalLatency)
}

// V2 pins AES_256, whose cheapest stack (3.5 ms) exceeds its 3.2 ms bound.
func TestSynthesizePresetAgainstBound(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Policy.Diagnostics = true })

	res := h.synthesize(t, "V2")
	require.False(t, res.Feasible())
	assert.Contains(t, res.Conflicts, GroupPreset)
	assert.Contains(t, res.Conflicts, GroupEmpiricalLatency)
}

func TestSynthesizeWithoutDiagnostics(t *testing.T) {
	h := newHarness(t, nil)
	res := h.synthesize(t, "V2")
	require.False(t, res.Feasible())
	assert.Empty(t, res.Conflicts)
}

func TestSynthesizePresetIsHonoured(t *testing.T) {
	h := newHarness(t, nil)
	res := h.synthesize(t, "V1")

	require.True(t, res.Feasible())
	assertStructure(t, res)
	assert.True(t, res.Assignment["CAN"])
	assert.True(t, res.Assignment["AES_128"])
	assert.False(t, res.Assignment["MAC_128"], "excluded by CAN")
	assert.LessOrEqual(t, res.LatencyMs, 2.9)
}

// Unknown variants add no preset constraints; the bound falls back to the
// global maximum.
func TestSynthesizeUnknownVariant(t *testing.T) {
	h := newHarness(t, nil)
	res := h.synthesize(t, "V99")

	require.True(t, res.Feasible())
	assertStructure(t, res)
	assert.True(t, res.Assignment["SecOC_Protection"])
	assert.Equal(t, 3.5, res.LatencyBoundMs)
	assert.InDelta(t, 0, testutil.ToFloat64(h.metrics.ConstraintsTotal.WithLabelValues(GroupPreset)), 0)
}

func TestSafetyFeatureOverridesPreset(t *testing.T) {
	catalog := preset.NewRegistry(map[string]preset.Preset{"OFF": {"SecOC_Protection": false}})
	h := newHarness(t, func(c *config.Config) { c.Policy.Diagnostics = true }, withCatalog(catalog))

	res := h.synthesize(t, "OFF")
	require.False(t, res.Feasible(), "the safety feature is never returned false")
	assert.Contains(t, res.Conflicts, GroupPreset)
	assert.Contains(t, res.Conflicts, GroupPolicy)
}

func TestSafetyFeatureAbsentOrDisabled(t *testing.T) {
	h := newHarness(t, func(c *config.Config) {
		c.Policy.SafetyFeature = ""
		c.Cost.Dimensions = c.Cost.Dimensions[:1]
	})
	h.store["FM.xml"] = []byte(`<fm><alt name="MAC"><feature name="MAC_32"/><feature name="MAC_64"/></alt></fm>`)

	res := h.synthesize(t, "V3")
	require.True(t, res.Feasible())
	assert.NotContains(t, res.Assignment, "SecOC_Protection")
	assert.True(t, res.Assignment["MAC_32"] != res.Assignment["MAC_64"])
}

func TestPresetEntriesForUndeclaredFeaturesAreIgnored(t *testing.T) {
	catalog := preset.NewRegistry(map[string]preset.Preset{"X": {"Ghost": true, "CAN_FD": true}})
	h := newHarness(t, nil, withCatalog(catalog))

	res := h.synthesize(t, "X")
	require.True(t, res.Feasible())
	assert.True(t, res.Assignment["CAN_FD"])
	assert.NotContains(t, res.Assignment, "Ghost")
	assert.Contains(t, h.logs.String(), "ignoring preset entry for undeclared feature")
}

// With prefer-false the result is the smallest model in name order. The
// chosen stack costs exactly the 3.5 ms bound.
func TestPreferFalseTieBreak(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Policy.TieBreak = "prefer-false" })

	for i := 0; i < 3; i++ {
		res := h.synthesize(t, "V99")
		require.True(t, res.Feasible())
		assert.Equal(t, []string{"AES_256", "CAN_FD", "Fresh_Counter", "MAC_32", "SecOC_Protection"}, res.Selected())
		assert.Equal(t, 3.5, res.LatencyMs)
	}
}

func TestFreshnessWindow(t *testing.T) {
	h := newHarness(t, nil)
	res := h.synthesize(t, "V3")
	require.True(t, res.Feasible())
	assert.Equal(t, int64(5), res.FreshnessWindowMs, "floor of the 5.6 ms minimum inter-arrival")
}

func TestFreshnessBoundedByReplay(t *testing.T) {
	h := newHarness(t, func(c *config.Config) {
		c.Policy.BoundFreshnessByReplay = true
		c.Policy.Diagnostics = true
	})

	res := h.synthesize(t, "V3")
	require.True(t, res.Feasible(), "5 <= floor(25.5)")

	h.store["Simulink_Replay_Attacks.csv"] = []byte("replay_interval_ms\n4.2\n")
	res = h.synthesize(t, "V3")
	require.False(t, res.Feasible())
	assert.Contains(t, res.Conflicts, GroupEmpiricalFreshness)
	assert.NotContains(t, res.Conflicts, GroupEmpiricalLatency)
}

func TestFreshnessWindowProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 25
	properties := gopter.NewProperties(parameters)

	h := newHarness(t, func(c *config.Config) { c.Cache.Size = 0 })
	properties.Property("freshness window is at least the floored minimum inter-arrival", prop.ForAll(
		func(minIA float64) bool {
			h.store["Simulink_CAN_Logs.csv"] = []byte(fmt.Sprintf("inter_arrival_ms\n%g\n%g\n", minIA, minIA+10))
			res, err := h.synth.Synthesize(context.Background(), "V3")
			if err != nil || !res.Feasible() {
				return false
			}
			return res.FreshnessWindowMs == int64(math.Floor(minIA))
		},
		gen.Float64Range(5, 500),
	))
	properties.TestingRun(t)
}

func TestMonotonicRelaxation(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 30
	properties := gopter.NewProperties(parameters)

	h := newHarness(t, func(c *config.Config) { c.Cache.Size = 0 })
	feasibleAt := func(limit float64) bool {
		h.store["Simulink_HIL_Latency.csv"] = []byte(fmt.Sprintf("latency_ms\n%g\n", limit))
		h.store["Simulink_Variant_Timing.csv"] = []byte("variant,latency_ms\n")
		res, err := h.synth.Synthesize(context.Background(), "V99")
		require.NoError(t, err)
		return res.Feasible()
	}

	properties.Property("raising the latency bound keeps a feasible request feasible", prop.ForAll(
		func(limit, extra float64) bool {
			return !feasibleAt(limit) || feasibleAt(limit+extra)
		},
		gen.Float64Range(0, 6),
		gen.Float64Range(0.001, 3),
	))
	properties.TestingRun(t)

	assert.False(t, feasibleAt(2.79))
	assert.True(t, feasibleAt(2.8))
}

func TestStrictModeRejectsUnknownEdges(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Policy.UnknownEdges = "strict" })

	_, err := h.synth.Synthesize(context.Background(), "V3")
	assert.ErrorIs(t, err, featuremodel.ErrUnknownFeature)
	assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.SynthesisTotal.WithLabelValues("V3", "error")), 0)
}

func TestFatalInputErrors(t *testing.T) {
	tests := []struct {
		name     string
		artifact string
		data     []byte
		wantErr  error
	}{
		{"malformed model", "FM.xml", []byte("<featureModel><feature"), featuremodel.ErrMalformed},
		{"missing latency column", "Simulink_HIL_Latency.csv", []byte("jitter_ms\n0.1\n"), bounds.ErrMissingColumn},
		{"missing artifact", "Simulink_CAN_Logs.csv", nil, os.ErrNotExist},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			if tt.data == nil {
				delete(h.store, tt.artifact)
			} else {
				h.store[tt.artifact] = tt.data
			}
			res, err := h.synth.Synthesize(context.Background(), "V3")
			assert.Nil(t, res)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDroppedEdgesAreReported(t *testing.T) {
	h := newHarness(t, nil)
	h.synthesize(t, "V3")

	assert.Contains(t, h.logs.String(), "dropping edge with unknown feature")
	assert.InDelta(t, 1, testutil.ToFloat64(h.metrics.DroppedEdgesTotal.WithLabelValues("requires")), 0)
}

func TestMemoizationAndPurge(t *testing.T) {
	h := newHarness(t, nil)
	lookups := func(cache, result string) float64 {
		return testutil.ToFloat64(h.metrics.CacheLookupsTotal.WithLabelValues(cache, result))
	}

	h.synthesize(t, "V3")
	h.synthesize(t, "V1")
	assert.Equal(t, 1.0, lookups("feature_model", "miss"))
	assert.Equal(t, 1.0, lookups("feature_model", "hit"))
	assert.Equal(t, 1.0, lookups("bounds", "hit"))

	// changed content hashes to a new key
	h.store["Simulink_Variant_Timing.csv"] = []byte("variant,latency_ms\nV3,1.0\n")
	res := h.synthesize(t, "V3")
	assert.False(t, res.Feasible())
	assert.Equal(t, 2.0, lookups("bounds", "miss"))

	h.synth.Purge()
	h.synthesize(t, "V3")
	assert.Equal(t, 2.0, lookups("feature_model", "miss"))
	assert.Equal(t, 3.0, lookups("bounds", "miss"))
}

func TestSynthesizeAll(t *testing.T) {
	h := newHarness(t, func(c *config.Config) { c.Workers = 3 })
	variants := []string{"V1", "V2", "V3", "V99", "V1", "V3"}

	outcomes, err := h.synth.SynthesizeAll(context.Background(), variants)
	require.NoError(t, err)
	require.Len(t, outcomes, len(variants))

	want := map[string]Status{"V1": StatusSatisfied, "V2": StatusInfeasible, "V3": StatusSatisfied, "V99": StatusSatisfied}
	ids := map[string]bool{}
	for i, o := range outcomes {
		require.NoError(t, o.Err)
		assert.Equal(t, variants[i], o.Variant)
		assert.Equal(t, variants[i], o.Result.Variant)
		assert.Equal(t, want[o.Variant], o.Result.Status, o.Variant)
		ids[o.Result.RequestID] = true
	}
	assert.Len(t, ids, len(variants), "each request gets its own id")
}

func TestVariantLabelIsBounded(t *testing.T) {
	h := newHarness(t, nil)
	h.synthesize(t, "V3")
	h.synthesize(t, "V99")
	h.synthesize(t, "V100")

	total := func(variant string) float64 {
		return testutil.ToFloat64(h.metrics.SynthesisTotal.WithLabelValues(variant, "satisfied"))
	}
	assert.Equal(t, 1.0, total("V3"))
	assert.Equal(t, 2.0, total(metrics.UnknownVariant))
	assert.Equal(t, 2, testutil.CollectAndCount(h.metrics.SynthesisTotal))
}

// panicStore fails every read by panicking
type panicStore struct{}

func (panicStore) Read(context.Context, string) ([]byte, error) {
	panic("store exploded")
}

func TestSynthesizeAllRecoversPanics(t *testing.T) {
	h := newHarness(t, nil, func(o *Options) { o.Store = panicStore{} })

	outcomes, err := h.synth.SynthesizeAll(context.Background(), []string{"V1", "V3"})
	require.NoError(t, err)
	require.Len(t, outcomes, 2)
	for i, variant := range []string{"V1", "V3"} {
		assert.Equal(t, variant, outcomes[i].Variant)
		assert.Nil(t, outcomes[i].Result)
		assert.ErrorIs(t, outcomes[i].Err, ErrPanic)
		assert.ErrorContains(t, outcomes[i].Err, "store exploded")
	}
}

func TestSynthesizeCancelled(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.synth.Synthesize(ctx, "V3")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestResultEncoding(t *testing.T) {
	h := newHarness(t, nil)
	res := h.synthesize(t, "V3")

	data, err := json.Marshal(res)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"status":"satisfied"`)

	var back Result
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, res.Assignment, back.Assignment)
	assert.Equal(t, StatusSatisfied, back.Status)

	out, err := yaml.Marshal(res)
	require.NoError(t, err)
	assert.Contains(t, string(out), "status: satisfied")
}

func TestLoadCatalog(t *testing.T) {
	store := memStore{"presets.yaml": []byte("variants:\n  V7: {CAN_FD: true}\n")}
	catalog, err := LoadCatalog(context.Background(), store, "presets.yaml")
	require.NoError(t, err)
	assert.Equal(t, preset.Preset{"CAN_FD": true}, catalog.Lookup("V7"))

	_, err = LoadCatalog(context.Background(), store, "missing.yaml")
	assert.ErrorIs(t, err, os.ErrNotExist)
}
