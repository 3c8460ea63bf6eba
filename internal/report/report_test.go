package report

import (
	"bytes"
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yqhp/variant-bench/internal/threshold"
	"yqhp/variant-bench/pkg/metrics"
	"yqhp/variant-bench/pkg/types"
)

var testVariants = []types.Variant{
	{Name: "prisma6", BaseURL: "http://localhost:8084"},
	{Name: "prisma7", BaseURL: "http://localhost:8085"},
}

// seedRegistry prisma6 的 list 延迟为 10..50，prisma7 为 20..100，prisma7 有一次错误
func seedRegistry(t *testing.T) *metrics.Registry {
	t.Helper()
	reg := metrics.NewRegistry()
	for i := 1; i <= 5; i++ {
		t6 := metrics.Tags{Variant: "prisma6", Operation: "list"}
		t7 := metrics.Tags{Variant: "prisma7", Operation: "list"}
		require.NoError(t, reg.RecordSample(types.MetricHTTPReqDuration, t6, float64(i*10)))
		require.NoError(t, reg.RecordSample(types.MetricHTTPReqDuration, t7, float64(i*20)))
		require.NoError(t, reg.Increment(types.MetricHTTPReqs, t6, 1))
		require.NoError(t, reg.Increment(types.MetricHTTPReqs, t7, 1))
		require.NoError(t, reg.AddRate(types.MetricChecks, t6, true))
		require.NoError(t, reg.AddRate(types.MetricChecks, t7, i != 5))
		require.NoError(t, reg.Increment(types.MetricTotalReads, t6, 3))
	}
	require.NoError(t, reg.Increment(types.MetricErrors, metrics.Tags{Variant: "prisma7", Operation: "list"}, 1))
	return reg
}

func completedStates(start time.Time) []types.ScenarioStatus {
	return []types.ScenarioStatus{
		{Name: "prisma6", Variant: "prisma6", Workload: "read-heavy", State: types.ScenarioCompleted,
			VUs: 2, Iterations: 5, StartedAt: start, CompletedAt: start.Add(time.Second)},
		{Name: "prisma7", Variant: "prisma7", Workload: "read-heavy", State: types.ScenarioCompleted,
			VUs: 2, Iterations: 5, StartedAt: start.Add(time.Second), CompletedAt: start.Add(2 * time.Second)},
	}
}

func TestBuild_SeriesPhasesAndComparison(t *testing.T) {
	reg := seedRegistry(t)
	start := time.Now()

	r := Build(Input{
		Name:      "prisma-compare",
		Workload:  "read-heavy",
		Variants:  testVariants,
		Registry:  reg,
		States:    completedStates(start),
		StartTime: start,
		EndTime:   start.Add(2 * time.Second),
	})

	_, err := uuid.Parse(r.RunID)
	require.NoError(t, err)
	assert.Equal(t, types.VerdictPass, r.Verdict)
	assert.False(t, r.Aborted)
	assert.Equal(t, "exact", r.Storage)
	assert.Equal(t, 2*time.Second, r.Duration)

	require.Len(t, r.Phases, 2)
	assert.Equal(t, int64(5), r.Phases[0].Requests)
	assert.Equal(t, int64(15), r.Phases[0].TotalReads)
	assert.InDelta(t, 5.0, r.Phases[0].RPS, 1e-9)
	assert.Equal(t, int64(1), r.Phases[1].Errors)

	require.Len(t, r.Series, 2)
	s6, s7 := r.Series[0], r.Series[1]
	assert.Equal(t, "prisma6", s6.Variant)
	assert.Equal(t, "list", s6.Operation)
	assert.Equal(t, int64(5), s6.Requests)
	assert.Equal(t, int64(5), s6.Samples)
	assert.Equal(t, 10.0, s6.MinMs)
	assert.Equal(t, 50.0, s6.MaxMs)
	assert.Equal(t, 30.0, s6.AvgMs)
	assert.Equal(t, 1.0, s6.ChecksPassRate)
	assert.InDelta(t, 0.8, s7.ChecksPassRate, 1e-9)
	assert.Equal(t, int64(1), s7.Errors)

	p95, err := reg.Percentile(types.MetricHTTPReqDuration, metrics.TagFilter{Variant: "prisma6", Operation: "list"}, 95)
	require.NoError(t, err)
	assert.Equal(t, p95, s6.P95Ms)

	require.Len(t, r.Comparison, 1)
	row := r.Comparison[0]
	assert.Equal(t, "list", row.Operation)
	assert.Equal(t, "prisma6", row.Baseline)
	assert.InDelta(t, 100.0, row.DeltaPct["prisma7"], 1e-9)
	assert.NotContains(t, row.DeltaPct, "prisma6")
	assert.Equal(t, int64(1), row.Errors["prisma7"])
}

func TestBuild_Verdicts(t *testing.T) {
	reg := seedRegistry(t)
	start := time.Now()

	t.Run("threshold failure", func(t *testing.T) {
		r := Build(Input{Registry: reg, Variants: testVariants, States: completedStates(start),
			Result: &threshold.Result{Verdict: types.VerdictFail}})
		assert.Equal(t, types.VerdictFail, r.Verdict)
	})

	t.Run("aborted phase fails the run", func(t *testing.T) {
		states := completedStates(start)
		states[1].State = types.ScenarioAborted
		r := Build(Input{Registry: reg, Variants: testVariants, States: states,
			Result: &threshold.Result{Verdict: types.VerdictPass}})
		assert.True(t, r.Aborted)
		assert.Equal(t, types.VerdictFail, r.Verdict)
	})

	t.Run("evaluated rules appear in the report", func(t *testing.T) {
		rules := threshold.Expand(threshold.Shorthand{P95LatencyMsMax: 60, MaxErrorCount: 1},
			[]string{"prisma6", "prisma7"}, []string{"list"})
		res := threshold.Evaluate(rules, reg)
		r := Build(Input{RunID: "fixed", Registry: reg, Variants: testVariants, States: completedStates(start), Result: res})

		assert.Equal(t, "fixed", r.RunID)
		require.Len(t, r.Thresholds, len(rules))
		// prisma7: p95 96 ≥ 60，错误数 1 不小于 1
		assert.Equal(t, types.VerdictFail, r.Verdict)
		assert.Len(t, res.Failed(), 2)
	})
}

func TestBuild_SingleVariantHasNoComparison(t *testing.T) {
	reg := metrics.NewRegistry()
	require.NoError(t, reg.RecordSample(types.MetricHTTPReqDuration, metrics.Tags{Variant: "solo", Operation: "get"}, 5))

	r := Build(Input{Registry: reg, Variants: []types.Variant{{Name: "solo"}}})
	assert.Nil(t, r.Comparison)
	require.Len(t, r.Series, 1)
	assert.Equal(t, int64(0), r.Series[0].Requests)
	assert.Equal(t, 5.0, r.Series[0].P95Ms)
}

func TestWriteAndReadFile(t *testing.T) {
	reg := seedRegistry(t)
	start := time.Now()
	r := Build(Input{Name: "x", Registry: reg, Variants: testVariants, States: completedStates(start),
		StartTime: start, EndTime: start.Add(2 * time.Second)})

	path := filepath.Join(t.TempDir(), "nested", "report.json")
	require.NoError(t, WriteFile(path, r))

	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, r.RunID, got.RunID)
	assert.Equal(t, r.Verdict, got.Verdict)
	assert.Equal(t, r.Duration, got.Duration)
	require.Len(t, got.Series, 2)
	assert.Equal(t, r.Series[1].P95Ms, got.Series[1].P95Ms)
	assert.True(t, r.StartTime.Equal(got.StartTime))
}

func TestSummary_Print(t *testing.T) {
	reg := seedRegistry(t)
	start := time.Now()
	rules := threshold.Expand(threshold.Shorthand{P95LatencyMsMax: 2000}, []string{"prisma6"}, []string{"list"})
	r := Build(Input{Name: "prisma-compare", Workload: "read-heavy", Registry: reg, Variants: testVariants,
		States: completedStates(start), Result: threshold.Evaluate(rules, reg),
		StartTime: start, EndTime: start.Add(2 * time.Second)})

	var buf bytes.Buffer
	NewSummary(&buf, false).Print(r)
	out := buf.String()

	assert.Contains(t, out, "=== prisma-compare (read-heavy) ===")
	assert.Contains(t, out, "对比 (基线 prisma6)")
	assert.Contains(t, out, "+100.0%")
	assert.Contains(t, out, "✓ http_req_duration{variant=prisma6,operation=list} p(95) < 2000")
	assert.Contains(t, out, "结论: PASS")
	assert.NotContains(t, out, "\033[")
}

func TestSortBaselineFirst(t *testing.T) {
	names := []string{"c", "a", "base", "b"}
	sortBaselineFirst(names, "base")
	assert.Equal(t, []string{"base", "a", "b", "c"}, names)
}

type fakeSource struct {
	mu sync.Mutex
	st types.ScenarioStatus
	ok bool
}

func (f *fakeSource) Current() (types.ScenarioStatus, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.st, f.ok
}

func TestCollector_Collect(t *testing.T) {
	reg := metrics.NewRegistry()
	src := &fakeSource{}
	c := NewCollector(reg, src, time.Second)
	now := time.Now()
	c.start = now.Add(-2 * time.Second)

	c.collect(now)
	assert.Empty(t, c.Points(), "没有运行中的阶段时不采集")
	assert.Nil(t, c.Latest())

	tags := metrics.Tags{Variant: "prisma6", Operation: "list"}
	for i := 0; i < 10; i++ {
		require.NoError(t, reg.Increment(types.MetricHTTPReqs, tags, 1))
		require.NoError(t, reg.RecordSample(types.MetricHTTPReqDuration, tags, float64(i+1)))
	}
	src.st = types.ScenarioStatus{Name: "prisma6", Variant: "prisma6", ActiveVUs: 4, Iterations: 7, StartedAt: now.Add(-2 * time.Second)}
	src.ok = true

	c.collect(now)
	require.Len(t, c.Points(), 1)
	p := c.Latest()
	assert.Equal(t, "prisma6", p.Scenario)
	assert.Equal(t, 4, p.ActiveVUs)
	assert.Equal(t, int64(7), p.Iterations)
	assert.InDelta(t, 5.0, p.RPS, 1e-9)
	assert.Equal(t, int64(2000), p.ElapsedMs)
	assert.Greater(t, p.P95Ms, 9.0)

	for i := 0; i < 3; i++ {
		require.NoError(t, reg.Increment(types.MetricHTTPReqs, tags, 1))
	}
	c.collect(now.Add(time.Second))
	assert.InDelta(t, 3.0, c.Latest().RPS, 1e-9)
}

func TestCollector_StartStop(t *testing.T) {
	reg := metrics.NewRegistry()
	src := &fakeSource{ok: true, st: types.ScenarioStatus{Name: "a", Variant: "a", StartedAt: time.Now()}}
	c := NewCollector(reg, src, 5*time.Millisecond)

	c.Stop() // 未启动时无操作
	c.Start(context.Background())
	require.Eventually(t, func() bool { return len(c.Points()) >= 2 }, time.Second, 5*time.Millisecond)
	c.Stop()
	c.Stop()

	n := len(c.Points())
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, n, len(c.Points()))
}
