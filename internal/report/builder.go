package report

import (
	"sort"
	"time"

	"github.com/duke-git/lancet/v2/slice"
	"github.com/google/uuid"

	"yqhp/variant-bench/internal/threshold"
	"yqhp/variant-bench/pkg/metrics"
	"yqhp/variant-bench/pkg/types"
)

// Input 生成报告所需的运行结果
type Input struct {
	// RunID 为空时生成 UUID
	RunID     string
	Name      string
	Workload  string
	Variants  []types.Variant
	Registry  *metrics.Registry
	States    []types.ScenarioStatus
	Result    *threshold.Result
	StartTime time.Time
	EndTime   time.Time
	Timeline  []*types.TimelinePoint
}

// seriesMetrics 决定报告中出现哪些 (variant, operation) 序列
var seriesMetrics = []string{
	types.MetricHTTPReqs,
	types.MetricHTTPReqDuration,
	types.MetricErrors,
}

// Build 从注册表、阶段状态和阈值结果生成运行报告
func Build(in Input) *types.RunReport {
	runID := in.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	r := &types.RunReport{
		RunID:     runID,
		Name:      in.Name,
		Workload:  in.Workload,
		StartTime: in.StartTime,
		EndTime:   in.EndTime,
		Duration:  in.EndTime.Sub(in.StartTime),
		Storage:   string(in.Registry.Storage()),
		Variants:  in.Variants,
		Timeline:  in.Timeline,
		Verdict:   types.VerdictPass,
	}

	r.Phases = buildPhases(in.Registry, in.States)
	for _, p := range r.Phases {
		if p.State != types.ScenarioCompleted {
			r.Aborted = true
		}
	}

	r.Series = buildSeries(in.Registry)
	r.Comparison = buildComparison(r.Series, baselineOrder(in.Variants, r.Series))

	if in.Result != nil {
		r.Thresholds = in.Result.Reports()
		r.Verdict = in.Result.Verdict
	}
	if r.Aborted {
		r.Verdict = types.VerdictFail
	}
	return r
}

func buildPhases(reg *metrics.Registry, states []types.ScenarioStatus) []*types.PhaseReport {
	phases := make([]*types.PhaseReport, 0, len(states))
	for _, st := range states {
		filter := metrics.TagFilter{Variant: st.Variant}
		p := &types.PhaseReport{
			Name:        st.Name,
			Variant:     st.Variant,
			Workload:    st.Workload,
			State:       st.State,
			VUs:         st.VUs,
			Iterations:  st.Iterations,
			StartedAt:   st.StartedAt,
			CompletedAt: st.CompletedAt,
			Requests:    reg.Count(types.MetricHTTPReqs, filter),
			Errors:      reg.Count(types.MetricErrors, filter),
			TotalReads:  reg.Count(types.MetricTotalReads, filter),
		}
		if !st.StartedAt.IsZero() && st.CompletedAt.After(st.StartedAt) {
			p.Elapsed = st.CompletedAt.Sub(st.StartedAt)
			p.RPS = float64(p.Requests) / p.Elapsed.Seconds()
		}
		phases = append(phases, p)
	}
	return phases
}

// seriesTags 收集出现过的标签对，按 variant、operation 排序
func seriesTags(reg *metrics.Registry) []metrics.Tags {
	var all []metrics.Tags
	for _, name := range seriesMetrics {
		if m := reg.Get(name); m != nil {
			all = append(all, m.Series()...)
		}
	}
	all = slice.Unique(all)
	sort.Slice(all, func(i, j int) bool {
		if all[i].Variant != all[j].Variant {
			return all[i].Variant < all[j].Variant
		}
		return all[i].Operation < all[j].Operation
	})
	return all
}

func buildSeries(reg *metrics.Registry) []*types.SeriesReport {
	tags := seriesTags(reg)
	series := make([]*types.SeriesReport, 0, len(tags))

	for _, t := range tags {
		filter := metrics.TagFilter{Variant: t.Variant, Operation: t.Operation}
		s := &types.SeriesReport{
			Variant:           t.Variant,
			Operation:         t.Operation,
			Requests:          reg.Count(types.MetricHTTPReqs, filter),
			Errors:            reg.Count(types.MetricErrors, filter),
			TransportFailures: reg.Count(types.MetricTransportFailures, filter),
			ParseFailures:     reg.Count(types.MetricParseFailures, filter),
			Samples:           reg.Count(types.MetricHTTPReqDuration, filter),
		}
		if rate, err := reg.Aggregate(types.MetricChecks, filter, metrics.Aggregation{Kind: metrics.AggRate}); err == nil {
			s.ChecksPassRate = rate
		}

		if s.Samples > 0 {
			agg := func(a metrics.Aggregation) float64 {
				v, _ := reg.Aggregate(types.MetricHTTPReqDuration, filter, a)
				return v
			}
			s.AvgMs = agg(metrics.Aggregation{Kind: metrics.AggAvg})
			s.MinMs = agg(metrics.Aggregation{Kind: metrics.AggMin})
			s.MedMs = agg(metrics.Aggregation{Kind: metrics.AggMed})
			s.P90Ms = agg(metrics.Percentile(90))
			s.P95Ms = agg(metrics.Percentile(95))
			s.P99Ms = agg(metrics.Percentile(99))
			s.MaxMs = agg(metrics.Aggregation{Kind: metrics.AggMax})
		}
		series = append(series, s)
	}
	return series
}

// baselineOrder 返回变体顺序，第一个为基线。
// 配置中的顺序优先，未配置的变体按出现顺序追加。
func baselineOrder(variants []types.Variant, series []*types.SeriesReport) []string {
	names := slice.Map(variants, func(_ int, v types.Variant) string { return v.Name })
	for _, s := range series {
		if !slice.Contain(names, s.Variant) {
			names = append(names, s.Variant)
		}
	}
	return names
}

// buildComparison 按 operation 比较各变体的 p95 与错误数，至少两个变体时才生成
func buildComparison(series []*types.SeriesReport, variants []string) []*types.ComparisonRow {
	if len(variants) < 2 {
		return nil
	}
	baseline := variants[0]

	operations := slice.Unique(slice.Map(series, func(_ int, s *types.SeriesReport) string { return s.Operation }))
	sort.Strings(operations)

	rows := make([]*types.ComparisonRow, 0, len(operations))
	for _, op := range operations {
		row := &types.ComparisonRow{
			Operation: op,
			Baseline:  baseline,
			P95Ms:     make(map[string]float64),
			Errors:    make(map[string]int64),
			DeltaPct:  make(map[string]float64),
		}

		bySeries := slice.Filter(series, func(_ int, s *types.SeriesReport) bool { return s.Operation == op })
		for _, s := range bySeries {
			row.Errors[s.Variant] = s.Errors
			if s.Samples > 0 {
				row.P95Ms[s.Variant] = s.P95Ms
			}
		}

		base, ok := row.P95Ms[baseline]
		for v, p95 := range row.P95Ms {
			if v == baseline || !ok || base == 0 {
				continue
			}
			row.DeltaPct[v] = (p95 - base) / base * 100
		}
		rows = append(rows, row)
	}
	return rows
}
