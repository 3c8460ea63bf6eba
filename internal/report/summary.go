package report

import (
	"fmt"
	"io"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/duke-git/lancet/v2/maputil"

	"yqhp/variant-bench/pkg/types"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

// Summary 终端摘要
type Summary struct {
	w     io.Writer
	color bool
}

// NewSummary 创建终端摘要，color 为 false 时不输出 ANSI 颜色
func NewSummary(w io.Writer, color bool) *Summary {
	return &Summary{w: w, color: color}
}

// Print 打印阶段、延迟、对比、阈值和最终结论
func (s *Summary) Print(r *types.RunReport) {
	s.line("")
	s.line(s.colorize(fmt.Sprintf("=== %s (%s) ===", displayName(r), r.Workload), colorCyan))
	s.line(fmt.Sprintf("run id: %s | duration: %s | storage: %s", r.RunID, formatDuration(r.Duration), r.Storage))

	s.printPhases(r.Phases)
	s.printSeries(r.Series)
	s.printComparison(r.Comparison)
	s.printThresholds(r.Thresholds)

	s.line("")
	verdict := string(r.Verdict)
	if r.Aborted {
		verdict += " (aborted)"
	}
	color := colorGreen
	if r.Verdict == types.VerdictFail {
		color = colorRed
	}
	s.line("结论: " + s.colorize(verdict, color))
	s.line("")
}

func (s *Summary) printPhases(phases []*types.PhaseReport) {
	if len(phases) == 0 {
		return
	}
	s.line("")
	s.line(s.colorize("--- 阶段 ---", colorYellow))
	tw := s.table()
	fmt.Fprintln(tw, "SCENARIO\tVARIANT\tSTATE\tVUS\tITERATIONS\tREQUESTS\tERRORS\tREADS\tRPS\tELAPSED")
	for _, p := range phases {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%.1f\t%s\n",
			p.Name, p.Variant, p.State, p.VUs, p.Iterations, p.Requests, p.Errors, p.TotalReads, p.RPS, formatDuration(p.Elapsed))
	}
	tw.Flush()
}

func (s *Summary) printSeries(series []*types.SeriesReport) {
	if len(series) == 0 {
		return
	}
	s.line("")
	s.line(s.colorize("--- 延迟 (ms) ---", colorYellow))
	tw := s.table()
	fmt.Fprintln(tw, "VARIANT\tOPERATION\tREQS\tERRORS\tCHECKS\tAVG\tMIN\tMED\tP90\tP95\tP99\tMAX")
	for _, sr := range series {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%.1f%%\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\t%.2f\n",
			sr.Variant, sr.Operation, sr.Requests, sr.Errors, sr.ChecksPassRate*100,
			sr.AvgMs, sr.MinMs, sr.MedMs, sr.P90Ms, sr.P95Ms, sr.P99Ms, sr.MaxMs)
	}
	tw.Flush()
}

func (s *Summary) printComparison(rows []*types.ComparisonRow) {
	if len(rows) == 0 {
		return
	}
	s.line("")
	s.line(s.colorize(fmt.Sprintf("--- 对比 (基线 %s) ---", rows[0].Baseline), colorYellow))
	tw := s.table()
	fmt.Fprintln(tw, "OPERATION\tVARIANT\tP95\tERRORS\tDELTA")
	for _, row := range rows {
		variants := maputil.Keys(row.Errors)
		sortBaselineFirst(variants, row.Baseline)
		for _, v := range variants {
			p95 := "-"
			if val, ok := row.P95Ms[v]; ok {
				p95 = fmt.Sprintf("%.2f", val)
			}
			delta := ""
			if d, ok := row.DeltaPct[v]; ok {
				delta = fmt.Sprintf("%+.1f%%", d)
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", row.Operation, v, p95, row.Errors[v], delta)
		}
	}
	tw.Flush()
}

func (s *Summary) printThresholds(reports []*types.ThresholdReport) {
	if len(reports) == 0 {
		return
	}
	s.line("")
	s.line(s.colorize("--- 阈值 ---", colorYellow))
	for _, t := range reports {
		mark := s.colorize("✓", colorGreen)
		if t.Verdict == types.VerdictFail {
			mark = s.colorize("✗", colorRed)
		}
		detail := fmt.Sprintf("observed=%.2f", t.Observed)
		if t.Reason != "" {
			detail = t.Reason
		}
		s.line(fmt.Sprintf("  %s %s  %s", mark, t.Rule, detail))
	}
}

func (s *Summary) table() *tabwriter.Writer {
	return tabwriter.NewWriter(s.w, 0, 0, 2, ' ', 0)
}

func (s *Summary) line(text string) {
	fmt.Fprintln(s.w, text)
}

func (s *Summary) colorize(text, color string) string {
	if !s.color {
		return text
	}
	return color + text + colorReset
}

func displayName(r *types.RunReport) string {
	if r.Name != "" {
		return r.Name
	}
	return "variant-bench"
}

// sortBaselineFirst 基线排在最前，其余按名称排序
func sortBaselineFirst(names []string, baseline string) {
	sort.Slice(names, func(i, j int) bool {
		if names[i] == baseline || names[j] == baseline {
			return names[i] == baseline && names[j] != baseline
		}
		return names[i] < names[j]
	})
}

func formatDuration(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	if d < time.Second {
		return fmt.Sprintf("%.2fms", float64(d.Microseconds())/1000)
	}
	return d.Round(time.Millisecond).String()
}
