// Package threshold 在测量窗口结束后对注册表执行阈值规则。
package threshold

import (
	"errors"
	"fmt"

	"yqhp/variant-bench/pkg/metrics"
	"yqhp/variant-bench/pkg/types"
)

// ReasonInsufficientData 分布或比率没有样本
const ReasonInsufficientData = "insufficient data"

// Source 提供聚合值，*metrics.Registry 实现了该接口
type Source interface {
	Aggregate(name string, filter metrics.TagFilter, agg metrics.Aggregation) (float64, error)
}

// RuleResult 单条规则的结果
type RuleResult struct {
	Rule     Rule
	Observed float64
	Verdict  types.Verdict
	Reason   string
}

// Result 全部规则的结果
type Result struct {
	Rules   []RuleResult
	Verdict types.Verdict
}

// Passed 所有规则均通过
func (r *Result) Passed() bool {
	return r.Verdict == types.VerdictPass
}

// Failed 返回失败的规则
func (r *Result) Failed() []RuleResult {
	var out []RuleResult
	for _, rr := range r.Rules {
		if rr.Verdict == types.VerdictFail {
			out = append(out, rr)
		}
	}
	return out
}

// Reports 转换为报告结构
func (r *Result) Reports() []*types.ThresholdReport {
	out := make([]*types.ThresholdReport, 0, len(r.Rules))
	for _, rr := range r.Rules {
		out = append(out, &types.ThresholdReport{
			Rule:     rr.Rule.String(),
			Metric:   rr.Rule.Metric,
			Variant:  rr.Rule.Filter.Variant,
			Op:       rr.Rule.Filter.Operation,
			Observed: rr.Observed,
			Verdict:  rr.Verdict,
			Reason:   rr.Reason,
		})
	}
	return out
}

// Evaluate 逐条评估规则，不会短路。只读取 source，不修改任何状态。
// 空规则集判定为通过。
func Evaluate(rules []Rule, source Source) *Result {
	res := &Result{Rules: make([]RuleResult, 0, len(rules)), Verdict: types.VerdictPass}
	for _, rule := range rules {
		rr := evaluateRule(rule, source)
		if rr.Verdict == types.VerdictFail {
			res.Verdict = types.VerdictFail
		}
		res.Rules = append(res.Rules, rr)
	}
	return res
}

func evaluateRule(rule Rule, source Source) RuleResult {
	rr := RuleResult{Rule: rule, Verdict: types.VerdictFail}

	observed, err := source.Aggregate(rule.Metric, rule.Filter, rule.Condition.Aggregation)
	if err != nil {
		if errors.Is(err, metrics.ErrNoSamples) {
			rr.Reason = ReasonInsufficientData
		} else {
			rr.Reason = err.Error()
		}
		return rr
	}

	rr.Observed = observed
	if rule.Condition.Comparator.Compare(observed, rule.Condition.Bound) {
		rr.Verdict = types.VerdictPass
		return rr
	}
	rr.Reason = fmt.Sprintf("observed %s, want %s %s",
		describe(observed), rule.Condition.Comparator, describe(rule.Condition.Bound))
	return rr
}

// EvaluateCompleted 只在规则涉及的阶段全部完成时评估。
// 带变体过滤的规则要求该变体的所有阶段已完成，不带过滤的规则要求全部阶段已完成。
func EvaluateCompleted(rules []Rule, source Source, states []types.ScenarioStatus) (*Result, error) {
	open := make(map[string]bool)
	anyOpen := false
	for _, st := range states {
		if st.State != types.ScenarioCompleted {
			open[st.Variant] = true
			anyOpen = true
		}
	}

	for _, rule := range rules {
		v := rule.Filter.Variant
		if (v == "" && anyOpen) || open[v] {
			return nil, fmt.Errorf("%w: %s", ErrWindowOpen, rule)
		}
	}
	return Evaluate(rules, source), nil
}
