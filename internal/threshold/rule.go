package threshold

import (
	"fmt"
	"strconv"
	"strings"

	"yqhp/variant-bench/pkg/metrics"
	"yqhp/variant-bench/pkg/types"
)

// Rule 对一个指标（可按标签过滤）施加一个条件
type Rule struct {
	Metric    string
	Filter    metrics.TagFilter
	Condition Condition
}

// ParseRule 由配置构造规则，标签只允许 variant 和 operation
func ParseRule(metric string, tags map[string]string, condition string) (Rule, error) {
	if strings.TrimSpace(metric) == "" {
		return Rule{}, fmt.Errorf("%w: 缺少指标名", ErrInvalidRule)
	}

	var filter metrics.TagFilter
	for k, v := range tags {
		switch k {
		case "variant":
			filter.Variant = v
		case "operation":
			filter.Operation = v
		default:
			return Rule{}, fmt.Errorf("%w: 未知标签 %q", ErrInvalidRule, k)
		}
	}

	cond, err := ParseCondition(condition)
	if err != nil {
		return Rule{}, err
	}
	return Rule{Metric: metric, Filter: filter, Condition: cond}, nil
}

// String 如 http_req_duration{variant=prisma6,operation=list} p(95) < 2000
func (r Rule) String() string {
	var b strings.Builder
	b.WriteString(r.Metric)
	if !r.Filter.IsZero() {
		var parts []string
		if r.Filter.Variant != "" {
			parts = append(parts, "variant="+r.Filter.Variant)
		}
		if r.Filter.Operation != "" {
			parts = append(parts, "operation="+r.Filter.Operation)
		}
		b.WriteString("{" + strings.Join(parts, ",") + "}")
	}
	b.WriteString(" ")
	b.WriteString(r.Condition.String())
	return b.String()
}

// Shorthand 配置中的简写阈值，0 表示未启用
type Shorthand struct {
	P95LatencyMsMax float64
	MaxErrorCount   int64
}

// Expand 将简写展开为规则：每个 (变体, 操作) 一条 p(95) < X，每个变体一条 count < N。
// 两者都是开区间。
func Expand(sh Shorthand, variants, operations []string) []Rule {
	var rules []Rule
	if sh.P95LatencyMsMax > 0 {
		for _, v := range variants {
			for _, op := range operations {
				rules = append(rules, Rule{
					Metric: types.MetricHTTPReqDuration,
					Filter: metrics.TagFilter{Variant: v, Operation: op},
					Condition: Condition{
						Aggregation: metrics.Percentile(95),
						Comparator:  LT,
						Bound:       sh.P95LatencyMsMax,
					},
				})
			}
		}
	}
	if sh.MaxErrorCount > 0 {
		for _, v := range variants {
			rules = append(rules, Rule{
				Metric: types.MetricErrors,
				Filter: metrics.TagFilter{Variant: v},
				Condition: Condition{
					Aggregation: metrics.Aggregation{Kind: metrics.AggCount},
					Comparator:  LT,
					Bound:       float64(sh.MaxErrorCount),
				},
			})
		}
	}
	return rules
}

// describe 用于日志
func describe(observed float64) string {
	return strconv.FormatFloat(observed, 'f', 2, 64)
}
