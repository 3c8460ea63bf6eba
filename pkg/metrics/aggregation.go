package metrics

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// AggregationKind 聚合方式
type AggregationKind string

const (
	AggCount      AggregationKind = "count"
	AggRate       AggregationKind = "rate"
	AggAvg        AggregationKind = "avg"
	AggMin        AggregationKind = "min"
	AggMax        AggregationKind = "max"
	AggMed        AggregationKind = "med"
	AggPercentile AggregationKind = "p"
)

// Aggregation 描述如何把一组序列归约为一个数值
type Aggregation struct {
	Kind AggregationKind
	// P 仅对 AggPercentile 有效，取值 0-100
	P float64
}

// Percentile 构造 p(N) 聚合
func Percentile(p float64) Aggregation {
	return Aggregation{Kind: AggPercentile, P: p}
}

// String 返回聚合的文本形式，如 "p(95)"
func (a Aggregation) String() string {
	if a.Kind == AggPercentile {
		return "p(" + strconv.FormatFloat(a.P, 'f', -1, 64) + ")"
	}
	return string(a.Kind)
}

// ParseAggregation 解析 count、rate、avg、min、max、med 或 p(N)
func ParseAggregation(s string) (Aggregation, error) {
	s = strings.TrimSpace(s)
	switch AggregationKind(s) {
	case AggCount, AggRate, AggAvg, AggMin, AggMax, AggMed:
		return Aggregation{Kind: AggregationKind(s)}, nil
	}

	if strings.HasPrefix(s, "p(") && strings.HasSuffix(s, ")") {
		inner := strings.TrimSpace(s[2 : len(s)-1])
		p, err := strconv.ParseFloat(inner, 64)
		if err != nil {
			return Aggregation{}, fmt.Errorf("无效的百分位数 %q: %w", s, err)
		}
		if !validPercentile(p) {
			return Aggregation{}, fmt.Errorf("%q: %w", s, ErrInvalidPercentile)
		}
		return Percentile(p), nil
	}

	return Aggregation{}, fmt.Errorf("未知的聚合方式: %q", s)
}

// validPercentile NaN 与任何数比较都为 false，需要单独排除
func validPercentile(p float64) bool {
	return !math.IsNaN(p) && p >= 0 && p <= 100
}

// NeedsSamples 聚合是否要求非空分布（count 除外）
func (a Aggregation) NeedsSamples() bool {
	return a.Kind != AggCount
}
