package metrics

import "errors"

var (
	// ErrMetricTypeMismatch 指标已以其他类型注册
	ErrMetricTypeMismatch = errors.New("metric type mismatch")
	// ErrNegativeDelta 计数器增量为负
	ErrNegativeDelta = errors.New("counter delta must be non-negative")
	// ErrNoSamples 没有匹配的样本
	ErrNoSamples = errors.New("no samples")
	// ErrInvalidPercentile 百分位数超出 0-100
	ErrInvalidPercentile = errors.New("percentile must be within [0, 100]")
	// ErrUnsupportedAggregation 聚合方式不适用于该指标类型
	ErrUnsupportedAggregation = errors.New("aggregation not supported for metric type")
	// ErrUnknownStorage 未知的分布存储方式
	ErrUnknownStorage = errors.New("unknown distribution storage")
)
