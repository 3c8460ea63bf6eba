package metrics

import (
	"sort"
	"sync"
	"time"
)

// MetricType 定义指标类型
type MetricType string

const (
	// Counter 计数器类型，只增不减
	Counter MetricType = "counter"
	// Rate 比率类型，计算成功/失败比率
	Rate MetricType = "rate"
	// Trend 趋势类型，计算百分位数等统计值
	Trend MetricType = "trend"
)

// ValueType 定义值的类型
type ValueType string

const (
	// Default 默认值类型
	Default ValueType = "default"
	// Time 时间类型（毫秒）
	Time ValueType = "time"
)

// Tags 是每个观测值携带的标签对，决定观测值落入哪个序列。
type Tags struct {
	Variant   string `json:"variant"`
	Operation string `json:"operation"`
}

// Map 返回标签的 map 形式
func (t Tags) Map() map[string]string {
	return map[string]string{
		"variant":   t.Variant,
		"operation": t.Operation,
	}
}

// TagFilter 按标签筛选序列，空字段匹配任意值。
type TagFilter struct {
	Variant   string `yaml:"variant,omitempty" json:"variant,omitempty"`
	Operation string `yaml:"operation,omitempty" json:"operation,omitempty"`
}

// Match 判断标签是否满足筛选条件
func (f TagFilter) Match(t Tags) bool {
	if f.Variant != "" && f.Variant != t.Variant {
		return false
	}
	if f.Operation != "" && f.Operation != t.Operation {
		return false
	}
	return true
}

// IsZero 筛选条件是否为空（匹配全部）
func (f TagFilter) IsZero() bool {
	return f.Variant == "" && f.Operation == ""
}

// Metric 定义一个指标。
// 一个指标按标签对隐式分区为多个序列，序列在首次观测时惰性创建。
type Metric struct {
	Name     string     `json:"name"`
	Type     MetricType `json:"type"`
	Contains ValueType  `json:"contains,omitempty"`

	newSink func() Sink
	series  map[Tags]Sink
	mu      sync.RWMutex
}

// sink 返回指定标签的序列，不存在时创建
func (m *Metric) sink(tags Tags) Sink {
	m.mu.RLock()
	s, ok := m.series[tags]
	m.mu.RUnlock()
	if ok {
		return s
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok = m.series[tags]; ok {
		return s
	}
	s = m.newSink()
	m.series[tags] = s
	return s
}

// Matching 返回满足筛选条件的序列
func (m *Metric) Matching(filter TagFilter) map[Tags]Sink {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[Tags]Sink)
	for tags, s := range m.series {
		if filter.Match(tags) {
			result[tags] = s
		}
	}
	return result
}

// Series 返回该指标已有的全部标签对（有序）
func (m *Metric) Series() []Tags {
	m.mu.RLock()
	tags := make([]Tags, 0, len(m.series))
	for t := range m.series {
		tags = append(tags, t)
	}
	m.mu.RUnlock()

	sort.Slice(tags, func(i, j int) bool {
		if tags[i].Variant != tags[j].Variant {
			return tags[i].Variant < tags[j].Variant
		}
		return tags[i].Operation < tags[j].Operation
	})
	return tags
}

// Sample 表示单个指标样本
type Sample struct {
	Metric *Metric   `json:"metric"`
	Time   time.Time `json:"time"`
	Value  float64   `json:"value"`
	Tags   Tags      `json:"tags"`
}

// SampleContainer 是可以返回多个样本的接口
type SampleContainer interface {
	GetSamples() []Sample
}

// Samples 是 Sample 切片，实现 SampleContainer 接口
type Samples []Sample

// GetSamples 返回样本切片
func (s Samples) GetSamples() []Sample {
	return s
}
