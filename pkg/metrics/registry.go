package metrics

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Storage 分布的存储方式
type Storage string

const (
	// StorageExact 保留全部样本，百分位数精确
	StorageExact Storage = "exact"
	// StorageHDR 使用 HdrHistogram，内存固定，误差有界
	StorageHDR Storage = "hdr"
)

// Observer 接收每一个记录的样本
type Observer func(Sample)

// SeriesStats 单个序列的统计快照
type SeriesStats struct {
	Metric string             `json:"metric"`
	Type   MetricType         `json:"type"`
	Tags   Tags               `json:"tags"`
	Values map[string]float64 `json:"values"`
}

// Registry 管理所有已注册的指标。
// 指标在进程生命周期内存在，不会在阶段之间重置。
type Registry struct {
	metrics map[string]*Metric
	mu      sync.RWMutex

	storage Storage
	sigfigs int

	observers []Observer
	obsMu     sync.RWMutex
}

// NewRegistry 创建使用精确分布的指标注册表
func NewRegistry() *Registry {
	r, _ := NewRegistryWithStorage(StorageExact, 0)
	return r
}

// NewRegistryWithStorage 创建指定分布存储方式的注册表
func NewRegistryWithStorage(storage Storage, sigfigs int) (*Registry, error) {
	switch storage {
	case "", StorageExact:
		storage = StorageExact
	case StorageHDR:
		if sigfigs == 0 {
			sigfigs = DefaultSignificantFigures
		}
		if sigfigs < 1 || sigfigs > 5 {
			return nil, fmt.Errorf("HDR 有效数字必须在 1-5 之间: %d", sigfigs)
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownStorage, storage)
	}

	return &Registry{
		metrics: make(map[string]*Metric),
		storage: storage,
		sigfigs: sigfigs,
	}, nil
}

// Storage 返回分布存储方式
func (r *Registry) Storage() Storage {
	return r.storage
}

// newSinkFunc 按指标类型返回聚合器工厂
func (r *Registry) newSinkFunc(metricType MetricType) func() Sink {
	switch metricType {
	case Counter:
		return func() Sink { return &CounterSink{} }
	case Rate:
		return func() Sink { return &RateSink{} }
	default:
		if r.storage == StorageHDR {
			sigfigs := r.sigfigs
			return func() Sink { return NewHDRSink(sigfigs) }
		}
		return func() Sink { return &TrendSink{} }
	}
}

// NewMetric 创建并注册新指标，已存在且类型一致时返回现有指标
func (r *Registry) NewMetric(name string, metricType MetricType, contains ValueType) (*Metric, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.metrics[name]; ok {
		if m.Type != metricType {
			return nil, fmt.Errorf("%w: %s 已注册为 %s", ErrMetricTypeMismatch, name, m.Type)
		}
		return m, nil
	}

	if contains == "" {
		contains = Default
	}
	m := &Metric{
		Name:     name,
		Type:     metricType,
		Contains: contains,
		newSink:  r.newSinkFunc(metricType),
		series:   make(map[Tags]Sink),
	}
	r.metrics[name] = m
	return m, nil
}

// Get 获取已注册的指标
func (r *Registry) Get(name string) *Metric {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.metrics[name]
}

// Names 返回全部指标名（有序）
func (r *Registry) Names() []string {
	r.mu.RLock()
	names := make([]string, 0, len(r.metrics))
	for name := range r.metrics {
		names = append(names, name)
	}
	r.mu.RUnlock()

	sort.Strings(names)
	return names
}

// Subscribe 注册样本观察者。观察者在记录线程上同步调用，应尽快返回。
func (r *Registry) Subscribe(fn Observer) {
	if fn == nil {
		return
	}
	r.obsMu.Lock()
	r.observers = append(r.observers, fn)
	r.obsMu.Unlock()
}

func (r *Registry) record(name string, metricType MetricType, contains ValueType, tags Tags, value float64) error {
	m := r.Get(name)
	if m == nil {
		var err error
		if m, err = r.NewMetric(name, metricType, contains); err != nil {
			return err
		}
	} else if m.Type != metricType {
		return fmt.Errorf("%w: %s 已注册为 %s", ErrMetricTypeMismatch, name, m.Type)
	}

	sample := Sample{
		Metric: m,
		Time:   time.Now(),
		Value:  value,
		Tags:   tags,
	}
	m.sink(tags).Add(sample)

	r.obsMu.RLock()
	observers := r.observers
	r.obsMu.RUnlock()
	for _, fn := range observers {
		fn(sample)
	}
	return nil
}

// RecordSample 向趋势序列追加一个观测值
func (r *Registry) RecordSample(name string, tags Tags, value float64) error {
	return r.record(name, Trend, Time, tags, value)
}

// Increment 计数器序列增加 delta，delta 必须非负
func (r *Registry) Increment(name string, tags Tags, delta int64) error {
	if delta < 0 {
		return fmt.Errorf("%s: %w", name, ErrNegativeDelta)
	}
	return r.record(name, Counter, Default, tags, float64(delta))
}

// AddRate 向比率序列记录一次布尔观测
func (r *Registry) AddRate(name string, tags Tags, ok bool) error {
	v := 0.0
	if ok {
		v = 1
	}
	return r.record(name, Rate, Default, tags, v)
}

// Count 返回计数器之和，趋势返回样本数，比率返回观测数。未知指标为 0。
func (r *Registry) Count(name string, filter TagFilter) int64 {
	m := r.Get(name)
	if m == nil {
		return 0
	}

	var total int64
	for _, s := range m.Matching(filter) {
		switch sink := s.(type) {
		case *CounterSink:
			total += sink.Count()
		case *RateSink:
			_, n := sink.Counts()
			total += n
		case Distribution:
			total += sink.Len()
		}
	}
	return total
}

// distribution 合并满足筛选条件的全部分布序列
func (r *Registry) distribution(name string, filter TagFilter) (Distribution, error) {
	m := r.Get(name)
	if m == nil {
		return nil, fmt.Errorf("%s: %w", name, ErrNoSamples)
	}
	if m.Type != Trend {
		return nil, fmt.Errorf("%w: %s 是 %s", ErrUnsupportedAggregation, name, m.Type)
	}

	matching := m.Matching(filter)
	// 按标签顺序合并，结果与 map 迭代顺序无关
	keys := make([]Tags, 0, len(matching))
	for t := range matching {
		keys = append(keys, t)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Variant != keys[j].Variant {
			return keys[i].Variant < keys[j].Variant
		}
		return keys[i].Operation < keys[j].Operation
	})

	var merged Distribution
	for _, t := range keys {
		d, ok := matching[t].(Distribution)
		if !ok || d.Len() == 0 {
			continue
		}
		if merged == nil {
			merged = d.Merge(nil)
			continue
		}
		merged = merged.Merge(d)
	}

	if merged == nil || merged.Len() == 0 {
		return nil, fmt.Errorf("%s: %w", name, ErrNoSamples)
	}
	return merged, nil
}

// Percentile 在全部匹配序列的并集上计算百分位数
func (r *Registry) Percentile(name string, filter TagFilter, p float64) (float64, error) {
	if !validPercentile(p) {
		return 0, ErrInvalidPercentile
	}
	d, err := r.distribution(name, filter)
	if err != nil {
		return 0, err
	}
	return d.Percentile(p), nil
}

// Aggregate 按聚合方式归约匹配的序列
func (r *Registry) Aggregate(name string, filter TagFilter, agg Aggregation) (float64, error) {
	switch agg.Kind {
	case AggCount:
		return float64(r.Count(name, filter)), nil

	case AggRate:
		m := r.Get(name)
		if m == nil {
			return 0, fmt.Errorf("%s: %w", name, ErrNoSamples)
		}
		if m.Type != Rate {
			return 0, fmt.Errorf("%w: %s 是 %s", ErrUnsupportedAggregation, name, m.Type)
		}
		var trues, total int64
		for _, s := range m.Matching(filter) {
			if rs, ok := s.(*RateSink); ok {
				t, n := rs.Counts()
				trues += t
				total += n
			}
		}
		if total == 0 {
			return 0, fmt.Errorf("%s: %w", name, ErrNoSamples)
		}
		return float64(trues) / float64(total), nil

	case AggPercentile:
		return r.Percentile(name, filter, agg.P)

	case AggAvg, AggMin, AggMax, AggMed:
		d, err := r.distribution(name, filter)
		if err != nil {
			return 0, err
		}
		if agg.Kind == AggMed {
			return d.Percentile(50), nil
		}
		return d.Stats()[string(agg.Kind)], nil
	}

	return 0, fmt.Errorf("未知的聚合方式: %q", agg.Kind)
}

// Snapshot 返回每个序列的统计快照，按指标名和标签排序
func (r *Registry) Snapshot() []SeriesStats {
	var result []SeriesStats
	for _, name := range r.Names() {
		m := r.Get(name)
		matching := m.Matching(TagFilter{})
		for _, tags := range m.Series() {
			s, ok := matching[tags]
			if !ok {
				continue
			}
			result = append(result, SeriesStats{
				Metric: name,
				Type:   m.Type,
				Tags:   tags,
				Values: s.Stats(),
			})
		}
	}
	return result
}
