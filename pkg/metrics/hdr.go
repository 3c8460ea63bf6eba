package metrics

import (
	"math"
	"sync"

	"github.com/HdrHistogram/hdrhistogram-go"
)

const (
	// hdrScale 毫秒值以微秒整数记录
	hdrScale = 1000.0
	// hdrHighest 可记录的最大值：1 小时（微秒）
	hdrHighest = int64(3600 * 1000 * 1000)

	// DefaultSignificantFigures 默认有效数字，相对误差 0.1%
	DefaultSignificantFigures = 3
)

// HDRSink 基于 HdrHistogram 的流式分布聚合器。
// 内存占用固定，百分位数的相对误差由有效数字位数决定。
type HDRSink struct {
	hist    *hdrhistogram.Histogram
	sigfigs int
	sum     float64
	min     float64
	max     float64
	mu      sync.Mutex
}

// NewHDRSink 创建 HDR 聚合器，sigfigs 取值 1-5
func NewHDRSink(sigfigs int) *HDRSink {
	if sigfigs < 1 || sigfigs > 5 {
		sigfigs = DefaultSignificantFigures
	}
	return &HDRSink{
		hist:    hdrhistogram.New(1, hdrHighest, sigfigs),
		sigfigs: sigfigs,
	}
}

// Add 添加样本
func (h *HDRSink) Add(sample Sample) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.record(sample.Value)
}

func (h *HDRSink) record(v float64) {
	scaled := int64(math.Round(v * hdrScale))
	if scaled < 0 {
		scaled = 0
	}
	if scaled > hdrHighest {
		scaled = hdrHighest
	}
	_ = h.hist.RecordValue(scaled)

	if h.hist.TotalCount() == 1 || v < h.min {
		h.min = v
	}
	if h.hist.TotalCount() == 1 || v > h.max {
		h.max = v
	}
	h.sum += v
}

// Stats 返回统计结果
func (h *HDRSink) Stats() map[string]float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return trendStats(h.hist.TotalCount(), h.sum, h.min, h.max, h.percentile)
}

func (h *HDRSink) percentile(p float64) float64 {
	if h.hist.TotalCount() == 0 {
		return 0
	}
	switch {
	case p <= 0:
		return h.min
	case p >= 100:
		return h.max
	}
	// 目标名次不足 1 时 HdrHistogram 会返回 0
	if int64(p/100*float64(h.hist.TotalCount())+0.5) < 1 {
		return h.min
	}
	return float64(h.hist.ValueAtQuantile(p)) / hdrScale
}

// Empty 是否没有样本
func (h *HDRSink) Empty() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hist.TotalCount() == 0
}

// Len 返回样本数量
func (h *HDRSink) Len() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hist.TotalCount()
}

// Percentile 计算指定百分位数
func (h *HDRSink) Percentile(p float64) float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.percentile(p)
}

// Merge 返回合并后的新 HDRSink
func (h *HDRSink) Merge(other Distribution) Distribution {
	h.mu.Lock()
	merged := &HDRSink{
		hist:    hdrhistogram.Import(h.hist.Export()),
		sigfigs: h.sigfigs,
		sum:     h.sum,
		min:     h.min,
		max:     h.max,
	}
	h.mu.Unlock()

	o, ok := other.(*HDRSink)
	if !ok || o == h {
		return merged
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.hist.TotalCount() == 0 {
		return merged
	}
	if merged.hist.TotalCount() == 0 {
		merged.min, merged.max = o.min, o.max
	} else {
		merged.min = math.Min(merged.min, o.min)
		merged.max = math.Max(merged.max, o.max)
	}
	merged.hist.Merge(o.hist)
	merged.sum += o.sum
	return merged
}
