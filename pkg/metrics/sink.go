package metrics

import (
	"math"
	"sort"
	"sync"
	"sync/atomic"
)

// Sink 一个序列的聚合状态
type Sink interface {
	Add(sample Sample)
	// Stats 以聚合名为键（count、rate、avg、p(95) 等）
	Stats() map[string]float64
	Empty() bool
}

// Distribution 能计算分位数的 Sink，Trend 指标的两种存储都实现它
type Distribution interface {
	Sink
	Len() int64
	// Percentile p 取值 0-100，无样本时为 0
	Percentile(p float64) float64
	// Merge 返回合并后的新分布，两个输入都不变
	Merge(other Distribution) Distribution
}

// CounterSink 累加样本值
type CounterSink struct {
	n atomic.Int64
}

func (c *CounterSink) Add(sample Sample) { c.n.Add(int64(sample.Value)) }

// Count 当前累计值
func (c *CounterSink) Count() int64 { return c.n.Load() }

func (c *CounterSink) Stats() map[string]float64 {
	return map[string]float64{"count": float64(c.n.Load())}
}

func (c *CounterSink) Empty() bool { return c.n.Load() == 0 }

// RateSink 非零样本占全部样本的比例
type RateSink struct {
	trues atomic.Int64
	total atomic.Int64
}

func (r *RateSink) Add(sample Sample) {
	if sample.Value != 0 {
		r.trues.Add(1)
	}
	r.total.Add(1)
}

// Counts 返回非零样本数与总数
func (r *RateSink) Counts() (trues, total int64) {
	// 先读 total，并发 Add 时 trues 不会超过 total
	total = r.total.Load()
	trues = min(r.trues.Load(), total)
	return trues, total
}

func (r *RateSink) Stats() map[string]float64 {
	trues, total := r.Counts()
	rate := 0.0
	if total > 0 {
		rate = float64(trues) / float64(total)
	}
	return map[string]float64{
		"passes": float64(trues),
		"fails":  float64(total - trues),
		"rate":   rate,
	}
}

func (r *RateSink) Empty() bool { return r.total.Load() == 0 }

// TrendSink 保留全部样本，百分位数精确
type TrendSink struct {
	mu       sync.Mutex
	values   []float64
	sum      float64
	lo, hi   float64
	isSorted bool
}

func (t *TrendSink) Add(sample Sample) {
	t.mu.Lock()
	t.push(sample.Value)
	t.mu.Unlock()
}

func (t *TrendSink) push(v float64) {
	if len(t.values) == 0 || v < t.lo {
		t.lo = v
	}
	if len(t.values) == 0 || v > t.hi {
		t.hi = v
	}
	t.values = append(t.values, v)
	t.sum += v
	t.isSorted = false
}

func (t *TrendSink) Stats() map[string]float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return trendStats(int64(len(t.values)), t.sum, t.lo, t.hi, t.quantile)
}

func (t *TrendSink) Empty() bool { return t.Len() == 0 }

func (t *TrendSink) Len() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return int64(len(t.values))
}

func (t *TrendSink) Percentile(p float64) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.quantile(p)
}

// quantile 调用方持有锁。排序结果缓存到下一次 push。
func (t *TrendSink) quantile(p float64) float64 {
	if len(t.values) == 0 {
		return 0
	}
	if !t.isSorted {
		sort.Float64s(t.values)
		t.isSorted = true
	}
	return interpolate(t.values, p)
}

func (t *TrendSink) Merge(other Distribution) Distribution {
	merged := &TrendSink{}
	t.mu.Lock()
	merged.values = make([]float64, 0, len(t.values))
	for _, v := range t.values {
		merged.push(v)
	}
	t.mu.Unlock()

	if o, ok := other.(*TrendSink); ok && o != t {
		o.mu.Lock()
		for _, v := range o.values {
			merged.push(v)
		}
		o.mu.Unlock()
	}
	return merged
}

// interpolate 已排序样本上 rank = p/100*(n-1) 的线性插值
func interpolate(sorted []float64, p float64) float64 {
	last := len(sorted) - 1
	switch {
	case p <= 0:
		return sorted[0]
	case p >= 100:
		return sorted[last]
	}
	rank := p / 100 * float64(last)
	i := int(math.Floor(rank))
	frac := rank - float64(i)
	if frac == 0 || i == last {
		return sorted[i]
	}
	return sorted[i]*(1-frac) + sorted[i+1]*frac
}

// trendStats Trend 的标准聚合集合，两种分布存储共用
func trendStats(count int64, sum, lo, hi float64, q func(float64) float64) map[string]float64 {
	stats := map[string]float64{"count": float64(count), "min": lo, "max": hi}
	if count == 0 {
		return stats
	}
	stats["avg"] = sum / float64(count)
	stats["med"] = q(50)
	stats["p(90)"] = q(90)
	stats["p(95)"] = q(95)
	stats["p(99)"] = q(99)
	return stats
}
