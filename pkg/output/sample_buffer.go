package output

import (
	"sync"
	"time"

	"yqhp/variant-bench/pkg/metrics"
)

// SampleBuffer 并发安全的样本缓冲，输出插件嵌入它来实现 AddMetricSamples
type SampleBuffer struct {
	mu      sync.Mutex
	pending []metrics.SampleContainer
}

// AddMetricSamples 追加到缓冲
func (b *SampleBuffer) AddMetricSamples(samples []metrics.SampleContainer) {
	b.mu.Lock()
	b.pending = append(b.pending, samples...)
	b.mu.Unlock()
}

// Drain 取出并清空缓冲
func (b *SampleBuffer) Drain() []metrics.SampleContainer {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.pending
	b.pending = nil
	return out
}

// Flusher 按固定间隔调用 flush，Stop 时再调用最后一次
type Flusher struct {
	quit chan struct{}
	done chan struct{}
	once sync.Once
}

// NewFlusher 立即开始计时
func NewFlusher(interval time.Duration, flush func()) *Flusher {
	f := &Flusher{quit: make(chan struct{}), done: make(chan struct{})}
	go f.loop(interval, flush)
	return f
}

func (f *Flusher) loop(interval time.Duration, flush func()) {
	defer close(f.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			flush()
		case <-f.quit:
			flush()
			return
		}
	}
}

// Stop 等待最后一次 flush 完成，可重复调用
func (f *Flusher) Stop() {
	f.once.Do(func() { close(f.quit) })
	<-f.done
}
