package report

import (
	"context"
	"sync"
	"time"

	"yqhp/variant-bench/pkg/metrics"
	"yqhp/variant-bench/pkg/types"
)

// StatusSource 提供正在运行的阶段状态，*scheduler.Scheduler 实现该接口
type StatusSource interface {
	Current() (types.ScenarioStatus, bool)
}

// Collector 在阶段运行期间按固定间隔采集时间线快照
type Collector struct {
	registry *metrics.Registry
	source   StatusSource
	interval time.Duration

	mu       sync.Mutex
	points   []*types.TimelinePoint
	start    time.Time
	lastReqs map[string]int64
	lastTick map[string]time.Time

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewCollector 创建时间线采集器，interval 小于等于 0 时为 1s
func NewCollector(registry *metrics.Registry, source StatusSource, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = time.Second
	}
	return &Collector{
		registry: registry,
		source:   source,
		interval: interval,
		lastReqs: make(map[string]int64),
		lastTick: make(map[string]time.Time),
	}
}

// Start 启动采集协程，ctx 取消或调用 Stop 时结束
func (c *Collector) Start(ctx context.Context) {
	c.mu.Lock()
	c.start = time.Now()
	c.stop = make(chan struct{})
	c.done = make(chan struct{})
	c.mu.Unlock()

	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case now := <-ticker.C:
				c.collect(now)
			case <-ctx.Done():
				return
			case <-c.stop:
				return
			}
		}
	}()
}

// Stop 停止采集并等待协程退出
func (c *Collector) Stop() {
	c.mu.Lock()
	stop, done := c.stop, c.done
	c.mu.Unlock()
	if stop == nil {
		return
	}
	c.stopOnce.Do(func() { close(stop) })
	<-done
}

// collect 记录一个快照，没有运行中的阶段时跳过
func (c *Collector) collect(now time.Time) {
	cur, ok := c.source.Current()
	if !ok {
		return
	}

	filter := metrics.TagFilter{Variant: cur.Variant}
	reqs := c.registry.Count(types.MetricHTTPReqs, filter)

	c.mu.Lock()
	defer c.mu.Unlock()

	since := cur.StartedAt
	if t, ok := c.lastTick[cur.Name]; ok {
		since = t
	}
	rps := 0.0
	if elapsed := now.Sub(since).Seconds(); elapsed > 0 && !since.IsZero() {
		rps = float64(reqs-c.lastReqs[cur.Name]) / elapsed
	}
	c.lastReqs[cur.Name] = reqs
	c.lastTick[cur.Name] = now

	point := &types.TimelinePoint{
		Timestamp:  now,
		ElapsedMs:  now.Sub(c.start).Milliseconds(),
		Scenario:   cur.Name,
		Variant:    cur.Variant,
		ActiveVUs:  cur.ActiveVUs,
		Iterations: cur.Iterations,
		RPS:        rps,
		Errors:     c.registry.Count(types.MetricErrors, filter),
	}
	if p95, err := c.registry.Percentile(types.MetricHTTPReqDuration, filter, 95); err == nil {
		point.P95Ms = p95
	}
	c.points = append(c.points, point)
}

// Points 返回全部快照的副本
func (c *Collector) Points() []*types.TimelinePoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*types.TimelinePoint, len(c.points))
	copy(out, c.points)
	return out
}

// Latest 返回最近一个快照
func (c *Collector) Latest() *types.TimelinePoint {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.points) == 0 {
		return nil
	}
	return c.points[len(c.points)-1]
}
