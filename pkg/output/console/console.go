// Package console 按固定间隔在终端打印各变体的实时进度。
package console

import (
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"yqhp/variant-bench/pkg/metrics"
	"yqhp/variant-bench/pkg/output"
	"yqhp/variant-bench/pkg/types"
)

const defaultInterval = 5 * time.Second

func init() {
	output.Register("console", New)
}

// window 一个间隔内某个变体的统计
type window struct {
	requests int64
	errors   int64
	latency  *metrics.TrendSink
}

// Output 控制台输出
type Output struct {
	output.SampleBuffer

	params    output.Params
	interval  time.Duration
	out       io.Writer
	flusher   *output.Flusher
	mu        sync.Mutex
	runStatus output.RunStatus
	lastFlush time.Time
}

// New 创建控制台输出，参数为打印间隔（如 "2s"），默认 5s
func New(params output.Params) (output.Output, error) {
	interval := defaultInterval
	if params.Arg != "" {
		d, err := time.ParseDuration(params.Arg)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("无效的控制台输出间隔 %q", params.Arg)
		}
		interval = d
	}
	return &Output{
		params:   params,
		interval: interval,
		out:      os.Stderr,
	}, nil
}

// Description 返回描述
func (o *Output) Description() string {
	return fmt.Sprintf("console (every %s)", o.interval)
}

// Start 启动输出
func (o *Output) Start() error {
	o.lastFlush = time.Now()
	o.flusher = output.NewFlusher(o.interval, o.flush)
	return nil
}

// Stop 打印最后一个间隔与运行状态
func (o *Output) Stop() error {
	if o.flusher != nil {
		o.flusher.Stop()
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.runStatus.State != "" {
		fmt.Fprintf(o.out, "运行状态: %s (%.1fs, %d iterations)\n",
			o.runStatus.State, o.runStatus.Elapsed.Seconds(), o.runStatus.Iterations)
	}
	return nil
}

// flush 汇总缓冲样本并按变体打印一行
func (o *Output) flush() {
	containers := o.Drain()

	o.mu.Lock()
	defer o.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(o.lastFlush).Seconds()
	o.lastFlush = now
	if len(containers) == 0 {
		return
	}

	windows := make(map[string]*window)
	for _, c := range containers {
		for _, s := range c.GetSamples() {
			w, ok := windows[s.Tags.Variant]
			if !ok {
				w = &window{latency: &metrics.TrendSink{}}
				windows[s.Tags.Variant] = w
			}
			switch s.Metric.Name {
			case types.MetricHTTPReqs:
				w.requests += int64(s.Value)
			case types.MetricErrors:
				w.errors += int64(s.Value)
			case types.MetricHTTPReqDuration:
				w.latency.Add(s)
			}
		}
	}

	names := make([]string, 0, len(windows))
	for name := range windows {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		w := windows[name]
		rps := 0.0
		if elapsed > 0 {
			rps = float64(w.requests) / elapsed
		}
		p95 := "-"
		if !w.latency.Empty() {
			p95 = fmt.Sprintf("%.2fms", w.latency.Percentile(95))
		}
		fmt.Fprintf(o.out, "[%s] %-12s reqs=%d (%.1f/s) errors=%d p95=%s\n",
			now.Format("15:04:05"), name, w.requests, rps, w.errors, p95)
	}
}

// SetRunStatus 设置运行状态
func (o *Output) SetRunStatus(status output.RunStatus) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runStatus = status
}
