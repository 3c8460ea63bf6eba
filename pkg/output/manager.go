package output

import (
	"fmt"
	"sync"
	"time"

	"yqhp/variant-bench/pkg/metrics"
)

const (
	// dispatchInterval 批量分发给输出的间隔
	dispatchInterval = 50 * time.Millisecond
	// queueSize 样本队列容量，队列满时记录样本的 VU 会等待
	queueSize = 1000
)

// Manager 订阅注册表，把样本按批分发给全部输出
type Manager struct {
	outputs []Output
	log     Logger

	queue  chan metrics.SampleContainer
	closed bool
	mu     sync.RWMutex
	wg     sync.WaitGroup
}

// NewManager 创建管理器，log 可以为空
func NewManager(outputs []Output, log Logger) *Manager {
	return &Manager{
		outputs: outputs,
		log:     log,
		queue:   make(chan metrics.SampleContainer, queueSize),
	}
}

// Start 依次启动输出并开始分发。任一输出启动失败时停止已启动的输出。
func (m *Manager) Start() error {
	for i, out := range m.outputs {
		if err := out.Start(); err != nil {
			for _, started := range m.outputs[:i] {
				_ = started.Stop()
			}
			return fmt.Errorf("启动输出 %s 失败: %w", out.Description(), err)
		}
		m.debug("输出 %s 已启动", out.Description())
	}

	m.wg.Add(1)
	go m.dispatch()
	return nil
}

// Attach 订阅注册表的全部样本
func (m *Manager) Attach(registry *metrics.Registry) {
	registry.Subscribe(m.Collect)
}

// Collect 接收一个样本，Finish 之后的样本被丢弃
func (m *Manager) Collect(s metrics.Sample) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return
	}
	m.queue <- metrics.Samples{s}
}

func (m *Manager) dispatch() {
	defer m.wg.Done()
	ticker := time.NewTicker(dispatchInterval)
	defer ticker.Stop()

	var batch []metrics.SampleContainer
	send := func() {
		if len(batch) == 0 {
			return
		}
		for _, out := range m.outputs {
			out.AddMetricSamples(batch)
		}
		batch = nil
	}

	for {
		select {
		case c, ok := <-m.queue:
			if !ok {
				send()
				return
			}
			batch = append(batch, c)
		case <-ticker.C:
			send()
		}
	}
}

// Finish 关闭队列并等待最后一批分发，然后设置运行状态并停止全部输出。
// State 为空时按 Err 推断为 completed 或 failed。
func (m *Manager) Finish(status RunStatus) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	close(m.queue)
	m.mu.Unlock()
	m.wg.Wait()

	if status.State == "" {
		status.State = RunCompleted
		if status.Err != nil {
			status.State = RunFailed
		}
	}
	for _, out := range m.outputs {
		out.SetRunStatus(status)
		if err := out.Stop(); err != nil && m.log != nil {
			m.log.Error("停止输出 %s 失败: %v", out.Description(), err)
		}
	}
}

// Outputs 返回受管理的输出
func (m *Manager) Outputs() []Output {
	return append([]Output(nil), m.outputs...)
}

func (m *Manager) debug(format string, args ...interface{}) {
	if m.log != nil {
		m.log.Debug(format, args...)
	}
}
