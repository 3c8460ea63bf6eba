package types

import "time"

// ExecutionMode defines the execution mode.
type ExecutionMode string

const (
	// ModeConstantVUs maintains a fixed number of VUs for a fixed duration.
	ModeConstantVUs ExecutionMode = "constant-vus"
)

// ScenarioState 场景状态机：pending -> running -> completed。
type ScenarioState string

const (
	// ScenarioPending 尚未到达开始偏移。
	ScenarioPending ScenarioState = "pending"
	// ScenarioRunning VU 正在执行。
	ScenarioRunning ScenarioState = "running"
	// ScenarioCompleted 所有 VU 已结束当前迭代。
	ScenarioCompleted ScenarioState = "completed"
	// ScenarioAborted 运行上下文被取消。
	ScenarioAborted ScenarioState = "aborted"
)

// Scenario 定义一个阶段：某个变体在固定时长内以固定 VU 数执行某个工作负载。
type Scenario struct {
	Name        string        `yaml:"name" json:"name"`
	Variant     string        `yaml:"variant" json:"variant"`
	Workload    string        `yaml:"workload" json:"workload"`
	VUs         int           `yaml:"vus" json:"vus"`
	Duration    time.Duration `yaml:"duration" json:"duration"`
	StartOffset time.Duration `yaml:"start_offset" json:"start_offset"`
	// MaxRPS 限制整个场景的迭代启动速率，0 表示不限制。
	MaxRPS float64 `yaml:"max_rps,omitempty" json:"max_rps,omitempty"`
}

// End 返回场景计划结束时间相对运行开始的偏移。
func (s Scenario) End() time.Duration {
	return s.StartOffset + s.Duration
}

// ScenarioStatus 是场景运行状态的快照。
type ScenarioStatus struct {
	Name        string        `json:"name"`
	Variant     string        `json:"variant"`
	Workload    string        `json:"workload"`
	State       ScenarioState `json:"state"`
	VUs         int           `json:"vus"`
	ActiveVUs   int           `json:"active_vus"`
	Iterations  int64         `json:"iterations"`
	StartOffset time.Duration `json:"start_offset"`
	Duration    time.Duration `json:"duration"`
	StartedAt   time.Time     `json:"started_at,omitempty"`
	CompletedAt time.Time     `json:"completed_at,omitempty"`
}
