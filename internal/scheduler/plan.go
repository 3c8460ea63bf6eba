package scheduler

import (
	"fmt"
	"time"

	"yqhp/variant-bench/pkg/types"
)

// WorkloadSet 用于校验工作负载名称
type WorkloadSet interface {
	Has(name string) bool
}

// Plan 有序的场景列表，阶段严格顺序执行。
type Plan struct {
	Scenarios []types.Scenario `json:"scenarios"`
}

// BuildPlan 为每个变体生成一个场景，偏移依次累加前一场景的时长。
func BuildPlan(variants []types.Variant, workload string, vus int, duration time.Duration, maxRPS float64) *Plan {
	plan := &Plan{Scenarios: make([]types.Scenario, 0, len(variants))}
	var offset time.Duration
	for _, v := range variants {
		plan.Scenarios = append(plan.Scenarios, types.Scenario{
			Name:        v.Name,
			Variant:     v.Name,
			Workload:    workload,
			VUs:         vus,
			Duration:    duration,
			StartOffset: offset,
			MaxRPS:      maxRPS,
		})
		offset += duration
	}
	return plan
}

// PlanFromScenarios 使用显式场景。全部偏移为 0 时按顺序自动计算偏移。
func PlanFromScenarios(scenarios []types.Scenario) *Plan {
	plan := &Plan{Scenarios: append([]types.Scenario(nil), scenarios...)}

	explicit := false
	for _, sc := range plan.Scenarios {
		if sc.StartOffset != 0 {
			explicit = true
			break
		}
	}
	if !explicit {
		var offset time.Duration
		for i := range plan.Scenarios {
			plan.Scenarios[i].StartOffset = offset
			offset += plan.Scenarios[i].Duration
		}
	}
	for i := range plan.Scenarios {
		if plan.Scenarios[i].Name == "" {
			plan.Scenarios[i].Name = plan.Scenarios[i].Variant
		}
	}
	return plan
}

// Validate 校验场景参数、引用以及阶段不重叠：offset[i+1] >= offset[i]+duration[i]。
// variants 或 workloads 为空时跳过对应的引用检查。
func (p *Plan) Validate(variants []types.Variant, workloads WorkloadSet) error {
	if p == nil || len(p.Scenarios) == 0 {
		return ErrEmptyPlan
	}

	known := make(map[string]bool, len(variants))
	for _, v := range variants {
		known[v.Name] = true
	}

	names := make(map[string]bool, len(p.Scenarios))
	for i, sc := range p.Scenarios {
		if sc.Name == "" {
			return fmt.Errorf("场景 %d: %w: 缺少名称", i, ErrInvalidScenario)
		}
		if names[sc.Name] {
			return fmt.Errorf("场景 %s: %w: 名称重复", sc.Name, ErrInvalidScenario)
		}
		names[sc.Name] = true

		if sc.VUs < 1 {
			return fmt.Errorf("场景 %s: %w: vus 必须 >= 1", sc.Name, ErrInvalidScenario)
		}
		if sc.Duration <= 0 {
			return fmt.Errorf("场景 %s: %w: duration 必须 > 0", sc.Name, ErrInvalidScenario)
		}
		if sc.StartOffset < 0 {
			return fmt.Errorf("场景 %s: %w: start_offset 不能为负", sc.Name, ErrInvalidScenario)
		}
		if sc.MaxRPS < 0 {
			return fmt.Errorf("场景 %s: %w: max_rps 不能为负", sc.Name, ErrInvalidScenario)
		}
		if len(known) > 0 && !known[sc.Variant] {
			return fmt.Errorf("场景 %s: %w: %s", sc.Name, ErrUnknownVariant, sc.Variant)
		}
		if workloads != nil && !workloads.Has(sc.Workload) {
			return fmt.Errorf("场景 %s: %w: %s", sc.Name, ErrUnknownWorkload, sc.Workload)
		}

		if i > 0 {
			prev := p.Scenarios[i-1]
			if sc.StartOffset < prev.End() {
				return fmt.Errorf("%w: %s 开始于 %s，但 %s 结束于 %s",
					ErrPhaseOverlap, sc.Name, sc.StartOffset, prev.Name, prev.End())
			}
		}
	}
	return nil
}

// TotalDuration 返回计划的最短总时长
func (p *Plan) TotalDuration() time.Duration {
	if len(p.Scenarios) == 0 {
		return 0
	}
	return p.Scenarios[len(p.Scenarios)-1].End()
}

// Variants 按场景顺序返回变体名（去重）
func (p *Plan) Variants() []string {
	seen := make(map[string]bool)
	var out []string
	for _, sc := range p.Scenarios {
		if !seen[sc.Variant] {
			seen[sc.Variant] = true
			out = append(out, sc.Variant)
		}
	}
	return out
}
