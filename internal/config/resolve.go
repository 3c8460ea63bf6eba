package config

import (
	"fmt"

	"yqhp/variant-bench/internal/scheduler"
	"yqhp/variant-bench/internal/threshold"
	"yqhp/variant-bench/internal/workload"
	"yqhp/variant-bench/pkg/metrics"
	"yqhp/variant-bench/pkg/types"
)

// Catalog 返回内置工作负载加上配置中的自定义工作负载
func (c *Config) Catalog() (*workload.Catalog, error) {
	catalog := workload.NewCatalog()
	if err := catalog.AddSpecs(c.Workloads); err != nil {
		return nil, fmt.Errorf("加载自定义工作负载失败: %w", err)
	}
	return catalog, nil
}

// Plan 构造执行计划。未配置 scenarios 时每个变体一个阶段，顺序与 variants 一致；
// 显式场景缺省的 workload、vus、duration 取自 run。
func (c *Config) Plan() *scheduler.Plan {
	if len(c.Scenarios) == 0 {
		return scheduler.BuildPlan(c.TypedVariants(), c.Run.Workload, c.Run.VUs, c.Run.Duration, c.Run.MaxRPS)
	}

	scenarios := make([]types.Scenario, 0, len(c.Scenarios))
	for _, sc := range c.Scenarios {
		if sc.Workload == "" {
			sc.Workload = c.Run.Workload
		}
		if sc.VUs == 0 {
			sc.VUs = c.Run.VUs
		}
		if sc.Duration == 0 {
			sc.Duration = c.Run.Duration
		}
		if sc.MaxRPS == 0 {
			sc.MaxRPS = c.Run.MaxRPS
		}
		scenarios = append(scenarios, sc)
	}
	return scheduler.PlanFromScenarios(scenarios)
}

// Rules 展开简写阈值并解析显式规则。
// 简写按计划中每个阶段的 (变体, 工作负载操作) 展开，重复规则只保留一条。
func (c *Config) Rules(catalog *workload.Catalog, plan *scheduler.Plan) ([]threshold.Rule, error) {
	sh := threshold.Shorthand{
		P95LatencyMsMax: c.Thresholds.P95LatencyMsMax,
		MaxErrorCount:   c.Thresholds.MaxErrorCount,
	}

	var rules []threshold.Rule
	seen := make(map[string]bool)
	add := func(r threshold.Rule) {
		key := r.String()
		if !seen[key] {
			seen[key] = true
			rules = append(rules, r)
		}
	}

	for _, sc := range plan.Scenarios {
		w, err := catalog.Get(sc.Workload)
		if err != nil {
			return nil, err
		}
		for _, r := range threshold.Expand(sh, []string{sc.Variant}, w.Operations()) {
			add(r)
		}
	}

	for i, rc := range c.Thresholds.Rules {
		r, err := threshold.ParseRule(rc.Metric, rc.Tags, rc.Condition)
		if err != nil {
			return nil, fmt.Errorf("thresholds.rules[%d]: %w", i, err)
		}
		add(r)
	}
	return rules, nil
}

// Storage 返回分布存储方式
func (c *Config) Storage() metrics.Storage {
	if c.Metrics.Distribution == string(metrics.StorageHDR) {
		return metrics.StorageHDR
	}
	return metrics.StorageExact
}
