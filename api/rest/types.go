package rest

import (
	"yqhp/variant-bench/pkg/metrics"
	"yqhp/variant-bench/pkg/types"
)

// ErrorResponse 错误响应
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// HealthResponse 健康检查响应
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

// StatusResponse /status 响应
type StatusResponse struct {
	// State 整体状态：pending、running、completed、aborted
	State     string                 `json:"state"`
	RunStart  string                 `json:"run_start,omitempty"`
	ElapsedMs int64                  `json:"elapsed_ms"`
	Current   *types.ScenarioStatus  `json:"current,omitempty"`
	Scenarios []types.ScenarioStatus `json:"scenarios"`
	Series    []metrics.SeriesStats  `json:"series,omitempty"`
}

// TimelineResponse 时间线响应
type TimelineResponse struct {
	Points []*types.TimelinePoint `json:"points"`
}
