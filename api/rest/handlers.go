package rest

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"yqhp/variant-bench/pkg/metrics"
	"yqhp/variant-bench/pkg/types"
)

func (s *Server) healthCheck(c *fiber.Ctx) error {
	return c.JSON(HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

// getStatus 返回阶段状态与当前指标快照
func (s *Server) getStatus(c *fiber.Ctx) error {
	resp := StatusResponse{
		Scenarios: []types.ScenarioStatus{},
	}

	if s.status != nil {
		resp.Scenarios = s.status.States()
		resp.State = overallState(resp.Scenarios)
		if cur, ok := s.status.Current(); ok {
			resp.Current = &cur
		}
		if start := s.status.RunStart(); !start.IsZero() {
			resp.RunStart = start.Format(time.RFC3339)
			resp.ElapsedMs = time.Since(start).Milliseconds()
		}
	}
	if s.registry != nil && c.QueryBool("series", true) {
		resp.Series = s.registry.Snapshot()
	}
	return c.JSON(resp)
}

func (s *Server) getScenario(c *fiber.Ctx) error {
	name := c.Params("name")
	if s.status != nil {
		for _, st := range s.status.States() {
			if st.Name == name {
				return c.JSON(st)
			}
		}
	}
	return fiber.NewError(fiber.StatusNotFound, "scenario not found: "+name)
}

// getSeries 按 variant、operation 查询参数筛选序列快照
func (s *Server) getSeries(c *fiber.Ctx) error {
	if s.registry == nil {
		return c.JSON([]metrics.SeriesStats{})
	}
	filter := metrics.TagFilter{
		Variant:   c.Query("variant"),
		Operation: c.Query("operation"),
	}
	metric := c.Query("metric")

	out := make([]metrics.SeriesStats, 0)
	for _, st := range s.registry.Snapshot() {
		if metric != "" && st.Metric != metric {
			continue
		}
		if filter.Match(st.Tags) {
			out = append(out, st)
		}
	}
	return c.JSON(out)
}

func (s *Server) getTimeline(c *fiber.Ctx) error {
	if s.timeline == nil {
		return fiber.NewError(fiber.StatusNotFound, "timeline not enabled")
	}
	points := s.timeline.Points()
	if points == nil {
		points = []*types.TimelinePoint{}
	}
	return c.JSON(TimelineResponse{Points: points})
}

// overallState 汇总阶段状态
func overallState(states []types.ScenarioStatus) string {
	if len(states) == 0 {
		return string(types.ScenarioPending)
	}
	allPending, allCompleted := true, true
	for _, st := range states {
		switch st.State {
		case types.ScenarioAborted:
			return string(types.ScenarioAborted)
		case types.ScenarioRunning:
			return string(types.ScenarioRunning)
		}
		if st.State != types.ScenarioPending {
			allPending = false
		}
		if st.State != types.ScenarioCompleted {
			allCompleted = false
		}
	}
	switch {
	case allPending:
		return string(types.ScenarioPending)
	case allCompleted:
		return string(types.ScenarioCompleted)
	}
	// 阶段之间的等待
	return string(types.ScenarioRunning)
}
