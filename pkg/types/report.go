package types

import "time"

// RunReport is the final report generated after all phases complete.
type RunReport struct {
	RunID     string        `json:"run_id"`
	Name      string        `json:"name"`
	Workload  string        `json:"workload"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Verdict   Verdict       `json:"verdict"`
	Aborted   bool          `json:"aborted,omitempty"`

	// Storage is the distribution storage used for latency series (exact | hdr).
	Storage string `json:"storage"`

	Variants   []Variant          `json:"variants"`
	Phases     []*PhaseReport     `json:"phases"`
	Series     []*SeriesReport    `json:"series"`
	Thresholds []*ThresholdReport `json:"thresholds"`
	Comparison []*ComparisonRow   `json:"comparison,omitempty"`
	Timeline   []*TimelinePoint   `json:"timeline,omitempty"`
}

// PhaseReport summarises one scenario.
type PhaseReport struct {
	Name        string        `json:"name"`
	Variant     string        `json:"variant"`
	Workload    string        `json:"workload"`
	State       ScenarioState `json:"state"`
	VUs         int           `json:"vus"`
	Iterations  int64         `json:"iterations"`
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at"`
	Elapsed     time.Duration `json:"elapsed"`
	Requests    int64         `json:"requests"`
	Errors      int64         `json:"errors"`
	TotalReads  int64         `json:"total_reads"`
	RPS         float64       `json:"rps"`
}

// SeriesReport holds the statistics of one (variant, operation) pair.
type SeriesReport struct {
	Variant   string `json:"variant"`
	Operation string `json:"operation"`

	Requests          int64   `json:"requests"`
	Errors            int64   `json:"errors"`
	TransportFailures int64   `json:"transport_failures"`
	ParseFailures     int64   `json:"parse_failures"`
	ChecksPassRate    float64 `json:"checks_pass_rate"`

	Samples int64   `json:"samples"`
	AvgMs   float64 `json:"avg_ms"`
	MinMs   float64 `json:"min_ms"`
	MedMs   float64 `json:"med_ms"`
	P90Ms   float64 `json:"p90_ms"`
	P95Ms   float64 `json:"p95_ms"`
	P99Ms   float64 `json:"p99_ms"`
	MaxMs   float64 `json:"max_ms"`
}

// ThresholdReport is the verdict of a single rule.
type ThresholdReport struct {
	Rule     string  `json:"rule"`
	Metric   string  `json:"metric"`
	Variant  string  `json:"variant,omitempty"`
	Op       string  `json:"operation,omitempty"`
	Observed float64 `json:"observed"`
	Verdict  Verdict `json:"verdict"`
	Reason   string  `json:"reason,omitempty"`
}

// ComparisonRow compares one operation across variants.
// Values are keyed by variant name, Delta is relative to Baseline.
type ComparisonRow struct {
	Operation string             `json:"operation"`
	Baseline  string             `json:"baseline"`
	P95Ms     map[string]float64 `json:"p95_ms"`
	Errors    map[string]int64   `json:"errors"`
	DeltaPct  map[string]float64 `json:"delta_pct"`
}

// TimelinePoint is a periodic snapshot taken while phases run.
type TimelinePoint struct {
	Timestamp  time.Time `json:"timestamp"`
	ElapsedMs  int64     `json:"elapsed_ms"`
	Scenario   string    `json:"scenario"`
	Variant    string    `json:"variant"`
	ActiveVUs  int       `json:"active_vus"`
	Iterations int64     `json:"iterations"`
	RPS        float64   `json:"rps"`
	Errors     int64     `json:"errors"`
	P95Ms      float64   `json:"p95_ms"`
}
