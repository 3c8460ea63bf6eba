package types

// Outcome 是单个请求的分类结果。
type Outcome string

const (
	// OutcomeSuccess 收到响应且通过全部检查。
	OutcomeSuccess Outcome = "success"
	// OutcomeApplicationFailure 收到响应但未通过检查（状态码、错误字段、缺失字段）。
	OutcomeApplicationFailure Outcome = "application_failure"
	// OutcomeTransportFailure 未收到响应（连接失败、超时、DNS）。
	OutcomeTransportFailure Outcome = "transport_failure"
	// OutcomeParseFailure 状态码正常但响应体不是合法 JSON。
	OutcomeParseFailure Outcome = "parse_failure"
)

// Verdict 阈值规则的判定结果。
type Verdict string

const (
	VerdictPass Verdict = "PASS"
	VerdictFail Verdict = "FAIL"
)

// Standard metric names. Every observation is tagged by (variant, operation).
const (
	MetricHTTPReqDuration   = "http_req_duration"
	MetricHTTPReqs          = "http_reqs"
	MetricErrors            = "errors"
	MetricTransportFailures = "transport_failures"
	MetricParseFailures     = "parse_failures"
	MetricTotalReads        = "total_reads"
	MetricIterations        = "iterations"
	MetricChecks            = "checks"
)
