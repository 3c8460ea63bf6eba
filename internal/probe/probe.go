// Package probe 发出带标签的单个 HTTP 请求，测量延迟、对结果分类并写入指标注册表。
package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/ohler55/ojg/oj"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"yqhp/variant-bench/pkg/logger"
	"yqhp/variant-bench/pkg/metrics"
	"yqhp/variant-bench/pkg/types"
)

// Request 描述一次请求
type Request struct {
	Method    string
	Path      string
	Body      []byte
	Operation string
}

// Result 一次请求的结果。HTTP 4xx/5xx 是正常结果，不是错误。
type Result struct {
	StatusCode int
	Body       []byte
	// Parsed 是宽松解析后的 JSON 值，解析失败时为 nil 且 ParseErr 非空
	Parsed   any
	ParseErr error
	Latency  time.Duration
	Outcome  types.Outcome
	// Err 仅在传输失败或请求未发出时非空
	Err error
	// NotSent 表示上下文已取消，请求没有发出，也没有计入任何指标
	NotSent bool
}

// Responded 是否收到了响应
func (r *Result) Responded() bool {
	return r.Err == nil && !r.NotSent
}

// Probe 使用共享的 fasthttp 客户端执行请求，多 VU 共享连接池。
type Probe struct {
	client   *fasthttp.Client
	cfg      *Config
	registry *metrics.Registry
}

// New 创建探针
func New(cfg *Config, registry *metrics.Registry) (*Probe, error) {
	if registry == nil {
		return nil, ErrNilRegistry
	}
	cfg = cfg.withDefaults()

	tlsConfig, err := cfg.SSL.BuildTLSConfig()
	if err != nil {
		return nil, fmt.Errorf("构建 TLS 配置失败: %w", err)
	}

	connectTimeout := cfg.Timeout.Connect
	client := &fasthttp.Client{
		Name:                "variant-bench",
		MaxConnsPerHost:     cfg.MaxConnsPerHost,
		MaxIdleConnDuration: 90 * time.Second,
		MaxConnWaitTimeout:  cfg.Timeout.Request,
		ReadTimeout:         cfg.Timeout.Read,
		WriteTimeout:        cfg.Timeout.Write,
		TLSConfig:           tlsConfig,
		Dial: func(addr string) (net.Conn, error) {
			return fasthttp.DialTimeout(addr, connectTimeout)
		},
		// 保留调用方已转义的路径
		DisablePathNormalizing: true,
	}

	if err := RegisterMetrics(registry); err != nil {
		return nil, err
	}

	return &Probe{
		client:   client,
		cfg:      cfg,
		registry: registry,
	}, nil
}

// RegisterMetrics 预先注册标准指标，使报告中的计数器即使为 0 也存在
func RegisterMetrics(registry *metrics.Registry) error {
	defs := []struct {
		name     string
		typ      metrics.MetricType
		contains metrics.ValueType
	}{
		{types.MetricHTTPReqDuration, metrics.Trend, metrics.Time},
		{types.MetricHTTPReqs, metrics.Counter, metrics.Default},
		{types.MetricErrors, metrics.Counter, metrics.Default},
		{types.MetricTransportFailures, metrics.Counter, metrics.Default},
		{types.MetricParseFailures, metrics.Counter, metrics.Default},
		{types.MetricTotalReads, metrics.Counter, metrics.Default},
		{types.MetricIterations, metrics.Counter, metrics.Default},
		{types.MetricChecks, metrics.Rate, metrics.Default},
	}
	for _, d := range defs {
		if _, err := registry.NewMetric(d.name, d.typ, d.contains); err != nil {
			return fmt.Errorf("注册指标 %s 失败: %w", d.name, err)
		}
	}
	return nil
}

// Registry 返回探针写入的注册表
func (p *Probe) Registry() *metrics.Registry {
	return p.registry
}

// Execute 对变体发出一次请求。
// 上下文只在发出前检查，已发出的请求由超时约束而不是被取消。
func (p *Probe) Execute(ctx context.Context, variant types.Variant, req Request) *Result {
	if err := ctx.Err(); err != nil {
		return &Result{Err: err, NotSent: true}
	}

	tags := metrics.Tags{Variant: variant.Name, Operation: req.Operation}

	httpReq := fasthttp.AcquireRequest()
	httpResp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(httpReq)
	defer fasthttp.ReleaseResponse(httpResp)

	p.buildRequest(httpReq, variant, req)

	deadline := time.Now().Add(p.cfg.Timeout.Request)
	start := time.Now()
	err := p.client.DoDeadline(httpReq, httpResp, deadline)
	latency := time.Since(start)

	p.inc(types.MetricHTTPReqs, tags)

	if err != nil {
		if errors.Is(err, fasthttp.ErrTimeout) || time.Now().After(deadline) {
			err = fmt.Errorf("请求超时（超时时间: %s）: %w", p.cfg.Timeout.Request, err)
		} else {
			err = fmt.Errorf("HTTP 请求失败: %w", err)
		}
		p.inc(types.MetricErrors, tags)
		p.inc(types.MetricTransportFailures, tags)
		logger.L().Debug("transport failure",
			zap.String("variant", variant.Name),
			zap.String("operation", req.Operation),
			zap.Error(err))
		return &Result{
			Latency: latency,
			Outcome: types.OutcomeTransportFailure,
			Err:     err,
		}
	}

	if recErr := p.registry.RecordSample(types.MetricHTTPReqDuration, tags, toMillis(latency)); recErr != nil {
		logger.Warn("记录延迟失败: %v", recErr)
	}

	// resp.Body() 返回内部缓冲区的引用，需要复制
	body := make([]byte, len(httpResp.Body()))
	copy(body, httpResp.Body())

	result := &Result{
		StatusCode: httpResp.StatusCode(),
		Body:       body,
		Latency:    latency,
		Outcome:    types.OutcomeSuccess,
	}
	result.Parsed, result.ParseErr = parseBody(body)
	return result
}

// buildRequest 构建 fasthttp 请求
func (p *Probe) buildRequest(httpReq *fasthttp.Request, variant types.Variant, req Request) {
	method := req.Method
	if method == "" {
		method = fasthttp.MethodGet
	}
	httpReq.Header.SetMethod(method)
	httpReq.SetRequestURI(variant.URL(req.Path))
	httpReq.Header.SetContentType("application/json")
	httpReq.Header.Set("Accept", "application/json")
	for k, v := range p.cfg.Headers {
		httpReq.Header.Set(k, v)
	}
	if len(req.Body) > 0 {
		httpReq.SetBody(req.Body)
	}
}

func (p *Probe) inc(name string, tags metrics.Tags) {
	if err := p.registry.Increment(name, tags, 1); err != nil {
		logger.Warn("记录指标 %s 失败: %v", name, err)
	}
}

// parseBody 宽松解析：解析错误保存在结果上，从不抛出
func parseBody(body []byte) (any, error) {
	if len(body) == 0 {
		return nil, ErrEmptyBody
	}
	v, err := oj.Parse(body)
	if err != nil {
		return nil, fmt.Errorf("解析响应 JSON 失败: %w", err)
	}
	return v, nil
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
