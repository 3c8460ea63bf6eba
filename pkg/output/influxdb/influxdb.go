// Package influxdb 以 line protocol 批量写入 InfluxDB（1.x 或 2.x）。
package influxdb

import (
	"bytes"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/valyala/fasthttp"

	"yqhp/variant-bench/pkg/metrics"
	"yqhp/variant-bench/pkg/output"
)

func init() {
	output.Register("influxdb", New)
}

// Config 由 -o influxdb=URL 解析得到
type Config struct {
	// URL scheme://host[:port]
	URL string
	// Database 1.x 写入的库
	Database string
	// Token、Organization、Bucket 用于 2.x
	Token        string
	Organization string
	Bucket       string

	PushInterval time.Duration
	// BatchSize 缓冲行数达到该值时立即推送
	BatchSize int
	Timeout   time.Duration
}

// ParseConfig 支持两种形式：
//
//	http://host:8086?db=bench[&interval=2s]
//	http://host:8086?token=xxx&org=xxx&bucket=xxx
func ParseConfig(arg string) (Config, error) {
	cfg := Config{PushInterval: time.Second, BatchSize: 1000, Timeout: 10 * time.Second}
	if arg == "" {
		return cfg, fmt.Errorf("InfluxDB URL 不能为空")
	}

	u, err := url.Parse(arg)
	if err != nil {
		return cfg, fmt.Errorf("解析 InfluxDB URL 失败: %w", err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return cfg, fmt.Errorf("无效的 InfluxDB URL: %s", arg)
	}
	cfg.URL = u.Scheme + "://" + u.Host

	q := u.Query()
	cfg.Database, cfg.Token = q.Get("db"), q.Get("token")
	cfg.Organization, cfg.Bucket = q.Get("org"), q.Get("bucket")
	if raw := q.Get("interval"); raw != "" {
		if cfg.PushInterval, err = time.ParseDuration(raw); err != nil {
			return cfg, fmt.Errorf("无效的推送间隔: %w", err)
		}
	}
	if cfg.Database == "" && cfg.Token == "" {
		return cfg, fmt.Errorf("InfluxDB 需要 db（1.x）或 token/org/bucket（2.x）")
	}
	return cfg, nil
}

// writeURL 1.x 与 2.x 的写入端点，精度统一为毫秒
func (c Config) writeURL() string {
	if c.Token != "" {
		return c.URL + "/api/v2/write?" + url.Values{
			"org": {c.Organization}, "bucket": {c.Bucket}, "precision": {"ms"},
		}.Encode()
	}
	return c.URL + "/write?" + url.Values{"db": {c.Database}, "precision": {"ms"}}.Encode()
}

// Output 缓冲 line protocol，定期或满批时推送
type Output struct {
	cfg      Config
	endpoint string
	log      output.Logger
	client   *fasthttp.Client
	// globalTags 来自运行参数，样本自身的标签优先
	globalTags map[string]string

	mu      sync.Mutex
	pending bytes.Buffer
	lines   int
	status  output.RunStatus
	flusher *output.Flusher
}

// New 创建 InfluxDB 输出
func New(params output.Params) (output.Output, error) {
	cfg, err := ParseConfig(params.Arg)
	if err != nil {
		return nil, err
	}
	return &Output{
		cfg:        cfg,
		endpoint:   cfg.writeURL(),
		log:        params.Logger,
		client:     &fasthttp.Client{ReadTimeout: cfg.Timeout, WriteTimeout: cfg.Timeout},
		globalTags: params.Tags,
	}, nil
}

func (o *Output) Description() string {
	return "influxdb (" + o.cfg.URL + ")"
}

func (o *Output) Start() error {
	o.flusher = output.NewFlusher(o.cfg.PushInterval, func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		o.pushLogged()
	})
	return nil
}

// Stop 推送剩余数据并返回最后一次推送的错误。
// 设置过运行状态时额外写入一个 run_status 点。
func (o *Output) Stop() error {
	if o.flusher != nil {
		o.flusher.Stop()
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.status.State != "" {
		fmt.Fprintf(&o.pending, "run_status,state=%s elapsed_ms=%d,iterations=%di %d\n",
			tagEscaper.Replace(string(o.status.State)), o.status.Elapsed.Milliseconds(),
			o.status.Iterations, time.Now().UnixMilli())
	}
	return o.push()
}

func (o *Output) AddMetricSamples(containers []metrics.SampleContainer) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, c := range containers {
		for _, s := range c.GetSamples() {
			o.encode(&o.pending, s)
			o.lines++
			if o.lines >= o.cfg.BatchSize {
				o.pushLogged()
			}
		}
	}
}

func (o *Output) SetRunStatus(status output.RunStatus) {
	o.mu.Lock()
	o.status = status
	o.mu.Unlock()
}

var tagEscaper = strings.NewReplacer(",", `\,`, "=", `\=`, " ", `\ `)

// encode 写入一行：measurement,k=v,... value=x ms，标签键有序
func (o *Output) encode(buf *bytes.Buffer, s metrics.Sample) {
	tags := make(map[string]string, len(o.globalTags)+2)
	for k, v := range o.globalTags {
		tags[k] = v
	}
	for k, v := range s.Tags.Map() {
		if v != "" {
			tags[k] = v
		}
	}
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tagEscaper.WriteString(buf, s.Metric.Name)
	for _, k := range keys {
		buf.WriteByte(',')
		tagEscaper.WriteString(buf, k)
		buf.WriteByte('=')
		tagEscaper.WriteString(buf, tags[k])
	}
	buf.WriteString(" value=")
	buf.WriteString(strconv.FormatFloat(s.Value, 'f', -1, 64))
	buf.WriteByte(' ')
	buf.WriteString(strconv.FormatInt(s.Time.UnixMilli(), 10))
	buf.WriteByte('\n')
}

func (o *Output) pushLogged() {
	if err := o.push(); err != nil && o.log != nil {
		o.log.Error("推送到 InfluxDB 失败: %v", err)
	}
}

// push 调用方持有锁。失败的批次被丢弃，不重试。
func (o *Output) push() error {
	if o.pending.Len() == 0 {
		return nil
	}
	body := bytes.Clone(o.pending.Bytes())
	o.pending.Reset()
	o.lines = 0

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(o.endpoint)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("text/plain; charset=utf-8")
	if o.cfg.Token != "" {
		req.Header.Set("Authorization", "Token "+o.cfg.Token)
	}
	req.SetBody(body)

	if err := o.client.DoTimeout(req, resp, o.cfg.Timeout); err != nil {
		return fmt.Errorf("写入 InfluxDB 失败: %w", err)
	}
	if code := resp.StatusCode(); code >= 400 {
		return fmt.Errorf("InfluxDB 返回错误 %d: %s", code, resp.Body())
	}
	return nil
}
