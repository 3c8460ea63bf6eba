// Package json 将样本逐行写入 NDJSON 文件，可选 gzip 压缩。
package json

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/klauspost/compress/gzip"

	"yqhp/variant-bench/pkg/output"
)

const flushPeriod = 200 * time.Millisecond

func init() {
	output.Register("json", New)
}

type point struct {
	Type   string    `json:"type"`
	Metric string    `json:"metric"`
	Data   pointData `json:"data"`
}

type pointData struct {
	Time  time.Time         `json:"time"`
	Value float64           `json:"value"`
	Tags  map[string]string `json:"tags"`
}

// Output JSON 文件输出
type Output struct {
	output.SampleBuffer

	params    output.Params
	filename  string
	file      *os.File
	closer    io.Closer
	writer    *bufio.Writer
	encoder   sonic.Encoder
	flusher   *output.Flusher
	mu        sync.Mutex
	runStatus output.RunStatus
	written   int64
}

// New 创建 JSON 输出，参数为文件路径，.gz 后缀时压缩
func New(params output.Params) (output.Output, error) {
	filename := params.Arg
	if filename == "" {
		filename = fmt.Sprintf("samples_%s.json", time.Now().Format("20060102_150405"))
	}
	return &Output{params: params, filename: filename}, nil
}

// Description 返回描述
func (o *Output) Description() string {
	return fmt.Sprintf("json (%s)", o.filename)
}

// Start 启动输出
func (o *Output) Start() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	file, err := os.Create(o.filename)
	if err != nil {
		return fmt.Errorf("创建 JSON 文件失败: %w", err)
	}
	o.file = file

	var w io.Writer = file
	if strings.HasSuffix(o.filename, ".gz") {
		gz := gzip.NewWriter(file)
		o.closer = gz
		w = gz
	}
	o.writer = bufio.NewWriter(w)
	o.encoder = sonic.ConfigDefault.NewEncoder(o.writer)

	o.flusher = output.NewFlusher(flushPeriod, o.flush)
	return nil
}

// Stop 写出剩余样本并关闭文件
func (o *Output) Stop() error {
	if o.flusher != nil {
		o.flusher.Stop()
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.file == nil {
		return nil
	}

	if err := o.writer.Flush(); err != nil {
		return fmt.Errorf("写入 JSON 文件失败: %w", err)
	}
	if o.closer != nil {
		if err := o.closer.Close(); err != nil {
			return err
		}
	}
	if o.params.Logger != nil {
		o.params.Logger.Debug("json 输出共写入 %d 个样本到 %s", o.written, o.filename)
	}
	err := o.file.Close()
	o.file = nil
	return err
}

func (o *Output) flush() {
	containers := o.Drain()
	if len(containers) == 0 {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.encoder == nil {
		return
	}

	for _, container := range containers {
		for _, sample := range container.GetSamples() {
			entry := point{
				Type:   "Point",
				Metric: sample.Metric.Name,
				Data: pointData{
					Time:  sample.Time,
					Value: sample.Value,
					Tags:  sample.Tags.Map(),
				},
			}
			if err := o.encoder.Encode(entry); err != nil {
				if o.params.Logger != nil {
					o.params.Logger.Error("写入 JSON 失败: %v", err)
				}
				continue
			}
			o.written++
		}
	}
}

// SetRunStatus 设置运行状态
func (o *Output) SetRunStatus(status output.RunStatus) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runStatus = status
}
