package workload

import (
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"gopkg.in/yaml.v3"

	"yqhp/variant-bench/pkg/types"
)

// Spec 是 YAML 中定义的自定义工作负载
type Spec struct {
	Name        string     `yaml:"name" json:"name"`
	Description string     `yaml:"description,omitempty" json:"description,omitempty"`
	Steps       []StepSpec `yaml:"steps" json:"steps"`
}

// StepSpec 自定义步骤
type StepSpec struct {
	Operation string `yaml:"operation" json:"operation"`
	Method    string `yaml:"method,omitempty" json:"method,omitempty"`
	Path      string `yaml:"path" json:"path"`
	// Body 是请求体模板，支持 {{variant}} {{uid}} {{timestamp}} {{value}}
	Body         string     `yaml:"body,omitempty" json:"body,omitempty"`
	Consumes     string     `yaml:"consumes,omitempty" json:"consumes,omitempty"`
	Expect       ExpectSpec `yaml:"expect,omitempty" json:"expect,omitempty"`
	Project      string     `yaml:"project,omitempty" json:"project,omitempty"`
	CountsAsRead bool       `yaml:"counts_as_read,omitempty" json:"counts_as_read,omitempty"`
}

// ExpectSpec 步骤的检查集合
type ExpectSpec struct {
	Status         []int    `yaml:"status,omitempty" json:"status,omitempty"`
	NoErrors       bool     `yaml:"no_errors,omitempty" json:"no_errors,omitempty"`
	ErrorsAbsent   bool     `yaml:"errors_absent,omitempty" json:"errors_absent,omitempty"`
	NonEmpty       bool     `yaml:"non_empty,omitempty" json:"non_empty,omitempty"`
	HasField       []string `yaml:"has_field,omitempty" json:"has_field,omitempty"`
	Truthy         []string `yaml:"truthy,omitempty" json:"truthy,omitempty"`
	NonEmptyAt     []string `yaml:"non_empty_at,omitempty" json:"non_empty_at,omitempty"`
	EqualsConsumed string   `yaml:"equals_consumed,omitempty" json:"equals_consumed,omitempty"`
	Script         string   `yaml:"script,omitempty" json:"script,omitempty"`
}

// ParseSpecs 从 YAML 解析工作负载列表
func ParseSpecs(data []byte) ([]Spec, error) {
	var specs []Spec
	if err := yaml.Unmarshal(data, &specs); err != nil {
		return nil, fmt.Errorf("解析工作负载 YAML 失败: %w", err)
	}
	return specs, nil
}

// Compile 编译为可执行的工作负载并校验
func (s *Spec) Compile() (*Workload, error) {
	w := &Workload{
		Name:        s.Name,
		Description: s.Description,
		Steps:       make([]*Step, 0, len(s.Steps)),
	}

	for i := range s.Steps {
		step, err := s.Steps[i].compile()
		if err != nil {
			return nil, fmt.Errorf("工作负载 %s 第 %d 步: %w", s.Name, i+1, err)
		}
		w.Steps = append(w.Steps, step)
	}

	if err := w.Validate(); err != nil {
		return nil, err
	}
	return w, nil
}

func (ss *StepSpec) compile() (*Step, error) {
	method := strings.ToUpper(strings.TrimSpace(ss.Method))
	if method == "" {
		method = "GET"
	}

	step := &Step{
		Operation:    ss.Operation,
		Method:       method,
		Path:         ss.Path,
		Consumes:     ss.Consumes,
		CountsAsRead: ss.CountsAsRead,
	}

	checks, err := ss.Expect.compile()
	if err != nil {
		return nil, err
	}
	step.Checks = checks

	if ss.Project != "" {
		p, err := NewProjection(ss.Project)
		if err != nil {
			return nil, fmt.Errorf("无效的投影 %q: %w", ss.Project, err)
		}
		step.Project = p
	}

	if ss.Body != "" {
		step.Body = templateBody(ss.Body)
	}
	return step, nil
}

func (e *ExpectSpec) compile() ([]Check, error) {
	status := e.Status
	if len(status) == 0 {
		status = []int{200}
	}
	checks := []Check{StatusIn(status...)}

	if e.NoErrors {
		checks = append(checks, NoErrors())
	}
	if e.ErrorsAbsent {
		checks = append(checks, ErrorsAbsent())
	}
	if e.NonEmpty {
		checks = append(checks, NonEmptyArray())
	}
	for _, p := range e.HasField {
		c, err := HasField(p)
		if err != nil {
			return nil, err
		}
		checks = append(checks, c)
	}
	for _, p := range e.Truthy {
		c, err := Truthy(p)
		if err != nil {
			return nil, err
		}
		checks = append(checks, c)
	}
	for _, p := range e.NonEmptyAt {
		c, err := NonEmptyAt(p)
		if err != nil {
			return nil, err
		}
		checks = append(checks, c)
	}
	if e.EqualsConsumed != "" {
		c, err := EqualsConsumed(e.EqualsConsumed)
		if err != nil {
			return nil, err
		}
		checks = append(checks, c)
	}
	if e.Script != "" {
		c, err := Script(e.Script)
		if err != nil {
			return nil, err
		}
		checks = append(checks, c)
	}
	return checks, nil
}

// templateBody 每次请求时替换占位符。模板是 JSON，占位符写在字符串字面量内，
// 替换值按 JSON 字符串转义。
func templateBody(tmpl string) BodyFunc {
	return func(variant types.Variant, consumed string) ([]byte, error) {
		now := time.Now().UTC()
		name, err := jsonEscape(variant.Name)
		if err != nil {
			return nil, err
		}
		value, err := jsonEscape(consumed)
		if err != nil {
			return nil, err
		}
		r := strings.NewReplacer(
			"{{variant}}", name,
			"{{uid}}", UniqueID(now),
			"{{timestamp}}", now.Format(time.RFC3339),
			"{{value}}", value,
		)
		return []byte(r.Replace(tmpl)), nil
	}
}

// jsonEscape 返回 s 作为 JSON 字符串时引号内的部分
func jsonEscape(s string) (string, error) {
	quoted, err := sonic.MarshalString(s)
	if err != nil {
		return "", fmt.Errorf("转义模板值失败: %w", err)
	}
	return quoted[1 : len(quoted)-1], nil
}
