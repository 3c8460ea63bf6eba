package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"yqhp/variant-bench/internal/probe"
	"yqhp/variant-bench/internal/workload"
	"yqhp/variant-bench/pkg/logger"
	"yqhp/variant-bench/pkg/types"
)

// Config represents the complete configuration of a benchmark run.
type Config struct {
	Run        RunConfig        `yaml:"run"`
	Variants   []VariantConfig  `yaml:"variants,omitempty"`
	Scenarios  []types.Scenario `yaml:"scenarios,omitempty"`
	HTTP       HTTPConfig       `yaml:"http"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Thresholds ThresholdsConfig `yaml:"thresholds"`
	Preflight  PreflightConfig  `yaml:"preflight"`
	Logging    LoggingConfig    `yaml:"logging"`
	Status     StatusConfig     `yaml:"status"`
	Outputs    []OutputConfig   `yaml:"outputs,omitempty"`
	Report     ReportConfig     `yaml:"report"`
	Workloads  []workload.Spec  `yaml:"workloads,omitempty"`
}

// RunConfig 默认场景参数，未配置 scenarios 时每个变体一个阶段
type RunConfig struct {
	Name     string        `yaml:"name" env:"VB_RUN_NAME"`
	Workload string        `yaml:"workload" env:"VB_WORKLOAD"`
	VUs      int           `yaml:"vus" env:"VB_VUS"`
	Duration time.Duration `yaml:"duration" env:"VB_DURATION"`
	MaxRPS   float64       `yaml:"max_rps" env:"VB_MAX_RPS"`
}

// VariantConfig 被测变体
type VariantConfig struct {
	Name    string `yaml:"name"`
	BaseURL string `yaml:"base_url"`
}

// HTTPConfig holds probe settings.
type HTTPConfig struct {
	Timeout         TimeoutConfig     `yaml:"timeout"`
	MaxConnsPerHost int               `yaml:"max_conns_per_host" env:"VB_HTTP_MAX_CONNS_PER_HOST"`
	Headers         map[string]string `yaml:"headers,omitempty" env:"VB_HTTP_HEADERS"`
	SSL             probe.SSLConfig   `yaml:"ssl,omitempty"`
}

// TimeoutConfig holds request timeouts.
type TimeoutConfig struct {
	Connect time.Duration `yaml:"connect" env:"VB_HTTP_CONNECT_TIMEOUT"`
	Read    time.Duration `yaml:"read" env:"VB_HTTP_READ_TIMEOUT"`
	Write   time.Duration `yaml:"write" env:"VB_HTTP_WRITE_TIMEOUT"`
	Request time.Duration `yaml:"request" env:"VB_HTTP_REQUEST_TIMEOUT"`
}

// MetricsConfig 指标存储设置
type MetricsConfig struct {
	// Distribution 为 exact 或 hdr
	Distribution               string `yaml:"distribution" env:"VB_METRICS_DISTRIBUTION"`
	HDRSignificantFigures      int    `yaml:"hdr_significant_figures" env:"VB_METRICS_HDR_SIGFIGS"`
	CountParseFailuresAsErrors bool   `yaml:"count_parse_failures_as_errors" env:"VB_COUNT_PARSE_FAILURES_AS_ERRORS"`
}

// ThresholdsConfig 简写阈值与显式规则
type ThresholdsConfig struct {
	P95LatencyMsMax float64      `yaml:"p95_latency_ms_max" env:"VB_P95_LATENCY_MS_MAX"`
	MaxErrorCount   int64        `yaml:"max_error_count" env:"VB_MAX_ERROR_COUNT"`
	Rules           []RuleConfig `yaml:"rules,omitempty"`
}

// RuleConfig 显式阈值规则
type RuleConfig struct {
	Metric    string            `yaml:"metric"`
	Tags      map[string]string `yaml:"tags,omitempty"`
	Condition string            `yaml:"condition"`
}

// PreflightConfig 启动前的连通性检查
type PreflightConfig struct {
	Enabled bool          `yaml:"enabled" env:"VB_PREFLIGHT"`
	Timeout time.Duration `yaml:"timeout" env:"VB_PREFLIGHT_TIMEOUT"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `yaml:"level" env:"VB_LOG_LEVEL"`
	Format     string `yaml:"format" env:"VB_LOG_FORMAT"`
	Output     string `yaml:"output" env:"VB_LOG_OUTPUT"`
	FilePath   string `yaml:"file_path,omitempty" env:"VB_LOG_FILE"`
	MaxSize    int    `yaml:"max_size,omitempty"`
	MaxBackups int    `yaml:"max_backups,omitempty"`
	MaxAge     int    `yaml:"max_age,omitempty"`
}

// StatusConfig 状态服务，地址为空时不启动
type StatusConfig struct {
	Address string `yaml:"address" env:"VB_STATUS_ADDRESS"`
}

// OutputConfig 样本输出，Config 为输出插件的参数（如文件路径）
type OutputConfig struct {
	Type   string `yaml:"type"`
	Config string `yaml:"config,omitempty"`
}

// ReportConfig JSON 报告
type ReportConfig struct {
	Path string `yaml:"path" env:"VB_REPORT_PATH"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		Run: RunConfig{
			Name:     "variant-bench",
			Workload: workload.ReadHeavy,
			VUs:      50,
			Duration: 60 * time.Second,
		},
		HTTP: HTTPConfig{
			Timeout: TimeoutConfig{
				Connect: 5 * time.Second,
				Read:    30 * time.Second,
				Write:   30 * time.Second,
				Request: 60 * time.Second,
			},
			MaxConnsPerHost: 1000,
		},
		Metrics: MetricsConfig{
			Distribution:          "exact",
			HDRSignificantFigures: 3,
		},
		Thresholds: ThresholdsConfig{
			P95LatencyMsMax: 2000,
			MaxErrorCount:   10,
		},
		Preflight: PreflightConfig{
			Enabled: true,
			Timeout: 5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			Output:     "stderr",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     7,
		},
	}
}

// Loader handles configuration loading from multiple sources.
type Loader struct {
	configPath string
	envPrefix  string
	cmdArgs    map[string]string
	variants   []string
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	return &Loader{
		envPrefix: "VB_",
		cmdArgs:   make(map[string]string),
	}
}

// WithConfigPath sets the path to the YAML configuration file.
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix sets the prefix for the VARIANTS environment variable.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithCmdArgs sets dot-path overrides, e.g. {"run.vus": "10"}.
func (l *Loader) WithCmdArgs(args map[string]string) *Loader {
	l.cmdArgs = args
	return l
}

// WithVariants 命令行 --variant name=url，非空时替换配置中的变体
func (l *Loader) WithVariants(pairs []string) *Loader {
	l.variants = pairs
	return l
}

// Load loads configuration from all sources with proper precedence:
// defaults < YAML file < environment variables < command-line flags
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("从文件加载配置失败: %w", err)
		}
	}

	if err := l.applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("应用环境变量覆盖失败: %w", err)
	}

	if err := l.applyCmdOverrides(cfg); err != nil {
		return nil, fmt.Errorf("应用命令行参数覆盖失败: %w", err)
	}

	return cfg, nil
}

// loadFromFile loads configuration from a YAML file.
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		return fmt.Errorf("读取配置文件失败: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("解析配置文件失败: %w", err)
	}
	return nil
}

func (l *Loader) applyEnvOverrides(cfg *Config) error {
	if err := applyEnvToStruct(reflect.ValueOf(cfg).Elem()); err != nil {
		return err
	}

	if raw := os.Getenv(l.envPrefix + "VARIANTS"); raw != "" {
		variants, err := ParseVariants(strings.Split(raw, ","))
		if err != nil {
			return fmt.Errorf("环境变量 %sVARIANTS: %w", l.envPrefix, err)
		}
		cfg.Variants = variants
	}
	return nil
}

// applyEnvToStruct recursively applies environment variables to struct fields.
func applyEnvToStruct(v reflect.Value) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		if field.Kind() == reflect.Struct && field.Type() != reflect.TypeOf(time.Duration(0)) {
			if err := applyEnvToStruct(field); err != nil {
				return err
			}
			continue
		}

		envTag := fieldType.Tag.Get("env")
		if envTag == "" {
			continue
		}
		envValue := os.Getenv(envTag)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("从环境变量 %s 设置字段 %s 失败: %w", envTag, fieldType.Name, err)
		}
	}
	return nil
}

func (l *Loader) applyCmdOverrides(cfg *Config) error {
	for key, value := range l.cmdArgs {
		if err := setConfigValue(cfg, key, value); err != nil {
			return fmt.Errorf("设置配置值 %s 失败: %w", key, err)
		}
	}

	if len(l.variants) > 0 {
		variants, err := ParseVariants(l.variants)
		if err != nil {
			return err
		}
		cfg.Variants = variants
	}
	return nil
}

// setConfigValue sets a configuration value by its yaml dot-path, e.g. "http.timeout.connect".
func setConfigValue(cfg *Config, path, value string) error {
	parts := strings.Split(path, ".")
	v := reflect.ValueOf(cfg).Elem()

	for i, part := range parts {
		field, ok := fieldByYAMLName(v, part)
		if !ok {
			return fmt.Errorf("未知的配置路径: %s", path)
		}

		if i == len(parts)-1 {
			return setFieldValue(field, value)
		}

		if field.Kind() != reflect.Struct {
			return fmt.Errorf("期望 %s 是结构体，实际是 %s", part, field.Kind())
		}
		v = field
	}
	return nil
}

func fieldByYAMLName(v reflect.Value, name string) (reflect.Value, bool) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		tag := strings.Split(t.Field(i).Tag.Get("yaml"), ",")[0]
		if tag == name || strings.EqualFold(t.Field(i).Name, name) {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

// setFieldValue sets a reflect.Value from a string value.
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return fmt.Errorf("无法设置字段")
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("无效的时间格式: %w", err)
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("无效的整数: %w", err)
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("无效的浮点数: %w", err)
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("无效的布尔值: %w", err)
		}
		field.SetBool(b)

	case reflect.Map:
		// key=value,key=value
		if field.Type().Key().Kind() != reflect.String || field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("不支持的 map 类型")
		}
		m := make(map[string]string)
		for _, pair := range strings.Split(value, ",") {
			kv := strings.SplitN(strings.TrimSpace(pair), "=", 2)
			if len(kv) == 2 {
				m[strings.TrimSpace(kv[0])] = strings.TrimSpace(kv[1])
			}
		}
		field.Set(reflect.ValueOf(m))

	default:
		return fmt.Errorf("不支持的字段类型: %s", field.Kind())
	}
	return nil
}

// ParseVariants 解析 name=url 列表
func ParseVariants(pairs []string) ([]VariantConfig, error) {
	out := make([]VariantConfig, 0, len(pairs))
	for _, pair := range pairs {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, url, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(name) == "" || strings.TrimSpace(url) == "" {
			return nil, fmt.Errorf("无效的变体 %q，期望 name=url", pair)
		}
		out = append(out, VariantConfig{Name: strings.TrimSpace(name), BaseURL: strings.TrimSpace(url)})
	}
	return out, nil
}

// Serialize serializes the configuration to YAML bytes.
func (c *Config) Serialize() ([]byte, error) {
	return yaml.Marshal(c)
}

// ParseConfig parses a YAML configuration from bytes.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file path.
func LoadFromFile(path string) (*Config, error) {
	return NewLoader().WithConfigPath(path).Load()
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	data, _ := c.Serialize()
	clone, _ := ParseConfig(data)
	return clone
}

// TypedVariants 转换为运行时变体
func (c *Config) TypedVariants() []types.Variant {
	out := make([]types.Variant, 0, len(c.Variants))
	for _, v := range c.Variants {
		out = append(out, types.Variant{Name: v.Name, BaseURL: strings.TrimRight(v.BaseURL, "/")})
	}
	return out
}

// ProbeConfig 转换为 probe 配置
func (c *Config) ProbeConfig() probe.Config {
	return probe.Config{
		Timeout: probe.TimeoutConfig{
			Connect: c.HTTP.Timeout.Connect,
			Read:    c.HTTP.Timeout.Read,
			Write:   c.HTTP.Timeout.Write,
			Request: c.HTTP.Timeout.Request,
		},
		MaxConnsPerHost: c.HTTP.MaxConnsPerHost,
		Headers:         c.HTTP.Headers,
		SSL:             c.HTTP.SSL,
	}
}

// LoggerConfig 转换为日志配置
func (c *Config) LoggerConfig() *logger.Config {
	return &logger.Config{
		Level:      c.Logging.Level,
		Format:     c.Logging.Format,
		Output:     c.Logging.Output,
		FilePath:   c.Logging.FilePath,
		MaxSize:    c.Logging.MaxSize,
		MaxBackups: c.Logging.MaxBackups,
		MaxAge:     c.Logging.MaxAge,
	}
}
