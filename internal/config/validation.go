package config

import (
	"fmt"
	"net"
	"strings"

	"yqhp/variant-bench/internal/probe"
	"yqhp/variant-bench/internal/threshold"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(msgs, "\n  - "))
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Fields 返回出错的字段路径
func (e ValidationErrors) Fields() []string {
	out := make([]string, 0, len(e))
	for _, err := range e {
		out = append(out, err.Field)
	}
	return out
}

// Validator validates configuration values.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new configuration validator.
func NewValidator() *Validator {
	return &Validator{
		errors: make(ValidationErrors, 0),
	}
}

func (v *Validator) addError(field, message string) {
	v.errors = append(v.errors, ValidationError{Field: field, Message: message})
}

// Validate validates the entire configuration and returns any errors.
func (v *Validator) Validate(cfg *Config) error {
	v.errors = make(ValidationErrors, 0)

	v.validateRunConfig(&cfg.Run, len(cfg.Scenarios) > 0)
	variants := v.validateVariants(cfg.Variants)
	v.validateScenarios(cfg, variants)
	v.validateWorkloads(cfg)
	v.validateHTTPConfig(&cfg.HTTP)
	v.validateMetricsConfig(&cfg.Metrics)
	v.validateThresholdsConfig(&cfg.Thresholds)
	v.validatePreflightConfig(&cfg.Preflight)
	v.validateLoggingConfig(&cfg.Logging)
	v.validateStatusConfig(&cfg.Status)
	v.validateOutputs(cfg.Outputs)

	if v.errors.HasErrors() {
		return v.errors
	}
	return nil
}

// validateRunConfig 显式场景可覆盖 vus/duration，此时 run 中的值允许为 0
func (v *Validator) validateRunConfig(cfg *RunConfig, hasScenarios bool) {
	if cfg.Workload == "" && !hasScenarios {
		v.addError("run.workload", "workload is required")
	}
	if cfg.VUs < 0 || (cfg.VUs == 0 && !hasScenarios) {
		v.addError("run.vus", "vus must be at least 1")
	}
	if cfg.Duration < 0 || (cfg.Duration == 0 && !hasScenarios) {
		v.addError("run.duration", "duration must be positive")
	}
	if cfg.MaxRPS < 0 {
		v.addError("run.max_rps", "max rps must be non-negative")
	}
}

func (v *Validator) validateVariants(variants []VariantConfig) map[string]bool {
	names := make(map[string]bool, len(variants))
	if len(variants) == 0 {
		v.addError("variants", "at least one variant is required")
		return names
	}

	for i, vc := range variants {
		field := fmt.Sprintf("variants[%d]", i)
		if vc.Name == "" {
			v.addError(field+".name", "name is required")
		} else if names[vc.Name] {
			v.addError(field+".name", fmt.Sprintf("duplicate variant name '%s'", vc.Name))
		}
		names[vc.Name] = true

		if err := probe.ValidateBaseURL(vc.BaseURL); err != nil {
			v.addError(field+".base_url", err.Error())
		}
	}
	return names
}

// validateScenarios 校验显式场景的引用与参数，阶段重叠由计划校验负责
func (v *Validator) validateScenarios(cfg *Config, variants map[string]bool) {
	for i, sc := range cfg.Scenarios {
		field := fmt.Sprintf("scenarios[%d]", i)
		if sc.Variant == "" {
			v.addError(field+".variant", "variant is required")
		} else if !variants[sc.Variant] {
			v.addError(field+".variant", fmt.Sprintf("unknown variant '%s'", sc.Variant))
		}
		if sc.VUs < 0 {
			v.addError(field+".vus", "vus must be non-negative")
		}
		if sc.Duration < 0 {
			v.addError(field+".duration", "duration must be non-negative")
		}
		if sc.StartOffset < 0 {
			v.addError(field+".start_offset", "start offset must be non-negative")
		}
	}

	if len(cfg.Scenarios) > 0 && !v.errors.HasErrors() {
		if err := cfg.Plan().Validate(cfg.TypedVariants(), nil); err != nil {
			v.addError("scenarios", err.Error())
		}
	}
}

// validateWorkloads 编译自定义工作负载并检查引用
func (v *Validator) validateWorkloads(cfg *Config) {
	catalog, err := cfg.Catalog()
	if err != nil {
		v.addError("workloads", err.Error())
		return
	}

	if cfg.Run.Workload != "" && !catalog.Has(cfg.Run.Workload) {
		v.addError("run.workload", fmt.Sprintf("unknown workload '%s'", cfg.Run.Workload))
	}
	for i, sc := range cfg.Scenarios {
		if sc.Workload != "" && !catalog.Has(sc.Workload) {
			v.addError(fmt.Sprintf("scenarios[%d].workload", i), fmt.Sprintf("unknown workload '%s'", sc.Workload))
		}
	}
}

func (v *Validator) validateHTTPConfig(cfg *HTTPConfig) {
	timeouts := map[string]int64{
		"http.timeout.connect": int64(cfg.Timeout.Connect),
		"http.timeout.read":    int64(cfg.Timeout.Read),
		"http.timeout.write":   int64(cfg.Timeout.Write),
		"http.timeout.request": int64(cfg.Timeout.Request),
	}
	for _, field := range []string{"http.timeout.connect", "http.timeout.read", "http.timeout.write", "http.timeout.request"} {
		if timeouts[field] <= 0 {
			v.addError(field, "timeout must be positive")
		}
	}
	if cfg.MaxConnsPerHost < 1 {
		v.addError("http.max_conns_per_host", "max conns per host must be at least 1")
	}
}

func (v *Validator) validateMetricsConfig(cfg *MetricsConfig) {
	switch cfg.Distribution {
	case "exact":
	case "hdr":
		if cfg.HDRSignificantFigures < 1 || cfg.HDRSignificantFigures > 5 {
			v.addError("metrics.hdr_significant_figures", "significant figures must be between 1 and 5")
		}
	default:
		v.addError("metrics.distribution", fmt.Sprintf("invalid distribution '%s', must be one of: exact, hdr", cfg.Distribution))
	}
}

func (v *Validator) validateThresholdsConfig(cfg *ThresholdsConfig) {
	if cfg.P95LatencyMsMax < 0 {
		v.addError("thresholds.p95_latency_ms_max", "must be non-negative")
	}
	if cfg.MaxErrorCount < 0 {
		v.addError("thresholds.max_error_count", "must be non-negative")
	}
	for i, rc := range cfg.Rules {
		if _, err := threshold.ParseRule(rc.Metric, rc.Tags, rc.Condition); err != nil {
			v.addError(fmt.Sprintf("thresholds.rules[%d]", i), err.Error())
		}
	}
}

func (v *Validator) validatePreflightConfig(cfg *PreflightConfig) {
	if cfg.Enabled && cfg.Timeout <= 0 {
		v.addError("preflight.timeout", "timeout must be positive when preflight is enabled")
	}
}

func (v *Validator) validateLoggingConfig(cfg *LoggingConfig) {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if cfg.Level == "" {
		v.addError("logging.level", "log level is required")
	} else if !validLevels[strings.ToLower(cfg.Level)] {
		v.addError("logging.level", fmt.Sprintf("invalid log level '%s', must be one of: debug, info, warn, error", cfg.Level))
	}

	validFormats := map[string]bool{"json": true, "console": true}
	if cfg.Format != "" && !validFormats[strings.ToLower(cfg.Format)] {
		v.addError("logging.format", fmt.Sprintf("invalid log format '%s', must be one of: json, console", cfg.Format))
	}

	switch strings.ToLower(cfg.Output) {
	case "", "stdout", "stderr":
	case "file", "both":
		if cfg.FilePath == "" {
			v.addError("logging.file_path", "file path is required when output is file or both")
		}
	default:
		v.addError("logging.output", fmt.Sprintf("invalid log output '%s', must be one of: stdout, stderr, file, both", cfg.Output))
	}
}

func (v *Validator) validateStatusConfig(cfg *StatusConfig) {
	if cfg.Address != "" && !isValidAddress(cfg.Address) {
		v.addError("status.address", "invalid address format, expected host:port or :port")
	}
}

func (v *Validator) validateOutputs(outputs []OutputConfig) {
	for i, o := range outputs {
		if o.Type == "" {
			v.addError(fmt.Sprintf("outputs[%d].type", i), "output type is required")
		}
	}
}

// isValidAddress checks if the address is a valid host:port format.
func isValidAddress(addr string) bool {
	if addr == "" {
		return false
	}

	host, port, err := net.SplitHostPort(addr)
	if err != nil || port == "" {
		return false
	}
	if _, err := net.LookupPort("tcp", port); err != nil {
		return false
	}

	if host != "" && net.ParseIP(host) == nil && !isValidHostname(host) {
		return false
	}
	return true
}

// isValidHostname performs basic hostname validation.
func isValidHostname(hostname string) bool {
	if len(hostname) == 0 || len(hostname) > 253 {
		return false
	}

	for _, label := range strings.Split(hostname, ".") {
		if len(label) == 0 || len(label) > 63 {
			return false
		}
		if !isAlphanumeric(label[0]) || !isAlphanumeric(label[len(label)-1]) {
			return false
		}
		for _, c := range label {
			if !isAlphanumeric(byte(c)) && c != '-' {
				return false
			}
		}
	}
	return true
}

func isAlphanumeric(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	return NewValidator().Validate(c)
}

// LoadAndValidate loads configuration from a file and validates it.
func LoadAndValidate(path string) (*Config, error) {
	cfg, err := LoadFromFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
