package probe

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"
)

// Config 探针配置
type Config struct {
	Timeout         TimeoutConfig     `yaml:"timeout,omitempty" json:"timeout,omitempty"`                       // 超时配置
	MaxConnsPerHost int               `yaml:"max_conns_per_host,omitempty" json:"max_conns_per_host,omitempty"` // 每个主机的最大连接数
	Headers         map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`                       // 额外请求头
	SSL             SSLConfig         `yaml:"ssl,omitempty" json:"ssl,omitempty"`                               // SSL 配置
}

// TimeoutConfig 超时配置
type TimeoutConfig struct {
	Connect time.Duration `yaml:"connect,omitempty" json:"connect,omitempty"` // 连接超时，默认 5s
	Read    time.Duration `yaml:"read,omitempty" json:"read,omitempty"`       // 读取超时，默认 30s
	Write   time.Duration `yaml:"write,omitempty" json:"write,omitempty"`     // 写入超时，默认 30s
	Request time.Duration `yaml:"request,omitempty" json:"request,omitempty"` // 总请求超时，默认 60s
}

// SSLConfig SSL/TLS 配置
type SSLConfig struct {
	Verify   *bool  `yaml:"verify,omitempty" json:"verify,omitempty"` // 是否验证证书，默认 true
	CertPath string `yaml:"cert,omitempty" json:"cert,omitempty"`     // 客户端证书路径
	KeyPath  string `yaml:"key,omitempty" json:"key,omitempty"`       // 客户端私钥路径
	CAPath   string `yaml:"ca,omitempty" json:"ca,omitempty"`         // CA 证书路径
}

// DefaultConfig 返回默认探针配置
func DefaultConfig() *Config {
	return &Config{
		Timeout: TimeoutConfig{
			Connect: 5 * time.Second,
			Read:    30 * time.Second,
			Write:   30 * time.Second,
			Request: 60 * time.Second,
		},
		MaxConnsPerHost: 1000,
		Headers:         make(map[string]string),
	}
}

// withDefaults 用默认值补齐未设置的字段
func (c *Config) withDefaults() *Config {
	def := DefaultConfig()
	if c == nil {
		return def
	}

	out := *c
	if out.Timeout.Connect <= 0 {
		out.Timeout.Connect = def.Timeout.Connect
	}
	if out.Timeout.Read <= 0 {
		out.Timeout.Read = def.Timeout.Read
	}
	if out.Timeout.Write <= 0 {
		out.Timeout.Write = def.Timeout.Write
	}
	if out.Timeout.Request <= 0 {
		out.Timeout.Request = def.Timeout.Request
	}
	if out.MaxConnsPerHost <= 0 {
		out.MaxConnsPerHost = def.MaxConnsPerHost
	}
	return &out
}

// GetVerify 获取是否验证证书
func (c *SSLConfig) GetVerify() bool {
	if c.Verify == nil {
		return true
	}
	return *c.Verify
}

// BuildTLSConfig 构建 TLS 配置
func (c *SSLConfig) BuildTLSConfig() (*tls.Config, error) {
	tlsConfig := &tls.Config{
		InsecureSkipVerify: !c.GetVerify(),
	}

	if c.CertPath != "" && c.KeyPath != "" {
		cert, err := tls.LoadX509KeyPair(c.CertPath, c.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("加载客户端证书失败: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	if c.CAPath != "" {
		caCert, err := os.ReadFile(c.CAPath)
		if err != nil {
			return nil, fmt.Errorf("读取 CA 证书失败: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("解析 CA 证书失败: %s", c.CAPath)
		}
		tlsConfig.RootCAs = pool
	}

	return tlsConfig, nil
}
