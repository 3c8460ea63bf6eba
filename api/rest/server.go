// Package rest 提供运行期间的状态服务：/health、/status 与 Prometheus /metrics。
package rest

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"yqhp/variant-bench/pkg/logger"
	"yqhp/variant-bench/pkg/metrics"
	"yqhp/variant-bench/pkg/types"
)

// StatusSource 提供阶段状态，*scheduler.Scheduler 实现该接口
type StatusSource interface {
	States() []types.ScenarioStatus
	Current() (types.ScenarioStatus, bool)
	RunStart() time.Time
}

// TimelineSource 提供时间线快照，*report.Collector 实现该接口
type TimelineSource interface {
	Points() []*types.TimelinePoint
}

// Server 状态服务
type Server struct {
	app      *fiber.App
	config   *Config
	status   StatusSource
	registry *metrics.Registry
	gatherer prometheus.Gatherer
	timeline TimelineSource
}

// Config 状态服务配置
type Config struct {
	// Address 监听地址，如 ":6565"
	Address string `yaml:"address"`

	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// EnableCORS 允许跨域访问，便于浏览器面板轮询
	EnableCORS bool `yaml:"enable_cors"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Address:      ":6565",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		EnableCORS:   true,
	}
}

// Option 服务选项
type Option func(*Server)

// WithTimeline 启用 /api/v1/timeline
func WithTimeline(t TimelineSource) Option {
	return func(s *Server) { s.timeline = t }
}

// NewServer 创建状态服务。gatherer 为 nil 时不注册 /metrics。
func NewServer(status StatusSource, registry *metrics.Registry, gatherer prometheus.Gatherer, config *Config, opts ...Option) *Server {
	if config == nil {
		config = DefaultConfig()
	}

	app := fiber.New(fiber.Config{
		ReadTimeout:           config.ReadTimeout,
		WriteTimeout:          config.WriteTimeout,
		ErrorHandler:          customErrorHandler,
		AppName:               "variant-bench",
		DisableStartupMessage: true,
	})

	s := &Server{
		app:      app,
		config:   config,
		status:   status,
		registry: registry,
		gatherer: gatherer,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.app.Use(fiberrecover.New())
	s.app.Use(requestLogger())

	if s.config.EnableCORS {
		s.app.Use(cors.New(cors.Config{
			AllowOrigins: "*",
			AllowMethods: "GET,OPTIONS",
		}))
	}
}

// requestLogger 以 debug 级别记录请求，压测期间不刷屏
func requestLogger() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		if logger.IsDebugEnabled() {
			logger.L().Debug("status request",
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.Int("status", c.Response().StatusCode()),
				zap.Duration("latency", time.Since(start)))
		}
		return err
	}
}

func (s *Server) setupRoutes() {
	s.app.Get("/health", s.healthCheck)
	s.app.Get("/status", s.getStatus)

	if s.gatherer != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	api := s.app.Group("/api/v1")
	api.Get("/health", s.healthCheck)
	api.Get("/status", s.getStatus)
	api.Get("/scenarios/:name", s.getScenario)
	api.Get("/series", s.getSeries)
	api.Get("/timeline", s.getTimeline)
}

// Start 启动服务，阻塞直到出错或关闭
func (s *Server) Start() error {
	return s.app.Listen(s.config.Address)
}

// StartWithContext 在后台监听，ctx 结束时关闭服务
func (s *Server) StartWithContext(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		errCh <- s.app.Listen(s.config.Address)
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown()
	case err := <-errCh:
		return err
	}
}

// Shutdown 关闭服务
func (s *Server) Shutdown() error {
	return s.app.ShutdownWithTimeout(5 * time.Second)
}

// App 返回底层的 Fiber app
func (s *Server) App() *fiber.App {
	return s.app
}

func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
		message = e.Message
	}

	return c.Status(code).JSON(ErrorResponse{
		Error:   fmt.Sprintf("error_%d", code),
		Message: message,
	})
}
