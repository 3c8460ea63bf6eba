package probe

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/valyala/fasthttp"
	"golang.org/x/sync/errgroup"

	"yqhp/variant-bench/pkg/logger"
	"yqhp/variant-bench/pkg/types"
)

// Preflight 并发检查每个变体的 URL 是否合法且主机可以建立 TCP 连接。
// 任一失败即返回错误，调用方应在启动任何场景前终止。
func Preflight(ctx context.Context, variants []types.Variant, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, v := range variants {
		v := v
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			addr, err := dialAddr(v.BaseURL)
			if err != nil {
				return fmt.Errorf("变体 %s 预检失败: %w", v.Name, err)
			}

			start := time.Now()
			conn, err := fasthttp.DialTimeout(addr, timeout)
			if err != nil {
				return fmt.Errorf("变体 %s 预检失败，无法连接 %s: %w", v.Name, addr, err)
			}
			_ = conn.Close()

			logger.Debug("变体 %s 预检通过 (%s, %s)", v.Name, addr, time.Since(start))
			return nil
		})
	}
	return g.Wait()
}

// dialAddr 校验基础 URL 并返回 host:port
func dialAddr(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidVariantURL, err)
	}

	port := u.Port()
	switch u.Scheme {
	case "http":
		if port == "" {
			port = "80"
		}
	case "https":
		if port == "" {
			port = "443"
		}
	default:
		return "", fmt.Errorf("%w: 不支持的协议 %q", ErrInvalidVariantURL, u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return "", fmt.Errorf("%w: 缺少主机 %q", ErrInvalidVariantURL, raw)
	}
	return net.JoinHostPort(host, port), nil
}

// ValidateBaseURL 只校验 URL 格式，不建立连接
func ValidateBaseURL(raw string) error {
	_, err := dialAddr(raw)
	return err
}
