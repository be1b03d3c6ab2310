// =============================================================================
// 🔌 上游推理后端客户端
// =============================================================================
// 进程级共享的长连接 HTTP 客户端：有界连接池、keep-alive、
// 可协商 HTTP/2（明文后端可选 h2c）、传输层错误有界重试。
// 启动时创建，关闭时释放。
// =============================================================================
package upstream

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/http2"

	"github.com/BaSui01/guardflow/config"
	"github.com/BaSui01/guardflow/internal/tlsutil"
	"github.com/BaSui01/guardflow/types"
)

// Client 上游客户端。内部 http.Client 并发安全，整个进程共享一个实例。
type Client struct {
	http        *http.Client
	baseURL     string
	retries     int
	poolTimeout time.Duration
	onRetry     func()
	logger      *zap.Logger
}

// NewClient 按配置组装上游客户端。
// baseURL 为后端根地址（如 http://localhost:11434），路径前缀已含在内。
func NewClient(baseURL string, cfg config.UpstreamConfig, logger *zap.Logger) (*Client, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Host == "" {
		return nil, fmt.Errorf("invalid upstream url %q", baseURL)
	}

	var transport http.RoundTripper
	if cfg.H2C && parsed.Scheme == "http" {
		// 明文后端走 h2c：跳过 ALPN 直接说 HTTP/2
		transport = &http2.Transport{
			AllowHTTP: true,
			DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				d := net.Dialer{Timeout: cfg.ConnectTimeout}
				return d.DialContext(ctx, network, addr)
			},
			IdleConnTimeout:  cfg.IdleConnTimeout,
			WriteByteTimeout: cfg.WriteTimeout,
		}
	} else {
		dial := (&net.Dialer{
			Timeout:   cfg.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext
		transport = &http.Transport{
			// 写超时逐次武装，连接复用与空闲读不受影响
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				conn, err := dial(ctx, network, addr)
				if err != nil || cfg.WriteTimeout <= 0 {
					return conn, err
				}
				return &writeDeadlineConn{Conn: conn, timeout: cfg.WriteTimeout}, nil
			},
			TLSClientConfig:       tlsutil.DefaultTLSConfig(),
			ForceAttemptHTTP2:     true,
			MaxConnsPerHost:       cfg.MaxConns,
			MaxIdleConns:          cfg.MaxIdleConns,
			MaxIdleConnsPerHost:   cfg.MaxIdleConns,
			IdleConnTimeout:       cfg.IdleConnTimeout,
			ResponseHeaderTimeout: cfg.ReadTimeout,
			ExpectContinueTimeout: time.Second,
		}
	}

	logger.Info("上游客户端就绪",
		zap.String("base_url", baseURL),
		zap.Int("max_conns", cfg.MaxConns),
		zap.Bool("h2c", cfg.H2C),
		zap.Int("retries", cfg.Retries))

	return &Client{
		// 不设 http.Client.Timeout：流式响应长驻，超时由 ctx 控制
		http:        &http.Client{Transport: transport},
		baseURL:     strings.TrimRight(baseURL, "/"),
		retries:     cfg.Retries,
		poolTimeout: cfg.PoolTimeout,
		logger:      logger.With(zap.String("component", "upstream")),
	}, nil
}

// OnRetry 注册传输层重试回调（指标记录）。启动期调用，不加锁。
func (c *Client) OnRetry(fn func()) {
	c.onRetry = fn
}

// writeDeadlineConn 每次写前武装写超时的连接
type writeDeadlineConn struct {
	net.Conn
	timeout time.Duration
}

func (c *writeDeadlineConn) Write(p []byte) (int, error) {
	if err := c.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Write(p)
}

// withPoolWait 对取连接阶段施加 pool_timeout：计时器在拿到
// 连接（含复用的空闲连接）前触发即取消请求，连接到手后停表。
func (c *Client) withPoolWait(ctx context.Context) context.Context {
	if c.poolTimeout <= 0 {
		return ctx
	}
	waitCtx, cancel := context.WithCancel(ctx)
	timer := time.AfterFunc(c.poolTimeout, cancel)
	trace := &httptrace.ClientTrace{
		GotConn: func(httptrace.GotConnInfo) { timer.Stop() },
	}
	return httptrace.WithClientTrace(waitCtx, trace)
}

// BaseURL 返回后端根地址
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Post 发送 JSON 请求并等待完整响应。
// 仅对传输层错误重试（连接拒绝、对端重置等），从不重试 HTTP 状态码。
func (c *Client) Post(ctx context.Context, path string, body []byte) (*http.Response, error) {
	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, c.wrapTransportError(ctx.Err())
			case <-time.After(time.Duration(attempt) * 100 * time.Millisecond):
			}
			if c.onRetry != nil {
				c.onRetry()
			}
			c.logger.Debug("重试上游请求",
				zap.String("path", path),
				zap.Int("attempt", attempt),
				zap.Error(lastErr))
		}

		req, err := http.NewRequestWithContext(c.withPoolWait(ctx), http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, c.wrapTransportError(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		// ctx 取消不值得重试
		if ctx.Err() != nil {
			break
		}
	}
	return nil, c.wrapTransportError(lastErr)
}

// OpenStream 发送请求并返回逐行帧流。
// 响应状态非 2xx 时不建立流，原样返回响应供调用方转译错误。
func (c *Client) OpenStream(ctx context.Context, path string, body []byte) (*Stream, *http.Response, error) {
	streamCtx, cancel := context.WithCancel(ctx)

	resp, err := c.postOnce(streamCtx, path, body)
	if err != nil {
		cancel()
		return nil, nil, c.wrapTransportError(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		cancel()
		return nil, resp, nil
	}

	return newStream(resp.Body, cancel), nil, nil
}

// postOnce 单次发送，流式路径不重试（帧可能已被消费）
func (c *Client) postOnce(ctx context.Context, path string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(c.withPoolWait(ctx), http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.http.Do(req)
}

// Passthrough 将请求原样转发到后端并回放响应。
// 请求体与响应体均不做扫描或改写；逐段冲刷以支持后端流式响应。
func (c *Client) Passthrough(w http.ResponseWriter, r *http.Request) {
	target := c.baseURL + r.URL.Path
	if r.URL.RawQuery != "" {
		target += "?" + r.URL.RawQuery
	}

	req, err := http.NewRequestWithContext(r.Context(), r.Method, target, r.Body)
	if err != nil {
		http.Error(w, `{"error":"upstream_error"}`, http.StatusBadGateway)
		return
	}
	copyHeaders(req.Header, r.Header)

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("透传请求失败",
			zap.String("path", r.URL.Path), zap.Error(err))
		http.Error(w, `{"error":"upstream_error"}`, http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	copyHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)

	flusher, _ := w.(http.Flusher)
	buf := make([]byte, 32*1024)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if readErr != nil {
			return
		}
	}
}

// Close 关闭空闲连接。在途请求不受影响。
func (c *Client) Close() {
	if t, ok := c.http.Transport.(*http.Transport); ok {
		t.CloseIdleConnections()
	}
	if t, ok := c.http.Transport.(*http2.Transport); ok {
		t.CloseIdleConnections()
	}
	c.logger.Info("上游客户端已关闭")
}

// wrapTransportError 将传输层错误折叠为统一的 upstream_error
func (c *Client) wrapTransportError(err error) error {
	if err == nil {
		err = fmt.Errorf("upstream request failed")
	}
	return types.NewError(types.ErrUpstreamError, "failed to reach inference backend").
		WithHTTPStatus(http.StatusBadGateway).
		WithRetryable(true).
		WithCause(err)
}

// hopHeaders 逐跳头，转发时剥除
var hopHeaders = map[string]bool{
	"Connection":          true,
	"Keep-Alive":          true,
	"Proxy-Authenticate":  true,
	"Proxy-Authorization": true,
	"Te":                  true,
	"Trailer":             true,
	"Transfer-Encoding":   true,
	"Upgrade":             true,
}

func copyHeaders(dst, src http.Header) {
	for key, values := range src {
		if hopHeaders[http.CanonicalHeaderKey(key)] {
			continue
		}
		for _, v := range values {
			dst.Add(key, v)
		}
	}
}
