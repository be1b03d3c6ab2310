package server

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// 🌐 监听面管理
// =============================================================================
// 代理进程对外有两个端口：代理端口承载受护与透传流量，指标端口
// 暴露 Prometheus 抓取面。Group 把两者编为一组，统一启动、统一停机。
// =============================================================================

// Config 单个监听端口的配置
type Config struct {
	// 监听地址
	Addr string `yaml:"addr" json:"addr"`

	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" json:"read_timeout"`

	// 写入超时（0：流式响应不设写超时）
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`

	// 空闲超时
	IdleTimeout time.Duration `yaml:"idle_timeout" json:"idle_timeout"`

	// 最大请求头大小
	MaxHeaderBytes int `yaml:"max_header_bytes" json:"max_header_bytes"`

	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`

	// TLS 证书对，留空走明文
	CertFile string `yaml:"cert_file" json:"cert_file"`
	KeyFile  string `yaml:"key_file" json:"key_file"`
}

// DefaultConfig 返回默认监听配置
func DefaultConfig() Config {
	return Config{
		Addr:            ":8080",
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     120 * time.Second,
		MaxHeaderBytes:  1 << 20, // 1 MB
		ShutdownTimeout: 30 * time.Second,
	}
}

// Listener 一个受管监听端口。非阻塞启动，服务错误带端口名上送 Group。
type Listener struct {
	name   string
	config Config
	server *http.Server
	ln     net.Listener
	errCh  chan<- error
	logger *zap.Logger
	mu     sync.RWMutex
	closed bool
}

func (l *Listener) start() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return fmt.Errorf("%s listener is closed", l.name)
	}
	if l.ln != nil {
		return fmt.Errorf("%s listener already started", l.name)
	}

	ln, err := net.Listen("tcp", l.config.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", l.config.Addr, err)
	}

	l.ln = ln
	l.logger.Info("监听端口已启动",
		zap.String("addr", ln.Addr().String()),
		zap.Bool("tls", l.config.CertFile != ""))

	go l.serve(ln)
	return nil
}

func (l *Listener) serve(ln net.Listener) {
	var err error
	if l.config.CertFile != "" && l.config.KeyFile != "" {
		err = l.server.ServeTLS(ln, l.config.CertFile, l.config.KeyFile)
	} else {
		err = l.server.Serve(ln)
	}
	if err != nil && err != http.ErrServerClosed {
		l.logger.Error("监听端口异常退出", zap.Error(err))
		select {
		case l.errCh <- fmt.Errorf("%s listener: %w", l.name, err):
		default:
		}
	}
}

// Shutdown 在配置的关闭超时内排空在途请求。重复调用为空操作。
func (l *Listener) Shutdown(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil
	}
	l.closed = true
	l.logger.Info("关闭监听端口")

	shutdownCtx, cancel := context.WithTimeout(ctx, l.config.ShutdownTimeout)
	defer cancel()

	if err := l.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown %s listener: %w", l.name, err)
	}
	l.ln = nil
	return nil
}

// Addr 返回实际监听地址。Addr 配置为 :0 时为分配到的随机端口。
func (l *Listener) Addr() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.ln != nil {
		return l.ln.Addr().String()
	}
	return l.config.Addr
}

// Running 报告端口是否尚未关闭
func (l *Listener) Running() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return !l.closed
}

// Group 进程的监听面。端口按注册顺序启动与关闭，
// 代理端口先注册，停机时先停接入再放掉指标抓取。
type Group struct {
	listeners []*Listener
	errCh     chan error
	logger    *zap.Logger
}

// NewGroup 创建空监听组
func NewGroup(logger *zap.Logger) *Group {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Group{
		errCh:  make(chan error, 1),
		logger: logger,
	}
}

// Add 注册一个命名监听端口。须在 Start 前调用完毕。
func (g *Group) Add(name string, handler http.Handler, cfg Config) *Listener {
	l := &Listener{
		name:   name,
		config: cfg,
		server: &http.Server{
			Handler:        handler,
			ReadTimeout:    cfg.ReadTimeout,
			WriteTimeout:   cfg.WriteTimeout,
			IdleTimeout:    cfg.IdleTimeout,
			MaxHeaderBytes: cfg.MaxHeaderBytes,
		},
		errCh:  g.errCh,
		logger: g.logger.With(zap.String("listener", name)),
	}
	g.listeners = append(g.listeners, l)
	return l
}

// Start 按注册顺序启动全部端口。任一端口启动失败即关闭已启动的端口。
func (g *Group) Start() error {
	for i, l := range g.listeners {
		if err := l.start(); err != nil {
			for j := i - 1; j >= 0; j-- {
				_ = g.listeners[j].Shutdown(context.Background())
			}
			return err
		}
	}
	return nil
}

// Wait 阻塞至收到 SIGINT/SIGTERM，或任一端口异常退出
func (g *Group) Wait() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		g.logger.Info("收到停机信号", zap.String("signal", sig.String()))
	case err := <-g.errCh:
		if err != nil {
			g.logger.Error("监听面异常，进入停机", zap.Error(err))
		}
	}
}

// Shutdown 按注册顺序优雅关闭全部端口，返回首个错误
func (g *Group) Shutdown(ctx context.Context) error {
	var firstErr error
	for _, l := range g.listeners {
		if err := l.Shutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Errors 返回异步服务错误通道，供调用方监控
func (g *Group) Errors() <-chan error {
	return g.errCh
}
