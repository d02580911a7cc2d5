package prometheus

import (
	"context"
	"net"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/faceview/pkg/config"
	"github.com/lk2023060901/faceview/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Client 独立的指标 Registry，可选地通过 HTTP 暴露
// 实现 app.Server，由应用负责启停
type Client struct {
	config   *Config
	registry *prometheus.Registry
	logger   logger.Logger

	mu         sync.Mutex
	httpServer *http.Server
	addr       string

	closed atomic.Bool
}

// New 创建 Prometheus 客户端
func New(cfg *Config, l logger.Logger) (*Client, error) {
	newCfg, err := config.MergeConfig(DefaultConfig(), cfg)
	if err != nil {
		return nil, err
	}
	if err := newCfg.Validate(); err != nil {
		return nil, err
	}

	c := &Client{
		config:   newCfg,
		registry: prometheus.NewRegistry(),
		logger:   logger.OrNoop(l),
	}
	if newCfg.EnableGoCollector {
		c.registry.MustRegister(collectors.NewGoCollector())
	}
	if newCfg.EnableProcessCollector {
		c.registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	return c, nil
}

// Registry 底层 Registry，业务指标注册到这里
func (c *Client) Registry() *prometheus.Registry {
	return c.registry
}

// Namespace 指标前缀
func (c *Client) Namespace() string {
	return c.config.Namespace
}

// Handler 指标 HTTP Handler
func (c *Client) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Addr 实际监听地址，未启动时为空
func (c *Client) Addr() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addr
}

// Start 启动 HTTP 服务，未开启时直接返回
func (c *Client) Start() error {
	if !c.config.HTTPServer.Enabled {
		return nil
	}
	if c.closed.Load() {
		return ErrClientClosed
	}

	ln, err := net.Listen("tcp", c.config.HTTPServer.Addr)
	if err != nil {
		return errors.Wrapf(err, "listen %s", c.config.HTTPServer.Addr)
	}

	mux := http.NewServeMux()
	mux.Handle(c.config.HTTPServer.Path, c.Handler())
	srv := &http.Server{
		Handler:      mux,
		ReadTimeout:  c.config.HTTPServer.Timeout,
		WriteTimeout: c.config.HTTPServer.Timeout,
	}

	c.mu.Lock()
	c.httpServer = srv
	c.addr = ln.Addr().String()
	c.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.logger.Error("metrics server stopped", "error", err)
		}
	}()
	c.logger.Info("metrics server listening", "addr", ln.Addr().String(), "path", c.config.HTTPServer.Path)
	return nil
}

// Stop 关闭 HTTP 服务
func (c *Client) Stop() error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.mu.Lock()
	srv := c.httpServer
	c.mu.Unlock()
	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.config.HTTPServer.Timeout)
	defer cancel()
	return srv.Shutdown(ctx)
}
