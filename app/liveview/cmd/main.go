package main

import (
	"fmt"
	"os"

	"github.com/lk2023060901/faceview/app/liveview/internal/session"
	"github.com/lk2023060901/faceview/pkg/app"
	"github.com/lk2023060901/faceview/pkg/config"
	"github.com/lk2023060901/faceview/pkg/logger"
	"github.com/lk2023060901/faceview/pkg/websocket"
)

func main() {
	os.Exit(run())
}

func run() int {
	var cfg Config

	// 1. 加载配置
	mgr, err := app.LoadConfig(&cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}
	if err := cfg.applyDefaults(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to apply defaults: %v\n", err)
		return 1
	}
	if err := cfg.validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		return 1
	}

	// 2. 初始化主日志
	l, err := logger.New(&cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		return 1
	}
	logger.SetDefault(l)

	// 3. 通过 Wire 初始化应用
	application, cleanup, err := InitApp(&cfg, l)
	if err != nil {
		l.Error("failed to initialize application", "error", err)
		return 1
	}
	defer cleanup()

	// 4. 重连策略热更新
	if err := watchReconnect(mgr, application.manager, l); err != nil {
		l.Warn("config hot reload disabled", "error", err)
	}

	// 5. 运行直到收到退出信号
	if err := application.Run(); err != nil {
		l.Error("application exited with error", "error", err)
		return 1
	}
	return 0
}

// watchReconnect 配置文件中 stream.reconnect 变化后更新所有画面的重连策略
func watchReconnect(mgr config.Manager, m *session.Manager, l logger.Logger) error {
	v, err := config.NewValidator()
	if err != nil {
		return err
	}
	return config.WatchKey(mgr, "stream.reconnect", reloadReconnect(v, m.SetReconnectPolicy, l))
}

// reloadReconnect 校验规则与启动时相同，非法的新策略被忽略
func reloadReconnect(v *config.Validator, apply func(websocket.ReconnectConfig), l logger.Logger) func(*websocket.ReconnectConfig, error) {
	return func(rc *websocket.ReconnectConfig, err error) {
		if err != nil {
			l.Warn("reload reconnect policy failed, keeping current", "error", err)
			return
		}
		if err := v.Validate(rc); err != nil {
			l.Warn("invalid reconnect policy ignored", "error", err)
			return
		}
		l.Info("reconnect policy reloaded",
			"max_retries", rc.MaxRetries,
			"backoff_unit", rc.BackoffUnit,
			"max_backoff", rc.MaxBackoff,
		)
		apply(*rc)
	}
}
