package main

import (
	"net/http"
	"strconv"

	"github.com/lk2023060901/faceview/app/liveview/internal/authclient"
	"github.com/lk2023060901/faceview/app/liveview/internal/authz"
	"github.com/lk2023060901/faceview/app/liveview/internal/catalog"
	"github.com/lk2023060901/faceview/app/liveview/internal/rest"
	"github.com/lk2023060901/faceview/app/liveview/internal/revalidate"
	"github.com/lk2023060901/faceview/app/liveview/internal/session"
	"github.com/lk2023060901/faceview/app/liveview/internal/slot"
	"github.com/lk2023060901/faceview/pkg/app"
	"github.com/lk2023060901/faceview/pkg/logger"
	"github.com/lk2023060901/faceview/pkg/prometheus"
	"github.com/lk2023060901/faceview/pkg/security"
	"github.com/lk2023060901/faceview/pkg/sentry"
	"github.com/lk2023060901/faceview/pkg/websocket"
)

// application 应用本体加上热更新需要的管理器
type application struct {
	app.Application
	manager *session.Manager
}

func provideApplication(a app.Application, m *session.Manager) *application {
	return &application{Application: a, manager: m}
}

// provideLoggers loggers.<component> 配置的组件使用独立日志，其余从主日志派生
func provideLoggers(cfg *Config, l logger.Logger) (*app.LoggerRegistry, error) {
	return app.NewLoggerRegistry(l, cfg.Loggers)
}

func provideAuthContext(cfg *Config, loggers *app.LoggerRegistry) (*authz.Context, error) {
	strategy, err := authz.NewStrategy(cfg.Auth.Transport)
	if err != nil {
		return nil, err
	}
	return authz.NewContext(strategy, authz.WithLogger(loggers.For("authz"))), nil
}

func provideRESTClient(cfg *Config, auth *authz.Context, jar http.CookieJar, loggers *app.LoggerRegistry) (*rest.Client, error) {
	return rest.New(&cfg.Server, auth, rest.WithCookieJar(jar), rest.WithLogger(loggers.For("rest")))
}

func provideJWTManager(cfg *Config) (*security.JWTManager, error) {
	return security.NewJWTManager(&cfg.Auth.JWT)
}

func provideAuthClient(rc *rest.Client, tokens *security.JWTManager, loggers *app.LoggerRegistry) *authclient.Client {
	return authclient.New(rc, tokens, authclient.WithLogger(loggers.For("authclient")))
}

func provideCatalog(cfg *Config, rc *rest.Client, loggers *app.LoggerRegistry) (*catalog.Catalog, func(), error) {
	c, err := catalog.New(&cfg.Catalog, rc, catalog.WithLogger(loggers.For("catalog")))
	if err != nil {
		return nil, nil, err
	}
	return c, c.Close, nil
}

func provideDialer(cfg *Config, jar http.CookieJar, loggers *app.LoggerRegistry) (*websocket.GorillaDialer, error) {
	return websocket.NewDialer(&cfg.Stream.WebSocket,
		websocket.WithCookieJar(jar),
		websocket.WithDialerLogger(loggers.For("websocket")),
	)
}

func providePrometheus(cfg *Config, loggers *app.LoggerRegistry) (*prometheus.Client, error) {
	return prometheus.New(&cfg.Metrics, loggers.For("metrics"))
}

func provideClientMetrics(p *prometheus.Client) *websocket.ClientMetrics {
	return websocket.NewClientMetrics(p.Registry(), p.Namespace())
}

// provideSentry 构建信息作为默认标签，配置中的同名标签优先
func provideSentry(cfg *Config, loggers *app.LoggerRegistry) (*sentry.Client, error) {
	sc := cfg.Sentry
	sc.Tags = app.GetInfo().Tags()
	for k, v := range cfg.Sentry.Tags {
		sc.Tags[k] = v
	}
	return sentry.New(&sc, sentry.WithLogger(loggers.For("sentry")))
}

// provideFailureReporter 画面进入 Failed 时上报 Sentry
func provideFailureReporter(s *sentry.Client) func(error, slot.Snapshot) {
	return func(err error, snap slot.Snapshot) {
		s.CaptureError(err,
			map[string]string{
				"slot":      strconv.Itoa(snap.ID),
				"camera_id": snap.CameraID,
				"kind":      string(slot.KindOf(err)),
			},
			map[string]interface{}{
				"retry_count": snap.RetryCount,
				"generation":  snap.Generation,
			},
		)
	}
}

func provideManager(
	cfg *Config,
	auth *authz.Context,
	cat *catalog.Catalog,
	dialer *websocket.GorillaDialer,
	metrics *websocket.ClientMetrics,
	reporter func(error, slot.Snapshot),
	loggers *app.LoggerRegistry,
) (*session.Manager, func(), error) {
	m, err := session.New(&cfg.Session, auth, cat, dialer,
		session.WithLogger(loggers.For("session")),
		session.WithSlotConfig(&cfg.Stream.Config),
		session.WithMetrics(metrics),
		session.WithFailureReporter(reporter),
	)
	if err != nil {
		return nil, nil, err
	}
	return m, m.Close, nil
}

func provideRevalidateJob(cfg *Config, client *authclient.Client, loggers *app.LoggerRegistry) (*revalidate.Job, error) {
	return revalidate.New(&cfg.Revalidate, client, revalidate.WithLogger(loggers.For("revalidate")))
}

func provideAppOptions(l logger.Logger, loggers *app.LoggerRegistry) []app.Option {
	return []app.Option{
		app.WithName(app.AppName),
		app.WithLogger(l),
		app.WithLoggerRegistry(loggers),
	}
}

func provideAppComponents(metrics *prometheus.Client, lv *liveView, s *sentry.Client) app.AppComponents {
	return app.AppComponents{
		Servers: []app.Server{metrics, lv},
		Closers: []app.Closer{s},
	}
}
