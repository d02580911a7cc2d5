//go:build wireinject
// +build wireinject

package main

import (
	"github.com/google/wire"
	"github.com/lk2023060901/faceview/app/liveview/internal/authclient"
	"github.com/lk2023060901/faceview/pkg/app"
	"github.com/lk2023060901/faceview/pkg/logger"
)

func InitApp(cfg *Config, l logger.Logger) (*application, func(), error) {
	panic(wire.Build(
		// 1. 基础框架
		app.ProviderSet,
		provideLoggers,
		provideAppOptions,

		// 2. 鉴权
		authclient.NewCookieJar,
		provideAuthContext,
		provideRESTClient,
		provideJWTManager,
		provideAuthClient,

		// 3. 摄像头目录与推流
		provideCatalog,
		provideDialer,

		// 4. 指标与错误上报
		providePrometheus,
		provideClientMetrics,
		provideSentry,
		provideFailureReporter,

		// 5. 会话
		provideManager,
		provideRevalidateJob,
		newLiveView,

		// 6. 组装
		provideAppComponents,
		provideApplication,
	))
}
