package app

import (
	"github.com/google/wire"
)

// AppComponents 注入完成后交给 BaseApp 管理生命周期的组件
// Servers 按顺序启动、并发停止；Closers 在所有 Server 停止后逆序关闭
type AppComponents struct {
	Servers []Server
	Closers []Closer
}

// ProviderSet 基础框架的 Wire 提供者
var ProviderSet = wire.NewSet(
	NewBaseApp,
	Assemble,
)

// Assemble 把注入的组件挂到 BaseApp 上
func Assemble(app *BaseApp, comps AppComponents) Application {
	app.AppendServer(comps.Servers...)
	app.AppendCloser(comps.Closers...)
	return app
}
