package app

import (
	"fmt"
	"runtime"
)

// 构建时注入：-ldflags "-X github.com/lk2023060901/faceview/pkg/app.Version=v1.2.0"
var (
	AppName   = "liveview"
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// Info 构建信息
type Info struct {
	AppName   string `json:"app_name"`
	Version   string `json:"version"`
	GitCommit string `json:"git_commit"`
	BuildDate string `json:"build_date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

// GetInfo 当前二进制的构建信息
func GetInfo() Info {
	return Info{
		AppName:   AppName,
		Version:   Version,
		GitCommit: GitCommit,
		BuildDate: BuildDate,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}

// Fields 结构化日志字段
func (i Info) Fields() []interface{} {
	return []interface{}{
		"version", i.Version,
		"commit", i.GitCommit,
		"build_date", i.BuildDate,
		"go_version", i.GoVersion,
		"platform", i.Platform,
	}
}

// Tags 错误上报标签
func (i Info) Tags() map[string]string {
	return map[string]string{
		"app":     i.AppName,
		"version": i.Version,
		"commit":  i.GitCommit,
	}
}

func (i Info) String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s, %s %s)",
		i.AppName, i.Version, i.GitCommit, i.BuildDate, i.GoVersion, i.Platform)
}
