package app

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/faceview/pkg/config"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix 环境变量前缀，FACEVIEW_STREAM_CONNECT_TIMEOUT -> stream.connect_timeout
const EnvPrefix = "FACEVIEW"

var (
	configPath string
	logPath    string
)

// LoadConfig 使用进程命令行加载配置，见 LoadConfigArgs
func LoadConfig(target any, opts ...config.Option) (config.Manager, error) {
	return LoadConfigArgs(pflag.CommandLine, os.Args[1:], target, opts...)
}

// LoadConfigArgs 集成 pkg/config 提供统一加载能力
// 严格遵守优先级：1. 命令行显式参数 > 2. 环境变量 > 3. 配置文件 > 4. 默认值
// 返回的 Manager 可继续用于热更新监听
func LoadConfigArgs(fs *pflag.FlagSet, args []string, target any, opts ...config.Option) (config.Manager, error) {
	execDir, err := GetExecDir()
	if err != nil {
		return nil, errors.Wrap(err, "get executable directory")
	}

	defaultConfig := filepath.Join(execDir, "config.yaml")
	defaultLog := filepath.Join(execDir, "logs", "liveview.log")

	if fs.Lookup("config") == nil {
		fs.StringVarP(&configPath, "config", "c", defaultConfig, "path to config file")
	}
	if fs.Lookup("log.path") == nil {
		fs.StringVar(&logPath, "log.path", defaultLog, "output path for logs")
	}
	if !fs.Parsed() {
		if err := fs.Parse(args); err != nil {
			return nil, errors.Wrap(err, "parse flags")
		}
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))

	// 优先级：Flag 显式指定 > 环境变量 FACEVIEW_CONFIG > 默认物理路径
	finalConfigPath := configPath
	if !fs.Changed("config") {
		if envConfig := os.Getenv(EnvPrefix + "_CONFIG"); envConfig != "" {
			finalConfigPath = envConfig
		}
	}
	if _, err := os.Stat(finalConfigPath); os.IsNotExist(err) {
		return nil, errors.Wrapf(config.ErrConfigFileNotFound, "%s", finalConfigPath)
	}
	configPath = finalConfigPath

	// --log.path 显式指定时覆盖所有来源
	if fs.Changed("log.path") {
		v.Set("log.output_path", logPath)
		v.Set("log.enable_file", true)
	}

	mgr := config.NewManager(append(opts, config.WithViper(v))...)
	if err := mgr.LoadFile(configPath); err != nil {
		return nil, err
	}
	// 结构体校验留给调用方，在合并默认值之后进行
	if err := mgr.Unmarshal(target); err != nil {
		return nil, err
	}

	// 开启文件日志时提前创建目录
	if v.GetBool("log.enable_file") {
		logPath = v.GetString("log.output_path")
		if logPath != "" {
			if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
				return nil, errors.Wrap(err, "create log directory")
			}
		}
	}
	return mgr, nil
}

// GetExecDir 获取可执行文件所在目录（处理符号链接）
func GetExecDir() (string, error) {
	execPath, err := os.Executable()
	if err != nil {
		return "", err
	}
	realPath, err := filepath.EvalSymlinks(execPath)
	if err != nil {
		return filepath.Dir(execPath), nil
	}
	return filepath.Dir(realPath), nil
}

// GetConfigPath 返回最终使用的配置文件路径
func GetConfigPath() string {
	return configPath
}

// GetLogPath 返回最终生效的日志路径
func GetLogPath() string {
	return logPath
}
