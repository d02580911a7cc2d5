package app

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/lk2023060901/faceview/pkg/config"
	"github.com/lk2023060901/faceview/pkg/logger"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	calls []string
}

func (r *recorder) add(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, s)
}

func (r *recorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

type fakeServer struct {
	name     string
	rec      *recorder
	startErr error
}

func (s *fakeServer) Start() error {
	s.rec.add("start:" + s.name)
	return s.startErr
}

func (s *fakeServer) Stop() error {
	s.rec.add("stop:" + s.name)
	return nil
}

type fakeCloser struct {
	name string
	rec  *recorder
}

func (c *fakeCloser) Close() error {
	c.rec.add("close:" + c.name)
	return nil
}

func TestRunUntilStop(t *testing.T) {
	rec := &recorder{}
	a := NewBaseApp(WithName("test"), WithLogger(logger.NewNoop()), WithStopTimeout(time.Second))
	a.AppendServer(&fakeServer{name: "metrics", rec: rec})
	a.AppendCloser(&fakeCloser{name: "first", rec: rec}, &fakeCloser{name: "second", rec: rec})

	done := make(chan error, 1)
	go func() { done <- a.Run() }()
	require.Eventually(t, func() bool { return len(rec.all()) == 1 }, time.Second, 5*time.Millisecond)

	a.Stop()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}

	assert.Equal(t, []string{"start:metrics", "stop:metrics", "close:second", "close:first"}, rec.all())
	assert.Error(t, a.Context().Err())
	assert.True(t, errors.Is(a.Run(), ErrAppAlreadyRunning))
	require.NoError(t, a.Shutdown())
}

func TestRunStartFailure(t *testing.T) {
	rec := &recorder{}
	a := NewBaseApp(WithLogger(logger.NewNoop()), WithStopTimeout(time.Second))
	a.AppendServer(&fakeServer{name: "session", rec: rec, startErr: errors.New("login failed")})
	a.AppendCloser(&fakeCloser{name: "pool", rec: rec})

	err := a.Run()
	require.Error(t, err)
	assert.Contains(t, rec.all(), "close:pool")
}

type fileConfig struct {
	Log     logger.Config `mapstructure:"log"`
	Session struct {
		Layout string `mapstructure:"layout"`
	} `mapstructure:"session"`
	Stream struct {
		ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	} `mapstructure:"stream"`
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "liveview.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigArgs(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
session:
  layout: split
stream:
  connect_timeout: 3s
`)
	logFile := filepath.Join(t.TempDir(), "logs", "out.log")
	t.Setenv("FACEVIEW_SESSION_LAYOUT", "quad")

	var cfg fileConfig
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	mgr, err := LoadConfigArgs(fs, []string{"-c", path, "--log.path", logFile}, &cfg)
	require.NoError(t, err)

	assert.Equal(t, path, GetConfigPath())
	assert.Equal(t, path, mgr.ConfigFile())
	assert.Equal(t, logger.DebugLevel, cfg.Log.Level)
	assert.Equal(t, "quad", cfg.Session.Layout)
	assert.Equal(t, 3*time.Second, cfg.Stream.ConnectTimeout)
	assert.Equal(t, logFile, cfg.Log.OutputPath)
	assert.True(t, cfg.Log.EnableFile)
	assert.DirExists(t, filepath.Dir(logFile))
}

func TestLoadConfigArgsMissingFile(t *testing.T) {
	var cfg fileConfig
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	_, err := LoadConfigArgs(fs, []string{"--config", filepath.Join(t.TempDir(), "nope.yaml")}, &cfg)
	assert.True(t, errors.Is(err, config.ErrConfigFileNotFound))
}

func TestLoggerRegistry(t *testing.T) {
	reg, err := NewLoggerRegistry(logger.NewNoop(), map[string]*logger.Config{
		"session": {Level: logger.DebugLevel},
		"authz":   {Level: logger.WarnLevel},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"authz", "session"}, reg.Configured())

	session := reg.For("session")
	assert.Same(t, session, reg.For("session"))
	_, isBase := session.(*logger.BaseLogger)
	assert.True(t, isBase)

	derived := reg.For("catalog")
	assert.Same(t, derived, reg.For("catalog"))
	assert.Equal(t, []string{"authz", "session"}, reg.Configured())
	reg.SyncAll()

	a := NewBaseApp(WithLogger(logger.NewNoop()), WithLoggerRegistry(reg))
	assert.Same(t, session, a.Logger("session"))
}

func TestLoggerRegistryInvalidConfig(t *testing.T) {
	_, err := NewLoggerRegistry(nil, map[string]*logger.Config{
		"session": {EnableFile: true},
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, logger.ErrInvalidOutputPath))
	assert.Contains(t, err.Error(), `logger "session"`)
}

func TestInfoFields(t *testing.T) {
	info := GetInfo()
	fields := info.Fields()
	require.Len(t, fields, 10)
	assert.Equal(t, "version", fields[0])
	assert.Equal(t, info.Version, fields[1])
	assert.Equal(t, AppName, info.Tags()["app"])
	assert.Contains(t, info.String(), info.Platform)
}
