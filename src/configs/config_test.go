package configs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dylive-go/dylive-go/src/consts"
)

func TestNewConfigWithBytes(t *testing.T) {
	cfg, err := NewConfigWithBytes([]byte(`
rpc:
  enable: true
  bind: ":9090"
douyin:
  ttwid: "1%7CfPx"
monitor:
  max_retries: 3
live_rooms:
  - live_id: "168465302284"
    monitor_type: "24h"
    auto_reconnect: true
  - live_id: "745964462470"
    monitor_type: "manual"
`))
	require.NoError(t, err)
	require.NoError(t, cfg.Verify())

	assert.Equal(t, ":9090", cfg.RPC.Bind)
	assert.Equal(t, "1%7CfPx", cfg.Douyin.TTWid)
	assert.Equal(t, 3, cfg.Monitor.MaxRetries)
	// 未覆盖的项保留默认值
	assert.Equal(t, 5*time.Second, cfg.Monitor.HeartbeatInterval)
	assert.Equal(t, "data/dylive.db", cfg.Database.Path)
	require.Len(t, cfg.LiveRooms, 2)
	assert.Equal(t, consts.MonitorTypeManual, cfg.LiveRooms[1].MonitorType)
}

func TestVerifyErrors(t *testing.T) {
	t.Run("非法的绑定地址", func(t *testing.T) {
		cfg := NewConfig()
		cfg.RPC.Bind = "bad-address"
		assert.Error(t, cfg.Verify())
	})

	t.Run("心跳间隔必须为正", func(t *testing.T) {
		cfg := NewConfig()
		cfg.Monitor.HeartbeatInterval = 0
		assert.Error(t, cfg.Verify())
	})

	t.Run("live_id 不能为空", func(t *testing.T) {
		cfg := NewConfig()
		cfg.LiveRooms = []LiveRoom{{LiveID: ""}}
		assert.Error(t, cfg.Verify())
	})

	t.Run("未知的 monitor_type", func(t *testing.T) {
		cfg := NewConfig()
		cfg.LiveRooms = []LiveRoom{{LiveID: "1", MonitorType: "hourly"}}
		assert.Error(t, cfg.Verify())
	})
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("DYLIVE_BIND", ":7070")
	t.Setenv("DYLIVE_PROXY_URL", "socks5://127.0.0.1:1080")
	t.Setenv("DYLIVE_RETENTION_DAYS", "30")
	t.Setenv("DYLIVE_DEBUG", "true")

	cfg := NewConfig()
	cfg.ApplyEnvOverrides()

	assert.Equal(t, ":7070", cfg.RPC.Bind)
	assert.True(t, cfg.Proxy.Enable)
	assert.Equal(t, "socks5://127.0.0.1:1080", cfg.Proxy.URL)
	assert.Equal(t, 30, cfg.Scheduler.RetentionDays)
	assert.True(t, cfg.Debug)
}

func TestUpdateVersioning(t *testing.T) {
	SetCurrentConfig(NewConfig())

	updated, err := Update(func(c *Config) error {
		c.Douyin.TTWid = "tw-1"
		return nil
	})
	require.NoError(t, err)
	assert.Positive(t, updated.Version)
	assert.Equal(t, "tw-1", GetCurrentConfig().Douyin.TTWid)

	first := updated.Version
	updated, err = Update(func(c *Config) error {
		c.Douyin.TTWid = "tw-2"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, first+1, updated.Version)
	assert.Equal(t, "tw-2", GetCurrentConfig().Douyin.TTWid)
}

func TestUpdatePersistsToFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "config.yml")
	cfg := NewConfig()
	cfg.File = file
	SetCurrentConfig(cfg)

	_, err := Update(func(c *Config) error {
		c.RPC.Bind = ":6060"
		return nil
	})
	require.NoError(t, err)

	b, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Contains(t, string(b), ":6060")

	reloaded, err := NewConfigWithFile(file)
	require.NoError(t, err)
	assert.Equal(t, ":6060", reloaded.RPC.Bind)
}

func TestIsDebugTracksCurrentConfig(t *testing.T) {
	cfg := NewConfig()
	cfg.Debug = true
	SetCurrentConfig(cfg)
	assert.True(t, IsDebug())

	SetCurrentConfig(NewConfig())
	assert.False(t, IsDebug())
}

func TestProxyFuncTracksCurrentConfig(t *testing.T) {
	SetCurrentConfig(NewConfig())

	u, err := ProxyFunc(nil)
	require.NoError(t, err)
	assert.Nil(t, u)

	// 运行期更新代理后，后续建连立即拿到新地址
	_, err = UpdateTransient(func(c *Config) error {
		c.Proxy.Enable = true
		c.Proxy.URL = "socks5://127.0.0.1:1080"
		return nil
	})
	require.NoError(t, err)

	u, err = ProxyFunc(nil)
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "socks5://127.0.0.1:1080", u.String())

	_, err = UpdateTransient(func(c *Config) error {
		c.Proxy.Enable = false
		return nil
	})
	require.NoError(t, err)

	u, err = ProxyFunc(nil)
	require.NoError(t, err)
	assert.Nil(t, u)
}
