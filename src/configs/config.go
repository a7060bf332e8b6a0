package configs

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dylive-go/dylive-go/src/consts"
)

// RPC info.
type RPC struct {
	Enable bool   `yaml:"enable" json:"enable"`
	Bind   string `yaml:"bind" json:"bind"`
}

var defaultRPC = RPC{
	Enable: true,
	Bind:   ":8080",
}

func (r *RPC) verify() error {
	if r == nil || !r.Enable {
		return nil
	}
	if _, err := net.ResolveTCPAddr("tcp", r.Bind); err != nil {
		return fmt.Errorf("无效的RPC绑定地址: %w", err)
	}
	return nil
}

type Log struct {
	OutPutFolder string `yaml:"out_put_folder" json:"out_put_folder"`
	SaveLastLog  bool   `yaml:"save_last_log" json:"save_last_log"`
	SaveEveryLog bool   `yaml:"save_every_log" json:"save_every_log"`
	// RotateDays 指定按"天"为单位滚动日志时，最多保留的天数（<=0 表示不清理）
	RotateDays int `yaml:"rotate_days" json:"rotate_days"`
}

var defaultLog = Log{
	OutPutFolder: "./",
	SaveLastLog:  true,
	SaveEveryLog: false,
	RotateDays:   7,
}

// Proxy 代理配置
type Proxy struct {
	// Enable 是否启用配置的代理（false 时使用系统环境变量 HTTP_PROXY 等）
	Enable bool `yaml:"enable" json:"enable"`
	// URL 代理地址，支持 http://host:port 或 socks5://host:port
	URL string `yaml:"url" json:"url"`
}

func (p *Proxy) verify() error {
	if p == nil || !p.Enable {
		return nil
	}
	if _, err := url.Parse(p.URL); err != nil {
		return fmt.Errorf("无效的代理地址: %w", err)
	}
	return nil
}

// Database 存储配置
type Database struct {
	Path string `yaml:"path" json:"path"`
}

var defaultDatabase = Database{
	Path: "data/dylive.db",
}

// Douyin 平台接入配置
type Douyin struct {
	// SignScript 签名 JS 脚本路径（包含 get_sign 函数）
	SignScript string `yaml:"sign_script" json:"sign_script"`
	// TTWid 手动指定 ttwid，留空则自动获取
	TTWid     string `yaml:"ttwid" json:"ttwid"`
	UserAgent string `yaml:"user_agent" json:"user_agent"`
}

var defaultDouyin = Douyin{
	SignScript: "sign.js",
	UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
}

// Monitor 连接状态机配置
type Monitor struct {
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval" json:"heartbeat_interval"`
	ReconnectDelay    time.Duration `yaml:"reconnect_delay" json:"reconnect_delay"`
	MaxRetries        int           `yaml:"max_retries" json:"max_retries"`
	PollInterval      time.Duration `yaml:"poll_interval" json:"poll_interval"`
}

var defaultMonitor = Monitor{
	HeartbeatInterval: 5 * time.Second,
	ReconnectDelay:    30 * time.Second,
	MaxRetries:        5,
	PollInterval:      60 * time.Second,
}

func (m *Monitor) verify() error {
	if m.HeartbeatInterval <= 0 || m.ReconnectDelay <= 0 || m.PollInterval <= 0 {
		return errors.New("monitor 时间间隔必须为正")
	}
	if m.MaxRetries < 0 {
		return errors.New("monitor max_retries 不能为负")
	}
	return nil
}

// Scheduler 后台维护任务配置
type Scheduler struct {
	RestartFailedInterval time.Duration `yaml:"restart_failed_interval" json:"restart_failed_interval"`
	StatsSnapshotInterval time.Duration `yaml:"stats_snapshot_interval" json:"stats_snapshot_interval"`
	CleanupInterval       time.Duration `yaml:"cleanup_interval" json:"cleanup_interval"`
	// RetentionDays 历史数据保留天数（<=0 表示不清理）
	RetentionDays int `yaml:"retention_days" json:"retention_days"`
	// AutoStartRooms 启动时自动拉起所有 24h 模式的直播间
	AutoStartRooms bool `yaml:"auto_start_rooms" json:"auto_start_rooms"`
}

var defaultScheduler = Scheduler{
	RestartFailedInterval: 30 * time.Second,
	StatsSnapshotInterval: 60 * time.Second,
	CleanupInterval:       time.Hour,
	RetentionDays:         90,
	AutoStartRooms:        true,
}

// 通知服务所需配置
type Notify struct {
	Email Email `yaml:"email" json:"email"`
}

type Email struct {
	Enable         bool   `yaml:"enable" json:"enable"`
	SMTPHost       string `yaml:"smtpHost" json:"smtpHost"`
	SMTPPort       int    `yaml:"smtpPort" json:"smtpPort"`
	SenderEmail    string `yaml:"senderEmail" json:"senderEmail"`
	SenderPassword string `yaml:"senderPassword" json:"senderPassword"`
	RecipientEmail string `yaml:"recipientEmail" json:"recipientEmail"`
}

type Sentry struct {
	Enable bool `yaml:"enable" json:"enable"`
}

// LiveRoom 配置文件中声明的直播间
type LiveRoom struct {
	LiveID        string `yaml:"live_id" json:"live_id"`
	MonitorType   string `yaml:"monitor_type" json:"monitor_type"`
	AutoReconnect bool   `yaml:"auto_reconnect" json:"auto_reconnect"`
}

func (l *LiveRoom) verify() error {
	if l.LiveID == "" {
		return errors.New("live_id 不能为空")
	}
	switch l.MonitorType {
	case "", consts.MonitorType24h, consts.MonitorTypeManual:
	default:
		return fmt.Errorf("未知的 monitor_type: %s", l.MonitorType)
	}
	return nil
}

// Config content all config info.
type Config struct {
	File    string `yaml:"-" json:"-"`
	RPC     RPC    `yaml:"rpc" json:"rpc"`
	Debug   bool   `yaml:"debug" json:"debug"`
	Version int64  `yaml:"-" json:"-"` // 内部版本号，仅用于乐观并发控制

	Log       Log       `yaml:"log" json:"log"`
	Database  Database  `yaml:"database" json:"database"`
	Douyin    Douyin    `yaml:"douyin" json:"douyin"`
	Monitor   Monitor   `yaml:"monitor" json:"monitor"`
	Scheduler Scheduler `yaml:"scheduler" json:"scheduler"`
	Proxy     Proxy     `yaml:"proxy" json:"proxy"`
	Notify    Notify    `yaml:"notify" json:"notify"`
	Sentry    Sentry    `yaml:"sentry" json:"sentry"`

	// 直播间列表
	LiveRooms []LiveRoom `yaml:"live_rooms" json:"live_rooms"`
}

func NewConfig() *Config {
	return &Config{
		RPC:       defaultRPC,
		Log:       defaultLog,
		Database:  defaultDatabase,
		Douyin:    defaultDouyin,
		Monitor:   defaultMonitor,
		Scheduler: defaultScheduler,
	}
}

func NewConfigWithBytes(b []byte) (*Config, error) {
	config := NewConfig()
	if err := yaml.Unmarshal(b, config); err != nil {
		return nil, err
	}
	return config, nil
}

func NewConfigWithFile(file string) (*Config, error) {
	b, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %s", file)
	}
	config, err := NewConfigWithBytes(b)
	if err != nil {
		return nil, err
	}
	config.File = file
	return config, nil
}

func (c *Config) Verify() error {
	if c == nil {
		return errors.New("config is nil")
	}
	if err := c.RPC.verify(); err != nil {
		return err
	}
	if err := c.Proxy.verify(); err != nil {
		return err
	}
	if err := c.Monitor.verify(); err != nil {
		return err
	}
	for i := range c.LiveRooms {
		if err := c.LiveRooms[i].verify(); err != nil {
			return err
		}
	}
	return nil
}

// Marshal 将当前配置持久化回配置文件
func (c *Config) Marshal() error {
	if c.File == "" {
		return errors.New("config path not set")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(c.File, b, os.ModePerm)
}

// ApplyEnvOverrides 以环境变量覆盖部分配置项（需先由 godotenv 加载 .env）
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("DYLIVE_BIND"); v != "" {
		c.RPC.Bind = v
	}
	if v := os.Getenv("DYLIVE_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("DYLIVE_PROXY_URL"); v != "" {
		c.Proxy.Enable = true
		c.Proxy.URL = v
	}
	if v := os.Getenv("DYLIVE_TTWID"); v != "" {
		c.Douyin.TTWid = v
	}
	if v := os.Getenv("DYLIVE_SIGN_SCRIPT"); v != "" {
		c.Douyin.SignScript = v
	}
	if v := os.Getenv("DYLIVE_RETENTION_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Scheduler.RetentionDays = n
		}
	}
	if v := os.Getenv("DYLIVE_DEBUG"); v != "" {
		c.Debug = v == "1" || v == "true"
	}
}

// 使用 atomic.Value 存放当前配置指针，避免并发读写造成 data race
var config atomic.Value // stores *Config

// 单独的 Debug 原子标志，便于高频读取
var currentDebug atomic.Bool

// 序列化所有 Update 操作，避免并发更新造成的丢写问题
var updateMu sync.Mutex

func SetCurrentConfig(cfg *Config) {
	if cfg == nil {
		config.Store((*Config)(nil))
		currentDebug.Store(false)
		return
	}
	config.Store(cfg)
	currentDebug.Store(cfg.Debug)
}

func GetCurrentConfig() *Config {
	v := config.Load()
	if v == nil {
		return nil
	}
	return v.(*Config)
}

// IsDebug 提供并发安全、低开销的 Debug 值读取
func IsDebug() bool {
	return currentDebug.Load()
}

// ProxyFunc 供 http.Transport 和 websocket.Dialer 使用的代理函数。
// 每次建连时读取最新配置，代理更新后新发起的连接立即生效，
// 已建立的连接不受影响。
func ProxyFunc(*http.Request) (*url.URL, error) {
	cfg := GetCurrentConfig()
	if cfg == nil || !cfg.Proxy.Enable || cfg.Proxy.URL == "" {
		return nil, nil
	}
	return url.Parse(cfg.Proxy.URL)
}

// Update 采用“复制-更新-原子替换”模式安全更新全局配置，并持久化到文件。
// 传入的 mutator 只能对函数参数 c 进行修改，不要持有 c 的指针做异步修改。
func Update(mutator func(c *Config) error) (*Config, error) {
	return updateImpl(mutator, true)
}

// UpdateTransient 与 Update 类似，但不进行文件持久化，仅更新内存配置。
func UpdateTransient(mutator func(c *Config) error) (*Config, error) {
	return updateImpl(mutator, false)
}

func updateImpl(mutator func(c *Config) error, persist bool) (*Config, error) {
	updateMu.Lock()
	defer updateMu.Unlock()
	old := GetCurrentConfig()
	var base *Config
	if old == nil {
		base = NewConfig()
	} else {
		cloned := *old
		cloned.LiveRooms = append([]LiveRoom(nil), old.LiveRooms...)
		base = &cloned
	}
	if err := mutator(base); err != nil {
		return nil, err
	}
	if old == nil {
		base.Version = 1
	} else {
		base.Version = old.Version + 1
	}
	if persist && base.File != "" {
		if err := base.Marshal(); err != nil {
			return nil, fmt.Errorf("failed to save config: %w", err)
		}
	}
	SetCurrentConfig(base)
	return base, nil
}

// GetLiveRoom 在配置中查找直播间
func (c *Config) GetLiveRoom(liveID string) (*LiveRoom, error) {
	for i := range c.LiveRooms {
		if c.LiveRooms[i].LiveID == liveID {
			return &c.LiveRooms[i], nil
		}
	}
	return nil, fmt.Errorf("live room %s not found", liveID)
}
