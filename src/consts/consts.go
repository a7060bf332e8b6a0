package consts

import (
	"fmt"
	"os"
	"runtime"
)

const (
	AppName = "DyLive-go"
)

// 直播间监控状态
const (
	RoomStatusMonitoring = "monitoring" // 正在监控（WebSocket 已连接）
	RoomStatusStopped    = "stopped"    // 已停止
	RoomStatusOffline    = "offline"    // 主播未开播
	RoomStatusWaiting    = "waiting"    // 等待开播（轮询中）
	RoomStatusError      = "error"      // 出错
)

// 监控模式
const (
	MonitorType24h    = "24h"    // 24 小时模式：断开后持续轮询等待开播
	MonitorTypeManual = "manual" // 手动模式：下播或重试耗尽后停止
)

const (
	LiveStatusStart = "start"
	LiveStatusStop  = "stop"
)

// 会话结束原因
const (
	SessionEndStream   = "stream_end" // 主播下播（control status=3）
	SessionEndManual   = "manual"     // 用户手动停止
	SessionEndShutdown = "shutdown"   // 程序退出
	SessionEndStale    = "stale"      // 启动时回收的残留会话
)

type Info struct {
	AppName    string `json:"app_name"`
	AppVersion string `json:"app_version"`
	BuildTime  string `json:"build_time"`
	GitHash    string `json:"git_hash"`
	Pid        int    `json:"pid"`
	Platform   string `json:"platform"`
	GoVersion  string `json:"go_version"`
}

var (
	BuildTime  string
	AppVersion string
	GitHash    string
)

// GetAppInfo 返回应用信息
// 注意：必须使用函数而非变量，因为 AppVersion 等字段是通过 -ldflags 在链接阶段注入的
func GetAppInfo() Info {
	return Info{
		AppName:    AppName,
		AppVersion: AppVersion,
		BuildTime:  BuildTime,
		GitHash:    GitHash,
		Pid:        os.Getpid(),
		Platform:   fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
		GoVersion:  runtime.Version(),
	}
}
