// Package douyin 封装抖音直播的平台接入：直播间解析、开播状态探测、
// WebSocket 地址构造与签名。
package douyin

import (
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"github.com/bluele/gcache"
	"github.com/hr3lxphr6j/requests"
	"github.com/tidwall/gjson"

	"github.com/dylive-go/dylive-go/src/configs"
	applog "github.com/dylive-go/dylive-go/src/log"
)

const (
	liveBaseURL  = "https://live.douyin.com/"
	enterAPIURL  = "https://live.douyin.com/webcast/room/web/enter/"
	ttwidTTL     = 10 * time.Minute
	ttwidKey     = "ttwid"
	roomIDPrefix = "room_id:"
)

// 房间页内嵌 JSON 中的 roomId 字段
var roomIDPattern = regexp.MustCompile(`roomId\\":\\"(\d+)\\"`)

// room_status 语义：0 直播进行中，2 直播已结束
const (
	roomStatusLive  = 0
	roomStatusEnded = 2
)

var (
	ErrRoomIDNotFound = errors.New("roomId not found in page, 直播间可能已结束")
	ErrTTWidNotFound  = errors.New("ttwid cookie not present in response")
)

// RoomInfo 开播状态探测结果
type RoomInfo struct {
	LiveID     string
	RoomID     string
	IsLive     bool
	RoomStatus int64
	Title      string
	AnchorName string
	AnchorID   string
}

// Resolver 把 live_id 解析成 room_id 并探测开播状态。
// room_id 在进程生命周期内缓存，ttwid 带 TTL 定期刷新
type Resolver struct {
	session   *requests.Session
	cache     gcache.Cache
	userAgent string
	// manualTTWid 配置显式指定的 ttwid，留空则自动获取
	manualTTWid string
}

// NewResolver 构造 Resolver，代理在每次请求时从当前配置读取。
// cache 传 nil 时自建缓存
func NewResolver(cfg *configs.Config, cache gcache.Cache) *Resolver {
	client := &http.Client{
		Timeout:   15 * time.Second,
		Transport: &http.Transport{Proxy: configs.ProxyFunc},
	}
	if cache == nil {
		cache = gcache.New(256).LRU().Build()
	}
	return &Resolver{
		session:     requests.NewSession(client),
		cache:       cache,
		userAgent:   cfg.Douyin.UserAgent,
		manualTTWid: cfg.Douyin.TTWid,
	}
}

// TTWid 返回平台要求的 ttwid cookie
// 访问直播首页可以从响应 cookie 中拿到，结果缓存
func (r *Resolver) TTWid() (string, error) {
	if r.manualTTWid != "" {
		return r.manualTTWid, nil
	}
	if v, err := r.cache.Get(ttwidKey); err == nil {
		return v.(string), nil
	}
	resp, err := r.session.Get(liveBaseURL, requests.UserAgent(r.userAgent))
	if err != nil {
		return "", err
	}
	for _, cookie := range resp.Cookies() {
		if cookie.Name == "ttwid" {
			_ = r.cache.SetWithExpire(ttwidKey, cookie.Value, ttwidTTL)
			return cookie.Value, nil
		}
	}
	return "", ErrTTWidNotFound
}

// ResolveRoomID 把 live_id 解析为数字 room_id
// 通过拉取房间页并匹配内嵌 JSON 实现，偶发失败可重试
func (r *Resolver) ResolveRoomID(liveID string) (string, error) {
	if v, err := r.cache.Get(roomIDPrefix + liveID); err == nil {
		return v.(string), nil
	}
	ttwid, err := r.TTWid()
	if err != nil {
		return "", &RoomResolutionError{LiveID: liveID, Err: err}
	}
	resp, err := r.session.Get(
		liveBaseURL+liveID,
		requests.UserAgent(r.userAgent),
		requests.Cookies(map[string]string{
			"ttwid":      ttwid,
			"msToken":    GenerateMsToken(0),
			"__ac_nonce": "0123407cc00a9e438deb4",
		}),
	)
	if err != nil {
		return "", &RoomResolutionError{LiveID: liveID, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &RoomResolutionError{LiveID: liveID, Err: fmt.Errorf("room page returned %d", resp.StatusCode)}
	}
	body, err := resp.Text()
	if err != nil {
		return "", &RoomResolutionError{LiveID: liveID, Err: err}
	}
	roomID, err := ExtractRoomID(body)
	if err != nil {
		return "", &RoomResolutionError{LiveID: liveID, Err: err}
	}
	// room_id 与 live_id 的对应关系不变，进程内不过期，LRU 淘汰兜底
	_ = r.cache.Set(roomIDPrefix+liveID, roomID)
	return roomID, nil
}

// ExtractRoomID 从房间页 HTML 中提取 roomId
func ExtractRoomID(body string) (string, error) {
	match := roomIDPattern.FindStringSubmatch(body)
	if match == nil {
		return "", ErrRoomIDNotFound
	}
	return match[1], nil
}

// RoomStatus 通过 enter API 探测开播状态，并顺带取主播信息
func (r *Resolver) RoomStatus(liveID string) (*RoomInfo, error) {
	roomID, err := r.ResolveRoomID(liveID)
	if err != nil {
		return nil, err
	}
	ttwid, err := r.TTWid()
	if err != nil {
		return nil, &RoomResolutionError{LiveID: liveID, Err: err}
	}

	resp, err := r.session.Get(
		enterAPIURL,
		requests.UserAgent(r.userAgent),
		requests.Query("aid", "6383"),
		requests.Query("app_name", "douyin_web"),
		requests.Query("live_id", "1"),
		requests.Query("device_platform", "web"),
		requests.Query("language", "zh-CN"),
		requests.Query("enter_from", "page_refresh"),
		requests.Query("cookie_enabled", "true"),
		requests.Query("screen_width", "5120"),
		requests.Query("screen_height", "1440"),
		requests.Query("browser_language", "zh-CN"),
		requests.Query("browser_platform", "Win32"),
		requests.Query("browser_name", "Edge"),
		requests.Query("browser_version", "140.0.0.0"),
		requests.Query("web_rid", liveID),
		requests.Query("room_id_str", roomID),
		requests.Query("msToken", GenerateMsToken(0)),
		requests.Cookies(map[string]string{"ttwid": ttwid}),
	)
	if err != nil {
		return nil, &RoomResolutionError{LiveID: liveID, Err: err}
	}
	body, err := resp.Bytes()
	if err != nil || len(body) == 0 {
		return nil, &RoomResolutionError{LiveID: liveID, Err: errors.New("enter api returned empty response")}
	}

	data := gjson.GetBytes(body, "data")
	if !data.Exists() {
		return nil, &RoomResolutionError{LiveID: liveID, Err: errors.New("enter api response missing data")}
	}
	status := data.Get("room_status")
	if !status.Exists() {
		return nil, &RoomResolutionError{LiveID: liveID, Err: errors.New("enter api response missing room_status")}
	}

	info := &RoomInfo{
		LiveID:     liveID,
		RoomID:     roomID,
		RoomStatus: status.Int(),
		IsLive:     status.Int() == roomStatusLive,
		Title:      data.Get("data.0.title").String(),
		AnchorName: data.Get("user.nickname").String(),
		AnchorID:   data.Get("user.id_str").String(),
	}
	applog.WithFields(map[string]interface{}{
		"live_id": liveID,
		"room_id": roomID,
		"is_live": info.IsLive,
	}).Debug("room status probed")
	return info, nil
}
