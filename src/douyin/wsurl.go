package douyin

import (
	"fmt"
	"net/url"
)

const (
	wsEndpoint = "wss://webcast100-ws-web-lq.douyin.com/webcast/im/push/v2/"

	appName           = "douyin_web"
	versionCode       = "180800"
	webcastSDKVersion = "1.0.14-beta.0"
	aid               = "6383"
)

// BuildWSURL 构造推送通道的连接地址
// 参数顺序与浏览器端一致，signature 由调用方签名后追加
func BuildWSURL(roomID, userUniqueID, cursor, internalExt string) string {
	if internalExt == "" {
		internalExt = fmt.Sprintf(
			"internal_src:dim|wss_push_room_id:%s|wss_push_did:%s|first_req_ms:0|fetch_time:0|seq:1|wss_info:0-0-0-0",
			roomID, userUniqueID,
		)
	}
	q := url.Values{}
	q.Set("app_name", appName)
	q.Set("version_code", versionCode)
	q.Set("webcast_sdk_version", webcastSDKVersion)
	q.Set("update_version_code", webcastSDKVersion)
	q.Set("compress", "gzip")
	q.Set("device_platform", "web")
	q.Set("cookie_enabled", "true")
	q.Set("screen_width", "1536")
	q.Set("screen_height", "864")
	q.Set("browser_language", "zh-CN")
	q.Set("browser_platform", "Win32")
	q.Set("browser_name", "Mozilla")
	q.Set("browser_online", "true")
	q.Set("tz_name", "Asia/Shanghai")
	q.Set("cursor", cursor)
	q.Set("internal_ext", internalExt)
	q.Set("host", "https://live.douyin.com")
	q.Set("aid", aid)
	q.Set("live_id", "1")
	q.Set("did_rule", "3")
	q.Set("endpoint", "live_pc")
	q.Set("support_wrds", "1")
	q.Set("user_unique_id", userUniqueID)
	q.Set("im_path", "/webcast/im/fetch/")
	q.Set("identity", "audience")
	q.Set("need_persist_msg_count", "15")
	q.Set("insert_task_id", "")
	q.Set("live_reason", "")
	q.Set("room_id", roomID)
	q.Set("heartbeatDuration", "0")
	return wsEndpoint + "?" + q.Encode()
}

// SignedWSURL 构造连接地址并追加签名
func SignedWSURL(signer Signer, roomID, userUniqueID, cursor, internalExt string) (string, error) {
	wssURL := BuildWSURL(roomID, userUniqueID, cursor, internalExt)
	signature, err := signer.Sign(wssURL)
	if err != nil {
		return "", err
	}
	return wssURL + "&signature=" + url.QueryEscape(signature), nil
}
