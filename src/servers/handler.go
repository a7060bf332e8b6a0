package servers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/tidwall/gjson"

	"github.com/dylive-go/dylive-go/src/configs"
	"github.com/dylive-go/dylive-go/src/consts"
	"github.com/dylive-go/dylive-go/src/instance"
	applog "github.com/dylive-go/dylive-go/src/log"
	"github.com/dylive-go/dylive-go/src/rooms"
	"github.com/dylive-go/dylive-go/src/storage"
	"github.com/dylive-go/dylive-go/src/types"
)

type commonResp struct {
	ErrNo  int         `json:"err_no"`
	ErrMsg string      `json:"err_msg"`
	Data   interface{} `json:"data"`
}

func writeJSON(writer http.ResponseWriter, data interface{}) {
	writeJsonWithStatusCode(writer, http.StatusOK, data)
}

func writeJsonWithStatusCode(writer http.ResponseWriter, code int, data interface{}) {
	b, err := json.Marshal(data)
	if err != nil {
		writer.WriteHeader(http.StatusInternalServerError)
		return
	}
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(code)
	writer.Write(b)
}

// liveIDPattern 抖音直播间号只含数字
var liveIDPattern = regexp.MustCompile(`^\d+$`)

func getAppInfo(writer http.ResponseWriter, r *http.Request) {
	writeJSON(writer, consts.GetAppInfo())
}

func getConfig(writer http.ResponseWriter, r *http.Request) {
	writeJSON(writer, configs.GetCurrentConfig())
}

/*
	Put data example

	{
		"ttwid": "1%7CfPx...",
		"user_agent": "Mozilla/5.0 ..."
	}
*/
func putDouyinConfig(writer http.ResponseWriter, r *http.Request) {
	b, err := io.ReadAll(r.Body)
	if err != nil {
		writeJsonWithStatusCode(writer, http.StatusBadRequest, commonResp{
			ErrNo:  http.StatusBadRequest,
			ErrMsg: err.Error(),
		})
		return
	}
	body := gjson.ParseBytes(b)
	if _, err := configs.Update(func(c *configs.Config) error {
		if v := body.Get("ttwid"); v.Exists() {
			c.Douyin.TTWid = v.String()
		}
		if v := body.Get("user_agent"); v.Exists() {
			c.Douyin.UserAgent = v.String()
		}
		return nil
	}); err != nil {
		writeJsonWithStatusCode(writer, http.StatusInternalServerError, commonResp{
			ErrNo:  http.StatusInternalServerError,
			ErrMsg: err.Error(),
		})
		return
	}
	writeJSON(writer, commonResp{
		Data: "OK",
	})
}

/*
	Put data example

	{
		"enable": true,
		"url": "socks5://127.0.0.1:1080"
	}
*/
func putProxyConfig(writer http.ResponseWriter, r *http.Request) {
	b, err := io.ReadAll(r.Body)
	if err != nil {
		writeJsonWithStatusCode(writer, http.StatusBadRequest, commonResp{
			ErrNo:  http.StatusBadRequest,
			ErrMsg: err.Error(),
		})
		return
	}
	body := gjson.ParseBytes(b)
	enable := body.Get("enable").Bool()
	proxyURL := body.Get("url").String()
	if enable {
		if _, err := url.Parse(proxyURL); err != nil || proxyURL == "" {
			writeJsonWithStatusCode(writer, http.StatusBadRequest, commonResp{
				ErrNo:  http.StatusBadRequest,
				ErrMsg: fmt.Sprintf("invalid proxy url: %q", proxyURL),
			})
			return
		}
	}
	if _, err := configs.Update(func(c *configs.Config) error {
		c.Proxy.Enable = enable
		c.Proxy.URL = proxyURL
		return nil
	}); err != nil {
		writeJsonWithStatusCode(writer, http.StatusInternalServerError, commonResp{
			ErrNo:  http.StatusInternalServerError,
			ErrMsg: err.Error(),
		})
		return
	}
	writeJSON(writer, commonResp{
		Data: "OK",
	})
}

func getAllRooms(writer http.ResponseWriter, r *http.Request) {
	inst := instance.GetInstance(r.Context())
	statuses, err := inst.RoomManager.(rooms.Manager).GetAllRoomsStatus(r.Context())
	if err != nil {
		writeJsonWithStatusCode(writer, http.StatusInternalServerError, commonResp{
			ErrNo:  http.StatusInternalServerError,
			ErrMsg: err.Error(),
		})
		return
	}
	writeJSON(writer, statuses)
}

/*
	Post data example

	{
		"live_id": "168465302284",
		"monitor_type": "24h",
		"auto_reconnect": true
	}
*/
func addRoom(writer http.ResponseWriter, r *http.Request) {
	b, err := io.ReadAll(r.Body)
	if err != nil {
		writeJsonWithStatusCode(writer, http.StatusBadRequest, commonResp{
			ErrNo:  http.StatusBadRequest,
			ErrMsg: err.Error(),
		})
		return
	}
	body := gjson.ParseBytes(b)
	liveID := body.Get("live_id").String()
	if !liveIDPattern.MatchString(liveID) {
		writeJsonWithStatusCode(writer, http.StatusBadRequest, commonResp{
			ErrNo:  http.StatusBadRequest,
			ErrMsg: fmt.Sprintf("invalid live_id: %q", liveID),
		})
		return
	}
	monitorType := body.Get("monitor_type").String()
	switch monitorType {
	case "", consts.MonitorType24h, consts.MonitorTypeManual:
	default:
		writeJsonWithStatusCode(writer, http.StatusBadRequest, commonResp{
			ErrNo:  http.StatusBadRequest,
			ErrMsg: fmt.Sprintf("invalid monitor_type: %q", monitorType),
		})
		return
	}

	room := &storage.LiveRoom{
		LiveID:        liveID,
		MonitorType:   monitorType,
		AutoReconnect: true,
	}
	if v := body.Get("auto_reconnect"); v.Exists() {
		room.AutoReconnect = v.Bool()
	}

	inst := instance.GetInstance(r.Context())
	manager := inst.RoomManager.(rooms.Manager)
	if err := manager.AddRoom(r.Context(), room); err != nil {
		applog.WithFields(map[string]interface{}{"live_id": liveID}).
			WithError(err).Error("failed to add room")
		writeJsonWithStatusCode(writer, http.StatusBadRequest, commonResp{
			ErrNo:  http.StatusBadRequest,
			ErrMsg: err.Error(),
		})
		return
	}
	status, err := manager.GetRoomStatus(r.Context(), types.LiveID(liveID))
	if err != nil {
		writeJsonWithStatusCode(writer, http.StatusInternalServerError, commonResp{
			ErrNo:  http.StatusInternalServerError,
			ErrMsg: err.Error(),
		})
		return
	}
	writeJSON(writer, status)
}

func getRoom(writer http.ResponseWriter, r *http.Request) {
	inst := instance.GetInstance(r.Context())
	vars := mux.Vars(r)
	status, err := inst.RoomManager.(rooms.Manager).GetRoomStatus(r.Context(), types.LiveID(vars["id"]))
	if err != nil {
		if errors.Is(err, storage.ErrRoomNotFound) {
			writeJsonWithStatusCode(writer, http.StatusNotFound, commonResp{
				ErrNo:  http.StatusNotFound,
				ErrMsg: fmt.Sprintf("live id: %s can not find", vars["id"]),
			})
			return
		}
		writeJsonWithStatusCode(writer, http.StatusInternalServerError, commonResp{
			ErrNo:  http.StatusInternalServerError,
			ErrMsg: err.Error(),
		})
		return
	}
	writeJSON(writer, status)
}

func removeRoom(writer http.ResponseWriter, r *http.Request) {
	inst := instance.GetInstance(r.Context())
	vars := mux.Vars(r)
	manager := inst.RoomManager.(rooms.Manager)
	if _, err := manager.GetRoomStatus(r.Context(), types.LiveID(vars["id"])); err != nil {
		writeJsonWithStatusCode(writer, http.StatusNotFound, commonResp{
			ErrNo:  http.StatusNotFound,
			ErrMsg: fmt.Sprintf("live id: %s can not find", vars["id"]),
		})
		return
	}
	if err := manager.RemoveRoom(r.Context(), types.LiveID(vars["id"])); err != nil {
		writeJsonWithStatusCode(writer, http.StatusBadRequest, commonResp{
			ErrNo:  http.StatusBadRequest,
			ErrMsg: err.Error(),
		})
		return
	}
	writeJSON(writer, commonResp{
		Data: "OK",
	})
}

func parseRoomAction(writer http.ResponseWriter, r *http.Request) {
	inst := instance.GetInstance(r.Context())
	vars := mux.Vars(r)
	manager := inst.RoomManager.(rooms.Manager)
	liveID := types.LiveID(vars["id"])

	var err error
	switch vars["action"] {
	case "start":
		err = manager.StartRoom(r.Context(), liveID)
	case "stop":
		err = manager.StopRoom(r.Context(), liveID)
	case "restart":
		err = manager.RestartRoom(r.Context(), liveID)
	default:
		writeJsonWithStatusCode(writer, http.StatusBadRequest, commonResp{
			ErrNo:  http.StatusBadRequest,
			ErrMsg: fmt.Sprintf("invalid action: %s", vars["action"]),
		})
		return
	}
	if err != nil {
		code := http.StatusBadRequest
		if errors.Is(err, storage.ErrRoomNotFound) {
			code = http.StatusNotFound
		}
		writeJsonWithStatusCode(writer, code, commonResp{
			ErrNo:  code,
			ErrMsg: err.Error(),
		})
		return
	}
	status, err := manager.GetRoomStatus(r.Context(), liveID)
	if err != nil {
		writeJsonWithStatusCode(writer, http.StatusInternalServerError, commonResp{
			ErrNo:  http.StatusInternalServerError,
			ErrMsg: err.Error(),
		})
		return
	}
	writeJSON(writer, status)
}

// parseLimit 解析 limit 查询参数，默认 100，上限 1000
func parseLimit(r *http.Request) int {
	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 1000 {
		limit = 1000
	}
	return limit
}

func getRoomSessions(writer http.ResponseWriter, r *http.Request) {
	inst := instance.GetInstance(r.Context())
	vars := mux.Vars(r)
	sessions, err := inst.Store.GetSessionsByLiveID(r.Context(), vars["id"], parseLimit(r))
	if err != nil {
		writeJsonWithStatusCode(writer, http.StatusInternalServerError, commonResp{
			ErrNo:  http.StatusInternalServerError,
			ErrMsg: err.Error(),
		})
		return
	}
	writeJSON(writer, sessions)
}

func getRoomChats(writer http.ResponseWriter, r *http.Request) {
	inst := instance.GetInstance(r.Context())
	vars := mux.Vars(r)
	chats, err := inst.Store.GetRecentChats(r.Context(), vars["id"], parseLimit(r))
	if err != nil {
		writeJsonWithStatusCode(writer, http.StatusInternalServerError, commonResp{
			ErrNo:  http.StatusInternalServerError,
			ErrMsg: err.Error(),
		})
		return
	}
	writeJSON(writer, chats)
}

func getRoomGifts(writer http.ResponseWriter, r *http.Request) {
	inst := instance.GetInstance(r.Context())
	vars := mux.Vars(r)
	gifts, err := inst.Store.GetRecentGifts(r.Context(), vars["id"], parseLimit(r))
	if err != nil {
		writeJsonWithStatusCode(writer, http.StatusInternalServerError, commonResp{
			ErrNo:  http.StatusInternalServerError,
			ErrMsg: err.Error(),
		})
		return
	}
	writeJSON(writer, gifts)
}

func getRoomStats(writer http.ResponseWriter, r *http.Request) {
	inst := instance.GetInstance(r.Context())
	vars := mux.Vars(r)
	stats, err := inst.Store.GetRecentStats(r.Context(), vars["id"], parseLimit(r))
	if err != nil {
		writeJsonWithStatusCode(writer, http.StatusInternalServerError, commonResp{
			ErrNo:  http.StatusInternalServerError,
			ErrMsg: err.Error(),
		})
		return
	}
	writeJSON(writer, stats)
}

func getRoomLeaderboard(writer http.ResponseWriter, r *http.Request) {
	inst := instance.GetInstance(r.Context())
	vars := mux.Vars(r)
	board, err := inst.Store.GetLeaderboard(r.Context(), vars["id"], parseLimit(r))
	if err != nil {
		writeJsonWithStatusCode(writer, http.StatusInternalServerError, commonResp{
			ErrNo:  http.StatusInternalServerError,
			ErrMsg: err.Error(),
		})
		return
	}
	writeJSON(writer, board)
}

func getRoomLogs(writer http.ResponseWriter, r *http.Request) {
	inst := instance.GetInstance(r.Context())
	vars := mux.Vars(r)
	mon, err := inst.RoomManager.(rooms.Manager).GetMonitor(types.LiveID(vars["id"]))
	if err != nil {
		writeJsonWithStatusCode(writer, http.StatusNotFound, commonResp{
			ErrNo:  http.StatusNotFound,
			ErrMsg: fmt.Sprintf("live id: %s is not monitored", vars["id"]),
		})
		return
	}
	writeJSON(writer, commonResp{
		Data: mon.Logger().GetLogs(),
	})
}
