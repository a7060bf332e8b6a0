// Package servers 提供监控数据的 HTTP API 与 SSE 推送。
package servers

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dylive-go/dylive-go/src/configs"
	"github.com/dylive-go/dylive-go/src/instance"
	applog "github.com/dylive-go/dylive-go/src/log"
	"github.com/dylive-go/dylive-go/src/pkg/dysentry"
)

type Server struct {
	server *http.Server
}

func initMux(router *mux.Router) {
	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/info", getAppInfo).Methods("GET")
	api.HandleFunc("/config", getConfig).Methods("GET")
	api.HandleFunc("/config/douyin", putDouyinConfig).Methods("PUT")
	api.HandleFunc("/config/proxy", putProxyConfig).Methods("PUT")

	api.HandleFunc("/rooms", getAllRooms).Methods("GET")
	api.HandleFunc("/rooms", addRoom).Methods("POST")
	api.HandleFunc("/rooms/{id}", getRoom).Methods("GET")
	api.HandleFunc("/rooms/{id}", removeRoom).Methods("DELETE")
	api.HandleFunc("/rooms/{id}/{action:start|stop|restart}", parseRoomAction).Methods("GET")
	api.HandleFunc("/rooms/{id}/sessions", getRoomSessions).Methods("GET")
	api.HandleFunc("/rooms/{id}/chats", getRoomChats).Methods("GET")
	api.HandleFunc("/rooms/{id}/gifts", getRoomGifts).Methods("GET")
	api.HandleFunc("/rooms/{id}/stats", getRoomStats).Methods("GET")
	api.HandleFunc("/rooms/{id}/leaderboard", getRoomLeaderboard).Methods("GET")
	api.HandleFunc("/rooms/{id}/logs", getRoomLogs).Methods("GET")

	api.HandleFunc("/sse", sseHandler).Methods("GET")
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
}

func NewServer(ctx context.Context) *Server {
	inst := instance.GetInstance(ctx)
	cfg := configs.GetCurrentConfig()

	router := mux.NewRouter()
	initMux(router)

	s := &Server{
		server: &http.Server{
			Addr:    cfg.RPC.Bind,
			Handler: log(withInstance(inst, router)),
		},
	}
	inst.Server = s
	return s
}

// withInstance 把全局实例塞进每个请求的 context
func withInstance(inst *instance.Instance, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), instance.Key, inst)))
	})
}

func (s *Server) Start(ctx context.Context) error {
	inst := instance.GetInstance(ctx)
	inst.WaitGroup.Add(1)

	RegisterSSEEventListeners(inst)

	dysentry.Go(func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			applog.GetLogger().WithError(err).Error("http server exited")
		}
	})
	applog.WithFields(map[string]interface{}{"bind": s.server.Addr}).Info("http server started")
	return nil
}

func (s *Server) Close(ctx context.Context) {
	GetSSEHub().Close()

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		applog.GetLogger().WithError(err).Warn("http server shutdown error")
	}
	instance.GetInstance(ctx).WaitGroup.Done()
}
