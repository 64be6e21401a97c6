package server

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
)

// NewHandler 注册 WebSocket、管理与监控接口
func NewHandler(m *Manager, metrics *Metrics) http.Handler {
	router := httprouter.New()
	router.HandlerFunc(http.MethodGet, "/ws", m.HandleWS)
	router.HandlerFunc(http.MethodGet, "/admin/config", m.HandleGetConfig)
	router.HandlerFunc(http.MethodPost, "/admin/config", m.HandleUpdateConfig)
	router.HandlerFunc(http.MethodGet, "/admin/stats", m.HandleStats)
	router.HandlerFunc(http.MethodGet, "/admin/rooms", m.HandleRooms)
	if metrics != nil {
		router.Handler(http.MethodGet, "/metrics", metrics.Handler())
	}
	router.HandlerFunc(http.MethodGet, "/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	return router
}
