package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

const adminWait = 2 * time.Second

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// HandleGetConfig 返回房间当前参数
// GET /admin/config?room=room-1
func (m *Manager) HandleGetConfig(w http.ResponseWriter, r *http.Request) {
	room, ok := m.Room(r.URL.Query().Get("room"))
	if !ok {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), adminWait)
	defer cancel()
	view, err := room.Settings(ctx, nil)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// HandleUpdateConfig 以 JSON 载荷热更新部分字段（阈值、出生间隔、寿命、反馈时长）
// POST /admin/config?room=room-1
func (m *Manager) HandleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	room, ok := m.Room(r.URL.Query().Get("room"))
	if !ok {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}
	var patch SettingsPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), adminWait)
	defer cancel()
	view, err := room.Settings(ctx, &patch)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": err.Error(), "config": view})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "config": view})
}

// HandleStats 输出指定房间的运行指标与玩家命中数
// GET /admin/stats?room=room-1
func (m *Manager) HandleStats(w http.ResponseWriter, r *http.Request) {
	room, ok := m.Room(r.URL.Query().Get("room"))
	if !ok {
		http.Error(w, "room not found", http.StatusNotFound)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), adminWait)
	defer cancel()
	st, err := room.Stats(ctx)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// HandleRooms 列出房间
// GET /admin/rooms
func (m *Manager) HandleRooms(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"rooms": m.RoomIDs()})
}
