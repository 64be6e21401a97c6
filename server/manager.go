package server

import (
	"sort"
	"sync"

	"go.uber.org/zap"
)

// DefaultRoomID 未指定房间时使用
const DefaultRoomID = "room-1"

// Manager 管理多个房间的生命周期（由 main 显式创建并注入）
type Manager struct {
	mu       sync.RWMutex
	rooms    map[string]*Room
	settings Settings
	metrics  *Metrics
	log      *zap.SugaredLogger
	roomOpts []RoomOption
}

// NewManager 创建房间管理器
func NewManager(s Settings, metrics *Metrics, log *zap.SugaredLogger, opts ...RoomOption) *Manager {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Manager{
		rooms:    make(map[string]*Room),
		settings: s,
		metrics:  metrics,
		log:      log,
		roomOpts: opts,
	}
}

// GetOrCreateRoom 获取或创建房间，并确保开始 Tick
func (m *Manager) GetOrCreateRoom(id string) (*Room, error) {
	if id == "" {
		id = DefaultRoomID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.rooms[id]; ok {
		return r, nil
	}
	opts := append([]RoomOption{WithRoomMetrics(m.metrics), WithRoomLogger(m.log)}, m.roomOpts...)
	r, err := NewRoom(id, m.settings, opts...)
	if err != nil {
		return nil, err
	}
	m.rooms[id] = r
	m.metrics.roomOpened()
	m.log.Infow("room created", "room", id, "session", r.Session)
	go r.Run()
	return r, nil
}

// Room 查询已存在的房间
func (m *Manager) Room(id string) (*Room, bool) {
	if id == "" {
		id = DefaultRoomID
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rooms[id]
	return r, ok
}

// RoomIDs 所有房间 ID（有序）
func (m *Manager) RoomIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.rooms))
	for id := range m.rooms {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close 停止所有房间并等待其退出
func (m *Manager) Close() {
	m.mu.Lock()
	rooms := m.rooms
	m.rooms = make(map[string]*Room)
	m.mu.Unlock()
	for _, r := range rooms {
		r.Stop()
		<-r.Done()
		m.metrics.roomClosed()
	}
}
