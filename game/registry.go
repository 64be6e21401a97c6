package game

import "sync"

// Registry 玩家标识 → 显示名 的映射（每个参与者各持一份副本）
// 只在收到权威端确认时写入，后写覆盖先写
type Registry struct {
	mu    sync.RWMutex
	names map[PlayerID]string
}

// NewRegistry 创建空注册表
func NewRegistry() *Registry {
	return &Registry{names: make(map[PlayerID]string)}
}

// Put 插入或覆盖一条记录，返回该标识此前是否已有记录
func (r *Registry) Put(id PlayerID, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, existed := r.names[id]
	r.names[id] = name
	return existed
}

// Lookup 查询已注册的名字
func (r *Registry) Lookup(id PlayerID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.names[id]
	return name, ok
}

// Name 查询名字，未注册时返回兜底名
func (r *Registry) Name(id PlayerID) string {
	if name, ok := r.Lookup(id); ok {
		return name
	}
	return FallbackName(id)
}

// Remove 删除记录（会话结束或玩家离开）
func (r *Registry) Remove(id PlayerID) {
	r.mu.Lock()
	delete(r.names, id)
	r.mu.Unlock()
}

// Len 记录数
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.names)
}

// Snapshot 返回只读副本
func (r *Registry) Snapshot() map[PlayerID]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[PlayerID]string, len(r.names))
	for id, name := range r.names {
		out[id] = name
	}
	return out
}
