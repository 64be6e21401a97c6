package game

import "sync/atomic"

// PlayerID 表示玩家唯一标识（会话期间稳定）
type PlayerID string

// FallbackName 未提供名字时的确定性兜底名："Player_" + 标识
func FallbackName(id PlayerID) string {
	return "Player_" + string(id)
}

// Player 会话内的玩家实体；名字由 Registry 维护，这里只保存命中计数
type Player struct {
	ID   PlayerID
	Slot int // 0 或 1，对应房间内的 1P / 2P

	hits atomic.Int64
}

// NewPlayer 创建玩家
func NewPlayer(id PlayerID, slot int) *Player {
	return &Player{ID: id, Slot: slot}
}

// RegisterHit 命中计数单调递增，返回递增后的值
func (p *Player) RegisterHit() int64 {
	return p.hits.Add(1)
}

// Hits 当前命中计数
func (p *Player) Hits() int64 {
	return p.hits.Load()
}
