// Package protocol 房间与参与者之间的 JSON 消息
package protocol

import (
	"encoding/json"

	"hitduel/game"
)

// 客户端 → 权威端
const (
	MsgSubmitIdentity = "submit_identity"
	MsgHit            = "hit"
)

// 权威端 → 客户端
const (
	MsgWelcome         = "welcome"
	MsgConfirmIdentity = "confirm_identity"
	MsgTargetSpawned   = "target_spawned"
	MsgTargetResolved  = "target_resolved"
	MsgFeedback        = "feedback"
	MsgPlayerLeft      = "player_left"
)

// Envelope 外层信封：T 为消息类型，P 为原始载荷
type Envelope struct {
	T string          `json:"t"`
	P json.RawMessage `json:"p"`
}

// Hit 命中输入；来源由连接决定
type Hit struct {
	Target game.TargetID `json:"target"`
}

// RosterEntry 已确认的 (玩家, 名字)
type RosterEntry struct {
	Player game.PlayerID `json:"player"`
	Name   string        `json:"name"`
}

// Welcome 加入成功后单独发给该连接
type Welcome struct {
	Player  game.PlayerID `json:"player"`
	Slot    int           `json:"slot"`
	Host    bool          `json:"host"`
	Session string        `json:"session"`
	Roster  []RosterEntry `json:"roster"`
}

// TargetSpawned 新目标广播
type TargetSpawned struct {
	ID         game.TargetID `json:"id"`
	Owner      game.PlayerID `json:"owner"`
	Slot       int           `json:"slot"`
	X          float64       `json:"x"`
	Y          float64       `json:"y"`
	LifetimeMs int64         `json:"lifetime_ms"`
	Start      float64       `json:"start"`
	End        float64       `json:"end"`
	Color      string        `json:"color"`
}

// TargetResolved 结算广播（所有参与者都会收到）
type TargetResolved struct {
	ID       game.TargetID `json:"id"`
	Owner    game.PlayerID `json:"owner"`
	Tier     game.Tier     `json:"tier"`
	Progress float64       `json:"progress"`
	Timeout  bool          `json:"timeout"`
	Hits     int64         `json:"hits"`
}

// PlayerLeft 玩家离开
type PlayerLeft struct {
	Player game.PlayerID `json:"player"`
}
