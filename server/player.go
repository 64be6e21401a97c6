package server

import (
	"hitduel/game"
	"hitduel/protocol"
)

// Conn 房间只需要的连接能力：按序发送、关闭
type Conn interface {
	Send([]byte) error
	Close() error
}

// Peer 房间内的一名参与者：玩家实体 + 连接 + 该连接自己的反馈路由
type Peer struct {
	Player *game.Player
	Conn   Conn

	self   *game.Self
	router *game.Router
}

// newPeer 反馈路由的本地身份即该连接的玩家；显示变化只发给这个连接
func newPeer(player *game.Player, conn Conn, s Settings, deliver func(*Peer, []byte)) *Peer {
	p := &Peer{Player: player, Conn: conn, self: game.NewSelf(player.ID)}
	p.router = game.NewRouter(p.self, s.FeedbackDuration,
		game.WithPalette(s.Palette),
		game.WithDisplayHook(func(d game.Display) {
			deliver(p, protocol.MustEncode(protocol.MsgFeedback, d))
		}),
	)
	return p
}
