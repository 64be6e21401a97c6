package server

import "hitduel/game"

// 房间收件箱中的命令；只在 Tick 线程中解释执行

type joinCmd struct {
	conn  Conn
	reply chan<- JoinResult
}

// JoinResult 加入结果
type JoinResult struct {
	Player game.PlayerID
	Slot   int
	Err    error
}

type leaveCmd struct {
	player game.PlayerID
}

// submitCmd 身份提交；origin 由连接决定，不来自载荷
type submitCmd struct {
	origin game.PlayerID
	msg    game.SubmitIdentity
}

type hitCmd struct {
	origin game.PlayerID
	target game.TargetID
}

type settingsCmd struct {
	patch *SettingsPatch // nil 表示只读
	reply chan<- settingsReply
}

type settingsReply struct {
	view SettingsView
	err  error
}

type statsCmd struct {
	reply chan<- RoomStats
}
