package server

import "errors"

var (
	ErrRoomFull       = errors.New("room is full")
	ErrRoomClosed     = errors.New("room is closed")
	ErrUnknownMessage = errors.New("unknown message type")
	ErrSendQueueFull  = errors.New("send queue full")
	ErrConnClosed     = errors.New("connection closed")
)
