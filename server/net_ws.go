package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"hitduel/game"
	"hitduel/protocol"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 25 * time.Second
	joinWait   = 5 * time.Second
	sendBuffer = 256
)

// ClientConn 负责发送（写）数据到客户端的轻量包装
type ClientConn struct {
	ws *websocket.Conn

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func NewClientConn(ws *websocket.Conn) *ClientConn {
	return &ClientConn{
		ws:   ws,
		send: make(chan []byte, sendBuffer),
	}
}

// Send 将消息压入发送队列（非阻塞）；队列满时返回错误，由房间断开该连接
func (c *ClientConn) Send(b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- b:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// Close 关闭发送队列；写协程发完剩余消息后关闭底层连接
func (c *ClientConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
	return nil
}

// writePump 独立协程，负责从 send 队列写出到 WS，并定期 ping
func (c *ClientConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump 读取客户端消息，转换为房间命令；来源固定为本连接的玩家
func (c *ClientConn) readPump(room *Room, playerID game.PlayerID, log *zap.SugaredLogger) {
	defer c.ws.Close()
	// 读泵退出时，通知房间在 Tick 线程中移除该玩家
	defer room.RequestLeave(playerID)
	c.ws.SetReadLimit(1 << 16)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error { return c.ws.SetReadDeadline(time.Now().Add(pongWait)) })

	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Infow("read error", "player", playerID, "error", err)
			}
			return
		}
		env, err := protocol.DecodeEnvelope(payload)
		if err != nil {
			log.Debugw("bad envelope", "player", playerID, "error", err)
			continue
		}
		switch env.T {
		case protocol.MsgSubmitIdentity:
			msg, err := protocol.DecodePayload[game.SubmitIdentity](env)
			if err != nil {
				log.Debugw("bad submit payload", "player", playerID, "error", err)
				continue
			}
			if err := room.Submit(playerID, msg); err != nil {
				return
			}
		case protocol.MsgHit:
			hit, err := protocol.DecodePayload[protocol.Hit](env)
			if err != nil || hit.Target == "" {
				continue
			}
			room.OnHit(playerID, hit.Target)
		default:
			log.Debugw("ignored message", "player", playerID, "type", env.T, "error", ErrUnknownMessage)
		}
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// 演示环境：允许所有来源（生产环境需严格限制）
		return true
	},
}

// HandleWS WebSocket 接入：?room=room-1；玩家标识由房间分配
func (m *Manager) HandleWS(w http.ResponseWriter, r *http.Request) {
	room, err := m.GetOrCreateRoom(r.URL.Query().Get("room"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.log.Warnw("upgrade error", "error", err)
		return
	}

	client := NewClientConn(ws)
	go client.writePump()

	ctx, cancel := context.WithTimeout(context.Background(), joinWait)
	defer cancel()
	res, err := room.Join(ctx, client)
	if err != nil {
		m.log.Infow("join refused", "room", room.ID, "error", err)
		_ = client.Close()
		return
	}
	go client.readPump(room, res.Player, m.log.With("room", room.ID))
}
