// Package client 以参与者身份接入房间：维护自己的注册表副本、身份同步与反馈路由
package client

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"hitduel/game"
	"hitduel/protocol"
)

const (
	writeWait    = 5 * time.Second
	tickInterval = 20 * time.Millisecond
)

// ErrClosed 连接已被服务端关闭
var ErrClosed = errors.New("connection closed")

// Options 接入参数
type Options struct {
	URL      string // 服务地址，如 ws://localhost:8080/ws
	Room     string
	Name     string // 候选名，为空时依次使用登录用户、兜底名
	Autoplay bool   // 在进度最接近基准值时自动命中自己的目标

	Credentials      game.CredentialStore
	Palette          game.Palette
	FeedbackDuration time.Duration
	OnDisplay        func(game.Display)
	Log              *zap.SugaredLogger
}

// mirror 本地镜像的目标，只用于自动命中
type mirror struct {
	hitAt time.Time
	sent  bool
}

// Client 一个参与者连接
type Client struct {
	opts Options
	ws   *websocket.Conn
	wmu  sync.Mutex
	log  *zap.SugaredLogger

	self     *game.Self
	identity *game.IdentityService
	router   *game.Router

	mu      sync.Mutex
	welcome protocol.Welcome
	hits    int64
	results map[game.Tier]int
	targets map[game.TargetID]*mirror
}

// link 把身份提交写到连接上
type link struct{ c *Client }

func (l link) SendSubmit(msg game.SubmitIdentity) error {
	return l.c.write(protocol.MsgSubmitIdentity, msg)
}

// Dial 连接到房间；身份由服务端在 welcome 中分配
func Dial(ctx context.Context, opts Options) (*Client, error) {
	if opts.Log == nil {
		opts.Log = zap.NewNop().Sugar()
	}
	if opts.FeedbackDuration <= 0 {
		opts.FeedbackDuration = time.Second
	}
	if opts.Palette.Tiers == nil {
		opts.Palette = game.DefaultPalette()
	}
	u, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if opts.Room != "" {
		q := u.Query()
		q.Set("room", opts.Room)
		u.RawQuery = q.Encode()
	}
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u, err)
	}

	c := &Client{
		opts:    opts,
		ws:      ws,
		log:     opts.Log,
		self:    game.NewSelf(""),
		results: make(map[game.Tier]int),
		targets: make(map[game.TargetID]*mirror),
	}
	idOpts := []game.IdentityOption{game.WithIdentityLogger(opts.Log)}
	if opts.Credentials != nil {
		idOpts = append(idOpts, game.WithCredentials(opts.Credentials))
	}
	c.identity = game.NewIdentityService(c.self, link{c}, game.NewRegistry(), idOpts...)
	c.router = game.NewRouter(c.self, opts.FeedbackDuration,
		game.WithPalette(opts.Palette),
		game.WithDisplayHook(c.onDisplay),
	)
	return c, nil
}

// Identity 参与者侧身份服务
func (c *Client) Identity() *game.IdentityService { return c.identity }

// Router 本地反馈路由
func (c *Client) Router() *game.Router { return c.router }

// Player 服务端分配的标识，未收到 welcome 前为空
func (c *Client) Player() (game.PlayerID, bool) { return c.self.LocalPlayer() }

// Summary 本连接的结算统计
type Summary struct {
	Player  game.PlayerID
	Name    string
	Host    bool
	Hits    int64
	Results map[game.Tier]int
}

func (c *Client) Summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	res := make(map[game.Tier]int, len(c.results))
	for t, n := range c.results {
		res[t] = n
	}
	return Summary{
		Player:  c.welcome.Player,
		Name:    c.identity.QueryName(c.welcome.Player),
		Host:    c.welcome.Host,
		Hits:    c.hits,
		Results: res,
	}
}

// Close 发送关闭帧并断开
func (c *Client) Close() error {
	c.wmu.Lock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.wmu.Unlock()
	return c.ws.Close()
}

// Run 提交名字并处理消息，直到 ctx 结束或连接断开
func (c *Client) Run(ctx context.Context) error {
	if err := c.identity.Submit(c.opts.Name); err != nil {
		return err
	}

	incoming := make(chan protocol.Envelope, 64)
	readErr := make(chan error, 1)
	stop := make(chan struct{})
	defer close(stop)
	go c.readLoop(incoming, readErr, stop)

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-readErr:
			return err
		case env := <-incoming:
			c.handle(env)
		case now := <-ticker.C:
			if err := c.identity.Tick(); err != nil {
				return err
			}
			c.router.Tick(now.Sub(last))
			last = now
			if err := c.autoplay(now); err != nil {
				return err
			}
		}
	}
}

func (c *Client) readLoop(out chan<- protocol.Envelope, errc chan<- error, stop <-chan struct{}) {
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				err = ErrClosed
			}
			errc <- err
			return
		}
		env, err := protocol.DecodeEnvelope(data)
		if err != nil {
			c.log.Debugw("bad envelope", "error", err)
			continue
		}
		select {
		case out <- env:
		case <-stop:
			return
		}
	}
}

func (c *Client) handle(env protocol.Envelope) {
	switch env.T {
	case protocol.MsgWelcome:
		w, err := protocol.DecodePayload[protocol.Welcome](env)
		if err != nil {
			c.log.Warnw("bad welcome", "error", err)
			return
		}
		c.mu.Lock()
		c.welcome = w
		c.mu.Unlock()
		// 加入前已确认的名字按确认处理，注册表只经 OnConfirm 修改
		for _, e := range w.Roster {
			c.identity.OnConfirm(game.ConfirmIdentity{Player: e.Player, Name: e.Name})
		}
		c.self.Set(w.Player)
		c.log.Infow("joined", "player", w.Player, "slot", w.Slot, "host", w.Host, "session", w.Session)
	case protocol.MsgConfirmIdentity:
		msg, err := protocol.DecodePayload[game.ConfirmIdentity](env)
		if err != nil {
			c.log.Warnw("bad confirmation", "error", err)
			return
		}
		c.identity.OnConfirm(msg)
	case protocol.MsgTargetSpawned:
		t, err := protocol.DecodePayload[protocol.TargetSpawned](env)
		if err != nil {
			return
		}
		c.track(t)
	case protocol.MsgTargetResolved:
		res, err := protocol.DecodePayload[protocol.TargetResolved](env)
		if err != nil {
			return
		}
		c.resolve(res)
	case protocol.MsgPlayerLeft:
		left, err := protocol.DecodePayload[protocol.PlayerLeft](env)
		if err != nil {
			return
		}
		c.identity.Registry().Remove(left.Player)
		c.log.Infow("player left", "player", left.Player)
	case protocol.MsgFeedback:
		// 本地路由自行判定，服务端的逐连接反馈只做记录
		c.log.Debugw("server feedback", "payload", string(env.P))
	default:
		c.log.Debugw("ignored message", "type", env.T)
	}
}

// track 记录自己的目标，并计算进度穿过基准值的时刻
func (c *Client) track(t protocol.TargetSpawned) {
	if !c.isMine(t.Owner) {
		return
	}
	m := &mirror{}
	life := time.Duration(t.LifetimeMs) * time.Millisecond
	if span := t.Start - t.End; span != 0 {
		ratio := (t.Start - game.ReferenceValue) / span
		if ratio >= 0 && ratio <= 1 {
			m.hitAt = time.Now().Add(time.Duration(ratio * float64(life)))
		}
	}
	c.mu.Lock()
	c.targets[t.ID] = m
	c.mu.Unlock()
}

func (c *Client) resolve(res protocol.TargetResolved) {
	c.mu.Lock()
	delete(c.targets, res.ID)
	if c.isMine(res.Owner) {
		c.results[res.Tier]++
		c.hits = res.Hits
	}
	c.mu.Unlock()
	c.log.Debugw("target resolved", "target", res.ID, "owner", res.Owner,
		"name", c.identity.QueryName(res.Owner), "tier", res.Tier, "timeout", res.Timeout)
	c.router.Show(res.Owner, res.Tier)
}

func (c *Client) autoplay(now time.Time) error {
	if !c.opts.Autoplay {
		return nil
	}
	var due []game.TargetID
	c.mu.Lock()
	for id, m := range c.targets {
		if !m.sent && !m.hitAt.IsZero() && !now.Before(m.hitAt) {
			m.sent = true
			due = append(due, id)
		}
	}
	c.mu.Unlock()
	for _, id := range due {
		if err := c.Hit(id); err != nil {
			return err
		}
	}
	return nil
}

// Hit 对目标发出一次输入
func (c *Client) Hit(id game.TargetID) error {
	return c.write(protocol.MsgHit, protocol.Hit{Target: id})
}

func (c *Client) isMine(owner game.PlayerID) bool {
	local, ok := c.self.LocalPlayer()
	return ok && local == owner
}

func (c *Client) onDisplay(d game.Display) {
	if d.Visible {
		c.log.Infow("feedback", "tier", d.Tier, "color", d.Color)
	}
	if c.opts.OnDisplay != nil {
		c.opts.OnDisplay(d)
	}
}

func (c *Client) write(typ string, payload any) error {
	b, err := protocol.Encode(typ, payload)
	if err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, b)
}
