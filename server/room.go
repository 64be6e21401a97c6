package server

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"hitduel/game"
	"hitduel/protocol"
)

const maxPlayers = 2

// Room 一局双人会话：权威端 + 托管方注册表副本 + 单线程 Tick 推进的判定模拟
type Room struct {
	ID      string
	Session string

	inbox    chan any
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	settings Settings
	peers    map[game.PlayerID]*Peer
	nextID   int
	failed   []game.PlayerID
	departed map[game.PlayerID]bool

	host      *game.Self
	authority *game.Authority
	roster    *game.IdentityService
	engine    *game.Engine
	spawner   *game.Spawner

	tickSeq atomic.Int64
	stats   *RoomMetrics
	metrics *Metrics
	log     *zap.SugaredLogger
}

type roomOptions struct {
	rng     *rand.Rand
	metrics *Metrics
	log     *zap.SugaredLogger
}

// RoomOption 房间可选项
type RoomOption func(*roomOptions)

// WithRoomRand 固定随机源（测试用）
func WithRoomRand(r *rand.Rand) RoomOption {
	return func(o *roomOptions) { o.rng = r }
}

// WithRoomMetrics 共享的 Prometheus 指标
func WithRoomMetrics(m *Metrics) RoomOption {
	return func(o *roomOptions) { o.metrics = m }
}

// WithRoomLogger 注入日志
func WithRoomLogger(l *zap.SugaredLogger) RoomOption {
	return func(o *roomOptions) { o.log = l }
}

// NewRoom 创建房间，初始化判定引擎、出生控制器与权威端
func NewRoom(id string, s Settings, opts ...RoomOption) (*Room, error) {
	o := roomOptions{log: zap.NewNop().Sugar()}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = zap.NewNop().Sugar()
	}
	log := o.log.With("room", id)

	r := &Room{
		ID:       id,
		Session:  uuid.NewString(),
		inbox:    make(chan any, 256), // 足够缓冲，避免网络读阻塞影响 Tick
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		settings: s,
		peers:    make(map[game.PlayerID]*Peer),
		departed: make(map[game.PlayerID]bool),
		host:     game.NewSelf(""),
		stats:    &RoomMetrics{},
		metrics:  o.metrics,
		log:      log,
	}

	engine, err := game.NewEngine(s.Thresholds, game.WithEngineLogger(log))
	if err != nil {
		return nil, fmt.Errorf("room %s: %w", id, err)
	}
	spawnOpts := []game.SpawnerOption{
		game.WithSpawnHook(r.onSpawn),
		game.WithSpawnerLogger(log),
	}
	if o.rng != nil {
		spawnOpts = append(spawnOpts, game.WithRand(o.rng))
	}
	spawner, err := game.NewSpawner(s.Spawn, engine, spawnOpts...)
	if err != nil {
		return nil, fmt.Errorf("room %s: %w", id, err)
	}
	r.engine = engine
	r.spawner = spawner
	r.authority = game.NewAuthority(r.host, r, r, log)
	r.roster = game.NewIdentityService(r.host, nil, game.NewRegistry(), game.WithIdentityLogger(log))
	return r, nil
}

// IsParticipant 实现 game.Membership：来源是否为当前在房间内的玩家
func (r *Room) IsParticipant(id game.PlayerID) bool {
	_, ok := r.peers[id]
	return ok
}

// BroadcastConfirm 实现 game.Broadcaster：确认发给所有参与者（含提交者），并更新托管方副本
func (r *Room) BroadcastConfirm(msg game.ConfirmIdentity) {
	r.stats.IncConfirmations()
	r.metrics.confirmed()
	r.broadcast(protocol.MustEncode(protocol.MsgConfirmIdentity, msg))
	r.roster.OnConfirm(msg)
}

// Registry 托管方的注册表副本
func (r *Room) Registry() *game.Registry { return r.roster.Registry() }

// ---- 以下方法只在 Tick 线程中调用 ----

func (r *Room) process(cmd any) {
	switch c := cmd.(type) {
	case joinCmd:
		c.reply <- r.join(c.conn)
	case leaveCmd:
		r.leave(c.player)
	case submitCmd:
		r.submit(c.origin, c.msg)
	case hitCmd:
		r.hit(c.origin, c.target)
	case settingsCmd:
		c.reply <- r.updateSettings(c.patch)
	case statsCmd:
		c.reply <- r.snapshot()
	default:
		r.log.Warnw("unknown room command", "type", fmt.Sprintf("%T", cmd))
	}
	r.reap()
}

// join 分配标识与槽位；首位加入者成为托管方，人满两人后启动出生控制器
func (r *Room) join(conn Conn) JoinResult {
	if len(r.peers) >= maxPlayers {
		return JoinResult{Err: ErrRoomFull}
	}
	r.nextID++
	id := game.PlayerID(fmt.Sprintf("P%d", r.nextID))
	peer := newPeer(game.NewPlayer(id, r.freeSlot()), conn, r.settings, r.deliver)
	r.peers[id] = peer
	if _, ok := r.host.LocalPlayer(); !ok {
		r.host.Set(id)
	}
	host, _ := r.host.LocalPlayer()

	r.deliver(peer, protocol.MustEncode(protocol.MsgWelcome, protocol.Welcome{
		Player:  id,
		Slot:    peer.Player.Slot,
		Host:    host == id,
		Session: r.Session,
		Roster:  r.rosterEntries(),
	}))
	r.metrics.playerJoined()
	r.log.Infow("player joined", "player", id, "slot", peer.Player.Slot, "host", host == id)

	if len(r.peers) == maxPlayers {
		ps := r.sortedPeers()
		if err := r.spawner.Start(ps[0].Player, ps[1].Player); err != nil {
			r.log.Errorw("cannot start spawner", "error", err)
		}
	}
	return JoinResult{Player: id, Slot: peer.Player.Slot}
}

// leave 移除玩家；不足两人时停止出生，已存在的目标继续倒计时
func (r *Room) leave(id game.PlayerID) {
	peer, ok := r.peers[id]
	if !ok {
		return
	}
	delete(r.peers, id)
	r.departed[id] = true
	_ = peer.Conn.Close()
	r.spawner.Stop()
	r.roster.Registry().Remove(id)
	if host, _ := r.host.LocalPlayer(); host == id {
		r.host.Set("")
	}
	r.metrics.playerLeft()
	r.log.Infow("player left", "player", id, "hits", peer.Player.Hits())
	r.broadcast(protocol.MustEncode(protocol.MsgPlayerLeft, protocol.PlayerLeft{Player: id}))
}

// submit 已离开玩家的残留提交直接丢弃，不归一化为托管方
func (r *Room) submit(origin game.PlayerID, msg game.SubmitIdentity) {
	if r.departed[origin] {
		r.log.Infow("submission from departed player dropped", "origin", origin, "name", msg.Name)
		return
	}
	r.stats.IncSubmissions()
	r.metrics.submitted()
	r.authority.HandleSubmit(origin, msg)
}

func (r *Room) hit(origin game.PlayerID, target game.TargetID) {
	out, ok := r.engine.Input(origin, target)
	if !ok {
		r.metrics.inputIgnored()
		return
	}
	r.publish(out)
}

// step 推进一个 Tick：目标计时 → 出生 → 反馈显示计时
func (r *Room) step(dt time.Duration) {
	for _, out := range r.engine.Tick(dt) {
		r.publish(out)
	}
	r.spawner.Tick(dt)
	for _, p := range r.sortedPeers() {
		p.router.Tick(dt)
	}
	r.reap()
}

// publish 结算结果广播给所有人；每个连接的反馈路由只显示自己的目标
func (r *Room) publish(out game.Outcome) {
	if out.Timeout {
		r.stats.IncTimeoutsResolved()
	} else {
		r.stats.IncHitsResolved()
	}
	r.metrics.resolved(out)
	r.log.Infow("target resolved", "target", out.Target, "player", out.Player,
		"name", r.roster.QueryName(out.Player), "tier", out.Tier, "timeout", out.Timeout, "hits", out.Hits)
	r.broadcast(protocol.MustEncode(protocol.MsgTargetResolved, protocol.TargetResolved{
		ID:       out.Target,
		Owner:    out.Player,
		Tier:     out.Tier,
		Progress: out.Progress,
		Timeout:  out.Timeout,
		Hits:     out.Hits,
	}))
	for _, p := range r.sortedPeers() {
		p.router.Show(out.Player, out.Tier)
	}
}

// onSpawn 出生回调：按归属槽位着色后广播
func (r *Room) onSpawn(t *game.Target) {
	r.stats.IncTargetsSpawned()
	r.metrics.spawned()
	slot := 0
	if t.Owner != nil {
		slot = t.Owner.Slot
	}
	r.broadcast(protocol.MustEncode(protocol.MsgTargetSpawned, protocol.TargetSpawned{
		ID:         t.ID,
		Owner:      t.OwnerID(),
		Slot:       slot,
		X:          t.Position.X,
		Y:          t.Position.Y,
		LifetimeMs: t.Lifetime.Milliseconds(),
		Start:      t.Curve.Start,
		End:        t.Curve.End,
		Color:      r.settings.PlayerColors[slot%len(r.settings.PlayerColors)],
	}))
}

func (r *Room) updateSettings(p *SettingsPatch) settingsReply {
	if p == nil {
		return settingsReply{view: r.settings.view()}
	}
	next, err := r.settings.apply(*p)
	if err != nil {
		return settingsReply{view: r.settings.view(), err: err}
	}
	if err := r.engine.SetThresholds(next.Thresholds); err != nil {
		return settingsReply{view: r.settings.view(), err: err}
	}
	if err := r.spawner.SetConfig(next.Spawn); err != nil {
		return settingsReply{view: r.settings.view(), err: err}
	}
	for _, peer := range r.peers {
		peer.router.SetDuration(next.FeedbackDuration)
	}
	r.settings = next
	v := next.view()
	r.log.Infow("settings updated", "spawnIntervalMs", v.SpawnIntervalMs, "targetLifetimeMs", v.TargetLifetimeMs,
		"thresholds", next.Thresholds, "feedbackDurationMs", v.FeedbackDurationMs)
	return settingsReply{view: v}
}

func (r *Room) broadcast(b []byte) {
	for _, p := range r.sortedPeers() {
		r.deliver(p, b)
	}
}

// deliver 发送失败（队列满或已关闭）的连接在本轮末尾移除，保证其余人的有序送达
func (r *Room) deliver(p *Peer, b []byte) {
	if err := p.Conn.Send(b); err != nil {
		r.failed = append(r.failed, p.Player.ID)
	}
}

func (r *Room) reap() {
	for len(r.failed) > 0 {
		id := r.failed[0]
		r.failed = r.failed[1:]
		if _, ok := r.peers[id]; !ok {
			continue
		}
		r.stats.IncSendFailures()
		r.log.Warnw("dropping player with failed connection", "player", id)
		r.leave(id)
	}
}

func (r *Room) freeSlot() int {
	used := map[int]bool{}
	for _, p := range r.peers {
		used[p.Player.Slot] = true
	}
	for slot := 0; slot < maxPlayers; slot++ {
		if !used[slot] {
			return slot
		}
	}
	return 0
}

func (r *Room) sortedPeers() []*Peer {
	out := make([]*Peer, 0, len(r.peers))
	for _, p := range r.peers {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Player.Slot < out[j].Player.Slot })
	return out
}

func (r *Room) rosterEntries() []protocol.RosterEntry {
	snap := r.roster.Registry().Snapshot()
	entries := make([]protocol.RosterEntry, 0, len(snap))
	for id, name := range snap {
		entries = append(entries, protocol.RosterEntry{Player: id, Name: name})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Player < entries[j].Player })
	return entries
}

// PlayerStats 单个玩家的统计
type PlayerStats struct {
	ID   game.PlayerID `json:"id"`
	Name string        `json:"name"`
	Slot int           `json:"slot"`
	Hits int64         `json:"hits"`
	Host bool          `json:"host"`
}

// RoomStats /admin/stats 输出
type RoomStats struct {
	Room        string         `json:"room"`
	Session     string         `json:"session"`
	Tick        int64          `json:"tick"`
	LiveTargets int            `json:"liveTargets"`
	Spawning    bool           `json:"spawning"`
	Players     []PlayerStats  `json:"players"`
	Metrics     map[string]any `json:"metrics"`
}

func (r *Room) snapshot() RoomStats {
	host, _ := r.host.LocalPlayer()
	st := RoomStats{
		Room:        r.ID,
		Session:     r.Session,
		Tick:        r.tickSeq.Load(),
		LiveTargets: r.engine.Live(),
		Spawning:    r.spawner.Running(),
		Players:     []PlayerStats{},
		Metrics:     r.stats.Snapshot(),
	}
	for _, p := range r.sortedPeers() {
		st.Players = append(st.Players, PlayerStats{
			ID:   p.Player.ID,
			Name: r.roster.QueryName(p.Player.ID),
			Slot: p.Player.Slot,
			Hits: p.Player.Hits(),
			Host: p.Player.ID == host,
		})
	}
	return st
}

// ---- 以下方法可在任意 goroutine 中调用 ----

// enqueue 阻塞写入收件箱；房间已关闭或 ctx 结束时返回错误
func (r *Room) enqueue(ctx context.Context, cmd any) error {
	select {
	case r.inbox <- cmd:
		return nil
	case <-r.quit:
		return ErrRoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Join 请求加入房间，等待 Tick 线程分配标识
func (r *Room) Join(ctx context.Context, conn Conn) (JoinResult, error) {
	reply := make(chan JoinResult, 1)
	if err := r.enqueue(ctx, joinCmd{conn: conn, reply: reply}); err != nil {
		return JoinResult{}, err
	}
	select {
	case res := <-reply:
		return res, res.Err
	case <-r.quit:
		return JoinResult{}, ErrRoomClosed
	case <-ctx.Done():
		return JoinResult{}, ctx.Err()
	}
}

// RequestLeave 请求在 Tick 线程中移除玩家，避免并发改动房间状态
func (r *Room) RequestLeave(id game.PlayerID) {
	_ = r.enqueue(context.Background(), leaveCmd{player: id})
}

// Submit 转发身份提交到权威端；提交不会被丢弃
func (r *Room) Submit(origin game.PlayerID, msg game.SubmitIdentity) error {
	return r.enqueue(context.Background(), submitCmd{origin: origin, msg: msg})
}

// OnHit 入站命中输入（不阻塞：通道满时丢弃，保证 Tick 准时）
func (r *Room) OnHit(origin game.PlayerID, target game.TargetID) {
	select {
	case r.inbox <- hitCmd{origin: origin, target: target}:
	default:
		r.stats.IncChanFullDiscarded()
	}
}

// Settings 读取或热更新房间参数（patch 为 nil 时只读）
func (r *Room) Settings(ctx context.Context, patch *SettingsPatch) (SettingsView, error) {
	reply := make(chan settingsReply, 1)
	if err := r.enqueue(ctx, settingsCmd{patch: patch, reply: reply}); err != nil {
		return SettingsView{}, err
	}
	select {
	case res := <-reply:
		return res.view, res.err
	case <-r.quit:
		return SettingsView{}, ErrRoomClosed
	case <-ctx.Done():
		return SettingsView{}, ctx.Err()
	}
}

// Stats 房间运行统计
func (r *Room) Stats(ctx context.Context) (RoomStats, error) {
	reply := make(chan RoomStats, 1)
	if err := r.enqueue(ctx, statsCmd{reply: reply}); err != nil {
		return RoomStats{}, err
	}
	select {
	case res := <-reply:
		return res, nil
	case <-r.quit:
		return RoomStats{}, ErrRoomClosed
	case <-ctx.Done():
		return RoomStats{}, ctx.Err()
	}
}
