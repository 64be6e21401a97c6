package game

import (
	"sync"

	"go.uber.org/zap"
)

// SubmitIdentity 参与者 → 权威端：申请一个显示名
// Player 只是声明，权威端以传输层给出的真实来源为准
type SubmitIdentity struct {
	Player PlayerID `json:"player,omitempty"`
	Name   string   `json:"name"`
}

// ConfirmIdentity 权威端 → 所有参与者：确认 (玩家, 名字)
type ConfirmIdentity struct {
	Seq    uint64   `json:"seq"`
	Player PlayerID `json:"player"`
	Name   string   `json:"name"`
}

// AuthorityLink 任意参与者到权威端的单播
type AuthorityLink interface {
	SendSubmit(SubmitIdentity) error
}

// Broadcaster 仅权威端可发起的有序广播
type Broadcaster interface {
	BroadcastConfirm(ConfirmIdentity)
}

// Membership 判断调用来源是否为在线参与者
type Membership interface {
	IsParticipant(PlayerID) bool
}

// CredentialStore 提供当前登录用户名，作为默认候选名
type CredentialStore interface {
	CurrentUser() (string, bool)
}

// Authority 身份确认的唯一权威：按接收顺序串行处理提交并广播确认
type Authority struct {
	mu      sync.Mutex
	self    LocalIdentity
	members Membership
	out     Broadcaster
	seq     uint64
	log     *zap.SugaredLogger
}

// NewAuthority 创建权威端；self 为托管方自身的参与者身份
func NewAuthority(self LocalIdentity, members Membership, out Broadcaster, log *zap.SugaredLogger) *Authority {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Authority{self: self, members: members, out: out, log: log}
}

// HandleSubmit 处理来自 origin 的提交
// 来源不是已识别参与者时归一化为托管方自身身份；托管方身份也未知时丢弃
func (a *Authority) HandleSubmit(origin PlayerID, msg SubmitIdentity) (ConfirmIdentity, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	player := origin
	if player == "" || a.members == nil || !a.members.IsParticipant(player) {
		local, ok := a.self.LocalPlayer()
		if !ok {
			a.log.Warnw("submission from unrecognized origin and no local identity, dropped", "origin", origin, "name", msg.Name)
			return ConfirmIdentity{}, false
		}
		a.log.Warnw("submission from unrecognized origin, remapped to local player", "origin", origin, "local", local)
		player = local
	}
	if msg.Player != "" && msg.Player != player {
		a.log.Debugw("claimed identity ignored", "claimed", msg.Player, "origin", player)
	}
	name := msg.Name
	if name == "" {
		name = FallbackName(player)
	}

	a.seq++
	confirm := ConfirmIdentity{Seq: a.seq, Player: player, Name: name}
	a.log.Infow("identity confirmed", "player", player, "name", name, "seq", confirm.Seq)
	if a.out != nil {
		a.out.BroadcastConfirm(confirm)
	}
	return confirm, true
}

// IdentityListener identity_established 事件订阅者
type IdentityListener func(player PlayerID, name string)

// IdentityService 参与者侧的身份同步：提交、接收确认、查询
type IdentityService struct {
	mu        sync.Mutex
	self      LocalIdentity
	link      AuthorityLink
	creds     CredentialStore
	registry  *Registry
	listeners []IdentityListener
	pending   *string
	lastSeq   uint64
	log       *zap.SugaredLogger
}

// IdentityOption 可选项
type IdentityOption func(*IdentityService)

// WithCredentials 默认候选名来源
func WithCredentials(c CredentialStore) IdentityOption {
	return func(s *IdentityService) { s.creds = c }
}

// WithIdentityLogger 注入日志
func WithIdentityLogger(l *zap.SugaredLogger) IdentityOption {
	return func(s *IdentityService) {
		if l != nil {
			s.log = l
		}
	}
}

// NewIdentityService 创建参与者侧服务；registry 为本进程的注册表副本
func NewIdentityService(self LocalIdentity, link AuthorityLink, registry *Registry, opts ...IdentityOption) *IdentityService {
	if registry == nil {
		registry = NewRegistry()
	}
	s := &IdentityService{
		self:     self,
		link:     link,
		registry: registry,
		log:      zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry 本地注册表副本
func (s *IdentityService) Registry() *Registry { return s.registry }

// Subscribe 订阅 identity_established
func (s *IdentityService) Subscribe(fn IdentityListener) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Submit 为自己申请名字，立即返回；结果通过确认广播异步到达
// 本地身份未就绪时先挂起，由 Tick 在就绪后发出
func (s *IdentityService) Submit(candidate string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.self.LocalPlayer(); !ok {
		c := candidate
		s.pending = &c
		s.log.Debugw("local identity not ready, submission pending")
		return nil
	}
	return s.sendLocked(candidate)
}

// Tick 轮询本地身份，就绪后发出挂起的提交
func (s *IdentityService) Tick() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return nil
	}
	if _, ok := s.self.LocalPlayer(); !ok {
		return nil
	}
	c := *s.pending
	s.pending = nil
	return s.sendLocked(c)
}

// Pending 是否有尚未发出的提交
func (s *IdentityService) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending != nil
}

func (s *IdentityService) sendLocked(candidate string) error {
	local, _ := s.self.LocalPlayer()
	name := s.resolveName(local, candidate)
	s.log.Infow("submitting identity", "player", local, "name", name)
	if s.link == nil {
		return nil
	}
	return s.link.SendSubmit(SubmitIdentity{Player: local, Name: name})
}

// resolveName 候选名 → 当前登录用户 → "Player_" + 标识
func (s *IdentityService) resolveName(local PlayerID, candidate string) string {
	if candidate != "" {
		return candidate
	}
	if s.creds != nil {
		if user, ok := s.creds.CurrentUser(); ok && user != "" {
			return user
		}
	}
	return FallbackName(local)
}

// OnConfirm 收到权威端确认：写入注册表并通知订阅者
func (s *IdentityService) OnConfirm(msg ConfirmIdentity) {
	if msg.Player == "" {
		return
	}
	s.registry.Put(msg.Player, msg.Name)
	s.mu.Lock()
	if msg.Seq > s.lastSeq {
		s.lastSeq = msg.Seq
	}
	listeners := append([]IdentityListener(nil), s.listeners...)
	s.mu.Unlock()
	s.log.Infow("identity established", "player", msg.Player, "name", msg.Name)
	for _, fn := range listeners {
		fn(msg.Player, msg.Name)
	}
}

// QueryName 查询名字，未注册时使用兜底名
func (s *IdentityService) QueryName(id PlayerID) string {
	return s.registry.Name(id)
}
