package game

import "sync"

// Bus 进程内的身份同步传输：提交排队到权威端，确认按发出顺序投递给每个参与者
// 投递发生在 Flush 时，模拟“确认在之后的某个 tick 到达”
type Bus struct {
	mu        sync.Mutex
	authority *Authority
	order     []PlayerID
	peers     map[PlayerID]*IdentityService
	submits   []busSubmit
	inbox     map[PlayerID][]ConfirmIdentity
}

type busSubmit struct {
	origin PlayerID
	msg    SubmitIdentity
}

// NewBus 创建空总线
func NewBus() *Bus {
	return &Bus{
		peers: make(map[PlayerID]*IdentityService),
		inbox: make(map[PlayerID][]ConfirmIdentity),
	}
}

// AttachAuthority 绑定权威端
func (b *Bus) AttachAuthority(a *Authority) {
	b.mu.Lock()
	b.authority = a
	b.mu.Unlock()
}

// Join 注册参与者
func (b *Bus) Join(id PlayerID, svc *IdentityService) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.peers[id]; !ok {
		b.order = append(b.order, id)
	}
	b.peers[id] = svc
}

// Link 返回以 origin 为真实来源的单播链路
func (b *Bus) Link(origin PlayerID) AuthorityLink {
	return busLink{bus: b, origin: origin}
}

type busLink struct {
	bus    *Bus
	origin PlayerID
}

func (l busLink) SendSubmit(msg SubmitIdentity) error {
	l.bus.mu.Lock()
	l.bus.submits = append(l.bus.submits, busSubmit{origin: l.origin, msg: msg})
	l.bus.mu.Unlock()
	return nil
}

// IsParticipant 实现 Membership
func (b *Bus) IsParticipant(id PlayerID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.peers[id]
	return ok
}

// BroadcastConfirm 实现 Broadcaster：追加到每个参与者的收件箱
// 由 Authority 在 Flush 过程中调用，此时 b.mu 未被持有
func (b *Bus) BroadcastConfirm(msg ConfirmIdentity) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, id := range b.order {
		b.inbox[id] = append(b.inbox[id], msg)
	}
}

// Flush 按接收顺序把提交交给权威端，再把确认投递给所有参与者
// 返回投递的确认条数
func (b *Bus) Flush() int {
	b.mu.Lock()
	submits := b.submits
	b.submits = nil
	authority := b.authority
	b.mu.Unlock()

	if authority != nil {
		for _, s := range submits {
			authority.HandleSubmit(s.origin, s.msg)
		}
	}

	b.mu.Lock()
	type delivery struct {
		svc  *IdentityService
		msgs []ConfirmIdentity
	}
	var deliveries []delivery
	for _, id := range b.order {
		if msgs := b.inbox[id]; len(msgs) > 0 {
			deliveries = append(deliveries, delivery{svc: b.peers[id], msgs: msgs})
			b.inbox[id] = nil
		}
	}
	b.mu.Unlock()

	n := 0
	for _, d := range deliveries {
		for _, m := range d.msgs {
			d.svc.OnConfirm(m)
			n++
		}
	}
	return n
}
