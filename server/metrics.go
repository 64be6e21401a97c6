package server

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"hitduel/game"
)

// RoomMetrics 记录房间运行期的关键指标（用于 /admin/stats 调试输出）
type RoomMetrics struct {
	TickCount         int64 // 统计的 Tick 次数
	Submissions       int64 // 收到的身份提交
	Confirmations     int64 // 发出的身份确认
	TargetsSpawned    int64 // 生成的目标数
	HitsResolved      int64 // 由输入结算的目标数
	TimeoutsResolved  int64 // 超时结算的目标数
	ChanFullDiscarded int64 // 因通道满被丢弃的输入数
	SendFailures      int64 // 因发送队列满而断开的连接数
	TotalTickNs       int64 // Tick 累计耗时（纳秒）
}

func (m *RoomMetrics) IncSubmissions()       { atomic.AddInt64(&m.Submissions, 1) }
func (m *RoomMetrics) IncConfirmations()     { atomic.AddInt64(&m.Confirmations, 1) }
func (m *RoomMetrics) IncTargetsSpawned()    { atomic.AddInt64(&m.TargetsSpawned, 1) }
func (m *RoomMetrics) IncHitsResolved()      { atomic.AddInt64(&m.HitsResolved, 1) }
func (m *RoomMetrics) IncTimeoutsResolved()  { atomic.AddInt64(&m.TimeoutsResolved, 1) }
func (m *RoomMetrics) IncChanFullDiscarded() { atomic.AddInt64(&m.ChanFullDiscarded, 1) }
func (m *RoomMetrics) IncSendFailures()      { atomic.AddInt64(&m.SendFailures, 1) }
func (m *RoomMetrics) AddTick(ns int64) {
	atomic.AddInt64(&m.TickCount, 1)
	atomic.AddInt64(&m.TotalTickNs, ns)
}

// Snapshot 返回只读副本，便于 HTTP 输出
func (m *RoomMetrics) Snapshot() map[string]any {
	tick := atomic.LoadInt64(&m.TickCount)
	total := atomic.LoadInt64(&m.TotalTickNs)
	var avgMs float64
	if tick > 0 {
		avgMs = float64(total) / float64(tick) / 1e6
	}
	return map[string]any{
		"tick_count":          tick,
		"submissions":         atomic.LoadInt64(&m.Submissions),
		"confirmations":       atomic.LoadInt64(&m.Confirmations),
		"targets_spawned":     atomic.LoadInt64(&m.TargetsSpawned),
		"hits_resolved":       atomic.LoadInt64(&m.HitsResolved),
		"timeouts_resolved":   atomic.LoadInt64(&m.TimeoutsResolved),
		"chan_full_discarded": atomic.LoadInt64(&m.ChanFullDiscarded),
		"send_failures":       atomic.LoadInt64(&m.SendFailures),
		"avg_tick_ms":         avgMs,
	}
}

// Metrics 进程级 Prometheus 指标，所有房间共享；nil 时各方法为空操作
type Metrics struct {
	registry *prometheus.Registry

	rooms            prometheus.Gauge
	playersConnected prometheus.Gauge
	submissions      prometheus.Counter
	confirmations    prometheus.Counter
	targetsSpawned   prometheus.Counter
	targetsResolved  *prometheus.CounterVec
	inputsRejected   prometheus.Counter
	tickDuration     prometheus.Histogram
}

// NewMetrics 在独立的 registry 上注册指标（避免默认 Go 运行时指标混入）
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	auto := promauto.With(reg)
	const ns = "hitduel"
	return &Metrics{
		registry: reg,
		rooms: auto.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "rooms",
			Help: "Number of live rooms",
		}),
		playersConnected: auto.NewGauge(prometheus.GaugeOpts{
			Namespace: ns, Name: "players_connected",
			Help: "Number of connected participants across rooms",
		}),
		submissions: auto.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "identity", Name: "submissions_total",
			Help: "Identity submissions received by the authority",
		}),
		confirmations: auto.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "identity", Name: "confirmations_total",
			Help: "Identity confirmations broadcast by the authority",
		}),
		targetsSpawned: auto.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "targets", Name: "spawned_total",
			Help: "Judged targets created",
		}),
		targetsResolved: auto.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "targets", Name: "resolved_total",
			Help: "Judged targets resolved, by tier and cause",
		}, []string{"tier", "cause"}),
		inputsRejected: auto.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: "targets", Name: "inputs_ignored_total",
			Help: "Inputs that did not resolve a target (foreign, duplicate or late)",
		}),
		tickDuration: auto.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Name: "tick_duration_seconds",
			Help:    "Time spent in one room simulation step",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05},
		}),
	}
}

// Handler Prometheus 抓取端点
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry 底层 registry（测试中用于 Gather）
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) roomOpened() {
	if m != nil {
		m.rooms.Inc()
	}
}

func (m *Metrics) roomClosed() {
	if m != nil {
		m.rooms.Dec()
	}
}

func (m *Metrics) playerJoined() {
	if m != nil {
		m.playersConnected.Inc()
	}
}

func (m *Metrics) playerLeft() {
	if m != nil {
		m.playersConnected.Dec()
	}
}

func (m *Metrics) submitted() {
	if m != nil {
		m.submissions.Inc()
	}
}

func (m *Metrics) confirmed() {
	if m != nil {
		m.confirmations.Inc()
	}
}

func (m *Metrics) spawned() {
	if m != nil {
		m.targetsSpawned.Inc()
	}
}

func (m *Metrics) resolved(out game.Outcome) {
	if m == nil {
		return
	}
	cause := "hit"
	if out.Timeout {
		cause = "timeout"
	}
	m.targetsResolved.WithLabelValues(out.Tier.String(), cause).Inc()
}

func (m *Metrics) inputIgnored() {
	if m != nil {
		m.inputsRejected.Inc()
	}
}

func (m *Metrics) observeTick(seconds float64) {
	if m != nil {
		m.tickDuration.Observe(seconds)
	}
}
