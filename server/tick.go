package server

import "time"

// Run 房间的 Tick 循环（单线程推进世界），直到 Stop
func (r *Room) Run() {
	defer close(r.done)
	ticker := time.NewTicker(r.settings.TickInterval)
	defer ticker.Stop()
	last := time.Now()

	for {
		select {
		case <-r.quit:
			r.shutdown()
			return
		case now := <-ticker.C:
			// 核心循环：处理输入 → 推进计时与出生 → 广播结果
			start := time.Now()
			r.drain()
			r.step(now.Sub(last))
			last = now
			r.tickSeq.Add(1)
			elapsed := time.Since(start)
			r.stats.AddTick(elapsed.Nanoseconds())
			r.metrics.observeTick(elapsed.Seconds())
		}
	}
}

// Stop 结束 Tick 循环并关闭所有连接，可重复调用
func (r *Room) Stop() {
	r.stopOnce.Do(func() { close(r.quit) })
}

// Done 循环退出后关闭
func (r *Room) Done() <-chan struct{} { return r.done }

// drain 处理当前帧的所有命令（非阻塞）
func (r *Room) drain() {
	for {
		select {
		case cmd := <-r.inbox:
			r.process(cmd)
		default:
			return
		}
	}
}

func (r *Room) shutdown() {
	for _, p := range r.sortedPeers() {
		_ = p.Conn.Close()
		delete(r.peers, p.Player.ID)
		r.metrics.playerLeft()
	}
	r.spawner.Stop()
	r.log.Infow("room stopped", "session", r.Session, "ticks", r.tickSeq.Load())
}
