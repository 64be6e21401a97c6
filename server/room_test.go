package server

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"hitduel/game"
	"hitduel/protocol"

	. "github.com/smartystreets/goconvey/convey"
)

type fakeConn struct {
	mu     sync.Mutex
	msgs   [][]byte
	closed bool
	fail   bool
}

func (f *fakeConn) Send(b []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return ErrConnClosed
	}
	if f.fail {
		return ErrSendQueueFull
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	f.msgs = append(f.msgs, cp)
	return nil
}

func (f *fakeConn) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// of 按类型取出已收到的消息，保持顺序
func of[T any](f *fakeConn, typ string) []T {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []T
	for _, b := range f.msgs {
		env, err := protocol.DecodeEnvelope(b)
		if err != nil || env.T != typ {
			continue
		}
		v, err := protocol.DecodePayload[T](env)
		if err != nil {
			panic(err)
		}
		out = append(out, v)
	}
	return out
}

func newTestRoom() *Room {
	r, err := NewRoom("test", DefaultSettings(), WithRoomRand(rand.New(rand.NewPCG(7, 7))))
	if err != nil {
		panic(err)
	}
	return r
}

func TestRoom_Join(t *testing.T) {
	Convey("Given an empty room", t, func() {
		r := newTestRoom()
		c1, c2, c3 := &fakeConn{}, &fakeConn{}, &fakeConn{}

		res1 := r.join(c1)
		So(res1.Err, ShouldBeNil)
		So(res1.Player, ShouldEqual, game.PlayerID("P1"))
		So(r.spawner.Running(), ShouldBeFalse)

		Convey("When a second player joins", func() {
			res2 := r.join(c2)

			Convey("Then both are known and the spawner starts", func() {
				So(res2.Player, ShouldEqual, game.PlayerID("P2"))
				So(res2.Slot, ShouldEqual, 1)
				So(r.spawner.Running(), ShouldBeTrue)

				w1 := of[protocol.Welcome](c1, protocol.MsgWelcome)
				w2 := of[protocol.Welcome](c2, protocol.MsgWelcome)
				So(w1, ShouldHaveLength, 1)
				So(w1[0].Host, ShouldBeTrue)
				So(w2[0].Host, ShouldBeFalse)
				So(w2[0].Session, ShouldEqual, r.Session)
			})

			Convey("Then a third player is refused", func() {
				res3 := r.join(c3)
				So(errors.Is(res3.Err, ErrRoomFull), ShouldBeTrue)
				So(r.peers, ShouldHaveLength, 2)
			})

			Convey("Then leaving stops the spawner and frees the slot", func() {
				r.leave("P1")
				So(r.spawner.Running(), ShouldBeFalse)
				So(c1.closed, ShouldBeTrue)
				So(of[protocol.PlayerLeft](c2, protocol.MsgPlayerLeft), ShouldHaveLength, 1)
				_, hostKnown := r.host.LocalPlayer()
				So(hostKnown, ShouldBeFalse)

				res3 := r.join(c3)
				So(res3.Player, ShouldEqual, game.PlayerID("P3"))
				So(res3.Slot, ShouldEqual, 0)
				So(of[protocol.Welcome](c3, protocol.MsgWelcome)[0].Host, ShouldBeTrue)
				So(r.spawner.Running(), ShouldBeTrue)
			})
		})
	})
}

func TestRoom_Identity(t *testing.T) {
	Convey("Given two joined players", t, func() {
		r := newTestRoom()
		c1, c2 := &fakeConn{}, &fakeConn{}
		r.join(c1)
		r.join(c2)

		Convey("When both submit names", func() {
			r.submit("P1", game.SubmitIdentity{Name: "Alice"})
			r.submit("P2", game.SubmitIdentity{Player: "P1", Name: "Player_P2"})

			Convey("Then every participant receives confirmations in authority order", func() {
				for _, c := range []*fakeConn{c1, c2} {
					got := of[game.ConfirmIdentity](c, protocol.MsgConfirmIdentity)
					So(got, ShouldHaveLength, 2)
					So(got[0].Player, ShouldEqual, game.PlayerID("P1"))
					So(got[0].Name, ShouldEqual, "Alice")
					So(got[1].Player, ShouldEqual, game.PlayerID("P2"))
					So(got[1].Seq, ShouldBeGreaterThan, got[0].Seq)
				}
				So(r.Registry().Snapshot(), ShouldResemble, map[game.PlayerID]string{"P1": "Alice", "P2": "Player_P2"})
			})

			Convey("Then re-submitting the same name broadcasts again", func() {
				r.submit("P1", game.SubmitIdentity{Name: "Alice"})
				So(of[game.ConfirmIdentity](c2, protocol.MsgConfirmIdentity), ShouldHaveLength, 3)
				So(r.Registry().Len(), ShouldEqual, 2)
			})
		})

		Convey("When a submission arrives from an origin the room never saw", func() {
			r.submit("P9", game.SubmitIdentity{Name: "Ghost"})

			Convey("Then it is normalized to the host", func() {
				So(r.Registry().Name("P1"), ShouldEqual, "Ghost")
			})
		})

		Convey("When a queued submission arrives after its sender was reaped", func() {
			c2.fail = true
			r.submit("P1", game.SubmitIdentity{Name: "Alice"})
			r.reap()
			So(r.peers, ShouldHaveLength, 1)
			r.submit("P2", game.SubmitIdentity{Name: "Stale"})

			Convey("Then it is dropped and the host keeps its name", func() {
				So(r.Registry().Name("P1"), ShouldEqual, "Alice")
				So(of[game.ConfirmIdentity](c1, protocol.MsgConfirmIdentity), ShouldHaveLength, 1)
			})
		})

		Convey("When a late joiner arrives", func() {
			r.submit("P1", game.SubmitIdentity{Name: "Alice"})
			r.leave("P2")
			c3 := &fakeConn{}
			r.join(c3)

			Convey("Then its welcome carries the confirmed roster", func() {
				w := of[protocol.Welcome](c3, protocol.MsgWelcome)
				So(w[0].Roster, ShouldResemble, []protocol.RosterEntry{{Player: "P1", Name: "Alice"}})
			})
		})
	})
}

func TestRoom_Judgment(t *testing.T) {
	Convey("Given a running two-player room", t, func() {
		r := newTestRoom()
		c1, c2 := &fakeConn{}, &fakeConn{}
		r.join(c1)
		r.join(c2)
		conns := map[game.PlayerID]*fakeConn{"P1": c1, "P2": c2}

		r.step(time.Second)
		spawned := of[protocol.TargetSpawned](c1, protocol.MsgTargetSpawned)
		So(spawned, ShouldHaveLength, 1)
		target := spawned[0]
		owner := conns[target.Owner]
		var otherID game.PlayerID = "P1"
		if target.Owner == "P1" {
			otherID = "P2"
		}
		other := conns[otherID]
		So(of[protocol.TargetSpawned](c2, protocol.MsgTargetSpawned), ShouldResemble, spawned)
		So(target.Color, ShouldEqual, r.settings.PlayerColors[target.Slot])
		So(target.LifetimeMs, ShouldEqual, int64(2000))

		Convey("When the other player hits it", func() {
			r.hit(otherID, target.ID)

			Convey("Then nothing is resolved", func() {
				So(of[protocol.TargetResolved](c1, protocol.MsgTargetResolved), ShouldBeEmpty)
				_, live := r.engine.Get(target.ID)
				So(live, ShouldBeTrue)
			})
		})

		Convey("When the owner hits it at half its lifetime", func() {
			r.step(time.Second)
			r.hit(target.Owner, target.ID)

			Convey("Then everyone sees the resolution but only the owner gets feedback", func() {
				for _, c := range []*fakeConn{c1, c2} {
					res := of[protocol.TargetResolved](c, protocol.MsgTargetResolved)
					So(res, ShouldHaveLength, 1)
					So(res[0].Tier, ShouldEqual, game.TierPerfect)
					So(res[0].Hits, ShouldEqual, int64(1))
				}
				fb := of[game.Display](owner, protocol.MsgFeedback)
				So(fb, ShouldHaveLength, 1)
				So(fb[0].Tier, ShouldEqual, game.TierPerfect)
				So(fb[0].Visible, ShouldBeTrue)
				So(of[game.Display](other, protocol.MsgFeedback), ShouldBeEmpty)
				So(r.peers[target.Owner].Player.Hits(), ShouldEqual, int64(1))
			})

			Convey("Then the feedback disappears after its duration", func() {
				r.step(time.Second)
				fb := of[game.Display](owner, protocol.MsgFeedback)
				So(fb[len(fb)-1].Visible, ShouldBeFalse)
			})

			Convey("Then a second hit is ignored", func() {
				r.hit(target.Owner, target.ID)
				So(of[protocol.TargetResolved](c1, protocol.MsgTargetResolved), ShouldHaveLength, 1)
			})
		})

		Convey("When nobody hits it", func() {
			r.step(time.Second)
			r.step(time.Second)

			Convey("Then it times out as a Miss shown only to its owner", func() {
				var mine []protocol.TargetResolved
				for _, res := range of[protocol.TargetResolved](other, protocol.MsgTargetResolved) {
					if res.ID == target.ID {
						mine = append(mine, res)
					}
				}
				So(mine, ShouldHaveLength, 1)
				So(mine[0].Timeout, ShouldBeTrue)
				So(mine[0].Tier, ShouldEqual, game.TierMiss)
				So(r.peers[target.Owner].Player.Hits(), ShouldEqual, int64(0))

				fb := of[game.Display](owner, protocol.MsgFeedback)
				So(fb, ShouldNotBeEmpty)
				So(fb[0].Tier, ShouldEqual, game.TierMiss)
				So(fb[0].Color, ShouldEqual, "#FF0000")
			})
		})
	})
}

func TestRoom_SlowConnection(t *testing.T) {
	Convey("Given a participant whose send queue is full", t, func() {
		r := newTestRoom()
		c1, c2 := &fakeConn{}, &fakeConn{}
		r.join(c1)
		r.join(c2)
		c2.fail = true

		r.submit("P1", game.SubmitIdentity{Name: "Alice"})
		r.reap()

		Convey("Then it is dropped instead of silently missing broadcasts", func() {
			So(r.peers, ShouldHaveLength, 1)
			So(c2.closed, ShouldBeTrue)
			So(r.spawner.Running(), ShouldBeFalse)
			So(r.stats.Snapshot()["send_failures"], ShouldEqual, int64(1))
		})
	})
}

func TestRoom_Settings(t *testing.T) {
	Convey("Given a room with default settings", t, func() {
		r := newTestRoom()
		r.join(&fakeConn{})

		Convey("When a valid patch is applied", func() {
			perfect, interval := 0.02, int64(500)
			res := r.updateSettings(&SettingsPatch{PerfectThreshold: &perfect, SpawnIntervalMs: &interval})
			So(res.err, ShouldBeNil)
			So(res.view.PerfectThreshold, ShouldEqual, 0.02)
			So(res.view.SpawnIntervalMs, ShouldEqual, int64(500))
			So(r.engine.Thresholds().Perfect, ShouldEqual, 0.02)
			So(r.spawner.Config().Interval, ShouldEqual, 500*time.Millisecond)
		})

		Convey("When an invalid patch is applied", func() {
			good := 0.01
			res := r.updateSettings(&SettingsPatch{GoodThreshold: &good})
			So(res.err, ShouldNotBeNil)
			So(res.view.GoodThreshold, ShouldEqual, 0.30)
			So(r.engine.Thresholds().Good, ShouldEqual, 0.30)
		})
	})
}

func TestRoom_Run(t *testing.T) {
	Convey("Given a room ticking in its own goroutine", t, func() {
		s := DefaultSettings()
		s.TickInterval = 5 * time.Millisecond
		r, err := NewRoom("live", s)
		So(err, ShouldBeNil)
		go r.Run()
		defer func() {
			r.Stop()
			<-r.Done()
		}()

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		c1, c2 := &fakeConn{}, &fakeConn{}
		res1, err := r.Join(ctx, c1)
		So(err, ShouldBeNil)
		_, err = r.Join(ctx, c2)
		So(err, ShouldBeNil)
		So(r.Submit(res1.Player, game.SubmitIdentity{Name: "Alice"}), ShouldBeNil)

		var st RoomStats
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			st, err = r.Stats(ctx)
			So(err, ShouldBeNil)
			if len(st.Players) == 2 && st.Players[0].Name == "Alice" {
				break
			}
			time.Sleep(5 * time.Millisecond)
		}

		So(st.Players, ShouldHaveLength, 2)
		So(st.Players[0].Name, ShouldEqual, "Alice")
		So(st.Players[0].Host, ShouldBeTrue)
		So(st.Players[1].Name, ShouldEqual, "Player_P2")
		So(st.Spawning, ShouldBeTrue)

		Convey("When the room stops, joins fail", func() {
			r.Stop()
			<-r.Done()
			_, err := r.Join(ctx, &fakeConn{})
			So(errors.Is(err, ErrRoomClosed), ShouldBeTrue)
			So(c1.closed, ShouldBeTrue)
		})
	})
}
