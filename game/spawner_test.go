package game_test

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"hitduel/game"

	. "github.com/smartystreets/goconvey/convey"
)

func TestSpawner(t *testing.T) {
	Convey("Given a spawner with a fixed seed", t, func() {
		e := newTestEngine()
		var hooked []*game.Target
		cfg := game.DefaultSpawnConfig()
		s, err := game.NewSpawner(cfg, e,
			game.WithRand(rand.New(rand.NewPCG(1, 2))),
			game.WithSpawnHook(func(t *game.Target) { hooked = append(hooked, t) }),
		)
		So(err, ShouldBeNil)
		p1 := game.NewPlayer("P1", 0)
		p2 := game.NewPlayer("P2", 1)

		Convey("When fewer than two players are known", func() {
			err := s.Start(p1, nil)

			Convey("Then it refuses to start and never spawns", func() {
				So(errors.Is(err, game.ErrNotEnoughPlayers), ShouldBeTrue)
				So(s.Running(), ShouldBeFalse)
				So(s.Tick(10*time.Second), ShouldBeEmpty)
				So(e.Live(), ShouldEqual, 0)
			})

			Convey("And the same player twice is not two players", func() {
				So(errors.Is(s.Start(p1, p1), game.ErrNotEnoughPlayers), ShouldBeTrue)
			})
		})

		Convey("When both players are known", func() {
			So(s.Start(p1, p2), ShouldBeNil)

			Convey("Then one target is created per interval", func() {
				So(s.Tick(999*time.Millisecond), ShouldBeEmpty)
				spawned := s.Tick(time.Millisecond)
				So(spawned, ShouldHaveLength, 1)
				So(s.Tick(2*time.Second), ShouldHaveLength, 2)
				So(hooked, ShouldHaveLength, 3)
				So(e.Live(), ShouldEqual, 3)
			})

			Convey("Then targets land in range and go to both players", func() {
				owners := map[game.PlayerID]int{}
				for i := 0; i < 200; i++ {
					for _, tg := range s.Tick(cfg.Interval) {
						owners[tg.OwnerID()]++
						So(tg.Position.X, ShouldBeBetweenOrEqual, cfg.RangeX.Min, cfg.RangeX.Max)
						So(tg.Position.Y, ShouldBeBetweenOrEqual, cfg.RangeY.Min, cfg.RangeY.Max)
						So(tg.Lifetime, ShouldEqual, cfg.Lifetime)
						So(tg.Resolved(), ShouldBeFalse)
					}
					e.Tick(cfg.Interval)
				}
				So(len(owners), ShouldEqual, 2)
				So(owners["P1"], ShouldBeGreaterThan, 50)
				So(owners["P2"], ShouldBeGreaterThan, 50)
			})

			Convey("Then Stop halts spawning but live targets keep counting", func() {
				s.Tick(time.Second)
				s.Stop()
				So(s.Tick(5*time.Second), ShouldBeEmpty)
				So(e.Live(), ShouldEqual, 1)
				So(e.Tick(cfg.Lifetime), ShouldHaveLength, 1)
			})
		})
	})

	Convey("Given an invalid spawn config", t, func() {
		cfg := game.DefaultSpawnConfig()
		cfg.Interval = 0
		_, err := game.NewSpawner(cfg, newTestEngine())
		So(err, ShouldNotBeNil)

		cfg = game.DefaultSpawnConfig()
		cfg.RangeX = game.Range{Min: 1, Max: -1}
		So(cfg.Validate(), ShouldNotBeNil)

		_, err = game.NewSpawner(game.DefaultSpawnConfig(), nil)
		So(err, ShouldNotBeNil)

		cfg = game.DefaultSpawnConfig()
		cfg.Curve.Start = math.NaN()
		So(cfg.Validate(), ShouldNotBeNil)

		cfg = game.DefaultSpawnConfig()
		cfg.Curve.End = math.Inf(-1)
		So(cfg.Validate(), ShouldNotBeNil)
	})
}
